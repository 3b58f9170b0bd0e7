// Copyright 2024 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package jump

import "math/bits"

const (
	// MinTableSize is the smallest table size the oracle produces. Every
	// size-returning function clamps its result to at least MinTableSize,
	// which keeps the jump modulus (size-1) comfortably above zero.
	MinTableSize = 7

	// MaxTableSize is the largest prime representable in a uint32
	// (2^32 - 5). Size searches saturate here rather than failing: a caller
	// asking for a size must always receive a usable one.
	MaxTableSize = 4294967291

	// nearestSearchRadius bounds the window scanned by NearestPrime. The
	// largest prime gap below 2^32 is 336, so the window cannot be exhausted
	// by an in-range input.
	nearestSearchRadius = 1024
)

// smallPrimes is the trial division table used by IsPrime. Any composite
// below 41^2 has a factor in this table.
var smallPrimes = [...]uint32{2, 3, 5, 7, 11, 13, 17, 19, 23, 29, 31, 37}

// IsPrime reports whether n is prime. It is exact over the full uint32
// range: candidates below 41^2 are resolved by trial division, larger ones
// by a deterministic Miller-Rabin test with witnesses {2, 7, 61}, which is
// known to be exact for all n < 4,759,123,141 (Jaeschke 1993). See
// https://en.wikipedia.org/wiki/Miller%E2%80%93Rabin_primality_test.
func IsPrime(n uint32) bool {
	for _, p := range smallPrimes {
		if n == p {
			return true
		}
		if n%p == 0 {
			return false
		}
	}
	if n < 41*41 {
		return n > 1
	}
	return millerRabin(n, 2) && millerRabin(n, 7) && millerRabin(n, 61)
}

// millerRabin reports whether n passes a single Miller-Rabin round with
// witness a. Requires n odd and n > a.
func millerRabin(n, a uint32) bool {
	// Decompose n-1 as d * 2^r with d odd.
	d := n - 1
	r := bits.TrailingZeros32(d)
	d >>= uint(r)

	x := powMod(a, d, n)
	if x == 1 || x == n-1 {
		return true
	}
	for i := 1; i < r; i++ {
		x = uint32(uint64(x) * uint64(x) % uint64(n))
		if x == n-1 {
			return true
		}
	}
	return false
}

// powMod computes base^exp mod m without overflow: intermediate products of
// two uint32 values fit in a uint64.
func powMod(base, exp, m uint32) uint32 {
	result := uint64(1)
	b := uint64(base) % uint64(m)
	for e := exp; e > 0; e >>= 1 {
		if e&1 == 1 {
			result = result * b % uint64(m)
		}
		b = b * b % uint64(m)
	}
	return uint32(result)
}

// NextHashableSize returns the smallest prime >= minSize that is usable as a
// table size under the given hash multiplier. A candidate prime p is skipped
// when p == hashMultiplier or when p divides hashMultiplier, since either
// degenerates the jump cycle for some hashes. The result is never smaller
// than MinTableSize, and the search saturates at MaxTableSize.
func NextHashableSize(minSize, hashMultiplier uint32) uint32 {
	if minSize < MinTableSize {
		minSize = MinTableSize
	}
	if minSize >= MaxTableSize {
		return MaxTableSize
	}
	// MinTableSize is odd, so n|1 only ever rounds an even candidate up.
	for n := minSize | 1; n < MaxTableSize; n += 2 {
		if !IsPrime(n) || n == hashMultiplier {
			continue
		}
		if hashMultiplier != 0 && hashMultiplier%n == 0 {
			continue
		}
		return n
	}
	return MaxTableSize
}

// NearestPrime returns the prime closest to n by absolute distance, ties
// broken toward the larger value. The search is bounded by
// nearestSearchRadius; an out-of-range n yields MaxTableSize.
func NearestPrime(n uint32) uint32 {
	if n >= MaxTableSize {
		return MaxTableSize
	}
	for d := uint32(0); d <= nearestSearchRadius; d++ {
		// Checking above before below breaks distance ties toward the
		// larger prime.
		if d <= MaxTableSize-n && IsPrime(n+d) {
			return n + d
		}
		if d > 0 && d < n && IsPrime(n-d) {
			return n - d
		}
	}
	return MaxTableSize
}
