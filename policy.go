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

import (
	"math"

	"github.com/cockroachdb/errors"
)

const (
	// DefaultLoadFactor bounds live entries to 72% of the slot array,
	// balancing probe length against memory.
	DefaultLoadFactor = 0.72

	// DefaultHashMultiplier is the prime 32-bit golden ratio constant
	// (2^32 / phi), which spreads consecutive hashes across the jump range.
	DefaultHashMultiplier = 0x9e3779b1

	// DefaultInitialSize is the slot count a default-policy table starts
	// with.
	DefaultInitialSize = MinTableSize
)

// GrowthFunc maps the current table size to a multiplicative growth factor
// for the next resize. The returned factor must be greater than 1 to enlarge
// the table; any other value leaves the size unchanged.
type GrowthFunc func(prevSize uint32) float64

// Doubling is the growth function used by DefaultPolicy. Every automatic
// resize targets twice the previous size before rounding up to a usable
// prime.
func Doubling(prevSize uint32) float64 { return 2 }

// Policy configures a Map's sizing and probing behavior. It is passed by
// value at construction and never mutated by the table; all methods are
// pure functions of the fields.
//
// The zero Policy is not valid on its own: New treats it as a request for
// DefaultPolicy. Any other invalid combination of fields is corrected
// field-by-field to defaults, with a warning logged per correction (see
// SetLogger); construction never fails. Validate is available for callers
// that want to reject an invalid policy, for example one decoded from
// external input, before handing it to New.
type Policy struct {
	// InitialSize is the slot count allocated at construction. It must be
	// prime and at least MinTableSize.
	InitialSize uint32
	// LoadFactor is the fraction of slots that may hold live entries,
	// in (0, 1]. The table resizes (or rejects inserts) once the live
	// count reaches Capacity(size) = floor(size*LoadFactor + 0.5).
	LoadFactor float64
	// HashMultiplier scales a key's hash to derive its probe step. It must
	// be prime.
	HashMultiplier uint32
	// Growth determines how the table grows when the load limit is hit.
	// A nil Growth makes the table fixed-size: inserts beyond the load
	// limit fail with ErrCapacityExceeded instead of resizing.
	Growth GrowthFunc
}

// DefaultPolicy returns the policy New uses when handed a zero Policy: a
// doubling table starting at MinTableSize with a 0.72 load factor.
func DefaultPolicy() Policy {
	return Policy{
		InitialSize:    DefaultInitialSize,
		LoadFactor:     DefaultLoadFactor,
		HashMultiplier: DefaultHashMultiplier,
		Growth:         Doubling,
	}
}

// Capacity returns the load limit for a table of the given size: the largest
// live-entry count admitted before a resize is due.
func (p Policy) Capacity(size uint32) uint32 {
	return uint32(float64(size)*p.LoadFactor + 0.5)
}

// SizeFor returns the smallest usable table size whose load limit admits n
// live entries, so Capacity(SizeFor(n)) >= n. The result saturates at
// MaxTableSize.
func (p Policy) SizeFor(n int) uint32 {
	if n <= 0 {
		return NextHashableSize(0, p.HashMultiplier)
	}
	needed := math.Ceil(float64(n) / p.LoadFactor)
	if !(needed < MaxTableSize) {
		return MaxTableSize
	}
	return NextHashableSize(uint32(needed), p.HashMultiplier)
}

// NextSize returns the size a table of size prev should grow to, capped at
// max. A fixed-size policy returns prev unchanged, which callers treat as
// "cannot grow"; so does a growth factor that is not greater than 1.
func (p Policy) NextSize(prev, max uint32) uint32 {
	if p.Growth == nil || prev >= max {
		return prev
	}
	factor := p.Growth(prev)
	if !(factor > 1) {
		return prev
	}
	target := math.Ceil(float64(prev) * factor)
	if target >= float64(max) {
		return max
	}
	next := NextHashableSize(uint32(target), p.HashMultiplier)
	if next > max {
		return max
	}
	return next
}

// Validate reports whether the policy's fields are internally consistent.
// The returned error, if any, is marked with ErrInvalidPolicy. Note that New
// does not require a valid policy; it corrects invalid fields itself.
func (p Policy) Validate() error {
	if p.InitialSize < MinTableSize {
		return errors.Wrapf(ErrInvalidPolicy,
			"initial size %d below minimum table size %d", p.InitialSize, MinTableSize)
	}
	if !IsPrime(p.InitialSize) {
		return errors.Wrapf(ErrInvalidPolicy, "initial size %d is not prime", p.InitialSize)
	}
	if !(p.LoadFactor > 0 && p.LoadFactor <= 1) {
		return errors.Wrapf(ErrInvalidPolicy, "load factor %v outside (0, 1]", p.LoadFactor)
	}
	if !IsPrime(p.HashMultiplier) {
		return errors.Wrapf(ErrInvalidPolicy, "hash multiplier %d is not prime", p.HashMultiplier)
	}
	return nil
}

// sanitize returns a copy of the policy with any invalid field replaced by
// its default, logging one warning per correction.
func (p Policy) sanitize() Policy {
	log := Logger()
	if p.InitialSize < MinTableSize {
		log.Warn("invalid sizing policy: initial size below minimum",
			"initial_size", p.InitialSize, "corrected", uint32(MinTableSize))
		p.InitialSize = MinTableSize
	} else if !IsPrime(p.InitialSize) {
		corrected := NearestPrime(p.InitialSize)
		log.Warn("invalid sizing policy: initial size not prime",
			"initial_size", p.InitialSize, "corrected", corrected)
		p.InitialSize = corrected
	}
	if !(p.LoadFactor > 0 && p.LoadFactor <= 1) {
		log.Warn("invalid sizing policy: load factor outside (0, 1]",
			"load_factor", p.LoadFactor, "corrected", float64(DefaultLoadFactor))
		p.LoadFactor = DefaultLoadFactor
	}
	if !IsPrime(p.HashMultiplier) {
		log.Warn("invalid sizing policy: hash multiplier not prime",
			"hash_multiplier", p.HashMultiplier, "corrected", uint32(DefaultHashMultiplier))
		p.HashMultiplier = DefaultHashMultiplier
	}
	return p
}

// isZero reports whether p is the zero Policy, which New interprets as a
// request for DefaultPolicy rather than as an invalid configuration.
func (p Policy) isZero() bool {
	return p.InitialSize == 0 && p.LoadFactor == 0 && p.HashMultiplier == 0 && p.Growth == nil
}

// jump computes the probe step for a 31-bit hash in a table of the given
// prime size:
//
//	jump = 1 + (h31 * multiplier mod 2^31) mod (size-1)
//
// The size-1 modulus plus the leading 1 pin the result to [1, size-1], never
// 0 and never a multiple of size; size being prime then gives
// gcd(jump, size) = 1, so stepping idx = (idx+jump) mod size visits every
// slot exactly once before repeating.
func (p Policy) jump(h31, size uint32) uint32 {
	return 1 + ((h31*p.HashMultiplier)&hashMask)%(size-1)
}
