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

// package jump is a Go implementation of an open-addressing hash table that
// resolves collisions by double hashing, sometimes called "jump probing",
// over a prime-sized slot array. If you're not familiar with
// open-addressing see https://en.wikipedia.org/wiki/Open_addressing; for
// double hashing see https://en.wikipedia.org/wiki/Double_hashing.
//
// # Jump probing
//
// The table is a single flat array of slots whose length is always prime,
// supplied by a small prime oracle (IsPrime, NextHashableSize,
// NearestPrime). A key's hash is masked to 31 bits; the masked hash picks
// the home slot (hash mod size) and, scaled by the sizing policy's
// multiplier, a per-key jump distance in [1, size-1]:
//
//	jump = 1 + (hash * multiplier mod 2^31) mod (size-1)
//
// After a collision the probe steps to (idx + jump) mod size. Because size
// is prime and 0 < jump < size, gcd(jump, size) = 1 and the probe sequence
// visits every slot exactly once before repeating. That coverage property
// is what the prime sizes buy: probes are bounded by one full cycle no
// matter how adversarial the hashes are, and an insert below the load limit
// always finds a free slot.
//
// Each slot carries an int32 tag that fully encodes its state: 0 means the
// slot was never used, a positive tag is a live entry and stores the key's
// 31-bit hash, and a negative tag is a tombstone holding the negated hash
// of the entry that was removed. Storing the full hash in the tag makes
// most probe mismatches a single integer comparison, and lets a resize
// replay entries without rehashing any key.
//
// # Tombstones
//
// Deletion writes a tombstone: the payload is dropped immediately but the
// slot keeps a nonzero tag so probe chains running through it stay intact.
// A later insert that probes across a tombstone reclaims it in place.
// Tombstones are purged wholesale whenever the table is rebuilt: on growth,
// on Rehash, on ResetCapacity, and on EnsureCapacity when it resizes.
//
// # Sizing
//
// Sizing is governed by a Policy value: initial size, load factor, hash
// multiplier, and an optional growth function. The live count is capped at
// capacity = floor(size * load_factor + 0.5); an insert at the cap grows
// the table to the next usable prime, or fails with ErrCapacityExceeded
// when the policy is fixed-size. See Policy and DefaultPolicy.
//
// # Iteration
//
// Two iteration forms are provided. All is a range-over-func style snapshot
// walk with no safety guarantees under mutation. Iter returns an Iterator, a
// single-pass cursor that supports removing or updating the entry it is
// positioned on and fails fast with ErrConcurrentModification if anything
// else mutates the map mid-iteration; the map's version counter, bumped by
// every mutation, is how the iterator detects foreign writes.
//
// A Map is NOT goroutine-safe.
package jump

import (
	"fmt"
	"hash/maphash"
	"strings"

	"github.com/cockroachdb/errors"
)

const (
	debug = false

	// hashMask selects the low 31 bits of a hash. A live slot's tag stores
	// the masked hash, so a live tag is always positive as an int32.
	hashMask = 0x7fffffff
)

// Slot holds a key and value.
type Slot[K comparable, V any] struct {
	key   K
	value V
	// tag encodes the slot state: 0 = never used, >0 = live entry holding
	// the 31-bit hash of key, <0 = tombstone holding the negated hash of
	// the removed entry. A live tag always equals the normalized hash of
	// key.
	tag int32
}

// Map is an unordered map from keys to values with Put, Get, Delete, and
// iteration operations. Collisions are resolved by double hashing over a
// prime-sized slot array; see the package documentation for the design. By
// default a Map[K,V] hashes keys with hash/maphash, though a different hash
// function can be specified using the WithHash option.
//
// A Map is NOT goroutine-safe. The zero value for a Map is not usable; use
// New.
type Map[K comparable, V any] struct {
	// policy supplies capacity math and probe jump distances. Immutable
	// after New.
	policy Policy
	// The hash function applied to keys of type K, with the seed fixed at
	// construction.
	hash func(seed maphash.Seed, key K) uint32
	seed maphash.Seed
	// keyEq compares keys; == unless WithKeyEqual was given.
	keyEq func(a, b K) bool
	// valEq compares values for ContainsEntry; nil unless WithValueEqual
	// was given, in which case ContainsEntry always reports false.
	valEq func(a, b V) bool
	// The allocator to use for the slots slice.
	allocator Allocator[K, V]
	// slots is prime in length, at least MinTableSize.
	slots []Slot[K, V]
	// count is the number of live entries. While an Iterator holds
	// removals that have not been flushed by its Close or Reset, count
	// overcounts the live slots by pending.
	count uint32
	// pending is the total of iterator removals whose count decrement has
	// not been flushed yet. Always <= count.
	pending uint32
	// dead is the number of tombstone slots. Only a rebuild resets it.
	dead uint32
	// capacity is the cached load limit policy.Capacity(size), recomputed
	// on every resize.
	capacity uint32
	// collisions counts every probe step past an occupied slot, cumulative
	// over the map's lifetime including resize replays. Diagnostic only.
	collisions uint64
	// version increments on every mutation: inserts, overwrites, removals,
	// clears, and rebuilds. Iterators mirror it to detect mutations they
	// did not perform themselves.
	version uint64
}

// New constructs a Map governed by the given sizing policy, with the slot
// array allocated immediately at the policy's initial size. A zero Policy
// selects DefaultPolicy. New never fails: an invalid policy is corrected
// field-by-field to defaults, logging a warning per correction.
func New[K comparable, V any](policy Policy, options ...option[K, V]) *Map[K, V] {
	if policy.isZero() {
		policy = DefaultPolicy()
	} else {
		policy = policy.sanitize()
	}

	m := &Map[K, V]{
		policy:    policy,
		hash:      maphashComparable[K],
		seed:      maphash.MakeSeed(),
		keyEq:     func(a, b K) bool { return a == b },
		allocator: defaultAllocator[K, V]{},
	}
	for _, op := range options {
		op.apply(m)
	}

	m.slots = m.allocator.Alloc(int(policy.InitialSize))
	m.capacity = policy.Capacity(policy.InitialSize)
	m.checkInvariants()
	return m
}

// maphashComparable is the default hash function.
func maphashComparable[K comparable](seed maphash.Seed, key K) uint32 {
	return uint32(maphash.Comparable(seed, key))
}

// Close closes the map, releasing its slot memory back to the configured
// allocator. It is unnecessary to close a map using the default allocator.
// It is invalid to use a Map after it has been closed, though Close itself
// is idempotent.
func (m *Map[K, V]) Close() {
	if m.allocator != nil {
		m.allocator.Free(m.slots)
		m.allocator = nil
	}
	m.slots = nil
	m.count = 0
	m.pending = 0
	m.dead = 0
}

// Put inserts an entry into the map, overwriting an existing value if an
// entry with the same key already exists. When the live count has reached
// the load limit, Put first grows the table to the policy's next size; if
// the policy is fixed-size, or the table is already at MaxTableSize, Put
// returns ErrCapacityExceeded and the map is unchanged.
func (m *Map[K, V]) Put(key K, value V) error {
	_, _, err := m.insert(key, value, true)
	return err
}

// PutIfAbsent inserts an entry only if key has no live mapping. If key is
// already mapped, the existing value is returned with inserted=false and
// the map is not mutated; an existing mapping is a normal negative result,
// not an error. PutIfAbsent is subject to the same load limit handling as
// Put, including its up-front resize, and can return ErrCapacityExceeded.
func (m *Map[K, V]) PutIfAbsent(key K, value V) (actual V, inserted bool, err error) {
	return m.insert(key, value, false)
}

// Get retrieves the value from the map for the specified key, returning
// ok=false if the key is not present.
func (m *Map[K, V]) Get(key K) (value V, ok bool) {
	if i := m.findSlot(key, m.normHash(key)); i >= 0 {
		return m.slots[i].value, true
	}
	return value, false
}

// Contains reports whether the map holds an entry for key.
func (m *Map[K, V]) Contains(key K) bool {
	return m.findSlot(key, m.normHash(key)) >= 0
}

// ContainsEntry reports whether the map holds exactly the given key/value
// pair. Value comparison requires the WithValueEqual option; a map
// constructed without it cannot compare values and reports false.
func (m *Map[K, V]) ContainsEntry(key K, value V) bool {
	if m.valEq == nil {
		return false
	}
	i := m.findSlot(key, m.normHash(key))
	return i >= 0 && m.valEq(value, m.slots[i].value)
}

// Delete deletes the entry corresponding to the specified key from the map,
// reporting whether an entry was present. It is a noop to delete a
// non-existent key.
func (m *Map[K, V]) Delete(key K) bool {
	_, ok := m.Pop(key)
	return ok
}

// Pop deletes the entry for key and returns its value, with ok=false when
// no entry was present. The vacated slot becomes a tombstone: its payload
// is dropped immediately, but its tag stays nonzero so probe chains running
// through the slot are not broken. A later insert probing across the
// tombstone reclaims it; the next rebuild purges it.
func (m *Map[K, V]) Pop(key K) (value V, ok bool) {
	i := m.findSlot(key, m.normHash(key))
	if i < 0 {
		return value, false
	}
	s := &m.slots[i]
	value = s.value
	*s = Slot[K, V]{tag: -s.tag}
	m.count--
	m.dead++
	m.version++
	if debug {
		fmt.Printf("delete(%v): index=%d count=%d dead=%d\n", key, i, m.count, m.dead)
	}
	m.checkInvariants()
	return value, true
}

// Clear deletes all entries from the map, keeping the allocated slot array.
// Tombstones are dropped along with the live entries. The cumulative
// collision counter is preserved.
func (m *Map[K, V]) Clear() {
	clear(m.slots)
	m.count = 0
	m.pending = 0
	m.dead = 0
	m.version++
	m.checkInvariants()
}

// EnsureCapacity grows the table, if necessary, so it can hold at least n
// live entries without another resize. An explicit capacity request is
// honored even under a fixed-size policy; Policy.Growth gates only the
// automatic growth performed by inserts. EnsureCapacity never shrinks.
func (m *Map[K, V]) EnsureCapacity(n int) {
	if target := m.policy.SizeFor(n); target > m.size() {
		m.rehash(target)
	}
}

// ResetCapacity rebuilds the table at the policy's initial size, or at the
// smallest size whose load limit still admits the current entries when they
// no longer fit the initial size. Tombstones are purged by the rebuild.
func (m *Map[K, V]) ResetCapacity() {
	target := m.policy.InitialSize
	if fit := m.policy.SizeFor(m.Len()); fit > target {
		target = fit
	}
	m.rehash(target)
}

// Rehash compacts the table in place by rebuilding it at its current size:
// tombstones are purged and entries move to the earliest position on their
// probe chain. Useful after heavy deletion, when probe chains have grown
// long but the size is still right.
func (m *Map[K, V]) Rehash() {
	m.rehash(m.size())
}

// Len returns the number of entries in the map. Removals made through an
// Iterator are reflected only once that iterator is closed or reset.
func (m *Map[K, V]) Len() int {
	return int(m.count)
}

// All calls yield sequentially for each key and value present in the map.
// If yield returns false, iteration stops. All reads a snapshot of the slot
// array taken when it is called: the map may be mutated during the
// iteration, though whether mutations are visible to it is unspecified, and
// no modification detection is performed. The signature conforms to
// range-over-func:
//
//	for k, v := range m.All {
//	  fmt.Printf("%v: %v\n", k, v)
//	}
//
// For mutation-safe traversal, including removing entries mid-iteration,
// use Iter.
func (m *Map[K, V]) All(yield func(key K, value V) bool) {
	// Snapshot the slots slice so iteration stays on the old array if the
	// map is resized during iteration.
	slots := m.slots
	for i := range slots {
		if slots[i].tag > 0 {
			if !yield(slots[i].key, slots[i].value) {
				return
			}
		}
	}
}

// size returns the slot array length, which is always prime.
func (m *Map[K, V]) size() uint32 {
	return uint32(len(m.slots))
}

// normHash returns the normalized 31-bit hash of key: the top bit is
// cleared so the hash fits a positive int32 tag, and 0 is nudged to 1 so a
// live tag can never collide with the never-used tag encoding.
func (m *Map[K, V]) normHash(key K) uint32 {
	h := m.hash(m.seed, key) & hashMask
	if h == 0 {
		h = 1
	}
	return h
}

// findSlot returns the index of the live slot holding key, or -1. The probe
// starts at h mod size and steps by the policy's jump distance, which
// visits every slot once before cycling, so the loop is bounded by size
// even when the table holds no empty slot. An empty slot ends the probe
// early: the key cannot be further along its own chain. Every step past an
// occupied slot, tombstone or live mismatch, counts as a collision.
func (m *Map[K, V]) findSlot(key K, h uint32) int {
	size := m.size()
	jump := m.policy.jump(h, size)
	idx := h % size
	if debug {
		fmt.Printf("find(%v): h=%08x idx=%d jump=%d\n", key, h, idx, jump)
	}

	for n := uint32(0); n < size; n++ {
		s := &m.slots[idx]
		if s.tag == 0 {
			return -1
		}
		// h is in [1, 2^31-1], so the tag comparison alone rejects empty
		// slots, tombstones, and live entries with a different hash.
		if s.tag == int32(h) && m.keyEq(key, s.key) {
			if debug {
				fmt.Printf("find(%v): index=%d probes=%d\n", key, idx, n)
			}
			return int(idx)
		}
		m.collisions++
		idx = (idx + jump) % size
	}
	return -1
}

// insert implements Put and PutIfAbsent. The load limit is enforced up
// front, before probing: growth happens (or ErrCapacityExceeded is
// returned) whenever count has reached capacity, even if the key turns out
// to be an overwrite. Keeping count below capacity also guarantees the
// probe cycle below always contains an empty or tombstone slot.
func (m *Map[K, V]) insert(key K, value V, overwrite bool) (actual V, inserted bool, err error) {
	for m.count >= m.capacity {
		next := m.policy.NextSize(m.size(), MaxTableSize)
		if next == m.size() {
			return actual, false, errors.Wrapf(ErrCapacityExceeded,
				"size %d holds at most %d entries", m.size(), m.capacity)
		}
		if next == MaxTableSize {
			Logger().Warn("table size saturated at largest prime",
				"size", uint32(MaxTableSize), "count", m.count)
		}
		m.rehash(next)
	}

	h := m.normHash(key)
	size := m.size()
	jump := m.policy.jump(h, size)
	idx := h % size
	// insertAt remembers the first tombstone or empty slot seen on the
	// probe path; writing there reclaims tombstones without a rebuild.
	insertAt := -1
	if debug {
		fmt.Printf("put(%v): h=%08x idx=%d jump=%d\n", key, h, idx, jump)
	}

	for n := uint32(0); n < size; n++ {
		s := &m.slots[idx]
		if s.tag == 0 {
			if insertAt < 0 {
				insertAt = int(idx)
			}
			break
		}
		if s.tag < 0 {
			// Tombstone. Remember it, then keep probing: the key may still
			// be live further along the chain.
			if insertAt < 0 {
				insertAt = int(idx)
			}
			m.collisions++
			idx = (idx + jump) % size
			continue
		}
		if s.tag == int32(h) && m.keyEq(key, s.key) {
			if !overwrite {
				if debug {
					fmt.Printf("put(%v): already mapped index=%d\n", key, idx)
				}
				return s.value, false, nil
			}
			if debug {
				fmt.Printf("put(%v): overwriting index=%d\n", key, idx)
			}
			s.value = value
			m.version++
			m.checkInvariants()
			return value, false, nil
		}
		m.collisions++
		idx = (idx + jump) % size
	}

	if insertAt < 0 {
		// Unreachable while the hash and equality contracts hold: the load
		// limit leaves at least one empty or tombstone slot in the cycle.
		panic(fmt.Sprintf("no insertion point for key %v\n%s", key, m.debugString()))
	}

	s := &m.slots[insertAt]
	if s.tag < 0 {
		m.dead--
	}
	s.key = key
	s.value = value
	s.tag = int32(h)
	m.count++
	m.version++
	if debug {
		fmt.Printf("put(%v): inserted index=%d count=%d dead=%d\n", key, insertAt, m.count, m.dead)
	}
	m.checkInvariants()
	return value, true, nil
}

// uncheckedPut inserts an entry known not to be in the table into a freshly
// allocated slot array. There is no capacity check and no version bump; the
// caller rebuilds wholesale. The tag already holds the key's 31-bit hash,
// so replaying entries never rehashes a key.
func (m *Map[K, V]) uncheckedPut(h uint32, key K, value V) {
	size := m.size()
	jump := m.policy.jump(h, size)
	idx := h % size

	for {
		s := &m.slots[idx]
		if s.tag == 0 {
			s.key = key
			s.value = value
			s.tag = int32(h)
			return
		}
		m.collisions++
		idx = (idx + jump) % size
	}
}

// rehash rebuilds the table at the target size, replaying every live entry
// through the unchecked insert path and discarding tombstones; this is the
// only point tombstones are purged. The live count is unchanged, capacity
// is recomputed, and the version bumps once for the whole rebuild.
func (m *Map[K, V]) rehash(target uint32) {
	old := m.slots
	m.slots = m.allocator.Alloc(int(target))
	m.capacity = m.policy.Capacity(target)
	m.dead = 0
	if debug {
		fmt.Printf("rehash: size=%d->%d count=%d capacity=%d\n",
			len(old), target, m.count, m.capacity)
	}

	for i := range old {
		if old[i].tag > 0 {
			m.uncheckedPut(uint32(old[i].tag), old[i].key, old[i].value)
		}
	}

	m.allocator.Free(old)
	m.version++
	m.checkInvariants()
}

// flushRemovals applies n deferred iterator removals to the live count. The
// tombstones were already written by RemoveCurrent; only the bookkeeping
// lands here. A rebuild or Clear since the removals may have reconciled
// pending itself, so the application is capped by the map's outstanding
// total. If the flush empties the map the table clears itself fully,
// dropping the accumulated tombstones.
func (m *Map[K, V]) flushRemovals(n uint32) {
	if n > m.pending {
		n = m.pending
	}
	if n == 0 {
		return
	}
	m.count -= n
	m.pending -= n
	m.version++
	if m.count == 0 {
		clear(m.slots)
		m.dead = 0
	}
	m.checkInvariants()
}

func (m *Map[K, V]) checkInvariants() {
	if invariants {
		size := m.size()
		if size < MinTableSize || !IsPrime(size) {
			panic(fmt.Sprintf("invariant failed: size %d is not a usable table size\n%s",
				size, m.debugString()))
		}
		if want := m.policy.Capacity(size); m.capacity != want {
			panic(fmt.Sprintf("invariant failed: capacity %d, but policy computes %d\n%s",
				m.capacity, want, m.debugString()))
		}
		if m.count > m.capacity {
			panic(fmt.Sprintf("invariant failed: count %d exceeds capacity %d\n%s",
				m.count, m.capacity, m.debugString()))
		}
		if m.pending > m.count {
			panic(fmt.Sprintf("invariant failed: pending %d exceeds count %d\n%s",
				m.pending, m.count, m.debugString()))
		}

		// Get probes below bump the collision counter; keep the diagnostics
		// unaffected by invariant checking.
		saved := m.collisions
		var live, dead uint32
		for i := range m.slots {
			s := &m.slots[i]
			switch {
			case s.tag > 0:
				live++
				if h := m.normHash(s.key); s.tag != int32(h) {
					panic(fmt.Sprintf("invariant failed: slot(%d): tag %08x != hash %08x of key %v\n%s",
						i, uint32(s.tag), h, s.key, m.debugString()))
				}
				if _, ok := m.Get(s.key); !ok {
					panic(fmt.Sprintf("invariant failed: slot(%d): %v not found\n%s",
						i, s.key, m.debugString()))
				}
			case s.tag < 0:
				dead++
			}
		}
		m.collisions = saved

		if live != m.count-m.pending {
			panic(fmt.Sprintf("invariant failed: found %d live slots, but count %d with %d pending\n%s",
				live, m.count, m.pending, m.debugString()))
		}
		if dead != m.dead {
			panic(fmt.Sprintf("invariant failed: found %d tombstones, but dead count is %d\n%s",
				dead, m.dead, m.debugString()))
		}
	}
}

func (m *Map[K, V]) debugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "size=%d  count=%d  pending=%d  dead=%d  capacity=%d  version=%d\n",
		m.size(), m.count, m.pending, m.dead, m.capacity, m.version)
	for i := range m.slots {
		s := &m.slots[i]
		switch {
		case s.tag == 0:
			fmt.Fprintf(&buf, "  %4d: empty\n", i)
		case s.tag < 0:
			fmt.Fprintf(&buf, "  %4d: tombstone [tag=%08x]\n", i, uint32(-s.tag))
		default:
			fmt.Fprintf(&buf, "  %4d: %v [tag=%08x]\n", i, s.key, uint32(s.tag))
		}
	}
	return buf.String()
}
