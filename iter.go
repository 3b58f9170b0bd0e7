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

import "github.com/cockroachdb/errors"

// Iterator is a single-pass cursor over a Map, visiting entries in an
// unspecified order. Unlike All, an Iterator supports mutating the map
// mid-iteration through the cursor itself: RemoveCurrent and SetValue are
// sanctioned mutations that keep the iterator valid. Any other mutation of
// the map invalidates it, and the next iterator operation fails with
// ErrConcurrentModification.
//
// A removal through the cursor tombstones the slot immediately but defers
// the live-count decrement until the iterator flushes, at Close or Reset.
// Always close an iterator, even after a failure; until then Map.Len still
// includes the removed entries.
//
// The zero value is not usable; obtain an Iterator from Map.Iter.
type Iterator[K comparable, V any] struct {
	m *Map[K, V]
	// pos is the next slot index to consider, walking the array from the
	// high end down. Equals len(slots) before the first Next.
	pos int
	// cur is the slot index of the current entry, or -1 when the cursor is
	// not positioned on one.
	cur int
	// remaining counts down from the number of live entries at creation
	// (or the last Reset); the walk stops early once all have been seen.
	remaining uint32
	// version mirrors the map's version. A mismatch means something other
	// than this iterator mutated the map.
	version uint64
	// pending is the number of removals made through this iterator whose
	// count decrement has not been flushed yet.
	pending uint32
	// err is the sticky failure that stopped iteration, reported by Err.
	err    error
	closed bool
}

// Iter returns an Iterator positioned before the first entry. The iterator
// is bound to the map's state as of this call; a later mutation not made
// through the iterator invalidates it.
func (m *Map[K, V]) Iter() *Iterator[K, V] {
	return &Iterator[K, V]{
		m:         m,
		pos:       len(m.slots),
		cur:       -1,
		remaining: m.count - m.pending,
		version:   m.version,
	}
}

// Next advances to the next entry, reporting whether one exists. It returns
// false when the iteration has drained the map, when the iterator is closed,
// or when a foreign mutation has invalidated the iterator; the latter two
// are told apart from a normal drain by Err.
func (it *Iterator[K, V]) Next() bool {
	if it.closed {
		it.err = errIterClosed
		return false
	}
	if it.err != nil {
		return false
	}
	if it.version != it.m.version {
		it.err = errors.Wrapf(ErrConcurrentModification,
			"iterator bound to version %d, map at version %d", it.version, it.m.version)
		it.cur = -1
		return false
	}

	it.cur = -1
	if it.remaining == 0 {
		return false
	}
	for it.pos > 0 {
		it.pos--
		if it.m.slots[it.pos].tag > 0 {
			it.cur = it.pos
			it.remaining--
			return true
		}
	}
	return false
}

// Key returns the key of the current entry, or the zero value when the
// iterator is not positioned on one or has been invalidated by a foreign
// mutation.
func (it *Iterator[K, V]) Key() (key K) {
	if it.closed || it.cur < 0 || it.version != it.m.version ||
		it.m.slots[it.cur].tag <= 0 {
		return key
	}
	return it.m.slots[it.cur].key
}

// Value returns the value of the current entry, or the zero value when the
// iterator is not positioned on one or has been invalidated by a foreign
// mutation.
func (it *Iterator[K, V]) Value() (value V) {
	if it.closed || it.cur < 0 || it.version != it.m.version ||
		it.m.slots[it.cur].tag <= 0 {
		return value
	}
	return it.m.slots[it.cur].value
}

// RemoveCurrent removes the current entry without invalidating the
// iterator. The slot is tombstoned and its payload dropped immediately, but
// the map's live count is only adjusted when the iterator flushes at Close
// or Reset. Removing before the first Next, or twice for the same entry,
// fails with a no-current-entry error.
func (it *Iterator[K, V]) RemoveCurrent() error {
	if err := it.check(); err != nil {
		return err
	}
	s := &it.m.slots[it.cur]
	*s = Slot[K, V]{tag: -s.tag}
	it.m.dead++
	it.m.pending++
	it.m.version++
	it.version = it.m.version
	it.pending++
	it.m.checkInvariants()
	return nil
}

// SetValue replaces the value of the current entry, leaving its key and
// slot position untouched. The update counts as a sanctioned mutation: the
// iterator remains valid.
func (it *Iterator[K, V]) SetValue(value V) error {
	if err := it.check(); err != nil {
		return err
	}
	it.m.slots[it.cur].value = value
	it.m.version++
	it.version = it.m.version
	return nil
}

// Reset flushes this iterator's deferred removals and re-arms it at the
// map's current state, positioned before the first entry. Reset recovers an
// iterator invalidated by a foreign mutation: the sticky error is cleared.
func (it *Iterator[K, V]) Reset() error {
	if it.closed {
		return errIterClosed
	}
	it.m.flushRemovals(it.pending)
	it.pending = 0
	it.pos = len(it.m.slots)
	it.cur = -1
	it.remaining = it.m.count - it.m.pending
	it.version = it.m.version
	it.err = nil
	return nil
}

// Close flushes deferred removals and releases the iterator. If the flush
// leaves the map empty, the map drops its tombstones as well. Close is
// idempotent and always returns nil; using the iterator afterwards fails.
func (it *Iterator[K, V]) Close() error {
	if it.closed {
		return nil
	}
	it.m.flushRemovals(it.pending)
	it.pending = 0
	it.m = nil
	it.cur = -1
	it.closed = true
	return nil
}

// Err returns the sticky error that stopped iteration, if any. After Next
// returns false, a nil Err means the iteration drained the map normally.
func (it *Iterator[K, V]) Err() error {
	return it.err
}

// check validates the iterator for a mutating cursor operation.
func (it *Iterator[K, V]) check() error {
	if it.closed {
		return errIterClosed
	}
	if it.err != nil {
		return it.err
	}
	if it.version != it.m.version {
		it.err = errors.Wrapf(ErrConcurrentModification,
			"iterator bound to version %d, map at version %d", it.version, it.m.version)
		it.cur = -1
		return it.err
	}
	if it.cur < 0 || it.m.slots[it.cur].tag <= 0 {
		return errNoCurrent
	}
	return nil
}
