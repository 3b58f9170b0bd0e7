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

import "hash/maphash"

// option provide an interface to do work on Map while it is being created.
type option[K comparable, V any] interface {
	apply(m *Map[K, V])
}

type hashOption[K comparable, V any] struct {
	hash func(seed maphash.Seed, key K) uint32
}

func (op hashOption[K, V]) apply(m *Map[K, V]) {
	m.hash = op.hash
}

// WithHash is an option to specify the hash function to use for a Map[K,V].
// The seed passed to the function is chosen at construction and fixed for
// the map's lifetime; implementations may ignore it. Equal keys must hash
// equal, where equality is == or the function given via WithKeyEqual. By
// default a map hashes with hash/maphash.
func WithHash[K comparable, V any](hash func(seed maphash.Seed, key K) uint32) option[K, V] {
	return hashOption[K, V]{hash}
}

type keyEqualOption[K comparable, V any] struct {
	eq func(a, b K) bool
}

func (op keyEqualOption[K, V]) apply(m *Map[K, V]) {
	m.keyEq = op.eq
}

// WithKeyEqual is an option to specify the key equality function for a
// Map[K,V], replacing ==. It is normally paired with WithHash so that keys
// equal under eq also hash equal.
func WithKeyEqual[K comparable, V any](eq func(a, b K) bool) option[K, V] {
	return keyEqualOption[K, V]{eq}
}

type valueEqualOption[K comparable, V any] struct {
	eq func(a, b V) bool
}

func (op valueEqualOption[K, V]) apply(m *Map[K, V]) {
	m.valEq = op.eq
}

// WithValueEqual is an option to specify a value equality function for a
// Map[K,V]. It is required only by ContainsEntry; a map constructed without
// it reports false for every ContainsEntry query.
func WithValueEqual[K comparable, V any](eq func(a, b V) bool) option[K, V] {
	return valueEqualOption[K, V]{eq}
}

// Allocator specifies an interface for allocating and releasing memory used
// by a Map. The default allocator utilizes Go's builtin make() and allows
// the GC to reclaim memory.
//
// If the allocator is manually managing memory and requires that slots be
// freed then Map.Close must be called in order to ensure Free is called.
type Allocator[K comparable, V any] interface {
	// Alloc should return a slice equivalent to make([]Slot[K,V], n).
	Alloc(n int) []Slot[K, V]

	// Free can optionally release the memory associated with the supplied
	// slice that is guaranteed to have been allocated by Alloc.
	Free(v []Slot[K, V])
}

type defaultAllocator[K comparable, V any] struct{}

func (defaultAllocator[K, V]) Alloc(n int) []Slot[K, V] {
	return make([]Slot[K, V], n)
}

func (defaultAllocator[K, V]) Free(v []Slot[K, V]) {
}

type allocatorOption[K comparable, V any] struct {
	allocator Allocator[K, V]
}

func (op allocatorOption[K, V]) apply(m *Map[K, V]) {
	m.allocator = op.allocator
}

// WithAllocator is an option for specify the Allocator to use for a Map[K,V].
func WithAllocator[K comparable, V any](allocator Allocator[K, V]) option[K, V] {
	return allocatorOption[K, V]{allocator}
}
