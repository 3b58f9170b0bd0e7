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

// ErrCapacityExceeded is returned by Put and PutIfAbsent when a fixed-size
// table (Policy.Growth == nil), or a table that has already grown to
// MaxTableSize, is at its load limit. The entry is not inserted. The error is
// recoverable: the caller can delete entries, switch to a growable policy, or
// drop the insert.
var ErrCapacityExceeded = errors.New("jump: table at load limit and cannot grow")

// ErrConcurrentModification is reported by an Iterator that has detected a
// mutation of the underlying Map it did not perform itself. The iterator is
// dead once this is reported; iteration can be restarted with Reset or a
// fresh call to Iter.
var ErrConcurrentModification = errors.New("jump: map modified during iteration")

// ErrInvalidPolicy is the class of errors returned by Policy.Validate. Map
// construction never fails with it: New substitutes safe defaults for invalid
// fields and logs a warning instead.
var ErrInvalidPolicy = errors.New("jump: invalid sizing policy")

// errIterClosed is returned by mutating Iterator methods after Close.
var errIterClosed = errors.New("jump: iterator used after Close")

// errNoCurrent is returned by RemoveCurrent and SetValue when the iterator
// has no current entry: before the first Next, after Next has returned false,
// or after the current entry was already removed.
var errNoCurrent = errors.New("jump: iterator has no current entry")
