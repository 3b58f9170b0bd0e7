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
	"github.com/cockroachdb/redact"
	"github.com/dustin/go-humanize"
)

// Metrics holds a point-in-time snapshot of a Map's table diagnostics.
type Metrics struct {
	// Count is the number of live entries. Removals made through an open
	// Iterator land only after that iterator flushes.
	Count int
	// Size is the slot array length, always prime.
	Size int
	// Capacity is the load limit for the current size; an insert at this
	// count resizes or fails.
	Capacity int
	// Tombstones is the number of slots vacated by removals and not yet
	// reclaimed by an insert or purged by a rebuild.
	Tombstones int
	// Collisions is the cumulative number of probe steps past occupied
	// slots over the map's lifetime, including resize replays.
	Collisions uint64
	// Load is Count divided by Size.
	Load float64
}

// Metrics returns the table's current diagnostics.
func (m *Map[K, V]) Metrics() Metrics {
	var load float64
	if size := m.size(); size > 0 {
		load = float64(m.count) / float64(size)
	}
	return Metrics{
		Count:      int(m.count),
		Size:       int(m.size()),
		Capacity:   int(m.capacity),
		Tombstones: int(m.dead),
		Collisions: m.collisions,
		Load:       load,
	}
}

var _ redact.SafeFormatter = (*Metrics)(nil)

// SafeFormat implements redact.SafeFormatter. Counts and ratios carry no
// key or value data, so every field is safe.
func (m *Metrics) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("count: %s  size: %s  capacity: %s  load: %.2f\n",
		redact.Safe(humanize.Comma(int64(m.Count))),
		redact.Safe(humanize.Comma(int64(m.Size))),
		redact.Safe(humanize.Comma(int64(m.Capacity))),
		redact.Safe(m.Load))
	w.Printf("tombstones: %s  collisions: %s",
		redact.Safe(humanize.Comma(int64(m.Tombstones))),
		redact.Safe(humanize.Comma(int64(m.Collisions))))
}

// String implements fmt.Stringer.
func (m *Metrics) String() string {
	return redact.StringWithoutMarkers(m)
}
