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
	"fmt"
	"hash/maphash"
	"strconv"
	"strings"
	"testing"

	"github.com/cockroachdb/datadriven"
)

// identHash hashes a key to itself, which makes the probe layouts in the
// testdata files hand-computable: key k homes at slot k mod size and steps
// by 1 + (k * multiplier mod 2^31) mod (size-1).
func identHash(_ maphash.Seed, key int) uint32 {
	return uint32(key)
}

func TestDataDriven(t *testing.T) {
	datadriven.Walk(t, "testdata", func(t *testing.T, path string) {
		var m *Map[int, int]
		datadriven.RunTest(t, path, func(t *testing.T, d *datadriven.TestData) string {
			switch d.Cmd {
			case "new":
				var size, mult int
				d.ScanArgs(t, "size", &size)
				d.ScanArgs(t, "multiplier", &mult)
				lf := 0.72
				if d.HasArg("load-factor") {
					var s string
					d.ScanArgs(t, "load-factor", &s)
					var err error
					if lf, err = strconv.ParseFloat(s, 64); err != nil {
						d.Fatalf(t, "bad load-factor %q: %v", s, err)
					}
				}
				policy := Policy{
					InitialSize:    uint32(size),
					LoadFactor:     lf,
					HashMultiplier: uint32(mult),
				}
				if d.HasArg("growth") {
					policy.Growth = Doubling
				}
				m = New[int, int](policy, WithHash[int, int](identHash))
				return stateString(m)

			case "put":
				var buf strings.Builder
				for _, line := range inputLines(d) {
					k, v := parseKV(t, d, line)
					if err := m.Put(k, v); err != nil {
						fmt.Fprintf(&buf, "put %d = error: %s\n", k, err)
					} else {
						fmt.Fprintf(&buf, "put %d = ok (count=%d)\n", k, m.Len())
					}
				}
				return buf.String()

			case "put-if-absent":
				var buf strings.Builder
				for _, line := range inputLines(d) {
					k, v := parseKV(t, d, line)
					actual, inserted, err := m.PutIfAbsent(k, v)
					switch {
					case err != nil:
						fmt.Fprintf(&buf, "put-if-absent %d = error: %s\n", k, err)
					case inserted:
						fmt.Fprintf(&buf, "put-if-absent %d = inserted (count=%d)\n", k, m.Len())
					default:
						fmt.Fprintf(&buf, "put-if-absent %d = existing value %d\n", k, actual)
					}
				}
				return buf.String()

			case "get":
				var buf strings.Builder
				for _, line := range inputLines(d) {
					k := parseKey(t, d, line)
					if v, ok := m.Get(k); ok {
						fmt.Fprintf(&buf, "%d = %d\n", k, v)
					} else {
						fmt.Fprintf(&buf, "%d = not found\n", k)
					}
				}
				return buf.String()

			case "delete":
				var buf strings.Builder
				for _, line := range inputLines(d) {
					k := parseKey(t, d, line)
					fmt.Fprintf(&buf, "delete %d = %t (count=%d)\n", k, m.Delete(k), m.Len())
				}
				return buf.String()

			case "pop":
				var buf strings.Builder
				for _, line := range inputLines(d) {
					k := parseKey(t, d, line)
					if v, ok := m.Pop(k); ok {
						fmt.Fprintf(&buf, "pop %d = %d (count=%d)\n", k, v, m.Len())
					} else {
						fmt.Fprintf(&buf, "pop %d = not found\n", k)
					}
				}
				return buf.String()

			case "len":
				return strconv.Itoa(m.Len())

			case "clear":
				m.Clear()
				return stateString(m)

			case "rehash":
				m.Rehash()
				return stateString(m)

			case "reset-capacity":
				m.ResetCapacity()
				return stateString(m)

			case "ensure-capacity":
				var n int
				d.ScanArgs(t, "n", &n)
				m.EnsureCapacity(n)
				return stateString(m)

			case "metrics":
				metrics := m.Metrics()
				return metrics.String()

			case "dump":
				var buf strings.Builder
				buf.WriteString(stateString(m) + "\n")
				for i := range m.slots {
					s := &m.slots[i]
					switch {
					case s.tag == 0:
						fmt.Fprintf(&buf, "%3d: empty\n", i)
					case s.tag < 0:
						fmt.Fprintf(&buf, "%3d: tombstone [tag=%08x]\n", i, uint32(-s.tag))
					default:
						fmt.Fprintf(&buf, "%3d: %d=%d [tag=%08x]\n", i, s.key, s.value, uint32(s.tag))
					}
				}
				return buf.String()

			default:
				d.Fatalf(t, "unknown command: %s", d.Cmd)
				return ""
			}
		})
	})
}

func stateString(m *Map[int, int]) string {
	return fmt.Sprintf("size=%d count=%d dead=%d capacity=%d",
		m.size(), m.Len(), m.dead, m.capacity)
}

func inputLines(d *datadriven.TestData) []string {
	var lines []string
	for _, line := range strings.Split(d.Input, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func parseKV(t *testing.T, d *datadriven.TestData, line string) (int, int) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		d.Fatalf(t, "expected \"key value\", got %q", line)
	}
	k, err := strconv.Atoi(fields[0])
	if err != nil {
		d.Fatalf(t, "bad key %q: %v", fields[0], err)
	}
	v, err := strconv.Atoi(fields[1])
	if err != nil {
		d.Fatalf(t, "bad value %q: %v", fields[1], err)
	}
	return k, v
}

func parseKey(t *testing.T, d *datadriven.TestData, line string) int {
	k, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		d.Fatalf(t, "bad key %q: %v", line, err)
	}
	return k
}
