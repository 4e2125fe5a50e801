// Copyright 2026 The Minnow Authors
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

package minnow

// Table is a table instance: a growable vector of references. Function
// references hold store function addresses; NullReference marks an empty
// slot.
// https://webassembly.github.io/spec/core/exec/runtime.html#table-instances
type Table struct {
	Type TableType
	// maxEntries is the engine ceiling from Config.MaxTableEntries.
	maxEntries uint32
	elements   []int32
}

// NewTable creates a table sized to the type's minimum, filled with null
// references. Use it to build tables the host provides as imports.
func NewTable(tt TableType) *Table {
	return newTable(tt, 1<<26)
}

func newTable(tt TableType, maxEntries uint32) *Table {
	elements := make([]int32, tt.Limits.Min)
	for i := range elements {
		elements[i] = NullReference
	}
	return &Table{Type: tt, maxEntries: maxEntries, elements: elements}
}

// Size returns the current number of entries.
func (t *Table) Size() uint32 {
	return uint32(len(t.elements))
}

// Get returns the reference at index. Host-side accessor: out-of-range
// returns *OutOfRangeError, never a trap.
func (t *Table) Get(index uint32) (int32, error) {
	if index >= t.Size() {
		return 0, &OutOfRangeError{Offset: uint64(index), Length: 1, Size: uint64(t.Size())}
	}
	return t.elements[index], nil
}

// Set places a reference at index. Host-side accessor; see Get.
func (t *Table) Set(index uint32, value int32) error {
	if index >= t.Size() {
		return &OutOfRangeError{Offset: uint64(index), Length: 1, Size: uint64(t.Size())}
	}
	t.elements[index] = value
	return nil
}

// Grow extends the table by delta entries initialized to val and returns the
// previous size, or -1 when the declared maximum or the engine ceiling would
// be exceeded. Never traps.
func (t *Table) Grow(delta uint32, val int32) int32 {
	previous := t.Size()
	max := t.maxEntries
	if t.Type.Limits.Max != nil && *t.Type.Limits.Max < max {
		max = *t.Type.Limits.Max
	}
	if uint64(previous)+uint64(delta) > uint64(max) {
		return -1
	}
	for range delta {
		t.elements = append(t.elements, val)
	}
	return int32(previous)
}

// get and set are the guest paths: out-of-range raises a table access trap.
func (t *Table) get(index uint32) (int32, error) {
	if index >= t.Size() {
		return 0, errTableOutOfBounds
	}
	return t.elements[index], nil
}

func (t *Table) set(index uint32, value int32) error {
	if index >= t.Size() {
		return errTableOutOfBounds
	}
	t.elements[index] = value
	return nil
}

// init copies n references from refs[src:] into the table at dst (table.init
// and active element segment application).
func (t *Table) init(dst, src, n uint32, refs []int32) error {
	if uint64(src)+uint64(n) > uint64(len(refs)) ||
		uint64(dst)+uint64(n) > uint64(t.Size()) {
		return errTableOutOfBounds
	}
	copy(t.elements[dst:uint64(dst)+uint64(n)], refs[src:uint64(src)+uint64(n)])
	return nil
}

// copyTo copies n references from this table at src to dest at dst.
func (t *Table) copyTo(dest *Table, dst, src, n uint32) error {
	if uint64(src)+uint64(n) > uint64(t.Size()) ||
		uint64(dst)+uint64(n) > uint64(dest.Size()) {
		return errTableOutOfBounds
	}
	copy(dest.elements[dst:uint64(dst)+uint64(n)], t.elements[src:uint64(src)+uint64(n)])
	return nil
}

// fill sets n entries starting at dst to val.
func (t *Table) fill(dst, n uint32, val int32) error {
	if uint64(dst)+uint64(n) > uint64(t.Size()) {
		return errTableOutOfBounds
	}
	for i := uint64(dst); i < uint64(dst)+uint64(n); i++ {
		t.elements[i] = val
	}
	return nil
}
