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

import "encoding/binary"

// pageSize is the size of a WebAssembly page in bytes (64 KiB).
const pageSize = 65536

// Memory is a linear memory instance: a byte buffer sized in pages.
// https://webassembly.github.io/spec/core/exec/runtime.html#memory-instances
type Memory struct {
	Type MemoryType
	// maxPages is the engine ceiling from Config.MaxMemoryPages, applied on
	// top of any module-declared maximum.
	maxPages uint32
	data     []byte
}

// NewMemory creates a memory sized to the type's minimum. Use it to build
// memories the host provides as imports.
func NewMemory(mt MemoryType) *Memory {
	return newMemory(mt, maxMemoryPages)
}

func newMemory(mt MemoryType, maxPages uint32) *Memory {
	return &Memory{
		Type:     mt,
		maxPages: maxPages,
		data:     make([]byte, uint64(mt.Limits.Min)*pageSize),
	}
}

// Size returns the current size in pages.
func (m *Memory) Size() uint32 {
	return uint32(len(m.data) / pageSize)
}

// Len returns the current size in bytes.
func (m *Memory) Len() uint64 {
	return uint64(len(m.data))
}

// Grow extends the memory by delta pages and returns the previous size in
// pages, or -1 when the declared maximum or the engine ceiling would be
// exceeded. It never traps; guest code observes the same -1 sentinel.
func (m *Memory) Grow(delta uint32) int32 {
	current := m.Size()
	max := m.maxPages
	if m.Type.Limits.Max != nil && *m.Type.Limits.Max < max {
		max = *m.Type.Limits.Max
	}
	if uint64(current)+uint64(delta) > uint64(max) {
		return -1
	}
	m.data = append(m.data, make([]byte, uint64(delta)*pageSize)...)
	return int32(current)
}

// ReadAt copies len(p) bytes starting at off into p. It is the host-side
// accessor: out-of-range reads return *OutOfRangeError, never a trap.
func (m *Memory) ReadAt(p []byte, off uint64) error {
	if off+uint64(len(p)) > m.Len() || off+uint64(len(p)) < off {
		return &OutOfRangeError{Offset: off, Length: uint64(len(p)), Size: m.Len()}
	}
	copy(p, m.data[off:])
	return nil
}

// WriteAt copies p into memory starting at off. Host-side accessor; see
// ReadAt.
func (m *Memory) WriteAt(p []byte, off uint64) error {
	if off+uint64(len(p)) > m.Len() || off+uint64(len(p)) < off {
		return &OutOfRangeError{Offset: off, Length: uint64(len(p)), Size: m.Len()}
	}
	copy(m.data[off:], p)
	return nil
}

// load reads width little-endian bytes at addr+offset. The effective address
// is computed in uint64 so index+offset cannot wrap.
func (m *Memory) load(addr, offset uint32, width int) (uint64, error) {
	start := uint64(addr) + uint64(offset)
	if start+uint64(width) > m.Len() {
		return 0, errMemoryOutOfBounds
	}
	switch width {
	case 1:
		return uint64(m.data[start]), nil
	case 2:
		return uint64(binary.LittleEndian.Uint16(m.data[start:])), nil
	case 4:
		return uint64(binary.LittleEndian.Uint32(m.data[start:])), nil
	default:
		return binary.LittleEndian.Uint64(m.data[start:]), nil
	}
}

// store writes the low width bytes of bits at addr+offset, little-endian.
func (m *Memory) store(addr, offset uint32, width int, bits uint64) error {
	start := uint64(addr) + uint64(offset)
	if start+uint64(width) > m.Len() {
		return errMemoryOutOfBounds
	}
	switch width {
	case 1:
		m.data[start] = byte(bits)
	case 2:
		binary.LittleEndian.PutUint16(m.data[start:], uint16(bits))
	case 4:
		binary.LittleEndian.PutUint32(m.data[start:], uint32(bits))
	default:
		binary.LittleEndian.PutUint64(m.data[start:], bits)
	}
	return nil
}

// init copies n bytes from content[src:] to memory at dst (memory.init and
// active data segment application).
func (m *Memory) init(dst, src, n uint32, content []byte) error {
	if uint64(src)+uint64(n) > uint64(len(content)) ||
		uint64(dst)+uint64(n) > m.Len() {
		return errMemoryOutOfBounds
	}
	copy(m.data[dst:uint64(dst)+uint64(n)], content[src:uint64(src)+uint64(n)])
	return nil
}

// copyTo copies n bytes from this memory at src to dest at dst. Overlapping
// ranges behave as if via an intermediate buffer.
func (m *Memory) copyTo(dest *Memory, dst, src, n uint32) error {
	if uint64(src)+uint64(n) > m.Len() ||
		uint64(dst)+uint64(n) > dest.Len() {
		return errMemoryOutOfBounds
	}
	copy(dest.data[dst:uint64(dst)+uint64(n)], m.data[src:uint64(src)+uint64(n)])
	return nil
}

// fill sets n bytes starting at dst to val.
func (m *Memory) fill(dst, n uint32, val byte) error {
	if uint64(dst)+uint64(n) > m.Len() {
		return errMemoryOutOfBounds
	}
	for i := uint64(dst); i < uint64(dst)+uint64(n); i++ {
		m.data[i] = val
	}
	return nil
}
