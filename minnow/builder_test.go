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

import (
	"encoding/binary"
	"math"
)

// Test modules are assembled directly in the binary format. The helpers
// below emit canonical LEB128 and size-prefixed sections, so tests can
// build both well-formed modules and deliberately broken ones.

func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func uleb(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			return out
		}
	}
}

func sleb(v int64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

func f32imm(v float32) []byte {
	var raw [4]byte
	binary.LittleEndian.PutUint32(raw[:], math.Float32bits(v))
	return raw[:]
}

func f64imm(v float64) []byte {
	var raw [8]byte
	binary.LittleEndian.PutUint64(raw[:], math.Float64bits(v))
	return raw[:]
}

// vec emits a count followed by the concatenated items.
func vec(items ...[]byte) []byte {
	return cat(uleb(uint64(len(items))), cat(items...))
}

func encName(s string) []byte {
	return cat(uleb(uint64(len(s))), []byte(s))
}

func rawSection(id sectionID, payload []byte) []byte {
	return cat([]byte{byte(id)}, uleb(uint64(len(payload))), payload)
}

func wasmModule(sections ...[]byte) []byte {
	return cat([]byte("\x00asm\x01\x00\x00\x00"), cat(sections...))
}

// funcType encodes 0x60 with the given param and result value type codes.
func funcType(params, results []byte) []byte {
	return cat([]byte{0x60}, uleb(uint64(len(params))), params,
		uleb(uint64(len(results))), results)
}

// funcBody encodes a code entry: size prefix, locals vector, expression.
// Each locals group is (count, type code). The terminating end is the
// caller's responsibility.
func funcBody(localGroups [][2]byte, expr []byte) []byte {
	body := uleb(uint64(len(localGroups)))
	for _, g := range localGroups {
		body = cat(body, uleb(uint64(g[0])), []byte{g[1]})
	}
	body = cat(body, expr)
	return cat(uleb(uint64(len(body))), body)
}

const (
	tI32     = 0x7f
	tI64     = 0x7e
	tF32     = 0x7d
	tF64     = 0x7c
	tFuncref = 0x70
)

// moduleBuilder accumulates sections for a test module. Zero value is an
// empty module.
type moduleBuilder struct {
	types    [][]byte
	imports  [][]byte
	funcSigs [][]byte
	tables   [][]byte
	memories [][]byte
	globals  [][]byte
	exports  [][]byte
	start    []byte
	elems    [][]byte
	codes    [][]byte
	datas    [][]byte
	numData  *uint32
}

// typeIdx interns a function type and returns its index.
func (b *moduleBuilder) typeIdx(params, results []byte) uint32 {
	enc := funcType(params, results)
	for i, existing := range b.types {
		if string(existing) == string(enc) {
			return uint32(i)
		}
	}
	b.types = append(b.types, enc)
	return uint32(len(b.types) - 1)
}

// fn declares a function and returns its index in the function index space
// (after any imported functions, which must all be declared first).
func (b *moduleBuilder) fn(params, results []byte, localGroups [][2]byte, expr []byte) uint32 {
	idx := uint32(len(b.funcSigs)) + b.numImportedFuncs()
	b.funcSigs = append(b.funcSigs, uleb(uint64(b.typeIdx(params, results))))
	b.codes = append(b.codes, funcBody(localGroups, expr))
	return idx
}

func (b *moduleBuilder) numImportedFuncs() uint32 {
	var n uint32
	for _, imp := range b.imports {
		// kind byte follows two names
		pos := 0
		for range 2 {
			l := int(imp[pos])
			pos += 1 + l
		}
		if imp[pos] == 0x00 {
			n++
		}
	}
	return n
}

func (b *moduleBuilder) importFunc(module, name string, params, results []byte) uint32 {
	idx := b.numImportedFuncs()
	b.imports = append(b.imports, cat(encName(module), encName(name),
		[]byte{0x00}, uleb(uint64(b.typeIdx(params, results)))))
	return idx
}

func (b *moduleBuilder) importMemory(module, name string, min uint32, max *uint32) {
	b.imports = append(b.imports, cat(encName(module), encName(name),
		[]byte{0x02}, encLimits(min, max)))
}

func (b *moduleBuilder) importTable(module, name string, min uint32, max *uint32) {
	b.imports = append(b.imports, cat(encName(module), encName(name),
		[]byte{0x01, tFuncref}, encLimits(min, max)))
}

func (b *moduleBuilder) importGlobal(module, name string, typ byte, mutable bool) {
	mut := byte(0)
	if mutable {
		mut = 1
	}
	b.imports = append(b.imports, cat(encName(module), encName(name),
		[]byte{0x03, typ, mut}))
}

func encLimits(min uint32, max *uint32) []byte {
	if max == nil {
		return cat([]byte{0x00}, uleb(uint64(min)))
	}
	return cat([]byte{0x01}, uleb(uint64(min)), uleb(uint64(*max)))
}

func (b *moduleBuilder) table(min uint32, max *uint32) {
	b.tables = append(b.tables, cat([]byte{tFuncref}, encLimits(min, max)))
}

func (b *moduleBuilder) memory(min uint32, max *uint32) {
	b.memories = append(b.memories, encLimits(min, max))
}

// global declares a global with the given init expression (without end).
func (b *moduleBuilder) global(typ byte, mutable bool, init []byte) uint32 {
	mut := byte(0)
	if mutable {
		mut = 1
	}
	b.globals = append(b.globals, cat([]byte{typ, mut}, init, []byte{0x0b}))
	return uint32(len(b.globals) - 1) // callers add imported globals themselves
}

func (b *moduleBuilder) export(name string, kind byte, idx uint32) {
	b.exports = append(b.exports, cat(encName(name), []byte{kind}, uleb(uint64(idx))))
}

func (b *moduleBuilder) exportFunc(name string, idx uint32) {
	b.export(name, 0x00, idx)
}

func (b *moduleBuilder) setStart(idx uint32) {
	b.start = uleb(uint64(idx))
}

// activeElem emits a flag-0 element segment at the given table offset.
func (b *moduleBuilder) activeElem(offset int32, funcIdxs ...uint32) {
	items := make([][]byte, len(funcIdxs))
	for i, f := range funcIdxs {
		items[i] = uleb(uint64(f))
	}
	b.elems = append(b.elems, cat(uleb(0),
		[]byte{0x41}, sleb(int64(offset)), []byte{0x0b}, vec(items...)))
}

// passiveElem emits a flag-1 element segment of function indices.
func (b *moduleBuilder) passiveElem(funcIdxs ...uint32) {
	items := make([][]byte, len(funcIdxs))
	for i, f := range funcIdxs {
		items[i] = uleb(uint64(f))
	}
	b.elems = append(b.elems, cat(uleb(1), []byte{0x00}, vec(items...)))
}

// activeData emits a flag-0 data segment at the given memory offset.
func (b *moduleBuilder) activeData(offset int32, content []byte) {
	b.datas = append(b.datas, cat(uleb(0),
		[]byte{0x41}, sleb(int64(offset)), []byte{0x0b},
		uleb(uint64(len(content))), content))
}

// passiveData emits a flag-1 data segment.
func (b *moduleBuilder) passiveData(content []byte) {
	b.datas = append(b.datas, cat(uleb(1), uleb(uint64(len(content))), content))
}

func (b *moduleBuilder) bytes() []byte {
	out := []byte("\x00asm\x01\x00\x00\x00")
	appendSec := func(id sectionID, items [][]byte) {
		if len(items) == 0 {
			return
		}
		out = append(out, rawSection(id, vec(items...))...)
	}
	appendSec(typeSectionID, b.types)
	appendSec(importSectionID, b.imports)
	appendSec(functionSectionID, b.funcSigs)
	appendSec(tableSectionID, b.tables)
	appendSec(memorySectionID, b.memories)
	appendSec(globalSectionID, b.globals)
	appendSec(exportSectionID, b.exports)
	if b.start != nil {
		out = append(out, rawSection(startSectionID, b.start)...)
	}
	appendSec(elementSectionID, b.elems)
	if n := b.numData; n != nil {
		out = append(out, rawSection(dataCountSectionID, uleb(uint64(*n)))...)
	} else if len(b.datas) > 0 {
		out = append(out, rawSection(dataCountSectionID, uleb(uint64(len(b.datas))))...)
	}
	appendSec(codeSectionID, b.codes)
	appendSec(dataSectionID, b.datas)
	return out
}

func u32ptr(v uint32) *uint32 { return &v }

// Common instruction shorthands for hand-assembled expressions.
func insI32Const(v int32) []byte { return cat([]byte{0x41}, sleb(int64(v))) }
func insI64Const(v int64) []byte { return cat([]byte{0x42}, sleb(v)) }
func insF32Const(v float32) []byte {
	return cat([]byte{0x43}, f32imm(v))
}
func insF64Const(v float64) []byte {
	return cat([]byte{0x44}, f64imm(v))
}
func insLocalGet(i uint32) []byte  { return cat([]byte{0x20}, uleb(uint64(i))) }
func insLocalSet(i uint32) []byte  { return cat([]byte{0x21}, uleb(uint64(i))) }
func insLocalTee(i uint32) []byte  { return cat([]byte{0x22}, uleb(uint64(i))) }
func insGlobalGet(i uint32) []byte { return cat([]byte{0x23}, uleb(uint64(i))) }
func insGlobalSet(i uint32) []byte { return cat([]byte{0x24}, uleb(uint64(i))) }
func insCall(i uint32) []byte      { return cat([]byte{0x10}, uleb(uint64(i))) }
func insCallIndirect(typeIdx uint32) []byte {
	return cat([]byte{0x11}, uleb(uint64(typeIdx)), []byte{0x00})
}
func insBr(n uint32) []byte   { return cat([]byte{0x0c}, uleb(uint64(n))) }
func insBrIf(n uint32) []byte { return cat([]byte{0x0d}, uleb(uint64(n))) }

const (
	opEnd         = 0x0b
	opReturn      = 0x0f
	opDrop        = 0x1a
	opSelect      = 0x1b
	opUnreachable = 0x00
	opNop         = 0x01
)
