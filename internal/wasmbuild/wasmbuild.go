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

// Package wasmbuild assembles small WebAssembly binaries for benchmarks and
// conformance tests, where no textual assembler is available.
package wasmbuild

import (
	"encoding/binary"
	"math"
)

// Value type codes.
const (
	I32 = 0x7f
	I64 = 0x7e
	F32 = 0x7d
	F64 = 0x7c
)

// Section IDs.
const (
	secType     = 1
	secFunction = 3
	secMemory   = 5
	secExport   = 7
	secCode     = 10
)

func Cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func Uleb(v uint64) []byte {
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

func Sleb(v int64) []byte {
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

func Vec(items ...[]byte) []byte {
	return Cat(Uleb(uint64(len(items))), Cat(items...))
}

func section(id byte, payload []byte) []byte {
	return Cat([]byte{id}, Uleb(uint64(len(payload))), payload)
}

// FuncType encodes a function type from param and result type codes.
func FuncType(params, results []byte) []byte {
	return Cat([]byte{0x60}, Uleb(uint64(len(params))), params,
		Uleb(uint64(len(results))), results)
}

// Func pairs a type with a body for Module.
type Func struct {
	TypeIndex uint32
	// Locals groups, each (count, type code).
	Locals [][2]byte
	// Expr is the body expression including the terminating end.
	Expr []byte
	// Export, when non-empty, exports the function under that name.
	Export string
}

// Module assembles a module from function types, functions, and an optional
// memory of minPages (0 for none).
func Module(types [][]byte, funcs []Func, minPages uint32) []byte {
	out := []byte("\x00asm\x01\x00\x00\x00")
	out = append(out, section(secType, Vec(types...))...)

	sigs := make([][]byte, len(funcs))
	bodies := make([][]byte, len(funcs))
	var exports [][]byte
	for i, f := range funcs {
		sigs[i] = Uleb(uint64(f.TypeIndex))
		body := Uleb(uint64(len(f.Locals)))
		for _, g := range f.Locals {
			body = Cat(body, Uleb(uint64(g[0])), []byte{g[1]})
		}
		body = Cat(body, f.Expr)
		bodies[i] = Cat(Uleb(uint64(len(body))), body)
		if f.Export != "" {
			exports = append(exports, Cat(
				Uleb(uint64(len(f.Export))), []byte(f.Export),
				[]byte{0x00}, Uleb(uint64(i))))
		}
	}
	out = append(out, section(secFunction, Vec(sigs...))...)
	if minPages > 0 {
		out = append(out, section(secMemory,
			Vec(Cat([]byte{0x00}, Uleb(uint64(minPages)))))...)
	}
	if len(exports) > 0 {
		out = append(out, section(secExport, Vec(exports...))...)
	}
	out = append(out, section(secCode, Vec(bodies...))...)
	return out
}

// Instruction shorthands.

func I32Const(v int32) []byte  { return Cat([]byte{0x41}, Sleb(int64(v))) }
func I64Const(v int64) []byte  { return Cat([]byte{0x42}, Sleb(v)) }
func LocalGet(i uint32) []byte { return Cat([]byte{0x20}, Uleb(uint64(i))) }
func LocalSet(i uint32) []byte { return Cat([]byte{0x21}, Uleb(uint64(i))) }
func LocalTee(i uint32) []byte { return Cat([]byte{0x22}, Uleb(uint64(i))) }
func Call(i uint32) []byte     { return Cat([]byte{0x10}, Uleb(uint64(i))) }
func Br(n uint32) []byte       { return Cat([]byte{0x0c}, Uleb(uint64(n))) }
func BrIf(n uint32) []byte     { return Cat([]byte{0x0d}, Uleb(uint64(n))) }

func F32Const(v float32) []byte {
	out := make([]byte, 5)
	out[0] = 0x43
	binary.LittleEndian.PutUint32(out[1:], math.Float32bits(v))
	return out
}

func F64Const(v float64) []byte {
	out := make([]byte, 9)
	out[0] = 0x44
	binary.LittleEndian.PutUint64(out[1:], math.Float64bits(v))
	return out
}

const (
	End   = 0x0b
	Else  = 0x05
	Empty = 0x40 // empty block type
)

// Block, Loop, and If open structured instructions with the given block type
// byte (Empty or a value type code).
func Block(bt byte) []byte { return []byte{0x02, bt} }
func Loop(bt byte) []byte  { return []byte{0x03, bt} }
func If(bt byte) []byte    { return []byte{0x04, bt} }
