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
	"fmt"
	"math"
	"slices"
)

// ValueType classifies the individual values that WebAssembly code can compute
// with and the values that a variable accepts. It is either a NumberType or a
// ReferenceType.
type ValueType interface {
	isValueType()
}

// NumberType classifies numeric values.
// See https://webassembly.github.io/spec/core/syntax/types.html#number-types.
type NumberType int

const (
	I32 NumberType = 0x7f
	I64 NumberType = 0x7e
	F32 NumberType = 0x7d
	F64 NumberType = 0x7c
)

func (NumberType) isValueType() {}

// ReferenceType classifies first-class references to objects in the runtime
// store.
// See https://webassembly.github.io/spec/core/syntax/types.html#reference-types.
type ReferenceType int

const (
	FuncRefType   ReferenceType = 0x70
	ExternRefType ReferenceType = 0x6f
)

func (ReferenceType) isValueType() {}

func valueTypeName(t ValueType) string {
	switch t {
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	case FuncRefType:
		return "funcref"
	case ExternRefType:
		return "externref"
	default:
		return "unknown"
	}
}

// FunctionType classifies the signature of functions, mapping a vector of
// parameters to a vector of results. Two function types are equal iff both
// vectors match element-wise.
// See https://webassembly.github.io/spec/core/syntax/types.html#function-types.
type FunctionType struct {
	ParamTypes  []ValueType
	ResultTypes []ValueType
}

func (ft *FunctionType) Equal(other FunctionType) bool {
	return slices.Equal(ft.ParamTypes, other.ParamTypes) &&
		slices.Equal(ft.ResultTypes, other.ResultTypes)
}

func (ft FunctionType) String() string {
	params := make([]string, len(ft.ParamTypes))
	for i, t := range ft.ParamTypes {
		params[i] = valueTypeName(t)
	}
	results := make([]string, len(ft.ResultTypes))
	for i, t := range ft.ResultTypes {
		results[i] = valueTypeName(t)
	}
	return fmt.Sprintf("%v -> %v", params, results)
}

// Limits define min/max constraints for tables and memories, in units of
// pages for memories and entries for tables.
// See https://webassembly.github.io/spec/core/binary/types.html#limits
type Limits struct {
	Min uint32
	Max *uint32
}

// TableType describes a table: its element reference type and size limits.
type TableType struct {
	ReferenceType ReferenceType
	Limits        Limits
}

// MemoryType describes a linear memory by its size limits.
type MemoryType struct {
	Limits Limits
}

// GlobalType defines the type of a global variable, which includes its value
// type and whether it is mutable.
// See https://webassembly.github.io/spec/core/syntax/modules.html#globals
type GlobalType struct {
	ValueType ValueType
	IsMutable bool
}

// NullReference is the internal representation of a null reference for
// funcref and externref values. It is a sentinel that is invalid as a
// function or external object index.
const NullReference int32 = -1

// Value is one WebAssembly value together with its type. Floats are stored
// by bit pattern, so NaN payloads survive a round trip through a Value.
type Value struct {
	typ  ValueType
	bits uint64
}

// NewI32 returns an i32 Value.
func NewI32(v int32) Value { return Value{typ: I32, bits: uint64(uint32(v))} }

// NewI64 returns an i64 Value.
func NewI64(v int64) Value { return Value{typ: I64, bits: uint64(v)} }

// NewF32 returns an f32 Value.
func NewF32(v float32) Value { return Value{typ: F32, bits: uint64(math.Float32bits(v))} }

// NewF64 returns an f64 Value.
func NewF64(v float64) Value { return Value{typ: F64, bits: math.Float64bits(v)} }

// NewFuncRef returns a funcref Value holding a store function index.
func NewFuncRef(addr int32) Value { return Value{typ: FuncRefType, bits: uint64(uint32(addr))} }

// NewExternRef returns an externref Value holding an opaque host index.
func NewExternRef(ref int32) Value { return Value{typ: ExternRefType, bits: uint64(uint32(ref))} }

// NullRef returns the null Value of the given reference type.
func NullRef(t ReferenceType) Value {
	nullRef := NullReference
	return Value{typ: t, bits: uint64(uint32(nullRef))}
}

// Type returns the value's type.
func (v Value) Type() ValueType { return v.typ }

// I32 returns the value as an int32. It panics if the value is not an i32.
func (v Value) I32() int32 {
	v.mustBe(I32)
	return int32(v.bits)
}

// I64 returns the value as an int64. It panics if the value is not an i64.
func (v Value) I64() int64 {
	v.mustBe(I64)
	return int64(v.bits)
}

// F32 returns the value as a float32. It panics if the value is not an f32.
func (v Value) F32() float32 {
	v.mustBe(F32)
	return math.Float32frombits(uint32(v.bits))
}

// F64 returns the value as a float64. It panics if the value is not an f64.
func (v Value) F64() float64 {
	v.mustBe(F64)
	return math.Float64frombits(v.bits)
}

// Ref returns the value as a reference index. It panics if the value is not
// a funcref or externref.
func (v Value) Ref() int32 {
	if v.typ != FuncRefType && v.typ != ExternRefType {
		panic(fmt.Sprintf("value is %s, not a reference", valueTypeName(v.typ)))
	}
	return int32(v.bits)
}

// IsNull reports whether a reference value is null. It panics if the value
// is not a funcref or externref.
func (v Value) IsNull() bool { return v.Ref() == NullReference }

func (v Value) mustBe(t ValueType) {
	if v.typ != t {
		panic(fmt.Sprintf("value is %s, not %s", valueTypeName(v.typ), valueTypeName(t)))
	}
}

func (v Value) String() string {
	switch v.typ {
	case I32:
		return fmt.Sprintf("i32:%d", int32(v.bits))
	case I64:
		return fmt.Sprintf("i64:%d", int64(v.bits))
	case F32:
		return fmt.Sprintf("f32:%g", math.Float32frombits(uint32(v.bits)))
	case F64:
		return fmt.Sprintf("f64:%g", math.Float64frombits(v.bits))
	case FuncRefType, ExternRefType:
		if int32(v.bits) == NullReference {
			return valueTypeName(v.typ) + ":null"
		}
		return fmt.Sprintf("%s:%d", valueTypeName(v.typ), int32(v.bits))
	default:
		return "value:unknown"
	}
}
