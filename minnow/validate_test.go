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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDecode(t *testing.T, data []byte) *Module {
	t.Helper()
	m, err := DecodeModule(data, DefaultConfig())
	require.NoError(t, err)
	return m
}

func TestValidateAddModule(t *testing.T) {
	m := mustDecode(t, addModuleBytes())
	require.NoError(t, ValidateModule(m))
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *moduleBuilder)
	}{
		{"add on empty stack", func(b *moduleBuilder) {
			b.fn(nil, []byte{tI32}, nil, []byte{0x6a, opEnd})
		}},
		{"add with i64 operand", func(b *moduleBuilder) {
			b.fn([]byte{tI32, tI64}, []byte{tI32}, nil, cat(
				insLocalGet(0), insLocalGet(1), []byte{0x6a, opEnd}))
		}},
		{"result type mismatch", func(b *moduleBuilder) {
			b.fn(nil, []byte{tI32}, nil, cat(insI64Const(1), []byte{opEnd}))
		}},
		{"leftover value on stack", func(b *moduleBuilder) {
			b.fn(nil, []byte{tI32}, nil, cat(
				insI32Const(1), insI32Const(2), []byte{opEnd}))
		}},
		{"unknown local", func(b *moduleBuilder) {
			b.fn(nil, nil, nil, cat(insLocalGet(0), []byte{opDrop, opEnd}))
		}},
		{"local.set type mismatch", func(b *moduleBuilder) {
			b.fn([]byte{tI32}, nil, nil, cat(
				insI64Const(1), insLocalSet(0), []byte{opEnd}))
		}},
		{"unknown global", func(b *moduleBuilder) {
			b.fn(nil, []byte{tI32}, nil, cat(insGlobalGet(0), []byte{opEnd}))
		}},
		{"set immutable global", func(b *moduleBuilder) {
			b.global(tI32, false, insI32Const(0))
			b.fn(nil, nil, nil, cat(insI32Const(1), insGlobalSet(0), []byte{opEnd}))
		}},
		{"branch to unknown label", func(b *moduleBuilder) {
			b.fn(nil, nil, nil, cat(insBr(1), []byte{opEnd}))
		}},
		{"call unknown function", func(b *moduleBuilder) {
			b.fn(nil, nil, nil, cat(insCall(7), []byte{opEnd}))
		}},
		{"call_indirect without table", func(b *moduleBuilder) {
			b.fn([]byte{tI32}, nil, nil, cat(
				insLocalGet(0), insCallIndirect(b.typeIdx(nil, nil)), []byte{opEnd}))
		}},
		{"load without memory", func(b *moduleBuilder) {
			b.fn(nil, []byte{tI32}, nil, cat(
				insI32Const(0), []byte{0x28, 0x02, 0x00}, []byte{opEnd}))
		}},
		{"load alignment above width", func(b *moduleBuilder) {
			b.memory(1, nil)
			b.fn(nil, []byte{tI32}, nil, cat(
				insI32Const(0), []byte{0x28, 0x03, 0x00}, []byte{opEnd}))
		}},
		{"if without else needing result", func(b *moduleBuilder) {
			b.fn([]byte{tI32}, []byte{tI32}, nil, cat(
				insLocalGet(0),
				[]byte{0x04, tI32}, // if (result i32)
				insI32Const(1),
				[]byte{opEnd, opEnd}))
		}},
		{"select type mismatch", func(b *moduleBuilder) {
			b.fn([]byte{tI32}, []byte{tI32}, nil, cat(
				insI32Const(1), insI64Const(2), insLocalGet(0),
				[]byte{opSelect, opEnd}))
		}},
		{"start function with params", func(b *moduleBuilder) {
			idx := b.fn([]byte{tI32}, nil, nil, []byte{opEnd})
			b.setStart(idx)
		}},
		{"duplicate export names", func(b *moduleBuilder) {
			f := b.fn(nil, nil, nil, []byte{opEnd})
			b.exportFunc("f", f)
			b.exportFunc("f", f)
		}},
		{"export unknown index", func(b *moduleBuilder) {
			b.exportFunc("f", 3)
		}},
		{"global init from defined global", func(b *moduleBuilder) {
			b.global(tI32, false, insI32Const(0))
			b.global(tI32, false, insGlobalGet(0))
		}},
		{"global init type mismatch", func(b *moduleBuilder) {
			b.global(tI32, false, insI64Const(0))
		}},
		{"element func index out of range", func(b *moduleBuilder) {
			b.table(1, nil)
			b.activeElem(0, 9)
		}},
		{"active data without memory", func(b *moduleBuilder) {
			b.activeData(0, []byte("x"))
		}},
		{"memory.init without data count", func(b *moduleBuilder) {
			b.memory(1, nil)
			b.fn(nil, nil, nil, cat(
				insI32Const(0), insI32Const(0), insI32Const(0),
				[]byte{0xfc, 0x08, 0x00, 0x00, opEnd}))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &moduleBuilder{}
			tt.build(b)
			m := mustDecode(t, b.bytes())
			err := ValidateModule(m)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidModule)
		})
	}
}

func TestValidateAccepts(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *moduleBuilder)
	}{
		{"unreachable makes rest polymorphic", func(b *moduleBuilder) {
			b.fn(nil, []byte{tI32}, nil, []byte{opUnreachable, 0x6a, opEnd})
		}},
		{"branch skips required result", func(b *moduleBuilder) {
			b.fn(nil, []byte{tI32}, nil, cat(
				[]byte{0x02, tI32}, // block (result i32)
				insI32Const(1), insBr(0),
				[]byte{opEnd, opEnd}))
		}},
		{"loop with conditional backedge", func(b *moduleBuilder) {
			b.fn([]byte{tI32}, []byte{tI32}, nil, cat(
				[]byte{0x03, 0x40}, // loop
				insLocalGet(0), insI32Const(1), []byte{0x6b}, // i32.sub
				insLocalTee(0), insBrIf(0),
				[]byte{opEnd},
				insLocalGet(0),
				[]byte{opEnd}))
		}},
		{"if else both arms", func(b *moduleBuilder) {
			b.fn([]byte{tI32}, []byte{tI32}, nil, cat(
				insLocalGet(0),
				[]byte{0x04, tI32},
				insI32Const(1),
				[]byte{0x05},
				insI32Const(2),
				[]byte{opEnd, opEnd}))
		}},
		{"global init from imported global", func(b *moduleBuilder) {
			b.importGlobal("env", "base", tI32, false)
			b.global(tI32, false, insGlobalGet(0))
		}},
		{"memory.init with data count", func(b *moduleBuilder) {
			b.memory(1, nil)
			b.passiveData([]byte("hi"))
			b.fn(nil, nil, nil, cat(
				insI32Const(0), insI32Const(0), insI32Const(2),
				[]byte{0xfc, 0x08, 0x00, 0x00, opEnd}))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &moduleBuilder{}
			tt.build(b)
			m := mustDecode(t, b.bytes())
			assert.NoError(t, ValidateModule(m))
		})
	}
}

func TestValidationErrorCarriesFunctionIndex(t *testing.T) {
	b := &moduleBuilder{}
	b.fn(nil, nil, nil, []byte{opEnd})
	b.fn(nil, []byte{tI32}, nil, []byte{0x6a, opEnd})
	m := mustDecode(t, b.bytes())

	err := ValidateModule(m)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 1, verr.FuncIndex)
}
