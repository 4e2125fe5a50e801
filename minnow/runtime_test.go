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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// hostCallerBytes imports env.transform (i32)->i32 and exports "run" calling
// it with its argument.
func hostCallerBytes() []byte {
	b := &moduleBuilder{}
	transform := b.importFunc("env", "transform", []byte{tI32}, []byte{tI32})
	run := b.fn([]byte{tI32}, []byte{tI32}, nil, cat(
		insLocalGet(0), insCall(transform), []byte{opEnd}))
	b.exportFunc("run", run)
	return b.bytes()
}

func hostFunc(fn func(args []Value) ([]Value, error)) *HostFunction {
	return &HostFunction{
		FuncType: FunctionType{
			ParamTypes:  []ValueType{I32},
			ResultTypes: []ValueType{I32},
		},
		Fn: fn,
	}
}

func TestHostFunctionCall(t *testing.T) {
	imports := NewImports().AddHostFunc("env", "transform",
		hostFunc(func(args []Value) ([]Value, error) {
			return []Value{NewI32(args[0].I32() * 2)}, nil
		}))

	inst := instantiateWasmWith(t, DefaultConfig(), hostCallerBytes(), imports)
	assert.Equal(t, int32(42), call1(t, inst, "run", NewI32(21)).I32())
}

func TestHostFunctionErrorIsWrapped(t *testing.T) {
	cause := errors.New("backend unavailable")
	imports := NewImports().AddHostFunc("env", "transform",
		hostFunc(func([]Value) ([]Value, error) { return nil, cause }))

	inst := instantiateWasmWith(t, DefaultConfig(), hostCallerBytes(), imports)

	_, err := inst.Call("run", NewI32(1))
	require.Error(t, err)
	var herr *HostError
	require.ErrorAs(t, err, &herr)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrTrap)
}

func TestHostFunctionTrapPassesThrough(t *testing.T) {
	imports := NewImports().AddHostFunc("env", "transform",
		hostFunc(func([]Value) ([]Value, error) {
			return nil, &Trap{Kind: TrapUnreachable}
		}))

	inst := instantiateWasmWith(t, DefaultConfig(), hostCallerBytes(), imports)

	_, err := inst.Call("run", NewI32(1))
	require.Error(t, err)
	assert.ErrorIs(t, err, &Trap{Kind: TrapUnreachable})
	var herr *HostError
	assert.False(t, errors.As(err, &herr))
}

func TestHostFunctionPanicBecomesHostError(t *testing.T) {
	imports := NewImports().AddHostFunc("env", "transform",
		hostFunc(func([]Value) ([]Value, error) { panic("boom") }))

	inst := instantiateWasmWith(t, DefaultConfig(), hostCallerBytes(), imports)

	_, err := inst.Call("run", NewI32(1))
	require.Error(t, err)
	var herr *HostError
	require.ErrorAs(t, err, &herr)
	assert.Contains(t, herr.Error(), "panic")
}

func TestHostFunctionBadResultsBecomeHostError(t *testing.T) {
	imports := NewImports().AddHostFunc("env", "transform",
		hostFunc(func([]Value) ([]Value, error) {
			return []Value{NewI64(1)}, nil
		}))

	inst := instantiateWasmWith(t, DefaultConfig(), hostCallerBytes(), imports)

	_, err := inst.Call("run", NewI32(1))
	require.Error(t, err)
	var herr *HostError
	assert.ErrorAs(t, err, &herr)
}

func TestLinkErrors(t *testing.T) {
	i32i32 := hostFunc(func(args []Value) ([]Value, error) { return []Value{args[0]}, nil })

	tests := []struct {
		name    string
		imports *Imports
	}{
		{"missing import", NewImports()},
		{"wrong module name", NewImports().AddHostFunc("host", "transform", i32i32)},
		{"function type mismatch", NewImports().AddHostFunc("env", "transform",
			&HostFunction{
				FuncType: FunctionType{ParamTypes: []ValueType{I64}, ResultTypes: []ValueType{I64}},
				Fn:       func(args []Value) ([]Value, error) { return args, nil },
			})},
		{"kind mismatch", NewImports().AddMemory("env", "transform",
			NewMemory(MemoryType{Limits: Limits{Min: 1}}))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRuntime()
			m, err := r.DecodeModule(hostCallerBytes())
			require.NoError(t, err)
			_, err = r.InstantiateModuleWithImports("test", m, tt.imports)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrLink)
			var lerr *LinkError
			require.ErrorAs(t, err, &lerr)
			assert.Equal(t, "env", lerr.ModuleName)
			assert.Equal(t, "transform", lerr.FieldName)
		})
	}
}

func TestMemoryImportLimits(t *testing.T) {
	b := &moduleBuilder{}
	b.importMemory("env", "mem", 2, u32ptr(4))
	data := b.bytes()

	instantiateFails := func(mem *Memory) {
		t.Helper()
		r := NewRuntime()
		m, err := r.DecodeModule(data)
		require.NoError(t, err)
		_, err = r.InstantiateModuleWithImports("test", m,
			NewImports().AddMemory("env", "mem", mem))
		assert.ErrorIs(t, err, ErrLink)
	}

	// Too small, too growable, and unbounded all fail subsumption.
	instantiateFails(NewMemory(MemoryType{Limits: Limits{Min: 1, Max: u32ptr(4)}}))
	instantiateFails(NewMemory(MemoryType{Limits: Limits{Min: 2, Max: u32ptr(5)}}))
	instantiateFails(NewMemory(MemoryType{Limits: Limits{Min: 2}}))

	r := NewRuntime()
	m, err := r.DecodeModule(data)
	require.NoError(t, err)
	_, err = r.InstantiateModuleWithImports("test", m,
		NewImports().AddMemory("env", "mem",
			NewMemory(MemoryType{Limits: Limits{Min: 2, Max: u32ptr(3)}})))
	assert.NoError(t, err)
}

func TestGlobalImportMutabilityMismatch(t *testing.T) {
	b := &moduleBuilder{}
	b.importGlobal("env", "g", tI32, false)
	data := b.bytes()

	r := NewRuntime()
	m, err := r.DecodeModule(data)
	require.NoError(t, err)
	_, err = r.InstantiateModuleWithImports("test", m,
		NewImports().AddGlobal("env", "g", NewGlobal(NewI32(1), true)))
	assert.ErrorIs(t, err, ErrLink)
}

func TestCrossInstanceImports(t *testing.T) {
	r := NewRuntime().WithLogger(zaptest.NewLogger(t))

	lib := &moduleBuilder{}
	inc := lib.fn([]byte{tI32}, []byte{tI32}, nil, cat(
		insLocalGet(0), insI32Const(1), []byte{0x6a, opEnd}))
	lib.exportFunc("inc", inc)
	libMod, err := r.DecodeModule(lib.bytes())
	require.NoError(t, err)
	_, err = r.InstantiateModule("lib", libMod)
	require.NoError(t, err)

	app := &moduleBuilder{}
	imported := app.importFunc("lib", "inc", []byte{tI32}, []byte{tI32})
	twice := app.fn([]byte{tI32}, []byte{tI32}, nil, cat(
		insLocalGet(0), insCall(imported), insCall(imported), []byte{opEnd}))
	app.exportFunc("inc2", twice)
	appMod, err := r.DecodeModule(app.bytes())
	require.NoError(t, err)
	// No explicit import set: the registry resolves module name "lib".
	_, err = r.InstantiateModule("app", appMod)
	require.NoError(t, err)

	results, err := r.InvokeFunction("app", "inc2", NewI32(40))
	require.NoError(t, err)
	assert.Equal(t, int32(42), results[0].I32())
}

func TestDuplicateInstanceName(t *testing.T) {
	r := NewRuntime()
	m, err := r.DecodeModule(addModuleBytes())
	require.NoError(t, err)
	_, err = r.InstantiateModule("a", m)
	require.NoError(t, err)
	_, err = r.InstantiateModule("a", m)
	assert.Error(t, err)
}

func TestNoRollbackOnInstantiationTrap(t *testing.T) {
	b := &moduleBuilder{}
	b.importMemory("env", "mem", 1, nil)
	b.activeData(0, []byte("ok"))
	b.activeData(70000, []byte("x")) // past the one imported page

	mem := NewMemory(MemoryType{Limits: Limits{Min: 1}})
	r := NewRuntime()
	m, err := r.DecodeModule(b.bytes())
	require.NoError(t, err)
	_, err = r.InstantiateModuleWithImports("test", m,
		NewImports().AddMemory("env", "mem", mem))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTrap)

	// The first segment was applied before the trap and stays applied.
	got := make([]byte, 2)
	require.NoError(t, mem.ReadAt(got, 0))
	assert.Equal(t, []byte("ok"), got)
}

func TestInvokeFunctionUnknownInstance(t *testing.T) {
	r := NewRuntime()
	_, err := r.InvokeFunction("ghost", "f")
	assert.Error(t, err)
}

func TestHostMemoryAccessors(t *testing.T) {
	mem := NewMemory(MemoryType{Limits: Limits{Min: 1}})

	require.NoError(t, mem.WriteAt([]byte{1, 2, 3}, 100))
	got := make([]byte, 3)
	require.NoError(t, mem.ReadAt(got, 100))
	assert.Equal(t, []byte{1, 2, 3}, got)

	err := mem.ReadAt(got, 65534)
	var oor *OutOfRangeError
	require.ErrorAs(t, err, &oor)
	assert.Equal(t, uint64(65534), oor.Offset)
	assert.NotErrorIs(t, err, ErrTrap)

	assert.Error(t, mem.WriteAt([]byte{1}, 65536))
}

func TestHostTableAccessors(t *testing.T) {
	table := NewTable(TableType{
		ReferenceType: FuncRefType,
		Limits:        Limits{Min: 2, Max: u32ptr(3)},
	})

	ref, err := table.Get(0)
	require.NoError(t, err)
	assert.Equal(t, NullReference, ref)

	require.NoError(t, table.Set(1, 7))
	ref, err = table.Get(1)
	require.NoError(t, err)
	assert.Equal(t, int32(7), ref)

	_, err = table.Get(2)
	var oor *OutOfRangeError
	assert.ErrorAs(t, err, &oor)

	assert.Equal(t, int32(2), table.Grow(1, NullReference))
	assert.Equal(t, uint32(3), table.Size())
	assert.Equal(t, int32(-1), table.Grow(1, NullReference))
}

func TestHostGlobalAccessors(t *testing.T) {
	g := NewGlobal(NewI64(5), true)
	assert.Equal(t, int64(5), g.Get().I64())
	require.NoError(t, g.Set(NewI64(6)))
	assert.Equal(t, int64(6), g.Get().I64())
	assert.Error(t, g.Set(NewI32(1)))

	frozen := NewGlobal(NewF64(1.5), false)
	assert.Error(t, frozen.Set(NewF64(2)))
	assert.Equal(t, 1.5, frozen.Get().F64())
}
