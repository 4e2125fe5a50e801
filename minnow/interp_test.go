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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func instantiateWasm(t *testing.T, data []byte) *Instance {
	t.Helper()
	return instantiateWasmWith(t, DefaultConfig(), data, nil)
}

func instantiateWasmWith(t *testing.T, cfg Config, data []byte, imports *Imports) *Instance {
	t.Helper()
	r := NewRuntime().WithConfig(cfg)
	m, err := r.DecodeModule(data)
	require.NoError(t, err)
	inst, err := r.InstantiateModuleWithImports("test", m, imports)
	require.NoError(t, err)
	return inst
}

func call1(t *testing.T, inst *Instance, name string, args ...Value) Value {
	t.Helper()
	results, err := inst.Call(name, args...)
	require.NoError(t, err)
	require.Len(t, results, 1)
	return results[0]
}

func TestInvokeAdd(t *testing.T) {
	inst := instantiateWasm(t, addModuleBytes())
	assert.Equal(t, int32(5), call1(t, inst, "add", NewI32(2), NewI32(3)).I32())
	assert.Equal(t, int32(-1), call1(t, inst, "add", NewI32(-3), NewI32(2)).I32())
}

func TestInvokeArgChecks(t *testing.T) {
	inst := instantiateWasm(t, addModuleBytes())

	_, err := inst.Call("add", NewI32(1))
	assert.Error(t, err)

	_, err = inst.Call("add", NewI32(1), NewI64(2))
	assert.Error(t, err)

	_, err = inst.Call("missing", NewI32(1), NewI32(2))
	assert.Error(t, err)
}

func arithModuleBytes() []byte {
	b := &moduleBuilder{}
	mul64 := b.fn([]byte{tI64, tI64}, []byte{tI64}, nil, cat(
		insLocalGet(0), insLocalGet(1), []byte{0x7e, opEnd}))
	fdiv := b.fn([]byte{tF64, tF64}, []byte{tF64}, nil, cat(
		insLocalGet(0), insLocalGet(1), []byte{0xa3, opEnd}))
	divs := b.fn([]byte{tI32, tI32}, []byte{tI32}, nil, cat(
		insLocalGet(0), insLocalGet(1), []byte{0x6d, opEnd}))
	ext8 := b.fn([]byte{tI32}, []byte{tI32}, nil, cat(
		insLocalGet(0), []byte{0xc0, opEnd}))
	feq := b.fn([]byte{tF64, tF64}, []byte{tI32}, nil, cat(
		insLocalGet(0), insLocalGet(1), []byte{0x61, opEnd}))
	flt := b.fn([]byte{tF64, tF64}, []byte{tI32}, nil, cat(
		insLocalGet(0), insLocalGet(1), []byte{0x63, opEnd}))
	b.exportFunc("mul64", mul64)
	b.exportFunc("fdiv", fdiv)
	b.exportFunc("divs", divs)
	b.exportFunc("ext8", ext8)
	b.exportFunc("feq", feq)
	b.exportFunc("flt", flt)
	return b.bytes()
}

func TestNumericOps(t *testing.T) {
	inst := instantiateWasm(t, arithModuleBytes())

	assert.Equal(t, int64(6e9), call1(t, inst, "mul64", NewI64(2e9), NewI64(3)).I64())
	assert.Equal(t, 2.5, call1(t, inst, "fdiv", NewF64(5), NewF64(2)).F64())
	assert.Equal(t, int32(-3), call1(t, inst, "divs", NewI32(7), NewI32(-2)).I32())
	assert.Equal(t, int32(-128), call1(t, inst, "ext8", NewI32(0x80)).I32())
}

func TestNaNComparisonsAreFalse(t *testing.T) {
	inst := instantiateWasm(t, arithModuleBytes())
	nan := NewF64(math.NaN())

	assert.Equal(t, int32(0), call1(t, inst, "feq", nan, nan).I32())
	assert.Equal(t, int32(0), call1(t, inst, "flt", nan, NewF64(1)).I32())
	assert.Equal(t, int32(0), call1(t, inst, "flt", NewF64(1), nan).I32())
}

func TestDivisionTraps(t *testing.T) {
	inst := instantiateWasm(t, arithModuleBytes())

	_, err := inst.Call("divs", NewI32(1), NewI32(0))
	require.Error(t, err)
	assert.ErrorIs(t, err, &Trap{Kind: TrapIntegerDivideByZero})

	_, err = inst.Call("divs", NewI32(math.MinInt32), NewI32(-1))
	require.Error(t, err)
	assert.ErrorIs(t, err, &Trap{Kind: TrapIntegerOverflow})
}

func controlModuleBytes() []byte {
	b := &moduleBuilder{}
	abs := b.fn([]byte{tI32}, []byte{tI32}, nil, cat(
		insLocalGet(0), insI32Const(0), []byte{0x48}, // i32.lt_s
		[]byte{0x04, tI32}, // if (result i32)
		insI32Const(0), insLocalGet(0), []byte{0x6b},
		[]byte{0x05}, // else
		insLocalGet(0),
		[]byte{opEnd, opEnd}))
	sum := b.fn([]byte{tI32}, []byte{tI32}, [][2]byte{{1, tI32}}, cat(
		[]byte{0x02, 0x40}, // block
		[]byte{0x03, 0x40}, // loop
		insLocalGet(0), []byte{0x45}, insBrIf(1), // done when n == 0
		insLocalGet(1), insLocalGet(0), []byte{0x6a}, insLocalSet(1),
		insLocalGet(0), insI32Const(1), []byte{0x6b}, insLocalSet(0),
		insBr(0),
		[]byte{opEnd, opEnd},
		insLocalGet(1),
		[]byte{opEnd}))
	pick := b.fn([]byte{tI32}, []byte{tI32}, nil, cat(
		[]byte{0x02, 0x40, 0x02, 0x40, 0x02, 0x40},
		insLocalGet(0),
		[]byte{0x0e}, uleb(2), uleb(0), uleb(1), uleb(2), // br_table
		[]byte{opEnd},
		insI32Const(10), []byte{opReturn},
		[]byte{opEnd},
		insI32Const(20), []byte{opReturn},
		[]byte{opEnd},
		insI32Const(30),
		[]byte{opEnd}))
	b.exportFunc("abs", abs)
	b.exportFunc("sum", sum)
	b.exportFunc("pick", pick)
	return b.bytes()
}

func TestControlFlow(t *testing.T) {
	inst := instantiateWasm(t, controlModuleBytes())

	assert.Equal(t, int32(5), call1(t, inst, "abs", NewI32(-5)).I32())
	assert.Equal(t, int32(5), call1(t, inst, "abs", NewI32(5)).I32())
	assert.Equal(t, int32(0), call1(t, inst, "abs", NewI32(0)).I32())

	assert.Equal(t, int32(55), call1(t, inst, "sum", NewI32(10)).I32())
	assert.Equal(t, int32(0), call1(t, inst, "sum", NewI32(0)).I32())

	assert.Equal(t, int32(10), call1(t, inst, "pick", NewI32(0)).I32())
	assert.Equal(t, int32(20), call1(t, inst, "pick", NewI32(1)).I32())
	assert.Equal(t, int32(30), call1(t, inst, "pick", NewI32(2)).I32())
	assert.Equal(t, int32(30), call1(t, inst, "pick", NewI32(99)).I32())
}

func TestCallBetweenFunctions(t *testing.T) {
	b := &moduleBuilder{}
	double := b.fn([]byte{tI32}, []byte{tI32}, nil, cat(
		insLocalGet(0), insLocalGet(0), []byte{0x6a, opEnd}))
	quad := b.fn([]byte{tI32}, []byte{tI32}, nil, cat(
		insLocalGet(0), insCall(double), insCall(double), []byte{opEnd}))
	b.exportFunc("quad", quad)

	inst := instantiateWasm(t, b.bytes())
	assert.Equal(t, int32(28), call1(t, inst, "quad", NewI32(7)).I32())
}

func indirectModuleBytes() []byte {
	b := &moduleBuilder{}
	one := b.fn(nil, []byte{tI32}, nil, cat(insI32Const(1), []byte{opEnd}))
	succ := b.fn([]byte{tI32}, []byte{tI32}, nil, cat(
		insLocalGet(0), insI32Const(1), []byte{0x6a, opEnd}))
	b.table(3, u32ptr(3))
	b.activeElem(0, one, succ) // slot 2 stays null
	callv := b.fn([]byte{tI32}, []byte{tI32}, nil, cat(
		insLocalGet(0), insCallIndirect(b.typeIdx(nil, []byte{tI32})), []byte{opEnd}))
	b.exportFunc("callv", callv)
	return b.bytes()
}

func TestCallIndirect(t *testing.T) {
	inst := instantiateWasm(t, indirectModuleBytes())

	assert.Equal(t, int32(1), call1(t, inst, "callv", NewI32(0)).I32())

	// Slot 1 holds a function of a different type.
	_, err := inst.Call("callv", NewI32(1))
	assert.ErrorIs(t, err, &Trap{Kind: TrapIndirectCallTypeMismatch})

	_, err = inst.Call("callv", NewI32(2))
	assert.ErrorIs(t, err, &Trap{Kind: TrapUninitializedElement})

	_, err = inst.Call("callv", NewI32(5))
	assert.ErrorIs(t, err, &Trap{Kind: TrapUndefinedElement})
}

func TestUnreachableTrapLeavesInstanceUsable(t *testing.T) {
	b := &moduleBuilder{}
	boom := b.fn(nil, nil, nil, []byte{opUnreachable, opEnd})
	add := b.fn([]byte{tI32, tI32}, []byte{tI32}, nil, cat(
		insLocalGet(0), insLocalGet(1), []byte{0x6a, opEnd}))
	b.exportFunc("boom", boom)
	b.exportFunc("add", add)

	inst := instantiateWasm(t, b.bytes())

	_, err := inst.Call("boom")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTrap)
	assert.ErrorIs(t, err, &Trap{Kind: TrapUnreachable})

	// A trap unwinds one invocation; later calls still work.
	assert.Equal(t, int32(5), call1(t, inst, "add", NewI32(2), NewI32(3)).I32())
}

func truncModuleBytes() []byte {
	b := &moduleBuilder{}
	trunc := b.fn([]byte{tF64}, []byte{tI32}, nil, cat(
		insLocalGet(0), []byte{0xaa, opEnd})) // i32.trunc_f64_s
	truncSat := b.fn([]byte{tF64}, []byte{tI32}, nil, cat(
		insLocalGet(0), []byte{0xfc, 0x02, opEnd})) // i32.trunc_sat_f64_s
	truncSatU := b.fn([]byte{tF64}, []byte{tI32}, nil, cat(
		insLocalGet(0), []byte{0xfc, 0x03, opEnd})) // i32.trunc_sat_f64_u
	b.exportFunc("trunc", trunc)
	b.exportFunc("trunc_sat", truncSat)
	b.exportFunc("trunc_sat_u", truncSatU)
	return b.bytes()
}

func TestTruncationTrapsAndSaturation(t *testing.T) {
	inst := instantiateWasm(t, truncModuleBytes())

	assert.Equal(t, int32(-3), call1(t, inst, "trunc", NewF64(-3.9)).I32())

	_, err := inst.Call("trunc", NewF64(math.NaN()))
	assert.ErrorIs(t, err, &Trap{Kind: TrapInvalidConversionToInteger})

	_, err = inst.Call("trunc", NewF64(3e10))
	assert.ErrorIs(t, err, &Trap{Kind: TrapIntegerOverflow})

	assert.Equal(t, int32(0), call1(t, inst, "trunc_sat", NewF64(math.NaN())).I32())
	assert.Equal(t, int32(math.MaxInt32), call1(t, inst, "trunc_sat", NewF64(3e10)).I32())
	assert.Equal(t, int32(math.MinInt32), call1(t, inst, "trunc_sat", NewF64(-3e10)).I32())
	assert.Equal(t, int32(0), call1(t, inst, "trunc_sat_u", NewF64(-7)).I32())
	uv := call1(t, inst, "trunc_sat_u", NewF64(4e9)).I32()
	assert.Equal(t, uint32(4e9), uint32(uv))
}

func memoryModuleBytes() []byte {
	b := &moduleBuilder{}
	b.memory(1, u32ptr(2))
	load := b.fn([]byte{tI32}, []byte{tI32}, nil, cat(
		insLocalGet(0), []byte{0x28, 0x02, 0x00, opEnd}))
	store := b.fn([]byte{tI32, tI32}, nil, nil, cat(
		insLocalGet(0), insLocalGet(1), []byte{0x36, 0x02, 0x00, opEnd}))
	size := b.fn(nil, []byte{tI32}, nil, []byte{0x3f, 0x00, opEnd})
	grow := b.fn([]byte{tI32}, []byte{tI32}, nil, cat(
		insLocalGet(0), []byte{0x40, 0x00, opEnd}))
	b.exportFunc("load", load)
	b.exportFunc("store", store)
	b.exportFunc("size", size)
	b.exportFunc("grow", grow)
	b.export("mem", 0x02, 0)
	b.activeData(8, []byte("hi"))
	return b.bytes()
}

func TestMemoryLoadStore(t *testing.T) {
	inst := instantiateWasm(t, memoryModuleBytes())

	_, err := inst.Call("store", NewI32(16), NewI32(0x11223344))
	require.NoError(t, err)
	assert.Equal(t, int32(0x11223344), call1(t, inst, "load", NewI32(16)).I32())

	// Active segment applied at instantiation.
	mem, err := inst.ExportedMemory("mem")
	require.NoError(t, err)
	got := make([]byte, 2)
	require.NoError(t, mem.ReadAt(got, 8))
	assert.Equal(t, []byte("hi"), got)
}

func TestMemoryLoadBounds(t *testing.T) {
	inst := instantiateWasm(t, memoryModuleBytes())

	// Last full word is in bounds, one byte further traps.
	_, err := inst.Call("load", NewI32(65532))
	assert.NoError(t, err)

	_, err = inst.Call("load", NewI32(65533))
	assert.ErrorIs(t, err, &Trap{Kind: TrapMemoryOutOfBounds})

	_, err = inst.Call("load", NewI32(-1))
	assert.ErrorIs(t, err, &Trap{Kind: TrapMemoryOutOfBounds})
}

func TestMemoryGrow(t *testing.T) {
	inst := instantiateWasm(t, memoryModuleBytes())

	assert.Equal(t, int32(1), call1(t, inst, "size").I32())
	assert.Equal(t, int32(1), call1(t, inst, "grow", NewI32(0)).I32())
	assert.Equal(t, int32(1), call1(t, inst, "grow", NewI32(1)).I32())
	assert.Equal(t, int32(2), call1(t, inst, "size").I32())

	// Declared max is 2 pages: growing past it fails without side effects.
	assert.Equal(t, int32(-1), call1(t, inst, "grow", NewI32(1)).I32())
	assert.Equal(t, int32(2), call1(t, inst, "size").I32())
}

func bulkMemoryModuleBytes() []byte {
	b := &moduleBuilder{}
	b.memory(1, nil)
	b.export("mem", 0x02, 0)
	b.passiveData([]byte("abcdef"))
	init := b.fn([]byte{tI32, tI32, tI32}, nil, nil, cat(
		insLocalGet(0), insLocalGet(1), insLocalGet(2),
		[]byte{0xfc, 0x08, 0x00, 0x00, opEnd}))
	drop := b.fn(nil, nil, nil, []byte{0xfc, 0x09, 0x00, opEnd})
	copyFn := b.fn([]byte{tI32, tI32, tI32}, nil, nil, cat(
		insLocalGet(0), insLocalGet(1), insLocalGet(2),
		[]byte{0xfc, 0x0a, 0x00, 0x00, opEnd}))
	fill := b.fn([]byte{tI32, tI32, tI32}, nil, nil, cat(
		insLocalGet(0), insLocalGet(1), insLocalGet(2),
		[]byte{0xfc, 0x0b, 0x00, opEnd}))
	b.exportFunc("init", init)
	b.exportFunc("drop", drop)
	b.exportFunc("copy", copyFn)
	b.exportFunc("fill", fill)
	return b.bytes()
}

func TestBulkMemoryOps(t *testing.T) {
	inst := instantiateWasm(t, bulkMemoryModuleBytes())
	mem, err := inst.ExportedMemory("mem")
	require.NoError(t, err)

	_, err = inst.Call("init", NewI32(10), NewI32(1), NewI32(4))
	require.NoError(t, err)
	got := make([]byte, 4)
	require.NoError(t, mem.ReadAt(got, 10))
	assert.Equal(t, []byte("bcde"), got)

	_, err = inst.Call("copy", NewI32(100), NewI32(10), NewI32(4))
	require.NoError(t, err)
	require.NoError(t, mem.ReadAt(got, 100))
	assert.Equal(t, []byte("bcde"), got)

	_, err = inst.Call("fill", NewI32(100), NewI32(0x7a), NewI32(4))
	require.NoError(t, err)
	require.NoError(t, mem.ReadAt(got, 100))
	assert.Equal(t, []byte("zzzz"), got)

	// Zero-length operations at the current size succeed.
	_, err = inst.Call("copy", NewI32(65536), NewI32(0), NewI32(0))
	assert.NoError(t, err)

	// After data.drop the segment behaves as empty: nonzero init traps.
	_, err = inst.Call("drop")
	require.NoError(t, err)
	_, err = inst.Call("init", NewI32(0), NewI32(0), NewI32(1))
	assert.ErrorIs(t, err, &Trap{Kind: TrapMemoryOutOfBounds})
}

func TestGlobals(t *testing.T) {
	b := &moduleBuilder{}
	b.global(tI32, true, insI32Const(7))
	bump := b.fn(nil, []byte{tI32}, nil, cat(
		insGlobalGet(0), insI32Const(1), []byte{0x6a}, insGlobalSet(0),
		insGlobalGet(0), []byte{opEnd}))
	b.exportFunc("bump", bump)
	b.export("g", 0x03, 0)

	inst := instantiateWasm(t, b.bytes())

	assert.Equal(t, int32(8), call1(t, inst, "bump").I32())
	assert.Equal(t, int32(9), call1(t, inst, "bump").I32())

	g, err := inst.ExportedGlobal("g")
	require.NoError(t, err)
	assert.Equal(t, int32(9), g.Get().I32())

	require.NoError(t, g.Set(NewI32(100)))
	assert.Equal(t, int32(101), call1(t, inst, "bump").I32())
}

func TestStartFunctionRuns(t *testing.T) {
	b := &moduleBuilder{}
	b.memory(1, nil)
	b.export("mem", 0x02, 0)
	start := b.fn(nil, nil, nil, cat(
		insI32Const(0), insI32Const(42), []byte{0x36, 0x02, 0x00, opEnd}))
	b.setStart(start)

	inst := instantiateWasm(t, b.bytes())
	mem, err := inst.ExportedMemory("mem")
	require.NoError(t, err)
	got := make([]byte, 1)
	require.NoError(t, mem.ReadAt(got, 0))
	assert.Equal(t, byte(42), got[0])
}

func TestStartFunctionTrapFailsInstantiation(t *testing.T) {
	b := &moduleBuilder{}
	start := b.fn(nil, nil, nil, []byte{opUnreachable, opEnd})
	b.setStart(start)

	r := NewRuntime()
	m, err := r.DecodeModule(b.bytes())
	require.NoError(t, err)
	_, err = r.InstantiateModule("test", m)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTrap)
}

func TestMultiValueResults(t *testing.T) {
	b := &moduleBuilder{}
	swap := b.fn([]byte{tI32, tI32}, []byte{tI32, tI32}, nil, cat(
		insLocalGet(1), insLocalGet(0), []byte{opEnd}))
	b.exportFunc("swap", swap)

	inst := instantiateWasm(t, b.bytes())
	results, err := inst.Call("swap", NewI32(1), NewI32(2))
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, int32(2), results[0].I32())
	assert.Equal(t, int32(1), results[1].I32())
}

func TestInstructionBudget(t *testing.T) {
	b := &moduleBuilder{}
	spin := b.fn(nil, nil, nil, cat(
		[]byte{0x03, 0x40}, insBr(0), []byte{opEnd, opEnd}))
	add := b.fn([]byte{tI32, tI32}, []byte{tI32}, nil, cat(
		insLocalGet(0), insLocalGet(1), []byte{0x6a, opEnd}))
	b.exportFunc("spin", spin)
	b.exportFunc("add", add)

	cfg := DefaultConfig()
	cfg.InstructionBudget = 10_000
	inst := instantiateWasmWith(t, cfg, b.bytes(), nil)

	_, err := inst.Call("spin")
	require.Error(t, err)
	assert.ErrorIs(t, err, &Trap{Kind: TrapBudgetExhausted})

	// Each invocation gets a fresh budget.
	assert.Equal(t, int32(3), call1(t, inst, "add", NewI32(1), NewI32(2)).I32())
}

func TestCallDepthLimit(t *testing.T) {
	b := &moduleBuilder{}
	rec := b.fn(nil, nil, nil, cat(insCall(0), []byte{opEnd}))
	b.exportFunc("rec", rec)

	cfg := DefaultConfig()
	cfg.MaxCallStackDepth = 100
	inst := instantiateWasmWith(t, cfg, b.bytes(), nil)

	_, err := inst.Call("rec")
	require.Error(t, err)
	assert.ErrorIs(t, err, &Trap{Kind: TrapCallStackExhausted})
}

func TestDeterministicExecution(t *testing.T) {
	inst := instantiateWasm(t, controlModuleBytes())
	first := call1(t, inst, "sum", NewI32(1000)).I32()
	for range 5 {
		assert.Equal(t, first, call1(t, inst, "sum", NewI32(1000)).I32())
	}
}

func TestReinstantiationIsIndependent(t *testing.T) {
	r := NewRuntime()
	m, err := r.DecodeModule(memoryModuleBytes())
	require.NoError(t, err)

	a, err := r.InstantiateModule("a", m)
	require.NoError(t, err)
	b, err := r.InstantiateModule("b", m)
	require.NoError(t, err)

	_, err = a.Call("store", NewI32(0), NewI32(123))
	require.NoError(t, err)

	assert.Equal(t, int32(123), call1(t, a, "load", NewI32(0)).I32())
	assert.Equal(t, int32(0), call1(t, b, "load", NewI32(0)).I32())
}

func TestStackBalancedAfterInvocation(t *testing.T) {
	inst := instantiateWasm(t, controlModuleBytes())

	var depths []int
	stackDepthHook = func(d int) { depths = append(depths, d) }
	defer func() { stackDepthHook = nil }()

	_, err := inst.Call("abs", NewI32(-7))
	require.NoError(t, err)
	_, err = inst.Call("sum", NewI32(100))
	require.NoError(t, err)

	// Exactly one result cell left per invocation, nothing leaked.
	assert.Equal(t, []int{1, 1}, depths)
}
