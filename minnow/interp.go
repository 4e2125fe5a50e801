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
	"fmt"
	"math"
	"math/bits"
)

// interpreter executes lowered function bodies against a store. One
// interpreter serves one Runtime; invocations are strictly sequential, so
// the call depth counter and instruction budget live here without locking.
type interpreter struct {
	cfg   Config
	store *Store

	depth int
	// frames caches per-depth locals and control-stack buffers up to
	// Config.CallStackReserve, so steady-state calls allocate nothing.
	frames []callFrame

	budgetEnabled bool
	budget        uint64
}

type callFrame struct {
	locals []uint64
	ctrl   []ctrlEntry
}

// ctrlEntry is one live label: where a branch to it lands, the operand stack
// height at entry (below the block parameters), and how many values a branch
// carries (parameters for a loop, results otherwise).
type ctrlEntry struct {
	isLoop       bool
	continuation int
	height       int
	arity        int
}

func newInterpreter(cfg Config, store *Store) *interpreter {
	return &interpreter{cfg: cfg, store: store}
}

// stackDepthHook, when set by tests, observes the operand stack depth after
// a successful invocation, before results are popped.
var stackDepthHook func(depth int)

// callExternal is the host entry point: typed argument checking, budget
// arming, and conversion between Values and raw stack cells.
func (in *interpreter) callExternal(fi FunctionInstance, args []Value) ([]Value, error) {
	ft := fi.Type()
	if len(args) != len(ft.ParamTypes) {
		return nil, fmt.Errorf(
			"wrong argument count: have %d, want %d", len(args), len(ft.ParamTypes),
		)
	}
	for i, arg := range args {
		if arg.Type() != ft.ParamTypes[i] {
			return nil, fmt.Errorf(
				"argument %d is %s, want %s",
				i, valueTypeName(arg.Type()), valueTypeName(ft.ParamTypes[i]),
			)
		}
	}

	in.budget = in.cfg.InstructionBudget
	in.budgetEnabled = in.budget > 0

	stack := &valueStack{values: make([]uint64, 0, len(args)+8)}
	for _, arg := range args {
		stack.push(arg.bits)
	}
	if err := in.invoke(fi, stack); err != nil {
		return nil, err
	}
	if stackDepthHook != nil {
		stackDepthHook(len(stack.values))
	}

	results := make([]Value, len(ft.ResultTypes))
	for i := len(results) - 1; i >= 0; i-- {
		results[i] = Value{typ: ft.ResultTypes[i], bits: stack.pop()}
	}
	return results, nil
}

// invoke calls a function whose arguments sit on top of the stack, leaving
// its results there.
func (in *interpreter) invoke(fi FunctionInstance, stack *valueStack) error {
	switch fn := fi.(type) {
	case *wasmFunction:
		return in.invokeWasm(fn, stack)
	case *HostFunction:
		return in.invokeHost(fn, stack)
	default:
		return fmt.Errorf("unknown function instance %T", fi)
	}
}

func (in *interpreter) invokeWasm(f *wasmFunction, stack *valueStack) error {
	if in.depth >= in.cfg.MaxCallStackDepth {
		return errCallStackExhausted
	}

	var frame *callFrame
	if in.depth < in.cfg.CallStackReserve {
		for len(in.frames) <= in.depth {
			in.frames = append(in.frames, callFrame{})
		}
		frame = &in.frames[in.depth]
	} else {
		frame = &callFrame{}
	}

	nParams := len(f.typ.ParamTypes)
	nLocals := nParams + len(f.fn.Locals)
	if cap(frame.locals) < nLocals {
		frame.locals = make([]uint64, nLocals)
	}
	frame.locals = frame.locals[:nLocals]
	for i := nParams - 1; i >= 0; i-- {
		frame.locals[i] = stack.pop()
	}
	// Declared locals start zeroed on every call.
	for i := nParams; i < nLocals; i++ {
		frame.locals[i] = 0
	}

	in.depth++
	err := in.run(f, frame, stack)
	in.depth--
	return err
}

func (in *interpreter) invokeHost(f *HostFunction, stack *valueStack) (err error) {
	params := f.FuncType.ParamTypes
	args := make([]Value, len(params))
	for i := len(args) - 1; i >= 0; i-- {
		args[i] = Value{typ: params[i], bits: stack.pop()}
	}

	// A panicking host function must not take the whole embedder down.
	defer func() {
		if r := recover(); r != nil {
			err = &HostError{Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	results, herr := f.Fn(args)
	if herr != nil {
		if errors.Is(herr, ErrTrap) {
			return herr
		}
		return &HostError{Err: herr}
	}

	want := f.FuncType.ResultTypes
	if len(results) != len(want) {
		return &HostError{Err: fmt.Errorf(
			"returned %d values, want %d", len(results), len(want),
		)}
	}
	for i, res := range results {
		if res.Type() != want[i] {
			return &HostError{Err: fmt.Errorf(
				"result %d is %s, want %s",
				i, valueTypeName(res.Type()), valueTypeName(want[i]),
			)}
		}
		stack.push(res.bits)
	}
	return nil
}

// blockArity resolves a block type immediate to its parameter and result
// counts.
func blockArity(m *Module, raw uint64) (nParams, nResults int) {
	bt := int64(raw)
	if bt == emptyBlockType {
		return 0, 0
	}
	if bt < 0 {
		return 0, 1
	}
	ft := &m.Types[bt]
	return len(ft.ParamTypes), len(ft.ResultTypes)
}

// run executes one function body. The frame's arguments are already in
// locals; results are left on the stack. Code reaching here has passed
// validation, so operand types and stack heights are trusted.
func (in *interpreter) run(f *wasmFunction, frame *callFrame, stack *valueStack) error {
	code := f.fn.code
	inst := f.inst
	m := inst.module
	locals := frame.locals
	ctrl := frame.ctrl[:0]
	defer func() { frame.ctrl = ctrl[:0] }()

	base := stack.len()
	resultCount := len(f.typ.ResultTypes)

	pop32 := func() uint32 { return uint32(stack.pop()) }
	push32 := func(v uint32) { stack.push(uint64(v)) }
	popF32 := func() float32 { return math.Float32frombits(uint32(stack.pop())) }
	pushF32 := func(v float32) { stack.push(uint64(math.Float32bits(v))) }
	popF64 := func() float64 { return math.Float64frombits(stack.pop()) }
	pushF64 := func(v float64) { stack.push(math.Float64bits(v)) }

	pc := 0
	// branchTo transfers control to label n. It reports true when the target
	// is the function label itself, meaning run should return.
	branchTo := func(n int) bool {
		if n >= len(ctrl) {
			stack.unwind(base, resultCount)
			return true
		}
		target := ctrl[len(ctrl)-1-n]
		stack.unwind(target.height, target.arity)
		if target.isLoop {
			ctrl = ctrl[:len(ctrl)-n]
		} else {
			ctrl = ctrl[:len(ctrl)-1-n]
		}
		pc = target.continuation
		return false
	}

	for pc < len(code) {
		if in.budgetEnabled {
			if in.budget == 0 {
				return errBudgetExhausted
			}
			in.budget--
		}

		op := opcode(code[pc])
		switch op {
		case unreachable:
			return errUnreachable
		case nop:
			pc++

		case block:
			nParams, nResults := blockArity(m, code[pc+1])
			ctrl = append(ctrl, ctrlEntry{
				continuation: int(code[pc+2]),
				height:       stack.len() - nParams,
				arity:        nResults,
			})
			pc += 3

		case loop:
			nParams, _ := blockArity(m, code[pc+1])
			ctrl = append(ctrl, ctrlEntry{
				isLoop:       true,
				continuation: int(code[pc+2]),
				height:       stack.len() - nParams,
				arity:        nParams,
			})
			pc += 3

		case ifOp:
			cond := pop32()
			nParams, nResults := blockArity(m, code[pc+1])
			ctrl = append(ctrl, ctrlEntry{
				continuation: int(code[pc+2]),
				height:       stack.len() - nParams,
				arity:        nResults,
			})
			if cond != 0 {
				pc += 4
			} else {
				pc = int(code[pc+3])
			}

		case elseOp:
			// Reached only when the true arm falls through: skip the else arm.
			top := ctrl[len(ctrl)-1]
			ctrl = ctrl[:len(ctrl)-1]
			pc = top.continuation

		case end:
			ctrl = ctrl[:len(ctrl)-1]
			pc++

		case br:
			if branchTo(int(code[pc+1])) {
				return nil
			}

		case brIf:
			if pop32() != 0 {
				if branchTo(int(code[pc+1])) {
					return nil
				}
			} else {
				pc += 2
			}

		case brTable:
			count := int(code[pc+1])
			i := int(pop32())
			if i >= count {
				i = count
			}
			if branchTo(int(code[pc+2+i])) {
				return nil
			}

		case returnOp:
			stack.unwind(base, resultCount)
			return nil

		case call:
			if err := in.invoke(inst.funcAt(uint32(code[pc+1])), stack); err != nil {
				return err
			}
			pc += 2

		case callIndirect:
			typeIndex := uint32(code[pc+1])
			table := inst.tableAt(uint32(code[pc+2]))
			i := pop32()
			if i >= table.Size() {
				return errUndefinedElement
			}
			ref := table.elements[i]
			if ref == NullReference {
				return errUninitialized
			}
			callee := in.store.funcs[ref]
			if got := callee.Type(); !got.Equal(m.Types[typeIndex]) {
				return errCallTypeMismatch
			}
			if err := in.invoke(callee, stack); err != nil {
				return err
			}
			pc += 3

		case drop:
			stack.pop()
			pc++

		case selectOp:
			cond := pop32()
			v2 := stack.pop()
			v1 := stack.pop()
			if cond != 0 {
				stack.push(v1)
			} else {
				stack.push(v2)
			}
			pc++

		case selectT:
			cond := pop32()
			v2 := stack.pop()
			v1 := stack.pop()
			if cond != 0 {
				stack.push(v1)
			} else {
				stack.push(v2)
			}
			pc += 3

		case localGet:
			stack.push(locals[code[pc+1]])
			pc += 2
		case localSet:
			locals[code[pc+1]] = stack.pop()
			pc += 2
		case localTee:
			locals[code[pc+1]] = stack.peek()
			pc += 2

		case globalGet:
			stack.push(inst.globalAt(uint32(code[pc+1])).bits)
			pc += 2
		case globalSet:
			inst.globalAt(uint32(code[pc+1])).bits = stack.pop()
			pc += 2

		case tableGet:
			table := inst.tableAt(uint32(code[pc+1]))
			ref, err := table.get(pop32())
			if err != nil {
				return err
			}
			push32(uint32(ref))
			pc += 2
		case tableSet:
			table := inst.tableAt(uint32(code[pc+1]))
			ref := int32(pop32())
			if err := table.set(pop32(), ref); err != nil {
				return err
			}
			pc += 2

		case i32Load, i64Load, f32Load, f64Load,
			i32Load8S, i32Load8U, i32Load16S, i32Load16U,
			i64Load8S, i64Load8U, i64Load16S, i64Load16U,
			i64Load32S, i64Load32U:
			mem := inst.memoryAt(uint32(code[pc+2]))
			raw, err := mem.load(pop32(), uint32(code[pc+3]), loadWidth(op))
			if err != nil {
				return err
			}
			stack.push(extendLoaded(op, raw))
			pc += 4

		case i32Store, i64Store, f32Store, f64Store,
			i32Store8, i32Store16, i64Store8, i64Store16, i64Store32:
			mem := inst.memoryAt(uint32(code[pc+2]))
			v := stack.pop()
			if err := mem.store(pop32(), uint32(code[pc+3]), storeWidth(op), v); err != nil {
				return err
			}
			pc += 4

		case memorySize:
			push32(inst.memoryAt(uint32(code[pc+1])).Size())
			pc += 2
		case memoryGrow:
			mem := inst.memoryAt(uint32(code[pc+1]))
			push32(uint32(mem.Grow(pop32())))
			pc += 2

		case i32Const, i64Const, f32Const, f64Const:
			stack.push(code[pc+1])
			pc += 2

		case i32Eqz:
			push32(uint32(boolBit(pop32() == 0)))
			pc++
		case i64Eqz:
			push32(uint32(boolBit(stack.pop() == 0)))
			pc++

		case i32Eq, i32Ne, i32LtS, i32LtU, i32GtS, i32GtU,
			i32LeS, i32LeU, i32GeS, i32GeU:
			b, a := pop32(), pop32()
			stack.push(boolBit(cmp32(op, a, b)))
			pc++
		case i64Eq, i64Ne, i64LtS, i64LtU, i64GtS, i64GtU,
			i64LeS, i64LeU, i64GeS, i64GeU:
			b, a := stack.pop(), stack.pop()
			stack.push(boolBit(cmp64(op, a, b)))
			pc++
		case f32Eq, f32Ne, f32Lt, f32Gt, f32Le, f32Ge:
			b, a := popF32(), popF32()
			stack.push(boolBit(cmpF(op, float64(a), float64(b))))
			pc++
		case f64Eq, f64Ne, f64Lt, f64Gt, f64Le, f64Ge:
			b, a := popF64(), popF64()
			stack.push(boolBit(cmpF(op, a, b)))
			pc++

		case i32Clz:
			push32(uint32(bits.LeadingZeros32(pop32())))
			pc++
		case i32Ctz:
			push32(uint32(bits.TrailingZeros32(pop32())))
			pc++
		case i32Popcnt:
			push32(uint32(bits.OnesCount32(pop32())))
			pc++
		case i64Clz:
			stack.push(uint64(bits.LeadingZeros64(stack.pop())))
			pc++
		case i64Ctz:
			stack.push(uint64(bits.TrailingZeros64(stack.pop())))
			pc++
		case i64Popcnt:
			stack.push(uint64(bits.OnesCount64(stack.pop())))
			pc++

		case i32Add:
			b, a := pop32(), pop32()
			push32(a + b)
			pc++
		case i32Sub:
			b, a := pop32(), pop32()
			push32(a - b)
			pc++
		case i32Mul:
			b, a := pop32(), pop32()
			push32(a * b)
			pc++
		case i32DivS:
			b, a := int32(pop32()), int32(pop32())
			q, err := divS32(a, b)
			if err != nil {
				return err
			}
			push32(uint32(q))
			pc++
		case i32DivU:
			b, a := pop32(), pop32()
			q, err := divU32(a, b)
			if err != nil {
				return err
			}
			push32(q)
			pc++
		case i32RemS:
			b, a := int32(pop32()), int32(pop32())
			r, err := remS32(a, b)
			if err != nil {
				return err
			}
			push32(uint32(r))
			pc++
		case i32RemU:
			b, a := pop32(), pop32()
			r, err := remU32(a, b)
			if err != nil {
				return err
			}
			push32(r)
			pc++
		case i32And:
			b, a := pop32(), pop32()
			push32(a & b)
			pc++
		case i32Or:
			b, a := pop32(), pop32()
			push32(a | b)
			pc++
		case i32Xor:
			b, a := pop32(), pop32()
			push32(a ^ b)
			pc++
		case i32Shl:
			b, a := pop32(), pop32()
			push32(a << (b & 31))
			pc++
		case i32ShrS:
			b, a := pop32(), int32(pop32())
			push32(uint32(a >> (b & 31)))
			pc++
		case i32ShrU:
			b, a := pop32(), pop32()
			push32(a >> (b & 31))
			pc++
		case i32Rotl:
			b, a := pop32(), pop32()
			push32(rotl32(a, b))
			pc++
		case i32Rotr:
			b, a := pop32(), pop32()
			push32(rotr32(a, b))
			pc++

		case i64Add:
			b, a := stack.pop(), stack.pop()
			stack.push(a + b)
			pc++
		case i64Sub:
			b, a := stack.pop(), stack.pop()
			stack.push(a - b)
			pc++
		case i64Mul:
			b, a := stack.pop(), stack.pop()
			stack.push(a * b)
			pc++
		case i64DivS:
			b, a := int64(stack.pop()), int64(stack.pop())
			q, err := divS64(a, b)
			if err != nil {
				return err
			}
			stack.push(uint64(q))
			pc++
		case i64DivU:
			b, a := stack.pop(), stack.pop()
			q, err := divU64(a, b)
			if err != nil {
				return err
			}
			stack.push(q)
			pc++
		case i64RemS:
			b, a := int64(stack.pop()), int64(stack.pop())
			r, err := remS64(a, b)
			if err != nil {
				return err
			}
			stack.push(uint64(r))
			pc++
		case i64RemU:
			b, a := stack.pop(), stack.pop()
			r, err := remU64(a, b)
			if err != nil {
				return err
			}
			stack.push(r)
			pc++
		case i64And:
			b, a := stack.pop(), stack.pop()
			stack.push(a & b)
			pc++
		case i64Or:
			b, a := stack.pop(), stack.pop()
			stack.push(a | b)
			pc++
		case i64Xor:
			b, a := stack.pop(), stack.pop()
			stack.push(a ^ b)
			pc++
		case i64Shl:
			b, a := stack.pop(), stack.pop()
			stack.push(a << (b & 63))
			pc++
		case i64ShrS:
			b, a := stack.pop(), int64(stack.pop())
			stack.push(uint64(a >> (b & 63)))
			pc++
		case i64ShrU:
			b, a := stack.pop(), stack.pop()
			stack.push(a >> (b & 63))
			pc++
		case i64Rotl:
			b, a := stack.pop(), stack.pop()
			stack.push(rotl64(a, b))
			pc++
		case i64Rotr:
			b, a := stack.pop(), stack.pop()
			stack.push(rotr64(a, b))
			pc++

		case f32Abs:
			pushF32(float32(math.Abs(float64(popF32()))))
			pc++
		case f32Neg:
			push32(uint32(stack.pop()) ^ (1 << 31))
			pc++
		case f32Ceil:
			pushF32(float32(math.Ceil(float64(popF32()))))
			pc++
		case f32Floor:
			pushF32(float32(math.Floor(float64(popF32()))))
			pc++
		case f32Trunc:
			pushF32(float32(math.Trunc(float64(popF32()))))
			pc++
		case f32Nearest:
			pushF32(float32(nearest(float64(popF32()))))
			pc++
		case f32Sqrt:
			pushF32(float32(math.Sqrt(float64(popF32()))))
			pc++
		case f32Add:
			b, a := popF32(), popF32()
			pushF32(a + b)
			pc++
		case f32Sub:
			b, a := popF32(), popF32()
			pushF32(a - b)
			pc++
		case f32Mul:
			b, a := popF32(), popF32()
			pushF32(a * b)
			pc++
		case f32Div:
			b, a := popF32(), popF32()
			pushF32(a / b)
			pc++
		case f32Min:
			b, a := popF32(), popF32()
			pushF32(min(a, b))
			pc++
		case f32Max:
			b, a := popF32(), popF32()
			pushF32(max(a, b))
			pc++
		case f32Copysign:
			b, a := popF32(), popF32()
			pushF32(float32(math.Copysign(float64(a), float64(b))))
			pc++

		case f64Abs:
			pushF64(math.Abs(popF64()))
			pc++
		case f64Neg:
			stack.push(stack.pop() ^ (1 << 63))
			pc++
		case f64Ceil:
			pushF64(math.Ceil(popF64()))
			pc++
		case f64Floor:
			pushF64(math.Floor(popF64()))
			pc++
		case f64Trunc:
			pushF64(math.Trunc(popF64()))
			pc++
		case f64Nearest:
			pushF64(nearest(popF64()))
			pc++
		case f64Sqrt:
			pushF64(math.Sqrt(popF64()))
			pc++
		case f64Add:
			b, a := popF64(), popF64()
			pushF64(a + b)
			pc++
		case f64Sub:
			b, a := popF64(), popF64()
			pushF64(a - b)
			pc++
		case f64Mul:
			b, a := popF64(), popF64()
			pushF64(a * b)
			pc++
		case f64Div:
			b, a := popF64(), popF64()
			pushF64(a / b)
			pc++
		case f64Min:
			b, a := popF64(), popF64()
			pushF64(min(a, b))
			pc++
		case f64Max:
			b, a := popF64(), popF64()
			pushF64(max(a, b))
			pc++
		case f64Copysign:
			b, a := popF64(), popF64()
			pushF64(math.Copysign(a, b))
			pc++

		case i32WrapI64:
			push32(uint32(stack.pop()))
			pc++
		case i32TruncF32S:
			v, err := truncF64ToI32S(float64(popF32()))
			if err != nil {
				return err
			}
			push32(uint32(v))
			pc++
		case i32TruncF32U:
			v, err := truncF64ToI32U(float64(popF32()))
			if err != nil {
				return err
			}
			push32(v)
			pc++
		case i32TruncF64S:
			v, err := truncF64ToI32S(popF64())
			if err != nil {
				return err
			}
			push32(uint32(v))
			pc++
		case i32TruncF64U:
			v, err := truncF64ToI32U(popF64())
			if err != nil {
				return err
			}
			push32(v)
			pc++
		case i64ExtendI32S:
			stack.push(uint64(int64(int32(pop32()))))
			pc++
		case i64ExtendI32U:
			stack.push(uint64(pop32()))
			pc++
		case i64TruncF32S:
			v, err := truncF64ToI64S(float64(popF32()))
			if err != nil {
				return err
			}
			stack.push(uint64(v))
			pc++
		case i64TruncF32U:
			v, err := truncF64ToI64U(float64(popF32()))
			if err != nil {
				return err
			}
			stack.push(v)
			pc++
		case i64TruncF64S:
			v, err := truncF64ToI64S(popF64())
			if err != nil {
				return err
			}
			stack.push(uint64(v))
			pc++
		case i64TruncF64U:
			v, err := truncF64ToI64U(popF64())
			if err != nil {
				return err
			}
			stack.push(v)
			pc++
		case f32ConvertI32S:
			pushF32(float32(int32(pop32())))
			pc++
		case f32ConvertI32U:
			pushF32(float32(pop32()))
			pc++
		case f32ConvertI64S:
			pushF32(float32(int64(stack.pop())))
			pc++
		case f32ConvertI64U:
			pushF32(float32(stack.pop()))
			pc++
		case f32DemoteF64:
			pushF32(float32(popF64()))
			pc++
		case f64ConvertI32S:
			pushF64(float64(int32(pop32())))
			pc++
		case f64ConvertI32U:
			pushF64(float64(pop32()))
			pc++
		case f64ConvertI64S:
			pushF64(float64(int64(stack.pop())))
			pc++
		case f64ConvertI64U:
			pushF64(float64(stack.pop()))
			pc++
		case f64PromoteF32:
			pushF64(float64(popF32()))
			pc++

		case i32ReinterpretF32, i64ReinterpretF64, f32ReinterpretI32, f64ReinterpretI64:
			// Values are already raw bit cells; reinterpretation is free.
			pc++

		case i32Extend8S:
			push32(uint32(int32(int8(pop32()))))
			pc++
		case i32Extend16S:
			push32(uint32(int32(int16(pop32()))))
			pc++
		case i64Extend8S:
			stack.push(uint64(int64(int8(stack.pop()))))
			pc++
		case i64Extend16S:
			stack.push(uint64(int64(int16(stack.pop()))))
			pc++
		case i64Extend32S:
			stack.push(uint64(int64(int32(stack.pop()))))
			pc++

		case refNull:
			nullRef := NullReference
			push32(uint32(nullRef))
			pc += 2
		case refIsNull:
			stack.push(boolBit(int32(pop32()) == NullReference))
			pc++
		case refFunc:
			push32(inst.funcAddrs[code[pc+1]])
			pc += 2

		case i32TruncSatF32S:
			push32(uint32(truncSatF64ToI32S(float64(popF32()))))
			pc++
		case i32TruncSatF32U:
			push32(truncSatF64ToI32U(float64(popF32())))
			pc++
		case i32TruncSatF64S:
			push32(uint32(truncSatF64ToI32S(popF64())))
			pc++
		case i32TruncSatF64U:
			push32(truncSatF64ToI32U(popF64()))
			pc++
		case i64TruncSatF32S:
			stack.push(uint64(truncSatF64ToI64S(float64(popF32()))))
			pc++
		case i64TruncSatF32U:
			stack.push(truncSatF64ToI64U(float64(popF32())))
			pc++
		case i64TruncSatF64S:
			stack.push(uint64(truncSatF64ToI64S(popF64())))
			pc++
		case i64TruncSatF64U:
			stack.push(truncSatF64ToI64U(popF64()))
			pc++

		case memoryInit:
			mem := inst.memoryAt(uint32(code[pc+2]))
			n, src, dst := pop32(), pop32(), pop32()
			if err := mem.init(dst, src, n, inst.dataAt(uint32(code[pc+1]))); err != nil {
				return err
			}
			pc += 3
		case dataDrop:
			inst.dropData(uint32(code[pc+1]))
			pc += 2
		case memoryCopy:
			dstMem := inst.memoryAt(uint32(code[pc+1]))
			srcMem := inst.memoryAt(uint32(code[pc+2]))
			n, src, dst := pop32(), pop32(), pop32()
			if err := srcMem.copyTo(dstMem, dst, src, n); err != nil {
				return err
			}
			pc += 3
		case memoryFill:
			mem := inst.memoryAt(uint32(code[pc+1]))
			n, val, dst := pop32(), pop32(), pop32()
			if err := mem.fill(dst, n, byte(val)); err != nil {
				return err
			}
			pc += 2

		case tableInit:
			table := inst.tableAt(uint32(code[pc+2]))
			n, src, dst := pop32(), pop32(), pop32()
			if err := table.init(dst, src, n, inst.elementAt(uint32(code[pc+1]))); err != nil {
				return err
			}
			pc += 3
		case elemDrop:
			inst.dropElement(uint32(code[pc+1]))
			pc += 2
		case tableCopy:
			dstTable := inst.tableAt(uint32(code[pc+1]))
			srcTable := inst.tableAt(uint32(code[pc+2]))
			n, src, dst := pop32(), pop32(), pop32()
			if err := srcTable.copyTo(dstTable, dst, src, n); err != nil {
				return err
			}
			pc += 3
		case tableGrow:
			table := inst.tableAt(uint32(code[pc+1]))
			n := pop32()
			ref := int32(pop32())
			push32(uint32(table.Grow(n, ref)))
			pc += 2
		case tableSize:
			push32(inst.tableAt(uint32(code[pc+1])).Size())
			pc += 2
		case tableFill:
			table := inst.tableAt(uint32(code[pc+1]))
			n := pop32()
			ref := int32(pop32())
			dst := pop32()
			if err := table.fill(dst, n, ref); err != nil {
				return err
			}
			pc += 2

		default:
			return fmt.Errorf("unknown opcode 0x%x at pc %d", uint32(op), pc)
		}
	}

	stack.unwind(base, resultCount)
	return nil
}

func loadWidth(op opcode) int {
	switch op {
	case i32Load8S, i32Load8U, i64Load8S, i64Load8U:
		return 1
	case i32Load16S, i32Load16U, i64Load16S, i64Load16U:
		return 2
	case i32Load, f32Load, i64Load32S, i64Load32U:
		return 4
	default:
		return 8
	}
}

func storeWidth(op opcode) int {
	switch op {
	case i32Store8, i64Store8:
		return 1
	case i32Store16, i64Store16:
		return 2
	case i32Store, f32Store, i64Store32:
		return 4
	default:
		return 8
	}
}

// extendLoaded widens raw loaded bytes into a stack cell with the right sign
// or zero extension.
func extendLoaded(op opcode, raw uint64) uint64 {
	switch op {
	case i32Load8S:
		return uint64(uint32(int32(int8(raw))))
	case i32Load16S:
		return uint64(uint32(int32(int16(raw))))
	case i64Load8S:
		return uint64(int64(int8(raw)))
	case i64Load16S:
		return uint64(int64(int16(raw)))
	case i64Load32S:
		return uint64(int64(int32(raw)))
	default:
		// Unsigned and full-width loads are already zero-extended.
		return raw
	}
}

func cmp32(op opcode, a, b uint32) bool {
	switch op {
	case i32Eq:
		return a == b
	case i32Ne:
		return a != b
	case i32LtS:
		return int32(a) < int32(b)
	case i32LtU:
		return a < b
	case i32GtS:
		return int32(a) > int32(b)
	case i32GtU:
		return a > b
	case i32LeS:
		return int32(a) <= int32(b)
	case i32LeU:
		return a <= b
	case i32GeS:
		return int32(a) >= int32(b)
	default:
		return a >= b
	}
}

func cmp64(op opcode, a, b uint64) bool {
	switch op {
	case i64Eq:
		return a == b
	case i64Ne:
		return a != b
	case i64LtS:
		return int64(a) < int64(b)
	case i64LtU:
		return a < b
	case i64GtS:
		return int64(a) > int64(b)
	case i64GtU:
		return a > b
	case i64LeS:
		return int64(a) <= int64(b)
	case i64LeU:
		return a <= b
	case i64GeS:
		return int64(a) >= int64(b)
	default:
		return a >= b
	}
}

func cmpF(op opcode, a, b float64) bool {
	switch op {
	case f32Eq, f64Eq:
		return a == b
	case f32Ne, f64Ne:
		return a != b
	case f32Lt, f64Lt:
		return a < b
	case f32Gt, f64Gt:
		return a > b
	case f32Le, f64Le:
		return a <= b
	default:
		return a >= b
	}
}
