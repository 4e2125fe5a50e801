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
)

// ValidateModule type-checks a decoded module: every function body is run
// through an abstract interpreter that tracks value types and control frames,
// and the module-level rules (index ranges, limits, export uniqueness, start
// signature, constant expressions) are enforced. A module that passes is safe
// to instantiate and execute without further type checks.
//
// Failures are reported as *ValidationError. On success the module is marked
// so Runtime instantiation can insist on validated input.
//
// See https://webassembly.github.io/spec/core/valid/index.html
func ValidateModule(m *Module) error {
	v := &moduleValidator{m: m}
	if err := v.validateModule(); err != nil {
		return err
	}
	m.validated = true
	return nil
}

type moduleValidator struct {
	m *Module

	// declaredFuncs holds the function indices that appear in an element
	// segment, a global initializer, or an export. Only these may be the
	// target of ref.func inside a function body.
	declaredFuncs map[uint32]bool
}

func moduleErr(format string, args ...any) error {
	return &ValidationError{FuncIndex: -1, Offset: -1, Err: fmt.Errorf(format, args...)}
}

func funcErr(funcIndex, offset int, format string, args ...any) error {
	return &ValidationError{
		FuncIndex: funcIndex,
		Offset:    offset,
		Err:       fmt.Errorf(format, args...),
	}
}

func (v *moduleValidator) validateModule() error {
	m := v.m

	for i, imp := range m.Imports {
		if err := v.validateImport(imp); err != nil {
			return moduleErr("import %d (%q.%q): %v", i, imp.ModuleName, imp.Name, err)
		}
	}
	for i, f := range m.Funcs {
		if int(f.TypeIndex) >= len(m.Types) {
			return moduleErr("function %d: unknown type %d", i, f.TypeIndex)
		}
	}
	for i, t := range m.Types {
		if len(t.ResultTypes) > 1 && !m.features.Has(FeatureMultiValue) {
			return moduleErr("type %d: multiple results require multi-value", i)
		}
	}
	for i, tt := range m.Tables {
		if err := validateTableType(tt); err != nil {
			return moduleErr("table %d: %v", i, err)
		}
	}
	for i, mt := range m.Memories {
		if err := validateMemoryType(mt); err != nil {
			return moduleErr("memory %d: %v", i, err)
		}
	}
	if m.numMemories() > 1 && !m.features.Has(FeatureMultipleMemories) {
		return moduleErr("multiple memories")
	}
	if m.numTables() > 1 && !m.features.Has(FeatureReferenceTypes) {
		return moduleErr("multiple tables require reference types")
	}

	v.collectDeclaredFuncs()

	for i, g := range m.GlobalVariables {
		// Initializers may only read globals imported before this one, which
		// in practice means imported globals only.
		if err := v.validateConstExpression(g.InitExpression, g.GlobalType.ValueType); err != nil {
			return moduleErr("global %d initializer: %v", i, err)
		}
	}

	for i, seg := range m.ElementSegments {
		if err := v.validateElementSegment(seg); err != nil {
			return moduleErr("element segment %d: %v", i, err)
		}
	}
	for i, seg := range m.DataSegments {
		if err := v.validateDataSegment(seg); err != nil {
			return moduleErr("data segment %d: %v", i, err)
		}
	}

	seen := make(map[string]bool, len(m.Exports))
	for _, exp := range m.Exports {
		if seen[exp.Name] {
			return moduleErr("duplicate export name %q", exp.Name)
		}
		seen[exp.Name] = true
		if err := v.validateExport(exp); err != nil {
			return moduleErr("export %q: %v", exp.Name, err)
		}
	}

	if m.StartIndex != nil {
		ft, ok := m.funcTypeAt(*m.StartIndex)
		if !ok {
			return moduleErr("start function %d does not exist", *m.StartIndex)
		}
		if len(ft.ParamTypes) != 0 || len(ft.ResultTypes) != 0 {
			return moduleErr("start function %d must have type [] -> []", *m.StartIndex)
		}
	}

	numImportedFuncs := m.numImportsOfKind(FunctionKind)
	for i := range m.Funcs {
		if err := v.validateFunction(numImportedFuncs+i, &m.Funcs[i]); err != nil {
			return err
		}
	}
	return nil
}

func (v *moduleValidator) validateImport(imp Import) error {
	switch imp.Kind {
	case FunctionKind:
		if int(imp.FuncTypeIndex) >= len(v.m.Types) {
			return fmt.Errorf("unknown type %d", imp.FuncTypeIndex)
		}
		return nil
	case TableKind:
		return validateTableType(imp.TableType)
	case MemoryKind:
		return validateMemoryType(imp.MemoryType)
	case GlobalKind:
		return nil
	default:
		return fmt.Errorf("unknown import kind %d", imp.Kind)
	}
}

func validateTableType(tt TableType) error {
	if tt.Limits.Max != nil && tt.Limits.Min > *tt.Limits.Max {
		return errors.New("size minimum must not be greater than maximum")
	}
	return nil
}

func validateMemoryType(mt MemoryType) error {
	if mt.Limits.Min > maxMemoryPages {
		return fmt.Errorf("memory size must be at most %d pages", maxMemoryPages)
	}
	if mt.Limits.Max != nil {
		if *mt.Limits.Max > maxMemoryPages {
			return fmt.Errorf("memory size must be at most %d pages", maxMemoryPages)
		}
		if mt.Limits.Min > *mt.Limits.Max {
			return errors.New("size minimum must not be greater than maximum")
		}
	}
	return nil
}

func (v *moduleValidator) validateExport(exp Export) error {
	m := v.m
	var max int
	switch exp.Kind {
	case FunctionKind:
		max = m.numFuncs()
	case TableKind:
		max = m.numTables()
	case MemoryKind:
		max = m.numMemories()
	case GlobalKind:
		max = m.numGlobals()
	default:
		return fmt.Errorf("unknown export kind %d", exp.Kind)
	}
	if int(exp.Index) >= max {
		return fmt.Errorf("%s index %d does not exist", exp.Kind, exp.Index)
	}
	return nil
}

func (v *moduleValidator) collectDeclaredFuncs() {
	v.declaredFuncs = make(map[uint32]bool)
	for _, seg := range v.m.ElementSegments {
		for _, idx := range seg.FuncIndexes {
			v.declaredFuncs[idx] = true
		}
		for _, expr := range seg.ItemExpressions {
			if len(expr) == 2 && opcode(expr[0]) == refFunc {
				v.declaredFuncs[uint32(expr[1])] = true
			}
		}
	}
	for _, g := range v.m.GlobalVariables {
		expr := g.InitExpression
		if len(expr) == 2 && opcode(expr[0]) == refFunc {
			v.declaredFuncs[uint32(expr[1])] = true
		}
	}
	for _, exp := range v.m.Exports {
		if exp.Kind == FunctionKind {
			v.declaredFuncs[exp.Index] = true
		}
	}
}

// validateConstExpression checks a lowered initializer expression: exactly one
// constant instruction producing the expected type. global.get is permitted
// only for imported immutable globals.
func (v *moduleValidator) validateConstExpression(expr []uint64, expected ValueType) error {
	if len(expr) == 0 {
		return errors.New("empty initializer expression")
	}
	var produced ValueType
	switch op := opcode(expr[0]); op {
	case i32Const:
		produced = I32
	case i64Const:
		produced = I64
	case f32Const:
		produced = F32
	case f64Const:
		produced = F64
	case refNull:
		produced = ReferenceType(expr[1])
	case refFunc:
		if int(uint32(expr[1])) >= v.m.numFuncs() {
			return fmt.Errorf("unknown function %d", uint32(expr[1]))
		}
		produced = FuncRefType
	case globalGet:
		index := uint32(expr[1])
		if int(index) >= v.m.numImportsOfKind(GlobalKind) {
			return fmt.Errorf("global %d is not an imported global", index)
		}
		gt, _ := v.m.globalTypeAt(index)
		if gt.IsMutable {
			return fmt.Errorf("global %d is mutable", index)
		}
		produced = gt.ValueType
	default:
		return fmt.Errorf("non-constant instruction 0x%x", uint32(op))
	}
	if len(expr) != 2 {
		return errors.New("initializer expression must be a single constant")
	}
	if produced != expected {
		return fmt.Errorf(
			"initializer has type %s, want %s",
			valueTypeName(produced), valueTypeName(expected),
		)
	}
	return nil
}

func (v *moduleValidator) validateElementSegment(seg ElementSegment) error {
	m := v.m
	for _, idx := range seg.FuncIndexes {
		if int(idx) >= m.numFuncs() {
			return fmt.Errorf("unknown function %d", idx)
		}
	}
	for i, expr := range seg.ItemExpressions {
		if err := v.validateConstExpression(expr, seg.Kind); err != nil {
			return fmt.Errorf("item %d: %v", i, err)
		}
	}
	if seg.Mode != ActiveElementMode {
		return nil
	}
	tt, ok := m.tableTypeAt(seg.TableIndex)
	if !ok {
		return fmt.Errorf("unknown table %d", seg.TableIndex)
	}
	if tt.ReferenceType != seg.Kind {
		return fmt.Errorf(
			"segment of %s cannot initialize a table of %s",
			valueTypeName(seg.Kind), valueTypeName(tt.ReferenceType),
		)
	}
	return v.validateConstExpression(seg.OffsetExpression, I32)
}

func (v *moduleValidator) validateDataSegment(seg DataSegment) error {
	if seg.Mode != ActiveDataMode {
		return nil
	}
	if int(seg.MemoryIndex) >= v.m.numMemories() {
		return fmt.Errorf("unknown memory %d", seg.MemoryIndex)
	}
	return v.validateConstExpression(seg.OffsetExpression, I32)
}

// controlFrame is the validator's record of one open block, loop, if, or else
// arm, plus the implicit frame of the whole function body.
type controlFrame struct {
	op         opcode
	startTypes []ValueType
	endTypes   []ValueType
	// height is the value stack depth just below the frame's operands.
	height int
	// unreachable is set after an instruction that never falls through, which
	// relaxes popping to allow any type until the frame ends.
	unreachable bool
}

// labelTypes returns the types a branch to this frame carries: the start
// types for a loop (branches go back to the top) and the end types otherwise.
func (f *controlFrame) labelTypes() []ValueType {
	if f.op == loop {
		return f.startTypes
	}
	return f.endTypes
}

// funcValidator abstractly interprets one lowered function body. The value
// stack tracks types rather than values; a nil entry is the unknown type that
// appears below unreachable code and unifies with anything.
type funcValidator struct {
	mv        *moduleValidator
	funcIndex int
	funcType  FunctionType
	locals    []ValueType

	vals  []ValueType
	ctrls []controlFrame
	pc    int
}

func (v *moduleValidator) validateFunction(funcIndex int, f *Function) error {
	ft := v.m.Types[f.TypeIndex]
	locals := make([]ValueType, 0, len(ft.ParamTypes)+len(f.Locals))
	locals = append(locals, ft.ParamTypes...)
	locals = append(locals, f.Locals...)

	fv := &funcValidator{
		mv:        v,
		funcIndex: funcIndex,
		funcType:  ft,
		locals:    locals,
	}
	fv.pushCtrl(block, nil, ft.ResultTypes)
	return fv.run(f.code)
}

func (fv *funcValidator) err(format string, args ...any) error {
	return funcErr(fv.funcIndex, fv.pc, format, args...)
}

func (fv *funcValidator) pushVal(t ValueType) {
	fv.vals = append(fv.vals, t)
}

func (fv *funcValidator) pushVals(types []ValueType) {
	fv.vals = append(fv.vals, types...)
}

// popVal removes the top value type. Inside unreachable code, popping past
// the frame height yields the unknown type instead of failing.
func (fv *funcValidator) popVal() (ValueType, error) {
	frame := &fv.ctrls[len(fv.ctrls)-1]
	if len(fv.vals) == frame.height {
		if frame.unreachable {
			return nil, nil
		}
		return nil, fv.err("type mismatch: expected a value on the stack")
	}
	t := fv.vals[len(fv.vals)-1]
	fv.vals = fv.vals[:len(fv.vals)-1]
	return t, nil
}

func (fv *funcValidator) popExpect(want ValueType) (ValueType, error) {
	got, err := fv.popVal()
	if err != nil {
		return nil, err
	}
	if got != nil && want != nil && got != want {
		return nil, fv.err(
			"type mismatch: expected %s, found %s",
			valueTypeName(want), valueTypeName(got),
		)
	}
	if got == nil {
		return want, nil
	}
	return got, nil
}

func (fv *funcValidator) popVals(types []ValueType) error {
	for i := len(types) - 1; i >= 0; i-- {
		if _, err := fv.popExpect(types[i]); err != nil {
			return err
		}
	}
	return nil
}

func (fv *funcValidator) pushCtrl(op opcode, in, out []ValueType) {
	fv.ctrls = append(fv.ctrls, controlFrame{
		op:         op,
		startTypes: in,
		endTypes:   out,
		height:     len(fv.vals),
	})
	fv.pushVals(in)
}

func (fv *funcValidator) popCtrl() (controlFrame, error) {
	frame := fv.ctrls[len(fv.ctrls)-1]
	if err := fv.popVals(frame.endTypes); err != nil {
		return controlFrame{}, err
	}
	if len(fv.vals) != frame.height {
		return controlFrame{}, fv.err("type mismatch: values remaining on stack at end of block")
	}
	fv.ctrls = fv.ctrls[:len(fv.ctrls)-1]
	return frame, nil
}

// markUnreachable records that the current position cannot be reached by
// falling through, discarding the frame's operands.
func (fv *funcValidator) markUnreachable() {
	frame := &fv.ctrls[len(fv.ctrls)-1]
	fv.vals = fv.vals[:frame.height]
	frame.unreachable = true
}

func (fv *funcValidator) frameAt(depth uint32) (*controlFrame, error) {
	if int(depth) >= len(fv.ctrls) {
		return nil, fv.err("unknown label %d", depth)
	}
	return &fv.ctrls[len(fv.ctrls)-1-int(depth)], nil
}

// blockTypeOf resolves a block type immediate: the empty marker, a single
// value type, or an index into the type section.
func (fv *funcValidator) blockTypeOf(raw uint64) (in, out []ValueType, err error) {
	bt := int64(raw)
	if bt == emptyBlockType {
		return nil, nil, nil
	}
	if bt < 0 {
		switch b := byte(bt & 0x7f); b {
		case byte(I32), byte(I64), byte(F32), byte(F64):
			return nil, []ValueType{NumberType(b)}, nil
		case byte(FuncRefType), byte(ExternRefType):
			return nil, []ValueType{ReferenceType(b)}, nil
		default:
			return nil, nil, fv.err("invalid block type %d", bt)
		}
	}
	if bt >= int64(len(fv.mv.m.Types)) {
		return nil, nil, fv.err("unknown type %d", bt)
	}
	ft := fv.mv.m.Types[bt]
	return ft.ParamTypes, ft.ResultTypes, nil
}

func isNumeric(t ValueType) bool {
	_, ok := t.(NumberType)
	return ok
}

func isReference(t ValueType) bool {
	_, ok := t.(ReferenceType)
	return ok
}

func (fv *funcValidator) run(code []uint64) error {
	m := fv.mv.m
	for fv.pc < len(code) {
		op := opcode(code[fv.pc])
		next := fv.pc + 1 + immediateSlots(op, code, fv.pc)

		switch op {
		case unreachable:
			fv.markUnreachable()
		case nop:

		case block, loop:
			in, out, err := fv.blockTypeOf(code[fv.pc+1])
			if err != nil {
				return err
			}
			if err := fv.popVals(in); err != nil {
				return err
			}
			fv.pushCtrl(op, in, out)

		case ifOp:
			in, out, err := fv.blockTypeOf(code[fv.pc+1])
			if err != nil {
				return err
			}
			if _, err := fv.popExpect(I32); err != nil {
				return err
			}
			if err := fv.popVals(in); err != nil {
				return err
			}
			fv.pushCtrl(op, in, out)

		case elseOp:
			frame, err := fv.popCtrl()
			if err != nil {
				return err
			}
			if frame.op != ifOp {
				return fv.err("else without matching if")
			}
			fv.pushCtrl(elseOp, frame.startTypes, frame.endTypes)

		case end:
			frame, err := fv.popCtrl()
			if err != nil {
				return err
			}
			if frame.op == ifOp && !typesEqual(frame.startTypes, frame.endTypes) {
				// A missing else arm is the identity, so the if must not
				// change the stack shape.
				return fv.err("type mismatch: if without else must have matching input and output")
			}
			fv.pushVals(frame.endTypes)

		case br:
			frame, err := fv.frameAt(uint32(code[fv.pc+1]))
			if err != nil {
				return err
			}
			if err := fv.popVals(frame.labelTypes()); err != nil {
				return err
			}
			fv.markUnreachable()

		case brIf:
			if _, err := fv.popExpect(I32); err != nil {
				return err
			}
			frame, err := fv.frameAt(uint32(code[fv.pc+1]))
			if err != nil {
				return err
			}
			labels := frame.labelTypes()
			if err := fv.popVals(labels); err != nil {
				return err
			}
			fv.pushVals(labels)

		case brTable:
			if err := fv.checkBrTable(code); err != nil {
				return err
			}
			fv.markUnreachable()

		case returnOp:
			if err := fv.popVals(fv.funcType.ResultTypes); err != nil {
				return err
			}
			fv.markUnreachable()

		case call:
			ft, ok := m.funcTypeAt(uint32(code[fv.pc+1]))
			if !ok {
				return fv.err("unknown function %d", uint32(code[fv.pc+1]))
			}
			if err := fv.popVals(ft.ParamTypes); err != nil {
				return err
			}
			fv.pushVals(ft.ResultTypes)

		case callIndirect:
			typeIndex := uint32(code[fv.pc+1])
			tableIndex := uint32(code[fv.pc+2])
			tt, ok := m.tableTypeAt(tableIndex)
			if !ok {
				return fv.err("unknown table %d", tableIndex)
			}
			if tt.ReferenceType != FuncRefType {
				return fv.err("indirect call through a table of %s", valueTypeName(tt.ReferenceType))
			}
			if int(typeIndex) >= len(m.Types) {
				return fv.err("unknown type %d", typeIndex)
			}
			if _, err := fv.popExpect(I32); err != nil {
				return err
			}
			ft := m.Types[typeIndex]
			if err := fv.popVals(ft.ParamTypes); err != nil {
				return err
			}
			fv.pushVals(ft.ResultTypes)

		case drop:
			if _, err := fv.popVal(); err != nil {
				return err
			}

		case selectOp:
			if _, err := fv.popExpect(I32); err != nil {
				return err
			}
			t1, err := fv.popVal()
			if err != nil {
				return err
			}
			t2, err := fv.popVal()
			if err != nil {
				return err
			}
			if (t1 != nil && !isNumeric(t1)) || (t2 != nil && !isNumeric(t2)) {
				return fv.err("type mismatch: select requires numeric operands")
			}
			if t1 != nil && t2 != nil && t1 != t2 {
				return fv.err(
					"type mismatch: select operands are %s and %s",
					valueTypeName(t1), valueTypeName(t2),
				)
			}
			if t1 != nil {
				fv.pushVal(t1)
			} else {
				fv.pushVal(t2)
			}

		case selectT:
			t, err := decodeLoweredValueType(code[fv.pc+2])
			if err != nil {
				return fv.err("%v", err)
			}
			if _, err := fv.popExpect(I32); err != nil {
				return err
			}
			if _, err := fv.popExpect(t); err != nil {
				return err
			}
			if _, err := fv.popExpect(t); err != nil {
				return err
			}
			fv.pushVal(t)

		case localGet, localSet, localTee:
			index := uint32(code[fv.pc+1])
			if int(index) >= len(fv.locals) {
				return fv.err("unknown local %d", index)
			}
			t := fv.locals[index]
			switch op {
			case localGet:
				fv.pushVal(t)
			case localSet:
				if _, err := fv.popExpect(t); err != nil {
					return err
				}
			case localTee:
				if _, err := fv.popExpect(t); err != nil {
					return err
				}
				fv.pushVal(t)
			}

		case globalGet, globalSet:
			index := uint32(code[fv.pc+1])
			gt, ok := m.globalTypeAt(index)
			if !ok {
				return fv.err("unknown global %d", index)
			}
			if op == globalGet {
				fv.pushVal(gt.ValueType)
			} else {
				if !gt.IsMutable {
					return fv.err("global %d is immutable", index)
				}
				if _, err := fv.popExpect(gt.ValueType); err != nil {
					return err
				}
			}

		case tableGet, tableSet:
			index := uint32(code[fv.pc+1])
			tt, ok := m.tableTypeAt(index)
			if !ok {
				return fv.err("unknown table %d", index)
			}
			if op == tableGet {
				if _, err := fv.popExpect(I32); err != nil {
					return err
				}
				fv.pushVal(tt.ReferenceType)
			} else {
				if _, err := fv.popExpect(tt.ReferenceType); err != nil {
					return err
				}
				if _, err := fv.popExpect(I32); err != nil {
					return err
				}
			}

		case i32Load, i64Load, f32Load, f64Load,
			i32Load8S, i32Load8U, i32Load16S, i32Load16U,
			i64Load8S, i64Load8U, i64Load16S, i64Load16U,
			i64Load32S, i64Load32U,
			i32Store, i64Store, f32Store, f64Store,
			i32Store8, i32Store16, i64Store8, i64Store16, i64Store32:
			if err := fv.checkMemAccess(op, code); err != nil {
				return err
			}

		case memorySize, memoryGrow:
			if err := fv.checkMemIndex(uint32(code[fv.pc+1])); err != nil {
				return err
			}
			if op == memoryGrow {
				if _, err := fv.popExpect(I32); err != nil {
					return err
				}
			}
			fv.pushVal(I32)

		case i32Const:
			fv.pushVal(I32)
		case i64Const:
			fv.pushVal(I64)
		case f32Const:
			fv.pushVal(F32)
		case f64Const:
			fv.pushVal(F64)

		case i32Eqz:
			if err := fv.testOp(I32); err != nil {
				return err
			}
		case i64Eqz:
			if err := fv.testOp(I64); err != nil {
				return err
			}

		case i32Eq, i32Ne, i32LtS, i32LtU, i32GtS, i32GtU,
			i32LeS, i32LeU, i32GeS, i32GeU:
			if err := fv.relOp(I32); err != nil {
				return err
			}
		case i64Eq, i64Ne, i64LtS, i64LtU, i64GtS, i64GtU,
			i64LeS, i64LeU, i64GeS, i64GeU:
			if err := fv.relOp(I64); err != nil {
				return err
			}
		case f32Eq, f32Ne, f32Lt, f32Gt, f32Le, f32Ge:
			if err := fv.relOp(F32); err != nil {
				return err
			}
		case f64Eq, f64Ne, f64Lt, f64Gt, f64Le, f64Ge:
			if err := fv.relOp(F64); err != nil {
				return err
			}

		case i32Clz, i32Ctz, i32Popcnt, i32Extend8S, i32Extend16S:
			if err := fv.unOp(I32); err != nil {
				return err
			}
		case i64Clz, i64Ctz, i64Popcnt, i64Extend8S, i64Extend16S, i64Extend32S:
			if err := fv.unOp(I64); err != nil {
				return err
			}
		case f32Abs, f32Neg, f32Ceil, f32Floor, f32Trunc, f32Nearest, f32Sqrt:
			if err := fv.unOp(F32); err != nil {
				return err
			}
		case f64Abs, f64Neg, f64Ceil, f64Floor, f64Trunc, f64Nearest, f64Sqrt:
			if err := fv.unOp(F64); err != nil {
				return err
			}

		case i32Add, i32Sub, i32Mul, i32DivS, i32DivU, i32RemS, i32RemU,
			i32And, i32Or, i32Xor, i32Shl, i32ShrS, i32ShrU, i32Rotl, i32Rotr:
			if err := fv.binOp(I32); err != nil {
				return err
			}
		case i64Add, i64Sub, i64Mul, i64DivS, i64DivU, i64RemS, i64RemU,
			i64And, i64Or, i64Xor, i64Shl, i64ShrS, i64ShrU, i64Rotl, i64Rotr:
			if err := fv.binOp(I64); err != nil {
				return err
			}
		case f32Add, f32Sub, f32Mul, f32Div, f32Min, f32Max, f32Copysign:
			if err := fv.binOp(F32); err != nil {
				return err
			}
		case f64Add, f64Sub, f64Mul, f64Div, f64Min, f64Max, f64Copysign:
			if err := fv.binOp(F64); err != nil {
				return err
			}

		case i32WrapI64:
			if err := fv.cvtOp(I64, I32); err != nil {
				return err
			}
		case i32TruncF32S, i32TruncF32U, i32TruncSatF32S, i32TruncSatF32U,
			i32ReinterpretF32:
			if err := fv.cvtOp(F32, I32); err != nil {
				return err
			}
		case i32TruncF64S, i32TruncF64U, i32TruncSatF64S, i32TruncSatF64U:
			if err := fv.cvtOp(F64, I32); err != nil {
				return err
			}
		case i64ExtendI32S, i64ExtendI32U:
			if err := fv.cvtOp(I32, I64); err != nil {
				return err
			}
		case i64TruncF32S, i64TruncF32U, i64TruncSatF32S, i64TruncSatF32U:
			if err := fv.cvtOp(F32, I64); err != nil {
				return err
			}
		case i64TruncF64S, i64TruncF64U, i64TruncSatF64S, i64TruncSatF64U,
			i64ReinterpretF64:
			if err := fv.cvtOp(F64, I64); err != nil {
				return err
			}
		case f32ConvertI32S, f32ConvertI32U, f32ReinterpretI32:
			if err := fv.cvtOp(I32, F32); err != nil {
				return err
			}
		case f32ConvertI64S, f32ConvertI64U:
			if err := fv.cvtOp(I64, F32); err != nil {
				return err
			}
		case f32DemoteF64:
			if err := fv.cvtOp(F64, F32); err != nil {
				return err
			}
		case f64ConvertI32S, f64ConvertI32U:
			if err := fv.cvtOp(I32, F64); err != nil {
				return err
			}
		case f64ConvertI64S, f64ConvertI64U, f64ReinterpretI64:
			if err := fv.cvtOp(I64, F64); err != nil {
				return err
			}
		case f64PromoteF32:
			if err := fv.cvtOp(F32, F64); err != nil {
				return err
			}

		case refNull:
			fv.pushVal(ReferenceType(code[fv.pc+1]))
		case refIsNull:
			t, err := fv.popVal()
			if err != nil {
				return err
			}
			if t != nil && !isReference(t) {
				return fv.err("type mismatch: ref.is_null on %s", valueTypeName(t))
			}
			fv.pushVal(I32)
		case refFunc:
			index := uint32(code[fv.pc+1])
			if int(index) >= m.numFuncs() {
				return fv.err("unknown function %d", index)
			}
			if !fv.mv.declaredFuncs[index] {
				return fv.err("undeclared function reference %d", index)
			}
			fv.pushVal(FuncRefType)

		case memoryInit:
			if err := fv.checkDataIndex(uint32(code[fv.pc+1])); err != nil {
				return err
			}
			if err := fv.checkMemIndex(uint32(code[fv.pc+2])); err != nil {
				return err
			}
			if err := fv.popVals([]ValueType{I32, I32, I32}); err != nil {
				return err
			}
		case dataDrop:
			if err := fv.checkDataIndex(uint32(code[fv.pc+1])); err != nil {
				return err
			}
		case memoryCopy:
			if err := fv.checkMemIndex(uint32(code[fv.pc+1])); err != nil {
				return err
			}
			if err := fv.checkMemIndex(uint32(code[fv.pc+2])); err != nil {
				return err
			}
			if err := fv.popVals([]ValueType{I32, I32, I32}); err != nil {
				return err
			}
		case memoryFill:
			if err := fv.checkMemIndex(uint32(code[fv.pc+1])); err != nil {
				return err
			}
			if err := fv.popVals([]ValueType{I32, I32, I32}); err != nil {
				return err
			}

		case tableInit:
			elemIndex := uint32(code[fv.pc+1])
			tableIndex := uint32(code[fv.pc+2])
			if int(elemIndex) >= len(m.ElementSegments) {
				return fv.err("unknown element segment %d", elemIndex)
			}
			tt, ok := m.tableTypeAt(tableIndex)
			if !ok {
				return fv.err("unknown table %d", tableIndex)
			}
			if m.ElementSegments[elemIndex].Kind != tt.ReferenceType {
				return fv.err("element segment type does not match table type")
			}
			if err := fv.popVals([]ValueType{I32, I32, I32}); err != nil {
				return err
			}
		case elemDrop:
			if int(uint32(code[fv.pc+1])) >= len(m.ElementSegments) {
				return fv.err("unknown element segment %d", uint32(code[fv.pc+1]))
			}
		case tableCopy:
			dst, okDst := m.tableTypeAt(uint32(code[fv.pc+1]))
			src, okSrc := m.tableTypeAt(uint32(code[fv.pc+2]))
			if !okDst || !okSrc {
				return fv.err("unknown table")
			}
			if dst.ReferenceType != src.ReferenceType {
				return fv.err("table types do not match")
			}
			if err := fv.popVals([]ValueType{I32, I32, I32}); err != nil {
				return err
			}
		case tableGrow:
			tt, ok := m.tableTypeAt(uint32(code[fv.pc+1]))
			if !ok {
				return fv.err("unknown table %d", uint32(code[fv.pc+1]))
			}
			if _, err := fv.popExpect(I32); err != nil {
				return err
			}
			if _, err := fv.popExpect(tt.ReferenceType); err != nil {
				return err
			}
			fv.pushVal(I32)
		case tableSize:
			if _, ok := m.tableTypeAt(uint32(code[fv.pc+1])); !ok {
				return fv.err("unknown table %d", uint32(code[fv.pc+1]))
			}
			fv.pushVal(I32)
		case tableFill:
			tt, ok := m.tableTypeAt(uint32(code[fv.pc+1]))
			if !ok {
				return fv.err("unknown table %d", uint32(code[fv.pc+1]))
			}
			if _, err := fv.popExpect(I32); err != nil {
				return err
			}
			if _, err := fv.popExpect(tt.ReferenceType); err != nil {
				return err
			}
			if _, err := fv.popExpect(I32); err != nil {
				return err
			}

		default:
			return fv.err("illegal opcode 0x%x", uint32(op))
		}

		fv.pc = next
	}

	// The implicit function frame remains; falling off the end must leave
	// exactly the declared results.
	if len(fv.ctrls) != 1 {
		return fv.err("control frames left open at end of function")
	}
	if _, err := fv.popCtrl(); err != nil {
		return err
	}
	if len(fv.vals) != 0 {
		return fv.err("type mismatch: values remaining on stack at end of function")
	}
	return nil
}

func (fv *funcValidator) checkBrTable(code []uint64) error {
	if _, err := fv.popExpect(I32); err != nil {
		return err
	}
	count := int(code[fv.pc+1])
	defaultFrame, err := fv.frameAt(uint32(code[fv.pc+2+count]))
	if err != nil {
		return err
	}
	defaultLabels := defaultFrame.labelTypes()
	for i := range count {
		frame, err := fv.frameAt(uint32(code[fv.pc+2+i]))
		if err != nil {
			return err
		}
		labels := frame.labelTypes()
		if len(labels) != len(defaultLabels) {
			return fv.err("br_table targets have inconsistent arities")
		}
		// Pop and push back so every target sees the same stack shape.
		popped := make([]ValueType, len(labels))
		for j := len(labels) - 1; j >= 0; j-- {
			t, err := fv.popExpect(labels[j])
			if err != nil {
				return err
			}
			popped[j] = t
		}
		fv.pushVals(popped)
	}
	return fv.popVals(defaultLabels)
}

func (fv *funcValidator) checkMemAccess(op opcode, code []uint64) error {
	align := uint32(code[fv.pc+1])
	if err := fv.checkMemIndex(uint32(code[fv.pc+2])); err != nil {
		return err
	}
	width, valueType, isStore := memAccessShape(op)
	if 1<<align > width {
		return fv.err("alignment must not be larger than natural")
	}
	if isStore {
		if _, err := fv.popExpect(valueType); err != nil {
			return err
		}
		_, err := fv.popExpect(I32)
		return err
	}
	if _, err := fv.popExpect(I32); err != nil {
		return err
	}
	fv.pushVal(valueType)
	return nil
}

// memAccessShape returns the access width in bytes, the wasm value type
// involved, and whether the opcode is a store.
func memAccessShape(op opcode) (width uint32, t ValueType, isStore bool) {
	switch op {
	case i32Load8S, i32Load8U:
		return 1, I32, false
	case i32Load16S, i32Load16U:
		return 2, I32, false
	case i32Load:
		return 4, I32, false
	case i64Load8S, i64Load8U:
		return 1, I64, false
	case i64Load16S, i64Load16U:
		return 2, I64, false
	case i64Load32S, i64Load32U:
		return 4, I64, false
	case i64Load:
		return 8, I64, false
	case f32Load:
		return 4, F32, false
	case f64Load:
		return 8, F64, false
	case i32Store8:
		return 1, I32, true
	case i32Store16:
		return 2, I32, true
	case i32Store:
		return 4, I32, true
	case i64Store8:
		return 1, I64, true
	case i64Store16:
		return 2, I64, true
	case i64Store32:
		return 4, I64, true
	case i64Store:
		return 8, I64, true
	case f32Store:
		return 4, F32, true
	case f64Store:
		return 8, F64, true
	default:
		panic("not a memory access opcode")
	}
}

func (fv *funcValidator) checkMemIndex(index uint32) error {
	if int(index) >= fv.mv.m.numMemories() {
		return fv.err("unknown memory %d", index)
	}
	return nil
}

func (fv *funcValidator) checkDataIndex(index uint32) error {
	if fv.mv.m.DataCount == nil {
		return fv.err("data count section required")
	}
	if int(index) >= len(fv.mv.m.DataSegments) {
		return fv.err("unknown data segment %d", index)
	}
	return nil
}

func (fv *funcValidator) testOp(t ValueType) error {
	if _, err := fv.popExpect(t); err != nil {
		return err
	}
	fv.pushVal(I32)
	return nil
}

func (fv *funcValidator) relOp(t ValueType) error {
	if _, err := fv.popExpect(t); err != nil {
		return err
	}
	return fv.testOp(t)
}

func (fv *funcValidator) unOp(t ValueType) error {
	if _, err := fv.popExpect(t); err != nil {
		return err
	}
	fv.pushVal(t)
	return nil
}

func (fv *funcValidator) binOp(t ValueType) error {
	if _, err := fv.popExpect(t); err != nil {
		return err
	}
	return fv.unOp(t)
}

func (fv *funcValidator) cvtOp(from, to ValueType) error {
	if _, err := fv.popExpect(from); err != nil {
		return err
	}
	fv.pushVal(to)
	return nil
}

func decodeLoweredValueType(raw uint64) (ValueType, error) {
	switch b := byte(raw); b {
	case byte(I32), byte(I64), byte(F32), byte(F64):
		return NumberType(b), nil
	case byte(FuncRefType), byte(ExternRefType):
		return ReferenceType(b), nil
	default:
		return nil, fmt.Errorf("invalid value type 0x%x", b)
	}
}

func typesEqual(a, b []ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// immediateSlots returns how many slots follow the opcode in the lowered
// stream. Both the validator and the interpreter's skip paths rely on it.
func immediateSlots(op opcode, code []uint64, pc int) int {
	switch op {
	case block, loop:
		return 2
	case ifOp:
		return 3
	case brTable:
		return 2 + int(code[pc+1])
	case callIndirect, memoryInit, memoryCopy, tableInit, tableCopy:
		return 2
	case selectT:
		return 2
	case i32Load, i64Load, f32Load, f64Load,
		i32Load8S, i32Load8U, i32Load16S, i32Load16U,
		i64Load8S, i64Load8U, i64Load16S, i64Load16U,
		i64Load32S, i64Load32U,
		i32Store, i64Store, f32Store, f64Store,
		i32Store8, i32Store16, i64Store8, i64Store16, i64Store32:
		return 3
	case br, brIf, call, localGet, localSet, localTee,
		globalGet, globalSet, tableGet, tableSet,
		memorySize, memoryGrow, memoryFill,
		i32Const, i64Const, f32Const, f64Const,
		refNull, refFunc, dataDrop, elemDrop,
		tableGrow, tableSize, tableFill:
		return 1
	default:
		return 0
	}
}
