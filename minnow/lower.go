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

// Lowered code layout. Each opcode and each immediate occupies one uint64
// slot. Structured control carries pre-resolved jump targets so branches are
// O(1) at run time instead of scanning for a matching end:
//
//	block/loop  -> op, blockType, continuation
//	if          -> op, blockType, continuation, elseTarget
//	br/br_if    -> op, labelIndex
//	br_table    -> op, count, target..., defaultTarget
//
// The continuation slot holds the pc one past the matching end for blocks
// and ifs; loops branch back to the pc of their first body instruction.
// elseTarget is the pc one past the else opcode, or the pc of the end opcode
// when the if has no else arm, so the false branch still runs the frame-
// popping end. The terminating end of the expression itself is stripped; the
// caller treats pc == len(code) as fall-off-the-end.

// openBlock tracks an unresolved structured-control instruction while
// lowering, so its jump-target slots can be patched when the matching else or
// end is found.
type openBlock struct {
	op               opcode
	continuationSlot int
	elseSlot         int
	sawElse          bool
}

// lowerExpression consumes one expression (up to and including its
// terminating end) from r and returns the lowered code.
func (d *moduleDecoder) lowerExpression(r *byteReader) ([]uint64, error) {
	var code []uint64
	var open []openBlock

	emit := func(slots ...uint64) {
		code = append(code, slots...)
	}

	for {
		op, err := d.readOpcode(r)
		if err != nil {
			return nil, err
		}

		switch op {
		case end:
			if len(open) == 0 {
				return code, nil
			}
			emit(uint64(end))
			top := open[len(open)-1]
			open = open[:len(open)-1]
			code[top.continuationSlot] = uint64(len(code))
			if top.op == ifOp && !top.sawElse {
				// Without an else arm the false branch jumps to the end
				// opcode itself, which pops the frame.
				code[top.elseSlot] = uint64(len(code) - 1)
			}

		case block, loop, ifOp:
			blockType, err := r.readS33()
			if err != nil {
				return nil, err
			}
			if blockType >= 0 && !d.cfg.Features.Has(FeatureMultiValue) {
				return nil, errors.New("type-index block types require multi-value")
			}
			if blockType < 0 && blockType != emptyBlockType {
				if !isValidValueTypeCode(byte(blockType&0x7f), d.cfg.Features) {
					return nil, fmt.Errorf("invalid block type %d", blockType)
				}
			}
			emit(uint64(op), uint64(blockType))
			b := openBlock{op: op, continuationSlot: len(code)}
			emit(0) // continuation, patched at end
			if op == loop {
				code[b.continuationSlot] = uint64(len(code))
			}
			if op == ifOp {
				b.elseSlot = len(code)
				emit(0) // else target, patched at else or end
			}
			open = append(open, b)

		case elseOp:
			if len(open) == 0 || open[len(open)-1].op != ifOp ||
				open[len(open)-1].sawElse {
				return nil, errors.New("else found outside of if block")
			}
			emit(uint64(elseOp))
			open[len(open)-1].sawElse = true
			code[open[len(open)-1].elseSlot] = uint64(len(code))

		case br, brIf, call, localGet, localSet, localTee,
			globalGet, globalSet, tableGet, tableSet, refFunc, dataDrop,
			elemDrop, tableGrow, tableSize, tableFill:
			index, err := r.readU32()
			if err != nil {
				return nil, err
			}
			emit(uint64(op), uint64(index))

		case brTable:
			count, err := r.readU32()
			if err != nil {
				return nil, err
			}
			if int(count) > r.remaining() {
				return nil, errors.New("branch table length exceeds input")
			}
			emit(uint64(op), uint64(count))
			for range count + 1 {
				target, err := r.readU32()
				if err != nil {
					return nil, err
				}
				emit(uint64(target))
			}

		case callIndirect:
			typeIndex, err := r.readU32()
			if err != nil {
				return nil, err
			}
			tableIndex, err := r.readU32()
			if err != nil {
				return nil, err
			}
			if tableIndex != 0 && !d.cfg.Features.Has(FeatureReferenceTypes) {
				return nil, errors.New("non-zero table index requires reference types")
			}
			emit(uint64(op), uint64(typeIndex), uint64(tableIndex))

		case selectT:
			count, err := r.readU32()
			if err != nil {
				return nil, err
			}
			if count != 1 {
				return nil, errors.New("select with more than one type")
			}
			valueType, err := d.decodeValueType(r)
			if err != nil {
				return nil, err
			}
			emit(uint64(op), uint64(count), uint64(valueTypeCode(valueType)))

		case i32Load, i64Load, f32Load, f64Load,
			i32Load8S, i32Load8U, i32Load16S, i32Load16U,
			i64Load8S, i64Load8U, i64Load16S, i64Load16U,
			i64Load32S, i64Load32U,
			i32Store, i64Store, f32Store, f64Store,
			i32Store8, i32Store16, i64Store8, i64Store16, i64Store32:
			align, memIndex, offset, err := d.readMemArg(r)
			if err != nil {
				return nil, err
			}
			emit(uint64(op), uint64(align), uint64(memIndex), uint64(offset))

		case memorySize, memoryGrow, memoryFill:
			memIndex, err := d.readMemIndex(r)
			if err != nil {
				return nil, err
			}
			emit(uint64(op), uint64(memIndex))

		case memoryInit:
			dataIndex, err := r.readU32()
			if err != nil {
				return nil, err
			}
			memIndex, err := d.readMemIndex(r)
			if err != nil {
				return nil, err
			}
			emit(uint64(op), uint64(dataIndex), uint64(memIndex))

		case memoryCopy:
			destIndex, err := d.readMemIndex(r)
			if err != nil {
				return nil, err
			}
			srcIndex, err := d.readMemIndex(r)
			if err != nil {
				return nil, err
			}
			emit(uint64(op), uint64(destIndex), uint64(srcIndex))

		case tableInit:
			elemIndex, err := r.readU32()
			if err != nil {
				return nil, err
			}
			tableIndex, err := r.readU32()
			if err != nil {
				return nil, err
			}
			emit(uint64(op), uint64(elemIndex), uint64(tableIndex))

		case tableCopy:
			destIndex, err := r.readU32()
			if err != nil {
				return nil, err
			}
			srcIndex, err := r.readU32()
			if err != nil {
				return nil, err
			}
			emit(uint64(op), uint64(destIndex), uint64(srcIndex))

		case i32Const:
			v, err := r.readS32()
			if err != nil {
				return nil, err
			}
			emit(uint64(op), uint64(uint32(v)))

		case i64Const:
			v, err := r.readS64()
			if err != nil {
				return nil, err
			}
			emit(uint64(op), uint64(v))

		case f32Const:
			bits, err := r.readF32bits()
			if err != nil {
				return nil, err
			}
			emit(uint64(op), uint64(bits))

		case f64Const:
			bits, err := r.readF64bits()
			if err != nil {
				return nil, err
			}
			emit(uint64(op), bits)

		case refNull:
			refType, err := d.decodeReferenceType(r)
			if err != nil {
				return nil, err
			}
			emit(uint64(op), uint64(refType))

		default:
			emit(uint64(op))
		}
	}
}

// readMemArg reads the alignment/offset immediate pair of a load or store.
// Bit 6 of the alignment flags a following explicit memory index.
func (d *moduleDecoder) readMemArg(r *byteReader) (align, memIndex, offset uint32, err error) {
	align, err = r.readU32()
	if err != nil {
		return 0, 0, 0, err
	}
	memIndex = defaultMemoryIdx
	if align&(1<<6) != 0 {
		if !d.cfg.Features.Has(FeatureMultipleMemories) {
			return 0, 0, 0, errors.New("explicit memory index requires multiple memories")
		}
		align &^= 1 << 6
		memIndex, err = r.readU32()
		if err != nil {
			return 0, 0, 0, err
		}
	}
	if align >= 32 {
		return 0, 0, 0, errors.New("malformed memop alignment")
	}
	offset, err = r.readU32()
	if err != nil {
		return 0, 0, 0, err
	}
	return align, memIndex, offset, nil
}

// readMemIndex reads the memory index of memory.size, memory.grow, memory.fill
// and the bulk copy/init family. It must be the single byte 0x00 unless
// multiple memories are enabled.
func (d *moduleDecoder) readMemIndex(r *byteReader) (uint32, error) {
	index, err := r.readU32()
	if err != nil {
		return 0, err
	}
	if index != 0 && !d.cfg.Features.Has(FeatureMultipleMemories) {
		return 0, errors.New("zero byte expected")
	}
	return index, nil
}

// readOpcode reads one wire opcode, folding the 0xFC prefix, and applies
// feature gating.
func (d *moduleDecoder) readOpcode(r *byteReader) (opcode, error) {
	b, err := r.readByte()
	if err != nil {
		return 0, err
	}
	var op opcode
	if b == miscPrefix {
		sub, err := r.readU32()
		if err != nil {
			return 0, err
		}
		op = opcode(uint32(miscPrefix)<<8 | sub)
	} else {
		op = opcode(b)
	}
	if !isKnownOpcode(op) {
		return 0, fmt.Errorf("illegal opcode 0x%x", uint32(op))
	}
	if required := op.requiredFeatures(); !d.cfg.Features.Has(required) {
		return 0, fmt.Errorf("opcode 0x%x requires a disabled feature", uint32(op))
	}
	return op, nil
}

func isKnownOpcode(op opcode) bool {
	switch {
	case op <= callIndirect:
		switch op {
		case unreachable, nop, block, loop, ifOp, elseOp, end,
			br, brIf, brTable, returnOp, call, callIndirect:
			return true
		}
		return false
	case op >= drop && op <= selectT:
		return true
	case op >= localGet && op <= tableSet && op != 0x27:
		return true
	case op >= i32Load && op <= i64Extend32S:
		return true
	case op >= refNull && op <= refFunc:
		return true
	case op >= i32TruncSatF32S && op <= tableFill:
		return true
	default:
		return false
	}
}

func isValidValueTypeCode(b byte, features Features) bool {
	switch b {
	case byte(I32), byte(I64), byte(F32), byte(F64):
		return true
	case byte(FuncRefType), byte(ExternRefType):
		return features.Has(FeatureReferenceTypes)
	default:
		return false
	}
}

// valueTypeCode returns the wire byte for a value type.
func valueTypeCode(t ValueType) byte {
	switch t := t.(type) {
	case NumberType:
		return byte(t)
	case ReferenceType:
		return byte(t)
	default:
		panic("unreachable")
	}
}
