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

// opcode identifies one instruction in the lowered code stream. Single-byte
// wire opcodes keep their byte value; instructions behind the 0xFC prefix are
// folded into one value as 0xFC00|subopcode so the dispatch loop switches on
// a single slot.
type opcode uint32

const (
	unreachable opcode = 0x00
	nop         opcode = 0x01
	block       opcode = 0x02
	loop        opcode = 0x03
	ifOp        opcode = 0x04
	elseOp      opcode = 0x05
	end         opcode = 0x0b
	br          opcode = 0x0c
	brIf        opcode = 0x0d
	brTable     opcode = 0x0e
	returnOp    opcode = 0x0f
	call        opcode = 0x10
	callIndirect opcode = 0x11

	drop     opcode = 0x1a
	selectOp opcode = 0x1b
	selectT  opcode = 0x1c

	localGet  opcode = 0x20
	localSet  opcode = 0x21
	localTee  opcode = 0x22
	globalGet opcode = 0x23
	globalSet opcode = 0x24
	tableGet  opcode = 0x25
	tableSet  opcode = 0x26

	i32Load    opcode = 0x28
	i64Load    opcode = 0x29
	f32Load    opcode = 0x2a
	f64Load    opcode = 0x2b
	i32Load8S  opcode = 0x2c
	i32Load8U  opcode = 0x2d
	i32Load16S opcode = 0x2e
	i32Load16U opcode = 0x2f
	i64Load8S  opcode = 0x30
	i64Load8U  opcode = 0x31
	i64Load16S opcode = 0x32
	i64Load16U opcode = 0x33
	i64Load32S opcode = 0x34
	i64Load32U opcode = 0x35
	i32Store   opcode = 0x36
	i64Store   opcode = 0x37
	f32Store   opcode = 0x38
	f64Store   opcode = 0x39
	i32Store8  opcode = 0x3a
	i32Store16 opcode = 0x3b
	i64Store8  opcode = 0x3c
	i64Store16 opcode = 0x3d
	i64Store32 opcode = 0x3e
	memorySize opcode = 0x3f
	memoryGrow opcode = 0x40

	i32Const opcode = 0x41
	i64Const opcode = 0x42
	f32Const opcode = 0x43
	f64Const opcode = 0x44

	i32Eqz opcode = 0x45
	i32Eq  opcode = 0x46
	i32Ne  opcode = 0x47
	i32LtS opcode = 0x48
	i32LtU opcode = 0x49
	i32GtS opcode = 0x4a
	i32GtU opcode = 0x4b
	i32LeS opcode = 0x4c
	i32LeU opcode = 0x4d
	i32GeS opcode = 0x4e
	i32GeU opcode = 0x4f
	i64Eqz opcode = 0x50
	i64Eq  opcode = 0x51
	i64Ne  opcode = 0x52
	i64LtS opcode = 0x53
	i64LtU opcode = 0x54
	i64GtS opcode = 0x55
	i64GtU opcode = 0x56
	i64LeS opcode = 0x57
	i64LeU opcode = 0x58
	i64GeS opcode = 0x59
	i64GeU opcode = 0x5a
	f32Eq  opcode = 0x5b
	f32Ne  opcode = 0x5c
	f32Lt  opcode = 0x5d
	f32Gt  opcode = 0x5e
	f32Le  opcode = 0x5f
	f32Ge  opcode = 0x60
	f64Eq  opcode = 0x61
	f64Ne  opcode = 0x62
	f64Lt  opcode = 0x63
	f64Gt  opcode = 0x64
	f64Le  opcode = 0x65
	f64Ge  opcode = 0x66

	i32Clz    opcode = 0x67
	i32Ctz    opcode = 0x68
	i32Popcnt opcode = 0x69
	i32Add    opcode = 0x6a
	i32Sub    opcode = 0x6b
	i32Mul    opcode = 0x6c
	i32DivS   opcode = 0x6d
	i32DivU   opcode = 0x6e
	i32RemS   opcode = 0x6f
	i32RemU   opcode = 0x70
	i32And    opcode = 0x71
	i32Or     opcode = 0x72
	i32Xor    opcode = 0x73
	i32Shl    opcode = 0x74
	i32ShrS   opcode = 0x75
	i32ShrU   opcode = 0x76
	i32Rotl   opcode = 0x77
	i32Rotr   opcode = 0x78
	i64Clz    opcode = 0x79
	i64Ctz    opcode = 0x7a
	i64Popcnt opcode = 0x7b
	i64Add    opcode = 0x7c
	i64Sub    opcode = 0x7d
	i64Mul    opcode = 0x7e
	i64DivS   opcode = 0x7f
	i64DivU   opcode = 0x80
	i64RemS   opcode = 0x81
	i64RemU   opcode = 0x82
	i64And    opcode = 0x83
	i64Or     opcode = 0x84
	i64Xor    opcode = 0x85
	i64Shl    opcode = 0x86
	i64ShrS   opcode = 0x87
	i64ShrU   opcode = 0x88
	i64Rotl   opcode = 0x89
	i64Rotr   opcode = 0x8a

	f32Abs      opcode = 0x8b
	f32Neg      opcode = 0x8c
	f32Ceil     opcode = 0x8d
	f32Floor    opcode = 0x8e
	f32Trunc    opcode = 0x8f
	f32Nearest  opcode = 0x90
	f32Sqrt     opcode = 0x91
	f32Add      opcode = 0x92
	f32Sub      opcode = 0x93
	f32Mul      opcode = 0x94
	f32Div      opcode = 0x95
	f32Min      opcode = 0x96
	f32Max      opcode = 0x97
	f32Copysign opcode = 0x98
	f64Abs      opcode = 0x99
	f64Neg      opcode = 0x9a
	f64Ceil     opcode = 0x9b
	f64Floor    opcode = 0x9c
	f64Trunc    opcode = 0x9d
	f64Nearest  opcode = 0x9e
	f64Sqrt     opcode = 0x9f
	f64Add      opcode = 0xa0
	f64Sub      opcode = 0xa1
	f64Mul      opcode = 0xa2
	f64Div      opcode = 0xa3
	f64Min      opcode = 0xa4
	f64Max      opcode = 0xa5
	f64Copysign opcode = 0xa6

	i32WrapI64        opcode = 0xa7
	i32TruncF32S      opcode = 0xa8
	i32TruncF32U      opcode = 0xa9
	i32TruncF64S      opcode = 0xaa
	i32TruncF64U      opcode = 0xab
	i64ExtendI32S     opcode = 0xac
	i64ExtendI32U     opcode = 0xad
	i64TruncF32S      opcode = 0xae
	i64TruncF32U      opcode = 0xaf
	i64TruncF64S      opcode = 0xb0
	i64TruncF64U      opcode = 0xb1
	f32ConvertI32S    opcode = 0xb2
	f32ConvertI32U    opcode = 0xb3
	f32ConvertI64S    opcode = 0xb4
	f32ConvertI64U    opcode = 0xb5
	f32DemoteF64      opcode = 0xb6
	f64ConvertI32S    opcode = 0xb7
	f64ConvertI32U    opcode = 0xb8
	f64ConvertI64S    opcode = 0xb9
	f64ConvertI64U    opcode = 0xba
	f64PromoteF32     opcode = 0xbb
	i32ReinterpretF32 opcode = 0xbc
	i64ReinterpretF64 opcode = 0xbd
	f32ReinterpretI32 opcode = 0xbe
	f64ReinterpretI64 opcode = 0xbf

	i32Extend8S  opcode = 0xc0
	i32Extend16S opcode = 0xc1
	i64Extend8S  opcode = 0xc2
	i64Extend16S opcode = 0xc3
	i64Extend32S opcode = 0xc4

	refNull   opcode = 0xd0
	refIsNull opcode = 0xd1
	refFunc   opcode = 0xd2
)

// miscPrefix introduces the two-byte instruction family (saturating
// truncation and bulk memory operations).
const miscPrefix byte = 0xfc

const (
	i32TruncSatF32S opcode = 0xfc00
	i32TruncSatF32U opcode = 0xfc01
	i32TruncSatF64S opcode = 0xfc02
	i32TruncSatF64U opcode = 0xfc03
	i64TruncSatF32S opcode = 0xfc04
	i64TruncSatF32U opcode = 0xfc05
	i64TruncSatF64S opcode = 0xfc06
	i64TruncSatF64U opcode = 0xfc07
	memoryInit      opcode = 0xfc08
	dataDrop        opcode = 0xfc09
	memoryCopy      opcode = 0xfc0a
	memoryFill      opcode = 0xfc0b
	tableInit       opcode = 0xfc0c
	elemDrop        opcode = 0xfc0d
	tableCopy       opcode = 0xfc0e
	tableGrow       opcode = 0xfc0f
	tableSize       opcode = 0xfc10
	tableFill       opcode = 0xfc11
)

// requiredFeatures returns the feature flags that must be enabled for the
// opcode to be accepted, or 0 for core instructions.
func (op opcode) requiredFeatures() Features {
	switch op {
	case i32Extend8S, i32Extend16S, i64Extend8S, i64Extend16S, i64Extend32S:
		return FeatureSignExtension
	case i32TruncSatF32S, i32TruncSatF32U, i32TruncSatF64S, i32TruncSatF64U,
		i64TruncSatF32S, i64TruncSatF32U, i64TruncSatF64S, i64TruncSatF64U:
		return FeatureSaturatingTrunc
	case memoryInit, dataDrop, memoryCopy, memoryFill,
		tableInit, elemDrop, tableCopy, tableFill:
		return FeatureBulkMemory
	case refNull, refIsNull, refFunc, selectT,
		tableGet, tableSet, tableGrow, tableSize:
		return FeatureReferenceTypes
	default:
		return 0
	}
}
