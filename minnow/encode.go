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
	"bytes"
	"encoding/binary"
)

// EncodeModule serializes a module back to the binary format. For a module
// produced by DecodeModule the result decodes to an equivalent module;
// function bodies are emitted verbatim from the decoded bytes. Custom
// sections are appended after the data section regardless of where they
// originally appeared.
func EncodeModule(m *Module) []byte {
	var out bytes.Buffer
	out.WriteString(wasmMagic)
	out.Write([]byte{wasmVersion, 0, 0, 0})

	e := &moduleEncoder{}

	if len(m.Types) > 0 {
		e.section(&out, typeSectionID, func(buf *bytes.Buffer) {
			writeU32(buf, uint32(len(m.Types)))
			for _, ft := range m.Types {
				e.functionType(buf, ft)
			}
		})
	}
	if len(m.Imports) > 0 {
		e.section(&out, importSectionID, func(buf *bytes.Buffer) {
			writeU32(buf, uint32(len(m.Imports)))
			for _, imp := range m.Imports {
				e.imp(buf, imp)
			}
		})
	}
	if len(m.Funcs) > 0 {
		e.section(&out, functionSectionID, func(buf *bytes.Buffer) {
			writeU32(buf, uint32(len(m.Funcs)))
			for _, f := range m.Funcs {
				writeU32(buf, f.TypeIndex)
			}
		})
	}
	if len(m.Tables) > 0 {
		e.section(&out, tableSectionID, func(buf *bytes.Buffer) {
			writeU32(buf, uint32(len(m.Tables)))
			for _, tt := range m.Tables {
				e.tableType(buf, tt)
			}
		})
	}
	if len(m.Memories) > 0 {
		e.section(&out, memorySectionID, func(buf *bytes.Buffer) {
			writeU32(buf, uint32(len(m.Memories)))
			for _, mt := range m.Memories {
				e.limits(buf, mt.Limits)
			}
		})
	}
	if len(m.GlobalVariables) > 0 {
		e.section(&out, globalSectionID, func(buf *bytes.Buffer) {
			writeU32(buf, uint32(len(m.GlobalVariables)))
			for _, g := range m.GlobalVariables {
				e.globalType(buf, g.GlobalType)
				e.constExpr(buf, g.InitExpression)
			}
		})
	}
	if len(m.Exports) > 0 {
		e.section(&out, exportSectionID, func(buf *bytes.Buffer) {
			writeU32(buf, uint32(len(m.Exports)))
			for _, exp := range m.Exports {
				writeName(buf, exp.Name)
				buf.WriteByte(byte(exp.Kind))
				writeU32(buf, exp.Index)
			}
		})
	}
	if m.StartIndex != nil {
		e.section(&out, startSectionID, func(buf *bytes.Buffer) {
			writeU32(buf, *m.StartIndex)
		})
	}
	if len(m.ElementSegments) > 0 {
		e.section(&out, elementSectionID, func(buf *bytes.Buffer) {
			writeU32(buf, uint32(len(m.ElementSegments)))
			for _, seg := range m.ElementSegments {
				e.elementSegment(buf, seg)
			}
		})
	}
	if m.DataCount != nil {
		e.section(&out, dataCountSectionID, func(buf *bytes.Buffer) {
			writeU32(buf, *m.DataCount)
		})
	}
	if len(m.Funcs) > 0 {
		e.section(&out, codeSectionID, func(buf *bytes.Buffer) {
			writeU32(buf, uint32(len(m.Funcs)))
			for i := range m.Funcs {
				e.code(buf, &m.Funcs[i])
			}
		})
	}
	if len(m.DataSegments) > 0 {
		e.section(&out, dataSectionID, func(buf *bytes.Buffer) {
			writeU32(buf, uint32(len(m.DataSegments)))
			for _, seg := range m.DataSegments {
				e.dataSegment(buf, seg)
			}
		})
	}
	for _, cs := range m.CustomSections {
		e.section(&out, customSectionID, func(buf *bytes.Buffer) {
			writeName(buf, cs.Name)
			buf.Write(cs.Data)
		})
	}
	return out.Bytes()
}

type moduleEncoder struct {
	scratch bytes.Buffer
}

// section writes one size-prefixed section, building the payload in a
// scratch buffer first.
func (e *moduleEncoder) section(out *bytes.Buffer, id sectionID, fill func(*bytes.Buffer)) {
	e.scratch.Reset()
	fill(&e.scratch)
	out.WriteByte(byte(id))
	writeU32(out, uint32(e.scratch.Len()))
	out.Write(e.scratch.Bytes())
}

func (e *moduleEncoder) functionType(buf *bytes.Buffer, ft FunctionType) {
	buf.WriteByte(0x60)
	writeU32(buf, uint32(len(ft.ParamTypes)))
	for _, t := range ft.ParamTypes {
		buf.WriteByte(valueTypeCode(t))
	}
	writeU32(buf, uint32(len(ft.ResultTypes)))
	for _, t := range ft.ResultTypes {
		buf.WriteByte(valueTypeCode(t))
	}
}

func (e *moduleEncoder) limits(buf *bytes.Buffer, l Limits) {
	if l.Max == nil {
		buf.WriteByte(0)
		writeU32(buf, l.Min)
		return
	}
	buf.WriteByte(1)
	writeU32(buf, l.Min)
	writeU32(buf, *l.Max)
}

func (e *moduleEncoder) tableType(buf *bytes.Buffer, tt TableType) {
	buf.WriteByte(byte(tt.ReferenceType))
	e.limits(buf, tt.Limits)
}

func (e *moduleEncoder) globalType(buf *bytes.Buffer, gt GlobalType) {
	buf.WriteByte(valueTypeCode(gt.ValueType))
	if gt.IsMutable {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}

func (e *moduleEncoder) imp(buf *bytes.Buffer, imp Import) {
	writeName(buf, imp.ModuleName)
	writeName(buf, imp.Name)
	buf.WriteByte(byte(imp.Kind))
	switch imp.Kind {
	case FunctionKind:
		writeU32(buf, imp.FuncTypeIndex)
	case TableKind:
		e.tableType(buf, imp.TableType)
	case MemoryKind:
		e.limits(buf, imp.MemoryType.Limits)
	case GlobalKind:
		e.globalType(buf, imp.GlobalType)
	}
}

// constExpr re-encodes a lowered initializer expression, which is always a
// single constant instruction plus end.
func (e *moduleEncoder) constExpr(buf *bytes.Buffer, expr []uint64) {
	op := opcode(expr[0])
	switch op {
	case i32Const:
		buf.WriteByte(byte(op))
		writeS64(buf, int64(int32(uint32(expr[1]))))
	case i64Const:
		buf.WriteByte(byte(op))
		writeS64(buf, int64(expr[1]))
	case f32Const:
		buf.WriteByte(byte(op))
		var raw [4]byte
		binary.LittleEndian.PutUint32(raw[:], uint32(expr[1]))
		buf.Write(raw[:])
	case f64Const:
		buf.WriteByte(byte(op))
		var raw [8]byte
		binary.LittleEndian.PutUint64(raw[:], expr[1])
		buf.Write(raw[:])
	case globalGet, refFunc:
		buf.WriteByte(byte(op))
		writeU32(buf, uint32(expr[1]))
	case refNull:
		buf.WriteByte(byte(op))
		buf.WriteByte(byte(expr[1]))
	}
	buf.WriteByte(byte(end))
}

func (e *moduleEncoder) code(buf *bytes.Buffer, f *Function) {
	var body bytes.Buffer
	runs := localRuns(f.Locals)
	writeU32(&body, uint32(len(runs)))
	for _, run := range runs {
		writeU32(&body, run.count)
		body.WriteByte(valueTypeCode(run.typ))
	}
	body.Write(f.Body)

	writeU32(buf, uint32(body.Len()))
	buf.Write(body.Bytes())
}

type localRun struct {
	count uint32
	typ   ValueType
}

// localRuns compresses the flattened locals back into (count, type) groups.
func localRuns(locals []ValueType) []localRun {
	var runs []localRun
	for _, t := range locals {
		if len(runs) > 0 && runs[len(runs)-1].typ == t {
			runs[len(runs)-1].count++
			continue
		}
		runs = append(runs, localRun{count: 1, typ: t})
	}
	return runs
}

func (e *moduleEncoder) elementSegment(buf *bytes.Buffer, seg ElementSegment) {
	useExprs := len(seg.ItemExpressions) > 0 || len(seg.FuncIndexes) == 0 && seg.Kind != FuncRefType

	var flags uint32
	switch seg.Mode {
	case ActiveElementMode:
		if seg.TableIndex != 0 {
			flags = 2
		}
	case PassiveElementMode:
		flags = 1
	case DeclarativeElementMode:
		flags = 3
	}
	if useExprs {
		flags |= 4
	}
	writeU32(buf, flags)

	if seg.Mode == ActiveElementMode && seg.TableIndex != 0 {
		writeU32(buf, seg.TableIndex)
	}
	if seg.Mode == ActiveElementMode {
		e.constExpr(buf, seg.OffsetExpression)
	}
	if flags != 0 && flags != 4 {
		if useExprs {
			buf.WriteByte(byte(seg.Kind))
		} else {
			buf.WriteByte(0x00) // elemkind: funcref
		}
	}
	if useExprs {
		writeU32(buf, uint32(len(seg.ItemExpressions)))
		for _, expr := range seg.ItemExpressions {
			e.constExpr(buf, expr)
		}
	} else {
		writeU32(buf, uint32(len(seg.FuncIndexes)))
		for _, idx := range seg.FuncIndexes {
			writeU32(buf, idx)
		}
	}
}

func (e *moduleEncoder) dataSegment(buf *bytes.Buffer, seg DataSegment) {
	switch {
	case seg.Mode == PassiveDataMode:
		writeU32(buf, 1)
	case seg.MemoryIndex != 0:
		writeU32(buf, 2)
		writeU32(buf, seg.MemoryIndex)
		e.constExpr(buf, seg.OffsetExpression)
	default:
		writeU32(buf, 0)
		e.constExpr(buf, seg.OffsetExpression)
	}
	writeU32(buf, uint32(len(seg.Content)))
	buf.Write(seg.Content)
}

func writeU32(buf *bytes.Buffer, v uint32) {
	writeUnsigned(buf, uint64(v))
}

func writeUnsigned(buf *bytes.Buffer, v uint64) {
	for {
		b := byte(v & payloadMask)
		v >>= 7
		if v != 0 {
			b |= continuationBit
		}
		buf.WriteByte(b)
		if v == 0 {
			return
		}
	}
}

func writeS64(buf *bytes.Buffer, v int64) {
	for {
		b := byte(v & payloadMask)
		v >>= 7
		if (v == 0 && b&signBit == 0) || (v == -1 && b&signBit != 0) {
			buf.WriteByte(b)
			return
		}
		buf.WriteByte(b | continuationBit)
	}
}

func writeName(buf *bytes.Buffer, name string) {
	writeU32(buf, uint32(len(name)))
	buf.WriteString(name)
}
