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
)

const (
	wasmMagic        = "\x00asm"
	wasmVersion      = 1
	emptyBlockType   = -0x40
	maxMemoryPages   = 65536
	defaultTableIdx  = 0
	defaultMemoryIdx = 0
)

// sectionID identifies the sections of a module.
// See https://webassembly.github.io/spec/core/binary/modules.html#sections
type sectionID byte

const (
	customSectionID sectionID = iota
	typeSectionID
	importSectionID
	functionSectionID
	tableSectionID
	memorySectionID
	globalSectionID
	exportSectionID
	startSectionID
	elementSectionID
	codeSectionID
	dataSectionID
	dataCountSectionID
)

func (s sectionID) String() string {
	names := [...]string{
		"custom", "type", "import", "function", "table", "memory", "global",
		"export", "start", "element", "code", "data", "data count",
	}
	if int(s) < len(names) {
		return names[s]
	}
	return "unknown"
}

// moduleDecoder carries the state of one DecodeModule call.
type moduleDecoder struct {
	r        *byteReader
	cfg      Config
	module   *Module
	funcSigs []uint32
}

// DecodeModule turns a binary module into its structured description.
// Function bodies are lowered into the interpreter's flat code form, with
// every opcode checked against the enabled feature set, but no semantic
// validation happens here; call ValidateModule before instantiating.
// Failures are reported as *MalformedError.
func DecodeModule(data []byte, cfg Config) (*Module, error) {
	d := &moduleDecoder{
		r:      newByteReader(data),
		cfg:    cfg,
		module: &Module{features: cfg.Features},
	}
	if err := d.decode(); err != nil {
		return nil, err
	}
	return d.module, nil
}

func (d *moduleDecoder) malformed(section sectionID, r *byteReader, err error) error {
	name := ""
	if section != customSectionID || r != d.r {
		name = section.String()
	}
	return &MalformedError{Offset: r.offset(), Section: name, Err: err}
}

func (d *moduleDecoder) decode() error {
	if err := d.decodeHeader(); err != nil {
		return err
	}

	lastSection := customSectionID
	for d.r.hasMore() {
		idByte, err := d.r.readByte()
		if err != nil {
			return d.malformed(customSectionID, d.r, err)
		}
		id := sectionID(idByte)
		if id > dataCountSectionID {
			return d.malformed(id, d.r, fmt.Errorf("unknown section id %d", idByte))
		}
		size, err := d.r.readU32()
		if err != nil {
			return d.malformed(id, d.r, err)
		}
		payload, err := d.r.sub(int(size))
		if err != nil {
			return d.malformed(id, d.r, errors.New("section size exceeds input"))
		}

		if id != customSectionID {
			if id <= lastSection {
				return d.malformed(id, payload, errors.New("unexpected section order"))
			}
			lastSection = id
		}

		if err := d.decodeSection(id, payload); err != nil {
			return err
		}
		if payload.hasMore() {
			return d.malformed(id, payload, errors.New("section size mismatch"))
		}
	}

	if d.module.DataCount != nil &&
		int(*d.module.DataCount) != len(d.module.DataSegments) {
		return d.malformed(dataSectionID, d.r, errors.New("data count mismatch"))
	}
	if len(d.funcSigs) != len(d.module.Funcs) {
		return d.malformed(codeSectionID, d.r,
			errors.New("function and code section have inconsistent lengths"))
	}
	for i := range d.module.Funcs {
		d.module.Funcs[i].TypeIndex = d.funcSigs[i]
	}
	return nil
}

func (d *moduleDecoder) decodeHeader() error {
	header, err := d.r.readBytes(8)
	if err != nil {
		return d.malformed(customSectionID, d.r, errors.New("input too short to be a module"))
	}
	if string(header[:4]) != wasmMagic {
		return d.malformed(customSectionID, d.r, errors.New("bad magic number"))
	}
	version := uint32(header[4]) | uint32(header[5])<<8 |
		uint32(header[6])<<16 | uint32(header[7])<<24
	if version != wasmVersion {
		return d.malformed(customSectionID, d.r,
			fmt.Errorf("unsupported version %d", version))
	}
	return nil
}

func (d *moduleDecoder) decodeSection(id sectionID, r *byteReader) error {
	var err error
	m := d.module
	switch id {
	case customSectionID:
		err = d.decodeCustomSection(r)
	case typeSectionID:
		m.Types, err = decodeVector(d, id, r, d.decodeFunctionType)
	case importSectionID:
		m.Imports, err = decodeVector(d, id, r, d.decodeImport)
	case functionSectionID:
		d.funcSigs, err = decodeVector(d, id, r, func(r *byteReader) (uint32, error) {
			return r.readU32()
		})
	case tableSectionID:
		m.Tables, err = decodeVector(d, id, r, d.decodeTableType)
	case memorySectionID:
		m.Memories, err = decodeVector(d, id, r, d.decodeMemoryType)
	case globalSectionID:
		m.GlobalVariables, err = decodeVector(d, id, r, d.decodeGlobalVariable)
	case exportSectionID:
		m.Exports, err = decodeVector(d, id, r, d.decodeExport)
	case startSectionID:
		var index uint32
		index, err = r.readU32()
		m.StartIndex = &index
	case elementSectionID:
		m.ElementSegments, err = decodeVector(d, id, r, d.decodeElementSegment)
	case codeSectionID:
		m.Funcs, err = decodeVector(d, id, r, d.decodeCode)
	case dataSectionID:
		m.DataSegments, err = decodeVector(d, id, r, d.decodeDataSegment)
	case dataCountSectionID:
		if !d.cfg.Features.Has(FeatureBulkMemory) {
			return d.malformed(id, r, errors.New("data count section requires bulk memory"))
		}
		var count uint32
		count, err = r.readU32()
		m.DataCount = &count
	}
	if err != nil {
		var malformed *MalformedError
		if errors.As(err, &malformed) {
			return err
		}
		return d.malformed(id, r, err)
	}
	return nil
}

func decodeVector[T any](
	d *moduleDecoder,
	id sectionID,
	r *byteReader,
	decodeOne func(*byteReader) (T, error),
) ([]T, error) {
	count, err := r.readU32()
	if err != nil {
		return nil, err
	}
	if int(count) > r.remaining() {
		return nil, errors.New("vector length exceeds section size")
	}
	items := make([]T, count)
	for i := range items {
		items[i], err = decodeOne(r)
		if err != nil {
			var malformed *MalformedError
			if errors.As(err, &malformed) {
				return nil, err
			}
			return nil, d.malformed(id, r, err)
		}
	}
	return items, nil
}

func (d *moduleDecoder) decodeCustomSection(r *byteReader) error {
	name, err := r.readName()
	if err != nil {
		return err
	}
	data, err := r.readBytes(r.remaining())
	if err != nil {
		return err
	}
	if d.cfg.KeepCustomSections {
		d.module.CustomSections = append(d.module.CustomSections, CustomSection{
			Name: name,
			Data: data,
		})
	}
	return nil
}

func (d *moduleDecoder) decodeFunctionType(r *byteReader) (FunctionType, error) {
	prefix, err := r.readByte()
	if err != nil {
		return FunctionType{}, err
	}
	if prefix != 0x60 {
		return FunctionType{}, fmt.Errorf("invalid function type prefix 0x%x", prefix)
	}
	params, err := d.decodeValueTypes(r)
	if err != nil {
		return FunctionType{}, err
	}
	results, err := d.decodeValueTypes(r)
	if err != nil {
		return FunctionType{}, err
	}
	return FunctionType{ParamTypes: params, ResultTypes: results}, nil
}

func (d *moduleDecoder) decodeValueTypes(r *byteReader) ([]ValueType, error) {
	count, err := r.readU32()
	if err != nil {
		return nil, err
	}
	if int(count) > r.remaining() {
		return nil, errors.New("vector length exceeds section size")
	}
	types := make([]ValueType, count)
	for i := range types {
		types[i], err = d.decodeValueType(r)
		if err != nil {
			return nil, err
		}
	}
	return types, nil
}

func (d *moduleDecoder) decodeValueType(r *byteReader) (ValueType, error) {
	b, err := r.readByte()
	if err != nil {
		return nil, err
	}
	switch b {
	case byte(I32), byte(I64), byte(F32), byte(F64):
		return NumberType(b), nil
	case byte(FuncRefType), byte(ExternRefType):
		if !d.cfg.Features.Has(FeatureReferenceTypes) {
			return nil, errors.New("reference types are not enabled")
		}
		return ReferenceType(b), nil
	default:
		return nil, fmt.Errorf("invalid value type 0x%x", b)
	}
}

func (d *moduleDecoder) decodeReferenceType(r *byteReader) (ReferenceType, error) {
	b, err := r.readByte()
	if err != nil {
		return 0, err
	}
	switch b {
	case byte(FuncRefType):
		return FuncRefType, nil
	case byte(ExternRefType):
		if !d.cfg.Features.Has(FeatureReferenceTypes) {
			return 0, errors.New("reference types are not enabled")
		}
		return ExternRefType, nil
	default:
		return 0, fmt.Errorf("invalid reference type 0x%x", b)
	}
}

func (d *moduleDecoder) decodeLimits(r *byteReader) (Limits, error) {
	flag, err := r.readByte()
	if err != nil {
		return Limits{}, err
	}
	switch flag {
	case 0:
		minSize, err := r.readU32()
		if err != nil {
			return Limits{}, err
		}
		return Limits{Min: minSize}, nil
	case 1:
		minSize, err := r.readU32()
		if err != nil {
			return Limits{}, err
		}
		maxSize, err := r.readU32()
		if err != nil {
			return Limits{}, err
		}
		return Limits{Min: minSize, Max: &maxSize}, nil
	default:
		return Limits{}, fmt.Errorf("invalid limits flag 0x%x", flag)
	}
}

func (d *moduleDecoder) decodeTableType(r *byteReader) (TableType, error) {
	refType, err := d.decodeReferenceType(r)
	if err != nil {
		return TableType{}, err
	}
	limits, err := d.decodeLimits(r)
	if err != nil {
		return TableType{}, err
	}
	return TableType{ReferenceType: refType, Limits: limits}, nil
}

func (d *moduleDecoder) decodeMemoryType(r *byteReader) (MemoryType, error) {
	limits, err := d.decodeLimits(r)
	if err != nil {
		return MemoryType{}, err
	}
	return MemoryType{Limits: limits}, nil
}

func (d *moduleDecoder) decodeGlobalType(r *byteReader) (GlobalType, error) {
	valueType, err := d.decodeValueType(r)
	if err != nil {
		return GlobalType{}, err
	}
	mutability, err := r.readByte()
	if err != nil {
		return GlobalType{}, err
	}
	if mutability > 1 {
		return GlobalType{}, fmt.Errorf("invalid mutability 0x%x", mutability)
	}
	return GlobalType{ValueType: valueType, IsMutable: mutability == 1}, nil
}

func (d *moduleDecoder) decodeGlobalVariable(r *byteReader) (GlobalVariable, error) {
	globalType, err := d.decodeGlobalType(r)
	if err != nil {
		return GlobalVariable{}, err
	}
	init, err := d.lowerExpression(r)
	if err != nil {
		return GlobalVariable{}, err
	}
	return GlobalVariable{GlobalType: globalType, InitExpression: init}, nil
}

func (d *moduleDecoder) decodeImport(r *byteReader) (Import, error) {
	moduleName, err := r.readName()
	if err != nil {
		return Import{}, err
	}
	name, err := r.readName()
	if err != nil {
		return Import{}, err
	}
	kind, err := r.readByte()
	if err != nil {
		return Import{}, err
	}
	imp := Import{ModuleName: moduleName, Name: name, Kind: ExternKind(kind)}
	switch ExternKind(kind) {
	case FunctionKind:
		imp.FuncTypeIndex, err = r.readU32()
	case TableKind:
		imp.TableType, err = d.decodeTableType(r)
	case MemoryKind:
		imp.MemoryType, err = d.decodeMemoryType(r)
	case GlobalKind:
		imp.GlobalType, err = d.decodeGlobalType(r)
	default:
		err = fmt.Errorf("invalid import kind 0x%x", kind)
	}
	return imp, err
}

func (d *moduleDecoder) decodeExport(r *byteReader) (Export, error) {
	name, err := r.readName()
	if err != nil {
		return Export{}, err
	}
	kind, err := r.readByte()
	if err != nil {
		return Export{}, err
	}
	if ExternKind(kind) > GlobalKind {
		return Export{}, fmt.Errorf("invalid export kind 0x%x", kind)
	}
	index, err := r.readU32()
	if err != nil {
		return Export{}, err
	}
	return Export{Name: name, Kind: ExternKind(kind), Index: index}, nil
}

func (d *moduleDecoder) decodeCode(r *byteReader) (Function, error) {
	size, err := r.readU32()
	if err != nil {
		return Function{}, err
	}
	body, err := r.sub(int(size))
	if err != nil {
		return Function{}, errors.New("function body size exceeds section")
	}

	groupCount, err := body.readU32()
	if err != nil {
		return Function{}, err
	}
	var locals []ValueType
	total := uint64(0)
	for range groupCount {
		n, err := body.readU32()
		if err != nil {
			return Function{}, err
		}
		valueType, err := d.decodeValueType(body)
		if err != nil {
			return Function{}, err
		}
		total += uint64(n)
		if total > math.MaxInt32 {
			return Function{}, errors.New("too many locals")
		}
		for range n {
			locals = append(locals, valueType)
		}
	}

	exprStart := body.pos
	code, err := d.lowerExpression(body)
	if err != nil {
		return Function{}, err
	}
	if body.hasMore() {
		return Function{}, errors.New("function body size mismatch")
	}
	return Function{
		Locals: locals,
		Body:   body.data[exprStart:],
		code:   code,
	}, nil
}

func (d *moduleDecoder) decodeDataSegment(r *byteReader) (DataSegment, error) {
	flags, err := r.readU32()
	if err != nil {
		return DataSegment{}, err
	}
	if flags > 2 {
		return DataSegment{}, fmt.Errorf("invalid data segment flags %d", flags)
	}
	if flags == 1 {
		if !d.cfg.Features.Has(FeatureBulkMemory) {
			return DataSegment{}, errors.New("passive data segments require bulk memory")
		}
		content, err := d.readByteVector(r)
		if err != nil {
			return DataSegment{}, err
		}
		return DataSegment{Mode: PassiveDataMode, Content: content}, nil
	}

	memoryIndex := uint32(defaultMemoryIdx)
	if flags == 2 {
		memoryIndex, err = r.readU32()
		if err != nil {
			return DataSegment{}, err
		}
	}
	offset, err := d.lowerExpression(r)
	if err != nil {
		return DataSegment{}, err
	}
	content, err := d.readByteVector(r)
	if err != nil {
		return DataSegment{}, err
	}
	return DataSegment{
		Mode:             ActiveDataMode,
		MemoryIndex:      memoryIndex,
		OffsetExpression: offset,
		Content:          content,
	}, nil
}

func (d *moduleDecoder) readByteVector(r *byteReader) ([]byte, error) {
	length, err := r.readU32()
	if err != nil {
		return nil, err
	}
	return r.readBytes(int(length))
}

func (d *moduleDecoder) decodeElementSegment(r *byteReader) (ElementSegment, error) {
	flags, err := r.readU32()
	if err != nil {
		return ElementSegment{}, err
	}
	if flags > 7 {
		return ElementSegment{}, fmt.Errorf("invalid element segment flags %d", flags)
	}
	if flags != 0 && !d.cfg.Features.Has(FeatureBulkMemory) {
		return ElementSegment{}, errors.New("element segment flags require bulk memory")
	}

	seg := ElementSegment{Kind: FuncRefType, TableIndex: defaultTableIdx}
	switch flags & 0b11 {
	case 0b00:
		seg.Mode = ActiveElementMode
	case 0b10:
		seg.Mode = ActiveElementMode
		seg.TableIndex, err = r.readU32()
		if err != nil {
			return ElementSegment{}, err
		}
	case 0b01:
		seg.Mode = PassiveElementMode
	case 0b11:
		seg.Mode = DeclarativeElementMode
	}

	if seg.Mode == ActiveElementMode {
		seg.OffsetExpression, err = d.lowerExpression(r)
		if err != nil {
			return ElementSegment{}, err
		}
	}

	// Flags with bit 2 set carry expressions; the others carry plain function
	// indices. Both spell out an element kind or reference type except in the
	// shortest active form.
	hasExpressions := flags&0b100 != 0
	if flags != 0 && flags != 4 {
		if hasExpressions {
			seg.Kind, err = d.decodeReferenceType(r)
			if err != nil {
				return ElementSegment{}, err
			}
		} else {
			elemKind, err := r.readByte()
			if err != nil {
				return ElementSegment{}, err
			}
			if elemKind != 0x00 {
				return ElementSegment{}, fmt.Errorf("invalid element kind 0x%x", elemKind)
			}
		}
	}

	if hasExpressions {
		seg.ItemExpressions, err = decodeVector(d, elementSectionID, r, d.lowerExpression)
		if err != nil {
			return ElementSegment{}, err
		}
	} else {
		seg.FuncIndexes, err = decodeVector(d, elementSectionID, r,
			func(r *byteReader) (uint32, error) { return r.readU32() })
		if err != nil {
			return ElementSegment{}, err
		}
	}
	return seg, nil
}
