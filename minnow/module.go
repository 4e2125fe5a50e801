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

// ExternKind distinguishes the four kinds of imports and exports.
type ExternKind byte

const (
	FunctionKind ExternKind = 0x0
	TableKind    ExternKind = 0x1
	MemoryKind   ExternKind = 0x2
	GlobalKind   ExternKind = 0x3
)

func (k ExternKind) String() string {
	switch k {
	case FunctionKind:
		return "function"
	case TableKind:
		return "table"
	case MemoryKind:
		return "memory"
	case GlobalKind:
		return "global"
	default:
		return "unknown"
	}
}

// Function is one module-defined function: its signature (by type index), its
// declared locals, and its body.
//
// The wire-format body is kept verbatim in Body so the module can be
// re-encoded; code is the lowered form the interpreter executes, produced
// during decoding. In the lowered stream every opcode and every immediate
// occupies one uint64 slot, and structured-control immediates carry
// pre-resolved jump targets so branches never scan for a matching end at run
// time.
type Function struct {
	TypeIndex uint32
	Locals    []ValueType
	Body      []byte

	code []uint64
}

// Import declares a dependency on an external function, table, memory, or
// global. Exactly one of the typed fields is meaningful, selected by Kind.
// See https://webassembly.github.io/spec/core/syntax/modules.html#imports
type Import struct {
	ModuleName string
	Name       string
	Kind       ExternKind

	FuncTypeIndex uint32
	TableType     TableType
	MemoryType    MemoryType
	GlobalType    GlobalType
}

// Export makes a module-level definition accessible to the host once the
// module has been instantiated.
// See https://webassembly.github.io/spec/core/syntax/modules.html#exports
type Export struct {
	Name  string
	Kind  ExternKind
	Index uint32
}

// ElementMode specifies how an element segment is applied.
type ElementMode int

const (
	ActiveElementMode ElementMode = iota
	PassiveElementMode
	DeclarativeElementMode
)

// ElementSegment initializes a range of a table with function references, or
// holds passive items for table.init.
// See https://webassembly.github.io/spec/core/syntax/modules.html#syntax-elem
type ElementSegment struct {
	Mode ElementMode
	Kind ReferenceType

	// FuncIndexes lists function indices. Empty when the items were written
	// as expressions.
	FuncIndexes []uint32

	// ItemExpressions holds one lowered constant expression per item. Empty
	// when the items were written as plain indices.
	ItemExpressions [][]uint64

	// TableIndex and OffsetExpression are meaningful only in active mode.
	TableIndex       uint32
	OffsetExpression []uint64
}

// DataMode specifies how a data segment is applied.
type DataMode int

const (
	ActiveDataMode DataMode = iota
	PassiveDataMode
)

// DataSegment initializes a range of a memory with bytes, or holds passive
// content for memory.init.
// See https://webassembly.github.io/spec/core/syntax/modules.html#data-segments
type DataSegment struct {
	Mode    DataMode
	Content []byte

	// MemoryIndex and OffsetExpression are meaningful only in active mode.
	MemoryIndex      uint32
	OffsetExpression []uint64
}

// GlobalVariable declares a module-defined global together with its lowered
// initializer expression.
type GlobalVariable struct {
	GlobalType     GlobalType
	InitExpression []uint64
}

// CustomSection is an uninterpreted named section retained from the binary.
type CustomSection struct {
	Name string
	Data []byte
}

// Module is the immutable, fully decoded description of a WebAssembly
// module. It is produced once by DecodeModule, optionally marked valid by
// ValidateModule, and never mutated afterwards, so one Module may back any
// number of instantiations concurrently.
// See https://webassembly.github.io/spec/core/syntax/modules.html#modules
type Module struct {
	Types           []FunctionType
	Imports         []Import
	Exports         []Export
	StartIndex      *uint32
	Tables          []TableType
	Memories        []MemoryType
	Funcs           []Function
	ElementSegments []ElementSegment
	GlobalVariables []GlobalVariable
	DataSegments    []DataSegment
	DataCount       *uint32
	CustomSections  []CustomSection

	// features records the feature set the module was decoded under, so
	// validation applies the same gating.
	features Features
	// validated is set once ValidateModule succeeds.
	validated bool
}

// numImportsOfKind counts imports of the given kind, which prefix the
// corresponding index space.
func (m *Module) numImportsOfKind(kind ExternKind) int {
	n := 0
	for _, imp := range m.Imports {
		if imp.Kind == kind {
			n++
		}
	}
	return n
}

// funcTypeAt resolves the type of a function index, spanning imported and
// module-defined functions. ok is false when the index is out of bounds.
func (m *Module) funcTypeAt(index uint32) (FunctionType, bool) {
	i := int(index)
	for _, imp := range m.Imports {
		if imp.Kind != FunctionKind {
			continue
		}
		if i == 0 {
			return m.Types[imp.FuncTypeIndex], true
		}
		i--
	}
	if i >= len(m.Funcs) {
		return FunctionType{}, false
	}
	return m.Types[m.Funcs[i].TypeIndex], true
}

// tableTypeAt resolves a table index across imported and declared tables.
func (m *Module) tableTypeAt(index uint32) (TableType, bool) {
	i := int(index)
	for _, imp := range m.Imports {
		if imp.Kind != TableKind {
			continue
		}
		if i == 0 {
			return imp.TableType, true
		}
		i--
	}
	if i >= len(m.Tables) {
		return TableType{}, false
	}
	return m.Tables[i], true
}

// globalTypeAt resolves a global index across imported and declared globals.
func (m *Module) globalTypeAt(index uint32) (GlobalType, bool) {
	i := int(index)
	for _, imp := range m.Imports {
		if imp.Kind != GlobalKind {
			continue
		}
		if i == 0 {
			return imp.GlobalType, true
		}
		i--
	}
	if i >= len(m.GlobalVariables) {
		return GlobalType{}, false
	}
	return m.GlobalVariables[i].GlobalType, true
}

func (m *Module) numMemories() int {
	return m.numImportsOfKind(MemoryKind) + len(m.Memories)
}

func (m *Module) numTables() int {
	return m.numImportsOfKind(TableKind) + len(m.Tables)
}

func (m *Module) numFuncs() int {
	return m.numImportsOfKind(FunctionKind) + len(m.Funcs)
}

func (m *Module) numGlobals() int {
	return m.numImportsOfKind(GlobalKind) + len(m.GlobalVariables)
}
