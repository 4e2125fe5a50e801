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

import "fmt"

// instantiate allocates a validated module into the store and runs its
// initialization: import resolution, memory/table allocation, global
// initializer evaluation in declaration order, element and data segment
// application, and finally the start function.
//
// A trap during segment application or the start function aborts
// instantiation without rollback: store entries already written stay
// written, and the caller must discard the instance. This mirrors the
// standard's behavior of partially applied active segments.
func instantiate(
	store *Store,
	interp *interpreter,
	m *Module,
	name string,
	imports *Imports,
	cfg Config,
	lookupFallback func(module, name string) (any, bool),
) (*Instance, error) {
	if !m.validated {
		if err := ValidateModule(m); err != nil {
			return nil, err
		}
	}
	if imports == nil {
		imports = NewImports()
	}
	resolved, err := resolveImports(m, imports, lookupFallback)
	if err != nil {
		return nil, err
	}

	inst := &Instance{
		name:    name,
		module:  m,
		store:   store,
		interp:  interp,
		exports: make(map[string]Export, len(m.Exports)),
	}
	for _, exp := range m.Exports {
		inst.exports[exp.Name] = exp
	}

	// Functions first: global initializers and element segments may take
	// references to them via ref.func, which needs their store addresses.
	for _, fi := range resolved.funcs {
		inst.funcAddrs = append(inst.funcAddrs, storeAppend(&store.funcs, fi))
	}
	for i := range m.Funcs {
		f := &m.Funcs[i]
		wf := &wasmFunction{typ: m.Types[f.TypeIndex], fn: f, inst: inst}
		inst.funcAddrs = append(inst.funcAddrs, storeAppend(&store.funcs, FunctionInstance(wf)))
	}

	for _, table := range resolved.tables {
		inst.tableAddrs = append(inst.tableAddrs, storeAppend(&store.tables, table))
	}
	for _, tt := range m.Tables {
		inst.tableAddrs = append(inst.tableAddrs,
			storeAppend(&store.tables, newTable(tt, cfg.MaxTableEntries)))
	}

	for _, mem := range resolved.memories {
		inst.memAddrs = append(inst.memAddrs, storeAppend(&store.memories, mem))
	}
	for _, mt := range m.Memories {
		inst.memAddrs = append(inst.memAddrs,
			storeAppend(&store.memories, newMemory(mt, cfg.MaxMemoryPages)))
	}

	// Globals evaluate strictly in declaration order; an initializer may read
	// imported globals, which are all registered by now.
	for _, g := range resolved.globals {
		inst.globalAddrs = append(inst.globalAddrs, storeAppend(&store.globals, g))
	}
	for _, g := range m.GlobalVariables {
		bits := inst.evalConstExpr(g.InitExpression)
		inst.globalAddrs = append(inst.globalAddrs,
			storeAppend(&store.globals, &Global{Type: g.GlobalType, bits: bits}))
	}

	for _, seg := range m.ElementSegments {
		refs := inst.resolveElementItems(seg)
		if seg.Mode == ActiveElementMode {
			offset := uint32(inst.evalConstExpr(seg.OffsetExpression))
			table := inst.tableAt(seg.TableIndex)
			if err := table.init(offset, 0, uint32(len(refs)), refs); err != nil {
				return nil, err
			}
			refs = nil
		}
		if seg.Mode == DeclarativeElementMode {
			refs = nil
		}
		inst.elemAddrs = append(inst.elemAddrs, storeAppend(&store.elements, refs))
	}

	for _, seg := range m.DataSegments {
		content := seg.Content
		if seg.Mode == ActiveDataMode {
			offset := uint32(inst.evalConstExpr(seg.OffsetExpression))
			mem := inst.memoryAt(seg.MemoryIndex)
			if err := mem.init(offset, 0, uint32(len(content)), content); err != nil {
				return nil, err
			}
			content = nil
		}
		inst.dataAddrs = append(inst.dataAddrs, storeAppend(&store.datas, content))
	}

	if m.StartIndex != nil {
		if _, err := interp.callExternal(inst.funcAt(*m.StartIndex), nil); err != nil {
			return nil, fmt.Errorf("start function: %w", err)
		}
	}
	return inst, nil
}

func storeAppend[T any](entries *[]T, entry T) uint32 {
	*entries = append(*entries, entry)
	return uint32(len(*entries) - 1)
}

// evalConstExpr evaluates a validated initializer expression to its raw bit
// cell. The constant sub-language stores its operand pre-lowered, so only
// global.get, ref.null, and ref.func need resolution.
func (inst *Instance) evalConstExpr(expr []uint64) uint64 {
	switch opcode(expr[0]) {
	case globalGet:
		return inst.globalAt(uint32(expr[1])).bits
	case refNull:
		nullRef := NullReference
		return uint64(uint32(nullRef))
	case refFunc:
		return uint64(inst.funcAddrs[expr[1]])
	default:
		return expr[1]
	}
}

// resolveElementItems turns a segment's items into store function addresses.
func (inst *Instance) resolveElementItems(seg ElementSegment) []int32 {
	if len(seg.FuncIndexes) > 0 {
		refs := make([]int32, len(seg.FuncIndexes))
		for i, idx := range seg.FuncIndexes {
			refs[i] = int32(inst.funcAddrs[idx])
		}
		return refs
	}
	refs := make([]int32, len(seg.ItemExpressions))
	for i, expr := range seg.ItemExpressions {
		refs[i] = int32(uint32(inst.evalConstExpr(expr)))
	}
	return refs
}
