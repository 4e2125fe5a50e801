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

// Imports collects the host objects a module's imports resolve against,
// grouped by module name.
//
// Example:
//
//	imports := minnow.NewImports().
//	    AddHostFunc("env", "log", &minnow.HostFunction{
//	        FuncType: minnow.FunctionType{ParamTypes: []minnow.ValueType{minnow.I32}},
//	        Fn: func(args []minnow.Value) ([]minnow.Value, error) {
//	            fmt.Println("guest says:", args[0].I32())
//	            return nil, nil
//	        },
//	    }).
//	    AddMemory("env", "memory", minnow.NewMemory(minnow.MemoryType{
//	        Limits: minnow.Limits{Min: 1},
//	    }))
type Imports struct {
	modules map[string]map[string]any
}

// NewImports creates an empty import set.
func NewImports() *Imports {
	return &Imports{modules: make(map[string]map[string]any)}
}

func (i *Imports) add(module, name string, obj any) *Imports {
	fields, ok := i.modules[module]
	if !ok {
		fields = make(map[string]any)
		i.modules[module] = fields
	}
	fields[name] = obj
	return i
}

// AddHostFunc registers a host function under module.name.
func (i *Imports) AddHostFunc(module, name string, fn *HostFunction) *Imports {
	return i.add(module, name, fn)
}

// AddMemory registers a memory under module.name.
func (i *Imports) AddMemory(module, name string, mem *Memory) *Imports {
	return i.add(module, name, mem)
}

// AddTable registers a table under module.name.
func (i *Imports) AddTable(module, name string, table *Table) *Imports {
	return i.add(module, name, table)
}

// AddGlobal registers a global under module.name.
func (i *Imports) AddGlobal(module, name string, global *Global) *Imports {
	return i.add(module, name, global)
}

// AddInstanceExports registers every export of an already-instantiated module
// under the given module name, so one module's exports can satisfy another's
// imports.
func (i *Imports) AddInstanceExports(module string, inst *Instance) *Imports {
	for _, exp := range inst.Exports() {
		switch exp.Kind {
		case FunctionKind:
			i.add(module, exp.Name, inst.funcAt(exp.Index))
		case TableKind:
			i.add(module, exp.Name, inst.tableAt(exp.Index))
		case MemoryKind:
			i.add(module, exp.Name, inst.memoryAt(exp.Index))
		case GlobalKind:
			i.add(module, exp.Name, inst.globalAt(exp.Index))
		}
	}
	return i
}

func (i *Imports) lookup(module, name string) (any, bool) {
	fields, ok := i.modules[module]
	if !ok {
		return nil, false
	}
	obj, ok := fields[name]
	return obj, ok
}

// resolvedImports holds the store-ready objects satisfying a module's
// imports, in declaration order per kind.
type resolvedImports struct {
	funcs    []FunctionInstance
	tables   []*Table
	memories []*Memory
	globals  []*Global
}

// resolveImports matches every declared import against the provided set.
// Types must match exactly: element-wise equality for function types, value
// type and mutability for globals, and the standard limits subsumption for
// memories and tables. lookupFallback, when non-nil, resolves module names
// not present in imports (the Runtime passes its registry of named
// instances).
func resolveImports(
	m *Module,
	imports *Imports,
	lookupFallback func(module, name string) (any, bool),
) (*resolvedImports, error) {
	resolved := &resolvedImports{}
	for _, imp := range m.Imports {
		obj, ok := imports.lookup(imp.ModuleName, imp.Name)
		if !ok && lookupFallback != nil {
			obj, ok = lookupFallback(imp.ModuleName, imp.Name)
		}
		if !ok {
			return nil, newLinkError(imp.ModuleName, imp.Name, "unknown import")
		}

		switch imp.Kind {
		case FunctionKind:
			fi, ok := obj.(FunctionInstance)
			if !ok {
				return nil, newLinkError(imp.ModuleName, imp.Name, "not a function")
			}
			want := m.Types[imp.FuncTypeIndex]
			if got := fi.Type(); !got.Equal(want) {
				return nil, newLinkError(
					imp.ModuleName, imp.Name,
					"function type mismatch: have %s, want %s", got, want,
				)
			}
			resolved.funcs = append(resolved.funcs, fi)

		case TableKind:
			table, ok := obj.(*Table)
			if !ok {
				return nil, newLinkError(imp.ModuleName, imp.Name, "not a table")
			}
			if table.Type.ReferenceType != imp.TableType.ReferenceType {
				return nil, newLinkError(imp.ModuleName, imp.Name, "table element type mismatch")
			}
			provided := Limits{Min: table.Size(), Max: table.Type.Limits.Max}
			if !limitsMatch(provided, imp.TableType.Limits) {
				return nil, newLinkError(imp.ModuleName, imp.Name, "table limits mismatch")
			}
			resolved.tables = append(resolved.tables, table)

		case MemoryKind:
			mem, ok := obj.(*Memory)
			if !ok {
				return nil, newLinkError(imp.ModuleName, imp.Name, "not a memory")
			}
			provided := Limits{Min: mem.Size(), Max: mem.Type.Limits.Max}
			if !limitsMatch(provided, imp.MemoryType.Limits) {
				return nil, newLinkError(imp.ModuleName, imp.Name, "memory limits mismatch")
			}
			resolved.memories = append(resolved.memories, mem)

		case GlobalKind:
			global, ok := obj.(*Global)
			if !ok {
				return nil, newLinkError(imp.ModuleName, imp.Name, "not a global")
			}
			if global.Type.ValueType != imp.GlobalType.ValueType {
				return nil, newLinkError(imp.ModuleName, imp.Name, "global type mismatch")
			}
			if global.Type.IsMutable != imp.GlobalType.IsMutable {
				return nil, newLinkError(imp.ModuleName, imp.Name, "global mutability mismatch")
			}
			resolved.globals = append(resolved.globals, global)
		}
	}
	return resolved, nil
}

// limitsMatch implements import limits subsumption: the provided entity must
// be at least as large and at most as growable as required.
func limitsMatch(provided, required Limits) bool {
	if provided.Min < required.Min {
		return false
	}
	if required.Max != nil {
		if provided.Max == nil || *provided.Max > *required.Max {
			return false
		}
	}
	return true
}
