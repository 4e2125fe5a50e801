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

// Instance is the runtime representation of an instantiated module. It maps
// the module's index spaces onto store addresses and is read-only once
// instantiation completes, so any number of invocations may share it
// sequentially.
// https://webassembly.github.io/spec/core/exec/runtime.html#module-instances
type Instance struct {
	name   string
	module *Module
	store  *Store
	interp *interpreter

	funcAddrs   []uint32
	tableAddrs  []uint32
	memAddrs    []uint32
	globalAddrs []uint32
	elemAddrs   []uint32
	dataAddrs   []uint32

	exports map[string]Export
}

// Name returns the name the instance was registered under.
func (inst *Instance) Name() string { return inst.name }

// Module returns the module this instance was created from.
func (inst *Instance) Module() *Module { return inst.module }

// Exports lists the instance's exports in module declaration order.
func (inst *Instance) Exports() []Export {
	return inst.module.Exports
}

// Call invokes an exported function by name.
//
// Args must match the function's parameter types exactly; results come back
// as one Value per declared result. A guest fault is returned as *Trap, a
// host function failure as *HostError.
func (inst *Instance) Call(name string, args ...Value) ([]Value, error) {
	fi, err := inst.ExportedFunction(name)
	if err != nil {
		return nil, err
	}
	return inst.interp.callExternal(fi, args)
}

// ExportedFunction returns the exported function with the given name.
func (inst *Instance) ExportedFunction(name string) (FunctionInstance, error) {
	exp, err := inst.exportOfKind(name, FunctionKind)
	if err != nil {
		return nil, err
	}
	return inst.funcAt(exp.Index), nil
}

// ExportedMemory returns the exported memory with the given name.
func (inst *Instance) ExportedMemory(name string) (*Memory, error) {
	exp, err := inst.exportOfKind(name, MemoryKind)
	if err != nil {
		return nil, err
	}
	return inst.memoryAt(exp.Index), nil
}

// ExportedTable returns the exported table with the given name.
func (inst *Instance) ExportedTable(name string) (*Table, error) {
	exp, err := inst.exportOfKind(name, TableKind)
	if err != nil {
		return nil, err
	}
	return inst.tableAt(exp.Index), nil
}

// ExportedGlobal returns the exported global with the given name.
func (inst *Instance) ExportedGlobal(name string) (*Global, error) {
	exp, err := inst.exportOfKind(name, GlobalKind)
	if err != nil {
		return nil, err
	}
	return inst.globalAt(exp.Index), nil
}

func (inst *Instance) exportOfKind(name string, kind ExternKind) (Export, error) {
	exp, ok := inst.exports[name]
	if !ok {
		return Export{}, fmt.Errorf("no export named %q", name)
	}
	if exp.Kind != kind {
		return Export{}, fmt.Errorf("export %q is a %s, not a %s", name, exp.Kind, kind)
	}
	return exp, nil
}

// The *At accessors translate a module index into the store entry. Indices
// are validated before execution, so these do not re-check bounds.

func (inst *Instance) funcAt(index uint32) FunctionInstance {
	return inst.store.funcs[inst.funcAddrs[index]]
}

func (inst *Instance) tableAt(index uint32) *Table {
	return inst.store.tables[inst.tableAddrs[index]]
}

func (inst *Instance) memoryAt(index uint32) *Memory {
	return inst.store.memories[inst.memAddrs[index]]
}

func (inst *Instance) globalAt(index uint32) *Global {
	return inst.store.globals[inst.globalAddrs[index]]
}

func (inst *Instance) elementAt(index uint32) []int32 {
	return inst.store.elements[inst.elemAddrs[index]]
}

func (inst *Instance) dataAt(index uint32) []byte {
	return inst.store.datas[inst.dataAddrs[index]]
}

func (inst *Instance) dropElement(index uint32) {
	inst.store.elements[inst.elemAddrs[index]] = nil
}

func (inst *Instance) dropData(index uint32) {
	inst.store.datas[inst.dataAddrs[index]] = nil
}
