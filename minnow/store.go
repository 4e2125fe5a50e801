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

// Store holds all runtime state WebAssembly programs can reach: every
// function, table, memory, global, element segment, and data segment
// allocated over the lifetime of a Runtime. Entries are addressed by index
// and are append-only, so addresses held by live instances stay valid as
// other modules are instantiated. The store does not lock; a Runtime and its
// instances are single-threaded per invocation.
// https://webassembly.github.io/spec/core/exec/runtime.html#store
type Store struct {
	funcs    []FunctionInstance
	tables   []*Table
	memories []*Memory
	globals  []*Global
	// elements holds the resolved references of passive element segments;
	// applied or dropped segments become nil.
	elements [][]int32
	// datas holds the contents of passive data segments; applied or dropped
	// segments become nil.
	datas [][]byte
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// FunctionInstance is a callable function in the store: either a
// module-defined *wasmFunction or a host-provided *HostFunction.
type FunctionInstance interface {
	// Type returns the function's signature.
	Type() FunctionType
}

// wasmFunction binds a module-defined function body to the instance whose
// index spaces its code refers to.
type wasmFunction struct {
	typ  FunctionType
	fn   *Function
	inst *Instance
}

func (f *wasmFunction) Type() FunctionType { return f.typ }

// HostFunction exposes a Go function to guest code. Fn receives the
// arguments as typed Values matching FuncType.ParamTypes and must return
// Values matching FuncType.ResultTypes. An error return (or a panic, which
// the engine recovers) reaches the embedder wrapped in *HostError.
type HostFunction struct {
	FuncType FunctionType
	Fn       func(args []Value) ([]Value, error)
}

func (f *HostFunction) Type() FunctionType { return f.FuncType }
