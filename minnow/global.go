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

// Global is a global variable instance.
// https://webassembly.github.io/spec/core/exec/runtime.html#global-instances
type Global struct {
	Type GlobalType
	// bits is the raw 64-bit cell; the declared type says how to read it.
	bits uint64
}

// NewGlobal creates a global holding v. Use it to build globals the host
// provides as imports.
func NewGlobal(v Value, mutable bool) *Global {
	return &Global{
		Type: GlobalType{ValueType: v.Type(), IsMutable: mutable},
		bits: v.bits,
	}
}

// Get returns the current value.
func (g *Global) Get() Value {
	return Value{typ: g.Type.ValueType, bits: g.bits}
}

// Set assigns v. It rejects writes to immutable globals and values of the
// wrong type; this is the host path, so failures are plain errors, not traps.
func (g *Global) Set(v Value) error {
	if !g.Type.IsMutable {
		return fmt.Errorf("global is immutable")
	}
	if v.Type() != g.Type.ValueType {
		return fmt.Errorf(
			"global is %s, cannot assign %s",
			valueTypeName(g.Type.ValueType), valueTypeName(v.Type()),
		)
	}
	g.bits = v.bits
	return nil
}
