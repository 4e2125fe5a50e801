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

// A minimal embedding walkthrough: provide a host function to a module and
// invoke one of its exports.
package main

import (
	"fmt"

	"github.com/minnowvm/minnow/minnow"
)

// addWasm is the binary encoding of:
//
//	(module
//	  (import "env" "log" (func $log (param i32)))
//	  (func (export "add") (param i32 i32) (result i32) (local i32)
//	    local.get 0
//	    local.get 1
//	    i32.add
//	    local.tee 2
//	    call $log
//	    local.get 2))
var addWasm = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x0b, 0x02, 0x60, 0x01, 0x7f, 0x00, 0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f,
	0x02, 0x0b, 0x01, 0x03, 0x65, 0x6e, 0x76, 0x03, 0x6c, 0x6f, 0x67, 0x00, 0x00,
	0x03, 0x02, 0x01, 0x01,
	0x07, 0x07, 0x01, 0x03, 0x61, 0x64, 0x64, 0x00, 0x01,
	0x0a, 0x11, 0x01, 0x0f, 0x01, 0x01, 0x7f,
	0x20, 0x00, 0x20, 0x01, 0x6a, 0x22, 0x02, 0x10, 0x00, 0x20, 0x02, 0x0b,
}

func main() {
	// 1. Decode the module.
	runtime := minnow.NewRuntime()
	module, err := runtime.DecodeModule(addWasm)
	if err != nil {
		fmt.Println("Error decoding module:", err)
		return
	}

	// 2. Provide the host function the module imports.
	imports := minnow.NewImports().AddHostFunc("env", "log", &minnow.HostFunction{
		FuncType: minnow.FunctionType{ParamTypes: []minnow.ValueType{minnow.I32}},
		Fn: func(args []minnow.Value) ([]minnow.Value, error) {
			fmt.Println("guest computed:", args[0].I32())
			return nil, nil
		},
	})

	// 3. Instantiate and invoke an exported function.
	instance, err := runtime.InstantiateModuleWithImports("hello", module, imports)
	if err != nil {
		fmt.Println("Error instantiating module:", err)
		return
	}

	results, err := instance.Call("add", minnow.NewI32(5), minnow.NewI32(37))
	if err != nil {
		fmt.Println("Error invoking function:", err)
		return
	}
	fmt.Println(results[0]) // Output: i32:42
}
