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

package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/minnowvm/minnow/minnow"
)

func newRunCommand(state *appState) *cobra.Command {
	var invoke string

	cmd := &cobra.Command{
		Use:   "run <file.wasm> [args...]",
		Short: "Instantiate a module and optionally invoke an export",
		Long: "Instantiate a module, running its start function. With --invoke, " +
			"call the named export with the remaining arguments and print the results.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			runtime := state.newRuntime()
			module, err := runtime.DecodeModule(data)
			if err != nil {
				return err
			}
			inst, err := runtime.InstantiateModule("main", module)
			if err != nil {
				return err
			}
			if invoke == "" {
				if len(args) > 1 {
					return fmt.Errorf("arguments given without --invoke")
				}
				return nil
			}

			function, err := inst.ExportedFunction(invoke)
			if err != nil {
				return err
			}
			values, err := parseCallArgs(args[1:], function.Type().ParamTypes)
			if err != nil {
				return err
			}
			results, err := inst.Call(invoke, values...)
			if err != nil {
				return err
			}
			for _, result := range results {
				fmt.Println(result)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&invoke, "invoke", "", "exported function to call")
	return cmd
}

func parseCallArgs(raw []string, types []minnow.ValueType) ([]minnow.Value, error) {
	if len(raw) != len(types) {
		return nil, fmt.Errorf(
			"invalid number of arguments; expected %d, got %d", len(types), len(raw),
		)
	}
	values := make([]minnow.Value, len(raw))
	for i, t := range types {
		value, err := parseCallArg(raw[i], t)
		if err != nil {
			return nil, err
		}
		values[i] = value
	}
	return values, nil
}

func parseCallArg(raw string, t minnow.ValueType) (minnow.Value, error) {
	switch t {
	case minnow.I32:
		v, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			return minnow.Value{}, fmt.Errorf("failed to parse %s as i32: %v", raw, err)
		}
		return minnow.NewI32(int32(v)), nil
	case minnow.I64:
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return minnow.Value{}, fmt.Errorf("failed to parse %s as i64: %v", raw, err)
		}
		return minnow.NewI64(v), nil
	case minnow.F32:
		v, err := strconv.ParseFloat(raw, 32)
		if err != nil {
			return minnow.Value{}, fmt.Errorf("failed to parse %s as f32: %v", raw, err)
		}
		return minnow.NewF32(float32(v)), nil
	case minnow.F64:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return minnow.Value{}, fmt.Errorf("failed to parse %s as f64: %v", raw, err)
		}
		return minnow.NewF64(v), nil
	default:
		return minnow.Value{}, fmt.Errorf("unsupported arg type: %v", t)
	}
}
