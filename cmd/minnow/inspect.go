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

	"github.com/spf13/cobra"

	"github.com/minnowvm/minnow/minnow"
)

func newInspectCommand(state *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file.wasm>",
		Short: "Print a module's imports and exports",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			module, err := minnow.DecodeModule(data, state.runtimeConfig())
			if err != nil {
				return err
			}

			fmt.Printf("%s: %d types, %d functions, %d exports\n",
				args[0], len(module.Types), len(module.Funcs), len(module.Exports))

			if imports := module.ImportInfos(); len(imports) > 0 {
				fmt.Println("imports:")
				for _, info := range imports {
					fmt.Printf("  %-8s %s.%s: %s\n",
						info.Kind, info.Module, info.Name, info.Type)
				}
			}
			if exports := module.ExportInfos(); len(exports) > 0 {
				fmt.Println("exports:")
				for _, info := range exports {
					fmt.Printf("  %-8s %s: %s\n", info.Kind, info.Name, info.Type)
				}
			}
			return nil
		},
	}
}
