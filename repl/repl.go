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

// Package repl implements an interactive shell over a minnow Runtime:
// load modules from files or URLs, invoke exports, and poke at globals
// and memory.
package repl

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/minnowvm/minnow/minnow"
)

const defaultModuleName = "default"

var (
	errNoModuleInstantiated = errors.New("no module loaded; use LOAD first")
	errModuleNotFound       = errors.New("module not found")
)

type UsageError struct{}

func (e *UsageError) Error() string { return "wrong command usage" }

func NewUsageError() error { return &UsageError{} }

type Command struct {
	Usage   string
	Handler func(r *Repl, args []string) error
}

type Repl struct {
	runtime      *minnow.Runtime
	names        []string // instantiation order, for LIST
	activeModule string
	scanner      *bufio.Scanner
	commands     map[string]Command
}

func New(runtime *minnow.Runtime) *Repl {
	return &Repl{
		runtime:      runtime,
		activeModule: defaultModuleName,
		scanner:      bufio.NewScanner(os.Stdin),
		commands: map[string]Command{
			"LOAD": {
				Usage:   "LOAD [<module-name>] <path-to-file | url>",
				Handler: (*Repl).handleLoad,
			},
			"USE": {
				Usage:   "USE <module-name>",
				Handler: (*Repl).handleUse,
			},
			"INVOKE": {
				Usage:   "INVOKE [<module>.]<function-name> [args...]",
				Handler: (*Repl).handleInvoke,
			},
			"GET": {
				Usage:   "GET [<module>.]<global-name>",
				Handler: (*Repl).handleGet,
			},
			"SET": {
				Usage:   "SET [<module>.]<global-name> <value>",
				Handler: (*Repl).handleSet,
			},
			"MEM": {
				Usage:   "MEM [<module>] <offset> <length>",
				Handler: (*Repl).handleMem,
			},
			"LIST": {
				Usage:   "LIST",
				Handler: (*Repl).handleList,
			},
			"HELP": {
				Usage:   "HELP",
				Handler: (*Repl).handleHelp,
			},
			"CLEAR": {
				Usage:   "CLEAR",
				Handler: (*Repl).handleClear,
			},
			"QUIT": {
				Usage:   "QUIT",
				Handler: (*Repl).handleQuit,
			},
		},
	}
}

// Start runs a REPL over the given runtime until EOF or QUIT.
func Start(runtime *minnow.Runtime) {
	// Handle CTRL-C
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		fmt.Println("\nBye!")
		os.Exit(0)
	}()

	New(runtime).Run()
}

func (r *Repl) prompt() {
	fmt.Print(promptStyle.Render(">> "))
}

func (r *Repl) Run() {
	r.prompt()

	for r.scanner.Scan() {
		parts := strings.Fields(r.scanner.Text())
		if len(parts) == 0 {
			r.prompt()
			continue
		}

		cmdName := strings.ToUpper(parts[0])
		args := parts[1:]

		if cmd, ok := r.commands[cmdName]; ok {
			if err := cmd.Handler(r, args); err != nil {
				var usageErr *UsageError
				if errors.As(err, &usageErr) {
					fmt.Fprintln(os.Stderr, errLine("Usage: "+cmd.Usage))
				} else {
					fmt.Fprintln(os.Stderr, errLine(fmt.Sprintf("Error: %s", err)))
				}
			}
		} else {
			fmt.Fprintln(
				os.Stderr, errLine(fmt.Sprintf("Error: unknown command: %s", parts[0])),
			)
		}
		r.prompt()
	}
}

func (r *Repl) handleLoad(args []string) error {
	var instanceName, source string
	switch len(args) {
	case 1:
		instanceName = defaultModuleName
		source = args[0]
	case 2:
		instanceName = args[0]
		source = args[1]
	default:
		return NewUsageError()
	}

	data, err := ResolveModule(source)
	if err != nil {
		return err
	}

	module, err := r.runtime.DecodeModule(data)
	if err != nil {
		return err
	}

	if _, err := r.runtime.InstantiateModule(instanceName, module); err != nil {
		return err
	}
	r.names = append(r.names, instanceName)
	fmt.Println(resultLine(fmt.Sprintf("'%s' instantiated.", instanceName)))
	return nil
}

func (r *Repl) handleUse(args []string) error {
	if len(args) != 1 {
		return NewUsageError()
	}
	if _, ok := r.runtime.Instance(args[0]); !ok {
		return errModuleNotFound
	}
	r.activeModule = args[0]
	return nil
}

func (r *Repl) handleInvoke(args []string) error {
	if len(args) < 1 {
		return NewUsageError()
	}

	inst, funcName, err := r.parseItemName(args[0])
	if err != nil {
		return err
	}

	function, err := inst.ExportedFunction(funcName)
	if err != nil {
		return err
	}

	parsed, err := parseArgs(args[1:], function.Type().ParamTypes)
	if err != nil {
		return err
	}

	results, err := inst.Call(funcName, parsed...)
	if err != nil {
		return err
	}
	for _, result := range results {
		fmt.Println(resultLine(result.String()))
	}
	return nil
}

func (r *Repl) handleGet(args []string) error {
	if len(args) != 1 {
		return NewUsageError()
	}

	inst, globalName, err := r.parseItemName(args[0])
	if err != nil {
		return err
	}

	global, err := inst.ExportedGlobal(globalName)
	if err != nil {
		return err
	}
	fmt.Println(resultLine(global.Get().String()))
	return nil
}

func (r *Repl) handleSet(args []string) error {
	if len(args) != 2 {
		return NewUsageError()
	}

	inst, globalName, err := r.parseItemName(args[0])
	if err != nil {
		return err
	}

	global, err := inst.ExportedGlobal(globalName)
	if err != nil {
		return err
	}
	value, err := parseValue(args[1], global.Type.ValueType)
	if err != nil {
		return err
	}
	if err := global.Set(value); err != nil {
		return err
	}
	fmt.Println(resultLine(global.Get().String()))
	return nil
}

func (r *Repl) handleMem(args []string) error {
	var moduleName, offsetStr, lengthStr string
	switch len(args) {
	case 2:
		moduleName, offsetStr, lengthStr = r.activeModule, args[0], args[1]
	case 3:
		moduleName, offsetStr, lengthStr = args[0], args[1], args[2]
	default:
		return NewUsageError()
	}

	inst, err := r.getModule(moduleName)
	if err != nil {
		return err
	}

	offset, err := strconv.ParseUint(offsetStr, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid offset: %s", offsetStr)
	}
	length, err := strconv.ParseUint(lengthStr, 10, 32)
	if err != nil {
		return fmt.Errorf("invalid length: %s", lengthStr)
	}

	memory, err := exportedMemory(inst)
	if err != nil {
		return err
	}
	data := make([]byte, length)
	if err := memory.ReadAt(data, offset); err != nil {
		return err
	}
	fmt.Println(data)
	return nil
}

func (r *Repl) handleList([]string) error {
	names := append([]string(nil), r.names...)
	sort.Strings(names)
	for _, name := range names {
		inst, ok := r.runtime.Instance(name)
		if !ok {
			continue
		}
		fmt.Println(nameStyle.Render(name))
		for _, info := range inst.Module().ExportInfos() {
			fmt.Printf("  %-10s %s %s\n",
				info.Kind, info.Name, detailStyle.Render(info.Type))
		}
	}
	return nil
}

func (r *Repl) handleHelp([]string) error {
	fmt.Println(separator())
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Println(r.commands[name].Usage)
	}
	fmt.Println(separator())
	return nil
}

func (r *Repl) handleClear([]string) error {
	fmt.Print("\033[H\033[2J")
	r.runtime = minnow.NewRuntime().WithConfig(r.runtime.Config())
	r.names = nil
	r.activeModule = defaultModuleName
	return nil
}

func (r *Repl) handleQuit([]string) error {
	os.Exit(0)
	return nil
}

// parseItemName splits "module.item" and resolves the instance; a bare item
// name resolves against the active module.
func (r *Repl) parseItemName(input string) (*minnow.Instance, string, error) {
	var moduleName, itemName string
	parts := strings.SplitN(input, ".", 2)
	if len(parts) == 2 {
		moduleName, itemName = parts[0], parts[1]
	} else {
		moduleName, itemName = r.activeModule, parts[0]
	}
	inst, err := r.getModule(moduleName)
	if err != nil {
		return nil, "", err
	}
	return inst, itemName, nil
}

func (r *Repl) getModule(name string) (*minnow.Instance, error) {
	inst, ok := r.runtime.Instance(name)
	if !ok {
		if name == defaultModuleName {
			return nil, errNoModuleInstantiated
		}
		return nil, fmt.Errorf("module '%s' not found", name)
	}
	return inst, nil
}

func exportedMemory(inst *minnow.Instance) (*minnow.Memory, error) {
	for _, exp := range inst.Exports() {
		if exp.Kind == minnow.MemoryKind {
			return inst.ExportedMemory(exp.Name)
		}
	}
	return nil, errors.New("module exports no memory")
}

func parseArgs(raw []string, types []minnow.ValueType) ([]minnow.Value, error) {
	if len(raw) != len(types) {
		return nil, fmt.Errorf(
			"invalid number of arguments; expected %d, got %d", len(types), len(raw),
		)
	}
	values := make([]minnow.Value, len(raw))
	for i, t := range types {
		value, err := parseValue(raw[i], t)
		if err != nil {
			return nil, err
		}
		values[i] = value
	}
	return values, nil
}

func parseValue(raw string, t minnow.ValueType) (minnow.Value, error) {
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
