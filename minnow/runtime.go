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

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Runtime is the embedding entry point: it owns a store, an interpreter, and
// a registry of named instances, so one module's exports can satisfy
// another's imports by name. A Runtime is not safe for concurrent use.
type Runtime struct {
	cfg       Config
	log       *zap.Logger
	store     *Store
	interp    *interpreter
	instances map[string]*Instance
}

// NewRuntime creates a Runtime with DefaultConfig and a no-op logger.
func NewRuntime() *Runtime {
	return &Runtime{
		cfg:       DefaultConfig(),
		log:       zap.NewNop(),
		instances: make(map[string]*Instance),
	}
}

// WithConfig sets the configuration. Call before instantiating any module.
func (r *Runtime) WithConfig(cfg Config) *Runtime {
	r.cfg = cfg
	return r
}

// WithLogger sets the logger. The runtime logs phase boundaries at Debug and
// traps crossing the API boundary at Warn; the dispatch loop never logs.
func (r *Runtime) WithLogger(log *zap.Logger) *Runtime {
	r.log = log
	return r
}

// Config returns the runtime's configuration.
func (r *Runtime) Config() Config {
	return r.cfg
}

// DecodeModule decodes binary data under the runtime's configuration.
func (r *Runtime) DecodeModule(data []byte) (*Module, error) {
	m, err := DecodeModule(data, r.cfg)
	if err != nil {
		return nil, err
	}
	r.log.Debug("module decoded",
		zap.Int("types", len(m.Types)),
		zap.Int("funcs", len(m.Funcs)),
		zap.Int("imports", len(m.Imports)),
		zap.Int("exports", len(m.Exports)),
	)
	return m, nil
}

// InstantiateModule validates (if needed) and instantiates a module with no
// imports, registering the instance under name.
func (r *Runtime) InstantiateModule(name string, m *Module) (*Instance, error) {
	return r.InstantiateModuleWithImports(name, m, nil)
}

// InstantiateModuleWithImports validates (if needed) and instantiates a
// module. Imports resolve first against the provided set, then against the
// exports of instances already registered under the imported module name.
func (r *Runtime) InstantiateModuleWithImports(
	name string, m *Module, imports *Imports,
) (*Instance, error) {
	if _, exists := r.instances[name]; exists {
		return nil, fmt.Errorf("instance %q already registered", name)
	}
	r.ensureStore()

	inst, err := instantiate(r.store, r.interp, m, name, imports, r.cfg, r.lookupInstanceExport)
	if err != nil {
		if errors.Is(err, ErrTrap) {
			r.log.Warn("instantiation trapped", zap.String("instance", name), zap.Error(err))
		}
		return nil, err
	}
	r.instances[name] = inst
	r.log.Debug("instance created",
		zap.String("instance", name),
		zap.Int("exports", len(m.Exports)),
	)
	return inst, nil
}

// Instance returns a registered instance by name.
func (r *Runtime) Instance(name string) (*Instance, bool) {
	inst, ok := r.instances[name]
	return inst, ok
}

// InvokeFunction calls an exported function of a registered instance.
func (r *Runtime) InvokeFunction(
	instanceName, funcName string, args ...Value,
) ([]Value, error) {
	inst, ok := r.instances[instanceName]
	if !ok {
		return nil, fmt.Errorf("no instance named %q", instanceName)
	}
	r.log.Debug("invoke",
		zap.String("instance", instanceName),
		zap.String("function", funcName),
		zap.Int("args", len(args)),
	)
	results, err := inst.Call(funcName, args...)
	if err != nil {
		if errors.Is(err, ErrTrap) {
			r.log.Warn("invocation trapped",
				zap.String("instance", instanceName),
				zap.String("function", funcName),
				zap.Error(err),
			)
		}
		return nil, err
	}
	r.log.Debug("invoke done",
		zap.String("instance", instanceName),
		zap.String("function", funcName),
		zap.Int("results", len(results)),
	)
	return results, nil
}

func (r *Runtime) ensureStore() {
	if r.store == nil {
		r.store = NewStore()
		r.interp = newInterpreter(r.cfg, r.store)
	}
}

// lookupInstanceExport resolves module.name against registered instances, so
// instantiating module "b" can import from the instance registered as "a"
// without building an explicit import set.
func (r *Runtime) lookupInstanceExport(module, name string) (any, bool) {
	inst, ok := r.instances[module]
	if !ok {
		return nil, false
	}
	exp, ok := inst.exports[name]
	if !ok {
		return nil, false
	}
	switch exp.Kind {
	case FunctionKind:
		return inst.funcAt(exp.Index), true
	case TableKind:
		return inst.tableAt(exp.Index), true
	case MemoryKind:
		return inst.memoryAt(exp.Index), true
	case GlobalKind:
		return inst.globalAt(exp.Index), true
	default:
		return nil, false
	}
}
