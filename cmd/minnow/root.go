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

	"github.com/mstoykov/envconfig"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/minnowvm/minnow/minnow"
)

// globalConfig holds the settings shared by every subcommand. Environment
// variables (MINNOW_ prefix) override the defaults; flags override both.
type globalConfig struct {
	LogLevel          string `envconfig:"LOG_LEVEL"`
	InstructionBudget uint64 `envconfig:"INSTRUCTION_BUDGET"`
	MaxCallStackDepth int    `envconfig:"MAX_CALL_STACK_DEPTH"`
	MaxMemoryPages    uint32 `envconfig:"MAX_MEMORY_PAGES"`
	MultipleMemories  bool   `envconfig:"MULTIPLE_MEMORIES"`
}

type appState struct {
	gc     globalConfig
	logger *zap.Logger
}

func defaultGlobalConfig() globalConfig {
	cfg := minnow.DefaultConfig()
	return globalConfig{
		LogLevel:          "warn",
		InstructionBudget: cfg.InstructionBudget,
		MaxCallStackDepth: cfg.MaxCallStackDepth,
		MaxMemoryPages:    cfg.MaxMemoryPages,
	}
}

// newAppState seeds the shared settings from the defaults, then from the
// MINNOW_* environment.
func newAppState() *appState {
	state := &appState{gc: defaultGlobalConfig()}
	if err := envconfig.Process("minnow", &state.gc); err != nil {
		fmt.Fprintln(os.Stderr, "Warning: bad environment configuration:", err)
	}
	return state
}

func newRootCommand() *cobra.Command {
	return newRootCommandFor(newAppState())
}

func newRootCommandFor(state *appState) *cobra.Command {
	root := &cobra.Command{
		Use:           "minnow",
		Short:         "A WebAssembly interpreter",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := buildLogger(state.gc.LogLevel)
			if err != nil {
				return err
			}
			state.logger = logger
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&state.gc.LogLevel, "log-level", state.gc.LogLevel,
		"log level (debug, info, warn, error)")
	flags.Uint64Var(&state.gc.InstructionBudget, "instruction-budget",
		state.gc.InstructionBudget,
		"max instructions per invocation, 0 for unlimited")
	flags.IntVar(&state.gc.MaxCallStackDepth, "max-call-depth",
		state.gc.MaxCallStackDepth, "max guest call depth")
	flags.Uint32Var(&state.gc.MaxMemoryPages, "max-memory-pages",
		state.gc.MaxMemoryPages, "engine ceiling on linear memory, in pages")
	flags.BoolVar(&state.gc.MultipleMemories, "multiple-memories",
		state.gc.MultipleMemories, "enable the multiple memories proposal")

	root.AddCommand(
		newRunCommand(state),
		newValidateCommand(state),
		newInspectCommand(state),
		newReplCommand(state),
	)
	return root
}

func (s *appState) runtimeConfig() minnow.Config {
	cfg := minnow.DefaultConfig()
	cfg.InstructionBudget = s.gc.InstructionBudget
	cfg.MaxCallStackDepth = s.gc.MaxCallStackDepth
	cfg.MaxMemoryPages = s.gc.MaxMemoryPages
	if s.gc.MultipleMemories {
		cfg.Features |= minnow.FeatureMultipleMemories
	}
	return cfg
}

func (s *appState) newRuntime() *minnow.Runtime {
	return minnow.NewRuntime().
		WithConfig(s.runtimeConfig()).
		WithLogger(s.logger)
}

func buildLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
