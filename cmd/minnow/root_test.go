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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minnowvm/minnow/minnow"
)

// emptyWasm is the smallest valid module: magic and version only.
var emptyWasm = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

func writeTempWasm(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "m.wasm")
	require.NoError(t, os.WriteFile(path, emptyWasm, 0o600))
	return path
}

func TestEnvironmentOverridesDefaults(t *testing.T) {
	t.Setenv("MINNOW_INSTRUCTION_BUDGET", "12345")
	t.Setenv("MINNOW_MULTIPLE_MEMORIES", "true")

	state := newAppState()
	assert.Equal(t, uint64(12345), state.gc.InstructionBudget)

	cfg := state.runtimeConfig()
	assert.Equal(t, uint64(12345), cfg.InstructionBudget)
	assert.True(t, cfg.Features.Has(minnow.FeatureMultipleMemories))
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("MINNOW_MAX_CALL_STACK_DEPTH", "50")

	state := newAppState()
	require.Equal(t, 50, state.gc.MaxCallStackDepth)

	root := newRootCommandFor(state)
	root.SetArgs([]string{"validate", writeTempWasm(t), "--max-call-depth", "75"})
	require.NoError(t, root.Execute())

	assert.Equal(t, 75, state.gc.MaxCallStackDepth)
	assert.Equal(t, 75, state.runtimeConfig().MaxCallStackDepth)
}

func TestDefaultsMatchRuntimeDefaults(t *testing.T) {
	gc := defaultGlobalConfig()
	def := minnow.DefaultConfig()
	assert.Equal(t, def.InstructionBudget, gc.InstructionBudget)
	assert.Equal(t, def.MaxCallStackDepth, gc.MaxCallStackDepth)
	assert.Equal(t, def.MaxMemoryPages, gc.MaxMemoryPages)
}

func TestInvalidLogLevelFailsEarly(t *testing.T) {
	state := newAppState()
	state.gc.LogLevel = "shouting"

	root := newRootCommandFor(state)
	root.SetArgs([]string{"validate", writeTempWasm(t)})
	require.Error(t, root.Execute())
}

func TestValidateCommandRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.wasm")
	require.NoError(t, os.WriteFile(path, []byte("not wasm"), 0o600))

	root := newRootCommandFor(newAppState())
	root.SetArgs([]string{"validate", path})
	require.ErrorIs(t, root.Execute(), minnow.ErrMalformedBinary)
}

func TestParseCallArg(t *testing.T) {
	v, err := parseCallArg("-5", minnow.I32)
	require.NoError(t, err)
	assert.Equal(t, int32(-5), v.I32())

	v, err = parseCallArg("2.5", minnow.F64)
	require.NoError(t, err)
	assert.Equal(t, 2.5, v.F64())

	_, err = parseCallArg("abc", minnow.I64)
	require.Error(t, err)
}
