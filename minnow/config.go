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

// Config controls the behavior and resource limits of the VM.
type Config struct {
	// Features selects the instruction families the decoder and validator
	// accept. Default: DefaultFeatures().
	Features Features

	// MaxCallStackDepth is the hard limit on guest call depth. Exceeding it
	// raises a TrapCallStackExhausted instead of exhausting the native
	// stack, since guest calls recurse on the native stack. Default: 1000.
	MaxCallStackDepth int

	// CallStackReserve controls how many call frames' worth of locals and
	// control stack space to preallocate. Frames beyond this depth fall
	// back to heap allocations. Default: 1000.
	CallStackReserve int

	// MaxMemoryPages caps memory growth below any module-declared maximum.
	// A memory.grow past this ceiling fails with the -1 sentinel, exactly
	// as if the declared maximum were reached. Default: 65536 (4 GiB).
	MaxMemoryPages uint32

	// MaxTableEntries caps table growth below any module-declared maximum,
	// under the same policy as MaxMemoryPages. Default: 1 << 26.
	MaxTableEntries uint32

	// InstructionBudget bounds the number of instructions one invocation
	// may execute, converting runaway guest code into a TrapBudgetExhausted
	// at an instruction boundary. Zero means unlimited.
	// NOTE: a non-zero budget has a measurable cost on the dispatch loop.
	InstructionBudget uint64

	// KeepCustomSections retains custom sections on the decoded Module.
	// When false they are skipped, not rejected. Default: true.
	KeepCustomSections bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Features:           DefaultFeatures(),
		MaxCallStackDepth:  1000,
		CallStackReserve:   1000,
		MaxMemoryPages:     maxMemoryPages,
		MaxTableEntries:    1 << 26,
		KeepCustomSections: true,
	}
}
