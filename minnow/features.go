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

// Features selects which instruction families beyond the WebAssembly 1.0 core
// the decoder and validator accept. An instruction from a disabled family
// fails decoding the same way an unknown opcode does, so a module relying on
// a disabled feature never reaches execution.
type Features uint32

const (
	// FeatureSignExtension enables the sign-extension operators
	// (i32.extend8_s, i32.extend16_s, i64.extend8_s, i64.extend16_s,
	// i64.extend32_s).
	FeatureSignExtension Features = 1 << iota

	// FeatureSaturatingTrunc enables the non-trapping float-to-int
	// conversions (i32.trunc_sat_f32_s and friends).
	FeatureSaturatingTrunc

	// FeatureMultiValue enables multiple results on functions and blocks,
	// and type-index block types.
	FeatureMultiValue

	// FeatureBulkMemory enables memory.init/copy/fill, data.drop,
	// table.init/copy/fill, elem.drop, and passive segments.
	FeatureBulkMemory

	// FeatureReferenceTypes enables ref.null, ref.func, ref.is_null, typed
	// select, table.get/set/grow/size, externref, and multiple tables.
	FeatureReferenceTypes

	// FeatureMultipleMemories enables more than one memory per module and
	// non-zero memory index immediates. This is a WASM 3.0 feature and has
	// not been exercised against the upstream WebAssembly test suite.
	FeatureMultipleMemories
)

// Has reports whether every feature in f2 is enabled in f.
func (f Features) Has(f2 Features) bool {
	return f&f2 == f2
}

// AllFeatures returns every feature the engine implements.
func AllFeatures() Features {
	return FeatureSignExtension |
		FeatureSaturatingTrunc |
		FeatureMultiValue |
		FeatureBulkMemory |
		FeatureReferenceTypes |
		FeatureMultipleMemories
}

// DefaultFeatures returns the feature set enabled by DefaultConfig: the
// finished post-1.0 proposals, with multiple memories off.
func DefaultFeatures() Features {
	return FeatureSignExtension |
		FeatureSaturatingTrunc |
		FeatureMultiValue |
		FeatureBulkMemory |
		FeatureReferenceTypes
}
