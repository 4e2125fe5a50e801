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

// valueStack is the operand stack: raw 64-bit cells shared by every frame of
// one invocation. i32 and f32 values occupy the low 32 bits with the high
// bits zero; floats are stored by bit pattern so NaN payloads survive.
// Validation guarantees balanced use, so push and pop do not bounds-check.
type valueStack struct {
	values []uint64
}

func (s *valueStack) push(v uint64) {
	s.values = append(s.values, v)
}

func (s *valueStack) pop() uint64 {
	v := s.values[len(s.values)-1]
	s.values = s.values[:len(s.values)-1]
	return v
}

func (s *valueStack) peek() uint64 {
	return s.values[len(s.values)-1]
}

func (s *valueStack) len() int {
	return len(s.values)
}

// unwind truncates the stack to height while preserving the top preserve
// values, which slide down to sit at height. This is the branch and return
// primitive: a label's arity values survive, everything between them and the
// label's entry height is discarded.
func (s *valueStack) unwind(height, preserve int) {
	if len(s.values) == height+preserve {
		return
	}
	copy(s.values[height:], s.values[len(s.values)-preserve:])
	s.values = s.values[:height+preserve]
}
