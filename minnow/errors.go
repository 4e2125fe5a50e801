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
)

// Sentinel errors anchoring the four failure classes of the pipeline. Use
// errors.Is against these to classify a failure without inspecting the
// concrete type:
//
//	if errors.Is(err, minnow.ErrTrap) { ... }
var (
	// ErrMalformedBinary reports a structural decode failure. It is always
	// fatal to loading and never partially recoverable.
	ErrMalformedBinary = errors.New("malformed binary")

	// ErrInvalidModule reports a static type-safety violation found by
	// validation. Fatal to loading.
	ErrInvalidModule = errors.New("invalid module")

	// ErrLink reports an import resolution or type mismatch failure at
	// instantiation time. Fatal to that instantiation attempt.
	ErrLink = errors.New("link error")

	// ErrTrap reports a runtime fault raised by guest code. A trap unwinds
	// exactly one invocation back to the caller; the instance remains usable
	// for subsequent calls unless the trap occurred during instantiation.
	ErrTrap = errors.New("trap")
)

// MalformedError describes why a byte sequence is not a well-formed module.
type MalformedError struct {
	// Offset is the byte offset into the input at which decoding failed.
	Offset int
	// Section names the section being decoded, or "" before any section.
	Section string
	// Err is the underlying cause.
	Err error
}

func (e *MalformedError) Error() string {
	if e.Section == "" {
		return fmt.Sprintf("malformed binary at offset 0x%x: %v", e.Offset, e.Err)
	}
	return fmt.Sprintf(
		"malformed binary in %s section at offset 0x%x: %v",
		e.Section, e.Offset, e.Err,
	)
}

func (e *MalformedError) Unwrap() error { return e.Err }

func (e *MalformedError) Is(target error) bool { return target == ErrMalformedBinary }

// ValidationError identifies the function and instruction at which a module
// failed validation.
type ValidationError struct {
	// FuncIndex is the index of the offending function in the module's
	// function index space, or -1 for a module-level failure.
	FuncIndex int
	// Offset is the index of the offending instruction within the function
	// body, or -1 for a module-level failure.
	Offset int
	// Err is the underlying cause.
	Err error
}

func (e *ValidationError) Error() string {
	if e.FuncIndex < 0 {
		return fmt.Sprintf("invalid module: %v", e.Err)
	}
	return fmt.Sprintf(
		"invalid module: function %d, instruction %d: %v",
		e.FuncIndex, e.Offset, e.Err,
	)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidModule }

// LinkError describes an import that could not be satisfied.
type LinkError struct {
	// ModuleName and FieldName identify the import being resolved.
	ModuleName string
	FieldName  string
	// Err is the underlying cause.
	Err error
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("link error: import %q.%q: %v", e.ModuleName, e.FieldName, e.Err)
}

func (e *LinkError) Unwrap() error { return e.Err }

func (e *LinkError) Is(target error) bool { return target == ErrLink }

func newLinkError(moduleName, fieldName, format string, args ...any) *LinkError {
	return &LinkError{
		ModuleName: moduleName,
		FieldName:  fieldName,
		Err:        fmt.Errorf(format, args...),
	}
}

// TrapKind classifies runtime faults.
type TrapKind uint8

const (
	// TrapUnreachable: the unreachable instruction was executed.
	TrapUnreachable TrapKind = iota
	// TrapMemoryOutOfBounds: a load, store, or bulk memory operation touched
	// bytes past the current memory size.
	TrapMemoryOutOfBounds
	// TrapTableOutOfBounds: a table access or bulk table operation touched
	// entries past the current table size.
	TrapTableOutOfBounds
	// TrapUndefinedElement: call_indirect with an index past the table size.
	TrapUndefinedElement
	// TrapUninitializedElement: call_indirect through a null table slot.
	TrapUninitializedElement
	// TrapIndirectCallTypeMismatch: the callee's type does not equal the type
	// declared at the call_indirect site.
	TrapIndirectCallTypeMismatch
	// TrapIntegerDivideByZero: integer division or remainder by zero.
	TrapIntegerDivideByZero
	// TrapIntegerOverflow: signed division overflow, or a float to integer
	// truncation whose value does not fit the target type.
	TrapIntegerOverflow
	// TrapInvalidConversionToInteger: float to integer truncation of a NaN.
	TrapInvalidConversionToInteger
	// TrapCallStackExhausted: guest call depth reached the configured
	// maximum.
	TrapCallStackExhausted
	// TrapBudgetExhausted: the configured instruction budget ran out.
	TrapBudgetExhausted
)

func (k TrapKind) String() string {
	switch k {
	case TrapUnreachable:
		return "unreachable"
	case TrapMemoryOutOfBounds:
		return "out of bounds memory access"
	case TrapTableOutOfBounds:
		return "out of bounds table access"
	case TrapUndefinedElement:
		return "undefined element"
	case TrapUninitializedElement:
		return "uninitialized element"
	case TrapIndirectCallTypeMismatch:
		return "indirect call type mismatch"
	case TrapIntegerDivideByZero:
		return "integer divide by zero"
	case TrapIntegerOverflow:
		return "integer overflow"
	case TrapInvalidConversionToInteger:
		return "invalid conversion to integer"
	case TrapCallStackExhausted:
		return "call stack exhausted"
	case TrapBudgetExhausted:
		return "instruction budget exhausted"
	default:
		return "unknown trap"
	}
}

// Trap is a runtime fault raised by guest code. It satisfies
// errors.Is(err, ErrTrap), and errors.Is against another *Trap matches on
// Kind, so callers can test for a specific fault:
//
//	errors.Is(err, &minnow.Trap{Kind: minnow.TrapUnreachable})
type Trap struct {
	Kind TrapKind
	// detail optionally refines the message, e.g. the offending index.
	detail string
}

func (t *Trap) Error() string {
	if t.detail == "" {
		return t.Kind.String()
	}
	return t.Kind.String() + " " + t.detail
}

func (t *Trap) Is(target error) bool {
	if target == ErrTrap {
		return true
	}
	if other, ok := target.(*Trap); ok {
		return other.Kind == t.Kind
	}
	return false
}

// Preallocated traps for the hot paths that carry no extra detail.
var (
	errUnreachable        = &Trap{Kind: TrapUnreachable}
	errMemoryOutOfBounds  = &Trap{Kind: TrapMemoryOutOfBounds}
	errTableOutOfBounds   = &Trap{Kind: TrapTableOutOfBounds}
	errUndefinedElement   = &Trap{Kind: TrapUndefinedElement}
	errUninitialized      = &Trap{Kind: TrapUninitializedElement}
	errCallTypeMismatch   = &Trap{Kind: TrapIndirectCallTypeMismatch}
	errDivideByZero       = &Trap{Kind: TrapIntegerDivideByZero}
	errIntegerOverflow    = &Trap{Kind: TrapIntegerOverflow}
	errInvalidConversion  = &Trap{Kind: TrapInvalidConversionToInteger}
	errCallStackExhausted = &Trap{Kind: TrapCallStackExhausted}
	errBudgetExhausted    = &Trap{Kind: TrapBudgetExhausted}
)

// HostError wraps a failure returned (or panicked) by a host function. It is
// deliberately distinct from Trap so embedders can tell "the guest did
// something invalid" apart from "the host dependency failed".
type HostError struct {
	// FuncName is the import path of the host function, when known.
	FuncName string
	Err      error
}

func (e *HostError) Error() string {
	if e.FuncName == "" {
		return fmt.Sprintf("host function error: %v", e.Err)
	}
	return fmt.Sprintf("host function %s: %v", e.FuncName, e.Err)
}

func (e *HostError) Unwrap() error { return e.Err }

// OutOfRangeError is returned by the host-side memory and table accessors
// when a requested range falls outside the current size. These accessors run
// outside guest execution, so the failure is an ordinary error, not a Trap.
type OutOfRangeError struct {
	Offset uint64
	Length uint64
	Size   uint64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf(
		"access out of range: offset %d, length %d, size %d",
		e.Offset, e.Length, e.Size,
	)
}
