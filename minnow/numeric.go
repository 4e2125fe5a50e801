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
	"math"
	"math/bits"
)

// Float bounds for the trapping truncations, written as the first power of
// two past the integer range so the >= comparison is exact in float64.
const (
	maxInt32Plus1  = 2147483648.0
	maxUint32Plus1 = 4294967296.0
	maxInt64Plus1  = 9223372036854775808.0
	maxUint64Plus1 = 18446744073709551616.0
)

func divS32(a, b int32) (int32, error) {
	if b == 0 {
		return 0, errDivideByZero
	}
	if a == math.MinInt32 && b == -1 {
		return 0, errIntegerOverflow
	}
	return a / b, nil
}

func divS64(a, b int64) (int64, error) {
	if b == 0 {
		return 0, errDivideByZero
	}
	if a == math.MinInt64 && b == -1 {
		return 0, errIntegerOverflow
	}
	return a / b, nil
}

func divU32(a, b uint32) (uint32, error) {
	if b == 0 {
		return 0, errDivideByZero
	}
	return a / b, nil
}

func divU64(a, b uint64) (uint64, error) {
	if b == 0 {
		return 0, errDivideByZero
	}
	return a / b, nil
}

// remS32 never overflows: MinInt32 % -1 is 0.
func remS32(a, b int32) (int32, error) {
	if b == 0 {
		return 0, errDivideByZero
	}
	if b == -1 {
		return 0, nil
	}
	return a % b, nil
}

func remS64(a, b int64) (int64, error) {
	if b == 0 {
		return 0, errDivideByZero
	}
	if b == -1 {
		return 0, nil
	}
	return a % b, nil
}

func remU32(a, b uint32) (uint32, error) {
	if b == 0 {
		return 0, errDivideByZero
	}
	return a % b, nil
}

func remU64(a, b uint64) (uint64, error) {
	if b == 0 {
		return 0, errDivideByZero
	}
	return a % b, nil
}

func rotl32(a uint32, n uint32) uint32 { return bits.RotateLeft32(a, int(n&31)) }
func rotr32(a uint32, n uint32) uint32 { return bits.RotateLeft32(a, -int(n&31)) }
func rotl64(a uint64, n uint64) uint64 { return bits.RotateLeft64(a, int(n&63)) }
func rotr64(a uint64, n uint64) uint64 { return bits.RotateLeft64(a, -int(n&63)) }

// nearest is round-half-to-even, preserving the sign of a zero result.
func nearest(a float64) float64 {
	return math.Copysign(math.RoundToEven(a), a)
}

func truncF64ToI32S(a float64) (int32, error) {
	if math.IsNaN(a) {
		return 0, errInvalidConversion
	}
	t := math.Trunc(a)
	if t < math.MinInt32 || t >= maxInt32Plus1 {
		return 0, errIntegerOverflow
	}
	return int32(t), nil
}

func truncF64ToI32U(a float64) (uint32, error) {
	if math.IsNaN(a) {
		return 0, errInvalidConversion
	}
	t := math.Trunc(a)
	if t <= -1 || t >= maxUint32Plus1 {
		return 0, errIntegerOverflow
	}
	return uint32(t), nil
}

func truncF64ToI64S(a float64) (int64, error) {
	if math.IsNaN(a) {
		return 0, errInvalidConversion
	}
	t := math.Trunc(a)
	if t < math.MinInt64 || t >= maxInt64Plus1 {
		return 0, errIntegerOverflow
	}
	return int64(t), nil
}

func truncF64ToI64U(a float64) (uint64, error) {
	if math.IsNaN(a) {
		return 0, errInvalidConversion
	}
	t := math.Trunc(a)
	if t <= -1 || t >= maxUint64Plus1 {
		return 0, errIntegerOverflow
	}
	return uint64(t), nil
}

func truncSatF64ToI32S(a float64) int32 {
	if math.IsNaN(a) {
		return 0
	}
	if a < math.MinInt32 {
		return math.MinInt32
	}
	if a >= maxInt32Plus1 {
		return math.MaxInt32
	}
	return int32(a)
}

func truncSatF64ToI32U(a float64) uint32 {
	if math.IsNaN(a) || a < 0 {
		return 0
	}
	if a >= maxUint32Plus1 {
		return math.MaxUint32
	}
	return uint32(a)
}

func truncSatF64ToI64S(a float64) int64 {
	if math.IsNaN(a) {
		return 0
	}
	if a < math.MinInt64 {
		return math.MinInt64
	}
	if a >= maxInt64Plus1 {
		return math.MaxInt64
	}
	return int64(a)
}

func truncSatF64ToI64U(a float64) uint64 {
	if math.IsNaN(a) || a < 0 {
		return 0
	}
	if a >= maxUint64Plus1 {
		return math.MaxUint64
	}
	return uint64(a)
}

func boolBit(v bool) uint64 {
	if v {
		return 1
	}
	return 0
}
