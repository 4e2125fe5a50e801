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
	"unicode/utf8"
)

var (
	errUnexpectedEnd     = errors.New("unexpected end of section or function")
	errIntTooLong        = errors.New("integer representation too long")
	errIntTooLarge       = errors.New("integer too large")
	errMalformedUTF8Name = errors.New("malformed UTF-8 encoding")
)

const (
	continuationBit = 0x80
	payloadMask     = 0x7f
	signBit         = 0x40
)

// byteReader walks a byte slice with position tracking, so every decode
// failure can report the exact offset. LEB128 readers reject encodings longer
// than ceil(N/7) bytes and encodings whose final-byte spare bits disagree
// with the value's sign, per the binary format's canonicality rules.
type byteReader struct {
	data []byte
	pos  int
	// base is the offset of data[0] within the whole input, so sub-readers
	// over section payloads still report absolute offsets.
	base int
}

func newByteReader(data []byte) *byteReader {
	return &byteReader{data: data}
}

// sub returns a reader over the next n bytes, consuming them.
func (r *byteReader) sub(n int) (*byteReader, error) {
	raw, err := r.readBytes(n)
	if err != nil {
		return nil, err
	}
	return &byteReader{data: raw, base: r.base + r.pos - n}, nil
}

// offset returns the absolute offset of the next unread byte.
func (r *byteReader) offset() int {
	return r.base + r.pos
}

func (r *byteReader) hasMore() bool {
	return r.pos < len(r.data)
}

func (r *byteReader) remaining() int {
	return len(r.data) - r.pos
}

func (r *byteReader) readByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, errUnexpectedEnd
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *byteReader) readBytes(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.data) {
		return nil, errUnexpectedEnd
	}
	out := r.data[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

// readUnsigned decodes a ULEB128 value of at most bits significant bits.
func (r *byteReader) readUnsigned(bits uint) (uint64, error) {
	maxBytes := int(bits+6) / 7
	var result uint64
	var shift uint
	for i := 0; ; i++ {
		b, err := r.readByte()
		if err != nil {
			return 0, err
		}
		if i+1 > maxBytes {
			return 0, errIntTooLong
		}
		group := uint64(b & payloadMask)
		// The final byte may only carry the bits that fit.
		if used := bits % 7; i+1 == maxBytes && used != 0 && group>>used != 0 {
			return 0, errIntTooLarge
		}
		result |= group << shift
		if b&continuationBit == 0 {
			return result, nil
		}
		shift += 7
	}
}

// readSigned decodes an SLEB128 value of at most bits significant bits.
func (r *byteReader) readSigned(bits uint) (int64, error) {
	maxBytes := int(bits+6) / 7
	var result int64
	var shift uint
	var b byte
	var err error
	for i := 0; ; i++ {
		b, err = r.readByte()
		if err != nil {
			return 0, err
		}
		if i+1 > maxBytes {
			return 0, errIntTooLong
		}
		if i+1 == maxBytes {
			// The spare bits of the final byte must all equal the sign bit.
			used := bits - 7*uint(maxBytes-1)
			spare := (b & payloadMask) >> (used - 1)
			if spare != 0 && spare != payloadMask>>(used-1) {
				return 0, errIntTooLarge
			}
		}
		result |= int64(b&payloadMask) << shift
		shift += 7
		if b&continuationBit == 0 {
			break
		}
	}
	if shift < 64 && b&signBit != 0 {
		result |= -1 << shift
	}
	return result, nil
}

func (r *byteReader) readU32() (uint32, error) {
	v, err := r.readUnsigned(32)
	return uint32(v), err
}

func (r *byteReader) readU64() (uint64, error) {
	return r.readUnsigned(64)
}

func (r *byteReader) readS32() (int32, error) {
	v, err := r.readSigned(32)
	return int32(v), err
}

func (r *byteReader) readS33() (int64, error) {
	return r.readSigned(33)
}

func (r *byteReader) readS64() (int64, error) {
	return r.readSigned(64)
}

// readF32bits reads a little-endian 4-byte float as its raw bit pattern.
func (r *byteReader) readF32bits() (uint32, error) {
	b, err := r.readBytes(4)
	if err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}

// readF64bits reads a little-endian 8-byte float as its raw bit pattern.
func (r *byteReader) readF64bits() (uint64, error) {
	b, err := r.readBytes(8)
	if err != nil {
		return 0, err
	}
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v, nil
}

// readName reads a length-prefixed name and checks it is valid UTF-8.
func (r *byteReader) readName() (string, error) {
	length, err := r.readU32()
	if err != nil {
		return "", err
	}
	raw, err := r.readBytes(int(length))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(raw) {
		return "", errMalformedUTF8Name
	}
	return string(raw), nil
}
