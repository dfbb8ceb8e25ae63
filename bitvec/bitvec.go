//
// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

// Package bitvec provides helpers for fixed-width bit vectors stored as byte
// slices. Bit i lives in byte i/8 at position i%8, so the binary string of a
// vector lists the low bit of each byte first.
package bitvec

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// ByteLen returns the number of bytes needed to hold n bits.
func ByteLen(n int) int {
	return (n + 7) / 8
}

// New returns a zeroed vector wide enough for n bits.
func New(n int) []byte {
	return make([]byte, ByteLen(n))
}

// Get reports whether bit i of v is set.
func Get(v []byte, i int) bool {
	return v[i/8]&(1<<(i%8)) != 0
}

// Set sets bit i of v.
func Set(v []byte, i int) {
	v[i/8] |= 1 << (i % 8)
}

// at returns v[i], or 0 past the end of v.
func at(v []byte, i int) byte {
	if i < len(v) {
		return v[i]
	}
	return 0
}

// And returns a & b, with the width of a.
func And(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range out {
		out[i] = a[i] & at(b, i)
	}
	return out
}

// Or returns a | b, with the width of a.
func Or(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range out {
		out[i] = a[i] | at(b, i)
	}
	return out
}

// AndNot returns a &^ b, with the width of a.
func AndNot(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range out {
		out[i] = a[i] &^ at(b, i)
	}
	return out
}

// Not returns the bitwise complement of a. Padding bits past the logical width
// are flipped as well; callers only ever read the first n bits.
func Not(a []byte) []byte {
	out := make([]byte, len(a))
	for i := range out {
		out[i] = ^a[i]
	}
	return out
}

// Select returns (a & mask) | (b &^ mask): bits of a where mask is set and
// bits of b elsewhere.
func Select(mask, a, b []byte) []byte {
	out := make([]byte, len(mask))
	for i := range out {
		out[i] = (at(a, i) & mask[i]) | (at(b, i) &^ mask[i])
	}
	return out
}

// ToBinaryString renders the first n bits of v as '0' and '1' characters.
func ToBinaryString(v []byte, n int) string {
	var sb strings.Builder
	sb.Grow(n)
	for i := 0; i < n; i++ {
		if Get(v, i) {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

// FromBinaryString parses a string of '0' and '1' characters into a vector of
// len(s) bits.
func FromBinaryString(s string) ([]byte, error) {
	out := New(len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '1':
			Set(out, i)
		case '0':
		default:
			return nil, fmt.Errorf("bitvec: invalid character %q at position %d", s[i], i)
		}
	}
	return out, nil
}

// ToHexString renders v as lowercase hex, two characters per byte.
func ToHexString(v []byte) string {
	return hex.EncodeToString(v)
}

// FromHexString parses a hex string produced by ToHexString. The result must
// be exactly n bytes long.
func FromHexString(s string, n int) ([]byte, error) {
	if len(s) != 2*n {
		return nil, fmt.Errorf("bitvec: hex string %q has %d characters, want %d", s, len(s), 2*n)
	}
	out, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("bitvec: %w", err)
	}
	return out, nil
}

// Count returns the number of set bits among the first n bits of v.
func Count(v []byte, n int) int {
	c := 0
	for i := 0; i < n; i++ {
		if Get(v, i) {
			c++
		}
	}
	return c
}
