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

// Package report defines a single RAPPOR report and its wire format,
// "<user_id>,<cohort>,<bits>", where bits lists bit 0 first.
package report

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/rappor/go/bitvec"
)

var (
	// ErrMalformed is returned for lines that are not "<user>,<cohort>,<bits>".
	ErrMalformed = errors.New("malformed report")
	// ErrLengthMismatch is returned when the bit string is not exactly
	// NumBloomBits characters long.
	ErrLengthMismatch = errors.New("report bit string length mismatch")
	// ErrCohortRange is returned when the cohort is outside [0, NumCohorts).
	ErrCohortRange = errors.New("report cohort out of range")
)

// Report is the randomized response of one client for one value.
type Report struct {
	UserID  string
	Cohort  int
	Bits    []byte // IRR bits, packed little-endian within bytes.
	NumBits int
}

// String returns the wire format of r.
func (r *Report) String() string {
	return fmt.Sprintf("%s,%d,%s", r.UserID, r.Cohort, bitvec.ToBinaryString(r.Bits, r.NumBits))
}

// Bit reports whether bit i of the report is set.
func (r *Report) Bit(i int) bool {
	return bitvec.Get(r.Bits, i)
}

// FormatError describes a report line that could not be parsed.
type FormatError struct {
	Line  int // 1-based line number within the batch, 0 if unknown.
	Input string
	Err   error
}

func (e *FormatError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %q: %v", e.Line, e.Input, e.Err)
	}
	return fmt.Sprintf("%q: %v", e.Input, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// Parse decodes a report line. The user id may itself contain commas: the
// cohort and bits are taken from the last two fields. When numCohorts is 0 the
// cohort is only checked to be nonnegative.
//
// Errors wrap ErrMalformed, ErrLengthMismatch or ErrCohortRange.
func Parse(line string, numBits, numCohorts int) (*Report, error) {
	s := strings.TrimSpace(line)
	i := strings.LastIndexByte(s, ',')
	if i < 0 {
		return nil, fmt.Errorf("%w: expected 3 comma separated fields", ErrMalformed)
	}
	j := strings.LastIndexByte(s[:i], ',')
	if j < 0 {
		return nil, fmt.Errorf("%w: expected 3 comma separated fields", ErrMalformed)
	}
	cohort, err := strconv.Atoi(strings.TrimSpace(s[j+1 : i]))
	if err != nil {
		return nil, fmt.Errorf("%w: cohort %q is not an integer", ErrMalformed, s[j+1:i])
	}
	if cohort < 0 || (numCohorts > 0 && cohort >= numCohorts) {
		return nil, fmt.Errorf("%w: cohort %d, want [0, %d)", ErrCohortRange, cohort, numCohorts)
	}
	bitStr := strings.TrimSpace(s[i+1:])
	if len(bitStr) != numBits {
		return nil, fmt.Errorf("%w: got %d bits, want %d", ErrLengthMismatch, len(bitStr), numBits)
	}
	bits, err := bitvec.FromBinaryString(bitStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &Report{UserID: s[:j], Cohort: cohort, Bits: bits, NumBits: numBits}, nil
}
