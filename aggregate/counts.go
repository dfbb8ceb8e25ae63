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

// Package aggregate sums RAPPOR reports per cohort into the bit counts the
// decoder consumes.
package aggregate

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/rappor/go/params"
	"github.com/google/rappor/go/report"
)

// ErrIncompatible is returned when combining counts of different shapes or
// adding reports that do not fit the counts.
var ErrIncompatible = errors.New("incompatible counts")

// CohortCounts holds the number of reports received in a cohort and, for each
// bloom bit, how many of them had that bit set.
type CohortCounts struct {
	Reports int64
	BitSums []int64
}

// Counts accumulates reports for every cohort.
//
// Not thread-safe. Aggregate shards in separate Counts and Merge them.
type Counts struct {
	numBits int
	cohorts []CohortCounts
	skipped int64 // malformed reports dropped by ParseReports
	state   aggregationState
}

// NewCounts returns empty counts for the given parameters.
func NewCounts(p params.Params) *Counts {
	return newCounts(p.NumCohorts, p.NumBloomBits)
}

func newCounts(numCohorts, numBits int) *Counts {
	if numCohorts < 0 {
		numCohorts = 0
	}
	c := &Counts{numBits: numBits, cohorts: make([]CohortCounts, numCohorts)}
	for i := range c.cohorts {
		c.cohorts[i].BitSums = make([]int64, numBits)
	}
	return c
}

// FromCohorts builds counts from per-cohort totals, e.g. read back from a
// previous aggregation. The slices are copied.
func FromCohorts(numBits int, cohorts []CohortCounts) (*Counts, error) {
	c := newCounts(len(cohorts), numBits)
	for i, cc := range cohorts {
		if len(cc.BitSums) != numBits {
			return nil, fmt.Errorf("%w: cohort %d has %d bit sums, want %d", ErrIncompatible, i, len(cc.BitSums), numBits)
		}
		if cc.Reports < 0 {
			return nil, fmt.Errorf("%w: cohort %d has %d reports", ErrIncompatible, i, cc.Reports)
		}
		c.cohorts[i].Reports = cc.Reports
		copy(c.cohorts[i].BitSums, cc.BitSums)
	}
	return c, nil
}

// NumCohorts returns the number of cohorts.
func (c *Counts) NumCohorts() int { return len(c.cohorts) }

// NumBits returns the bloom filter width.
func (c *Counts) NumBits() int { return c.numBits }

// Skipped returns the number of malformed reports that were dropped.
func (c *Counts) Skipped() int64 { return c.skipped }

// Cohort returns a copy of the counts of cohort i.
func (c *Counts) Cohort(i int) CohortCounts {
	cc := c.cohorts[i]
	return CohortCounts{Reports: cc.Reports, BitSums: append([]int64(nil), cc.BitSums...)}
}

// Cohorts returns a copy of the counts of every cohort.
func (c *Counts) Cohorts() []CohortCounts {
	out := make([]CohortCounts, len(c.cohorts))
	for i := range out {
		out[i] = c.Cohort(i)
	}
	return out
}

// Total returns the number of reports over all cohorts.
func (c *Counts) Total() int64 {
	var n int64
	for _, cc := range c.cohorts {
		n += cc.Reports
	}
	return n
}

// Add counts a report.
func (c *Counts) Add(r *report.Report) error {
	if c.state != defaultState {
		return fmt.Errorf("Add: %s", c.state.errorMessage())
	}
	if r.Cohort < 0 || r.Cohort >= len(c.cohorts) {
		return fmt.Errorf("%w: cohort %d, want [0, %d)", report.ErrCohortRange, r.Cohort, len(c.cohorts))
	}
	if r.NumBits != c.numBits {
		return fmt.Errorf("%w: got %d bits, want %d", report.ErrLengthMismatch, r.NumBits, c.numBits)
	}
	cc := &c.cohorts[r.Cohort]
	cc.Reports++
	for i := 0; i < c.numBits; i++ {
		if r.Bit(i) {
			cc.BitSums[i]++
		}
	}
	return nil
}

// AddLine parses and counts a report line.
func (c *Counts) AddLine(line string) error {
	r, err := report.Parse(line, c.numBits, len(c.cohorts))
	if err != nil {
		return err
	}
	return c.Add(r)
}

// Merge merges c2 into c (i.e., adds to c all reports that were added to c2).
// c2 is consumed by this operation: it may not be used after it is merged
// into c.
func (c *Counts) Merge(c2 *Counts) error {
	if err := checkMerge(c, c2); err != nil {
		return err
	}
	for i := range c.cohorts {
		c.cohorts[i].Reports += c2.cohorts[i].Reports
		for j, s := range c2.cohorts[i].BitSums {
			c.cohorts[i].BitSums[j] += s
		}
	}
	c.skipped += c2.skipped
	c2.state = merged
	return nil
}

func checkMerge(c1, c2 *Counts) error {
	if c1 == c2 {
		return fmt.Errorf("checkMerge: cannot merge Counts into itself")
	}
	if c1.state != defaultState {
		return fmt.Errorf("checkMerge: c1 cannot be merged: %s", c1.state.errorMessage())
	}
	if c2.state != defaultState {
		return fmt.Errorf("checkMerge: c2 cannot be merged: %s", c2.state.errorMessage())
	}
	if c1.numBits != c2.numBits || len(c1.cohorts) != len(c2.cohorts) {
		return fmt.Errorf("checkMerge: %w: %d cohorts × %d bits vs %d cohorts × %d bits",
			ErrIncompatible, len(c1.cohorts), c1.numBits, len(c2.cohorts), c2.numBits)
	}
	return nil
}

// CSV renders one line per cohort, in cohort order:
// "<reports>,<bit_sum_0>,…,<bit_sum_k-1>".
func (c *Counts) CSV() []string {
	out := make([]string, len(c.cohorts))
	var sb strings.Builder
	for i, cc := range c.cohorts {
		sb.Reset()
		sb.WriteString(strconv.FormatInt(cc.Reports, 10))
		for _, s := range cc.BitSums {
			sb.WriteByte(',')
			sb.WriteString(strconv.FormatInt(s, 10))
		}
		out[i] = sb.String()
	}
	return out
}

// ParseCSV reads counts in the format written by CSV. Blank lines are ignored;
// there must be exactly one line per cohort.
func ParseCSV(lines []string, p params.Params) (*Counts, error) {
	c := NewCounts(p)
	cohort := 0
	for n, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if cohort >= p.NumCohorts {
			return nil, fmt.Errorf("%w: more than %d cohort lines", ErrIncompatible, p.NumCohorts)
		}
		fields := strings.Split(line, ",")
		if len(fields) != p.NumBloomBits+1 {
			return nil, &report.FormatError{Line: n + 1, Input: line,
				Err: fmt.Errorf("%w: got %d fields, want %d", report.ErrLengthMismatch, len(fields), p.NumBloomBits+1)}
		}
		cc := &c.cohorts[cohort]
		for i, f := range fields {
			v, err := strconv.ParseInt(strings.TrimSpace(f), 10, 64)
			if err != nil || v < 0 {
				return nil, &report.FormatError{Line: n + 1, Input: line,
					Err: fmt.Errorf("%w: field %d is %q, want a nonnegative integer", report.ErrMalformed, i, f)}
			}
			if i == 0 {
				cc.Reports = v
			} else {
				cc.BitSums[i-1] = v
			}
		}
		cohort++
	}
	if cohort != p.NumCohorts {
		return nil, fmt.Errorf("%w: got %d cohort lines, want %d", ErrIncompatible, cohort, p.NumCohorts)
	}
	return c, nil
}
