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

// Package pipeline aggregates RAPPOR reports on Apache Beam.
//
// SumBits is the distributed counterpart of aggregate.SumBits: it groups
// report lines by cohort with a CombinePerKey and emits one keyed line per
// cohort, "<cohort>,<reports>,<bit_sum_0>,…", including cohorts that received
// no report. ParseKeyedSums turns the collected output back into
// aggregate.Counts.
package pipeline

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/apache/beam/sdks/v2/go/pkg/beam"
	"github.com/apache/beam/sdks/v2/go/pkg/beam/io/textio"
	"github.com/apache/beam/sdks/v2/go/pkg/beam/register"
	log "github.com/golang/glog"
	"github.com/google/rappor/go/aggregate"
	"github.com/google/rappor/go/params"
	"github.com/google/rappor/go/report"
)

func init() {
	beam.RegisterCoder(reflect.TypeOf(aggregate.CohortCounts{}), encodeCohortCounts, decodeCohortCounts)
	register.DoFn3x1[context.Context, string, func(int, aggregate.CohortCounts), error](&parseReportFn{})
	register.Emitter2[int, aggregate.CohortCounts]()
	register.DoFn1x2[int, int, aggregate.CohortCounts](&emptyCohortFn{})
	register.Combiner1[aggregate.CohortCounts](&sumBitsFn{})
	register.Function2x1[int, aggregate.CohortCounts, string](formatCohort)
}

// parseReportFn turns a report line into a single-report CohortCounts keyed
// by its cohort.
type parseReportFn struct {
	NumBits       int
	NumCohorts    int
	SkipMalformed bool
	skipped       beam.Counter
}

func (fn *parseReportFn) Setup() {
	fn.skipped = beam.NewCounter("rappor", "skipped_reports")
}

func (fn *parseReportFn) ProcessElement(ctx context.Context, line string, emit func(int, aggregate.CohortCounts)) error {
	if strings.TrimSpace(line) == "" {
		return nil
	}
	r, err := report.Parse(line, fn.NumBits, fn.NumCohorts)
	if err != nil {
		fe := &report.FormatError{Input: line, Err: err}
		if !fn.SkipMalformed {
			return fe
		}
		log.Warningf("skipping malformed report: %v", fe)
		fn.skipped.Inc(ctx, 1)
		return nil
	}
	cc := aggregate.CohortCounts{Reports: 1, BitSums: make([]int64, fn.NumBits)}
	for i := range cc.BitSums {
		if r.Bit(i) {
			cc.BitSums[i] = 1
		}
	}
	emit(r.Cohort, cc)
	return nil
}

// emptyCohortFn emits zero counts for a cohort, so that cohorts without
// reports still appear in the output.
type emptyCohortFn struct {
	NumBits int
}

func (fn *emptyCohortFn) ProcessElement(cohort int) (int, aggregate.CohortCounts) {
	return cohort, aggregate.CohortCounts{BitSums: make([]int64, fn.NumBits)}
}

// sumBitsFn adds up the counts of a cohort.
type sumBitsFn struct {
	NumBits int
}

func (fn *sumBitsFn) CreateAccumulator() aggregate.CohortCounts {
	return aggregate.CohortCounts{BitSums: make([]int64, fn.NumBits)}
}

func (fn *sumBitsFn) AddInput(a, cc aggregate.CohortCounts) aggregate.CohortCounts {
	return fn.MergeAccumulators(a, cc)
}

func (fn *sumBitsFn) MergeAccumulators(a, b aggregate.CohortCounts) aggregate.CohortCounts {
	if len(a.BitSums) < fn.NumBits {
		a.BitSums = append(a.BitSums, make([]int64, fn.NumBits-len(a.BitSums))...)
	}
	a.Reports += b.Reports
	for i, s := range b.BitSums {
		a.BitSums[i] += s
	}
	return a
}

func (fn *sumBitsFn) ExtractOutput(a aggregate.CohortCounts) aggregate.CohortCounts {
	return a
}

func formatCohort(cohort int, cc aggregate.CohortCounts) string {
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(cohort))
	sb.WriteByte(',')
	sb.WriteString(strconv.FormatInt(cc.Reports, 10))
	for _, s := range cc.BitSums {
		sb.WriteByte(',')
		sb.WriteString(strconv.FormatInt(s, 10))
	}
	return sb.String()
}

// CohortCounts sums the reports of a PCollection<string> of report lines per
// cohort. It returns a PCollection<KV<int, aggregate.CohortCounts>> with one
// element for every cohort in [0, p.NumCohorts).
func CohortCounts(s beam.Scope, p params.Params, lines beam.PCollection, opt *aggregate.ParseOptions) beam.PCollection {
	s = s.Scope("rappor.CohortCounts")
	if err := p.Validate(); err != nil {
		log.Fatalf("pipeline.CohortCounts: %v", err)
	}
	if opt == nil {
		opt = &aggregate.ParseOptions{}
	}
	parsed := beam.ParDo(s, &parseReportFn{
		NumBits:       p.NumBloomBits,
		NumCohorts:    p.NumCohorts,
		SkipMalformed: opt.SkipMalformed,
	}, lines)
	cohorts := make([]int, p.NumCohorts)
	for i := range cohorts {
		cohorts[i] = i
	}
	empty := beam.ParDo(s, &emptyCohortFn{NumBits: p.NumBloomBits}, beam.CreateList(s, cohorts))
	all := beam.Flatten(s, empty, parsed)
	return beam.CombinePerKey(s, &sumBitsFn{NumBits: p.NumBloomBits}, all)
}

// SumBits sums a PCollection<string> of report lines and returns a
// PCollection<string> of keyed cohort lines.
func SumBits(s beam.Scope, p params.Params, lines beam.PCollection, opt *aggregate.ParseOptions) beam.PCollection {
	s = s.Scope("rappor.SumBits")
	return beam.ParDo(s, formatCohort, CohortCounts(s, p, lines, opt))
}

// SumBitsFiles reads report lines from the files matching in, sums them and
// writes the keyed cohort lines to out.
func SumBitsFiles(s beam.Scope, p params.Params, in, out string, opt *aggregate.ParseOptions) {
	s = s.Scope("rappor.SumBitsFiles")
	lines := textio.Read(s, in)
	textio.Write(s, out, SumBits(s, p, lines, opt))
}

// ParseKeyedSums reads the lines produced by SumBits, in any order, back into
// counts.
func ParseKeyedSums(lines []string, p params.Params) (*aggregate.Counts, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	cohorts := make([]aggregate.CohortCounts, p.NumCohorts)
	seen := make([]bool, p.NumCohorts)
	for n, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) != p.NumBloomBits+2 {
			return nil, &report.FormatError{Line: n + 1, Input: line,
				Err: fmt.Errorf("%w: got %d fields, want %d", report.ErrLengthMismatch, len(fields), p.NumBloomBits+2)}
		}
		vals := make([]int64, len(fields))
		for i, f := range fields {
			v, err := strconv.ParseInt(strings.TrimSpace(f), 10, 64)
			if err != nil {
				return nil, &report.FormatError{Line: n + 1, Input: line, Err: fmt.Errorf("%w: %v", report.ErrMalformed, err)}
			}
			vals[i] = v
		}
		c := vals[0]
		if c < 0 || c >= int64(p.NumCohorts) {
			return nil, &report.FormatError{Line: n + 1, Input: line,
				Err: fmt.Errorf("%w: cohort %d, want [0, %d)", report.ErrCohortRange, c, p.NumCohorts)}
		}
		if seen[c] {
			return nil, &report.FormatError{Line: n + 1, Input: line, Err: fmt.Errorf("%w: duplicate cohort %d", report.ErrMalformed, c)}
		}
		seen[c] = true
		cohorts[c] = aggregate.CohortCounts{Reports: vals[1], BitSums: vals[2:]}
	}
	for c, ok := range seen {
		if !ok {
			cohorts[c].BitSums = make([]int64, p.NumBloomBits)
		}
	}
	return aggregate.FromCohorts(p.NumBloomBits, cohorts)
}
