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

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/apache/beam/sdks/v2/go/pkg/beam"
	"github.com/apache/beam/sdks/v2/go/pkg/beam/testing/passert"
	"github.com/apache/beam/sdks/v2/go/pkg/beam/testing/ptest"
	"github.com/google/go-cmp/cmp"
	"github.com/google/rappor/go/aggregate"
	"github.com/google/rappor/go/params"
	"github.com/google/rappor/go/report"
	"github.com/google/rappor/go/simulate"
)

func testParams(numCohorts int) params.Params {
	p := params.Default()
	p.NumCohorts = numCohorts
	return p
}

func toAny(lines []string) []any {
	out := make([]any, len(lines))
	for i, l := range lines {
		out[i] = l
	}
	return out
}

func TestSumBits(t *testing.T) {
	for _, tc := range []struct {
		desc  string
		lines []string
		opt   *aggregate.ParseOptions
	}{
		{
			desc:  "well formed",
			lines: []string{"5,1,0000111100001111", "5,1,0000000000111100"},
		},
		{
			desc:  "malformed lines skipped",
			lines: []string{"5,1,0000111100001111", "garbage", "5,1,0000000000111100", "5,7,0000000000111100", ""},
			opt:   &aggregate.ParseOptions{SkipMalformed: true},
		},
	} {
		p, s, col := ptest.CreateList(tc.lines)
		got := SumBits(s, testParams(2), col, tc.opt)
		passert.Equals(s, got,
			"0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0",
			"1,2,0,0,0,0,1,1,1,1,0,0,1,1,2,2,1,1")
		if err := ptest.Run(p); err != nil {
			t.Errorf("SumBits: when %s got error %v", tc.desc, err)
		}
	}
}

func TestSumBitsFailsOnMalformedReport(t *testing.T) {
	p, s, col := ptest.CreateList([]string{"5,1,0000111100001111", "5,1,000"})
	SumBits(s, testParams(2), col, nil)
	if err := ptest.Run(p); err == nil {
		t.Errorf("SumBits with a short report: pipeline succeeded, want an error")
	}
}

func TestSumBitsMatchesAggregate(t *testing.T) {
	prm := testParams(8)
	_, lines, err := simulate.Run(context.Background(), prm, &simulate.Options{NumClients: 60, ValuesPerClient: 3, Seed: 9})
	if err != nil {
		t.Fatalf("simulate.Run: %v", err)
	}
	sums, err := aggregate.SumBits(prm, lines)
	if err != nil {
		t.Fatalf("aggregate.SumBits: %v", err)
	}
	var want []string
	for c, l := range sums {
		want = append(want, fmt.Sprintf("%d,%s", c, l))
	}
	p, s, col := ptest.CreateList(lines)
	got := SumBits(s, prm, col, nil)
	passert.Equals(s, got, toAny(want)...)
	if err := ptest.Run(p); err != nil {
		t.Errorf("SumBits disagrees with aggregate.SumBits: %v", err)
	}
}

func TestCohortCountsKeys(t *testing.T) {
	p, s, col := ptest.CreateList([]string{"u,2,0000000000000001"})
	counts := CohortCounts(s, testParams(3), col, nil)
	passert.Count(s, beam.DropValue(s, counts), "cohorts", 3)
	if err := ptest.Run(p); err != nil {
		t.Errorf("CohortCounts: %v", err)
	}
}

func TestSumBitsFnMergeAccumulators(t *testing.T) {
	fn := &sumBitsFn{NumBits: 3}
	a := fn.CreateAccumulator()
	a = fn.AddInput(a, aggregate.CohortCounts{Reports: 1, BitSums: []int64{1, 0, 1}})
	b := fn.CreateAccumulator()
	b = fn.AddInput(b, aggregate.CohortCounts{Reports: 1, BitSums: []int64{0, 0, 1}})
	b = fn.AddInput(b, aggregate.CohortCounts{Reports: 1, BitSums: []int64{1, 1, 1}})
	got := fn.ExtractOutput(fn.MergeAccumulators(a, b))
	want := aggregate.CohortCounts{Reports: 3, BitSums: []int64{2, 1, 3}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("MergeAccumulators: got diff (-want +got):\n%s", diff)
	}
}

func TestCohortCountsCoder(t *testing.T) {
	cc := aggregate.CohortCounts{Reports: 4, BitSums: []int64{0, 3, 1}}
	data, err := encodeCohortCounts(cc)
	if err != nil {
		t.Fatalf("encodeCohortCounts: %v", err)
	}
	got, err := decodeCohortCounts(data)
	if err != nil {
		t.Fatalf("decodeCohortCounts: %v", err)
	}
	if diff := cmp.Diff(cc, got); diff != "" {
		t.Errorf("coder round trip: got diff (-want +got):\n%s", diff)
	}
}

func TestParseKeyedSums(t *testing.T) {
	c, err := ParseKeyedSums([]string{
		"2,1,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,1",
		"",
		"0,2,0,0,0,0,1,1,1,1,0,0,1,1,2,2,1,1",
	}, testParams(3))
	if err != nil {
		t.Fatalf("ParseKeyedSums: %v", err)
	}
	want := []string{
		"2,0,0,0,0,1,1,1,1,0,0,1,1,2,2,1,1",
		"0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0",
		"1,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,1",
	}
	if diff := cmp.Diff(want, c.CSV()); diff != "" {
		t.Errorf("ParseKeyedSums: got diff (-want +got):\n%s", diff)
	}
}

func TestParseKeyedSumsErrors(t *testing.T) {
	zeros := ",0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0"
	for _, tc := range []struct {
		desc    string
		lines   []string
		wantErr error
	}{
		{"too few fields", []string{"0,1,1"}, report.ErrLengthMismatch},
		{"not a number", []string{"x" + zeros}, report.ErrMalformed},
		{"cohort out of range", []string{"5" + zeros}, report.ErrCohortRange},
		{"duplicate cohort", []string{"1" + zeros, "1" + zeros}, report.ErrMalformed},
	} {
		if _, err := ParseKeyedSums(tc.lines, testParams(2)); !errors.Is(err, tc.wantErr) {
			t.Errorf("ParseKeyedSums: when %s got err %v, want %v", tc.desc, err, tc.wantErr)
		}
	}
}
