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

package analytics

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/rappor/go/params"
)

const tolerance = 1e-9

func TestComputePrivacyGuarantees(t *testing.T) {
	for _, tc := range []struct {
		desc  string
		p     params.Params
		alpha float64
		n     int64
		want  Guarantees
	}{
		{
			desc:  "default parameters",
			p:     params.Default(),
			alpha: 0.05,
			n:     1000000,
			want:  Guarantees{EpsilonOne: 1.074285864166728, EpsilonInf: 4.394449154672439, DetectionFrequency: 0.0065278104600243044},
		},
		{
			desc:  "little permanent noise",
			p:     params.Params{NumBloomBits: 32, NumHashes: 2, NumCohorts: 32, ProbP: 0.25, ProbQ: 0.75, ProbF: 0.1},
			alpha: 0.05,
			n:     3000,
			want:  Guarantees{EpsilonOne: 3.8776022287524143, EpsilonInf: 11.777755916665761, DetectionFrequency: 0.02979816124247513},
		},
		{
			desc:  "p above q",
			p:     params.Params{NumBloomBits: 16, NumHashes: 2, NumCohorts: 1, ProbP: 0.75, ProbQ: 0.25, ProbF: 0.5},
			alpha: 0.05,
			n:     1000,
			want:  Guarantees{EpsilonOne: 2.043302495063963, EpsilonInf: 4.394449154672439, DetectionFrequency: 0.10072630218993345},
		},
	} {
		got, err := ComputePrivacyGuarantees(tc.p, tc.alpha, tc.n)
		if err != nil {
			t.Fatalf("ComputePrivacyGuarantees: when %s got err %v", tc.desc, err)
		}
		if !cmp.Equal(got, tc.want, cmpopts.EquateApprox(0, tolerance)) {
			t.Errorf("ComputePrivacyGuarantees: when %s got %+v, want %+v", tc.desc, got, tc.want)
		}
	}
}

func TestComputePrivacyGuaranteesEdgeCases(t *testing.T) {
	g, err := ComputePrivacyGuarantees(params.Default(), 0.05, 0)
	if err != nil {
		t.Fatalf("ComputePrivacyGuarantees with no reports: %v", err)
	}
	if !math.IsInf(g.DetectionFrequency, 1) {
		t.Errorf("DetectionFrequency with no reports = %f, want +Inf", g.DetectionFrequency)
	}
	noPRR := params.Default()
	noPRR.ProbF = 0
	if g, _ := ComputePrivacyGuarantees(noPRR, 0.05, 10); !math.IsInf(g.EpsilonInf, 1) {
		t.Errorf("EpsilonInf with f=0 = %f, want +Inf", g.EpsilonInf)
	}
	noSignal := params.Default()
	noSignal.ProbF = 1
	if _, err := ComputePrivacyGuarantees(noSignal, 0.05, 10); !errors.Is(err, params.ErrNoSignal) {
		t.Errorf("ComputePrivacyGuarantees with f=1: got err %v, want ErrNoSignal", err)
	}
	if _, err := ComputePrivacyGuarantees(params.Default(), 1.5, 10); err == nil {
		t.Errorf("ComputePrivacyGuarantees with alpha=1.5: got nil error")
	}
}

func TestComputePerformance(t *testing.T) {
	y := []float64{1, 2, 3, 4}
	for _, tc := range []struct {
		desc   string
		stdevs []float64
		fitted []float64
		want   Performance
	}{
		{"perfect fit", []float64{0, 0, 0, 0}, []float64{1, 2, 3, 4}, Performance{Explained: 1, Missing: 0}},
		{"constant fit", []float64{0, 0, 0, 0}, []float64{2.5, 2.5, 2.5, 2.5}, Performance{Explained: 0, Missing: 1}},
		{"constant fit with noise", []float64{0.5, 0.5, 0.5, 0.5}, []float64{2.5, 2.5, 2.5, 2.5}, Performance{Explained: 0, Missing: 0.8}},
		{"noise explains residuals", []float64{3, 3, 3, 3}, []float64{0, 2, 3, 5}, Performance{Explained: 0.6, Missing: 0}},
		{"worse than constant", []float64{0, 0, 0, 0}, []float64{4, 3, 2, 1}, Performance{Explained: 0, Missing: 1}},
	} {
		got, err := ComputePerformance(y, tc.stdevs, tc.fitted)
		if err != nil {
			t.Fatalf("ComputePerformance: when %s got err %v", tc.desc, err)
		}
		if !cmp.Equal(got, tc.want, cmpopts.EquateApprox(0, tolerance)) {
			t.Errorf("ComputePerformance: when %s got %+v, want %+v", tc.desc, got, tc.want)
		}
	}
	if got, _ := ComputePerformance([]float64{2, 2}, []float64{0, 0}, []float64{1, 3}); got != (Performance{}) {
		t.Errorf("ComputePerformance of a constant response: got %+v, want zeros", got)
	}
	if _, err := ComputePerformance(y, y[:2], y); err == nil {
		t.Errorf("ComputePerformance with mismatched lengths: got nil error")
	}
}
