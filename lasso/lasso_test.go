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

package lasso

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"gonum.org/v1/gonum/mat"
)

const tolerance = 1e-3

// Three candidates over twelve rows: the first explains the large responses,
// the second the medium ones and the third only noise.
func fixture() (*mat.Dense, []float64) {
	cols := [][]float64{
		{1, 1, 0, 0, 1, 0, 0, 0, 1, 0, 0, 0},
		{0, 0, 1, 1, 0, 1, 0, 0, 0, 1, 0, 0},
		{0, 0, 0, 0, 0, 0, 1, 1, 0, 0, 1, 1},
	}
	d := mat.NewDense(12, 3, nil)
	for j, col := range cols {
		d.SetCol(j, col)
	}
	return d, []float64{0.9, 0.8, 0.3, 0.35, 0.85, 0.3, 0.05, 0.0, 0.9, 0.32, 0.02, 0.05}
}

func TestFit(t *testing.T) {
	design, y := fixture()
	for _, tc := range []struct {
		desc          string
		opt           *Options
		want          []float64
		wantConverged bool
		wantSweeps    int // 0 to skip the check
	}{
		{
			desc:          "moderate penalty",
			opt:           &Options{Lambda: 0.5},
			want:          []float64{2.056094, 1.353923, 0},
			wantConverged: true,
		},
		{
			desc:          "strong penalty keeps one candidate",
			opt:           &Options{Lambda: 1},
			want:          []float64{1.036982, 0, 0},
			wantConverged: true,
		},
		{
			desc:          "overwhelming penalty",
			opt:           &Options{Lambda: 100},
			want:          []float64{0, 0, 0},
			wantConverged: true,
			wantSweeps:    1,
		},
		{
			desc:       "sweep limit",
			opt:        &Options{Lambda: 0.5, MaxSweeps: 3},
			want:       []float64{1.757192, 0.365404, 0},
			wantSweeps: 3,
		},
	} {
		res, err := Fit(design, y, tc.opt)
		if err != nil {
			t.Fatalf("Fit: when %s got err %v", tc.desc, err)
		}
		if !cmp.Equal(res.Coefficients, tc.want, cmpopts.EquateApprox(0, tolerance)) {
			t.Errorf("Fit: when %s got coefficients %v, want %v", tc.desc, res.Coefficients, tc.want)
		}
		if res.Converged != tc.wantConverged {
			t.Errorf("Fit: when %s got converged %t, want %t", tc.desc, res.Converged, tc.wantConverged)
		}
		if tc.wantSweeps != 0 && res.Sweeps != tc.wantSweeps {
			t.Errorf("Fit: when %s got %d sweeps, want %d", tc.desc, res.Sweeps, tc.wantSweeps)
		}
	}
}

// A converged fit is a fixed point: restarting from its coefficients stops
// almost immediately at the same coefficients.
func TestWarmStartIsFixedPoint(t *testing.T) {
	design, y := fixture()
	for _, lambda := range []float64{0.5, 1, 100} {
		first, err := Fit(design, y, &Options{Lambda: lambda})
		if err != nil {
			t.Fatalf("Fit(λ=%f): %v", lambda, err)
		}
		second, err := Fit(design, y, &Options{Lambda: lambda, Initial: first.Coefficients})
		if err != nil {
			t.Fatalf("warm Fit(λ=%f): %v", lambda, err)
		}
		if !cmp.Equal(first.Coefficients, second.Coefficients, cmpopts.EquateApprox(0, tolerance)) {
			t.Errorf("warm Fit(λ=%f): got %v, want %v", lambda, second.Coefficients, first.Coefficients)
		}
		if !second.Converged || second.Sweeps > 2 {
			t.Errorf("warm Fit(λ=%f): converged=%t after %d sweeps, want convergence within 2 sweeps", lambda, second.Converged, second.Sweeps)
		}
	}
}

func TestUnpenalized(t *testing.T) {
	design, y := fixture()
	penalized, err := Fit(design, y, &Options{Lambda: 3, MaxSweeps: 200})
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if !cmp.Equal(penalized.Coefficients, []float64{0, 0, 0}) {
		t.Errorf("Fit(λ=3): got %v, want all zeros", penalized.Coefficients)
	}
	free, err := Fit(design, y, &Options{Lambda: 3, MaxSweeps: 200, Unpenalized: []int{0}})
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if free.Coefficients[0] < 10 || free.Coefficients[1] != 0 || free.Coefficients[2] != 0 {
		t.Errorf("Fit(λ=3, unpenalized 0): got %v, want a large first coefficient and zeros", free.Coefficients)
	}
}

func TestNegativeResponses(t *testing.T) {
	design, y := fixture()
	y[0], y[3] = -0.9, -0.35
	res, err := Fit(design, y, &Options{Lambda: 0.2})
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if want := []float64{0.878362, 0.844527, 0}; !cmp.Equal(res.Coefficients, want, cmpopts.EquateApprox(0, tolerance)) {
		t.Errorf("Fit: got %v, want %v", res.Coefficients, want)
	}
}

func TestZeroColumn(t *testing.T) {
	design := mat.NewDense(3, 2, []float64{1, 0, 1, 0, 0, 0})
	res, err := Fit(design, []float64{0.5, 0.5, 0.1}, &Options{Lambda: 0.1})
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if res.Coefficients[1] != 0 {
		t.Errorf("Fit: coefficient of an all-zero column is %f, want 0", res.Coefficients[1])
	}
}

func TestFitErrors(t *testing.T) {
	design, y := fixture()
	for _, tc := range []struct {
		desc     string
		response []float64
		opt      *Options
	}{
		{"short response", y[:5], nil},
		{"negative lambda", y, &Options{Lambda: -1}},
		{"wrong warm start", y, &Options{Initial: []float64{1}}},
		{"unpenalized out of range", y, &Options{Unpenalized: []int{3}}},
	} {
		if _, err := Fit(design, tc.response, tc.opt); err == nil {
			t.Errorf("Fit: when %s got nil error", tc.desc)
		}
	}
}
