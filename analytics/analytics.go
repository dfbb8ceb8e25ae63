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

// Package analytics computes the formal privacy guarantees of a RAPPOR
// configuration and goodness-of-fit metrics for decoded results.
package analytics

import (
	"fmt"
	"math"

	"github.com/google/rappor/go/checks"
	"github.com/google/rappor/go/params"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Guarantees describes the privacy of a configuration.
type Guarantees struct {
	// EpsilonOne bounds the privacy loss of a single report (ε₁).
	EpsilonOne float64
	// EpsilonInf bounds the privacy loss of infinitely many reports of the
	// same value, i.e. of the PRR (ε∞).
	EpsilonInf float64
	// DetectionFrequency is the smallest population frequency detectable at
	// significance alpha among N reports.
	DetectionFrequency float64
}

// ComputePrivacyGuarantees returns the guarantees of p for n reports at
// significance alpha. With no reports nothing is detectable and
// DetectionFrequency is +Inf.
func ComputePrivacyGuarantees(p params.Params, alpha float64, n int64) (Guarantees, error) {
	if err := p.CheckSignal(); err != nil {
		return Guarantees{}, err
	}
	if err := checks.CheckAlpha(alpha); err != nil {
		return Guarantees{}, err
	}
	f, pp, q, h := p.ProbF, p.ProbP, p.ProbQ, float64(p.NumHashes)
	q2 := 0.5*f*(pp+q) + (1-f)*q
	p2 := 0.5*f*(pp+q) + (1-f)*pp
	// |h·ln r| = ln(max(r, 1/r)^h): ratios below one are inverted.
	g := Guarantees{
		EpsilonOne: math.Abs(h * math.Log((q2*(1-p2))/(p2*(1-q2)))),
		EpsilonInf: math.Abs(2 * h * math.Log((1-f/2)/(f/2))),
	}
	if n <= 0 {
		g.DetectionFrequency = math.Inf(1)
		return g, nil
	}
	N := float64(n)
	z := distuv.UnitNormal.Quantile(1 - alpha)
	g.DetectionFrequency = z * math.Sqrt(p2*(1-p2)*N) / (math.Abs(q2-p2) * N)
	return g, nil
}

// Performance summarizes how well fitted values explain the estimated bit
// frequencies.
type Performance struct {
	// Explained is the fraction of the variance of the response explained
	// by the fit.
	Explained float64
	// Missing is the fraction of the variance of the response left in the
	// residuals beyond what the estimation noise accounts for.
	Missing float64
	// MassCovered is not computed yet and is always 0.
	MassCovered float64
}

// ComputePerformance compares a response with fitted values. stdevs are the
// standard deviations of the response. All three slices must have the same
// length. Both fractions are clamped to [0, 1]; a constant response yields 0.
func ComputePerformance(response, stdevs, fitted []float64) (Performance, error) {
	if len(stdevs) != len(response) || len(fitted) != len(response) {
		return Performance{}, fmt.Errorf("ComputePerformance: got %d responses, %d stdevs and %d fitted values",
			len(response), len(stdevs), len(fitted))
	}
	if len(response) == 0 {
		return Performance{}, nil
	}
	varY := stat.PopVariance(response, nil)
	if !(varY > 0) {
		return Performance{}, nil
	}
	resid := make([]float64, len(response))
	noiseVar := make([]float64, len(response))
	for i := range response {
		resid[i] = response[i] - fitted[i]
		noiseVar[i] = stdevs[i] * stdevs[i]
	}
	varResid := stat.PopVariance(resid, nil)
	return Performance{
		Explained: clamp01(1 - varResid/varY),
		Missing:   clamp01(math.Max(0, varResid-stat.Mean(noiseVar, nil)) / varY),
	}, nil
}

func clamp01(x float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	return math.Max(0, math.Min(1, x))
}
