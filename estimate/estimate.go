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

// Package estimate inverts the RAPPOR randomization on aggregated counts,
// estimating for every cohort and bit the fraction of reports whose bloom
// filter had that bit set.
package estimate

import (
	"fmt"
	"math"

	"github.com/google/rappor/go/aggregate"
	"github.com/google/rappor/go/noise"
	"github.com/google/rappor/go/params"
	"github.com/google/rappor/go/rand"
)

// Estimate holds per-cohort, per-bit estimates of the true bloom bit
// frequencies and their standard deviations.
type Estimate struct {
	Means  [][]float64
	Stdevs [][]float64
}

// Rates returns the probabilities that a reported bit is set when the
// underlying bloom bit is set (p11) and when it is not (p01).
func Rates(p params.Params) (p11, p01 float64) {
	p11 = p.ProbQ*(1-p.ProbF/2) + p.ProbP*p.ProbF/2
	p01 = p.ProbP*(1-p.ProbF/2) + p.ProbQ*p.ProbF/2
	return p11, p01
}

func finiteOrZero(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}

func checkShape(c *aggregate.Counts, p params.Params) error {
	if c.NumCohorts() != p.NumCohorts || c.NumBits() != p.NumBloomBits {
		return fmt.Errorf("%w: counts have %d cohorts × %d bits, parameters %d × %d",
			aggregate.ErrIncompatible, c.NumCohorts(), c.NumBits(), p.NumCohorts, p.NumBloomBits)
	}
	return nil
}

// EstimateBloomCounts estimates the fraction of reports of each cohort whose
// bloom filter had each bit set, together with the standard deviation of that
// estimate. Cohorts without reports get 0 for both.
func EstimateBloomCounts(c *aggregate.Counts, p params.Params) (*Estimate, error) {
	if err := p.CheckSignal(); err != nil {
		return nil, err
	}
	if err := checkShape(c, p); err != nil {
		return nil, err
	}
	p11, p01 := Rates(p)
	p2 := p11 - p01
	est := &Estimate{
		Means:  make([][]float64, p.NumCohorts),
		Stdevs: make([][]float64, p.NumCohorts),
	}
	for i := 0; i < p.NumCohorts; i++ {
		cc := c.Cohort(i)
		n := float64(cc.Reports)
		est.Means[i] = make([]float64, p.NumBloomBits)
		est.Stdevs[i] = make([]float64, p.NumBloomBits)
		for j, x := range cc.BitSums {
			phat := finiteOrZero((float64(x) - p01*n) / (p2 * n))
			r := clamp01(phat)*p11 + (1-clamp01(phat))*p01
			variance := n * r * (1 - r) / (p2 * p2)
			est.Means[i][j] = phat
			est.Stdevs[i][j] = finiteOrZero(math.Sqrt(variance) / n)
		}
	}
	return est, nil
}

// Denoise is the single-stage inversion of the original RAPPOR analysis: it
// estimates the number (not the fraction) of reports of each cohort whose
// bloom filter had each bit set.
func Denoise(c *aggregate.Counts, p params.Params) ([][]float64, error) {
	if err := p.CheckSignal(); err != nil {
		return nil, err
	}
	if err := checkShape(c, p); err != nil {
		return nil, err
	}
	f, q, pp := p.ProbF, p.ProbQ, p.ProbP
	out := make([][]float64, p.NumCohorts)
	for i := range out {
		cc := c.Cohort(i)
		n := float64(cc.Reports)
		out[i] = make([]float64, p.NumBloomBits)
		for j, x := range cc.BitSums {
			out[i][j] = finiteOrZero((float64(x) - n*(pp+0.5*f*q-0.5*f*pp)) / ((1 - f) * (q - pp)))
		}
	}
	return out, nil
}

// Flatten concatenates per-cohort rows, so that element cohort*k + bit lines
// up with row cohort*k + bit of the candidate design matrix.
func Flatten(rows [][]float64) []float64 {
	var out []float64
	for _, r := range rows {
		out = append(out, r...)
	}
	return out
}

// Resample draws a bootstrap replicate of e: every mean is perturbed with
// Gaussian noise of its standard deviation, and every standard deviation grows
// by √2 to account for the added noise. e is not modified.
func Resample(e *Estimate, src rand.Source) *Estimate {
	return ResampleWith(e, noise.Gaussian(src))
}

// ResampleWith is Resample with an explicit noise distribution.
func ResampleWith(e *Estimate, n noise.Noise) *Estimate {
	out := &Estimate{
		Means:  make([][]float64, len(e.Means)),
		Stdevs: make([][]float64, len(e.Stdevs)),
	}
	for i := range e.Means {
		out.Means[i] = make([]float64, len(e.Means[i]))
		out.Stdevs[i] = make([]float64, len(e.Stdevs[i]))
		for j, m := range e.Means[i] {
			sd := e.Stdevs[i][j]
			out.Means[i][j] = n.AddNoise(m, sd)
			out.Stdevs[i][j] = sd * math.Sqrt2
		}
	}
	return out
}
