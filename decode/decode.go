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

// Package decode estimates the frequencies of candidate values from
// aggregated RAPPOR reports.
//
// Decoding inverts the randomization on the per-cohort bit counts, explains
// the estimated bloom bit frequencies with a Lasso fit over the candidates'
// bloom filters, repeats the fit on bootstrap replicates of the estimate and
// reports the candidates whose coefficients are significantly positive.
package decode

import (
	"context"
	"errors"
	"fmt"
	"math"

	log "github.com/golang/glog"
	"github.com/google/rappor/go/aggregate"
	"github.com/google/rappor/go/analytics"
	"github.com/google/rappor/go/candidates"
	"github.com/google/rappor/go/checks"
	"github.com/google/rappor/go/estimate"
	"github.com/google/rappor/go/lasso"
	"github.com/google/rappor/go/noise"
	"github.com/google/rappor/go/params"
	"github.com/google/rappor/go/rand"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ErrNotImplemented is returned for fitting methods that are not available.
var ErrNotImplemented = errors.New("decode: method not implemented")

const (
	defaultAlpha      = 0.05
	defaultBootstraps = 5
	maxLambda         = 500
	// A candidate is reported when its mean coefficient exceeds
	// minProportion plus two standard deviations.
	minProportion = 1e-6
)

// Method selects the regression used to fit the candidates.
type Method int

const (
	// LassoMethod is the L1-penalized logistic regression of package lasso.
	LassoMethod Method = iota
	// LSEIMethod is constrained least squares. Not implemented.
	LSEIMethod
)

// Options configures Decode. The zero value is usable.
type Options struct {
	Alpha       float64 // Significance of the reported intervals and of the detection frequency. Defaults to 0.05.
	Bootstraps  int     // Number of fits. Defaults to 5.
	Lambda      float64 // Lasso penalty. Defaults to min(500, 0.8·number of candidates).
	Unpenalized []int   // Candidates fitted without penalty.
	Source      rand.Source
	Parallelism int // Maximum concurrent fits, 0 for no limit.
	Method      Method
}

// Frequency is the decoded frequency of a reported candidate.
type Frequency struct {
	Candidate  string
	Proportion float64
	Stdev      float64
	Interval   noise.ConfidenceInterval
}

// Metrics summarizes a decoding.
type Metrics struct {
	SampleSize    int64
	NumDetected   int
	AllocatedMass float64 // Sum of the reported proportions.
	Explained     float64
	Missing       float64
	MassCovered   float64
}

// Result is the outcome of Decode.
type Result struct {
	Fit     []Frequency // Reported candidates, in candidate order.
	Metrics Metrics
	Privacy analytics.Guarantees
	// Coefficients[b][j] is the coefficient of candidate j in bootstrap fit b.
	Coefficients [][]float64
}

type stage int

const (
	validateStage stage = iota
	denoiseStage
	fitStage
	aggregateStage
	reportStage
)

var stageName = map[stage]string{
	validateStage:  "validate",
	denoiseStage:   "denoise",
	fitStage:       "fit",
	aggregateStage: "aggregate",
	reportStage:    "report",
}

func (s stage) String() string {
	return stageName[s]
}

func stageError(s stage, err error) error {
	return fmt.Errorf("decode: %v: %w", s, err)
}

// Decode estimates the frequencies of the candidates in m from counts.
func Decode(ctx context.Context, counts *aggregate.Counts, m *candidates.Map, p params.Params, opt *Options) (*Result, error) {
	if opt == nil {
		opt = &Options{}
	}
	if opt.Method != LassoMethod {
		return nil, ErrNotImplemented
	}
	alpha := opt.Alpha
	if alpha == 0 {
		alpha = defaultAlpha
	}
	bootstraps := opt.Bootstraps
	if bootstraps <= 0 {
		bootstraps = defaultBootstraps
	}
	lambda := opt.Lambda
	if lambda == 0 {
		lambda = math.Min(maxLambda, 0.8*float64(m.Len()))
	}
	src := opt.Source
	if src == nil {
		src = rand.NewSecure()
	}
	if err := validate(counts, m, p, alpha, lambda); err != nil {
		return nil, stageError(validateStage, err)
	}

	est, err := estimate.EstimateBloomCounts(counts, p)
	if err != nil {
		return nil, stageError(denoiseStage, err)
	}
	log.Infof("decoding %d reports over %d candidates with %v, λ=%g, %d bootstraps", counts.Total(), m.Len(), p, lambda, bootstraps)

	replicates := make([]*estimate.Estimate, bootstraps)
	replicates[0] = est
	for b := 1; b < bootstraps; b++ {
		replicates[b] = estimate.Resample(replicates[b-1], src)
	}
	coefs, err := fitAll(ctx, m, replicates, &lasso.Options{Lambda: lambda, Unpenalized: opt.Unpenalized}, opt.Parallelism)
	if err != nil {
		return nil, stageError(fitStage, err)
	}

	res := &Result{Coefficients: coefs}
	selected := make([]float64, m.Len())
	xs := make([]float64, bootstraps)
	for j := 0; j < m.Len(); j++ {
		for b := range coefs {
			xs[b] = coefs[b][j]
		}
		mean, variance := stat.PopMeanVariance(xs, nil)
		sd := math.Sqrt(variance)
		if !(mean > minProportion+2*sd) {
			continue
		}
		ci, err := noise.Gaussian(nil).ConfidenceInterval(mean, sd, alpha)
		if err != nil {
			return nil, stageError(aggregateStage, err)
		}
		selected[j] = mean
		res.Fit = append(res.Fit, Frequency{Candidate: m.Candidate(j), Proportion: mean, Stdev: sd, Interval: ci})
		res.Metrics.AllocatedMass += mean
	}

	res.Metrics.SampleSize = counts.Total()
	res.Metrics.NumDetected = len(res.Fit)
	y := estimate.Flatten(est.Means)
	perf, err := analytics.ComputePerformance(y, estimate.Flatten(est.Stdevs), fittedValues(m, selected, y))
	if err != nil {
		return nil, stageError(reportStage, err)
	}
	res.Metrics.Explained, res.Metrics.Missing, res.Metrics.MassCovered = perf.Explained, perf.Missing, perf.MassCovered
	if res.Privacy, err = analytics.ComputePrivacyGuarantees(p, alpha, res.Metrics.SampleSize); err != nil {
		return nil, stageError(reportStage, err)
	}
	log.Infof("detected %d of %d candidates, allocated mass %g", res.Metrics.NumDetected, m.Len(), res.Metrics.AllocatedMass)
	return res, nil
}

func validate(counts *aggregate.Counts, m *candidates.Map, p params.Params, alpha, lambda float64) error {
	if err := p.CheckSignal(); err != nil {
		return err
	}
	if err := checks.CheckAlpha(alpha); err != nil {
		return err
	}
	if err := checks.CheckLambda(lambda); err != nil {
		return err
	}
	if counts.NumCohorts() != p.NumCohorts || counts.NumBits() != p.NumBloomBits {
		return fmt.Errorf("%w: counts have %d cohorts × %d bits, parameters %d × %d",
			aggregate.ErrIncompatible, counts.NumCohorts(), counts.NumBits(), p.NumCohorts, p.NumBloomBits)
	}
	if m.NumRows() != p.TotalBits() {
		return fmt.Errorf("%w: candidate map has %d rows, parameters %d", aggregate.ErrIncompatible, m.NumRows(), p.TotalBits())
	}
	return nil
}

// fitAll fits every replicate concurrently. Fits are independent; each owns
// its own solver state.
func fitAll(ctx context.Context, m *candidates.Map, replicates []*estimate.Estimate, opt *lasso.Options, parallelism int) ([][]float64, error) {
	coefs := make([][]float64, len(replicates))
	design := m.Design()
	if design == nil {
		for b := range coefs {
			coefs[b] = []float64{}
		}
		return coefs, nil
	}
	g, ctx := errgroup.WithContext(ctx)
	if parallelism > 0 {
		g.SetLimit(parallelism)
	}
	for b, rep := range replicates {
		b, rep := b, rep
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := lasso.Fit(design, estimate.Flatten(rep.Means), opt)
			if err != nil {
				return err
			}
			if !res.Converged {
				log.Warningf("bootstrap %d: fit did not converge after %d sweeps", b, res.Sweeps)
			}
			log.V(1).Infof("bootstrap %d: %d sweeps, coefficients %v", b, res.Sweeps, res.Coefficients)
			coefs[b] = res.Coefficients
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return coefs, nil
}

// fittedValues returns design·beta rescaled by the least-squares factor that
// best matches y. The logistic fit is on a different scale than the bit
// frequencies, so only the shape of the fitted pattern is compared.
func fittedValues(m *candidates.Map, beta, y []float64) []float64 {
	out := make([]float64, len(y))
	design := m.Design()
	if design == nil {
		return out
	}
	var v mat.VecDense
	v.MulVec(design, mat.NewVecDense(len(beta), beta))
	fitted := v.RawVector().Data
	yv := mat.NewVecDense(len(y), y)
	den := mat.Dot(&v, &v)
	if den == 0 {
		return out
	}
	scale := mat.Dot(yv, &v) / den
	for i := range out {
		out[i] = scale * fitted[i]
	}
	return out
}

// DecodeStrings hashes the candidate strings and decodes counts.
func DecodeStrings(ctx context.Context, counts *aggregate.Counts, cands []string, p params.Params, opt *Options) (*Result, error) {
	m, err := candidates.HashCandidates(p, cands)
	if err != nil {
		return nil, stageError(validateStage, err)
	}
	return Decode(ctx, counts, m, p, opt)
}

// DecodeCSV decodes counts in the CSV format of aggregate.Counts.CSV.
func DecodeCSV(ctx context.Context, countLines, cands []string, p params.Params, opt *Options) (*Result, error) {
	counts, err := aggregate.ParseCSV(countLines, p)
	if err != nil {
		return nil, stageError(validateStage, err)
	}
	return DecodeStrings(ctx, counts, cands, p, opt)
}
