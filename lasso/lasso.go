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

// Package lasso fits L1-penalized logistic regressions by cyclic coordinate
// descent with per-coordinate trust regions (Genkin, Lewis and Madigan,
// "Large-scale Bayesian logistic regression for text categorization").
//
// The decoder uses it to explain the estimated bloom bit frequencies as a
// sparse combination of candidate bloom filters.
package lasso

import (
	"fmt"
	"math"

	"github.com/google/rappor/go/checks"
	"gonum.org/v1/gonum/mat"
)

const (
	defaultMaxSweeps = 1000
	defaultTolerance = 1e-5
)

// Options configures Fit. The zero value fits with λ = 0.
type Options struct {
	Lambda      float64   // L1 penalty λ.
	Unpenalized []int     // Coefficients fitted with λ = 0.
	MaxSweeps   int       // Defaults to 1000.
	Tolerance   float64   // Relative change of the linear predictor that stops the fit. Defaults to 1e-5.
	Initial     []float64 // Warm start. Defaults to all zeros.
}

// Result is the outcome of a fit.
type Result struct {
	Coefficients []float64
	Sweeps       int
	// Converged is false when the fit stopped after MaxSweeps sweeps.
	Converged bool
}

type solver struct {
	cols [][]float64
	y    []float64
	// ip[i] is the current linear predictor Σ_j β_j·x_ij times y_i.
	ip []float64
}

// step returns the coordinate update of column j within a trust region of
// half-width delta, for a coefficient of the given sign.
func (s *solver) step(j int, delta, sign, lambda float64) float64 {
	x := s.cols[j]
	num := lambda * sign
	den := 0.0
	for i, xi := range x {
		if xi == 0 {
			continue
		}
		num -= xi * s.y[i] / (1 + math.Exp(s.ip[i]))
		a, b := math.Abs(s.ip[i]), delta*math.Abs(xi)
		if a < b {
			den += xi * xi * 0.25
		} else {
			den += xi * xi / (2 + math.Exp(a-b) + math.Exp(b-a))
		}
	}
	if den == 0 {
		return 0
	}
	return -num / den
}

// Fit fits response ≈ design·β. design has one row per observation and one
// column per coefficient; response has one value per row.
func Fit(design mat.Matrix, response []float64, opt *Options) (*Result, error) {
	if opt == nil {
		opt = &Options{}
	}
	rows, n := design.Dims()
	if len(response) != rows {
		return nil, fmt.Errorf("Fit: response has %d values, design has %d rows", len(response), rows)
	}
	if err := checks.CheckLambda(opt.Lambda); err != nil {
		return nil, err
	}
	maxSweeps := opt.MaxSweeps
	if maxSweeps <= 0 {
		maxSweeps = defaultMaxSweeps
	}
	tol := opt.Tolerance
	if tol <= 0 {
		tol = defaultTolerance
	}
	unpenalized := make([]bool, n)
	for _, j := range opt.Unpenalized {
		if j < 0 || j >= n {
			return nil, fmt.Errorf("Fit: unpenalized index %d, want [0, %d)", j, n)
		}
		unpenalized[j] = true
	}
	beta := make([]float64, n)
	if opt.Initial != nil {
		if len(opt.Initial) != n {
			return nil, fmt.Errorf("Fit: %d initial coefficients, want %d", len(opt.Initial), n)
		}
		copy(beta, opt.Initial)
	}

	s := &solver{cols: make([][]float64, n), y: response, ip: make([]float64, rows)}
	for j := range s.cols {
		s.cols[j] = mat.Col(nil, j, design)
		if beta[j] != 0 {
			for i, xi := range s.cols[j] {
				s.ip[i] += beta[j] * xi * response[i]
			}
		}
	}
	delta := make([]float64, n)
	for j := range delta {
		delta[j] = 1
	}
	change := make([]float64, rows)

	res := &Result{Coefficients: beta}
	for res.Sweeps < maxSweeps {
		res.Sweeps++
		for i := range change {
			change[i] = 0
		}
		for j := 0; j < n; j++ {
			lambda := opt.Lambda
			if unpenalized[j] {
				lambda = 0
			}
			var st float64
			if lambda > 0 && beta[j] == 0 {
				// At zero, try moving in either direction; stay if neither
				// direction decreases the penalized loss.
				st = s.step(j, delta[j], 1, lambda)
				if st <= 0 {
					st = s.step(j, delta[j], -1, lambda)
					if st >= 0 {
						st = 0
					}
				}
			} else {
				sign := 0.0
				if beta[j] > 0 {
					sign = 1
				} else if beta[j] < 0 {
					sign = -1
				}
				st = s.step(j, delta[j], sign, lambda)
				// A penalized coefficient may not cross zero in one step.
				if lambda > 0 && sign*(beta[j]+st) < 0 {
					st = -beta[j]
				}
			}
			st = math.Max(-delta[j], math.Min(delta[j], st))
			if st != 0 {
				for i, xi := range s.cols[j] {
					d := st * xi * response[i]
					s.ip[i] += d
					change[i] += d
				}
				beta[j] += st
			}
			delta[j] = math.Max(2*math.Abs(st), delta[j]/2)
		}
		var ipSum, changeSum float64
		for i := range s.ip {
			ipSum += math.Abs(s.ip[i])
			changeSum += math.Abs(change[i])
		}
		if changeSum/(1+ipSum) <= tol {
			res.Converged = true
			break
		}
	}
	return res, nil
}
