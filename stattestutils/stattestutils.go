//
// Copyright 2023 Google LLC
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

// Package stattestutils provides basic statistical utility functions for the
// randomized tests of the RAPPOR packages.
//
// This package is not optimized for performance or speed and is only intended
// to be used in tests.
package stattestutils

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// SampleMean returns the average of values, or 0 if there are none.
func SampleMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// SampleVariance returns the population variance of values (normalized by
// len(values), not len(values)-1), or 0 if there are none.
func SampleVariance(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	_, v := stat.PopMeanVariance(values, nil)
	return v
}

// BinomialStdDev returns the standard deviation of the number of successes in
// n Bernoulli trials with success probability p.
func BinomialStdDev(n int64, p float64) float64 {
	return math.Sqrt(float64(n) * p * (1 - p))
}

// MeanAbsError returns the mean absolute difference between got and want,
// which must have the same length.
func MeanAbsError(got, want []float64) float64 {
	var sum float64
	for i := range got {
		sum += math.Abs(got[i] - want[i])
	}
	return sum / math.Max(1, float64(len(got)))
}
