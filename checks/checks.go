//
// Copyright 2020 Google LLC
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

// Package checks contains validation helpers for RAPPOR parameters and
// decoder options.
package checks

import (
	"fmt"
	"math"
)

func verifyName(defaultName string, nameSlice []string) (string, error) {
	var name string
	switch len(nameSlice) {
	case 0:
		name = defaultName
	case 1:
		name = nameSlice[0]
	default:
		return "", fmt.Errorf("This should never happen. There should be 0 or 1 'name' parameter, got %d", len(nameSlice))
	}
	return name, nil
}

// CheckProbability returns an error if p is NaN or outside of [0, 1].
func CheckProbability(p float64, name ...string) error {
	pName, err := verifyName("Probability", name)
	if err != nil {
		return err
	}
	if math.IsNaN(p) || p < 0 || p > 1 {
		return fmt.Errorf("%s is %f, must be in [0, 1]", pName, p)
	}
	return nil
}

// CheckPositive returns an error if v is not strictly positive.
func CheckPositive(v int, name ...string) error {
	vName, err := verifyName("Value", name)
	if err != nil {
		return err
	}
	if v <= 0 {
		return fmt.Errorf("%s is %d, must be strictly positive", vName, v)
	}
	return nil
}

// CheckAtMost returns an error if v is larger than upper.
func CheckAtMost(v, upper int, name ...string) error {
	vName, err := verifyName("Value", name)
	if err != nil {
		return err
	}
	if v > upper {
		return fmt.Errorf("%s is %d, must be at most %d", vName, v, upper)
	}
	return nil
}

// CheckNonNegative returns an error if v is strictly negative.
func CheckNonNegative(v int64, name ...string) error {
	vName, err := verifyName("Value", name)
	if err != nil {
		return err
	}
	if v < 0 {
		return fmt.Errorf("%s is %d, must be nonnegative", vName, v)
	}
	return nil
}

// CheckAlpha returns an error if the supplied alpha is not between 0 and 1
// exclusive.
func CheckAlpha(alpha float64) error {
	if math.IsNaN(alpha) || alpha <= 0 || alpha >= 1 {
		return fmt.Errorf("Alpha is %f, must be within (0, 1) and not NaN", alpha)
	}
	return nil
}

// CheckLambda returns an error if the Lasso penalty λ is strictly negative,
// infinite or NaN.
func CheckLambda(lambda float64) error {
	if lambda < 0 || math.IsInf(lambda, 0) || math.IsNaN(lambda) {
		return fmt.Errorf("Lambda is %f, must be nonnegative and finite", lambda)
	}
	return nil
}

// CheckSignal returns an error if reports generated with the given
// probabilities carry no information about the true bits, that is if f = 1 or
// p = q.
func CheckSignal(p, q, f float64) error {
	if f == 1 {
		return fmt.Errorf("ProbF is 1, permanent randomized responses are pure noise")
	}
	if p == q {
		return fmt.Errorf("ProbP and ProbQ are both %f, instantaneous randomized responses are pure noise", p)
	}
	return nil
}
