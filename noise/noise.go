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

// Package noise perturbs estimates with random noise, as used to bootstrap the
// decoder, and computes the matching confidence intervals.
package noise

import (
	"math"

	log "github.com/golang/glog"
	"github.com/google/rappor/go/checks"
	"github.com/google/rappor/go/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// Kind is an enum type. Its values are the supported noise distributions.
type Kind int

// Noise distributions.
const (
	GaussianNoise Kind = iota
	NoNoise
	Unrecognised
)

// ToNoise converts a Kind into a Noise instance drawing from src.
func ToNoise(k Kind, src rand.Source) Noise {
	switch k {
	case GaussianNoise:
		return Gaussian(src)
	case NoNoise:
		return None()
	case Unrecognised:
		log.Warningf("ToNoise: Unrecognised noise specified, returning nil")
	default:
		log.Warningf("ToNoise: unknown kind (%v) specified, returning nil", k)
	}
	return nil
}

// ToKind converts a Noise instance into a Kind.
func ToKind(n Noise) Kind {
	switch n.(type) {
	case gaussian:
		return GaussianNoise
	case noNoise:
		return NoNoise
	case nil:
		log.Warningf("ToKind: nil noise specified, returning Unrecognised")
	default:
		log.Warningf("ToKind: unknown Noise (%v) specified, returning Unrecognised", n)
	}
	return Unrecognised
}

// ConfidenceInterval holds lower and upper bounds as float64 for the confidence interval.
type ConfidenceInterval struct {
	LowerBound, UpperBound float64
}

// Noise is an interface for primitives that perturb estimates.
type Noise interface {
	// AddNoise returns x plus noise of standard deviation sigma.
	AddNoise(x, sigma float64) float64
	// ConfidenceInterval computes an interval that contains the raw value
	// from which noisedX is computed with probability 1 - alpha.
	ConfidenceInterval(noisedX, sigma, alpha float64) (ConfidenceInterval, error)
}

type gaussian struct {
	normals *rand.Normals
}

// Gaussian returns a Noise instance that adds normally distributed noise
// drawn from src.
func Gaussian(src rand.Source) Noise {
	return gaussian{normals: rand.NewNormals(src)}
}

// AddNoise adds N(0, sigma²) noise to x. Nonpositive or non-finite sigma
// leaves x unchanged.
func (g gaussian) AddNoise(x, sigma float64) float64 {
	if !(sigma > 0) || math.IsInf(sigma, 0) {
		return x
	}
	return x + sigma*g.normals.Next()
}

// ConfidenceInterval returns noisedX ± z·sigma, where z is the 1 - alpha/2
// quantile of the standard normal distribution.
func (gaussian) ConfidenceInterval(noisedX, sigma, alpha float64) (ConfidenceInterval, error) {
	if err := checks.CheckAlpha(alpha); err != nil {
		return ConfidenceInterval{}, err
	}
	if !(sigma > 0) {
		return ConfidenceInterval{LowerBound: noisedX, UpperBound: noisedX}, nil
	}
	z := distuv.UnitNormal.Quantile(1 - alpha/2)
	return ConfidenceInterval{LowerBound: noisedX - z*sigma, UpperBound: noisedX + z*sigma}, nil
}

type noNoise struct{}

// None returns a Noise instance that leaves values untouched.
func None() Noise {
	return noNoise{}
}

func (noNoise) AddNoise(x, _ float64) float64 {
	return x
}

func (noNoise) ConfidenceInterval(noisedX, _, alpha float64) (ConfidenceInterval, error) {
	if err := checks.CheckAlpha(alpha); err != nil {
		return ConfidenceInterval{}, err
	}
	return ConfidenceInterval{LowerBound: noisedX, UpperBound: noisedX}, nil
}
