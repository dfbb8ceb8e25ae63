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

// Package params holds the RAPPOR encoding parameters shared by clients and
// the collector.
package params

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/rappor/go/bloom"
	"github.com/google/rappor/go/checks"
	"gopkg.in/yaml.v3"
)

var (
	// ErrInvalidParams is wrapped by every configuration validation failure.
	ErrInvalidParams = errors.New("invalid RAPPOR parameters")
	// ErrNoSignal is returned when reports carry no information about the
	// encoded values (f = 1 or p = q).
	ErrNoSignal = errors.New("RAPPOR parameters carry no signal")
)

// Params configures the encoding. The same values must be used by every
// client and by the collector decoding their reports.
type Params struct {
	NumBloomBits int        `yaml:"num_bloombits" json:"num_bloombits"` // Bloom filter width k.
	NumHashes    int        `yaml:"num_hashes" json:"num_hashes"`       // Hash functions per value h.
	NumCohorts   int        `yaml:"num_cohorts" json:"num_cohorts"`     // Number of cohorts m.
	ProbP        float64    `yaml:"prob_p" json:"prob_p"`               // P(IRR bit = 1 | PRR bit = 0).
	ProbQ        float64    `yaml:"prob_q" json:"prob_q"`               // P(IRR bit = 1 | PRR bit = 1).
	ProbF        float64    `yaml:"prob_f" json:"prob_f"`               // Fraction of bloom bits replaced by coin flips.
	OneTimePRR   bool       `yaml:"flag_oneprr" json:"flag_oneprr"`     // Memoize the PRR per (user, value).
	Hash         bloom.Kind `yaml:"hash,omitempty" json:"hash,omitempty"`
}

// Default returns the parameters used by the original RAPPOR deployment:
// 16 bloom bits, 2 hashes, 64 cohorts, p = 0.5, q = 0.75, f = 0.5.
func Default() Params {
	return Params{
		NumBloomBits: 16,
		NumHashes:    2,
		NumCohorts:   64,
		ProbP:        0.5,
		ProbQ:        0.75,
		ProbF:        0.5,
	}
}

// Validate returns an error wrapping ErrInvalidParams if p cannot be used to
// encode or decode reports.
func (p Params) Validate() error {
	for _, err := range []error{
		checks.CheckPositive(p.NumBloomBits, "NumBloomBits"),
		checks.CheckPositive(p.NumHashes, "NumHashes"),
		checks.CheckPositive(p.NumCohorts, "NumCohorts"),
		checks.CheckProbability(p.ProbP, "ProbP"),
		checks.CheckProbability(p.ProbQ, "ProbQ"),
		checks.CheckProbability(p.ProbF, "ProbF"),
	} {
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
	}
	switch p.Hash {
	case bloom.SHA1Hash:
	case bloom.MD5Hash:
		if err := checks.CheckAtMost(p.NumHashes, bloom.MaxMD5Hashes, "NumHashes"); err != nil {
			return fmt.Errorf("%w: %v with md5 hashing", ErrInvalidParams, err)
		}
		if err := checks.CheckAtMost(p.NumBloomBits, bloom.MaxMD5Bits, "NumBloomBits"); err != nil {
			return fmt.Errorf("%w: %v with md5 hashing", ErrInvalidParams, err)
		}
	default:
		return fmt.Errorf("%w: unknown hash kind %v", ErrInvalidParams, p.Hash)
	}
	return nil
}

// CheckSignal returns an error wrapping ErrNoSignal if the randomization
// destroys all information, and the result of Validate otherwise.
func (p Params) CheckSignal() error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := checks.CheckSignal(p.ProbP, p.ProbQ, p.ProbF); err != nil {
		return fmt.Errorf("%w: %v", ErrNoSignal, err)
	}
	return nil
}

// BloomBytes returns the number of bytes of an encoded bloom filter.
func (p Params) BloomBytes() int {
	return (p.NumBloomBits + 7) / 8
}

// TotalBits returns the number of rows of the decoding system, m·k.
func (p Params) TotalBits() int {
	return p.NumCohorts * p.NumBloomBits
}

func (p Params) String() string {
	return fmt.Sprintf("k=%d h=%d m=%d p=%g q=%g f=%g oneprr=%t hash=%v",
		p.NumBloomBits, p.NumHashes, p.NumCohorts, p.ProbP, p.ProbQ, p.ProbF, p.OneTimePRR, p.Hash)
}

// RequiredKeys are the keys every parameter document must set. The hash key
// is optional and defaults to sha1.
var RequiredKeys = []string{"num_bloombits", "num_hashes", "num_cohorts", "prob_p", "prob_q", "prob_f", "flag_oneprr"}

// Parse decodes a YAML or JSON parameter document and validates it. Every key
// in RequiredKeys must be set to a non-null value; unknown keys are rejected.
func Parse(data []byte) (Params, error) {
	var p Params
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return Params{}, fmt.Errorf("%w: couldn't parse parameters: %v", ErrInvalidParams, err)
	}
	var set map[string]yaml.Node
	if err := yaml.Unmarshal(data, &set); err != nil {
		return Params{}, fmt.Errorf("%w: couldn't parse parameters: %v", ErrInvalidParams, err)
	}
	var missing []string
	for _, k := range RequiredKeys {
		if n, ok := set[k]; !ok || n.Tag == "!!null" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return Params{}, fmt.Errorf("%w: missing required keys %s", ErrInvalidParams, strings.Join(missing, ", "))
	}
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}

// Load reads and parses the parameter file at path.
func Load(path string) (Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Params{}, fmt.Errorf("couldn't read the params file = %q, err = %v", path, err)
	}
	p, err := Parse(data)
	if err != nil {
		return Params{}, fmt.Errorf("params file %q: %w", path, err)
	}
	return p, nil
}

// Marshal renders p as YAML, in the format accepted by Parse.
func (p Params) Marshal() ([]byte, error) {
	return yaml.Marshal(p)
}
