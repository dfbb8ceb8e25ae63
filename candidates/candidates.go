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

// Package candidates maps candidate strings to the bloom filter bits they
// would set in every cohort. The result is the design matrix of the decoding
// regression: one row per (cohort, bit), one column per candidate.
package candidates

import (
	"strconv"
	"strings"

	"github.com/google/rappor/go/params"
	"gonum.org/v1/gonum/mat"
)

// Map holds the bloom bits of every candidate.
type Map struct {
	candidates []string
	// indices[j] lists cohort*k + bit + 1 for every cohort and hash of
	// candidate j, collisions included.
	indices    [][]int
	numBits    int
	numCohorts int
}

// HashCandidates hashes every candidate in every cohort.
func HashCandidates(p params.Params, candidates []string) (*Map, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	m := &Map{
		candidates: append([]string(nil), candidates...),
		indices:    make([][]int, len(candidates)),
		numBits:    p.NumBloomBits,
		numCohorts: p.NumCohorts,
	}
	for j, c := range candidates {
		idx := make([]int, 0, p.NumCohorts*p.NumHashes)
		for cohort := 0; cohort < p.NumCohorts; cohort++ {
			for _, b := range p.Hash.Bits(c, cohort, p.NumHashes, p.NumBloomBits) {
				idx = append(idx, cohort*p.NumBloomBits+b+1)
			}
		}
		m.indices[j] = idx
	}
	return m, nil
}

// Len returns the number of candidates.
func (m *Map) Len() int { return len(m.candidates) }

// Candidates returns the candidate strings in input order.
func (m *Map) Candidates() []string { return append([]string(nil), m.candidates...) }

// Candidate returns candidate j.
func (m *Map) Candidate(j int) string { return m.candidates[j] }

// Indices returns the 1-based global bit indices of candidate j.
func (m *Map) Indices(j int) []int { return append([]int(nil), m.indices[j]...) }

// NumRows returns the number of (cohort, bit) rows, m·k.
func (m *Map) NumRows() int { return m.numCohorts * m.numBits }

// Design returns the (m·k) × n 0/1 matrix whose column j marks the bits set
// by candidate j. It returns nil when there are no candidates.
func (m *Map) Design() *mat.Dense {
	if len(m.candidates) == 0 || m.NumRows() == 0 {
		return nil
	}
	d := mat.NewDense(m.NumRows(), len(m.candidates), nil)
	for j, idx := range m.indices {
		for _, i := range idx {
			d.Set(i-1, j, 1)
		}
	}
	return d
}

// Rows renders one CSV row per candidate: "candidate,idx,idx,…".
func (m *Map) Rows() []string {
	out := make([]string, len(m.candidates))
	var sb strings.Builder
	for j, c := range m.candidates {
		sb.Reset()
		sb.WriteString(c)
		for _, i := range m.indices[j] {
			sb.WriteByte(',')
			sb.WriteString(strconv.Itoa(i))
		}
		out[j] = sb.String()
	}
	return out
}
