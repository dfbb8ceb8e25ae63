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

// Package encoder turns values into randomized RAPPOR reports.
//
// A value is hashed into a bloom filter, randomized once into a permanent
// randomized response (PRR) and then again into the instantaneous randomized
// response (IRR) that is sent to the collector:
//
//	PRR = (FBits & MaskIndices) | (bloom &^ MaskIndices)
//	IRR = (PBits &^ PRR) | (QBits & PRR)
//
// where MaskIndices bits are set with probability f, FBits with probability
// 1/2, PBits with probability p and QBits with probability q.
package encoder

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"

	log "github.com/golang/glog"
	"github.com/google/rappor/go/bitvec"
	"github.com/google/rappor/go/params"
	"github.com/google/rappor/go/rand"
	"github.com/google/rappor/go/report"
)

// CohortPolicy controls how a report's cohort is chosen.
type CohortPolicy int

const (
	// PerReport draws a fresh cohort for every report. Under one-time PRR the
	// draw is part of the memoized masks, so a (user, value) pair always lands
	// in the same cohort.
	PerReport CohortPolicy = iota
	// PerUser draws the cohort once, from a seed derived from the user id.
	PerUser
	// Fixed uses Options.Cohort.
	Fixed
)

// Options configures an Encoder. The zero value is usable.
type Options struct {
	Source       rand.EntropySource // Defaults to a secure source.
	CohortPolicy CohortPolicy       // Defaults to PerReport.
	Cohort       int                // Cohort used with the Fixed policy.
	// Secret keys the one-time PRR seeds. Without it the seeds are derived
	// from the user id and value alone.
	Secret []byte
}

// RandomFunctions bundles the Bernoulli vector generators an Encoder draws
// from.
type RandomFunctions struct {
	src     rand.EntropySource
	numBits int
	p, q, f float64
}

// NewRandomFunctions returns generators of params.NumBloomBits wide vectors
// drawing from src.
func NewRandomFunctions(p params.Params, src rand.EntropySource) *RandomFunctions {
	return &RandomFunctions{src: src, numBits: p.NumBloomBits, p: p.ProbP, q: p.ProbQ, f: p.ProbF}
}

// Cohort draws a cohort in [0, numCohorts).
func (rf *RandomFunctions) Cohort(numCohorts int) int {
	return rand.Intn(rf.src, numCohorts)
}

// Uniform returns a vector of fair coin flips.
func (rf *RandomFunctions) Uniform() []byte { return rand.Bits(rf.src, 0.5, rf.numBits) }

// F returns a vector with bits set with probability f.
func (rf *RandomFunctions) F() []byte { return rand.Bits(rf.src, rf.f, rf.numBits) }

// P returns a vector with bits set with probability p.
func (rf *RandomFunctions) P() []byte { return rand.Bits(rf.src, rf.p, rf.numBits) }

// Q returns a vector with bits set with probability q.
func (rf *RandomFunctions) Q() []byte { return rand.Bits(rf.src, rf.q, rf.numBits) }

// Masks are the random choices that determine the PRR of a value.
type Masks struct {
	Cohort      int
	FBits       []byte // Replacement bits for the masked positions.
	MaskIndices []byte // Positions replaced by FBits.
}

// Encoding exposes every stage of an encoding.
type Encoding struct {
	Cohort int
	Bloom  []byte
	PRR    []byte
	IRR    []byte
}

// Encoder encodes the values of a single user.
//
// Not thread-safe. Use one Encoder per goroutine.
type Encoder struct {
	params params.Params
	userID string
	rf     *RandomFunctions
	policy CohortPolicy
	cohort int
	secret []byte
}

// New returns an Encoder for the reports of userID.
func New(p params.Params, userID string, opt *Options) (*Encoder, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if opt == nil {
		opt = &Options{}
	}
	src := opt.Source
	if src == nil {
		src = rand.NewSecure()
	}
	e := &Encoder{
		params: p,
		userID: userID,
		rf:     NewRandomFunctions(p, src),
		policy: opt.CohortPolicy,
		secret: opt.Secret,
	}
	switch opt.CohortPolicy {
	case PerReport:
	case PerUser:
		rand.WithSeed(src, []byte("cohort\x00"+userID), func() error {
			e.cohort = e.rf.Cohort(p.NumCohorts)
			return nil
		})
	case Fixed:
		if opt.Cohort < 0 || opt.Cohort >= p.NumCohorts {
			return nil, fmt.Errorf("%w: cohort %d, want [0, %d)", params.ErrInvalidParams, opt.Cohort, p.NumCohorts)
		}
		e.cohort = opt.Cohort
	default:
		return nil, fmt.Errorf("%w: unknown cohort policy %d", params.ErrInvalidParams, opt.CohortPolicy)
	}
	if p.OneTimePRR && len(opt.Secret) == 0 {
		log.Warningf("encoder for user %q: one-time PRR without a secret, masks are derivable from the user id and value", userID)
	}
	return e, nil
}

// prrSeed returns the seed of the one-time PRR of key.
func (e *Encoder) prrSeed(key string) []byte {
	msg := []byte(e.userID + "\x00" + key)
	if len(e.secret) == 0 {
		return msg
	}
	mac := hmac.New(sha256.New, e.secret)
	mac.Write(msg)
	return mac.Sum(nil)
}

func (e *Encoder) masks(key string) Masks {
	var m Masks
	draw := func() error {
		m.Cohort = e.cohort
		if e.policy == PerReport {
			m.Cohort = e.rf.Cohort(e.params.NumCohorts)
		}
		m.FBits = e.rf.Uniform()
		m.MaskIndices = e.rf.F()
		return nil
	}
	if e.params.OneTimePRR {
		rand.WithSeed(e.rf.src, e.prrSeed(key), draw)
	} else {
		draw()
	}
	return m
}

// Masks returns the PRR masks for value. With one-time PRR enabled the same
// value always gets the same masks.
func (e *Encoder) Masks(value string) Masks {
	return e.masks(value)
}

func (e *Encoder) encode(key string, bloomOf func(cohort int) []byte) *Encoding {
	m := e.masks(key)
	bloom := bloomOf(m.Cohort)
	prr := bitvec.Select(m.MaskIndices, m.FBits, bloom)
	pBits := e.rf.P()
	qBits := e.rf.Q()
	irr := bitvec.Select(prr, qBits, pBits)
	return &Encoding{Cohort: m.Cohort, Bloom: bloom, PRR: prr, IRR: irr}
}

// EncodeWithDetails encodes value and returns the bloom filter, PRR and IRR.
func (e *Encoder) EncodeWithDetails(value string) (*Encoding, error) {
	return e.encode(value, func(cohort int) []byte {
		return e.params.Hash.Filter(value, cohort, e.params.NumHashes, e.params.NumBloomBits)
	}), nil
}

// Encode encodes value into a report.
func (e *Encoder) Encode(value string) (*report.Report, error) {
	enc, err := e.EncodeWithDetails(value)
	if err != nil {
		return nil, err
	}
	return e.toReport(enc), nil
}

// EncodeBits randomizes a caller-supplied bit vector in place of a bloom
// filter, e.g. for boolean or small ordinal values. bits must be exactly
// NumBloomBits wide.
func (e *Encoder) EncodeBits(bits []byte) (*report.Report, error) {
	if len(bits) != e.params.BloomBytes() {
		return nil, fmt.Errorf("EncodeBits: got %d bytes, want %d", len(bits), e.params.BloomBytes())
	}
	bloom := make([]byte, len(bits))
	copy(bloom, bits)
	if r := e.params.NumBloomBits % 8; r != 0 {
		bloom[len(bloom)-1] &= byte(1)<<r - 1
	}
	enc := e.encode("bits\x00"+bitvec.ToHexString(bloom), func(int) []byte { return bloom })
	return e.toReport(enc), nil
}

func (e *Encoder) toReport(enc *Encoding) *report.Report {
	return &report.Report{UserID: e.userID, Cohort: enc.Cohort, Bits: enc.IRR, NumBits: e.params.NumBloomBits}
}
