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

// Package simulate generates synthetic client populations and encodes them,
// for exercising the analysis pipeline end to end.
package simulate

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	log "github.com/golang/glog"
	"github.com/google/rappor/go/encoder"
	"github.com/google/rappor/go/params"
	"github.com/google/rappor/go/rand"
	"github.com/google/uuid"
	"github.com/zeebo/xxh3"
	exprand "golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
)

// Distribution is the law values are drawn from.
type Distribution int

const (
	// Uniform draws every value with the same probability.
	Uniform Distribution = iota
	// Gaussian draws floor(N(n/2, n/6)), redrawing until the result is a
	// valid value index.
	Gaussian
	// Zipf draws value i with probability proportional to (1+i)^-s.
	Zipf
)

func (d Distribution) String() string {
	switch d {
	case Uniform:
		return "uniform"
	case Gaussian:
		return "gaussian"
	case Zipf:
		return "zipf"
	}
	return fmt.Sprintf("Distribution(%d)", int(d))
}

// ParseDistribution returns the Distribution called name.
func ParseDistribution(name string) (Distribution, error) {
	for _, d := range []Distribution{Uniform, Gaussian, Zipf} {
		if d.String() == name {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown distribution %q", name)
}

// Options configures a simulation. Zero fields take the defaults below.
type Options struct {
	NumClients      int
	ValuesPerClient int
	NumUniqueValues int
	Distribution    Distribution
	ZipfExponent    float64 // Must be > 1.
	Seed            uint64
	// Workers bounds the number of clients encoded concurrently. Default 1.
	Workers int
	// CohortPolicy is passed to every client's encoder.
	CohortPolicy encoder.CohortPolicy
}

// Defaults for zero Options fields.
const (
	DefaultNumClients      = 10000
	DefaultValuesPerClient = 7
	DefaultNumUniqueValues = 100
	DefaultZipfExponent    = 1.5
)

func (o *Options) withDefaults() (Options, error) {
	var opt Options
	if o != nil {
		opt = *o
	}
	if opt.NumClients == 0 {
		opt.NumClients = DefaultNumClients
	}
	if opt.ValuesPerClient == 0 {
		opt.ValuesPerClient = DefaultValuesPerClient
	}
	if opt.NumUniqueValues == 0 {
		opt.NumUniqueValues = DefaultNumUniqueValues
	}
	if opt.ZipfExponent == 0 {
		opt.ZipfExponent = DefaultZipfExponent
	}
	if opt.Workers < 1 {
		opt.Workers = 1
	}
	if opt.NumClients < 0 || opt.ValuesPerClient < 0 || opt.NumUniqueValues < 0 {
		return opt, fmt.Errorf("simulate: negative size in %+v", opt)
	}
	if opt.ZipfExponent <= 1 || math.IsNaN(opt.ZipfExponent) {
		return opt, fmt.Errorf("simulate: ZipfExponent must be > 1, got %f", opt.ZipfExponent)
	}
	switch opt.Distribution {
	case Uniform, Gaussian, Zipf:
	default:
		return opt, fmt.Errorf("simulate: unknown distribution %v", opt.Distribution)
	}
	return opt, nil
}

// Client is a simulated user and the values it reports.
type Client struct {
	UserID string
	Values []string
}

// ValueName is the name of the i-th simulated value.
func ValueName(i int) string {
	return fmt.Sprintf("v%d", i)
}

// Candidates returns the names of all n simulated values, in index order.
func Candidates(n int) []string {
	cands := make([]string, n)
	for i := range cands {
		cands[i] = ValueName(i)
	}
	return cands
}

// UserID is a stable, name-based UUID for client i of the simulation seeded
// with seed.
func UserID(seed uint64, i int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("rappor/simulate/%d/%d", seed, i))).String()
}

// expSource lets an EntropySource drive golang.org/x/exp/rand distributions.
type expSource struct {
	rand.EntropySource
}

func (expSource) Seed(uint64) {}

// sampler draws value indices from a Distribution.
type sampler struct {
	src     rand.EntropySource
	normals *rand.Normals
	n       int
	dist    Distribution
	zipf    *exprand.Zipf
}

func newSampler(src rand.EntropySource, opt Options) *sampler {
	s := &sampler{src: src, normals: rand.NewNormals(src), n: opt.NumUniqueValues, dist: opt.Distribution}
	if s.dist == Zipf && s.n > 0 {
		s.zipf = exprand.NewZipf(exprand.New(expSource{src}), opt.ZipfExponent, 1, uint64(s.n-1))
	}
	return s
}

func (s *sampler) next() int {
	switch s.dist {
	case Gaussian:
		mean, sd := float64(s.n)/2, float64(s.n)/6
		for {
			v := math.Floor(mean + sd*s.normals.Next())
			if v >= 0 && v < float64(s.n) {
				return int(v)
			}
		}
	case Zipf:
		return int(s.zipf.Uint64())
	default:
		return rand.Intn(s.src, s.n)
	}
}

// Population draws the clients of a simulation. The result depends only on
// the options.
func Population(o *Options) ([]Client, error) {
	opt, err := o.withDefaults()
	if err != nil {
		return nil, err
	}
	if opt.NumUniqueValues == 0 && opt.ValuesPerClient > 0 {
		return nil, fmt.Errorf("simulate: no values to draw from")
	}
	s := newSampler(rand.NewFast(opt.Seed), opt)
	clients := make([]Client, opt.NumClients)
	for i := range clients {
		vals := make([]string, opt.ValuesPerClient)
		for j := range vals {
			vals[j] = ValueName(s.next())
		}
		clients[i] = Client{UserID: UserID(opt.Seed, i), Values: vals}
	}
	return clients, nil
}

// TrueCounts returns how many times each value occurs in clients.
func TrueCounts(clients []Client) map[string]int64 {
	counts := make(map[string]int64)
	for _, c := range clients {
		for _, v := range c.Values {
			counts[v]++
		}
	}
	return counts
}

// clientSeed derives the entropy seed of client i from the simulation seed.
func clientSeed(seed uint64, i int) uint64 {
	var b [16]byte
	binary.LittleEndian.PutUint64(b[:8], seed)
	binary.LittleEndian.PutUint64(b[8:], uint64(i))
	return xxh3.Hash(b[:])
}

// Encode encodes every value of every client into report lines, ordered by
// client and then by value. Clients are encoded concurrently, each with its
// own encoder and entropy source, so the output only depends on the inputs.
func Encode(ctx context.Context, p params.Params, clients []Client, o *Options) ([]string, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	opt, err := o.withDefaults()
	if err != nil {
		return nil, err
	}
	out := make([][]string, len(clients))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opt.Workers)
	for i := range clients {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			enc, err := encoder.New(p, clients[i].UserID, &encoder.Options{
				Source:       rand.NewFast(clientSeed(opt.Seed, i)),
				CohortPolicy: opt.CohortPolicy,
			})
			if err != nil {
				return err
			}
			lines := make([]string, len(clients[i].Values))
			for j, v := range clients[i].Values {
				r, err := enc.Encode(v)
				if err != nil {
					return fmt.Errorf("client %d value %q: %w", i, v, err)
				}
				lines[j] = r.String()
			}
			out[i] = lines
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var lines []string
	for _, l := range out {
		lines = append(lines, l...)
	}
	log.V(1).Infof("simulated %d reports from %d clients", len(lines), len(clients))
	return lines, nil
}

// Run draws a population and encodes it.
func Run(ctx context.Context, p params.Params, opt *Options) ([]Client, []string, error) {
	clients, err := Population(opt)
	if err != nil {
		return nil, nil, err
	}
	lines, err := Encode(ctx, p, clients, opt)
	if err != nil {
		return nil, nil, err
	}
	return clients, lines, nil
}
