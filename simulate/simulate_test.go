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

package simulate

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/rappor/go/aggregate"
	"github.com/google/rappor/go/params"
	"github.com/google/rappor/go/stattestutils"
	"github.com/google/uuid"
)

// indices returns the value indices drawn for a population.
func indices(t *testing.T, clients []Client) []float64 {
	t.Helper()
	var out []float64
	for _, c := range clients {
		for _, v := range c.Values {
			i, err := strconv.Atoi(strings.TrimPrefix(v, "v"))
			if err != nil {
				t.Fatalf("bad value name %q: %v", v, err)
			}
			out = append(out, float64(i))
		}
	}
	return out
}

func TestPopulationIsDeterministic(t *testing.T) {
	opt := &Options{NumClients: 50, ValuesPerClient: 3, NumUniqueValues: 10, Seed: 42}
	a, err := Population(opt)
	if err != nil {
		t.Fatalf("Population: %v", err)
	}
	b, err := Population(opt)
	if err != nil {
		t.Fatalf("Population: %v", err)
	}
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("Population differs between runs with the same seed (-first +second):\n%s", diff)
	}
	if len(a) != 50 {
		t.Errorf("len(Population) = %d, want 50", len(a))
	}
	for _, c := range a {
		if len(c.Values) != 3 {
			t.Fatalf("client %s has %d values, want 3", c.UserID, len(c.Values))
		}
	}
	c, err := Population(&Options{NumClients: 50, ValuesPerClient: 3, NumUniqueValues: 10, Seed: 43})
	if err != nil {
		t.Fatalf("Population: %v", err)
	}
	if cmp.Equal(a, c) {
		t.Errorf("Population with seeds 42 and 43 are equal")
	}
}

func TestUserID(t *testing.T) {
	id := UserID(1, 0)
	if got := UserID(1, 0); got != id {
		t.Errorf("UserID(1, 0) = %s, then %s", id, got)
	}
	if UserID(1, 1) == id || UserID(2, 0) == id {
		t.Errorf("UserID collides for different clients")
	}
	u, err := uuid.Parse(id)
	if err != nil {
		t.Fatalf("uuid.Parse(%q): %v", id, err)
	}
	if u.Version() != 5 {
		t.Errorf("UserID version = %d, want 5", u.Version())
	}
}

func TestDistributions(t *testing.T) {
	const n = 100
	for _, tc := range []struct {
		desc           string
		dist           Distribution
		wantMean       float64
		meanTol        float64
		minStd, maxStd float64
	}{
		{desc: "uniform", dist: Uniform, wantMean: 49.5, meanTol: 1.5, minStd: 27.5, maxStd: 30.5},
		{desc: "gaussian", dist: Gaussian, wantMean: 49.5, meanTol: 1, minStd: 15, maxStd: 18},
	} {
		clients, err := Population(&Options{NumClients: 4000, ValuesPerClient: 5, NumUniqueValues: n, Distribution: tc.dist, Seed: 7})
		if err != nil {
			t.Fatalf("%s: Population: %v", tc.desc, err)
		}
		idx := indices(t, clients)
		for _, i := range idx {
			if i < 0 || i >= n {
				t.Fatalf("%s: drew value index %f, want [0, %d)", tc.desc, i, n)
			}
		}
		if mean := stattestutils.SampleMean(idx); math.Abs(mean-tc.wantMean) > tc.meanTol {
			t.Errorf("%s: sample mean = %f, want %f±%f", tc.desc, mean, tc.wantMean, tc.meanTol)
		}
		if std := math.Sqrt(stattestutils.SampleVariance(idx)); std < tc.minStd || std > tc.maxStd {
			t.Errorf("%s: sample stdev = %f, want in [%f, %f]", tc.desc, std, tc.minStd, tc.maxStd)
		}
	}
}

func TestZipfFavoursLowIndices(t *testing.T) {
	clients, err := Population(&Options{NumClients: 2000, ValuesPerClient: 5, NumUniqueValues: 50, Distribution: Zipf, Seed: 3})
	if err != nil {
		t.Fatalf("Population: %v", err)
	}
	counts := TrueCounts(clients)
	if !(counts["v0"] > counts["v1"] && counts["v1"] > counts["v9"]) {
		t.Errorf("counts v0=%d v1=%d v9=%d, want decreasing", counts["v0"], counts["v1"], counts["v9"])
	}
	var total int64
	for _, c := range counts {
		total += c
	}
	if total != 10000 {
		t.Errorf("total count = %d, want 10000", total)
	}
}

func TestOptionsErrors(t *testing.T) {
	for _, tc := range []struct {
		desc string
		opt  Options
	}{
		{desc: "negative clients", opt: Options{NumClients: -1}},
		{desc: "zipf exponent at most 1", opt: Options{Distribution: Zipf, ZipfExponent: 0.5}},
		{desc: "unknown distribution", opt: Options{Distribution: Distribution(9)}},
	} {
		if _, err := Population(&tc.opt); err == nil {
			t.Errorf("%s: Population returned no error", tc.desc)
		}
	}
}

func TestParseDistribution(t *testing.T) {
	for _, d := range []Distribution{Uniform, Gaussian, Zipf} {
		got, err := ParseDistribution(d.String())
		if err != nil || got != d {
			t.Errorf("ParseDistribution(%q) = %v, %v, want %v", d.String(), got, err, d)
		}
	}
	if _, err := ParseDistribution("exponential"); err == nil {
		t.Errorf("ParseDistribution(exponential) returned no error")
	}
}

func TestEncodeIsIndependentOfWorkers(t *testing.T) {
	p := params.Default()
	clients, err := Population(&Options{NumClients: 40, ValuesPerClient: 3, Seed: 5})
	if err != nil {
		t.Fatalf("Population: %v", err)
	}
	serial, err := Encode(context.Background(), p, clients, &Options{Seed: 5, Workers: 1})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	parallel, err := Encode(context.Background(), p, clients, &Options{Seed: 5, Workers: 4})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(serial) != 120 {
		t.Errorf("len(Encode) = %d, want 120", len(serial))
	}
	if diff := cmp.Diff(serial, parallel); diff != "" {
		t.Errorf("Encode depends on Workers (-serial +parallel):\n%s", diff)
	}
	for i, line := range serial {
		if !strings.HasPrefix(line, clients[i/3].UserID+",") {
			t.Fatalf("line %d = %q, want prefix %q", i, line, clients[i/3].UserID)
		}
	}
}

func TestEncodedUniformAggregate(t *testing.T) {
	p := params.Params{NumBloomBits: 16, NumHashes: 2, NumCohorts: 2, ProbP: 0.01, ProbQ: 0.99, ProbF: 0.01}
	_, lines, err := Run(context.Background(), p, &Options{NumClients: 100, Seed: 11, Workers: 3})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	c, err := aggregate.ParseReports(lines, p, nil)
	if err != nil {
		t.Fatalf("ParseReports: %v", err)
	}
	if got := c.Total(); got != 700 {
		t.Errorf("Total = %d, want 700", got)
	}
	// Nearly noiseless: each report carries the one or two bits of its value.
	var ones int64
	for _, cc := range c.Cohorts() {
		for _, s := range cc.BitSums {
			ones += s
		}
	}
	if avg := float64(ones) / 700; avg < 1.8 || avg > 2.5 {
		t.Errorf("average bits set per report = %f, want in [1.8, 2.5]", avg)
	}
}

func TestEncodeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	clients, err := Population(&Options{NumClients: 10, Seed: 1})
	if err != nil {
		t.Fatalf("Population: %v", err)
	}
	if _, err := Encode(ctx, params.Default(), clients, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("Encode with cancelled context = %v, want context.Canceled", err)
	}
}
