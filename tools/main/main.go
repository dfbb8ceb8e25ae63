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

// This is a command line utility to encode values with RAPPOR and to analyze
// the collected reports.
// Usage examples:
//
//	go run ./tools/main --mode=simulate --params_file=params.yaml --output_file=reports.csv --candidates_file=candidates.txt
//	go run ./tools/main --mode=sum_bits --params_file=params.yaml --input_file=reports.csv --output_file=counts.csv
//	go run ./tools/main --mode=decode --params_file=params.yaml --input_file=counts.csv --candidates_file=candidates.txt --output_file=fit.csv --chart_file=fit.png
//	go run ./tools/main --mode=privacy --num_cohorts=64 --sample_size=1000000
//
// Files may be local paths or gs://bucket/object.
package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/apache/beam/sdks/v2/go/pkg/beam"
	log "github.com/golang/glog"
	"github.com/google/rappor/go/bloom"
	"github.com/google/rappor/go/decode"
	"github.com/google/rappor/go/params"
	"github.com/google/rappor/go/rand"
	"github.com/google/rappor/go/simulate"
	"github.com/google/rappor/go/tools"
)

var (
	mode = flag.String("mode", "", "Mode:\n"+
		"encode - encode \"<user_id>,<value>\" lines into reports.\n"+
		"sum_bits - sum reports per cohort.\n"+
		"hash_candidates - map candidate strings to bloom filter bits.\n"+
		"decode - estimate candidate frequencies from summed reports.\n"+
		"simulate - generate reports for a synthetic population.\n"+
		"privacy - print the privacy guarantees of the parameters.")
	paramsFile     = flag.String("params_file", "", "YAML or JSON params file. Overrides the individual params flags.")
	inputFile      = flag.String("input_file", "", "Input file.")
	outputFile     = flag.String("output_file", "", "Output file. Standard output when empty.")
	candidatesFile = flag.String("candidates_file", "", "Candidate strings, one per line.")
	chartFile      = flag.String("chart_file", "", "Output PNG bar chart of the decoded frequencies.")
	truthFile      = flag.String("truth_file", "", "Output file for the true counts of a simulation.")

	numBloomBits = flag.Int("num_bloombits", params.Default().NumBloomBits, "Bloom filter width k.")
	numHashes    = flag.Int("num_hashes", params.Default().NumHashes, "Hash functions per value h.")
	numCohorts   = flag.Int("num_cohorts", params.Default().NumCohorts, "Number of cohorts m.")
	probP        = flag.Float64("prob_p", params.Default().ProbP, "Probability that an IRR bit is set when the PRR bit is not.")
	probQ        = flag.Float64("prob_q", params.Default().ProbQ, "Probability that an IRR bit is set when the PRR bit is.")
	probF        = flag.Float64("prob_f", params.Default().ProbF, "Probability that a PRR bit is randomized.")
	oneTimePRR   = flag.Bool("flag_oneprr", false, "Memoize the PRR of each (user, value).")
	hash         = flag.String("hash", "sha1", "Bloom hash: sha1 or md5.")

	source        = flag.String("source", "secure", "Entropy source: secure, fast or memoizing.")
	secret        = flag.String("secret", "", "Client secret keying the one-time PRR.")
	parallelism   = flag.Int("parallelism", 4, "Number of concurrent workers.")
	useBeam       = flag.Bool("use_beam", false, "Run sum_bits as a Beam pipeline.")
	beamRunner    = flag.String("beam_runner", "direct", "Beam runner used with --use_beam.")
	skipMalformed = flag.Bool("skip_malformed", false, "Skip malformed reports instead of failing.")

	alpha      = flag.Float64("alpha", 0.05, "Significance level.")
	bootstraps = flag.Int("bootstraps", 5, "Number of bootstrap fits of the decoder.")
	lambda     = flag.Float64("lambda", 0, "Lasso penalty. 0 selects min(500, 0.8·candidates).")
	sampleSize = flag.Int64("sample_size", 1000000, "Number of reports, for --mode=privacy.")
	numClients = flag.Int("num_clients", simulate.DefaultNumClients, "Simulated clients.")
	valuesPer  = flag.Int("values_per_client", simulate.DefaultValuesPerClient, "Values reported by each simulated client.")
	numValues  = flag.Int("num_unique_values", simulate.DefaultNumUniqueValues, "Distinct simulated values.")
	dist       = flag.String("distribution", "uniform", "Simulated value distribution: uniform, gaussian or zipf.")
	seed       = flag.Uint64("seed", 0, "Simulation seed.")
)

func sourceKind(name string) (rand.Kind, error) {
	for _, k := range []rand.Kind{rand.SecureSource, rand.FastSource, rand.MemoizingSource} {
		if k.String() == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown source %q", name)
}

func loadParams() (params.Params, error) {
	if *paramsFile != "" {
		return params.Load(*paramsFile)
	}
	var h bloom.Kind
	if err := h.UnmarshalText([]byte(strings.ToLower(*hash))); err != nil {
		return params.Params{}, err
	}
	p := params.Params{
		NumBloomBits: *numBloomBits,
		NumHashes:    *numHashes,
		NumCohorts:   *numCohorts,
		ProbP:        *probP,
		ProbQ:        *probQ,
		ProbF:        *probF,
		OneTimePRR:   *oneTimePRR,
		Hash:         h,
	}
	return p, p.Validate()
}

func main() {
	flag.Parse()

	// beam.Init() is an initialization hook that must be called on startup. On
	// distributed runners, it is used to intercept control.
	beam.Init()

	if *mode == "" {
		log.Exit("No mode was chosen")
	}
	p, err := loadParams()
	if err != nil {
		log.Exitf("Couldn't load params: %v", err)
	}
	kind, err := sourceKind(*source)
	if err != nil {
		log.Exit(err)
	}
	d, err := simulate.ParseDistribution(*dist)
	if err != nil {
		log.Exit(err)
	}
	log.Infof("Running mode %q with params %v", *mode, p)

	cfg := &tools.Config{
		Params:         p,
		InputFile:      *inputFile,
		OutputFile:     *outputFile,
		CandidatesFile: *candidatesFile,
		ChartFile:      *chartFile,
		TruthFile:      *truthFile,
		SourceKind:     kind,
		Secret:         []byte(*secret),
		Parallelism:    *parallelism,
		UseBeam:        *useBeam,
		Runner:         *beamRunner,
		SkipMalformed:  *skipMalformed,
		Decode: decode.Options{
			Alpha:      *alpha,
			Bootstraps: *bootstraps,
			Lambda:     *lambda,
		},
		Simulation: simulate.Options{
			NumClients:      *numClients,
			ValuesPerClient: *valuesPer,
			NumUniqueValues: *numValues,
			Distribution:    d,
			Seed:            *seed,
		},
		Alpha:      *alpha,
		SampleSize: *sampleSize,
	}
	if err := tools.Run(context.Background(), tools.Mode(*mode), cfg); err != nil {
		log.Exitf("Couldn't run mode %q, err = %v", *mode, err)
	}
	log.Infof("Successfully finished mode %q", *mode)
}
