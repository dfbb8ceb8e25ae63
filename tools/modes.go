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

// Package tools implements the rappor command line modes: encoding values,
// summing reports, hashing candidates, decoding, simulating populations and
// computing privacy guarantees. Input and output files may be local paths or
// gs:// objects.
package tools

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/apache/beam/sdks/v2/go/pkg/beam"
	log "github.com/golang/glog"
	"github.com/google/rappor/go/aggregate"
	"github.com/google/rappor/go/analytics"
	"github.com/google/rappor/go/candidates"
	"github.com/google/rappor/go/decode"
	"github.com/google/rappor/go/encoder"
	"github.com/google/rappor/go/params"
	"github.com/google/rappor/go/pipeline"
	"github.com/google/rappor/go/rand"
	"github.com/google/rappor/go/simulate"

	// The direct runner executes Beam pipelines in process.
	_ "github.com/apache/beam/sdks/v2/go/pkg/beam/runners/direct"
)

// Mode is a command line mode.
type Mode string

const (
	// EncodeMode reads "<user_id>,<value>" lines and writes one report line
	// per input line.
	EncodeMode Mode = "encode"
	// SumBitsMode reads report lines and writes the per-cohort counts.
	SumBitsMode Mode = "sum_bits"
	// HashCandidatesMode reads one candidate per line and writes the candidate
	// map.
	HashCandidatesMode Mode = "hash_candidates"
	// DecodeMode reads per-cohort counts and candidates and writes the
	// decoded frequencies.
	DecodeMode Mode = "decode"
	// SimulateMode draws a population and writes its reports.
	SimulateMode Mode = "simulate"
	// PrivacyMode writes the privacy guarantees of the parameters.
	PrivacyMode Mode = "privacy"
)

// Modes lists every mode.
var Modes = []Mode{EncodeMode, SumBitsMode, HashCandidatesMode, DecodeMode, SimulateMode, PrivacyMode}

// Config holds the inputs of every mode. Modes ignore the fields they don't
// use.
type Config struct {
	Params params.Params

	InputFile      string
	OutputFile     string // Standard output when empty, for modes writing a single small file.
	CandidatesFile string // decode input, simulate output.
	ChartFile      string // decode: optional PNG bar chart.
	TruthFile      string // simulate: optional true value counts.

	SourceKind  rand.Kind
	Secret      []byte // encode: one-time PRR key.
	Parallelism int

	// UseBeam runs sum_bits as a Beam pipeline on Runner (default "direct").
	UseBeam bool
	Runner  string

	SkipMalformed bool
	Decode        decode.Options
	Simulation    simulate.Options

	Alpha      float64 // privacy: significance. Defaults to 0.05.
	SampleSize int64   // privacy: number of reports.
}

// Run runs mode with cfg.
func Run(ctx context.Context, mode Mode, cfg *Config) error {
	if err := cfg.Params.Validate(); err != nil {
		return err
	}
	switch mode {
	case EncodeMode:
		return runEncode(ctx, cfg)
	case SumBitsMode:
		return runSumBits(ctx, cfg)
	case HashCandidatesMode:
		return runHashCandidates(ctx, cfg)
	case DecodeMode:
		return runDecode(ctx, cfg)
	case SimulateMode:
		return runSimulate(ctx, cfg)
	case PrivacyMode:
		return runPrivacy(ctx, cfg)
	}
	return fmt.Errorf("there is no mode %q", mode)
}

func output(ctx context.Context, lines []string, filename string) error {
	if filename == "" {
		for _, l := range lines {
			if _, err := fmt.Fprintln(os.Stdout, l); err != nil {
				return err
			}
		}
		return nil
	}
	return WriteLines(ctx, lines, filename)
}

func nonBlank(lines []string) []string {
	var out []string
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func runEncode(ctx context.Context, cfg *Config) error {
	lines, err := ReadLines(ctx, cfg.InputFile)
	if err != nil {
		return err
	}
	encoders := make(map[string]*encoder.Encoder)
	var reports []string
	for n, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		i := strings.IndexByte(line, ',')
		if i < 0 {
			return fmt.Errorf("line %d: %q: want \"<user_id>,<value>\"", n+1, line)
		}
		user, value := line[:i], line[i+1:]
		enc, ok := encoders[user]
		if !ok {
			enc, err = encoder.New(cfg.Params, user, &encoder.Options{
				Source: rand.ToSource(cfg.SourceKind),
				Secret: cfg.Secret,
			})
			if err != nil {
				return err
			}
			encoders[user] = enc
		}
		r, err := enc.Encode(value)
		if err != nil {
			return fmt.Errorf("line %d: %w", n+1, err)
		}
		reports = append(reports, r.String())
	}
	log.Infof("encoded %d values of %d users", len(reports), len(encoders))
	return output(ctx, reports, cfg.OutputFile)
}

func runSumBits(ctx context.Context, cfg *Config) error {
	if cfg.UseBeam {
		return runSumBitsBeam(ctx, cfg)
	}
	lines, err := ReadLines(ctx, cfg.InputFile)
	if err != nil {
		return err
	}
	counts, err := aggregate.ParseReportsParallel(ctx, lines, cfg.Params, &aggregate.ParseOptions{SkipMalformed: cfg.SkipMalformed}, cfg.Parallelism)
	if err != nil {
		return err
	}
	log.Infof("summed %d reports, skipped %d", counts.Total(), counts.Skipped())
	return output(ctx, counts.CSV(), cfg.OutputFile)
}

// runSumBitsBeam sums the reports with a Beam pipeline, then rewrites its
// keyed output in cohort order.
func runSumBitsBeam(ctx context.Context, cfg *Config) error {
	if cfg.OutputFile == "" {
		return fmt.Errorf("sum_bits on Beam needs an output file")
	}
	p := beam.NewPipeline()
	s := p.Root()
	pipeline.SumBitsFiles(s, cfg.Params, cfg.InputFile, cfg.OutputFile, &aggregate.ParseOptions{SkipMalformed: cfg.SkipMalformed})
	runner := cfg.Runner
	if runner == "" {
		runner = "direct"
	}
	if _, err := beam.Run(ctx, runner, p); err != nil {
		return fmt.Errorf("execution of pipeline failed: %w", err)
	}
	keyed, err := ReadLines(ctx, cfg.OutputFile)
	if err != nil {
		return err
	}
	counts, err := pipeline.ParseKeyedSums(keyed, cfg.Params)
	if err != nil {
		return err
	}
	log.Infof("summed %d reports on Beam", counts.Total())
	return WriteLines(ctx, counts.CSV(), cfg.OutputFile)
}

func runHashCandidates(ctx context.Context, cfg *Config) error {
	lines, err := ReadLines(ctx, cfg.InputFile)
	if err != nil {
		return err
	}
	m, err := candidates.HashCandidates(cfg.Params, nonBlank(lines))
	if err != nil {
		return err
	}
	return output(ctx, m.Rows(), cfg.OutputFile)
}

func runDecode(ctx context.Context, cfg *Config) error {
	counts, err := ReadLines(ctx, cfg.InputFile)
	if err != nil {
		return err
	}
	cands, err := ReadLines(ctx, cfg.CandidatesFile)
	if err != nil {
		return err
	}
	opt := cfg.Decode
	if opt.Source == nil {
		opt.Source = rand.ToSource(cfg.SourceKind)
	}
	if opt.Parallelism == 0 {
		opt.Parallelism = cfg.Parallelism
	}
	res, err := decode.DecodeCSV(ctx, counts, nonBlank(cands), cfg.Params, &opt)
	if err != nil {
		return err
	}
	m := res.Metrics
	log.Infof("decoded %d reports: %d candidates detected, allocated mass %.4f, explained %.4f, missing %.4f",
		m.SampleSize, m.NumDetected, m.AllocatedMass, m.Explained, m.Missing)
	log.Infof("privacy: ε₁ = %.4f, ε∞ = %.4f, detection frequency %.6f",
		res.Privacy.EpsilonOne, res.Privacy.EpsilonInf, res.Privacy.DetectionFrequency)
	lines, err := FormatFit(res.Fit)
	if err != nil {
		return err
	}
	if err := output(ctx, lines, cfg.OutputFile); err != nil {
		return err
	}
	if cfg.ChartFile != "" {
		if err := drawChart(ctx, res.Fit, cfg.ChartFile); err != nil {
			return err
		}
	}
	return nil
}

// FormatFit renders decoded frequencies as CSV with a header line:
// candidate,proportion,stdev,lower,upper.
func FormatFit(fit []decode.Frequency) ([]string, error) {
	rows := [][]string{{"candidate", "proportion", "stdev", "lower", "upper"}}
	for _, f := range fit {
		rows = append(rows, []string{
			f.Candidate,
			formatFloat(f.Proportion),
			formatFloat(f.Stdev),
			formatFloat(f.Interval.LowerBound),
			formatFloat(f.Interval.UpperBound),
		})
	}
	return csvLines(rows)
}

func formatFloat(x float64) string {
	return strconv.FormatFloat(x, 'g', 6, 64)
}

// csvLines encodes each row as one CSV line, quoting fields as needed.
func csvLines(rows [][]string) ([]string, error) {
	out := make([]string, len(rows))
	var sb strings.Builder
	for i, row := range rows {
		sb.Reset()
		w := csv.NewWriter(&sb)
		if err := w.Write(row); err != nil {
			return nil, err
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, err
		}
		out[i] = strings.TrimSuffix(sb.String(), "\n")
	}
	return out, nil
}

func runSimulate(ctx context.Context, cfg *Config) error {
	if cfg.OutputFile == "" {
		return fmt.Errorf("simulate needs an output file")
	}
	opt := cfg.Simulation
	if opt.Workers == 0 {
		opt.Workers = cfg.Parallelism
	}
	clients, reports, err := simulate.Run(ctx, cfg.Params, &opt)
	if err != nil {
		return err
	}
	log.Infof("simulated %d reports from %d clients", len(reports), len(clients))
	if err := WriteLines(ctx, reports, cfg.OutputFile); err != nil {
		return err
	}
	numValues := opt.NumUniqueValues
	if numValues == 0 {
		numValues = simulate.DefaultNumUniqueValues
	}
	if cfg.CandidatesFile != "" {
		if err := WriteLines(ctx, simulate.Candidates(numValues), cfg.CandidatesFile); err != nil {
			return err
		}
	}
	if cfg.TruthFile != "" {
		truth := simulate.TrueCounts(clients)
		rows := [][]string{{"value", "count", "proportion"}}
		total := float64(len(reports))
		for _, v := range simulate.Candidates(numValues) {
			if truth[v] == 0 {
				continue
			}
			rows = append(rows, []string{v, strconv.FormatInt(truth[v], 10), formatFloat(float64(truth[v]) / total)})
		}
		lines, err := csvLines(rows)
		if err != nil {
			return err
		}
		if err := WriteLines(ctx, lines, cfg.TruthFile); err != nil {
			return err
		}
	}
	return nil
}

func runPrivacy(ctx context.Context, cfg *Config) error {
	alpha := cfg.Alpha
	if alpha == 0 {
		alpha = 0.05
	}
	g, err := analytics.ComputePrivacyGuarantees(cfg.Params, alpha, cfg.SampleSize)
	if err != nil {
		return err
	}
	return output(ctx, []string{
		"epsilon_one," + formatFloat(g.EpsilonOne),
		"epsilon_inf," + formatFloat(g.EpsilonInf),
		"detection_frequency," + formatFloat(g.DetectionFrequency),
	}, cfg.OutputFile)
}
