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

package aggregate

import (
	"context"
	"strings"

	log "github.com/golang/glog"
	"github.com/google/rappor/go/params"
	"github.com/google/rappor/go/report"
	"golang.org/x/sync/errgroup"
)

// ParseOptions configures report parsing. The zero value is usable.
type ParseOptions struct {
	// SkipMalformed drops reports that fail to parse instead of failing the
	// whole batch. Dropped reports are logged and counted in Counts.Skipped.
	SkipMalformed bool
}

// ParseReports parses report lines and sums them per cohort. Blank lines are
// ignored. Parse failures are returned as *report.FormatError.
func ParseReports(lines []string, p params.Params, opt *ParseOptions) (*Counts, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if opt == nil {
		opt = &ParseOptions{}
	}
	return parseLines(context.Background(), lines, 0, p, opt)
}

// parseLines counts lines, numbering them from offset+1.
func parseLines(ctx context.Context, lines []string, offset int, p params.Params, opt *ParseOptions) (*Counts, error) {
	c := NewCounts(p)
	for i, line := range lines {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := c.AddLine(line); err != nil {
			fe := &report.FormatError{Line: offset + i + 1, Input: line, Err: err}
			if !opt.SkipMalformed {
				return nil, fe
			}
			log.Warningf("skipping malformed report: %v", fe)
			c.skipped++
		}
	}
	return c, nil
}

// ParseReportsParallel is ParseReports over shards of the batch processed
// concurrently and merged in shard order.
func ParseReportsParallel(ctx context.Context, lines []string, p params.Params, opt *ParseOptions, shards int) (*Counts, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if opt == nil {
		opt = &ParseOptions{}
	}
	if shards < 1 {
		shards = 1
	}
	if shards > len(lines) {
		shards = len(lines)
	}
	if shards <= 1 {
		return parseLines(ctx, lines, 0, p, opt)
	}
	parts := make([]*Counts, shards)
	g, ctx := errgroup.WithContext(ctx)
	size := (len(lines) + shards - 1) / shards
	for s := 0; s < shards; s++ {
		s := s
		start, end := s*size, (s+1)*size
		if start > len(lines) {
			start = len(lines)
		}
		if end > len(lines) {
			end = len(lines)
		}
		g.Go(func() error {
			c, err := parseLines(ctx, lines[start:end], start, p, opt)
			if err != nil {
				return err
			}
			parts[s] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	total := parts[0]
	for _, c := range parts[1:] {
		if err := total.Merge(c); err != nil {
			return nil, err
		}
	}
	log.V(1).Infof("aggregated %d reports in %d shards, skipped %d", total.Total(), shards, total.skipped)
	return total, nil
}

// SumBits parses report lines and returns the per-cohort counts in CSV form.
func SumBits(p params.Params, lines []string) ([]string, error) {
	c, err := ParseReports(lines, p, nil)
	if err != nil {
		return nil, err
	}
	return c.CSV(), nil
}
