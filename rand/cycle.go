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

package rand

import (
	"math"

	log "github.com/golang/glog"
)

// CycleSource returns a fixed sequence of floats in [0, 1), starting over when
// it runs out. It makes encodings fully predictable and is meant for tests.
// Reseed restarts the cycle.
type CycleSource struct {
	values []float64
	pos    int
}

// NewCycle returns a CycleSource over values, which must be non-empty and in
// [0, 1).
func NewCycle(values ...float64) *CycleSource {
	if len(values) == 0 {
		log.Fatalf("NewCycle: no values")
	}
	return &CycleSource{values: values}
}

// Float64 returns the next value of the cycle.
func (c *CycleSource) Float64() float64 {
	v := c.values[c.pos]
	c.pos = (c.pos + 1) % len(c.values)
	return v
}

// Uint64 returns the next value of the cycle scaled to [0, 2⁶⁴).
func (c *CycleSource) Uint64() uint64 {
	return uint64(c.Float64() * math.Exp2(64))
}

// Snapshot implements EntropySource.
func (c *CycleSource) Snapshot() State {
	return c.pos
}

// Restore implements EntropySource.
func (c *CycleSource) Restore(st State) {
	c.pos = st.(int)
}

// Reseed implements EntropySource.
func (c *CycleSource) Reseed(_ []byte) {
	c.pos = 0
}
