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

// Package rand provides the entropy sources used to randomize RAPPOR reports
// and to resample estimates, together with the Bernoulli and normal draws
// built on top of them.
//
// Every source can be reseeded for the duration of a call (see WithSeed),
// which is how one-time PRR reproduces the same masks for the same
// (user, value) pair.
package rand

import (
	"bufio"
	cryptorand "crypto/rand"
	"encoding/binary"
	"io"
	mathrand "math/rand"
	"sync"

	log "github.com/golang/glog"
)

var (
	randBufLock sync.Mutex
	randBuf     io.Reader = bufio.NewReaderSize(cryptorand.Reader, 65536)
)

func readRandBuf(b []byte) (int, error) {
	randBufLock.Lock()
	defer randBufLock.Unlock()
	return io.ReadFull(randBuf, b)
}

// U64 returns a uniformly random uint64 from the operating system's
// cryptographically secure generator.
func U64() uint64 {
	var r [8]uint8
	if _, err := readRandBuf(r[:]); err != nil {
		log.Fatalf("out of randomness, should never happen: %v", err)
	}
	return binary.LittleEndian.Uint64(r[:])
}

// Source produces uniformly random 64-bit words.
type Source interface {
	Uint64() uint64
}

// State is an opaque snapshot of an EntropySource.
type State interface{}

// EntropySource is a Source whose state can be saved, reseeded and restored.
//
// Sources are not safe for concurrent use.
type EntropySource interface {
	Source
	// Snapshot captures the current state of the source.
	Snapshot() State
	// Restore returns the source to a state captured by Snapshot.
	Restore(State)
	// Reseed makes the following draws a deterministic function of seed.
	Reseed(seed []byte)
}

// float64Source is implemented by sources that produce floats directly.
type float64Source interface {
	Float64() float64
}

// Float64 returns a float64 in [0, 1) drawn from src.
func Float64(src Source) float64 {
	if fs, ok := src.(float64Source); ok {
		return fs.Float64()
	}
	return float64(src.Uint64()>>11) / (1 << 53)
}

// Bits returns a vector of n bits, packed little-endian within bytes, where
// each bit is set independently with probability p.
func Bits(src Source, p float64, n int) []byte {
	out := make([]byte, (n+7)/8)
	for i := 0; i < n; i++ {
		if Float64(src) < p {
			out[i/8] |= 1 << (i % 8)
		}
	}
	return out
}

// Intn returns an integer in [0, n) computed as int(Float64·n), drawing again
// in the unlikely case that rounding yields n.
func Intn(src Source, n int) int {
	for {
		c := int(Float64(src) * float64(n))
		if c < n {
			return c
		}
	}
}

// WithSeed reseeds src, runs fn and restores the previous state of src. The
// state is restored even if fn panics.
func WithSeed(src EntropySource, seed []byte, fn func() error) error {
	st := src.Snapshot()
	defer src.Restore(st)
	src.Reseed(seed)
	return fn()
}

// Normal returns a normally distributed float with mean 0 and standard
// deviation 1 drawn from src. Callers drawing repeatedly should hold a
// Normals instead.
func Normal(src Source) float64 {
	return NewNormals(src).Next()
}

// Normals draws standard normal floats from a Source. It is not safe for
// concurrent use.
type Normals struct {
	r *mathrand.Rand
}

// NewNormals returns a Normals drawing from src.
func NewNormals(src Source) *Normals {
	return &Normals{r: mathrand.New(&randSource{src})}
}

// Next returns the next standard normal float.
func (n *Normals) Next() float64 {
	return n.r.NormFloat64()
}

// randSource adapts a Source to math/rand.Source64.
type randSource struct {
	src Source
}

// Int63 returns a uniformly random int64 in [0, 1<<63).
func (rs *randSource) Int63() int64 {
	return int64(rs.src.Uint64() >> 1)
}

// Uint64 returns a uniformly random uint64.
func (rs *randSource) Uint64() uint64 {
	return rs.src.Uint64()
}

// Seed is a no-op.
func (rs *randSource) Seed(_ int64) {}

// Kind identifies an entropy source implementation.
type Kind int

const (
	// SecureSource draws from crypto/rand and switches to a ChaCha20 stream
	// while reseeded.
	SecureSource Kind = iota
	// FastSource is a PCG generator. It is reproducible from its seed and
	// must not be used where reports need to resist prediction.
	FastSource
	// MemoizingSource wraps a SecureSource and replays the draws made under
	// each seed.
	MemoizingSource
)

func (k Kind) String() string {
	switch k {
	case SecureSource:
		return "secure"
	case FastSource:
		return "fast"
	case MemoizingSource:
		return "memoizing"
	default:
		return "unknown"
	}
}

// ToSource returns a fresh source of the given kind. FastSource instances are
// seeded from crypto/rand; use NewFast for a reproducible one.
func ToSource(k Kind) EntropySource {
	switch k {
	case SecureSource:
		return NewSecure()
	case FastSource:
		return NewFast(U64())
	case MemoizingSource:
		return NewMemoizing(NewSecure())
	}
	log.Warningf("ToSource: unknown kind value %d, returning a secure source", k)
	return NewSecure()
}
