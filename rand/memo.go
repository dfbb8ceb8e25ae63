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
	log "github.com/golang/glog"
	"github.com/zeebo/xxh3"
)

// memoizing passes draws through to its base source, except while reseeded:
// then the draws are recorded on a tape keyed by the seed, and a later Reseed
// with the same seed replays that tape before extending it.
type memoizing struct {
	base  EntropySource
	tapes map[uint64][]uint64
	// Replay position on the current tape, valid while active.
	active bool
	key    uint64
	pos    int
}

type memoState struct {
	active bool
	key    uint64
	pos    int
	base   State
}

// NewMemoizing returns a MemoizingSource that draws fresh values from base.
func NewMemoizing(base EntropySource) EntropySource {
	return &memoizing{base: base, tapes: make(map[uint64][]uint64)}
}

func (m *memoizing) Uint64() uint64 {
	if !m.active {
		return m.base.Uint64()
	}
	tape := m.tapes[m.key]
	if m.pos < len(tape) {
		v := tape[m.pos]
		m.pos++
		return v
	}
	v := m.base.Uint64()
	m.tapes[m.key] = append(tape, v)
	m.pos++
	return v
}

func (m *memoizing) Snapshot() State {
	return memoState{active: m.active, key: m.key, pos: m.pos, base: m.base.Snapshot()}
}

func (m *memoizing) Restore(st State) {
	ms, ok := st.(memoState)
	if !ok {
		log.Fatalf("memoizing.Restore: got state of type %T", st)
	}
	m.active, m.key, m.pos = ms.active, ms.key, ms.pos
	m.base.Restore(ms.base)
}

func (m *memoizing) Reseed(seed []byte) {
	m.active, m.key, m.pos = true, xxh3.Hash(seed), 0
}
