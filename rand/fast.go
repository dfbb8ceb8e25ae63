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
	exprand "golang.org/x/exp/rand"
)

// fast is a PCG generator. Its whole state is two words, so snapshots are
// plain copies.
type fast struct {
	pcg exprand.PCGSource
}

// NewFast returns a FastSource seeded with seed.
func NewFast(seed uint64) EntropySource {
	f := &fast{}
	f.pcg.Seed(seed)
	return f
}

func (f *fast) Uint64() uint64 {
	return f.pcg.Uint64()
}

func (f *fast) Snapshot() State {
	return f.pcg
}

func (f *fast) Restore(st State) {
	pcg, ok := st.(exprand.PCGSource)
	if !ok {
		log.Fatalf("fast.Restore: got state of type %T", st)
	}
	f.pcg = pcg
}

func (f *fast) Reseed(seed []byte) {
	f.pcg.Seed(xxh3.Hash(seed))
}
