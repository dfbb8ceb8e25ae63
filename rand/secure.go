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
	"crypto/sha256"
	"encoding/binary"

	log "github.com/golang/glog"
	"golang.org/x/crypto/chacha20"
)

// secure draws from crypto/rand. While reseeded it reads a ChaCha20 keystream
// keyed by SHA-256(seed) instead, so that the same seed yields the same draws
// without exposing a predictable generator to unseeded callers.
type secure struct {
	seeded bool
	stream chacha20.Cipher
}

type secureState struct {
	seeded bool
	stream chacha20.Cipher
}

// NewSecure returns a SecureSource.
func NewSecure() EntropySource {
	return &secure{}
}

func (s *secure) Uint64() uint64 {
	if !s.seeded {
		return U64()
	}
	var r [8]byte
	s.stream.XORKeyStream(r[:], r[:])
	return binary.LittleEndian.Uint64(r[:])
}

func (s *secure) Snapshot() State {
	return secureState{seeded: s.seeded, stream: s.stream}
}

func (s *secure) Restore(st State) {
	ss, ok := st.(secureState)
	if !ok {
		log.Fatalf("secure.Restore: got state of type %T", st)
	}
	s.seeded, s.stream = ss.seeded, ss.stream
}

func (s *secure) Reseed(seed []byte) {
	key := sha256.Sum256(seed)
	var nonce [chacha20.NonceSize]byte
	c, err := chacha20.NewUnauthenticatedCipher(key[:], nonce[:])
	if err != nil {
		log.Fatalf("couldn't create the seeded stream, should never happen: %v", err)
	}
	s.seeded, s.stream = true, *c
}
