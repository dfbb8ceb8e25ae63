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

// Package bloom maps values to bloom filter bits. Clients and the collector
// must agree on the hash bit-for-bit, so both the encoder and the candidate
// mapper go through this package.
package bloom

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/google/rappor/go/bitvec"
)

// Kind selects the hash function used to place values in the bloom filter.
type Kind int

const (
	// SHA1Hash derives bit h of a value in a cohort from the first two bytes of
	// SHA1(cohort ∥ h ∥ value), with cohort and h in decimal.
	SHA1Hash Kind = iota
	// MD5Hash derives bit h from byte h of MD5(uint32be(cohort) ∥ value). It is
	// only defined for at most 16 hashes and 256 bloom bits.
	MD5Hash
)

// MaxMD5Hashes is the number of hash functions MD5Hash can provide.
const MaxMD5Hashes = md5.Size

// MaxMD5Bits is the widest filter MD5Hash can address.
const MaxMD5Bits = 256

func (k Kind) String() string {
	switch k {
	case SHA1Hash:
		return "sha1"
	case MD5Hash:
		return "md5"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	switch k {
	case SHA1Hash, MD5Hash:
		return []byte(k.String()), nil
	}
	return nil, fmt.Errorf("bloom: unknown hash kind %d", int(k))
}

// UnmarshalText implements encoding.TextUnmarshaler. The empty string selects
// SHA1Hash.
func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "", "sha1":
		*k = SHA1Hash
	case "md5":
		*k = MD5Hash
	default:
		return fmt.Errorf("bloom: unknown hash kind %q", text)
	}
	return nil
}

// Bit returns the bloom filter bit in [0, numBits) that hash function
// hashIndex assigns to value in the given cohort, using SHA1Hash.
func Bit(value string, cohort, hashIndex, numBits int) int {
	return SHA1Hash.Bit(value, cohort, hashIndex, numBits)
}

// Bit returns the bloom filter bit in [0, numBits) that hash function
// hashIndex assigns to value in the given cohort. MD5Hash panics if hashIndex
// is not below MaxMD5Hashes; params.Params.Validate rejects such settings.
func (k Kind) Bit(value string, cohort, hashIndex, numBits int) int {
	if k == MD5Hash {
		checkMD5Hashes(hashIndex + 1)
		d := md5Digest(value, cohort)
		return int(d[hashIndex]) % numBits
	}
	return sha1Bit(value, cohort, hashIndex, numBits)
}

func sha1Bit(value string, cohort, hashIndex, numBits int) int {
	buf := make([]byte, 0, 2*8+len(value))
	buf = strconv.AppendInt(buf, int64(cohort), 10)
	buf = strconv.AppendInt(buf, int64(hashIndex), 10)
	buf = append(buf, value...)
	d := sha1.Sum(buf)
	return (int(d[1])*256 + int(d[0])) % numBits
}

func md5Digest(value string, cohort int) [md5.Size]byte {
	buf := make([]byte, 4, 4+len(value))
	binary.BigEndian.PutUint32(buf, uint32(cohort))
	buf = append(buf, value...)
	return md5.Sum(buf)
}

func checkMD5Hashes(n int) {
	if n > MaxMD5Hashes {
		panic(fmt.Sprintf("bloom: md5 hashing provides %d hash functions, %d requested", MaxMD5Hashes, n))
	}
}

// Bits returns the bit chosen by each of the numHashes hash functions, in hash
// order. Collisions are kept, so the result always has numHashes entries.
// MD5Hash panics if numHashes exceeds MaxMD5Hashes.
func (k Kind) Bits(value string, cohort, numHashes, numBits int) []int {
	out := make([]int, numHashes)
	if k == MD5Hash {
		checkMD5Hashes(numHashes)
		d := md5Digest(value, cohort)
		for h := range out {
			out[h] = int(d[h]) % numBits
		}
		return out
	}
	for h := range out {
		out[h] = sha1Bit(value, cohort, h, numBits)
	}
	return out
}

// Filter returns the bloom filter of value in the given cohort: a vector of
// numBits bits with the bit of every hash function set.
func (k Kind) Filter(value string, cohort, numHashes, numBits int) []byte {
	f := bitvec.New(numBits)
	for _, b := range k.Bits(value, cohort, numHashes, numBits) {
		bitvec.Set(f, b)
	}
	return f
}
