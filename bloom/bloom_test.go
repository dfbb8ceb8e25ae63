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

package bloom

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/rappor/go/bitvec"
)

// globalIndices returns cohort*numBits + bit + 1 for every cohort and hash.
func globalIndices(k Kind, value string, numCohorts, numHashes, numBits int) []int {
	var out []int
	for c := 0; c < numCohorts; c++ {
		for _, b := range k.Bits(value, c, numHashes, numBits) {
			out = append(out, c*numBits+b+1)
		}
	}
	return out
}

func TestGlobalIndices(t *testing.T) {
	for _, tc := range []struct {
		desc  string
		kind  Kind
		value string
		want  []int
	}{
		{"sha1 apple", SHA1Hash, "apple", []int{2, 16, 19, 32, 37, 47, 52, 55}},
		{"sha1 banana", SHA1Hash, "banana", []int{4, 16, 26, 23, 45, 34, 56, 62}},
		{"sha1 carrot", SHA1Hash, "carrot", []int{16, 8, 24, 30, 42, 33, 64, 62}},
		{"md5 apple", MD5Hash, "apple", []int{5, 1, 26, 26, 38, 34, 63, 62}},
		{"md5 banana", MD5Hash, "banana", []int{12, 14, 28, 24, 37, 34, 62, 49}},
		{"md5 carrot", MD5Hash, "carrot", []int{4, 12, 25, 21, 48, 38, 61, 54}},
	} {
		got := globalIndices(tc.kind, tc.value, 4, 2, 16)
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Errorf("Bits: when %s got diff (-want +got):\n%s", tc.desc, diff)
		}
	}
}

func TestBit(t *testing.T) {
	for _, tc := range []struct {
		value     string
		cohort    int
		hashIndex int
		numBits   int
		want      int
	}{
		{"abc", 0, 0, 16, 3},
		{"abc", 0, 1, 16, 6},
		{"hello", 0, 0, 16, 15},
		{"hello", 0, 1, 16, 10},
		{"abc", 7, 0, 1000, 166},
		{"abc", 7, 1, 1000, 934},
		{"abc", 7, 2, 1000, 449},
	} {
		if got := Bit(tc.value, tc.cohort, tc.hashIndex, tc.numBits); got != tc.want {
			t.Errorf("Bit(%q, %d, %d, %d) = %d, want %d", tc.value, tc.cohort, tc.hashIndex, tc.numBits, got, tc.want)
		}
	}
}

func TestBitMatchesBits(t *testing.T) {
	for _, k := range []Kind{SHA1Hash, MD5Hash} {
		for c := 0; c < 8; c++ {
			bits := k.Bits("some value", c, 4, 128)
			for h, b := range bits {
				if got := k.Bit("some value", c, h, 128); got != b {
					t.Errorf("%v: Bit(cohort=%d, hash=%d) = %d, Bits gave %d", k, c, h, got, b)
				}
				if b < 0 || b >= 128 {
					t.Errorf("%v: bit %d out of range", k, b)
				}
			}
		}
	}
}

func TestMD5HashLimit(t *testing.T) {
	for _, tc := range []struct {
		desc      string
		fn        func()
		wantPanic bool
	}{
		{"last md5 hash", func() { MD5Hash.Bit("apple", 0, MaxMD5Hashes-1, 16) }, false},
		{"md5 hash past the digest", func() { MD5Hash.Bit("apple", 0, MaxMD5Hashes, 16) }, true},
		{"all md5 hashes", func() { MD5Hash.Bits("apple", 0, MaxMD5Hashes, 16) }, false},
		{"too many md5 hashes", func() { MD5Hash.Bits("apple", 0, MaxMD5Hashes+1, 16) }, true},
		{"sha1 has no limit", func() { SHA1Hash.Bits("apple", 0, MaxMD5Hashes+1, 16) }, false},
	} {
		panicked := func() (p bool) {
			defer func() { p = recover() != nil }()
			tc.fn()
			return false
		}()
		if panicked != tc.wantPanic {
			t.Errorf("%s: got panic %t, want %t", tc.desc, panicked, tc.wantPanic)
		}
	}
}

func TestFilter(t *testing.T) {
	if got, want := bitvec.ToBinaryString(SHA1Hash.Filter("abc", 0, 2, 16), 16), "0001001000000000"; got != want {
		t.Errorf("Filter(abc): got %s, want %s", got, want)
	}
	if got, want := bitvec.ToBinaryString(SHA1Hash.Filter("hello", 0, 2, 16), 16), "0000000000100001"; got != want {
		t.Errorf("Filter(hello): got %s, want %s", got, want)
	}
	// apple collides with itself in cohort 1 under MD5.
	if got := bitvec.Count(MD5Hash.Filter("apple", 1, 2, 16), 16); got != 1 {
		t.Errorf("Filter(apple, md5, cohort 1): got %d bits set, want 1", got)
	}
}

func TestKindText(t *testing.T) {
	for _, tc := range []struct {
		text    string
		want    Kind
		wantErr bool
	}{
		{"sha1", SHA1Hash, false},
		{"", SHA1Hash, false},
		{"md5", MD5Hash, false},
		{"crc32", SHA1Hash, true},
	} {
		var k Kind
		err := k.UnmarshalText([]byte(tc.text))
		if (err != nil) != tc.wantErr {
			t.Errorf("UnmarshalText(%q): err = %v, wantErr %t", tc.text, err, tc.wantErr)
			continue
		}
		if err == nil && k != tc.want {
			t.Errorf("UnmarshalText(%q) = %v, want %v", tc.text, k, tc.want)
		}
	}
	if _, err := Kind(7).MarshalText(); err == nil {
		t.Errorf("MarshalText(Kind(7)): got nil error")
	}
}
