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
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/ugorji/go/codec"
)

// encodableCounts can be encoded by the gob package and by the CBOR codec.
type encodableCounts struct {
	NumBits int
	Reports []int64
	BitSums [][]int64
	Skipped int64
}

func (c *Counts) toEncodable() (*encodableCounts, error) {
	if c.state != defaultState {
		return nil, fmt.Errorf("Counts cannot be serialized: %s", c.state.errorMessage())
	}
	enc := &encodableCounts{
		NumBits: c.numBits,
		Reports: make([]int64, len(c.cohorts)),
		BitSums: make([][]int64, len(c.cohorts)),
		Skipped: c.skipped,
	}
	for i, cc := range c.cohorts {
		enc.Reports[i] = cc.Reports
		enc.BitSums[i] = cc.BitSums
	}
	return enc, nil
}

func (c *Counts) fromEncodable(enc *encodableCounts) error {
	if len(enc.Reports) != len(enc.BitSums) {
		return fmt.Errorf("%w: %d report totals for %d cohorts", ErrIncompatible, len(enc.Reports), len(enc.BitSums))
	}
	cohorts := make([]CohortCounts, len(enc.Reports))
	for i := range cohorts {
		cohorts[i] = CohortCounts{Reports: enc.Reports[i], BitSums: enc.BitSums[i]}
	}
	decoded, err := FromCohorts(enc.NumBits, cohorts)
	if err != nil {
		return err
	}
	decoded.skipped = enc.Skipped
	*c = *decoded
	return nil
}

// GobEncode encodes Counts.
func (c *Counts) GobEncode() ([]byte, error) {
	enc, err := c.toEncodable()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(enc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode decodes Counts.
func (c *Counts) GobDecode(data []byte) error {
	var enc encodableCounts
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&enc); err != nil {
		return fmt.Errorf("GobDecode: couldn't decode Counts from bytes: %v", err)
	}
	return c.fromEncodable(&enc)
}

// MarshalCBOR serializes Counts in CBOR format.
func (c *Counts) MarshalCBOR() ([]byte, error) {
	enc, err := c.toEncodable()
	if err != nil {
		return nil, err
	}
	encBuf := new(bytes.Buffer)
	if err := codec.NewEncoder(encBuf, &codec.CborHandle{}).Encode(enc); err != nil {
		return nil, err
	}
	return encBuf.Bytes(), nil
}

// UnmarshalCBOR parses Counts serialized by MarshalCBOR.
func (c *Counts) UnmarshalCBOR(b []byte) error {
	var enc encodableCounts
	if err := codec.NewDecoder(bytes.NewBuffer(b), &codec.CborHandle{}).Decode(&enc); err != nil {
		return fmt.Errorf("UnmarshalCBOR: couldn't decode Counts: %v", err)
	}
	return c.fromEncodable(&enc)
}
