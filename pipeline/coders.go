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

package pipeline

import (
	"bytes"
	"encoding/gob"

	"github.com/google/rappor/go/aggregate"
)

func encodeCohortCounts(cc aggregate.CohortCounts) ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(cc)
	return buf.Bytes(), err
}

func decodeCohortCounts(data []byte) (aggregate.CohortCounts, error) {
	var ret aggregate.CohortCounts
	err := gob.NewDecoder(bytes.NewReader(data)).Decode(&ret)
	return ret, err
}
