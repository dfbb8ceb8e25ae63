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

package tools

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"

	// The following packages let Beam pipelines read and write local and GCS
	// files.
	_ "github.com/apache/beam/sdks/v2/go/pkg/beam/io/filesystem/gcs"
	_ "github.com/apache/beam/sdks/v2/go/pkg/beam/io/filesystem/local"
)

const gcsScheme = "gs://"

// ParseGCSPath splits a "gs://bucket/object" path.
func ParseGCSPath(filename string) (bucket, object string, err error) {
	parsed, err := url.Parse(filename)
	if err != nil {
		return
	}
	if parsed.Scheme != "gs" {
		err = fmt.Errorf("object %q must have 'gs' scheme", filename)
		return
	}
	if parsed.Host == "" {
		err = fmt.Errorf("object %q must have bucket", filename)
		return
	}
	bucket = parsed.Host
	if parsed.Path != "" {
		object = parsed.Path[1:]
	}
	return
}

func openGCS(ctx context.Context, filename string) (io.ReadCloser, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	bucket, object, err := ParseGCSPath(filename)
	if err != nil {
		return nil, err
	}
	return client.Bucket(bucket).Object(object).NewReader(ctx)
}

func createGCS(ctx context.Context, filename string) (io.WriteCloser, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	bucket, object, err := ParseGCSPath(filename)
	if err != nil {
		return nil, err
	}
	return client.Bucket(bucket).Object(object).NewWriter(ctx), nil
}

func open(ctx context.Context, filename string) (io.ReadCloser, error) {
	if strings.HasPrefix(filename, gcsScheme) {
		return openGCS(ctx, filename)
	}
	return os.Open(filename)
}

func create(ctx context.Context, filename string) (io.WriteCloser, error) {
	if strings.HasPrefix(filename, gcsScheme) {
		return createGCS(ctx, filename)
	}
	if dir := filepath.Dir(filename); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	return os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
}

// ReadLines reads the input file line by line.
//
// The file can be stored locally or in GCS.
func ReadLines(ctx context.Context, filename string) ([]string, error) {
	r, err := open(ctx, filename)
	if err != nil {
		return nil, fmt.Errorf("couldn't open %q: %w", filename, err)
	}
	defer r.Close()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	var result []string
	for scanner.Scan() {
		result = append(result, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("couldn't read %q: %w", filename, err)
	}
	return result, nil
}

// WriteLines writes lines to the output file, one per line.
//
// The file can be stored locally or in GCS.
func WriteLines(ctx context.Context, lines []string, filename string) error {
	var buf bytes.Buffer
	for _, line := range lines {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	return WriteBytes(ctx, buf.Bytes(), filename)
}

// WriteBytes writes data to a local or GCS file.
func WriteBytes(ctx context.Context, data []byte, filename string) error {
	w, err := create(ctx, filename)
	if err != nil {
		return fmt.Errorf("couldn't create %q: %w", filename, err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("couldn't write to %q: %w", filename, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("couldn't close %q: %w", filename, err)
	}
	return nil
}
