// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gcs

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestWithLogger(t *testing.T) {
	b := &BlobStoreGCS{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	option := WithLogger(logger)

	option(b)

	if b.logger == nil {
		t.Errorf("Expected logger to be set")
	}
}

func TestWithPromRegistry(t *testing.T) {
	b := &BlobStoreGCS{}
	registry := prometheus.NewRegistry()
	option := WithPromRegistry(registry)

	option(b)

	if b.promRegistry != registry {
		t.Errorf("Expected promRegistry to be set correctly")
	}
}

func TestWithBucket(t *testing.T) {
	b := &BlobStoreGCS{}
	option := WithBucket("test-bucket")

	option(b)

	if b.bucketName != "test-bucket" {
		t.Errorf(
			"Expected bucketName to be 'test-bucket', got '%s'",
			b.bucketName,
		)
	}
}

func TestWithKmsKeyName(t *testing.T) {
	const keyName = "projects/p/locations/eu/keyRings/certs/cryptoKeys/docs"
	b := &BlobStoreGCS{}
	WithKmsKeyName(keyName)(b)
	if b.kmsKeyName != keyName {
		t.Errorf("Expected kmsKeyName to be %q, got %q", keyName, b.kmsKeyName)
	}
}

func TestDefaults(t *testing.T) {
	b, err := NewWithOptions(WithPrefix("/documents/"))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if b.prefix != "documents/" {
		t.Errorf("Expected prefix to be 'documents/', got '%s'", b.prefix)
	}
	if b.timeout != 60*time.Second {
		t.Errorf("Expected default timeout of 60s, got %s", b.timeout)
	}
	if b.logger == nil {
		t.Errorf("Expected default logger")
	}
}

func TestParseDataDir(t *testing.T) {
	bucket, prefix, err := parseDataDir("gcs://certs/a/b")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if bucket != "certs" || prefix != "a/b" {
		t.Errorf("unexpected bucket %q and prefix %q", bucket, prefix)
	}
	if _, _, err := parseDataDir("gcs:///prefix"); err == nil {
		t.Errorf("Expected error for missing bucket")
	}
}
