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
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type BlobStoreGCSOptionFunc func(*BlobStoreGCS)

// WithLogger specifies the logger object to use for logging messages
func WithLogger(logger *slog.Logger) BlobStoreGCSOptionFunc {
	return func(b *BlobStoreGCS) {
		b.logger = NewGcsLogger(logger)
	}
}

// WithPromRegistry specifies the prometheus registry to use for metrics
func WithPromRegistry(
	registry prometheus.Registerer,
) BlobStoreGCSOptionFunc {
	return func(b *BlobStoreGCS) {
		b.promRegistry = registry
	}
}

// WithBucket specifies the GCS bucket name
func WithBucket(bucket string) BlobStoreGCSOptionFunc {
	return func(b *BlobStoreGCS) {
		b.bucketName = bucket
	}
}

// WithPrefix specifies a key prefix for all objects
func WithPrefix(prefix string) BlobStoreGCSOptionFunc {
	return func(b *BlobStoreGCS) {
		b.prefix = prefix
	}
}

// WithCredentialsFile specifies a service account key file. Application
// default credentials are used when unset.
func WithCredentialsFile(credentialsFile string) BlobStoreGCSOptionFunc {
	return func(b *BlobStoreGCS) {
		b.credentialsFile = credentialsFile
	}
}

// WithEndpoint specifies a custom endpoint, generally an emulator used for
// testing
func WithEndpoint(endpoint string) BlobStoreGCSOptionFunc {
	return func(b *BlobStoreGCS) {
		b.endpoint = endpoint
	}
}

// WithTimeout specifies the timeout for a single object operation
func WithTimeout(timeout time.Duration) BlobStoreGCSOptionFunc {
	return func(b *BlobStoreGCS) {
		b.timeout = timeout
	}
}

// WithKmsKeyName encrypts uploaded documents with a customer managed key,
// given as projects/P/locations/L/keyRings/R/cryptoKeys/K
func WithKmsKeyName(keyName string) BlobStoreGCSOptionFunc {
	return func(b *BlobStoreGCS) {
		b.kmsKeyName = keyName
	}
}
