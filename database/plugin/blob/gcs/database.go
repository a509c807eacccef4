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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/blinklabs-io/diploma/database/plugin/blob"
	"github.com/blinklabs-io/diploma/database/types"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/api/option"
)

// documentContentType is set on uploaded objects
const documentContentType = "application/pdf"

// BlobStoreGCS stores data in a Google Cloud Storage bucket.
type BlobStoreGCS struct {
	promRegistry    prometheus.Registerer
	logger          *GcsLogger
	metrics         *blob.Metrics
	client          *storage.Client
	bucket          *storage.BucketHandle
	bucketName      string
	prefix          string
	credentialsFile string
	endpoint        string
	kmsKeyName      string
	timeout         time.Duration
}

// New creates a new GCS-backed blob store. dataDir must be
// "gcs://bucket" or "gcs://bucket/prefix".
func New(
	dataDir string,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (*BlobStoreGCS, error) {
	bucketName, prefix, err := parseDataDir(dataDir)
	if err != nil {
		return nil, err
	}
	return NewWithOptions(
		WithBucket(bucketName),
		WithPrefix(prefix),
		WithLogger(logger),
		WithPromRegistry(promRegistry),
	)
}

func parseDataDir(dataDir string) (string, string, error) {
	path, ok := strings.CutPrefix(dataDir, "gcs://")
	if !ok || path == "" {
		return "", "", errors.New(
			"gcs blob: bucket not set (expected dataDir='gcs://<bucket>[/prefix]')",
		)
	}
	bucketName, prefix, _ := strings.Cut(path, "/")
	if bucketName == "" {
		return "", "", errors.New("gcs blob: invalid GCS path (missing bucket)")
	}
	return bucketName, prefix, nil
}

// NewWithOptions creates a new GCS-backed blob store using options.
func NewWithOptions(opts ...BlobStoreGCSOptionFunc) (*BlobStoreGCS, error) {
	db := &BlobStoreGCS{}

	// Apply options
	for _, opt := range opts {
		opt(db)
	}

	// Set defaults
	if db.logger == nil {
		db.logger = NewGcsLogger(nil)
	}
	if db.timeout == 0 {
		db.timeout = 60 * time.Second
	}
	db.prefix = normalizePrefix(db.prefix)

	return db, nil
}

func normalizePrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

// ValidateCredentials checks that a configured credentials file is readable
func ValidateCredentials(credentialsFile string) error {
	if credentialsFile == "" {
		return nil
	}
	info, err := os.Stat(credentialsFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf(
				"GCS credentials file does not exist: %s",
				credentialsFile,
			)
		}
		return fmt.Errorf("GCS credentials file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf(
			"GCS credentials file is a directory: %s",
			credentialsFile,
		)
	}
	return nil
}

// SetLogger implements the plugin.Observable interface
func (d *BlobStoreGCS) SetLogger(logger *slog.Logger) {
	d.logger = NewGcsLogger(logger)
}

// SetPromRegistry implements the plugin.Observable interface
func (d *BlobStoreGCS) SetPromRegistry(registry prometheus.Registerer) {
	d.promRegistry = registry
}

// Close closes the GCS client.
func (d *BlobStoreGCS) Close() error {
	if d.client == nil {
		return nil
	}
	err := d.client.Close()
	d.client = nil
	return err
}

// Start implements the plugin.Plugin interface.
func (d *BlobStoreGCS) Start() error {
	// Validate required fields
	if d.bucketName == "" {
		return errors.New("gcs blob: bucket not set")
	}
	if err := ValidateCredentials(d.credentialsFile); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var clientOpts []option.ClientOption
	clientOpts = append(clientOpts, storage.WithDisabledClientMetrics())
	if d.credentialsFile != "" {
		clientOpts = append(
			clientOpts,
			option.WithCredentialsFile(d.credentialsFile),
		)
	}
	if d.endpoint != "" {
		// Emulators such as fake-gcs-server take no credentials
		clientOpts = append(
			clientOpts,
			option.WithEndpoint(d.endpoint),
			option.WithoutAuthentication(),
		)
	}

	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return fmt.Errorf(
			"gcs blob: failed in creating storage client: %w",
			err,
		)
	}

	d.client = client
	d.bucket = client.Bucket(d.bucketName)
	d.metrics = blob.NewMetrics(d.promRegistry, "gcs")
	d.logger.Infof("gcs blob store using bucket %q", d.bucketName)
	return nil
}

// Stop implements the plugin.Plugin interface.
func (d *BlobStoreGCS) Stop() error {
	return d.Close()
}

func (d *BlobStoreGCS) object(key string) *storage.ObjectHandle {
	return d.bucket.Object(d.prefix + key)
}

// Get returns the object stored under key
func (d *BlobStoreGCS) Get(ctx context.Context, key string) ([]byte, error) {
	if d.client == nil {
		return nil, types.ErrNoStoreAvailable
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	data, err := d.get(ctx, key)
	d.metrics.Observe("get", len(data), err)
	return data, err
}

func (d *BlobStoreGCS) get(ctx context.Context, key string) ([]byte, error) {
	r, err := d.object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, types.ErrBlobKeyNotFound
		}
		d.logger.Errorf("gcs get %q failed: %v", key, err)
		return nil, err
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		d.logger.Errorf("gcs read %q failed: %v", key, err)
		return nil, err
	}
	d.logger.Debugf("gcs get %q ok (%d bytes)", key, len(data))
	return data, nil
}

// Put uploads data under key
func (d *BlobStoreGCS) Put(ctx context.Context, key string, data []byte) error {
	if d.client == nil {
		return types.ErrNoStoreAvailable
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	w := d.object(key).NewWriter(ctx)
	w.ContentType = documentContentType
	if d.kmsKeyName != "" {
		w.KMSKeyName = d.kmsKeyName
	}
	_, err := io.Copy(w, bytes.NewReader(data))
	// Close finalizes the upload and reports its error
	if closeErr := w.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		d.logger.Errorf("gcs put %q failed: %v", key, err)
	} else {
		d.logger.Debugf("gcs put %q ok (%d bytes)", key, len(data))
	}
	d.metrics.Observe("put", len(data), err)
	return err
}

// Delete removes key
func (d *BlobStoreGCS) Delete(ctx context.Context, key string) error {
	if d.client == nil {
		return types.ErrNoStoreAvailable
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	err := d.object(key).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		err = nil
	}
	if err != nil {
		d.logger.Errorf("gcs delete %q failed: %v", key, err)
	}
	d.metrics.Observe("delete", 0, err)
	return err
}
