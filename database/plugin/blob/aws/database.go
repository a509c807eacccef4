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

package aws

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/blinklabs-io/diploma/database/plugin/blob"
	"github.com/blinklabs-io/diploma/database/types"
	"github.com/prometheus/client_golang/prometheus"
)

// documentContentType is set on uploaded objects
const documentContentType = "application/pdf"

// BlobStoreS3 stores data in an AWS S3 bucket
type BlobStoreS3 struct {
	promRegistry prometheus.Registerer
	logger       *S3Logger
	metrics      *blob.Metrics
	client       *s3.Client
	bucket       string
	prefix       string
	region       string
	endpoint     string
	sseMode      string
	sseKmsKeyID  string
	timeout      time.Duration
}

// New creates a new S3-backed blob store and dataDir must be "s3://bucket" or "s3://bucket/prefix"
func New(
	dataDir string,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (*BlobStoreS3, error) {
	const prefix = "s3://"
	if !strings.HasPrefix(dataDir, prefix) {
		return nil, errors.New(
			"s3 blob: expected dataDir='s3://<bucket>[/prefix]'",
		)
	}

	path := strings.TrimPrefix(dataDir, prefix)
	if path == "" {
		return nil, errors.New("s3 blob: bucket not set")
	}

	bucket, keyPrefix, _ := strings.Cut(path, "/")
	if bucket == "" {
		return nil, errors.New("s3 blob: invalid S3 path (missing bucket)")
	}

	return NewWithOptions(
		WithBucket(bucket),
		WithPrefix(keyPrefix),
		WithLogger(logger),
		WithPromRegistry(promRegistry),
	)
}

// NewWithOptions creates a new S3-backed blob store using options.
func NewWithOptions(opts ...BlobStoreS3OptionFunc) (*BlobStoreS3, error) {
	db := &BlobStoreS3{}

	// Apply options
	for _, opt := range opts {
		opt(db)
	}

	// Set defaults (no side effects)
	if db.logger == nil {
		db.logger = NewS3Logger(nil)
	}
	if db.timeout == 0 {
		db.timeout = 60 * time.Second
	}
	db.prefix = strings.Trim(db.prefix, "/")
	if db.prefix != "" {
		db.prefix += "/"
	}

	// Note: AWS config loading and validation happens in Start()
	return db, nil
}

// SetLogger implements the plugin.Observable interface
func (d *BlobStoreS3) SetLogger(logger *slog.Logger) {
	d.logger = NewS3Logger(logger)
}

// SetPromRegistry implements the plugin.Observable interface
func (d *BlobStoreS3) SetPromRegistry(registry prometheus.Registerer) {
	d.promRegistry = registry
}

// Start implements the plugin.Plugin interface.
func (d *BlobStoreS3) Start() error {
	// Validate required fields
	if d.bucket == "" {
		return errors.New("s3 blob: bucket not set")
	}
	switch s3types.ServerSideEncryption(d.sseMode) {
	case "", s3types.ServerSideEncryptionAes256, s3types.ServerSideEncryptionAwsKms:
	default:
		return fmt.Errorf("s3 blob: unsupported server-side encryption %q", d.sseMode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	var loadOpts []func(*config.LoadOptions) error
	// Override region if specified
	if d.region != "" {
		loadOpts = append(loadOpts, config.WithRegion(d.region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return fmt.Errorf("s3 blob: load default AWS config: %w", err)
	}

	d.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if d.endpoint == "" {
			return
		}
		// S3-compatible services (minio and friends) want path-style
		// addressing and no optional checksums
		o.BaseEndpoint = aws.String(d.endpoint)
		o.UsePathStyle = true
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})
	d.metrics = blob.NewMetrics(d.promRegistry, "s3")
	d.logger.Infof("s3 blob store using bucket %q", d.bucket)
	return nil
}

// Stop implements the plugin.Plugin interface.
func (d *BlobStoreS3) Stop() error {
	// S3 client doesn't need explicit closing
	return nil
}

// Close implements the BlobStore interface.
func (d *BlobStoreS3) Close() error {
	return d.Stop()
}

// Returns the S3 key with an optional prefix.
func (d *BlobStoreS3) fullKey(key string) *string {
	return aws.String(d.prefix + key)
}

func isS3NotFound(err error) bool {
	var noSuchKey *s3types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchKey" {
		return true
	}
	var respErr *smithyhttp.ResponseError
	return errors.As(err, &respErr) &&
		respErr.HTTPStatusCode() == http.StatusNotFound
}

// Get reads the value at key.
func (d *BlobStoreS3) Get(ctx context.Context, key string) ([]byte, error) {
	if d.client == nil {
		return nil, types.ErrNoStoreAvailable
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	data, err := d.get(ctx, key)
	d.metrics.Observe("get", len(data), err)
	return data, err
}

func (d *BlobStoreS3) get(ctx context.Context, key string) ([]byte, error) {
	out, err := d.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    d.fullKey(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, types.ErrBlobKeyNotFound
		}
		d.logger.Errorf("s3 get %q failed: %v", key, err)
		return nil, err
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		d.logger.Errorf("s3 read %q failed: %v", key, err)
		return nil, err
	}
	d.logger.Debugf("s3 get %q ok (%d bytes)", key, len(data))
	return data, nil
}

// Put writes a value to key.
func (d *BlobStoreS3) Put(ctx context.Context, key string, value []byte) error {
	if d.client == nil {
		return types.ErrNoStoreAvailable
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	_, err := d.client.PutObject(ctx, d.putInput(key, value))
	d.metrics.Observe("put", len(value), err)
	if err != nil {
		d.logger.Errorf("s3 put %q failed: %v", key, err)
		return err
	}
	d.logger.Debugf("s3 put %q ok (%d bytes)", key, len(value))
	return nil
}

func (d *BlobStoreS3) putInput(key string, value []byte) *s3.PutObjectInput {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(d.bucket),
		Key:           d.fullKey(key),
		Body:          bytes.NewReader(value),
		ContentLength: aws.Int64(int64(len(value))),
		ContentType:   aws.String(documentContentType),
	}
	if d.sseMode != "" {
		input.ServerSideEncryption = s3types.ServerSideEncryption(d.sseMode)
		if d.sseMode == string(s3types.ServerSideEncryptionAwsKms) &&
			d.sseKmsKeyID != "" {
			input.SSEKMSKeyId = aws.String(d.sseKmsKeyID)
		}
	}
	return input
}

// Delete removes key. S3 reports success for missing keys.
func (d *BlobStoreS3) Delete(ctx context.Context, key string) error {
	if d.client == nil {
		return types.ErrNoStoreAvailable
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	_, err := d.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    d.fullKey(key),
	})
	if err != nil && isS3NotFound(err) {
		err = nil
	}
	d.metrics.Observe("delete", 0, err)
	if err != nil {
		d.logger.Errorf("s3 delete %q failed: %v", key, err)
	}
	return err
}
