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
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/blinklabs-io/diploma/database/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 is a path-style object store good enough for GetObject,
// PutObject and DeleteObject
type fakeS3 struct {
	objects map[string][]byte
	mu      sync.Mutex
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.TrimPrefix(r.URL.Path, "/")
	switch r.Method {
	case http.MethodPut:
		data, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		f.objects[key] = data
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		data, ok := f.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(
				w,
				`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`,
			)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(data)
	case http.MethodDelete:
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func setTestAWSEnv(t *testing.T) {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	t.Setenv("AWS_REGION", "us-east-1")
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(tmpDir, "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(tmpDir, "credentials"))
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
}

func TestNewFromCmdlineOptions(t *testing.T) {
	cmdlineOptionsMutex.Lock()
	originalOptions := cmdlineOptions
	cmdlineOptions.bucket = "test-bucket"
	cmdlineOptions.region = "us-east-1"
	cmdlineOptions.prefix = "test-prefix"
	cmdlineOptions.sse = "aws:kms"
	cmdlineOptions.sseKmsKeyID = "alias/certs"
	cmdlineOptions.timeout = 15
	cmdlineOptionsMutex.Unlock()
	defer func() {
		cmdlineOptionsMutex.Lock()
		cmdlineOptions = originalOptions
		cmdlineOptionsMutex.Unlock()
	}()

	p := NewFromCmdlineOptions()
	require.NotNil(t, p)
	store, ok := p.(*BlobStoreS3)
	require.True(t, ok)
	assert.Equal(t, "test-bucket", store.bucket)
	assert.Equal(t, "test-prefix/", store.prefix)
	assert.Equal(t, 15*time.Second, store.timeout)

	input := store.putInput("doc1", []byte("%PDF"))
	assert.Equal(t, "test-prefix/doc1", *input.Key)
	assert.Equal(t, "application/pdf", *input.ContentType)
	assert.Equal(t, s3types.ServerSideEncryptionAwsKms, input.ServerSideEncryption)
	assert.Equal(t, "alias/certs", *input.SSEKMSKeyId)
}

func TestServerSideEncryption(t *testing.T) {
	store, err := NewWithOptions(
		WithBucket("certs"),
		WithServerSideEncryption("AES256", "ignored"),
	)
	require.NoError(t, err)
	input := store.putInput("doc1", nil)
	assert.Equal(t, s3types.ServerSideEncryptionAes256, input.ServerSideEncryption)
	assert.Nil(t, input.SSEKMSKeyId)

	store, err = NewWithOptions(
		WithBucket("certs"),
		WithServerSideEncryption("rot13", ""),
	)
	require.NoError(t, err)
	require.ErrorContains(t, store.Start(), "unsupported server-side encryption")
}

func TestNewDataDir(t *testing.T) {
	_, err := New("/var/lib/diploma", nil, nil)
	require.Error(t, err)
	_, err = New("s3://", nil, nil)
	require.Error(t, err)
	store, err := New("s3://certs/docs/", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "certs", store.bucket)
	assert.Equal(t, "docs/", store.prefix)
}

func TestStartWithoutBucket(t *testing.T) {
	store, err := NewWithOptions()
	require.NoError(t, err)
	require.Error(t, store.Start())
	_, err = store.Get(context.Background(), "doc")
	require.ErrorIs(t, err, types.ErrNoStoreAvailable)
}

func TestObjectRoundTrip(t *testing.T) {
	setTestAWSEnv(t)
	fake := &fakeS3{objects: map[string][]byte{}}
	server := httptest.NewServer(fake)
	defer server.Close()

	store, err := NewWithOptions(
		WithBucket("certs"),
		WithPrefix("docs"),
		WithEndpoint(server.URL),
		WithPromRegistry(prometheus.NewRegistry()),
	)
	require.NoError(t, err)
	require.NoError(t, store.Start())
	defer store.Close() //nolint:errcheck

	ctx := context.Background()
	_, err = store.Get(ctx, "doc1")
	require.ErrorIs(t, err, types.ErrBlobKeyNotFound)

	require.NoError(t, store.Put(ctx, "doc1", []byte("%PDF-1.3 test")))
	fake.mu.Lock()
	assert.Equal(t, []byte("%PDF-1.3 test"), fake.objects["certs/docs/doc1"])
	fake.mu.Unlock()

	data, err := store.Get(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.3 test"), data)

	require.NoError(t, store.Delete(ctx, "doc1"))
	_, err = store.Get(ctx, "doc1")
	require.ErrorIs(t, err, types.ErrBlobKeyNotFound)
}
