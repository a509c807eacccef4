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


package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/diploma/api"
	"github.com/blinklabs-io/diploma/database"
	"github.com/blinklabs-io/diploma/database/models"
	"github.com/blinklabs-io/diploma/database/types"
	"github.com/blinklabs-io/diploma/document"
	"github.com/blinklabs-io/diploma/issuance"
	"github.com/blinklabs-io/diploma/ledger"
	"github.com/blinklabs-io/diploma/verification"
)

const testTxID = "3a7bd3e2360a3d29eea436fcfb7e44c735d117c42d1c1835420b6b9942dd4f1b"

type fakeVerifier struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeVerifier) record(call string) verification.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return verification.Result{Reason: verification.ReasonNotFound}
}

func (f *fakeVerifier) Verify(_ context.Context, hash string) verification.Result {
	return f.record("hash:" + hash)
}

func (f *fakeVerifier) VerifyCertificate(_ context.Context, id string) verification.Result {
	return f.record("certificate:" + id)
}

func (f *fakeVerifier) VerifyDocument(_ context.Context, data []byte) verification.Result {
	return f.record("document:" + document.Hash(data))
}

func (f *fakeVerifier) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type staticCommitter struct{}

func (staticCommitter) Commit(context.Context, ledger.CommitRequest) (string, error) {
	return testTxID, nil
}

type fakeIssuer struct {
	res *issuance.Result
	err error
}

func (f *fakeIssuer) Issue(context.Context, string) (*issuance.Result, error) {
	return f.res, f.err
}

func (f *fakeIssuer) Renotify(context.Context, string) (*issuance.Result, error) {
	return f.res, f.err
}

type testEnv struct {
	db       *database.Database
	verifier *fakeVerifier
	server   *httptest.Server
}

func newTestEnv(t *testing.T, issuer api.Issuer) *testEnv {
	t.Helper()
	db, err := database.New(&database.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	if issuer == nil {
		pipeline, err := issuance.NewPipeline(issuance.PipelineConfig{
			Store:     db,
			Renderer:  document.NewRenderer(),
			Committer: staticCommitter{},
		})
		require.NoError(t, err)
		issuer = pipeline
	}
	env := &testEnv{
		db:       db,
		verifier: &fakeVerifier{},
	}
	srv, err := api.New(api.Config{
		Verifier: env.verifier,
		Issuer:   issuer,
		Store:    db,
	})
	require.NoError(t, err)
	env.server = httptest.NewServer(srv.Handler())
	t.Cleanup(env.server.Close)
	return env
}

func (e *testEnv) createBatch(t *testing.T, batchID string, studentIDs ...string) {
	t.Helper()
	students := make([]models.Student, 0, len(studentIDs))
	for _, id := range studentIDs {
		students = append(students, models.Student{
			StudentID:      id,
			Name:           "Student " + id,
			Course:         "Mathematics",
			GPA:            3.5,
			Institution:    "Example University",
			GraduationDate: time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC),
		})
	}
	require.NoError(t, e.db.CreateBatch(
		context.Background(),
		&models.Batch{
			BatchID:          batchID,
			BatchName:        "Batch " + batchID,
			AcademicYear:     "2025/2026",
			Semester:         "2",
			Faculty:          "Science",
			CertificateCount: len(students),
		},
		students,
	))
}

func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, e.server.URL+path, body)
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := e.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var ret T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ret))
	return ret
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	resp := env.do(t, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.True(t, decode[api.HealthResponse](t, resp).IsHealthy)
}

func TestVerifyEndpointsAlwaysAnswerOK(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.do(t, http.MethodGet, "/api/v1/verify/not-a-hash", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[verification.Result](t, resp)
	assert.False(t, res.IsValid)
	assert.Equal(t, verification.ReasonNotFound, res.Reason)

	resp = env.do(t, http.MethodGet, "/api/v1/certificates/C1/verify", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(
		t,
		[]string{"hash:not-a-hash", "certificate:C1"},
		env.verifier.Calls(),
	)
}

func TestVerifyDocument(t *testing.T) {
	env := newTestEnv(t, nil)
	pdf := []byte("%PDF-1.4 certificate")

	resp := env.do(t, http.MethodPost, "/api/v1/verify/document", bytes.NewReader(pdf), "application/pdf")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	fw, err := mw.CreateFormFile("file", "certificate.pdf")
	require.NoError(t, err)
	_, err = fw.Write(pdf)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	resp = env.do(t, http.MethodPost, "/api/v1/verify/document", &form, mw.FormDataContentType())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	hash := document.Hash(pdf)
	assert.Equal(t, []string{"document:" + hash, "document:" + hash}, env.verifier.Calls())
}

func TestVerifyDocumentRejectsBadUploads(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.do(t, http.MethodPost, "/api/v1/verify/document", http.NoBody, "application/pdf")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	require.NoError(t, mw.WriteField("other", "value"))
	require.NoError(t, mw.Close())
	resp = env.do(t, http.MethodPost, "/api/v1/verify/document", &form, mw.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	large := bytes.Repeat([]byte{'a'}, int(api.MaxDocumentSize)+1)
	resp = env.do(t, http.MethodPost, "/api/v1/verify/document", bytes.NewReader(large), "application/pdf")
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)

	assert.Empty(t, env.verifier.Calls())
}

func TestIssueAndFetchBatch(t *testing.T) {
	env := newTestEnv(t, nil)
	env.createBatch(t, "B1", "S1", "S2")

	resp := env.do(t, http.MethodPost, "/api/v1/batches/B1/issue", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[issuance.Result](t, resp)
	assert.Equal(t, testTxID, res.TxID)
	assert.Equal(t, models.BatchStatusCompleted, res.Status)
	require.Len(t, res.Certificates, 2)

	// Issuing again must not anchor the batch twice
	resp = env.do(t, http.MethodPost, "/api/v1/batches/B1/issue", nil, "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v1/batches/B1", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	batch := decode[api.BatchResponse](t, resp)
	assert.Equal(t, models.BatchStatusCompleted, batch.Status)
	assert.Equal(t, testTxID, batch.TransactionID)
	require.Len(t, batch.Students, 2)
	for _, s := range batch.Students {
		assert.Equal(t, models.StudentStatusCertified, s.Status)
		assert.Equal(t, testTxID, s.TransactionHash)
	}

	cert := res.Certificates[0]
	resp = env.do(t, http.MethodGet, "/api/v1/certificates/"+cert.CertificateID+"/document", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), cert.CertificateID+".pdf")
	pdf, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, cert.DocumentHash, document.Hash(pdf))
}

func TestNotFound(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, path := range []string{
		"/api/v1/batches/missing",
		"/api/v1/certificates/missing/document",
	} {
		resp := env.do(t, http.MethodGet, path, nil, "")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
		errResp := decode[api.ErrorResponse](t, resp)
		assert.Equal(t, http.StatusNotFound, errResp.StatusCode)
	}
	resp := env.do(t, http.MethodPost, "/api/v1/batches/missing/issue", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestIssuanceStatusMapping(t *testing.T) {
	partial := &issuance.Result{
		BatchID: "B1",
		TxID:    testTxID,
		Status:  models.BatchStatusPartiallyCompleted,
	}
	testDefs := []struct {
		name   string
		res    *issuance.Result
		err    error
		status int
	}{
		{
			name:   "validation",
			err:    &issuance.ValidationError{BatchID: "B1", Problems: []string{"batch has no students"}},
			status: http.StatusUnprocessableEntity,
		},
		{
			name:   "in progress",
			err:    fmt.Errorf("%w: B1", issuance.ErrBatchInProgress),
			status: http.StatusConflict,
		},
		{
			name:   "not completed",
			err:    fmt.Errorf("%w: B1", issuance.ErrNotCompleted),
			status: http.StatusConflict,
		},
		{
			name:   "insufficient funds",
			err:    fmt.Errorf("commit: %w", ledger.ErrInsufficientFunds),
			status: http.StatusServiceUnavailable,
		},
		{
			name:   "commit failed",
			err:    &ledger.CommitError{BatchID: "B1", Stage: ledger.StageSubmit, Err: errors.New("rejected")},
			status: http.StatusBadGateway,
		},
		{
			name:   "not found",
			err:    fmt.Errorf("load batch B1: %w", types.ErrNotFound),
			status: http.StatusNotFound,
		},
		{
			name: "persistence after commit",
			res:  partial,
			err: &issuance.PersistenceAfterCommitError{
				BatchID: "B1",
				TxID:    testTxID,
				Err:     types.ErrNotFound,
			},
			status: http.StatusMultiStatus,
		},
		{
			name:   "unexpected",
			err:    errors.New("boom"),
			status: http.StatusInternalServerError,
		},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			env := newTestEnv(t, &fakeIssuer{res: testDef.res, err: testDef.err})
			resp := env.do(t, http.MethodPost, "/api/v1/batches/B1/issue", nil, "")
			require.Equal(t, testDef.status, resp.StatusCode)
			errResp := decode[api.ErrorResponse](t, resp)
			assert.Equal(t, testDef.status, errResp.StatusCode)
			assert.Equal(t, testDef.err.Error(), errResp.Message)
			if testDef.res != nil {
				require.NotNil(t, errResp.Result)
				assert.Equal(t, testTxID, errResp.Result.TxID)
			}
		})
	}
}

func TestRenotify(t *testing.T) {
	env := newTestEnv(t, nil)
	env.createBatch(t, "B1", "S1")

	resp := env.do(t, http.MethodPost, "/api/v1/batches/B1/notify", nil, "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/v1/batches/B1/issue", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Without a notifier configured renotification fails after the checks
	resp = env.do(t, http.MethodPost, "/api/v1/batches/B1/notify", nil, "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	errResp := decode[api.ErrorResponse](t, resp)
	require.NotNil(t, errResp.Result)
	assert.Equal(t, testTxID, errResp.Result.TxID)
}

func TestIssuanceDisabled(t *testing.T) {
	db, err := database.New(&database.Config{})
	require.NoError(t, err)
	defer db.Close()
	srv, err := api.New(api.Config{Verifier: &fakeVerifier{}, Store: db})
	require.NoError(t, err)
	for _, path := range []string{"/api/v1/batches/B1/issue", "/api/v1/batches/B1/notify"} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}

func TestListBatches(t *testing.T) {
	env := newTestEnv(t, nil)
	env.createBatch(t, "B1", "S1")
	env.createBatch(t, "B2", "S1")
	env.createBatch(t, "B3", "S1")
	require.NoError(t, env.db.TransitionBatchStatus(
		context.Background(),
		"B2",
		[]models.BatchStatus{models.BatchStatusSubmitted},
		models.BatchStatusFailed,
		"render failed",
	))

	ids := func(batches []api.BatchResponse) []string {
		ret := []string{}
		for _, b := range batches {
			ret = append(ret, b.BatchID)
		}
		return ret
	}

	resp := env.do(t, http.MethodGet, "/api/v1/batches", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "3", resp.Header.Get("X-Pagination-Count-Total"))
	assert.Equal(t, []string{"B1", "B2", "B3"}, ids(decode[[]api.BatchResponse](t, resp)))

	resp = env.do(t, http.MethodGet, "/api/v1/batches?count=2&page=2", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "2", resp.Header.Get("X-Pagination-Page-Total"))
	assert.Equal(t, []string{"B3"}, ids(decode[[]api.BatchResponse](t, resp)))

	resp = env.do(t, http.MethodGet, "/api/v1/batches?order=desc&count=1", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"B3"}, ids(decode[[]api.BatchResponse](t, resp)))

	resp = env.do(t, http.MethodGet, "/api/v1/batches?status=failed,completed", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	failed := decode[[]api.BatchResponse](t, resp)
	assert.Equal(t, []string{"B2"}, ids(failed))
	assert.Equal(t, "render failed", failed[0].ErrorMessage)

	resp = env.do(t, http.MethodGet, "/api/v1/batches?page=9", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]api.BatchResponse](t, resp))

	resp = env.do(t, http.MethodGet, "/api/v1/batches?order=sideways", nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStartStop(t *testing.T) {
	db, err := database.New(&database.Config{})
	require.NoError(t, err)
	defer db.Close()
	srv, err := api.New(api.Config{
		Verifier:      &fakeVerifier{},
		Store:         db,
		ListenAddress: "127.0.0.1:0",
	})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, srv.Start(ctx))
	err = srv.Start(ctx)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "already started"))
	require.NoError(t, srv.Stop(context.Background()))
	// Stopping twice is harmless
	require.NoError(t, srv.Stop(context.Background()))
}

func TestNewValidation(t *testing.T) {
	_, err := api.New(api.Config{})
	require.Error(t, err)
	_, err = api.New(api.Config{Verifier: &fakeVerifier{}})
	require.Error(t, err)
}
