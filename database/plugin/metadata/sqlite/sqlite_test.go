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

package sqlite

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/blinklabs-io/diploma/database/models"
	"github.com/blinklabs-io/diploma/database/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func newTestStore(t *testing.T) *MetadataStoreSqlite {
	t.Helper()
	store, err := New("", nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func testStudents(n int) []models.Student {
	ret := make([]models.Student, 0, n)
	for i := range n {
		ret = append(ret, models.Student{
			StudentID:      fmt.Sprintf("S%03d", n-i),
			Name:           fmt.Sprintf("Student %d", n-i),
			Course:         "Computer Science",
			GPA:            3.5,
			GraduationDate: time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
			Institution:    "Example University",
		})
	}
	return ret
}

func createTestBatch(
	t *testing.T,
	store *MetadataStoreSqlite,
	batchID string,
	students int,
) {
	t.Helper()
	err := store.CreateBatch(
		context.Background(),
		&models.Batch{
			BatchID:       batchID,
			BatchName:     "Spring graduation",
			AcademicYear:  "2024/2025",
			Semester:      "2",
			Faculty:       "Engineering",
			SubmittingOrg: "Org1MSP",
		},
		testStudents(students),
	)
	require.NoError(t, err)
}

func TestStoresAreIsolated(t *testing.T) {
	a := newTestStore(t)
	b := newTestStore(t)
	createTestBatch(t, a, "batch-1", 1)
	_, err := b.GetBatch(context.Background(), "batch-1")
	require.ErrorIs(t, err, types.ErrNotFound)
}

func TestCreateBatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	createTestBatch(t, store, "batch-1", 3)

	batch, err := store.GetBatch(ctx, "batch-1")
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusSubmitted, batch.Status)
	assert.Empty(t, batch.TransactionID)

	students, err := store.ListStudents(ctx, "batch-1")
	require.NoError(t, err)
	require.Len(t, students, 3)
	// Ordered by student id
	assert.Equal(t, "S001", students[0].StudentID)
	assert.Equal(t, "S003", students[2].StudentID)
	for _, s := range students {
		assert.Equal(t, "batch-1", s.BatchID)
		assert.Equal(t, models.StudentStatusPending, s.Status)
	}

	err = store.CreateBatch(
		ctx,
		&models.Batch{BatchID: "batch-1"},
		testStudents(1),
	)
	require.ErrorIs(t, err, types.ErrAlreadyExists)
	students, err = store.ListStudents(ctx, "batch-1")
	require.NoError(t, err)
	assert.Len(t, students, 3, "duplicate batch must not add students")
}

func TestListBatches(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	createTestBatch(t, store, "batch-1", 1)
	createTestBatch(t, store, "batch-2", 1)
	require.NoError(t, store.TransitionBatchStatus(
		ctx,
		"batch-2",
		[]models.BatchStatus{models.BatchStatusSubmitted},
		models.BatchStatusProcessing,
		"",
	))

	all, err := store.ListBatches(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	submitted, err := store.ListBatches(ctx, models.BatchStatusSubmitted)
	require.NoError(t, err)
	require.Len(t, submitted, 1)
	assert.Equal(t, "batch-1", submitted[0].BatchID)
}

func TestTransitionBatchStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	createTestBatch(t, store, "batch-1", 1)

	from := []models.BatchStatus{
		models.BatchStatusSubmitted,
		models.BatchStatusFailed,
	}
	require.NoError(t, store.TransitionBatchStatus(
		ctx, "batch-1", from, models.BatchStatusProcessing, "",
	))
	// A second claim loses
	err := store.TransitionBatchStatus(
		ctx, "batch-1", from, models.BatchStatusProcessing, "",
	)
	require.ErrorIs(t, err, types.ErrConflict)

	require.NoError(t, store.TransitionBatchStatus(
		ctx,
		"batch-1",
		[]models.BatchStatus{models.BatchStatusProcessing},
		models.BatchStatusFailed,
		"render failed",
	))
	batch, err := store.GetBatch(ctx, "batch-1")
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusFailed, batch.Status)
	assert.Equal(t, "render failed", batch.ErrorMessage)

	err = store.TransitionBatchStatus(
		ctx, "missing", from, models.BatchStatusProcessing, "",
	)
	require.ErrorIs(t, err, types.ErrNotFound)
}

func TestTransitionBatchStatusConcurrentClaim(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	createTestBatch(t, store, "batch-1", 1)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.TransitionBatchStatus(
				ctx,
				"batch-1",
				[]models.BatchStatus{models.BatchStatusSubmitted},
				models.BatchStatusProcessing,
				"",
			)
			if err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
}

func TestSetBatchTransaction(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	createTestBatch(t, store, "batch-1", 1)
	now := time.Now().UTC().Truncate(time.Second)

	require.Error(t, store.SetBatchTransaction(ctx, "batch-1", "", now))
	require.NoError(t, store.SetBatchTransaction(ctx, "batch-1", "tx1", now))
	// Same id again is fine
	require.NoError(t, store.SetBatchTransaction(ctx, "batch-1", "tx1", now))
	err := store.SetBatchTransaction(ctx, "batch-1", "tx2", now)
	require.ErrorIs(t, err, types.ErrConflict)

	batch, err := store.GetBatch(ctx, "batch-1")
	require.NoError(t, err)
	assert.Equal(t, "tx1", batch.TransactionID)
	require.NotNil(t, batch.CommittedAt)
	assert.True(t, now.Equal(*batch.CommittedAt))

	err = store.SetBatchTransaction(ctx, "missing", "tx1", now)
	require.ErrorIs(t, err, types.ErrNotFound)
}

func TestCertifyStudent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	createTestBatch(t, store, "batch-1", 2)
	students, err := store.ListStudents(ctx, "batch-1")
	require.NoError(t, err)

	issuedAt := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	student := students[0]
	student.CertificateID = "cert-1"
	student.DocumentHash = "ab12"
	student.DocumentKey = "bafkrei-test"
	student.DocumentSize = 1234
	student.IssuedAt = &issuedAt

	// Refuses to certify without a real transaction hash
	require.Error(t, store.CertifyStudent(ctx, &student))

	student.TransactionHash = "tx1"
	require.NoError(t, store.CertifyStudent(ctx, &student))
	assert.Equal(t, models.StudentStatusCertified, student.Status)

	// The transaction hash is written once
	student.TransactionHash = "tx2"
	err = store.CertifyStudent(ctx, &student)
	require.ErrorIs(t, err, types.ErrConflict)

	found, err := store.FindStudentByHash(ctx, "ab12")
	require.NoError(t, err)
	assert.Equal(t, "tx1", found.TransactionHash)
	assert.Equal(t, "cert-1", found.CertificateID)
	assert.Equal(t, int64(1234), found.DocumentSize)
	assert.Equal(t, models.StudentStatusCertified, found.Status)
	require.NotNil(t, found.IssuedAt)
	assert.True(t, issuedAt.Equal(*found.IssuedAt))

	found, err = store.FindStudentByCertificateID(ctx, "cert-1")
	require.NoError(t, err)
	assert.Equal(t, student.StudentID, found.StudentID)

	_, err = store.FindStudentByHash(ctx, "ffff")
	require.ErrorIs(t, err, types.ErrNotFound)
	// Pending students carry an empty hash, which never matches
	_, err = store.FindStudentByHash(ctx, "")
	require.ErrorIs(t, err, types.ErrNotFound)
	_, err = store.FindStudentByCertificateID(ctx, "")
	require.ErrorIs(t, err, types.ErrNotFound)
}

func TestMarkBatchNotified(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	createTestBatch(t, store, "batch-1", 1)
	require.NoError(t, store.MarkBatchNotified(ctx, "batch-1", true))
	batch, err := store.GetBatch(ctx, "batch-1")
	require.NoError(t, err)
	assert.True(t, batch.Notified)
	require.ErrorIs(
		t,
		store.MarkBatchNotified(ctx, "missing", true),
		types.ErrNotFound,
	)
}

func TestProcessLog(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	for i, stage := range []string{"received", "rendering", "committing"} {
		require.NoError(t, store.AppendProcessLog(ctx, &models.ProcessLog{
			BatchID: "batch-1",
			Stage:   stage,
			Level:   "info",
			Message: fmt.Sprintf("step %d", i),
			Details: datatypes.JSON(`{"count":2}`),
		}))
	}
	require.NoError(t, store.AppendProcessLog(ctx, &models.ProcessLog{
		BatchID: "batch-2",
		Stage:   "received",
		Level:   "info",
	}))
	logs, err := store.ListProcessLogs(ctx, "batch-1")
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, "received", logs[0].Stage)
	assert.Equal(t, "committing", logs[2].Stage)
	assert.JSONEq(t, `{"count":2}`, string(logs[1].Details))
}

func TestFileBasedStore(t *testing.T) {
	dataDir := t.TempDir()
	store, err := New(dataDir, nil, prometheus.NewRegistry())
	require.NoError(t, err)
	createTestBatch(t, store, "batch-1", 2)
	require.NoError(t, store.Close())
	// Closing twice is harmless
	require.NoError(t, store.Close())

	// Data survives a reopen
	store, err = New(dataDir, nil, nil)
	require.NoError(t, err)
	defer store.Close() //nolint:errcheck
	students, err := store.ListStudents(context.Background(), "batch-1")
	require.NoError(t, err)
	assert.Len(t, students, 2)
}
