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

// Package issuance turns a stored batch of graduating students into
// certificates: it renders and hashes one document per student, anchors the
// hashes in a single ledger transaction, records the results and notifies
// the submitting organisation.
package issuance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/blinklabs-io/diploma/database/models"
	"github.com/blinklabs-io/diploma/document"
	"github.com/blinklabs-io/diploma/ledger"
	"github.com/blinklabs-io/diploma/privchan"
)

type Stage string

const (
	StageReceived   Stage = "received"
	StageRendering  Stage = "rendering"
	StageCommitting Stage = "committing"
	StagePersisting Stage = "persisting"
	StageNotifying  Stage = "notifying"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

var (
	// ErrAlreadyCommitted is returned for a batch that already carries a
	// ledger transaction. Issuing it again would anchor its hashes twice.
	ErrAlreadyCommitted = errors.New("batch already committed")
	ErrBatchInProgress  = errors.New("batch issuance already in progress")
	ErrNotCommitted     = errors.New("batch has no ledger transaction")
	// ErrNotCompleted is returned when renotifying a batch whose records
	// were not all written
	ErrNotCompleted = errors.New("only completed batches are renotified")
)

// ValidationError reports a batch that cannot be issued as stored. It is
// returned before any network call.
type ValidationError struct {
	BatchID  string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf(
		"batch %s is invalid: %s",
		e.BatchID,
		strings.Join(e.Problems, "; "),
	)
}

// PersistenceAfterCommitError means the ledger transaction exists but some
// records could not be written. The batch is left partially_completed with
// TxID kept for reconciliation.
type PersistenceAfterCommitError struct {
	Err     error
	BatchID string
	TxID    string
}

func (e *PersistenceAfterCommitError) Error() string {
	return fmt.Sprintf(
		"batch %s committed in transaction %s but persistence failed: %s",
		e.BatchID,
		e.TxID,
		e.Err,
	)
}

func (e *PersistenceAfterCommitError) Unwrap() error {
	return e.Err
}

// Store is the storage used by the pipeline. database.Database satisfies it.
type Store interface {
	GetBatch(ctx context.Context, batchID string) (*models.Batch, error)
	ListStudents(ctx context.Context, batchID string) ([]models.Student, error)
	TransitionBatchStatus(
		ctx context.Context,
		batchID string,
		from []models.BatchStatus,
		to models.BatchStatus,
		errorMessage string,
	) error
	SetBatchTransaction(
		ctx context.Context,
		batchID string,
		txID string,
		committedAt time.Time,
	) error
	CertifyStudent(ctx context.Context, student *models.Student) error
	MarkBatchNotified(ctx context.Context, batchID string, notified bool) error
	AppendProcessLog(
		ctx context.Context,
		batchID string,
		stage string,
		level string,
		message string,
		txID string,
		details any,
	) error
	PutDocument(ctx context.Context, key string, data []byte) error
	GetDocument(ctx context.Context, key string) ([]byte, error)
}

type Renderer interface {
	Render(data document.CertificateData) ([]byte, error)
}

type Committer interface {
	Commit(ctx context.Context, req ledger.CommitRequest) (string, error)
}

// Notifier is the part of the private channel used to deliver documents
type Notifier interface {
	UploadBlob(
		ctx context.Context,
		data []byte,
		metadata privchan.BlobMetadata,
	) (privchan.BlobRef, error)
	SendPrivate(
		ctx context.Context,
		payload privchan.Payload,
		targetOrg string,
	) error
}

// Certificate is one issued certificate of a batch
type Certificate struct {
	StudentID     string `json:"studentId"`
	CertificateID string `json:"certificateId"`
	DocumentHash  string `json:"documentHash"`
	DocumentKey   string `json:"documentKey"`
}

// Result describes an issuance run. It is returned alongside a
// *PersistenceAfterCommitError so the transaction id is never lost.
type Result struct {
	BatchID      string             `json:"batchId"`
	TxID         string             `json:"transactionId,omitempty"`
	Status       models.BatchStatus `json:"status"`
	Stage        Stage              `json:"stage"`
	Certificates []Certificate      `json:"certificates,omitempty"`
	Warnings     []string           `json:"warnings,omitempty"`
	Notified     bool               `json:"notified"`
}
