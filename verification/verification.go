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

// Package verification checks a certificate against local records and the
// commitment anchored on the ledger
package verification

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/blinklabs-io/diploma/commitment"
	"github.com/blinklabs-io/diploma/database/models"
	"github.com/blinklabs-io/diploma/database/types"
	"github.com/blinklabs-io/diploma/document"
	"github.com/blinklabs-io/diploma/ledger"
)

// Reasons reported in Result.Reason
const (
	ReasonVerified            = "verified"
	ReasonInvalidHash         = "invalid_hash"
	ReasonNotFound            = "not_found"
	ReasonDatabaseUnavailable = "database_unavailable"
	ReasonNoTransaction       = "no_transaction"
	ReasonNotIndexed          = "not_indexed"
	ReasonNoCommitment        = "no_commitment"
	ReasonLedgerUnavailable   = "ledger_unavailable"
	ReasonHashMismatch        = "hash_mismatch"
	ReasonBatchMismatch       = "batch_mismatch"
	ReasonIssuerMismatch      = "issuer_mismatch"
)

type Store interface {
	FindStudentByHash(ctx context.Context, hash string) (*models.Student, error)
	FindStudentByCertificateID(ctx context.Context, certificateID string) (*models.Student, error)
	GetBatch(ctx context.Context, batchID string) (*models.Batch, error)
}

type Reader interface {
	ReadMetadata(ctx context.Context, txID string) (ledger.Lookup, error)
}

type EngineConfig struct {
	Logger            *slog.Logger
	PromRegistry      prometheus.Registerer
	Store             Store
	Reader            Reader
	ExpectedIssuer    string
	ExpectedAuthority string
}

// Engine verifies certificates. It only reads; it never commits anything.
type Engine struct {
	config  EngineConfig
	logger  *slog.Logger
	metrics *verifyMetrics
}

// Result is the outcome of one verification. Every check is reported even
// when an earlier one failed the aggregate.
type Result struct {
	Student           *StudentInfo       `json:"student,omitempty"`
	BlockchainDetails *BlockchainDetails `json:"blockchainDetails,omitempty"`
	Reason            string             `json:"reason"`
	IsValid           bool               `json:"isValid"`
	DatabaseCheck     bool               `json:"databaseCheck"`
	BlockchainCheck   bool               `json:"blockchainCheck"`
	HashMatch         bool               `json:"hashMatch"`
	BatchMatch        bool               `json:"batchMatch"`
	IssuerValid       bool               `json:"issuerValid"`
}

type StudentInfo struct {
	IssuedAt       *time.Time `json:"issuedAt,omitempty"`
	GraduationDate time.Time  `json:"graduationDate"`
	StudentID      string     `json:"studentId"`
	Name           string     `json:"name"`
	Course         string     `json:"course"`
	Institution    string     `json:"institution"`
	BatchID        string     `json:"batchId"`
	CertificateID  string     `json:"certificateId"`
	DocumentHash   string     `json:"documentHash"`
	GPA            float64    `json:"gpa"`
}

type BlockchainDetails struct {
	TransactionID    string `json:"transactionId"`
	Status           string `json:"status"`
	BatchID          string `json:"batchId,omitempty"`
	BatchName        string `json:"batchName,omitempty"`
	Issuer           string `json:"issuer,omitempty"`
	Authority        string `json:"authority,omitempty"`
	IssuedAt         string `json:"issuedAt,omitempty"`
	CertificateCount uint64 `json:"certificateCount,omitempty"`
}

func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Store == nil {
		return nil, errors.New("verification store is required")
	}
	if cfg.Reader == nil {
		return nil, errors.New("verification ledger reader is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	e := &Engine{
		config: cfg,
		logger: cfg.Logger.With("component", "verification"),
	}
	if cfg.PromRegistry != nil {
		e.metrics = newVerifyMetrics(cfg.PromRegistry)
	}
	return e, nil
}

// Verify checks a document hash. It short-circuits on the first missing
// piece of evidence and never returns an error; failures are described by
// the result.
func (e *Engine) Verify(ctx context.Context, hash string) Result {
	hash = strings.ToLower(strings.TrimSpace(hash))
	if !commitment.IsHash(hash) {
		return e.done(hash, Result{Reason: ReasonInvalidHash})
	}
	student, err := e.config.Store.FindStudentByHash(ctx, hash)
	if err != nil {
		return e.done(hash, e.lookupFailure(hash, err))
	}
	return e.done(hash, e.verifyStudent(ctx, hash, student))
}

// VerifyCertificate checks the certificate with the given id
func (e *Engine) VerifyCertificate(ctx context.Context, certificateID string) Result {
	student, err := e.config.Store.FindStudentByCertificateID(ctx, certificateID)
	if err != nil {
		return e.done(certificateID, e.lookupFailure(certificateID, err))
	}
	if student.DocumentHash == "" {
		return e.done(certificateID, Result{Reason: ReasonNotFound})
	}
	return e.done(student.DocumentHash, e.verifyStudent(ctx, student.DocumentHash, student))
}

// VerifyDocument checks the bytes of a certificate document
func (e *Engine) VerifyDocument(ctx context.Context, data []byte) Result {
	return e.Verify(ctx, document.Hash(data))
}

func (e *Engine) lookupFailure(key string, err error) Result {
	if errors.Is(err, types.ErrNotFound) {
		return Result{Reason: ReasonNotFound}
	}
	e.logger.Error("student lookup failed", "key", key, "error", err)
	return Result{Reason: ReasonDatabaseUnavailable}
}

func (e *Engine) verifyStudent(ctx context.Context, hash string, student *models.Student) Result {
	ret := Result{
		DatabaseCheck: true,
		Student: &StudentInfo{
			StudentID:      student.StudentID,
			Name:           student.Name,
			Course:         student.Course,
			GPA:            student.GPA,
			GraduationDate: student.GraduationDate,
			Institution:    student.Institution,
			BatchID:        student.BatchID,
			CertificateID:  student.CertificateID,
			DocumentHash:   student.DocumentHash,
			IssuedAt:       student.IssuedAt,
		},
	}
	txID := student.TransactionHash
	if txID == "" {
		batch, err := e.config.Store.GetBatch(ctx, student.BatchID)
		if err != nil && !errors.Is(err, types.ErrNotFound) {
			e.logger.Error("batch lookup failed", "batch_id", student.BatchID, "error", err)
			ret.Reason = ReasonDatabaseUnavailable
			return ret
		}
		if batch != nil {
			txID = batch.TransactionID
		}
	}
	if txID == "" {
		ret.Reason = ReasonNoTransaction
		return ret
	}
	ret.BlockchainDetails = &BlockchainDetails{TransactionID: txID}
	lookup, err := e.config.Reader.ReadMetadata(ctx, txID)
	if err != nil {
		e.logger.Warn("ledger lookup failed", "tx_id", txID, "error", err)
		ret.BlockchainDetails.Status = ReasonLedgerUnavailable
		ret.Reason = ReasonLedgerUnavailable
		return ret
	}
	ret.BlockchainDetails.Status = lookup.Status.String()
	switch lookup.Status {
	case ledger.LookupNotIndexed:
		ret.Reason = ReasonNotIndexed
		return ret
	case ledger.LookupFound:
	default:
		ret.Reason = ReasonNoCommitment
		return ret
	}
	cm := lookup.Commitment
	ret.BlockchainCheck = true
	ret.BlockchainDetails.BatchID = cm.BatchID
	ret.BlockchainDetails.BatchName = cm.BatchName
	ret.BlockchainDetails.Issuer = cm.Issuer
	ret.BlockchainDetails.Authority = cm.Authority
	ret.BlockchainDetails.IssuedAt = cm.IssuedAt
	ret.BlockchainDetails.CertificateCount = cm.CertificateCount

	ret.HashMatch = cm.Contains(hash)
	ret.BatchMatch = cm.BatchID == student.BatchID
	ret.IssuerValid = cm.Issuer == e.config.ExpectedIssuer &&
		cm.Authority == e.config.ExpectedAuthority
	ret.IsValid = ret.HashMatch && ret.BatchMatch && ret.IssuerValid
	switch {
	case !ret.HashMatch:
		ret.Reason = ReasonHashMismatch
	case !ret.BatchMatch:
		ret.Reason = ReasonBatchMismatch
	case !ret.IssuerValid:
		ret.Reason = ReasonIssuerMismatch
	default:
		ret.Reason = ReasonVerified
	}
	return ret
}

func (e *Engine) done(key string, res Result) Result {
	e.metrics.observe(res)
	e.logger.Debug(
		"verification finished",
		"key", key,
		"valid", res.IsValid,
		"reason", res.Reason,
	)
	return res
}
