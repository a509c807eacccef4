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

package issuance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/blinklabs-io/diploma/database/models"
	"github.com/blinklabs-io/diploma/database/types"
	"github.com/blinklabs-io/diploma/document"
	"github.com/blinklabs-io/diploma/event"
	"github.com/blinklabs-io/diploma/ledger"
)

const tracerName = "github.com/blinklabs-io/diploma/issuance"

const (
	logLevelInfo  = "info"
	logLevelWarn  = "warn"
	logLevelError = "error"
)

type PipelineConfig struct {
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	Store        Store
	Renderer     Renderer
	Committer    Committer
	// Notifier is optional. Without it batches complete unnotified.
	Notifier Notifier
	EventBus *event.EventBus
	// Now defaults to time.Now
	Now func() time.Time
	// NewCertificateID defaults to random UUIDs
	NewCertificateID func() string
}

// Pipeline issues certificate batches. Each Issue call is independent; the
// pipeline only refuses to run the same batch twice at once.
type Pipeline struct {
	config  PipelineConfig
	logger  *slog.Logger
	metrics *issuanceMetrics
	tracer  trace.Tracer
	mu      sync.Mutex
	active  map[string]struct{}
}

// issued pairs a certificate with its rendered document
type issued struct {
	cert Certificate
	doc  []byte
}

// run carries the state of one Issue call
type run struct {
	batch    *models.Batch
	students []models.Student
	result   *Result
}

func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	if cfg.Store == nil {
		return nil, errors.New("issuance store is required")
	}
	if cfg.Renderer == nil {
		return nil, errors.New("issuance renderer is required")
	}
	if cfg.Committer == nil {
		return nil, errors.New("issuance committer is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewCertificateID == nil {
		cfg.NewCertificateID = uuid.NewString
	}
	p := &Pipeline{
		config: cfg,
		logger: cfg.Logger.With("component", "issuance"),
		tracer: otel.Tracer(tracerName),
		active: make(map[string]struct{}),
	}
	if cfg.PromRegistry != nil {
		p.metrics = newIssuanceMetrics(cfg.PromRegistry)
	}
	return p, nil
}

func (p *Pipeline) acquire(batchID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.active[batchID]; ok {
		return false
	}
	p.active[batchID] = struct{}{}
	return true
}

func (p *Pipeline) release(batchID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.active, batchID)
}

// Issue runs the whole pipeline for a stored batch. Errors before the
// ledger commit leave no commitment behind and the batch may be issued
// again. After the commit the returned Result always carries the
// transaction id, even when a *PersistenceAfterCommitError is returned.
func (p *Pipeline) Issue(ctx context.Context, batchID string) (*Result, error) {
	if !p.acquire(batchID) {
		return nil, fmt.Errorf("%w: %s", ErrBatchInProgress, batchID)
	}
	defer p.release(batchID)
	ctx, span := p.tracer.Start(
		ctx,
		"issuance.Issue",
		trace.WithAttributes(attribute.String("batch_id", batchID)),
	)
	defer span.End()
	start := time.Now()
	res, err := p.issue(ctx, batchID)
	p.metrics.observe(res, err, time.Since(start))
	if res != nil && res.TxID != "" {
		span.SetAttributes(attribute.String("tx_id", res.TxID))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

func (p *Pipeline) issue(ctx context.Context, batchID string) (*Result, error) {
	batch, err := p.config.Store.GetBatch(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("load batch %s: %w", batchID, err)
	}
	if batch.TransactionID != "" || batch.Status.Terminal() {
		return nil, fmt.Errorf(
			"%w: batch %s has transaction %q",
			ErrAlreadyCommitted,
			batchID,
			batch.TransactionID,
		)
	}
	if batch.Status == models.BatchStatusProcessing {
		return nil, fmt.Errorf("%w: %s", ErrBatchInProgress, batchID)
	}
	err = p.config.Store.TransitionBatchStatus(
		ctx,
		batchID,
		[]models.BatchStatus{models.BatchStatusSubmitted, models.BatchStatusFailed},
		models.BatchStatusProcessing,
		"",
	)
	if err != nil {
		if errors.Is(err, types.ErrConflict) {
			return nil, fmt.Errorf("%w: %s", ErrBatchInProgress, batchID)
		}
		return nil, fmt.Errorf("claim batch %s: %w", batchID, err)
	}
	r := &run{
		batch: batch,
		result: &Result{
			BatchID: batchID,
			Status:  models.BatchStatusProcessing,
		},
	}
	p.advance(ctx, r, StageReceived, "batch claimed for issuance", nil)

	// received
	r.students, err = p.config.Store.ListStudents(ctx, batchID)
	if err != nil {
		return p.fail(ctx, r, fmt.Errorf("load students: %w", err))
	}
	issuedAt := p.config.Now().UTC().Truncate(time.Second)
	certs, err := p.certificateData(r, issuedAt)
	if err != nil {
		return p.fail(ctx, r, err)
	}

	// rendering
	p.advance(
		ctx,
		r,
		StageRendering,
		"rendering documents",
		map[string]int{"students": len(certs)},
	)
	docs := make([]issued, len(certs))
	hashes := make([]string, len(certs))
	for i, data := range certs {
		if err := ctx.Err(); err != nil {
			return p.fail(ctx, r, err)
		}
		pdf, err := p.config.Renderer.Render(data)
		if err != nil {
			return p.fail(
				ctx,
				r,
				fmt.Errorf("render certificate of student %s: %w", data.StudentID, err),
			)
		}
		hashes[i] = document.Hash(pdf)
		docs[i] = issued{
			cert: Certificate{
				StudentID:     data.StudentID,
				CertificateID: data.CertificateID,
				DocumentHash:  hashes[i],
			},
			doc: pdf,
		}
	}

	// committing
	p.advance(
		ctx,
		r,
		StageCommitting,
		"committing hashes to the ledger",
		map[string]int{"hashes": len(hashes)},
	)
	txID, err := p.config.Committer.Commit(ctx, ledger.CommitRequest{
		BatchID:      batch.BatchID,
		BatchName:    batch.BatchName,
		AcademicYear: batch.AcademicYear,
		Semester:     batch.Semester,
		Faculty:      batch.Faculty,
		Hashes:       hashes,
	})
	if err != nil {
		return p.fail(ctx, r, err)
	}
	r.result.TxID = txID
	batch.TransactionID = txID
	committedAt := p.config.Now().UTC()

	// persisting. The commitment cannot be undone, so from here on storage
	// writes ignore cancellation of ctx.
	pctx := context.WithoutCancel(ctx)
	p.advance(pctx, r, StagePersisting, "recording certificates", nil)
	if err := p.persist(pctx, r, docs, issuedAt, committedAt); err != nil {
		return p.partial(pctx, r, err)
	}

	// notifying
	p.advance(pctx, r, StageNotifying, "notifying submitting organisation", nil)
	if err := p.notify(pctx, batch, docs); err != nil {
		p.logger.Warn(
			"notification failed",
			"batch_id", batchID,
			"tx_id", txID,
			"error", err,
		)
		r.result.Warnings = append(r.result.Warnings, "notification failed: "+err.Error())
		p.processLog(
			pctx,
			r,
			StageNotifying,
			logLevelWarn,
			"notification failed",
			map[string]string{"error": err.Error()},
		)
	} else {
		if err := p.config.Store.MarkBatchNotified(pctx, batchID, true); err != nil {
			r.result.Warnings = append(
				r.result.Warnings,
				"record notification: "+err.Error(),
			)
		} else {
			r.result.Notified = true
		}
	}

	p.advance(pctx, r, StageDone, "batch issued", nil)
	p.logger.Info(
		"batch issued",
		"batch_id", batchID,
		"tx_id", txID,
		"certificates", len(r.result.Certificates),
		"notified", r.result.Notified,
	)
	return r.result, nil
}

// certificateData builds and checks the data of every certificate before
// anything is rendered
func (p *Pipeline) certificateData(
	r *run,
	issuedAt time.Time,
) ([]document.CertificateData, error) {
	verr := &ValidationError{BatchID: r.batch.BatchID}
	if len(r.students) == 0 {
		verr.Problems = append(verr.Problems, "batch has no students")
		return nil, verr
	}
	ret := make([]document.CertificateData, 0, len(r.students))
	for _, s := range r.students {
		if s.TransactionHash != "" || s.Status == models.StudentStatusCertified {
			verr.Problems = append(
				verr.Problems,
				fmt.Sprintf("student %s: already certified", s.StudentID),
			)
			continue
		}
		data := document.CertificateData{
			CertificateID:  p.config.NewCertificateID(),
			StudentID:      s.StudentID,
			StudentName:    s.Name,
			Course:         s.Course,
			GPA:            s.GPA,
			GraduationDate: s.GraduationDate,
			Institution:    s.Institution,
			Faculty:        r.batch.Faculty,
			BatchID:        r.batch.BatchID,
			BatchName:      r.batch.BatchName,
			AcademicYear:   r.batch.AcademicYear,
			Semester:       r.batch.Semester,
			IssuedAt:       issuedAt,
		}
		if err := data.Validate(); err != nil {
			verr.Problems = append(
				verr.Problems,
				fmt.Sprintf("student %s: %s", s.StudentID, err),
			)
			continue
		}
		ret = append(ret, data)
	}
	if len(verr.Problems) > 0 {
		return nil, verr
	}
	return ret, nil
}

// persist records the transaction on the batch first, then stores each
// document and certifies its student. It keeps going after a failure so
// as many records as possible carry the transaction id.
func (p *Pipeline) persist(
	ctx context.Context,
	r *run,
	docs []issued,
	issuedAt time.Time,
	committedAt time.Time,
) error {
	txID := r.result.TxID
	var errs []error
	err := p.config.Store.SetBatchTransaction(
		ctx,
		r.batch.BatchID,
		txID,
		committedAt,
	)
	if err != nil {
		errs = append(errs, fmt.Errorf("record batch transaction: %w", err))
	}
	for i := range docs {
		student := r.students[i]
		key, err := document.ContentID(docs[i].doc)
		if err != nil {
			errs = append(errs, fmt.Errorf("student %s: %w", student.StudentID, err))
			continue
		}
		if err := p.config.Store.PutDocument(ctx, key, docs[i].doc); err != nil {
			errs = append(
				errs,
				fmt.Errorf("student %s: store document: %w", student.StudentID, err),
			)
			continue
		}
		student.CertificateID = docs[i].cert.CertificateID
		student.DocumentHash = docs[i].cert.DocumentHash
		student.DocumentKey = key
		student.DocumentSize = int64(len(docs[i].doc))
		student.TransactionHash = txID
		student.IssuedAt = &issuedAt
		if err := p.config.Store.CertifyStudent(ctx, &student); err != nil {
			errs = append(
				errs,
				fmt.Errorf("student %s: certify: %w", student.StudentID, err),
			)
			continue
		}
		docs[i].cert.DocumentKey = key
		r.result.Certificates = append(r.result.Certificates, docs[i].cert)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	err = p.config.Store.TransitionBatchStatus(
		ctx,
		r.batch.BatchID,
		[]models.BatchStatus{models.BatchStatusProcessing},
		models.BatchStatusCompleted,
		"",
	)
	if err != nil {
		return fmt.Errorf("complete batch: %w", err)
	}
	r.result.Status = models.BatchStatusCompleted
	return nil
}

// fail marks a batch without ledger commitment as failed
func (p *Pipeline) fail(ctx context.Context, r *run, cause error) (*Result, error) {
	ctx = context.WithoutCancel(ctx)
	batchID := r.batch.BatchID
	message := cause.Error()
	var details map[string]any
	var txID string
	// A signed transaction that failed submission keeps its id in the
	// batch error and the process log for reconciliation
	var commitErr *ledger.CommitError
	if errors.As(cause, &commitErr) && commitErr.TxID != "" {
		txID = commitErr.TxID
		unconfirmed := errors.Is(cause, ledger.ErrSubmissionUnconfirmed)
		details = map[string]any{
			"tx_id":       txID,
			"unconfirmed": unconfirmed,
		}
		if unconfirmed {
			message = fmt.Sprintf(
				"transaction %s may have been accepted: %s",
				txID,
				message,
			)
		}
	}
	p.logger.Error(
		"batch issuance failed",
		"batch_id", batchID,
		"stage", r.result.Stage,
		"tx_id", txID,
		"error", cause,
	)
	err := p.config.Store.TransitionBatchStatus(
		ctx,
		batchID,
		[]models.BatchStatus{models.BatchStatusProcessing},
		models.BatchStatusFailed,
		message,
	)
	if err != nil {
		p.logger.Error(
			"failed to mark batch failed",
			"batch_id", batchID,
			"error", err,
		)
	}
	r.result.Status = models.BatchStatusFailed
	p.advance(ctx, r, StageFailed, message, details)
	return r.result, cause
}

// partial holds a committed batch whose records could not all be written
func (p *Pipeline) partial(ctx context.Context, r *run, cause error) (*Result, error) {
	perr := &PersistenceAfterCommitError{
		BatchID: r.batch.BatchID,
		TxID:    r.result.TxID,
		Err:     cause,
	}
	p.logger.Error(
		"batch committed but not fully persisted",
		"batch_id", perr.BatchID,
		"tx_id", perr.TxID,
		"error", cause,
	)
	err := p.config.Store.TransitionBatchStatus(
		ctx,
		perr.BatchID,
		[]models.BatchStatus{models.BatchStatusProcessing},
		models.BatchStatusPartiallyCompleted,
		perr.Error(),
	)
	if err != nil {
		p.logger.Error(
			"failed to mark batch partially completed",
			"batch_id", perr.BatchID,
			"tx_id", perr.TxID,
			"error", err,
		)
	}
	r.result.Status = models.BatchStatusPartiallyCompleted
	r.result.Warnings = append(r.result.Warnings, perr.Error())
	p.advance(ctx, r, StageFailed, perr.Error(), nil)
	return r.result, perr
}

// advance records a stage change in the process log and on the event bus
func (p *Pipeline) advance(
	ctx context.Context,
	r *run,
	stage Stage,
	message string,
	details any,
) {
	prev := r.result.Stage
	r.result.Stage = stage
	level := logLevelInfo
	errMsg := ""
	if stage == StageFailed {
		level = logLevelError
		errMsg = message
	}
	p.processLog(ctx, r, stage, level, message, details)
	p.logger.Debug(
		"batch stage changed",
		"batch_id", r.batch.BatchID,
		"from", prev,
		"to", stage,
	)
	if p.config.EventBus != nil {
		p.config.EventBus.PublishAsync(
			event.IssuanceStageEventType,
			event.NewEvent(
				event.IssuanceStageEventType,
				event.IssuanceStageEvent{
					Timestamp:     p.config.Now(),
					BatchID:       r.batch.BatchID,
					Stage:         string(stage),
					PreviousStage: string(prev),
					TxID:          r.result.TxID,
					Error:         errMsg,
				},
			),
		)
	}
}

func (p *Pipeline) processLog(
	ctx context.Context,
	r *run,
	stage Stage,
	level, message string,
	details any,
) {
	err := p.config.Store.AppendProcessLog(
		context.WithoutCancel(ctx),
		r.batch.BatchID,
		string(stage),
		level,
		message,
		r.result.TxID,
		details,
	)
	if err != nil {
		p.logger.Warn(
			"failed to append process log",
			"batch_id", r.batch.BatchID,
			"stage", stage,
			"error", err,
		)
	}
}
