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

// Package intake polls the private channel for batch submissions and
// stores them for issuance
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"github.com/blinklabs-io/diploma/database/models"
	"github.com/blinklabs-io/diploma/database/types"
	"github.com/blinklabs-io/diploma/event"
	"github.com/blinklabs-io/diploma/issuance"
	"github.com/blinklabs-io/diploma/privchan"
)

const DefaultSchedule = "@every 30s"

// batchNamespace derives batch ids from message ids, so a redelivered
// submission maps to the batch it already created
var batchNamespace = uuid.MustParse("5b0e2a51-6f0c-4f5c-9c3e-4a8b2a7d1e90")

var errNotBatch = errors.New("message carries no batch submission")

type Store interface {
	CreateBatch(ctx context.Context, batch *models.Batch, students []models.Student) error
}

type Issuer interface {
	Issue(ctx context.Context, batchID string) (*issuance.Result, error)
}

type Config struct {
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	Channel      privchan.Channel
	Store        Store
	EventBus     *event.EventBus
	// Issuer is used when AutoIssue is set
	Issuer    Issuer
	Schedule  string
	BatchSize int
	AutoIssue bool
}

// Worker stores incoming batch submissions. Messages are acknowledged once
// handled, including ones that are dropped as invalid; storage failures
// leave them unacknowledged for redelivery.
type Worker struct {
	config  Config
	logger  *slog.Logger
	metrics *intakeMetrics
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
}

func NewWorker(cfg Config) (*Worker, error) {
	if cfg.Channel == nil {
		return nil, errors.New("intake channel is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("intake store is required")
	}
	if cfg.AutoIssue && cfg.Issuer == nil {
		return nil, errors.New("intake auto-issue needs an issuer")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = privchan.DefaultGetLimit
	}
	w := &Worker{
		config: cfg,
		logger: cfg.Logger.With("component", "intake"),
	}
	if cfg.PromRegistry != nil {
		w.metrics = newIntakeMetrics(cfg.PromRegistry)
	}
	return w, nil
}

// Start schedules polling. A poll still running when the next one is due
// causes that one to be skipped.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cron != nil {
		return errors.New("intake worker already started")
	}
	cronLog := cronLogger{w.logger}
	c := cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)
	w.ctx, w.cancel = context.WithCancel(ctx)
	if _, err := c.AddFunc(w.config.Schedule, w.run); err != nil {
		w.cancel()
		return fmt.Errorf("schedule %q: %w", w.config.Schedule, err)
	}
	c.Start()
	w.cron = c
	w.logger.Info("intake worker started", "schedule", w.config.Schedule)
	return nil
}

// Stop cancels a running poll and waits for it to return
func (w *Worker) Stop() {
	w.mu.Lock()
	c := w.cron
	w.cron = nil
	w.mu.Unlock()
	if c == nil {
		return
	}
	w.cancel()
	<-c.Stop().Done()
	w.logger.Info("intake worker stopped")
}

func (w *Worker) run() {
	if _, err := w.Poll(w.ctx); err != nil && !errors.Is(err, context.Canceled) {
		w.logger.Error("intake poll failed", "error", err)
	}
}

// Poll handles one round of pending messages and returns the number of
// batches stored
func (w *Worker) Poll(ctx context.Context) (int, error) {
	msgs, err := w.config.Channel.GetMessages(ctx, w.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("get messages: %w", err)
	}
	var stored []string
	var errs []error
	for _, msg := range msgs {
		batchID, err := w.handle(ctx, msg)
		if err != nil {
			w.metrics.observe(resultError)
			errs = append(errs, fmt.Errorf("message %s: %w", msg.ID, err))
			continue
		}
		if batchID != "" {
			stored = append(stored, batchID)
		}
	}
	if w.config.AutoIssue {
		for _, batchID := range stored {
			w.issue(ctx, batchID)
		}
	}
	return len(stored), errors.Join(errs...)
}

// handle stores the batch of one message and acknowledges it. The returned
// id is empty when nothing new was stored.
func (w *Worker) handle(ctx context.Context, msg privchan.Message) (string, error) {
	sub, err := w.submission(ctx, msg)
	if err != nil {
		if errors.Is(err, errNotBatch) {
			w.logger.Debug("ignoring message", "message_id", msg.ID, "type", msg.Type)
			w.metrics.observe(resultIgnored)
		} else {
			w.logger.Warn(
				"dropping invalid batch submission",
				"message_id", msg.ID,
				"sender", msg.SenderOrg,
				"error", err,
			)
			w.metrics.observe(resultInvalid)
		}
		return "", w.config.Channel.Ack(ctx, msg)
	}
	batch, students := w.records(msg, sub)
	err = w.config.Store.CreateBatch(ctx, batch, students)
	if err != nil {
		if !errors.Is(err, types.ErrAlreadyExists) {
			return "", fmt.Errorf("store batch %s: %w", batch.BatchID, err)
		}
		w.logger.Debug("batch already stored", "batch_id", batch.BatchID, "message_id", msg.ID)
		w.metrics.observe(resultDuplicate)
		return "", w.config.Channel.Ack(ctx, msg)
	}
	if err := w.config.Channel.Ack(ctx, msg); err != nil {
		return "", err
	}
	w.metrics.observe(resultStored)
	w.logger.Info(
		"batch received",
		"batch_id", batch.BatchID,
		"sender", msg.SenderOrg,
		"students", len(students),
	)
	if w.config.EventBus != nil {
		w.config.EventBus.PublishAsync(
			event.BatchReceivedEventType,
			event.NewEvent(
				event.BatchReceivedEventType,
				event.BatchReceivedEvent{
					BatchID:       batch.BatchID,
					SubmittingOrg: msg.SenderOrg,
					MessageID:     msg.ID,
					StudentCount:  len(students),
				},
			),
		)
	}
	return batch.BatchID, nil
}

func (w *Worker) submission(ctx context.Context, msg privchan.Message) (*privchan.BatchSubmission, error) {
	if msg.Type != privchan.MessageTypeBatchSubmission {
		return nil, errNotBatch
	}
	if len(msg.Refs) != 1 {
		return nil, fmt.Errorf("expected one data item, got %d", len(msg.Refs))
	}
	data, err := w.config.Channel.RetrieveData(ctx, msg.Refs)
	if err != nil {
		return nil, err
	}
	var sub privchan.BatchSubmission
	if err := json.Unmarshal(data[0].Value, &sub); err != nil {
		return nil, fmt.Errorf("decode batch submission: %w", err)
	}
	if err := sub.Validate(); err != nil {
		return nil, err
	}
	return &sub, nil
}

func (w *Worker) records(msg privchan.Message, sub *privchan.BatchSubmission) (*models.Batch, []models.Student) {
	batchID := strings.TrimSpace(sub.BatchID)
	if batchID == "" {
		batchID = uuid.NewSHA1(batchNamespace, []byte(msg.SenderOrg+"/"+msg.ID)).String()
	}
	batch := &models.Batch{
		BatchID:          batchID,
		BatchName:        sub.BatchName,
		AcademicYear:     sub.AcademicYear,
		Semester:         sub.Semester,
		Faculty:          sub.Faculty,
		SubmittedBy:      sub.SubmittedBy,
		SubmittingOrg:    msg.SenderOrg,
		Status:           models.BatchStatusSubmitted,
		CertificateCount: len(sub.Students),
	}
	students := make([]models.Student, 0, len(sub.Students))
	for _, s := range sub.Students {
		// Validate already checked the date
		graduation, _ := s.ParseGraduationDate()
		students = append(students, models.Student{
			StudentID:      s.StudentID,
			Name:           s.Name,
			Course:         s.Course,
			GPA:            s.GPA,
			GraduationDate: graduation,
			Institution:    s.Institution,
		})
	}
	return batch, students
}

func (w *Worker) issue(ctx context.Context, batchID string) {
	res, err := w.config.Issuer.Issue(ctx, batchID)
	if err != nil {
		attrs := []any{"batch_id", batchID, "error", err}
		if res != nil && res.TxID != "" {
			attrs = append(attrs, "tx_id", res.TxID)
		}
		w.logger.Error("automatic issuance failed", attrs...)
		return
	}
	w.logger.Info("automatic issuance finished", "batch_id", batchID, "tx_id", res.TxID)
}

// cronLogger adapts slog to the cron logger interface
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
