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

package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/blinklabs-io/diploma/database/models"
	"github.com/blinklabs-io/diploma/database/plugin/blob"
	"github.com/blinklabs-io/diploma/database/plugin/metadata"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/datatypes"

	// Register storage plugins
	_ "github.com/blinklabs-io/diploma/database/plugin/blob/aws"
	_ "github.com/blinklabs-io/diploma/database/plugin/blob/badger"
	_ "github.com/blinklabs-io/diploma/database/plugin/blob/gcs"
	_ "github.com/blinklabs-io/diploma/database/plugin/metadata/mysql"
	_ "github.com/blinklabs-io/diploma/database/plugin/metadata/postgres"
	_ "github.com/blinklabs-io/diploma/database/plugin/metadata/sqlite"
)

const (
	DefaultBlobPlugin     = "badger"
	DefaultMetadataPlugin = "sqlite"
)

type Config struct {
	PromRegistry   prometheus.Registerer
	Logger         *slog.Logger
	DataDir        string
	BlobPlugin     string
	MetadataPlugin string
}

// Database combines the relational store holding batches and student
// records with the blob store holding rendered documents
type Database struct {
	logger   *slog.Logger
	blob     blob.BlobStore
	metadata metadata.MetadataStore
	dataDir  string
}

// New opens the configured storage plugins. An empty DataDir keeps
// everything in memory with the default plugins.
func New(config *Config) (*Database, error) {
	if config == nil {
		config = &Config{}
	}
	logger := config.Logger
	if logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	blobPlugin := config.BlobPlugin
	if blobPlugin == "" {
		blobPlugin = DefaultBlobPlugin
	}
	metadataPlugin := config.MetadataPlugin
	if metadataPlugin == "" {
		metadataPlugin = DefaultMetadataPlugin
	}
	metadataDb, err := metadata.New(
		metadataPlugin,
		config.DataDir,
		logger,
		config.PromRegistry,
	)
	if err != nil {
		return nil, fmt.Errorf("open metadata store: %w", err)
	}
	blobDb, err := blob.New(
		blobPlugin,
		config.DataDir,
		logger,
		config.PromRegistry,
	)
	if err != nil {
		_ = metadataDb.Close()
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	logger.Debug(
		"opened database",
		"component", "database",
		"blob", blobPlugin,
		"metadata", metadataPlugin,
		"data_dir", config.DataDir,
	)
	return &Database{
		logger:   logger,
		blob:     blobDb,
		metadata: metadataDb,
		dataDir:  config.DataDir,
	}, nil
}

// Blob returns the underling blob store instance
func (d *Database) Blob() blob.BlobStore {
	return d.blob
}

// DataDir returns the path to the data directory used for storage
func (d *Database) DataDir() string {
	return d.dataDir
}

// Logger returns the logger instance
func (d *Database) Logger() *slog.Logger {
	return d.logger
}

// Metadata returns the underlying metadata store instance
func (d *Database) Metadata() metadata.MetadataStore {
	return d.metadata
}

// Close cleans up the database connections
func (d *Database) Close() error {
	var err error
	// Close metadata
	metadataErr := d.Metadata().Close()
	err = errors.Join(err, metadataErr)
	// Close blob
	blobErr := d.Blob().Close()
	err = errors.Join(err, blobErr)
	return err
}

// CreateBatch stores a new batch with its students
func (d *Database) CreateBatch(
	ctx context.Context,
	batch *models.Batch,
	students []models.Student,
) error {
	return d.metadata.CreateBatch(ctx, batch, students)
}

// GetBatch returns a batch by id
func (d *Database) GetBatch(
	ctx context.Context,
	batchID string,
) (*models.Batch, error) {
	return d.metadata.GetBatch(ctx, batchID)
}

// ListBatches returns batches, optionally filtered by status
func (d *Database) ListBatches(
	ctx context.Context,
	statuses ...models.BatchStatus,
) ([]models.Batch, error) {
	return d.metadata.ListBatches(ctx, statuses...)
}

// TransitionBatchStatus moves a batch from one of the given statuses to a
// new one
func (d *Database) TransitionBatchStatus(
	ctx context.Context,
	batchID string,
	from []models.BatchStatus,
	to models.BatchStatus,
	errorMessage string,
) error {
	return d.metadata.TransitionBatchStatus(ctx, batchID, from, to, errorMessage)
}

// SetBatchTransaction records the ledger transaction of a batch once
func (d *Database) SetBatchTransaction(
	ctx context.Context,
	batchID string,
	txID string,
	committedAt time.Time,
) error {
	return d.metadata.SetBatchTransaction(ctx, batchID, txID, committedAt)
}

// MarkBatchNotified records whether the submitting organisation was told
// about the issued certificates
func (d *Database) MarkBatchNotified(
	ctx context.Context,
	batchID string,
	notified bool,
) error {
	return d.metadata.MarkBatchNotified(ctx, batchID, notified)
}

func (d *Database) ListStudents(
	ctx context.Context,
	batchID string,
) ([]models.Student, error) {
	return d.metadata.ListStudents(ctx, batchID)
}

func (d *Database) CertifyStudent(
	ctx context.Context,
	student *models.Student,
) error {
	return d.metadata.CertifyStudent(ctx, student)
}

func (d *Database) FindStudentByHash(
	ctx context.Context,
	hash string,
) (*models.Student, error) {
	return d.metadata.FindStudentByHash(ctx, hash)
}

func (d *Database) FindStudentByCertificateID(
	ctx context.Context,
	certificateID string,
) (*models.Student, error) {
	return d.metadata.FindStudentByCertificateID(ctx, certificateID)
}

// AppendProcessLog adds an audit entry for a batch. Details are encoded as
// JSON when present.
func (d *Database) AppendProcessLog(
	ctx context.Context,
	batchID string,
	stage string,
	level string,
	message string,
	txID string,
	details any,
) error {
	entry := &models.ProcessLog{
		BatchID:       batchID,
		Stage:         stage,
		Level:         level,
		Message:       message,
		TransactionID: txID,
	}
	if details != nil {
		raw, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("encode process log details: %w", err)
		}
		entry.Details = datatypes.JSON(raw)
	}
	return d.metadata.AppendProcessLog(ctx, entry)
}

func (d *Database) ListProcessLogs(
	ctx context.Context,
	batchID string,
) ([]models.ProcessLog, error) {
	return d.metadata.ListProcessLogs(ctx, batchID)
}

// PutDocument stores a rendered document under key
func (d *Database) PutDocument(
	ctx context.Context,
	key string,
	data []byte,
) error {
	return d.blob.Put(ctx, key, data)
}

// GetDocument returns a stored document or types.ErrBlobKeyNotFound
func (d *Database) GetDocument(
	ctx context.Context,
	key string,
) ([]byte, error) {
	return d.blob.Get(ctx, key)
}
