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

// Package gormstore holds the queries shared by the relational metadata
// plugins. Each plugin owns its connection and embeds a Store.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/blinklabs-io/diploma/database/models"
	"github.com/blinklabs-io/diploma/database/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/gorm"
)

// studentInsertBatchSize bounds the rows per INSERT when storing a batch
const studentInsertBatchSize = 100

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB returns the database handle
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Migrate creates or updates the table schemas
func (s *Store) Migrate(logger *slog.Logger) error {
	for _, model := range models.MigrateModels {
		logger.Debug(fmt.Sprintf("creating table: %#v", model))
		if err := s.db.AutoMigrate(model); err != nil {
			return err
		}
	}
	return nil
}

// RegisterMetrics exposes the connection pool statistics
func (s *Store) RegisterMetrics(
	promRegistry prometheus.Registerer,
	dbName string,
) error {
	if promRegistry == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	err = promRegistry.Register(collectors.NewDBStatsCollector(sqlDB, dbName))
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		return nil
	}
	return err
}

// Close closes the underlying connection pool
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get database handle: %w", err)
	}
	return sqlDB.Close()
}

// CreateBatch stores a batch and its student records in one transaction.
// Students are stored as pending regardless of their incoming status.
func (s *Store) CreateBatch(
	ctx context.Context,
	batch *models.Batch,
	students []models.Student,
) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		result := tx.Model(&models.Batch{}).
			Where("batch_id = ?", batch.BatchID).
			Count(&count)
		if result.Error != nil {
			return result.Error
		}
		if count > 0 {
			return fmt.Errorf("batch %s: %w", batch.BatchID, types.ErrAlreadyExists)
		}
		if batch.Status == "" {
			batch.Status = models.BatchStatusSubmitted
		}
		if result := tx.Create(batch); result.Error != nil {
			if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("batch %s: %w", batch.BatchID, types.ErrAlreadyExists)
			}
			return result.Error
		}
		if len(students) == 0 {
			return nil
		}
		for i := range students {
			students[i].BatchID = batch.BatchID
			students[i].Status = models.StudentStatusPending
		}
		if result := tx.CreateInBatches(students, studentInsertBatchSize); result.Error != nil {
			return result.Error
		}
		return nil
	})
}

// GetBatch returns the batch with the given id or types.ErrNotFound
func (s *Store) GetBatch(
	ctx context.Context,
	batchID string,
) (*models.Batch, error) {
	var ret models.Batch
	result := s.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		First(&ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("batch %s: %w", batchID, types.ErrNotFound)
		}
		return nil, result.Error
	}
	return &ret, nil
}

// ListBatches returns batches in creation order, optionally limited to the
// given statuses
func (s *Store) ListBatches(
	ctx context.Context,
	statuses ...models.BatchStatus,
) ([]models.Batch, error) {
	var ret []models.Batch
	query := s.db.WithContext(ctx).Order("id")
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	if result := query.Find(&ret); result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// TransitionBatchStatus moves a batch to a new status only if its current
// status is one of from. It returns types.ErrConflict when the batch exists
// in another status.
func (s *Store) TransitionBatchStatus(
	ctx context.Context,
	batchID string,
	from []models.BatchStatus,
	to models.BatchStatus,
	errorMessage string,
) error {
	result := s.db.WithContext(ctx).
		Model(&models.Batch{}).
		Where("batch_id = ? AND status IN ?", batchID, from).
		Updates(map[string]any{
			"status":        to,
			"error_message": errorMessage,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}
	batch, err := s.GetBatch(ctx, batchID)
	if err != nil {
		return err
	}
	return fmt.Errorf(
		"batch %s is %s, not one of %v: %w",
		batchID,
		batch.Status,
		from,
		types.ErrConflict,
	)
}

// SetBatchTransaction records the ledger transaction of a batch. The id is
// written once; setting the same id again is a no-op and setting a
// different one returns types.ErrConflict.
func (s *Store) SetBatchTransaction(
	ctx context.Context,
	batchID string,
	txID string,
	committedAt time.Time,
) error {
	if txID == "" {
		return errors.New("empty transaction id")
	}
	result := s.db.WithContext(ctx).
		Model(&models.Batch{}).
		Where("batch_id = ? AND transaction_id = ?", batchID, "").
		Updates(map[string]any{
			"transaction_id": txID,
			"committed_at":   committedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}
	batch, err := s.GetBatch(ctx, batchID)
	if err != nil {
		return err
	}
	if batch.TransactionID == txID {
		return nil
	}
	return fmt.Errorf(
		"batch %s already has transaction %s: %w",
		batchID,
		batch.TransactionID,
		types.ErrConflict,
	)
}

// MarkBatchNotified records the outcome of the last notification attempt
func (s *Store) MarkBatchNotified(
	ctx context.Context,
	batchID string,
	notified bool,
) error {
	result := s.db.WithContext(ctx).
		Model(&models.Batch{}).
		Where("batch_id = ?", batchID).
		Update("notified", notified)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("batch %s: %w", batchID, types.ErrNotFound)
	}
	return nil
}

// ListStudents returns the students of a batch ordered by student id
func (s *Store) ListStudents(
	ctx context.Context,
	batchID string,
) ([]models.Student, error) {
	var ret []models.Student
	result := s.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("student_id").
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// CertifyStudent writes the certification fields of a student record. The
// update only applies while the record carries no transaction hash.
func (s *Store) CertifyStudent(
	ctx context.Context,
	student *models.Student,
) error {
	if student.TransactionHash == "" {
		return errors.New("empty transaction hash")
	}
	result := s.db.WithContext(ctx).
		Model(&models.Student{}).
		Where("id = ? AND transaction_hash = ?", student.ID, "").
		Updates(map[string]any{
			"certificate_id":   student.CertificateID,
			"document_hash":    student.DocumentHash,
			"transaction_hash": student.TransactionHash,
			"document_key":     student.DocumentKey,
			"document_size":    student.DocumentSize,
			"issued_at":        student.IssuedAt,
			"status":           models.StudentStatusCertified,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf(
			"student %s of batch %s: %w",
			student.StudentID,
			student.BatchID,
			types.ErrConflict,
		)
	}
	student.Status = models.StudentStatusCertified
	return nil
}

// FindStudentByHash returns the certified student whose document hash
// matches or types.ErrNotFound
func (s *Store) FindStudentByHash(
	ctx context.Context,
	hash string,
) (*models.Student, error) {
	return s.findStudent(ctx, "document_hash = ?", hash)
}

// FindStudentByCertificateID returns the student holding the certificate or
// types.ErrNotFound
func (s *Store) FindStudentByCertificateID(
	ctx context.Context,
	certificateID string,
) (*models.Student, error) {
	return s.findStudent(ctx, "certificate_id = ?", certificateID)
}

func (s *Store) findStudent(
	ctx context.Context,
	query string,
	value string,
) (*models.Student, error) {
	if value == "" {
		return nil, types.ErrNotFound
	}
	var ret models.Student
	result := s.db.WithContext(ctx).
		Where(query, value).
		Order("id").
		First(&ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, types.ErrNotFound
		}
		return nil, result.Error
	}
	return &ret, nil
}

// AppendProcessLog adds an entry to the audit trail
func (s *Store) AppendProcessLog(
	ctx context.Context,
	entry *models.ProcessLog,
) error {
	if result := s.db.WithContext(ctx).Create(entry); result.Error != nil {
		return result.Error
	}
	return nil
}

// ListProcessLogs returns the audit trail of a batch, oldest first
func (s *Store) ListProcessLogs(
	ctx context.Context,
	batchID string,
) ([]models.ProcessLog, error) {
	var ret []models.ProcessLog
	result := s.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("id").
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}
