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
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/blinklabs-io/diploma/database/plugin/metadata/internal/gormstore"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"
)

const (
	// DefaultMaxConnections is the connection pool size for file-based stores
	DefaultMaxConnections = 4
	DefaultBusyTimeout    = 5 * time.Second
	DefaultVacuumInterval = 24 * time.Hour
)

// MetadataStoreSqlite is a SQLite-based implementation of the metadata store.
// It stores batches, student records and the process log.
type MetadataStoreSqlite struct {
	*gormstore.Store
	promRegistry   prometheus.Registerer
	logger         *slog.Logger
	timerVacuum    *time.Timer
	timerMutex     sync.Mutex
	dataDir        string
	maxConnections int
	busyTimeout    time.Duration
	vacuumInterval time.Duration
	closed         bool
	vacuumWG       sync.WaitGroup
}

// New creates and starts a SQLite metadata store. Uses an in-memory
// database if dataDir is empty.
func New(
	dataDir string,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (*MetadataStoreSqlite, error) {
	db, err := NewWithOptions(
		WithDataDir(dataDir),
		WithLogger(logger),
		WithPromRegistry(promRegistry),
	)
	if err != nil {
		return nil, err
	}
	if err := db.Start(); err != nil {
		return nil, err
	}
	return db, nil
}

// NewWithOptions creates a new SQLite metadata store with options. The
// database is opened by Start().
func NewWithOptions(opts ...SqliteOptionFunc) (*MetadataStoreSqlite, error) {
	db := &MetadataStoreSqlite{
		vacuumInterval: DefaultVacuumInterval,
	}
	for _, opt := range opts {
		opt(db)
	}
	if db.maxConnections <= 0 {
		db.maxConnections = DefaultMaxConnections
	}
	if db.busyTimeout <= 0 {
		db.busyTimeout = DefaultBusyTimeout
	}
	if db.vacuumInterval < 0 {
		return nil, fmt.Errorf("negative vacuum interval: %s", db.vacuumInterval)
	}
	return db, nil
}

// SetLogger implements the plugin.Observable interface
func (d *MetadataStoreSqlite) SetLogger(logger *slog.Logger) {
	d.logger = logger
}

// SetPromRegistry implements the plugin.Observable interface
func (d *MetadataStoreSqlite) SetPromRegistry(registry prometheus.Registerer) {
	d.promRegistry = registry
}

// Start implements the plugin.Plugin interface
func (d *MetadataStoreSqlite) Start() error {
	if d.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		d.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	gormConfig := &gorm.Config{
		Logger:                 gormlogger.Discard,
		SkipDefaultTransaction: true,
		TranslateError:         true,
	}
	var metadataDb *gorm.DB
	var err error
	if d.dataDir == "" {
		// Use in-memory database when no data directory is specified, useful for testing.
		// Each store gets its own named database so separate stores never share state,
		// and cache=shared lets the pool connections see the same tables
		metadataDb, err = gorm.Open(
			sqlite.Open(
				fmt.Sprintf(
					"file:%s?mode=memory&cache=shared",
					uuid.NewString(),
				),
			),
			gormConfig,
		)
		if err != nil {
			return err
		}
	} else {
		// Make sure that we can read data dir, and create if it doesn't exist
		if _, err := os.Stat(d.dataDir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to read data dir: %w", err)
			}
			// Create data directory
			if err := os.MkdirAll(d.dataDir, fs.ModePerm); err != nil {
				return fmt.Errorf("failed to create data dir: %w", err)
			}
		}
		metadataDbPath := filepath.Join(
			d.dataDir,
			"metadata.sqlite",
		)
		// WAL journal mode, wait on locks, increase cache size to 50MB (from 2MB)
		metadataConnOpts := fmt.Sprintf(
			"_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=cache_size(-50000)",
			d.busyTimeout.Milliseconds(),
		)
		metadataDb, err = gorm.Open(
			sqlite.Open(
				fmt.Sprintf("file:%s?%s", metadataDbPath, metadataConnOpts),
			),
			gormConfig,
		)
		if err != nil {
			return err
		}
	}
	sqlDB, err := metadataDb.DB()
	if err != nil {
		return err
	}
	if d.dataDir == "" {
		// A single connection keeps the in-memory database alive and avoids
		// shared-cache table locks
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(d.maxConnections)
	}
	d.Store = gormstore.New(metadataDb)
	// Configure tracing for GORM
	if err := metadataDb.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return err
	}
	if err := d.RegisterMetrics(d.promRegistry, "sqlite"); err != nil {
		return err
	}
	// Create table schemas
	if err := d.Migrate(d.logger); err != nil {
		return err
	}
	d.logger.Debug(
		"opened sqlite metadata store",
		"component", "database",
		"data_dir", d.dataDir,
	)
	// Schedule periodic vacuum to free space left by deleted process logs
	d.scheduleVacuum()
	return nil
}

// Stop implements the plugin.Plugin interface
func (d *MetadataStoreSqlite) Stop() error {
	return d.Close()
}

func (d *MetadataStoreSqlite) runVacuum() error {
	d.timerMutex.Lock()
	if d.dataDir == "" || d.closed {
		d.timerMutex.Unlock()
		return nil
	}
	// Track this vacuum operation while we know the store is open
	d.vacuumWG.Add(1)
	d.timerMutex.Unlock()
	defer d.vacuumWG.Done()

	if result := d.DB().Exec("VACUUM"); result.Error != nil {
		return result.Error
	}
	return nil
}

// scheduleVacuum arms the next vacuum run
func (d *MetadataStoreSqlite) scheduleVacuum() {
	d.timerMutex.Lock()
	defer d.timerMutex.Unlock()
	if d.closed || d.dataDir == "" || d.vacuumInterval == 0 {
		return
	}

	if d.timerVacuum != nil {
		d.timerVacuum.Stop()
	}
	f := func() {
		d.logger.Debug(
			"running vacuum on sqlite metadata database",
		)
		// schedule next run
		defer d.scheduleVacuum()
		if err := d.runVacuum(); err != nil {
			d.logger.Error(
				"failed to free unused space in metadata store",
				"component", "database",
				"error", err,
			)
		}
	}
	d.timerVacuum = time.AfterFunc(d.vacuumInterval, f)
}

// Close shuts down the database connection and stops background processes.
func (d *MetadataStoreSqlite) Close() error {
	d.timerMutex.Lock()
	if d.closed {
		d.timerMutex.Unlock()
		return nil
	}
	d.closed = true
	if d.timerVacuum != nil {
		d.timerVacuum.Stop()
		d.timerVacuum = nil
	}
	d.timerMutex.Unlock()

	// Wait for any in-flight vacuum operations to complete
	d.vacuumWG.Wait()

	return d.Store.Close()
}
