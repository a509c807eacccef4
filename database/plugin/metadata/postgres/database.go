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

package postgres

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/blinklabs-io/diploma/database/plugin/metadata/internal/gormstore"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"
)

// MetadataStorePostgres stores metadata in Postgres.
type MetadataStorePostgres struct {
	*gormstore.Store
	promRegistry prometheus.Registerer
	logger       *slog.Logger

	host            string
	port            uint
	user            string
	password        string
	passwordFile    string
	database        string
	schema          string
	sslMode         string
	timeZone        string
	dsn             string // Data source name (postgres connection string)
	maxConns        int
	connMaxLifetime time.Duration
}

// New creates and starts a Postgres metadata store
func New(
	host string,
	port uint,
	user string,
	password string,
	database string,
	sslMode string,
	timeZone string,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (*MetadataStorePostgres, error) {
	db, err := NewWithOptions(
		WithHost(host),
		WithPort(port),
		WithUser(user),
		WithPassword(password),
		WithDatabase(database),
		WithSSLMode(sslMode),
		WithTimeZone(timeZone),
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

// NewWithOptions creates a new database with options
func NewWithOptions(opts ...PostgresOptionFunc) (*MetadataStorePostgres, error) {
	db := &MetadataStorePostgres{}

	// Apply options
	for _, opt := range opts {
		opt(db)
	}

	// Set defaults after options are applied (no side effects)
	if db.host == "" {
		db.host = "localhost"
	}
	if db.port == 0 {
		db.port = 5432
	}
	if db.user == "" {
		db.user = "postgres"
	}
	if db.database == "" {
		db.database = "diploma"
	}
	if db.sslMode == "" {
		db.sslMode = "disable"
	}
	if db.timeZone == "" {
		db.timeZone = "UTC"
	}
	if db.maxConns <= 0 {
		db.maxConns = 20
	}
	if db.connMaxLifetime <= 0 {
		db.connMaxLifetime = time.Hour
	}
	if db.schema != "" && !validIdentifier(db.schema) {
		return nil, fmt.Errorf("invalid postgres schema name %q", db.schema)
	}
	if db.password == "" && db.passwordFile != "" {
		data, err := os.ReadFile(db.passwordFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read postgres password file: %w", err)
		}
		db.password = strings.TrimSpace(string(data))
	}
	if db.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		db.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	// Note: Database initialization happens in Start()
	return db, nil
}

// SetLogger implements the plugin.Observable interface
func (d *MetadataStorePostgres) SetLogger(logger *slog.Logger) {
	d.logger = logger
}

// SetPromRegistry implements the plugin.Observable interface
func (d *MetadataStorePostgres) SetPromRegistry(registry prometheus.Registerer) {
	d.promRegistry = registry
}

// connString returns the DSN, built from the individual options unless a
// full DSN was given
func (d *MetadataStorePostgres) connString() string {
	if dsn := strings.TrimSpace(d.dsn); dsn != "" {
		return dsn
	}
	parts := []string{
		"host=" + d.host,
		"user=" + d.user,
		"password=" + d.password,
		"dbname=" + d.database,
		"port=" + strconv.FormatUint(uint64(d.port), 10),
		"sslmode=" + d.sslMode,
	}
	if d.timeZone != "" {
		parts = append(parts, "TimeZone="+d.timeZone)
	}
	if d.schema != "" {
		parts = append(parts, "search_path="+d.schema)
	}
	return strings.Join(parts, " ")
}

// validIdentifier accepts plain lower case SQL identifiers
func validIdentifier(name string) bool {
	for i, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c == '_':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return name != ""
}

// Start implements the plugin.Plugin interface
func (d *MetadataStorePostgres) Start() error {
	metadataDb, err := gorm.Open(
		postgres.Open(d.connString()),
		&gorm.Config{
			Logger:                 gormlogger.Discard,
			SkipDefaultTransaction: true,
			PrepareStmt:            true,
			TranslateError:         true,
		},
	)
	if err != nil {
		return err
	}
	if d.schema != "" {
		if err := metadataDb.Exec(
			"CREATE SCHEMA IF NOT EXISTS " + d.schema,
		).Error; err != nil {
			return fmt.Errorf("failed to create schema %s: %w", d.schema, err)
		}
	}
	d.logger.Info(
		"connected to postgres metadata store",
		"component", "database",
		"host", d.host,
		"port", d.port,
		"database", d.database,
		"schema", d.schema,
	)
	// Configure connection pool
	sqlDB, err := metadataDb.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxIdleConns(min(10, d.maxConns))
	sqlDB.SetMaxOpenConns(d.maxConns)
	sqlDB.SetConnMaxLifetime(d.connMaxLifetime)
	d.Store = gormstore.New(metadataDb)

	// Configure tracing for GORM
	if err := metadataDb.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return err
	}
	if err := d.RegisterMetrics(d.promRegistry, "postgres"); err != nil {
		return err
	}
	return d.Migrate(d.logger)
}

// Stop implements the plugin.Plugin interface
func (d *MetadataStorePostgres) Stop() error {
	return d.Close()
}

// Close closes the database handle. It is safe to call when Start() failed
// or was never called.
func (d *MetadataStorePostgres) Close() error {
	return d.Store.Close()
}
