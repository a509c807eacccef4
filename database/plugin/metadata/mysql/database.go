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

package mysql

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/blinklabs-io/diploma/database/plugin/metadata/internal/gormstore"
	"github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"
)

// mysqlErrUnknownDatabase is the server error number for ER_BAD_DB_ERROR
const mysqlErrUnknownDatabase = 1049

// MetadataStoreMysql stores metadata in MySQL.
type MetadataStoreMysql struct {
	*gormstore.Store
	promRegistry prometheus.Registerer
	logger       *slog.Logger

	host            string
	port            uint
	user            string
	password        string
	passwordFile    string
	database        string
	sslMode         string
	timeZone        string
	dsn             string // Data source name (MySQL connection string)
	maxConns        int
	connMaxLifetime time.Duration
}

// NewWithOptions creates a new database with options
func NewWithOptions(opts ...MysqlOptionFunc) (*MetadataStoreMysql, error) {
	db := &MetadataStoreMysql{}

	// Apply options
	for _, opt := range opts {
		opt(db)
	}

	// Set defaults after options are applied (no side effects)
	if db.host == "" {
		db.host = "localhost"
	}
	if db.port == 0 {
		db.port = 3306
	}
	if db.user == "" {
		db.user = "root"
	}
	if db.database == "" {
		db.database = "diploma"
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
	if db.password == "" && db.passwordFile != "" {
		data, err := os.ReadFile(db.passwordFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read mysql password file: %w", err)
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
func (d *MetadataStoreMysql) SetLogger(logger *slog.Logger) {
	d.logger = logger
}

// SetPromRegistry implements the plugin.Observable interface
func (d *MetadataStoreMysql) SetPromRegistry(registry prometheus.Registerer) {
	d.promRegistry = registry
}

// connString returns the DSN and the database name it selects
func (d *MetadataStoreMysql) connString() (string, string) {
	if dsn := strings.TrimSpace(d.dsn); dsn != "" {
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return dsn, d.database
		}
		return dsn, cfg.DBName
	}
	cfg := mysql.NewConfig()
	cfg.User = d.user
	cfg.Passwd = d.password
	cfg.Net = "tcp"
	cfg.Addr = d.host + ":" + strconv.FormatUint(uint64(d.port), 10)
	cfg.DBName = d.database
	cfg.ParseTime = true
	cfg.AllowNativePasswords = true
	if d.timeZone != "" {
		loc, err := time.LoadLocation(d.timeZone)
		if err != nil {
			loc = time.UTC
		}
		cfg.Loc = loc
	}
	if d.sslMode != "" {
		cfg.TLSConfig = d.sslMode
	}
	return cfg.FormatDSN(), d.database
}

func (d *MetadataStoreMysql) open(dsn string) (*gorm.DB, error) {
	return gorm.Open(
		gormmysql.Open(dsn),
		&gorm.Config{
			Logger:                 gormlogger.Discard,
			SkipDefaultTransaction: true,
			PrepareStmt:            true,
			TranslateError:         true,
		},
	)
}

// Start implements the plugin.Plugin interface
func (d *MetadataStoreMysql) Start() error {
	dsn, dbName := d.connString()
	metadataDb, err := d.open(dsn)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if !errors.As(err, &mysqlErr) ||
			mysqlErr.Number != mysqlErrUnknownDatabase {
			return err
		}
		if err := d.createDatabase(dsn, dbName); err != nil {
			return err
		}
		if metadataDb, err = d.open(dsn); err != nil {
			return err
		}
	}
	d.logger.Info(
		"connected to mysql metadata store",
		"component", "database",
		"host", d.host,
		"port", d.port,
		"database", dbName,
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
	if err := d.RegisterMetrics(d.promRegistry, "mysql"); err != nil {
		return err
	}
	return d.Migrate(d.logger)
}

// createDatabase connects without selecting a database and creates it
func (d *MetadataStoreMysql) createDatabase(dsn string, dbName string) error {
	if dbName == "" {
		return errors.New("no database name in mysql DSN")
	}
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return err
	}
	cfg.DBName = ""
	adminDb, err := d.open(cfg.FormatDSN())
	if err != nil {
		return err
	}
	sqlAdminDb, err := adminDb.DB()
	if err != nil {
		return err
	}
	defer sqlAdminDb.Close()
	d.logger.Info(
		"creating mysql database",
		"component", "database",
		"database", dbName,
	)
	result := adminDb.Exec(
		fmt.Sprintf(
			"CREATE DATABASE IF NOT EXISTS `%s`",
			strings.ReplaceAll(dbName, "`", "``"),
		),
	)
	return result.Error
}

// Stop implements the plugin.Plugin interface
func (d *MetadataStoreMysql) Stop() error {
	return d.Close()
}

// Close closes the database handle. It is safe to call when Start() failed
// or was never called.
func (d *MetadataStoreMysql) Close() error {
	return d.Store.Close()
}
