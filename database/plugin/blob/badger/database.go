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

package badger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/blinklabs-io/diploma/database/plugin/blob"
	"github.com/blinklabs-io/diploma/database/types"
	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/prometheus/client_golang/prometheus"
)

// Defaults for BadgerDB tuning (in bytes)
const (
	DefaultBlockCacheSize   = 268435456 // 256MB
	DefaultIndexCacheSize   = 67108864  // 64MB
	DefaultValueLogFileSize = 268435456 // 256MB
	DefaultMemTableSize     = 67108864  // 64MB
	// Documents are a few KB, keep them out of the LSM tree
	DefaultValueThreshold = 1024
	DefaultGcInterval     = 5 * time.Minute
	DefaultGcDiscardRatio = 0.5
)

// documentKeyPrefix namespaces document keys inside the badger keyspace
const documentKeyPrefix = "doc/"

// BlobStoreBadger stores all data in badger. Data may not be persisted
type BlobStoreBadger struct {
	promRegistry     prometheus.Registerer
	db               *badger.DB
	logger           *slog.Logger
	metrics          *blob.Metrics
	gcTicker         *time.Ticker
	gcStopCh         chan struct{}
	dataDir          string
	gcWg             sync.WaitGroup
	closeOnce        sync.Once
	blockCacheSize   uint64
	indexCacheSize   uint64
	valueLogFileSize int64
	memTableSize     int64
	valueThreshold   int64
	gcInterval       time.Duration
	gcDiscardRatio   float64
	gcEnabled        bool
}

// New creates and opens a new database
func New(opts ...BlobStoreBadgerOptionFunc) (*BlobStoreBadger, error) {
	db := NewWithOptions(opts...)
	if err := db.Start(); err != nil {
		return nil, err
	}
	return db, nil
}

// NewWithOptions creates a new database with options. The database is
// opened by Start().
func NewWithOptions(opts ...BlobStoreBadgerOptionFunc) *BlobStoreBadger {
	db := &BlobStoreBadger{
		// Set defaults
		gcEnabled:        true, // Enable GC by default for disk-backed stores
		blockCacheSize:   DefaultBlockCacheSize,
		indexCacheSize:   DefaultIndexCacheSize,
		valueLogFileSize: int64(DefaultValueLogFileSize),
		memTableSize:     int64(DefaultMemTableSize),
		valueThreshold:   int64(DefaultValueThreshold),
		gcInterval:       DefaultGcInterval,
		gcDiscardRatio:   DefaultGcDiscardRatio,
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// SetLogger implements the plugin.Observable interface
func (d *BlobStoreBadger) SetLogger(logger *slog.Logger) {
	d.logger = logger
}

// SetPromRegistry implements the plugin.Observable interface
func (d *BlobStoreBadger) SetPromRegistry(registry prometheus.Registerer) {
	d.promRegistry = registry
}

// Start implements the plugin.Plugin interface
func (d *BlobStoreBadger) Start() error {
	if d.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		d.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	var badgerOpts badger.Options
	if d.dataDir == "" {
		// No dataDir, use in-memory config
		badgerOpts = badger.DefaultOptions("").
			WithLogger(NewBadgerLogger(d.logger)).
			// The default INFO logging is a bit verbose
			WithLoggingLevel(badger.WARNING).
			WithInMemory(true).
			WithValueThreshold(d.valueThreshold)
		// Value log GC is not supported in memory
		d.gcEnabled = false
	} else {
		// Make sure that we can read data dir, and create if it doesn't exist
		if _, err := os.Stat(d.dataDir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to read data dir: %w", err)
			}
			// Create data directory
			if err := os.MkdirAll(d.dataDir, 0o755); err != nil {
				return fmt.Errorf("failed to create data dir: %w", err)
			}
		}
		blobDir := filepath.Join(
			d.dataDir,
			"blob",
		)
		badgerOpts = badger.DefaultOptions(blobDir).
			WithLogger(NewBadgerLogger(d.logger)).
			WithLoggingLevel(badger.WARNING).
			WithBlockCacheSize(int64(d.blockCacheSize)). //nolint:gosec // blockCacheSize is controlled and reasonable
			WithIndexCacheSize(int64(d.indexCacheSize)). //nolint:gosec // indexCacheSize is controlled and reasonable
			WithValueLogFileSize(d.valueLogFileSize).
			WithMemTableSize(d.memTableSize).
			WithValueThreshold(d.valueThreshold).
			WithCompression(options.Snappy)
	}
	blobDb, err := badger.Open(badgerOpts)
	if err != nil {
		return err
	}
	d.db = blobDb
	d.metrics = blob.NewMetrics(d.promRegistry, "badger")
	// Configure GC
	if d.gcEnabled {
		d.gcTicker = time.NewTicker(d.gcInterval)
		d.gcStopCh = make(chan struct{})
		d.gcWg.Add(1)
		go d.blobGc(d.gcTicker, d.gcStopCh)
	}
	return nil
}

func (d *BlobStoreBadger) blobGc(t *time.Ticker, stop <-chan struct{}) {
	defer d.gcWg.Done()
	for {
		select {
		case <-t.C:
		again:
			err := d.DB().RunValueLogGC(d.gcDiscardRatio)
			if err != nil {
				// Log any actual errors
				if !errors.Is(err, badger.ErrNoRewrite) {
					d.logger.Warn(
						fmt.Sprintf("blob DB: GC failure: %s", err),
						"component", "database",
					)
				}
			} else {
				// Run it again if it just ran successfully
				goto again
			}
		case <-stop:
			return
		}
	}
}

// DB returns the underlying badger handle
func (d *BlobStoreBadger) DB() *badger.DB {
	return d.db
}

// Stop implements the plugin.Plugin interface
func (d *BlobStoreBadger) Stop() error {
	return d.Close()
}

// Close stops the GC goroutine and closes the database
func (d *BlobStoreBadger) Close() error {
	var err error
	d.closeOnce.Do(func() {
		if d.gcTicker != nil {
			d.gcTicker.Stop()
			close(d.gcStopCh)
			// Wait for GC goroutine to finish
			d.gcWg.Wait()
			d.gcTicker = nil
		}
		if d.db != nil {
			err = d.db.Close()
		}
	})
	return err
}

// Get returns the document stored under key
func (d *BlobStoreBadger) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var ret []byte
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(documentKeyPrefix + key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return types.ErrBlobKeyNotFound
			}
			return err
		}
		ret, err = item.ValueCopy(nil)
		return err
	})
	d.metrics.Observe("get", len(ret), err)
	if err != nil {
		return nil, err
	}
	return ret, nil
}

// Put stores data under key, replacing any previous value
func (d *BlobStoreBadger) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := d.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(documentKeyPrefix+key), data)
	})
	d.metrics.Observe("put", len(data), err)
	return err
}

// Delete removes key
func (d *BlobStoreBadger) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := d.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(documentKeyPrefix + key))
	})
	d.metrics.Observe("delete", 0, err)
	return err
}
