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
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/blinklabs-io/diploma/database/models"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	m, err := NewWithOptions(
		WithHost("db.local"),
		WithPort(6543),
		WithUser("issuer"),
		WithPassword("secret"),
		WithDatabase("certs"),
		WithSSLMode("require"),
		WithTimeZone("Europe/Lisbon"),
		WithMaxConnections(5),
		WithLogger(logger),
		WithPromRegistry(reg),
	)
	require.NoError(t, err)
	assert.Equal(t, "db.local", m.host)
	assert.Equal(t, uint(6543), m.port)
	assert.Equal(t, "issuer", m.user)
	assert.Equal(t, "secret", m.password)
	assert.Equal(t, "certs", m.database)
	assert.Equal(t, "require", m.sslMode)
	assert.Equal(t, "Europe/Lisbon", m.timeZone)
	assert.Equal(t, 5, m.maxConns)
	assert.Equal(t, time.Hour, m.connMaxLifetime)
	assert.Same(t, logger, m.logger)
	assert.Equal(t, reg, m.promRegistry)
}

func TestDefaults(t *testing.T) {
	m, err := NewWithOptions()
	require.NoError(t, err)
	assert.Equal(t, "localhost", m.host)
	assert.Equal(t, uint(5432), m.port)
	assert.Equal(t, "postgres", m.user)
	assert.Equal(t, "diploma", m.database)
	assert.Equal(t, "disable", m.sslMode)
	assert.Equal(t, "UTC", m.timeZone)
	assert.NotNil(t, m.logger)
	// Close before Start is harmless
	assert.NoError(t, m.Close())
}

func TestConnString(t *testing.T) {
	m, err := NewWithOptions(WithPassword("secret"))
	require.NoError(t, err)
	assert.Equal(
		t,
		"host=localhost user=postgres password=secret dbname=diploma port=5432 sslmode=disable TimeZone=UTC",
		m.connString(),
	)

	m, err = NewWithOptions(WithDSN("  host=db dbname=other  "))
	require.NoError(t, err)
	assert.Equal(t, "host=db dbname=other", m.connString())

	m, err = NewWithOptions(WithPassword("secret"), WithSchema("certs"))
	require.NoError(t, err)
	assert.Contains(t, m.connString(), " search_path=certs")
}

func TestSchemaValidation(t *testing.T) {
	for _, schema := range []string{"certs", "diploma_v2", "_x"} {
		_, err := NewWithOptions(WithSchema(schema))
		require.NoError(t, err, schema)
	}
	for _, schema := range []string{"2certs", "Certs", "certs;drop", "a-b"} {
		_, err := NewWithOptions(WithSchema(schema))
		require.Error(t, err, schema)
	}
}

func TestPasswordFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "password")
	require.NoError(t, os.WriteFile(path, []byte("from-file\n"), 0o600))

	m, err := NewWithOptions(WithPasswordFile(path))
	require.NoError(t, err)
	assert.Equal(t, "from-file", m.password)

	// A password given directly wins
	m, err = NewWithOptions(WithPassword("direct"), WithPasswordFile(path))
	require.NoError(t, err)
	assert.Equal(t, "direct", m.password)

	_, err = NewWithOptions(WithPasswordFile(filepath.Join(t.TempDir(), "missing")))
	require.Error(t, err)
}

// TestStoreRoundTrip runs against a real server when POSTGRES_DSN is set
func TestStoreRoundTrip(t *testing.T) {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("Skipping postgres integration test: POSTGRES_DSN not set")
	}
	m, err := NewWithOptions(WithDSN(dsn))
	require.NoError(t, err)
	require.NoError(t, m.Start())
	defer m.Close() //nolint:errcheck

	ctx := context.Background()
	batchID := uuid.NewString()
	require.NoError(t, m.CreateBatch(
		ctx,
		&models.Batch{BatchID: batchID, BatchName: "integration"},
		[]models.Student{{StudentID: "S1", Name: "A", Course: "B"}},
	))
	batch, err := m.GetBatch(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusSubmitted, batch.Status)
	students, err := m.ListStudents(ctx, batchID)
	require.NoError(t, err)
	assert.Len(t, students, 1)
}
