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
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestOptions(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	m, err := NewWithOptions(
		WithDataDir("/tmp/test"),
		WithLogger(logger),
		WithPromRegistry(reg),
		WithMaxConnections(10),
		WithBusyTimeout(2*time.Second),
		WithVacuumInterval(time.Hour),
	)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if m.dataDir != "/tmp/test" {
		t.Errorf("Expected dataDir to be '/tmp/test', got '%s'", m.dataDir)
	}
	if m.logger != logger {
		t.Errorf("Expected logger to be set")
	}
	if m.promRegistry != reg {
		t.Errorf("Expected promRegistry to be set")
	}
	if m.maxConnections != 10 {
		t.Errorf("Expected maxConnections to be 10, got %d", m.maxConnections)
	}
	if m.busyTimeout != 2*time.Second {
		t.Errorf("Expected busyTimeout to be 2s, got %s", m.busyTimeout)
	}
	if m.vacuumInterval != time.Hour {
		t.Errorf("Expected vacuumInterval to be 1h, got %s", m.vacuumInterval)
	}
}

func TestNewWithOptionsDefaults(t *testing.T) {
	m, err := NewWithOptions()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if m.maxConnections != DefaultMaxConnections {
		t.Errorf(
			"Expected maxConnections to be %d, got %d",
			DefaultMaxConnections,
			m.maxConnections,
		)
	}
	if m.busyTimeout != DefaultBusyTimeout {
		t.Errorf("Expected busyTimeout to be %s, got %s", DefaultBusyTimeout, m.busyTimeout)
	}
	if m.vacuumInterval != DefaultVacuumInterval {
		t.Errorf(
			"Expected vacuumInterval to be %s, got %s",
			DefaultVacuumInterval,
			m.vacuumInterval,
		)
	}
	if _, err := NewWithOptions(WithVacuumInterval(-time.Second)); err == nil {
		t.Errorf("Expected error for negative vacuum interval")
	}
}

func TestVacuumDisabled(t *testing.T) {
	m, err := NewWithOptions(
		WithDataDir(t.TempDir()),
		WithVacuumInterval(0),
	)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if err := m.Start(); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	defer m.Close() //nolint:errcheck
	m.timerMutex.Lock()
	timer := m.timerVacuum
	m.timerMutex.Unlock()
	if timer != nil {
		t.Errorf("Expected no vacuum timer when the interval is zero")
	}
	if err := m.runVacuum(); err != nil {
		t.Errorf("unexpected vacuum error: %s", err)
	}
}
