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


package node

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/diploma/internal/config"
)

func TestListenAddress(t *testing.T) {
	assert.Equal(t, "0.0.0.0:8080", listenAddress("0.0.0.0", 8080))
	assert.Equal(t, "[::1]:12798", listenAddress("::1", 12798))
}

func TestNew(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	cfg := config.DefaultConfig()
	cfg.ShutdownTimeout = "never"
	_, err := New(cfg, logger)
	require.Error(t, err)

	// Registers metrics with the default registry, so only built once
	cfg = config.DefaultConfig()
	cfg.SigningKeyFile = "payment.skey"
	_, err = New(cfg, logger)
	require.ErrorContains(t, err, "issuer and authority are required")

	cfg.Issuer = "Example University"
	cfg.Authority = "Ministry of Education"
	d, err := New(cfg, logger)
	require.NoError(t, err)
	require.NoError(t, d.Stop())
}
