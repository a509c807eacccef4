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


package diploma

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewConfigOptions(t *testing.T) {
	cfg := NewConfig(
		WithDatabasePath("/var/lib/diploma"),
		WithBlobPlugin("s3"),
		WithMetadataPlugin("postgres"),
		WithNetwork("preprod"),
		WithApiListenAddress("127.0.0.1:8080"),
		WithBlockfrost("https://cardano-preprod.blockfrost.io/api/v0", "preprodabc"),
		WithUtxorpcURL("http://localhost:9090"),
		WithSigningKeyFile("payment.skey"),
		WithIssuer("Example University", "Ministry of Education"),
		WithMetadataLabel(1695),
		WithMinOperatingBalance(7_000_000),
		WithSelfPaymentAmount(1_500_000),
		WithSubmitRetries(2),
		WithPrivateChannel("amqp://localhost/", "diploma.private", "", "university"),
		WithIntake("@every 1m", true),
		WithTracing(true),
		WithTracingStdout(true),
		WithShutdownTimeout(5*time.Second),
	)
	assert.NotNil(t, cfg.logger)
	assert.Equal(t, "/var/lib/diploma", cfg.dataDir)
	assert.Equal(t, "s3", cfg.blobPlugin)
	assert.Equal(t, "postgres", cfg.metadataPlugin)
	assert.Equal(t, "preprod", cfg.network)
	assert.Equal(t, "127.0.0.1:8080", cfg.apiListenAddress)
	assert.Equal(t, "preprodabc", cfg.blockfrostProjectID)
	assert.Equal(t, "http://localhost:9090", cfg.utxorpcURL)
	assert.Equal(t, "payment.skey", cfg.signingKeyFile)
	assert.Equal(t, "Example University", cfg.issuer)
	assert.Equal(t, "Ministry of Education", cfg.authority)
	assert.Equal(t, uint64(1695), cfg.label)
	assert.Equal(t, uint64(7_000_000), cfg.minOperatingBalance)
	assert.Equal(t, uint64(1_500_000), cfg.selfPaymentAmount)
	assert.Equal(t, uint64(2), cfg.submitRetries)
	assert.Equal(t, "university", cfg.org)
	assert.Equal(t, "@every 1m", cfg.intakeSchedule)
	assert.True(t, cfg.autoIssue)
	assert.True(t, cfg.tracing)
	assert.True(t, cfg.tracingStdout)
	assert.Equal(t, 5*time.Second, cfg.shutdownTimeout)
}

func TestConfigValidate(t *testing.T) {
	testDefs := []struct {
		name string
		opts []ConfigOptionFunc
		ok   bool
	}{
		{
			name: "verify only",
			opts: []ConfigOptionFunc{WithBlockfrost("http://localhost:3000/api/v0", "")},
			ok:   true,
		},
		{
			name: "unknown network",
			opts: []ConfigOptionFunc{
				WithBlockfrost("http://localhost:3000/api/v0", ""),
				WithNetwork("nonexistent"),
			},
		},
		{
			name: "no ledger access",
		},
		{
			name: "signing key without issuer",
			opts: []ConfigOptionFunc{
				WithBlockfrost("http://localhost:3000/api/v0", ""),
				WithSigningKeyFile("payment.skey"),
			},
		},
		{
			name: "private channel without org",
			opts: []ConfigOptionFunc{
				WithBlockfrost("http://localhost:3000/api/v0", ""),
				WithPrivateChannel("amqp://localhost/", "", "", ""),
			},
		},
		{
			name: "auto-issue without private channel",
			opts: []ConfigOptionFunc{
				WithBlockfrost("http://localhost:3000/api/v0", ""),
				WithSigningKeyFile("payment.skey"),
				WithIssuer("Example University", "Ministry of Education"),
				WithIntake("", true),
			},
		},
		{
			name: "auto-issue without signing key",
			opts: []ConfigOptionFunc{
				WithBlockfrost("http://localhost:3000/api/v0", ""),
				WithPrivateChannel("amqp://localhost/", "", "", "university"),
				WithIntake("", true),
			},
		},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			n, err := New(NewConfig(testDef.opts...))
			if !testDef.ok {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, "preview", n.config.network)
			assert.NoError(t, n.Stop())
		})
	}
}
