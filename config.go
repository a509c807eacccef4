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
	"io"
	"log/slog"
	"time"

	"github.com/blinklabs-io/diploma/ledger"
	"github.com/prometheus/client_golang/prometheus"
)

type Config struct {
	promRegistry        prometheus.Registerer
	logger              *slog.Logger
	backend             ledger.Backend
	signer              ledger.AccountSigner
	dataDir             string
	blobPlugin          string
	metadataPlugin      string
	network             string
	apiListenAddress    string
	blockfrostURL       string
	blockfrostProjectID string
	utxorpcURL          string
	signingKeyFile      string
	issuer              string
	authority           string
	amqpURL             string
	amqpExchange        string
	amqpQueue           string
	org                 string
	intakeSchedule      string
	label               uint64
	minOperatingBalance uint64
	selfPaymentAmount   uint64
	submitRetries       uint64
	shutdownTimeout     time.Duration
	autoIssue           bool
	tracing             bool
	tracingStdout       bool
}

// ConfigOptionFunc is a type that represents functions that modify the Connection config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new diploma config with the specified options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger: slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	// Apply options
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithLogger specifies the logger to use. This defaults to discarding log output
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithPrometheusRegistry specifies a prometheus.Registerer instance to add metrics to. In most cases, prometheus.DefaultRegistry would be
// a good choice to get metrics working
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithDatabasePath specifies the persistent data directory to use. The default is to store everything in memory
func WithDatabasePath(dataDir string) ConfigOptionFunc {
	return func(c *Config) {
		c.dataDir = dataDir
	}
}

// WithBlobPlugin specifies the document storage plugin to use.
func WithBlobPlugin(plugin string) ConfigOptionFunc {
	return func(c *Config) {
		c.blobPlugin = plugin
	}
}

// WithMetadataPlugin specifies the relational storage plugin to use.
func WithMetadataPlugin(plugin string) ConfigOptionFunc {
	return func(c *Config) {
		c.metadataPlugin = plugin
	}
}

// WithNetwork specifies the named Cardano network the commitments are written to
func WithNetwork(network string) ConfigOptionFunc {
	return func(c *Config) {
		c.network = network
	}
}

// WithApiListenAddress specifies the host:port of the HTTP API. The API is disabled when empty
func WithApiListenAddress(address string) ConfigOptionFunc {
	return func(c *Config) {
		c.apiListenAddress = address
	}
}

// WithBlockfrost specifies the Blockfrost-compatible API used to read the ledger and submit transactions
func WithBlockfrost(baseURL string, projectID string) ConfigOptionFunc {
	return func(c *Config) {
		c.blockfrostURL = baseURL
		c.blockfrostProjectID = projectID
	}
}

// WithUtxorpcURL submits transactions through a UTxO RPC SubmitService instead of Blockfrost
func WithUtxorpcURL(url string) ConfigOptionFunc {
	return func(c *Config) {
		c.utxorpcURL = url
	}
}

// WithLedgerBackend specifies the ledger backend directly. It takes precedence over WithBlockfrost
func WithLedgerBackend(backend ledger.Backend) ConfigOptionFunc {
	return func(c *Config) {
		c.backend = backend
	}
}

// WithSigningKeyFile specifies the cardano-cli payment signing key funding commitments. Without a signing key the node only verifies
func WithSigningKeyFile(path string) ConfigOptionFunc {
	return func(c *Config) {
		c.signingKeyFile = path
	}
}

// WithSigner specifies the payment key directly. It takes precedence over WithSigningKeyFile
func WithSigner(signer ledger.AccountSigner) ConfigOptionFunc {
	return func(c *Config) {
		c.signer = signer
	}
}

// WithIssuer specifies the issuing institution and the authority written into every commitment and expected by verification
func WithIssuer(issuer string, authority string) ConfigOptionFunc {
	return func(c *Config) {
		c.issuer = issuer
		c.authority = authority
	}
}

// WithMetadataLabel specifies the transaction metadata label commitments are written under
func WithMetadataLabel(label uint64) ConfigOptionFunc {
	return func(c *Config) {
		c.label = label
	}
}

// WithMinOperatingBalance specifies the lovelace the operating account must hold before a commit is attempted
func WithMinOperatingBalance(lovelace uint64) ConfigOptionFunc {
	return func(c *Config) {
		c.minOperatingBalance = lovelace
	}
}

// WithSelfPaymentAmount specifies the lovelace paid back to the operating address by each commitment transaction
func WithSelfPaymentAmount(lovelace uint64) ConfigOptionFunc {
	return func(c *Config) {
		c.selfPaymentAmount = lovelace
	}
}

// WithSubmitRetries specifies how often a transiently failed submission is repeated
func WithSubmitRetries(retries uint64) ConfigOptionFunc {
	return func(c *Config) {
		c.submitRetries = retries
	}
}

// WithPrivateChannel specifies the AMQP broker used to exchange batches with member organisations. The queue defaults to org
func WithPrivateChannel(url string, exchange string, queue string, org string) ConfigOptionFunc {
	return func(c *Config) {
		c.amqpURL = url
		c.amqpExchange = exchange
		c.amqpQueue = queue
		c.org = org
	}
}

// WithIntake specifies the cron schedule of batch intake and whether received batches are issued right away
func WithIntake(schedule string, autoIssue bool) ConfigOptionFunc {
	return func(c *Config) {
		c.intakeSchedule = schedule
		c.autoIssue = autoIssue
	}
}

// WithTracing enables tracing. By default, spans are submitted to a HTTP(s) endpoint using OTLP. This can be configured
// using the OTEL_EXPORTER_OTLP_* env vars documented in the README for [go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp]
func WithTracing(tracing bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracing = tracing
	}
}

// WithTracingStdout enables tracing output to stdout. This also requires tracing to enabled separately. This is mostly useful for debugging
func WithTracingStdout(stdout bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracingStdout = stdout
	}
}

// WithShutdownTimeout specifies the timeout for graceful shutdown. The default is 30 seconds
func WithShutdownTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.shutdownTimeout = timeout
	}
}
