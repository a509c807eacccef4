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
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/blinklabs-io/diploma/api"
	"github.com/blinklabs-io/diploma/blockfrost"
	"github.com/blinklabs-io/diploma/database"
	"github.com/blinklabs-io/diploma/document"
	"github.com/blinklabs-io/diploma/event"
	"github.com/blinklabs-io/diploma/intake"
	"github.com/blinklabs-io/diploma/internal/version"
	"github.com/blinklabs-io/diploma/issuance"
	"github.com/blinklabs-io/diploma/keystore"
	"github.com/blinklabs-io/diploma/ledger"
	"github.com/blinklabs-io/diploma/privchan"
	"github.com/blinklabs-io/diploma/verification"
	ouroboros "github.com/blinklabs-io/gouroboros"
)

// Node wires storage, the ledger, the private channel and the HTTP API
// into a running certificate service
type Node struct {
	eventBus      *event.EventBus
	db            *database.Database
	backend       ledger.Backend
	reader        *ledger.Reader
	committer     *ledger.Committer
	pipeline      *issuance.Pipeline
	engine        *verification.Engine
	channel       *privchan.AMQPChannel
	intake        *intake.Worker
	api           *api.Server
	shutdownFuncs []func(context.Context) error
	config        Config
	done          chan struct{}
	openMu        sync.Mutex
	shutdownOnce  sync.Once
}

func New(cfg Config) (*Node, error) {
	n := &Node{
		config: cfg,
		done:   make(chan struct{}),
	}
	if err := n.configValidate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	n.eventBus = event.NewEventBus(n.config.promRegistry, n.config.logger)
	return n, nil
}

func (n *Node) configValidate() error {
	if n.config.network == "" {
		n.config.network = "preview"
	}
	if _, ok := ouroboros.NetworkByName(n.config.network); !ok {
		return fmt.Errorf("unknown network name: %s", n.config.network)
	}
	if n.config.backend == nil && n.config.blockfrostURL == "" {
		return errors.New("a Blockfrost URL or ledger backend is required")
	}
	if n.canIssue() {
		if n.config.issuer == "" || n.config.authority == "" {
			return errors.New("issuer and authority are required to issue certificates")
		}
	}
	if n.config.amqpURL != "" && n.config.org == "" {
		return errors.New("org is required with a private channel")
	}
	if n.config.autoIssue {
		if n.config.amqpURL == "" {
			return errors.New("auto-issue requires a private channel")
		}
		if !n.canIssue() {
			return errors.New("auto-issue requires a signing key")
		}
	}
	return nil
}

func (n *Node) canIssue() bool {
	return n.config.signer != nil || n.config.signingKeyFile != ""
}

// Open builds every component without starting listeners or background
// workers. Run calls it; one-shot commands call it directly.
func (n *Node) Open() error {
	n.openMu.Lock()
	defer n.openMu.Unlock()
	if n.db != nil {
		return nil
	}
	// Configure tracing
	if n.config.tracing {
		if err := n.setupTracing(); err != nil {
			return err
		}
	}
	// Load database
	db, err := database.New(&database.Config{
		DataDir:        n.config.dataDir,
		BlobPlugin:     n.config.blobPlugin,
		MetadataPlugin: n.config.metadataPlugin,
		Logger:         n.config.logger,
		PromRegistry:   n.config.promRegistry,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	n.db = db
	// Ledger access
	if err := n.setupBackend(); err != nil {
		return err
	}
	n.reader = ledger.NewReader(ledger.ReaderConfig{
		Logger:  n.config.logger,
		Backend: n.backend,
		Label:   n.config.label,
	})
	n.engine, err = verification.NewEngine(verification.EngineConfig{
		Logger:            n.config.logger,
		PromRegistry:      n.config.promRegistry,
		Store:             n.db,
		Reader:            n.reader,
		ExpectedIssuer:    n.config.issuer,
		ExpectedAuthority: n.config.authority,
	})
	if err != nil {
		return fmt.Errorf("failed to create verification engine: %w", err)
	}
	// Private channel
	if n.config.amqpURL != "" {
		n.channel, err = privchan.Dial(privchan.Config{
			Logger:   n.config.logger,
			Store:    n.db,
			URL:      n.config.amqpURL,
			Exchange: n.config.amqpExchange,
			Queue:    n.config.amqpQueue,
			Org:      n.config.org,
		})
		if err != nil {
			return fmt.Errorf("failed to connect private channel: %w", err)
		}
	}
	// Issuance
	if n.canIssue() {
		if err := n.setupIssuance(); err != nil {
			return err
		}
	}
	n.eventBus.SubscribeFunc(event.IssuanceStageEventType, n.logIssuanceStage)
	n.eventBus.SubscribeFunc(event.BatchReceivedEventType, n.logBatchReceived)
	return nil
}

func (n *Node) setupBackend() error {
	n.backend = n.config.backend
	if n.backend == nil {
		client, err := blockfrost.New(blockfrost.Config{
			Logger:    n.config.logger,
			BaseURL:   n.config.blockfrostURL,
			ProjectID: n.config.blockfrostProjectID,
			UserAgent: version.UserAgent(),
		})
		if err != nil {
			return fmt.Errorf("failed to create Blockfrost client: %w", err)
		}
		n.backend = blockfrost.NewBackend(client)
	}
	if n.config.utxorpcURL != "" {
		n.backend = ledger.NewSplitBackend(
			n.backend,
			ledger.NewUtxorpcSubmitter(n.config.utxorpcURL, nil),
		)
	}
	return nil
}

func (n *Node) setupIssuance() error {
	signer := n.config.signer
	if signer == nil {
		key, err := keystore.LoadPaymentKey(n.config.signingKeyFile)
		if err != nil {
			return fmt.Errorf("failed to load signing key: %w", err)
		}
		signer = key
	}
	network, _ := ouroboros.NetworkByName(n.config.network)
	account, err := ledger.NewAccount(ledger.AccountConfig{
		Logger:            n.config.logger,
		PromRegistry:      n.config.promRegistry,
		Signer:            signer,
		Backend:           n.backend,
		Retry:             ledger.RetryPolicy{MaxRetries: n.config.submitRetries},
		NetworkID:         network.Id,
		SelfPaymentAmount: n.config.selfPaymentAmount,
	})
	if err != nil {
		return fmt.Errorf("failed to create operating account: %w", err)
	}
	n.committer, err = ledger.NewCommitter(ledger.CommitterConfig{
		Logger:              n.config.logger,
		PromRegistry:        n.config.promRegistry,
		Account:             account,
		Issuer:              n.config.issuer,
		Authority:           n.config.authority,
		Label:               n.config.label,
		MinOperatingBalance: n.config.minOperatingBalance,
	})
	if err != nil {
		return fmt.Errorf("failed to create committer: %w", err)
	}
	pipelineCfg := issuance.PipelineConfig{
		Logger:       n.config.logger,
		PromRegistry: n.config.promRegistry,
		Store:        n.db,
		Renderer:     document.NewRenderer(),
		Committer:    n.committer,
		EventBus:     n.eventBus,
	}
	if n.channel != nil {
		pipelineCfg.Notifier = n.channel
	}
	n.pipeline, err = issuance.NewPipeline(pipelineCfg)
	if err != nil {
		return fmt.Errorf("failed to create issuance pipeline: %w", err)
	}
	n.config.logger.Info(
		"issuance enabled",
		"component", "node",
		"address", account.Address(),
	)
	return nil
}

// Run opens the node, starts intake and the HTTP API, and blocks until
// Stop is called
func (n *Node) Run(ctx context.Context) error {
	if err := n.Open(); err != nil {
		return err
	}
	// Batch intake
	if n.channel != nil {
		intakeCfg := intake.Config{
			Logger:       n.config.logger,
			PromRegistry: n.config.promRegistry,
			Channel:      n.channel,
			Store:        n.db,
			EventBus:     n.eventBus,
			Schedule:     n.config.intakeSchedule,
			AutoIssue:    n.config.autoIssue,
		}
		if n.pipeline != nil {
			intakeCfg.Issuer = n.pipeline
		}
		worker, err := intake.NewWorker(intakeCfg)
		if err != nil {
			return fmt.Errorf("failed to create intake worker: %w", err)
		}
		if err := worker.Start(ctx); err != nil {
			return fmt.Errorf("failed to start intake worker: %w", err)
		}
		n.intake = worker
	}
	// HTTP API
	if n.config.apiListenAddress != "" {
		apiCfg := api.Config{
			Logger:        n.config.logger,
			Verifier:      n.engine,
			Store:         n.db,
			ListenAddress: n.config.apiListenAddress,
		}
		if n.pipeline != nil {
			apiCfg.Issuer = n.pipeline
		}
		srv, err := api.New(apiCfg)
		if err != nil {
			return fmt.Errorf("failed to create API server: %w", err)
		}
		if err := srv.Start(ctx); err != nil {
			return err
		}
		n.api = srv
	}

	// Wait for shutdown signal
	<-n.done
	return nil
}

// Pipeline returns the issuance pipeline, or nil on a node without a
// signing key
func (n *Node) Pipeline() *issuance.Pipeline {
	return n.pipeline
}

func (n *Node) Verifier() *verification.Engine {
	return n.engine
}

func (n *Node) Reader() *ledger.Reader {
	return n.reader
}

func (n *Node) Database() *database.Database {
	return n.db
}

func (n *Node) EventBus() *event.EventBus {
	return n.eventBus
}

func (n *Node) logIssuanceStage(evt event.Event) {
	data, ok := evt.Data.(event.IssuanceStageEvent)
	if !ok {
		return
	}
	args := []any{
		"component", "node",
		"batch_id", data.BatchID,
		"stage", data.Stage,
		"previous_stage", data.PreviousStage,
	}
	if data.TxID != "" {
		args = append(args, "tx_id", data.TxID)
	}
	if data.Error != "" {
		n.config.logger.Warn("batch issuance stage", append(args, "error", data.Error)...)
		return
	}
	n.config.logger.Info("batch issuance stage", args...)
}

func (n *Node) logBatchReceived(evt event.Event) {
	data, ok := evt.Data.(event.BatchReceivedEvent)
	if !ok {
		return
	}
	n.config.logger.Info(
		"batch received",
		"component", "node",
		"batch_id", data.BatchID,
		"sender", data.SubmittingOrg,
		"message_id", data.MessageID,
		"students", data.StudentCount,
	)
}

func (n *Node) Stop() error {
	var err error
	n.shutdownOnce.Do(func() {
		err = n.shutdown()
	})
	return err
}

func (n *Node) shutdown() error {
	// Create shutdown context with timeout (default 30s if not configured)
	shutdownTimeout := 30 * time.Second
	if n.config.shutdownTimeout > 0 {
		shutdownTimeout = n.config.shutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var err error

	n.config.logger.Debug("starting graceful shutdown")

	// Phase 1: Stop accepting new work
	n.config.logger.Debug("shutdown phase 1: stopping new work")

	if n.intake != nil {
		n.intake.Stop()
	}

	if n.api != nil {
		if stopErr := n.api.Stop(ctx); stopErr != nil {
			err = errors.Join(err, fmt.Errorf("api shutdown: %w", stopErr))
		}
	}

	// Phase 2: Close connections
	n.config.logger.Debug("shutdown phase 2: closing connections")

	if n.channel != nil {
		if closeErr := n.channel.Close(); closeErr != nil {
			err = errors.Join(
				err,
				fmt.Errorf("private channel close: %w", closeErr),
			)
		}
	}

	// Phase 3: Close database
	n.config.logger.Debug("shutdown phase 3: closing database")

	if n.db != nil {
		if closeErr := n.db.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("database close: %w", closeErr))
		}
	}

	// Phase 4: Cleanup resources
	n.config.logger.Debug("shutdown phase 4: cleanup resources")

	// Call registered shutdown functions
	for _, fn := range n.shutdownFuncs {
		if fnErr := fn(ctx); fnErr != nil {
			err = errors.Join(err, fmt.Errorf("shutdown function: %w", fnErr))
		}
	}
	n.shutdownFuncs = nil

	if n.eventBus != nil {
		n.eventBus.Stop()
	}

	n.config.logger.Debug("graceful shutdown complete")
	close(n.done)
	return err
}
