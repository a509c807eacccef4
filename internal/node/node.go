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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/blinklabs-io/diploma"
	"github.com/blinklabs-io/diploma/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// New builds a node from the loaded configuration
func New(cfg *config.Config, logger *slog.Logger) (*diploma.Node, error) {
	shutdownTimeout, err := cfg.ShutdownTimeoutDuration()
	if err != nil {
		return nil, err
	}
	opts := []diploma.ConfigOptionFunc{
		diploma.WithLogger(logger),
		diploma.WithDatabasePath(cfg.DatabasePath),
		diploma.WithBlobPlugin(cfg.BlobPlugin),
		diploma.WithMetadataPlugin(cfg.MetadataPlugin),
		diploma.WithNetwork(cfg.Network),
		diploma.WithBlockfrost(cfg.BlockfrostUrl, cfg.BlockfrostProjectId),
		diploma.WithUtxorpcURL(cfg.UtxorpcUrl),
		diploma.WithSigningKeyFile(cfg.SigningKeyFile),
		diploma.WithIssuer(cfg.Issuer, cfg.Authority),
		diploma.WithMetadataLabel(cfg.MetadataLabel),
		diploma.WithMinOperatingBalance(cfg.MinOperatingBalance),
		diploma.WithSelfPaymentAmount(cfg.SelfPaymentAmount),
		diploma.WithSubmitRetries(cfg.SubmitRetries),
		diploma.WithPrivateChannel(cfg.AmqpUrl, cfg.AmqpExchange, cfg.AmqpQueue, cfg.Org),
		diploma.WithIntake(cfg.IntakeSchedule, cfg.AutoIssue),
		diploma.WithTracing(cfg.Tracing),
		diploma.WithTracingStdout(cfg.TracingStdout),
		diploma.WithShutdownTimeout(shutdownTimeout),
		// Enable metrics with default prometheus registry
		diploma.WithPrometheusRegistry(prometheus.DefaultRegisterer),
	}
	if cfg.ApiPort > 0 {
		opts = append(
			opts,
			diploma.WithApiListenAddress(listenAddress(cfg.BindAddr, cfg.ApiPort)),
		)
	}
	return diploma.New(diploma.NewConfig(opts...))
}

func listenAddress(host string, port uint) string {
	return net.JoinHostPort(host, strconv.FormatUint(uint64(port), 10))
}

// Run serves the node and the metrics listener until SIGINT or SIGTERM
func Run(cfg *config.Config, logger *slog.Logger) error {
	logger.Debug(fmt.Sprintf("config: %+v", cfg), "component", "node")
	shutdownTimeout, err := cfg.ShutdownTimeoutDuration()
	if err != nil {
		return err
	}
	d, err := New(cfg, logger)
	if err != nil {
		return err
	}

	// Metrics listener
	var metricsServer *http.Server
	if cfg.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:              listenAddress(cfg.BindAddr, cfg.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 60 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		}
		ln, err := net.Listen("tcp", metricsServer.Addr)
		if err != nil {
			_ = d.Stop()
			return fmt.Errorf("failed to start metrics listener: %w", err)
		}
		logger.Info(
			"serving prometheus metrics on "+metricsServer.Addr,
			"component", "node",
		)
		go func() {
			if err := metricsServer.Serve(ln); err != nil &&
				!errors.Is(err, http.ErrServerClosed) {
				logger.Error(
					"metrics listener failed",
					"component", "node",
					"error", err,
				)
			}
		}()
	}
	stopMetrics := func() {
		if metricsServer == nil {
			return
		}
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			shutdownTimeout,
		)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}
	}

	// Wait for interrupt/termination signal
	signalCtx, signalCtxStop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer signalCtxStop()

	// Run node in goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- d.Run(signalCtx)
	}()

	// Wait for signal or error
	select {
	case <-signalCtx.Done():
		logger.Info("signal received, initiating graceful shutdown")
		stopMetrics()
		if err := d.Stop(); err != nil {
			logger.Error("shutdown errors occurred", "error", err)
			return err
		}
		logger.Info("shutdown complete")
		return nil
	case err := <-errChan:
		stopMetrics()
		if stopErr := d.Stop(); stopErr != nil {
			logger.Error(
				"shutdown errors occurred during error cleanup",
				"error", stopErr,
			)
		}
		if err != nil {
			logger.Error("node error", "error", err)
			return err
		}
		logger.Info("node stopped")
		return nil
	}
}
