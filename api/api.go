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


// Package api serves certificate verification and batch issuance over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/blinklabs-io/diploma/database/models"
	"github.com/blinklabs-io/diploma/issuance"
	"github.com/blinklabs-io/diploma/verification"
)

const (
	DefaultListenAddress = ":8080"
	// MaxDocumentSize bounds uploads to the document verification endpoint
	MaxDocumentSize int64 = 10 << 20
)

// Verifier answers verification requests. verification.Engine satisfies it.
type Verifier interface {
	Verify(ctx context.Context, hash string) verification.Result
	VerifyCertificate(ctx context.Context, certificateID string) verification.Result
	VerifyDocument(ctx context.Context, data []byte) verification.Result
}

// Issuer runs batch issuance. issuance.Pipeline satisfies it.
type Issuer interface {
	Issue(ctx context.Context, batchID string) (*issuance.Result, error)
	Renotify(ctx context.Context, batchID string) (*issuance.Result, error)
}

// Store is the read side of storage used by the API. database.Database
// satisfies it.
type Store interface {
	GetBatch(ctx context.Context, batchID string) (*models.Batch, error)
	ListBatches(ctx context.Context, statuses ...models.BatchStatus) ([]models.Batch, error)
	ListStudents(ctx context.Context, batchID string) ([]models.Student, error)
	FindStudentByCertificateID(ctx context.Context, certificateID string) (*models.Student, error)
	GetDocument(ctx context.Context, key string) ([]byte, error)
}

type Config struct {
	Logger   *slog.Logger
	Verifier Verifier
	// Issuer may be nil for nodes that only verify
	Issuer        Issuer
	Store         Store
	ListenAddress string
}

// Server is the HTTP API server
type Server struct {
	config     Config
	logger     *slog.Logger
	httpServer *http.Server
	mu         sync.Mutex
}

func New(cfg Config) (*Server, error) {
	if cfg.Verifier == nil {
		return nil, errors.New("api verifier is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("api store is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = DefaultListenAddress
	}
	return &Server{
		config: cfg,
		logger: cfg.Logger.With("component", "api"),
	}, nil
}

// Handler returns the request router
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/v1/verify/{hash}", s.handleVerifyHash)
	mux.HandleFunc("POST /api/v1/verify/document", s.handleVerifyDocument)
	mux.HandleFunc(
		"GET /api/v1/certificates/{id}/verify",
		s.handleVerifyCertificate,
	)
	mux.HandleFunc(
		"GET /api/v1/certificates/{id}/document",
		s.handleCertificateDocument,
	)
	mux.HandleFunc("GET /api/v1/batches", s.handleListBatches)
	mux.HandleFunc("GET /api/v1/batches/{id}", s.handleGetBatch)
	mux.HandleFunc("POST /api/v1/batches/{id}/issue", s.handleIssueBatch)
	mux.HandleFunc("POST /api/v1/batches/{id}/notify", s.handleNotifyBatch)
	return mux
}

// Start starts the HTTP server in a background goroutine. The server stops
// when ctx is done or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.httpServer != nil {
		s.mu.Unlock()
		return errors.New("server already started")
	}
	server := &http.Server{
		Addr:              s.config.ListenAddress,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 60 * time.Second,
	}
	s.httpServer = server
	s.mu.Unlock()

	if err := s.startServer(server); err != nil {
		s.mu.Lock()
		s.httpServer = nil
		s.mu.Unlock()
		return err
	}
	s.logger.Info("API listener started on " + s.config.ListenAddress)

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		srv := s.httpServer
		s.httpServer = nil
		s.mu.Unlock()
		if srv == nil {
			return
		}
		s.logger.Debug("context cancelled, shutting down API server")
		//nolint:contextcheck
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			30*time.Second,
		)
		defer cancel()
		//nolint:contextcheck
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(
				"failed to shutdown API server on context cancellation",
				"error", err,
			)
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.httpServer = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	s.logger.Debug("shutting down API server")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown API server: %w", err)
	}
	return nil
}

// startServer binds the listening socket first so port conflicts are
// reported by Start, then serves in a background goroutine
func (s *Server) startServer(server *http.Server) error {
	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen for API server: %w", err)
	}
	go func() {
		if err := server.Serve(ln); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}
