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

package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/blinklabs-io/diploma/commitment"
	"github.com/prometheus/client_golang/prometheus"
)

// 5 ADA
const DefaultMinOperatingBalance uint64 = 5_000_000

// Commit stages reported in CommitError
const (
	StageBuild  = "build"
	StageSubmit = "submit"
)

type CommitterConfig struct {
	Logger              *slog.Logger
	PromRegistry        prometheus.Registerer
	Account             *Account
	Issuer              string
	Authority           string
	Label               uint64
	MinOperatingBalance uint64
	// Now defaults to time.Now
	Now func() time.Time
}

// CommitRequest names the batch and the ordered document hashes to anchor
type CommitRequest struct {
	BatchID      string
	BatchName    string
	AcademicYear string
	Semester     string
	Faculty      string
	Hashes       []string
}

// Committer anchors certificate commitments in transaction metadata
type Committer struct {
	config  CommitterConfig
	logger  *slog.Logger
	metrics *commitMetrics
}

func NewCommitter(cfg CommitterConfig) (*Committer, error) {
	if cfg.Account == nil {
		return nil, errors.New("committer account is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.Label == 0 {
		cfg.Label = commitment.DefaultLabel
	}
	if cfg.MinOperatingBalance == 0 {
		cfg.MinOperatingBalance = DefaultMinOperatingBalance
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	c := &Committer{
		config: cfg,
		logger: cfg.Logger.With("component", "ledger"),
	}
	if cfg.PromRegistry != nil {
		c.metrics = newCommitMetrics(cfg.PromRegistry)
	}
	return c, nil
}

// Commit writes one transaction whose metadata carries every hash of the
// batch and returns its id once the node accepted it. Acceptance is not
// finality. Funding problems return ErrInsufficientFunds; every other
// failure is a *CommitError.
func (c *Committer) Commit(
	ctx context.Context,
	req CommitRequest,
) (string, error) {
	start := time.Now()
	txID, err := c.commit(ctx, req)
	c.metrics.observe(err, time.Since(start))
	if err != nil {
		return "", err
	}
	c.logger.Info(
		"committed certificate batch",
		"batch_id", req.BatchID,
		"tx_id", txID,
		"hashes", len(req.Hashes),
	)
	return txID, nil
}

func (c *Committer) commit(
	ctx context.Context,
	req CommitRequest,
) (string, error) {
	cm := commitment.New(
		c.config.Issuer,
		c.config.Authority,
		commitment.Batch{
			ID:           req.BatchID,
			Name:         req.BatchName,
			AcademicYear: req.AcademicYear,
			Semester:     req.Semester,
			Faculty:      req.Faculty,
		},
		req.Hashes,
		c.config.Now(),
	)
	if err := cm.Validate(); err != nil {
		return "", &CommitError{BatchID: req.BatchID, Stage: StageBuild, Err: err}
	}
	balance, err := c.config.Account.Balance(ctx)
	if err != nil {
		return "", &CommitError{
			BatchID: req.BatchID,
			Stage:   StageBuild,
			Err:     fmt.Errorf("query balance: %w", err),
		}
	}
	if balance < c.config.MinOperatingBalance {
		return "", fmt.Errorf(
			"%w: balance %d lovelace is below the operating minimum %d",
			ErrInsufficientFunds,
			balance,
			c.config.MinOperatingBalance,
		)
	}
	auxData, err := cm.AuxiliaryData(c.config.Label)
	if err != nil {
		return "", &CommitError{
			BatchID: req.BatchID,
			Stage:   StageBuild,
			Err:     fmt.Errorf("encode metadata: %w", err),
		}
	}
	txID, err := c.config.Account.SubmitAuxData(ctx, auxData)
	if err != nil {
		if errors.Is(err, ErrInsufficientFunds) {
			return "", err
		}
		return "", &CommitError{
			BatchID: req.BatchID,
			Stage:   StageSubmit,
			TxID:    txID,
			Err:     err,
		}
	}
	return txID, nil
}
