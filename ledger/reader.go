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
)

const DefaultPollInterval = 10 * time.Second

type LookupStatus int

const (
	LookupNotFound LookupStatus = iota + 1
	LookupFound
	LookupNotIndexed
)

func (s LookupStatus) String() string {
	switch s {
	case LookupNotFound:
		return "not_found"
	case LookupFound:
		return "found"
	case LookupNotIndexed:
		return "not_indexed"
	default:
		return "unknown"
	}
}

// Lookup is the result of reading a commitment from the ledger. Commitment
// is only set when Status is LookupFound.
type Lookup struct {
	Commitment *commitment.Commitment
	TxID       string
	Status     LookupStatus
}

type ReaderConfig struct {
	Logger  *slog.Logger
	Backend Backend
	Label   uint64
}

// Reader reads certificate commitments back from transaction metadata
type Reader struct {
	backend Backend
	logger  *slog.Logger
	label   uint64
}

func NewReader(cfg ReaderConfig) *Reader {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.Label == 0 {
		cfg.Label = commitment.DefaultLabel
	}
	return &Reader{
		backend: cfg.Backend,
		logger:  cfg.Logger.With("component", "ledger"),
		label:   cfg.Label,
	}
}

// ReadMetadata fetches the commitment anchored by txID. A transaction the
// indexer does not know yet is reported as LookupNotIndexed, one without a
// well formed commitment under the label as LookupNotFound. Errors are
// reserved for backend failures.
func (r *Reader) ReadMetadata(ctx context.Context, txID string) (Lookup, error) {
	ret := Lookup{TxID: txID}
	raw, err := r.backend.TxMetadata(ctx, txID)
	if err != nil {
		if errors.Is(err, ErrNotIndexed) {
			ret.Status = LookupNotIndexed
			return ret, nil
		}
		return ret, fmt.Errorf("read metadata of %s: %w", txID, err)
	}
	cm, err := commitment.Normalize(raw, r.label)
	if err != nil {
		if !errors.Is(err, commitment.ErrNoCommitment) {
			r.logger.Debug(
				"ignoring malformed commitment",
				"tx_id", txID,
				"error", err,
			)
		}
		ret.Status = LookupNotFound
		return ret, nil
	}
	ret.Status = LookupFound
	ret.Commitment = cm
	return ret, nil
}

// Exists reports whether txID is indexed or waiting in the mempool
func (r *Reader) Exists(ctx context.Context, txID string) (bool, error) {
	return r.backend.TxExists(ctx, txID)
}

// WaitIndexed polls until the indexer knows txID or ctx is done
func (r *Reader) WaitIndexed(
	ctx context.Context,
	txID string,
	interval time.Duration,
) (Lookup, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		lookup, err := r.ReadMetadata(ctx, txID)
		if err != nil {
			return lookup, err
		}
		if lookup.Status != LookupNotIndexed {
			return lookup, nil
		}
		r.logger.Debug("waiting for transaction to be indexed", "tx_id", txID)
		select {
		case <-ctx.Done():
			return lookup, ctx.Err()
		case <-ticker.C:
		}
	}
}
