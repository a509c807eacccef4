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
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultMaxRetries      uint64 = 5
	DefaultInitialInterval        = time.Second
	DefaultMaxInterval            = 30 * time.Second
)

// RetryPolicy bounds resubmission of a signed transaction after transient
// failures. Only errors matching ErrTransient are retried, and always with
// the same bytes, so a retry can never create a second transaction.
type RetryPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// Disabled turns off retries entirely
	Disabled bool
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxRetries == 0 {
		p.MaxRetries = DefaultMaxRetries
	}
	if p.InitialInterval == 0 {
		p.InitialInterval = DefaultInitialInterval
	}
	if p.MaxInterval == 0 {
		p.MaxInterval = DefaultMaxInterval
	}
	return p
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	if p.Disabled {
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}
	expBackOff := backoff.NewExponentialBackOff()
	expBackOff.InitialInterval = p.InitialInterval
	expBackOff.MaxInterval = p.MaxInterval
	expBackOff.MaxElapsedTime = 0
	return backoff.WithContext(
		backoff.WithMaxRetries(expBackOff, p.MaxRetries),
		ctx,
	)
}

// submit sends tx, retrying transient failures. A node reporting the
// transaction as already known has accepted it. A failure after any
// transient error wraps ErrSubmissionUnconfirmed.
func (a *Account) submit(ctx context.Context, tx *signedTx) error {
	attempt := 0
	transient := false
	operation := func() error {
		attempt++
		txID, err := a.config.Backend.SubmitTx(ctx, tx.bytes)
		if err == nil {
			if txID != "" && txID != tx.id {
				a.logger.Warn(
					"submitted transaction id differs from computed id",
					"tx_id", tx.id,
					"reported_tx_id", txID,
				)
			}
			return nil
		}
		if errors.Is(err, ErrTxAlreadyKnown) {
			a.logger.Info(
				"transaction already known to the node",
				"tx_id", tx.id,
			)
			return nil
		}
		if IsTransient(err) {
			transient = true
			return err
		}
		return backoff.Permanent(err)
	}
	notify := func(err error, wait time.Duration) {
		a.metrics.incRetries()
		a.logger.Warn(
			"transient submission failure, retrying",
			"tx_id", tx.id,
			"attempt", attempt,
			"wait", wait,
			"error", err,
		)
	}
	if err := backoff.RetryNotify(
		operation,
		a.config.Retry.backOff(ctx),
		notify,
	); err != nil {
		if transient {
			return fmt.Errorf(
				"submit transaction %s: %w: %w",
				tx.id,
				ErrSubmissionUnconfirmed,
				err,
			)
		}
		return fmt.Errorf("submit transaction %s: %w", tx.id, err)
	}
	return nil
}
