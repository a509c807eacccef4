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
	"slices"
	"sync"
	"time"

	lcommon "github.com/blinklabs-io/gouroboros/ledger/common"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// 1 ADA
	DefaultSelfPaymentAmount uint64 = 1_000_000
	DefaultMinChangeAmount   uint64 = 1_000_000
	// Extra lovelace gathered on top of the self payment to cover the fee
	DefaultFeeAllowance uint64 = 2_000_000
	// About two hours on a network with one second slots
	DefaultTTLSlots uint64 = 7200

	maxFeePasses = 3
)

// AccountSigner is the payment key of an Account
type AccountSigner interface {
	Signer
	Address(networkID uint8) (lcommon.Address, error)
}

type AccountConfig struct {
	Logger            *slog.Logger
	PromRegistry      prometheus.Registerer
	Signer            AccountSigner
	Backend           Backend
	Retry             RetryPolicy
	NetworkID         uint8
	SelfPaymentAmount uint64
	MinChangeAmount   uint64
	FeeAllowance      uint64
	TTLSlots          uint64
	// PendingTimeout bounds how long inputs of an unindexed submission stay
	// reserved. Defaults to TTLSlots seconds.
	PendingTimeout time.Duration
}

type pendingSpend struct {
	submittedAt time.Time
	txID        string
}

// Account is the operating account that funds commitments. It serializes
// coin selection, signing and submission, and keeps the inputs of recent
// submissions reserved until the indexer reports them spent, so concurrent
// commits never reuse an output.
type Account struct {
	config  AccountConfig
	logger  *slog.Logger
	address lcommon.Address
	mu      sync.Mutex
	pending map[string]pendingSpend
	metrics *accountMetrics
	now     func() time.Time
}

func NewAccount(cfg AccountConfig) (*Account, error) {
	if cfg.Signer == nil {
		return nil, errors.New("account signer is required")
	}
	if cfg.Backend == nil {
		return nil, errors.New("account backend is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.SelfPaymentAmount == 0 {
		cfg.SelfPaymentAmount = DefaultSelfPaymentAmount
	}
	if cfg.MinChangeAmount == 0 {
		cfg.MinChangeAmount = DefaultMinChangeAmount
	}
	if cfg.FeeAllowance == 0 {
		cfg.FeeAllowance = DefaultFeeAllowance
	}
	if cfg.TTLSlots == 0 {
		cfg.TTLSlots = DefaultTTLSlots
	}
	if cfg.PendingTimeout == 0 {
		cfg.PendingTimeout = time.Duration(cfg.TTLSlots) * time.Second //nolint:gosec
	}
	cfg.Retry = cfg.Retry.withDefaults()
	addr, err := cfg.Signer.Address(cfg.NetworkID)
	if err != nil {
		return nil, fmt.Errorf("derive account address: %w", err)
	}
	a := &Account{
		config:  cfg,
		logger:  cfg.Logger.With("component", "ledger"),
		address: addr,
		pending: make(map[string]pendingSpend),
		now:     time.Now,
	}
	if cfg.PromRegistry != nil {
		a.metrics = newAccountMetrics(cfg.PromRegistry)
	}
	return a, nil
}

// Address returns the bech32 address of the account
func (a *Account) Address() string {
	return a.address.String()
}

// Balance returns the lovelace held by the account
func (a *Account) Balance(ctx context.Context) (uint64, error) {
	return a.config.Backend.Balance(ctx, a.Address())
}

// PendingInputs returns the number of inputs reserved by submissions the
// indexer has not caught up with
func (a *Account) PendingInputs() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// SubmitAuxData builds, signs and submits a transaction carrying auxData
// and paying SelfPaymentAmount back to the account. It returns the id of
// the accepted transaction. Once a transaction is signed its id is returned
// with any submission error, and the inputs stay reserved when the error
// wraps ErrSubmissionUnconfirmed.
func (a *Account) SubmitAuxData(
	ctx context.Context,
	auxData []byte,
) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	utxos, err := a.config.Backend.Utxos(ctx, a.Address())
	if err != nil {
		return "", fmt.Errorf("query utxos: %w", err)
	}
	a.prunePending(utxos)
	params, err := a.config.Backend.ProtocolParams(ctx)
	if err != nil {
		return "", fmt.Errorf("query protocol params: %w", err)
	}
	slot, err := a.config.Backend.LatestSlot(ctx)
	if err != nil {
		return "", fmt.Errorf("query latest slot: %w", err)
	}
	inputs, total, err := a.selectInputs(utxos)
	if err != nil {
		return "", err
	}
	tx, err := a.build(params, inputs, total, slot+a.config.TTLSlots, auxData)
	if err != nil {
		return "", err
	}
	a.logger.Debug(
		"submitting transaction",
		"tx_id", tx.id,
		"inputs", len(inputs),
		"outputs", tx.outputs,
		"fee", tx.fee,
		"size", len(tx.bytes),
	)
	if err := a.submit(ctx, tx); err != nil {
		if errors.Is(err, ErrSubmissionUnconfirmed) {
			a.logger.Warn(
				"submission outcome unknown, keeping inputs reserved",
				"tx_id", tx.id,
				"inputs", len(inputs),
			)
			a.reserve(inputs, tx.id)
		}
		return tx.id, err
	}
	a.reserve(inputs, tx.id)
	return tx.id, nil
}

func (a *Account) reserve(inputs []Utxo, txID string) {
	submittedAt := a.now()
	for _, utxo := range inputs {
		a.pending[utxo.ID()] = pendingSpend{
			txID:        txID,
			submittedAt: submittedAt,
		}
	}
	a.metrics.setPending(len(a.pending))
}

// prunePending releases reserved inputs that are no longer unspent, which
// means the spending transaction was indexed, and reservations older than
// the pending timeout
func (a *Account) prunePending(utxos []Utxo) {
	unspent := make(map[string]struct{}, len(utxos))
	for _, utxo := range utxos {
		unspent[utxo.ID()] = struct{}{}
	}
	cutoff := a.now().Add(-a.config.PendingTimeout)
	for id, spend := range a.pending {
		if _, ok := unspent[id]; !ok || spend.submittedAt.Before(cutoff) {
			delete(a.pending, id)
		}
	}
	a.metrics.setPending(len(a.pending))
}

// selectInputs picks the largest ada-only outputs first until the self
// payment and the fee allowance are covered
func (a *Account) selectInputs(utxos []Utxo) ([]Utxo, uint64, error) {
	candidates := make([]Utxo, 0, len(utxos))
	for _, utxo := range utxos {
		if utxo.HasAssets {
			continue
		}
		if _, ok := a.pending[utxo.ID()]; ok {
			continue
		}
		candidates = append(candidates, utxo)
	}
	slices.SortFunc(candidates, func(x, y Utxo) int {
		if x.Amount != y.Amount {
			if x.Amount > y.Amount {
				return -1
			}
			return 1
		}
		return compareIDs(x, y)
	})
	target := a.config.SelfPaymentAmount + a.config.FeeAllowance
	var selected []Utxo
	var total uint64
	for _, utxo := range candidates {
		if total >= target {
			break
		}
		selected = append(selected, utxo)
		total += utxo.Amount
	}
	if total <= a.config.SelfPaymentAmount {
		return nil, 0, fmt.Errorf(
			"%w: %d lovelace spendable at %s",
			ErrInsufficientFunds,
			total,
			a.Address(),
		)
	}
	return selected, total, nil
}

func compareIDs(x, y Utxo) int {
	if x.TxID != y.TxID {
		if x.TxID < y.TxID {
			return -1
		}
		return 1
	}
	return int(x.Index) - int(y.Index)
}

// build runs the fee loop: the fee of each pass is the minimum fee of the
// previous pass' size, until the transaction pays enough for itself
func (a *Account) build(
	params *ProtocolParams,
	inputs []Utxo,
	total uint64,
	ttl uint64,
	auxData []byte,
) (*signedTx, error) {
	fee := params.MinFeeB
	for range maxFeePasses {
		outputs, actualFee, err := a.outputs(total, fee)
		if err != nil {
			return nil, err
		}
		tx, err := buildSignedTx(
			inputs,
			outputs,
			actualFee,
			ttl,
			auxData,
			a.config.Signer,
		)
		if err != nil {
			return nil, err
		}
		size := uint64(len(tx.bytes))
		if params.MaxTxSize > 0 && size > params.MaxTxSize {
			return nil, fmt.Errorf(
				"transaction size %d exceeds maximum %d",
				size,
				params.MaxTxSize,
			)
		}
		required := params.MinFeeA*size + params.MinFeeB
		if actualFee >= required {
			return tx, nil
		}
		fee = required
	}
	return nil, fmt.Errorf("fee did not settle after %d passes", maxFeePasses)
}

// outputs returns the self payment, the change output when it is worth
// keeping, and the fee including any change too small to keep
func (a *Account) outputs(total, fee uint64) ([]txOutput, uint64, error) {
	spend := a.config.SelfPaymentAmount + fee
	if total < spend {
		return nil, 0, fmt.Errorf(
			"%w: need %d lovelace, selected %d",
			ErrInsufficientFunds,
			spend,
			total,
		)
	}
	outputs := []txOutput{
		{Address: a.address, Amount: a.config.SelfPaymentAmount},
	}
	change := total - spend
	if change >= a.config.MinChangeAmount {
		outputs = append(
			outputs,
			txOutput{Address: a.address, Amount: change},
		)
	} else {
		fee += change
	}
	return outputs, fee, nil
}
