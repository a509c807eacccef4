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

package blockfrost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/blinklabs-io/diploma/ledger"
)

const lovelaceUnit = "lovelace"

// Backend exposes a Client as a ledger.Backend
type Backend struct {
	client *Client
}

var _ ledger.Backend = (*Backend)(nil)

func NewBackend(client *Client) *Backend {
	return &Backend{client: client}
}

func (b *Backend) Client() *Client {
	return b.client
}

// Balance returns the lovelace held by address. Unknown addresses hold
// nothing.
func (b *Backend) Balance(ctx context.Context, address string) (uint64, error) {
	resp, err := b.client.Address(ctx, address)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, nil
		}
		return 0, classifyError(err)
	}
	return lovelace(resp.Amount)
}

func (b *Backend) Utxos(ctx context.Context, address string) ([]ledger.Utxo, error) {
	resp, err := b.client.AddressUtxos(ctx, address)
	if err != nil {
		return nil, classifyError(err)
	}
	ret := make([]ledger.Utxo, 0, len(resp))
	for _, u := range resp {
		amount, err := lovelace(u.Amount)
		if err != nil {
			return nil, fmt.Errorf("utxo %s#%d: %w", u.TxHash, u.OutputIndex, err)
		}
		ret = append(ret, ledger.Utxo{
			TxID:      u.TxHash,
			Index:     u.OutputIndex,
			Amount:    amount,
			HasAssets: hasAssets(u.Amount),
		})
	}
	return ret, nil
}

func (b *Backend) ProtocolParams(ctx context.Context) (*ledger.ProtocolParams, error) {
	resp, err := b.client.LatestParameters(ctx)
	if err != nil {
		return nil, classifyError(err)
	}
	return &ledger.ProtocolParams{
		MinFeeA:   resp.MinFeeA,
		MinFeeB:   resp.MinFeeB,
		MaxTxSize: resp.MaxTxSize,
	}, nil
}

func (b *Backend) LatestSlot(ctx context.Context) (uint64, error) {
	resp, err := b.client.LatestBlock(ctx)
	if err != nil {
		return 0, classifyError(err)
	}
	return resp.Slot, nil
}

func (b *Backend) SubmitTx(ctx context.Context, tx []byte) (string, error) {
	txID, err := b.client.SubmitTx(ctx, tx)
	if err != nil {
		return "", classifySubmitError(err)
	}
	return txID, nil
}

// TxMetadata returns the label list of an indexed transaction, or
// ledger.ErrNotIndexed
func (b *Backend) TxMetadata(ctx context.Context, txID string) (json.RawMessage, error) {
	resp, err := b.client.TxMetadata(ctx, txID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ledger.ErrNotIndexed
		}
		return nil, classifyError(err)
	}
	return json.Marshal(resp)
}

// TxExists checks the indexed transactions first, then the mempool
func (b *Backend) TxExists(ctx context.Context, txID string) (bool, error) {
	_, err := b.client.Tx(ctx, txID)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return false, classifyError(err)
	}
	ok, err := b.client.MempoolTx(ctx, txID)
	if err != nil {
		return false, classifyError(err)
	}
	return ok, nil
}

func lovelace(amounts []AmountResponse) (uint64, error) {
	for _, a := range amounts {
		if a.Unit != lovelaceUnit {
			continue
		}
		v, err := strconv.ParseUint(a.Quantity, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid lovelace quantity %q: %w", a.Quantity, err)
		}
		return v, nil
	}
	return 0, nil
}

func hasAssets(amounts []AmountResponse) bool {
	for _, a := range amounts {
		if a.Unit != lovelaceUnit {
			return true
		}
	}
	return false
}

// classifyError marks failures worth retrying with ledger.ErrTransient
func classifyError(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Temporary() {
			return fmt.Errorf("%w: %w", ledger.ErrTransient, err)
		}
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", ledger.ErrTransient, err)
	}
	return err
}

func classifySubmitError(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		msg := strings.ToLower(apiErr.Message)
		if strings.Contains(msg, "already known") ||
			strings.Contains(msg, "already in mempool") ||
			strings.Contains(msg, "alreadyknown") {
			return fmt.Errorf("%w: %w", ledger.ErrTxAlreadyKnown, err)
		}
		if apiErr.Temporary() {
			return fmt.Errorf("%w: %w", ledger.ErrTransient, err)
		}
		return fmt.Errorf("%w: %w", ledger.ErrTxRejected, err)
	}
	return classifyError(err)
}
