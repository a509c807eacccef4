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

// Package ledger anchors certificate commitments in ledger transaction
// metadata and reads them back.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrInsufficientFunds is returned when the operating account cannot pay
	// for a commitment. Nothing is built or submitted.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrCommitFailed matches every *CommitError
	ErrCommitFailed = errors.New("ledger commit failed")
	// ErrNotIndexed is returned by a Backend for transactions the indexer
	// does not know (yet)
	ErrNotIndexed = errors.New("transaction not indexed")
	// ErrTransient marks backend failures worth retrying, such as network
	// errors and overloaded servers
	ErrTransient = errors.New("transient ledger backend error")
	// ErrTxAlreadyKnown is returned on submission of a transaction the node
	// already holds. It counts as accepted.
	ErrTxAlreadyKnown = errors.New("transaction already known")
	// ErrTxRejected is returned when the node refuses a transaction
	ErrTxRejected = errors.New("transaction rejected")
	// ErrSubmissionUnconfirmed marks a failed submission that saw transient
	// errors along the way. The ledger may still have accepted the
	// transaction, so its id must be reconciled before committing again.
	ErrSubmissionUnconfirmed = errors.New("submission outcome unknown")
)

// Utxo is an unspent output of the operating address
type Utxo struct {
	TxID   string
	Index  uint32
	Amount uint64
	// HasAssets is set for outputs carrying native assets. They are never
	// selected as inputs.
	HasAssets bool
}

// ID returns the output reference in "txid#index" form
func (u Utxo) ID() string {
	return fmt.Sprintf("%s#%d", u.TxID, u.Index)
}

// ProtocolParams holds the protocol parameters needed to build a
// transaction
type ProtocolParams struct {
	MinFeeA   uint64
	MinFeeB   uint64
	MaxTxSize uint64
}

// Submitter sends signed transactions to the network and returns the id of
// the accepted transaction
type Submitter interface {
	SubmitTx(ctx context.Context, tx []byte) (string, error)
}

// Backend is the view of a ledger node and indexer used by the committer
// and the reader
type Backend interface {
	Submitter
	Balance(ctx context.Context, address string) (uint64, error)
	Utxos(ctx context.Context, address string) ([]Utxo, error)
	ProtocolParams(ctx context.Context) (*ProtocolParams, error)
	LatestSlot(ctx context.Context) (uint64, error)
	// TxMetadata returns the metadata of an indexed transaction as served by
	// the indexer, or ErrNotIndexed
	TxMetadata(ctx context.Context, txID string) (json.RawMessage, error)
	// TxExists reports whether a transaction is indexed or still waiting in
	// the mempool
	TxExists(ctx context.Context, txID string) (bool, error)
}

// SplitBackend reads from one backend and submits through another, for
// example an indexer for reads and a local node for submission
type SplitBackend struct {
	Backend
	submitter Submitter
}

func NewSplitBackend(reader Backend, submitter Submitter) *SplitBackend {
	return &SplitBackend{
		Backend:   reader,
		submitter: submitter,
	}
}

func (b *SplitBackend) SubmitTx(ctx context.Context, tx []byte) (string, error) {
	return b.submitter.SubmitTx(ctx, tx)
}

// CommitError describes a commitment that failed after the funds check.
// errors.Is(err, ErrCommitFailed) holds for every CommitError.
type CommitError struct {
	Err     error
	BatchID string
	Stage   string
	TxID    string
}

func (e *CommitError) Error() string {
	msg := fmt.Sprintf(
		"commit batch %s failed at %s: %v",
		e.BatchID,
		e.Stage,
		e.Err,
	)
	if e.TxID != "" {
		msg += " (tx " + e.TxID + ")"
	}
	return msg
}

func (e *CommitError) Unwrap() []error {
	return []error{ErrCommitFailed, e.Err}
}

// IsTransient reports whether err is worth retrying
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, ErrTransient)
}
