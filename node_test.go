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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/diploma/database/models"
	"github.com/blinklabs-io/diploma/keystore"
	"github.com/blinklabs-io/diploma/ledger"
	"github.com/blinklabs-io/diploma/verification"
)

// memBackend funds the operating account with one output and never
// indexes anything
type memBackend struct {
	mu        sync.Mutex
	submitted [][]byte
}

func (b *memBackend) Balance(context.Context, string) (uint64, error) {
	return 100_000_000, nil
}

func (b *memBackend) Utxos(context.Context, string) ([]ledger.Utxo, error) {
	return []ledger.Utxo{
		{TxID: fmt.Sprintf("%064x", 1), Index: 0, Amount: 100_000_000},
	}, nil
}

func (b *memBackend) ProtocolParams(context.Context) (*ledger.ProtocolParams, error) {
	return &ledger.ProtocolParams{MinFeeA: 44, MinFeeB: 155381, MaxTxSize: 16384}, nil
}

func (b *memBackend) LatestSlot(context.Context) (uint64, error) {
	return 1000, nil
}

func (b *memBackend) SubmitTx(_ context.Context, tx []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submitted = append(b.submitted, tx)
	return "", nil
}

func (b *memBackend) TxMetadata(context.Context, string) (json.RawMessage, error) {
	return nil, ledger.ErrNotIndexed
}

func (b *memBackend) TxExists(context.Context, string) (bool, error) {
	return false, nil
}

func (b *memBackend) submissions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.submitted)
}

func TestNodeIssueAndVerify(t *testing.T) {
	backend := &memBackend{}
	key, err := keystore.NewPaymentKey(bytes.Repeat([]byte{3}, 32))
	require.NoError(t, err)
	n, err := New(NewConfig(
		WithLedgerBackend(backend),
		WithSigner(key),
		WithIssuer("Example University", "Ministry of Education"),
		WithPrometheusRegistry(prometheus.NewRegistry()),
	))
	require.NoError(t, err)
	require.NoError(t, n.Open())
	// Opening twice keeps the components already built
	db := n.Database()
	require.NoError(t, n.Open())
	assert.Same(t, db, n.Database())
	defer func() { assert.NoError(t, n.Stop()) }()

	ctx := context.Background()
	require.NoError(t, db.CreateBatch(
		ctx,
		&models.Batch{
			BatchID:          "B1",
			BatchName:        "Spring graduation",
			AcademicYear:     "2025/2026",
			Semester:         "2",
			Faculty:          "Science",
			CertificateCount: 1,
		},
		[]models.Student{
			{
				StudentID:      "S1",
				Name:           "Ada Lovelace",
				Course:         "Mathematics",
				GPA:            4.0,
				Institution:    "Example University",
				GraduationDate: time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC),
			},
		},
	))

	require.NotNil(t, n.Pipeline())
	res, err := n.Pipeline().Issue(ctx, "B1")
	require.NoError(t, err)
	assert.Len(t, res.TxID, 64)
	assert.Equal(t, models.BatchStatusCompleted, res.Status)
	require.Len(t, res.Certificates, 1)
	assert.Equal(t, 1, backend.submissions())

	// The indexer has not seen the transaction yet
	vres := n.Verifier().Verify(ctx, res.Certificates[0].DocumentHash)
	assert.False(t, vres.IsValid)
	assert.True(t, vres.DatabaseCheck)
	assert.Equal(t, verification.ReasonNotIndexed, vres.Reason)

	lookup, err := n.Reader().ReadMetadata(ctx, res.TxID)
	require.NoError(t, err)
	assert.Equal(t, ledger.LookupNotIndexed, lookup.Status)
}

func TestNodeVerifyOnly(t *testing.T) {
	n, err := New(NewConfig(WithLedgerBackend(&memBackend{})))
	require.NoError(t, err)
	require.NoError(t, n.Open())
	assert.Nil(t, n.Pipeline())
	assert.NotNil(t, n.Verifier())
	assert.NotNil(t, n.EventBus())
	require.NoError(t, n.Stop())
	// Stop only runs once
	require.NoError(t, n.Stop())
}

func TestNodeMissingSigningKey(t *testing.T) {
	n, err := New(NewConfig(
		WithLedgerBackend(&memBackend{}),
		WithSigningKeyFile(t.TempDir()+"/missing.skey"),
		WithIssuer("Example University", "Ministry of Education"),
	))
	require.NoError(t, err)
	err = n.Open()
	require.ErrorContains(t, err, "failed to load signing key")
	require.NoError(t, n.Stop())
}
