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
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/blinklabs-io/diploma/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAddress = "addr_test1vq"

type fakeIndexer struct {
	mu         sync.Mutex
	utxos      []UtxoResponse
	metadata   map[string][]TxMetadataResponse
	mempool    map[string]bool
	submitCode int
	submitMsg  string
	submitted  [][]byte
	projectIDs []string
}

func (f *fakeIndexer) snapshot() ([][]byte, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.submitted...), append([]string(nil), f.projectIDs...)
}

func newFakeIndexer(t *testing.T, f *fakeIndexer) *Client {
	t.Helper()
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
	notFound := func(w http.ResponseWriter) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{
			StatusCode: 404,
			Error:      "Not Found",
			Message:    "The requested component has not been found.",
		})
	}
	mux.HandleFunc("GET /api/v0/addresses/{address}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.projectIDs = append(f.projectIDs, r.Header.Get("project_id"))
		f.mu.Unlock()
		if r.PathValue("address") != testAddress {
			notFound(w)
			return
		}
		writeJSON(w, http.StatusOK, AddressResponse{
			Address: testAddress,
			Amount: []AmountResponse{
				{Unit: "lovelace", Quantity: "42000000"},
				{Unit: "abcd", Quantity: "1"},
			},
		})
	})
	mux.HandleFunc("GET /api/v0/addresses/{address}/utxos", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("address") != testAddress {
			notFound(w)
			return
		}
		params, err := ParsePagination(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{StatusCode: 400})
			return
		}
		start := (params.Page - 1) * params.Count
		end := min(start+params.Count, len(f.utxos))
		if start > len(f.utxos) {
			start = len(f.utxos)
		}
		SetPaginationHeaders(w, len(f.utxos), params)
		writeJSON(w, http.StatusOK, f.utxos[start:end])
	})
	mux.HandleFunc("GET /api/v0/epochs/latest/parameters", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, ProtocolParamsResponse{
			Epoch:     500,
			MinFeeA:   44,
			MinFeeB:   155381,
			MaxTxSize: 16384,
		})
	})
	mux.HandleFunc("GET /api/v0/blocks/latest", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, BlockResponse{Slot: 123456, Height: 99})
	})
	mux.HandleFunc("GET /api/v0/txs/{hash}", func(w http.ResponseWriter, r *http.Request) {
		if _, ok := f.metadata[r.PathValue("hash")]; !ok {
			notFound(w)
			return
		}
		writeJSON(w, http.StatusOK, TxResponse{Hash: r.PathValue("hash")})
	})
	mux.HandleFunc("GET /api/v0/txs/{hash}/metadata", func(w http.ResponseWriter, r *http.Request) {
		md, ok := f.metadata[r.PathValue("hash")]
		if !ok {
			notFound(w)
			return
		}
		writeJSON(w, http.StatusOK, md)
	})
	mux.HandleFunc("GET /api/v0/mempool/{hash}", func(w http.ResponseWriter, r *http.Request) {
		if !f.mempool[r.PathValue("hash")] {
			notFound(w)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tx": map[string]string{"hash": r.PathValue("hash")}})
	})
	mux.HandleFunc("POST /api/v0/tx/submit", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.submitted = append(f.submitted, body)
		code, msg := f.submitCode, f.submitMsg
		f.mu.Unlock()
		if r.Header.Get("Content-Type") != "application/cbor" {
			writeJSON(w, http.StatusUnsupportedMediaType, ErrorResponse{StatusCode: 415})
			return
		}
		if code != 0 {
			writeJSON(w, code, ErrorResponse{
				StatusCode: code,
				Error:      http.StatusText(code),
				Message:    msg,
			})
			return
		}
		writeJSON(w, http.StatusOK, fmt.Sprintf("%x", body))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	client, err := New(Config{BaseURL: server.URL + "/api/v0/", ProjectID: "preprodTest"})
	require.NoError(t, err)
	return client
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestBackendBalance(t *testing.T) {
	f := &fakeIndexer{}
	backend := NewBackend(newFakeIndexer(t, f))
	balance, err := backend.Balance(context.Background(), testAddress)
	require.NoError(t, err)
	assert.Equal(t, uint64(42_000_000), balance)
	_, projectIDs := f.snapshot()
	assert.Equal(t, []string{"preprodTest"}, projectIDs)

	balance, err = backend.Balance(context.Background(), "addr_test1unused")
	require.NoError(t, err)
	assert.Zero(t, balance)
}

func TestBackendUtxosPaged(t *testing.T) {
	f := &fakeIndexer{}
	for i := range 150 {
		u := UtxoResponse{
			TxHash:      fmt.Sprintf("%064x", i),
			OutputIndex: uint32(i % 3), //nolint:gosec
			Amount:      []AmountResponse{{Unit: "lovelace", Quantity: "2000000"}},
		}
		if i == 7 {
			u.Amount = append(u.Amount, AmountResponse{Unit: "abcd", Quantity: "5"})
		}
		f.utxos = append(f.utxos, u)
	}
	backend := NewBackend(newFakeIndexer(t, f))
	utxos, err := backend.Utxos(context.Background(), testAddress)
	require.NoError(t, err)
	require.Len(t, utxos, 150)
	assert.Equal(t, uint64(2_000_000), utxos[0].Amount)
	assert.True(t, utxos[7].HasAssets)
	assert.False(t, utxos[8].HasAssets)

	utxos, err = backend.Utxos(context.Background(), "addr_test1unused")
	require.NoError(t, err)
	assert.Empty(t, utxos)
}

func TestBackendParamsAndSlot(t *testing.T) {
	backend := NewBackend(newFakeIndexer(t, &fakeIndexer{}))
	params, err := backend.ProtocolParams(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ledger.ProtocolParams{MinFeeA: 44, MinFeeB: 155381, MaxTxSize: 16384}, *params)
	slot, err := backend.LatestSlot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(123456), slot)
}

func TestBackendSubmit(t *testing.T) {
	testDefs := []struct {
		name    string
		code    int
		msg     string
		wantErr error
	}{
		{name: "accepted"},
		{name: "rejected", code: 400, msg: "BadInputsUTxO", wantErr: ledger.ErrTxRejected},
		{name: "overloaded", code: 503, wantErr: ledger.ErrTransient},
		{name: "rate limited", code: 429, wantErr: ledger.ErrTransient},
		{
			name:    "already known",
			code:    400,
			msg:     "transaction already in mempool",
			wantErr: ledger.ErrTxAlreadyKnown,
		},
	}
	for _, td := range testDefs {
		t.Run(td.name, func(t *testing.T) {
			f := &fakeIndexer{submitCode: td.code, submitMsg: td.msg}
			backend := NewBackend(newFakeIndexer(t, f))
			txID, err := backend.SubmitTx(context.Background(), []byte{0xca, 0xfe})
			if td.wantErr != nil {
				require.ErrorIs(t, err, td.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "cafe", txID)
			submitted, _ := f.snapshot()
			assert.Equal(t, [][]byte{{0xca, 0xfe}}, submitted)
		})
	}
}

func TestBackendSubmitUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()
	client, err := New(Config{BaseURL: server.URL})
	require.NoError(t, err)
	_, err = NewBackend(client).SubmitTx(context.Background(), []byte{1})
	assert.ErrorIs(t, err, ledger.ErrTransient)
}

func TestBackendTxMetadata(t *testing.T) {
	f := &fakeIndexer{
		metadata: map[string][]TxMetadataResponse{
			"tx1": {
				{Label: "1694", JSONMetadata: json.RawMessage(`{"type":"certificate-batch-hashes"}`)},
			},
			"tx2": {},
		},
		mempool: map[string]bool{"tx3": true},
	}
	backend := NewBackend(newFakeIndexer(t, f))
	ctx := context.Background()

	raw, err := backend.TxMetadata(ctx, "tx1")
	require.NoError(t, err)
	assert.JSONEq(
		t,
		`[{"label":"1694","json_metadata":{"type":"certificate-batch-hashes"}}]`,
		string(raw),
	)
	raw, err = backend.TxMetadata(ctx, "tx2")
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw))
	_, err = backend.TxMetadata(ctx, "tx3")
	assert.ErrorIs(t, err, ledger.ErrNotIndexed)

	for txID, want := range map[string]bool{"tx1": true, "tx3": true, "tx4": false} {
		ok, err := backend.TxExists(ctx, txID)
		require.NoError(t, err)
		assert.Equal(t, want, ok, txID)
	}
}

func TestAPIError(t *testing.T) {
	err := &APIError{StatusCode: 404, Name: "Not Found"}
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, err.Temporary())
	assert.Equal(t, "blockfrost: HTTP 404 Not Found", err.Error())
	assert.True(t, (&APIError{StatusCode: 502}).Temporary())
}

func TestUserAgent(t *testing.T) {
	agents := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agents <- r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(AddressResponse{Address: testAddress})
	}))
	defer server.Close()
	client, err := New(Config{BaseURL: server.URL, UserAgent: "diploma/v1.2.3"})
	require.NoError(t, err)
	_, err = client.Address(context.Background(), testAddress)
	require.NoError(t, err)
	assert.Equal(t, "diploma/v1.2.3", <-agents)
}
