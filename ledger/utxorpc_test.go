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
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	submit "github.com/utxorpc/go-codegen/utxorpc/v1alpha/submit"
	"github.com/utxorpc/go-codegen/utxorpc/v1alpha/submit/submitconnect"
)

type testSubmitService struct {
	submitconnect.UnimplementedSubmitServiceHandler
	err  error
	txs  [][]byte
	refs [][]byte
}

func (s *testSubmitService) SubmitTx(
	_ context.Context,
	req *connect.Request[submit.SubmitTxRequest],
) (*connect.Response[submit.SubmitTxResponse], error) {
	for _, tx := range req.Msg.GetTx() {
		s.txs = append(s.txs, tx.GetRaw())
	}
	if s.err != nil {
		return nil, s.err
	}
	return connect.NewResponse(&submit.SubmitTxResponse{Ref: s.refs}), nil
}

func newTestSubmitServer(t *testing.T, svc *testSubmitService) string {
	t.Helper()
	mux := http.NewServeMux()
	path, handler := submitconnect.NewSubmitServiceHandler(svc)
	mux.Handle(path, handler)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server.URL
}

func TestUtxorpcSubmitter(t *testing.T) {
	ref := bytes.Repeat([]byte{0xab}, 32)
	svc := &testSubmitService{refs: [][]byte{ref}}
	submitter := NewUtxorpcSubmitter(newTestSubmitServer(t, svc), nil)
	txID, err := submitter.SubmitTx(context.Background(), []byte{0x84, 0x01})
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(ref), txID)
	require.Len(t, svc.txs, 1)
	assert.Equal(t, []byte{0x84, 0x01}, svc.txs[0])
}

func TestUtxorpcSubmitterErrors(t *testing.T) {
	testDefs := []struct {
		name    string
		err     error
		refs    [][]byte
		wantErr error
	}{
		{
			name:    "rejected",
			err:     connect.NewError(connect.CodeInvalidArgument, errors.New("bad tx")),
			wantErr: ErrTxRejected,
		},
		{
			name:    "unavailable",
			err:     connect.NewError(connect.CodeUnavailable, errors.New("syncing")),
			wantErr: ErrTransient,
		},
		{
			name: "already known",
			err: connect.NewError(
				connect.CodeAlreadyExists,
				errors.New("transaction already in mempool"),
			),
			wantErr: ErrTxAlreadyKnown,
		},
		{
			name:    "empty ref",
			wantErr: ErrTxRejected,
		},
	}
	for _, td := range testDefs {
		t.Run(td.name, func(t *testing.T) {
			svc := &testSubmitService{err: td.err, refs: td.refs}
			submitter := NewUtxorpcSubmitter(newTestSubmitServer(t, svc), nil)
			_, err := submitter.SubmitTx(context.Background(), []byte{0x80})
			assert.ErrorIs(t, err, td.wantErr)
		})
	}
}
