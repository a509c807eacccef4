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
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"connectrpc.com/connect"
	submit "github.com/utxorpc/go-codegen/utxorpc/v1alpha/submit"
	"github.com/utxorpc/go-codegen/utxorpc/v1alpha/submit/submitconnect"
)

const DefaultSubmitTimeout = 30 * time.Second

// UtxorpcSubmitter submits transactions through the UTxO RPC SubmitService
// of a node
type UtxorpcSubmitter struct {
	client submitconnect.SubmitServiceClient
}

// NewUtxorpcSubmitter connects to the SubmitService at url. A nil
// httpClient uses a client with DefaultSubmitTimeout.
func NewUtxorpcSubmitter(url string, httpClient *http.Client) *UtxorpcSubmitter {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultSubmitTimeout}
	}
	return &UtxorpcSubmitter{
		client: submitconnect.NewSubmitServiceClient(
			httpClient,
			strings.TrimSuffix(url, "/"),
		),
	}
}

func (s *UtxorpcSubmitter) SubmitTx(ctx context.Context, tx []byte) (string, error) {
	resp, err := s.client.SubmitTx(
		ctx,
		connect.NewRequest(&submit.SubmitTxRequest{
			Tx: []*submit.AnyChainTx{
				{
					Type: &submit.AnyChainTx_Raw{Raw: tx},
				},
			},
		}),
	)
	if err != nil {
		return "", classifyConnectError(err)
	}
	refs := resp.Msg.GetRef()
	if len(refs) == 0 || len(refs[0]) == 0 {
		return "", fmt.Errorf("%w: empty transaction reference", ErrTxRejected)
	}
	return hex.EncodeToString(refs[0]), nil
}

func classifyConnectError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "already known") ||
		strings.Contains(msg, "already in mempool") ||
		strings.Contains(msg, "already exists") {
		return fmt.Errorf("%w: %w", ErrTxAlreadyKnown, err)
	}
	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		switch connectErr.Code() {
		case connect.CodeUnavailable,
			connect.CodeDeadlineExceeded,
			connect.CodeResourceExhausted,
			connect.CodeAborted,
			connect.CodeInternal:
			return fmt.Errorf("%w: %w", ErrTransient, err)
		}
		return fmt.Errorf("%w: %w", ErrTxRejected, err)
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}
