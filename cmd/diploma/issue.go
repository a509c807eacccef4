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


package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/blinklabs-io/diploma/internal/config"
	"github.com/blinklabs-io/diploma/internal/node"
	"github.com/blinklabs-io/diploma/ledger"
	"github.com/spf13/cobra"
)

var issueFlags = struct {
	wait         bool
	waitTimeout  time.Duration
	waitInterval time.Duration
}{}

func writeResult(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func issueRun(cmd *cobra.Command, batchID string, cfg *config.Config) error {
	logger := commonRun()
	n, err := node.New(cfg, logger)
	if err != nil {
		return err
	}
	if err := n.Open(); err != nil {
		return err
	}
	defer func() {
		if err := n.Stop(); err != nil {
			logger.Error("failed to stop node", "error", err)
		}
	}()
	pipeline := n.Pipeline()
	if pipeline == nil {
		return errors.New("issuance requires a signing key, issuer and authority")
	}
	result, issueErr := pipeline.Issue(cmd.Context(), batchID)
	if result != nil {
		if err := writeResult(cmd.OutOrStdout(), result); err != nil {
			return err
		}
	}
	if issueErr != nil {
		return issueErr
	}
	if !issueFlags.wait || result.TxID == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), issueFlags.waitTimeout)
	defer cancel()
	lookup, err := n.Reader().WaitIndexed(ctx, result.TxID, issueFlags.waitInterval)
	if err != nil {
		return fmt.Errorf("waiting for transaction %s: %w", result.TxID, err)
	}
	if lookup.Status != ledger.LookupFound {
		return fmt.Errorf(
			"transaction %s indexed without commitment: %s",
			result.TxID,
			lookup.Status,
		)
	}
	logger.Info(
		"transaction indexed",
		"component", programName,
		"tx_id", result.TxID,
		"batch_id", batchID,
	)
	return nil
}

func issueCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "issue <batch-id>",
		Short: "Issue the certificates of a pending batch",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := issueRun(cmd, args[0], configFromContext(cmd)); err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}
		},
	}
	cmd.Flags().
		BoolVar(&issueFlags.wait, "wait", false, "wait for the transaction to be indexed")
	cmd.Flags().
		DurationVar(&issueFlags.waitTimeout, "wait-timeout", 10*time.Minute, "maximum time to wait for indexing")
	cmd.Flags().
		DurationVar(&issueFlags.waitInterval, "wait-interval", ledger.DefaultPollInterval, "indexer poll interval")
	return cmd
}
