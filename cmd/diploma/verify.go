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
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/blinklabs-io/diploma/internal/config"
	"github.com/blinklabs-io/diploma/internal/node"
	"github.com/blinklabs-io/diploma/verification"
	"github.com/spf13/cobra"
)

var verifyFlags = struct {
	file          string
	certificateID string
}{}

func verifyRun(cmd *cobra.Command, args []string, cfg *config.Config) (verification.Result, error) {
	// Verification never signs or publishes
	verifyCfg := *cfg
	verifyCfg.SigningKeyFile = ""
	verifyCfg.AmqpUrl = ""
	verifyCfg.AutoIssue = false
	logger := commonRun()
	n, err := node.New(&verifyCfg, logger)
	if err != nil {
		return verification.Result{}, err
	}
	if err := n.Open(); err != nil {
		return verification.Result{}, err
	}
	defer func() {
		if err := n.Stop(); err != nil {
			logger.Error("failed to stop node", "error", err)
		}
	}()
	ctx := cmd.Context()
	switch {
	case verifyFlags.file != "":
		data, err := os.ReadFile(verifyFlags.file)
		if err != nil {
			return verification.Result{}, err
		}
		return n.Verifier().VerifyDocument(ctx, data), nil
	case verifyFlags.certificateID != "":
		return n.Verifier().VerifyCertificate(ctx, verifyFlags.certificateID), nil
	case len(args) == 1:
		return n.Verifier().Verify(ctx, args[0]), nil
	default:
		return verification.Result{}, errors.New(
			"one of a document hash, --file or --certificate is required",
		)
	}
}

func verifyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify [document-hash]",
		Short: "Verify a certificate against the record store and the ledger",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			res, err := verifyRun(cmd, args, configFromContext(cmd))
			if err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}
			if err := writeResult(cmd.OutOrStdout(), res); err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}
			if !res.IsValid {
				fmt.Fprintf(os.Stderr, "certificate is not valid: %s\n", res.Reason)
				os.Exit(2)
			}
		},
	}
	cmd.Flags().
		StringVar(&verifyFlags.file, "file", "", "certificate document to hash and verify")
	cmd.Flags().
		StringVar(&verifyFlags.certificateID, "certificate", "", "certificate ID to verify")
	cmd.MarkFlagsMutuallyExclusive("file", "certificate")
	return cmd
}
