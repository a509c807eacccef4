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
	"github.com/blinklabs-io/diploma/keystore"
	"github.com/spf13/cobra"
)

var keygenFlags = struct {
	out     string
	vkeyOut string
	sops    bool
}{}

// keygenRun writes a new issuer payment key and prints its address
func keygenRun(cmd *cobra.Command, cfg *config.Config) error {
	if keygenFlags.out == "" {
		return errors.New("--out is required")
	}
	networkID, err := cfg.NetworkID()
	if err != nil {
		return err
	}
	key, err := keystore.GeneratePaymentKey(nil)
	if err != nil {
		return err
	}
	skey, err := key.SigningKeyEnvelope()
	if err != nil {
		return err
	}
	if keygenFlags.sops {
		skey, err = keystore.Encrypt(skey)
		if err != nil {
			return fmt.Errorf("failed to encrypt signing key: %w", err)
		}
	}
	if err := keystore.WriteKeyFile(keygenFlags.out, skey); err != nil {
		return err
	}
	if keygenFlags.vkeyOut != "" {
		vkey, err := key.VerificationKeyEnvelope()
		if err != nil {
			return err
		}
		if err := keystore.WriteKeyFile(keygenFlags.vkeyOut, vkey); err != nil {
			return err
		}
	}
	addr, err := key.Address(networkID)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), addr.String())
	return nil
}

func keygenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an issuer payment key",
		Run: func(cmd *cobra.Command, args []string) {
			if err := keygenRun(cmd, configFromContext(cmd)); err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}
		},
	}
	cmd.Flags().
		StringVarP(&keygenFlags.out, "out", "o", "", "signing key file to create")
	cmd.Flags().
		StringVar(&keygenFlags.vkeyOut, "vkey-out", "", "verification key file to create")
	cmd.Flags().
		BoolVar(&keygenFlags.sops, "sops", false, "encrypt the signing key with SOPS")
	return cmd
}
