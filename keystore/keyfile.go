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

package keystore

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/blinklabs-io/gouroboros/cbor"
)

// Valid key files are well under this size
const maxKeyFileSize = 1 << 20

// keyFileEnvelope represents the JSON structure of a cardano-cli key file.
type keyFileEnvelope struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	CborHex     string `json:"cborHex"`
}

// LoadPaymentKey loads a payment signing key from a cardano-cli key file.
// SOPS encrypted files are decrypted transparently. Returns
// ErrInsecureFileMode if the file has group or other access.
//
// Permissions are checked on the open handle to avoid a race between the
// check and the read.
func LoadPaymentKey(path string) (*PaymentKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open key file %q: %w", path, err)
	}
	defer f.Close()

	if err := checkOpenFilePermissions(f); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(f, maxKeyFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read key file %q: %w", path, err)
	}
	if len(data) > maxKeyFileSize {
		return nil, fmt.Errorf(
			"key file %q exceeds %d bytes: %w",
			path,
			maxKeyFileSize,
			ErrInvalidKey,
		)
	}
	if IsEncrypted(data) {
		data, err = Decrypt(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt key file %q: %w", path, err)
		}
	}
	key, err := ParsePaymentKey(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse key file %q: %w", path, err)
	}
	return key, nil
}

// ParsePaymentKey parses a cardano-cli payment signing key envelope
func ParsePaymentKey(data []byte) (*PaymentKey, error) {
	var env keyFileEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("could not parse key file envelope: %w", err)
	}
	if env.Type != PaymentSigningKeyType {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKeyType, env.Type)
	}
	cborData, err := hex.DecodeString(env.CborHex)
	if err != nil {
		return nil, fmt.Errorf("could not decode key from hex: %w", err)
	}
	var seed []byte
	if _, err := cbor.Decode(cborData, &seed); err != nil {
		return nil, fmt.Errorf(
			"%w: failed to unmarshal skey CBOR: %w",
			ErrInvalidKey,
			err,
		)
	}
	return NewPaymentKey(seed)
}

// SigningKeyEnvelope returns the cardano-cli signing key file contents
func (k *PaymentKey) SigningKeyEnvelope() ([]byte, error) {
	return encodeEnvelope(
		PaymentSigningKeyType,
		"Payment Signing Key",
		k.Seed(),
	)
}

// VerificationKeyEnvelope returns the cardano-cli verification key file
// contents
func (k *PaymentKey) VerificationKeyEnvelope() ([]byte, error) {
	return encodeEnvelope(
		PaymentVerificationKeyType,
		"Payment Verification Key",
		k.PublicKey(),
	)
}

func encodeEnvelope(keyType, description string, key []byte) ([]byte, error) {
	cborData, err := cbor.Encode(key)
	if err != nil {
		return nil, fmt.Errorf("encode key: %w", err)
	}
	data, err := json.MarshalIndent(
		keyFileEnvelope{
			Type:        keyType,
			Description: description,
			CborHex:     hex.EncodeToString(cborData),
		},
		"",
		"    ",
	)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// WriteKeyFile writes a new key file readable only by the owner. Existing
// files are never overwritten.
func WriteKeyFile(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("key file %q already exists", path)
		}
		return fmt.Errorf("failed to create key file %q: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write key file %q: %w", path, err)
	}
	return f.Close()
}
