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

// Package keystore loads and creates the payment signing key that funds and
// signs certificate commitment transactions.
package keystore

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	lcommon "github.com/blinklabs-io/gouroboros/ledger/common"
)

var (
	ErrInsecureFileMode   = errors.New("insecure file permissions")
	ErrUnsupportedKeyType = errors.New("unsupported key type")
	ErrInvalidKey         = errors.New("invalid key")
)

// Setting this to true skips the Windows ACL check of key files. Only for
// hosts where the ACL was verified by hand.
const envAllowInsecureKeyPerms = "DIPLOMA_ALLOW_INSECURE_KEY_PERMS"

const (
	PaymentSigningKeyType      = "PaymentSigningKeyShelley_ed25519"
	PaymentVerificationKeyType = "PaymentVerificationKeyShelley_ed25519"
)

// PaymentKey is an ed25519 payment key of a Shelley enterprise address
type PaymentKey struct {
	private ed25519.PrivateKey
}

// NewPaymentKey builds a key from its 32 byte seed
func NewPaymentKey(seed []byte) (*PaymentKey, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf(
			"%w: expected %d byte seed, got %d",
			ErrInvalidKey,
			ed25519.SeedSize,
			len(seed),
		)
	}
	return &PaymentKey{
		private: ed25519.NewKeyFromSeed(seed),
	}, nil
}

// GeneratePaymentKey creates a new key from the given entropy source, or
// crypto/rand when r is nil
func GeneratePaymentKey(r io.Reader) (*PaymentKey, error) {
	if r == nil {
		r = rand.Reader
	}
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(r, seed); err != nil {
		return nil, fmt.Errorf("read key entropy: %w", err)
	}
	return NewPaymentKey(seed)
}

func (k *PaymentKey) Seed() []byte {
	return k.private.Seed()
}

// PublicKey returns the 32 byte verification key
func (k *PaymentKey) PublicKey() []byte {
	pub, _ := k.private.Public().(ed25519.PublicKey)
	return []byte(pub)
}

func (k *PaymentKey) Sign(message []byte) []byte {
	return ed25519.Sign(k.private, message)
}

// KeyHash returns the Blake2b-224 hash of the verification key
func (k *PaymentKey) KeyHash() lcommon.Blake2b224 {
	return lcommon.Blake2b224Hash(k.PublicKey())
}

// Address returns the enterprise (no staking part) address of the key
func (k *PaymentKey) Address(networkID uint8) (lcommon.Address, error) {
	keyHash := k.KeyHash()
	addr, err := lcommon.NewAddressFromParts(
		lcommon.AddressTypeKeyNone,
		networkID,
		keyHash[:],
		nil,
	)
	if err != nil {
		return lcommon.Address{}, fmt.Errorf("build address: %w", err)
	}
	return addr, nil
}
