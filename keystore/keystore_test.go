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
	"bytes"
	"crypto/ed25519"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	fage "filippo.io/age"
	lcommon "github.com/blinklabs-io/gouroboros/ledger/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSeed = bytes.Repeat([]byte{0x42}, ed25519.SeedSize)

func writeTestKey(t *testing.T, data []byte, mode os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "payment.skey")
	require.NoError(t, os.WriteFile(path, data, mode))
	return path
}

func TestPaymentKeySignAndAddress(t *testing.T) {
	key, err := NewPaymentKey(testSeed)
	require.NoError(t, err)
	msg := []byte("tx body hash")
	sig := key.Sign(msg)
	assert.True(t, ed25519.Verify(key.PublicKey(), msg, sig))
	assert.Equal(t, testSeed, key.Seed())

	addr, err := key.Address(lcommon.AddressNetworkTestnet)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(addr.String(), "addr_test1v"))
	mainnet, err := key.Address(lcommon.AddressNetworkMainnet)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(mainnet.String(), "addr1v"))
}

func TestNewPaymentKeyBadSeed(t *testing.T) {
	_, err := NewPaymentKey([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestGeneratePaymentKey(t *testing.T) {
	key, err := GeneratePaymentKey(bytes.NewReader(testSeed))
	require.NoError(t, err)
	assert.Equal(t, testSeed, key.Seed())
	_, err = GeneratePaymentKey(bytes.NewReader([]byte{1}))
	assert.Error(t, err)
	random, err := GeneratePaymentKey(nil)
	require.NoError(t, err)
	assert.NotEqual(t, key.PublicKey(), random.PublicKey())
}

func TestEnvelopeRoundTrip(t *testing.T) {
	key, err := NewPaymentKey(testSeed)
	require.NoError(t, err)
	skey, err := key.SigningKeyEnvelope()
	require.NoError(t, err)
	assert.Contains(t, string(skey), PaymentSigningKeyType)
	assert.Contains(
		t,
		string(skey),
		`"cborHex": "5820`+strings.Repeat("42", 32)+`"`,
	)
	parsed, err := ParsePaymentKey(skey)
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), parsed.PublicKey())

	vkey, err := key.VerificationKeyEnvelope()
	require.NoError(t, err)
	_, err = ParsePaymentKey(vkey)
	assert.ErrorIs(t, err, ErrUnsupportedKeyType)
}

func TestParsePaymentKeyErrors(t *testing.T) {
	testDefs := []struct {
		name string
		data string
	}{
		{name: "not json", data: "nope"},
		{
			name: "bad hex",
			data: `{"type":"PaymentSigningKeyShelley_ed25519","cborHex":"zz"}`,
		},
		{
			name: "short key",
			data: `{"type":"PaymentSigningKeyShelley_ed25519","cborHex":"43010203"}`,
		},
		{
			name: "kes key",
			data: `{"type":"KesSigningKey_ed25519_kes_2^6","cborHex":"5820` +
				strings.Repeat("00", 32) + `"}`,
		},
	}
	for _, td := range testDefs {
		t.Run(td.name, func(t *testing.T) {
			_, err := ParsePaymentKey([]byte(td.data))
			assert.Error(t, err)
		})
	}
}

func TestLoadPaymentKey(t *testing.T) {
	key, err := NewPaymentKey(testSeed)
	require.NoError(t, err)
	skey, err := key.SigningKeyEnvelope()
	require.NoError(t, err)
	path := writeTestKey(t, skey, 0o600)
	if runtime.GOOS == "windows" {
		t.Setenv(envAllowInsecureKeyPerms, "true")
	}
	loaded, err := LoadPaymentKey(path)
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), loaded.PublicKey())
}

func TestLoadPaymentKeyInsecureMode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix file modes")
	}
	key, err := NewPaymentKey(testSeed)
	require.NoError(t, err)
	skey, err := key.SigningKeyEnvelope()
	require.NoError(t, err)
	path := writeTestKey(t, skey, 0o644)
	require.NoError(t, os.Chmod(path, 0o644))
	_, err = LoadPaymentKey(path)
	assert.ErrorIs(t, err, ErrInsecureFileMode)

	t.Setenv(envAllowInsecureKeyPerms, "true")
	loaded, err := LoadPaymentKey(path)
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), loaded.PublicKey())
}

func TestLoadPaymentKeyNotRegular(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix file types")
	}
	_, err := LoadPaymentKey(t.TempDir())
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestLoadPaymentKeyTooLarge(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Setenv(envAllowInsecureKeyPerms, "true")
	}
	path := writeTestKey(t, bytes.Repeat([]byte(" "), maxKeyFileSize+10), 0o600)
	_, err := LoadPaymentKey(path)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestLoadPaymentKeyMissing(t *testing.T) {
	_, err := LoadPaymentKey(filepath.Join(t.TempDir(), "missing.skey"))
	assert.Error(t, err)
}

func TestWriteKeyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payment.skey")
	require.NoError(t, WriteKeyFile(path, []byte("{}")))
	if runtime.GOOS != "windows" {
		fi, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())
	}
	err := WriteKeyFile(path, []byte("{}"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestSopsRoundTrip(t *testing.T) {
	identity, err := fage.GenerateX25519Identity()
	require.NoError(t, err)
	t.Setenv(EnvGcpKmsResourceID, "")
	t.Setenv(EnvAwsKmsKeyArns, "")
	t.Setenv(EnvAgeRecipients, identity.Recipient().String())
	t.Setenv("SOPS_AGE_KEY", identity.String())
	if runtime.GOOS == "windows" {
		t.Setenv(envAllowInsecureKeyPerms, "true")
	}

	key, err := NewPaymentKey(testSeed)
	require.NoError(t, err)
	skey, err := key.SigningKeyEnvelope()
	require.NoError(t, err)
	encrypted, err := Encrypt(skey)
	require.NoError(t, err)
	assert.True(t, IsEncrypted(encrypted))
	assert.NotContains(t, string(encrypted), strings.Repeat("42", 32))

	_, err = Encrypt(encrypted)
	assert.ErrorIs(t, err, ErrAlreadyEncrypted)

	path := writeTestKey(t, encrypted, 0o600)
	loaded, err := LoadPaymentKey(path)
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), loaded.PublicKey())
}

func TestEncryptWithoutMasterKeys(t *testing.T) {
	t.Setenv(EnvAgeRecipients, "")
	t.Setenv(EnvGcpKmsResourceID, "")
	t.Setenv(EnvAwsKmsKeyArns, "")
	_, err := Encrypt([]byte("{}"))
	assert.Error(t, err)
	assert.False(t, IsEncrypted([]byte("{}")))
}
