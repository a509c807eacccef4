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

package document

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// Hash returns the lowercase hex SHA-256 digest of a rendered document
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ContentID returns the CIDv1 (raw codec, sha2-256) of a rendered document.
// Its digest is the same value Hash returns.
func ContentID(data []byte) (string, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return "", err
	}
	return cid.NewCidV1(cid.Raw, sum).String(), nil
}

// HashFromContentID extracts the document hash carried by a content id
func HashFromContentID(contentID string) (string, error) {
	c, err := cid.Decode(contentID)
	if err != nil {
		return "", fmt.Errorf("decode content id: %w", err)
	}
	decoded, err := multihash.Decode(c.Hash())
	if err != nil {
		return "", fmt.Errorf("decode multihash: %w", err)
	}
	if decoded.Code != multihash.SHA2_256 {
		return "", errors.New("content id is not sha2-256")
	}
	return hex.EncodeToString(decoded.Digest), nil
}
