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
	"encoding/hex"
	"fmt"

	"github.com/blinklabs-io/gouroboros/cbor"
	lcommon "github.com/blinklabs-io/gouroboros/ledger/common"
	"golang.org/x/crypto/blake2b"
)

type txInput struct {
	cbor.StructAsArray
	TxId  []byte
	Index uint32
}

type txOutput struct {
	cbor.StructAsArray
	Address lcommon.Address
	Amount  uint64
}

// txBody is the subset of a Conway transaction body a commitment needs
type txBody struct {
	Inputs      []txInput  `cbor:"0,keyasint"`
	Outputs     []txOutput `cbor:"1,keyasint"`
	Fee         uint64     `cbor:"2,keyasint"`
	Ttl         uint64     `cbor:"3,keyasint"`
	AuxDataHash []byte     `cbor:"7,keyasint"`
}

// Signer signs transaction body hashes with a payment key
type Signer interface {
	PublicKey() []byte
	Sign(message []byte) []byte
}

type signedTx struct {
	id      string
	bytes   []byte
	fee     uint64
	outputs int
}

func auxDataHash(auxData []byte) []byte {
	sum := blake2b.Sum256(auxData)
	return sum[:]
}

// buildSignedTx assembles, hashes and signs a transaction carrying auxData.
// The signed form is [body, witness set, is_valid, auxiliary data].
func buildSignedTx(
	inputs []Utxo,
	outputs []txOutput,
	fee uint64,
	ttl uint64,
	auxData []byte,
	signer Signer,
) (*signedTx, error) {
	body := txBody{
		Outputs:     outputs,
		Fee:         fee,
		Ttl:         ttl,
		AuxDataHash: auxDataHash(auxData),
	}
	for _, utxo := range inputs {
		txID, err := hex.DecodeString(utxo.TxID)
		if err != nil {
			return nil, fmt.Errorf("decode input %s: %w", utxo.ID(), err)
		}
		body.Inputs = append(
			body.Inputs,
			txInput{TxId: txID, Index: utxo.Index},
		)
	}
	bodyCbor, err := cbor.Encode(&body)
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	bodyHash := blake2b.Sum256(bodyCbor)
	witnessMap := map[int]any{
		0: []lcommon.VkeyWitness{
			{
				Vkey:      signer.PublicKey(),
				Signature: signer.Sign(bodyHash[:]),
			},
		},
	}
	txCbor, err := cbor.Encode(
		[]any{
			cbor.RawMessage(bodyCbor),
			witnessMap,
			true,
			cbor.RawMessage(auxData),
		},
	)
	if err != nil {
		return nil, fmt.Errorf("encode signed tx: %w", err)
	}
	return &signedTx{
		id:      hex.EncodeToString(bodyHash[:]),
		bytes:   txCbor,
		fee:     fee,
		outputs: len(outputs),
	}, nil
}
