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

package blockfrost

import "encoding/json"

// AmountResponse is one asset quantity. Unit "lovelace" is ada.
type AmountResponse struct {
	Unit     string `json:"unit"`
	Quantity string `json:"quantity"`
}

// AddressResponse is returned by GET /addresses/{address}.
type AddressResponse struct {
	Address      string           `json:"address"`
	Amount       []AmountResponse `json:"amount"`
	StakeAddress *string          `json:"stake_address"`
	Type         string           `json:"type"`
	Script       bool             `json:"script"`
}

// UtxoResponse is one entry of GET /addresses/{address}/utxos.
type UtxoResponse struct {
	Address     string           `json:"address"`
	TxHash      string           `json:"tx_hash"`
	OutputIndex uint32           `json:"output_index"`
	Amount      []AmountResponse `json:"amount"`
	Block       string           `json:"block"`
	DataHash    *string          `json:"data_hash"`
	InlineDatum *string          `json:"inline_datum"`
}

// BlockResponse represents a Blockfrost block object.
type BlockResponse struct {
	Time          int64   `json:"time"`
	Height        uint64  `json:"height"`
	Hash          string  `json:"hash"`
	Slot          uint64  `json:"slot"`
	Epoch         uint64  `json:"epoch"`
	EpochSlot     uint64  `json:"epoch_slot"`
	SlotLeader    string  `json:"slot_leader"`
	Size          uint64  `json:"size"`
	TxCount       int     `json:"tx_count"`
	PreviousBlock string  `json:"previous_block"`
	NextBlock     *string `json:"next_block"`
	Confirmations uint64  `json:"confirmations"`
}

// ProtocolParamsResponse holds the Blockfrost protocol parameters a
// transaction builder needs.
type ProtocolParamsResponse struct {
	Epoch            uint64  `json:"epoch"`
	MinFeeA          uint64  `json:"min_fee_a"`
	MinFeeB          uint64  `json:"min_fee_b"`
	MaxTxSize        uint64  `json:"max_tx_size"`
	KeyDeposit       string  `json:"key_deposit"`
	PoolDeposit      string  `json:"pool_deposit"`
	ProtocolMajorVer int     `json:"protocol_major_ver"`
	ProtocolMinorVer int     `json:"protocol_minor_ver"`
	CoinsPerUtxoSize *string `json:"coins_per_utxo_size"`
}

// TxResponse is returned by GET /txs/{hash}.
type TxResponse struct {
	Hash          string `json:"hash"`
	Block         string `json:"block"`
	BlockHeight   uint64 `json:"block_height"`
	BlockTime     int64  `json:"block_time"`
	Slot          uint64 `json:"slot"`
	Index         int    `json:"index"`
	Fees          string `json:"fees"`
	Size          int    `json:"size"`
	ValidContract bool   `json:"valid_contract"`
}

// TxMetadataResponse is one label of GET /txs/{hash}/metadata.
type TxMetadataResponse struct {
	Label        string          `json:"label"`
	JSONMetadata json.RawMessage `json:"json_metadata"`
}

// ErrorResponse represents a Blockfrost error response.
type ErrorResponse struct {
	StatusCode int    `json:"status_code"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}
