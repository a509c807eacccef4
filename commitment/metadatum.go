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

package commitment

import (
	"unicode/utf8"

	"github.com/blinklabs-io/gouroboros/cbor"
)

// MaxTextLength is the longest text string allowed in transaction metadata
const MaxTextLength = 64

// Metadatum is the CBOR shape of a commitment inside transaction metadata.
// Text fields longer than MaxTextLength bytes are stored as a list of chunks.
type Metadatum struct {
	Type             any      `cbor:"type"`
	Issuer           any      `cbor:"issuer"`
	Authority        any      `cbor:"authority"`
	BatchID          any      `cbor:"batch_id"`
	BatchName        any      `cbor:"batch_name"`
	AcademicYear     any      `cbor:"academic_year"`
	Semester         any      `cbor:"semester"`
	Faculty          any      `cbor:"faculty"`
	CertificateCount uint64   `cbor:"certificate_count"`
	Hashes           []string `cbor:"hashes"`
	IssuedAt         any      `cbor:"issued_at"`
}

// Metadatum returns the on-chain form of the commitment
func (c *Commitment) Metadatum() Metadatum {
	return Metadatum{
		Type:             SplitText(c.Type),
		Issuer:           SplitText(c.Issuer),
		Authority:        SplitText(c.Authority),
		BatchID:          SplitText(c.BatchID),
		BatchName:        SplitText(c.BatchName),
		AcademicYear:     SplitText(c.AcademicYear),
		Semester:         SplitText(c.Semester),
		Faculty:          SplitText(c.Faculty),
		CertificateCount: c.CertificateCount,
		Hashes:           c.Hashes,
		IssuedAt:         SplitText(c.IssuedAt),
	}
}

// AuxiliaryData returns the CBOR encoded auxiliary data of a transaction
// carrying the commitment under label
func (c *Commitment) AuxiliaryData(label uint64) ([]byte, error) {
	return cbor.Encode(
		map[uint64]Metadatum{
			label: c.Metadatum(),
		},
	)
}

// SplitText returns s unchanged when it fits in a metadata text string, and
// otherwise a list of chunks of at most MaxTextLength bytes. Chunks never
// split a UTF-8 sequence.
func SplitText(s string) any {
	if len(s) <= MaxTextLength {
		return s
	}
	var chunks []string
	for len(s) > 0 {
		end := min(MaxTextLength, len(s))
		for end < len(s) && end > 0 && !utf8.RuneStart(s[end]) {
			end--
		}
		chunks = append(chunks, s[:end])
		s = s[end:]
	}
	return chunks
}
