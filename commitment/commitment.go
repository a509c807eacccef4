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
	"errors"
	"fmt"
	"regexp"
	"slices"
	"time"
)

const (
	// Type is the value of the "type" field of every certificate commitment
	Type = "certificate-batch-hashes"

	// DefaultLabel is the transaction metadata label commitments are written under
	DefaultLabel uint64 = 1694
)

var (
	ErrNoCommitment      = errors.New("no certificate commitment in metadata")
	ErrInvalidCommitment = errors.New("invalid certificate commitment")
)

var hashPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// Commitment is the record anchored in ledger transaction metadata. It binds
// the content hashes of one batch to the batch identity and the issuer.
type Commitment struct {
	Type             string   `json:"type"`
	Issuer           string   `json:"issuer"`
	Authority        string   `json:"authority"`
	BatchID          string   `json:"batch_id"`
	BatchName        string   `json:"batch_name"`
	AcademicYear     string   `json:"academic_year"`
	Semester         string   `json:"semester"`
	Faculty          string   `json:"faculty"`
	CertificateCount uint64   `json:"certificate_count"`
	Hashes           []string `json:"hashes"`
	IssuedAt         string   `json:"issued_at"`
}

// Batch carries the batch fields of a commitment
type Batch struct {
	ID           string
	Name         string
	AcademicYear string
	Semester     string
	Faculty      string
}

// New builds a commitment over the given hashes. The hash order is kept.
func New(
	issuer string,
	authority string,
	batch Batch,
	hashes []string,
	issuedAt time.Time,
) *Commitment {
	return &Commitment{
		Type:             Type,
		Issuer:           issuer,
		Authority:        authority,
		BatchID:          batch.ID,
		BatchName:        batch.Name,
		AcademicYear:     batch.AcademicYear,
		Semester:         batch.Semester,
		Faculty:          batch.Faculty,
		CertificateCount: uint64(len(hashes)),
		Hashes:           slices.Clone(hashes),
		IssuedAt:         issuedAt.UTC().Format(time.RFC3339),
	}
}

// Validate checks the structural invariants of a commitment
func (c *Commitment) Validate() error {
	if c.Type != Type {
		return fmt.Errorf(
			"%w: unexpected type %q",
			ErrInvalidCommitment,
			c.Type,
		)
	}
	if c.BatchID == "" {
		return fmt.Errorf("%w: missing batch id", ErrInvalidCommitment)
	}
	if len(c.Hashes) == 0 {
		return fmt.Errorf("%w: no hashes", ErrInvalidCommitment)
	}
	if c.CertificateCount != uint64(len(c.Hashes)) {
		return fmt.Errorf(
			"%w: certificate count %d does not match %d hashes",
			ErrInvalidCommitment,
			c.CertificateCount,
			len(c.Hashes),
		)
	}
	seen := make(map[string]struct{}, len(c.Hashes))
	for _, h := range c.Hashes {
		if !hashPattern.MatchString(h) {
			return fmt.Errorf("%w: malformed hash %q", ErrInvalidCommitment, h)
		}
		if _, ok := seen[h]; ok {
			return fmt.Errorf("%w: duplicate hash %s", ErrInvalidCommitment, h)
		}
		seen[h] = struct{}{}
	}
	return nil
}

// Contains reports whether hash is one of the committed hashes
func (c *Commitment) Contains(hash string) bool {
	return slices.Contains(c.Hashes, hash)
}

// IsHash reports whether s looks like a content hash (lowercase hex SHA-256)
func IsHash(s string) bool {
	return hashPattern.MatchString(s)
}
