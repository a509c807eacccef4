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

package models

import (
	"slices"
	"time"
)

type BatchStatus string

const (
	BatchStatusSubmitted          BatchStatus = "submitted"
	BatchStatusProcessing         BatchStatus = "processing"
	BatchStatusCompleted          BatchStatus = "completed"
	BatchStatusPartiallyCompleted BatchStatus = "partially_completed"
	BatchStatusFailed             BatchStatus = "failed"
)

// Terminal reports whether no further issuance is allowed from this status
func (s BatchStatus) Terminal() bool {
	return slices.Contains(
		[]BatchStatus{
			BatchStatusCompleted,
			BatchStatusPartiallyCompleted,
		},
		s,
	)
}

// Batch is one submission of student records from a member institution.
// TransactionID is written once, when the batch commitment is accepted by
// the ledger.
type Batch struct {
	CommittedAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
	BatchID          string      `gorm:"size:64;uniqueIndex;not null"`
	BatchName        string      `gorm:"size:255"`
	AcademicYear     string      `gorm:"size:32"`
	Semester         string      `gorm:"size:32"`
	Faculty          string      `gorm:"size:255"`
	SubmittedBy      string      `gorm:"size:255"`
	SubmittingOrg    string      `gorm:"size:255;index"`
	Status           BatchStatus `gorm:"size:32;index;not null"`
	TransactionID    string      `gorm:"size:64;index"`
	ErrorMessage     string
	ID               uint `gorm:"primarykey"`
	CertificateCount int
	Notified         bool
}

func (Batch) TableName() string {
	return "batch"
}
