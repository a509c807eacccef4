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

import "time"

type StudentStatus string

const (
	StudentStatusPending   StudentStatus = "pending"
	StudentStatusCertified StudentStatus = "certified"
)

// Student holds one student record of a batch and, once issued, the
// certificate that was anchored for it. Records are never deleted.
type Student struct {
	GraduationDate  time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
	IssuedAt        *time.Time
	BatchID         string        `gorm:"size:64;not null;uniqueIndex:idx_student_batch_student"`
	StudentID       string        `gorm:"size:64;not null;uniqueIndex:idx_student_batch_student"`
	Name            string        `gorm:"size:255;not null"`
	Course          string        `gorm:"size:255;not null"`
	Institution     string        `gorm:"size:255"`
	CertificateID   string        `gorm:"size:64;index"`
	DocumentHash    string        `gorm:"size:64;index"`
	TransactionHash string        `gorm:"size:64;index"`
	DocumentKey     string        `gorm:"size:255"`
	Status          StudentStatus `gorm:"size:32;index;not null"`
	GPA             float64
	ID              uint `gorm:"primarykey"`
	DocumentSize    int64
}

func (Student) TableName() string {
	return "student"
}
