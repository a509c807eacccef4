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

package privchan

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const graduationDateLayout = time.DateOnly

// BatchSubmission is sent by an institution to request certificates for a
// batch of graduating students
type BatchSubmission struct {
	BatchID      string              `json:"batch_id,omitempty"`
	BatchName    string              `json:"batch_name"`
	AcademicYear string              `json:"academic_year"`
	Semester     string              `json:"semester"`
	Faculty      string              `json:"faculty"`
	SubmittedBy  string              `json:"submitted_by"`
	Students     []StudentSubmission `json:"students"`
}

type StudentSubmission struct {
	StudentID      string  `json:"student_id"`
	Name           string  `json:"name"`
	Course         string  `json:"course"`
	Institution    string  `json:"institution"`
	GraduationDate string  `json:"graduation_date"`
	GPA            float64 `json:"gpa"`
}

// ParseGraduationDate parses the YYYY-MM-DD graduation date
func (s StudentSubmission) ParseGraduationDate() (time.Time, error) {
	return time.Parse(graduationDateLayout, s.GraduationDate)
}

// Validate checks the submission before anything is stored
func (b *BatchSubmission) Validate() error {
	var errs []error
	if strings.TrimSpace(b.BatchName) == "" {
		errs = append(errs, errors.New("missing batch name"))
	}
	if len(b.Students) == 0 {
		errs = append(errs, errors.New("no students"))
	}
	seen := make(map[string]struct{}, len(b.Students))
	for i, s := range b.Students {
		if strings.TrimSpace(s.StudentID) == "" {
			errs = append(errs, fmt.Errorf("student %d: missing student id", i))
			continue
		}
		if _, ok := seen[s.StudentID]; ok {
			errs = append(errs, fmt.Errorf("student %s: duplicate", s.StudentID))
		}
		seen[s.StudentID] = struct{}{}
		if strings.TrimSpace(s.Name) == "" {
			errs = append(errs, fmt.Errorf("student %s: missing name", s.StudentID))
		}
		if strings.TrimSpace(s.Course) == "" {
			errs = append(errs, fmt.Errorf("student %s: missing course", s.StudentID))
		}
		if s.GPA < 0 || s.GPA > 4 {
			errs = append(errs, fmt.Errorf("student %s: gpa %v out of range", s.StudentID, s.GPA))
		}
		if _, err := s.ParseGraduationDate(); err != nil {
			errs = append(errs, fmt.Errorf("student %s: graduation date: %w", s.StudentID, err))
		}
	}
	return errors.Join(errs...)
}

// CertificatesIssued tells the submitting organisation where to fetch the
// issued documents and which ledger transaction anchors them
type CertificatesIssued struct {
	BatchID       string              `json:"batch_id"`
	TransactionID string              `json:"transaction_id"`
	Certificates  []IssuedCertificate `json:"certificates"`
}

type IssuedCertificate struct {
	StudentID     string  `json:"student_id"`
	CertificateID string  `json:"certificate_id"`
	DocumentHash  string  `json:"document_hash"`
	Document      BlobRef `json:"document"`
}
