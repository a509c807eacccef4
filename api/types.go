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


package api

import (
	"time"

	"github.com/blinklabs-io/diploma/database/models"
	"github.com/blinklabs-io/diploma/issuance"
)

type HealthResponse struct {
	IsHealthy bool `json:"isHealthy"`
}

// ErrorResponse is the body of every non-2xx answer. Result is set when an
// issuance got far enough to have one.
type ErrorResponse struct {
	Result     *issuance.Result `json:"result,omitempty"`
	Error      string           `json:"error"`
	Message    string           `json:"message"`
	StatusCode int              `json:"statusCode"`
}

type BatchResponse struct {
	CommittedAt      *time.Time         `json:"committedAt,omitempty"`
	CreatedAt        time.Time          `json:"createdAt"`
	BatchID          string             `json:"batchId"`
	BatchName        string             `json:"batchName"`
	AcademicYear     string             `json:"academicYear"`
	Semester         string             `json:"semester"`
	Faculty          string             `json:"faculty"`
	SubmittedBy      string             `json:"submittedBy"`
	SubmittingOrg    string             `json:"submittingOrg,omitempty"`
	Status           models.BatchStatus `json:"status"`
	TransactionID    string             `json:"transactionId,omitempty"`
	ErrorMessage     string             `json:"errorMessage,omitempty"`
	Students         []StudentResponse  `json:"students,omitempty"`
	CertificateCount int                `json:"certificateCount"`
	Notified         bool               `json:"notified"`
}

type StudentResponse struct {
	IssuedAt        *time.Time           `json:"issuedAt,omitempty"`
	StudentID       string               `json:"studentId"`
	Name            string               `json:"name"`
	Course          string               `json:"course"`
	Status          models.StudentStatus `json:"status"`
	CertificateID   string               `json:"certificateId,omitempty"`
	DocumentHash    string               `json:"documentHash,omitempty"`
	TransactionHash string               `json:"transactionHash,omitempty"`
}

func newBatchResponse(batch *models.Batch, students []models.Student) BatchResponse {
	ret := BatchResponse{
		CommittedAt:      batch.CommittedAt,
		CreatedAt:        batch.CreatedAt,
		BatchID:          batch.BatchID,
		BatchName:        batch.BatchName,
		AcademicYear:     batch.AcademicYear,
		Semester:         batch.Semester,
		Faculty:          batch.Faculty,
		SubmittedBy:      batch.SubmittedBy,
		SubmittingOrg:    batch.SubmittingOrg,
		Status:           batch.Status,
		TransactionID:    batch.TransactionID,
		ErrorMessage:     batch.ErrorMessage,
		CertificateCount: batch.CertificateCount,
		Notified:         batch.Notified,
	}
	for _, s := range students {
		ret.Students = append(ret.Students, StudentResponse{
			IssuedAt:        s.IssuedAt,
			StudentID:       s.StudentID,
			Name:            s.Name,
			Course:          s.Course,
			Status:          s.Status,
			CertificateID:   s.CertificateID,
			DocumentHash:    s.DocumentHash,
			TransactionHash: s.TransactionHash,
		})
	}
	return ret
}
