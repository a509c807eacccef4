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
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"slices"
	"strings"

	"github.com/blinklabs-io/diploma/blockfrost"
	"github.com/blinklabs-io/diploma/database/models"
	"github.com/blinklabs-io/diploma/database/types"
	"github.com/blinklabs-io/diploma/issuance"
	"github.com/blinklabs-io/diploma/ledger"
)

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck,errchkjson
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{
		StatusCode: status,
		Error:      http.StatusText(status),
		Message:    message,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{IsHealthy: true})
}

// Verification answers are always 200. The outcome, including lookup
// failures, is carried by the result itself.
func (s *Server) handleVerifyHash(w http.ResponseWriter, r *http.Request) {
	res := s.config.Verifier.Verify(r.Context(), r.PathValue("hash"))
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleVerifyCertificate(w http.ResponseWriter, r *http.Request) {
	res := s.config.Verifier.VerifyCertificate(r.Context(), r.PathValue("id"))
	writeJSON(w, http.StatusOK, res)
}

// handleVerifyDocument accepts the document either as the raw request body
// or as the "file" part of a multipart form
func (s *Server) handleVerifyDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxDocumentSize)
	data, err := readDocument(r)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "document too large")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "empty document")
		return
	}
	writeJSON(w, http.StatusOK, s.config.Verifier.VerifyDocument(r.Context(), data))
}

func readDocument(r *http.Request) ([]byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return io.ReadAll(r.Body)
	}
	f, _, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, errors.New("missing file form field")
		}
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (s *Server) handleCertificateDocument(w http.ResponseWriter, r *http.Request) {
	certificateID := r.PathValue("id")
	student, err := s.config.Store.FindStudentByCertificateID(r.Context(), certificateID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			writeError(w, http.StatusNotFound, "certificate not found")
			return
		}
		s.logger.Error(
			"failed to look up certificate",
			"certificate_id", certificateID,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "failed to look up certificate")
		return
	}
	if student.DocumentKey == "" {
		writeError(w, http.StatusNotFound, "certificate has no stored document")
		return
	}
	data, err := s.config.Store.GetDocument(r.Context(), student.DocumentKey)
	if err != nil {
		if errors.Is(err, types.ErrBlobKeyNotFound) {
			writeError(w, http.StatusNotFound, "certificate document not found")
			return
		}
		s.logger.Error(
			"failed to load certificate document",
			"certificate_id", certificateID,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "failed to load certificate document")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set(
		"Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{"filename": certificateID + ".pdf"}),
	)
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck
	w.Write(data)
}

// handleListBatches lists batches with Blockfrost style pagination. The
// status query parameter takes a comma separated list of statuses.
func (s *Server) handleListBatches(w http.ResponseWriter, r *http.Request) {
	params, err := blockfrost.ParsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var statuses []models.BatchStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		for status := range strings.SplitSeq(raw, ",") {
			statuses = append(statuses, models.BatchStatus(strings.TrimSpace(status)))
		}
	}
	batches, err := s.config.Store.ListBatches(r.Context(), statuses...)
	if err != nil {
		s.logger.Error("failed to list batches", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list batches")
		return
	}
	if params.Order == blockfrost.PaginationOrderDesc {
		slices.Reverse(batches)
	}
	blockfrost.SetPaginationHeaders(w, len(batches), params)
	ret := []BatchResponse{}
	start, end := params.Bounds(len(batches))
	for i := start; i < end; i++ {
		ret = append(ret, newBatchResponse(&batches[i], nil))
	}
	writeJSON(w, http.StatusOK, ret)
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	batchID := r.PathValue("id")
	batch, err := s.config.Store.GetBatch(r.Context(), batchID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			writeError(w, http.StatusNotFound, "batch not found")
			return
		}
		s.logger.Error("failed to load batch", "batch_id", batchID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load batch")
		return
	}
	students, err := s.config.Store.ListStudents(r.Context(), batchID)
	if err != nil {
		s.logger.Error("failed to load students", "batch_id", batchID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load students")
		return
	}
	writeJSON(w, http.StatusOK, newBatchResponse(batch, students))
}

func (s *Server) handleIssueBatch(w http.ResponseWriter, r *http.Request) {
	if s.config.Issuer == nil {
		writeError(w, http.StatusServiceUnavailable, "issuance is not enabled on this node")
		return
	}
	batchID := r.PathValue("id")
	res, err := s.config.Issuer.Issue(r.Context(), batchID)
	s.writeIssuance(w, batchID, res, err)
}

func (s *Server) handleNotifyBatch(w http.ResponseWriter, r *http.Request) {
	if s.config.Issuer == nil {
		writeError(w, http.StatusServiceUnavailable, "issuance is not enabled on this node")
		return
	}
	batchID := r.PathValue("id")
	res, err := s.config.Issuer.Renotify(r.Context(), batchID)
	s.writeIssuance(w, batchID, res, err)
}

// writeIssuance maps an issuance outcome to a response. A batch committed
// to the ledger but not fully recorded is reported as 207 with its
// transaction id.
func (s *Server) writeIssuance(
	w http.ResponseWriter,
	batchID string,
	res *issuance.Result,
	err error,
) {
	if err == nil {
		writeJSON(w, http.StatusOK, res)
		return
	}
	status := issuanceStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("batch issuance failed", "batch_id", batchID, "error", err)
	}
	writeJSON(w, status, ErrorResponse{
		Result:     res,
		StatusCode: status,
		Error:      http.StatusText(status),
		Message:    err.Error(),
	})
}

func issuanceStatus(err error) int {
	var perr *issuance.PersistenceAfterCommitError
	var verr *issuance.ValidationError
	switch {
	case errors.As(err, &perr):
		return http.StatusMultiStatus
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, issuance.ErrAlreadyCommitted),
		errors.Is(err, issuance.ErrBatchInProgress),
		errors.Is(err, issuance.ErrNotCommitted),
		errors.Is(err, issuance.ErrNotCompleted):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return http.StatusServiceUnavailable
	case errors.Is(err, ledger.ErrCommitFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
