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

package issuance

import (
	"context"
	"errors"
	"fmt"

	"github.com/blinklabs-io/diploma/database/models"
	"github.com/blinklabs-io/diploma/privchan"
)

const documentContentType = "application/pdf"

var (
	errNoNotifier     = errors.New("no private channel configured")
	errNoSubmitterOrg = errors.New("batch has no submitting organisation")
)

// notify uploads every document and sends the references with the
// transaction id to the organisation that submitted the batch
func (p *Pipeline) notify(ctx context.Context, batch *models.Batch, docs []issued) error {
	if p.config.Notifier == nil {
		return errNoNotifier
	}
	if batch.SubmittingOrg == "" {
		return errNoSubmitterOrg
	}
	msg := privchan.CertificatesIssued{
		BatchID:       batch.BatchID,
		TransactionID: batch.TransactionID,
		Certificates:  make([]privchan.IssuedCertificate, 0, len(docs)),
	}
	for _, d := range docs {
		ref, err := p.config.Notifier.UploadBlob(
			ctx,
			d.doc,
			privchan.BlobMetadata{
				Name:        d.cert.CertificateID + ".pdf",
				ContentType: documentContentType,
			},
		)
		if err != nil {
			return fmt.Errorf("upload document of student %s: %w", d.cert.StudentID, err)
		}
		msg.Certificates = append(msg.Certificates, privchan.IssuedCertificate{
			StudentID:     d.cert.StudentID,
			CertificateID: d.cert.CertificateID,
			DocumentHash:  d.cert.DocumentHash,
			Document:      ref,
		})
	}
	return p.config.Notifier.SendPrivate(
		ctx,
		privchan.Payload{
			Type: privchan.MessageTypeCertificatesIssued,
			Data: msg,
		},
		batch.SubmittingOrg,
	)
}

// Renotify sends the certificates of a completed batch to its submitting
// organisation again. It never touches the ledger.
func (p *Pipeline) Renotify(ctx context.Context, batchID string) (*Result, error) {
	if !p.acquire(batchID) {
		return nil, fmt.Errorf("%w: %s", ErrBatchInProgress, batchID)
	}
	defer p.release(batchID)
	batch, err := p.config.Store.GetBatch(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("load batch %s: %w", batchID, err)
	}
	if batch.TransactionID == "" {
		return nil, fmt.Errorf("%w: %s", ErrNotCommitted, batchID)
	}
	if batch.Status != models.BatchStatusCompleted {
		return nil, fmt.Errorf(
			"%w: batch %s is %s",
			ErrNotCompleted,
			batchID,
			batch.Status,
		)
	}
	r := &run{
		batch: batch,
		result: &Result{
			BatchID: batchID,
			TxID:    batch.TransactionID,
			Status:  batch.Status,
			Stage:   StageNotifying,
		},
	}
	r.students, err = p.config.Store.ListStudents(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("load students: %w", err)
	}
	docs := make([]issued, 0, len(r.students))
	for _, s := range r.students {
		if s.TransactionHash != batch.TransactionID {
			continue
		}
		pdf, err := p.config.Store.GetDocument(ctx, s.DocumentKey)
		if err != nil {
			return nil, fmt.Errorf("load document of student %s: %w", s.StudentID, err)
		}
		cert := Certificate{
			StudentID:     s.StudentID,
			CertificateID: s.CertificateID,
			DocumentHash:  s.DocumentHash,
			DocumentKey:   s.DocumentKey,
		}
		docs = append(docs, issued{cert: cert, doc: pdf})
		r.result.Certificates = append(r.result.Certificates, cert)
	}
	if err := p.notify(ctx, batch, docs); err != nil {
		p.processLog(
			ctx,
			r,
			StageNotifying,
			logLevelWarn,
			"renotification failed",
			map[string]string{"error": err.Error()},
		)
		return r.result, fmt.Errorf("renotify batch %s: %w", batchID, err)
	}
	if err := p.config.Store.MarkBatchNotified(ctx, batchID, true); err != nil {
		return r.result, fmt.Errorf("record notification: %w", err)
	}
	r.result.Notified = true
	r.result.Stage = StageDone
	p.processLog(ctx, r, StageNotifying, logLevelInfo, "batch renotified", nil)
	p.logger.Info(
		"batch renotified",
		"batch_id", batchID,
		"tx_id", batch.TransactionID,
		"certificates", len(docs),
	)
	return r.result, nil
}
