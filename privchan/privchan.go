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

// Package privchan implements the private consortium channel that carries
// batch submissions in and issued certificate references out. Messages are
// JSON envelopes on a RabbitMQ direct exchange, routed by organisation name.
package privchan

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

const (
	MessageTypeBatchSubmission    = "batch_submission"
	MessageTypeCertificatesIssued = "certificates_issued"
	DefaultExchange               = "diploma.private"
	DefaultGetLimit               = 10
	dataKeyPrefix                 = "data/"
	contentTypeJSON               = "application/json"
)

var (
	ErrDataNotFound   = errors.New("private data not found")
	ErrUnknownMessage = errors.New("unknown message")
	ErrNoTargetOrg    = errors.New("no target organisation")
)

// Channel is the private messaging surface used by intake and issuance
type Channel interface {
	GetMessages(ctx context.Context, limit int) ([]Message, error)
	RetrieveData(ctx context.Context, refs []string) ([]Data, error)
	SendPrivate(ctx context.Context, payload Payload, targetOrg string) error
	UploadBlob(ctx context.Context, data []byte, metadata BlobMetadata) (BlobRef, error)
	Ack(ctx context.Context, msg Message) error
}

// Store holds private data items and blobs. database.Database satisfies it.
type Store interface {
	PutDocument(ctx context.Context, key string, data []byte) error
	GetDocument(ctx context.Context, key string) ([]byte, error)
}

// Message is a received envelope. Its data items are fetched separately
// with RetrieveData using Refs.
type Message struct {
	SentAt      time.Time
	ID          string
	Type        string
	SenderOrg   string
	Refs        []string
	deliveryTag uint64
}

type Data struct {
	ID    string
	Value json.RawMessage
}

// Payload is a typed value sent to another organisation
type Payload struct {
	Data any
	Type string
}

type BlobMetadata struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
}

// BlobRef identifies an uploaded blob. ID is the CIDv1 of the bytes and
// Hash their SHA-256.
type BlobRef struct {
	ID          string `json:"id"`
	Hash        string `json:"hash"`
	Name        string `json:"name,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Size        int    `json:"size"`
}

type envelope struct {
	SentAt    time.Time  `json:"sent_at"`
	ID        string     `json:"id"`
	Type      string     `json:"type"`
	SenderOrg string     `json:"sender_org"`
	Data      []dataItem `json:"data"`
}

type dataItem struct {
	ID    string          `json:"id"`
	Value json.RawMessage `json:"value"`
}
