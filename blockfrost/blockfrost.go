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

// Package blockfrost is a client for Blockfrost-compatible REST indexers,
// which serve ledger reads and accept transaction submissions.
package blockfrost

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultTimeout = 30 * time.Second

	projectIDHeader = "project_id"
	// Largest response body read from the indexer
	maxResponseSize = 16 << 20
)

// ErrNotFound matches every APIError with status 404
var ErrNotFound = errors.New("not found")

// APIError is a non-2xx answer of the indexer
type APIError struct {
	StatusCode int
	Name       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("blockfrost: HTTP %d %s", e.StatusCode, e.Name)
	}
	return fmt.Sprintf(
		"blockfrost: HTTP %d %s: %s",
		e.StatusCode,
		e.Name,
		e.Message,
	)
}

func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Temporary reports whether the request may succeed when repeated
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= http.StatusInternalServerError
}

type Config struct {
	Logger     *slog.Logger
	HTTPClient *http.Client
	// BaseURL includes the API version path, for example
	// https://cardano-preprod.blockfrost.io/api/v0
	BaseURL   string
	ProjectID string
	UserAgent string
	Timeout   time.Duration
}

// Client talks to a Blockfrost-compatible API
type Client struct {
	config     Config
	logger     *slog.Logger
	httpClient *http.Client
	baseURL    string
}

func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("blockfrost base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid blockfrost base URL: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		config:     cfg,
		logger:     cfg.Logger.With("component", "blockfrost"),
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
	}, nil
}

// Address returns the balance summary of an address
func (c *Client) Address(
	ctx context.Context,
	address string,
) (*AddressResponse, error) {
	var ret AddressResponse
	if err := c.get(ctx, "/addresses/"+url.PathEscape(address), nil, &ret); err != nil {
		return nil, err
	}
	return &ret, nil
}

// AddressUtxos returns every unspent output of an address, walking all
// result pages. An address that never received funds has no outputs.
func (c *Client) AddressUtxos(
	ctx context.Context,
	address string,
) ([]UtxoResponse, error) {
	ret := []UtxoResponse{}
	params := DefaultPagination(MaxPaginationCount)
	for {
		var page []UtxoResponse
		err := c.get(
			ctx,
			"/addresses/"+url.PathEscape(address)+"/utxos",
			params.Values(),
			&page,
		)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ret, nil
			}
			return nil, err
		}
		ret = append(ret, page...)
		if len(page) < params.Count {
			return ret, nil
		}
		params = params.Next()
	}
}

// LatestParameters returns the protocol parameters of the current epoch
func (c *Client) LatestParameters(
	ctx context.Context,
) (*ProtocolParamsResponse, error) {
	var ret ProtocolParamsResponse
	if err := c.get(ctx, "/epochs/latest/parameters", nil, &ret); err != nil {
		return nil, err
	}
	return &ret, nil
}

func (c *Client) LatestBlock(ctx context.Context) (*BlockResponse, error) {
	var ret BlockResponse
	if err := c.get(ctx, "/blocks/latest", nil, &ret); err != nil {
		return nil, err
	}
	return &ret, nil
}

// Tx returns an indexed transaction
func (c *Client) Tx(ctx context.Context, hash string) (*TxResponse, error) {
	var ret TxResponse
	if err := c.get(ctx, "/txs/"+url.PathEscape(hash), nil, &ret); err != nil {
		return nil, err
	}
	return &ret, nil
}

// TxMetadata returns the metadata labels of an indexed transaction
func (c *Client) TxMetadata(
	ctx context.Context,
	hash string,
) ([]TxMetadataResponse, error) {
	ret := []TxMetadataResponse{}
	if err := c.get(ctx, "/txs/"+url.PathEscape(hash)+"/metadata", nil, &ret); err != nil {
		return nil, err
	}
	return ret, nil
}

// MempoolTx reports whether a transaction waits in the indexer's mempool
func (c *Client) MempoolTx(ctx context.Context, hash string) (bool, error) {
	var ret json.RawMessage
	err := c.get(ctx, "/mempool/"+url.PathEscape(hash), nil, &ret)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// SubmitTx posts a CBOR encoded signed transaction and returns its id
func (c *Client) SubmitTx(ctx context.Context, tx []byte) (string, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/tx/submit", nil, bytes.NewReader(tx))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/cbor")
	var txID string
	if err := c.do(req, &txID); err != nil {
		return "", err
	}
	return txID, nil
}

func (c *Client) get(
	ctx context.Context,
	path string,
	query url.Values,
	dest any,
) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	return c.do(req, dest)
}

func (c *Client) newRequest(
	ctx context.Context,
	method string,
	path string,
	query url.Values,
	body io.Reader,
) (*http.Request, error) {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.config.ProjectID != "" {
		req.Header.Set(projectIDHeader, c.config.ProjectID)
	}
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, dest any) error {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("read response of %s: %w", req.URL.Path, err)
	}
	c.logger.Debug(
		"blockfrost request",
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var errResp ErrorResponse
		if json.Unmarshal(body, &errResp) == nil {
			apiErr.Name = errResp.Error
			apiErr.Message = errResp.Message
		} else {
			apiErr.Message = strings.TrimSpace(string(body))
		}
		if apiErr.Name == "" {
			apiErr.Name = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("decode response of %s: %w", req.URL.Path, err)
	}
	return nil
}
