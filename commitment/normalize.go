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
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Normalize decodes transaction metadata as returned by a ledger indexer
// and extracts the commitment stored under label. Three shapes are
// accepted:
//
//   - an object keyed by label: {"1694": {...}}
//   - a bare commitment object: {"type": ..., "hashes": [...]}
//   - a list of label entries: [{"label": "1694", "json_metadata": {...}}]
//
// ErrNoCommitment is returned when the metadata holds nothing under label.
func Normalize(raw []byte, label uint64) (*Commitment, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, ErrNoCommitment
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCommitment, err)
	}
	obj, err := unwrap(doc, strconv.FormatUint(label, 10))
	if err != nil {
		return nil, err
	}
	return fromObject(obj)
}

func unwrap(doc any, label string) (map[string]any, error) {
	switch v := doc.(type) {
	case []any:
		for _, item := range v {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			entryLabel, ok := firstOf(entry, "label", "key")
			if !ok || scalarString(entryLabel) != label {
				continue
			}
			body, _ := firstOf(entry, "json_metadata", "json")
			obj, ok := body.(map[string]any)
			if !ok {
				return nil, ErrNoCommitment
			}
			// Some indexers keep the label wrapper inside the entry
			if inner, ok := obj[label].(map[string]any); ok {
				return inner, nil
			}
			return obj, nil
		}
		return nil, ErrNoCommitment
	case map[string]any:
		if inner, ok := v[label]; ok {
			obj, ok := inner.(map[string]any)
			if !ok {
				return nil, fmt.Errorf(
					"%w: label %s does not hold an object",
					ErrInvalidCommitment,
					label,
				)
			}
			return obj, nil
		}
		if _, ok := v["hashes"]; ok {
			return v, nil
		}
		if _, ok := v["type"]; ok {
			return v, nil
		}
		return nil, ErrNoCommitment
	default:
		return nil, ErrNoCommitment
	}
}

func fromObject(obj map[string]any) (*Commitment, error) {
	c := &Commitment{
		Type:         joinText(obj["type"]),
		Issuer:       joinText(obj["issuer"]),
		Authority:    joinText(obj["authority"]),
		BatchID:      joinText(obj["batch_id"]),
		BatchName:    joinText(obj["batch_name"]),
		AcademicYear: joinText(obj["academic_year"]),
		Semester:     joinText(obj["semester"]),
		Faculty:      joinText(obj["faculty"]),
		IssuedAt:     joinText(obj["issued_at"]),
	}
	if c.Type != Type {
		return nil, fmt.Errorf(
			"%w: unexpected type %q",
			ErrNoCommitment,
			c.Type,
		)
	}
	rawHashes, ok := obj["hashes"].([]any)
	if !ok {
		return nil, fmt.Errorf("%w: hashes is not a list", ErrInvalidCommitment)
	}
	c.Hashes = make([]string, 0, len(rawHashes))
	for _, h := range rawHashes {
		c.Hashes = append(c.Hashes, strings.ToLower(joinText(h)))
	}
	switch v := obj["certificate_count"].(type) {
	case json.Number:
		n, err := strconv.ParseUint(v.String(), 10, 64)
		if err != nil {
			return nil, fmt.Errorf(
				"%w: certificate_count: %w",
				ErrInvalidCommitment,
				err,
			)
		}
		c.CertificateCount = n
	case string:
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf(
				"%w: certificate_count: %w",
				ErrInvalidCommitment,
				err,
			)
		}
		c.CertificateCount = n
	case nil:
		c.CertificateCount = uint64(len(c.Hashes))
	default:
		return nil, fmt.Errorf(
			"%w: certificate_count has type %T",
			ErrInvalidCommitment,
			v,
		)
	}
	return c, nil
}

// joinText reverses SplitText
func joinText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		var sb strings.Builder
		for _, part := range t {
			if s, ok := part.(string); ok {
				sb.WriteString(s)
			}
		}
		return sb.String()
	case json.Number:
		return t.String()
	default:
		return ""
	}
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		return ""
	}
}

func firstOf(m map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v, true
		}
	}
	return nil, false
}
