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


package blockfrost

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	DefaultPaginationCount    = 100
	MaxPaginationCount        = 100
	DefaultPaginationPage     = 1
	DefaultPaginationOrderAsc = "asc"
	PaginationOrderDesc       = "desc"
)

var ErrInvalidPaginationParameters = errors.New(
	"invalid pagination parameters",
)

// PaginationParams holds the count, page and order query values of a
// paged Blockfrost style listing. Servers parse them with
// ParsePagination, clients send them with Values.
type PaginationParams struct {
	Order string
	Count int
	Page  int
}

// DefaultPagination returns the first page of count items in ascending
// order
func DefaultPagination(count int) PaginationParams {
	return PaginationParams{
		Count: min(max(count, 1), MaxPaginationCount),
		Page:  DefaultPaginationPage,
		Order: DefaultPaginationOrderAsc,
	}
}

// ParsePagination reads the pagination query parameters of r. Missing
// values take their defaults, out of range count and page values are
// clamped, anything unparseable is ErrInvalidPaginationParameters.
func ParsePagination(r *http.Request) (PaginationParams, error) {
	params := DefaultPagination(DefaultPaginationCount)
	query := r.URL.Query()
	var err error
	if params.Count, err = intParam(query, "count", params.Count); err != nil {
		return PaginationParams{}, err
	}
	if params.Page, err = intParam(query, "page", params.Page); err != nil {
		return PaginationParams{}, err
	}
	if order := query.Get("order"); order != "" {
		switch order = strings.ToLower(order); order {
		case DefaultPaginationOrderAsc, PaginationOrderDesc:
			params.Order = order
		default:
			return PaginationParams{}, ErrInvalidPaginationParameters
		}
	}
	params.Count = min(max(params.Count, 1), MaxPaginationCount)
	params.Page = max(params.Page, 1)
	return params, nil
}

func intParam(query url.Values, name string, def int) (int, error) {
	raw := query.Get(name)
	if raw == "" {
		return def, nil
	}
	ret, err := strconv.Atoi(raw)
	if err != nil {
		return 0, ErrInvalidPaginationParameters
	}
	return ret, nil
}

// Bounds returns the slice indexes of the current page within total
// items. Pages past the end are empty.
func (p PaginationParams) Bounds(total int) (start, end int) {
	count := max(p.Count, 1)
	start = min(max(p.Page-1, 0)*count, max(total, 0))
	end = min(start+count, max(total, 0))
	return start, end
}

// Next returns the params of the following page
func (p PaginationParams) Next() PaginationParams {
	p.Page++
	return p
}

// SetPaginationHeaders reports the item and page totals of a listing
func SetPaginationHeaders(
	w http.ResponseWriter,
	totalItems int,
	params PaginationParams,
) {
	totalItems = max(totalItems, 0)
	if params.Count < 1 {
		params.Count = DefaultPaginationCount
	}
	// ceil(totalItems / count)
	totalPages := (totalItems + params.Count - 1) / params.Count
	w.Header().Set("X-Pagination-Count-Total", strconv.Itoa(totalItems))
	w.Header().Set("X-Pagination-Page-Total", strconv.Itoa(totalPages))
}

// Values encodes the params as query parameters
func (p PaginationParams) Values() url.Values {
	ret := url.Values{}
	if p.Count > 0 {
		ret.Set("count", strconv.Itoa(p.Count))
	}
	if p.Page > 0 {
		ret.Set("page", strconv.Itoa(p.Page))
	}
	if p.Order != "" {
		ret.Set("order", p.Order)
	}
	return ret
}
