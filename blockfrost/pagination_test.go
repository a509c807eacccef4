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
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePagination(t *testing.T) {
	testDefs := []struct {
		name    string
		query   string
		want    PaginationParams
		wantErr bool
	}{
		{
			name: "defaults",
			want: PaginationParams{Count: 100, Page: 1, Order: "asc"},
		},
		{
			name:  "explicit",
			query: "?count=25&page=3&order=DESC",
			want:  PaginationParams{Count: 25, Page: 3, Order: "desc"},
		},
		{
			name:  "clamped",
			query: "?count=999&page=0",
			want:  PaginationParams{Count: 100, Page: 1, Order: "asc"},
		},
		{name: "bad count", query: "?count=abc", wantErr: true},
		{name: "bad page", query: "?page=abc", wantErr: true},
		{name: "bad order", query: "?order=sideways", wantErr: true},
	}
	for _, td := range testDefs {
		t.Run(td.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/batches"+td.query, nil)
			params, err := ParsePagination(req)
			if td.wantErr {
				require.ErrorIs(t, err, ErrInvalidPaginationParameters)
				assert.Equal(t, PaginationParams{}, params)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, td.want, params)
		})
	}
}

func TestPaginationValuesRoundTrip(t *testing.T) {
	params := PaginationParams{Count: 50, Page: 4, Order: PaginationOrderDesc}
	req := httptest.NewRequest(
		http.MethodGet,
		"/utxos?"+params.Values().Encode(),
		nil,
	)
	parsed, err := ParsePagination(req)
	require.NoError(t, err)
	assert.Equal(t, params, parsed)
	assert.Empty(t, PaginationParams{}.Values())
}

func TestSetPaginationHeaders(t *testing.T) {
	testDefs := []struct {
		total     int
		count     int
		wantTotal string
		wantPages string
	}{
		{total: 250, count: 100, wantTotal: "250", wantPages: "3"},
		{total: 100, count: 100, wantTotal: "100", wantPages: "1"},
		{total: -1, count: 0, wantTotal: "0", wantPages: "0"},
	}
	for _, td := range testDefs {
		recorder := httptest.NewRecorder()
		SetPaginationHeaders(
			recorder,
			td.total,
			PaginationParams{Count: td.count, Page: 1, Order: "asc"},
		)
		assert.Equal(t, td.wantTotal, recorder.Header().Get("X-Pagination-Count-Total"))
		assert.Equal(t, td.wantPages, recorder.Header().Get("X-Pagination-Page-Total"))
	}
}

func TestPaginationBounds(t *testing.T) {
	testDefs := []struct {
		params    PaginationParams
		total     int
		wantStart int
		wantEnd   int
	}{
		{params: DefaultPagination(10), total: 25, wantStart: 0, wantEnd: 10},
		{params: DefaultPagination(10).Next().Next(), total: 25, wantStart: 20, wantEnd: 25},
		{params: PaginationParams{Count: 10, Page: 4}, total: 25, wantStart: 25, wantEnd: 25},
		{params: PaginationParams{}, total: 3, wantStart: 0, wantEnd: 1},
		{params: DefaultPagination(10), total: 0, wantStart: 0, wantEnd: 0},
	}
	for _, td := range testDefs {
		start, end := td.params.Bounds(td.total)
		assert.Equal(t, td.wantStart, start, "%+v", td.params)
		assert.Equal(t, td.wantEnd, end, "%+v", td.params)
	}
}

func TestDefaultPagination(t *testing.T) {
	assert.Equal(
		t,
		PaginationParams{Count: MaxPaginationCount, Page: 1, Order: "asc"},
		DefaultPagination(500),
	)
	assert.Equal(t, 1, DefaultPagination(0).Count)
	assert.Equal(t, 2, DefaultPagination(5).Next().Page)
}
