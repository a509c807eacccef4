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

package blob

import (
	"errors"

	"github.com/blinklabs-io/diploma/database/types"
	"github.com/prometheus/client_golang/prometheus"
)

const metricNamePrefix = "database_blob_"

// Metrics counts blob operations. The zero value of *Metrics is usable and
// records nothing.
type Metrics struct {
	Ops   *prometheus.CounterVec
	bytes *prometheus.CounterVec
}

// NewMetrics creates the blob operation counters for the named store and
// registers them when a registry is given
func NewMetrics(promRegistry prometheus.Registerer, store string) *Metrics {
	m := &Metrics{
		Ops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        metricNamePrefix + "ops_total",
				Help:        "Total number of blob operations",
				ConstLabels: prometheus.Labels{"store": store},
			},
			[]string{"op", "result"},
		),
		bytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        metricNamePrefix + "bytes_total",
				Help:        "Total bytes read/written by blob operations",
				ConstLabels: prometheus.Labels{"store": store},
			},
			[]string{"op"},
		),
	}
	if promRegistry == nil {
		return m
	}
	m.Ops = register(promRegistry, m.Ops)
	m.bytes = register(promRegistry, m.bytes)
	return m
}

func register(
	promRegistry prometheus.Registerer,
	c *prometheus.CounterVec,
) *prometheus.CounterVec {
	if err := promRegistry.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
	}
	return c
}

// Observe records the outcome of one operation that moved size bytes
func (m *Metrics) Observe(op string, size int, err error) {
	if m == nil {
		return
	}
	result := "ok"
	switch {
	case errors.Is(err, types.ErrBlobKeyNotFound):
		result = "not_found"
	case err != nil:
		result = "error"
	}
	m.Ops.WithLabelValues(op, result).Inc()
	if err == nil && size > 0 {
		m.bytes.WithLabelValues(op).Add(float64(size))
	}
}
