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
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultCompleted = "completed"
	resultPartial   = "partially_completed"
	resultFailed    = "failed"
	resultRejected  = "rejected"
)

type issuanceMetrics struct {
	batches      *prometheus.CounterVec
	certificates prometheus.Counter
	duration     prometheus.Histogram
}

func newIssuanceMetrics(promRegistry prometheus.Registerer) *issuanceMetrics {
	promautoFactory := promauto.With(promRegistry)
	return &issuanceMetrics{
		batches: promautoFactory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "diploma_issuance_batches_total",
				Help: "issuance runs by result",
			},
			[]string{"result"},
		),
		certificates: promautoFactory.NewCounter(
			prometheus.CounterOpts{
				Name: "diploma_issuance_certificates_total",
				Help: "certificates recorded with a ledger transaction",
			},
		),
		duration: promautoFactory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "diploma_issuance_duration_seconds",
				Help:    "duration of issuance runs",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
			},
		),
	}
}

func (m *issuanceMetrics) observe(res *Result, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.duration.Observe(elapsed.Seconds())
	if res != nil {
		m.certificates.Add(float64(len(res.Certificates)))
	}
	var perr *PersistenceAfterCommitError
	switch {
	case err == nil:
		m.batches.WithLabelValues(resultCompleted).Inc()
	case errors.As(err, &perr):
		m.batches.WithLabelValues(resultPartial).Inc()
	case res != nil:
		m.batches.WithLabelValues(resultFailed).Inc()
	default:
		m.batches.WithLabelValues(resultRejected).Inc()
	}
}
