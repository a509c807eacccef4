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

package ledger

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type commitMetrics struct {
	commits        *prometheus.CounterVec
	commitDuration prometheus.Histogram
}

func newCommitMetrics(promRegistry prometheus.Registerer) *commitMetrics {
	promautoFactory := promauto.With(promRegistry)
	return &commitMetrics{
		commits: promautoFactory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "diploma_ledger_commits_total",
				Help: "certificate commitments by result",
			},
			[]string{"result"},
		),
		commitDuration: promautoFactory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "diploma_ledger_commit_duration_seconds",
				Help:    "time from commit request to mempool acceptance",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
		),
	}
}

func (m *commitMetrics) observe(err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	switch {
	case errors.Is(err, ErrInsufficientFunds):
		result = "insufficient_funds"
	case err != nil:
		result = "error"
	}
	m.commits.WithLabelValues(result).Inc()
	if err == nil {
		m.commitDuration.Observe(elapsed.Seconds())
	}
}

type accountMetrics struct {
	pendingInputs prometheus.Gauge
	submitRetries prometheus.Counter
}

func newAccountMetrics(promRegistry prometheus.Registerer) *accountMetrics {
	promautoFactory := promauto.With(promRegistry)
	return &accountMetrics{
		pendingInputs: promautoFactory.NewGauge(prometheus.GaugeOpts{
			Name: "diploma_ledger_pending_inputs",
			Help: "inputs reserved by submissions not yet indexed",
		}),
		submitRetries: promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: "diploma_ledger_submit_retries_total",
			Help: "transaction resubmissions after transient failures",
		}),
	}
}

func (m *accountMetrics) setPending(n int) {
	if m == nil {
		return
	}
	m.pendingInputs.Set(float64(n))
}

func (m *accountMetrics) incRetries() {
	if m == nil {
		return
	}
	m.submitRetries.Inc()
}
