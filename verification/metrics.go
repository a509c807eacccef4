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

package verification

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type verifyMetrics struct {
	results *prometheus.CounterVec
}

func newVerifyMetrics(promRegistry prometheus.Registerer) *verifyMetrics {
	return &verifyMetrics{
		results: promauto.With(promRegistry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "diploma_verifications_total",
				Help: "verification requests by reason",
			},
			[]string{"reason"},
		),
	}
}

func (m *verifyMetrics) observe(res Result) {
	if m == nil {
		return
	}
	m.results.WithLabelValues(res.Reason).Inc()
}
