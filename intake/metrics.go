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

package intake

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultStored    = "stored"
	resultDuplicate = "duplicate"
	resultInvalid   = "invalid"
	resultIgnored   = "ignored"
	resultError     = "error"
)

type intakeMetrics struct {
	messages *prometheus.CounterVec
}

func newIntakeMetrics(promRegistry prometheus.Registerer) *intakeMetrics {
	return &intakeMetrics{
		messages: promauto.With(promRegistry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "diploma_intake_messages_total",
				Help: "private channel messages handled by result",
			},
			[]string{"result"},
		),
	}
}

func (m *intakeMetrics) observe(result string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(result).Inc()
}
