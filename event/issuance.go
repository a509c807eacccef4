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

package event

import "time"

const (
	// IssuanceStageEventType is published on every stage change of a batch
	IssuanceStageEventType EventType = "issuance.stage"
	// BatchReceivedEventType is published when intake stores a new batch
	BatchReceivedEventType EventType = "intake.batch"
)

type IssuanceStageEvent struct {
	Timestamp     time.Time
	BatchID       string
	Stage         string
	PreviousStage string
	TxID          string
	Error         string
}

type BatchReceivedEvent struct {
	BatchID       string
	SubmittingOrg string
	MessageID     string
	StudentCount  int
}
