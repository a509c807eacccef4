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

package models

import (
	"time"

	"gorm.io/datatypes"
)

// ProcessLog is the append-only audit trail of batch processing
type ProcessLog struct {
	CreatedAt     time.Time `gorm:"index"`
	Details       datatypes.JSON
	BatchID       string `gorm:"size:64;index;not null"`
	Stage         string `gorm:"size:32;not null"`
	Level         string `gorm:"size:16;not null"`
	Message       string
	TransactionID string `gorm:"size:64"`
	ID            uint   `gorm:"primarykey"`
}

func (ProcessLog) TableName() string {
	return "process_log"
}
