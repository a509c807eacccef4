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

package metadata

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/blinklabs-io/diploma/database/models"
	"github.com/blinklabs-io/diploma/database/plugin"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

type MetadataStore interface {
	// Database
	Close() error
	DB() *gorm.DB

	// Batches
	CreateBatch(context.Context, *models.Batch, []models.Student) error
	GetBatch(context.Context, string) (*models.Batch, error)
	ListBatches(context.Context, ...models.BatchStatus) ([]models.Batch, error)
	TransitionBatchStatus(
		context.Context,
		string, // batchID
		[]models.BatchStatus, // from
		models.BatchStatus, // to
		string, // errorMessage
	) error
	SetBatchTransaction(
		context.Context,
		string, // batchID
		string, // txID
		time.Time, // committedAt
	) error
	MarkBatchNotified(context.Context, string, bool) error

	// Students
	ListStudents(context.Context, string) ([]models.Student, error)
	CertifyStudent(context.Context, *models.Student) error
	FindStudentByHash(context.Context, string) (*models.Student, error)
	FindStudentByCertificateID(context.Context, string) (*models.Student, error)

	// Audit trail
	AppendProcessLog(context.Context, *models.ProcessLog) error
	ListProcessLogs(context.Context, string) ([]models.ProcessLog, error)
}

// New returns the started metadata plugin selected by name. dataDir
// overrides the plugin's data-dir option, where an empty value selects
// in-memory storage for plugins that support it.
func New(
	pluginName, dataDir string,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (MetadataStore, error) {
	if err := plugin.SetPluginOption(
		plugin.PluginTypeMetadata,
		pluginName,
		"data-dir",
		dataDir,
	); err != nil {
		return nil, err
	}
	p, err := plugin.StartPluginWithObservability(
		plugin.PluginTypeMetadata,
		pluginName,
		logger,
		promRegistry,
	)
	if err != nil {
		return nil, err
	}
	metadataStore, ok := p.(MetadataStore)
	if !ok {
		_ = p.Stop()
		return nil, fmt.Errorf(
			"plugin '%s' does not implement MetadataStore interface",
			pluginName,
		)
	}
	return metadataStore, nil
}
