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
	"context"
	"fmt"
	"log/slog"

	"github.com/blinklabs-io/diploma/database/plugin"
	"github.com/prometheus/client_golang/prometheus"
)

// BlobStore holds opaque documents by key. Get returns
// types.ErrBlobKeyNotFound for missing keys, Delete of a missing key
// succeeds.
type BlobStore interface {
	Close() error
	Get(context.Context, string) ([]byte, error)
	Put(context.Context, string, []byte) error
	Delete(context.Context, string) error
}

// New returns the started blob plugin selected by name. dataDir
// overrides the plugin's data-dir option, where an empty value selects
// in-memory storage for plugins that support it.
func New(
	pluginName, dataDir string,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (BlobStore, error) {
	if err := plugin.SetPluginOption(
		plugin.PluginTypeBlob,
		pluginName,
		"data-dir",
		dataDir,
	); err != nil {
		return nil, err
	}
	// Get and start the plugin
	p, err := plugin.StartPluginWithObservability(
		plugin.PluginTypeBlob,
		pluginName,
		logger,
		promRegistry,
	)
	if err != nil {
		return nil, err
	}

	// Type assert to BlobStore interface
	blobStore, ok := p.(BlobStore)
	if !ok {
		_ = p.Stop()
		return nil, fmt.Errorf(
			"plugin '%s' does not implement BlobStore interface",
			pluginName,
		)
	}

	return blobStore, nil
}
