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


package badger

import (
	"sync"
	"time"

	"github.com/blinklabs-io/diploma/database/plugin"
)

var (
	cmdlineOptions struct {
		dataDir        string
		blockCacheSize uint64
		indexCacheSize uint64
		valueThreshold uint64
		gcInterval     uint64
		gcEnabled      bool
	}
	cmdlineOptionsMutex sync.RWMutex
)

func initCmdlineOptions() {
	cmdlineOptionsMutex.Lock()
	defer cmdlineOptionsMutex.Unlock()
	cmdlineOptions.dataDir = ".diploma"
	cmdlineOptions.blockCacheSize = DefaultBlockCacheSize
	cmdlineOptions.indexCacheSize = DefaultIndexCacheSize
	cmdlineOptions.valueThreshold = DefaultValueThreshold
	cmdlineOptions.gcInterval = uint64(DefaultGcInterval / time.Second)
	cmdlineOptions.gcEnabled = true
}

func init() {
	initCmdlineOptions()
	plugin.Register(
		plugin.PluginEntry{
			Type:               plugin.PluginTypeBlob,
			Name:               "badger",
			Description:        "Certificate documents in a local BadgerDB store",
			NewFromOptionsFunc: NewFromCmdlineOptions,
			Options: []plugin.PluginOption{
				{
					Name:         "data-dir",
					Type:         plugin.PluginOptionTypeString,
					Description:  "Directory for certificate documents (empty for in-memory)",
					DefaultValue: ".diploma",
					Dest:         &(cmdlineOptions.dataDir),
				},
				{
					Name:         "block-cache-size",
					Type:         plugin.PluginOptionTypeUint,
					Description:  "Badger block cache size in bytes",
					DefaultValue: uint64(DefaultBlockCacheSize),
					Dest:         &(cmdlineOptions.blockCacheSize),
				},
				{
					Name:         "index-cache-size",
					Type:         plugin.PluginOptionTypeUint,
					Description:  "Badger index cache size in bytes",
					DefaultValue: uint64(DefaultIndexCacheSize),
					Dest:         &(cmdlineOptions.indexCacheSize),
				},
				{
					Name:         "value-threshold",
					Type:         plugin.PluginOptionTypeUint,
					Description:  "Documents larger than this many bytes go to the value log",
					DefaultValue: uint64(DefaultValueThreshold),
					Dest:         &(cmdlineOptions.valueThreshold),
				},
				{
					Name:         "gc",
					Type:         plugin.PluginOptionTypeBool,
					Description:  "Reclaim space from deleted and replaced documents",
					DefaultValue: true,
					Dest:         &(cmdlineOptions.gcEnabled),
				},
				{
					Name:         "gc-interval",
					Type:         plugin.PluginOptionTypeUint,
					Description:  "Seconds between value log GC runs",
					DefaultValue: uint64(DefaultGcInterval / time.Second),
					Dest:         &(cmdlineOptions.gcInterval),
				},
			},
		},
	)
}

func NewFromCmdlineOptions() plugin.Plugin {
	cmdlineOptionsMutex.RLock()
	opts := []BlobStoreBadgerOptionFunc{
		WithDataDir(cmdlineOptions.dataDir),
		WithBlockCacheSize(cmdlineOptions.blockCacheSize),
		WithIndexCacheSize(cmdlineOptions.indexCacheSize),
		WithValueThreshold(int64(cmdlineOptions.valueThreshold)), //nolint:gosec // threshold is a small byte count
		WithGc(cmdlineOptions.gcEnabled),
		WithGcInterval(
			time.Duration(cmdlineOptions.gcInterval) * time.Second, //nolint:gosec // interval is a small second count
		),
		// Logger and promRegistry are handed over before Start()
	}
	cmdlineOptionsMutex.RUnlock()
	return NewWithOptions(opts...)
}
