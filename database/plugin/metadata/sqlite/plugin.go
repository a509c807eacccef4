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


package sqlite

import (
	"sync"
	"time"

	"github.com/blinklabs-io/diploma/database/plugin"
)

var (
	cmdlineOptions struct {
		dataDir        string
		maxConns       int
		busyTimeoutMs  uint64
		vacuumInterval uint64
	}
	cmdlineOptionsMutex sync.RWMutex
)

// initCmdlineOptions sets default values for cmdlineOptions
func initCmdlineOptions() {
	cmdlineOptionsMutex.Lock()
	defer cmdlineOptionsMutex.Unlock()
	cmdlineOptions.dataDir = ".diploma"
	cmdlineOptions.maxConns = DefaultMaxConnections
	cmdlineOptions.busyTimeoutMs = uint64(DefaultBusyTimeout / time.Millisecond)
	cmdlineOptions.vacuumInterval = uint64(DefaultVacuumInterval / time.Hour)
}

// Register plugin
func init() {
	initCmdlineOptions()
	plugin.Register(
		plugin.PluginEntry{
			Type:               plugin.PluginTypeMetadata,
			Name:               "sqlite",
			Description:        "Batches, students and process log in a local SQLite file",
			NewFromOptionsFunc: NewFromCmdlineOptions,
			Options: []plugin.PluginOption{
				{
					Name:         "data-dir",
					Type:         plugin.PluginOptionTypeString,
					Description:  "Data directory for sqlite storage (empty for in-memory)",
					DefaultValue: ".diploma",
					Dest:         &(cmdlineOptions.dataDir),
				},
				{
					Name:         "max-connections",
					Type:         plugin.PluginOptionTypeInt,
					Description:  "Maximum number of open connections",
					DefaultValue: DefaultMaxConnections,
					Dest:         &(cmdlineOptions.maxConns),
				},
				{
					Name:         "busy-timeout",
					Type:         plugin.PluginOptionTypeUint,
					Description:  "Milliseconds a writer waits on a locked database",
					DefaultValue: uint64(DefaultBusyTimeout / time.Millisecond),
					Dest:         &(cmdlineOptions.busyTimeoutMs),
				},
				{
					Name:         "vacuum-interval",
					Type:         plugin.PluginOptionTypeUint,
					Description:  "Hours between VACUUM runs (0 disables)",
					DefaultValue: uint64(DefaultVacuumInterval / time.Hour),
					Dest:         &(cmdlineOptions.vacuumInterval),
				},
			},
		},
	)
}

func NewFromCmdlineOptions() plugin.Plugin {
	cmdlineOptionsMutex.RLock()
	opts := []SqliteOptionFunc{
		WithDataDir(cmdlineOptions.dataDir),
		WithMaxConnections(cmdlineOptions.maxConns),
		WithBusyTimeout(
			time.Duration(cmdlineOptions.busyTimeoutMs) * time.Millisecond, //nolint:gosec // small millisecond count
		),
		WithVacuumInterval(
			time.Duration(cmdlineOptions.vacuumInterval) * time.Hour, //nolint:gosec // small hour count
		),
		// Logger and promRegistry are handed over before Start()
	}
	cmdlineOptionsMutex.RUnlock()
	p, err := NewWithOptions(opts...)
	if err != nil {
		// Return a plugin that defers the error to Start()
		return plugin.NewErrorPlugin(err)
	}
	return p
}
