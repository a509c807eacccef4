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

package mysql

import (
	"sync"
	"time"

	"github.com/blinklabs-io/diploma/database/plugin"
)

var (
	cmdlineOptions struct {
		host            string
		port            uint64
		user            string
		password        string
		passwordFile    string
		database        string
		sslMode         string
		timeZone        string
		dsn             string
		maxConns        int
		connMaxLifetime uint64
	}
	cmdlineOptionsMutex sync.RWMutex
)

// initCmdlineOptions sets default values for cmdlineOptions. There is no
// default password.
func initCmdlineOptions() {
	cmdlineOptionsMutex.Lock()
	defer cmdlineOptionsMutex.Unlock()
	cmdlineOptions.host = "localhost"
	cmdlineOptions.port = 3306
	cmdlineOptions.user = "root"
	cmdlineOptions.password = ""
	cmdlineOptions.passwordFile = ""
	cmdlineOptions.database = "diploma"
	cmdlineOptions.sslMode = ""
	cmdlineOptions.timeZone = "UTC"
	cmdlineOptions.dsn = ""
	cmdlineOptions.maxConns = 20
	cmdlineOptions.connMaxLifetime = 3600
}

// Register plugin
func init() {
	initCmdlineOptions()
	plugin.Register(
		plugin.PluginEntry{
			Type:               plugin.PluginTypeMetadata,
			Name:               "mysql",
			Description:        "Batches, students and process log in MySQL",
			NewFromOptionsFunc: NewFromCmdlineOptions,
			Options: []plugin.PluginOption{
				{
					Name:         "host",
					Type:         plugin.PluginOptionTypeString,
					Description:  "MySQL host",
					DefaultValue: "localhost",
					Dest:         &(cmdlineOptions.host),
				},
				{
					Name:         "port",
					Type:         plugin.PluginOptionTypeUint,
					Description:  "MySQL port",
					DefaultValue: uint64(3306),
					Dest:         &(cmdlineOptions.port),
				},
				{
					Name:         "user",
					Type:         plugin.PluginOptionTypeString,
					Description:  "MySQL user",
					DefaultValue: "root",
					Dest:         &(cmdlineOptions.user),
				},
				{
					Name:         "password",
					Type:         plugin.PluginOptionTypeString,
					Description:  "MySQL password",
					DefaultValue: "",
					Dest:         &(cmdlineOptions.password),
				},
				{
					Name:         "password-file",
					Type:         plugin.PluginOptionTypeString,
					Description:  "File holding the MySQL password",
					DefaultValue: "",
					Dest:         &(cmdlineOptions.passwordFile),
				},
				{
					Name:         "database",
					Type:         plugin.PluginOptionTypeString,
					Description:  "MySQL database name",
					DefaultValue: "diploma",
					Dest:         &(cmdlineOptions.database),
				},
				{
					Name:         "ssl-mode",
					Type:         plugin.PluginOptionTypeString,
					Description:  "MySQL TLS mode (mapped to tls= in DSN)",
					DefaultValue: "",
					Dest:         &(cmdlineOptions.sslMode),
				},
				{
					Name:         "timezone",
					Type:         plugin.PluginOptionTypeString,
					Description:  "MySQL time zone location",
					DefaultValue: "UTC",
					Dest:         &(cmdlineOptions.timeZone),
				},
				{
					Name:         "dsn",
					Type:         plugin.PluginOptionTypeString,
					Description:  "Full MySQL DSN (overrides other options when set)",
					DefaultValue: "",
					Dest:         &(cmdlineOptions.dsn),
				},
				{
					Name:         "max-connections",
					Type:         plugin.PluginOptionTypeInt,
					Description:  "Maximum number of open connections",
					DefaultValue: 20,
					Dest:         &(cmdlineOptions.maxConns),
				},
				{
					Name:         "conn-max-lifetime",
					Type:         plugin.PluginOptionTypeUint,
					Description:  "Seconds a pooled connection is reused",
					DefaultValue: uint64(3600),
					Dest:         &(cmdlineOptions.connMaxLifetime),
				},
			},
		},
	)
}

func NewFromCmdlineOptions() plugin.Plugin {
	cmdlineOptionsMutex.RLock()
	opts := []MysqlOptionFunc{
		WithHost(cmdlineOptions.host),
		WithPort(uint(cmdlineOptions.port)),
		WithUser(cmdlineOptions.user),
		WithPassword(cmdlineOptions.password),
		WithPasswordFile(cmdlineOptions.passwordFile),
		WithDatabase(cmdlineOptions.database),
		WithSSLMode(cmdlineOptions.sslMode),
		WithTimeZone(cmdlineOptions.timeZone),
		WithDSN(cmdlineOptions.dsn),
		WithMaxConnections(cmdlineOptions.maxConns),
		WithConnMaxLifetime(
			time.Duration(cmdlineOptions.connMaxLifetime) * time.Second, //nolint:gosec // small second count
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
