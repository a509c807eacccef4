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

package plugin

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/pflag"
)

type PluginType int

const (
	PluginTypeBlob PluginType = iota + 1
	PluginTypeMetadata
)

// EnvPrefix is prepended to plugin option environment variables, for
// example DIPLOMA_DATABASE_BLOB_BADGER_DATA_DIR
const EnvPrefix = "DIPLOMA_DATABASE"

type PluginOptionType int

const (
	PluginOptionTypeString PluginOptionType = iota + 1
	PluginOptionTypeBool
	PluginOptionTypeInt
	PluginOptionTypeUint
)

type PluginOption struct {
	DefaultValue any
	Dest         any
	Name         string
	Description  string
	Type         PluginOptionType
}

type PluginEntry struct {
	NewFromOptionsFunc func() Plugin
	Name               string
	Description        string
	Options            []PluginOption
	Type               PluginType
}

var (
	pluginEntries      []PluginEntry
	pluginEntriesMutex sync.RWMutex
)

// Register adds a plugin to the registry, replacing any entry with the same
// type and name. Plugins call this from init().
func Register(pluginEntry PluginEntry) {
	pluginEntriesMutex.Lock()
	defer pluginEntriesMutex.Unlock()
	for i, p := range pluginEntries {
		if p.Type == pluginEntry.Type && p.Name == pluginEntry.Name {
			pluginEntries[i] = pluginEntry
			return
		}
	}
	pluginEntries = append(pluginEntries, pluginEntry)
}

// GetPlugins returns the registered plugins of the given type
func GetPlugins(pluginType PluginType) []PluginEntry {
	pluginEntriesMutex.RLock()
	defer pluginEntriesMutex.RUnlock()
	ret := []PluginEntry{}
	for _, p := range pluginEntries {
		if p.Type == pluginType {
			ret = append(ret, p)
		}
	}
	return ret
}

// GetPlugin returns a new instance of the named plugin, or nil if no such
// plugin is registered
func GetPlugin(pluginType PluginType, name string) Plugin {
	pluginEntriesMutex.RLock()
	var newFunc func() Plugin
	for _, p := range pluginEntries {
		if p.Type == pluginType && p.Name == name {
			newFunc = p.NewFromOptionsFunc
			break
		}
	}
	pluginEntriesMutex.RUnlock()
	if newFunc == nil {
		return nil
	}
	return newFunc()
}

func PluginTypeName(pluginType PluginType) string {
	switch pluginType {
	case PluginTypeBlob:
		return "blob"
	case PluginTypeMetadata:
		return "metadata"
	default:
		return ""
	}
}

// PopulateCmdlineOptions adds a flag for every plugin option, named
// <type>-<plugin>-<option>, for example --blob-badger-data-dir
func PopulateCmdlineOptions(fs *pflag.FlagSet) error {
	pluginEntriesMutex.RLock()
	defer pluginEntriesMutex.RUnlock()
	for _, p := range pluginEntries {
		for _, opt := range p.Options {
			flagName := strings.Join(
				[]string{PluginTypeName(p.Type), p.Name, opt.Name},
				"-",
			)
			if err := addFlag(fs, flagName, opt); err != nil {
				return err
			}
		}
	}
	return nil
}

func addFlag(fs *pflag.FlagSet, name string, opt PluginOption) error {
	switch opt.Type {
	case PluginOptionTypeString:
		dest, ok := opt.Dest.(*string)
		if !ok {
			return fmt.Errorf("option %s: destination is not *string", name)
		}
		def, _ := opt.DefaultValue.(string)
		fs.StringVar(dest, name, def, opt.Description)
	case PluginOptionTypeBool:
		dest, ok := opt.Dest.(*bool)
		if !ok {
			return fmt.Errorf("option %s: destination is not *bool", name)
		}
		def, _ := opt.DefaultValue.(bool)
		fs.BoolVar(dest, name, def, opt.Description)
	case PluginOptionTypeInt:
		dest, ok := opt.Dest.(*int)
		if !ok {
			return fmt.Errorf("option %s: destination is not *int", name)
		}
		def, _ := opt.DefaultValue.(int)
		fs.IntVar(dest, name, def, opt.Description)
	case PluginOptionTypeUint:
		dest, ok := opt.Dest.(*uint64)
		if !ok {
			return fmt.Errorf("option %s: destination is not *uint64", name)
		}
		def, _ := opt.DefaultValue.(uint64)
		fs.Uint64Var(dest, name, def, opt.Description)
	default:
		return fmt.Errorf("option %s: unknown option type %d", name, opt.Type)
	}
	return nil
}

// ProcessEnvVars applies plugin options from the environment
func ProcessEnvVars() error {
	pluginEntriesMutex.RLock()
	defer pluginEntriesMutex.RUnlock()
	for _, p := range pluginEntries {
		for _, opt := range p.Options {
			envName := envVarName(p.Type, p.Name, opt.Name)
			raw, ok := os.LookupEnv(envName)
			if !ok {
				continue
			}
			value, err := parseOptionValue(opt.Type, raw)
			if err != nil {
				return fmt.Errorf("environment variable %s: %w", envName, err)
			}
			if err := opt.assign(value); err != nil {
				return fmt.Errorf("environment variable %s: %w", envName, err)
			}
		}
	}
	return nil
}

// ProcessConfig applies plugin options from the config file. The map is
// keyed by plugin type name, then plugin name, then option name.
func ProcessConfig(pluginConfig map[string]map[string]map[string]any) error {
	pluginEntriesMutex.RLock()
	defer pluginEntriesMutex.RUnlock()
	for _, p := range pluginEntries {
		typeConfig, ok := pluginConfig[PluginTypeName(p.Type)]
		if !ok {
			continue
		}
		options, ok := typeConfig[p.Name]
		if !ok {
			continue
		}
		for _, opt := range p.Options {
			value, ok := options[opt.Name]
			if !ok {
				continue
			}
			if s, isString := value.(string); isString &&
				opt.Type != PluginOptionTypeString {
				parsed, err := parseOptionValue(opt.Type, s)
				if err != nil {
					return fmt.Errorf(
						"%s plugin %s option %s: %w",
						PluginTypeName(p.Type), p.Name, opt.Name, err,
					)
				}
				value = parsed
			}
			if err := opt.assign(value); err != nil {
				return fmt.Errorf(
					"%s plugin %s: %w",
					PluginTypeName(p.Type), p.Name, err,
				)
			}
		}
	}
	return nil
}

func envVarName(pluginType PluginType, pluginName, optionName string) string {
	name := strings.Join(
		[]string{EnvPrefix, PluginTypeName(pluginType), pluginName, optionName},
		"_",
	)
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

func parseOptionValue(optType PluginOptionType, raw string) (any, error) {
	switch optType {
	case PluginOptionTypeString:
		return raw, nil
	case PluginOptionTypeBool:
		return strconv.ParseBool(raw)
	case PluginOptionTypeInt:
		return strconv.Atoi(raw)
	case PluginOptionTypeUint:
		return strconv.ParseUint(raw, 10, 64)
	default:
		return nil, fmt.Errorf("unknown option type %d", optType)
	}
}
