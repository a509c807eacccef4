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


package config

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"time"

	"github.com/blinklabs-io/diploma/commitment"
	"github.com/blinklabs-io/diploma/database/plugin"
	ouroboros "github.com/blinklabs-io/gouroboros"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "diploma.config"

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

const (
	DefaultBlobPlugin      = "badger"
	DefaultMetadataPlugin  = "sqlite"
	DefaultShutdownTimeout = "30s"
	DefaultIntakeSchedule  = "@every 30s"
	DefaultExchange        = "diploma.private"
)

// ErrPluginListRequested is returned when the user asked for the list of
// available plugins instead of running
var ErrPluginListRequested = errors.New("plugin list requested")

type tempConfig struct {
	Config   *Config                   `yaml:"config,omitempty"`
	Database *databaseConfig           `yaml:"database,omitempty"`
	Blob     map[string]map[string]any `yaml:"blob,omitempty"`
	Metadata map[string]map[string]any `yaml:"metadata,omitempty"`
}

type databaseConfig struct {
	Blob     map[string]any `yaml:"blob,omitempty"`
	Metadata map[string]any `yaml:"metadata,omitempty"`
}

type Config struct {
	DatabasePath        string `yaml:"databasePath"        split_words:"true"`
	BlobPlugin          string `yaml:"blobPlugin"          envconfig:"DIPLOMA_DATABASE_BLOB_PLUGIN"`
	MetadataPlugin      string `yaml:"metadataPlugin"      envconfig:"DIPLOMA_DATABASE_METADATA_PLUGIN"`
	BindAddr            string `yaml:"bindAddr"            split_words:"true"`
	Network             string `yaml:"network"`
	BlockfrostUrl       string `yaml:"blockfrostUrl"       split_words:"true"`
	BlockfrostProjectId string `yaml:"blockfrostProjectId" split_words:"true"`
	UtxorpcUrl          string `yaml:"utxorpcUrl"          split_words:"true"`
	SigningKeyFile      string `yaml:"signingKeyFile"      split_words:"true"`
	Issuer              string `yaml:"issuer"`
	Authority           string `yaml:"authority"`
	AmqpUrl             string `yaml:"amqpUrl"             split_words:"true"`
	AmqpExchange        string `yaml:"amqpExchange"        split_words:"true"`
	AmqpQueue           string `yaml:"amqpQueue"           split_words:"true"`
	Org                 string `yaml:"org"`
	IntakeSchedule      string `yaml:"intakeSchedule"      split_words:"true"`
	ShutdownTimeout     string `yaml:"shutdownTimeout"     split_words:"true"`
	MetadataLabel       uint64 `yaml:"metadataLabel"       split_words:"true"`
	MinOperatingBalance uint64 `yaml:"minOperatingBalance" split_words:"true"`
	SelfPaymentAmount   uint64 `yaml:"selfPaymentAmount"   split_words:"true"`
	SubmitRetries       uint64 `yaml:"submitRetries"       split_words:"true"`
	ApiPort             uint   `yaml:"apiPort"             split_words:"true"`
	MetricsPort         uint   `yaml:"metricsPort"         split_words:"true"`
	AutoIssue           bool   `yaml:"autoIssue"           split_words:"true"`
	Tracing             bool   `yaml:"tracing"`
	TracingStdout       bool   `yaml:"tracingStdout"       split_words:"true"`
}

// DefaultConfig returns a config with every default applied
func DefaultConfig() *Config {
	return &Config{
		DatabasePath:        ".diploma",
		BlobPlugin:          DefaultBlobPlugin,
		MetadataPlugin:      DefaultMetadataPlugin,
		BindAddr:            "0.0.0.0",
		Network:             "preview",
		BlockfrostUrl:       "https://cardano-preview.blockfrost.io/api/v0",
		AmqpExchange:        DefaultExchange,
		IntakeSchedule:      DefaultIntakeSchedule,
		ShutdownTimeout:     DefaultShutdownTimeout,
		MetadataLabel:       commitment.DefaultLabel,
		MinOperatingBalance: 5_000_000,
		SelfPaymentAmount:   1_000_000,
		SubmitRetries:       5,
		ApiPort:             8080,
		MetricsPort:         12798,
	}
}

var globalConfig = DefaultConfig()

// LoadConfig builds the config from defaults, the config file and the
// environment, in that order. An empty configFile searches
// ~/.diploma/diploma.yaml then /etc/diploma/diploma.yaml.
func LoadConfig(configFile string) (*Config, error) {
	cfg := DefaultConfig()
	if configFile == "" {
		configFile = findConfigFile()
	}
	if configFile != "" {
		if err := cfg.loadFile(configFile); err != nil {
			return nil, err
		}
	}
	if err := envconfig.Process("diploma", cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	if err := plugin.ProcessEnvVars(); err != nil {
		return nil, fmt.Errorf(
			"error processing plugin environment variables: %w",
			err,
		)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	globalConfig = cfg
	return cfg, nil
}

func GetConfig() *Config {
	return globalConfig
}

func findConfigFile() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		userPath := filepath.Join(homeDir, ".diploma", "diploma.yaml")
		if _, err := os.Stat(userPath); err == nil {
			return userPath
		}
	}
	systemPath := "/etc/diploma/diploma.yaml"
	if _, err := os.Stat(systemPath); err == nil {
		return systemPath
	}
	return ""
}

func (c *Config) loadFile(configFile string) error {
	buf, err := os.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	// Plugin sections are split out before the main config is decoded
	var tempCfg tempConfig
	if err := yaml.Unmarshal(buf, &tempCfg); err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}
	if tempCfg.Config != nil {
		configBytes, err := yaml.Marshal(tempCfg.Config)
		if err != nil {
			return fmt.Errorf("error re-marshalling config: %w", err)
		}
		if err := yaml.Unmarshal(configBytes, c); err != nil {
			return fmt.Errorf("error parsing config section: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(buf, c); err != nil {
			return fmt.Errorf("error parsing config file: %w", err)
		}
	}

	pluginConfig := make(map[string]map[string]map[string]any)
	if tempCfg.Blob != nil {
		pluginConfig["blob"] = tempCfg.Blob
	}
	if tempCfg.Metadata != nil {
		pluginConfig["metadata"] = tempCfg.Metadata
	}
	if tempCfg.Database != nil {
		if tempCfg.Database.Blob != nil {
			name, options := pluginSection("blob", tempCfg.Database.Blob)
			if name != "" {
				c.BlobPlugin = name
			}
			mergePluginConfig(pluginConfig, "blob", options)
		}
		if tempCfg.Database.Metadata != nil {
			name, options := pluginSection("metadata", tempCfg.Database.Metadata)
			if name != "" {
				c.MetadataPlugin = name
			}
			mergePluginConfig(pluginConfig, "metadata", options)
		}
	}
	if len(pluginConfig) > 0 {
		if err := plugin.ProcessConfig(pluginConfig); err != nil {
			return fmt.Errorf("error processing plugin config: %w", err)
		}
	}
	return nil
}

// pluginSection splits a database.blob or database.metadata section into
// the selected plugin name and the per-plugin option maps
func pluginSection(
	pluginType string,
	section map[string]any,
) (string, map[string]map[string]any) {
	var name string
	if pluginVal, ok := section["plugin"]; ok {
		if pluginName, ok := pluginVal.(string); ok {
			name = pluginName
		}
	}
	options := make(map[string]map[string]any)
	for k, v := range section {
		if k == "plugin" {
			continue
		}
		switch val := v.(type) {
		case map[string]any:
			options[k] = val
		case map[any]any:
			stringAnyMap := make(map[string]any)
			for vk, vv := range val {
				if keyStr, ok := vk.(string); ok {
					stringAnyMap[keyStr] = vv
				}
			}
			options[k] = stringAnyMap
		default:
			fmt.Fprintf(
				os.Stderr,
				"warning: skipping %s config entry %q: expected map, got %T\n",
				pluginType,
				k,
				v,
			)
		}
	}
	return name, options
}

func mergePluginConfig(
	pluginConfig map[string]map[string]map[string]any,
	pluginType string,
	options map[string]map[string]any,
) {
	if pluginConfig[pluginType] == nil {
		pluginConfig[pluginType] = options
		return
	}
	maps.Copy(pluginConfig[pluginType], options)
}

// Validate checks values that cannot be fixed up with a default
func (c *Config) Validate() error {
	if _, ok := ouroboros.NetworkByName(c.Network); !ok {
		return fmt.Errorf("unknown network: %s", c.Network)
	}
	if c.MetadataLabel == 0 {
		return errors.New("metadataLabel must be greater than zero")
	}
	if c.SelfPaymentAmount == 0 {
		return errors.New("selfPaymentAmount must be greater than zero")
	}
	if _, err := c.ShutdownTimeoutDuration(); err != nil {
		return err
	}
	if c.AmqpUrl != "" && c.Org == "" {
		return errors.New("org is required when amqpUrl is set")
	}
	return nil
}

// NetworkID returns the address network id of the configured network
func (c *Config) NetworkID() (uint8, error) {
	network, ok := ouroboros.NetworkByName(c.Network)
	if !ok {
		return 0, fmt.Errorf("unknown network: %s", c.Network)
	}
	return network.Id, nil
}

func (c *Config) ShutdownTimeoutDuration() (time.Duration, error) {
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	d, err := time.ParseDuration(c.ShutdownTimeout)
	if err != nil {
		return 0, fmt.Errorf(
			"invalid shutdownTimeout %q: %w",
			c.ShutdownTimeout,
			err,
		)
	}
	if d <= 0 {
		return 0, fmt.Errorf(
			"invalid shutdownTimeout %q: must be positive",
			c.ShutdownTimeout,
		)
	}
	return d, nil
}
