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


package aws

import (
	"sync"
	"time"

	"github.com/blinklabs-io/diploma/database/plugin"
)

var (
	cmdlineOptions struct {
		endpoint    string
		bucket      string
		region      string
		prefix      string
		sse         string
		sseKmsKeyID string
		timeout     uint64
	}
	cmdlineOptionsMutex sync.RWMutex
)

func init() {
	plugin.Register(
		plugin.PluginEntry{
			Type:               plugin.PluginTypeBlob,
			Name:               "s3",
			Description:        "Certificate documents in an AWS S3 bucket",
			NewFromOptionsFunc: NewFromCmdlineOptions,
			Options: []plugin.PluginOption{
				{
					Name:         "endpoint",
					Type:         plugin.PluginOptionTypeString,
					Description:  "Custom S3 endpoint for S3-compatible services",
					DefaultValue: "",
					Dest:         &(cmdlineOptions.endpoint),
				},
				{
					Name:         "bucket",
					Type:         plugin.PluginOptionTypeString,
					Description:  "S3 bucket for certificate documents",
					DefaultValue: "",
					Dest:         &(cmdlineOptions.bucket),
				},
				{
					Name:         "region",
					Type:         plugin.PluginOptionTypeString,
					Description:  "AWS region (default from the AWS environment)",
					DefaultValue: "",
					Dest:         &(cmdlineOptions.region),
				},
				{
					Name:         "prefix",
					Type:         plugin.PluginOptionTypeString,
					Description:  "Object key prefix for certificate documents",
					DefaultValue: "",
					Dest:         &(cmdlineOptions.prefix),
				},
				{
					Name:         "sse",
					Type:         plugin.PluginOptionTypeString,
					Description:  "Server-side encryption: AES256 or aws:kms (empty for bucket default)",
					DefaultValue: "",
					Dest:         &(cmdlineOptions.sse),
				},
				{
					Name:         "sse-kms-key-id",
					Type:         plugin.PluginOptionTypeString,
					Description:  "KMS key for aws:kms server-side encryption",
					DefaultValue: "",
					Dest:         &(cmdlineOptions.sseKmsKeyID),
				},
				{
					Name:         "timeout",
					Type:         plugin.PluginOptionTypeUint,
					Description:  "Seconds allowed per S3 request",
					DefaultValue: uint64(60),
					Dest:         &(cmdlineOptions.timeout),
				},
			},
		},
	)
}

func NewFromCmdlineOptions() plugin.Plugin {
	cmdlineOptionsMutex.RLock()
	opts := []BlobStoreS3OptionFunc{
		WithEndpoint(cmdlineOptions.endpoint),
		WithBucket(cmdlineOptions.bucket),
		WithRegion(cmdlineOptions.region),
		WithPrefix(cmdlineOptions.prefix),
		WithServerSideEncryption(cmdlineOptions.sse, cmdlineOptions.sseKmsKeyID),
		WithTimeout(
			time.Duration(cmdlineOptions.timeout) * time.Second, //nolint:gosec // timeout is a small second count
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
