// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

type ModelVaultConfig struct {
	// Volumes: where shared model volumes live on this host
	Volumes VolumeConfig `yaml:"volumes"`

	// Hub: the model repository downloads come from
	Hub HubConfig `yaml:"hub"`

	// Deployed: how to reach the deployed placement service
	Deployed DeployedConfig `yaml:"deployed"`

	// Backup: optional GCS backup destination
	Backup BackupConfig `yaml:"backup"`

	// Logging: CLI log output
	Logging LoggingConfig `yaml:"logging"`
}

type VolumeConfig struct {
	BaseDir string `yaml:"base_dir"` // e.g. /volumes
	Default string `yaml:"default"`  // volume used when a command names none
}

type HubConfig struct {
	// Endpoint overrides the default model repository URL.
	// Mostly useful for pointing at a mirror or a test stub.
	Endpoint string `yaml:"endpoint,omitempty"`
}

type DeployedConfig struct {
	BaseURL  string `yaml:"base_url"` // e.g. http://localhost:8011
	App      string `yaml:"app"`
	Function string `yaml:"function"`
}

type BackupConfig struct {
	ProjectId  string `yaml:"project_id"`
	BucketName string `yaml:"bucket_name"`
	SAKeyPath  string `yaml:"sa_key_path"`
}

type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	Dir   string `yaml:"dir"`   // file logging when set
	JSON  bool   `yaml:"json"`
}

func DefaultConfig() ModelVaultConfig {
	return ModelVaultConfig{
		Volumes: VolumeConfig{
			BaseDir: "/volumes",
			Default: "comfy-model",
		},
		Deployed: DeployedConfig{
			BaseURL:  "http://localhost:8011",
			App:      "preserve-model",
			Function: "preserve-model",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
