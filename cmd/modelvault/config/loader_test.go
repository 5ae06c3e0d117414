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

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Volumes.BaseDir != "/volumes" {
		t.Errorf("Volumes.BaseDir = %q, want /volumes", cfg.Volumes.BaseDir)
	}
	if cfg.Volumes.Default != "comfy-model" {
		t.Errorf("Volumes.Default = %q, want comfy-model", cfg.Volumes.Default)
	}
	if cfg.Deployed.App != "preserve-model" || cfg.Deployed.Function != "preserve-model" {
		t.Errorf("Deployed names = %q/%q, want preserve-model/preserve-model",
			cfg.Deployed.App, cfg.Deployed.Function)
	}
}

func TestLoadInternal_CreatesDefaultOnFirstRun(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "modelvault.yaml")
	t.Setenv("MODELVAULT_CONFIG", configPath)

	var cfg ModelVaultConfig
	cfg, Global = Global, ModelVaultConfig{}
	defer func() { Global = cfg }()

	if err := loadInternal(); err != nil {
		t.Fatalf("loadInternal() error = %v", err)
	}
	if _, err := os.Stat(configPath); err != nil {
		t.Errorf("default config file was not created: %v", err)
	}
	if Global.Deployed.BaseURL != "http://localhost:8011" {
		t.Errorf("Deployed.BaseURL = %q, want default", Global.Deployed.BaseURL)
	}
}

func TestLoadInternal_ParsesFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "modelvault.yaml")
	content := `
volumes:
  base_dir: /srv/volumes
  default: my-models
deployed:
  base_url: http://gpu-host:9000
  app: my-app
  function: my-fn
logging:
  level: debug
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MODELVAULT_CONFIG", configPath)

	var cfg ModelVaultConfig
	cfg, Global = Global, ModelVaultConfig{}
	defer func() { Global = cfg }()

	if err := loadInternal(); err != nil {
		t.Fatalf("loadInternal() error = %v", err)
	}
	if Global.Volumes.BaseDir != "/srv/volumes" {
		t.Errorf("Volumes.BaseDir = %q, want /srv/volumes", Global.Volumes.BaseDir)
	}
	if Global.Deployed.Function != "my-fn" {
		t.Errorf("Deployed.Function = %q, want my-fn", Global.Deployed.Function)
	}
	if Global.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", Global.Logging.Level)
	}
}

func TestLoadInternal_EnvOverridesFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "modelvault.yaml")
	content := "volumes:\n  default: from-file\n"
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MODELVAULT_CONFIG", configPath)
	t.Setenv("MODELVAULT_VOLUME", "from-env")

	var cfg ModelVaultConfig
	cfg, Global = Global, ModelVaultConfig{}
	defer func() { Global = cfg }()

	if err := loadInternal(); err != nil {
		t.Fatalf("loadInternal() error = %v", err)
	}
	if Global.Volumes.Default != "from-env" {
		t.Errorf("Volumes.Default = %q, want from-env", Global.Volumes.Default)
	}
}
