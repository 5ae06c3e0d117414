// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/ModelVault/cmd/modelvault/config"
	"github.com/AleutianAI/ModelVault/cmd/modelvault/gcs"
	"github.com/AleutianAI/ModelVault/pkg/ux"
	"github.com/AleutianAI/ModelVault/pkg/volume"
)

func runBackup(cmd *cobra.Command, args []string) {
	volName := args[0]
	cfg := config.Global

	if cfg.Backup.BucketName == "" || cfg.Backup.SAKeyPath == "" {
		ux.Error(os.Stderr, "backup requires backup.bucket_name and backup.sa_key_path in the config")
		os.Exit(1)
	}

	volumes := volume.NewLocalManager(cfg.Volumes.BaseDir)
	root, err := volumes.Resolve(volName, false)
	if err != nil {
		ux.Error(os.Stderr, "%v", err)
		os.Exit(1)
	}

	ctx := cmd.Context()
	client, err := gcs.NewClient(ctx, cfg.Backup.ProjectId, cfg.Backup.BucketName, cfg.Backup.SAKeyPath)
	if err != nil {
		ux.Error(os.Stderr, "%v", err)
		os.Exit(1)
	}

	prefix := backupPrefix
	if prefix == "" {
		prefix = volName
	}

	report, err := client.BackupVolume(ctx, root, prefix)
	if err != nil {
		ux.Error(os.Stderr, "%v", err)
		os.Exit(1)
	}

	ux.Success(os.Stdout, "Backed up volume %s to gs://%s/%s: %d uploaded, %d skipped, %d failed",
		volName, cfg.Backup.BucketName, prefix,
		report.Uploaded, report.Skipped, len(report.Failed))
	for _, failed := range report.Failed {
		ux.Muted(os.Stdout, "  failed: %s", failed)
	}
	if len(report.Failed) > 0 {
		os.Exit(1)
	}
}
