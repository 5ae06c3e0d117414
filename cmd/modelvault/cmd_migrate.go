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
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/ModelVault/cmd/modelvault/config"
	"github.com/AleutianAI/ModelVault/pkg/ux"
	"github.com/AleutianAI/ModelVault/pkg/vmigrate"
	"github.com/AleutianAI/ModelVault/pkg/volume"
)

func runMigrate(cmd *cobra.Command, args []string) {
	source, dest := args[0], args[1]

	volumes := volume.NewLocalManager(config.Global.Volumes.BaseDir)

	var prompter vmigrate.Prompter
	if migrateYes {
		prompter = vmigrate.AutoConfirm
	} else {
		prompter = NewConsolePrompter()
	}
	migrator := vmigrate.NewMigrator(volumes, prompter, 0)

	report, err := migrator.Migrate(cmd.Context(), source, dest, migrateYes)
	if err != nil {
		ux.Error(os.Stderr, "%v", err)
		os.Exit(1)
	}

	printMigrateReport(os.Stdout, source, dest, report)
	if len(report.Failed) > 0 {
		os.Exit(1)
	}
}

func printMigrateReport(out io.Writer, source, dest string, report *vmigrate.Report) {
	if report.Cancelled {
		ux.Warning(out, "Migration cancelled.")
		return
	}
	ux.Success(out, "Migrated %s -> %s: %d copied, %d skipped, %d failed",
		source, dest, len(report.Copied), len(report.Skipped), len(report.Failed))
	for _, failure := range report.Failed {
		ux.Muted(out, "  failed: %s (%s)", failure.Path, failure.Reason)
	}
}
