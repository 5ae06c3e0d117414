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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	repoID            string
	filename          string
	revision          string
	destinationSubdir string
	volumeName        string
	invokeTarget      string // "local" or "deployed"

	migrateYes bool

	servePort string

	guiBind  string
	guiPort  string
	guiShare bool

	backupPrefix string

	rootCmd = &cobra.Command{
		Use:   "modelvault",
		Short: "A cli to preserve and manage model files on shared volumes",
		Long: `ModelVault fetches large model files from a model repository into
				shared volumes, exactly once per file, so GPU inference
				containers can mount them instead of re-downloading.`,
	}

	// --- Preserve ---
	preserveCmd = &cobra.Command{
		Use:   "preserve",
		Short: "Ensure a model file exists on a shared volume, downloading it if needed",
		Run:   runPreserve, // Defined in cmd_preserve.go
	}

	// --- Serve ---
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the placement service in the foreground",
		Run:   runServe, // Defined in cmd_serve.go
	}

	// --- Volume Migration ---
	migrateCmd = &cobra.Command{
		Use:   "migrate [source_volume] [dest_volume]",
		Short: "Copy all data from one volume to another",
		Args:  cobra.ExactArgs(2),
		Run:   runMigrate, // Defined in cmd_migrate.go
	}

	// --- GUI ---
	guiCmd = &cobra.Command{
		Use:   "gui",
		Short: "Serve a browser form for preserving models",
		Run:   runGUI, // Defined in cmd_gui.go
	}

	// --- Backup ---
	backupCmd = &cobra.Command{
		Use:   "backup [volume_name]",
		Short: "Upload a volume's contents to Google Cloud Storage (GCS)",
		Args:  cobra.ExactArgs(1),
		Run:   runBackup, // Defined in cmd_backup.go
	}
)

func init() {
	rootCmd.AddCommand(preserveCmd)
	preserveCmd.Flags().StringVar(&repoID, "repo-id", "", "Model repository id (e.g. Comfy-Org/Qwen-Image_ComfyUI)")
	preserveCmd.Flags().StringVar(&filename, "filename", "", "File path within the repository")
	preserveCmd.Flags().StringVar(&revision, "revision", "", "Repository revision (default 'main')")
	preserveCmd.Flags().StringVar(&destinationSubdir, "destination-subdir", "", "Model category subdir (e.g. 'vae'); inferred from the filename path when omitted")
	preserveCmd.Flags().StringVar(&volumeName, "volume", "", "Destination volume (default from config)")
	preserveCmd.Flags().StringVar(&invokeTarget, "target", "local", "Where to run the preserve: 'local' (in-process) or 'deployed' (remote service)")
	preserveCmd.MarkFlagRequired("repo-id")
	preserveCmd.MarkFlagRequired("filename")

	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&servePort, "port", "8011", "Port to listen on")

	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().BoolVar(&migrateYes, "yes", false, "Skip the confirmation prompt")

	rootCmd.AddCommand(guiCmd)
	guiCmd.Flags().StringVar(&guiBind, "bind", "127.0.0.1", "Address to bind the GUI server to")
	guiCmd.Flags().StringVar(&guiPort, "port", "8080", "GUI server port")
	guiCmd.Flags().BoolVar(&guiShare, "share", false, "Bind 0.0.0.0 so other hosts can reach the GUI")
	guiCmd.Flags().StringVar(&invokeTarget, "target", "local", "Default run mode for submitted forms: 'local' or 'deployed'")

	rootCmd.AddCommand(backupCmd)
	backupCmd.Flags().StringVar(&backupPrefix, "prefix", "", "Object name prefix inside the bucket (default: the volume name)")
}
