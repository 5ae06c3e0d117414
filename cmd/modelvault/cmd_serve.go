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
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/ModelVault/cmd/modelvault/config"
	"github.com/AleutianAI/ModelVault/pkg/hub"
	"github.com/AleutianAI/ModelVault/pkg/placement"
	"github.com/AleutianAI/ModelVault/pkg/volume"
	"github.com/AleutianAI/ModelVault/services/placement/api"
)

// runServe runs the placement service in the foreground under the
// configured app/function names. Process supervision (restart on
// crash, scaling) belongs to the platform running the binary.
func runServe(cmd *cobra.Command, args []string) {
	cfg := config.Global

	volumes := volume.NewLocalManager(cfg.Volumes.BaseDir)
	engine := placement.NewEngine(hub.NewClient(cfg.Hub.Endpoint), volumes)
	server := api.NewServer(engine, cfg.Deployed.App, cfg.Deployed.Function, cfg.Volumes.Default)

	slog.Info("Starting placement service",
		"app", server.AppName, "function", server.FunctionName,
		"default_volume", server.DefaultVolume,
		"volume_base", volumes.BaseDir(), "port", servePort)

	router := api.NewRouter(server)
	if err := router.Run(":" + servePort); err != nil {
		fmt.Fprintf(os.Stderr, "Error: placement service exited: %v\n", err)
		os.Exit(1)
	}
}
