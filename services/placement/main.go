// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Standalone binary for the placement service. All behavior lives in
// the api package; this wires it from the environment.
package main

import (
	"log/slog"
	"os"

	"github.com/AleutianAI/ModelVault/pkg/hub"
	"github.com/AleutianAI/ModelVault/pkg/placement"
	"github.com/AleutianAI/ModelVault/pkg/volume"
	"github.com/AleutianAI/ModelVault/services/placement/api"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	volumes := volume.NewLocalManager("")
	engine := placement.NewEngine(hub.NewClient(os.Getenv("MODELVAULT_HUB_ENDPOINT")), volumes)

	server := api.NewServer(engine,
		os.Getenv("MODELVAULT_APP"),
		os.Getenv("MODELVAULT_FUNCTION"),
		os.Getenv("MODELVAULT_VOLUME"))

	slog.Info("Starting ModelVault placement service",
		"app", server.AppName, "function", server.FunctionName,
		"default_volume", server.DefaultVolume, "volume_base", volumes.BaseDir())

	router := api.NewRouter(server)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8011"
	}
	if err := router.Run(":" + port); err != nil {
		slog.Error("Placement service exited", "error", err)
		os.Exit(1)
	}
}
