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
)

func runGUI(cmd *cobra.Command, args []string) {
	cfg := config.Global

	server := &guiServer{
		local:       NewLocalInvoker(cfg),
		deployed:    NewRemoteInvoker(cfg),
		defaultMode: invokeTarget,
	}

	bind := guiBind
	if guiShare {
		bind = "0.0.0.0"
	}
	addr := bind + ":" + guiPort

	slog.Info("Starting GUI server", "addr", addr, "default_mode", server.defaultMode)
	fmt.Printf("ModelVault GUI listening on http://%s\n", addr)

	router := newGUIRouter(server)
	if err := router.Run(addr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: GUI server exited: %v\n", err)
		os.Exit(1)
	}
}
