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
	"context"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/ModelVault/cmd/modelvault/config"
	"github.com/AleutianAI/ModelVault/pkg/placement"
	"github.com/AleutianAI/ModelVault/pkg/ux"
)

func runPreserve(cmd *cobra.Command, args []string) {
	invoker, err := newInvoker(invokeTarget, config.Global)
	if err != nil {
		ux.Error(os.Stderr, "%v", err)
		os.Exit(1)
	}

	req := placement.Request{
		RepoID:            repoID,
		Filename:          filename,
		Revision:          revision,
		DestinationSubdir: destinationSubdir,
		Volume:            volumeName,
	}

	if err := executePreserve(cmd.Context(), invoker, req, os.Stdout); err != nil {
		ux.Error(os.Stderr, "%v", err)
		os.Exit(1)
	}
}

// executePreserve runs one preserve and prints the outcome. Split from
// runPreserve so tests can drive it with a fake invoker.
func executePreserve(ctx context.Context, invoker Invoker, req placement.Request, out io.Writer) error {
	result, err := invoker.Preserve(ctx, req)
	if err != nil {
		return err
	}

	if result.Reused {
		ux.Success(out, "Already preserved at %s (%s)",
			result.Path, humanize.IBytes(uint64(result.SizeBytes)))
	} else {
		ux.Success(out, "Preserved %s (%s)",
			result.Path, humanize.IBytes(uint64(result.SizeBytes)))
	}
	return nil
}
