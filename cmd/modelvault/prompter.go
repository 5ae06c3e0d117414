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
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"

	"github.com/AleutianAI/ModelVault/pkg/vmigrate"
)

// InteractivePrompter reads a y/N answer from an injected reader.
// Anything other than "y"/"yes" (case-insensitive) declines; EOF
// declines without error.
type InteractivePrompter struct {
	reader io.Reader
	writer io.Writer
}

// NewInteractivePrompterWithIO creates a prompter with injected IO,
// for tests and piped input.
func NewInteractivePrompterWithIO(reader io.Reader, writer io.Writer) *InteractivePrompter {
	return &InteractivePrompter{reader: reader, writer: writer}
}

// Confirm implements vmigrate.Prompter.
func (p *InteractivePrompter) Confirm(ctx context.Context, message string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	fmt.Fprintf(p.writer, "%s [y/N]: ", message)

	scanner := bufio.NewScanner(p.reader)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return false, err
		}
		return false, nil // EOF declines
	}

	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "y" || answer == "yes", nil
}

// huhPrompter renders a confirm form when stdin is a real terminal.
type huhPrompter struct{}

func (huhPrompter) Confirm(ctx context.Context, message string) (bool, error) {
	var confirmed bool
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(message).
			Affirmative("Yes").
			Negative("No").
			Value(&confirmed),
	))
	if err := form.RunWithContext(ctx); err != nil {
		return false, err
	}
	return confirmed, nil
}

// NewConsolePrompter picks the right prompter for this process:
// a form UI on a terminal, a plain y/N line otherwise.
func NewConsolePrompter() vmigrate.Prompter {
	if isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return huhPrompter{}
	}
	return NewInteractivePrompterWithIO(os.Stdin, os.Stderr)
}
