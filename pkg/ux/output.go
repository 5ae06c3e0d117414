// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux provides terminal output styling for the ModelVault CLI.
package ux

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Aleutian color palette - deep ocean teals and arctic waters
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7") // Bright teal - highlights, success
	ColorTealPrimary = lipgloss.Color("#20B9B4") // Primary teal - main brand color
	ColorSlate       = lipgloss.Color("#2C4A54") // Slate - muted text, borders

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title   lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Bold:    lipgloss.NewStyle().Bold(true),
	Muted:   lipgloss.NewStyle().Foreground(ColorSlate),
	Success: lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning: lipgloss.NewStyle().Foreground(ColorWarning),
	Error:   lipgloss.NewStyle().Foreground(ColorError),
}

// Icon provides themed status icons
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconArrow   Icon = "→"
)

// Render returns the icon with appropriate styling
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	default:
		return string(i)
	}
}

// Plain disables icons and styling. It defaults to true when stdout is not
// a terminal so piped output stays machine-readable.
var Plain bool

func init() {
	fd := os.Stdout.Fd()
	Plain = !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd)
}

// Success writes a success line with a checkmark.
func Success(w io.Writer, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if Plain {
		fmt.Fprintln(w, msg)
		return
	}
	fmt.Fprintf(w, "%s %s\n", IconSuccess.Render(), Styles.Success.Render(msg))
}

// Warning writes a warning line.
func Warning(w io.Writer, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if Plain {
		fmt.Fprintln(w, msg)
		return
	}
	fmt.Fprintf(w, "%s %s\n", IconWarning.Render(), Styles.Warning.Render(msg))
}

// Error writes an error line.
func Error(w io.Writer, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if Plain {
		fmt.Fprintf(w, "Error: %s\n", msg)
		return
	}
	fmt.Fprintf(w, "%s %s\n", IconError.Render(), Styles.Error.Render(msg))
}

// Info writes an informational line.
func Info(w io.Writer, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if Plain {
		fmt.Fprintln(w, msg)
		return
	}
	fmt.Fprintf(w, "%s %s\n", Styles.Muted.Render("│"), msg)
}

// Muted writes secondary text.
func Muted(w io.Writer, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if Plain {
		fmt.Fprintln(w, msg)
		return
	}
	fmt.Fprintln(w, Styles.Muted.Render(msg))
}
