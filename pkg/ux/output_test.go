// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"bytes"
	"strings"
	"testing"
)

func setPlain(t *testing.T, plain bool) {
	t.Helper()
	old := Plain
	Plain = plain
	t.Cleanup(func() { Plain = old })
}

func TestIcon_Render(t *testing.T) {
	for _, icon := range []Icon{IconSuccess, IconWarning, IconError, IconArrow} {
		if icon.Render() == "" {
			t.Errorf("expected non-empty render for icon %q", string(icon))
		}
	}
}

func TestSuccess_Styled(t *testing.T) {
	setPlain(t, false)
	var buf bytes.Buffer
	Success(&buf, "preserved %s", "vae/model.safetensors")

	out := buf.String()
	if !strings.Contains(out, string(IconSuccess)) {
		t.Errorf("expected checkmark in output, got %q", out)
	}
	if !strings.Contains(out, "preserved vae/model.safetensors") {
		t.Errorf("expected message in output, got %q", out)
	}
}

func TestSuccess_Plain(t *testing.T) {
	setPlain(t, true)
	var buf bytes.Buffer
	Success(&buf, "preserved %s", "vae/model.safetensors")

	if got, want := buf.String(), "preserved vae/model.safetensors\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestError_PlainPrefix(t *testing.T) {
	setPlain(t, true)
	var buf bytes.Buffer
	Error(&buf, "volume %s not found", "comfy-model")

	if got, want := buf.String(), "Error: volume comfy-model not found\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestError_Styled(t *testing.T) {
	setPlain(t, false)
	var buf bytes.Buffer
	Error(&buf, "download failed")

	out := buf.String()
	if !strings.Contains(out, string(IconError)) {
		t.Errorf("expected error icon in output, got %q", out)
	}
	if !strings.Contains(out, "download failed") {
		t.Errorf("expected message in output, got %q", out)
	}
}

func TestWarning_ContainsMessage(t *testing.T) {
	setPlain(t, false)
	var buf bytes.Buffer
	Warning(&buf, "skipping %d files", 3)

	if !strings.Contains(buf.String(), "skipping 3 files") {
		t.Errorf("expected message in output, got %q", buf.String())
	}
}

func TestInfo_ContainsMessage(t *testing.T) {
	for _, plain := range []bool{true, false} {
		setPlain(t, plain)
		var buf bytes.Buffer
		Info(&buf, "resolving volume %s", "comfy-model")

		if !strings.Contains(buf.String(), "resolving volume comfy-model") {
			t.Errorf("plain=%v: expected message in output, got %q", plain, buf.String())
		}
	}
}

func TestMuted_ContainsMessage(t *testing.T) {
	setPlain(t, true)
	var buf bytes.Buffer
	Muted(&buf, "revision main")

	if !strings.Contains(buf.String(), "revision main") {
		t.Errorf("expected message in output, got %q", buf.String())
	}
}
