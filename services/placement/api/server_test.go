// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/ModelVault/pkg/hub"
	"github.com/AleutianAI/ModelVault/pkg/placement"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// --- Mock Engine ---

type mockEngine struct {
	mu       sync.Mutex
	calls    int
	lastRef  hub.ModelReference
	lastDest placement.Destination
	result   *placement.Result
	err      error
	delay    time.Duration
}

func (m *mockEngine) Preserve(ctx context.Context, ref hub.ModelReference, dest placement.Destination) (*placement.Result, error) {
	m.mu.Lock()
	m.calls++
	m.lastRef = ref
	m.lastDest = dest
	delay := m.delay
	m.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	return m.result, m.err
}

func (m *mockEngine) SetProgressCallback(callback hub.ProgressFunc) {}

func (m *mockEngine) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// --- Helpers ---

func newTestServer(engine placement.Engine) (*Server, *gin.Engine) {
	server := &Server{
		Engine:        engine,
		AppName:       "preserve-model",
		FunctionName:  "preserve-model",
		DefaultVolume: "comfy-model",
		Calls:         NewCallRegistry(),
	}
	return server, NewRouter(server)
}

func callBody(t *testing.T) *bytes.Buffer {
	t.Helper()
	body, err := json.Marshal(placement.Request{
		RepoID:            "Comfy-Org/Qwen-Image_ComfyUI",
		Filename:          "split_files/text_encoders/qwen_2.5_vl_7b_fp8_scaled.safetensors",
		DestinationSubdir: "text_encoders",
	})
	require.NoError(t, err)
	return bytes.NewBuffer(body)
}

const callPath = "/api/v1/apps/preserve-model/functions/preserve-model/call"

// --- Tests ---

func TestHandleCall_Success(t *testing.T) {
	engine := &mockEngine{result: &placement.Result{
		Path:      "/volumes/comfy-model/text_encoders/qwen_2.5_vl_7b_fp8_scaled.safetensors",
		SizeBytes: 12345,
	}}
	_, router := newTestServer(engine)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, callPath, callBody(t))
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var result placement.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, int64(12345), result.SizeBytes)
	assert.False(t, result.Reused)

	assert.Equal(t, 1, engine.callCount())
	assert.Equal(t, "Comfy-Org/Qwen-Image_ComfyUI", engine.lastRef.RepoID)
	assert.Equal(t, "comfy-model", engine.lastDest.VolumeName, "default volume must be applied")
}

func TestHandleCall_WrongFunctionName(t *testing.T) {
	engine := &mockEngine{result: &placement.Result{}}
	_, router := newTestServer(engine)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost,
		"/api/v1/apps/preserve-model/functions/some-other-fn/call", callBody(t))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	var body errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "CONFIGURATION_INVALID", body.ErrorType)
	assert.Equal(t, 0, engine.callCount(), "engine must not run for a name mismatch")
}

func TestHandleCall_InvalidBody(t *testing.T) {
	engine := &mockEngine{}
	_, router := newTestServer(engine)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, callPath, bytes.NewBufferString(`{"filename": ""}`))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, engine.callCount())
}

func TestHandleCall_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		errType    placement.ErrorType
		wantStatus int
	}{
		{"not found", placement.ErrorNotFound, http.StatusNotFound},
		{"transfer", placement.ErrorTransfer, http.StatusBadGateway},
		{"storage", placement.ErrorStorage, http.StatusInsufficientStorage},
		{"configuration", placement.ErrorConfiguration, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &mockEngine{err: &placement.Error{Type: tt.errType, Message: "boom"}}
			_, router := newTestServer(engine)

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, callPath, callBody(t))
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			var body errorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.errType.String(), body.ErrorType)
		})
	}
}

func TestHandleCall_SpawnAndPoll(t *testing.T) {
	engine := &mockEngine{
		result: &placement.Result{SizeBytes: 99, Reused: true},
		delay:  50 * time.Millisecond,
	}
	_, router := newTestServer(engine)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, callPath+"?mode=spawn", callBody(t))
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	var spawned spawnResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &spawned))
	require.NotEmpty(t, spawned.CallID)

	// Poll until the spawned call reports done.
	var status callStatusResponse
	require.Eventually(t, func() bool {
		pw := httptest.NewRecorder()
		preq := httptest.NewRequest(http.MethodGet, "/api/v1/calls/"+spawned.CallID, nil)
		router.ServeHTTP(pw, preq)
		if pw.Code != http.StatusOK {
			return false
		}
		if err := json.Unmarshal(pw.Body.Bytes(), &status); err != nil {
			return false
		}
		return status.Status == "done"
	}, 2*time.Second, 10*time.Millisecond)

	require.NotNil(t, status.Result)
	assert.Equal(t, int64(99), status.Result.SizeBytes)
	assert.True(t, status.Result.Reused)
}

func TestHandleCallStatus_UnknownID(t *testing.T) {
	_, router := newTestServer(&mockEngine{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/calls/no-such-id", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealth(t *testing.T) {
	_, router := newTestServer(&mockEngine{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "modelvault-placement")
}

func TestCallRegistry_DropsStaleEntries(t *testing.T) {
	reg := NewCallRegistry()
	stale := reg.start()
	reg.finish(stale, &placement.Result{}, nil)

	// Age the finished entry past the TTL.
	reg.mu.Lock()
	reg.calls[stale].finished = time.Now().Add(-2 * spawnedCallTTL)
	reg.mu.Unlock()

	fresh := reg.start()
	reg.finish(fresh, &placement.Result{}, nil)

	_, ok := reg.get(stale)
	assert.False(t, ok, "stale finished call should be evicted")
	_, ok = reg.get(fresh)
	assert.True(t, ok)
}
