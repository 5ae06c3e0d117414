// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api implements the placement service's HTTP surface.
//
// The service is the long-lived deployed form of the preserve
// operation. Once published under a stable application and function
// name, remote callers invoke it by name with the same four parameters
// the CLI takes, either synchronously or as an awaitable call handle.
//
// The service owns no placement logic. It binds the wire request,
// hands it to the placement engine, and maps the engine's error
// taxonomy onto HTTP status codes. Both names it answers to are
// explicit configuration, not ambient discovery.
//
// The package is importable so the CLI's serve command and the
// standalone service binary share one router.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/ModelVault/pkg/placement"
)

const (
	// DefaultAppName is used when no application name is configured.
	DefaultAppName = "preserve-model"

	// DefaultFunctionName is used when no function name is configured.
	DefaultFunctionName = "preserve-model"

	// DefaultVolumeName is where artifacts land when a request names
	// no volume.
	DefaultVolumeName = "comfy-model"

	// spawnedCallTTL is how long finished call results stay pollable.
	spawnedCallTTL = 24 * time.Hour
)

// Prometheus metrics.
var (
	preserveTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modelvault_preserve_total",
		Help: "Preserve calls by outcome (downloaded, reused, error).",
	}, []string{"outcome"})

	preserveBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "modelvault_preserve_bytes_total",
		Help: "Payload bytes downloaded by preserve calls.",
	})
)

// --- Wire Structs ---

type errorResponse struct {
	Error     string `json:"error"`
	ErrorType string `json:"error_type"`
	Detail    string `json:"detail,omitempty"`
}

type spawnResponse struct {
	CallID string `json:"call_id"`
}

type callStatusResponse struct {
	Status string            `json:"status"` // "running", "done", "failed"
	Result *placement.Result `json:"result,omitempty"`
	Error  *errorResponse    `json:"error,omitempty"`
}

// --- Call Registry ---

// callState tracks one spawned preserve call.
type callState struct {
	done     bool
	result   *placement.Result
	err      error
	finished time.Time
}

// CallRegistry holds spawned calls for later polling.
type CallRegistry struct {
	mu    sync.Mutex
	calls map[string]*callState
}

// NewCallRegistry creates an empty registry for spawned calls.
func NewCallRegistry() *CallRegistry {
	return &CallRegistry{calls: make(map[string]*callState)}
}

func (r *CallRegistry) start() string {
	id := uuid.NewString()
	r.mu.Lock()
	r.calls[id] = &callState{}
	r.mu.Unlock()
	return id
}

func (r *CallRegistry) finish(id string, result *placement.Result, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if state, ok := r.calls[id]; ok {
		state.done = true
		state.result = result
		state.err = err
		state.finished = time.Now()
	}
	// Drop stale finished calls so the registry doesn't grow forever.
	for callID, state := range r.calls {
		if state.done && time.Since(state.finished) > spawnedCallTTL {
			delete(r.calls, callID)
		}
	}
}

func (r *CallRegistry) get(id string) (*callState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.calls[id]
	return state, ok
}

// --- Server ---

// Server holds all dependencies.
type Server struct {
	Engine        placement.Engine
	AppName       string
	FunctionName  string
	DefaultVolume string
	Calls         *CallRegistry
}

// NewServer wires a Server with its call registry. Empty names fall
// back to the package defaults.
func NewServer(engine placement.Engine, appName, functionName, defaultVolume string) *Server {
	if appName == "" {
		appName = DefaultAppName
	}
	if functionName == "" {
		functionName = DefaultFunctionName
	}
	if defaultVolume == "" {
		defaultVolume = DefaultVolumeName
	}
	return &Server{
		Engine:        engine,
		AppName:       appName,
		FunctionName:  functionName,
		DefaultVolume: defaultVolume,
		Calls:         NewCallRegistry(),
	}
}

// handleCall is the named invocation endpoint.
// POST /api/v1/apps/:app/functions/:function/call
func (s *Server) handleCall(c *gin.Context) {
	// The deployed names are explicit configuration; calling any other
	// name is a caller-side configuration error, answered like a
	// missing deployment.
	if c.Param("app") != s.AppName || c.Param("function") != s.FunctionName {
		c.JSON(http.StatusNotFound, errorResponse{
			Error:     "no deployed function " + c.Param("app") + "/" + c.Param("function"),
			ErrorType: placement.ErrorConfiguration.String(),
		})
		return
	}

	var req placement.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{
			Error:     "invalid request body",
			ErrorType: placement.ErrorConfiguration.String(),
			Detail:    err.Error(),
		})
		return
	}

	if c.Query("mode") == "spawn" {
		s.spawnCall(c, req)
		return
	}

	slog.Info("Handling preserve call",
		"repo_id", req.RepoID, "filename", req.Filename, "revision", req.Revision,
		"subdir", req.DestinationSubdir)

	result, err := s.Engine.Preserve(c.Request.Context(), req.ModelReference(), req.Destination(s.DefaultVolume))
	if err != nil {
		preserveTotal.WithLabelValues("error").Inc()
		writePlacementError(c, err)
		return
	}

	recordSuccess(result)
	c.JSON(http.StatusOK, result)
}

// spawnCall starts the preserve in the background and returns a handle.
func (s *Server) spawnCall(c *gin.Context, req placement.Request) {
	id := s.Calls.start()
	slog.Info("Spawned preserve call", "call_id", id, "repo_id", req.RepoID, "filename", req.Filename)

	go func() {
		// The spawned call outlives the HTTP request that started it.
		result, err := s.Engine.Preserve(context.Background(), req.ModelReference(), req.Destination(s.DefaultVolume))
		if err != nil {
			preserveTotal.WithLabelValues("error").Inc()
			slog.Error("Spawned preserve call failed", "call_id", id, "error", err)
		} else {
			recordSuccess(result)
		}
		s.Calls.finish(id, result, err)
	}()

	c.JSON(http.StatusAccepted, spawnResponse{CallID: id})
}

// handleCallStatus polls a spawned call.
// GET /api/v1/calls/:id
func (s *Server) handleCallStatus(c *gin.Context) {
	state, ok := s.Calls.get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, errorResponse{
			Error:     "unknown call id",
			ErrorType: placement.ErrorConfiguration.String(),
		})
		return
	}

	if !state.done {
		c.JSON(http.StatusOK, callStatusResponse{Status: "running"})
		return
	}
	if state.err != nil {
		c.JSON(http.StatusOK, callStatusResponse{
			Status: "failed",
			Error:  placementErrorBody(state.err),
		})
		return
	}
	c.JSON(http.StatusOK, callStatusResponse{Status: "done", Result: state.result})
}

// recordSuccess updates metrics for a successful preserve.
func recordSuccess(result *placement.Result) {
	if result.Reused {
		preserveTotal.WithLabelValues("reused").Inc()
	} else {
		preserveTotal.WithLabelValues("downloaded").Inc()
		preserveBytes.Add(float64(result.SizeBytes))
	}
}

// placementErrorBody renders a placement error for the wire.
func placementErrorBody(err error) *errorResponse {
	body := &errorResponse{
		Error:     err.Error(),
		ErrorType: placement.TypeOf(err).String(),
	}
	var pErr *placement.Error
	if errors.As(err, &pErr) {
		body.Detail = pErr.FullError()
	}
	return body
}

// writePlacementError maps the placement taxonomy onto HTTP statuses.
func writePlacementError(c *gin.Context, err error) {
	status := http.StatusBadGateway // transfer failures: retryable upstream problem
	switch placement.TypeOf(err) {
	case placement.ErrorNotFound:
		status = http.StatusNotFound
	case placement.ErrorConfiguration:
		status = http.StatusBadRequest
	case placement.ErrorStorage:
		status = http.StatusInsufficientStorage
	}
	c.JSON(status, placementErrorBody(err))
}

// NewRouter wires all routes for the given server.
func NewRouter(server *Server) *gin.Engine {
	router := gin.Default()

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"service":  "modelvault-placement",
			"app":      server.AppName,
			"function": server.FunctionName,
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/api/v1/apps/:app/functions/:function/call", server.handleCall)
	router.GET("/api/v1/calls/:id", server.handleCallStatus)

	return router
}
