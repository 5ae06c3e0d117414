// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package remote is the client side of the deployed placement service.
//
// A Caller addresses one deployed function by (app, function) name and
// speaks the service's wire protocol: synchronous calls return the
// preserve result directly, spawned calls return a call id that Await
// polls until the service reports a terminal state. Service-side errors
// carry their taxonomy over the wire and are rebuilt here as
// placement.Error values, so callers branch on placement.TypeOf the
// same way they would against a local engine.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/AleutianAI/ModelVault/pkg/placement"
)

const (
	// DefaultPollInterval is how often Await polls a spawned call.
	DefaultPollInterval = 2 * time.Second

	// DefaultTimeout bounds a synchronous call. Model files are large,
	// so this is generous.
	DefaultTimeout = 30 * time.Minute
)

// wire structs mirror the service's responses.

type errorBody struct {
	Error     string `json:"error"`
	ErrorType string `json:"error_type"`
	Detail    string `json:"detail,omitempty"`
}

type spawnBody struct {
	CallID string `json:"call_id"`
}

type statusBody struct {
	Status string            `json:"status"`
	Result *placement.Result `json:"result,omitempty"`
	Error  *errorBody        `json:"error,omitempty"`
}

// HTTPClient lets tests inject a transport.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Caller invokes a deployed placement function.
type Caller interface {
	// Call runs a preserve synchronously and returns its result.
	Call(ctx context.Context, req placement.Request) (*placement.Result, error)

	// Spawn starts a preserve in the background and returns a call id.
	Spawn(ctx context.Context, req placement.Request) (string, error)

	// Await polls a spawned call until it finishes or ctx is done.
	Await(ctx context.Context, callID string) (*placement.Result, error)
}

// HTTPCaller is the production Caller.
type HTTPCaller struct {
	baseURL      string
	appName      string
	functionName string
	httpClient   HTTPClient
	pollInterval time.Duration
}

// NewCaller creates a Caller for the function deployed as
// appName/functionName at baseURL.
func NewCaller(baseURL, appName, functionName string) *HTTPCaller {
	return NewCallerWithHTTP(baseURL, appName, functionName,
		&http.Client{Timeout: DefaultTimeout})
}

// NewCallerWithHTTP creates a Caller with an injected HTTP client.
func NewCallerWithHTTP(baseURL, appName, functionName string, httpClient HTTPClient) *HTTPCaller {
	return &HTTPCaller{
		baseURL:      baseURL,
		appName:      appName,
		functionName: functionName,
		httpClient:   httpClient,
		pollInterval: DefaultPollInterval,
	}
}

func (c *HTTPCaller) callURL() string {
	return fmt.Sprintf("%s/api/v1/apps/%s/functions/%s/call",
		c.baseURL, c.appName, c.functionName)
}

// Call implements Caller.
func (c *HTTPCaller) Call(ctx context.Context, req placement.Request) (*placement.Result, error) {
	resp, err := c.post(ctx, c.callURL(), req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, remoteError(resp)
	}
	var result placement.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &placement.Error{
			Type:    placement.ErrorTransfer,
			Message: "decoding preserve result",
			Wrapped: err,
		}
	}
	return &result, nil
}

// Spawn implements Caller.
func (c *HTTPCaller) Spawn(ctx context.Context, req placement.Request) (string, error) {
	resp, err := c.post(ctx, c.callURL()+"?mode=spawn", req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return "", remoteError(resp)
	}
	var spawned spawnBody
	if err := json.NewDecoder(resp.Body).Decode(&spawned); err != nil {
		return "", &placement.Error{
			Type:    placement.ErrorTransfer,
			Message: "decoding spawn response",
			Wrapped: err,
		}
	}
	if spawned.CallID == "" {
		return "", &placement.Error{
			Type:    placement.ErrorTransfer,
			Message: "spawn response missing call id",
		}
	}
	return spawned.CallID, nil
}

// Await implements Caller.
func (c *HTTPCaller) Await(ctx context.Context, callID string) (*placement.Result, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		status, err := c.pollOnce(ctx, callID)
		if err != nil {
			return nil, err
		}
		switch status.Status {
		case "done":
			return status.Result, nil
		case "failed":
			return nil, decodeErrorBody(status.Error)
		}

		select {
		case <-ctx.Done():
			return nil, &placement.Error{
				Type:    placement.ErrorTransfer,
				Message: "awaiting spawned call " + callID,
				Wrapped: ctx.Err(),
			}
		case <-ticker.C:
		}
	}
}

func (c *HTTPCaller) pollOnce(ctx context.Context, callID string) (*statusBody, error) {
	url := fmt.Sprintf("%s/api/v1/calls/%s", c.baseURL, callID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &placement.Error{
			Type:    placement.ErrorConfiguration,
			Message: "building poll request",
			Wrapped: err,
		}
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &placement.Error{
			Type:    placement.ErrorTransfer,
			Message: "polling call " + callID,
			Wrapped: err,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, remoteError(resp)
	}
	var status statusBody
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, &placement.Error{
			Type:    placement.ErrorTransfer,
			Message: "decoding call status",
			Wrapped: err,
		}
	}
	return &status, nil
}

func (c *HTTPCaller) post(ctx context.Context, url string, req placement.Request) (*http.Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, &placement.Error{
			Type:      placement.ErrorConfiguration,
			Reference: req.ModelReference().String(),
			Message:   "encoding request",
			Wrapped:   err,
		}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, &placement.Error{
			Type:    placement.ErrorConfiguration,
			Message: "building request for " + url,
			Wrapped: err,
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &placement.Error{
			Type:      placement.ErrorTransfer,
			Reference: req.ModelReference().String(),
			Message:   "calling " + url,
			Wrapped:   err,
		}
	}
	return resp, nil
}

// remoteError rebuilds a service error response as a placement.Error.
func remoteError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil || body.Error == "" {
		return &placement.Error{
			Type:    placement.ErrorTransfer,
			Message: fmt.Sprintf("remote call failed with status %d", resp.StatusCode),
		}
	}
	return decodeErrorBody(&body)
}

func decodeErrorBody(body *errorBody) error {
	if body == nil {
		return &placement.Error{
			Type:    placement.ErrorTransfer,
			Message: "remote call failed without detail",
		}
	}
	return &placement.Error{
		Type:    placement.ParseErrorType(body.ErrorType),
		Message: body.Error,
	}
}
