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
	"fmt"

	"github.com/AleutianAI/ModelVault/cmd/modelvault/config"
	"github.com/AleutianAI/ModelVault/pkg/hub"
	"github.com/AleutianAI/ModelVault/pkg/placement"
	"github.com/AleutianAI/ModelVault/pkg/remote"
	"github.com/AleutianAI/ModelVault/pkg/volume"
)

// Invoker runs one preserve request somewhere. The adapters carry no
// placement logic of their own; local and deployed runs must produce
// identical results for identical requests.
type Invoker interface {
	Preserve(ctx context.Context, req placement.Request) (*placement.Result, error)
}

// LocalInvoker runs the engine in this process (the one-shot path).
type LocalInvoker struct {
	engine        placement.Engine
	defaultVolume string
}

// NewLocalInvoker builds the engine from the loaded config.
func NewLocalInvoker(cfg config.ModelVaultConfig) *LocalInvoker {
	volumes := volume.NewLocalManager(cfg.Volumes.BaseDir)
	engine := placement.NewEngine(hub.NewClient(cfg.Hub.Endpoint), volumes)
	return &LocalInvoker{engine: engine, defaultVolume: cfg.Volumes.Default}
}

// NewLocalInvokerWithEngine injects an engine, for tests.
func NewLocalInvokerWithEngine(engine placement.Engine, defaultVolume string) *LocalInvoker {
	return &LocalInvoker{engine: engine, defaultVolume: defaultVolume}
}

func (i *LocalInvoker) Preserve(ctx context.Context, req placement.Request) (*placement.Result, error) {
	return i.engine.Preserve(ctx, req.ModelReference(), req.Destination(i.defaultVolume))
}

// RemoteInvoker calls the deployed placement service.
type RemoteInvoker struct {
	caller remote.Caller
}

// NewRemoteInvoker builds a remote caller from the loaded config.
func NewRemoteInvoker(cfg config.ModelVaultConfig) *RemoteInvoker {
	caller := remote.NewCaller(cfg.Deployed.BaseURL, cfg.Deployed.App, cfg.Deployed.Function)
	return &RemoteInvoker{caller: caller}
}

// NewRemoteInvokerWithCaller injects a caller, for tests.
func NewRemoteInvokerWithCaller(caller remote.Caller) *RemoteInvoker {
	return &RemoteInvoker{caller: caller}
}

func (i *RemoteInvoker) Preserve(ctx context.Context, req placement.Request) (*placement.Result, error) {
	return i.caller.Call(ctx, req)
}

// newInvoker picks the adapter for a --target value.
func newInvoker(target string, cfg config.ModelVaultConfig) (Invoker, error) {
	switch target {
	case "", "local":
		return NewLocalInvoker(cfg), nil
	case "deployed":
		return NewRemoteInvoker(cfg), nil
	default:
		return nil, fmt.Errorf("unknown target %q (expected 'local' or 'deployed')", target)
	}
}
