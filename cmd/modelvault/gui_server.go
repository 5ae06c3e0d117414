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
	"html/template"
	"net/http"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/ModelVault/pkg/placement"
)

// guiServer serves a single-page browser form for preserving models.
// It is a thin shell over the same Invoker the CLI uses; form
// submissions carry the same four named parameters plus a run-mode
// toggle (local vs. deployed).
type guiServer struct {
	local    Invoker
	deployed Invoker
	// defaultMode preselects the run-mode radio ("local" or "deployed").
	defaultMode string
}

const guiPage = `<!DOCTYPE html>
<html>
<head>
<title>ModelVault</title>
<style>
body { font-family: sans-serif; max-width: 640px; margin: 2em auto; }
label { display: block; margin-top: 0.8em; }
input[type=text] { width: 100%; padding: 4px; }
.result { margin-top: 1.5em; padding: 1em; background: #e8f5e9; }
.error { margin-top: 1.5em; padding: 1em; background: #ffebee; }
button { margin-top: 1.2em; padding: 6px 18px; }
</style>
</head>
<body>
<h1>ModelVault</h1>
<p>Preserve a model file onto a shared volume.</p>
<form method="POST" action="/preserve">
  <label>Repository ID
    <input type="text" name="repo_id" value="{{.RepoID}}" placeholder="Comfy-Org/Qwen-Image_ComfyUI">
  </label>
  <label>Filename
    <input type="text" name="filename" value="{{.Filename}}" placeholder="split_files/vae/qwen_image_vae.safetensors">
  </label>
  <label>Revision
    <input type="text" name="revision" value="{{.Revision}}" placeholder="main">
  </label>
  <label>Destination subdir
    <input type="text" name="destination_subdir" value="{{.Subdir}}" placeholder="(inferred from filename when empty)">
  </label>
  <label>Run mode
    <input type="radio" name="mode" value="local" {{if ne .Mode "deployed"}}checked{{end}}> ephemeral
    <input type="radio" name="mode" value="deployed" {{if eq .Mode "deployed"}}checked{{end}}> deployed
  </label>
  <button type="submit">Preserve</button>
</form>
{{if .Result}}<div class="result">{{.Result}}</div>{{end}}
{{if .Error}}<div class="error">{{.Error}}</div>{{end}}
</body>
</html>`

type guiPageData struct {
	RepoID   string
	Filename string
	Revision string
	Subdir   string
	Mode     string
	Result   string
	Error    string
}

var guiTemplate = template.Must(template.New("gui").Parse(guiPage))

func (g *guiServer) render(c *gin.Context, status int, data guiPageData) {
	c.Status(status)
	c.Header("Content-Type", "text/html; charset=utf-8")
	_ = guiTemplate.Execute(c.Writer, data)
}

// handleIndex shows the empty form.
func (g *guiServer) handleIndex(c *gin.Context) {
	g.render(c, http.StatusOK, guiPageData{Mode: g.defaultMode})
}

// handlePreserve runs one preserve from the submitted form.
func (g *guiServer) handlePreserve(c *gin.Context) {
	data := guiPageData{
		RepoID:   c.PostForm("repo_id"),
		Filename: c.PostForm("filename"),
		Revision: c.PostForm("revision"),
		Subdir:   c.PostForm("destination_subdir"),
		Mode:     c.PostForm("mode"),
	}
	if data.Mode == "" {
		data.Mode = g.defaultMode
	}

	invoker := g.local
	if data.Mode == "deployed" {
		invoker = g.deployed
	}

	req := placement.Request{
		RepoID:            data.RepoID,
		Filename:          data.Filename,
		Revision:          data.Revision,
		DestinationSubdir: data.Subdir,
	}

	result, err := invoker.Preserve(c.Request.Context(), req)
	if err != nil {
		data.Error = err.Error()
		g.render(c, http.StatusOK, data)
		return
	}

	verb := "Preserved"
	if result.Reused {
		verb = "Already preserved"
	}
	data.Result = fmt.Sprintf("%s at %s (%s)", verb, result.Path,
		humanize.IBytes(uint64(result.SizeBytes)))
	g.render(c, http.StatusOK, data)
}

// newGUIRouter wires the two routes.
func newGUIRouter(server *guiServer) *gin.Engine {
	router := gin.Default()
	router.GET("/", server.handleIndex)
	router.POST("/preserve", server.handlePreserve)
	return router
}
