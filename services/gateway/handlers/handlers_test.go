// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianGate/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianGate/services/gateway/providers"
)

// =============================================================================
// Test Setup
// =============================================================================

func init() {
	gin.SetMode(gin.TestMode)
}

// stubProvider is a scripted chat backend. It binds under the "ollama"
// identity by default so plain model names route to it.
type stubProvider struct {
	name        string
	chatResp    *datatypes.ChatResponse
	chatErr     error
	tokens      []string
	streamErr   error // returned after the scripted tokens are delivered
	promptCount int
	evalCount   int
	models      []string
	healthy     bool
}

func (p *stubProvider) Name() string {
	if p.name == "" {
		return "ollama"
	}
	return p.name
}

func (p *stubProvider) Chat(_ context.Context, _ datatypes.ChatRequest) (*datatypes.ChatResponse, error) {
	if p.chatErr != nil {
		return nil, p.chatErr
	}
	return p.chatResp, nil
}

func (p *stubProvider) ChatStream(_ context.Context, _ datatypes.ChatRequest, callback providers.StreamCallback) error {
	for _, tok := range p.tokens {
		if err := callback(providers.StreamEvent{Type: providers.StreamEventToken, Content: tok}); err != nil {
			return err
		}
	}
	if p.streamErr != nil {
		return p.streamErr
	}
	return callback(providers.StreamEvent{
		Type:            providers.StreamEventDone,
		PromptEvalCount: p.promptCount,
		EvalCount:       p.evalCount,
	})
}

func (p *stubProvider) Health(_ context.Context) bool { return p.healthy }

func (p *stubProvider) Models(_ context.Context) []string { return p.models }

// stubGenerator adds the legacy generate contract on top of stubProvider.
type stubGenerator struct {
	*stubProvider
	genResp *datatypes.GenerateResponse
	genErr  error
}

func (p *stubGenerator) Generate(_ context.Context, _ datatypes.GenerateRequest) (*datatypes.GenerateResponse, error) {
	if p.genErr != nil {
		return nil, p.genErr
	}
	return p.genResp, nil
}

func (p *stubGenerator) GenerateStream(_ context.Context, _ datatypes.GenerateRequest, callback providers.StreamCallback) error {
	return p.ChatStream(context.Background(), datatypes.ChatRequest{}, callback)
}

func discardSlog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStubRegistry(p providers.Provider) *providers.Registry {
	reg := providers.NewRegistry(discardSlog())
	reg.Bind(p, 0, 0)
	return reg
}

// performJSON runs one request through the router with a JSON body.
func performJSON(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			panic(err)
		}
		reader = bytes.NewReader(buf)
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

// sseFrames splits an SSE body into its data payloads, in wire order.
func sseFrames(t *testing.T, body string) []string {
	t.Helper()
	var frames []string
	for _, part := range strings.Split(body, "\n\n") {
		if part == "" {
			continue
		}
		require.True(t, strings.HasPrefix(part, "data: "), "malformed frame: %q", part)
		frames = append(frames, strings.TrimPrefix(part, "data: "))
	}
	return frames
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) datatypes.ErrorResponse {
	t.Helper()
	var resp datatypes.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

// =============================================================================
// Health Handler Tests
// =============================================================================

func TestHandleHealth(t *testing.T) {
	reg := newStubRegistry(&stubProvider{healthy: true})
	router := gin.New()
	router.GET("/health", HandleHealth(reg, "1.2.3", time.Now().Add(-2*time.Second)))

	w := performJSON(router, "GET", "/health", nil)
	require.Equal(t, 200, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.GreaterOrEqual(t, resp.UptimeSec, int64(1))
	assert.Equal(t, map[string]bool{"ollama": true}, resp.Providers)
}

func TestHandleHealth_DeadProviderDoesNotFailInstance(t *testing.T) {
	reg := newStubRegistry(&stubProvider{healthy: false})
	router := gin.New()
	router.GET("/health", HandleHealth(reg, "", time.Now()))

	w := performJSON(router, "GET", "/health", nil)
	require.Equal(t, 200, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.False(t, resp.Providers["ollama"])
}

func TestHandleReady(t *testing.T) {
	router := gin.New()
	router.GET("/ready", HandleReady())

	w := performJSON(router, "GET", "/ready", nil)
	assert.Equal(t, 200, w.Code)
	assert.JSONEq(t, `{"ready":true}`, w.Body.String())
}

// =============================================================================
// Models Handler Tests
// =============================================================================

func TestHandleModels(t *testing.T) {
	reg := newStubRegistry(&stubProvider{models: []string{"qwen2.5:3b", "llama3"}})
	router := gin.New()
	router.GET("/v1/models", HandleModels(reg))

	w := performJSON(router, "GET", "/v1/models", nil)
	require.Equal(t, 200, w.Code)

	var resp datatypes.ModelsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Total)
	assert.Equal(t, "qwen2.5:3b", resp.Models[0].ID)
	assert.Equal(t, "ollama", resp.Models[0].Provider)
}

// =============================================================================
// Agents Handler Tests
// =============================================================================

func TestHandleAgents(t *testing.T) {
	roster := []datatypes.Agent{
		{ID: "planner", Name: "Planner", Role: "planning", Status: "active", Model: "gpt-4o"},
	}
	router := gin.New()
	router.GET("/agents", HandleAgents(roster))

	w := performJSON(router, "GET", "/agents", nil)
	require.Equal(t, 200, w.Code)

	var resp datatypes.AgentsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "planner", resp.Agents[0].ID)
}

func TestHandleAgents_EmptyRosterIsArray(t *testing.T) {
	router := gin.New()
	router.GET("/agents", HandleAgents(nil))

	w := performJSON(router, "GET", "/agents", nil)
	require.Equal(t, 200, w.Code)
	assert.JSONEq(t, `{"agents":[],"count":0}`, w.Body.String())
}

// =============================================================================
// OpenAPI Handler Tests
// =============================================================================

func TestHandleOpenAPI(t *testing.T) {
	router := gin.New()
	router.GET("/openapi.json", HandleOpenAPI())

	w := performJSON(router, "GET", "/openapi.json", nil)
	require.Equal(t, 200, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, "3.0.3", doc["openapi"])
	paths, ok := doc["paths"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, paths, "/v1/chat")
	assert.Contains(t, paths, "/audit/verify")
}

// =============================================================================
// Pagination Helper Tests
// =============================================================================

func TestPagination(t *testing.T) {
	tests := []struct {
		query  string
		limit  int
		offset int
	}{
		{"", 0, 0},
		{"?limit=5&offset=10", 5, 10},
		{"?limit=-3&offset=-1", 0, 0},
		{"?limit=abc&offset=xyz", 0, 0},
	}
	for _, tt := range tests {
		router := gin.New()
		var limit, offset int
		router.GET("/x", func(c *gin.Context) {
			limit, offset = pagination(c)
			c.Status(200)
		})
		performJSON(router, "GET", "/x"+tt.query, nil)
		assert.Equal(t, tt.limit, limit, tt.query)
		assert.Equal(t, tt.offset, offset, tt.query)
	}
}
