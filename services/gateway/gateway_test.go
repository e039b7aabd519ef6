// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gateway

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianGate/pkg/token"
	"github.com/AleutianAI/AleutianGate/services/gateway/datatypes"
)

// =============================================================================
// Test Setup
// =============================================================================

const testAuthSecret = "gateway-test-secret"

func newTestService(t *testing.T, cfg Config) Service {
	t.Helper()
	cfg.GinMode = gin.TestMode
	svc, err := New(cfg, nil)
	require.NoError(t, err)
	return svc
}

func mintTestToken(t *testing.T, subject string) string {
	t.Helper()
	minted, err := token.Mint([]byte(testAuthSecret), subject, "agent", time.Hour)
	require.NoError(t, err)
	return minted
}

func serve(svc Service, method, path, bearer string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		buf, _ := json.Marshal(body)
		reader = bytes.NewReader(buf)
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	svc.Router().ServeHTTP(w, req)
	return w
}

// fakeOllama stands in for a local Ollama instance and captures the
// Authorization header of every request it receives.
func fakeOllama(t *testing.T, reply datatypes.ChatResponse) (*httptest.Server, *[]string) {
	t.Helper()
	var authHeaders []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeaders = append(authHeaders, r.Header.Get("Authorization"))
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(reply)
	}))
	t.Cleanup(server.Close)
	return server, &authHeaders
}

// =============================================================================
// Construction Tests
// =============================================================================

func TestNew_RouterSmoke(t *testing.T) {
	svc := newTestService(t, Config{AuthSecret: testAuthSecret})

	w := serve(svc, "GET", "/health", "", nil)
	require.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)

	w = serve(svc, "GET", "/ready", "", nil)
	assert.Equal(t, 200, w.Code)

	w = serve(svc, "GET", "/tasks", "", nil)
	assert.Equal(t, 401, w.Code)

	w = serve(svc, "GET", "/tasks", mintTestToken(t, "agent-a"), nil)
	assert.Equal(t, 200, w.Code)
}

func TestNew_MetricsExposed(t *testing.T) {
	svc := newTestService(t, Config{AuthSecret: testAuthSecret})

	// Generate one instrumented request, then read the exposition.
	serve(svc, "GET", "/tasks", mintTestToken(t, "agent-a"), nil)

	w := serve(svc, "GET", "/metrics", "", nil)
	require.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), "gateway_requests_total")
}

func TestNew_DevModeAcceptsAnonymous(t *testing.T) {
	svc := newTestService(t, Config{})

	w := serve(svc, "GET", "/tasks", "", nil)
	assert.Equal(t, 200, w.Code)
}

func TestNew_BadOverlayIsFatal(t *testing.T) {
	_, err := New(Config{ConfigPath: "/nonexistent/overlay.yaml", GinMode: gin.TestMode}, nil)
	assert.Error(t, err)
}

func TestNew_BadJournalIsFatal(t *testing.T) {
	// A journal path inside a missing directory cannot be opened, and
	// the service must refuse to start rather than drop durability.
	_, err := New(Config{
		AuditJournal: "/nonexistent-dir/sub/audit.jsonl",
		GinMode:      gin.TestMode,
	}, nil)
	assert.Error(t, err)
}

// =============================================================================
// End-to-End Chat Tests
// =============================================================================

func TestChatThroughLocalProvider(t *testing.T) {
	upstream, authSeen := fakeOllama(t, datatypes.ChatResponse{
		Model:   "qwen2.5:3b",
		Message: datatypes.ChatMessage{Role: "assistant", Content: "hello from upstream"},
	})

	svc := newTestService(t, Config{
		AuthSecret: testAuthSecret,
		OllamaURL:  upstream.URL,
	})
	bearer := mintTestToken(t, "agent-coder")

	w := serve(svc, "POST", "/v1/chat", bearer, datatypes.ChatRequest{
		Model:    "qwen2.5:3b",
		Messages: []datatypes.Message{{Role: "user", Content: "hi"}},
	})
	require.Equal(t, 200, w.Code)

	var resp datatypes.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "hello from upstream", resp.Message.Content)

	// The agent's bearer token stops at the gateway; the upstream saw
	// no Authorization header at all.
	require.NotEmpty(t, *authSeen)
	for _, h := range *authSeen {
		assert.Empty(t, h)
		assert.NotContains(t, h, bearer)
	}
}

// =============================================================================
// Credential Containment Tests
// =============================================================================

func TestProviderKeysNeverLeaveTheGateway(t *testing.T) {
	const (
		openAIKey    = "sk-test-openai-credential-000"
		anthropicKey = "sk-ant-test-credential-000"
	)

	svc := newTestService(t, Config{
		AuthSecret:   testAuthSecret,
		OpenAIKey:    openAIKey,
		AnthropicKey: anthropicKey,
	})
	bearer := mintTestToken(t, "agent-sweeper")

	bodies := []string{
		serve(svc, "GET", "/ready", "", nil).Body.String(),
		serve(svc, "GET", "/openapi.json", "", nil).Body.String(),
		serve(svc, "GET", "/no/such/route", "", nil).Body.String(),
		serve(svc, "GET", "/agents", bearer, nil).Body.String(),
		serve(svc, "GET", "/audit", bearer, nil).Body.String(),
		serve(svc, "GET", "/metrics", "", nil).Body.String(),
	}

	for i, body := range bodies {
		assert.False(t, strings.Contains(body, openAIKey), "response %d leaks openai key", i)
		assert.False(t, strings.Contains(body, anthropicKey), "response %d leaks anthropic key", i)
	}
}
