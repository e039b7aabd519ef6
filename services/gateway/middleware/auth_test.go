// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianGate/pkg/extensions"
)

// =============================================================================
// Test Setup
// =============================================================================

func init() {
	gin.SetMode(gin.TestMode)
}

// mockAuthProvider is a configurable mock for testing.
type mockAuthProvider struct {
	principal *extensions.Principal
	err       error
}

func (m *mockAuthProvider) Validate(_ context.Context, _ string) (*extensions.Principal, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.principal, nil
}

// =============================================================================
// extractBearerToken Tests
// =============================================================================

func TestExtractBearerToken_ValidToken(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/", nil)
	c.Request.Header.Set("Authorization", "Bearer abc123")

	token, ok := extractBearerToken(c)

	assert.True(t, ok)
	assert.Equal(t, "abc123", token)
}

func TestExtractBearerToken_MissingHeader(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/", nil)

	token, ok := extractBearerToken(c)

	assert.False(t, ok)
	assert.Empty(t, token)
}

func TestExtractBearerToken_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "abc123"},
		{"basic auth", "Basic abc123"},
		{"only bearer", "Bearer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest("GET", "/", nil)
			c.Request.Header.Set("Authorization", tt.header)

			_, ok := extractBearerToken(c)

			assert.False(t, ok)
		})
	}
}

func TestExtractBearerToken_CaseInsensitive(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"lowercase", "bearer abc123"},
		{"uppercase", "BEARER abc123"},
		{"mixed case", "BeArEr abc123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest("GET", "/", nil)
			c.Request.Header.Set("Authorization", tt.header)

			token, ok := extractBearerToken(c)

			assert.True(t, ok)
			assert.Equal(t, "abc123", token)
		})
	}
}

// =============================================================================
// AuthMiddleware Tests
// =============================================================================

func authTestRouter(provider extensions.AuthProvider) *gin.Engine {
	router := gin.New()
	router.Use(AuthMiddleware(provider))
	handler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	router.GET("/health", handler)
	router.POST("/v1/chat", handler)
	return router
}

func TestAuthMiddleware_Success(t *testing.T) {
	provider := &mockAuthProvider{
		principal: &extensions.Principal{Subject: "agent-planner", Role: "agent"},
	}

	router := gin.New()
	router.Use(AuthMiddleware(provider))
	router.POST("/v1/chat", func(c *gin.Context) {
		p := GetPrincipal(c)
		require.NotNil(t, p)
		c.JSON(http.StatusOK, gin.H{"sub": p.Subject})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/chat", nil)
	req.Header.Set("Authorization", "Bearer valid-token-12345")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthMiddleware_MissingHeader(t *testing.T) {
	provider := &mockAuthProvider{
		principal: &extensions.Principal{Subject: "x"},
	}
	router := authTestRouter(provider)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/chat", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "unauthorized", body["error"])
	assert.NotEmpty(t, body["message"])
}

func TestAuthMiddleware_BasicSchemeRejected(t *testing.T) {
	provider := &mockAuthProvider{
		principal: &extensions.Principal{Subject: "x"},
	}
	router := authTestRouter(provider)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/chat", nil)
	req.Header.Set("Authorization", "Basic abc")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_InvalidToken(t *testing.T) {
	provider := &mockAuthProvider{err: extensions.ErrUnauthorized}
	router := authTestRouter(provider)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/chat", nil)
	req.Header.Set("Authorization", "Bearer expired-token")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "unauthorized", body["error"])
}

func TestAuthMiddleware_ProviderError(t *testing.T) {
	provider := &mockAuthProvider{err: errors.New("idp unreachable")}
	router := authTestRouter(provider)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/chat", nil)
	req.Header.Set("Authorization", "Bearer some-token")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_PublicPathSkipsAuth(t *testing.T) {
	// Provider that rejects everything; public paths must never reach it.
	provider := &mockAuthProvider{err: extensions.ErrUnauthorized}
	router := authTestRouter(provider)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthMiddleware_DevProviderWithoutHeader(t *testing.T) {
	router := gin.New()
	router.Use(AuthMiddleware(&extensions.DevAuthProvider{}))
	router.POST("/v1/chat", func(c *gin.Context) {
		p := GetPrincipal(c)
		require.NotNil(t, p)
		assert.Equal(t, "anonymous", p.Subject)
		assert.Equal(t, "admin", p.Role)
		assert.True(t, p.Dev)
		c.JSON(http.StatusOK, gin.H{})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/chat", nil)
	// No Authorization header - dev mode accepts schemeless requests.
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

// =============================================================================
// Context Helper Tests
// =============================================================================

func TestSetAndGetPrincipal(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	expected := &extensions.Principal{Subject: "agent-coder", Role: "agent"}

	SetPrincipal(c, expected)
	actual := GetPrincipal(c)

	require.NotNil(t, actual)
	assert.Equal(t, expected.Subject, actual.Subject)
	assert.Equal(t, expected.Role, actual.Role)
}

func TestGetPrincipal_NotSet(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	assert.Nil(t, GetPrincipal(c))
}

func TestGetPrincipal_WrongType(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Set(principalKey, "not a principal")

	assert.Nil(t, GetPrincipal(c))
}

func TestClientID(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/", nil)

	SetPrincipal(c, &extensions.Principal{Subject: "agent-planner"})
	assert.Equal(t, "agent-planner", ClientID(c))
}

func TestClientID_FallsBackToAddress(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/", nil)
	c.Request.RemoteAddr = "203.0.113.7:4411"

	assert.Equal(t, "203.0.113.7", ClientID(c))
}

func TestIsPublicPath(t *testing.T) {
	for _, p := range []string{"/health", "/ready", "/openapi.json", "/metrics"} {
		assert.True(t, IsPublicPath(p), p)
	}
	for _, p := range []string{"/v1/chat", "/tasks", "/memory", "/healthz"} {
		assert.False(t, IsPublicPath(p), p)
	}
}
