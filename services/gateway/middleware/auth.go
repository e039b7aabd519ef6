// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP middleware for the gateway service.
//
// This package contains middleware for authentication, rate limiting,
// CORS, request identification, and body size capping. Ordering matters:
// the rate limiter runs before auth so a denial never reveals whether
// the presented token would have validated.
//
// # Authentication Flow
//
// The auth middleware extracts a bearer token from the Authorization
// header, validates it using the configured AuthProvider, and stores the
// resulting Principal in the Gin context for downstream handlers.
//
//	Request
//	   │
//	   ▼
//	AuthMiddleware
//	   │
//	   ├─► Public path? pass through unauthenticated
//	   │
//	   ├─► Extract token from "Authorization: Bearer <token>"
//	   │
//	   ├─► provider.Validate(ctx, token)
//	   │
//	   └─► Store Principal in context
//	           │
//	           ▼
//	       Handler (retrieves via GetPrincipal)
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianGate/pkg/extensions"
	"github.com/AleutianAI/AleutianGate/services/gateway/datatypes"
)

// =============================================================================
// Context Keys
// =============================================================================

// principalKey is the context key for storing the authenticated Principal.
// Using a namespaced key prevents collisions with other context values.
const principalKey = "aleutian_gateway_principal"

// PublicPaths lists paths served without authentication. Everything else
// requires a bearer token.
var PublicPaths = []string{
	"/health",
	"/ready",
	"/openapi.json",
	"/metrics",
}

// IsPublicPath reports whether path is served without authentication.
func IsPublicPath(path string) bool {
	for _, p := range PublicPaths {
		if path == p {
			return true
		}
	}
	return false
}

// =============================================================================
// Context Helpers
// =============================================================================

// SetPrincipal stores the authenticated principal in the Gin context.
// Called by AuthMiddleware after successful authentication.
func SetPrincipal(c *gin.Context, p *extensions.Principal) {
	c.Set(principalKey, p)
}

// GetPrincipal retrieves the authenticated principal from the Gin context.
//
// Returns nil when the request was not authenticated (public paths) or
// when the stored value has the wrong type.
func GetPrincipal(c *gin.Context) *extensions.Principal {
	if v, exists := c.Get(principalKey); exists {
		if p, ok := v.(*extensions.Principal); ok {
			return p
		}
	}
	return nil
}

// ClientID returns the identity string used for rate limiting and audit
// attribution: the principal subject when authenticated, otherwise the
// source network address.
func ClientID(c *gin.Context) string {
	if p := GetPrincipal(c); p != nil && p.Subject != "" {
		return p.Subject
	}
	return c.ClientIP()
}

// =============================================================================
// Auth Middleware
// =============================================================================

// AuthMiddleware creates a Gin middleware that authenticates requests.
//
// Public paths pass through untouched. For every other path the bearer
// token is extracted and handed to the provider; a missing or malformed
// Authorization header fails exactly like an invalid token, with 401
// {"error":"unauthorized","message":"..."}. The message distinguishes
// the failure mode but never echoes token material.
//
// In development mode the provider is a DevAuthProvider which accepts
// the empty token, so requests without credentials succeed with the
// synthetic anonymous principal.
func AuthMiddleware(provider extensions.AuthProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsPublicPath(c.Request.URL.Path) {
			c.Next()
			return
		}

		token, ok := extractBearerToken(c)
		if !ok {
			// Dev mode still authenticates schemeless requests.
			if _, dev := provider.(*extensions.DevAuthProvider); !dev {
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					datatypes.NewError(datatypes.ErrKindUnauthorized, "missing or malformed bearer token"))
				return
			}
		}

		principal, err := provider.Validate(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, extensions.ErrUnauthorized) {
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					datatypes.NewError(datatypes.ErrKindUnauthorized, "invalid or expired token"))
				return
			}
			// Provider failures (enterprise IdP down, enclave fault).
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				datatypes.NewError(datatypes.ErrKindUnauthorized, "authentication failed"))
			return
		}

		SetPrincipal(c, principal)
		c.Next()
	}
}

// =============================================================================
// Helper Functions
// =============================================================================

// extractBearerToken extracts the token from the Authorization header.
//
// Returns ("", false) when the header is absent or carries a non-Bearer
// scheme; the "Bearer" prefix is case-insensitive per RFC 7235.
func extractBearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	return strings.TrimSpace(parts[1]), true
}
