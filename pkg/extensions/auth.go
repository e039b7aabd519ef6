// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"errors"
)

// ErrUnauthorized is returned when token validation fails for any reason:
// missing token, malformed token, bad signature, or expiry. Implementations
// should wrap this error with additional context for logs, but callers must
// not leak the detail to clients.
//
// Example:
//
//	if time.Now().After(claims.ExpiresAt.Time) {
//	    return nil, fmt.Errorf("token expired: %w", extensions.ErrUnauthorized)
//	}
var ErrUnauthorized = errors.New("unauthorized")

// Principal contains identity information returned after successful
// authentication.
//
// Agents at the trust boundary authenticate with their own bearer token;
// the principal carries the token's subject and role, never any provider
// credential.
//
// Required fields (always populated):
//   - Subject: Unique identifier for the client
//
// Optional fields (may be empty):
//   - Role: Coarse role for authorization decisions
//   - Dev: Whether this principal was synthesized in development mode
//
// Example:
//
//	principal := &Principal{
//	    Subject: "agent-planner",
//	    Role:    "agent",
//	}
type Principal struct {
	// Subject is the stable client identifier, taken from the token's
	// `sub` claim. This is the only required field and must never be
	// empty. It keys rate-limit buckets and audit attribution.
	Subject string `json:"sub"`

	// Role is the client's coarse role. Common roles: "admin", "agent".
	// The role model is intentionally minimal; "admin" is the only role
	// with extra reach today.
	Role string `json:"role,omitempty"`

	// Dev marks principals synthesized in development mode, where no
	// signing secret is configured and every request is accepted.
	// Audit records carry this flag so dev traffic is distinguishable
	// after the fact.
	Dev bool `json:"dev,omitempty"`
}

// IsAdmin reports whether the principal carries the admin role.
//
// This is a convenience method for authorization checks:
//
//	if !principal.IsAdmin() {
//	    return ErrForbidden
//	}
func (p *Principal) IsAdmin() bool {
	return p.Role == "admin"
}

// AuthProvider validates bearer tokens and returns the caller's identity.
//
// Implementations must be safe for concurrent use by multiple goroutines,
// and must return ErrUnauthorized (possibly wrapped) for any invalid token.
//
// # Open Source Behavior
//
// The gateway ships two implementations: an HMAC-signed token validator
// used whenever a signing secret is configured, and DevAuthProvider as
// the development-mode fallback when no secret is set.
//
// # Enterprise Implementation
//
// Enterprise versions implement this interface to validate tokens against
// identity providers like Okta, Auth0, or Azure AD.
//
// Example enterprise implementation:
//
//	type OktaAuthProvider struct {
//	    client *okta.Client
//	}
//
//	func (p *OktaAuthProvider) Validate(ctx context.Context, token string) (*extensions.Principal, error) {
//	    claims, err := p.client.VerifyToken(ctx, token)
//	    if err != nil {
//	        return nil, fmt.Errorf("okta validation failed: %w", extensions.ErrUnauthorized)
//	    }
//	    return &extensions.Principal{Subject: claims.Subject, Role: claims.Role}, nil
//	}
type AuthProvider interface {
	// Validate checks if the token is valid and returns the caller's
	// identity.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - token: The raw bearer token with the "Bearer " prefix stripped
	//
	// Returns:
	//   - *Principal: Caller identity if valid
	//   - error: ErrUnauthorized (or wrapped) if invalid
	Validate(ctx context.Context, token string) (*Principal, error)
}

// DevAuthProvider is the development-mode authentication provider.
//
// It accepts every request, with or without a token, and returns a
// synthetic admin principal. The gateway selects it only when no signing
// secret is configured, and announces the open state loudly at startup.
//
// Thread-safe: This implementation has no mutable state.
//
// Example:
//
//	provider := &DevAuthProvider{}
//	principal, err := provider.Validate(ctx, "any-token")
//	// principal.Subject == "anonymous"
//	// principal.Role == "admin"
//	// principal.Dev == true
//	// err == nil
type DevAuthProvider struct{}

// Validate always returns the synthetic development principal.
//
// The token parameter is ignored - any value (including empty string)
// results in successful authentication. This is intentional for local
// single-user deployments; never run this in front of real credentials
// on a shared network.
func (p *DevAuthProvider) Validate(_ context.Context, _ string) (*Principal, error) {
	return &Principal{
		Subject: "anonymous",
		Role:    "admin",
		Dev:     true,
	}, nil
}

// Compile-time interface compliance check.
var _ AuthProvider = (*DevAuthProvider)(nil)
