// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package token mints and verifies the gateway's bearer tokens.
//
// Tokens are compact JWTs signed HMAC-SHA256 with the shared gateway
// secret. The verifier holds the secret inside a memguard enclave so the
// key material is encrypted at rest in process memory and only unsealed
// for the microseconds a signature check needs it.
package token

import (
	"context"
	"fmt"
	"time"

	"github.com/awnumar/memguard"
	"github.com/golang-jwt/jwt/v5"

	"github.com/AleutianAI/AleutianGate/pkg/extensions"
)

// Claims are the JWT claims carried by gateway tokens.
// Role is the only extension over the registered set.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Issuer is the `iss` claim stamped on minted tokens. Verification does
// not require it; tokens minted by older tools remain valid.
const Issuer = "aleutian.ai/gateway"

// Mint creates a signed HS256 token for the given subject.
//
// The secret is borrowed, not retained; callers who need it gone should
// wipe it after the last Mint call.
func Mint(secret []byte, subject, role string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", fmt.Errorf("mint: empty signing secret")
	}
	if subject == "" {
		return "", fmt.Errorf("mint: empty subject")
	}

	now := time.Now().UTC()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(secret)
}

// Verifier validates HS256 gateway tokens against the shared secret.
//
// Implements extensions.AuthProvider. Safe for concurrent use; every
// validation unseals its own view of the enclave.
type Verifier struct {
	enclave *memguard.Enclave
}

// NewVerifier seals the signing secret into an enclave.
//
// memguard wipes the passed slice as part of sealing, so the caller's
// copy of the secret is destroyed here. Call memguard.Purge during
// process shutdown to scrub the enclave itself.
func NewVerifier(secret []byte) *Verifier {
	return &Verifier{enclave: memguard.NewEnclave(secret)}
}

// Validate checks the raw bearer token and returns its principal.
//
// Enforced: HS256 signature (no algorithm negotiation), a present and
// unexpired `exp` claim, and a non-empty `sub` claim. All failures map
// to extensions.ErrUnauthorized; the parse detail goes to the wrapped
// error for logs only.
func (v *Verifier) Validate(_ context.Context, tokenString string) (*extensions.Principal, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("missing bearer token: %w", extensions.ErrUnauthorized)
	}

	key, err := v.enclave.Open()
	if err != nil {
		return nil, fmt.Errorf("unseal signing secret: %w", err)
	}
	defer key.Destroy()

	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) {
			return key.Bytes(), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("token rejected: %v: %w", err, extensions.ErrUnauthorized)
	}
	if !tok.Valid {
		return nil, fmt.Errorf("token invalid: %w", extensions.ErrUnauthorized)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token missing subject: %w", extensions.ErrUnauthorized)
	}

	return &extensions.Principal{
		Subject: claims.Subject,
		Role:    claims.Role,
	}, nil
}

// Compile-time interface compliance check.
var _ extensions.AuthProvider = (*Verifier)(nil)
