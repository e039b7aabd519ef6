// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package token

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/AleutianAI/AleutianGate/pkg/extensions"
)

// secretBytes returns a fresh secret slice. memguard wipes the slice
// passed to NewVerifier, so each caller needs its own copy.
func secretBytes() []byte {
	return []byte("test-signing-secret-0123456789abcdef")
}

func TestMintValidate_RoundTrip(t *testing.T) {
	tok, err := Mint(secretBytes(), "agent-planner", "agent", time.Hour)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if strings.Count(tok, ".") != 2 {
		t.Fatalf("token %q is not three dot-separated segments", tok)
	}

	v := NewVerifier(secretBytes())
	principal, err := v.Validate(context.Background(), tok)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if principal.Subject != "agent-planner" {
		t.Errorf("Subject = %q, want %q", principal.Subject, "agent-planner")
	}
	if principal.Role != "agent" {
		t.Errorf("Role = %q, want %q", principal.Role, "agent")
	}
	if principal.Dev {
		t.Error("verified principals must not carry the dev flag")
	}
}

func TestValidate_EmptyToken(t *testing.T) {
	v := NewVerifier(secretBytes())

	_, err := v.Validate(context.Background(), "")
	if !errors.Is(err, extensions.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestValidate_ExpiredToken(t *testing.T) {
	tok, err := Mint(secretBytes(), "agent-planner", "agent", -time.Minute)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	v := NewVerifier(secretBytes())
	_, err = v.Validate(context.Background(), tok)
	if !errors.Is(err, extensions.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized for expired token, got %v", err)
	}
}

func TestValidate_WrongSecret(t *testing.T) {
	tok, err := Mint([]byte("some-other-secret-secret-secret!"), "agent-planner", "agent", time.Hour)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	v := NewVerifier(secretBytes())
	_, err = v.Validate(context.Background(), tok)
	if !errors.Is(err, extensions.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized for wrong secret, got %v", err)
	}
}

func TestValidate_MalformedToken(t *testing.T) {
	v := NewVerifier(secretBytes())

	for _, tok := range []string{"garbage", "a.b", "Basic abc", "a.b.c.d"} {
		if _, err := v.Validate(context.Background(), tok); !errors.Is(err, extensions.ErrUnauthorized) {
			t.Errorf("token %q: expected ErrUnauthorized, got %v", tok, err)
		}
	}
}

func TestValidate_MissingExpiry(t *testing.T) {
	// Hand-roll a token without exp; Validate requires the claim.
	claims := Claims{
		Role: "agent",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: "agent-planner",
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secretBytes())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	v := NewVerifier(secretBytes())
	if _, err := v.Validate(context.Background(), tok); !errors.Is(err, extensions.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized for token without exp, got %v", err)
	}
}

func TestValidate_RejectsUnsignedAlgorithm(t *testing.T) {
	// alg=none tokens must never verify, regardless of payload.
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "agent-planner",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	v := NewVerifier(secretBytes())
	if _, err := v.Validate(context.Background(), tok); !errors.Is(err, extensions.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized for alg=none token, got %v", err)
	}
}

func TestValidate_MissingSubject(t *testing.T) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	unsubbed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secretBytes())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	v := NewVerifier(secretBytes())
	if _, err := v.Validate(context.Background(), unsubbed); !errors.Is(err, extensions.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized for token without sub, got %v", err)
	}
}

func TestMint_InvalidInputs(t *testing.T) {
	if _, err := Mint(nil, "sub", "role", time.Hour); err == nil {
		t.Error("expected error for empty secret")
	}
	if _, err := Mint(secretBytes(), "", "role", time.Hour); err == nil {
		t.Error("expected error for empty subject")
	}
}
