// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"encoding/json"
	"net/http"
	"testing"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind string
		want int
	}{
		{ErrKindValidation, http.StatusBadRequest},
		{ErrKindUnauthorized, http.StatusUnauthorized},
		{ErrKindForbidden, http.StatusForbidden},
		{ErrKindNotFound, http.StatusNotFound},
		{ErrKindConflict, http.StatusConflict},
		{ErrKindRateLimited, http.StatusTooManyRequests},
		{ErrKindProviderError, http.StatusBadGateway},
		{ErrKindProviderUnavailable, http.StatusBadGateway},
		{ErrKindTimeout, http.StatusGatewayTimeout},
		{ErrKindInternal, http.StatusInternalServerError},
		{"something_else", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			if got := StatusFor(tt.kind); got != tt.want {
				t.Errorf("StatusFor(%q) = %d, want %d", tt.kind, got, tt.want)
			}
		})
	}
}

func TestErrorResponse_WireShape(t *testing.T) {
	body, err := json.Marshal(NewValidationError([]string{"model is required"}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	want := `{"error":"validation_error","errors":["model is required"]}`
	if string(body) != want {
		t.Errorf("validation body = %s, want %s", body, want)
	}

	body, err = json.Marshal(NewError(ErrKindConflict, "not_available"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	want = `{"error":"conflict","message":"not_available"}`
	if string(body) != want {
		t.Errorf("conflict body = %s, want %s", body, want)
	}
}

func TestNewRateLimited(t *testing.T) {
	resp := NewRateLimited(42)

	if resp.Error != ErrKindRateLimited {
		t.Errorf("Error = %q, want %q", resp.Error, ErrKindRateLimited)
	}
	if resp.RetryAfter != 42 {
		t.Errorf("RetryAfter = %d, want 42", resp.RetryAfter)
	}

	body, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"error":"rate_limited","message":"rate limit exceeded","retry_after":42}`
	if string(body) != want {
		t.Errorf("body = %s, want %s", body, want)
	}
}
