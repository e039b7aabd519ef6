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

import "net/http"

// =============================================================================
// Error Taxonomy
// =============================================================================

// Wire-level error kinds. Every error body the gateway produces carries
// exactly one of these in its `error` field; handlers never invent ad-hoc
// kinds.
const (
	ErrKindValidation          = "validation_error"
	ErrKindUnauthorized        = "unauthorized"
	ErrKindForbidden           = "forbidden"
	ErrKindNotFound            = "not_found"
	ErrKindConflict            = "conflict"
	ErrKindRateLimited         = "rate_limited"
	ErrKindProviderError       = "provider_error"
	ErrKindProviderUnavailable = "provider_unavailable"
	ErrKindTimeout             = "timeout"
	ErrKindInternal            = "internal_error"
)

// ErrorResponse is the stable JSON error envelope.
//
// Message carries a single human-readable line. Errors carries the
// per-field detail of a validation failure. RetryAfter (seconds) is set
// only on rate_limited responses, mirroring the Retry-After header.
type ErrorResponse struct {
	Error      string   `json:"error"`
	Message    string   `json:"message,omitempty"`
	Errors     []string `json:"errors,omitempty"`
	RetryAfter int      `json:"retry_after,omitempty"`
}

// StatusFor maps an error kind to its HTTP status code. Unknown kinds map
// to 500 so a taxonomy slip can never accidentally succeed.
func StatusFor(kind string) int {
	switch kind {
	case ErrKindValidation:
		return http.StatusBadRequest
	case ErrKindUnauthorized:
		return http.StatusUnauthorized
	case ErrKindForbidden:
		return http.StatusForbidden
	case ErrKindNotFound:
		return http.StatusNotFound
	case ErrKindConflict:
		return http.StatusConflict
	case ErrKindRateLimited:
		return http.StatusTooManyRequests
	case ErrKindProviderError, ErrKindProviderUnavailable:
		return http.StatusBadGateway
	case ErrKindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// =============================================================================
// Constructors
// =============================================================================

// NewValidationError builds the 400 envelope with per-field detail.
func NewValidationError(errs []string) ErrorResponse {
	return ErrorResponse{Error: ErrKindValidation, Errors: errs}
}

// NewError builds an envelope with a single message line.
func NewError(kind, message string) ErrorResponse {
	return ErrorResponse{Error: kind, Message: message}
}

// NewRateLimited builds the 429 envelope. retryAfter is whole seconds
// until the current window closes, never zero on a denial.
func NewRateLimited(retryAfter int) ErrorResponse {
	return ErrorResponse{
		Error:      ErrKindRateLimited,
		Message:    "rate limit exceeded",
		RetryAfter: retryAfter,
	}
}
