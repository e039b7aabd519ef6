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
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianGate/services/gateway/audit"
	"github.com/AleutianAI/AleutianGate/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianGate/services/gateway/providers"
)

// Per-request deadlines. Chat covers the full upstream exchange including
// long streams; probes must answer fast or be treated as down.
const (
	ChatTimeout  = 120 * time.Second
	ProbeTimeout = 3 * time.Second
)

// abortUpstream classifies a provider-pipeline failure and writes the
// matching wire error, tagging the audit record with the same kind.
//
// Classification order matters: a deadline that expired while waiting in
// the provider's concurrency gate still surfaces as timeout, and only a
// genuine UpstreamError carries upstream detail (already excerpt-capped
// and credential-free by the adapter contract).
func abortUpstream(c *gin.Context, err error) {
	kind := datatypes.ErrKindProviderError
	message := "upstream request failed"

	var upstream *providers.UpstreamError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = datatypes.ErrKindTimeout
		message = "request deadline exceeded"
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful can be written, but the
		// audit record still needs a terminal status.
		kind = datatypes.ErrKindTimeout
		message = "request cancelled"
	case errors.Is(err, providers.ErrNoProvider):
		kind = datatypes.ErrKindProviderUnavailable
		message = "no provider bound for the selected model"
	case errors.Is(err, providers.ErrNotSupported):
		kind = datatypes.ErrKindProviderUnavailable
		message = "operation not supported by the selected provider"
	case errors.As(err, &upstream):
		message = upstream.Error()
	}

	audit.SetErrorTag(c, kind)
	c.AbortWithStatusJSON(datatypes.StatusFor(kind), datatypes.NewError(kind, message))
}

// abortValidation writes the 400 envelope with per-field detail.
func abortValidation(c *gin.Context, errs []string) {
	audit.SetErrorTag(c, datatypes.ErrKindValidation)
	c.AbortWithStatusJSON(400, datatypes.NewValidationError(errs))
}

// abortNotFound writes the 404 envelope.
func abortNotFound(c *gin.Context, message string) {
	audit.SetErrorTag(c, datatypes.ErrKindNotFound)
	c.AbortWithStatusJSON(404, datatypes.NewError(datatypes.ErrKindNotFound, message))
}
