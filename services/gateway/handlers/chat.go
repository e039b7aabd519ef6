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
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianGate/services/gateway/audit"
	"github.com/AleutianAI/AleutianGate/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianGate/services/gateway/observability"
	"github.com/AleutianAI/AleutianGate/services/gateway/providers"
)

// HandleChat serves POST /v1/chat: the unified envelope, unary or SSE.
//
// The model string alone selects the upstream; the adapter injects the
// provider credential server-side. The client's context flows through to
// the upstream exchange, so a disconnect during streaming cancels the
// provider request.
func HandleChat(reg *providers.Registry, metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortValidation(c, []string{"request body must be valid JSON"})
			return
		}
		if err := req.Validate(); err != nil {
			abortValidation(c, datatypes.ValidationMessages(err))
			return
		}

		binding, err := reg.ForModel(req.Model)
		if err != nil {
			audit.SetModel(c, req.Model)
			abortUpstream(c, err)
			return
		}
		audit.SetProvider(c, binding.Name())
		audit.SetModel(c, req.Model)

		ctx, cancel := context.WithTimeout(c.Request.Context(), ChatTimeout)
		defer cancel()

		if req.Stream {
			streamChat(c, ctx, binding, req, metrics)
			return
		}

		resp, err := binding.Chat(ctx, req)
		if err != nil {
			if metrics != nil {
				metrics.RecordProviderRequest(binding.Name(), false)
			}
			abortUpstream(c, err)
			return
		}
		if metrics != nil {
			metrics.RecordProviderRequest(binding.Name(), true)
			metrics.RecordProviderTokens(binding.Name(), resp.PromptEvalCount, resp.EvalCount)
		}

		c.JSON(http.StatusOK, resp)
	}
}

// streamChat forwards upstream deltas as SSE frames.
//
// Headers are committed lazily at the first delta, so a failure before
// any output still produces a clean JSON error with the right status.
// After the first frame the status line is gone; late failures become a
// terminal error frame instead, and the [DONE] terminator is withheld so
// clients can tell a truncated stream from a finished one.
func streamChat(c *gin.Context, ctx context.Context, binding *providers.Binding,
	req datatypes.ChatRequest, metrics *observability.Metrics) {

	audit.SetStreamed(c)

	writer, err := NewSSEWriter(c.Writer)
	if err != nil {
		audit.SetErrorTag(c, datatypes.ErrKindInternal)
		c.AbortWithStatusJSON(http.StatusInternalServerError,
			datatypes.NewError(datatypes.ErrKindInternal, "streaming unsupported by connection"))
		return
	}

	if metrics != nil {
		metrics.StreamStarted("sse")
		defer metrics.StreamEnded("sse")
	}

	started := false
	streamErr := binding.ChatStream(ctx, req, func(event providers.StreamEvent) error {
		switch event.Type {
		case providers.StreamEventToken:
			if !started {
				SetSSEHeaders(c.Writer)
				started = true
			}
			return writer.WriteDelta(event.Content)
		case providers.StreamEventDone:
			if metrics != nil {
				metrics.RecordProviderTokens(binding.Name(), event.PromptEvalCount, event.EvalCount)
			}
		}
		return nil
	})

	if streamErr != nil {
		if metrics != nil {
			metrics.RecordProviderRequest(binding.Name(), false)
		}
		if !started {
			abortUpstream(c, streamErr)
			return
		}
		slog.Warn("Stream failed mid-flight",
			"provider", binding.Name(), "model", req.Model, "error", streamErr)
		audit.SetErrorTag(c, datatypes.ErrKindProviderError)
		_ = writer.WriteError(datatypes.ErrKindProviderError)
		return
	}

	if !started {
		// Upstream produced no tokens at all; the contract still
		// promises a well-formed stream.
		SetSSEHeaders(c.Writer)
	}
	if metrics != nil {
		metrics.RecordProviderRequest(binding.Name(), true)
	}
	_ = writer.WriteDone()
}
