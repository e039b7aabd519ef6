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
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianGate/services/gateway/audit"
	"github.com/AleutianAI/AleutianGate/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianGate/services/gateway/observability"
	"github.com/AleutianAI/AleutianGate/services/gateway/providers"
)

// generateStreamFrame is one SSE frame of a legacy generate stream,
// mirroring the local provider's chunk shape.
type generateStreamFrame struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// HandleGenerate serves POST /v1/generate, the legacy single-prompt
// surface kept for agents written against the local provider's API.
//
// Only providers implementing the Generator contract can serve it;
// routing a hosted-provider model here yields provider_unavailable
// rather than silently rewrapping the prompt.
func HandleGenerate(reg *providers.Registry, metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.GenerateRequest
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
			streamGenerate(c, ctx, binding, req, metrics)
			return
		}

		resp, err := binding.Generate(ctx, req)
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

// streamGenerate forwards legacy generate chunks as SSE frames, with the
// same lazy header commit and truncation semantics as streamChat.
func streamGenerate(c *gin.Context, ctx context.Context, binding *providers.Binding,
	req datatypes.GenerateRequest, metrics *observability.Metrics) {

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
	streamErr := binding.GenerateStream(ctx, req, func(event providers.StreamEvent) error {
		switch event.Type {
		case providers.StreamEventToken:
			if !started {
				SetSSEHeaders(c.Writer)
				started = true
			}
			return writer.WriteJSON(generateStreamFrame{Response: event.Content})
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
		audit.SetErrorTag(c, datatypes.ErrKindProviderError)
		_ = writer.WriteError(datatypes.ErrKindProviderError)
		return
	}

	if !started {
		SetSSEHeaders(c.Writer)
	}
	if metrics != nil {
		metrics.RecordProviderRequest(binding.Name(), true)
	}
	_ = writer.WriteDone()
}
