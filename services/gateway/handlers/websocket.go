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
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/AleutianGate/services/gateway/audit"
	"github.com/AleutianAI/AleutianGate/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianGate/services/gateway/observability"
	"github.com/AleutianAI/AleutianGate/services/gateway/providers"
)

const wsWriteTimeout = 10 * time.Second

var chatUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The bearer token is the trust boundary, not the Origin header;
	// agents connect from anywhere.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsFrame is one message on the chat socket. Exactly one of the optional
// fields is set per frame: a content delta, done:true after the last
// delta of an exchange, or an error envelope.
type wsFrame struct {
	Content string                   `json:"content,omitempty"`
	Done    bool                     `json:"done,omitempty"`
	Error   *datatypes.ErrorResponse `json:"error,omitempty"`
}

// HandleChatWS serves GET /v1/chat/ws: the streaming chat envelope over a
// WebSocket. Each client text frame is one ChatRequest; the stream flag
// is ignored since the transport is inherently streamed. The connection
// survives per-request failures, so an agent can hold one socket open
// across many exchanges.
func HandleChatWS(reg *providers.Registry, metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := chatUpgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade already wrote the handshake failure.
			audit.SetErrorTag(c, datatypes.ErrKindValidation)
			return
		}
		defer conn.Close()

		audit.SetStreamed(c)
		if metrics != nil {
			metrics.StreamStarted("websocket")
			defer metrics.StreamEnded("websocket")
		}

		for {
			var req datatypes.ChatRequest
			if err := conn.ReadJSON(&req); err != nil {
				if websocket.IsUnexpectedCloseError(err,
					websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					slog.Debug("Chat socket closed", "error", err)
				}
				return
			}
			if !serveSocketExchange(c, conn, reg, metrics, req) {
				return
			}
		}
	}
}

// serveSocketExchange runs one request/stream cycle on the socket.
// Returns false when the connection is no longer writable.
func serveSocketExchange(c *gin.Context, conn *websocket.Conn, reg *providers.Registry,
	metrics *observability.Metrics, req datatypes.ChatRequest) bool {

	if err := req.Validate(); err != nil {
		return writeSocketError(conn,
			datatypes.NewValidationError(datatypes.ValidationMessages(err)))
	}

	binding, err := reg.ForModel(req.Model)
	if err != nil {
		return writeSocketError(conn,
			datatypes.NewError(datatypes.ErrKindProviderUnavailable, err.Error()))
	}
	audit.SetProvider(c, binding.Name())
	audit.SetModel(c, req.Model)

	ctx, cancel := context.WithTimeout(c.Request.Context(), ChatTimeout)
	defer cancel()

	streamErr := binding.ChatStream(ctx, req, func(event providers.StreamEvent) error {
		switch event.Type {
		case providers.StreamEventToken:
			return writeSocketFrame(conn, wsFrame{Content: event.Content})
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
		audit.SetErrorTag(c, datatypes.ErrKindProviderError)
		return writeSocketError(conn,
			datatypes.NewError(datatypes.ErrKindProviderError, "upstream stream failed"))
	}

	if metrics != nil {
		metrics.RecordProviderRequest(binding.Name(), true)
	}
	return writeSocketFrame(conn, wsFrame{Done: true}) == nil
}

func writeSocketFrame(conn *websocket.Conn, frame wsFrame) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(frame)
}

// writeSocketError sends an error frame and reports whether the socket
// can keep serving. A failed request does not tear the connection down.
func writeSocketError(conn *websocket.Conn, resp datatypes.ErrorResponse) bool {
	return writeSocketFrame(conn, wsFrame{Error: &resp}) == nil
}
