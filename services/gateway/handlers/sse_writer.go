// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers contains the gateway's HTTP, SSE, and WebSocket
// handlers. Handlers are constructed as closures over their injected
// collaborators; nothing in this package reaches for process-wide state.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/AleutianAI/AleutianGate/services/gateway/datatypes"
)

// doneFrame is the terminal SSE frame. Literal, not JSON.
const doneFrame = "data: [DONE]\n\n"

// SetSSEHeaders prepares the response for server-sent-event streaming.
//
// X-Accel-Buffering disables proxy buffering (nginx and friends) so
// deltas reach the client as they are produced, not in batches.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// SSEWriter frames JSON payloads as SSE data events on an HTTP response.
//
// Every write flushes, so the frame sequence on the wire matches the
// call sequence exactly: deltas are forwarded in upstream order, never
// reordered or coalesced. Safe for concurrent use; a mutex serializes
// frame writes so interleaved producers cannot tear a frame.
type SSEWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	closed  bool
}

// NewSSEWriter wraps w for SSE output. Fails when the ResponseWriter
// cannot flush, which would buffer the whole stream until the handler
// returns and defeat streaming entirely.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}
	return &SSEWriter{w: w, flusher: flusher}, nil
}

// WriteJSON writes one `data: <json>` frame and flushes it.
func (s *SSEWriter) WriteJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal SSE frame: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("write on finished SSE stream")
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("write SSE frame: %w", err)
	}
	s.flusher.Flush()
	return nil
}

// WriteDelta writes one content fragment in the normalized delta shape.
func (s *SSEWriter) WriteDelta(content string) error {
	return s.WriteJSON(datatypes.StreamDelta{
		Message: datatypes.StreamDeltaMessage{Content: content},
	})
}

// WriteError writes a terminal error frame for failures that occur after
// streaming has begun, when the status line is already on the wire.
func (s *SSEWriter) WriteError(kind string) error {
	return s.WriteJSON(datatypes.ErrorResponse{Error: kind})
}

// WriteDone writes the literal terminator frame and seals the writer.
func (s *SSEWriter) WriteDone() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if _, err := fmt.Fprint(s.w, doneFrame); err != nil {
		return fmt.Errorf("write SSE terminator: %w", err)
	}
	s.flusher.Flush()
	return nil
}
