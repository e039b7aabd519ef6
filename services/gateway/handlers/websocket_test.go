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
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianGate/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianGate/services/gateway/providers"
)

// =============================================================================
// Test Setup
// =============================================================================

func dialChatSocket(t *testing.T, p providers.Provider) *websocket.Conn {
	t.Helper()

	router := gin.New()
	router.GET("/v1/chat/ws", HandleChatWS(newStubRegistry(p), nil))

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/chat/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) wsFrame {
	t.Helper()
	var frame wsFrame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

// =============================================================================
// WebSocket Chat Tests
// =============================================================================

func TestHandleChatWS_FrameSequence(t *testing.T) {
	conn := dialChatSocket(t, &stubProvider{tokens: []string{"Hel", "lo"}})

	require.NoError(t, conn.WriteJSON(validChatBody("qwen2.5:3b")))

	assert.Equal(t, wsFrame{Content: "Hel"}, readFrame(t, conn))
	assert.Equal(t, wsFrame{Content: "lo"}, readFrame(t, conn))
	assert.Equal(t, wsFrame{Done: true}, readFrame(t, conn))
}

func TestHandleChatWS_MultipleExchangesOnOneSocket(t *testing.T) {
	conn := dialChatSocket(t, &stubProvider{tokens: []string{"x"}})

	for i := 0; i < 3; i++ {
		require.NoError(t, conn.WriteJSON(validChatBody("qwen2.5:3b")))
		assert.Equal(t, wsFrame{Content: "x"}, readFrame(t, conn))
		assert.Equal(t, wsFrame{Done: true}, readFrame(t, conn))
	}
}

func TestHandleChatWS_ValidationErrorKeepsConnection(t *testing.T) {
	conn := dialChatSocket(t, &stubProvider{tokens: []string{"ok"}})

	// Missing model: an error frame, not a close.
	require.NoError(t, conn.WriteJSON(datatypes.ChatRequest{
		Messages: []datatypes.Message{{Role: "user", Content: "hi"}},
	}))
	frame := readFrame(t, conn)
	require.NotNil(t, frame.Error)
	assert.Equal(t, datatypes.ErrKindValidation, frame.Error.Error)
	assert.Contains(t, frame.Error.Errors, "model is required")

	// The same socket still serves a valid request.
	require.NoError(t, conn.WriteJSON(validChatBody("qwen2.5:3b")))
	assert.Equal(t, wsFrame{Content: "ok"}, readFrame(t, conn))
	assert.Equal(t, wsFrame{Done: true}, readFrame(t, conn))
}

func TestHandleChatWS_StreamFailureFrame(t *testing.T) {
	conn := dialChatSocket(t, &stubProvider{
		tokens:    []string{"partial"},
		streamErr: &providers.UpstreamError{Provider: "ollama", Status: 500},
	})

	require.NoError(t, conn.WriteJSON(validChatBody("qwen2.5:3b")))

	assert.Equal(t, wsFrame{Content: "partial"}, readFrame(t, conn))

	frame := readFrame(t, conn)
	require.NotNil(t, frame.Error)
	assert.Equal(t, datatypes.ErrKindProviderError, frame.Error.Error)
	assert.False(t, frame.Done)
}

func TestHandleChatWS_NoProviderBound(t *testing.T) {
	router := gin.New()
	reg := providers.NewRegistry(discardSlog())
	router.GET("/v1/chat/ws", HandleChatWS(reg, nil))

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/chat/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(validChatBody("qwen2.5:3b")))

	frame := readFrame(t, conn)
	require.NotNil(t, frame.Error)
	assert.Equal(t, datatypes.ErrKindProviderUnavailable, frame.Error.Error)
}
