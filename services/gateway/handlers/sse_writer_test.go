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
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noFlushWriter narrows a ResponseWriter to hide the Flusher it may
// otherwise implement.
type noFlushWriter struct {
	http.ResponseWriter
}

// =============================================================================
// SSE Writer Tests
// =============================================================================

func TestNewSSEWriter_RequiresFlusher(t *testing.T) {
	_, err := NewSSEWriter(noFlushWriter{httptest.NewRecorder()})
	assert.Error(t, err)
}

func TestSSEWriter_FrameFormat(t *testing.T) {
	rec := httptest.NewRecorder()
	writer, err := NewSSEWriter(rec)
	require.NoError(t, err)

	require.NoError(t, writer.WriteDelta("hello"))
	require.NoError(t, writer.WriteDone())

	assert.Equal(t,
		"data: {\"message\":{\"content\":\"hello\"}}\n\n"+
			"data: [DONE]\n\n",
		rec.Body.String())
}

func TestSSEWriter_ErrorFrame(t *testing.T) {
	rec := httptest.NewRecorder()
	writer, err := NewSSEWriter(rec)
	require.NoError(t, err)

	require.NoError(t, writer.WriteError("provider_error"))

	assert.Equal(t, "data: {\"error\":\"provider_error\"}\n\n", rec.Body.String())
}

func TestSSEWriter_SealedAfterDone(t *testing.T) {
	rec := httptest.NewRecorder()
	writer, err := NewSSEWriter(rec)
	require.NoError(t, err)

	require.NoError(t, writer.WriteDone())

	// A second terminator is a no-op; a late delta is an error.
	assert.NoError(t, writer.WriteDone())
	assert.Error(t, writer.WriteDelta("too late"))
	assert.Equal(t, "data: [DONE]\n\n", rec.Body.String())
}

func TestSetSSEHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SetSSEHeaders(rec)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))
}
