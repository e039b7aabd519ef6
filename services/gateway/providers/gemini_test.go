// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/AleutianAI/AleutianGate/services/gateway/datatypes"
)

func TestGeminiChat_ShapingAndNormalization(t *testing.T) {
	t.Parallel()

	var captured geminiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta/models/gemini-1.5-pro:generateContent" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "goog-test" {
			t.Errorf("Expected x-goog-api-key header, got %q", r.Header.Get("x-goog-api-key"))
		}
		if r.URL.RawQuery != "" {
			t.Errorf("Credential or params leaked into query: %q", r.URL.RawQuery)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		fmt.Fprintln(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"Bonjour"}]},"finishReason":"STOP"}],
			"usageMetadata":{"promptTokenCount":8,"candidatesTokenCount":2}}`)
	}))
	defer server.Close()

	p := NewGeminiProvider("goog-test", server.URL)
	resp, err := p.Chat(context.Background(), datatypes.ChatRequest{
		Model: "gemini-1.5-pro",
		Messages: []datatypes.Message{
			{Role: "system", Content: "Answer in French."},
			{Role: "user", Content: "Hello"},
			{Role: "assistant", Content: "Salut"},
			{Role: "user", Content: "Again"},
		},
	})
	if err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}

	if captured.SystemInstruction == nil || captured.SystemInstruction.Parts[0].Text != "Answer in French." {
		t.Errorf("Expected systemInstruction, got %+v", captured.SystemInstruction)
	}
	if len(captured.Contents) != 3 {
		t.Fatalf("Expected 3 contents after system extraction, got %d", len(captured.Contents))
	}
	if captured.Contents[1].Role != "model" {
		t.Errorf("Expected assistant mapped to model role, got %q", captured.Contents[1].Role)
	}

	if resp.Message.Content != "Bonjour" {
		t.Errorf("Expected 'Bonjour', got %q", resp.Message.Content)
	}
	if resp.PromptEvalCount != 8 || resp.EvalCount != 2 {
		t.Errorf("Expected usage 8/2, got %d/%d", resp.PromptEvalCount, resp.EvalCount)
	}
}

func TestGeminiChatStream_SSE(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, ":streamGenerateContent") {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("alt") != "sse" {
			t.Errorf("Expected alt=sse, got %q", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"candidates":[{"content":{"parts":[{"text":"One "}]}}]}`+"\n\n")
		fmt.Fprint(w, `data: {"candidates":[{"content":{"parts":[{"text":"two"}]}}],"usageMetadata":{"promptTokenCount":4,"candidatesTokenCount":2}}`+"\n\n")
	}))
	defer server.Close()

	p := NewGeminiProvider("goog-test", server.URL)
	var content strings.Builder
	var doneEvent *StreamEvent
	err := p.ChatStream(context.Background(), datatypes.ChatRequest{
		Model:    "gemini-1.5-flash",
		Messages: []datatypes.Message{{Role: "user", Content: "count"}},
	}, func(event StreamEvent) error {
		switch event.Type {
		case StreamEventToken:
			content.WriteString(event.Content)
		case StreamEventDone:
			e := event
			doneEvent = &e
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ChatStream returned error: %v", err)
	}
	if content.String() != "One two" {
		t.Errorf("Expected 'One two', got %q", content.String())
	}
	if doneEvent == nil {
		t.Fatal("Expected a done event")
	}
	if doneEvent.PromptEvalCount != 4 || doneEvent.EvalCount != 2 {
		t.Errorf("Expected usage 4/2 on done, got %d/%d", doneEvent.PromptEvalCount, doneEvent.EvalCount)
	}
}

func TestGeminiChat_UpstreamError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintln(w, `{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`)
	}))
	defer server.Close()

	const secret = "goog-very-secret"
	p := NewGeminiProvider(secret, server.URL)
	_, err := p.Chat(context.Background(), datatypes.ChatRequest{
		Model:    "gemini-1.5-pro",
		Messages: []datatypes.Message{{Role: "user", Content: "Hi"}},
	})

	var upErr *UpstreamError
	if !errors.As(err, &upErr) {
		t.Fatalf("Expected *UpstreamError, got %T: %v", err, err)
	}
	if upErr.Status != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", upErr.Status)
	}
	if strings.Contains(err.Error(), secret) {
		t.Fatalf("Credential leaked into error: %v", err)
	}
}

func TestGeminiModelEscapedInPath(t *testing.T) {
	t.Parallel()

	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		fmt.Fprintln(w, `{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`)
	}))
	defer server.Close()

	p := NewGeminiProvider("k", server.URL)
	_, err := p.Chat(context.Background(), datatypes.ChatRequest{
		Model:    "gemini-1.5-pro../..",
		Messages: []datatypes.Message{{Role: "user", Content: "Hi"}},
	})
	if err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}
	if !strings.Contains(gotPath, "gemini-1.5-pro..%2F..") {
		t.Errorf("Expected escaped model in path, got %q", gotPath)
	}
}
