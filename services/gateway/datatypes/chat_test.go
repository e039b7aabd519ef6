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
	"strings"
	"testing"
)

// =============================================================================
// ChatRequest Validation Tests
// =============================================================================

func TestChatRequest_Validate_Success(t *testing.T) {
	req := &ChatRequest{
		Model: "gpt-4o",
		Messages: []Message{
			{Role: "user", Content: "Hello"},
		},
	}

	if err := req.Validate(); err != nil {
		t.Errorf("expected valid request, got error: %v", err)
	}
}

func TestChatRequest_Validate_MissingModel(t *testing.T) {
	req := &ChatRequest{
		Messages: []Message{
			{Role: "user", Content: "Hello"},
		},
	}

	if err := req.Validate(); err == nil {
		t.Error("expected error for missing model, got nil")
	}
}

func TestChatRequest_Validate_EmptyMessages(t *testing.T) {
	req := &ChatRequest{
		Model:    "gpt-4o",
		Messages: []Message{},
	}

	if err := req.Validate(); err == nil {
		t.Error("expected error for empty messages, got nil")
	}
}

func TestChatRequest_Validate_TooManyMessages(t *testing.T) {
	messages := make([]Message, MaxMessagesPerRequest+1)
	for i := range messages {
		messages[i] = Message{Role: "user", Content: "Message"}
	}

	req := &ChatRequest{
		Model:    "gpt-4o",
		Messages: messages,
	}

	if err := req.Validate(); err == nil {
		t.Error("expected error for too many messages, got nil")
	}
}

func TestChatRequest_Validate_OversizedContent(t *testing.T) {
	req := &ChatRequest{
		Model: "gpt-4o",
		Messages: []Message{
			{Role: "user", Content: strings.Repeat("x", MaxMessageContentBytes+1)},
		},
	}

	if err := req.Validate(); err == nil {
		t.Error("expected error for oversized message content, got nil")
	}
}

func TestChatRequest_Validate_TemperatureRange(t *testing.T) {
	tests := []struct {
		name    string
		temp    float64
		wantErr bool
	}{
		{"zero", 0, false},
		{"mid", 0.7, false},
		{"max", 2.0, false},
		{"negative", -0.1, true},
		{"above max", 2.1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			temp := tt.temp
			req := &ChatRequest{
				Model:       "gpt-4o",
				Messages:    []Message{{Role: "user", Content: "hi"}},
				Temperature: &temp,
			}

			err := req.Validate()
			if tt.wantErr && err == nil {
				t.Errorf("expected error for temperature %v, got nil", tt.temp)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("expected temperature %v to be valid, got %v", tt.temp, err)
			}
		})
	}
}

func TestChatRequest_Validate_NilTemperatureAllowed(t *testing.T) {
	req := &ChatRequest{
		Model:    "gpt-4o",
		Messages: []Message{{Role: "user", Content: "hi"}},
	}

	if err := req.Validate(); err != nil {
		t.Errorf("expected nil temperature to be valid, got %v", err)
	}
}

func TestChatRequest_Validate_NegativeMaxTokens(t *testing.T) {
	req := &ChatRequest{
		Model:     "gpt-4o",
		Messages:  []Message{{Role: "user", Content: "hi"}},
		MaxTokens: -5,
	}

	if err := req.Validate(); err == nil {
		t.Error("expected error for negative max_tokens, got nil")
	}
}

// =============================================================================
// ValidationMessages Tests
// =============================================================================

func TestValidationMessages_UsesJSONFieldNames(t *testing.T) {
	req := &ChatRequest{MaxTokens: -1}

	err := req.Validate()
	if err == nil {
		t.Fatal("expected validation failure")
	}

	msgs := ValidationMessages(err)
	if len(msgs) == 0 {
		t.Fatal("expected at least one message")
	}

	joined := strings.Join(msgs, "; ")
	if !strings.Contains(joined, "model is required") {
		t.Errorf("expected model message, got %q", joined)
	}
	if !strings.Contains(joined, "max_tokens") {
		t.Errorf("expected max_tokens in messages, got %q", joined)
	}
	if strings.Contains(joined, "MaxTokens") {
		t.Errorf("Go field names must not leak to clients, got %q", joined)
	}
}

func TestValidationMessages_NonValidatorError(t *testing.T) {
	msgs := ValidationMessages(errFake{})

	if len(msgs) != 1 || msgs[0] != "request validation failed" {
		t.Errorf("expected generic fallback message, got %v", msgs)
	}
}

type errFake struct{}

func (errFake) Error() string { return "boom" }

// =============================================================================
// GenerateRequest Validation Tests
// =============================================================================

func TestGenerateRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     GenerateRequest
		wantErr bool
	}{
		{"valid", GenerateRequest{Model: "qwen2.5:3b", Prompt: "hello"}, false},
		{"missing model", GenerateRequest{Prompt: "hello"}, true},
		{"missing prompt", GenerateRequest{Model: "qwen2.5:3b"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("expected valid request, got %v", err)
			}
		})
	}
}
