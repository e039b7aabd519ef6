// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides request and response types for the gateway
// service.
//
// This file contains the unified chat envelope shared by every provider
// adapter. Provider-specific wire shapes live in the providers package;
// nothing here depends on any particular upstream.
package datatypes

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Constants for Security Compliance
// =============================================================================

const (
	// MaxMessageContentBytes is the maximum size of a single message content.
	// Checked in bytes, not runes, to bound memory regardless of encoding.
	MaxMessageContentBytes = 32 * 1024 // 32KB

	// MaxMessagesPerRequest is the maximum number of messages in a request.
	MaxMessagesPerRequest = 100

	// MaxTemperature is the upper bound for the sampling temperature.
	MaxTemperature = 2.0
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// chatValidate is the validator instance for chat datatypes.
// Initialized in init() with custom validators.
var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()

	_ = chatValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes enforces the per-message content byte cap. Checks byte
// length (not rune count) to prevent memory exhaustion with large payloads.
func validateMaxBytes(fl validator.FieldLevel) bool {
	content := fl.Field().String()
	return len(content) <= MaxMessageContentBytes
}

// =============================================================================
// Chat Request Types
// =============================================================================

// Message is a single turn in a conversation.
//
// Role is one of "system", "user", or "assistant". The gateway forwards
// roles to the selected provider; adapters that need special treatment
// (anthropic extracts system turns into a top-level field) handle that
// during request shaping.
type Message struct {
	Role    string `json:"role" validate:"required"`
	Content string `json:"content" validate:"maxbytes"`
}

// ChatRequest is the unified chat envelope accepted by POST /v1/chat.
//
// # Description
//
// ChatRequest carries the model identifier, the conversation history, and
// optional sampling parameters. The model string alone determines which
// upstream provider handles the request; clients never name providers
// directly and never supply provider credentials.
//
// # Fields
//
//   - Model: Required. Provider selection key (e.g. "gpt-4o",
//     "claude-3-5-sonnet", "qwen2.5:3b").
//   - Messages: Required. Conversation history with 1-100 messages.
//     Each message content is limited to 32KB.
//   - Stream: Optional. When true the response is a server-sent-event
//     stream of deltas instead of a single JSON body.
//   - Temperature: Optional. Sampling temperature in [0, 2].
//   - MaxTokens: Optional. Upper bound on generated tokens.
//
// # Validation
//
// Uses go-playground/validator:
//   - Model: required, non-empty
//   - Messages: required, 1-100 elements, each element validated
//   - Messages[].Content: max 32768 bytes per message
//   - Temperature: when present, 0 <= t <= 2
//   - MaxTokens: when present, >= 0
//
// Violations surface as 400 {"error":"validation_error","errors":[...]}.
//
// # Examples
//
//	req := ChatRequest{
//	    Model: "claude-3-5-sonnet",
//	    Messages: []Message{
//	        {Role: "user", Content: "Hello"},
//	    },
//	}
type ChatRequest struct {
	Model       string    `json:"model" validate:"required"`
	Messages    []Message `json:"messages" validate:"required,min=1,max=100,dive"`
	Stream      bool      `json:"stream,omitempty"`
	Temperature *float64  `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	MaxTokens   int       `json:"max_tokens,omitempty" validate:"gte=0"`
}

// Validate validates the ChatRequest fields.
//
// Returns nil when the request is well formed. On failure the error is a
// validator.ValidationErrors; use ValidationMessages to convert it into
// the wire-level errors array.
func (r *ChatRequest) Validate() error {
	return chatValidate.Struct(r)
}

// ValidationMessages flattens a validation error into human-readable
// strings for the errors array of a validation_error response.
//
// Unknown error shapes collapse into a single generic entry so the
// handler never leaks validator internals to clients.
func ValidationMessages(err error) []string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{"request validation failed"}
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return msgs
}

// fieldMessage renders one field error in the wire vocabulary.
func fieldMessage(fe validator.FieldError) string {
	field := jsonFieldName(fe)
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must have at least %s elements", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must have at most %s elements", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "maxbytes":
		return fmt.Sprintf("%s exceeds %d bytes", field, MaxMessageContentBytes)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// jsonFieldName maps the validator's Go field path to the JSON name
// clients actually sent (e.g. "ChatRequest.MaxTokens" -> "max_tokens").
func jsonFieldName(fe validator.FieldError) string {
	switch fe.Field() {
	case "Model":
		return "model"
	case "Messages":
		return "messages"
	case "Temperature":
		return "temperature"
	case "MaxTokens":
		return "max_tokens"
	case "Role":
		return "role"
	case "Content":
		return "content"
	case "Prompt":
		return "prompt"
	default:
		return fe.Field()
	}
}

// =============================================================================
// Chat Response Types
// =============================================================================

// ChatMessage is the assistant turn inside a normalized response.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse is the normalized unary chat response.
//
// Every adapter maps its upstream's shape onto this one: openai from
// choices[0].message + usage, anthropic from content[type=text] + usage,
// ollama responses already conform and pass through unchanged. The token
// counter names follow the local-provider convention so non-streaming
// clients see one stable shape regardless of upstream.
type ChatResponse struct {
	Model           string      `json:"model"`
	Message         ChatMessage `json:"message"`
	PromptEvalCount int         `json:"prompt_eval_count,omitempty"`
	EvalCount       int         `json:"eval_count,omitempty"`
}

// StreamDelta is one streaming content fragment.
//
// The dispatcher frames each delta as `data: <json>\n\n` on the client
// connection; the terminal frame is the literal `data: [DONE]\n\n`.
type StreamDelta struct {
	Message StreamDeltaMessage `json:"message"`
}

// StreamDeltaMessage carries the content fragment of a delta.
type StreamDeltaMessage struct {
	Content string `json:"content"`
}

// =============================================================================
// Legacy Generate Types
// =============================================================================

// GenerateRequest is the legacy prompt-completion body for POST /v1/generate.
//
// Kept for agents written against the local-provider generate API. The
// prompt is wrapped into a single user message and dispatched through the
// same provider pipeline as /v1/chat.
type GenerateRequest struct {
	Model       string   `json:"model" validate:"required"`
	Prompt      string   `json:"prompt" validate:"required,maxbytes"`
	Stream      bool     `json:"stream,omitempty"`
	Temperature *float64 `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	MaxTokens   int      `json:"max_tokens,omitempty" validate:"gte=0"`
}

// Validate validates the GenerateRequest fields.
func (r *GenerateRequest) Validate() error {
	return chatValidate.Struct(r)
}

// GenerateResponse is the legacy prompt-completion response.
type GenerateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count,omitempty"`
	EvalCount       int    `json:"eval_count,omitempty"`
}

// =============================================================================
// Model Listing Types
// =============================================================================

// ModelInfo describes one model offered by a configured provider.
type ModelInfo struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
}

// ModelsResponse is the body of GET /v1/models.
type ModelsResponse struct {
	Models []ModelInfo `json:"models"`
	Total  int         `json:"total"`
}
