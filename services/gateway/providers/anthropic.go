package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianGate/services/gateway/datatypes"
)

const (
	anthropicAPIVersion     = "2023-06-01"
	anthropicDefaultBaseURL = "https://api.anthropic.com"
	// Anthropic requires max_tokens on every request.
	anthropicDefaultMaxTokens = 4096
)

type anthropicRequest struct {
	Model     string             `json:"model"`
	Messages  []anthropicMessage `json:"messages"`
	System    []systemBlock      `json:"system,omitempty"` // Top-level system prompt
	MaxTokens int                `json:"max_tokens"`

	Temperature *float64 `json:"temperature,omitempty"`
	Stream      bool     `json:"stream,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type systemBlock struct {
	Type         string        `json:"type"`
	Text         string        `json:"text"`
	CacheControl *cacheControl `json:"cache_control,omitempty"`
}

type cacheControl struct {
	Type string `json:"type"` // Must be "ephemeral"
}

type anthropicResponse struct {
	ID      string             `json:"id"`
	Type    string             `json:"type"`
	Role    string             `json:"role"`
	Model   string             `json:"model"`
	Content []anthropicContent `json:"content"`
	Usage   anthropicUsage     `json:"usage"`
	Error   *anthropicError    `json:"error,omitempty"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// anthropicStreamEvent is the union decoded from each SSE data line. Only
// the fields needed for delta forwarding and usage capture are kept.
type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Usage   anthropicUsage `json:"usage"`
	Message struct {
		Usage anthropicUsage `json:"usage"`
	} `json:"message"`
	Error *anthropicError `json:"error,omitempty"`
}

// AnthropicProvider talks to the Anthropic Messages API. The caller's
// request never carries the credential; it is injected here from
// server-side configuration.
type AnthropicProvider struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewAnthropicProvider creates an adapter with the given credential.
// An empty baseURL selects the public API endpoint.
func NewAnthropicProvider(apiKey, baseURL string) *AnthropicProvider {
	if baseURL == "" {
		baseURL = anthropicDefaultBaseURL
	}
	return &AnthropicProvider{
		httpClient: newRetryClient(),
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
	}
}

func (a *AnthropicProvider) Name() string { return ProviderAnthropic }

// buildRequest converts the normalized envelope to Anthropic's shape.
// Messages with role "system" are extracted into the top-level system
// field; long system prompts opt into ephemeral caching.
func (a *AnthropicProvider) buildRequest(req datatypes.ChatRequest, stream bool) anthropicRequest {
	var apiMessages []anthropicMessage
	var systemPrompt string

	for _, msg := range req.Messages {
		if strings.ToLower(msg.Role) == "system" {
			systemPrompt = msg.Content
			continue
		}
		apiMessages = append(apiMessages, anthropicMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	var systemBlocks []systemBlock
	if systemPrompt != "" {
		block := systemBlock{
			Type: "text",
			Text: systemPrompt,
		}
		if len(systemPrompt) > 1024 {
			block.CacheControl = &cacheControl{Type: "ephemeral"}
		}
		systemBlocks = append(systemBlocks, block)
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	return anthropicRequest{
		Model:       req.Model,
		Messages:    apiMessages,
		System:      systemBlocks,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		Stream:      stream,
	}
}

// Chat implements the Provider interface.
func (a *AnthropicProvider) Chat(ctx context.Context, req datatypes.ChatRequest) (*datatypes.ChatResponse, error) {
	ctx, span := tracer.Start(ctx, "AnthropicProvider.Chat")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", req.Model))

	resp, err := a.send(ctx, a.buildRequest(req, false))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to read anthropic response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, a.upstreamError(resp.StatusCode, bodyBytes)
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to parse anthropic response: %w", err)
	}
	if apiResp.Error != nil {
		return nil, &UpstreamError{
			Provider: ProviderAnthropic,
			Status:   resp.StatusCode,
			Message:  excerpt(apiResp.Error.Message),
		}
	}

	var content strings.Builder
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	model := apiResp.Model
	if model == "" {
		model = req.Model
	}
	return &datatypes.ChatResponse{
		Model: model,
		Message: datatypes.ChatMessage{
			Role:    "assistant",
			Content: content.String(),
		},
		PromptEvalCount: apiResp.Usage.InputTokens,
		EvalCount:       apiResp.Usage.OutputTokens,
	}, nil
}

// ChatStream implements the Provider interface. Anthropic streams SSE;
// only content_block_delta events carry text, everything else is metadata
// that is consumed for usage capture and otherwise dropped.
func (a *AnthropicProvider) ChatStream(ctx context.Context, req datatypes.ChatRequest, callback StreamCallback) error {
	ctx, span := tracer.Start(ctx, "AnthropicProvider.ChatStream")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", req.Model))

	resp, err := a.send(ctx, a.buildRequest(req, true))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return a.upstreamError(resp.StatusCode, bodyBytes)
	}

	var inputTokens, outputTokens int
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		var event anthropicStreamEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			continue
		}
		switch event.Type {
		case "message_start":
			inputTokens = event.Message.Usage.InputTokens
		case "content_block_delta":
			if event.Delta.Text != "" {
				if err := callback(StreamEvent{Type: StreamEventToken, Content: event.Delta.Text}); err != nil {
					return err
				}
			}
		case "message_delta":
			if event.Usage.OutputTokens > 0 {
				outputTokens = event.Usage.OutputTokens
			}
		case "message_stop":
			return callback(StreamEvent{
				Type:            StreamEventDone,
				PromptEvalCount: inputTokens,
				EvalCount:       outputTokens,
			})
		case "error":
			if event.Error != nil {
				return &UpstreamError{
					Provider: ProviderAnthropic,
					Status:   resp.StatusCode,
					Message:  excerpt(event.Error.Message),
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("anthropic stream read failed: %w", err)
	}
	return callback(StreamEvent{
		Type:            StreamEventDone,
		PromptEvalCount: inputTokens,
		EvalCount:       outputTokens,
	})
}

// Health implements the Provider interface. Anthropic has no free probe
// endpoint, so health reflects credential presence only.
func (a *AnthropicProvider) Health(ctx context.Context) bool {
	return a.apiKey != ""
}

// Models implements the Provider interface with a static list; Anthropic
// model enumeration is not exposed to gateway clients.
func (a *AnthropicProvider) Models(ctx context.Context) []string {
	return []string{
		"claude-3-5-sonnet-20240620",
		"claude-3-5-haiku-20241022",
		"claude-3-opus-20240229",
	}
}

func (a *AnthropicProvider) send(ctx context.Context, payload anthropicRequest) (*http.Response, error) {
	reqBodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal anthropic request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/messages", bytes.NewBuffer(reqBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create anthropic request: %w", err)
	}
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)
	req.Header.Set("content-type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("anthropic request failed: %w", err)
	}
	return resp, nil
}

func (a *AnthropicProvider) upstreamError(status int, body []byte) error {
	var apiResp anthropicResponse
	if err := json.Unmarshal(body, &apiResp); err == nil && apiResp.Error != nil {
		return &UpstreamError{Provider: ProviderAnthropic, Status: status, Message: excerpt(apiResp.Error.Message)}
	}
	return &UpstreamError{Provider: ProviderAnthropic, Status: status}
}
