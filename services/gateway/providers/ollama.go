package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianGate/services/gateway/datatypes"
)

// OllamaProvider talks to a local Ollama instance. No credential is
// attached; the base URL is expected to be loopback or an internal network.
type OllamaProvider struct {
	httpClient *http.Client
	baseURL    string
}

// Ollama API request structures
type ollamaChatRequest struct {
	Model    string                 `json:"model"`
	Messages []datatypes.Message    `json:"messages"`
	Stream   bool                   `json:"stream"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Model           string            `json:"model"`
	Message         ollamaChatMessage `json:"message"`
	Done            bool              `json:"done"`
	PromptEvalCount int               `json:"prompt_eval_count"`
	EvalCount       int               `json:"eval_count"`
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaGenerateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

type ollamaErrorResponse struct {
	Error string `json:"error"`
}

// NewOllamaProvider creates an adapter for the Ollama instance at baseURL.
func NewOllamaProvider(baseURL string) *OllamaProvider {
	return &OllamaProvider{
		httpClient: newRetryClient(),
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}
}

func (o *OllamaProvider) Name() string { return ProviderOllama }

// buildOptions maps normalized generation knobs onto Ollama's options map.
func buildOptions(temperature *float64, maxTokens int) map[string]interface{} {
	options := make(map[string]interface{})
	if temperature != nil {
		options["temperature"] = *temperature
	}
	if maxTokens > 0 {
		options["num_predict"] = maxTokens
	}
	if len(options) == 0 {
		return nil
	}
	return options
}

// Chat implements the Provider interface. Ollama's response shape already
// matches the normalized envelope, so no field mapping is needed beyond
// copying it over.
func (o *OllamaProvider) Chat(ctx context.Context, req datatypes.ChatRequest) (*datatypes.ChatResponse, error) {
	ctx, span := tracer.Start(ctx, "OllamaProvider.Chat")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", req.Model))

	payload := ollamaChatRequest{
		Model:    req.Model,
		Messages: req.Messages,
		Stream:   false,
		Options:  buildOptions(req.Temperature, req.MaxTokens),
	}

	respBody, err := o.post(ctx, "/api/chat", payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var ollamaResp ollamaChatResponse
	if err := json.Unmarshal(respBody, &ollamaResp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to parse ollama response: %w", err)
	}

	return &datatypes.ChatResponse{
		Model: ollamaResp.Model,
		Message: datatypes.ChatMessage{
			Role:    ollamaResp.Message.Role,
			Content: ollamaResp.Message.Content,
		},
		PromptEvalCount: ollamaResp.PromptEvalCount,
		EvalCount:       ollamaResp.EvalCount,
	}, nil
}

// ChatStream implements the Provider interface. Ollama streams NDJSON, one
// chunk object per line; chunks are forwarded in order with no coalescing.
func (o *OllamaProvider) ChatStream(ctx context.Context, req datatypes.ChatRequest, callback StreamCallback) error {
	ctx, span := tracer.Start(ctx, "OllamaProvider.ChatStream")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", req.Model))

	payload := ollamaChatRequest{
		Model:    req.Model,
		Messages: req.Messages,
		Stream:   true,
		Options:  buildOptions(req.Temperature, req.MaxTokens),
	}

	resp, err := o.startStream(ctx, "/api/chat", payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk ollamaChatResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			slog.Warn("Skipping malformed ollama stream chunk", "error", err)
			continue
		}
		if chunk.Message.Content != "" {
			if err := callback(StreamEvent{Type: StreamEventToken, Content: chunk.Message.Content}); err != nil {
				return err
			}
		}
		if chunk.Done {
			return callback(StreamEvent{
				Type:            StreamEventDone,
				PromptEvalCount: chunk.PromptEvalCount,
				EvalCount:       chunk.EvalCount,
			})
		}
	}
	if err := scanner.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("ollama stream read failed: %w", err)
	}
	// Upstream closed without a done chunk. Terminate the stream anyway.
	return callback(StreamEvent{Type: StreamEventDone})
}

// Generate implements the Generator interface via the legacy /api/generate
// endpoint.
func (o *OllamaProvider) Generate(ctx context.Context, req datatypes.GenerateRequest) (*datatypes.GenerateResponse, error) {
	ctx, span := tracer.Start(ctx, "OllamaProvider.Generate")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", req.Model))

	payload := ollamaGenerateRequest{
		Model:   req.Model,
		Prompt:  req.Prompt,
		Stream:  false,
		Options: buildOptions(req.Temperature, req.MaxTokens),
	}

	respBody, err := o.post(ctx, "/api/generate", payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var ollamaResp ollamaGenerateResponse
	if err := json.Unmarshal(respBody, &ollamaResp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to parse ollama response: %w", err)
	}

	return &datatypes.GenerateResponse{
		Model:           ollamaResp.Model,
		Response:        ollamaResp.Response,
		Done:            ollamaResp.Done,
		PromptEvalCount: ollamaResp.PromptEvalCount,
		EvalCount:       ollamaResp.EvalCount,
	}, nil
}

// GenerateStream implements the Generator interface.
func (o *OllamaProvider) GenerateStream(ctx context.Context, req datatypes.GenerateRequest, callback StreamCallback) error {
	ctx, span := tracer.Start(ctx, "OllamaProvider.GenerateStream")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", req.Model))

	payload := ollamaGenerateRequest{
		Model:   req.Model,
		Prompt:  req.Prompt,
		Stream:  true,
		Options: buildOptions(req.Temperature, req.MaxTokens),
	}

	resp, err := o.startStream(ctx, "/api/generate", payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk ollamaGenerateResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			slog.Warn("Skipping malformed ollama stream chunk", "error", err)
			continue
		}
		if chunk.Response != "" {
			if err := callback(StreamEvent{Type: StreamEventToken, Content: chunk.Response}); err != nil {
				return err
			}
		}
		if chunk.Done {
			return callback(StreamEvent{
				Type:            StreamEventDone,
				PromptEvalCount: chunk.PromptEvalCount,
				EvalCount:       chunk.EvalCount,
			})
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("ollama stream read failed: %w", err)
	}
	return callback(StreamEvent{Type: StreamEventDone})
}

// Health implements the Provider interface by probing /api/tags.
func (o *OllamaProvider) Health(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// Models implements the Provider interface by listing locally pulled models.
func (o *OllamaProvider) Models(ctx context.Context) []string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return nil
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names
}

// post issues a JSON POST and returns the response body on 2xx. Non-2xx
// responses become an *UpstreamError carrying only the structured error
// field, never the raw body.
func (o *OllamaProvider) post(ctx context.Context, path string, payload any) ([]byte, error) {
	reqBodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request to ollama: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+path, bytes.NewBuffer(reqBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request to ollama: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read ollama response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, o.upstreamError(resp.StatusCode, respBody)
	}
	return respBody, nil
}

// startStream issues a streaming JSON POST and hands back the open response.
// The caller owns resp.Body.
func (o *OllamaProvider) startStream(ctx context.Context, path string, payload any) (*http.Response, error) {
	reqBodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request to ollama: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+path, bytes.NewBuffer(reqBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request to ollama: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/x-ndjson")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, o.upstreamError(resp.StatusCode, respBody)
	}
	return resp, nil
}

func (o *OllamaProvider) upstreamError(status int, body []byte) error {
	var errResp ollamaErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return &UpstreamError{Provider: ProviderOllama, Status: status, Message: excerpt(errResp.Error)}
	}
	return &UpstreamError{Provider: ProviderOllama, Status: status}
}
