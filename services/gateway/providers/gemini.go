package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianGate/services/gateway/datatypes"
)

const geminiDefaultBaseURL = "https://generativelanguage.googleapis.com"

type geminiRequest struct {
	Contents          []geminiContent  `json:"contents"`
	SystemInstruction *geminiContent   `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
	Error *geminiError `json:"error,omitempty"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// GeminiProvider talks to the Google Generative Language API. The
// credential travels in the x-goog-api-key header, never the URL, so
// transport errors cannot embed it.
type GeminiProvider struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewGeminiProvider creates an adapter with the given credential. An empty
// baseURL selects the public API endpoint.
func NewGeminiProvider(apiKey, baseURL string) *GeminiProvider {
	if baseURL == "" {
		baseURL = geminiDefaultBaseURL
	}
	return &GeminiProvider{
		httpClient: newRetryClient(),
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
	}
}

func (g *GeminiProvider) Name() string { return ProviderGemini }

// buildRequest converts the normalized envelope to Gemini's shape. Roles
// map user->user and assistant->model; system messages become the
// top-level systemInstruction.
func (g *GeminiProvider) buildRequest(req datatypes.ChatRequest) geminiRequest {
	var contents []geminiContent
	var systemText string

	for _, msg := range req.Messages {
		role := strings.ToLower(msg.Role)
		switch role {
		case "system":
			systemText = msg.Content
			continue
		case "assistant":
			role = "model"
		default:
			role = "user"
		}
		contents = append(contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: msg.Content}},
		})
	}

	out := geminiRequest{Contents: contents}
	if systemText != "" {
		out.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: systemText}}}
	}
	if req.Temperature != nil || req.MaxTokens > 0 {
		out.GenerationConfig = &geminiGenConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		}
	}
	return out
}

// Chat implements the Provider interface.
func (g *GeminiProvider) Chat(ctx context.Context, req datatypes.ChatRequest) (*datatypes.ChatResponse, error) {
	ctx, span := tracer.Start(ctx, "GeminiProvider.Chat")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", req.Model))

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", g.baseURL, url.PathEscape(req.Model))
	resp, err := g.send(ctx, endpoint, g.buildRequest(req))
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
		return nil, fmt.Errorf("failed to read gemini response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, g.upstreamError(resp.StatusCode, bodyBytes)
	}

	var apiResp geminiResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to parse gemini response: %w", err)
	}
	if apiResp.Error != nil {
		return nil, &UpstreamError{
			Provider: ProviderGemini,
			Status:   resp.StatusCode,
			Message:  excerpt(apiResp.Error.Message),
		}
	}
	if len(apiResp.Candidates) == 0 {
		return nil, &UpstreamError{Provider: ProviderGemini, Status: resp.StatusCode, Message: "no candidates returned"}
	}

	var content strings.Builder
	for _, part := range apiResp.Candidates[0].Content.Parts {
		content.WriteString(part.Text)
	}
	return &datatypes.ChatResponse{
		Model: req.Model,
		Message: datatypes.ChatMessage{
			Role:    "assistant",
			Content: content.String(),
		},
		PromptEvalCount: apiResp.UsageMetadata.PromptTokenCount,
		EvalCount:       apiResp.UsageMetadata.CandidatesTokenCount,
	}, nil
}

// ChatStream implements the Provider interface. With alt=sse Gemini emits
// SSE data lines, each holding a chunk in the unary response shape.
func (g *GeminiProvider) ChatStream(ctx context.Context, req datatypes.ChatRequest, callback StreamCallback) error {
	ctx, span := tracer.Start(ctx, "GeminiProvider.ChatStream")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", req.Model))

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent?alt=sse", g.baseURL, url.PathEscape(req.Model))
	resp, err := g.send(ctx, endpoint, g.buildRequest(req))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return g.upstreamError(resp.StatusCode, bodyBytes)
	}

	var promptTokens, evalTokens int
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
		var chunk geminiResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if chunk.Error != nil {
			return &UpstreamError{
				Provider: ProviderGemini,
				Status:   resp.StatusCode,
				Message:  excerpt(chunk.Error.Message),
			}
		}
		if chunk.UsageMetadata.PromptTokenCount > 0 {
			promptTokens = chunk.UsageMetadata.PromptTokenCount
		}
		if chunk.UsageMetadata.CandidatesTokenCount > 0 {
			evalTokens = chunk.UsageMetadata.CandidatesTokenCount
		}
		for _, cand := range chunk.Candidates {
			for _, part := range cand.Content.Parts {
				if part.Text == "" {
					continue
				}
				if err := callback(StreamEvent{Type: StreamEventToken, Content: part.Text}); err != nil {
					return err
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("gemini stream read failed: %w", err)
	}
	return callback(StreamEvent{
		Type:            StreamEventDone,
		PromptEvalCount: promptTokens,
		EvalCount:       evalTokens,
	})
}

// Health implements the Provider interface; credential presence only, the
// API has no unauthenticated probe.
func (g *GeminiProvider) Health(ctx context.Context) bool {
	return g.apiKey != ""
}

// Models implements the Provider interface with a static list.
func (g *GeminiProvider) Models(ctx context.Context) []string {
	return []string{
		"gemini-1.5-pro",
		"gemini-1.5-flash",
		"gemini-2.0-flash",
	}
}

func (g *GeminiProvider) send(ctx context.Context, endpoint string, payload geminiRequest) (*http.Response, error) {
	reqBodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal gemini request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(reqBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini request: %w", err)
	}
	req.Header.Set("x-goog-api-key", g.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	return resp, nil
}

func (g *GeminiProvider) upstreamError(status int, body []byte) error {
	var apiResp geminiResponse
	if err := json.Unmarshal(body, &apiResp); err == nil && apiResp.Error != nil {
		return &UpstreamError{Provider: ProviderGemini, Status: status, Message: excerpt(apiResp.Error.Message)}
	}
	return &UpstreamError{Provider: ProviderGemini, Status: status}
}
