package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianGate/services/gateway/datatypes"
)

// togetherBaseURL is the OpenAI-compatible endpoint of Together AI.
const togetherBaseURL = "https://api.together.xyz/v1"

// OpenAIProvider serves both the openai and together identities through
// the go-openai client; Together exposes an OpenAI-compatible API and
// differs only in base URL and its use of the legacy max_tokens field.
type OpenAIProvider struct {
	client *openai.Client
	name   string
	// Together rejects max_completion_tokens, OpenAI's o-series rejects
	// max_tokens.
	legacyMaxTokens bool
}

// NewOpenAIProvider creates an adapter for the OpenAI API.
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	config := openai.DefaultConfig(apiKey)
	config.HTTPClient = newRetryClient()
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(config),
		name:   ProviderOpenAI,
	}
}

// NewTogetherProvider creates an adapter for Together AI.
func NewTogetherProvider(apiKey string) *OpenAIProvider {
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = togetherBaseURL
	config.HTTPClient = newRetryClient()
	return &OpenAIProvider{
		client:          openai.NewClientWithConfig(config),
		name:            ProviderTogether,
		legacyMaxTokens: true,
	}
}

func (o *OpenAIProvider) Name() string { return o.name }

func (o *OpenAIProvider) buildRequest(req datatypes.ChatRequest, stream bool) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}
	ocReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   stream,
	}
	if req.Temperature != nil {
		ocReq.Temperature = float32(*req.Temperature)
	}
	if req.MaxTokens > 0 {
		if o.legacyMaxTokens {
			ocReq.MaxTokens = req.MaxTokens
		} else {
			ocReq.MaxCompletionTokens = req.MaxTokens
		}
	}
	if stream {
		ocReq.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}
	return ocReq
}

// Chat implements the Provider interface.
func (o *OpenAIProvider) Chat(ctx context.Context, req datatypes.ChatRequest) (*datatypes.ChatResponse, error) {
	ctx, span := tracer.Start(ctx, "OpenAIProvider.Chat")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", req.Model),
		attribute.String("llm.provider", o.name),
	)

	resp, err := o.client.CreateChatCompletion(ctx, o.buildRequest(req, false))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, o.upstreamError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &UpstreamError{Provider: o.name, Status: http.StatusOK, Message: "no choices returned"}
	}

	model := resp.Model
	if model == "" {
		model = req.Model
	}
	return &datatypes.ChatResponse{
		Model: model,
		Message: datatypes.ChatMessage{
			Role:    resp.Choices[0].Message.Role,
			Content: resp.Choices[0].Message.Content,
		},
		PromptEvalCount: resp.Usage.PromptTokens,
		EvalCount:       resp.Usage.CompletionTokens,
	}, nil
}

// ChatStream implements the Provider interface. The final usage-bearing
// chunk arrives with an empty choice list, so indexing is guarded.
func (o *OpenAIProvider) ChatStream(ctx context.Context, req datatypes.ChatRequest, callback StreamCallback) error {
	ctx, span := tracer.Start(ctx, "OpenAIProvider.ChatStream")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", req.Model),
		attribute.String("llm.provider", o.name),
	)

	stream, err := o.client.CreateChatCompletionStream(ctx, o.buildRequest(req, true))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return o.upstreamError(err)
	}
	defer stream.Close()

	var promptTokens, evalTokens int
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return o.upstreamError(err)
		}
		if chunk.Usage != nil {
			promptTokens = chunk.Usage.PromptTokens
			evalTokens = chunk.Usage.CompletionTokens
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		if err := callback(StreamEvent{Type: StreamEventToken, Content: delta}); err != nil {
			return err
		}
	}
	return callback(StreamEvent{
		Type:            StreamEventDone,
		PromptEvalCount: promptTokens,
		EvalCount:       evalTokens,
	})
}

// Health implements the Provider interface by listing models, the
// cheapest authenticated call both backends expose.
func (o *OpenAIProvider) Health(ctx context.Context) bool {
	_, err := o.client.ListModels(ctx)
	return err == nil
}

// Models implements the Provider interface.
func (o *OpenAIProvider) Models(ctx context.Context) []string {
	list, err := o.client.ListModels(ctx)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		names = append(names, m.ID)
	}
	return names
}

func (o *OpenAIProvider) upstreamError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &UpstreamError{
			Provider: o.name,
			Status:   apiErr.HTTPStatusCode,
			Message:  excerpt(apiErr.Message),
		}
	}
	return fmt.Errorf("%s request failed: %w", o.name, err)
}
