package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/AleutianGate/services/gateway/datatypes"
)

var tracer = otel.Tracer("aleutian.gateway.providers") // Specific tracer name

// StreamEventType discriminates events delivered to a StreamCallback.
type StreamEventType string

const (
	// StreamEventToken carries a content delta.
	StreamEventToken StreamEventType = "token"
	// StreamEventDone signals the end of the stream and carries token counts
	// when the upstream reports them.
	StreamEventDone StreamEventType = "done"
)

// StreamEvent is a single unit of streamed output from a provider.
type StreamEvent struct {
	Type            StreamEventType
	Content         string
	PromptEvalCount int
	EvalCount       int
}

// StreamCallback receives stream events in upstream order. Returning a
// non-nil error aborts the stream and closes the upstream connection.
type StreamCallback func(event StreamEvent) error

// Provider is the adapter contract for one upstream AI backend.
//
// Chat and ChatStream accept the normalized request envelope and are
// responsible for provider-specific shaping (paths, credential headers,
// message transforms) and for normalizing responses back to the shared
// shape. Health is a cheap liveness probe and must not count against any
// upstream quota more than necessary. Models is best-effort: adapters that
// cannot enumerate remote models return a static list or nil.
type Provider interface {
	Name() string
	Chat(ctx context.Context, req datatypes.ChatRequest) (*datatypes.ChatResponse, error)
	ChatStream(ctx context.Context, req datatypes.ChatRequest, callback StreamCallback) error
	Health(ctx context.Context) bool
	Models(ctx context.Context) []string
}

// Generator is the optional legacy single-prompt contract. Only local
// backends implement it.
type Generator interface {
	Generate(ctx context.Context, req datatypes.GenerateRequest) (*datatypes.GenerateResponse, error)
	GenerateStream(ctx context.Context, req datatypes.GenerateRequest, callback StreamCallback) error
}

// ErrNoProvider is returned by the registry when the selected provider
// identity has no binding. Callers map it to provider_unavailable.
var ErrNoProvider = errors.New("no provider bound")

// UpstreamError describes a non-2xx response from a provider backend.
//
// Message holds a short excerpt of the upstream error, taken from the
// provider's structured error field when parseable and length-capped.
// It never contains credentials or raw response bodies.
type UpstreamError struct {
	Provider string
	Status   int
	Message  string
}

func (e *UpstreamError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s upstream returned status %d", e.Provider, e.Status)
	}
	return fmt.Sprintf("%s upstream returned status %d: %s", e.Provider, e.Status, e.Message)
}

// maxUpstreamExcerpt bounds the error text copied out of upstream responses.
const maxUpstreamExcerpt = 200

// excerpt truncates s to maxUpstreamExcerpt bytes for error reporting.
func excerpt(s string) string {
	if len(s) > maxUpstreamExcerpt {
		return s[:maxUpstreamExcerpt]
	}
	return s
}

// isDialError reports whether err is a connection-establishment failure,
// as opposed to a failure after the connection was written to.
func isDialError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// retryDialTransport retries a request exactly once when connection
// establishment fails. Requests that reached the upstream are never
// replayed. The retry reuses GetBody, which NewRequestWithContext sets
// for byte-buffer bodies.
type retryDialTransport struct {
	base http.RoundTripper
}

func (t retryDialTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err == nil || !isDialError(err) || req.Context().Err() != nil {
		return resp, err
	}
	retry := req.Clone(req.Context())
	if req.GetBody != nil {
		body, berr := req.GetBody()
		if berr != nil {
			return nil, err
		}
		retry.Body = body
	}
	return t.base.RoundTrip(retry)
}

// newRetryClient builds the HTTP client shared by all adapters. It carries
// no overall timeout; per-request deadlines come from ctx, and a client
// timeout would cut long-lived streams short.
func newRetryClient() *http.Client {
	return &http.Client{
		Transport: retryDialTransport{base: http.DefaultTransport},
	}
}
