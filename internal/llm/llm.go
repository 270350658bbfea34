// Package llm wraps the chat and embedding backends behind small
// interfaces and maps transport failures onto a fixed set of errors.
package llm

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/termscon/backend/pkg/circuitbreaker"
)

var (
	ErrUnconfigured = errors.New("llm backend not configured")
	ErrAuth         = errors.New("llm authentication failed")
	ErrRateLimited  = errors.New("llm rate limited")
	ErrTimeout      = errors.New("llm request timed out")
	ErrTransport    = errors.New("llm transport failure")
	ErrEmptyReply   = errors.New("llm returned no content")
)

// Backend produces a completion for a single system+user prompt pair.
type Backend interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// Embedder maps text to a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// BatchEmbedder is implemented by embedders that can embed many texts per
// request; the corpus import tool prefers it.
type BatchEmbedder interface {
	Embedder
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float32
	MaxTokens    int
	// JSONMode asks the backend to constrain output to a JSON object.
	JSONMode bool
}

type CompletionResponse struct {
	Content string
	Usage   Usage
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Reason names the failure class of err for logs, metrics and results.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnconfigured):
		return "unconfigured"
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, circuitbreaker.ErrCircuitOpen), errors.Is(err, circuitbreaker.ErrTooManyRequests):
		return "circuit_open"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "transport"
	}
}

// classifyStatus maps an HTTP status code onto the package errors.
func classifyStatus(code int, err error) error {
	switch {
	case code == 401 || code == 403:
		return wrap(ErrAuth, err)
	case code == 429:
		return wrap(ErrRateLimited, err)
	case code == 408 || code == 504:
		return wrap(ErrTimeout, err)
	default:
		return wrap(ErrTransport, err)
	}
}

func classifyGeneric(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return wrap(ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return wrap(ErrTimeout, err)
	}
	return wrap(ErrTransport, err)
}

// isRetryable reports whether an embedding request is worth repeating.
func isRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrTransport)
}

// countsAgainstBreaker excludes caller mistakes from the failure count.
func countsAgainstBreaker(err error) bool {
	return !errors.Is(err, ErrAuth) && !errors.Is(err, ErrEmptyReply)
}

type classified struct {
	kind  error
	cause error
}

func (c *classified) Error() string {
	return c.kind.Error() + ": " + c.cause.Error()
}

func (c *classified) Unwrap() []error {
	return []error{c.kind, c.cause}
}

func wrap(kind, cause error) error {
	return &classified{kind: kind, cause: cause}
}

func joinParts(parts []string) string {
	return strings.TrimSpace(strings.Join(parts, ""))
}
