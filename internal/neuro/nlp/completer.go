// Package nlp provides the language-model layer of Neuro.
//
// It has two responsibilities:
//   - Completer: a thin, provider-neutral boundary over a text completion
//     service (Gemini, OpenAI-compatible or Anthropic).
//   - Classifier: turns a free-form utterance into an ordered list of
//     command labels that the commands package can parse.
//
// The model only proposes labels; it never executes anything. Every label is
// re-validated by commands.Parse before a handler runs.
package nlp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrEmptyCompletion is returned by a Completer when the upstream response
// carries no text at all.
var ErrEmptyCompletion = errors.New("nlp: empty completion")

// ErrRateLimit is wrapped into the error returned when the upstream API
// reports HTTP 429.
var ErrRateLimit = errors.New("nlp: upstream rate limit exceeded")

// ErrUnknownProvider is returned by New for an unsupported provider name.
var ErrUnknownProvider = errors.New("nlp: unknown provider")

// CompletionRequest is the input to a single completion call.
type CompletionRequest struct {
	// System is the instruction block. Optional.
	System string
	// Prompt is the user-visible prompt text.
	Prompt string
	// MaxTokens caps the response length. Zero uses the backend default.
	MaxTokens int
	// Temperature is passed through when positive.
	Temperature float32
	// Grounded asks the backend to consult live web search where it can.
	// Backends without a search tool ignore it.
	Grounded bool
}

// Usage reports token counts when the backend provides them.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// CompletionResponse is the result of a completion call.
type CompletionResponse struct {
	Text  string
	Model string
	Usage Usage
}

// Completer is the completion service boundary. Implementations must be safe
// for concurrent use; the executor calls them from several handlers at once.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// CompleterFunc adapts a plain function to Completer.
type CompleterFunc func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	return f(ctx, req)
}

// Provider names accepted by New.
const (
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

const defaultMaxTokens = 1024

// Config selects and configures a completion backend.
type Config struct {
	// Provider is one of ProviderGemini (default), ProviderOpenAI or
	// ProviderAnthropic.
	Provider string
	// APIKey authenticates against the provider.
	APIKey string
	// Model overrides the provider's default model.
	Model string
	// BaseURL overrides the API endpoint (OpenAI-compatible servers, proxies,
	// test servers).
	BaseURL string
	// Timeout bounds a single completion call. Zero means no extra bound
	// beyond the caller's context.
	Timeout time.Duration
}

// New returns the Completer selected by cfg.Provider.
func New(ctx context.Context, cfg Config) (Completer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("nlp: %s api key is required", providerName(cfg.Provider))
	}
	switch providerName(cfg.Provider) {
	case ProviderGemini:
		return NewGemini(ctx, cfg)
	case ProviderOpenAI:
		return NewOpenAI(cfg), nil
	case ProviderAnthropic:
		return NewAnthropic(cfg), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

func providerName(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	if p == "" {
		return ProviderGemini
	}
	return p
}

// withTimeout applies the configured per-call timeout, if any.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func maxTokens(n int) int {
	if n <= 0 {
		return defaultMaxTokens
	}
	return n
}
