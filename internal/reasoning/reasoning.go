// Package reasoning adapts external text-completion services behind one
// interface and guards every call with a timeout, a local call budget and
// a circuit breaker. Calls are never retried.
package reasoning

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/listing-trust/internal/config"
	"github.com/sells-group/listing-trust/internal/resilience"
	"github.com/sells-group/listing-trust/pkg/anthropic"
)

// Request is one structured completion call.
type Request struct {
	// Purpose labels logs and metrics: review, extract, translate.
	Purpose    string
	System     string
	Prompt     string
	SchemaName string
	// Schema is the JSON Schema the response must satisfy.
	Schema    json.RawMessage
	MaxTokens int
}

// Reasoner returns the raw text of a completion. The text is untrusted and
// must go through DecodeStrict.
type Reasoner interface {
	Complete(ctx context.Context, req Request) (string, error)
	Name() string
}

// New builds the backend selected by cfg.Reasoning.Provider. It returns a
// nil Reasoner and no error when the provider has no credential.
func New(ctx context.Context, cfg *config.Config) (Reasoner, error) {
	switch cfg.Reasoning.Provider {
	case "anthropic":
		if cfg.Anthropic.Key == "" {
			return nil, nil
		}
		return NewAnthropic(anthropic.NewClient(cfg.Anthropic.Key, cfg.Anthropic.BaseURL), cfg.Anthropic.Model), nil
	case "openai":
		if cfg.OpenAI.Key == "" {
			return nil, nil
		}
		return NewOpenAI(cfg.OpenAI.Key, cfg.OpenAI.BaseURL, cfg.OpenAI.Model), nil
	case "gemini":
		if cfg.Gemini.Key == "" {
			return nil, nil
		}
		g, err := NewGemini(ctx, cfg.Gemini.Key, cfg.Gemini.BaseURL, cfg.Gemini.Model)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, eris.Errorf("reasoning: unknown provider %q", cfg.Reasoning.Provider)
	}
}

// NewGuarded builds the configured backend and wraps it in a Guard. An
// unconfigured provider yields a Guard that always returns ErrUnconfigured.
func NewGuarded(ctx context.Context, cfg *config.Config) (*Guard, error) {
	backend, err := New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if backend == nil {
		zap.L().Warn("reasoning: no credential, AI review and fallback extraction disabled",
			zap.String("provider", cfg.Reasoning.Provider))
	}
	return NewGuard(backend, GuardConfigFrom(cfg.Reasoning)), nil
}

// classify marks transport-level failures as transient so they count
// toward the circuit breaker. Caller cancellation passes through.
func classify(err error, status int) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if status == 0 || resilience.IsTransientHTTPStatus(status) {
		return resilience.NewTransientError(err, status)
	}
	return err
}

// schemaInstruction appends the response contract to a system prompt for
// backends without native schema enforcement.
func schemaInstruction(system string, schema json.RawMessage) string {
	if len(schema) == 0 {
		return system + "\n\nRespond with a single JSON object and nothing else."
	}
	return system + "\n\nRespond with a single JSON object that validates against this JSON Schema, and nothing else:\n" + string(schema)
}
