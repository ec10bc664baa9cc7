// Package llm talks to the hosted text model used as the classification and generation oracle.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"threadpromo/internal/config"
)

// Oracle completes a single user prompt.
type Oracle interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// ErrMalformedResponse is returned when the payload lacks the expected text field.
var ErrMalformedResponse = errors.New("malformed oracle response")

// StatusError reports a non-2xx reply.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string { return fmt.Sprintf("llm status %d: %s", e.Code, e.Body) }

// OracleFunc adapts a function to Oracle.
type OracleFunc func(ctx context.Context, prompt string, maxTokens int) (string, error)

func (f OracleFunc) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return f(ctx, prompt, maxTokens)
}

// New builds the provider named in cfg.
func New(cfg config.LLMConfig) (Oracle, error) {
	timeout := cfg.Timeout
	if timeout <= 0 { timeout = 45 * time.Second }
	hc := &http.Client{Timeout: timeout}
	switch strings.ToLower(cfg.Provider) {
	case "anthropic", "":
		if cfg.APIKey == "" { return nil, errors.New("llm: missing anthropic api key") }
		return NewAnthropic(cfg.APIKey, cfg.Model, cfg.BaseURL, hc), nil
	case "openai":
		if cfg.APIKey == "" { return nil, errors.New("llm: missing openai api key") }
		return NewOpenAI(cfg.APIKey, cfg.Model, cfg.BaseURL, hc), nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}
