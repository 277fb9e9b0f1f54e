package llm

import (
	"context"
	"fmt"
	"slices"
)

// Provider abstracts an LLM vendor (OpenAI, Anthropic, Mistral).
// Execute performs exactly one outbound API call; retries, if any, belong to
// the caller. All vendor-side failures come back as *ProviderError.
type Provider interface {
	Execute(ctx context.Context, prompt, model string, opts Options) (*Result, error)
	Name() string
	Models() []string
	ValidModel(model string) bool
}

// Options are the sampling parameters forwarded to the vendor. Nil pointers
// mean "not set" and fall back to temperature 0.7 and top_p 1.0, so an
// explicit 0 is kept as 0 rather than swallowed by the default. MaxTokens 0
// falls back to 1000.
type Options struct {
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
}

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 1000
	defaultTopP        = 1.0
)

func (o Options) withDefaults() Options {
	if o.Temperature == nil {
		t := float64(defaultTemperature)
		o.Temperature = &t
	}
	if o.MaxTokens == 0 {
		o.MaxTokens = defaultMaxTokens
	}
	if o.TopP == nil {
		p := float64(defaultTopP)
		o.TopP = &p
	}
	return o
}

// Result is the normalized outcome of one provider call. LatencyMs covers the
// network call only, not rendering or persistence.
type Result struct {
	Text             string         `json:"text"`
	PromptTokens     int            `json:"prompt_tokens"`
	CompletionTokens int            `json:"completion_tokens"`
	TotalTokens      int            `json:"total_tokens"`
	Cost             float64        `json:"cost"`
	LatencyMs        int64          `json:"latency_ms"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// ProviderError is the single failure kind for anything that goes wrong on
// the vendor side: transport, auth, rate limit, malformed response. Callers
// get the underlying message verbatim but no sub-kind.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s execution failed: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NotConfiguredError marks a provider that exists in the catalog but has no
// credential in the process configuration.
type NotConfiguredError struct {
	Provider string
}

func (e *NotConfiguredError) Error() string {
	return fmt.Sprintf("provider %s is not configured", e.Provider)
}

func modelListed(models []string, model string) bool {
	return slices.Contains(models, model)
}
