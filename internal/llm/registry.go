package llm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/promptdeck/promptdeck/internal/config"
)

// Canonical provider identifiers. Lookup is case-insensitive; these uppercase
// forms are what gets persisted on executions.
const (
	ProviderOpenAI    = "OPENAI"
	ProviderAnthropic = "ANTHROPIC"
	ProviderMistral   = "MISTRAL"
)

// ErrUnknownProvider means the identifier is not in the catalog at all, as
// opposed to known but missing a credential.
var ErrUnknownProvider = errors.New("unknown provider")

type catalogEntry struct {
	id        string
	name      string
	construct func(apiKey string) Provider
}

// catalog is the static set of supported providers. A provider is only
// instantiated when its credential is present in the configuration.
var catalog = []catalogEntry{
	{ProviderOpenAI, "OpenAI", func(k string) Provider { return NewOpenAIProvider(k) }},
	{ProviderAnthropic, "Anthropic (Claude)", func(k string) Provider { return NewAnthropicProvider(k) }},
	{ProviderMistral, "Mistral AI", func(k string) Provider { return NewMistralProvider(k) }},
}

// Registry maps provider identifiers to adapter instances. It is built once
// at process start and read-only afterwards, so concurrent lookups need no
// locking.
type Registry struct {
	providers map[string]Provider
	names     map[string]string
}

func NewRegistry(cfg config.LLMConfig) *Registry {
	keys := map[string]string{
		ProviderOpenAI:    cfg.OpenAIKey,
		ProviderAnthropic: cfg.AnthropicKey,
		ProviderMistral:   cfg.MistralKey,
	}

	r := &Registry{
		providers: make(map[string]Provider),
		names:     make(map[string]string),
	}
	for _, entry := range catalog {
		r.names[entry.id] = entry.name
		if key := keys[entry.id]; key != "" {
			r.providers[entry.id] = entry.construct(key)
		}
	}
	return r
}

// Normalize maps a client-supplied identifier to its canonical form.
func Normalize(providerID string) string {
	return strings.ToUpper(strings.TrimSpace(providerID))
}

// Known reports whether the identifier exists in the catalog, configured
// or not.
func (r *Registry) Known(providerID string) bool {
	_, ok := r.names[Normalize(providerID)]
	return ok
}

// Get returns the adapter for the identifier. An identifier outside the
// catalog yields ErrUnknownProvider; a cataloged provider without a
// credential yields *NotConfiguredError.
func (r *Registry) Get(providerID string) (Provider, error) {
	id := Normalize(providerID)
	if _, ok := r.names[id]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, providerID)
	}
	p, ok := r.providers[id]
	if !ok {
		return nil, &NotConfiguredError{Provider: id}
	}
	return p, nil
}

// ProviderStatus describes a catalog entry without exposing credentials.
type ProviderStatus struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Configured bool     `json:"is_configured"`
	Models     []string `json:"models,omitempty"`
}

// Status lists every cataloged provider in catalog order.
func (r *Registry) Status() []ProviderStatus {
	statuses := make([]ProviderStatus, 0, len(catalog))
	for _, entry := range catalog {
		s := ProviderStatus{ID: entry.id, Name: entry.name}
		if p, ok := r.providers[entry.id]; ok {
			s.Configured = true
			s.Models = p.Models()
		}
		statuses = append(statuses, s)
	}
	return statuses
}
