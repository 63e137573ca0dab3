// Package llm resolves model identifiers to providers and talks to model endpoints.
package llm

import (
	"fmt"
	"slices"
	"strings"
)

// Provider names a model vendor.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGoogle    Provider = "google"
)

// ProviderInfo is one row of the capability table.
type ProviderInfo struct {
	Name          Provider
	DefaultModel  string
	Models        []string
	BaseURL       string // OpenAI-compatible chat completions endpoint
	CredentialEnv string
}

// DefaultProviders is the static capability table.
func DefaultProviders() []ProviderInfo {
	return []ProviderInfo{
		{
			Name:          ProviderOpenAI,
			DefaultModel:  "gpt-4o-mini",
			Models:        []string{"gpt-4o-mini", "gpt-4o", "gpt-4.1", "gpt-4.1-mini", "gpt-4.1-nano", "o3-mini"},
			BaseURL:       "https://api.openai.com/v1",
			CredentialEnv: "OPENAI_API_KEY",
		},
		{
			Name:          ProviderAnthropic,
			DefaultModel:  "claude-3-5-sonnet-latest",
			Models:        []string{"claude-3-5-sonnet-latest", "claude-3-5-haiku-latest", "claude-3-7-sonnet-latest", "claude-sonnet-4-0"},
			BaseURL:       "https://api.anthropic.com/v1/",
			CredentialEnv: "ANTHROPIC_API_KEY",
		},
		{
			Name:          ProviderGoogle,
			DefaultModel:  "gemini-2.0-flash",
			Models:        []string{"gemini-2.0-flash", "gemini-2.0-flash-lite", "gemini-1.5-pro", "gemini-2.5-flash", "gemini-2.5-pro"},
			BaseURL:       "https://generativelanguage.googleapis.com/v1beta/openai/",
			CredentialEnv: "GOOGLE_API_KEY",
		},
	}
}

// Resolution is the outcome of resolving a model identifier.
type Resolution struct {
	Provider  Provider `json:"provider"`
	ModelName string   `json:"model_name"`
}

// String renders the resolution in provider/model form.
func (r Resolution) String() string {
	return string(r.Provider) + "/" + r.ModelName
}

// Validation reports whether a model identifier is in the capability table.
type Validation struct {
	IsValid bool   `json:"is_valid"`
	Error   string `json:"error,omitempty"`
}

// Resolver maps "provider/model" strings onto the capability table.
type Resolver struct {
	providers       map[Provider]ProviderInfo
	order           []Provider
	defaultProvider Provider
}

// NewResolver creates a resolver over DefaultProviders with openai as the default.
func NewResolver() *Resolver {
	return NewResolverWith(ProviderOpenAI, DefaultProviders())
}

// NewResolverWith creates a resolver over a custom table.
func NewResolverWith(defaultProvider Provider, providers []ProviderInfo) *Resolver {
	r := &Resolver{
		providers:       make(map[Provider]ProviderInfo, len(providers)),
		defaultProvider: defaultProvider,
	}

	for _, info := range providers {
		r.providers[info.Name] = info
		r.order = append(r.order, info.Name)
	}

	return r
}

// Provider returns the table row for p.
func (r *Resolver) Provider(p Provider) (ProviderInfo, bool) {
	info, ok := r.providers[p]

	return info, ok
}

// DefaultProvider returns the provider used for unqualified and unrecognized identifiers.
func (r *Resolver) DefaultProvider() Provider {
	return r.defaultProvider
}

// Resolve splits model on the first "/".
//
// An empty identifier resolves to the default provider and its default model. An
// unqualified identifier keeps its name under the default provider. An unrecognized
// provider token falls back to the default provider and its default model; callers
// relying on that fallback see no error.
func (r *Resolver) Resolve(model string) Resolution {
	model = strings.TrimSpace(model)
	defaults := r.providers[r.defaultProvider]

	if model == "" {
		return Resolution{Provider: r.defaultProvider, ModelName: defaults.DefaultModel}
	}

	providerToken, modelName, qualified := strings.Cut(model, "/")
	if !qualified {
		return Resolution{Provider: r.defaultProvider, ModelName: model}
	}

	info, ok := r.providers[Provider(strings.ToLower(providerToken))]
	if !ok {
		return Resolution{Provider: r.defaultProvider, ModelName: defaults.DefaultModel}
	}

	if modelName == "" {
		modelName = info.DefaultModel
	}

	return Resolution{Provider: info.Name, ModelName: modelName}
}

// Validate checks membership of the resolved model in the capability table. It never fails;
// an unsupported model yields IsValid=false and an error text listing the supported set.
func (r *Resolver) Validate(model string) Validation {
	resolved := r.Resolve(model)

	info, ok := r.providers[resolved.Provider]
	if ok && slices.Contains(info.Models, resolved.ModelName) {
		return Validation{IsValid: true}
	}

	return Validation{
		IsValid: false,
		Error: fmt.Sprintf("model %q is not supported by provider %s; supported models: %s",
			resolved.ModelName, resolved.Provider, strings.Join(r.SupportedModels(), ", ")),
	}
}

// SupportedModels lists every provider/model pair in table order.
func (r *Resolver) SupportedModels() []string {
	var supported []string

	for _, name := range r.order {
		for _, model := range r.providers[name].Models {
			supported = append(supported, string(name)+"/"+model)
		}
	}

	return supported
}
