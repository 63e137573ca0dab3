package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Credentials authenticate calls to one provider.
type Credentials struct {
	APIKey  string
	BaseURL string // overrides the provider's base URL when set
}

// CredentialSource supplies per-provider credentials.
type CredentialSource interface {
	Credentials(ctx context.Context, provider Provider) (Credentials, error)
}

// EnvCredentials reads the API key from the provider's environment variable and an
// optional base URL override from <PROVIDER>_BASE_URL.
type EnvCredentials struct {
	resolver *Resolver
	lookup   func(string) (string, bool)
}

// NewEnvCredentials creates an environment-backed credential source.
func NewEnvCredentials(resolver *Resolver) *EnvCredentials {
	return &EnvCredentials{resolver: resolver, lookup: os.LookupEnv}
}

func (e *EnvCredentials) Credentials(_ context.Context, provider Provider) (Credentials, error) {
	info, ok := e.resolver.Provider(provider)
	if !ok {
		return Credentials{}, fmt.Errorf("%w: unknown provider %s", ErrConfig, provider)
	}

	key, ok := e.lookup(info.CredentialEnv)
	if !ok || strings.TrimSpace(key) == "" {
		return Credentials{}, fmt.Errorf("%w: no credentials for provider %s (set %s)", ErrConfig, provider, info.CredentialEnv)
	}

	baseURL, _ := e.lookup(strings.ToUpper(string(provider)) + "_BASE_URL")

	return Credentials{APIKey: key, BaseURL: baseURL}, nil
}

// StaticCredentials is a fixed credential table, mostly for tests and embedding hosts.
type StaticCredentials map[Provider]Credentials

func (s StaticCredentials) Credentials(_ context.Context, provider Provider) (Credentials, error) {
	creds, ok := s[provider]
	if !ok || creds.APIKey == "" {
		return Credentials{}, fmt.Errorf("%w: no credentials for provider %s", ErrConfig, provider)
	}

	return creds, nil
}
