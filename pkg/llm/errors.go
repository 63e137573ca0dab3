package llm

import "errors"

var (
	// ErrConfig indicates missing credentials or configuration for a provider.
	ErrConfig = errors.New("model configuration error")

	// ErrProvider indicates the upstream model call failed.
	ErrProvider = errors.New("model provider error")
)

// IsConfigError checks if an error is a configuration error.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrConfig)
}

// IsProviderError checks if an error came from the model provider.
func IsProviderError(err error) bool {
	return errors.Is(err, ErrProvider)
}
