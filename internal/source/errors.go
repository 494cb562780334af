// Package source holds what the provider adapters share.
package source

import "fmt"

// ProviderError is a non-2xx response or malformed payload from a provider.
// Adapters log it and degrade to an empty result.
type ProviderError struct {
	Provider   string
	Op         string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
	default:
		return fmt.Sprintf("%s %s: unexpected status %d", e.Provider, e.Op, e.StatusCode)
	}
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
