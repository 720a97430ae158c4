package dataflows

import (
	"errors"
	"fmt"
)

var (
	// ErrNoData means the provider answered but had nothing usable.
	ErrNoData = errors.New("no data")
	// ErrNotConfigured means the provider is missing credentials.
	ErrNotConfigured = errors.New("provider not configured")
)

// APIError is a non-success answer from an upstream API.
type APIError struct {
	Provider string
	Status   int
	Message  string
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("%s API error %d: %s", e.Provider, e.Status, e.Message)
}

// Retryable reports whether repeating the request could succeed.
func (e *APIError) Retryable() bool {
	return e.Status == 429 || e.Status >= 500
}

func isRetryable(err error) bool {
	if errors.Is(err, ErrNoData) || errors.Is(err, ErrNotConfigured) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	// transport failures
	return true
}
