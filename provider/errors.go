package provider

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoProvidersConfigured is returned when a capability has no enabled
// providers (or none of them has a registered handler). Callers must
// treat this as a configuration error, never as a silent success.
var ErrNoProvidersConfigured = errors.New("no providers configured")

// ProviderError wraps a single vendor failure inside the failover chain.
// It is recovered locally: the executor records it and moves on to the
// next provider in priority order.
type ProviderError struct {
	Capability string
	Provider   string
	Err        error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s/%s: %v", e.Capability, e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// AggregateError is returned when every provider in the chain has been
// tried and failed. It carries each provider's failure so operators can
// triage from the error alone, without correlating logs.
type AggregateError struct {
	Capability string
	Attempts   []*ProviderError
}

func (e *AggregateError) Error() string {
	msgs := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		msgs = append(msgs, fmt.Sprintf("%s: %v", a.Provider, a.Err))
	}
	return fmt.Sprintf("all %d provider(s) failed for capability %q: %s",
		len(e.Attempts), e.Capability, strings.Join(msgs, "; "))
}

// Providers returns the names of the providers that were attempted.
func (e *AggregateError) Providers() []string {
	names := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		names = append(names, a.Provider)
	}
	return names
}
