package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/akoun-dev/montoit-sub002/infra/logger"
)

// DefaultAttemptTimeout bounds each individual provider call. A timed
// out call counts as a provider failure and the executor moves on.
const DefaultAttemptTimeout = 10 * time.Second

// Executor tries the providers of a capability strictly in priority
// order and returns the first success. Providers are never raced:
// duplicated side effects (two SMS, two charges) cost more than the
// latency a parallel fan-out would save.
type Executor struct {
	catalog        Catalog
	registry       *Registry
	ledger         *UsageLedger
	attemptTimeout time.Duration
}

// NewExecutor creates a failover executor. The ledger may be nil, in
// which case attempts are not recorded.
func NewExecutor(catalog Catalog, registry *Registry, ledger *UsageLedger) *Executor {
	return &Executor{
		catalog:        catalog,
		registry:       registry,
		ledger:         ledger,
		attemptTimeout: DefaultAttemptTimeout,
	}
}

// SetAttemptTimeout overrides the per-provider timeout.
func (e *Executor) SetAttemptTimeout(d time.Duration) {
	if d > 0 {
		e.attemptTimeout = d
	}
}

// ExecuteWithFallback sends params through the capability's provider
// chain using the handlers registered for that capability.
func (e *Executor) ExecuteWithFallback(ctx context.Context, capability string, params SendParams) (*SendResult, error) {
	return e.ExecuteWith(ctx, capability, e.registry.HandlersFor(capability), params)
}

// ExecuteWith is the core failover loop. The provider order is fetched
// fresh from the catalog on every call; configured providers without a
// registered handler are skipped with a warning and do not count as
// attempts. The first success wins, later providers are not consulted.
// If every attempted provider fails, an AggregateError carrying each
// provider's failure is returned.
func (e *Executor) ExecuteWith(ctx context.Context, capability string, handlers map[string]Handler, params SendParams) (*SendResult, error) {
	configs, err := e.catalog.ListProviders(ctx, capability)
	if err != nil {
		return nil, fmt.Errorf("failed to load provider catalog for %q: %w", capability, err)
	}
	if len(configs) == 0 {
		return nil, fmt.Errorf("%w for capability %q", ErrNoProvidersConfigured, capability)
	}

	var failures []*ProviderError
	attempted := 0

	for _, cfg := range configs {
		handler, ok := handlers[cfg.Name]
		if !ok {
			logger.Warn("Configured provider has no registered handler, skipping", logger.LogContext{
				Provider: cfg.Name,
				Fields:   map[string]any{"capability": capability},
			})
			continue
		}

		attempted++
		result, latencyMs, sendErr := e.attempt(ctx, handler, cfg, params)

		if sendErr == nil {
			e.record(AttemptRecord{
				Capability: capability,
				Provider:   cfg.Name,
				Outcome:    OutcomeSuccess,
				LatencyMs:  latencyMs,
			})
			if result == nil {
				result = &SendResult{}
			}
			result.Provider = cfg.Name
			return result, nil
		}

		e.record(AttemptRecord{
			Capability:   capability,
			Provider:     cfg.Name,
			Outcome:      OutcomeFailure,
			ErrorMessage: sendErr.Error(),
			LatencyMs:    latencyMs,
		})
		failures = append(failures, &ProviderError{
			Capability: capability,
			Provider:   cfg.Name,
			Err:        sendErr,
		})

		logger.Warn("Provider attempt failed, falling back", logger.LogContext{
			Provider: cfg.Name,
			Fields: map[string]any{
				"capability": capability,
				"latency_ms": latencyMs,
				"error":      sendErr.Error(),
			},
		})

		// The caller gave up; do not burn the remaining providers.
		if ctx.Err() != nil {
			break
		}
	}

	if attempted == 0 {
		return nil, fmt.Errorf("%w for capability %q: %d configured provider(s) have no registered handler",
			ErrNoProvidersConfigured, capability, len(configs))
	}

	return nil, &AggregateError{Capability: capability, Attempts: failures}
}

// attempt runs one provider call under the per-attempt timeout and
// measures its latency.
func (e *Executor) attempt(ctx context.Context, handler Handler, cfg Config, params SendParams) (*SendResult, int64, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, e.attemptTimeout)
	defer cancel()

	start := time.Now()
	result, err := handler.Send(attemptCtx, cfg, params)
	latencyMs := time.Since(start).Milliseconds()

	return result, latencyMs, err
}

func (e *Executor) record(rec AttemptRecord) {
	if e.ledger == nil {
		return
	}
	e.ledger.RecordAttempt(rec)
}
