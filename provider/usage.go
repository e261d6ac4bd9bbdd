package provider

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/akoun-dev/montoit-sub002/infra/logger"
	"github.com/akoun-dev/montoit-sub002/infra/opensearch"
)

// AttemptOutcome is the recorded result of one provider attempt.
type AttemptOutcome string

const (
	OutcomeSuccess AttemptOutcome = "success"
	OutcomeFailure AttemptOutcome = "failure"
)

// AttemptRecord is one append-only entry in the usage ledger. Records
// are never rewritten; health queries aggregate them over a trailing
// window.
type AttemptRecord struct {
	Capability   string         `json:"capability"`
	Provider     string         `json:"provider"`
	Outcome      AttemptOutcome `json:"outcome"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
	LatencyMs    int64          `json:"latencyMs"`
	Timestamp    time.Time      `json:"timestamp"`
}

// UsageAggregate is the per capability/provider rollup produced by the
// store for a trailing window.
type UsageAggregate struct {
	Capability   string
	Provider     string
	SuccessCount int64
	FailureCount int64
}

// AttemptStore persists attempt records and aggregates them.
type AttemptStore interface {
	InsertAttempt(ctx context.Context, rec AttemptRecord) error
	AggregateAttempts(ctx context.Context, since time.Time) ([]UsageAggregate, error)
}

// ProviderHealth is one row of the failing-providers report.
type ProviderHealth struct {
	Capability   string  `json:"capability"`
	Provider     string  `json:"provider"`
	SuccessRate  float64 `json:"successRate"`
	SuccessCount int64   `json:"successCount"`
	FailureCount int64   `json:"failureCount"`
}

// UsageLedger records every failover attempt and answers rolling
// success-rate queries. Writes go through a bounded queue drained by a
// background worker so a slow audit store cannot block the send path;
// when the queue is full the record is dropped with a warning.
type UsageLedger struct {
	store   AttemptStore
	events  *opensearch.Logger
	queue   chan AttemptRecord
	done    chan struct{}
	closing sync.Once
	wg      sync.WaitGroup
}

// NewUsageLedger creates a ledger with the given queue capacity and
// starts its writer goroutine.
func NewUsageLedger(store AttemptStore, buffer int) *UsageLedger {
	if buffer <= 0 {
		buffer = 256
	}
	l := &UsageLedger{
		store: store,
		queue: make(chan AttemptRecord, buffer),
		done:  make(chan struct{}),
	}
	l.wg.Add(1)
	go l.writeLoop()
	return l
}

// ShipEventsTo additionally mirrors every persisted attempt to the
// OpenSearch attempts index for dashboarding. Best effort only.
func (l *UsageLedger) ShipEventsTo(events *opensearch.Logger) {
	l.events = events
}

// RecordAttempt enqueues an attempt record. It never blocks and never
// returns an error: ledger failures must not mask the real outcome of
// the send that produced them.
func (l *UsageLedger) RecordAttempt(rec AttemptRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	select {
	case <-l.done:
		logger.Warn("Attempt record dropped, ledger closed", logger.LogContext{
			Provider: rec.Provider,
		})
		return
	default:
	}

	// The queue channel is never closed, so this send cannot panic even
	// when it races Close; a record slipping in after the drain is just
	// dropped, same as any other overflow.
	select {
	case l.queue <- rec:
	default:
		logger.Warn("Attempt record dropped, ledger queue full", logger.LogContext{
			Provider: rec.Provider,
			Fields: map[string]any{
				"capability": rec.Capability,
				"outcome":    rec.Outcome,
			},
		})
	}
}

func (l *UsageLedger) writeLoop() {
	defer l.wg.Done()

	for {
		select {
		case rec := <-l.queue:
			l.persist(rec)
		case <-l.done:
			for {
				select {
				case rec := <-l.queue:
					l.persist(rec)
				default:
					return
				}
			}
		}
	}
}

func (l *UsageLedger) persist(rec AttemptRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := l.store.InsertAttempt(ctx, rec); err != nil {
		logger.Warn("Failed to persist attempt record", logger.LogContext{
			Provider: rec.Provider,
			Fields: map[string]any{
				"capability": rec.Capability,
				"error":      err.Error(),
			},
		})
	}
	if l.events != nil {
		if err := l.events.LogAttempt(ctx, rec); err != nil {
			logger.Warn("Failed to ship attempt record", logger.LogContext{
				Provider: rec.Provider,
				Fields:   map[string]any{"error": err.Error()},
			})
		}
	}
}

// Close stops accepting records and drains the queue.
func (l *UsageLedger) Close() {
	l.closing.Do(func() {
		close(l.done)
	})
	l.wg.Wait()
}

// GetFailingProviders aggregates attempt records in the trailing window
// and returns the capability/provider pairs whose success rate is below
// thresholdPercent. Pairs with no attempts in the window are not
// reported. The ledger performs no scheduling; an external trigger is
// expected to call this on an interval and alert operators.
func (l *UsageLedger) GetFailingProviders(ctx context.Context, thresholdPercent float64, window time.Duration) ([]ProviderHealth, error) {
	aggs, err := l.store.AggregateAttempts(ctx, time.Now().UTC().Add(-window))
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate attempts: %w", err)
	}

	var failing []ProviderHealth
	for _, agg := range aggs {
		total := agg.SuccessCount + agg.FailureCount
		if total == 0 {
			continue
		}
		rate := float64(agg.SuccessCount) / float64(total) * 100
		if rate < thresholdPercent {
			failing = append(failing, ProviderHealth{
				Capability:   agg.Capability,
				Provider:     agg.Provider,
				SuccessRate:  rate,
				SuccessCount: agg.SuccessCount,
				FailureCount: agg.FailureCount,
			})
		}
	}

	sort.Slice(failing, func(i, j int) bool {
		if failing[i].Capability != failing[j].Capability {
			return failing[i].Capability < failing[j].Capability
		}
		return failing[i].SuccessRate < failing[j].SuccessRate
	})

	return failing, nil
}

// OptimizeCosts re-ranks the enabled providers of a capability using
// historical success rate, breaking ties on the per-message cost each
// provider advertises in its settings. This is an explicit maintenance
// operation; it never runs inline with the failover path.
func (l *UsageLedger) OptimizeCosts(ctx context.Context, capability string, catalog CatalogWriter, window time.Duration) error {
	configs, err := catalog.ListProviders(ctx, capability)
	if err != nil {
		return fmt.Errorf("failed to list providers for %q: %w", capability, err)
	}
	if len(configs) < 2 {
		return nil
	}

	aggs, err := l.store.AggregateAttempts(ctx, time.Now().UTC().Add(-window))
	if err != nil {
		return fmt.Errorf("failed to aggregate attempts: %w", err)
	}

	rates := make(map[string]float64, len(aggs))
	for _, agg := range aggs {
		if agg.Capability != capability {
			continue
		}
		total := agg.SuccessCount + agg.FailureCount
		if total == 0 {
			continue
		}
		rates[agg.Provider] = float64(agg.SuccessCount) / float64(total)
	}

	ranked := make([]Config, len(configs))
	copy(ranked, configs)
	sort.SliceStable(ranked, func(i, j int) bool {
		ri, iOK := rates[ranked[i].Name]
		rj, jOK := rates[ranked[j].Name]
		// Providers without history keep their relative order.
		if !iOK || !jOK {
			return false
		}
		if ri != rj {
			return ri > rj
		}
		return settingCost(ranked[i]) < settingCost(ranked[j])
	})

	for i, cfg := range ranked {
		newPriority := i + 1
		if cfg.Priority == newPriority {
			continue
		}
		if err := catalog.UpdateProviderPriority(ctx, capability, cfg.Name, newPriority); err != nil {
			return fmt.Errorf("failed to update priority for %s/%s: %w", capability, cfg.Name, err)
		}
		logger.Info("Provider priority re-ranked", logger.LogContext{
			Provider: cfg.Name,
			Fields: map[string]any{
				"capability":   capability,
				"old_priority": cfg.Priority,
				"new_priority": newPriority,
			},
		})
	}

	return nil
}

func settingCost(cfg Config) float64 {
	cost, err := strconv.ParseFloat(cfg.Setting("costPerMessage", ""), 64)
	if err != nil {
		return 0
	}
	return cost
}
