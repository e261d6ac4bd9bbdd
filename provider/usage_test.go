package provider

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryCatalog struct {
	staticCatalog
	priorities map[string]int
}

func (c *memoryCatalog) UpsertProvider(ctx context.Context, cfg Config) error { return nil }

func (c *memoryCatalog) SetProviderEnabled(ctx context.Context, capability, name string, enabled bool) error {
	return nil
}

func (c *memoryCatalog) UpdateProviderPriority(ctx context.Context, capability, name string, priority int) error {
	if c.priorities == nil {
		c.priorities = map[string]int{}
	}
	c.priorities[name] = priority
	return nil
}

func recordBatch(store *memoryAttemptStore, capability, provider string, successes, failures int) {
	now := time.Now().UTC()
	for i := 0; i < successes; i++ {
		_ = store.InsertAttempt(context.Background(), AttemptRecord{
			Capability: capability, Provider: provider, Outcome: OutcomeSuccess, Timestamp: now,
		})
	}
	for i := 0; i < failures; i++ {
		_ = store.InsertAttempt(context.Background(), AttemptRecord{
			Capability: capability, Provider: provider, Outcome: OutcomeFailure, Timestamp: now,
		})
	}
}

func TestUsageLedger_RecordAttemptPersists(t *testing.T) {
	store := &memoryAttemptStore{}
	ledger := NewUsageLedger(store, 16)

	ledger.RecordAttempt(AttemptRecord{
		Capability: CapabilitySMS,
		Provider:   "orange",
		Outcome:    OutcomeSuccess,
		LatencyMs:  42,
	})
	ledger.Close()

	records := store.all()
	require.Len(t, records, 1)
	assert.Equal(t, "orange", records[0].Provider)
	assert.False(t, records[0].Timestamp.IsZero(), "timestamp is filled in when absent")
}

func TestUsageLedger_RecordAfterCloseIsDropped(t *testing.T) {
	store := &memoryAttemptStore{}
	ledger := NewUsageLedger(store, 16)
	ledger.Close()

	// Must not panic or block.
	ledger.RecordAttempt(AttemptRecord{Capability: CapabilitySMS, Provider: "orange", Outcome: OutcomeFailure})

	assert.Empty(t, store.all())
}

func TestUsageLedger_RecordRacingCloseDoesNotPanic(t *testing.T) {
	store := &memoryAttemptStore{}
	ledger := NewUsageLedger(store, 4)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				ledger.RecordAttempt(AttemptRecord{
					Capability: CapabilitySMS,
					Provider:   "orange",
					Outcome:    OutcomeFailure,
				})
			}
		}()
	}

	ledger.Close()
	wg.Wait()

	// Records racing the shutdown are either persisted or dropped with
	// a warning; none of them may crash the process.
	assert.NotPanics(t, func() {
		ledger.RecordAttempt(AttemptRecord{Capability: CapabilitySMS, Provider: "orange", Outcome: OutcomeFailure})
	})
}

func TestUsageLedger_GetFailingProviders(t *testing.T) {
	store := &memoryAttemptStore{}
	recordBatch(store, CapabilitySMS, "orange", 2, 8) // 20%
	recordBatch(store, CapabilitySMS, "mtn", 9, 1)    // 90%
	recordBatch(store, CapabilityWhatsApp, "orange", 0, 5)

	ledger := NewUsageLedger(store, 16)
	defer ledger.Close()

	failing, err := ledger.GetFailingProviders(context.Background(), 80, 24*time.Hour)
	require.NoError(t, err)
	require.Len(t, failing, 2)

	// Sorted by capability, then ascending success rate.
	assert.Equal(t, CapabilitySMS, failing[0].Capability)
	assert.Equal(t, "orange", failing[0].Provider)
	assert.InDelta(t, 20.0, failing[0].SuccessRate, 0.01)
	assert.Equal(t, CapabilityWhatsApp, failing[1].Capability)
	assert.InDelta(t, 0.0, failing[1].SuccessRate, 0.01)
}

func TestUsageLedger_GetFailingProviders_NoAttemptsNoReport(t *testing.T) {
	store := &memoryAttemptStore{}
	ledger := NewUsageLedger(store, 16)
	defer ledger.Close()

	failing, err := ledger.GetFailingProviders(context.Background(), 80, time.Hour)
	require.NoError(t, err)
	assert.Empty(t, failing)
}

func TestUsageLedger_OptimizeCosts_ReRanksBySuccessRate(t *testing.T) {
	store := &memoryAttemptStore{}
	recordBatch(store, CapabilitySMS, "orange", 1, 9) // 10%
	recordBatch(store, CapabilitySMS, "mtn", 9, 1)    // 90%

	catalog := &memoryCatalog{}
	catalog.configs = []Config{
		{Capability: CapabilitySMS, Name: "orange", Enabled: true, Priority: 1},
		{Capability: CapabilitySMS, Name: "mtn", Enabled: true, Priority: 2},
	}

	ledger := NewUsageLedger(store, 16)
	defer ledger.Close()

	err := ledger.OptimizeCosts(context.Background(), CapabilitySMS, catalog, 24*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, 1, catalog.priorities["mtn"])
	assert.Equal(t, 2, catalog.priorities["orange"])
}

func TestUsageLedger_OptimizeCosts_CostBreaksTies(t *testing.T) {
	store := &memoryAttemptStore{}
	recordBatch(store, CapabilitySMS, "orange", 9, 1)
	recordBatch(store, CapabilitySMS, "wave", 9, 1)

	catalog := &memoryCatalog{}
	catalog.configs = []Config{
		{Capability: CapabilitySMS, Name: "orange", Enabled: true, Priority: 1,
			Settings: map[string]string{"costPerMessage": "12.5"}},
		{Capability: CapabilitySMS, Name: "wave", Enabled: true, Priority: 2,
			Settings: map[string]string{"costPerMessage": "8.0"}},
	}

	ledger := NewUsageLedger(store, 16)
	defer ledger.Close()

	err := ledger.OptimizeCosts(context.Background(), CapabilitySMS, catalog, 24*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, 1, catalog.priorities["wave"], "equal success rates fall back to cheapest first")
	assert.Equal(t, 2, catalog.priorities["orange"])
}

func TestUsageLedger_OptimizeCosts_SingleProviderNoOp(t *testing.T) {
	store := &memoryAttemptStore{}
	catalog := &memoryCatalog{}
	catalog.configs = smsConfigs("orange")

	ledger := NewUsageLedger(store, 16)
	defer ledger.Close()

	err := ledger.OptimizeCosts(context.Background(), CapabilitySMS, catalog, time.Hour)
	require.NoError(t, err)
	assert.Empty(t, catalog.priorities)
}
