package store

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/akoun-dev/montoit-sub002/provider"
	"github.com/akoun-dev/montoit-sub002/settlement"
	"github.com/akoun-dev/montoit-sub002/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_ListProviders_OrderAndFiltering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertProvider(ctx, provider.Config{
		Capability: "sms", Name: "mtn", Enabled: true, Priority: 2,
	}))
	require.NoError(t, s.UpsertProvider(ctx, provider.Config{
		Capability: "sms", Name: "orange", Enabled: true, Priority: 1,
		Settings: map[string]string{"clientId": "abc"},
	}))
	require.NoError(t, s.UpsertProvider(ctx, provider.Config{
		Capability: "sms", Name: "wave", Enabled: false, Priority: 0,
	}))
	require.NoError(t, s.UpsertProvider(ctx, provider.Config{
		Capability: "whatsapp", Name: "orange", Enabled: true, Priority: 1,
	}))

	configs, err := s.ListProviders(ctx, "sms")
	require.NoError(t, err)
	require.Len(t, configs, 2, "disabled providers and other capabilities are excluded")
	assert.Equal(t, "orange", configs[0].Name)
	assert.Equal(t, "abc", configs[0].Settings["clientId"])
	assert.Equal(t, "mtn", configs[1].Name)
}

func TestSQLiteStore_ListProviders_TiesBreakOnInsertionOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertProvider(ctx, provider.Config{Capability: "sms", Name: "first", Enabled: true, Priority: 1}))
	require.NoError(t, s.UpsertProvider(ctx, provider.Config{Capability: "sms", Name: "second", Enabled: true, Priority: 1}))

	configs, err := s.ListProviders(ctx, "sms")
	require.NoError(t, err)
	require.Len(t, configs, 2)
	assert.Equal(t, "first", configs[0].Name)
	assert.Equal(t, "second", configs[1].Name)
}

func TestSQLiteStore_UpsertProvider_UpdatesInPlace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertProvider(ctx, provider.Config{Capability: "sms", Name: "orange", Enabled: true, Priority: 1}))
	require.NoError(t, s.UpsertProvider(ctx, provider.Config{Capability: "sms", Name: "orange", Enabled: true, Priority: 5,
		Settings: map[string]string{"costPerMessage": "10"}}))

	configs, err := s.ListProviders(ctx, "sms")
	require.NoError(t, err)
	require.Len(t, configs, 1, "same capability/name pair is one row")
	assert.Equal(t, 5, configs[0].Priority)
	assert.Equal(t, "10", configs[0].Settings["costPerMessage"])
}

func TestSQLiteStore_SetProviderEnabled(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertProvider(ctx, provider.Config{Capability: "sms", Name: "orange", Enabled: true, Priority: 1}))
	require.NoError(t, s.SetProviderEnabled(ctx, "sms", "orange", false))

	configs, err := s.ListProviders(ctx, "sms")
	require.NoError(t, err)
	assert.Empty(t, configs)

	assert.Error(t, s.SetProviderEnabled(ctx, "sms", "ghost", true))
}

func TestSQLiteStore_UpdateProviderPriority(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertProvider(ctx, provider.Config{Capability: "sms", Name: "orange", Enabled: true, Priority: 9}))
	require.NoError(t, s.UpdateProviderPriority(ctx, "sms", "orange", 1))

	configs, err := s.ListProviders(ctx, "sms")
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Equal(t, 1, configs[0].Priority)

	assert.Error(t, s.UpdateProviderPriority(ctx, "sms", "ghost", 1))
}

func TestSQLiteStore_AttemptsAggregate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	insert := func(outcome provider.AttemptOutcome, ts time.Time) {
		require.NoError(t, s.InsertAttempt(ctx, provider.AttemptRecord{
			Capability: "sms", Provider: "orange", Outcome: outcome, LatencyMs: 10, Timestamp: ts,
		}))
	}
	insert(provider.OutcomeSuccess, now)
	insert(provider.OutcomeSuccess, now)
	insert(provider.OutcomeFailure, now)
	insert(provider.OutcomeFailure, now.Add(-48*time.Hour))

	aggs, err := s.AggregateAttempts(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, aggs, 1)
	assert.Equal(t, int64(2), aggs[0].SuccessCount)
	assert.Equal(t, int64(1), aggs[0].FailureCount, "records outside the window are ignored")
}

func TestSQLiteStore_WebhookLogs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		entry := webhook.LogEntry{
			WebhookType:      "orange",
			SourceIP:         "203.0.113.7",
			SignatureValid:   true,
			Payload:          json.RawMessage(fmt.Sprintf(`{"n":%d}`, i)),
			ProcessingResult: webhook.ResultSuccess,
			CreatedAt:        time.Now().UTC(),
		}
		if i == 2 {
			entry.Note = "duplicate delivery: payment already settled"
		}
		require.NoError(t, s.InsertWebhookLog(ctx, entry))
	}

	entries, err := s.RecentWebhookLogs(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, json.RawMessage(`{"n":2}`), entries[0].Payload, "newest first")
	assert.Equal(t, "duplicate delivery: payment already settled", entries[0].Note)
	assert.Equal(t, json.RawMessage(`{"n":1}`), entries[1].Payload)
	assert.Empty(t, entries[1].Note)
}

func TestSQLiteStore_PaymentLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	payment := settlement.PaymentRecord{
		ID:                   "pay-1",
		TransactionReference: "MONTOIT-2026-001",
		Status:               settlement.StatusPending,
		TenantID:             "tenant-1",
		LandlordID:           "landlord-3",
		Amount:               50000,
	}
	require.NoError(t, s.CreatePayment(ctx, payment))

	loaded, err := s.FindPaymentByReference(ctx, "MONTOIT-2026-001")
	require.NoError(t, err)
	assert.Equal(t, "pay-1", loaded.ID)
	assert.Equal(t, settlement.StatusPending, loaded.Status)
	assert.Nil(t, loaded.PaidAt)

	paidAt := time.Now().UTC()
	require.NoError(t, s.UpdatePaymentSettlement(ctx, "pay-1", settlement.StatusCompleted, "OM-777",
		json.RawMessage(`{"status":"SUCCESS"}`), &paidAt))

	loaded, err = s.FindPaymentByReference(ctx, "MONTOIT-2026-001")
	require.NoError(t, err)
	assert.Equal(t, settlement.StatusCompleted, loaded.Status)
	assert.Equal(t, "OM-777", loaded.ProviderTransactionID)
	assert.Equal(t, json.RawMessage(`{"status":"SUCCESS"}`), loaded.RawPayload)
	require.NotNil(t, loaded.PaidAt)
}

func TestSQLiteStore_FindPaymentByReference_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.FindPaymentByReference(context.Background(), "no-such-ref")
	assert.ErrorIs(t, err, settlement.ErrPaymentNotFound)
}

func TestSQLiteStore_UpdatePaymentSettlement_UnknownID(t *testing.T) {
	s := newTestStore(t)

	err := s.UpdatePaymentSettlement(context.Background(), "ghost", settlement.StatusCompleted, "", nil, nil)
	assert.ErrorIs(t, err, settlement.ErrPaymentNotFound)
}

func TestSQLiteStore_DuplicateTransactionReferenceRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	payment := settlement.PaymentRecord{ID: "pay-1", TransactionReference: "REF-1", Status: settlement.StatusPending, Amount: 1000}
	require.NoError(t, s.CreatePayment(ctx, payment))

	payment.ID = "pay-2"
	assert.Error(t, s.CreatePayment(ctx, payment), "transaction_reference is unique")
}

func TestSQLiteStore_TransferLedger(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	exists, err := s.TransferExists(ctx, "pay-1")
	require.NoError(t, err)
	assert.False(t, exists)

	entry := settlement.TransferLedgerEntry{
		PaymentID:  "pay-1",
		LandlordID: "landlord-3",
		Amount:     50000,
		Fees:       3250,
		NetAmount:  46750,
		Provider:   "orange",
		Status:     settlement.TransferStatusPending,
	}
	require.NoError(t, s.InsertTransfer(ctx, entry))

	exists, err = s.TransferExists(ctx, "pay-1")
	require.NoError(t, err)
	assert.True(t, exists)

	err = s.InsertTransfer(ctx, entry)
	assert.ErrorIs(t, err, settlement.ErrDuplicateTransfer)

	loaded, err := s.FindTransferByPaymentID(ctx, "pay-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, 46750.0, loaded.NetAmount)

	missing, err := s.FindTransferByPaymentID(ctx, "pay-2")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
