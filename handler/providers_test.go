package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/akoun-dev/montoit-sub002/infra/config"
	"github.com/akoun-dev/montoit-sub002/infra/store"
	"github.com/akoun-dev/montoit-sub002/provider"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAdminFixture(t *testing.T) (*chi.Mux, *store.SQLiteStore) {
	t.Helper()

	st, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ledger := provider.NewUsageLedger(st, 64)
	t.Cleanup(ledger.Close)

	ph := NewProvidersHandler(st, ledger, config.App().Validator)

	r := chi.NewRouter()
	r.Get("/v1/admin/providers/{capability}", ph.ListProviders)
	r.Put("/v1/admin/providers", ph.UpsertProvider)
	r.Patch("/v1/admin/providers/{capability}/{name}/enabled", ph.SetProviderEnabled)
	r.Patch("/v1/admin/providers/{capability}/{name}/priority", ph.SetProviderPriority)
	r.Post("/v1/admin/providers/{capability}/optimize-costs", ph.OptimizeCosts)
	r.Get("/v1/admin/health/failing", ph.FailingProviders)
	r.Get("/v1/admin/webhook-logs", ph.RecentWebhookLogs)
	return r, st
}

func do(r *chi.Mux, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestAdmin_UpsertAndList(t *testing.T) {
	r, _ := newAdminFixture(t)

	rec := do(r, http.MethodPut, "/v1/admin/providers",
		`{"capability":"sms","name":"orange","enabled":true,"priority":1,"settings":{"costPerMessage":"12"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(r, http.MethodGet, "/v1/admin/providers/sms", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"orange"`)
}

func TestAdmin_UpsertRequiresIdentity(t *testing.T) {
	r, _ := newAdminFixture(t)

	rec := do(r, http.MethodPut, "/v1/admin/providers", `{"enabled":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdmin_EnableDisable(t *testing.T) {
	r, st := newAdminFixture(t)
	require.NoError(t, st.UpsertProvider(context.Background(),
		provider.Config{Capability: "sms", Name: "orange", Enabled: true, Priority: 1}))

	rec := do(r, http.MethodPatch, "/v1/admin/providers/sms/orange/enabled", `{"enabled":false}`)
	require.Equal(t, http.StatusOK, rec.Code)

	configs, err := st.ListProviders(context.Background(), "sms")
	require.NoError(t, err)
	assert.Empty(t, configs)

	rec = do(r, http.MethodPatch, "/v1/admin/providers/sms/ghost/enabled", `{"enabled":true}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdmin_SetPriority(t *testing.T) {
	r, st := newAdminFixture(t)
	require.NoError(t, st.UpsertProvider(context.Background(),
		provider.Config{Capability: "sms", Name: "orange", Enabled: true, Priority: 9}))

	rec := do(r, http.MethodPatch, "/v1/admin/providers/sms/orange/priority", `{"priority":1}`)
	require.Equal(t, http.StatusOK, rec.Code)

	configs, err := st.ListProviders(context.Background(), "sms")
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Equal(t, 1, configs[0].Priority)

	rec = do(r, http.MethodPatch, "/v1/admin/providers/sms/orange/priority", `{"priority":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdmin_FailingProviders(t *testing.T) {
	r, st := newAdminFixture(t)

	now := time.Now().UTC()
	for i := 0; i < 8; i++ {
		require.NoError(t, st.InsertAttempt(context.Background(), provider.AttemptRecord{
			Capability: "sms", Provider: "orange", Outcome: provider.OutcomeFailure, Timestamp: now,
		}))
	}
	for i := 0; i < 2; i++ {
		require.NoError(t, st.InsertAttempt(context.Background(), provider.AttemptRecord{
			Capability: "sms", Provider: "orange", Outcome: provider.OutcomeSuccess, Timestamp: now,
		}))
	}

	rec := do(r, http.MethodGet, "/v1/admin/health/failing?threshold=80&window=1h", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"orange"`)

	rec = do(r, http.MethodGet, "/v1/admin/health/failing?window=bogus", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdmin_OptimizeCosts(t *testing.T) {
	r, st := newAdminFixture(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertProvider(ctx, provider.Config{Capability: "sms", Name: "orange", Enabled: true, Priority: 1}))
	require.NoError(t, st.UpsertProvider(ctx, provider.Config{Capability: "sms", Name: "mtn", Enabled: true, Priority: 2}))

	now := time.Now().UTC()
	require.NoError(t, st.InsertAttempt(ctx, provider.AttemptRecord{Capability: "sms", Provider: "orange", Outcome: provider.OutcomeFailure, Timestamp: now}))
	require.NoError(t, st.InsertAttempt(ctx, provider.AttemptRecord{Capability: "sms", Provider: "mtn", Outcome: provider.OutcomeSuccess, Timestamp: now}))

	rec := do(r, http.MethodPost, "/v1/admin/providers/sms/optimize-costs?window=24h", "")
	require.Equal(t, http.StatusOK, rec.Code)

	configs, err := st.ListProviders(ctx, "sms")
	require.NoError(t, err)
	require.Len(t, configs, 2)
	assert.Equal(t, "mtn", configs[0].Name, "healthier provider moves to the front")
}
