package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/akoun-dev/montoit-sub002/infra/config"
	"github.com/akoun-dev/montoit-sub002/infra/response"
	"github.com/akoun-dev/montoit-sub002/infra/store"
	"github.com/akoun-dev/montoit-sub002/infra/validate"
	"github.com/akoun-dev/montoit-sub002/provider"
	"github.com/akoun-dev/montoit-sub002/settlement"
	"github.com/akoun-dev/montoit-sub002/webhook"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubNotifier struct {
	sent int
}

func (n *stubNotifier) ExecuteWithFallback(ctx context.Context, capability string, params provider.SendParams) (*provider.SendResult, error) {
	n.sent++
	return &provider.SendResult{Provider: "orange"}, nil
}

type webhookFixture struct {
	router   *chi.Mux
	store    *store.SQLiteStore
	audit    *webhook.AuditLog
	notifier *stubNotifier
	secrets  map[string]string
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	validate.CustomValidate()

	st, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	f := &webhookFixture{
		store:    st,
		notifier: &stubNotifier{},
		secrets:  map[string]string{"orange": "orange-secret"},
	}

	verifier := webhook.NewVerifier(func(channel string) string { return f.secrets[channel] })
	f.audit = webhook.NewAuditLog(st, 64)
	t.Cleanup(f.audit.Close)

	svc := settlement.NewService(st, f.notifier, config.App().Validator)
	h := NewWebhookHandler(verifier, svc, f.audit)

	f.router = chi.NewRouter()
	f.router.Post("/v1/webhooks/payments/{provider}", h.HandlePaymentWebhook)
	return f
}

func (f *webhookFixture) createPayment(t *testing.T, reference string) {
	t.Helper()
	require.NoError(t, f.store.CreatePayment(context.Background(), settlement.PaymentRecord{
		ID:                   "pay-" + reference,
		TransactionReference: reference,
		Status:               settlement.StatusPending,
		TenantPhone:          "+2250701020304",
		LandlordPhone:        "+2250705060708",
		LandlordID:           "landlord-1",
		Amount:               50000,
	}))
}

func (f *webhookFixture) post(channel string, body []byte, sign bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/payments/"+channel, bytes.NewReader(body))
	if sign {
		req.Header.Set("X-Signature", webhook.Sign(body, f.secrets[channel]))
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func orangeCallback(reference, status string) []byte {
	return []byte(fmt.Sprintf(
		`{"transactionId":"OM-1","partnerTransactionId":%q,"status":%q,"amount":50000,"phoneNumber":"+2250701020304"}`,
		reference, status))
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var resp response.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func (f *webhookFixture) auditEntries(t *testing.T) []webhook.LogEntry {
	t.Helper()
	f.audit.Close()
	entries, err := f.store.RecentWebhookLogs(context.Background(), 50)
	require.NoError(t, err)
	return entries
}

func TestWebhookEndpoint_AcceptedSettlement(t *testing.T) {
	f := newWebhookFixture(t)
	f.createPayment(t, "REF-1")

	rec := f.post("orange", orangeCallback("REF-1", "SUCCESS"), true)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, "accepted", resp.Status)

	payment, err := f.store.FindPaymentByReference(context.Background(), "REF-1")
	require.NoError(t, err)
	assert.Equal(t, settlement.StatusCompleted, payment.Status)

	transfer, err := f.store.FindTransferByPaymentID(context.Background(), "pay-REF-1")
	require.NoError(t, err)
	require.NotNil(t, transfer)
	assert.Equal(t, 3250.0, transfer.Fees)
	assert.Equal(t, 2, f.notifier.sent)

	entries := f.auditEntries(t)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].SignatureValid)
	assert.Equal(t, webhook.ResultSuccess, entries[0].ProcessingResult)
}

func TestWebhookEndpoint_DuplicateDelivery(t *testing.T) {
	f := newWebhookFixture(t)
	f.createPayment(t, "REF-1")

	first := f.post("orange", orangeCallback("REF-1", "SUCCESS"), true)
	require.Equal(t, http.StatusOK, first.Code)

	second := f.post("orange", orangeCallback("REF-1", "SUCCESS"), true)
	require.Equal(t, http.StatusOK, second.Code)
	resp := decodeResponse(t, second)
	assert.Equal(t, "duplicate", resp.Status)

	assert.Equal(t, 2, f.notifier.sent, "replay sends no extra notifications")

	entries := f.auditEntries(t)
	require.Len(t, entries, 2, "every delivery gets its own audit entry")

	// Entries come back newest first: the replay is entries[0] and must
	// be distinguishable from the first-time acceptance.
	assert.Equal(t, webhook.ResultSuccess, entries[0].ProcessingResult)
	assert.Contains(t, entries[0].Note, "duplicate", "replay entry carries the duplicate marker")
	assert.Empty(t, entries[1].Note, "first delivery carries no duplicate marker")
}

func TestWebhookEndpoint_InvalidSignature(t *testing.T) {
	f := newWebhookFixture(t)
	f.createPayment(t, "REF-1")

	body := orangeCallback("REF-1", "SUCCESS")
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/payments/orange", bytes.NewReader(body))
	req.Header.Set("X-Signature", "deadbeef")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	resp := decodeResponse(t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, "rejected", resp.Status)

	payment, err := f.store.FindPaymentByReference(context.Background(), "REF-1")
	require.NoError(t, err)
	assert.Equal(t, settlement.StatusPending, payment.Status, "rejected webhook must not settle")
	assert.Equal(t, 0, f.notifier.sent)

	entries := f.auditEntries(t)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].SignatureValid)
	assert.Equal(t, webhook.ResultRejected, entries[0].ProcessingResult)
}

func TestWebhookEndpoint_MissingSignature(t *testing.T) {
	f := newWebhookFixture(t)
	f.createPayment(t, "REF-1")

	rec := f.post("orange", orangeCallback("REF-1", "SUCCESS"), false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhookEndpoint_NoSecretDegradesOpen(t *testing.T) {
	f := newWebhookFixture(t)
	f.createPayment(t, "REF-1")

	// mtn has no secret provisioned in this fixture.
	rec := f.post("mtn", []byte(`{"transactionId":"MM-1","partnerTransactionId":"REF-1","status":"SUCCESSFUL","amount":50000,"phoneNumber":"+2250701020304"}`), false)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Equal(t, "accepted", resp.Status)
}

func TestWebhookEndpoint_MalformedPayload(t *testing.T) {
	f := newWebhookFixture(t)

	body := []byte(`{"not":"a callback"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/payments/orange", bytes.NewReader(body))
	req.Header.Set("X-Signature", webhook.Sign(body, "orange-secret"))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	entries := f.auditEntries(t)
	require.Len(t, entries, 1)
	assert.Equal(t, webhook.ResultFailed, entries[0].ProcessingResult)
}

func TestWebhookEndpoint_UnknownReference(t *testing.T) {
	f := newWebhookFixture(t)

	rec := f.post("orange", orangeCallback("NO-SUCH-REF", "SUCCESS"), true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
