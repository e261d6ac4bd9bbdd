package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/akoun-dev/montoit-sub002/infra/logger"
	"github.com/akoun-dev/montoit-sub002/infra/middle"
	"github.com/akoun-dev/montoit-sub002/infra/response"
	"github.com/akoun-dev/montoit-sub002/settlement"
	"github.com/akoun-dev/montoit-sub002/webhook"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// maxWebhookBody caps inbound payloads; gateway callbacks are small.
const maxWebhookBody = 1 << 20

// WebhookHandler receives payment gateway callbacks, authenticates them
// and feeds them to the settlement state machine. Every call writes
// exactly one audit entry, rejections included.
type WebhookHandler struct {
	verifier   *webhook.Verifier
	settlement *settlement.Service
	audit      *webhook.AuditLog
}

// NewWebhookHandler creates a webhook handler.
func NewWebhookHandler(verifier *webhook.Verifier, settlementService *settlement.Service, audit *webhook.AuditLog) *WebhookHandler {
	return &WebhookHandler{
		verifier:   verifier,
		settlement: settlementService,
		audit:      audit,
	}
}

// HandlePaymentWebhook processes POST /v1/webhooks/payments/{provider}.
//
// Responses are keyed for the sender's retry logic: 200 with status
// "accepted" or "duplicate" means stop retrying, 401 means the
// signature failed, 400 means the payload will never parse, 404 means
// the reference is unknown here, 500 invites a retry.
func (h *WebhookHandler) HandlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	providerName := chi.URLParam(r, "provider")
	sourceIP := middle.GetClientIP(r)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "Failed to read request body", err)
		return
	}

	signature := webhook.ExtractSignature(r.Header)
	if providerName == webhook.ChannelStripe {
		signature = r.Header.Get("Stripe-Signature")
	}

	entry := webhook.LogEntry{
		WebhookType:       providerName,
		SourceIP:          sourceIP,
		SignatureProvided: signature,
		Payload:           body,
	}

	if err := h.verifier.Verify(providerName, body, r.Header); err != nil {
		entry.ProcessingResult = webhook.ResultRejected
		entry.ErrorMessage = err.Error()
		h.audit.Record(entry)

		logger.Warn("Webhook signature rejected", logger.LogContext{
			Provider:  providerName,
			RequestID: middleware.GetReqID(r.Context()),
			Fields:    map[string]any{"source_ip": sourceIP},
		})
		response.Error(w, http.StatusUnauthorized, "Invalid webhook signature", err)
		return
	}
	entry.SignatureValid = true

	result, err := h.settlement.ApplyWebhook(r.Context(), providerName, body)
	if err != nil {
		entry.ProcessingResult = webhook.ResultFailed
		entry.ErrorMessage = err.Error()
		h.audit.Record(entry)

		switch {
		case errors.Is(err, settlement.ErrMalformedPayload):
			response.Error(w, http.StatusBadRequest, "Malformed webhook payload", err)
		case errors.Is(err, settlement.ErrPaymentNotFound):
			response.Error(w, http.StatusNotFound, "Unknown transaction reference", err)
		default:
			logger.Error("Webhook processing failed", err, logger.LogContext{
				Provider:  providerName,
				RequestID: middleware.GetReqID(r.Context()),
			})
			response.Error(w, http.StatusInternalServerError, "Failed to process webhook", err)
		}
		return
	}

	entry.ProcessingResult = webhook.ResultSuccess
	if result.Outcome == settlement.OutcomeDuplicate {
		// Replays succeed without side effects; the audit trail has to
		// show they were replays.
		entry.Note = "duplicate delivery: payment already settled"
	}
	h.audit.Record(entry)

	switch result.Outcome {
	case settlement.OutcomeDuplicate:
		response.Status(w, http.StatusOK, "duplicate", "Webhook already processed", result)
	default:
		response.Status(w, http.StatusOK, "accepted", "Webhook processed", result)
	}
}
