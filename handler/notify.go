package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/akoun-dev/montoit-sub002/infra/response"
	"github.com/akoun-dev/montoit-sub002/provider"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// NotifyHandler exposes the outbound failover executor over HTTP for the
// other marketplace services (lease reminders, visit confirmations).
type NotifyHandler struct {
	executor *provider.Executor
	validate *validator.Validate
}

// NewNotifyHandler creates a notify handler.
func NewNotifyHandler(executor *provider.Executor, validate *validator.Validate) *NotifyHandler {
	return &NotifyHandler{
		executor: executor,
		validate: validate,
	}
}

// SendNotification processes POST /v1/notify/{capability}. A 502 means
// every configured provider was tried and failed; a 500 with the
// configuration message means nothing was configured to try.
func (h *NotifyHandler) SendNotification(w http.ResponseWriter, r *http.Request) {
	capability := chi.URLParam(r, "capability")

	var params provider.SendParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := h.validate.Struct(params); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid notification request", err)
		return
	}

	result, err := h.executor.ExecuteWithFallback(r.Context(), capability, params)
	if err != nil {
		var aggErr *provider.AggregateError
		switch {
		case errors.As(err, &aggErr):
			response.Error(w, http.StatusBadGateway, "All providers failed", err)
		case errors.Is(err, provider.ErrNoProvidersConfigured):
			response.Error(w, http.StatusInternalServerError, "No providers configured", err)
		default:
			response.Error(w, http.StatusInternalServerError, "Failed to send notification", err)
		}
		return
	}

	response.Success(w, http.StatusOK, "Notification sent", result)
}
