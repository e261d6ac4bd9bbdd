package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/akoun-dev/montoit-sub002/infra/response"
	"github.com/akoun-dev/montoit-sub002/infra/store"
	"github.com/akoun-dev/montoit-sub002/provider"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// ProvidersHandler is the admin surface over the provider catalog and
// the usage ledger. It lets operators act on health alerts without a
// redeploy: disable a sick provider, bump priorities, trigger a
// cost-based re-rank.
type ProvidersHandler struct {
	store    store.Store
	ledger   *provider.UsageLedger
	validate *validator.Validate
}

// NewProvidersHandler creates a providers admin handler.
func NewProvidersHandler(st store.Store, ledger *provider.UsageLedger, validate *validator.Validate) *ProvidersHandler {
	return &ProvidersHandler{
		store:    st,
		ledger:   ledger,
		validate: validate,
	}
}

// ListProviders processes GET /v1/admin/providers/{capability}.
func (h *ProvidersHandler) ListProviders(w http.ResponseWriter, r *http.Request) {
	capability := chi.URLParam(r, "capability")

	configs, err := h.store.ListProviders(r.Context(), capability)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to list providers", err)
		return
	}

	response.Success(w, http.StatusOK, "Providers retrieved", map[string]any{
		"capability": capability,
		"providers":  configs,
	})
}

// UpsertProvider processes PUT /v1/admin/providers.
func (h *ProvidersHandler) UpsertProvider(w http.ResponseWriter, r *http.Request) {
	var cfg provider.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if cfg.Capability == "" || cfg.Name == "" {
		response.Error(w, http.StatusBadRequest, "capability and name are required", nil)
		return
	}

	if err := h.store.UpsertProvider(r.Context(), cfg); err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to save provider", err)
		return
	}

	response.Success(w, http.StatusOK, "Provider saved", cfg)
}

// SetEnabledRequest is the body of the enable/disable endpoint.
type SetEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

// SetProviderEnabled processes PATCH /v1/admin/providers/{capability}/{name}/enabled.
func (h *ProvidersHandler) SetProviderEnabled(w http.ResponseWriter, r *http.Request) {
	capability := chi.URLParam(r, "capability")
	name := chi.URLParam(r, "name")

	var req SetEnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	if err := h.store.SetProviderEnabled(r.Context(), capability, name, req.Enabled); err != nil {
		response.Error(w, http.StatusNotFound, "Provider not found", err)
		return
	}

	response.Success(w, http.StatusOK, "Provider updated", map[string]any{
		"capability": capability,
		"name":       name,
		"enabled":    req.Enabled,
	})
}

// SetPriorityRequest is the body of the priority endpoint.
type SetPriorityRequest struct {
	Priority int `json:"priority" validate:"required,min=1"`
}

// SetProviderPriority processes PATCH /v1/admin/providers/{capability}/{name}/priority.
func (h *ProvidersHandler) SetProviderPriority(w http.ResponseWriter, r *http.Request) {
	capability := chi.URLParam(r, "capability")
	name := chi.URLParam(r, "name")

	var req SetPriorityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "priority must be a positive integer", err)
		return
	}

	if err := h.store.UpdateProviderPriority(r.Context(), capability, name, req.Priority); err != nil {
		response.Error(w, http.StatusNotFound, "Provider not found", err)
		return
	}

	response.Success(w, http.StatusOK, "Provider priority updated", map[string]any{
		"capability": capability,
		"name":       name,
		"priority":   req.Priority,
	})
}

// FailingProviders processes GET /v1/admin/health/failing. Threshold is
// a percentage (default 80), window a Go duration (default 24h).
func (h *ProvidersHandler) FailingProviders(w http.ResponseWriter, r *http.Request) {
	threshold := 80.0
	if v := r.URL.Query().Get("threshold"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "Invalid threshold", err)
			return
		}
		threshold = parsed
	}

	window := 24 * time.Hour
	if v := r.URL.Query().Get("window"); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "Invalid window", err)
			return
		}
		window = parsed
	}

	failing, err := h.ledger.GetFailingProviders(r.Context(), threshold, window)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to compute provider health", err)
		return
	}

	response.Success(w, http.StatusOK, "Provider health computed", map[string]any{
		"threshold": threshold,
		"window":    window.String(),
		"failing":   failing,
	})
}

// OptimizeCosts processes POST /v1/admin/providers/{capability}/optimize-costs.
func (h *ProvidersHandler) OptimizeCosts(w http.ResponseWriter, r *http.Request) {
	capability := chi.URLParam(r, "capability")

	window := 7 * 24 * time.Hour
	if v := r.URL.Query().Get("window"); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "Invalid window", err)
			return
		}
		window = parsed
	}

	if err := h.ledger.OptimizeCosts(r.Context(), capability, h.store, window); err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to optimize provider costs", err)
		return
	}

	configs, err := h.store.ListProviders(r.Context(), capability)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to list providers", err)
		return
	}

	response.Success(w, http.StatusOK, "Provider priorities re-ranked", map[string]any{
		"capability": capability,
		"providers":  configs,
	})
}

// RecentWebhookLogs processes GET /v1/admin/webhook-logs.
func (h *ProvidersHandler) RecentWebhookLogs(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = parsed
	}

	entries, err := h.store.RecentWebhookLogs(r.Context(), limit)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to load webhook logs", err)
		return
	}

	response.Success(w, http.StatusOK, "Webhook logs retrieved", map[string]any{
		"count": len(entries),
		"logs":  entries,
	})
}
