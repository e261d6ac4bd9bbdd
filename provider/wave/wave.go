package wave

import (
	"context"
	"errors"
	"fmt"

	"github.com/akoun-dev/montoit-sub002/provider"
	"github.com/google/uuid"
)

const (
	// API URLs
	apiBaseURL = "https://api.wave.com"

	// API Endpoints
	endpointNotifications = "/v1/notifications/sms"
)

// Handler sends transactional SMS through the Wave business API. Wave
// is the cheapest route in the Ivorian market, which is why cost
// optimization tends to rank it first when its success rate holds.
type Handler struct {
	httpClient *provider.VendorHTTPClient
}

// NewHandler creates the Wave handler.
func NewHandler() *Handler {
	return &Handler{
		httpClient: provider.NewVendorHTTPClient(&provider.HTTPClientConfig{
			BaseURL: apiBaseURL,
		}),
	}
}

type notificationRequest struct {
	Recipient      string `json:"recipient"`
	Body           string `json:"body"`
	IdempotencyKey string `json:"idempotency_key"`
}

type notificationResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Send delivers one SMS notification.
func (h *Handler) Send(ctx context.Context, cfg provider.Config, params provider.SendParams) (*provider.SendResult, error) {
	apiKey := cfg.Setting("apiKey", "")
	if apiKey == "" {
		return nil, errors.New("wave: apiKey setting is required")
	}

	req := notificationRequest{
		Recipient:      params.To,
		Body:           params.Message,
		IdempotencyKey: uuid.New().String(),
	}

	resp, err := h.httpClient.SendJSON(ctx, &provider.HTTPRequest{
		Method:   "POST",
		Endpoint: endpointNotifications,
		Headers:  map[string]string{"Authorization": "Bearer " + apiKey},
		Body:     req,
	})
	if err != nil {
		return nil, fmt.Errorf("wave: send failed: %w", err)
	}

	var waveResp notificationResponse
	if err := h.httpClient.ParseJSONResponse(resp, &waveResp); err != nil {
		return nil, fmt.Errorf("wave: failed to parse response: %w", err)
	}

	return &provider.SendResult{
		Provider:  "wave",
		MessageID: waveResp.ID,
		Raw:       waveResp,
	}, nil
}
