package mtn

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/akoun-dev/montoit-sub002/provider"
	"github.com/google/uuid"
)

const (
	// API URLs
	apiSandboxURL    = "https://sandbox.momodeveloper.mtn.com"
	apiProductionURL = "https://proxy.momoapi.mtn.com"

	// API Endpoints
	endpointSendSMS = "/messaging/v1/sms/outbound"
)

// Handler sends SMS through the MTN developer messaging API.
type Handler struct {
	httpClient *provider.VendorHTTPClient
}

// NewHandler creates the MTN SMS handler.
func NewHandler() *Handler {
	return &Handler{
		httpClient: provider.NewVendorHTTPClient(&provider.HTTPClientConfig{}),
	}
}

type smsRequest struct {
	SenderAddress    string   `json:"senderAddress"`
	ReceiverAddress  []string `json:"receiverAddress"`
	Message          string   `json:"message"`
	ClientCorrelator string   `json:"clientCorrelator"`
}

type smsResponse struct {
	Status        string `json:"status"`
	TransactionID string `json:"transactionId"`
}

// Send delivers one SMS. Each request carries a fresh correlation id so
// retries at the vendor side can be deduplicated.
func (h *Handler) Send(ctx context.Context, cfg provider.Config, params provider.SendParams) (*provider.SendResult, error) {
	apiUser := cfg.Setting("apiUser", "")
	apiKey := cfg.Setting("apiKey", "")
	subscriptionKey := cfg.Setting("subscriptionKey", "")
	if apiUser == "" || apiKey == "" || subscriptionKey == "" {
		return nil, errors.New("mtn: apiUser, apiKey and subscriptionKey settings are required")
	}

	baseURL := apiSandboxURL
	if cfg.Setting("environment", "sandbox") == "production" {
		baseURL = apiProductionURL
	}

	basic := base64.StdEncoding.EncodeToString([]byte(apiUser + ":" + apiKey))

	req := smsRequest{
		SenderAddress:    cfg.Setting("senderAddress", "MONTOIT"),
		ReceiverAddress:  []string{params.To},
		Message:          params.Message,
		ClientCorrelator: uuid.New().String(),
	}

	resp, err := h.httpClient.SendJSON(ctx, &provider.HTTPRequest{
		Method:   "POST",
		Endpoint: baseURL + endpointSendSMS,
		Headers: map[string]string{
			"Authorization":             "Basic " + basic,
			"Ocp-Apim-Subscription-Key": subscriptionKey,
		},
		Body: req,
	})
	if err != nil {
		return nil, fmt.Errorf("mtn: send failed: %w", err)
	}

	var smsResp smsResponse
	if err := h.httpClient.ParseJSONResponse(resp, &smsResp); err != nil {
		return nil, fmt.Errorf("mtn: failed to parse response: %w", err)
	}

	return &provider.SendResult{
		Provider:  "mtn",
		MessageID: smsResp.TransactionID,
		Raw:       smsResp,
	}, nil
}
