package orange

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/akoun-dev/montoit-sub002/provider"
)

const (
	whatsappBaseURL = "https://graph.facebook.com/v19.0"

	endpointWhatsAppMessages = "/%s/messages" // %s is the phone number id
)

// WhatsAppHandler sends text messages through the WhatsApp Business
// Cloud API using the Orange business account credentials.
type WhatsAppHandler struct {
	httpClient *provider.VendorHTTPClient
}

// NewWhatsAppHandler creates the WhatsApp handler.
func NewWhatsAppHandler() *WhatsAppHandler {
	return &WhatsAppHandler{
		httpClient: provider.NewVendorHTTPClient(&provider.HTTPClientConfig{
			BaseURL: whatsappBaseURL,
		}),
	}
}

type whatsappRequest struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             whatsappText `json:"text"`
}

type whatsappText struct {
	Body string `json:"body"`
}

type whatsappResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// Send delivers one text message to a WhatsApp number.
func (h *WhatsAppHandler) Send(ctx context.Context, cfg provider.Config, params provider.SendParams) (*provider.SendResult, error) {
	accessToken := cfg.Setting("accessToken", "")
	phoneNumberID := cfg.Setting("phoneNumberId", "")
	if accessToken == "" || phoneNumberID == "" {
		return nil, errors.New("orange whatsapp: accessToken and phoneNumberId settings are required")
	}

	req := whatsappRequest{
		MessagingProduct: "whatsapp",
		To:               strings.TrimPrefix(params.To, "+"),
		Type:             "text",
		Text:             whatsappText{Body: params.Message},
	}

	resp, err := h.httpClient.SendJSON(ctx, &provider.HTTPRequest{
		Method:   "POST",
		Endpoint: fmt.Sprintf(endpointWhatsAppMessages, phoneNumberID),
		Headers:  map[string]string{"Authorization": "Bearer " + accessToken},
		Body:     req,
	})
	if err != nil {
		return nil, fmt.Errorf("orange whatsapp: send failed: %w", err)
	}

	var waResp whatsappResponse
	if err := h.httpClient.ParseJSONResponse(resp, &waResp); err != nil {
		return nil, fmt.Errorf("orange whatsapp: failed to parse response: %w", err)
	}

	result := &provider.SendResult{
		Provider: "orange",
		Raw:      waResp,
	}
	if len(waResp.Messages) > 0 {
		result.MessageID = waResp.Messages[0].ID
	}
	return result, nil
}
