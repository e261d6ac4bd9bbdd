package orange

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/akoun-dev/montoit-sub002/provider"
)

const (
	// API URLs
	apiBaseURL = "https://api.orange.com"

	// API Endpoints
	endpointToken = "/oauth/v3/token"
	endpointSMS   = "/smsmessaging/v1/outbound/%s/requests" // %s is the url-encoded sender address

	// Tokens are valid for one hour; refresh a little early so an
	// in-flight send never carries an expired token.
	tokenSafetyMargin = 60 * time.Second
)

// SMSHandler sends SMS through the Orange Developer SMS API. The access
// token obtained via client credentials is cached until close to expiry
// and shared between capabilities.
type SMSHandler struct {
	httpClient *provider.VendorHTTPClient

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewSMSHandler creates the Orange SMS handler.
func NewSMSHandler() *SMSHandler {
	return &SMSHandler{
		httpClient: provider.NewVendorHTTPClient(&provider.HTTPClientConfig{
			BaseURL: apiBaseURL,
		}),
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type smsRequest struct {
	OutboundSMSMessageRequest outboundSMSMessageRequest `json:"outboundSMSMessageRequest"`
}

type outboundSMSMessageRequest struct {
	Address                []string           `json:"address"`
	SenderAddress          string             `json:"senderAddress"`
	SenderName             string             `json:"senderName,omitempty"`
	OutboundSMSTextMessage outboundSMSMessage `json:"outboundSMSTextMessage"`
}

type outboundSMSMessage struct {
	Message string `json:"message"`
}

type smsResponse struct {
	OutboundSMSMessageRequest struct {
		ResourceURL string `json:"resourceURL"`
	} `json:"outboundSMSMessageRequest"`
}

// Send delivers one SMS. Credentials and the sender address come from
// the catalog settings on every call.
func (h *SMSHandler) Send(ctx context.Context, cfg provider.Config, params provider.SendParams) (*provider.SendResult, error) {
	clientID := cfg.Setting("clientId", "")
	clientSecret := cfg.Setting("clientSecret", "")
	if clientID == "" || clientSecret == "" {
		return nil, errors.New("orange: clientId and clientSecret settings are required")
	}

	sender := cfg.Setting("senderAddress", "tel:+2250000")

	token, err := h.accessTokenFor(ctx, clientID, clientSecret)
	if err != nil {
		return nil, fmt.Errorf("orange: token request failed: %w", err)
	}

	req := smsRequest{
		OutboundSMSMessageRequest: outboundSMSMessageRequest{
			Address:                []string{"tel:" + params.To},
			SenderAddress:          sender,
			SenderName:             cfg.Setting("senderName", ""),
			OutboundSMSTextMessage: outboundSMSMessage{Message: params.Message},
		},
	}

	resp, err := h.httpClient.SendJSON(ctx, &provider.HTTPRequest{
		Method:   "POST",
		Endpoint: fmt.Sprintf(endpointSMS, url.PathEscape(sender)),
		Headers:  map[string]string{"Authorization": "Bearer " + token},
		Body:     req,
	})
	if err != nil {
		return nil, fmt.Errorf("orange: send failed: %w", err)
	}

	var smsResp smsResponse
	if err := h.httpClient.ParseJSONResponse(resp, &smsResp); err != nil {
		return nil, fmt.Errorf("orange: failed to parse response: %w", err)
	}

	return &provider.SendResult{
		Provider:  "orange",
		MessageID: messageIDFromResource(smsResp.OutboundSMSMessageRequest.ResourceURL),
		Raw:       smsResp,
	}, nil
}

// accessTokenFor returns a cached token or fetches a fresh one.
func (h *SMSHandler) accessTokenFor(ctx context.Context, clientID, clientSecret string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.accessToken != "" && time.Now().Before(h.tokenExpiry) {
		return h.accessToken, nil
	}

	basic := base64.StdEncoding.EncodeToString([]byte(clientID + ":" + clientSecret))
	resp, err := h.httpClient.SendForm(ctx, &provider.HTTPRequest{
		Method:   "POST",
		Endpoint: endpointToken,
		Headers:  map[string]string{"Authorization": "Basic " + basic},
		FormData: map[string]string{"grant_type": "client_credentials"},
	})
	if err != nil {
		return "", err
	}

	var token tokenResponse
	if err := h.httpClient.ParseJSONResponse(resp, &token); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}
	if token.AccessToken == "" {
		return "", errors.New("empty access token in response")
	}

	h.accessToken = token.AccessToken
	h.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn)*time.Second - tokenSafetyMargin)
	return h.accessToken, nil
}

// messageIDFromResource extracts the trailing id of the resource URL the
// API returns for a queued message.
func messageIDFromResource(resourceURL string) string {
	if resourceURL == "" {
		return ""
	}
	parts := strings.Split(strings.TrimSuffix(resourceURL, "/"), "/")
	return parts[len(parts)-1]
}
