package provider

import (
	"context"
	"time"
)

// Capability names a class of outbound action that interchangeable
// vendors can fulfil. Provider ordering is configured per capability.
const (
	CapabilitySMS           = "sms"
	CapabilityWhatsApp      = "whatsapp"
	CapabilityPaymentNotify = "payment-sms-notify"
)

// Config is one vendor entry in the provider catalog. Lower Priority is
// tried first; ties are broken by catalog insertion order (ID).
type Config struct {
	ID         int64             `json:"id,omitempty"`
	Capability string            `json:"capability"`
	Name       string            `json:"name"`
	Enabled    bool              `json:"enabled"`
	Priority   int               `json:"priority"`
	Settings   map[string]string `json:"settings,omitempty"`
	UpdatedAt  time.Time         `json:"updatedAt,omitempty"`
}

// Setting returns a settings value or a default when the key is absent.
func (c Config) Setting(key, defaultValue string) string {
	if v, ok := c.Settings[key]; ok && v != "" {
		return v
	}
	return defaultValue
}

// SendParams carries one outbound message through the failover chain.
// The same shape is used for SMS, WhatsApp and payment notifications.
type SendParams struct {
	To       string            `json:"to" validate:"required"`
	Message  string            `json:"message" validate:"required"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// SendResult is the common result shape every vendor handler must
// translate its response into.
type SendResult struct {
	Provider  string `json:"provider"`
	MessageID string `json:"messageId,omitempty"`
	Raw       any    `json:"raw,omitempty"`
}

// Handler is implemented once per vendor. Each implementation knows how
// to talk to exactly one external service; it receives the catalog
// settings for its entry on every call so operators can rotate
// credentials without a restart.
type Handler interface {
	Send(ctx context.Context, cfg Config, params SendParams) (*SendResult, error)
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, cfg Config, params SendParams) (*SendResult, error)

func (f HandlerFunc) Send(ctx context.Context, cfg Config, params SendParams) (*SendResult, error) {
	return f(ctx, cfg, params)
}

// Catalog supplies the ordered provider configurations for a capability.
// Implementations must return only enabled entries, sorted ascending by
// priority, and must re-read persisted state on every call so a provider
// can be disabled without a restart.
type Catalog interface {
	ListProviders(ctx context.Context, capability string) ([]Config, error)
}

// CatalogWriter extends Catalog with the mutations used by the admin
// surface and by cost optimization.
type CatalogWriter interface {
	Catalog
	UpsertProvider(ctx context.Context, cfg Config) error
	SetProviderEnabled(ctx context.Context, capability, name string, enabled bool) error
	UpdateProviderPriority(ctx context.Context, capability, name string, priority int) error
}
