package webhook

import (
	"errors"
	"net/http"

	"github.com/akoun-dev/montoit-sub002/infra/logger"
)

// ErrSignatureRejected is the hard auth failure for a missing or invalid
// webhook signature. It is always logged, never retried by this layer.
var ErrSignatureRejected = errors.New("webhook signature rejected")

// SecretSource resolves the shared HMAC secret for a channel. An empty
// string means no secret is provisioned for that channel.
type SecretSource func(channel string) string

// Verifier authenticates inbound webhook payloads per channel. The
// stripe channel delegates to the Stripe SDK's signature scheme; every
// other channel uses plain HMAC-SHA256 over the raw body.
type Verifier struct {
	secretFor SecretSource
}

// NewVerifier creates a verifier backed by the given secret source.
func NewVerifier(secretFor SecretSource) *Verifier {
	return &Verifier{secretFor: secretFor}
}

// Verify authenticates the raw payload of one inbound webhook call.
//
// When a secret is configured for the channel, a missing signature or a
// failed comparison returns ErrSignatureRejected. When no secret is
// configured, verification is skipped with a warning: a deliberate
// degrade-open policy for environments without secrets provisioned,
// unsafe for production.
func (v *Verifier) Verify(channel string, payload []byte, header http.Header) error {
	secret := v.secretFor(channel)
	if secret == "" {
		logger.Warn("No webhook secret configured, skipping signature verification", logger.LogContext{
			Provider: channel,
		})
		return nil
	}

	if channel == ChannelStripe {
		if err := verifyStripeSignature(payload, header.Get(stripeSignatureHeader), secret); err != nil {
			return ErrSignatureRejected
		}
		return nil
	}

	signature := ExtractSignature(header)
	if signature == "" {
		return ErrSignatureRejected
	}
	if !VerifyHmacSHA256(payload, signature, secret) {
		return ErrSignatureRejected
	}
	return nil
}
