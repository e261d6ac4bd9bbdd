package webhook

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func secretMap(m map[string]string) SecretSource {
	return func(channel string) string { return m[channel] }
}

func TestVerifier_ValidSignature(t *testing.T) {
	v := NewVerifier(secretMap(map[string]string{"orange": "s3cret"}))
	payload := []byte(`{"transactionId":"tx-1"}`)

	h := http.Header{}
	h.Set("X-Signature", Sign(payload, "s3cret"))

	assert.NoError(t, v.Verify("orange", payload, h))
}

func TestVerifier_InvalidSignature(t *testing.T) {
	v := NewVerifier(secretMap(map[string]string{"orange": "s3cret"}))
	payload := []byte(`{"transactionId":"tx-1"}`)

	h := http.Header{}
	h.Set("X-Signature", Sign(payload, "wrong-secret"))

	assert.ErrorIs(t, v.Verify("orange", payload, h), ErrSignatureRejected)
}

func TestVerifier_MissingSignatureWithSecretConfigured(t *testing.T) {
	v := NewVerifier(secretMap(map[string]string{"orange": "s3cret"}))

	err := v.Verify("orange", []byte(`{}`), http.Header{})
	assert.ErrorIs(t, err, ErrSignatureRejected)
}

func TestVerifier_NoSecretDegradesOpen(t *testing.T) {
	v := NewVerifier(secretMap(map[string]string{}))

	assert.NoError(t, v.Verify("orange", []byte(`{}`), http.Header{}))
}

func TestVerifier_StripeChannelRejectsPlainHmac(t *testing.T) {
	v := NewVerifier(secretMap(map[string]string{ChannelStripe: "whsec_test"}))
	payload := []byte(`{"id":"evt_1"}`)

	// A plain HMAC header is not a valid Stripe signature scheme.
	h := http.Header{}
	h.Set("X-Signature", Sign(payload, "whsec_test"))

	assert.ErrorIs(t, v.Verify(ChannelStripe, payload, h), ErrSignatureRejected)
}
