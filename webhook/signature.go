package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

// signatureHeaders is the fixed priority list of header names a channel
// may advertise its signature under. The first present header wins.
var signatureHeaders = []string{
	"X-Signature",
	"X-Hub-Signature-256",
	"X-Callback-Signature",
	"X-Payment-Signature",
}

// ExtractSignature scans the conventional signature headers in priority
// order and returns the first value found, or an empty string.
func ExtractSignature(h http.Header) string {
	for _, name := range signatureHeaders {
		if v := h.Get(name); v != "" {
			return v
		}
	}
	return ""
}

// VerifyHmacSHA256 checks an inbound payload signature: HMAC-SHA256 of
// the exact raw body with the shared secret, rendered as lowercase hex.
// An optional "sha256=" prefix on the supplied signature is stripped.
// The comparison is constant time.
func VerifyHmacSHA256(payload []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	provided := strings.TrimPrefix(signature, "sha256=")
	return constantTimeEqual(expected, provided)
}

// constantTimeEqual compares two strings without an early exit, so the
// time taken does not depend on where the first differing byte sits.
// When lengths differ it still iterates the full expected length using
// modulo indexing into the other operand before returning false; the
// residual length leak is accepted (the expected operand is always a
// fixed-width hex digest).
func constantTimeEqual(a, b string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}

	var diff byte
	if len(a) != len(b) {
		diff = 1
	}
	for i := 0; i < len(a); i++ {
		diff |= a[i] ^ b[i%len(b)]
	}
	return diff == 0
}

// Sign computes the lowercase hex HMAC-SHA256 signature for a payload.
// Used by tests and by the sandbox webhook simulator.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
