package webhook

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifyHmacSHA256_ValidSignature(t *testing.T) {
	payload := []byte(`{"transactionId":"tx-1","status":"SUCCESS"}`)
	secret := "test-secret"

	assert.True(t, VerifyHmacSHA256(payload, Sign(payload, secret), secret))
}

func TestVerifyHmacSHA256_AcceptsSha256Prefix(t *testing.T) {
	payload := []byte(`{"transactionId":"tx-1"}`)
	secret := "test-secret"

	assert.True(t, VerifyHmacSHA256(payload, "sha256="+Sign(payload, secret), secret))
}

func TestVerifyHmacSHA256_RejectsTamperedPayload(t *testing.T) {
	payload := []byte(`{"amount":50000}`)
	secret := "test-secret"
	signature := Sign(payload, secret)

	tampered := []byte(`{"amount":99999}`)
	assert.False(t, VerifyHmacSHA256(tampered, signature, secret))
}

func TestVerifyHmacSHA256_RejectsFlippedSignatureByte(t *testing.T) {
	payload := []byte(`{"transactionId":"tx-1"}`)
	secret := "test-secret"
	signature := []byte(Sign(payload, secret))

	if signature[0] == 'a' {
		signature[0] = 'b'
	} else {
		signature[0] = 'a'
	}
	assert.False(t, VerifyHmacSHA256(payload, string(signature), secret))
}

func TestVerifyHmacSHA256_RejectsWrongSecret(t *testing.T) {
	payload := []byte(`{"transactionId":"tx-1"}`)

	assert.False(t, VerifyHmacSHA256(payload, Sign(payload, "secret-a"), "secret-b"))
}

func TestVerifyHmacSHA256_RejectsEmptyInputs(t *testing.T) {
	payload := []byte(`{}`)

	assert.False(t, VerifyHmacSHA256(payload, "", "secret"))
	assert.False(t, VerifyHmacSHA256(payload, Sign(payload, "secret"), ""))
}

func TestVerifyHmacSHA256_RejectsLengthMismatch(t *testing.T) {
	payload := []byte(`{}`)
	secret := "secret"

	short := Sign(payload, secret)[:10]
	assert.False(t, VerifyHmacSHA256(payload, short, secret))
}

func TestConstantTimeEqual(t *testing.T) {
	assert.True(t, constantTimeEqual("abcdef", "abcdef"))
	assert.False(t, constantTimeEqual("abcdef", "abcdeg"))
	assert.False(t, constantTimeEqual("abcdef", "abc"))
	assert.False(t, constantTimeEqual("", "abc"))
	assert.False(t, constantTimeEqual("abc", ""))
}

func TestExtractSignature_PriorityOrder(t *testing.T) {
	h := http.Header{}
	h.Set("X-Payment-Signature", "low")
	h.Set("X-Hub-Signature-256", "high")

	assert.Equal(t, "high", ExtractSignature(h))

	h.Set("X-Signature", "highest")
	assert.Equal(t, "highest", ExtractSignature(h))
}

func TestExtractSignature_NoHeaders(t *testing.T) {
	assert.Equal(t, "", ExtractSignature(http.Header{}))
}
