package settlement

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapProviderStatus(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		raw      string
		want     PaymentStatus
	}{
		{"orange success", "orange", "SUCCESS", StatusCompleted},
		{"orange lowercase", "orange", "success", StatusCompleted},
		{"orange expired", "orange", "EXPIRED", StatusFailed},
		{"mtn successful", "mtn", "SUCCESSFUL", StatusCompleted},
		{"mtn timeout", "mtn", "TIMEOUT", StatusFailed},
		{"wave succeeded", "wave", "succeeded", StatusCompleted},
		{"stripe dotted event", "stripe", "payment.failed", StatusFailed},
		{"stripe canceled", "stripe", "CANCELED", StatusCancelled},
		{"unknown word known provider", "orange", "WEIRD_STATE", StatusProcessing},
		{"unknown provider generic word", "moov", "SUCCESS", StatusCompleted},
		{"unknown provider unknown word", "moov", "WEIRD_STATE", StatusProcessing},
		{"whitespace trimmed", "orange", "  SUCCESS  ", StatusCompleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MapProviderStatus(tt.provider, tt.raw))
		})
	}
}

func TestPaymentStatus_IsTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusProcessing.IsTerminal())
}
