package settlement

import "strings"

// statusVocabulary maps each provider's status words to the internal
// enum. Lookups are case-insensitive. An unknown provider status maps
// to processing, never to a terminal state: optimistic completion must
// be explicit.
var statusVocabulary = map[string]map[string]PaymentStatus{
	"orange": {
		"SUCCESS":    StatusCompleted,
		"SUCCESSFUL": StatusCompleted,
		"FAILED":     StatusFailed,
		"EXPIRED":    StatusFailed,
		"CANCELLED":  StatusCancelled,
		"PENDING":    StatusPending,
		"INITIATED":  StatusProcessing,
	},
	"mtn": {
		"SUCCESSFUL": StatusCompleted,
		"SUCCESS":    StatusCompleted,
		"FAILED":     StatusFailed,
		"REJECTED":   StatusFailed,
		"TIMEOUT":    StatusFailed,
		"CANCELLED":  StatusCancelled,
		"PENDING":    StatusProcessing,
	},
	"wave": {
		"SUCCESS":    StatusCompleted,
		"SUCCEEDED":  StatusCompleted,
		"COMPLETE":   StatusCompleted,
		"FAILED":     StatusFailed,
		"CANCELLED":  StatusCancelled,
		"PROCESSING": StatusProcessing,
	},
	"stripe": {
		"SUCCEEDED":       StatusCompleted,
		"PAYMENT_FAILED":  StatusFailed,
		"CANCELED":        StatusCancelled,
		"PROCESSING":      StatusProcessing,
		"REQUIRES_ACTION": StatusPending,
	},
}

// genericVocabulary covers channels without a dedicated table.
var genericVocabulary = map[string]PaymentStatus{
	"SUCCESS":    StatusCompleted,
	"SUCCESSFUL": StatusCompleted,
	"COMPLETED":  StatusCompleted,
	"FAILED":     StatusFailed,
	"FAILURE":    StatusFailed,
	"CANCELLED":  StatusCancelled,
	"PENDING":    StatusPending,
	"PROCESSING": StatusProcessing,
}

// MapProviderStatus translates a provider status word into the internal
// enum. Unknown words default to processing.
func MapProviderStatus(providerName, raw string) PaymentStatus {
	key := strings.ToUpper(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, ".", "_")

	if vocab, ok := statusVocabulary[strings.ToLower(providerName)]; ok {
		if status, ok := vocab[key]; ok {
			return status
		}
		return StatusProcessing
	}

	if status, ok := genericVocabulary[key]; ok {
		return status
	}
	return StatusProcessing
}
