package settlement

import "errors"

var (
	// ErrMalformedPayload means the webhook body failed schema
	// validation. It is logged and rejected, never retried here.
	ErrMalformedPayload = errors.New("malformed webhook payload")

	// ErrPaymentNotFound means the transaction reference is unknown.
	// Either a stale webhook or a data-integrity problem; a record is
	// never created implicitly.
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrDuplicateTransfer is returned by the store when the unique
	// constraint on the transfer ledger trips. Under concurrent
	// duplicate deliveries this is the expected, benign outcome.
	ErrDuplicateTransfer = errors.New("transfer ledger entry already exists")
)
