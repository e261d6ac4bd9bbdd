package settlement

import (
	"encoding/json"
	"time"
)

// PaymentStatus is the internal settlement status vocabulary. Provider
// statuses are mapped into it before anything is persisted.
type PaymentStatus string

const (
	StatusPending    PaymentStatus = "pending"
	StatusProcessing PaymentStatus = "processing"
	StatusCompleted  PaymentStatus = "completed"
	StatusFailed     PaymentStatus = "failed"
	StatusCancelled  PaymentStatus = "cancelled"
)

// IsTerminal reports whether no further transition is permitted from
// the status.
func (s PaymentStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// PaymentRecord is a rent payment as tracked by the marketplace. It is
// created by the payment-initiation flow in pending/processing and
// mutated only by the settlement state machine. TransactionReference is
// the caller-chosen idempotency key; the provider's own transaction id
// is only known once the webhook arrives.
type PaymentRecord struct {
	ID                    string          `json:"id"`
	TransactionReference  string          `json:"transactionReference"`
	Status                PaymentStatus   `json:"status"`
	TenantID              string          `json:"tenantId"`
	LeaseID               string          `json:"leaseId"`
	LandlordID            string          `json:"landlordId"`
	TenantPhone           string          `json:"tenantPhone,omitempty"`
	LandlordPhone         string          `json:"landlordPhone,omitempty"`
	Provider              string          `json:"provider,omitempty"`
	ProviderTransactionID string          `json:"providerTransactionId,omitempty"`
	Amount                float64         `json:"amount"`
	RawPayload            json.RawMessage `json:"rawPayload,omitempty"`
	PaidAt                *time.Time      `json:"paidAt,omitempty"`
	CreatedAt             time.Time       `json:"createdAt,omitempty"`
	UpdatedAt             time.Time       `json:"updatedAt,omitempty"`
}

// TransferLedgerEntry records the landlord payout owed for one
// completed payment. At most one entry exists per payment; the store
// enforces this with a unique constraint on PaymentID.
type TransferLedgerEntry struct {
	ID         int64     `json:"id,omitempty"`
	PaymentID  string    `json:"paymentId"`
	LandlordID string    `json:"landlordId"`
	Amount     float64   `json:"amount"`
	Fees       float64   `json:"fees"`
	NetAmount  float64   `json:"netAmount"`
	Provider   string    `json:"provider"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"createdAt,omitempty"`
}

// TransferStatusPending is the initial status of a ledger entry; the
// actual disbursement job (out of scope here) moves it forward.
const TransferStatusPending = "pending"

// CallbackPayload is the validated shape of an inbound payment webhook.
// Internal logic never touches the raw map; the raw bytes are only kept
// for the audit trail.
type CallbackPayload struct {
	TransactionID        string  `json:"transactionId" validate:"required"`
	PartnerTransactionID string  `json:"partnerTransactionId" validate:"required"`
	Status               string  `json:"status" validate:"required"`
	Amount               float64 `json:"amount" validate:"required,gt=0"`
	PhoneNumber          string  `json:"phoneNumber" validate:"required,msisdn"`
}

// Outcome classifies the result of applying one webhook delivery.
type Outcome string

const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeRejected  Outcome = "rejected"
)

// ApplyResult is returned by ApplyWebhook for accepted and duplicate
// deliveries.
type ApplyResult struct {
	Outcome   Outcome       `json:"outcome"`
	PaymentID string        `json:"paymentId"`
	Status    PaymentStatus `json:"status"`
}
