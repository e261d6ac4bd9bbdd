package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/akoun-dev/montoit-sub002/provider"
	"github.com/akoun-dev/montoit-sub002/settlement"
	"github.com/akoun-dev/montoit-sub002/webhook"
)

// Store is the persistence surface of the reliability core: the
// provider catalog, the append-only attempt and webhook audit tables,
// and the payment/transfer records mutated by settlement. Uniqueness of
// payments.transaction_reference and transfers.payment_id is enforced
// by the schema; that is what makes concurrent duplicate webhook
// deliveries safe without application locks.
type Store interface {
	provider.CatalogWriter
	provider.AttemptStore
	webhook.LogStore

	RecentWebhookLogs(ctx context.Context, limit int) ([]webhook.LogEntry, error)

	CreatePayment(ctx context.Context, payment settlement.PaymentRecord) error
	FindPaymentByReference(ctx context.Context, reference string) (*settlement.PaymentRecord, error)
	UpdatePaymentSettlement(ctx context.Context, paymentID string, status settlement.PaymentStatus, providerTxID string, rawPayload json.RawMessage, paidAt *time.Time) error

	TransferExists(ctx context.Context, paymentID string) (bool, error)
	InsertTransfer(ctx context.Context, entry settlement.TransferLedgerEntry) error
	FindTransferByPaymentID(ctx context.Context, paymentID string) (*settlement.TransferLedgerEntry, error)

	Close() error
}
