package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/akoun-dev/montoit-sub002/infra/logger"
	"github.com/akoun-dev/montoit-sub002/provider"
	"github.com/go-playground/validator/v10"
)

// Store is the persistence surface the state machine needs. The backing
// store serializes concurrent webhook deliveries for the same reference
// through its unique constraints; the service holds no locks.
type Store interface {
	FindPaymentByReference(ctx context.Context, reference string) (*PaymentRecord, error)
	UpdatePaymentSettlement(ctx context.Context, paymentID string, status PaymentStatus, providerTxID string, rawPayload json.RawMessage, paidAt *time.Time) error
	TransferExists(ctx context.Context, paymentID string) (bool, error)
	InsertTransfer(ctx context.Context, entry TransferLedgerEntry) error
}

// Notifier dispatches outbound notifications. In production this is the
// failover Executor.
type Notifier interface {
	ExecuteWithFallback(ctx context.Context, capability string, params provider.SendParams) (*provider.SendResult, error)
}

// Service is the settlement state machine: it consumes verified payment
// webhooks, applies the idempotent status update, and triggers side
// effects exactly once per terminal transition.
type Service struct {
	store    Store
	notifier Notifier
	validate *validator.Validate
}

// NewService creates a settlement service.
func NewService(store Store, notifier Notifier, validate *validator.Validate) *Service {
	return &Service{
		store:    store,
		notifier: notifier,
		validate: validate,
	}
}

// ParsePayload validates the raw webhook body into its typed shape.
func (s *Service) ParsePayload(raw []byte) (*CallbackPayload, error) {
	var payload CallbackPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if err := s.validate.Struct(payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return &payload, nil
}

// ApplyWebhook applies one verified webhook delivery.
//
// The payment is looked up by its stored transaction reference (the
// idempotency key chosen at creation). A record already in a terminal
// state is an idempotent replay: it returns OutcomeDuplicate and runs
// no side effects. Otherwise the provider status is mapped, persisted,
// and on a terminal transition the fee ledger entry and notifications
// fire exactly once.
func (s *Service) ApplyWebhook(ctx context.Context, providerName string, raw []byte) (*ApplyResult, error) {
	payload, err := s.ParsePayload(raw)
	if err != nil {
		return nil, err
	}

	payment, err := s.store.FindPaymentByReference(ctx, payload.PartnerTransactionID)
	if err != nil {
		return nil, err
	}

	if payment.Status.IsTerminal() {
		logger.Info("Webhook replay for settled payment, no-op", logger.LogContext{
			Provider: providerName,
			Fields: map[string]any{
				"payment_id": payment.ID,
				"reference":  payment.TransactionReference,
				"status":     payment.Status,
			},
		})
		return &ApplyResult{
			Outcome:   OutcomeDuplicate,
			PaymentID: payment.ID,
			Status:    payment.Status,
		}, nil
	}

	newStatus := MapProviderStatus(providerName, payload.Status)

	var paidAt *time.Time
	if newStatus == StatusCompleted {
		now := time.Now().UTC()
		paidAt = &now
	}

	if err := s.store.UpdatePaymentSettlement(ctx, payment.ID, newStatus, payload.TransactionID, raw, paidAt); err != nil {
		return nil, fmt.Errorf("failed to persist settlement for payment %s: %w", payment.ID, err)
	}

	switch newStatus {
	case StatusCompleted:
		s.settleCompleted(ctx, providerName, payment, payload)
	case StatusFailed, StatusCancelled:
		s.notifyTenant(ctx, payment, fmt.Sprintf(
			"Votre paiement de %.0f FCFA (ref %s) a echoue. Veuillez reessayer.",
			payment.Amount, payment.TransactionReference))
	}

	return &ApplyResult{
		Outcome:   OutcomeAccepted,
		PaymentID: payment.ID,
		Status:    newStatus,
	}, nil
}

// settleCompleted applies the completed-payment side effects: the
// landlord payout ledger entry and both party notifications. The
// TransferExists check plus the store's unique constraint make the
// entry at-most-once even if a prior delivery crashed between the
// status write and the ledger insert.
func (s *Service) settleCompleted(ctx context.Context, providerName string, payment *PaymentRecord, payload *CallbackPayload) {
	fees, net := ComputeFees(providerName, payment.Amount)

	exists, err := s.store.TransferExists(ctx, payment.ID)
	if err != nil {
		logger.Error("Failed to check transfer ledger", err, logger.LogContext{
			Provider: providerName,
			Fields:   map[string]any{"payment_id": payment.ID},
		})
		return
	}

	if !exists {
		entry := TransferLedgerEntry{
			PaymentID:  payment.ID,
			LandlordID: payment.LandlordID,
			Amount:     payment.Amount,
			Fees:       fees,
			NetAmount:  net,
			Provider:   providerName,
			Status:     TransferStatusPending,
		}
		if err := s.store.InsertTransfer(ctx, entry); err != nil {
			if errors.Is(err, ErrDuplicateTransfer) {
				// A concurrent delivery won the race; its side effects
				// already ran.
				logger.Info("Transfer ledger entry already present, skipping side effects", logger.LogContext{
					Provider: providerName,
					Fields:   map[string]any{"payment_id": payment.ID},
				})
				return
			}
			logger.Error("Failed to insert transfer ledger entry", err, logger.LogContext{
				Provider: providerName,
				Fields:   map[string]any{"payment_id": payment.ID},
			})
			return
		}
	} else {
		// Crash-recovery path: the ledger entry exists from a previous
		// delivery, so the notifications already went out.
		return
	}

	s.notifyTenant(ctx, payment, fmt.Sprintf(
		"Votre loyer de %.0f FCFA (ref %s) a ete paye avec succes.",
		payment.Amount, payment.TransactionReference))
	s.notifyLandlord(ctx, payment, fmt.Sprintf(
		"Loyer recu: %.0f FCFA net pour le bail %s.",
		net, payment.LeaseID))
}

func (s *Service) notifyTenant(ctx context.Context, payment *PaymentRecord, message string) {
	s.dispatch(ctx, payment, payment.TenantPhone, message)
}

func (s *Service) notifyLandlord(ctx context.Context, payment *PaymentRecord, message string) {
	s.dispatch(ctx, payment, payment.LandlordPhone, message)
}

// dispatch sends one SMS through the failover chain. Notification
// failures are logged and never propagate: the settlement itself is
// already committed.
func (s *Service) dispatch(ctx context.Context, payment *PaymentRecord, to, message string) {
	if to == "" {
		return
	}

	_, err := s.notifier.ExecuteWithFallback(ctx, provider.CapabilitySMS, provider.SendParams{
		To:      to,
		Message: message,
		Metadata: map[string]string{
			"paymentId": payment.ID,
			"leaseId":   payment.LeaseID,
		},
	})
	if err != nil {
		logger.Error("Failed to dispatch settlement notification", err, logger.LogContext{
			Fields: map[string]any{
				"payment_id": payment.ID,
				"to":         to,
			},
		})
	}
}
