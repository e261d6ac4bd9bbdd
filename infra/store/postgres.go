package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/akoun-dev/montoit-sub002/infra/logger"
	"github.com/akoun-dev/montoit-sub002/provider"
	"github.com/akoun-dev/montoit-sub002/settlement"
	"github.com/akoun-dev/montoit-sub002/webhook"
	"github.com/lib/pq"
)

// PostgresStore is the production store implementation, sharing the
// connection pool opened by infra/conn.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an existing Postgres connection and ensures
// the schema exists.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, errors.New("database connection is nil")
	}
	s := &PostgresStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS providers (
		id BIGSERIAL PRIMARY KEY,
		capability TEXT NOT NULL,
		name TEXT NOT NULL,
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		priority INTEGER NOT NULL DEFAULT 100,
		settings JSONB NOT NULL DEFAULT '{}',
		updated_at TIMESTAMPTZ DEFAULT NOW(),
		UNIQUE(capability, name)
	);
	CREATE INDEX IF NOT EXISTS idx_providers_capability ON providers(capability, enabled, priority);

	CREATE TABLE IF NOT EXISTS attempts (
		id BIGSERIAL PRIMARY KEY,
		capability TEXT NOT NULL,
		provider TEXT NOT NULL,
		outcome TEXT NOT NULL,
		error_message TEXT,
		latency_ms BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_attempts_created ON attempts(created_at);

	CREATE TABLE IF NOT EXISTS webhook_logs (
		id BIGSERIAL PRIMARY KEY,
		webhook_type TEXT NOT NULL,
		source_ip TEXT,
		signature_provided TEXT,
		signature_valid BOOLEAN NOT NULL DEFAULT FALSE,
		payload JSONB,
		processing_result TEXT NOT NULL,
		error_message TEXT,
		note TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		transaction_reference TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL,
		tenant_id TEXT NOT NULL DEFAULT '',
		lease_id TEXT NOT NULL DEFAULT '',
		landlord_id TEXT NOT NULL DEFAULT '',
		tenant_phone TEXT NOT NULL DEFAULT '',
		landlord_phone TEXT NOT NULL DEFAULT '',
		provider TEXT NOT NULL DEFAULT '',
		provider_transaction_id TEXT NOT NULL DEFAULT '',
		amount DOUBLE PRECISION NOT NULL,
		raw_payload JSONB,
		paid_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ DEFAULT NOW(),
		updated_at TIMESTAMPTZ DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS transfers (
		id BIGSERIAL PRIMARY KEY,
		payment_id TEXT NOT NULL UNIQUE,
		landlord_id TEXT NOT NULL DEFAULT '',
		amount DOUBLE PRECISION NOT NULL,
		fees DOUBLE PRECISION NOT NULL,
		net_amount DOUBLE PRECISION NOT NULL,
		provider TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ DEFAULT NOW()
	);
	`
	_, err := s.db.Exec(query)
	return err
}

// ListProviders returns the enabled providers of a capability in
// failover order.
func (s *PostgresStore) ListProviders(ctx context.Context, capability string) ([]provider.Config, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, capability, name, enabled, priority, settings
		FROM providers
		WHERE capability = $1 AND enabled = TRUE
		ORDER BY priority ASC, id ASC
	`, capability)
	if err != nil {
		return nil, fmt.Errorf("failed to query providers: %w", err)
	}
	defer rows.Close()

	var configs []provider.Config
	for rows.Next() {
		var cfg provider.Config
		var settingsJSON []byte
		if err := rows.Scan(&cfg.ID, &cfg.Capability, &cfg.Name, &cfg.Enabled, &cfg.Priority, &settingsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan provider row: %w", err)
		}
		if err := json.Unmarshal(settingsJSON, &cfg.Settings); err != nil {
			logger.Warn("Invalid provider settings JSON, using empty settings", logger.LogContext{
				Provider: cfg.Name,
			})
			cfg.Settings = map[string]string{}
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

// UpsertProvider inserts or updates one catalog entry.
func (s *PostgresStore) UpsertProvider(ctx context.Context, cfg provider.Config) error {
	settingsJSON, err := json.Marshal(cfg.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if cfg.Settings == nil {
		settingsJSON = []byte("{}")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO providers (capability, name, enabled, priority, settings, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (capability, name)
		DO UPDATE SET
			enabled = EXCLUDED.enabled,
			priority = EXCLUDED.priority,
			settings = EXCLUDED.settings,
			updated_at = NOW()
	`, cfg.Capability, cfg.Name, cfg.Enabled, cfg.Priority, settingsJSON)
	if err != nil {
		return fmt.Errorf("failed to upsert provider %s/%s: %w", cfg.Capability, cfg.Name, err)
	}
	return nil
}

// SetProviderEnabled flips the enabled flag of one catalog entry.
func (s *PostgresStore) SetProviderEnabled(ctx context.Context, capability, name string, enabled bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE providers SET enabled = $1, updated_at = NOW()
		WHERE capability = $2 AND name = $3
	`, enabled, capability, name)
	if err != nil {
		return fmt.Errorf("failed to update provider %s/%s: %w", capability, name, err)
	}
	return requireRowAffected(res, capability, name)
}

// UpdateProviderPriority changes the priority of one catalog entry.
func (s *PostgresStore) UpdateProviderPriority(ctx context.Context, capability, name string, priority int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE providers SET priority = $1, updated_at = NOW()
		WHERE capability = $2 AND name = $3
	`, priority, capability, name)
	if err != nil {
		return fmt.Errorf("failed to update provider %s/%s: %w", capability, name, err)
	}
	return requireRowAffected(res, capability, name)
}

// InsertAttempt appends one attempt record.
func (s *PostgresStore) InsertAttempt(ctx context.Context, rec provider.AttemptRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attempts (capability, provider, outcome, error_message, latency_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, rec.Capability, rec.Provider, string(rec.Outcome), rec.ErrorMessage, rec.LatencyMs, rec.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert attempt: %w", err)
	}
	return nil
}

// AggregateAttempts rolls attempts since the cutoff up per
// capability/provider pair.
func (s *PostgresStore) AggregateAttempts(ctx context.Context, since time.Time) ([]provider.UsageAggregate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT capability, provider,
			SUM(CASE WHEN outcome = 'success' THEN 1 ELSE 0 END),
			SUM(CASE WHEN outcome = 'failure' THEN 1 ELSE 0 END)
		FROM attempts
		WHERE created_at >= $1
		GROUP BY capability, provider
	`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate attempts: %w", err)
	}
	defer rows.Close()

	var aggs []provider.UsageAggregate
	for rows.Next() {
		var agg provider.UsageAggregate
		if err := rows.Scan(&agg.Capability, &agg.Provider, &agg.SuccessCount, &agg.FailureCount); err != nil {
			return nil, fmt.Errorf("failed to scan aggregate row: %w", err)
		}
		aggs = append(aggs, agg)
	}
	return aggs, rows.Err()
}

// InsertWebhookLog appends one audit entry.
func (s *PostgresStore) InsertWebhookLog(ctx context.Context, entry webhook.LogEntry) error {
	payload := entry.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO webhook_logs (webhook_type, source_ip, signature_provided, signature_valid, payload, processing_result, error_message, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, entry.WebhookType, entry.SourceIP, entry.SignatureProvided, entry.SignatureValid,
		[]byte(payload), string(entry.ProcessingResult), entry.ErrorMessage, entry.Note, entry.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert webhook log: %w", err)
	}
	return nil
}

// RecentWebhookLogs returns the newest audit entries, newest first.
func (s *PostgresStore) RecentWebhookLogs(ctx context.Context, limit int) ([]webhook.LogEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, webhook_type, COALESCE(source_ip, ''), COALESCE(signature_provided, ''), signature_valid,
			COALESCE(payload::text, ''), processing_result, COALESCE(error_message, ''), note, created_at
		FROM webhook_logs
		ORDER BY id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query webhook logs: %w", err)
	}
	defer rows.Close()

	var entries []webhook.LogEntry
	for rows.Next() {
		var entry webhook.LogEntry
		var payload, result string
		if err := rows.Scan(&entry.ID, &entry.WebhookType, &entry.SourceIP, &entry.SignatureProvided,
			&entry.SignatureValid, &payload, &result, &entry.ErrorMessage, &entry.Note, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan webhook log row: %w", err)
		}
		entry.Payload = json.RawMessage(payload)
		entry.ProcessingResult = webhook.ProcessingResult(result)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// CreatePayment inserts a new payment record.
func (s *PostgresStore) CreatePayment(ctx context.Context, p settlement.PaymentRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payments (id, transaction_reference, status, tenant_id, lease_id, landlord_id,
			tenant_phone, landlord_phone, provider, provider_transaction_id, amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, p.ID, p.TransactionReference, string(p.Status), p.TenantID, p.LeaseID, p.LandlordID,
		p.TenantPhone, p.LandlordPhone, p.Provider, p.ProviderTransactionID, p.Amount)
	if err != nil {
		return fmt.Errorf("failed to create payment %s: %w", p.ID, err)
	}
	return nil
}

// FindPaymentByReference looks a payment up by its idempotency key.
func (s *PostgresStore) FindPaymentByReference(ctx context.Context, reference string) (*settlement.PaymentRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, transaction_reference, status, tenant_id, lease_id, landlord_id,
			tenant_phone, landlord_phone, provider, provider_transaction_id, amount,
			COALESCE(raw_payload::text, ''), paid_at
		FROM payments
		WHERE transaction_reference = $1
	`, reference)

	var p settlement.PaymentRecord
	var status, rawPayload string
	var paidAt sql.NullTime
	err := row.Scan(&p.ID, &p.TransactionReference, &status, &p.TenantID, &p.LeaseID, &p.LandlordID,
		&p.TenantPhone, &p.LandlordPhone, &p.Provider, &p.ProviderTransactionID, &p.Amount,
		&rawPayload, &paidAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: reference %q", settlement.ErrPaymentNotFound, reference)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment by reference %q: %w", reference, err)
	}

	p.Status = settlement.PaymentStatus(status)
	if rawPayload != "" {
		p.RawPayload = json.RawMessage(rawPayload)
	}
	if paidAt.Valid {
		t := paidAt.Time
		p.PaidAt = &t
	}
	return &p, nil
}

// UpdatePaymentSettlement persists the mapped status, provider
// transaction id and raw payload.
func (s *PostgresStore) UpdatePaymentSettlement(ctx context.Context, paymentID string, status settlement.PaymentStatus, providerTxID string, rawPayload json.RawMessage, paidAt *time.Time) error {
	var paid any
	if paidAt != nil {
		paid = paidAt.UTC()
	}
	if len(rawPayload) == 0 {
		rawPayload = json.RawMessage("null")
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE payments
		SET status = $1, provider_transaction_id = $2, raw_payload = $3, paid_at = $4, updated_at = NOW()
		WHERE id = $5
	`, string(status), providerTxID, []byte(rawPayload), paid, paymentID)
	if err != nil {
		return fmt.Errorf("failed to update payment %s: %w", paymentID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: id %q", settlement.ErrPaymentNotFound, paymentID)
	}
	return nil
}

// TransferExists reports whether a ledger entry exists for a payment.
func (s *PostgresStore) TransferExists(ctx context.Context, paymentID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transfers WHERE payment_id = $1`, paymentID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check transfer for payment %s: %w", paymentID, err)
	}
	return count > 0, nil
}

// InsertTransfer appends one ledger entry; a unique violation becomes
// settlement.ErrDuplicateTransfer.
func (s *PostgresStore) InsertTransfer(ctx context.Context, entry settlement.TransferLedgerEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transfers (payment_id, landlord_id, amount, fees, net_amount, provider, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, entry.PaymentID, entry.LandlordID, entry.Amount, entry.Fees, entry.NetAmount, entry.Provider, entry.Status)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("%w: payment %s", settlement.ErrDuplicateTransfer, entry.PaymentID)
		}
		return fmt.Errorf("failed to insert transfer for payment %s: %w", entry.PaymentID, err)
	}
	return nil
}

// FindTransferByPaymentID loads the ledger entry of one payment.
func (s *PostgresStore) FindTransferByPaymentID(ctx context.Context, paymentID string) (*settlement.TransferLedgerEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, payment_id, landlord_id, amount, fees, net_amount, provider, status, created_at
		FROM transfers
		WHERE payment_id = $1
	`, paymentID)

	var entry settlement.TransferLedgerEntry
	err := row.Scan(&entry.ID, &entry.PaymentID, &entry.LandlordID, &entry.Amount, &entry.Fees,
		&entry.NetAmount, &entry.Provider, &entry.Status, &entry.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load transfer for payment %s: %w", paymentID, err)
	}
	return &entry, nil
}

// Close closes the database.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
