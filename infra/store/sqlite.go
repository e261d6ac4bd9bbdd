package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/akoun-dev/montoit-sub002/infra/logger"
	"github.com/akoun-dev/montoit-sub002/provider"
	"github.com/akoun-dev/montoit-sub002/settlement"
	"github.com/akoun-dev/montoit-sub002/webhook"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore is the embedded store implementation, used for local
// deployments and tests. WAL mode plus a busy timeout make it behave
// under the concurrent webhook deliveries the settlement path sees.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (and migrates) a SQLite database at the given
// path. Use ":memory:" for tests.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=20000&_txlock=immediate", dbPath)
	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// The sqlite driver serializes writes anyway; a small pool avoids
	// SQLITE_BUSY churn. In-memory databases need a single connection
	// or every new conn sees an empty schema.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(4)
		db.SetMaxIdleConns(2)
	}

	s := &SQLiteStore{db: db, path: dbPath}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS providers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		capability TEXT NOT NULL,
		name TEXT NOT NULL,
		enabled INTEGER NOT NULL DEFAULT 1,
		priority INTEGER NOT NULL DEFAULT 100,
		settings TEXT NOT NULL DEFAULT '{}',
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(capability, name)
	);
	CREATE INDEX IF NOT EXISTS idx_providers_capability ON providers(capability, enabled, priority);

	CREATE TABLE IF NOT EXISTS attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		capability TEXT NOT NULL,
		provider TEXT NOT NULL,
		outcome TEXT NOT NULL,
		error_message TEXT,
		latency_ms INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_attempts_created ON attempts(created_at);

	CREATE TABLE IF NOT EXISTS webhook_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		webhook_type TEXT NOT NULL,
		source_ip TEXT,
		signature_provided TEXT,
		signature_valid INTEGER NOT NULL DEFAULT 0,
		payload TEXT,
		processing_result TEXT NOT NULL,
		error_message TEXT,
		note TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
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
		amount REAL NOT NULL,
		raw_payload TEXT,
		paid_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS transfers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		payment_id TEXT NOT NULL UNIQUE,
		landlord_id TEXT NOT NULL DEFAULT '',
		amount REAL NOT NULL,
		fees REAL NOT NULL,
		net_amount REAL NOT NULL,
		provider TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := s.db.Exec(query)
	return err
}

// ListProviders returns the enabled providers of a capability, lowest
// priority first, catalog order breaking ties. State is re-read on
// every call so operators can disable a provider without a restart.
func (s *SQLiteStore) ListProviders(ctx context.Context, capability string) ([]provider.Config, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, capability, name, enabled, priority, settings
		FROM providers
		WHERE capability = ? AND enabled = 1
		ORDER BY priority ASC, id ASC
	`, capability)
	if err != nil {
		return nil, fmt.Errorf("failed to query providers: %w", err)
	}
	defer rows.Close()

	var configs []provider.Config
	for rows.Next() {
		var cfg provider.Config
		var settingsJSON string
		if err := rows.Scan(&cfg.ID, &cfg.Capability, &cfg.Name, &cfg.Enabled, &cfg.Priority, &settingsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan provider row: %w", err)
		}
		if err := json.Unmarshal([]byte(settingsJSON), &cfg.Settings); err != nil {
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
func (s *SQLiteStore) UpsertProvider(ctx context.Context, cfg provider.Config) error {
	settingsJSON, err := json.Marshal(cfg.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if cfg.Settings == nil {
		settingsJSON = []byte("{}")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO providers (capability, name, enabled, priority, settings, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(capability, name)
		DO UPDATE SET
			enabled = excluded.enabled,
			priority = excluded.priority,
			settings = excluded.settings,
			updated_at = CURRENT_TIMESTAMP
	`, cfg.Capability, cfg.Name, cfg.Enabled, cfg.Priority, string(settingsJSON))
	if err != nil {
		return fmt.Errorf("failed to upsert provider %s/%s: %w", cfg.Capability, cfg.Name, err)
	}
	return nil
}

// SetProviderEnabled flips the enabled flag of one catalog entry.
func (s *SQLiteStore) SetProviderEnabled(ctx context.Context, capability, name string, enabled bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE providers SET enabled = ?, updated_at = CURRENT_TIMESTAMP
		WHERE capability = ? AND name = ?
	`, enabled, capability, name)
	if err != nil {
		return fmt.Errorf("failed to update provider %s/%s: %w", capability, name, err)
	}
	return requireRowAffected(res, capability, name)
}

// UpdateProviderPriority changes the priority of one catalog entry.
func (s *SQLiteStore) UpdateProviderPriority(ctx context.Context, capability, name string, priority int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE providers SET priority = ?, updated_at = CURRENT_TIMESTAMP
		WHERE capability = ? AND name = ?
	`, priority, capability, name)
	if err != nil {
		return fmt.Errorf("failed to update provider %s/%s: %w", capability, name, err)
	}
	return requireRowAffected(res, capability, name)
}

func requireRowAffected(res sql.Result, capability, name string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("no provider found for capability %q, name %q", capability, name)
	}
	return nil
}

// InsertAttempt appends one attempt record. Attempts are never updated.
func (s *SQLiteStore) InsertAttempt(ctx context.Context, rec provider.AttemptRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attempts (capability, provider, outcome, error_message, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.Capability, rec.Provider, string(rec.Outcome), rec.ErrorMessage, rec.LatencyMs, rec.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert attempt: %w", err)
	}
	return nil
}

// AggregateAttempts rolls attempts since the cutoff up per
// capability/provider pair.
func (s *SQLiteStore) AggregateAttempts(ctx context.Context, since time.Time) ([]provider.UsageAggregate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT capability, provider,
			SUM(CASE WHEN outcome = 'success' THEN 1 ELSE 0 END),
			SUM(CASE WHEN outcome = 'failure' THEN 1 ELSE 0 END)
		FROM attempts
		WHERE created_at >= ?
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
func (s *SQLiteStore) InsertWebhookLog(ctx context.Context, entry webhook.LogEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO webhook_logs (webhook_type, source_ip, signature_provided, signature_valid, payload, processing_result, error_message, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.WebhookType, entry.SourceIP, entry.SignatureProvided, entry.SignatureValid,
		string(entry.Payload), string(entry.ProcessingResult), entry.ErrorMessage, entry.Note, entry.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert webhook log: %w", err)
	}
	return nil
}

// RecentWebhookLogs returns the newest audit entries, newest first.
func (s *SQLiteStore) RecentWebhookLogs(ctx context.Context, limit int) ([]webhook.LogEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, webhook_type, source_ip, signature_provided, signature_valid, payload, processing_result, error_message, note, created_at
		FROM webhook_logs
		ORDER BY id DESC
		LIMIT ?
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

// CreatePayment inserts a new payment record. Used by the initiation
// flow and by tests.
func (s *SQLiteStore) CreatePayment(ctx context.Context, p settlement.PaymentRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payments (id, transaction_reference, status, tenant_id, lease_id, landlord_id,
			tenant_phone, landlord_phone, provider, provider_transaction_id, amount)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.TransactionReference, string(p.Status), p.TenantID, p.LeaseID, p.LandlordID,
		p.TenantPhone, p.LandlordPhone, p.Provider, p.ProviderTransactionID, p.Amount)
	if err != nil {
		return fmt.Errorf("failed to create payment %s: %w", p.ID, err)
	}
	return nil
}

// FindPaymentByReference looks a payment up by its idempotency key.
func (s *SQLiteStore) FindPaymentByReference(ctx context.Context, reference string) (*settlement.PaymentRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, transaction_reference, status, tenant_id, lease_id, landlord_id,
			tenant_phone, landlord_phone, provider, provider_transaction_id, amount,
			COALESCE(raw_payload, ''), paid_at
		FROM payments
		WHERE transaction_reference = ?
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

// UpdatePaymentSettlement persists the mapped status, the provider's
// transaction id and the raw payload for audit.
func (s *SQLiteStore) UpdatePaymentSettlement(ctx context.Context, paymentID string, status settlement.PaymentStatus, providerTxID string, rawPayload json.RawMessage, paidAt *time.Time) error {
	var paid any
	if paidAt != nil {
		paid = paidAt.UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE payments
		SET status = ?, provider_transaction_id = ?, raw_payload = ?, paid_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, string(status), providerTxID, string(rawPayload), paid, paymentID)
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
func (s *SQLiteStore) TransferExists(ctx context.Context, paymentID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transfers WHERE payment_id = ?`, paymentID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check transfer for payment %s: %w", paymentID, err)
	}
	return count > 0, nil
}

// InsertTransfer appends one ledger entry. The unique constraint on
// payment_id turns a concurrent duplicate insert into
// settlement.ErrDuplicateTransfer.
func (s *SQLiteStore) InsertTransfer(ctx context.Context, entry settlement.TransferLedgerEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transfers (payment_id, landlord_id, amount, fees, net_amount, provider, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, entry.PaymentID, entry.LandlordID, entry.Amount, entry.Fees, entry.NetAmount, entry.Provider, entry.Status)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: payment %s", settlement.ErrDuplicateTransfer, entry.PaymentID)
		}
		return fmt.Errorf("failed to insert transfer for payment %s: %w", entry.PaymentID, err)
	}
	return nil
}

// FindTransferByPaymentID loads the ledger entry of one payment.
func (s *SQLiteStore) FindTransferByPaymentID(ctx context.Context, paymentID string) (*settlement.TransferLedgerEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, payment_id, landlord_id, amount, fees, net_amount, provider, status, created_at
		FROM transfers
		WHERE payment_id = ?
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
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
