package webhook

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/akoun-dev/montoit-sub002/infra/logger"
	"github.com/akoun-dev/montoit-sub002/infra/opensearch"
)

// ProcessingResult classifies how an inbound webhook call ended.
type ProcessingResult string

const (
	ResultSuccess  ProcessingResult = "success"
	ResultFailed   ProcessingResult = "failed"
	ResultRejected ProcessingResult = "rejected"
)

// LogEntry is one row of the append-only webhook audit trail. Exactly
// one entry is written per inbound call, including outright rejections
// and idempotent replays.
type LogEntry struct {
	ID                int64            `json:"id,omitempty"`
	WebhookType       string           `json:"webhookType"`
	SourceIP          string           `json:"sourceIp,omitempty"`
	SignatureProvided string           `json:"signatureProvided,omitempty"`
	SignatureValid    bool             `json:"signatureValid"`
	Payload           json.RawMessage  `json:"payload,omitempty"`
	ProcessingResult  ProcessingResult `json:"processingResult"`
	ErrorMessage      string           `json:"errorMessage,omitempty"`
	Note              string           `json:"note,omitempty"`
	CreatedAt         time.Time        `json:"createdAt"`
}

// LogStore persists audit entries.
type LogStore interface {
	InsertWebhookLog(ctx context.Context, entry LogEntry) error
}

// AuditLog is the asynchronous audit writer. Entries go through a
// bounded queue so a slow audit store cannot block the webhook response
// path; on overflow the entry is dropped with a warning.
type AuditLog struct {
	store   LogStore
	events  *opensearch.Logger
	queue   chan LogEntry
	done    chan struct{}
	closing sync.Once
	wg      sync.WaitGroup
}

// NewAuditLog creates an audit log with the given queue capacity and
// starts its writer goroutine.
func NewAuditLog(store LogStore, buffer int) *AuditLog {
	if buffer <= 0 {
		buffer = 256
	}
	a := &AuditLog{
		store: store,
		queue: make(chan LogEntry, buffer),
		done:  make(chan struct{}),
	}
	a.wg.Add(1)
	go a.writeLoop()
	return a
}

// ShipEventsTo additionally mirrors every persisted entry to the
// OpenSearch webhook audit index. Best effort only.
func (a *AuditLog) ShipEventsTo(events *opensearch.Logger) {
	a.events = events
}

// Record enqueues one audit entry. It never blocks and never fails the
// caller.
func (a *AuditLog) Record(entry LogEntry) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	select {
	case <-a.done:
		logger.Warn("Webhook audit entry dropped, audit log closed", logger.LogContext{
			Fields: map[string]any{"webhook_type": entry.WebhookType},
		})
		return
	default:
	}

	// The queue channel is never closed, so this send cannot panic even
	// when it races Close; an entry slipping in after the drain is just
	// dropped, same as any other overflow.
	select {
	case a.queue <- entry:
	default:
		logger.Warn("Webhook audit entry dropped, queue full", logger.LogContext{
			Fields: map[string]any{
				"webhook_type": entry.WebhookType,
				"result":       entry.ProcessingResult,
			},
		})
	}
}

func (a *AuditLog) writeLoop() {
	defer a.wg.Done()

	for {
		select {
		case entry := <-a.queue:
			a.persist(entry)
		case <-a.done:
			for {
				select {
				case entry := <-a.queue:
					a.persist(entry)
				default:
					return
				}
			}
		}
	}
}

func (a *AuditLog) persist(entry LogEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.store.InsertWebhookLog(ctx, entry); err != nil {
		logger.Warn("Failed to persist webhook audit entry", logger.LogContext{
			Fields: map[string]any{
				"webhook_type": entry.WebhookType,
				"error":        err.Error(),
			},
		})
	}
	if a.events != nil {
		if err := a.events.LogWebhookAudit(ctx, entry); err != nil {
			logger.Warn("Failed to ship webhook audit entry", logger.LogContext{
				Fields: map[string]any{
					"webhook_type": entry.WebhookType,
					"error":        err.Error(),
				},
			})
		}
	}
}

// Close stops accepting entries and drains the queue.
func (a *AuditLog) Close() {
	a.closing.Do(func() {
		close(a.done)
	})
	a.wg.Wait()
}
