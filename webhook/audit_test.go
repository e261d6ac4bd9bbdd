package webhook

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryLogStore struct {
	mu      sync.Mutex
	entries []LogEntry
}

func (s *memoryLogStore) InsertWebhookLog(ctx context.Context, entry LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *memoryLogStore) all() []LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]LogEntry(nil), s.entries...)
}

func TestAuditLog_RecordPersists(t *testing.T) {
	store := &memoryLogStore{}
	audit := NewAuditLog(store, 16)

	audit.Record(LogEntry{
		WebhookType:      "orange",
		SignatureValid:   true,
		ProcessingResult: ResultSuccess,
	})
	audit.Close()

	entries := store.all()
	require.Len(t, entries, 1)
	assert.Equal(t, "orange", entries[0].WebhookType)
	assert.False(t, entries[0].CreatedAt.IsZero(), "timestamp is filled in when absent")
}

func TestAuditLog_RecordAfterCloseIsDropped(t *testing.T) {
	store := &memoryLogStore{}
	audit := NewAuditLog(store, 16)
	audit.Close()

	// Must not panic or block.
	audit.Record(LogEntry{WebhookType: "orange", ProcessingResult: ResultRejected})

	assert.Empty(t, store.all())
}

func TestAuditLog_RecordRacingCloseDoesNotPanic(t *testing.T) {
	store := &memoryLogStore{}
	audit := NewAuditLog(store, 4)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				audit.Record(LogEntry{WebhookType: "orange", ProcessingResult: ResultSuccess})
			}
		}()
	}

	audit.Close()
	wg.Wait()

	// Entries racing the shutdown are either persisted or dropped with
	// a warning; none of them may crash the process.
	assert.NotPanics(t, func() {
		audit.Record(LogEntry{WebhookType: "orange", ProcessingResult: ResultSuccess})
	})
}
