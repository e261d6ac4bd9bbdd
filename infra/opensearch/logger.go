package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
)

// Logger ships event documents to the OpenSearch indices.
type Logger struct {
	client *Client
}

// NewLogger creates a new OpenSearch logger
func NewLogger(client *Client) *Logger {
	return &Logger{client: client}
}

// LogSystemEvent indexes a structured system log entry.
func (l *Logger) LogSystemEvent(ctx context.Context, entry any) error {
	return l.index(ctx, IndexSystemLogs, entry)
}

// LogWebhookAudit indexes one webhook audit entry.
func (l *Logger) LogWebhookAudit(ctx context.Context, entry any) error {
	return l.index(ctx, IndexWebhookAudit, entry)
}

// LogAttempt indexes one provider attempt record.
func (l *Logger) LogAttempt(ctx context.Context, entry any) error {
	return l.index(ctx, IndexAttempts, entry)
}

func (l *Logger) index(ctx context.Context, indexName string, doc any) error {
	if !l.client.IsEnabled() {
		return nil
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	req := opensearchapi.IndexRequest{
		Index: indexName,
		Body:  bytes.NewReader(body),
	}

	res, err := req.Do(ctx, l.client.GetClient())
	if err != nil {
		return fmt.Errorf("failed to index document: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("opensearch error: %s", res.String())
	}
	return nil
}

func newStringReader(s string) io.Reader {
	return strings.NewReader(s)
}
