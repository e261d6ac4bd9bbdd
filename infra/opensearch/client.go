package opensearch

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/akoun-dev/montoit-sub002/infra/config"
	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
)

// Index names used by the reliability core. One index per event family
// keeps retention policies independent.
const (
	IndexSystemLogs   = "montoit-system-logs"
	IndexWebhookAudit = "montoit-webhook-audit"
	IndexAttempts     = "montoit-provider-attempts"
)

// Client wraps the OpenSearch client
type Client struct {
	client  *opensearch.Client
	enabled bool
}

// NewClient creates a new OpenSearch client
func NewClient(cfg *config.AppConfig) (*Client, error) {
	opensearchConfig := opensearch.Config{
		Addresses:     []string{cfg.OpenSearchURL},
		Transport:     &http.Transport{},
		MaxRetries:    3,
		RetryOnStatus: []int{502, 503, 504, 429},
		RetryBackoff: func(i int) time.Duration {
			return time.Duration(i) * 100 * time.Millisecond
		},
	}

	if cfg.OpenSearchUser != "" && cfg.OpenSearchPass != "" {
		opensearchConfig.Username = cfg.OpenSearchUser
		opensearchConfig.Password = cfg.OpenSearchPass
	}

	client, err := opensearch.NewClient(opensearchConfig)
	if err != nil {
		return nil, err
	}

	osClient := &Client{
		client:  client,
		enabled: cfg.EnableLogging,
	}

	if err := osClient.setupIndices(); err != nil {
		log.Printf("Warning: Failed to setup OpenSearch indices: %v", err)
	}

	return osClient, nil
}

// GetClient returns the underlying OpenSearch client
func (c *Client) GetClient() *opensearch.Client {
	return c.client
}

// IsEnabled reports whether log shipping is turned on
func (c *Client) IsEnabled() bool {
	return c != nil && c.enabled
}

// setupIndices creates the event indices if they do not exist yet
func (c *Client) setupIndices() error {
	for _, indexName := range []string{IndexSystemLogs, IndexWebhookAudit, IndexAttempts} {
		exists, err := c.indexExists(indexName)
		if err != nil {
			log.Printf("Error checking index %s: %v", indexName, err)
			continue
		}
		if exists {
			continue
		}
		if err := c.createIndex(indexName); err != nil {
			log.Printf("Error creating index %s: %v", indexName, err)
			continue
		}
		log.Printf("Created OpenSearch index: %s", indexName)
	}
	return nil
}

// indexExists checks if an index exists
func (c *Client) indexExists(indexName string) (bool, error) {
	req := opensearchapi.IndicesExistsRequest{
		Index: []string{indexName},
	}

	res, err := req.Do(context.Background(), c.client)
	if err != nil {
		return false, err
	}
	defer res.Body.Close()

	return res.StatusCode == 200, nil
}

// createIndex creates an index with a dynamic mapping and a date
// timestamp field. The event documents are flat JSON; dynamic mapping
// is good enough for triage queries.
func (c *Client) createIndex(indexName string) error {
	mapping := `{
		"settings": {
			"number_of_shards": 1,
			"number_of_replicas": 0
		},
		"mappings": {
			"properties": {
				"timestamp": {
					"type": "date",
					"format": "strict_date_optional_time||epoch_millis"
				}
			}
		}
	}`

	req := opensearchapi.IndicesCreateRequest{
		Index: indexName,
		Body:  newStringReader(mapping),
	}

	res, err := req.Do(context.Background(), c.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		return &indexError{index: indexName, status: res.Status()}
	}
	return nil
}

type indexError struct {
	index  string
	status string
}

func (e *indexError) Error() string {
	return "opensearch index " + e.index + ": " + e.status
}
