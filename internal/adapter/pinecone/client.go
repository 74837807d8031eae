// Package pinecone is a minimal client for the Pinecone data plane REST API:
// query, upsert and index statistics against a single index host.
package pinecone

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"quotesearch/internal/domain"
)

const maxUpsertBatch = 100

// Client talks to one Pinecone index.
type Client struct {
	apiKey    string
	host      string
	dimension int
	client    *http.Client
}

type queryRequest struct {
	Vector          []float32 `json:"vector"`
	TopK            int       `json:"topK"`
	IncludeMetadata bool      `json:"includeMetadata"`
	Namespace       string    `json:"namespace"`
}

type queryResponse struct {
	Matches   []queryMatch `json:"matches"`
	Namespace string       `json:"namespace"`
}

type queryMatch struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type upsertVector struct {
	ID       string            `json:"id"`
	Values   []float32         `json:"values"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type upsertRequest struct {
	Vectors   []upsertVector `json:"vectors"`
	Namespace string         `json:"namespace"`
}

type upsertResponse struct {
	UpsertedCount int `json:"upsertedCount"`
}

type statsResponse struct {
	Dimension        int                       `json:"dimension"`
	TotalVectorCount int                       `json:"totalVectorCount"`
	Namespaces       map[string]namespaceStats `json:"namespaces"`
}

type namespaceStats struct {
	VectorCount int `json:"vectorCount"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// New creates a client for the index served at host. The API key is read
// from apiKeyEnv. dimension may be 0, in which case it is learned from the
// index statistics on first use of Connect.
func New(apiKeyEnv, host string, dimension int, timeout time.Duration) (*Client, error) {
	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("API key not found in environment variable: %s: %w", apiKeyEnv, domain.ErrIndexUnavailable)
	}
	if host == "" {
		return nil, fmt.Errorf("pinecone index host is required: %w", domain.ErrIndexUnavailable)
	}
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "https://" + host
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		apiKey:    apiKey,
		host:      strings.TrimRight(host, "/"),
		dimension: dimension,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Connect verifies the index is reachable and reconciles its dimension with
// the configured one.
func (c *Client) Connect(ctx context.Context) error {
	stats, err := c.Stats(ctx)
	if err != nil {
		return err
	}
	if c.dimension == 0 {
		c.dimension = stats.Dimension
		return nil
	}
	if stats.Dimension != 0 && stats.Dimension != c.dimension {
		return fmt.Errorf("index dimension %d, configured %d: %w", stats.Dimension, c.dimension, domain.ErrDimensionMismatch)
	}
	return nil
}

// Query returns the index matches in the order the service ranked them.
func (c *Client) Query(ctx context.Context, vector []float32, topK int, namespace string) ([]domain.Match, error) {
	if c.dimension > 0 && len(vector) != c.dimension {
		return nil, fmt.Errorf("query: expected %d, got %d: %w", c.dimension, len(vector), domain.ErrDimensionMismatch)
	}

	var resp queryResponse
	err := c.post(ctx, "/query", queryRequest{
		Vector:          vector,
		TopK:            topK,
		IncludeMetadata: true,
		Namespace:       namespace,
	}, &resp)
	if err != nil {
		return nil, err
	}

	matches := make([]domain.Match, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		matches = append(matches, domain.Match{
			ID:       m.ID,
			Score:    m.Score,
			Metadata: stringifyMetadata(m.Metadata),
		})
	}
	return matches, nil
}

// Upsert writes records in batches. Any failed batch fails the whole call;
// batches already accepted by the service stay written.
func (c *Client) Upsert(ctx context.Context, records []domain.Record, namespace string) (int, error) {
	for _, r := range records {
		if c.dimension > 0 && len(r.Vector) != c.dimension {
			return 0, fmt.Errorf("record %s: expected %d, got %d: %w", r.ID, c.dimension, len(r.Vector), domain.ErrDimensionMismatch)
		}
	}

	written := 0
	for i := 0; i < len(records); i += maxUpsertBatch {
		end := i + maxUpsertBatch
		if end > len(records) {
			end = len(records)
		}

		req := upsertRequest{Namespace: namespace}
		for _, r := range records[i:end] {
			req.Vectors = append(req.Vectors, upsertVector{ID: r.ID, Values: r.Vector, Metadata: r.Metadata})
		}

		var resp upsertResponse
		if err := c.post(ctx, "/vectors/upsert", req, &resp); err != nil {
			return written, err
		}
		written += resp.UpsertedCount
	}
	return written, nil
}

func (c *Client) Dimension() int {
	return c.dimension
}

func (c *Client) Stats(ctx context.Context) (domain.IndexStats, error) {
	var resp statsResponse
	if err := c.post(ctx, "/describe_index_stats", struct{}{}, &resp); err != nil {
		return domain.IndexStats{}, err
	}

	stats := domain.IndexStats{
		Dimension:  resp.Dimension,
		Total:      resp.TotalVectorCount,
		Namespaces: make(map[string]int, len(resp.Namespaces)),
	}
	for name, ns := range resp.Namespaces {
		stats.Namespaces[name] = ns.VectorCount
	}
	return stats, nil
}

func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %v: %w", err, domain.ErrIndexUnavailable)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Api-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %v: %w", err, domain.ErrIndexUnavailable)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %v: %w", err, domain.ErrIndexUnavailable)
	}

	if resp.StatusCode != http.StatusOK {
		return statusError(resp.StatusCode, data)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %v: %w", err, domain.ErrIndexUnavailable)
	}
	return nil
}

func statusError(status int, body []byte) error {
	msg := string(body)
	var apiErr apiError
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
		msg = apiErr.Message
	}
	if len(msg) > 200 {
		msg = msg[:200]
	}

	if status == http.StatusBadRequest && strings.Contains(strings.ToLower(msg), "dimension") {
		return fmt.Errorf("pinecone returned status %d: %s: %w", status, msg, domain.ErrDimensionMismatch)
	}
	return fmt.Errorf("pinecone returned status %d: %s: %w", status, msg, domain.ErrIndexUnavailable)
}

// stringifyMetadata flattens Pinecone metadata values (strings, numbers,
// booleans, string lists) to strings.
func stringifyMetadata(in map[string]any) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch val := v.(type) {
		case string:
			out[k] = val
		case []any:
			parts := make([]string, 0, len(val))
			for _, p := range val {
				parts = append(parts, fmt.Sprint(p))
			}
			out[k] = strings.Join(parts, ", ")
		case nil:
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}
