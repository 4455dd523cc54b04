// Qdrant REST search client.
package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// QdrantConfig holds configuration for the Qdrant client.
type QdrantConfig struct {
	// BaseURL is the Qdrant HTTP URL (e.g., "http://localhost:6333")
	BaseURL string

	// Collection is the points collection to search.
	Collection string

	// APIKey is sent as the api-key header when set.
	APIKey string

	// Timeout for HTTP requests (default: 10s)
	Timeout time.Duration
}

// QdrantClient implements Searcher against Qdrant's REST points/search API.
type QdrantClient struct {
	baseURL    string
	collection string
	apiKey     string
	client     *http.Client
}

// NewQdrantClient creates a new Qdrant search client.
func NewQdrantClient(cfg *QdrantConfig) (*QdrantClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("qdrant base URL is required")
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("qdrant collection is required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &QdrantClient{
		baseURL:    cfg.BaseURL,
		collection: cfg.Collection,
		apiKey:     cfg.APIKey,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type qdrantSearchRequest struct {
	Vector      []float64      `json:"vector"`
	Limit       int            `json:"limit"`
	Filter      map[string]any `json:"filter,omitempty"`
	WithPayload bool           `json:"with_payload"`
}

type qdrantSearchResponse struct {
	Result []struct {
		ID      json.Number    `json:"id"`
		Score   float64        `json:"score"`
		Payload map[string]any `json:"payload"`
	} `json:"result"`
	Status any `json:"status"`
}

// Search implements Searcher.
func (c *QdrantClient) Search(ctx context.Context, vec []float64, limit int, filter *Filter) ([]Hit, error) {
	reqBody := qdrantSearchRequest{
		Vector:      vec,
		Limit:       limit,
		Filter:      encodeFilter(filter),
		WithPayload: true,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("qdrant returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var searchResp qdrantSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	hits := make([]Hit, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		hits = append(hits, Hit{
			ID:      r.ID.String(),
			Score:   r.Score,
			Payload: r.Payload,
		})
	}

	return hits, nil
}

// encodeFilter converts a Filter into Qdrant's filter JSON shape.
func encodeFilter(filter *Filter) map[string]any {
	if filter == nil {
		return nil
	}

	encodeConditions := func(conds []Condition) []map[string]any {
		out := make([]map[string]any, 0, len(conds))
		for _, c := range conds {
			match := map[string]any{}
			if len(c.AnyOf) > 0 {
				match["any"] = c.AnyOf
			} else {
				match["value"] = c.Value
			}
			out = append(out, map[string]any{
				"key":   c.Key,
				"match": match,
			})
		}
		return out
	}

	encoded := map[string]any{}
	if len(filter.Must) > 0 {
		encoded["must"] = encodeConditions(filter.Must)
	}
	if len(filter.MustNot) > 0 {
		encoded["must_not"] = encodeConditions(filter.MustNot)
	}
	if len(encoded) == 0 {
		return nil
	}
	return encoded
}

// Verify interface compliance at compile time
var _ Searcher = (*QdrantClient)(nil)
