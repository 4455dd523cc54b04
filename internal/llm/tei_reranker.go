// TEI (Text Embeddings Inference) reranker client.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// TeiRerankerConfig holds configuration for the TEI reranker.
type TeiRerankerConfig struct {
	// BaseURL is the TEI server URL (e.g., "http://localhost:8081")
	BaseURL string

	// Model is the reranker model name (optional)
	Model string

	// Timeout for HTTP requests (default: 30s)
	Timeout time.Duration
}

// TeiReranker provides cross-encoder reranking using TEI's /rerank endpoint.
type TeiReranker struct {
	baseURL string
	model   string
	client  *http.Client
}

// TeiRerankRequest is the request payload for the TEI /rerank endpoint.
type TeiRerankRequest struct {
	Query     string   `json:"query"`
	Texts     []string `json:"texts"`
	RawScores bool     `json:"raw_scores,omitempty"`
	Truncate  bool     `json:"truncate,omitempty"`
}

// TeiRerankResponse is a single rerank result from TEI.
type TeiRerankResponse struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// NewTeiReranker creates a new TEI reranker client.
func NewTeiReranker(ctx context.Context, cfg *TeiRerankerConfig) (*TeiReranker, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("TEI base URL is required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &TeiReranker{
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Rerank scores documents against the query. The returned scores are aligned
// by index with the input documents, which lets the caller merge them into its
// own candidate structures.
func (r *TeiReranker) Rerank(ctx context.Context, query string, documents []string) ([]float64, error) {
	if len(documents) == 0 {
		return nil, nil
	}

	reqBody := TeiRerankRequest{
		Query:    query,
		Texts:    documents,
		Truncate: true,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := r.baseURL + "/rerank"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("TEI rerank returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var rerankResp []TeiRerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&rerankResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	scores := make([]float64, len(documents))
	for _, rr := range rerankResp {
		if rr.Index < len(scores) {
			scores[rr.Index] = rr.Score
		}
	}

	return scores, nil
}

// Close releases any resources held by the reranker.
func (r *TeiReranker) Close() error {
	return nil
}
