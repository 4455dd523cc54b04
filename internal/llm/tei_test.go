package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTeiEmbedderOpenAIEndpoint(t *testing.T) {
	var gotPath string
	var gotReq teiEmbeddingRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		// Return data out of order to exercise index alignment.
		resp := map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"object": "embedding", "embedding": []float64{0.3, 0.4}, "index": 1},
				{"object": "embedding", "embedding": []float64{0.1, 0.2}, "index": 0},
			},
			"model": "test-model",
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	embedder, err := NewTeiEmbedder(context.Background(), &TeiConfig{BaseURL: srv.URL, Model: "test-model"})
	if err != nil {
		t.Fatalf("NewTeiEmbedder: %v", err)
	}

	embeddings, err := embedder.EmbedStrings(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("EmbedStrings: %v", err)
	}

	if gotPath != "/v1/embeddings" {
		t.Errorf("path = %q, want /v1/embeddings", gotPath)
	}
	if len(gotReq.Input) != 2 || gotReq.Input[0] != "first" {
		t.Errorf("request input = %v", gotReq.Input)
	}
	if gotReq.Model != "test-model" {
		t.Errorf("request model = %q, want test-model", gotReq.Model)
	}
	if len(embeddings) != 2 {
		t.Fatalf("got %d embeddings, want 2", len(embeddings))
	}
	if embeddings[0][0] != 0.1 || embeddings[1][0] != 0.3 {
		t.Errorf("embeddings not aligned by index: %v", embeddings)
	}
}

func TestTeiEmbedderNativeFallback(t *testing.T) {
	var nativeCalled bool

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/embeddings":
			http.Error(w, "not found", http.StatusNotFound)
		case "/embed":
			nativeCalled = true
			var req teiNativeEmbedRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Fatalf("decode native request: %v", err)
			}
			if !req.Truncate {
				t.Error("native request should set truncate")
			}
			_ = json.NewEncoder(w).Encode([][]float64{{0.5, 0.6}})
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	}))
	defer srv.Close()

	embedder, err := NewTeiEmbedder(context.Background(), &TeiConfig{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewTeiEmbedder: %v", err)
	}

	embeddings, err := embedder.EmbedStrings(context.Background(), []string{"hello"})
	if err != nil {
		t.Fatalf("EmbedStrings: %v", err)
	}
	if !nativeCalled {
		t.Error("native /embed endpoint was not called")
	}
	if len(embeddings) != 1 || embeddings[0][0] != 0.5 {
		t.Errorf("embeddings = %v", embeddings)
	}
}

func TestTeiEmbedderEmptyInput(t *testing.T) {
	embedder, err := NewTeiEmbedder(context.Background(), &TeiConfig{BaseURL: "http://127.0.0.1:1"})
	if err != nil {
		t.Fatalf("NewTeiEmbedder: %v", err)
	}
	embeddings, err := embedder.EmbedStrings(context.Background(), nil)
	if err != nil {
		t.Fatalf("EmbedStrings: %v", err)
	}
	if embeddings != nil {
		t.Errorf("expected nil embeddings, got %v", embeddings)
	}
}

func TestTeiEmbedderRequiresBaseURL(t *testing.T) {
	if _, err := NewTeiEmbedder(context.Background(), &TeiConfig{}); err == nil {
		t.Error("expected error for missing base URL")
	}
}

func TestTeiEmbedderTaskPrefixes(t *testing.T) {
	tests := []struct {
		name string
		task EmbedTask
		want string
	}{
		{name: "query prefix", task: EmbedTaskQuery, want: "query: elara"},
		{name: "passage prefix", task: EmbedTaskDocument, want: "passage: elara"},
		{name: "unknown task unprefixed", task: EmbedTask("other"), want: "elara"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotInput []string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var req teiEmbeddingRequest
				_ = json.NewDecoder(r.Body).Decode(&req)
				gotInput = req.Input
				resp := map[string]any{
					"data": []map[string]any{{"embedding": []float64{1}, "index": 0}},
				}
				_ = json.NewEncoder(w).Encode(resp)
			}))
			defer srv.Close()

			embedder, err := NewTeiEmbedder(context.Background(), &TeiConfig{BaseURL: srv.URL})
			if err != nil {
				t.Fatalf("NewTeiEmbedder: %v", err)
			}
			if _, err := embedder.EmbedWithTask(context.Background(), "elara", tt.task); err != nil {
				t.Fatalf("EmbedWithTask: %v", err)
			}
			if len(gotInput) != 1 || gotInput[0] != tt.want {
				t.Errorf("input = %v, want [%q]", gotInput, tt.want)
			}
		})
	}
}

func TestTeiRerankerAlignsScoresByIndex(t *testing.T) {
	var gotReq TeiRerankRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rerank" {
			t.Errorf("path = %q, want /rerank", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		// TEI returns results sorted by relevance, not input order.
		_ = json.NewEncoder(w).Encode([]TeiRerankResponse{
			{Index: 2, Score: 0.9},
			{Index: 0, Score: 0.4},
			{Index: 1, Score: 0.1},
		})
	}))
	defer srv.Close()

	reranker, err := NewTeiReranker(context.Background(), &TeiRerankerConfig{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewTeiReranker: %v", err)
	}

	scores, err := reranker.Rerank(context.Background(), "who is elara", []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}

	if gotReq.Query != "who is elara" {
		t.Errorf("query = %q", gotReq.Query)
	}
	if !gotReq.Truncate {
		t.Error("rerank request should set truncate")
	}
	want := []float64{0.4, 0.1, 0.9}
	if len(scores) != len(want) {
		t.Fatalf("got %d scores, want %d", len(scores), len(want))
	}
	for i := range want {
		if scores[i] != want[i] {
			t.Errorf("scores[%d] = %v, want %v", i, scores[i], want[i])
		}
	}
}

func TestTeiRerankerEmptyDocuments(t *testing.T) {
	reranker, err := NewTeiReranker(context.Background(), &TeiRerankerConfig{BaseURL: "http://127.0.0.1:1"})
	if err != nil {
		t.Fatalf("NewTeiReranker: %v", err)
	}
	scores, err := reranker.Rerank(context.Background(), "query", nil)
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if scores != nil {
		t.Errorf("expected nil scores, got %v", scores)
	}
}

func TestTeiRerankerServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	reranker, err := NewTeiReranker(context.Background(), &TeiRerankerConfig{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewTeiReranker: %v", err)
	}
	if _, err := reranker.Rerank(context.Background(), "query", []string{"a"}); err == nil {
		t.Error("expected error for 503 response")
	}
}
