package vector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func TestQdrantClientRequiresConfig(t *testing.T) {
	if _, err := NewQdrantClient(&QdrantConfig{Collection: "chunks"}); err == nil {
		t.Error("expected error for missing base URL")
	}
	if _, err := NewQdrantClient(&QdrantConfig{BaseURL: "http://localhost:6333"}); err == nil {
		t.Error("expected error for missing collection")
	}
}

func TestQdrantClientSearch(t *testing.T) {
	var gotPath, gotAPIKey string
	var gotReq map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAPIKey = r.Header.Get("api-key")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		resp := map[string]any{
			"result": []map[string]any{
				{"id": "a1b2", "score": 0.91, "payload": map[string]any{"type": "document"}},
				{"id": 42, "score": 0.5, "payload": map[string]any{"type": "entity"}},
			},
			"status": "ok",
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client, err := NewQdrantClient(&QdrantConfig{
		BaseURL:    srv.URL,
		Collection: "mythos_chunks",
		APIKey:     "secret",
	})
	if err != nil {
		t.Fatalf("NewQdrantClient: %v", err)
	}

	hits, err := client.Search(context.Background(), []float64{0.1, 0.2}, 5, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if gotPath != "/collections/mythos_chunks/points/search" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAPIKey != "secret" {
		t.Errorf("api-key header = %q, want secret", gotAPIKey)
	}
	if gotReq["with_payload"] != true {
		t.Error("request should set with_payload")
	}
	if gotReq["limit"] != float64(5) {
		t.Errorf("limit = %v, want 5", gotReq["limit"])
	}
	if _, hasFilter := gotReq["filter"]; hasFilter {
		t.Error("nil filter should be omitted from request")
	}

	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	if hits[0].ID != "a1b2" || hits[0].Score != 0.91 {
		t.Errorf("hit[0] = %+v", hits[0])
	}
	// Numeric point IDs become strings.
	if hits[1].ID != "42" {
		t.Errorf("hit[1].ID = %q, want 42", hits[1].ID)
	}
	if hits[1].Payload["type"] != "entity" {
		t.Errorf("hit[1].Payload = %v", hits[1].Payload)
	}
}

func TestQdrantClientSearchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "collection not found", http.StatusNotFound)
	}))
	defer srv.Close()

	client, err := NewQdrantClient(&QdrantConfig{BaseURL: srv.URL, Collection: "missing"})
	if err != nil {
		t.Fatalf("NewQdrantClient: %v", err)
	}
	if _, err := client.Search(context.Background(), []float64{0.1}, 3, nil); err == nil {
		t.Error("expected error for 404 response")
	}
}

func TestEncodeFilter(t *testing.T) {
	tests := []struct {
		name   string
		filter *Filter
		want   map[string]any
	}{
		{
			name:   "nil filter",
			filter: nil,
			want:   nil,
		},
		{
			name:   "empty filter",
			filter: &Filter{},
			want:   nil,
		},
		{
			name: "must value condition",
			filter: &Filter{
				Must: []Condition{{Key: "project_id", Value: "proj-1"}},
			},
			want: map[string]any{
				"must": []map[string]any{
					{"key": "project_id", "match": map[string]any{"value": "proj-1"}},
				},
			},
		},
		{
			name: "any-of condition",
			filter: &Filter{
				Must: []Condition{{Key: "type", AnyOf: []any{"document", "entity"}}},
			},
			want: map[string]any{
				"must": []map[string]any{
					{"key": "type", "match": map[string]any{"any": []any{"document", "entity"}}},
				},
			},
		},
		{
			name: "must and must_not",
			filter: &Filter{
				Must:    []Condition{{Key: "project_id", Value: "proj-1"}},
				MustNot: []Condition{{Key: "type", Value: "memory"}},
			},
			want: map[string]any{
				"must": []map[string]any{
					{"key": "project_id", "match": map[string]any{"value": "proj-1"}},
				},
				"must_not": []map[string]any{
					{"key": "type", "match": map[string]any{"value": "memory"}},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := encodeFilter(tt.filter)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("encodeFilter() = %#v, want %#v", got, tt.want)
			}
		})
	}
}
