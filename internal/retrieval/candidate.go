// Package retrieval implements the hybrid retrieval-fusion pipeline: dense
// vector search, lexical search, Reciprocal Rank Fusion, optional cross-encoder
// reranking, and chunk-context expansion.
package retrieval

import "fmt"

// Kind classifies what a retrieval candidate refers to.
type Kind string

const (
	KindDocument Kind = "document"
	KindEntity   Kind = "entity"
	KindMemory   Kind = "memory"
)

// Source records which stage produced a candidate.
type Source string

const (
	SourceQdrant  Source = "qdrant"
	SourceLexical Source = "lexical"
	SourceMemory  Source = "memory"
	SourceText    Source = "text"
)

// Candidate is one ephemeral retrieval result. Created during a single
// retrieval call, scored, ranked, projected into a RAGContext, then discarded.
type Candidate struct {
	Key        string
	ID         string
	Kind       Kind
	Type       string
	Title      string
	Preview    string
	RerankText string
	Source     Source

	VectorScore  *float64
	LexicalScore *float64
	RRFScore     *float64
	RerankScore  *float64

	ChunkIndex *int
}

// CandidateKey is the fusion dedup key: "{kind}:{id}:{chunk}" for chunked
// content, "{kind}:{id}" otherwise.
func CandidateKey(kind Kind, id string, chunkIndex *int) string {
	if chunkIndex != nil {
		return fmt.Sprintf("%s:%s:%d", kind, id, *chunkIndex)
	}
	return fmt.Sprintf("%s:%s", kind, id)
}

// EffectiveScore is the ranking score: rerank beats fused beats raw scores.
func (c *Candidate) EffectiveScore() float64 {
	switch {
	case c.RerankScore != nil:
		return *c.RerankScore
	case c.RRFScore != nil:
		return *c.RRFScore
	case c.VectorScore != nil:
		return *c.VectorScore
	case c.LexicalScore != nil:
		return *c.LexicalScore
	default:
		return 0
	}
}

// LexicalHit is an externally supplied full-text search result, ranked best
// first by the producer.
type LexicalHit struct {
	ID         string
	Kind       Kind
	Type       string
	Title      string
	Preview    string
	Score      float64
	ChunkIndex *int
}

// RAGContextItem is one projected result handed to prompt construction.
type RAGContextItem struct {
	ID         string   `json:"id"`
	Title      string   `json:"title,omitempty"`
	Name       string   `json:"name,omitempty"`
	Type       string   `json:"type,omitempty"`
	Preview    string   `json:"preview"`
	ChunkIndex *int     `json:"chunkIndex,omitempty"`
	Category   string   `json:"category,omitempty"`
	Score      *float64 `json:"score,omitempty"`
	Source     Source   `json:"source,omitempty"`
}

// RAGContext is the ranked, capped projection of a retrieval call.
type RAGContext struct {
	Documents []RAGContextItem `json:"documents"`
	Entities  []RAGContextItem `json:"entities"`
	Memories  []RAGContextItem `json:"memories"`
}

// Empty reports whether the context carries no items at all.
func (c *RAGContext) Empty() bool {
	return len(c.Documents) == 0 && len(c.Entities) == 0 && len(c.Memories) == 0
}
