// Package vector defines the narrow search interface the retrieval pipeline
// needs from a vector index, plus payload filter modeling.
package vector

import "context"

// Condition matches a payload key against either a single value or any of a
// set of values.
type Condition struct {
	Key   string
	Value any   // equality match; ignored when AnyOf is set
	AnyOf []any // "any of" match
}

// Filter combines must and must_not conditions over point payloads.
type Filter struct {
	Must    []Condition
	MustNot []Condition
}

// Hit is one nearest-neighbor result.
type Hit struct {
	ID      string
	Score   float64
	Payload map[string]any
}

// Searcher is the retrieval pipeline's view of a vector index.
type Searcher interface {
	Search(ctx context.Context, vector []float64, limit int, filter *Filter) ([]Hit, error)
}
