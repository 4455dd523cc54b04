package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mythos-ai/mythos-core/internal/graph"
	"github.com/mythos-ai/mythos-core/internal/retrieval"
)

func TestSearchLexical(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	projectID := seedProject(t, s)
	now := time.Now().UTC()

	require.NoError(t, s.SaveDocument(ctx, Document{
		ID: "doc-1", ProjectID: projectID, Title: "Chapter One", DocType: "chapter",
		Chunks: []string{
			"Elara crossed the ashfield at dawn.",
			"The witch of the ashfield was waiting for her.",
			"They spoke of the siege until nightfall.",
		},
		CreatedAt: now,
	}))
	require.NoError(t, s.CreateEntityRecord(ctx, graph.Entity{
		ID: uuid.NewString(), ProjectID: projectID, Type: "character",
		Name: "Elara Voss", CanonicalName: "elara voss",
		Notes: "Known as the witch of the ashfield.",
		CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, s.SaveMemory(ctx, Memory{
		ID: uuid.NewString(), ProjectID: projectID, Category: "canon",
		Content:   "The ashfield burned in the first war.",
		CreatedAt: now,
	}))

	hits, err := s.SearchLexical(ctx, projectID, "ashfield witch", 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	kinds := map[retrieval.Kind]bool{}
	for _, h := range hits {
		assert.Greater(t, h.Score, 0.0)
		kinds[h.Kind] = true
	}
	assert.True(t, kinds[retrieval.KindDocument])
	assert.True(t, kinds[retrieval.KindEntity])
	assert.True(t, kinds[retrieval.KindMemory])

	// Document hits carry a chunk index and the document title.
	for _, h := range hits {
		if h.Kind == retrieval.KindDocument {
			require.NotNil(t, h.ChunkIndex)
			assert.Equal(t, "Chapter One", h.Title)
		}
	}

	// Scores come back descending.
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
	}

	// Other projects see nothing.
	hits, err = s.SearchLexical(ctx, "other-project", "ashfield", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	// FTS operator characters are stripped, not passed through.
	_, err = s.SearchLexical(ctx, projectID, `"witch" AND (ash*`, 10)
	require.NoError(t, err)
}

func TestGetDocumentChunks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	projectID := seedProject(t, s)

	require.NoError(t, s.SaveDocument(ctx, Document{
		ID: "doc-1", ProjectID: projectID, Title: "Chapter One",
		Chunks:    []string{"zero", "one", "two", "three", "four"},
		CreatedAt: time.Now().UTC(),
	}))

	chunks, err := s.GetDocumentChunks(ctx, projectID, "doc-1", 1, 3)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, 1, chunks[0].Index)
	assert.Equal(t, "three", chunks[2].Text)

	// Negative from is clamped; out-of-range to is harmless.
	chunks, err = s.GetDocumentChunks(ctx, projectID, "doc-1", -2, 99)
	require.NoError(t, err)
	assert.Len(t, chunks, 5)

	chunks, err = s.GetDocumentChunks(ctx, projectID, "missing", 0, 2)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}
