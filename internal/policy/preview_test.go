package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mythos-ai/mythos-core/internal/graph"
)

func TestBuildApprovalPreviewCreate(t *testing.T) {
	m, ok := NormalizeMutation("create_entity", map[string]any{
		"type": "character", "name": "Elara Voss",
		"properties": map[string]any{"role": "protagonist"},
	})
	require.True(t, ok)

	p := BuildApprovalPreview(context.Background(), &fixedEntities{}, "proj-1", m)
	assert.Equal(t, `Create character "Elara Voss"`, p.Summary)
	require.Len(t, p.Changes, 1)
	assert.Equal(t, "role", p.Changes[0].Field)
	assert.Nil(t, p.Changes[0].Old)
}

func TestBuildApprovalPreviewUpdateDiffsOldValues(t *testing.T) {
	entities := &fixedEntities{entities: []graph.Entity{{
		ID: "e1", ProjectID: "proj-1", Type: "character",
		Name: "Elara Voss", CanonicalName: "elara voss",
		Properties: map[string]any{"status": "alive"},
	}}}

	m, ok := NormalizeMutation("update_entity", map[string]any{
		"entityName": "elara voss",
		"properties": map[string]any{"status": "missing"},
	})
	require.True(t, ok)

	p := BuildApprovalPreview(context.Background(), entities, "proj-1", m)
	assert.Equal(t, `Update character "Elara Voss"`, p.Summary)
	require.Len(t, p.Changes, 1)
	assert.Equal(t, "alive", p.Changes[0].Old)
	assert.Equal(t, "missing", p.Changes[0].New)
	assert.Empty(t, p.Notes)
}

func TestBuildApprovalPreviewResolutionFailuresAreNotes(t *testing.T) {
	m, ok := NormalizeMutation("update_entity", map[string]any{
		"entityName": "Nobody",
		"notes":      "gone",
	})
	require.True(t, ok)

	p := BuildApprovalPreview(context.Background(), &fixedEntities{}, "proj-1", m)
	assert.NotEmpty(t, p.Summary)
	require.Len(t, p.Notes, 1)
	assert.Contains(t, p.Notes[0], "Nobody")
}

func TestBuildApprovalPreviewAmbiguousName(t *testing.T) {
	entities := &fixedEntities{entities: []graph.Entity{
		{ID: "e1", Type: "character", Name: "Aria", CanonicalName: "aria"},
		{ID: "e2", Type: "location", Name: "Aria", CanonicalName: "aria"},
	}}

	m, ok := NormalizeMutation("create_relationship", map[string]any{
		"type": "ally", "sourceName": "Aria", "targetName": "Ghost",
	})
	require.True(t, ok)

	p := BuildApprovalPreview(context.Background(), entities, "proj-1", m)
	require.Len(t, p.Notes, 2)
	assert.Contains(t, p.Notes[0], "ambiguous")
	assert.Contains(t, p.Notes[0], "character, location")
	assert.Contains(t, p.Notes[1], "Ghost")
}
