package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mythos-ai/mythos-core/internal/graph"
	"github.com/mythos-ai/mythos-core/internal/policy"
	"github.com/mythos-ai/mythos-core/internal/registry"
	"github.com/mythos-ai/mythos-core/types"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedProject(t *testing.T, s *SQLiteStore) string {
	t.Helper()
	id := uuid.NewString()
	err := s.CreateProject(context.Background(), Project{
		ID:         id,
		Name:       "Ashfall",
		TemplateID: "fiction",
		CreatedAt:  time.Now().UTC(),
	}, "alice")
	require.NoError(t, err)
	return id
}

func TestProjectRoles(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	projectID := seedProject(t, s)

	role, err := s.GetProjectRole(ctx, projectID, "alice")
	require.NoError(t, err)
	assert.Equal(t, graph.RoleOwner, role)

	role, err = s.GetProjectRole(ctx, projectID, "stranger")
	require.NoError(t, err)
	assert.Equal(t, graph.Role(""), role)

	require.NoError(t, s.SetMemberRole(ctx, projectID, "bob", graph.RoleViewer))
	role, err = s.GetProjectRole(ctx, projectID, "bob")
	require.NoError(t, err)
	assert.Equal(t, graph.RoleViewer, role)
}

func TestEntityRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	projectID := seedProject(t, s)

	now := time.Now().UTC()
	e := graph.Entity{
		ID:            uuid.NewString(),
		ProjectID:     projectID,
		Type:          "character",
		Name:          "Elara Voss",
		CanonicalName: "elara voss",
		Aliases:       []string{"The Ash Witch"},
		Properties:    map[string]any{"role": "protagonist"},
		Notes:         "Introduced in chapter one.",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, s.CreateEntityRecord(ctx, e))

	got, err := s.GetEntity(ctx, e.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, e.Name, got.Name)
	assert.Equal(t, []string{"The Ash Witch"}, got.Aliases)
	assert.Equal(t, "protagonist", got.Properties["role"])

	// Lookup by canonical name and by canonicalized alias.
	matches, err := s.FindEntitiesByCanonical(ctx, projectID, "elara voss", "")
	require.NoError(t, err)
	require.Len(t, matches, 1)

	matches, err = s.FindEntitiesByCanonical(ctx, projectID, "the ash witch", "")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, e.ID, matches[0].ID)

	// Type filter excludes.
	matches, err = s.FindEntitiesByCanonical(ctx, projectID, "elara voss", "location")
	require.NoError(t, err)
	assert.Empty(t, matches)

	// Update rewrites aliases and canonical name.
	got.Name = "Elara Voss-Kane"
	got.CanonicalName = graph.CanonicalName(got.Name)
	got.Aliases = []string{"The Ash Witch", "Lady Voss"}
	got.UpdatedAt = time.Now().UTC()
	require.NoError(t, s.UpdateEntityRecord(ctx, *got))

	matches, err = s.FindEntitiesByCanonical(ctx, projectID, "lady voss", "")
	require.NoError(t, err)
	require.Len(t, matches, 1)

	matches, err = s.FindEntitiesByCanonical(ctx, projectID, "elara voss", "")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestRelationshipRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	projectID := seedProject(t, s)

	now := time.Now().UTC()
	var ids []string
	for _, name := range []string{"Elara Voss", "Dorian Kane"} {
		e := graph.Entity{
			ID: uuid.NewString(), ProjectID: projectID, Type: "character",
			Name: name, CanonicalName: graph.CanonicalName(name),
			CreatedAt: now, UpdatedAt: now,
		}
		require.NoError(t, s.CreateEntityRecord(ctx, e))
		ids = append(ids, e.ID)
	}

	strength := 0.8
	r := graph.Relationship{
		ID: uuid.NewString(), ProjectID: projectID,
		SourceID: ids[0], TargetID: ids[1], Type: "ally",
		Bidirectional: true, Strength: &strength,
		Metadata:  map[string]any{"since": "the siege"},
		CreatedAt: now,
	}
	require.NoError(t, s.CreateRelationshipRecord(ctx, r))

	got, err := s.FindRelationship(ctx, projectID, ids[0], ids[1], "ally")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Bidirectional)
	require.NotNil(t, got.Strength)
	assert.Equal(t, 0.8, *got.Strength)
	assert.Equal(t, "the siege", got.Metadata["since"])

	// Reverse direction and other types are distinct.
	got, err = s.FindRelationship(ctx, projectID, ids[1], ids[0], "ally")
	require.NoError(t, err)
	assert.Nil(t, got)
	got, err = s.FindRelationship(ctx, projectID, ids[0], ids[1], "enemy")
	require.NoError(t, err)
	assert.Nil(t, got)

	weak := 0.1
	r.Strength = &weak
	r.Bidirectional = false
	require.NoError(t, s.UpdateRelationshipRecord(ctx, r))
	got, err = s.FindRelationship(ctx, projectID, ids[0], ids[1], "ally")
	require.NoError(t, err)
	assert.False(t, got.Bidirectional)
	assert.Equal(t, 0.1, *got.Strength)
}

func TestActivityAndEmbedQueue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	projectID := seedProject(t, s)

	require.NoError(t, s.AppendActivity(ctx, graph.Activity{
		ID: uuid.NewString(), ProjectID: projectID, Actor: "alice",
		Action: "update", TargetKind: "entity", TargetID: "e1",
		ChangedFields: []string{"notes"}, CreatedAt: time.Now().UTC(),
	}))

	activities, err := s.ListActivities(ctx, projectID, 10)
	require.NoError(t, err)
	require.Len(t, activities, 1)
	assert.Equal(t, []string{"notes"}, activities[0].ChangedFields)

	require.NoError(t, s.EnqueueEmbed(ctx, projectID, "entity", "e1"))
	jobs, err := s.PendingEmbedJobs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "entity", jobs[0].Kind)

	require.NoError(t, s.MarkEmbedDone(ctx, jobs[0].ID))
	jobs, err = s.PendingEmbedJobs(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestRegistryOverrideLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	projectID := seedProject(t, s)

	resolved, err := s.GetResolvedRegistry(ctx, projectID)
	require.NoError(t, err)
	_, ok := resolved.EntityType("character")
	assert.True(t, ok)

	// Extend the registry with a project-specific type.
	high := registry.RiskHigh
	doc := &registry.OverrideDoc{
		EntityTypes: []registry.OverrideEntry{
			{Type: "prophecy", DisplayName: "Prophecy", RiskLevel: &high},
		},
	}
	require.NoError(t, s.SaveRegistryOverride(ctx, projectID, doc))

	resolved, err = s.GetResolvedRegistry(ctx, projectID)
	require.NoError(t, err)
	def, ok := resolved.EntityType("prophecy")
	require.True(t, ok)
	assert.Equal(t, registry.RiskHigh, def.RiskLevel)

	// Lock, then further edits fail.
	require.NoError(t, s.LockRegistry(ctx, projectID))
	err = s.SaveRegistryOverride(ctx, projectID, doc)
	gerr, ok := err.(*types.GraphError)
	require.True(t, ok)
	assert.Equal(t, types.CodeRegistryLocked, gerr.Code)
}

func TestLockRegistryRejectsUnknownTypesInUse(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	projectID := seedProject(t, s)

	now := time.Now().UTC()
	require.NoError(t, s.CreateEntityRecord(ctx, graph.Entity{
		ID: uuid.NewString(), ProjectID: projectID, Type: "starship",
		Name: "Nightjar", CanonicalName: "nightjar",
		CreatedAt: now, UpdatedAt: now,
	}))

	err := s.LockRegistry(ctx, projectID)
	gerr, ok := err.(*types.GraphError)
	require.True(t, ok)
	assert.Equal(t, types.CodeLockFailedUnknownTypes, gerr.Code)
	assert.Contains(t, gerr.Details["unknownTypes"], "starship")
}

func TestSuggestionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	projectID := seedProject(t, s)

	sg := policy.Suggestion{
		ID:           uuid.NewString(),
		ProjectID:    projectID,
		ToolCallID:   "call-1",
		ToolName:     "update_entity",
		ApprovalType: policy.ApprovalApply,
		Danger:       policy.DangerDestructive,
		RiskLevel:    registry.RiskCore,
		Reasons:      []policy.ApprovalReason{policy.ReasonRiskCore},
		Preview:      policy.Preview{Summary: `Update character "Elara Voss"`},
		Actor:        "alice",
		StreamID:     "stream-1",
		ThreadID:     "thread-1",
		Status:       policy.SuggestionPending,
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, s.SaveSuggestion(ctx, sg))

	pending, err := s.ListPendingSuggestions(ctx, projectID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, sg.Preview.Summary, pending[0].Preview.Summary)
	assert.Equal(t, []policy.ApprovalReason{policy.ReasonRiskCore}, pending[0].Reasons)

	ok, err := s.ResolveSuggestion(ctx, sg.ID, policy.SuggestionApplied)
	require.NoError(t, err)
	assert.True(t, ok)

	// Resolving twice is a no-op.
	ok, err = s.ResolveSuggestion(ctx, sg.ID, policy.SuggestionRejected)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.GetSuggestion(ctx, sg.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, policy.SuggestionApplied, got.Status)
	assert.NotNil(t, got.ResolvedAt)
}
