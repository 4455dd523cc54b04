package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mythos-ai/mythos-core/internal/config"
	"github.com/mythos-ai/mythos-core/internal/graph"
	"github.com/mythos-ai/mythos-core/internal/registry"
)

type fixedRegistry struct {
	resolved *registry.Resolved
}

func (f *fixedRegistry) GetResolvedRegistry(context.Context, string) (*registry.Resolved, error) {
	return f.resolved, nil
}

type fixedEntities struct {
	entities []graph.Entity
}

func (f *fixedEntities) FindEntitiesByCanonical(_ context.Context, _, canonical, typeFilter string) ([]graph.Entity, error) {
	var out []graph.Entity
	for _, e := range f.entities {
		if typeFilter != "" && e.Type != typeFilter {
			continue
		}
		if e.CanonicalName == canonical {
			out = append(out, e)
		}
	}
	return out, nil
}

func newTestClassifier(t *testing.T, entities ...graph.Entity) *Classifier {
	t.Helper()
	resolved, err := registry.Resolve("fiction", nil)
	require.NoError(t, err)
	return NewClassifier(
		&fixedRegistry{resolved: resolved},
		&fixedEntities{entities: entities},
		config.DefaultPolicyConfig(),
	)
}

func classify(t *testing.T, c *Classifier, tool string, args map[string]any) Decision {
	t.Helper()
	d, err := c.Classify(context.Background(), "proj-1", tool, args)
	require.NoError(t, err)
	return d
}

func TestStaticToolTable(t *testing.T) {
	c := newTestClassifier(t)

	assert.True(t, classify(t, c, "search_documents", nil).AutoExecute)
	assert.True(t, classify(t, c, "read_document", nil).AutoExecute)

	d := classify(t, c, "delete_document", map[string]any{"id": "doc-1"})
	assert.False(t, d.AutoExecute)
	assert.Equal(t, DangerDestructive, d.Danger)

	// A tool the table has never heard of fails closed.
	d = classify(t, c, "launch_rockets", nil)
	assert.False(t, d.AutoExecute)
	assert.Contains(t, d.Reasons, ReasonMutationUnresolved)
}

func TestCreateLowRiskEntityAutoExecutes(t *testing.T) {
	c := newTestClassifier(t)

	d := classify(t, c, "create_entity", map[string]any{
		"type": "item",
		"name": "Rusty Lantern",
	})
	assert.True(t, d.AutoExecute)
	assert.Empty(t, d.Reasons)
}

func TestCreateHighAndCoreRiskGated(t *testing.T) {
	c := newTestClassifier(t)

	d := classify(t, c, "create_entity", map[string]any{
		"type": "location", "name": "Velhaven",
	})
	assert.False(t, d.AutoExecute)
	assert.Contains(t, d.Reasons, ReasonRiskHigh)

	d = classify(t, c, "create_entity", map[string]any{
		"type": "character", "name": "Elara Voss",
	})
	assert.False(t, d.AutoExecute)
	assert.Contains(t, d.Reasons, ReasonRiskCore)
	assert.Equal(t, DangerDestructive, d.Danger)
}

func TestCreateRequiresApprovalFlag(t *testing.T) {
	c := newTestClassifier(t)

	// faction is high risk and additionally flags createRequiresApproval.
	d := classify(t, c, "create_entity", map[string]any{
		"type": "faction", "name": "Iron Compact",
	})
	assert.False(t, d.AutoExecute)
	assert.Contains(t, d.Reasons, ReasonCreateRequiresApproval)
	assert.Contains(t, d.Reasons, ReasonRiskHigh)
}

func TestCoreUpdateAlwaysGated(t *testing.T) {
	// Scenario: core-risk type, update touching only notes still gates.
	c := newTestClassifier(t, graph.Entity{
		ID: "e1", ProjectID: "proj-1", Type: "character",
		Name: "Elara Voss", CanonicalName: "elara voss",
	})

	d := classify(t, c, "update_entity", map[string]any{
		"entityName": "Elara Voss",
		"notes":      "She left the capital.",
	})
	assert.False(t, d.AutoExecute)
	assert.Contains(t, d.Reasons, ReasonRiskCore)
}

func TestLowRiskNonIdentityUpdateAutoExecutes(t *testing.T) {
	c := newTestClassifier(t, graph.Entity{
		ID: "e1", ProjectID: "proj-1", Type: "item",
		Name: "Rusty Lantern", CanonicalName: "rusty lantern",
	})

	d := classify(t, c, "update_entity", map[string]any{
		"entityName": "Rusty Lantern",
		"notes":      "Found in the cellar.",
	})
	assert.True(t, d.AutoExecute)
}

func TestIdentityFieldChangeGated(t *testing.T) {
	// faction declares goal/leader as identity fields and is high risk, but
	// plain high risk does not gate updates; only the identity change does.
	c := newTestClassifier(t, graph.Entity{
		ID: "e1", ProjectID: "proj-1", Type: "faction",
		Name: "Iron Compact", CanonicalName: "iron compact",
	})

	d := classify(t, c, "update_entity", map[string]any{
		"entityName": "Iron Compact",
		"notes":      "Recruiting in the north.",
	})
	assert.True(t, d.AutoExecute)

	d = classify(t, c, "update_entity", map[string]any{
		"entityName": "Iron Compact",
		"properties": map[string]any{"leader": "Dorian Kane"},
	})
	assert.False(t, d.AutoExecute)
	assert.Contains(t, d.Reasons, ReasonIdentityChange)
}

func TestUnknownTypeGated(t *testing.T) {
	c := newTestClassifier(t)

	d := classify(t, c, "create_entity", map[string]any{
		"type": "starship", "name": "Nightjar",
	})
	assert.False(t, d.AutoExecute)
	assert.Contains(t, d.Reasons, ReasonInvalidType)
}

func TestRelationshipRules(t *testing.T) {
	c := newTestClassifier(t)

	// ally is low risk: create auto-executes.
	d := classify(t, c, "create_relationship", map[string]any{
		"type": "ally", "sourceName": "A", "targetName": "B",
	})
	assert.True(t, d.AutoExecute)

	// romance is high risk: create gates.
	d = classify(t, c, "create_relationship", map[string]any{
		"type": "romance", "sourceName": "A", "targetName": "B",
	})
	assert.False(t, d.AutoExecute)
	assert.Contains(t, d.Reasons, ReasonRiskHigh)

	// Touching bidirectional on update gates even at low risk.
	d = classify(t, c, "update_relationship", map[string]any{
		"type": "ally", "sourceName": "A", "targetName": "B",
		"bidirectional": true,
	})
	assert.False(t, d.AutoExecute)
	assert.Contains(t, d.Reasons, ReasonBidirectionalChange)

	// Weakening strength below the threshold gates; above it does not.
	d = classify(t, c, "update_relationship", map[string]any{
		"type": "ally", "sourceName": "A", "targetName": "B",
		"strength": 0.1,
	})
	assert.False(t, d.AutoExecute)
	assert.Contains(t, d.Reasons, ReasonStrengthSensitive)

	d = classify(t, c, "update_relationship", map[string]any{
		"type": "ally", "sourceName": "A", "targetName": "B",
		"strength": 0.7,
	})
	assert.True(t, d.AutoExecute)

	// family is core: any update gates.
	d = classify(t, c, "update_relationship", map[string]any{
		"type": "family", "sourceName": "A", "targetName": "B",
		"notes": "half-siblings",
	})
	assert.False(t, d.AutoExecute)
	assert.Contains(t, d.Reasons, ReasonRiskCore)
}

func TestConsolidatedGraphMutationTool(t *testing.T) {
	c := newTestClassifier(t)

	d := classify(t, c, "graph_mutation", map[string]any{
		"action": "create", "target": "entity",
		"type": "item", "name": "Rusty Lantern",
	})
	assert.True(t, d.AutoExecute)
	require.NotNil(t, d.Mutation)
	assert.Equal(t, ActionCreate, d.Mutation.Action)
	assert.Equal(t, TargetEntity, d.Mutation.Target)

	// node/edge synonyms normalize to entity/relationship.
	d = classify(t, c, "graph_mutation", map[string]any{
		"action": "create", "target": "edge",
		"type": "ally", "sourceName": "A", "targetName": "B",
	})
	assert.True(t, d.AutoExecute)
	assert.Equal(t, TargetRelationship, d.Mutation.Target)
}

func TestMalformedMutationFailsClosed(t *testing.T) {
	c := newTestClassifier(t)

	// Calls missing required fields cannot be normalized.
	d := classify(t, c, "graph_mutation", map[string]any{"action": "create"})
	assert.False(t, d.AutoExecute)
	assert.Contains(t, d.Reasons, ReasonMutationUnresolved)

	d = classify(t, c, "create_entity", map[string]any{"name": "No Type"})
	assert.False(t, d.AutoExecute)
}

func TestDeleteAlwaysGated(t *testing.T) {
	c := newTestClassifier(t, graph.Entity{
		ID: "e1", ProjectID: "proj-1", Type: "item",
		Name: "Rusty Lantern", CanonicalName: "rusty lantern",
	})

	d := classify(t, c, "delete_entity", map[string]any{
		"type": "item", "entityName": "Rusty Lantern",
	})
	assert.False(t, d.AutoExecute)
	assert.Equal(t, DangerDestructive, d.Danger)
}
