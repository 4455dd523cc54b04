package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mythos-ai/mythos-core/types"
)

func requireRegistryError(t *testing.T, err error, code string) *types.GraphError {
	t.Helper()
	var gerr *types.GraphError
	require.ErrorAs(t, err, &gerr)
	require.Equal(t, code, gerr.Code)
	return gerr
}

func TestResolveDefaultTemplate(t *testing.T) {
	resolved, err := Resolve("", nil)
	require.NoError(t, err)

	character, ok := resolved.EntityType("character")
	require.True(t, ok)
	assert.Equal(t, RiskCore, character.RiskLevel)
	require.NotNil(t, character.Approval)
	assert.Contains(t, character.Approval.IdentityFields, "motivation")

	family, ok := resolved.RelationshipType("family")
	require.True(t, ok)
	assert.Equal(t, RiskCore, family.RiskLevel)
	require.NotNil(t, family.Approval)
	assert.True(t, family.Approval.UpdateAlwaysRequiresApproval)

	_, ok = resolved.EntityType("starship")
	assert.False(t, ok)
}

func TestResolveUnknownTemplate(t *testing.T) {
	_, err := Resolve("screenplay", nil)
	requireRegistryError(t, err, types.CodeInvalidRegistry)
}

func TestResolveOverrideAddsNewType(t *testing.T) {
	override := &OverrideDoc{
		EntityTypes: []OverrideEntry{
			{Type: "prophecy", DisplayName: "Prophecy"},
		},
		RelationshipTypes: []OverrideEntry{
			{Type: "foretold_by", DisplayName: "Foretold By"},
		},
	}

	resolved, err := Resolve("fiction", override)
	require.NoError(t, err)

	// New types default to high risk until the project says otherwise.
	prophecy, ok := resolved.EntityType("prophecy")
	require.True(t, ok)
	assert.Equal(t, RiskHigh, prophecy.RiskLevel)
	assert.Equal(t, "Prophecy", prophecy.DisplayName)
	assert.Nil(t, prophecy.Approval)

	foretold, ok := resolved.RelationshipType("foretold_by")
	require.True(t, ok)
	assert.Equal(t, RiskHigh, foretold.RiskLevel)
}

func TestResolveOverrideReplacesOnlyProvidedFields(t *testing.T) {
	low := RiskLow
	override := &OverrideDoc{
		EntityTypes: []OverrideEntry{
			{Type: "location", DisplayName: "Place", RiskLevel: &low},
		},
	}

	resolved, err := Resolve("fiction", override)
	require.NoError(t, err)

	location, ok := resolved.EntityType("location")
	require.True(t, ok)
	assert.Equal(t, "Place", location.DisplayName)
	assert.Equal(t, RiskLow, location.RiskLevel)
	// Fields the override omits keep their template values.
	assert.Equal(t, "map-pin", location.Icon)
	require.NotNil(t, location.Schema)
}

func TestResolveOverrideNeverChangesApproval(t *testing.T) {
	low := RiskLow
	override := &OverrideDoc{
		EntityTypes: []OverrideEntry{
			{
				Type:        "character",
				DisplayName: "Character",
				RiskLevel:   &low,
				Approval: &ApprovalRule{
					CreateRequiresApproval:       false,
					UpdateAlwaysRequiresApproval: false,
					IdentityFields:               nil,
				},
			},
		},
	}

	resolved, err := Resolve("fiction", override)
	require.NoError(t, err)

	character, _ := resolved.EntityType("character")
	assert.Equal(t, RiskLow, character.RiskLevel)
	require.NotNil(t, character.Approval)
	assert.ElementsMatch(t, []string{"role", "motivation", "status"}, character.Approval.IdentityFields)
}

func TestResolveRejectsInvalidOverride(t *testing.T) {
	_, err := Resolve("fiction", &OverrideDoc{
		EntityTypes: []OverrideEntry{{Type: "prophecy"}},
	})
	requireRegistryError(t, err, types.CodeInvalidRegistry)
}

func TestLock(t *testing.T) {
	t.Run("freezes a clean registry", func(t *testing.T) {
		locked, err := Lock("fiction", nil, []string{"character", "item"})
		require.NoError(t, err)
		assert.True(t, locked.Locked)
	})

	t.Run("rejects relocking", func(t *testing.T) {
		_, err := Lock("fiction", &OverrideDoc{Locked: true}, nil)
		requireRegistryError(t, err, types.CodeRegistryLocked)
	})

	t.Run("rejects unknown types in use", func(t *testing.T) {
		_, err := Lock("fiction", nil, []string{"character", "starship", "mecha"})
		gerr := requireRegistryError(t, err, types.CodeLockFailedUnknownTypes)
		assert.ElementsMatch(t, []string{"starship", "mecha"}, gerr.Details["unknownTypes"])
	})

	t.Run("override types count as known", func(t *testing.T) {
		override := &OverrideDoc{
			EntityTypes: []OverrideEntry{{Type: "starship", DisplayName: "Starship"}},
		}
		locked, err := Lock("fiction", override, []string{"starship"})
		require.NoError(t, err)
		assert.True(t, locked.Locked)
		// The input document is not mutated.
		assert.False(t, override.Locked)
	})
}

func TestLookupTemplate(t *testing.T) {
	fiction, err := LookupTemplate("")
	require.NoError(t, err)
	assert.Equal(t, "fiction", fiction.ID)

	world, err := LookupTemplate("worldbuilding")
	require.NoError(t, err)
	assert.Equal(t, "Worldbuilding", world.DisplayName)

	_, err = LookupTemplate("noir")
	require.Error(t, err)

	assert.ElementsMatch(t, []string{"fiction", "worldbuilding"}, TemplateIDs())
}
