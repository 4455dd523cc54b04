package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mythos-ai/mythos-core/types"
)

func TestValidateOverride(t *testing.T) {
	bad := RiskLevel("catastrophic")

	tests := []struct {
		name    string
		doc     *OverrideDoc
		wantErr string
	}{
		{name: "nil document", doc: nil},
		{name: "empty document", doc: &OverrideDoc{}},
		{
			name: "valid extension",
			doc: &OverrideDoc{
				EntityTypes: []OverrideEntry{{
					Type:        "prophecy",
					DisplayName: "Prophecy",
					Schema: map[string]any{
						"type": "object",
						"properties": map[string]any{
							"fulfilled": map[string]any{"type": "boolean"},
						},
					},
				}},
			},
		},
		{
			name: "missing type name",
			doc: &OverrideDoc{
				EntityTypes: []OverrideEntry{{DisplayName: "Nameless"}},
			},
			wantErr: "missing type name",
		},
		{
			name: "missing display name",
			doc: &OverrideDoc{
				EntityTypes: []OverrideEntry{{Type: "prophecy"}},
			},
			wantErr: "missing a display name",
		},
		{
			name: "duplicate type",
			doc: &OverrideDoc{
				RelationshipTypes: []OverrideEntry{
					{Type: "rivalry", DisplayName: "Rivalry"},
					{Type: "rivalry", DisplayName: "Rivalry Again"},
				},
			},
			wantErr: "duplicate type",
		},
		{
			name: "invalid risk level",
			doc: &OverrideDoc{
				EntityTypes: []OverrideEntry{{Type: "prophecy", DisplayName: "Prophecy", RiskLevel: &bad}},
			},
			wantErr: "invalid risk level",
		},
		{
			name: "non-object schema",
			doc: &OverrideDoc{
				EntityTypes: []OverrideEntry{{
					Type:        "prophecy",
					DisplayName: "Prophecy",
					Schema:      map[string]any{"type": "array"},
				}},
			},
			wantErr: "invalid properties schema",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOverride(tt.doc)
			if tt.wantErr == "" {
				assert.Nil(t, err)
				return
			}
			require.NotNil(t, err)
			assert.Equal(t, types.CodeInvalidRegistry, err.Code)
			assert.Contains(t, err.Message, tt.wantErr)
		})
	}
}

func TestValidateEntityProperties(t *testing.T) {
	resolved, err := Resolve("fiction", nil)
	require.NoError(t, err)
	character, _ := resolved.EntityType("character")

	t.Run("valid value round-trips unchanged", func(t *testing.T) {
		props := map[string]any{"age": 29, "status": "alive", "title": "Warden"}
		got, gerr := ValidateEntityProperties(character, props)
		require.Nil(t, gerr)
		assert.Equal(t, props, got)
	})

	t.Run("nil becomes an empty object", func(t *testing.T) {
		got, gerr := ValidateEntityProperties(character, nil)
		require.Nil(t, gerr)
		assert.Equal(t, map[string]any{}, got)
	})

	t.Run("enum violation", func(t *testing.T) {
		_, gerr := ValidateEntityProperties(character, map[string]any{"status": "undead"})
		require.NotNil(t, gerr)
		assert.Equal(t, types.CodeSchemaValidationFailed, gerr.Code)
		errs, ok := gerr.Details["errors"].([]string)
		require.True(t, ok)
		assert.NotEmpty(t, errs)
	})

	t.Run("bound violation", func(t *testing.T) {
		_, gerr := ValidateEntityProperties(character, map[string]any{"age": -3})
		require.NotNil(t, gerr)
		assert.Equal(t, types.CodeSchemaValidationFailed, gerr.Code)
	})

	t.Run("schemaless type accepts anything", func(t *testing.T) {
		item, _ := resolved.EntityType("item")
		props := map[string]any{"weight": "heavy", "cursed": true}
		got, gerr := ValidateEntityProperties(item, props)
		require.Nil(t, gerr)
		assert.Equal(t, props, got)
	})
}

func TestValidateRelationshipMetadata(t *testing.T) {
	resolved, err := Resolve("fiction", nil)
	require.NoError(t, err)
	owns, _ := resolved.RelationshipType("owns")

	got, gerr := ValidateRelationshipMetadata(owns, map[string]any{"since": "chapter 3"})
	require.Nil(t, gerr)
	assert.Equal(t, "chapter 3", got["since"])

	_, gerr = ValidateRelationshipMetadata(owns, map[string]any{"since": 7})
	require.NotNil(t, gerr)
	assert.Equal(t, types.CodeSchemaValidationFailed, gerr.Code)
}
