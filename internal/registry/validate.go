package registry

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/mythos-ai/mythos-core/types"
)

// ValidateOverride checks a project override document before it is accepted.
// Rejected: missing type name, missing display name on a new (non-template)
// type, duplicate type names within a category, and custom-properties schemas
// that are not plain objects or not well-formed JSON-Schema. Returns a
// *types.GraphError with code INVALID_REGISTRY, or nil.
func ValidateOverride(doc *OverrideDoc) *types.GraphError {
	if doc == nil {
		return nil
	}
	if err := validateEntries("entityTypes", doc.EntityTypes); err != nil {
		return err
	}
	return validateEntries("relationshipTypes", doc.RelationshipTypes)
}

func validateEntries(category string, entries []OverrideEntry) *types.GraphError {
	seen := make(map[string]bool, len(entries))
	for i, entry := range entries {
		if entry.Type == "" {
			return types.GraphErrorf(types.CodeInvalidRegistry,
				"%s[%d]: missing type name", category, i)
		}
		if seen[entry.Type] {
			return types.GraphErrorf(types.CodeInvalidRegistry,
				"%s: duplicate type %q", category, entry.Type)
		}
		seen[entry.Type] = true

		if entry.DisplayName == "" {
			return types.GraphErrorf(types.CodeInvalidRegistry,
				"%s: type %q is missing a display name", category, entry.Type)
		}
		if entry.RiskLevel != nil && !entry.RiskLevel.Valid() {
			return types.GraphErrorf(types.CodeInvalidRegistry,
				"%s: type %q has invalid risk level %q", category, entry.Type, *entry.RiskLevel)
		}
		if entry.Schema != nil {
			if err := validateSchemaDocument(entry.Schema); err != nil {
				return types.GraphErrorf(types.CodeInvalidRegistry,
					"%s: type %q has an invalid properties schema: %v", category, entry.Type, err)
			}
		}
	}
	return nil
}

// validateSchemaDocument checks that a custom-properties schema is a plain
// object schema and compiles against the JSON-Schema meta-schema.
func validateSchemaDocument(schema map[string]any) error {
	if t, ok := schema["type"]; ok {
		if s, isStr := t.(string); !isStr || s != "object" {
			return fmt.Errorf("schema type must be %q", "object")
		}
	}
	if _, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema)); err != nil {
		return fmt.Errorf("schema does not compile: %w", err)
	}
	return nil
}

// ValidateEntityProperties validates a properties object against a type's
// schema. Types without a schema accept any object value as-is (an empty
// object when nil). Validation failures return SCHEMA_VALIDATION_FAILED with
// the validator's field-level errors verbatim.
func ValidateEntityProperties(def TypeDef, properties map[string]any) (map[string]any, *types.GraphError) {
	return validateAgainstSchema(def.Schema, properties)
}

// ValidateRelationshipMetadata validates relationship metadata; same contract
// as ValidateEntityProperties.
func ValidateRelationshipMetadata(def RelationshipTypeDef, metadata map[string]any) (map[string]any, *types.GraphError) {
	return validateAgainstSchema(def.Schema, metadata)
}

func validateAgainstSchema(schema map[string]any, value map[string]any) (map[string]any, *types.GraphError) {
	if value == nil {
		value = map[string]any{}
	}
	if schema == nil {
		return value, nil
	}

	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
	if err != nil {
		return nil, types.GraphErrorf(types.CodeInvalidRegistry, "type schema does not compile: %v", err)
	}

	result, err := compiled.Validate(gojsonschema.NewGoLoader(value))
	if err != nil {
		return nil, types.GraphErrorf(types.CodeSchemaValidationFailed, "validate properties: %v", err)
	}
	if !result.Valid() {
		fieldErrors := make([]string, 0, len(result.Errors()))
		for _, re := range result.Errors() {
			fieldErrors = append(fieldErrors, re.String())
		}
		return nil, types.NewGraphError(types.CodeSchemaValidationFailed,
			"properties do not match the type schema",
			map[string]any{"errors": fieldErrors})
	}
	return value, nil
}
