package registry

import (
	"github.com/mythos-ai/mythos-core/types"
)

// Resolve merges the named template's defaults with a project override
// document. Overrides may replace display name, icon, color, schema, and risk
// level of a template type, and may add new types, but the approval
// configuration always comes from the template: letting end users edit
// approval policy through the registry would be a privilege escalation.
//
// The override document is validated before merging; an invalid document
// yields INVALID_REGISTRY and no partial merge.
func Resolve(templateID string, override *OverrideDoc) (*Resolved, error) {
	tmpl, err := LookupTemplate(templateID)
	if err != nil {
		return nil, types.GraphErrorf(types.CodeInvalidRegistry, "%v", err)
	}

	if override != nil {
		if gerr := ValidateOverride(override); gerr != nil {
			return nil, gerr
		}
	}

	resolved := &Resolved{
		EntityTypes:       make(map[string]TypeDef, len(tmpl.EntityTypes)),
		RelationshipTypes: make(map[string]RelationshipTypeDef, len(tmpl.RelationshipTypes)),
	}
	for _, def := range tmpl.EntityTypes {
		resolved.EntityTypes[def.Type] = def
	}
	for _, def := range tmpl.RelationshipTypes {
		resolved.RelationshipTypes[def.Type] = def
	}

	if override == nil {
		return resolved, nil
	}

	for _, entry := range override.EntityTypes {
		base, known := resolved.EntityTypes[entry.Type]
		if !known {
			base = TypeDef{Type: entry.Type, RiskLevel: RiskHigh}
		}
		if entry.DisplayName != "" {
			base.DisplayName = entry.DisplayName
		}
		if entry.Icon != "" {
			base.Icon = entry.Icon
		}
		if entry.Color != "" {
			base.Color = entry.Color
		}
		if entry.RiskLevel != nil {
			base.RiskLevel = *entry.RiskLevel
		}
		if entry.Schema != nil {
			base.Schema = entry.Schema
		}
		// entry.Approval is deliberately ignored
		resolved.EntityTypes[entry.Type] = base
	}

	for _, entry := range override.RelationshipTypes {
		base, known := resolved.RelationshipTypes[entry.Type]
		if !known {
			base = RelationshipTypeDef{Type: entry.Type, RiskLevel: RiskHigh}
		}
		if entry.DisplayName != "" {
			base.DisplayName = entry.DisplayName
		}
		if entry.RiskLevel != nil {
			base.RiskLevel = *entry.RiskLevel
		}
		if entry.Schema != nil {
			base.Schema = entry.Schema
		}
		resolved.RelationshipTypes[entry.Type] = base
	}

	return resolved, nil
}

// Lock freezes a project override document after verifying that every entity
// type currently in use by the project is known to the resolved registry.
// typesInUse is the distinct set of entity type names stored for the project.
func Lock(templateID string, override *OverrideDoc, typesInUse []string) (*OverrideDoc, error) {
	if override == nil {
		override = &OverrideDoc{}
	}
	if override.Locked {
		return nil, types.GraphErrorf(types.CodeRegistryLocked, "registry is already locked")
	}

	resolved, err := Resolve(templateID, override)
	if err != nil {
		return nil, err
	}

	var unknown []string
	for _, t := range typesInUse {
		if _, ok := resolved.EntityTypes[t]; !ok {
			unknown = append(unknown, t)
		}
	}
	if len(unknown) > 0 {
		return nil, types.NewGraphError(types.CodeLockFailedUnknownTypes,
			"entities reference types missing from the registry",
			map[string]any{"unknownTypes": unknown})
	}

	locked := *override
	locked.Locked = true
	return &locked, nil
}
