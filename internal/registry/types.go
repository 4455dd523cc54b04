// Package registry resolves the per-project set of allowed entity and
// relationship types. Each type carries a display name, an optional JSON-Schema
// for custom properties, a risk level, and approval rules that drive the tool
// policy classifier.
package registry

// RiskLevel classifies how sensitive mutations of a type are.
type RiskLevel string

const (
	RiskLow  RiskLevel = "low"
	RiskHigh RiskLevel = "high"
	RiskCore RiskLevel = "core"
)

// Valid reports whether the risk level is one of the known values.
func (r RiskLevel) Valid() bool {
	return r == RiskLow || r == RiskHigh || r == RiskCore
}

// ApprovalRule configures when mutations of a type need human approval.
// Approval policy is owned by the template, never by project overrides.
type ApprovalRule struct {
	CreateRequiresApproval       bool     `yaml:"createRequiresApproval" json:"createRequiresApproval"`
	UpdateAlwaysRequiresApproval bool     `yaml:"updateAlwaysRequiresApproval" json:"updateAlwaysRequiresApproval"`
	IdentityFields               []string `yaml:"identityFields" json:"identityFields,omitempty"`
}

// TypeDef describes one entity type within a project registry.
type TypeDef struct {
	Type        string         `yaml:"type" json:"type"`
	DisplayName string         `yaml:"displayName" json:"displayName"`
	Icon        string         `yaml:"icon" json:"icon,omitempty"`
	Color       string         `yaml:"color" json:"color,omitempty"`
	RiskLevel   RiskLevel      `yaml:"riskLevel" json:"riskLevel"`
	Schema      map[string]any `yaml:"schema" json:"schema,omitempty"`
	Approval    *ApprovalRule  `yaml:"approval" json:"approval,omitempty"`
}

// RelationshipTypeDef describes one relationship type. Same shape as TypeDef
// minus the display-only fields.
type RelationshipTypeDef struct {
	Type        string         `yaml:"type" json:"type"`
	DisplayName string         `yaml:"displayName" json:"displayName"`
	RiskLevel   RiskLevel      `yaml:"riskLevel" json:"riskLevel"`
	Schema      map[string]any `yaml:"schema" json:"schema,omitempty"`
	Approval    *ApprovalRule  `yaml:"approval" json:"approval,omitempty"`
}

// Resolved is the merged view of a project's registry: template defaults plus
// project overrides. Derived per call, never persisted.
type Resolved struct {
	EntityTypes       map[string]TypeDef
	RelationshipTypes map[string]RelationshipTypeDef
}

// EntityType looks up an entity type definition.
func (r *Resolved) EntityType(name string) (TypeDef, bool) {
	def, ok := r.EntityTypes[name]
	return def, ok
}

// RelationshipType looks up a relationship type definition.
func (r *Resolved) RelationshipType(name string) (RelationshipTypeDef, bool) {
	def, ok := r.RelationshipTypes[name]
	return def, ok
}

// OverrideEntry is one project-supplied type customization. Entries naming an
// unknown type extend the registry; entries naming a template type replace only
// the fields they provide. The approval field is accepted for round-tripping
// but never merged.
type OverrideEntry struct {
	Type        string         `yaml:"type" json:"type"`
	DisplayName string         `yaml:"displayName" json:"displayName"`
	Icon        string         `yaml:"icon" json:"icon,omitempty"`
	Color       string         `yaml:"color" json:"color,omitempty"`
	RiskLevel   *RiskLevel     `yaml:"riskLevel" json:"riskLevel,omitempty"`
	Schema      map[string]any `yaml:"schema" json:"schema,omitempty"`
	Approval    *ApprovalRule  `yaml:"approval" json:"approval,omitempty"`
}

// OverrideDoc is the project override document stored alongside a project.
type OverrideDoc struct {
	EntityTypes       []OverrideEntry `yaml:"entityTypes" json:"entityTypes,omitempty"`
	RelationshipTypes []OverrideEntry `yaml:"relationshipTypes" json:"relationshipTypes,omitempty"`
	Locked            bool            `yaml:"locked" json:"locked,omitempty"`
}
