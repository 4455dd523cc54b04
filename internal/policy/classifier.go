package policy

import (
	"context"
	"fmt"
	"sort"

	"github.com/mythos-ai/mythos-core/internal/config"
	"github.com/mythos-ai/mythos-core/internal/graph"
	"github.com/mythos-ai/mythos-core/internal/registry"
)

// ApprovalReason is a machine-readable explanation for a gated decision.
type ApprovalReason string

const (
	ReasonInvalidType            ApprovalReason = "invalid_type"
	ReasonRiskCore               ApprovalReason = "risk_core"
	ReasonRiskHigh               ApprovalReason = "risk_high"
	ReasonCreateRequiresApproval ApprovalReason = "create_requires_approval"
	ReasonUpdateRequiresApproval ApprovalReason = "update_requires_approval"
	ReasonIdentityChange         ApprovalReason = "identity_change"
	ReasonBidirectionalChange    ApprovalReason = "bidirectional_change"
	ReasonStrengthSensitive      ApprovalReason = "strength_sensitive"
	ReasonMutationUnresolved     ApprovalReason = "mutation_unresolved"
	ReasonRegistryUnknown        ApprovalReason = "registry_unknown"
)

// ApprovalType distinguishes what the user is approving.
type ApprovalType string

const (
	ApprovalExecution ApprovalType = "execution"
	ApprovalInput     ApprovalType = "input"
	ApprovalApply     ApprovalType = "apply"
)

// Danger grades the blast radius of a gated call for the approval UI.
type Danger string

const (
	DangerSafe        Danger = "safe"
	DangerCostly      Danger = "costly"
	DangerDestructive Danger = "destructive"
)

// Decision is the classifier's verdict on one tool call.
type Decision struct {
	AutoExecute  bool               `json:"autoExecute"`
	ApprovalType ApprovalType       `json:"approvalType,omitempty"`
	Danger       Danger             `json:"danger,omitempty"`
	RiskLevel    registry.RiskLevel `json:"riskLevel,omitempty"`
	Reasons      []ApprovalReason   `json:"approvalReasons,omitempty"`
	Mutation     *Mutation          `json:"-"`
}

func autoDecision() Decision {
	return Decision{AutoExecute: true}
}

// staticToolTable fixes the policy for every non-graph tool. Read-only tools
// auto-execute; anything that writes content, commits a decision, or touches
// shared artifacts is gated.
var staticToolTable = map[string]Decision{
	"search_knowledge":  autoDecision(),
	"search_documents":  autoDecision(),
	"read_document":     autoDecision(),
	"list_entities":     autoDecision(),
	"get_entity":        autoDecision(),
	"get_relationships": autoDecision(),
	"write_content":     {ApprovalType: ApprovalApply, Danger: DangerCostly},
	"commit_decision":   {ApprovalType: ApprovalExecution, Danger: DangerCostly},
	"add_comment":       {ApprovalType: ApprovalExecution, Danger: DangerSafe},
	"delete_document":   {ApprovalType: ApprovalExecution, Danger: DangerDestructive},
}

// EntityResolver looks up entities by canonical name. graph.Store satisfies
// it; the classifier needs it to learn the actual type of an update target
// when the call carries no type hint.
type EntityResolver interface {
	FindEntitiesByCanonical(ctx context.Context, projectID, canonical, typeFilter string) ([]graph.Entity, error)
}

// Classifier decides tool-call policy. Graph mutations are risk-driven
// through the project's resolved type registry; everything else follows the
// static table.
type Classifier struct {
	registry graph.RegistrySource
	entities EntityResolver
	cfg      config.PolicyConfig
}

// NewClassifier creates a policy classifier. entities may be nil; entity
// updates without a type hint are then gated instead of risk-checked.
func NewClassifier(reg graph.RegistrySource, entities EntityResolver, cfg config.PolicyConfig) *Classifier {
	return &Classifier{registry: reg, entities: entities, cfg: cfg}
}

// Classify decides whether the tool call may auto-execute. Unknown tools and
// graph calls that cannot be normalized fail closed.
func (c *Classifier) Classify(ctx context.Context, projectID, toolName string, args map[string]any) (Decision, error) {
	if !IsGraphTool(toolName) {
		if d, ok := staticToolTable[toolName]; ok {
			return d, nil
		}
		return Decision{
			ApprovalType: ApprovalExecution,
			Danger:       DangerCostly,
			Reasons:      []ApprovalReason{ReasonMutationUnresolved},
		}, nil
	}

	mutation, ok := NormalizeMutation(toolName, args)
	if !ok {
		return Decision{
			ApprovalType: ApprovalApply,
			Danger:       DangerCostly,
			Reasons:      []ApprovalReason{ReasonMutationUnresolved},
		}, nil
	}

	reg, err := c.registry.GetResolvedRegistry(ctx, projectID)
	if err != nil {
		// No registry means no risk information; gate rather than guess.
		return Decision{
			ApprovalType: ApprovalApply,
			Danger:       DangerCostly,
			Reasons:      []ApprovalReason{ReasonRegistryUnknown},
			Mutation:     mutation,
		}, fmt.Errorf("resolve registry for classification: %w", err)
	}

	// Entity updates often omit the type; resolve the target so risk rules
	// apply to the entity's actual type rather than defaulting open.
	if mutation.Target == TargetEntity && mutation.Action != ActionCreate && mutation.Type == "" {
		resolved, ok := c.resolveTargetType(ctx, projectID, mutation.Name)
		if !ok {
			return Decision{
				ApprovalType: ApprovalApply,
				Danger:       DangerCostly,
				Reasons:      []ApprovalReason{ReasonMutationUnresolved},
				Mutation:     mutation,
			}, nil
		}
		mutation.Type = resolved
	}

	d := classifyMutation(mutation, reg, c.cfg.StrengthThreshold)
	d.Mutation = mutation
	return d, nil
}

func (c *Classifier) resolveTargetType(ctx context.Context, projectID, name string) (string, bool) {
	if c.entities == nil {
		return "", false
	}
	matches, err := c.entities.FindEntitiesByCanonical(ctx, projectID, graph.CanonicalName(name), "")
	if err != nil || len(matches) != 1 {
		return "", false
	}
	return matches[0].Type, true
}

func classifyMutation(m *Mutation, reg *registry.Resolved, strengthThreshold float64) Decision {
	var reasons []ApprovalReason
	var risk registry.RiskLevel

	switch m.Target {
	case TargetEntity:
		def, ok := reg.EntityType(m.Type)
		if !ok {
			reasons = append(reasons, ReasonInvalidType)
		} else {
			risk = def.RiskLevel
			reasons = append(reasons, entityReasons(m, def)...)
		}
	case TargetRelationship:
		def, ok := reg.RelationshipType(m.Type)
		if !ok {
			reasons = append(reasons, ReasonInvalidType)
		} else {
			risk = def.RiskLevel
			reasons = append(reasons, relationshipReasons(m, def, strengthThreshold)...)
		}
	}

	if m.Action == ActionDelete {
		// Delete is not implemented by the executor; gate it defensively so
		// an unrecognized capability never slips through.
		reasons = append(reasons, ReasonMutationUnresolved)
	}

	if len(reasons) == 0 {
		return Decision{AutoExecute: true, RiskLevel: risk}
	}

	sort.Slice(reasons, func(i, j int) bool { return reasons[i] < reasons[j] })
	return Decision{
		ApprovalType: ApprovalApply,
		Danger:       dangerFor(m.Action, risk),
		RiskLevel:    risk,
		Reasons:      dedupReasons(reasons),
	}
}

func entityReasons(m *Mutation, def registry.TypeDef) []ApprovalReason {
	var reasons []ApprovalReason
	approval := def.Approval

	switch m.Action {
	case ActionCreate:
		if def.RiskLevel == registry.RiskHigh {
			reasons = append(reasons, ReasonRiskHigh)
		}
		if def.RiskLevel == registry.RiskCore {
			reasons = append(reasons, ReasonRiskCore)
		}
		if approval != nil && approval.CreateRequiresApproval {
			reasons = append(reasons, ReasonCreateRequiresApproval)
		}
	case ActionUpdate:
		if def.RiskLevel == registry.RiskCore {
			reasons = append(reasons, ReasonRiskCore)
		}
		if approval != nil && approval.UpdateAlwaysRequiresApproval {
			reasons = append(reasons, ReasonUpdateRequiresApproval)
		}
		if approval != nil && touchesIdentityFields(m.UpdatedFields, approval.IdentityFields) {
			reasons = append(reasons, ReasonIdentityChange)
		}
	}
	return reasons
}

func relationshipReasons(m *Mutation, def registry.RelationshipTypeDef, strengthThreshold float64) []ApprovalReason {
	var reasons []ApprovalReason

	switch m.Action {
	case ActionCreate:
		if def.RiskLevel == registry.RiskHigh {
			reasons = append(reasons, ReasonRiskHigh)
		}
		if def.RiskLevel == registry.RiskCore {
			reasons = append(reasons, ReasonRiskCore)
		}
	case ActionUpdate:
		if def.RiskLevel == registry.RiskCore {
			reasons = append(reasons, ReasonRiskCore)
		}
		if m.Bidirectional != nil {
			reasons = append(reasons, ReasonBidirectionalChange)
		}
		// Weakening a relationship below the threshold is a
		// narrative-impacting edit.
		if m.Strength != nil && *m.Strength < strengthThreshold {
			reasons = append(reasons, ReasonStrengthSensitive)
		}
	}
	return reasons
}

func touchesIdentityFields(updated, identity []string) bool {
	if len(identity) == 0 {
		return false
	}
	set := make(map[string]bool, len(identity))
	for _, f := range identity {
		set[f] = true
	}
	for _, k := range updated {
		if set[k] {
			return true
		}
	}
	return false
}

func dangerFor(action Action, risk registry.RiskLevel) Danger {
	if action == ActionDelete {
		return DangerDestructive
	}
	if risk == registry.RiskCore {
		return DangerDestructive
	}
	return DangerCostly
}

func dedupReasons(reasons []ApprovalReason) []ApprovalReason {
	seen := make(map[ApprovalReason]bool, len(reasons))
	out := reasons[:0]
	for _, r := range reasons {
		if seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}
