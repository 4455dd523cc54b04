// Package policy decides whether a tool call may auto-execute or needs human
// approval, and explains gated decisions with machine-readable reasons plus a
// human-auditable preview.
package policy

import (
	"encoding/json"
	"strings"
)

// Action is the mutation verb carried by a graph tool call.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Target is the kind of graph record a mutation addresses.
type Target string

const (
	TargetEntity       Target = "entity"
	TargetRelationship Target = "relationship"
)

// Mutation is the normalized form of a graph tool call. Several tool shapes
// (dedicated per-operation tools, node/edge synonyms, and the consolidated
// tagged-union tool) converge on this one struct before classification and
// execution.
type Mutation struct {
	Action Action
	Target Target

	Type string

	// Entity fields.
	Name       string
	NewName    string
	Aliases    []string
	Properties map[string]any

	// Notes is nil when the call does not touch notes.
	Notes *string

	// Relationship fields. Bidirectional is nil when the call does not
	// mention it, so the classifier can tell "untouched" from "set false".
	SourceName    string
	TargetName    string
	Bidirectional *bool
	Strength      *float64
	Metadata      map[string]any

	// Raw update keys, used for identity-field checks.
	UpdatedFields []string
}

// graphToolNames maps each graph tool name to its (action, target) pair.
// Node/edge are accepted as synonyms for entity/relationship.
var graphToolNames = map[string]struct {
	action Action
	target Target
}{
	"create_entity":       {ActionCreate, TargetEntity},
	"update_entity":       {ActionUpdate, TargetEntity},
	"delete_entity":       {ActionDelete, TargetEntity},
	"create_node":         {ActionCreate, TargetEntity},
	"update_node":         {ActionUpdate, TargetEntity},
	"delete_node":         {ActionDelete, TargetEntity},
	"create_relationship": {ActionCreate, TargetRelationship},
	"update_relationship": {ActionUpdate, TargetRelationship},
	"delete_relationship": {ActionDelete, TargetRelationship},
	"create_edge":         {ActionCreate, TargetRelationship},
	"update_edge":         {ActionUpdate, TargetRelationship},
	"delete_edge":         {ActionDelete, TargetRelationship},
}

// IsGraphTool reports whether the tool name addresses the knowledge graph.
func IsGraphTool(name string) bool {
	if _, ok := graphToolNames[name]; ok {
		return true
	}
	return name == "graph_mutation"
}

// NormalizeMutation maps a graph tool call onto a Mutation. The second return
// is false when the shape cannot be normalized; callers must treat that as
// requiring approval rather than guessing.
func NormalizeMutation(toolName string, args map[string]any) (*Mutation, bool) {
	action, target := "", ""
	if at, ok := graphToolNames[toolName]; ok {
		action, target = string(at.action), string(at.target)
	} else if toolName == "graph_mutation" {
		// Consolidated tool: a tagged union over action x target.
		action = stringArg(args, "action")
		target = stringArg(args, "target")
	} else {
		return nil, false
	}

	switch target {
	case "node":
		target = string(TargetEntity)
	case "edge":
		target = string(TargetRelationship)
	}

	m := &Mutation{Action: Action(action), Target: Target(target)}
	switch m.Action {
	case ActionCreate, ActionUpdate, ActionDelete:
	default:
		return nil, false
	}
	switch m.Target {
	case TargetEntity, TargetRelationship:
	default:
		return nil, false
	}

	m.Type = stringArg(args, "type")
	if v, ok := args["notes"].(string); ok {
		m.Notes = &v
	}

	if m.Target == TargetEntity {
		m.Name = firstStringArg(args, "entityName", "name")
		m.NewName = stringArg(args, "newName")
		m.Properties = mapArg(args, "properties")
		m.Aliases = stringSliceArg(args, "aliases")
		if m.Action == ActionCreate && (m.Type == "" || m.Name == "") {
			return nil, false
		}
		if m.Action != ActionCreate && m.Name == "" {
			return nil, false
		}
	} else {
		m.SourceName = firstStringArg(args, "sourceName", "source")
		m.TargetName = firstStringArg(args, "targetName", "target_name")
		m.Metadata = mapArg(args, "metadata")
		if v, ok := args["bidirectional"].(bool); ok {
			m.Bidirectional = &v
		}
		if v, ok := floatArg(args, "strength"); ok {
			m.Strength = &v
		}
		if m.Type == "" || m.SourceName == "" || m.TargetName == "" {
			return nil, false
		}
	}

	if m.Action == ActionUpdate {
		m.UpdatedFields = updatedFieldKeys(args, m)
	}

	return m, true
}

// updatedFieldKeys lists the field names an update touches, flattening
// property/metadata patches so identity-field checks see individual keys.
func updatedFieldKeys(args map[string]any, m *Mutation) []string {
	skip := map[string]bool{
		"action": true, "target": true, "type": true,
		"entityName": true, "name": true,
		"sourceName": true, "source": true,
		"targetName": true, "target_name": true,
		"projectId": true,
	}
	var keys []string
	for k := range args {
		if skip[k] || strings.TrimSpace(k) == "" {
			continue
		}
		if k == "properties" || k == "metadata" {
			continue
		}
		keys = append(keys, k)
	}
	for k := range m.Properties {
		keys = append(keys, k)
	}
	for k := range m.Metadata {
		keys = append(keys, k)
	}
	if m.NewName != "" {
		keys = append(keys, "name")
	}
	return keys
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return strings.TrimSpace(v)
}

func firstStringArg(args map[string]any, keys ...string) string {
	for _, k := range keys {
		if v := stringArg(args, k); v != "" {
			return v
		}
	}
	return ""
}

func mapArg(args map[string]any, key string) map[string]any {
	v, _ := args[key].(map[string]any)
	return v
}

func stringSliceArg(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func floatArg(args map[string]any, key string) (float64, bool) {
	switch v := args[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
