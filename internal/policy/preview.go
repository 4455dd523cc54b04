package policy

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mythos-ai/mythos-core/internal/graph"
)

// Preview is a best-effort, human-auditable description of a pending
// mutation, shown before the user approves it.
type Preview struct {
	Summary string      `json:"summary"`
	Changes []FieldDiff `json:"changes,omitempty"`
	Notes   []string    `json:"notes,omitempty"`
}

// FieldDiff is one old-to-new field change.
type FieldDiff struct {
	Field string `json:"field"`
	Old   any    `json:"old,omitempty"`
	New   any    `json:"new"`
}

// BuildApprovalPreview renders the mutation for the approval UI. Name
// resolution failures become notes rather than errors; a preview must never
// abort the approval flow.
func BuildApprovalPreview(ctx context.Context, entities EntityResolver, projectID string, m *Mutation) Preview {
	if m == nil {
		return Preview{Summary: "Unrecognized graph mutation", Notes: []string{"the tool call could not be normalized"}}
	}

	switch m.Target {
	case TargetEntity:
		return entityPreview(ctx, entities, projectID, m)
	case TargetRelationship:
		return relationshipPreview(ctx, entities, projectID, m)
	default:
		return Preview{Summary: fmt.Sprintf("%s %s", m.Action, m.Target)}
	}
}

func entityPreview(ctx context.Context, entities EntityResolver, projectID string, m *Mutation) Preview {
	var p Preview

	switch m.Action {
	case ActionCreate:
		p.Summary = fmt.Sprintf("Create %s %q", displayType(m.Type), m.Name)
		for _, k := range sortedKeys(m.Properties) {
			p.Changes = append(p.Changes, FieldDiff{Field: k, New: m.Properties[k]})
		}
		return p
	case ActionDelete:
		p.Summary = fmt.Sprintf("Delete %s %q", displayType(m.Type), m.Name)
		p.Notes = append(p.Notes, "delete is not supported; this call will fail")
		return p
	}

	p.Summary = fmt.Sprintf("Update %q", m.Name)
	existing := resolveOne(ctx, entities, projectID, m.Name, m.Type, &p)

	if m.NewName != "" {
		diff := FieldDiff{Field: "name", New: m.NewName}
		if existing != nil {
			diff.Old = existing.Name
		}
		p.Changes = append(p.Changes, diff)
	}
	for _, k := range sortedKeys(m.Properties) {
		diff := FieldDiff{Field: k, New: m.Properties[k]}
		if existing != nil {
			diff.Old = existing.Properties[k]
		}
		p.Changes = append(p.Changes, diff)
	}
	if existing != nil {
		p.Summary = fmt.Sprintf("Update %s %q", displayType(existing.Type), existing.Name)
	}
	return p
}

func relationshipPreview(ctx context.Context, entities EntityResolver, projectID string, m *Mutation) Preview {
	var p Preview

	verb := "Update"
	if m.Action == ActionCreate {
		verb = "Create"
	}
	p.Summary = fmt.Sprintf("%s %s relationship %q -> %q", verb, m.Type, m.SourceName, m.TargetName)

	resolveOne(ctx, entities, projectID, m.SourceName, "", &p)
	resolveOne(ctx, entities, projectID, m.TargetName, "", &p)

	if m.Bidirectional != nil {
		p.Changes = append(p.Changes, FieldDiff{Field: "bidirectional", New: *m.Bidirectional})
	}
	if m.Strength != nil {
		p.Changes = append(p.Changes, FieldDiff{Field: "strength", New: *m.Strength})
	}
	for _, k := range sortedKeys(m.Metadata) {
		p.Changes = append(p.Changes, FieldDiff{Field: "metadata." + k, New: m.Metadata[k]})
	}
	if m.Action == ActionDelete {
		p.Notes = append(p.Notes, "delete is not supported; this call will fail")
	}
	return p
}

// resolveOne looks up a named entity for diff context. Failures are recorded
// as notes; the preview is still built.
func resolveOne(ctx context.Context, entities EntityResolver, projectID, name, typeHint string, p *Preview) *graph.Entity {
	if entities == nil || name == "" {
		return nil
	}
	matches, err := entities.FindEntitiesByCanonical(ctx, projectID, graph.CanonicalName(name), typeHint)
	if err != nil {
		p.Notes = append(p.Notes, fmt.Sprintf("could not resolve %q: %v", name, err))
		return nil
	}
	switch len(matches) {
	case 0:
		p.Notes = append(p.Notes, fmt.Sprintf("no entity named %q", name))
		return nil
	case 1:
		return &matches[0]
	default:
		types := make([]string, 0, len(matches))
		for _, e := range matches {
			types = append(types, e.Type)
		}
		sort.Strings(types)
		p.Notes = append(p.Notes, fmt.Sprintf("%q is ambiguous across types: %s", name, strings.Join(types, ", ")))
		return nil
	}
}

func displayType(t string) string {
	if t == "" {
		return "entity"
	}
	return t
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
