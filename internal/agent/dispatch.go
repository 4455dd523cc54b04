package agent

import (
	"context"

	"github.com/mythos-ai/mythos-core/internal/graph"
	"github.com/mythos-ai/mythos-core/internal/policy"
	"github.com/mythos-ai/mythos-core/types"
)

// executeMutation maps a normalized mutation onto the executor's four
// concrete operations. Every graph tool shape converges here.
func executeMutation(ctx context.Context, x *graph.Executor, projectID, actor string, m *policy.Mutation) (*graph.Result, error) {
	if m == nil {
		return nil, types.GraphErrorf(types.CodeNotImplemented, "unrecognized graph mutation")
	}

	if m.Action == policy.ActionDelete {
		return x.Delete(ctx, projectID, actor, string(m.Target), m.Name)
	}

	switch {
	case m.Target == policy.TargetEntity && m.Action == policy.ActionCreate:
		return x.CreateEntity(ctx, graph.CreateEntityRequest{
			ProjectID:  projectID,
			Actor:      actor,
			Type:       m.Type,
			Name:       m.Name,
			Aliases:    m.Aliases,
			Properties: m.Properties,
			Notes:      stringOrEmpty(m.Notes),
		})
	case m.Target == policy.TargetEntity && m.Action == policy.ActionUpdate:
		return x.UpdateEntity(ctx, graph.UpdateEntityRequest{
			ProjectID:  projectID,
			Actor:      actor,
			EntityName: m.Name,
			Type:       m.Type,
			NewName:    m.NewName,
			AddAliases: m.Aliases,
			Properties: m.Properties,
			Notes:      m.Notes,
		})
	case m.Target == policy.TargetRelationship && m.Action == policy.ActionCreate:
		return x.CreateRelationship(ctx, graph.CreateRelationshipRequest{
			ProjectID:     projectID,
			Actor:         actor,
			Type:          m.Type,
			SourceName:    m.SourceName,
			TargetName:    m.TargetName,
			Bidirectional: m.Bidirectional != nil && *m.Bidirectional,
			Strength:      m.Strength,
			Notes:         stringOrEmpty(m.Notes),
			Metadata:      m.Metadata,
		})
	case m.Target == policy.TargetRelationship && m.Action == policy.ActionUpdate:
		return x.UpdateRelationship(ctx, graph.UpdateRelationshipRequest{
			ProjectID:     projectID,
			Actor:         actor,
			Type:          m.Type,
			SourceName:    m.SourceName,
			TargetName:    m.TargetName,
			Bidirectional: m.Bidirectional,
			Strength:      m.Strength,
			Notes:         m.Notes,
			Metadata:      m.Metadata,
		})
	}
	return nil, types.GraphErrorf(types.CodeNotImplemented, "unsupported mutation %s %s", m.Action, m.Target)
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
