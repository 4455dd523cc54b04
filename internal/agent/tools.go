package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/mythos-ai/mythos-core/internal/graph"
	"github.com/mythos-ai/mythos-core/internal/policy"
	"github.com/mythos-ai/mythos-core/internal/retrieval"
	"github.com/mythos-ai/mythos-core/types"
)

// GraphTool is one graph-mutation tool bound to a project and actor. All
// shapes normalize onto the same execution path; only the declared contract
// differs per name.
type GraphTool struct {
	name     string
	desc     string
	params   map[string]*schema.ParameterInfo
	executor *graph.Executor

	projectID string
	actor     string
}

func (t *GraphTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name:        t.name,
		Desc:        t.desc,
		ParamsOneOf: schema.NewParamsOneOfByParams(t.params),
	}, nil
}

// InvokableRun executes the mutation. Typed graph failures become normal tool
// results encoded as "<CODE>: <detail>" so the model can react to them; only
// infrastructure errors propagate.
func (t *GraphTool) InvokableRun(ctx context.Context, argsJSON string, opts ...tool.Option) (string, error) {
	var args map[string]any
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return "", fmt.Errorf("parse arguments: %w", err)
	}

	m, ok := policy.NormalizeMutation(t.name, args)
	if !ok {
		return types.GraphErrorf(types.CodeNotImplemented, "malformed %s call", t.name).Error(), nil
	}

	result, err := executeMutation(ctx, t.executor, t.projectID, t.actor, m)
	if err != nil {
		if gerr, isGraph := err.(*types.GraphError); isGraph {
			return formatGraphError(gerr), nil
		}
		return "", err
	}

	out, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}
	return string(out), nil
}

var _ tool.InvokableTool = (*GraphTool)(nil)

// formatGraphError encodes a typed failure on the tool-result wire: the
// "CODE: detail" prefix line, then details as JSON when present.
func formatGraphError(gerr *types.GraphError) string {
	if len(gerr.Details) == 0 {
		return gerr.Error()
	}
	details, err := json.Marshal(gerr.Details)
	if err != nil {
		return gerr.Error()
	}
	return fmt.Sprintf("%s\n%s", gerr.Error(), details)
}

// SearchKnowledgeTool queries the retrieval engine. Always auto-executes.
type SearchKnowledgeTool struct {
	engine    *retrieval.Engine
	projectID string
}

func (t *SearchKnowledgeTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: "search_knowledge",
		Desc: "Search the project's documents, entities, and memories for passages relevant to a query.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {Type: "string", Desc: "What to look for", Required: true},
			"scope": {Type: "string", Desc: "Restrict to one of: documents, entities, memories", Required: false},
		}),
	}, nil
}

func (t *SearchKnowledgeTool) InvokableRun(ctx context.Context, argsJSON string, opts ...tool.Option) (string, error) {
	var args struct {
		Query string `json:"query"`
		Scope string `json:"scope,omitempty"`
	}
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return "", fmt.Errorf("parse arguments: %w", err)
	}
	if args.Query == "" {
		return "", fmt.Errorf("query argument is required")
	}

	ragCtx, err := t.engine.Retrieve(ctx, args.Query, t.projectID, retrieval.Options{
		Scope:           retrieval.Scope(args.Scope),
		IncludeMemories: args.Scope == "" || args.Scope == "memories",
	})
	if err != nil {
		return "", fmt.Errorf("retrieve: %w", err)
	}
	if ragCtx.Empty() {
		return "No matching project knowledge found.", nil
	}
	out, err := json.Marshal(ragCtx)
	if err != nil {
		return "", fmt.Errorf("marshal context: %w", err)
	}
	return string(out), nil
}

var _ tool.InvokableTool = (*SearchKnowledgeTool)(nil)

// buildTurnTools binds the tool set to one turn's project and actor.
func buildTurnTools(executor *graph.Executor, engine *retrieval.Engine, projectID, actor string) []tool.InvokableTool {
	entityParams := func(required bool) map[string]*schema.ParameterInfo {
		return map[string]*schema.ParameterInfo{
			"type":       {Type: "string", Desc: "Entity type from the project registry", Required: required},
			"name":       {Type: "string", Desc: "Entity display name", Required: required},
			"entityName": {Type: "string", Desc: "Name of the entity to change", Required: !required},
			"newName":    {Type: "string", Desc: "New display name", Required: false},
			"aliases":    {Type: "array", ElemInfo: &schema.ParameterInfo{Type: "string"}, Desc: "Alternate names", Required: false},
			"properties": {Type: "object", Desc: "Typed properties per the registry schema", Required: false},
			"notes":      {Type: "string", Desc: "Free-form notes", Required: false},
		}
	}
	relationshipParams := map[string]*schema.ParameterInfo{
		"type":          {Type: "string", Desc: "Relationship type from the project registry", Required: true},
		"sourceName":    {Type: "string", Desc: "Source entity name", Required: true},
		"targetName":    {Type: "string", Desc: "Target entity name", Required: true},
		"bidirectional": {Type: "boolean", Desc: "Whether the relationship runs both ways", Required: false},
		"strength":      {Type: "number", Desc: "Relationship strength in [0,1]", Required: false},
		"metadata":      {Type: "object", Desc: "Typed metadata per the registry schema", Required: false},
		"notes":         {Type: "string", Desc: "Free-form notes", Required: false},
	}

	tools := []tool.InvokableTool{
		&SearchKnowledgeTool{engine: engine, projectID: projectID},
		&GraphTool{
			name: "create_entity", executor: executor, projectID: projectID, actor: actor,
			desc:   "Add a new entity (character, location, item, ...) to the knowledge graph.",
			params: entityParams(true),
		},
		&GraphTool{
			name: "update_entity", executor: executor, projectID: projectID, actor: actor,
			desc:   "Change an existing entity, resolved by name. Only supplied fields change.",
			params: entityParams(false),
		},
		&GraphTool{
			name: "create_relationship", executor: executor, projectID: projectID, actor: actor,
			desc:   "Link two existing entities.",
			params: relationshipParams,
		},
		&GraphTool{
			name: "update_relationship", executor: executor, projectID: projectID, actor: actor,
			desc:   "Change the relationship of the given type between two named entities.",
			params: relationshipParams,
		},
		&GraphTool{
			name: "graph_mutation", executor: executor, projectID: projectID, actor: actor,
			desc: "Consolidated graph mutation: a tagged union over action (create, update, delete) and target (entity, relationship).",
			params: map[string]*schema.ParameterInfo{
				"action":        {Type: "string", Desc: "create, update, or delete", Required: true},
				"target":        {Type: "string", Desc: "entity or relationship", Required: true},
				"type":          {Type: "string", Desc: "Registry type", Required: false},
				"name":          {Type: "string", Desc: "Entity name", Required: false},
				"entityName":    {Type: "string", Desc: "Entity to change", Required: false},
				"newName":       {Type: "string", Desc: "New display name", Required: false},
				"sourceName":    {Type: "string", Desc: "Relationship source entity", Required: false},
				"targetName":    {Type: "string", Desc: "Relationship target entity", Required: false},
				"bidirectional": {Type: "boolean", Desc: "Whether the relationship runs both ways", Required: false},
				"strength":      {Type: "number", Desc: "Relationship strength in [0,1]", Required: false},
				"properties":    {Type: "object", Desc: "Entity properties", Required: false},
				"metadata":      {Type: "object", Desc: "Relationship metadata", Required: false},
				"aliases":       {Type: "array", ElemInfo: &schema.ParameterInfo{Type: "string"}, Desc: "Alternate names", Required: false},
				"notes":         {Type: "string", Desc: "Free-form notes", Required: false},
			},
		},
	}
	return tools
}
