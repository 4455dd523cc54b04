package graph

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mythos-ai/mythos-core/internal/registry"
	"github.com/mythos-ai/mythos-core/types"
)

// Executor runs graph mutations through a fixed sequence: access check, type
// check, name resolution, conflict check, schema validation, canonicalization,
// persist plus side effects. Every failure is a typed value; nothing is thrown
// past the mutation boundary.
//
// Mutations are serialized per project so the resolve/conflict-check/persist
// sequence is effectively atomic per (project, canonical name).
type Executor struct {
	store    Store
	registry RegistrySource
	logger   *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewExecutor creates a graph mutation executor.
func NewExecutor(store Store, reg RegistrySource) *Executor {
	return &Executor{
		store:    store,
		registry: reg,
		logger:   slog.Default(),
		locks:    make(map[string]*sync.Mutex),
	}
}

func (x *Executor) projectLock(projectID string) *sync.Mutex {
	x.mu.Lock()
	defer x.mu.Unlock()
	lock, ok := x.locks[projectID]
	if !ok {
		lock = &sync.Mutex{}
		x.locks[projectID] = lock
	}
	return lock
}

// Result is the success contract of a mutation.
type Result struct {
	TargetID string `json:"targetId"`
	Message  string `json:"message"`
	Kind     string `json:"kind"`
}

// CreateEntityRequest creates a new entity.
type CreateEntityRequest struct {
	ProjectID  string
	Actor      string
	Type       string
	Name       string
	Aliases    []string
	Properties map[string]any
	Notes      string
}

// UpdateEntityRequest mutates an existing entity resolved by name.
type UpdateEntityRequest struct {
	ProjectID  string
	Actor      string
	EntityName string
	Type       string // optional type hint for name resolution
	NewName    string
	AddAliases []string
	Properties map[string]any
	Notes      *string
}

// CreateRelationshipRequest links two entities resolved by name.
type CreateRelationshipRequest struct {
	ProjectID     string
	Actor         string
	Type          string
	SourceName    string
	TargetName    string
	Bidirectional bool
	Strength      *float64
	Notes         string
	Metadata      map[string]any
}

// UpdateRelationshipRequest mutates the relationship of the given type
// between the named pair.
type UpdateRelationshipRequest struct {
	ProjectID     string
	Actor         string
	Type          string
	SourceName    string
	TargetName    string
	Bidirectional *bool
	Strength      *float64
	Notes         *string
	Metadata      map[string]any
}

// CreateEntity runs the create state machine for an entity.
func (x *Executor) CreateEntity(ctx context.Context, req CreateEntityRequest) (*Result, error) {
	lock := x.projectLock(req.ProjectID)
	lock.Lock()
	defer lock.Unlock()

	reg, err := x.checkAccess(ctx, req.ProjectID, req.Actor)
	if err != nil {
		return nil, err
	}

	def, ok := reg.EntityType(req.Type)
	if !ok {
		return nil, types.GraphErrorf(types.CodeInvalidType, "unknown entity type %q", req.Type)
	}

	canonical := CanonicalName(req.Name)
	if canonical == "" {
		return nil, types.GraphErrorf(types.CodeConflict, "entity name must not be empty")
	}

	existing, err := x.store.FindEntitiesByCanonical(ctx, req.ProjectID, canonical, "")
	if err != nil {
		return nil, fmt.Errorf("find entity by canonical name: %w", err)
	}
	if len(existing) > 0 {
		return nil, types.NewGraphError(types.CodeConflict,
			fmt.Sprintf("an entity named %q already exists", existing[0].Name),
			map[string]any{"existingId": existing[0].ID, "existingType": existing[0].Type})
	}

	properties, gerr := registry.ValidateEntityProperties(def, req.Properties)
	if gerr != nil {
		return nil, gerr
	}

	now := time.Now().UTC()
	entity := Entity{
		ID:            uuid.NewString(),
		ProjectID:     req.ProjectID,
		Type:          req.Type,
		Name:          req.Name,
		CanonicalName: canonical,
		Aliases:       NormalizeAliases(req.Name, req.Aliases),
		Properties:    properties,
		Notes:         req.Notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := x.store.CreateEntityRecord(ctx, entity); err != nil {
		return nil, fmt.Errorf("persist entity: %w", err)
	}

	x.emitSideEffects(ctx, req.ProjectID, req.Actor, "create", "entity", entity.ID, nil)

	return &Result{
		TargetID: entity.ID,
		Message:  fmt.Sprintf("Created %s %q", def.DisplayName, entity.Name),
		Kind:     "entity",
	}, nil
}

// UpdateEntity runs the update state machine for an entity.
func (x *Executor) UpdateEntity(ctx context.Context, req UpdateEntityRequest) (*Result, error) {
	lock := x.projectLock(req.ProjectID)
	lock.Lock()
	defer lock.Unlock()

	reg, err := x.checkAccess(ctx, req.ProjectID, req.Actor)
	if err != nil {
		return nil, err
	}

	entity, err := x.resolveEntity(ctx, req.ProjectID, req.EntityName, req.Type)
	if err != nil {
		return nil, err
	}

	def, ok := reg.EntityType(entity.Type)
	if !ok {
		return nil, types.GraphErrorf(types.CodeInvalidType, "entity type %q is no longer in the registry", entity.Type)
	}

	var changed []string

	if req.NewName != "" && req.NewName != entity.Name {
		newCanonical := CanonicalName(req.NewName)
		if newCanonical != entity.CanonicalName {
			conflicts, err := x.store.FindEntitiesByCanonical(ctx, req.ProjectID, newCanonical, "")
			if err != nil {
				return nil, fmt.Errorf("find entity by canonical name: %w", err)
			}
			for _, c := range conflicts {
				if c.ID != entity.ID {
					return nil, types.NewGraphError(types.CodeConflict,
						fmt.Sprintf("an entity named %q already exists", c.Name),
						map[string]any{"existingId": c.ID, "existingType": c.Type})
				}
			}
		}
		entity.Name = req.NewName
		entity.CanonicalName = newCanonical
		changed = append(changed, "name")
	}

	if len(req.Properties) > 0 {
		// Shallow-merge the patch into existing properties, then validate the
		// merged object so a partial update cannot break the full schema.
		merged := make(map[string]any, len(entity.Properties)+len(req.Properties))
		for k, v := range entity.Properties {
			merged[k] = v
		}
		for k, v := range req.Properties {
			merged[k] = v
			changed = append(changed, "properties."+k)
		}
		validated, gerr := registry.ValidateEntityProperties(def, merged)
		if gerr != nil {
			return nil, gerr
		}
		entity.Properties = validated
	}

	if len(req.AddAliases) > 0 {
		entity.Aliases = NormalizeAliases(entity.Name, append(entity.Aliases, req.AddAliases...))
		changed = append(changed, "aliases")
	}

	if req.Notes != nil && *req.Notes != entity.Notes {
		entity.Notes = *req.Notes
		changed = append(changed, "notes")
	}

	if len(changed) == 0 {
		return &Result{TargetID: entity.ID, Message: "No changes", Kind: "entity"}, nil
	}

	entity.UpdatedAt = time.Now().UTC()
	if err := x.store.UpdateEntityRecord(ctx, *entity); err != nil {
		return nil, fmt.Errorf("persist entity update: %w", err)
	}

	x.emitSideEffects(ctx, req.ProjectID, req.Actor, "update", "entity", entity.ID, changed)

	return &Result{
		TargetID: entity.ID,
		Message:  fmt.Sprintf("Updated %s %q", def.DisplayName, entity.Name),
		Kind:     "entity",
	}, nil
}

// CreateRelationship runs the create state machine for a relationship.
func (x *Executor) CreateRelationship(ctx context.Context, req CreateRelationshipRequest) (*Result, error) {
	lock := x.projectLock(req.ProjectID)
	lock.Lock()
	defer lock.Unlock()

	reg, err := x.checkAccess(ctx, req.ProjectID, req.Actor)
	if err != nil {
		return nil, err
	}

	def, ok := reg.RelationshipType(req.Type)
	if !ok {
		return nil, types.GraphErrorf(types.CodeInvalidType, "unknown relationship type %q", req.Type)
	}

	source, err := x.resolveEntity(ctx, req.ProjectID, req.SourceName, "")
	if err != nil {
		return nil, err
	}
	target, err := x.resolveEntity(ctx, req.ProjectID, req.TargetName, "")
	if err != nil {
		return nil, err
	}

	existing, err := x.store.FindRelationship(ctx, req.ProjectID, source.ID, target.ID, req.Type)
	if err != nil {
		return nil, fmt.Errorf("find relationship: %w", err)
	}
	if existing != nil {
		return nil, types.NewGraphError(types.CodeConflict,
			fmt.Sprintf("a %s relationship between %q and %q already exists", req.Type, source.Name, target.Name),
			map[string]any{"existingId": existing.ID})
	}

	metadata, gerr := registry.ValidateRelationshipMetadata(def, req.Metadata)
	if gerr != nil {
		return nil, gerr
	}

	rel := Relationship{
		ID:            uuid.NewString(),
		ProjectID:     req.ProjectID,
		SourceID:      source.ID,
		TargetID:      target.ID,
		Type:          req.Type,
		Bidirectional: req.Bidirectional,
		Strength:      req.Strength,
		Notes:         req.Notes,
		Metadata:      metadata,
		CreatedAt:     time.Now().UTC(),
	}
	if err := x.store.CreateRelationshipRecord(ctx, rel); err != nil {
		return nil, fmt.Errorf("persist relationship: %w", err)
	}

	x.emitSideEffects(ctx, req.ProjectID, req.Actor, "create", "relationship", rel.ID, nil)

	return &Result{
		TargetID: rel.ID,
		Message:  fmt.Sprintf("Linked %q and %q (%s)", source.Name, target.Name, req.Type),
		Kind:     "relationship",
	}, nil
}

// UpdateRelationship runs the update state machine for a relationship.
func (x *Executor) UpdateRelationship(ctx context.Context, req UpdateRelationshipRequest) (*Result, error) {
	lock := x.projectLock(req.ProjectID)
	lock.Lock()
	defer lock.Unlock()

	reg, err := x.checkAccess(ctx, req.ProjectID, req.Actor)
	if err != nil {
		return nil, err
	}

	def, ok := reg.RelationshipType(req.Type)
	if !ok {
		return nil, types.GraphErrorf(types.CodeInvalidType, "unknown relationship type %q", req.Type)
	}

	source, err := x.resolveEntity(ctx, req.ProjectID, req.SourceName, "")
	if err != nil {
		return nil, err
	}
	target, err := x.resolveEntity(ctx, req.ProjectID, req.TargetName, "")
	if err != nil {
		return nil, err
	}

	rel, err := x.store.FindRelationship(ctx, req.ProjectID, source.ID, target.ID, req.Type)
	if err != nil {
		return nil, fmt.Errorf("find relationship: %w", err)
	}
	if rel == nil {
		return nil, types.GraphErrorf(types.CodeNotFound,
			"no %s relationship between %q and %q", req.Type, source.Name, target.Name)
	}

	var changed []string
	if req.Bidirectional != nil && *req.Bidirectional != rel.Bidirectional {
		rel.Bidirectional = *req.Bidirectional
		changed = append(changed, "bidirectional")
	}
	if req.Strength != nil {
		rel.Strength = req.Strength
		changed = append(changed, "strength")
	}
	if req.Notes != nil && *req.Notes != rel.Notes {
		rel.Notes = *req.Notes
		changed = append(changed, "notes")
	}
	if len(req.Metadata) > 0 {
		merged := make(map[string]any, len(rel.Metadata)+len(req.Metadata))
		for k, v := range rel.Metadata {
			merged[k] = v
		}
		for k, v := range req.Metadata {
			merged[k] = v
			changed = append(changed, "metadata."+k)
		}
		validated, gerr := registry.ValidateRelationshipMetadata(def, merged)
		if gerr != nil {
			return nil, gerr
		}
		rel.Metadata = validated
	}

	if len(changed) == 0 {
		return &Result{TargetID: rel.ID, Message: "No changes", Kind: "relationship"}, nil
	}

	if err := x.store.UpdateRelationshipRecord(ctx, *rel); err != nil {
		return nil, fmt.Errorf("persist relationship update: %w", err)
	}

	x.emitSideEffects(ctx, req.ProjectID, req.Actor, "update", "relationship", rel.ID, changed)

	return &Result{
		TargetID: rel.ID,
		Message:  fmt.Sprintf("Updated %s relationship between %q and %q", req.Type, source.Name, target.Name),
		Kind:     "relationship",
	}, nil
}

// Delete is deliberately unimplemented; tool contracts still expose the
// action and the classifier fails closed on it.
func (x *Executor) Delete(ctx context.Context, projectID, actor, kind, name string) (*Result, error) {
	return nil, types.GraphErrorf(types.CodeNotImplemented, "delete is not supported for %s records", kind)
}

// checkAccess resolves the caller's role and the project registry.
func (x *Executor) checkAccess(ctx context.Context, projectID, actor string) (*registry.Resolved, error) {
	role, err := x.store.GetProjectRole(ctx, projectID, actor)
	if err != nil {
		return nil, fmt.Errorf("resolve project role: %w", err)
	}
	if role == "" {
		return nil, types.GraphErrorf(types.CodeAccessDenied, "no access to project %s", projectID)
	}
	if !role.CanMutate() {
		return nil, types.GraphErrorf(types.CodeAccessDenied, "role %s cannot modify the knowledge graph", role)
	}

	reg, err := x.registry.GetResolvedRegistry(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("resolve type registry: %w", err)
	}
	return reg, nil
}

// resolveEntity canonicalizes the name and searches first within the type
// hint, then project-wide. Zero matches is NOT_FOUND; multiple matches is
// CONFLICT listing the distinct types, since an ambiguous name across types is
// never auto-resolved.
func (x *Executor) resolveEntity(ctx context.Context, projectID, name, typeHint string) (*Entity, error) {
	canonical := CanonicalName(name)

	if typeHint != "" {
		matches, err := x.store.FindEntitiesByCanonical(ctx, projectID, canonical, typeHint)
		if err != nil {
			return nil, fmt.Errorf("find entity: %w", err)
		}
		if len(matches) == 1 {
			return &matches[0], nil
		}
		if len(matches) > 1 {
			return nil, ambiguousMatch(name, matches)
		}
	}

	matches, err := x.store.FindEntitiesByCanonical(ctx, projectID, canonical, "")
	if err != nil {
		return nil, fmt.Errorf("find entity: %w", err)
	}
	switch len(matches) {
	case 0:
		return nil, types.GraphErrorf(types.CodeNotFound, "no entity named %q", name)
	case 1:
		return &matches[0], nil
	default:
		return nil, ambiguousMatch(name, matches)
	}
}

func ambiguousMatch(name string, matches []Entity) *types.GraphError {
	typeSet := make(map[string]bool, len(matches))
	for _, m := range matches {
		typeSet[m.Type] = true
	}
	distinct := make([]string, 0, len(typeSet))
	for t := range typeSet {
		distinct = append(distinct, t)
	}
	sort.Strings(distinct)
	return types.NewGraphError(types.CodeConflict,
		fmt.Sprintf("multiple entities named %q; specify a type", name),
		map[string]any{"types": distinct})
}

// emitSideEffects appends the audit record and queues re-embedding. Side
// effect failures are logged, not surfaced: the mutation already succeeded.
func (x *Executor) emitSideEffects(ctx context.Context, projectID, actor, action, kind, targetID string, changed []string) {
	activity := Activity{
		ID:            uuid.NewString(),
		ProjectID:     projectID,
		Actor:         actor,
		Action:        action,
		TargetKind:    kind,
		TargetID:      targetID,
		ChangedFields: changed,
		CreatedAt:     time.Now().UTC(),
	}
	if err := x.store.AppendActivity(ctx, activity); err != nil {
		x.logger.Warn("append activity failed", "project", projectID, "target", targetID, "error", err)
	}
	if err := x.store.EnqueueEmbed(ctx, projectID, kind, targetID); err != nil {
		x.logger.Warn("enqueue re-embed failed", "project", projectID, "target", targetID, "error", err)
	}
}
