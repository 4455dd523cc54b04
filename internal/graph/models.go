package graph

import (
	"context"
	"time"

	"github.com/mythos-ai/mythos-core/internal/registry"
)

// Entity is one node in a project's knowledge graph. CanonicalName always
// equals CanonicalName(Name); lookup and deduplication go through it.
type Entity struct {
	ID            string         `json:"id"`
	ProjectID     string         `json:"projectId"`
	Type          string         `json:"type"`
	Name          string         `json:"name"`
	CanonicalName string         `json:"canonicalName"`
	Aliases       []string       `json:"aliases,omitempty"`
	Properties    map[string]any `json:"properties"`
	Notes         string         `json:"notes,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// Relationship links two entities. At most one relationship of a given type
// exists between an ordered (source, target) pair; uniqueness is enforced by
// lookup-before-create.
type Relationship struct {
	ID            string         `json:"id"`
	ProjectID     string         `json:"projectId"`
	SourceID      string         `json:"sourceId"`
	TargetID      string         `json:"targetId"`
	Type          string         `json:"type"`
	Bidirectional bool           `json:"bidirectional"`
	Strength      *float64       `json:"strength,omitempty"`
	Notes         string         `json:"notes,omitempty"`
	Metadata      map[string]any `json:"metadata"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// Role is a project membership role.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// CanMutate reports whether the role allows graph writes.
func (r Role) CanMutate() bool {
	return r == RoleOwner || r == RoleEditor
}

// Activity is one audit record emitted after a successful mutation.
type Activity struct {
	ID            string    `json:"id"`
	ProjectID     string    `json:"projectId"`
	Actor         string    `json:"actor"`
	Action        string    `json:"action"`
	TargetKind    string    `json:"targetKind"`
	TargetID      string    `json:"targetId"`
	ChangedFields []string  `json:"changedFields,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Store is the persistence collaborator the executor drives. Explicit named
// methods instead of string-keyed dispatch; callers depend on this interface,
// not on a registry of opaque function references.
type Store interface {
	// GetProjectRole returns the caller's role, or "" when the project does
	// not exist or the caller has no membership.
	GetProjectRole(ctx context.Context, projectID, actor string) (Role, error)

	// FindEntitiesByCanonical matches canonical names and canonicalized
	// aliases. typeFilter narrows to one entity type when non-empty.
	FindEntitiesByCanonical(ctx context.Context, projectID, canonical, typeFilter string) ([]Entity, error)

	GetEntity(ctx context.Context, id string) (*Entity, error)
	CreateEntityRecord(ctx context.Context, e Entity) error
	UpdateEntityRecord(ctx context.Context, e Entity) error

	// FindRelationship returns the relationship of the given type between the
	// ordered pair, or nil when none exists.
	FindRelationship(ctx context.Context, projectID, sourceID, targetID, relType string) (*Relationship, error)
	CreateRelationshipRecord(ctx context.Context, r Relationship) error
	UpdateRelationshipRecord(ctx context.Context, r Relationship) error

	AppendActivity(ctx context.Context, a Activity) error

	// EnqueueEmbed schedules re-embedding of the affected record so retrieval
	// stays fresh.
	EnqueueEmbed(ctx context.Context, projectID, kind, refID string) error
}

// RegistrySource resolves the project's type registry per call.
type RegistrySource interface {
	GetResolvedRegistry(ctx context.Context, projectID string) (*registry.Resolved, error)
}
