package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mythos-ai/mythos-core/internal/graph"
	"github.com/mythos-ai/mythos-core/internal/registry"
	"github.com/mythos-ai/mythos-core/types"
)

// Project is one writing project plus its registry configuration.
type Project struct {
	ID         string
	Name       string
	TemplateID string
	Override   *registry.OverrideDoc
	CreatedAt  time.Time
}

// CreateProject inserts a project and grants the creator the owner role.
func (s *SQLiteStore) CreateProject(ctx context.Context, p Project, owner string) error {
	override, err := marshalOverride(p.Override)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projects (id, name, template_id, registry_override, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.TemplateID, override, formatTime(p.CreatedAt),
	); err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO project_members (project_id, actor, role) VALUES (?, ?, ?)`,
		p.ID, owner, string(graph.RoleOwner),
	); err != nil {
		return fmt.Errorf("insert owner membership: %w", err)
	}
	return tx.Commit()
}

// GetProject fetches one project, or nil when absent.
func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*Project, error) {
	var p Project
	var override sql.NullString
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, template_id, registry_override, created_at
		FROM projects WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &p.TemplateID, &override, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query project: %w", err)
	}
	if override.Valid && override.String != "" {
		p.Override = &registry.OverrideDoc{}
		if err := json.Unmarshal([]byte(override.String), p.Override); err != nil {
			return nil, fmt.Errorf("unmarshal registry override: %w", err)
		}
	}
	p.CreatedAt = parseTime(createdAt)
	return &p, nil
}

// SetMemberRole grants or replaces a project membership.
func (s *SQLiteStore) SetMemberRole(ctx context.Context, projectID, actor string, role graph.Role) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO project_members (project_id, actor, role) VALUES (?, ?, ?)
		ON CONFLICT(project_id, actor) DO UPDATE SET role = excluded.role`,
		projectID, actor, string(role),
	)
	if err != nil {
		return fmt.Errorf("set member role: %w", err)
	}
	return nil
}

// GetResolvedRegistry resolves the project's type registry: template defaults
// merged with the stored override. Re-resolved per call, never cached across
// mutations.
func (s *SQLiteStore) GetResolvedRegistry(ctx context.Context, projectID string) (*registry.Resolved, error) {
	p, err := s.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("project %s not found", projectID)
	}
	return registry.Resolve(p.TemplateID, p.Override)
}

// SaveRegistryOverride validates and stores a new override document. Locked
// registries reject edits.
func (s *SQLiteStore) SaveRegistryOverride(ctx context.Context, projectID string, doc *registry.OverrideDoc) error {
	p, err := s.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	if p == nil {
		return types.GraphErrorf(types.CodeNotFound, "project %s not found", projectID)
	}
	if p.Override != nil && p.Override.Locked {
		return types.GraphErrorf(types.CodeRegistryLocked, "registry for project %s is locked", projectID)
	}
	if gerr := registry.ValidateOverride(doc); gerr != nil {
		return gerr
	}
	// Resolve to catch template/override combinations that validate
	// individually but cannot merge.
	if _, err := registry.Resolve(p.TemplateID, doc); err != nil {
		return err
	}
	return s.writeOverride(ctx, projectID, doc)
}

// LockRegistry locks the project registry after verifying every type already
// in use is covered.
func (s *SQLiteStore) LockRegistry(ctx context.Context, projectID string) error {
	p, err := s.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	if p == nil {
		return types.GraphErrorf(types.CodeNotFound, "project %s not found", projectID)
	}

	typesInUse, err := s.entityTypesInUse(ctx, projectID)
	if err != nil {
		return err
	}
	locked, err := registry.Lock(p.TemplateID, p.Override, typesInUse)
	if err != nil {
		return err
	}
	return s.writeOverride(ctx, projectID, locked)
}

func (s *SQLiteStore) writeOverride(ctx context.Context, projectID string, doc *registry.OverrideDoc) error {
	override, err := marshalOverride(doc)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		"UPDATE projects SET registry_override = ? WHERE id = ?", override, projectID,
	); err != nil {
		return fmt.Errorf("update registry override: %w", err)
	}
	return nil
}

func (s *SQLiteStore) entityTypesInUse(ctx context.Context, projectID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT type FROM entities WHERE project_id = ? ORDER BY type", projectID)
	if err != nil {
		return nil, fmt.Errorf("query entity types: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan entity type: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func marshalOverride(doc *registry.OverrideDoc) (sql.NullString, error) {
	if doc == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal registry override: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
