package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mythos-ai/mythos-core/internal/graph"
)

// GetProjectRole returns the caller's role, or "" when the project or
// membership does not exist.
func (s *SQLiteStore) GetProjectRole(ctx context.Context, projectID, actor string) (graph.Role, error) {
	var role string
	err := s.db.QueryRowContext(ctx,
		"SELECT role FROM project_members WHERE project_id = ? AND actor = ?",
		projectID, actor,
	).Scan(&role)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query project role: %w", err)
	}
	return graph.Role(role), nil
}

// FindEntitiesByCanonical matches canonical names and canonicalized aliases.
func (s *SQLiteStore) FindEntitiesByCanonical(ctx context.Context, projectID, canonical, typeFilter string) ([]graph.Entity, error) {
	query := `
		SELECT DISTINCT e.id, e.project_id, e.type, e.name, e.canonical_name,
		       e.properties, e.notes, e.created_at, e.updated_at
		FROM entities e
		LEFT JOIN entity_aliases a ON a.entity_id = e.id
		WHERE e.project_id = ?
		  AND (e.canonical_name = ? OR a.canonical_alias = ?)`
	args := []any{projectID, canonical, canonical}
	if typeFilter != "" {
		query += " AND e.type = ?"
		args = append(args, typeFilter)
	}
	query += " ORDER BY e.created_at"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find entities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entities []graph.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}

	for i := range entities {
		if err := s.loadAliases(ctx, &entities[i]); err != nil {
			return nil, err
		}
	}
	return entities, nil
}

// GetEntity fetches one entity by id, or nil when absent.
func (s *SQLiteStore) GetEntity(ctx context.Context, id string) (*graph.Entity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, type, name, canonical_name,
		       properties, notes, created_at, updated_at
		FROM entities WHERE id = ?`, id)
	e, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadAliases(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// CreateEntityRecord inserts the entity, its aliases, and its FTS row.
func (s *SQLiteStore) CreateEntityRecord(ctx context.Context, e graph.Entity) error {
	props, err := marshalJSON(e.Properties)
	if err != nil {
		return fmt.Errorf("marshal properties: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO entities (id, project_id, type, name, canonical_name, properties, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ProjectID, e.Type, e.Name, e.CanonicalName, props, e.Notes,
		formatTime(e.CreatedAt), formatTime(e.UpdatedAt),
	); err != nil {
		return fmt.Errorf("insert entity: %w", err)
	}
	if err := replaceAliases(ctx, tx, e.ID, e.Aliases); err != nil {
		return err
	}
	if err := upsertEntityFTS(ctx, tx, e); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateEntityRecord rewrites the entity row, alias set, and FTS row.
func (s *SQLiteStore) UpdateEntityRecord(ctx context.Context, e graph.Entity) error {
	props, err := marshalJSON(e.Properties)
	if err != nil {
		return fmt.Errorf("marshal properties: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE entities SET type = ?, name = ?, canonical_name = ?, properties = ?, notes = ?, updated_at = ?
		WHERE id = ?`,
		e.Type, e.Name, e.CanonicalName, props, e.Notes, formatTime(e.UpdatedAt), e.ID,
	)
	if err != nil {
		return fmt.Errorf("update entity: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("entity %s not found", e.ID)
	}
	if err := replaceAliases(ctx, tx, e.ID, e.Aliases); err != nil {
		return err
	}
	if err := upsertEntityFTS(ctx, tx, e); err != nil {
		return err
	}
	return tx.Commit()
}

// FindRelationship returns the relationship of the given type between the
// ordered pair, or nil when none exists.
func (s *SQLiteStore) FindRelationship(ctx context.Context, projectID, sourceID, targetID, relType string) (*graph.Relationship, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, source_id, target_id, type, bidirectional, strength, notes, metadata, created_at
		FROM relationships
		WHERE project_id = ? AND source_id = ? AND target_id = ? AND type = ?`,
		projectID, sourceID, targetID, relType)

	var r graph.Relationship
	var bidirectional int
	var strength sql.NullFloat64
	var metadata sql.NullString
	var createdAt string
	err := row.Scan(&r.ID, &r.ProjectID, &r.SourceID, &r.TargetID, &r.Type,
		&bidirectional, &strength, &r.Notes, &metadata, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan relationship: %w", err)
	}

	r.Bidirectional = bidirectional != 0
	if strength.Valid {
		v := strength.Float64
		r.Strength = &v
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &r.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal relationship metadata: %w", err)
		}
	}
	r.CreatedAt = parseTime(createdAt)
	return &r, nil
}

// CreateRelationshipRecord inserts the relationship.
func (s *SQLiteStore) CreateRelationshipRecord(ctx context.Context, r graph.Relationship) error {
	meta, err := marshalJSON(r.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO relationships (id, project_id, source_id, target_id, type, bidirectional, strength, notes, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ProjectID, r.SourceID, r.TargetID, r.Type,
		boolToInt(r.Bidirectional), nullableFloat(r.Strength), r.Notes, meta,
		formatTime(r.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert relationship: %w", err)
	}
	return nil
}

// UpdateRelationshipRecord rewrites the mutable relationship fields.
func (s *SQLiteStore) UpdateRelationshipRecord(ctx context.Context, r graph.Relationship) error {
	meta, err := marshalJSON(r.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE relationships SET bidirectional = ?, strength = ?, notes = ?, metadata = ?
		WHERE id = ?`,
		boolToInt(r.Bidirectional), nullableFloat(r.Strength), r.Notes, meta, r.ID,
	)
	if err != nil {
		return fmt.Errorf("update relationship: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("relationship %s not found", r.ID)
	}
	return nil
}

// AppendActivity records one audit row.
func (s *SQLiteStore) AppendActivity(ctx context.Context, a graph.Activity) error {
	changed, err := marshalJSON(a.ChangedFields)
	if err != nil {
		return fmt.Errorf("marshal changed fields: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO activities (id, project_id, actor, action, target_kind, target_id, changed_fields, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ProjectID, a.Actor, a.Action, a.TargetKind, a.TargetID, changed, formatTime(a.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

// ListActivities returns the project's audit trail, newest first.
func (s *SQLiteStore) ListActivities(ctx context.Context, projectID string, limit int) ([]graph.Activity, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, actor, action, target_kind, target_id, changed_fields, created_at
		FROM activities WHERE project_id = ?
		ORDER BY created_at DESC LIMIT ?`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("query activities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []graph.Activity
	for rows.Next() {
		var a graph.Activity
		var changed sql.NullString
		var createdAt string
		if err := rows.Scan(&a.ID, &a.ProjectID, &a.Actor, &a.Action, &a.TargetKind, &a.TargetID, &changed, &createdAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		if changed.Valid && changed.String != "" {
			if err := json.Unmarshal([]byte(changed.String), &a.ChangedFields); err != nil {
				return nil, fmt.Errorf("unmarshal changed fields: %w", err)
			}
		}
		a.CreatedAt = parseTime(createdAt)
		out = append(out, a)
	}
	return out, rows.Err()
}

// EnqueueEmbed schedules re-embedding of the affected record.
func (s *SQLiteStore) EnqueueEmbed(ctx context.Context, projectID, kind, refID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO embed_queue (project_id, kind, ref_id, created_at)
		VALUES (?, ?, ?, ?)`,
		projectID, kind, refID, formatTime(time.Now().UTC()),
	)
	if err != nil {
		return fmt.Errorf("enqueue embed job: %w", err)
	}
	return nil
}

// PendingEmbedJobs returns queued re-embed jobs oldest first.
func (s *SQLiteStore) PendingEmbedJobs(ctx context.Context, limit int) ([]EmbedJob, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, kind, ref_id FROM embed_queue
		WHERE status = 'pending' ORDER BY created_at LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query embed queue: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []EmbedJob
	for rows.Next() {
		var j EmbedJob
		if err := rows.Scan(&j.ID, &j.ProjectID, &j.Kind, &j.RefID); err != nil {
			return nil, fmt.Errorf("scan embed job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// MarkEmbedDone marks one queued job completed.
func (s *SQLiteStore) MarkEmbedDone(ctx context.Context, jobID int64) error {
	_, err := s.db.ExecContext(ctx, "UPDATE embed_queue SET status = 'done' WHERE id = ?", jobID)
	return err
}

// EmbedJob is one queued re-embedding request.
type EmbedJob struct {
	ID        int64
	ProjectID string
	Kind      string
	RefID     string
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*graph.Entity, error) {
	var e graph.Entity
	var props sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&e.ID, &e.ProjectID, &e.Type, &e.Name, &e.CanonicalName,
		&props, &e.Notes, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if props.Valid && props.String != "" {
		if err := json.Unmarshal([]byte(props.String), &e.Properties); err != nil {
			return nil, fmt.Errorf("unmarshal entity properties: %w", err)
		}
	}
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updatedAt)
	return &e, nil
}

func (s *SQLiteStore) loadAliases(ctx context.Context, e *graph.Entity) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT alias FROM entity_aliases WHERE entity_id = ? ORDER BY alias", e.ID)
	if err != nil {
		return fmt.Errorf("query aliases: %w", err)
	}
	defer func() { _ = rows.Close() }()

	e.Aliases = nil
	for rows.Next() {
		var alias string
		if err := rows.Scan(&alias); err != nil {
			return fmt.Errorf("scan alias: %w", err)
		}
		e.Aliases = append(e.Aliases, alias)
	}
	return rows.Err()
}

func replaceAliases(ctx context.Context, tx *sql.Tx, entityID string, aliases []string) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM entity_aliases WHERE entity_id = ?", entityID); err != nil {
		return fmt.Errorf("clear aliases: %w", err)
	}
	for _, alias := range aliases {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO entity_aliases (entity_id, alias, canonical_alias)
			VALUES (?, ?, ?)`,
			entityID, alias, graph.CanonicalName(alias),
		); err != nil {
			return fmt.Errorf("insert alias: %w", err)
		}
	}
	return nil
}

// upsertEntityFTS rewrites the entity's lexical-search row. entities_fts is
// maintained here rather than by triggers because aliases live in a second
// table.
func upsertEntityFTS(ctx context.Context, tx *sql.Tx, e graph.Entity) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM entities_fts WHERE id = ?", e.ID); err != nil {
		return fmt.Errorf("clear entity fts: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO entities_fts (id, project_id, name, aliases, notes)
		VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.ProjectID, e.Name, strings.Join(e.Aliases, " "), e.Notes,
	); err != nil {
		return fmt.Errorf("insert entity fts: %w", err)
	}
	return nil
}

func marshalJSON(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
