package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mythos-ai/mythos-core/internal/policy"
	"github.com/mythos-ai/mythos-core/internal/registry"
)

// SaveSuggestion persists a pending approval record.
func (s *SQLiteStore) SaveSuggestion(ctx context.Context, sg policy.Suggestion) error {
	reasons, err := marshalJSON(sg.Reasons)
	if err != nil {
		return fmt.Errorf("marshal reasons: %w", err)
	}
	preview, err := json.Marshal(sg.Preview)
	if err != nil {
		return fmt.Errorf("marshal preview: %w", err)
	}
	patch, err := marshalJSON(sg.ProposedPatch)
	if err != nil {
		return fmt.Errorf("marshal proposed patch: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO suggestions (id, project_id, tool_call_id, tool_name, approval_type, danger,
			risk_level, approval_reasons, preview, proposed_patch, actor, stream_id, thread_id,
			status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sg.ID, sg.ProjectID, sg.ToolCallID, sg.ToolName, string(sg.ApprovalType), string(sg.Danger),
		string(sg.RiskLevel), reasons, string(preview), patch, sg.Actor, sg.StreamID, sg.ThreadID,
		string(sg.Status), formatTime(sg.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert suggestion: %w", err)
	}
	return nil
}

// GetSuggestion fetches one suggestion, or nil when absent.
func (s *SQLiteStore) GetSuggestion(ctx context.Context, id string) (*policy.Suggestion, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, tool_call_id, tool_name, approval_type, danger, risk_level,
		       approval_reasons, preview, proposed_patch, actor, stream_id, thread_id,
		       status, created_at, resolved_at
		FROM suggestions WHERE id = ?`, id)
	sg, err := scanSuggestion(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return sg, err
}

// ListPendingSuggestions returns a project's unresolved approvals, oldest
// first.
func (s *SQLiteStore) ListPendingSuggestions(ctx context.Context, projectID string) ([]policy.Suggestion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, tool_call_id, tool_name, approval_type, danger, risk_level,
		       approval_reasons, preview, proposed_patch, actor, stream_id, thread_id,
		       status, created_at, resolved_at
		FROM suggestions WHERE project_id = ? AND status = 'pending'
		ORDER BY created_at`, projectID)
	if err != nil {
		return nil, fmt.Errorf("query suggestions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []policy.Suggestion
	for rows.Next() {
		sg, err := scanSuggestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sg)
	}
	return out, rows.Err()
}

// ResolveSuggestion marks a pending suggestion applied or rejected. Returns
// false when the suggestion was not pending (already resolved or missing).
func (s *SQLiteStore) ResolveSuggestion(ctx context.Context, id string, status policy.SuggestionStatus) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE suggestions SET status = ?, resolved_at = ?
		WHERE id = ? AND status = 'pending'`,
		string(status), formatTime(time.Now().UTC()), id)
	if err != nil {
		return false, fmt.Errorf("resolve suggestion: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func scanSuggestion(row rowScanner) (*policy.Suggestion, error) {
	var sg policy.Suggestion
	var approvalType, danger, riskLevel, status string
	var reasons, preview, patch, resolvedAt sql.NullString
	var createdAt string

	err := row.Scan(&sg.ID, &sg.ProjectID, &sg.ToolCallID, &sg.ToolName, &approvalType, &danger,
		&riskLevel, &reasons, &preview, &patch, &sg.Actor, &sg.StreamID, &sg.ThreadID,
		&status, &createdAt, &resolvedAt)
	if err != nil {
		return nil, err
	}

	sg.ApprovalType = policy.ApprovalType(approvalType)
	sg.Danger = policy.Danger(danger)
	sg.RiskLevel = registry.RiskLevel(riskLevel)
	sg.Status = policy.SuggestionStatus(status)
	sg.CreatedAt = parseTime(createdAt)
	if resolvedAt.Valid && resolvedAt.String != "" {
		t := parseTime(resolvedAt.String)
		sg.ResolvedAt = &t
	}
	if reasons.Valid && reasons.String != "" {
		if err := json.Unmarshal([]byte(reasons.String), &sg.Reasons); err != nil {
			return nil, fmt.Errorf("unmarshal reasons: %w", err)
		}
	}
	if preview.Valid && preview.String != "" {
		if err := json.Unmarshal([]byte(preview.String), &sg.Preview); err != nil {
			return nil, fmt.Errorf("unmarshal preview: %w", err)
		}
	}
	if patch.Valid && patch.String != "" {
		if err := json.Unmarshal([]byte(patch.String), &sg.ProposedPatch); err != nil {
			return nil, fmt.Errorf("unmarshal proposed patch: %w", err)
		}
	}
	return &sg, nil
}
