package policy

import (
	"time"

	"github.com/mythos-ai/mythos-core/internal/registry"
)

// SuggestionStatus tracks the lifecycle of a pending approval.
type SuggestionStatus string

const (
	SuggestionPending  SuggestionStatus = "pending"
	SuggestionApplied  SuggestionStatus = "applied"
	SuggestionRejected SuggestionStatus = "rejected"
)

// Suggestion is the persisted record of an approval-gated tool call. Created
// when the classifier gates a call; resolved when the user applies or rejects
// it, which also resumes the paused orchestration turn.
type Suggestion struct {
	ID            string             `json:"id"`
	ProjectID     string             `json:"projectId"`
	ToolCallID    string             `json:"toolCallId"`
	ToolName      string             `json:"toolName"`
	ApprovalType  ApprovalType       `json:"approvalType"`
	Danger        Danger             `json:"danger"`
	RiskLevel     registry.RiskLevel `json:"riskLevel,omitempty"`
	Reasons       []ApprovalReason   `json:"approvalReasons"`
	Preview       Preview            `json:"preview"`
	ProposedPatch map[string]any     `json:"proposedPatch,omitempty"`
	Actor         string             `json:"actor"`
	StreamID      string             `json:"streamId"`
	ThreadID      string             `json:"threadId"`
	Status        SuggestionStatus   `json:"status"`
	CreatedAt     time.Time          `json:"createdAt"`
	ResolvedAt    *time.Time         `json:"resolvedAt,omitempty"`
}
