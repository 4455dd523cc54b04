package ui

import (
	"fmt"
	"strings"

	"github.com/mythos-ai/mythos-core/internal/policy"
	"github.com/mythos-ai/mythos-core/internal/retrieval"
)

// RenderRAGContext prints a retrieval result grouped by category.
func RenderRAGContext(ragCtx *retrieval.RAGContext) string {
	if ragCtx == nil || ragCtx.Empty() {
		return StyleSubtle.Render("No matching project knowledge found.")
	}

	var sb strings.Builder
	if len(ragCtx.Documents) > 0 {
		sb.WriteString(StyleSectionTitle.Render("Documents"))
		sb.WriteString("\n")
		for _, item := range ragCtx.Documents {
			sb.WriteString(fmt.Sprintf("  %s %s\n", StyleTitle.Render(item.Title), scoreTag(item.Score)))
			sb.WriteString("    " + StyleSubtle.Render(firstLine(item.Preview)) + "\n")
		}
	}
	if len(ragCtx.Entities) > 0 {
		sb.WriteString(StyleSectionTitle.Render("Entities"))
		sb.WriteString("\n")
		for _, item := range ragCtx.Entities {
			sb.WriteString(fmt.Sprintf("  %s (%s) %s\n", StyleTitle.Render(item.Name), item.Type, scoreTag(item.Score)))
		}
	}
	if len(ragCtx.Memories) > 0 {
		sb.WriteString(StyleSectionTitle.Render("Memories"))
		sb.WriteString("\n")
		for _, item := range ragCtx.Memories {
			sb.WriteString(fmt.Sprintf("  [%s] %s\n", item.Category, firstLine(item.Preview)))
		}
	}
	return sb.String()
}

// RenderApproval prints a pending suggestion as a bordered box an author can
// act on.
func RenderApproval(s policy.Suggestion) string {
	var sb strings.Builder
	sb.WriteString(StyleWarning.Render("Approval required"))
	sb.WriteString(fmt.Sprintf(" %s (%s, %s risk)\n", s.ToolName, s.Danger, s.RiskLevel))
	sb.WriteString(StyleTitle.Render(s.Preview.Summary))
	sb.WriteString("\n")
	for _, change := range s.Preview.Changes {
		if change.Old != nil {
			sb.WriteString(fmt.Sprintf("  %s: %v -> %v\n", change.Field, change.Old, change.New))
		} else {
			sb.WriteString(fmt.Sprintf("  %s: %v\n", change.Field, change.New))
		}
	}
	for _, note := range s.Preview.Notes {
		sb.WriteString("  " + StyleSubtle.Render(note) + "\n")
	}
	if len(s.Reasons) > 0 {
		reasons := make([]string, len(s.Reasons))
		for i, r := range s.Reasons {
			reasons[i] = string(r)
		}
		sb.WriteString(StyleSubtle.Render("why: " + strings.Join(reasons, ", ")))
	}
	return StyleApprovalBox.Render(strings.TrimRight(sb.String(), "\n"))
}

func scoreTag(score *float64) string {
	if score == nil {
		return ""
	}
	return StyleSubtle.Render(fmt.Sprintf("(%.3f)", *score))
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 120 {
		s = s[:120] + "..."
	}
	return s
}
