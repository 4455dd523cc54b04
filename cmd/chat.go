package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/mythos-ai/mythos-core/internal/agent"
	"github.com/mythos-ai/mythos-core/internal/retrieval"
	"github.com/mythos-ai/mythos-core/internal/store"
	"github.com/mythos-ai/mythos-core/internal/ui"
)

var chatCmd = &cobra.Command{
	Use:          "chat <prompt>",
	Aliases:      []string{"ask"},
	Short:        "Run one assistant turn against a project",
	SilenceUsage: true,
	Long: `Send a prompt through the full assistant pipeline: retrieve story
context, stream the model's answer, and execute any graph tools it calls.

Low-risk graph changes apply immediately. Risky ones (core entities,
identity changes, sensitive relationships) pause the turn and ask for
approval before anything is written.

Examples:
  mythos chat "Who is Elara allied with?" --project novel --mode ask
  mythos chat "Mark Captain Iren as dead after the siege" --project novel
  mythos chat "Draft the reunion scene" --project novel --thread ch12`,
	Args: cobra.ExactArgs(1),
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringP("project", "p", "", "Project ID (required)")
	chatCmd.Flags().String("actor", "cli", "Acting user ID")
	chatCmd.Flags().StringP("mode", "m", "write", "Assistant mode: write or ask")
	chatCmd.Flags().String("thread", "", "Thread ID for conversation continuity")
	chatCmd.Flags().BoolP("yes", "y", false, "Approve all gated changes without prompting")
	_ = chatCmd.MarkFlagRequired("project")
}

func runChat(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	rec := newRecorder()
	defer func() { _ = rec.Close() }()

	loop, err := buildLoop(cmd.Context(), s, rec)
	if err != nil {
		return fmt.Errorf("llm config: %w", err)
	}

	projectID, _ := cmd.Flags().GetString("project")
	actor, _ := cmd.Flags().GetString("actor")
	mode, _ := cmd.Flags().GetString("mode")
	threadID, _ := cmd.Flags().GetString("thread")
	autoApprove, _ := cmd.Flags().GetBool("yes")
	if threadID == "" {
		threadID = uuid.NewString()
	}

	req := agent.TurnRequest{
		ProjectID: projectID,
		Actor:     actor,
		ThreadID:  threadID,
		StreamID:  uuid.NewString(),
		Prompt:    args[0],
		Mode:      retrieval.Mode(mode),
	}

	sink := &terminalSink{}
	result, err := loop.Run(cmd.Context(), req, sink)
	if err != nil {
		return fmt.Errorf("turn failed: %w", err)
	}

	for result.State == agent.TurnAwaitingApproval {
		result, err = resolveApprovals(cmd.Context(), s, loop, result, sink, autoApprove)
		if err != nil {
			return err
		}
	}

	fmt.Println()
	return nil
}

// resolveApprovals walks the pending approvals of a paused turn, asking the
// author about each one and resuming the loop with the decision.
func resolveApprovals(ctx context.Context, s *store.SQLiteStore, loop *agent.Loop, result *agent.TurnResult, sink agent.Sink, autoApprove bool) (*agent.TurnResult, error) {
	if len(result.PendingApprovals) == 0 {
		return &agent.TurnResult{State: agent.TurnComplete, Messages: result.Messages}, nil
	}

	approvalID := result.PendingApprovals[0]
	approve := autoApprove
	if !autoApprove {
		if suggestion, err := s.GetSuggestion(ctx, approvalID); err == nil && suggestion != nil {
			fmt.Println()
			fmt.Println(ui.RenderApproval(*suggestion))
		}

		prompt := promptui.Select{
			Label: "Apply this change",
			Items: []string{"Approve", "Reject"},
		}
		i, _, err := prompt.Run()
		if err != nil {
			// Ctrl-C rejects instead of leaving the suggestion dangling.
			fmt.Fprintln(os.Stderr, "Rejecting pending change:", err)
			i = 1
		}
		approve = i == 0
	}

	resumed, err := loop.ResumeWithApproval(ctx, approvalID, approve, sink)
	if err != nil {
		return nil, fmt.Errorf("resume turn: %w", err)
	}
	return resumed, nil
}

// terminalSink renders stream chunks to stdout as they arrive.
type terminalSink struct{}

func (t *terminalSink) Emit(c agent.Chunk) {
	switch c.Kind {
	case agent.ChunkContext:
		if verbose && c.Context != nil {
			fmt.Println(ui.RenderRAGContext(c.Context))
		}
	case agent.ChunkDelta:
		fmt.Print(c.Text)
	case agent.ChunkTool:
		if verbose {
			fmt.Println(ui.StyleSubtle.Render(fmt.Sprintf("\n[tool %s] %s", c.ToolName, c.ToolResult)))
		}
	case agent.ChunkApprovalRequest:
		fmt.Println(ui.StyleWarning.Render(fmt.Sprintf("\nPending approval: %s (%s)", c.ToolName, c.Danger)))
	case agent.ChunkFail:
		fmt.Println(ui.StyleError.Render("\nTurn failed: " + c.Error))
	}
}
