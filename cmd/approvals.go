package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mythos-ai/mythos-core/internal/ui"
)

var approvalsCmd = &cobra.Command{
	Use:          "approvals <project>",
	Short:        "List pending approval-gated graph changes",
	SilenceUsage: true,
	Args:         cobra.ExactArgs(1),
	RunE:         runApprovals,
}

func init() {
	rootCmd.AddCommand(approvalsCmd)
}

func runApprovals(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	pending, err := s.ListPendingSuggestions(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if isJSON() {
		return printJSON(pending)
	}
	if len(pending) == 0 {
		fmt.Println(ui.StyleSubtle.Render("No pending approvals."))
		return nil
	}
	for _, sg := range pending {
		fmt.Println(ui.RenderApproval(sg))
		fmt.Println(ui.StyleSubtle.Render("  id: " + sg.ID))
	}
	return nil
}
