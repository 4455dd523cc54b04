package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mythos-ai/mythos-core/internal/retrieval"
	"github.com/mythos-ai/mythos-core/internal/ui"
)

var retrieveCmd = &cobra.Command{
	Use:          "retrieve <query>",
	Short:        "Search project knowledge without invoking the model",
	SilenceUsage: true,
	Long: `Run the retrieval pipeline directly: hybrid dense + keyword search,
rank fusion, and context expansion. Useful for inspecting what the
assistant would see for a given question.

Examples:
  mythos retrieve "the siege of Vireth" --project novel
  mythos retrieve "Elara" --project novel --scope entities
  mythos retrieve "style notes" --project novel --memories --json`,
	Args: cobra.ExactArgs(1),
	RunE: runRetrieve,
}

func init() {
	rootCmd.AddCommand(retrieveCmd)
	retrieveCmd.Flags().StringP("project", "p", "", "Project ID (required)")
	retrieveCmd.Flags().StringP("scope", "s", "all", "Restrict to one category: all, documents, entities, memories")
	retrieveCmd.Flags().Bool("memories", false, "Include project memories in an unscoped search")
	_ = retrieveCmd.MarkFlagRequired("project")
}

func runRetrieve(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	rec := newRecorder()
	defer func() { _ = rec.Close() }()

	projectID, _ := cmd.Flags().GetString("project")
	scope, _ := cmd.Flags().GetString("scope")
	includeMemories, _ := cmd.Flags().GetBool("memories")

	engine := buildEngine(cmd.Context(), s, rec)
	ragCtx, err := engine.Retrieve(cmd.Context(), args[0], projectID, retrieval.Options{
		Scope:           retrieval.Scope(scope),
		IncludeMemories: includeMemories,
	})
	if err != nil {
		return fmt.Errorf("retrieve: %w", err)
	}

	if isJSON() {
		return printJSON(ragCtx)
	}
	fmt.Println(ui.RenderRAGContext(ragCtx))
	return nil
}
