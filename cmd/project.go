package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mythos-ai/mythos-core/internal/graph"
	"github.com/mythos-ai/mythos-core/internal/registry"
	"github.com/mythos-ai/mythos-core/internal/store"
	"github.com/mythos-ai/mythos-core/internal/ui"
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage writing projects and their members",
}

var projectInitCmd = &cobra.Command{
	Use:          "init <name>",
	Short:        "Create a project",
	SilenceUsage: true,
	Args:         cobra.ExactArgs(1),
	RunE:         runProjectInit,
}

var projectMemberCmd = &cobra.Command{
	Use:          "member <project> <actor> <role>",
	Short:        "Grant or change a member role (owner, editor, viewer)",
	SilenceUsage: true,
	Args:         cobra.ExactArgs(3),
	RunE:         runProjectMember,
}

func init() {
	rootCmd.AddCommand(projectCmd)
	projectCmd.AddCommand(projectInitCmd)
	projectCmd.AddCommand(projectMemberCmd)

	projectInitCmd.Flags().String("id", "", "Project ID (default: generated)")
	projectInitCmd.Flags().StringP("template", "t", registry.DefaultTemplateID, "Registry template: fiction or worldbuilding")
	projectInitCmd.Flags().String("actor", "cli", "Owner user ID")
}

func runProjectInit(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	id, _ := cmd.Flags().GetString("id")
	templateID, _ := cmd.Flags().GetString("template")
	actor, _ := cmd.Flags().GetString("actor")
	if id == "" {
		id = uuid.NewString()
	}

	if _, err := registry.LookupTemplate(templateID); err != nil {
		return err
	}

	p := store.Project{ID: id, Name: args[0], TemplateID: templateID}
	if err := s.CreateProject(cmd.Context(), p, actor); err != nil {
		return fmt.Errorf("create project: %w", err)
	}

	if isJSON() {
		return printJSON(map[string]string{"id": id, "name": args[0], "template": templateID})
	}
	fmt.Println(ui.StyleSuccess.Render("Created project ") + ui.StyleTitle.Render(args[0]) + ui.StyleSubtle.Render(" ("+id+")"))
	return nil
}

func runProjectMember(cmd *cobra.Command, args []string) error {
	projectID, actor, role := args[0], args[1], args[2]
	switch graph.Role(role) {
	case graph.RoleOwner, graph.RoleEditor, graph.RoleViewer:
	default:
		return fmt.Errorf("unknown role %q (expected owner, editor, or viewer)", role)
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	if err := s.SetMemberRole(cmd.Context(), projectID, actor, graph.Role(role)); err != nil {
		return err
	}
	fmt.Printf("%s is now %s on %s\n", actor, role, projectID)
	return nil
}
