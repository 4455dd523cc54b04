package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mythos-ai/mythos-core/internal/registry"
	"github.com/mythos-ai/mythos-core/internal/ui"
)

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Inspect and customize a project's entity type registry",
}

var registryShowCmd = &cobra.Command{
	Use:          "show <project>",
	Short:        "Print the resolved registry (template plus overrides)",
	SilenceUsage: true,
	Args:         cobra.ExactArgs(1),
	RunE:         runRegistryShow,
}

var registryValidateCmd = &cobra.Command{
	Use:          "validate <override.yaml>",
	Short:        "Validate an override document without applying it",
	SilenceUsage: true,
	Args:         cobra.ExactArgs(1),
	RunE:         runRegistryValidate,
}

var registryApplyCmd = &cobra.Command{
	Use:          "apply <project> <override.yaml>",
	Short:        "Apply an override document to a project",
	SilenceUsage: true,
	Args:         cobra.ExactArgs(2),
	RunE:         runRegistryApply,
}

var registryLockCmd = &cobra.Command{
	Use:          "lock <project>",
	Short:        "Freeze the registry against further customization",
	SilenceUsage: true,
	Args:         cobra.ExactArgs(1),
	RunE:         runRegistryLock,
}

func init() {
	rootCmd.AddCommand(registryCmd)
	registryCmd.AddCommand(registryShowCmd)
	registryCmd.AddCommand(registryValidateCmd)
	registryCmd.AddCommand(registryApplyCmd)
	registryCmd.AddCommand(registryLockCmd)
}

func runRegistryShow(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	resolved, err := s.GetResolvedRegistry(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if isJSON() {
		return printJSON(resolved)
	}

	fmt.Println(ui.StyleSectionTitle.Render("Entity types"))
	for _, name := range sortedKeys(resolved.EntityTypes) {
		def := resolved.EntityTypes[name]
		fmt.Printf("  %-14s %-6s %s\n", name, def.RiskLevel, approvalSummary(def.Approval))
	}
	fmt.Println(ui.StyleSectionTitle.Render("Relationship types"))
	for _, name := range sortedKeys(resolved.RelationshipTypes) {
		def := resolved.RelationshipTypes[name]
		fmt.Printf("  %-14s %-6s %s\n", name, def.RiskLevel, approvalSummary(def.Approval))
	}
	return nil
}

func runRegistryValidate(cmd *cobra.Command, args []string) error {
	doc, err := readOverrideDoc(args[0])
	if err != nil {
		return err
	}
	if gerr := registry.ValidateOverride(doc); gerr != nil {
		return gerr
	}
	fmt.Println(ui.StyleSuccess.Render("Override document is valid."))
	return nil
}

func runRegistryApply(cmd *cobra.Command, args []string) error {
	doc, err := readOverrideDoc(args[1])
	if err != nil {
		return err
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	if err := s.SaveRegistryOverride(cmd.Context(), args[0], doc); err != nil {
		return err
	}
	fmt.Println(ui.StyleSuccess.Render("Applied registry override to " + args[0]))
	return nil
}

func runRegistryLock(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	if err := s.LockRegistry(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Println(ui.StyleSuccess.Render("Registry locked for " + args[0]))
	return nil
}

func readOverrideDoc(path string) (*registry.OverrideDoc, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read override file: %w", err)
	}
	var doc registry.OverrideDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse override file: %w", err)
	}
	return &doc, nil
}

func approvalSummary(rule *registry.ApprovalRule) string {
	if rule == nil {
		return ""
	}
	var parts []string
	if rule.CreateRequiresApproval {
		parts = append(parts, "create gated")
	}
	if rule.UpdateAlwaysRequiresApproval {
		parts = append(parts, "update gated")
	}
	if len(rule.IdentityFields) > 0 {
		parts = append(parts, fmt.Sprintf("identity: %v", rule.IdentityFields))
	}
	if len(parts) == 0 {
		return ""
	}
	return ui.StyleSubtle.Render(fmt.Sprintf("%v", parts))
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
