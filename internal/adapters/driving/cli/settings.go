package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/roster/internal/core/domain"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage store settings",
	Long: `View and configure the stored settings.

Environment variables (ROSTER_DATA_DIR, ROSTER_IN_MEMORY, ROSTER_MERGE_POLICY,
ROSTER_VERBOSE) and flags override these values for a single run.`,
	Annotations: map[string]string{annotationNoStore: "true"},
	RunE:        runSettingsShow,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE:  runSettingsShow,
}

var settingsMergePolicyCmd = &cobra.Command{
	Use:   "merge-policy [policy]",
	Short: "Set the merge policy",
	Long: `Set the merge policy used when a save conflicts with changes already in the store.

Without an argument the available policies are listed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSettingsMergePolicy,
}

var settingsDataDirCmd = &cobra.Command{
	Use:   "data-dir [dir]",
	Short: "Set the store directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runSettingsDataDir,
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsMergePolicyCmd)
	settingsCmd.AddCommand(settingsDataDirCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	cmd.Println("Current Settings")
	cmd.Println("================")
	cmd.Println()

	cmd.Println("[Store]")
	dataDir := settings.DataDir
	if dataDir == "" {
		dataDir = "(default ~/.roster/data)"
	}
	cmd.Printf("  Data dir: %s\n", dataDir)
	cmd.Printf("  In-memory: %s\n", yesNo(settings.InMemory))
	cmd.Printf("  Merge policy: %s\n", settings.MergePolicy.Description())
	cmd.Println()

	cmd.Println("[Log]")
	cmd.Printf("  Verbose: %s\n", yesNo(settings.Verbose))
	return nil
}

func runSettingsMergePolicy(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	if len(args) == 0 {
		settings, err := settingsService.Get()
		if err != nil {
			return fmt.Errorf("failed to get settings: %w", err)
		}
		cmd.Println("Merge Policies")
		cmd.Println("--------------")
		for _, policy := range domain.AllMergePolicies() {
			marker := " "
			if policy == settings.MergePolicy {
				marker = "*"
			}
			cmd.Printf(" %s %-20s %s\n", marker, policy, policy.Description())
		}
		return nil
	}

	policy, err := domain.ParseMergePolicy(args[0])
	if err != nil {
		return err
	}
	if err := settingsService.SetMergePolicy(policy); err != nil {
		return fmt.Errorf("failed to set merge policy: %w", err)
	}
	cmd.Printf("Set merge policy to: %s\n", policy.Description())
	return nil
}

func runSettingsDataDir(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}
	settings.DataDir = args[0]
	if err := settingsService.Save(settings); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	cmd.Printf("Set data dir to: %s\n", settings.DataDir)
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
