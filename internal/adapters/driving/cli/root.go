// Package cli provides the roster command-line interface.
package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/roster/internal/adapters/driven/config/env"
	"github.com/custodia-labs/roster/internal/adapters/driven/config/file"
	"github.com/custodia-labs/roster/internal/core/domain"
	"github.com/custodia-labs/roster/internal/core/ports/driving"
	"github.com/custodia-labs/roster/internal/core/services"
	"github.com/custodia-labs/roster/internal/logger"
	"github.com/custodia-labs/roster/internal/persistence"
)

// version is set at build time with -ldflags "-X ...cli.version=...".
var version = "dev"

// Services used by the commands. They are created in PersistentPreRunE
// unless already set.
var (
	rosterService   driving.RosterService
	settingsService driving.SettingsService
)

// Root flags.
var (
	flagInMemory    bool
	flagDataDir     string
	flagMergePolicy string
	flagVerbose     bool
)

// annotationNoStore marks commands that run without opening the store.
const annotationNoStore = "roster/no-store"

var rootCmd = &cobra.Command{
	Use:   "roster",
	Short: "Manage teams and the people in them",
	Long: `roster keeps a local store of teams and people.

A person can belong to any number of teams and a team can have any number
of members. Membership can be changed from either side.`,
	SilenceUsage:      true,
	PersistentPreRunE: setupServices,
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagInMemory, "in-memory", false, "Use a throwaway in-memory store")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "Directory of the on-disk store (default ~/.roster/data)")
	rootCmd.PersistentFlags().StringVar(&flagMergePolicy, "merge-policy", "", "Merge policy for conflicting saves")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Print debug output to stderr")
}

// Execute runs the root command and closes the store afterwards.
func Execute() error {
	err := rootCmd.Execute()
	if cerr := persistence.ResetShared(); cerr != nil && err == nil {
		err = fmt.Errorf("closing store: %w", cerr)
	}
	return err
}

func setupServices(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		configStore, err := file.NewConfigStore("")
		if err != nil {
			return fmt.Errorf("failed to open config: %w", err)
		}
		settingsService = services.NewSettingsService(configStore)
	}

	settings, err := effectiveSettings(cmd)
	if err != nil {
		return err
	}
	logger.SetVerbose(settings.Verbose)
	logger.Debug("settings: in-memory=%t data-dir=%q merge-policy=%s", settings.InMemory, settings.DataDir, settings.MergePolicy)

	if rosterService != nil || !needsStore(cmd) {
		return nil
	}
	logger.Section("Store")
	p := persistence.MustInitialize(persistence.OptionsFromSettings(*settings, logger.Named("persistence")))
	logger.Info("opened store %s", p.StorePath())
	rosterService = p.Roster()
	return nil
}

// effectiveSettings layers the environment and then flags over the stored
// settings.
func effectiveSettings(cmd *cobra.Command) (*domain.StoreSettings, error) {
	settings, err := settingsService.Get()
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	if err := env.ApplyEnv(settings); err != nil {
		return nil, err
	}

	flags := cmd.Root().PersistentFlags()
	if flags.Changed("in-memory") {
		settings.InMemory = flagInMemory
	}
	if flags.Changed("data-dir") {
		settings.DataDir = flagDataDir
	}
	if flags.Changed("merge-policy") {
		policy, err := domain.ParseMergePolicy(flagMergePolicy)
		if err != nil {
			return nil, fmt.Errorf("--merge-policy: %w", err)
		}
		settings.MergePolicy = policy
	}
	if flags.Changed("verbose") {
		settings.Verbose = flagVerbose
	}
	return settings, nil
}

func needsStore(cmd *cobra.Command) bool {
	if cmd.Name() == "help" {
		return false
	}
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[annotationNoStore] == "true" {
			return false
		}
	}
	return true
}

var errRosterNotConfigured = errors.New("roster service not configured")
