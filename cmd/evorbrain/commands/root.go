package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	dataDir    string
	verbose    bool
	jsonOutput bool

	buildVersion = "dev"
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	buildVersion = version

	rootCmd := &cobra.Command{
		Use:   "evorbrain",
		Short: "EvorBrain - personal life management",
		Long: `EvorBrain organises life areas, goals, projects and tasks, with notes and
tags attached anywhere in the hierarchy.

Data lives in a single SQLite database inside the data directory
(~/.local/share/com.evorbrain.app by default). Every command works on that
database directly; 'evorbrain serve' exposes the same operations over HTTP.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (default <data-dir>/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&dataDir, "data-dir", "d", "", "data directory (overrides EVORBRAIN_DATA_DIR)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print service logs to stderr")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newAreasCommand())
	rootCmd.AddCommand(newGoalsCommand())
	rootCmd.AddCommand(newProjectsCommand())
	rootCmd.AddCommand(newTasksCommand())
	rootCmd.AddCommand(newNotesCommand())
	rootCmd.AddCommand(newTagsCommand())
	rootCmd.AddCommand(newDBCommand())
	rootCmd.AddCommand(newLogsCommand())
	rootCmd.AddCommand(newBackupCommand())
	rootCmd.AddCommand(newRestoreCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newApplyCommand())
	rootCmd.AddCommand(newServeCommand())

	return rootCmd
}
