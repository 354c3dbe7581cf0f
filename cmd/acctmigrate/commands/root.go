// Package commands implements the acctmigrate CLI.
package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile   string
	assumeYes bool
)

var rootCmd = &cobra.Command{
	Use:   "acctmigrate",
	Short: "Idempotent account migration between identity directories",
	Long: `acctmigrate exports user accounts from a source directory, replays them
into a destination directory and seeds companion documents (sign-up allowlist,
session schedule) into a document store. Profile documents of that store can
be listed and exported.

Every run can be repeated safely: accounts that already exist in the
destination are reported, never duplicated.

Exit codes:
  0  every record processed, none failed
  1  partial failure (failed records or failed seed writes)
  2  the run could not start (configuration, credentials, checkpoint)

Environment variables override configuration keys:
  ACCTMIGRATE_<SECTION>_<KEY>, e.g. ACCTMIGRATE_LOGGING_LEVEL=DEBUG`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. SIGINT and SIGTERM cancel the run context;
// records not yet processed are then reported as failed.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/acctmigrate/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "skip confirmation prompts")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(accountsCmd)
	rootCmd.AddCommand(profilesCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
