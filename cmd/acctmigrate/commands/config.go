package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/neudinger/acctmigrate/internal/cli/output"
	"github.com/neudinger/acctmigrate/internal/config"
)

var (
	initForce  bool
	showOutput string
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write a default configuration file to $XDG_CONFIG_HOME/acctmigrate/config.yaml,
or to the path given with --config.

Examples:
  acctmigrate config init
  acctmigrate config init --config ./acctmigrate.yaml --force`,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the effective configuration",
	Long: `Display the configuration after defaults and environment overrides.

Examples:
  acctmigrate config show
  ACCTMIGRATE_DESTINATION_TYPE=memory acctmigrate config show -o json`,
	RunE: runConfigShow,
}

func init() {
	configInitCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
	configShowCmd.Flags().StringVarP(&showOutput, "output", "o", "yaml", "output format (yaml|json)")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := cfgFile
	if path == "" {
		path = config.GetDefaultConfigPath()
	}

	if err := config.InitConfig(path, initForce); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	w := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(w, "Configuration file created at: %s\n", path)
	_, _ = fmt.Fprintln(w, "\nNext steps:")
	_, _ = fmt.Fprintln(w, "  1. Set source and destination directories and credentials")
	_, _ = fmt.Fprintln(w, "  2. Check the result with: acctmigrate config show")
	_, _ = fmt.Fprintln(w, "  3. Run: acctmigrate export && acctmigrate import")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return preflight(err)
	}

	format, err := output.ParseFormat(showOutput)
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(cmd.OutOrStdout(), cfg)
	default:
		return output.PrintYAML(cmd.OutOrStdout(), cfg)
	}
}
