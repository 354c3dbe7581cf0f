package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/neudinger/acctmigrate/internal/export"
)

var migrateReport string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Export the source directory and import it into the destination",
	Long: `Run export and import back to back. The checkpoint is still written, so a
failed import can be resumed with 'acctmigrate import'.

Examples:
  acctmigrate migrate --yes`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().StringVar(&migrateReport, "report", "", "report location (default: paths.report)")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	checkpoint := a.cfg.Paths.Checkpoint
	records, err := a.exportAccounts(cmd.Context(), checkpoint, a.cfg.Paths.ReferenceCSV)
	if err != nil {
		return preflight(err)
	}
	if len(records) == 0 {
		return preflight(fmt.Errorf("%s: %w", directoryLabel(a.cfg.Source), export.ErrEmptyCheckpoint))
	}

	report := flagOr(cmd, "report", migrateReport, a.cfg.Paths.Report)
	return a.importRecords(cmd, records, directoryLabel(a.cfg.Source), report)
}
