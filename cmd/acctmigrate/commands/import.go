package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/neudinger/acctmigrate/internal/directory"
	"github.com/neudinger/acctmigrate/internal/domain"
	"github.com/neudinger/acctmigrate/internal/export"
	"github.com/neudinger/acctmigrate/internal/ledger"
	"github.com/neudinger/acctmigrate/internal/migrate"
	"github.com/neudinger/acctmigrate/internal/storage"
	"github.com/neudinger/acctmigrate/internal/transform"
)

var (
	importIn     string
	importReport string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a checkpoint into the destination directory",
	Long: `Replay every account of a checkpoint into the destination directory.

Accounts whose email already exists are reported as ALREADY_EXISTS, so the
import can be re-run after a partial failure. New accounts get a random
password and, unless disabled, a password reset link.

The report is JSON when its path ends in .json and CSV (plus a
.summary.json sidecar) otherwise.

Examples:
  acctmigrate import --yes
  acctmigrate import --in users-export.json --report results.csv`,
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVar(&importIn, "in", "", "checkpoint location (default: paths.checkpoint)")
	importCmd.Flags().StringVar(&importReport, "report", "", "report location (default: paths.report)")
}

func runImport(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()
	in := flagOr(cmd, "in", importIn, a.cfg.Paths.Checkpoint)

	records, err := export.ReadCheckpoint(ctx, a.artifacts, in)
	if err != nil {
		return preflight(err)
	}

	report := flagOr(cmd, "report", importReport, a.cfg.Paths.Report)
	return a.importRecords(cmd, records, in, report)
}

// importRecords replays records into the destination, prints progress and
// the summary, and persists the report.
func (a *app) importRecords(cmd *cobra.Command, records []domain.AccountRecord, source, reportURI string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	destLabel := directoryLabel(a.cfg.Destination)

	if err := confirm(fmt.Sprintf("Import %d accounts into %s", len(records), destLabel)); err != nil {
		return err
	}

	dest, err := openDirectory(ctx, a.cfg.Destination)
	if err != nil {
		return preflight(fmt.Errorf("destination directory: %w", err))
	}
	defer func() { _ = directory.Close(dest) }()
	if err := checkDirectory(ctx, dest, destLabel); err != nil {
		return err
	}

	transformer := transform.New(a.cfg.Migration.Policy,
		transform.WithPasswordLength(a.cfg.Migration.PasswordLength))

	migrator := migrate.New(dest, transformer,
		migrate.Config{
			RequestsPerSecond: a.cfg.Migration.RequestsPerSecond,
			SendResetLinks:    a.cfg.Migration.SendResetLinks,
		},
		migrate.WithObserver(progressPrinter(out)),
		migrate.WithMetrics(a.metrics),
		migrate.WithLogger(a.logger.With("destination", destLabel)),
	)

	led := ledger.New()
	for _, o := range migrator.ImportAll(ctx, records) {
		led.Append(o)
	}
	finished := time.Now().UTC()

	_, _ = fmt.Fprintln(out)
	led.Render(out)

	// The report is written even after cancellation so the run can be
	// inspected and resumed.
	reportErr := led.Persist(context.WithoutCancel(ctx), a.artifacts, reportURI)
	if reportErr != nil {
		a.logger.Error("Failed to write report", "path", reportURI, "error", reportErr)
	} else {
		_, _ = fmt.Fprintf(out, "Report written to %s\n", reportURI)
	}

	printPendingResets(out, led.PendingResets())

	summary := led.Summarize()
	a.recordRun(context.WithoutCancel(ctx), storage.Run{
		ID:          led.RunID(),
		Kind:        "import",
		Source:      source,
		Destination: destLabel,
		StartedAt:   led.StartedAt(),
		FinishedAt:  finished,
		Summary:     summary,
	}, led.Outcomes())
	a.pushMetrics(led.RunID())

	if led.ExitStatus() == ledger.ExitPartial {
		return partial(fmt.Errorf("%d of %d records failed", summary.Failed, summary.Total))
	}
	if reportErr != nil {
		return partial(reportErr)
	}
	return nil
}

func printPendingResets(w io.Writer, emails []string) {
	if len(emails) == 0 {
		return
	}
	_, _ = fmt.Fprintf(w, "\n%d created accounts still need a password reset:\n", len(emails))
	for _, email := range emails {
		_, _ = fmt.Fprintf(w, "  - %s\n", email)
	}
}
