package commands

import (
	"bytes"
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/neudinger/acctmigrate/internal/directory"
	"github.com/neudinger/acctmigrate/internal/domain"
	"github.com/neudinger/acctmigrate/internal/export"
)

var (
	exportOut string
	exportCSV string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export every account of the source directory to a checkpoint",
	Long: `Export every account of the source directory to a checkpoint file.

The checkpoint is JSON, or YAML when the path ends in .yaml/.yml. A reference
CSV is written alongside it unless --csv is set to an empty string. Both may be
local paths or s3://bucket/key URIs.

Examples:
  acctmigrate export
  acctmigrate export --out s3://migrations/users-export.json`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "", "checkpoint location (default: paths.checkpoint)")
	exportCmd.Flags().StringVar(&exportCSV, "csv", "", "reference CSV location (default: paths.reference_csv)")
}

func runExport(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	out := flagOr(cmd, "out", exportOut, a.cfg.Paths.Checkpoint)
	csvOut := flagOr(cmd, "csv", exportCSV, a.cfg.Paths.ReferenceCSV)

	records, err := a.exportAccounts(cmd.Context(), out, csvOut)
	if err != nil {
		return preflight(err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Exported %d accounts to %s\n", len(records), out)
	return nil
}

// exportAccounts drains the source directory and writes the checkpoint and,
// when csvURI is set, the reference CSV. Any error aborts the export.
func (a *app) exportAccounts(ctx context.Context, checkpointURI, csvURI string) ([]domain.AccountRecord, error) {
	src, err := openDirectory(ctx, a.cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("source directory: %w", err)
	}
	defer func() { _ = directory.Close(src) }()

	exporter := export.New(src,
		export.WithPageSize(a.cfg.Migration.PageSize),
		export.WithLogger(a.logger.With("source", directoryLabel(a.cfg.Source))),
	)
	records, err := exporter.Export(ctx)
	if err != nil {
		return nil, err
	}
	a.metrics.SetExported(len(records))

	if err := export.WriteCheckpoint(ctx, a.artifacts, checkpointURI, records); err != nil {
		return nil, err
	}

	if csvURI != "" {
		var buf bytes.Buffer
		if err := export.WriteReferenceCSV(&buf, records); err != nil {
			return nil, err
		}
		if err := a.artifacts.Write(ctx, csvURI, buf.Bytes()); err != nil {
			return nil, fmt.Errorf("failed to write reference csv: %w", err)
		}
	}

	a.logger.Info("Checkpoint written", "path", checkpointURI, "accounts", len(records))
	return records, nil
}

// flagOr returns the flag value when it was set on the command line and def
// otherwise.
func flagOr(cmd *cobra.Command, name, value, def string) string {
	if cmd.Flags().Changed(name) {
		return value
	}
	return def
}
