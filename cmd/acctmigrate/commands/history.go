package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/neudinger/acctmigrate/internal/cli/output"
	"github.com/neudinger/acctmigrate/internal/config"
	"github.com/neudinger/acctmigrate/internal/domain"
	"github.com/neudinger/acctmigrate/internal/storage"
)

var (
	historyLimit  int
	historyOutput string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect recorded runs",
	Long: `Inspect runs recorded in the local history database (history.path).
Runs are only recorded when history.enabled is true.`,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs, newest first",
	RunE:  runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run and its per-record outcomes",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

func init() {
	historyListCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of runs")
	historyCmd.PersistentFlags().StringVarP(&historyOutput, "output", "o", "table", "output format (table|json|yaml)")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
}

// runList renders runs as a table.
type runList []storage.Run

func (l runList) Headers() []string {
	return []string{"ID", "Kind", "Started", "Duration", "Created", "Existing", "Failed", "Total"}
}

func (l runList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, r := range l {
		rows = append(rows, []string{
			r.ID.String(),
			r.Kind,
			r.StartedAt.Local().Format(time.DateTime),
			r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String(),
			strconv.Itoa(r.Summary.Created),
			strconv.Itoa(r.Summary.AlreadyExists),
			strconv.Itoa(r.Summary.Failed),
			strconv.Itoa(r.Summary.Total),
		})
	}
	return rows
}

// outcomeList renders outcomes as a table.
type outcomeList []domain.MigrationOutcome

func (l outcomeList) Headers() []string {
	return []string{"Status", "Email", "Source ID", "Destination ID", "Reset", "Detail"}
}

func (l outcomeList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, o := range l {
		rows = append(rows, []string{
			string(o.Status),
			o.Email,
			o.SourceID,
			o.DestinationID,
			strconv.FormatBool(o.ResetLinkIssued),
			o.Detail,
		})
	}
	return rows
}

func openHistoryForRead() (storage.Repository, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, preflight(err)
	}
	repo, err := openHistory(cfg.History)
	if err != nil {
		return nil, preflight(fmt.Errorf("failed to open history %s: %w", cfg.History.Path, err))
	}
	return repo, nil
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(historyOutput)
	if err != nil {
		return err
	}

	repo, err := openHistoryForRead()
	if err != nil {
		return err
	}
	defer func() { _ = repo.Close() }()

	runs, err := repo.ListRuns(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	if runs == nil {
		runs = []storage.Run{}
	}
	if format == output.FormatTable {
		return output.PrintTable(cmd.OutOrStdout(), runList(runs))
	}
	return output.Print(cmd.OutOrStdout(), format, runs)
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(historyOutput)
	if err != nil {
		return err
	}
	runID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid run id %q: %w", args[0], err)
	}

	repo, err := openHistoryForRead()
	if err != nil {
		return err
	}
	defer func() { _ = repo.Close() }()

	ctx := cmd.Context()
	run, err := repo.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	outcomes, err := repo.GetOutcomes(ctx, runID)
	if err != nil {
		return err
	}

	if format != output.FormatTable {
		return output.Print(cmd.OutOrStdout(), format, struct {
			Run      storage.Run               `json:"run" yaml:"run"`
			Outcomes []domain.MigrationOutcome `json:"outcomes" yaml:"outcomes"`
		}{run, outcomes})
	}

	w := cmd.OutOrStdout()
	if err := output.SimpleTable(w, [][2]string{
		{"Run", run.ID.String()},
		{"Kind", run.Kind},
		{"Source", run.Source},
		{"Destination", run.Destination},
		{"Started", run.StartedAt.Local().Format(time.DateTime)},
		{"Finished", run.FinishedAt.Local().Format(time.DateTime)},
		{"Created", strconv.Itoa(run.Summary.Created)},
		{"Existing", strconv.Itoa(run.Summary.AlreadyExists)},
		{"Failed", strconv.Itoa(run.Summary.Failed)},
		{"Total", strconv.Itoa(run.Summary.Total)},
	}); err != nil {
		return err
	}
	if len(outcomes) == 0 {
		return nil
	}
	_, _ = fmt.Fprintln(w)
	return output.PrintTable(w, outcomeList(outcomes))
}
