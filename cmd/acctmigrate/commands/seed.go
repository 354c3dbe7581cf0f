package commands

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/neudinger/acctmigrate/internal/cli/output"
	"github.com/neudinger/acctmigrate/internal/domain"
	"github.com/neudinger/acctmigrate/internal/export"
	"github.com/neudinger/acctmigrate/internal/seed"
	"github.com/neudinger/acctmigrate/internal/storage"
)

var (
	seedIn       string
	seedSessions string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed companion documents into the document store",
	Long: `Seed documents that the destination application reads.

Subcommands:
  allowlist  Mark every exported email as allowed to sign up
  schedule   Create session documents from a JSON or YAML list`,
}

var seedAllowlistCmd = &cobra.Command{
	Use:   "allowlist",
	Short: "Seed the sign-up allowlist from a checkpoint",
	Long: `Write one document per distinct, normalized email of the checkpoint.
Existing documents are merged, so the command can be re-run.

Examples:
  acctmigrate seed allowlist --yes
  acctmigrate seed allowlist --in s3://migrations/users-export.json`,
	RunE: runSeedAllowlist,
}

var seedScheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Seed session documents from a schedule file",
	Long: `Create one document per session. Each session gets a fresh ID, a
capacity (default 100), registered=0 and creation timestamps.

Examples:
  acctmigrate seed schedule --sessions sessions.yaml`,
	RunE: runSeedSchedule,
}

func init() {
	seedAllowlistCmd.Flags().StringVar(&seedIn, "in", "", "checkpoint location (default: paths.checkpoint)")
	seedScheduleCmd.Flags().StringVar(&seedSessions, "sessions", "", "schedule file (JSON or YAML list)")
	_ = seedScheduleCmd.MarkFlagRequired("sessions")

	seedCmd.AddCommand(seedAllowlistCmd)
	seedCmd.AddCommand(seedScheduleCmd)
}

func runSeedAllowlist(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()
	in := flagOr(cmd, "in", seedIn, a.cfg.Paths.Checkpoint)
	records, err := export.ReadCheckpoint(ctx, a.artifacts, in)
	if err != nil {
		return preflight(err)
	}

	collection := a.cfg.Seed.AllowlistCollection
	return a.runSeed(cmd, "seed-allowlist", in, collection,
		fmt.Sprintf("Seed %d emails into %s", len(records), collection),
		func(ctx context.Context, s *seed.Seeder) seed.Result { return s.SeedAllowlist(ctx, records) },
		len(records))
}

func runSeedSchedule(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	sessions, err := seed.ReadSessions(cmd.Context(), a.artifacts, seedSessions)
	if err != nil {
		return preflight(err)
	}

	collection := a.cfg.Seed.ScheduleCollection
	return a.runSeed(cmd, "seed-schedule", seedSessions, collection,
		fmt.Sprintf("Create %d sessions in %s", len(sessions), collection),
		func(ctx context.Context, s *seed.Seeder) seed.Result { return s.SeedSchedule(ctx, sessions) },
		len(sessions))
}

func (a *app) runSeed(cmd *cobra.Command, kind, source, collection, label string,
	run func(context.Context, *seed.Seeder) seed.Result, total int) error {
	ctx := cmd.Context()

	if err := confirm(label); err != nil {
		return err
	}

	store, err := openDocStore(ctx, a.cfg)
	if err != nil {
		return preflight(fmt.Errorf("document store: %w", err))
	}
	defer func() { _ = store.Close() }()
	if err := checkDocStore(ctx, store, collection, docStoreLabel(a.cfg.DocStore.Type, collection)); err != nil {
		return err
	}

	startedAt := time.Now().UTC()
	seeder := seed.New(store, a.cfg.Seed,
		seed.WithMetrics(a.metrics),
		seed.WithLogger(a.logger))
	res := run(ctx, seeder)

	out := cmd.OutOrStdout()
	printSeedResult(out, res)

	runID := uuid.New()
	a.recordRun(context.WithoutCancel(ctx), storage.Run{
		ID:          runID,
		Kind:        kind,
		Source:      source,
		Destination: docStoreLabel(a.cfg.DocStore.Type, collection),
		StartedAt:   startedAt,
		FinishedAt:  time.Now().UTC(),
		Summary: domain.Summary{
			Created:       res.Written,
			AlreadyExists: res.Duplicates,
			Failed:        len(res.Failures),
			Total:         total,
		},
	}, nil)
	a.pushMetrics(runID)

	if !res.OK() {
		return partial(fmt.Errorf("%d document writes failed", len(res.Failures)))
	}
	return nil
}

func docStoreLabel(kind, collection string) string {
	return kind + ":" + collection
}

func printSeedResult(w io.Writer, res seed.Result) {
	_ = output.SimpleTable(w, [][2]string{
		{"Written", strconv.Itoa(res.Written)},
		{"Duplicates", strconv.Itoa(res.Duplicates)},
		{"Skipped", strconv.Itoa(res.Skipped)},
		{"Failed", strconv.Itoa(len(res.Failures))},
	})
	for _, f := range res.Failures {
		_, _ = fmt.Fprintf(w, "  ✗ %s: %v\n", f.Key, f.Err)
	}
}
