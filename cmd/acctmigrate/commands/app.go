package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/neudinger/acctmigrate/internal/artifact"
	"github.com/neudinger/acctmigrate/internal/cli/prompt"
	"github.com/neudinger/acctmigrate/internal/config"
	"github.com/neudinger/acctmigrate/internal/directory"
	"github.com/neudinger/acctmigrate/internal/directory/identitytoolkit"
	"github.com/neudinger/acctmigrate/internal/directory/memdir"
	"github.com/neudinger/acctmigrate/internal/directory/sqldir"
	"github.com/neudinger/acctmigrate/internal/docstore"
	"github.com/neudinger/acctmigrate/internal/docstore/badgerstore"
	"github.com/neudinger/acctmigrate/internal/docstore/firestore"
	"github.com/neudinger/acctmigrate/internal/domain"
	"github.com/neudinger/acctmigrate/internal/logger"
	"github.com/neudinger/acctmigrate/internal/metrics"
	"github.com/neudinger/acctmigrate/internal/storage"
	"github.com/neudinger/acctmigrate/internal/telemetry"
)

// app holds what a command needs for one run. Clients are built from config
// once per run and injected; nothing is kept in package globals.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	artifacts *artifact.Store
	metrics   *metrics.Metrics

	closers []func(context.Context) error
}

// setup loads configuration and starts logging and tracing. Every error is a
// pre-flight failure.
func setup(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, preflight(err)
	}

	log, closeLog, err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, preflight(err)
	}

	a := &app{
		cfg:       cfg,
		logger:    log,
		artifacts: artifact.New(cfg.Artifacts),
		metrics:   metrics.New(),
	}
	a.closers = append(a.closers, func(context.Context) error { return closeLog() })

	tcfg := cfg.Telemetry
	tcfg.ServiceName = "acctmigrate"
	tcfg.ServiceVersion = Version
	shutdown, err := telemetry.Init(cmd.Context(), tcfg)
	if err != nil {
		a.close()
		return nil, preflight(err)
	}
	a.closers = append(a.closers, shutdown)

	log.Debug("Configuration loaded", "source", configSource())
	return a, nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	ctx := context.Background()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn("Shutdown error", "error", err)
		}
	}
}

func configSource() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.GetDefaultConfigPath()
}

// confirm asks before a write to an external system unless --yes was given.
func confirm(label string) error {
	ok, err := prompt.ConfirmWithForce(label, assumeYes)
	if err != nil {
		if errors.Is(err, prompt.ErrAborted) {
			return preflight(err)
		}
		return preflight(fmt.Errorf("confirmation prompt failed (use --yes in non-interactive runs): %w", err))
	}
	if !ok {
		return preflight(errors.New("cancelled"))
	}
	return nil
}

func openDirectory(ctx context.Context, cfg config.DirectoryConfig) (directory.Directory, error) {
	switch cfg.Type {
	case config.DirectoryIdentityToolkit:
		c, err := identitytoolkit.New(ctx, cfg.IdentityToolkit)
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.DirectorySQL:
		sqlCfg := cfg.SQL
		d, err := sqldir.New(&sqlCfg)
		if err != nil {
			return nil, err
		}
		return d, nil
	case config.DirectoryMemory:
		return memdir.New(), nil
	default:
		return nil, fmt.Errorf("unknown directory type %q", cfg.Type)
	}
}

// checkDirectory makes one authenticated read so that missing or rejected
// credentials stop the run before any record is processed.
func checkDirectory(ctx context.Context, dir directory.Directory, label string) error {
	if _, err := dir.ListAccountsPage(ctx, 1, ""); err != nil {
		return preflight(accessError(label, err))
	}
	return nil
}

// checkDocStore reads one document of collection. A missing document is
// fine; any other error means the store cannot be used.
func checkDocStore(ctx context.Context, store docstore.Store, collection, label string) error {
	_, err := store.Get(ctx, collection, preflightKey)
	if err == nil || errors.Is(err, docstore.ErrNotFound) {
		return nil
	}
	return preflight(accessError(label, err))
}

const preflightKey = "acctmigrate-preflight"

func accessError(label string, err error) error {
	if identitytoolkit.IsAuthorisationFailure(err) {
		return fmt.Errorf("%s: credentials rejected: %w", label, err)
	}
	return fmt.Errorf("%s: not reachable: %w", label, err)
}

func directoryLabel(cfg config.DirectoryConfig) string {
	switch cfg.Type {
	case config.DirectoryIdentityToolkit:
		if cfg.IdentityToolkit.ProjectID != "" {
			return "identitytoolkit:" + cfg.IdentityToolkit.ProjectID
		}
	case config.DirectorySQL:
		return "sql:" + string(cfg.SQL.Type)
	}
	return cfg.Type
}

func openDocStore(ctx context.Context, cfg *config.Config) (docstore.Store, error) {
	switch cfg.DocStore.Type {
	case config.DocStoreFirestore:
		fcfg := cfg.DocStore.Firestore
		if fcfg.ProjectID == "" && cfg.Destination.Type == config.DirectoryIdentityToolkit {
			fcfg.ProjectID = cfg.Destination.IdentityToolkit.ProjectID
		}
		s, err := firestore.New(ctx, fcfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.DocStoreBadger:
		s, err := badgerstore.Open(cfg.DocStore.Badger)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown document store type %q", cfg.DocStore.Type)
	}
}

func openHistory(cfg config.HistoryConfig) (storage.Repository, error) {
	return storage.NewDuckDBRepository(cfg.Path)
}

// recordRun stores a finished run in the history database. History is
// auxiliary: failures are logged and do not change the exit code.
func (a *app) recordRun(ctx context.Context, run storage.Run, outcomes []domain.MigrationOutcome) {
	if !a.cfg.History.Enabled {
		return
	}
	log := a.logger.With("run_id", run.ID, "path", a.cfg.History.Path)

	repo, err := openHistory(a.cfg.History)
	if err != nil {
		log.Warn("Failed to open run history", "error", err)
		return
	}
	defer func() { _ = repo.Close() }()

	if err := repo.SaveRun(ctx, run); err != nil {
		log.Warn("Failed to save run", "error", err)
		return
	}
	if err := repo.SaveOutcomes(ctx, run.ID, outcomes); err != nil {
		log.Warn("Failed to save run outcomes", "error", err)
		return
	}
	log.Debug("Run recorded")
}

func (a *app) pushMetrics(runID uuid.UUID) {
	if err := a.metrics.Push(a.cfg.Metrics, runID.String()); err != nil {
		a.logger.Warn("Failed to push metrics", "error", err)
	}
}
