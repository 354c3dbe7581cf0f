package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/duckdb/duckdb-go/v2"
	"github.com/google/uuid"

	"github.com/neudinger/acctmigrate/internal/domain"
)

// ErrRunNotFound is returned when no run has the requested ID.
var ErrRunNotFound = errors.New("run not found")

// Run describes one import or seeding run.
type Run struct {
	ID          uuid.UUID      `json:"id" yaml:"id"`
	Kind        string         `json:"kind" yaml:"kind"`
	Source      string         `json:"source" yaml:"source"`
	Destination string         `json:"destination" yaml:"destination"`
	StartedAt   time.Time      `json:"startedAt" yaml:"startedAt"`
	FinishedAt  time.Time      `json:"finishedAt" yaml:"finishedAt"`
	Summary     domain.Summary `json:"summary" yaml:"summary"`
}

type Repository interface {
	InitSchema(ctx context.Context) error
	SaveRun(ctx context.Context, run Run) error
	SaveOutcomes(ctx context.Context, runID uuid.UUID, outcomes []domain.MigrationOutcome) error
	ListRuns(ctx context.Context, limit int) ([]Run, error)
	GetRun(ctx context.Context, runID uuid.UUID) (Run, error)
	GetOutcomes(ctx context.Context, runID uuid.UUID) ([]domain.MigrationOutcome, error)
	Close() error
}

type duckDBRepo struct {
	db *sql.DB
}

func NewDuckDBRepository(dsn string) (Repository, error) {
	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, err
	}

	if err = db.Ping(); err != nil {
		return nil, err
	}

	repo := &duckDBRepo{db: db}
	if err := repo.InitSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

func (r *duckDBRepo) InitSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id VARCHAR PRIMARY KEY,
			kind VARCHAR,
			source VARCHAR,
			destination VARCHAR,
			started_at TIMESTAMP,
			finished_at TIMESTAMP,
			created BIGINT,
			already_exists BIGINT,
			failed BIGINT,
			total BIGINT
		)`,
		`CREATE TABLE IF NOT EXISTS outcomes (
			run_id VARCHAR,
			seq BIGINT,
			status VARCHAR,
			email VARCHAR,
			source_id VARCHAR,
			destination_id VARCHAR,
			detail VARCHAR,
			reset_link_issued BOOLEAN
		)`,
	}

	for _, query := range queries {
		if _, err := r.db.ExecContext(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

func (r *duckDBRepo) SaveRun(ctx context.Context, run Run) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO runs (id, kind, source, destination, started_at, finished_at, created, already_exists, failed, total)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`,
		run.ID.String(),
		run.Kind,
		run.Source,
		run.Destination,
		run.StartedAt.UTC(),
		run.FinishedAt.UTC(),
		int64(run.Summary.Created),
		int64(run.Summary.AlreadyExists),
		int64(run.Summary.Failed),
		int64(run.Summary.Total),
	)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}
	return nil
}

// SaveOutcomes bulk-loads a run's outcomes through the DuckDB appender.
func (r *duckDBRepo) SaveOutcomes(ctx context.Context, runID uuid.UUID, outcomes []domain.MigrationOutcome) error {
	if len(outcomes) == 0 {
		return nil
	}

	conn, err := r.db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	var app *duckdb.Appender

	if err := conn.Raw(func(dc any) error {
		duckConn, ok := dc.(*duckdb.Conn)
		if !ok {
			return fmt.Errorf("not a duckdb Conn: %T", dc)
		}

		a, err := duckdb.NewAppenderFromConn(duckConn, "", "outcomes")
		if err != nil {
			return err
		}
		app = a
		return nil
	}); err != nil {
		return err
	}
	defer app.Close()

	for i, o := range outcomes {
		if err := app.AppendRow(
			runID.String(),
			int64(i),
			string(o.Status),
			o.Email,
			o.SourceID,
			o.DestinationID,
			o.Detail,
			o.ResetLinkIssued,
		); err != nil {
			slog.Warn("Failed to append outcome, skipping", "err", err, "run_id", runID, "email", o.Email)
		}
	}
	return app.Flush()
}

const runColumns = `id, kind, source, destination, started_at, finished_at, created, already_exists, failed, total`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run                              Run
		created, existing, failed, total int64
		startedAt, finishedAt            sql.NullTime
	)
	if err := row.Scan(&run.ID, &run.Kind, &run.Source, &run.Destination, &startedAt, &finishedAt,
		&created, &existing, &failed, &total); err != nil {
		return Run{}, err
	}
	run.StartedAt = startedAt.Time
	run.FinishedAt = finishedAt.Time
	run.Summary = domain.Summary{
		Created:       int(created),
		AlreadyExists: int(existing),
		Failed:        int(failed),
		Total:         int(total),
	}
	return run, nil
}

// ListRuns returns the most recent runs first.
func (r *duckDBRepo) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, "SELECT "+runColumns+" FROM runs ORDER BY started_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (r *duckDBRepo) GetRun(ctx context.Context, runID uuid.UUID) (Run, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", runID.String())
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%s: %w", runID, ErrRunNotFound)
	}
	return run, err
}

func (r *duckDBRepo) GetOutcomes(ctx context.Context, runID uuid.UUID) ([]domain.MigrationOutcome, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT status, email, source_id, destination_id, detail, reset_link_issued FROM outcomes WHERE run_id = ? ORDER BY seq",
		runID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outcomes []domain.MigrationOutcome
	for rows.Next() {
		var o domain.MigrationOutcome
		var status string
		if err := rows.Scan(&status, &o.Email, &o.SourceID, &o.DestinationID, &o.Detail, &o.ResetLinkIssued); err != nil {
			return nil, err
		}
		o.Status = domain.Status(status)
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

func (r *duckDBRepo) Close() error {
	return r.db.Close()
}
