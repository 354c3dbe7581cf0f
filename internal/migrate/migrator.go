// Package migrate replays exported account records into a destination
// directory, one record at a time, producing exactly one outcome per record.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/neudinger/acctmigrate/internal/directory"
	"github.com/neudinger/acctmigrate/internal/domain"
	"github.com/neudinger/acctmigrate/internal/metrics"
	"github.com/neudinger/acctmigrate/internal/telemetry"
	"github.com/neudinger/acctmigrate/internal/transform"
)

// DefaultRequestsPerSecond paces imports at roughly one record per 100ms.
const DefaultRequestsPerSecond = 10

// Config controls an import run.
type Config struct {
	// RequestsPerSecond caps the record rate. Zero disables pacing.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second" validate:"gte=0"`

	// SendResetLinks requests a password reset link for each created account.
	SendResetLinks bool `mapstructure:"send_reset_links" yaml:"send_reset_links"`
}

// DefaultConfig returns the default import configuration.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: DefaultRequestsPerSecond,
		SendResetLinks:    true,
	}
}

// Observer is called after each record with its zero-based index.
type Observer func(index, total int, outcome domain.MigrationOutcome)

// Migrator imports records into a destination directory.
type Migrator struct {
	dest        directory.Directory
	transformer *transform.Transformer
	cfg         Config
	observer    Observer
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// Option configures a Migrator.
type Option func(*Migrator)

func WithObserver(o Observer) Option {
	return func(m *Migrator) { m.observer = o }
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Migrator) { m.metrics = mt }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Migrator) {
		if l != nil {
			m.logger = l
		}
	}
}

// New creates a Migrator writing to dest.
func New(dest directory.Directory, transformer *transform.Transformer, cfg Config, opts ...Option) *Migrator {
	m := &Migrator{
		dest:        dest,
		transformer: transformer,
		cfg:         cfg,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ImportAll processes records in order and returns one outcome per record.
// No record error stops the run. When ctx is cancelled, the records not yet
// processed are reported as FAILED with the context error.
func (m *Migrator) ImportAll(ctx context.Context, records []domain.AccountRecord) []domain.MigrationOutcome {
	outcomes := make([]domain.MigrationOutcome, 0, len(records))
	seen := make(map[string]seenAccount, len(records))

	var limiter *rate.Limiter
	if m.cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(m.cfg.RequestsPerSecond), 1)
	}

	log := m.logger.With("total", len(records))
	log.Info("Starting import")

	for i, rec := range records {
		var outcome domain.MigrationOutcome
		start := time.Now()

		// The first Wait returns at once; later ones space the records.
		err := ctx.Err()
		if err == nil && limiter != nil {
			err = limiter.Wait(ctx)
		}
		if err != nil {
			outcome = failed(rec, err)
		} else {
			outcome = m.importOne(ctx, i, rec, seen)
		}
		outcomes = append(outcomes, outcome)

		m.metrics.ObserveRecord(string(outcome.Status), time.Since(start))
		m.logOutcome(log, i, rec, outcome)
		if m.observer != nil {
			m.observer(i, len(records), outcome)
		}
	}

	log.Info("Import complete", "processed", len(outcomes))
	return outcomes
}

type seenAccount struct {
	index         int
	destinationID string
}

func (m *Migrator) importOne(ctx context.Context, index int, rec domain.AccountRecord, seen map[string]seenAccount) domain.MigrationOutcome {
	ctx, span := telemetry.StartSpan(ctx, "migrate.record",
		attribute.Int("record.index", index),
		attribute.String("record.source_id", rec.ExternalID),
	)
	defer span.End()

	outcome := m.resolve(ctx, index, rec, seen)
	span.SetAttributes(attribute.String("record.status", string(outcome.Status)))
	if outcome.Status == domain.StatusFailed {
		telemetry.RecordError(ctx, errors.New(outcome.Detail))
	}
	if outcome.Status != domain.StatusFailed {
		seen[domain.NormalizeEmail(rec.Email)] = seenAccount{index: index, destinationID: outcome.DestinationID}
	}
	return outcome
}

func (m *Migrator) resolve(ctx context.Context, index int, rec domain.AccountRecord, seen map[string]seenAccount) domain.MigrationOutcome {
	req, err := m.transformer.ToCreateRequest(rec)
	if err != nil {
		return failed(rec, err)
	}

	if prev, ok := seen[domain.NormalizeEmail(req.Email)]; ok {
		return existing(rec, prev.destinationID, fmt.Sprintf("duplicate of record %d in this run", prev.index+1))
	}

	acct, err := m.dest.GetAccountByEmail(ctx, req.Email)
	switch {
	case err == nil:
		return existing(rec, acct.ExternalID, "")
	case !errors.Is(err, directory.ErrNotFound):
		return failed(rec, fmt.Errorf("lookup: %w", err))
	}

	id, err := m.dest.CreateAccount(ctx, req)
	if err != nil {
		if !errors.Is(err, directory.ErrAlreadyExists) {
			return failed(rec, fmt.Errorf("create: %w", err))
		}
		// Created by someone else between lookup and create.
		var destID string
		if acct, lookupErr := m.dest.GetAccountByEmail(ctx, req.Email); lookupErr == nil {
			destID = acct.ExternalID
		}
		return existing(rec, destID, "account created concurrently")
	}

	outcome := domain.MigrationOutcome{
		Status:        domain.StatusCreated,
		Email:         rec.Email,
		SourceID:      rec.ExternalID,
		DestinationID: id,
	}
	if !m.cfg.SendResetLinks {
		return outcome
	}

	link, err := m.dest.GeneratePasswordResetLink(ctx, req.Email)
	m.metrics.ObserveResetLink(err == nil)
	if err != nil {
		outcome.Detail = fmt.Sprintf("reset link: %v", err)
		return outcome
	}
	outcome.ResetLinkIssued = true
	outcome.ResetLink = link
	return outcome
}

func existing(rec domain.AccountRecord, destID, reason string) domain.MigrationOutcome {
	return domain.MigrationOutcome{
		Status:        domain.StatusAlreadyExists,
		Email:         rec.Email,
		SourceID:      rec.ExternalID,
		DestinationID: destID,
		Detail:        reason,
	}
}

func failed(rec domain.AccountRecord, err error) domain.MigrationOutcome {
	return domain.MigrationOutcome{
		Status:   domain.StatusFailed,
		Email:    rec.Email,
		SourceID: rec.ExternalID,
		Detail:   err.Error(),
	}
}

func (m *Migrator) logOutcome(log *slog.Logger, index int, rec domain.AccountRecord, o domain.MigrationOutcome) {
	attrs := []any{"index", index + 1, "email", rec.Email, "source_id", rec.ExternalID, "status", o.Status}
	switch {
	case o.Status == domain.StatusFailed:
		log.Error("Record failed", append(attrs, "err", o.Detail)...)
	case o.Status == domain.StatusCreated && !o.ResetLinkIssued && m.cfg.SendResetLinks:
		log.Warn("Account created without reset link", append(attrs, "destination_id", o.DestinationID, "err", o.Detail)...)
	default:
		log.Info("Record processed", append(attrs, "destination_id", o.DestinationID)...)
	}
}
