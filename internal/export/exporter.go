// Package export pages accounts out of a source directory and persists them
// as a checkpoint for later import and seeding runs.
package export

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"github.com/neudinger/acctmigrate/internal/directory"
	"github.com/neudinger/acctmigrate/internal/domain"
)

// Exporter reads every account from a source directory.
type Exporter struct {
	source   directory.Directory
	pageSize int
	logger   *slog.Logger
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithPageSize overrides directory.DefaultPageSize.
func WithPageSize(n int) Option {
	return func(e *Exporter) {
		if n > 0 {
			e.pageSize = n
		}
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Exporter) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an Exporter over source.
func New(source directory.Directory, opts ...Option) *Exporter {
	e := &Exporter{
		source:   source,
		pageSize: directory.DefaultPageSize,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Records yields every account in directory order, one page at a time. A page
// error is yielded once and ends the sequence. Each call starts a fresh scan.
func (e *Exporter) Records(ctx context.Context) iter.Seq2[domain.AccountRecord, error] {
	return func(yield func(domain.AccountRecord, error) bool) {
		cursor := ""
		for pageNum := 1; ; pageNum++ {
			if err := ctx.Err(); err != nil {
				yield(domain.AccountRecord{}, err)
				return
			}

			page, err := e.source.ListAccountsPage(ctx, e.pageSize, cursor)
			if err != nil {
				yield(domain.AccountRecord{}, fmt.Errorf("list accounts page %d: %w", pageNum, err))
				return
			}
			e.logger.Debug("Fetched account page", "page", pageNum, "accounts", len(page.Accounts))

			for _, acct := range page.Accounts {
				if !yield(domain.NormalizeRecord(acct), nil) {
					return
				}
			}

			if page.NextCursor == "" {
				return
			}
			if page.NextCursor == cursor {
				yield(domain.AccountRecord{}, fmt.Errorf("list accounts page %d: directory repeated cursor %q", pageNum, cursor))
				return
			}
			cursor = page.NextCursor
		}
	}
}

// Export materializes Records. Any page failure aborts the whole export.
func (e *Exporter) Export(ctx context.Context) ([]domain.AccountRecord, error) {
	var records []domain.AccountRecord
	for rec, err := range e.Records(ctx) {
		if err != nil {
			return nil, fmt.Errorf("export aborted after %d accounts: %w", len(records), err)
		}
		records = append(records, rec)
	}
	e.logger.Info("Export complete", "accounts", len(records))
	return records, nil
}
