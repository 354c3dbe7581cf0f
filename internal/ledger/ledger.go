// Package ledger accumulates migration outcomes, summarizes them and persists
// the run report.
package ledger

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"

	"github.com/neudinger/acctmigrate/internal/artifact"
	"github.com/neudinger/acctmigrate/internal/domain"
)

// ExitStatus is the process status implied by a run.
type ExitStatus int

const (
	ExitOK      ExitStatus = 0
	ExitPartial ExitStatus = 1
)

// Artifacts stores report bytes. *artifact.Store satisfies it.
type Artifacts interface {
	Write(ctx context.Context, uri string, data []byte) error
}

// Ledger holds the outcomes of one run, in record order.
type Ledger struct {
	runID     uuid.UUID
	startedAt time.Time
	outcomes  []domain.MigrationOutcome
}

// New creates an empty ledger for a new run.
func New() *Ledger {
	return &Ledger{runID: uuid.New(), startedAt: time.Now().UTC()}
}

// FromOutcomes creates a ledger holding outcomes.
func FromOutcomes(outcomes []domain.MigrationOutcome) *Ledger {
	l := New()
	for _, o := range outcomes {
		l.Append(o)
	}
	return l
}

func (l *Ledger) RunID() uuid.UUID     { return l.runID }
func (l *Ledger) StartedAt() time.Time { return l.startedAt }

func (l *Ledger) Append(o domain.MigrationOutcome) {
	l.outcomes = append(l.outcomes, o)
}

// Outcomes returns a copy of the recorded outcomes.
func (l *Ledger) Outcomes() []domain.MigrationOutcome {
	return append([]domain.MigrationOutcome(nil), l.outcomes...)
}

func (l *Ledger) Len() int { return len(l.outcomes) }

func (l *Ledger) Summarize() domain.Summary {
	var s domain.Summary
	for _, o := range l.outcomes {
		switch o.Status {
		case domain.StatusCreated:
			s.Created++
		case domain.StatusAlreadyExists:
			s.AlreadyExists++
		case domain.StatusFailed:
			s.Failed++
		}
	}
	s.Total = len(l.outcomes)
	return s
}

func (l *Ledger) ExitStatus() ExitStatus {
	if l.Summarize().Failed > 0 {
		return ExitPartial
	}
	return ExitOK
}

// PendingResets lists created accounts that did not get a reset link.
func (l *Ledger) PendingResets() []string {
	var emails []string
	for _, o := range l.outcomes {
		if o.Status == domain.StatusCreated && !o.ResetLinkIssued {
			emails = append(emails, o.Email)
		}
	}
	return emails
}

// Render prints the summary table.
func (l *Ledger) Render(w io.Writer) {
	s := l.Summarize()
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Created", "Existing", "Failed", "Total"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	table.SetBorder(true)
	table.Append([]string{
		strconv.Itoa(s.Created),
		strconv.Itoa(s.AlreadyExists),
		strconv.Itoa(s.Failed),
		strconv.Itoa(s.Total),
	})
	table.Render()
}

// Report is the JSON form of a run.
type Report struct {
	RunID     string                    `json:"runId"`
	Timestamp time.Time                 `json:"timestamp"`
	Summary   domain.Summary            `json:"summary"`
	Results   []domain.MigrationOutcome `json:"results"`
}

func (l *Ledger) report() Report {
	results := l.outcomes
	if results == nil {
		results = []domain.MigrationOutcome{}
	}
	return Report{
		RunID:     l.runID.String(),
		Timestamp: l.startedAt,
		Summary:   l.Summarize(),
		Results:   results,
	}
}

var csvHeader = []string{"status", "email", "sourceId", "destinationId", "error"}

// WriteCSV writes one row per outcome.
func (l *Ledger) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, o := range l.outcomes {
		if err := cw.Write([]string{string(o.Status), o.Email, o.SourceID, o.DestinationID, o.Detail}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Persist writes the report to uri. A .json URI gets the full JSON report;
// anything else gets a CSV plus a <uri>.summary.json sidecar.
func (l *Ledger) Persist(ctx context.Context, store Artifacts, uri string) error {
	if artifact.Ext(uri) == ".json" {
		data, err := json.MarshalIndent(l.report(), "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		if err := store.Write(ctx, uri, data); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		return nil
	}

	var buf bytes.Buffer
	if err := l.WriteCSV(&buf); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if err := store.Write(ctx, uri, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	summary := struct {
		RunID     string    `json:"runId"`
		Timestamp time.Time `json:"timestamp"`
		domain.Summary
	}{l.runID.String(), l.startedAt, l.Summarize()}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	if err := store.Write(ctx, uri+".summary.json", data); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}
