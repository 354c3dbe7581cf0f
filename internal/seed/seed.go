// Package seed populates a document store from exported records: the
// sign-up allowlist and the session schedule.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/neudinger/acctmigrate/internal/docstore"
	"github.com/neudinger/acctmigrate/internal/domain"
	"github.com/neudinger/acctmigrate/internal/metrics"
)

const (
	DefaultAllowlistCollection = "allowedEmails"
	DefaultScheduleCollection  = "sessions"
	DefaultSourceLabel         = "legacy"
	DefaultSessionCapacity     = 100
)

// Config names the target collections.
type Config struct {
	AllowlistCollection string `mapstructure:"allowlist_collection" yaml:"allowlist_collection" validate:"required"`
	ScheduleCollection  string `mapstructure:"schedule_collection" yaml:"schedule_collection" validate:"required"`
	SourceLabel         string `mapstructure:"source_label" yaml:"source_label"`
}

func DefaultConfig() Config {
	return Config{
		AllowlistCollection: DefaultAllowlistCollection,
		ScheduleCollection:  DefaultScheduleCollection,
		SourceLabel:         DefaultSourceLabel,
	}
}

// Failure is one document that could not be written.
type Failure struct {
	Key string
	Err error
}

// Result reports a seeding batch.
type Result struct {
	Written    int
	Duplicates int
	Skipped    int
	Failures   []Failure
}

// OK reports whether every attempted write succeeded.
func (r Result) OK() bool { return len(r.Failures) == 0 }

// Seeder writes to a document store.
type Seeder struct {
	store   docstore.Store
	cfg     Config
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
}

type Option func(*Seeder)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Seeder) { s.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Seeder) {
		if l != nil {
			s.logger = l
		}
	}
}

func New(store docstore.Store, cfg Config, opts ...Option) *Seeder {
	s := &Seeder{
		store:  store,
		cfg:    cfg,
		logger: slog.Default(),
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SeedAllowlist marks every record's normalized email as allowed. Each email
// is written at most once and existing document fields are preserved.
func (s *Seeder) SeedAllowlist(ctx context.Context, records []domain.AccountRecord) Result {
	var res Result
	collection := s.cfg.AllowlistCollection
	log := s.logger.With("collection", collection)
	seen := make(map[string]struct{}, len(records))

	for _, rec := range records {
		email := domain.NormalizeEmail(rec.Email)
		if email == "" {
			res.Skipped++
			log.Warn("Record without email, skipping", "source_id", rec.ExternalID)
			continue
		}
		if _, dup := seen[email]; dup {
			res.Duplicates++
			continue
		}
		seen[email] = struct{}{}

		payload := map[string]any{
			"allowed":   true,
			"source":    s.cfg.SourceLabel,
			"createdAt": s.now().UTC(),
		}
		err := s.store.Upsert(ctx, collection, email, payload, docstore.UpsertOptions{Merge: true})
		s.metrics.ObserveSeedWrite(collection, err == nil)
		if err != nil {
			log.Warn("Failed to seed email", "email", email, "err", err)
			res.Failures = append(res.Failures, Failure{Key: email, Err: err})
			continue
		}
		res.Written++
	}

	log.Info("Allowlist seeded", "written", res.Written, "duplicates", res.Duplicates, "failed", len(res.Failures))
	return res
}

// Session is one schedule entry. Fields carries the session attributes
// (title, speaker, startsAt, ...) as document fields.
type Session struct {
	Fields   map[string]any `json:"fields" yaml:"fields"`
	Capacity int            `json:"capacity,omitempty" yaml:"capacity,omitempty"`
}

// SeedSchedule writes each session under a fresh ID with bookkeeping fields.
func (s *Seeder) SeedSchedule(ctx context.Context, sessions []Session) Result {
	var res Result
	collection := s.cfg.ScheduleCollection
	log := s.logger.With("collection", collection)

	for i, session := range sessions {
		id := s.newID()
		now := s.now().UTC()

		payload := make(map[string]any, len(session.Fields)+4)
		for k, v := range session.Fields {
			payload[k] = v
		}
		capacity := session.Capacity
		if capacity <= 0 {
			capacity = DefaultSessionCapacity
		}
		payload["capacity"] = capacity
		payload["registered"] = 0
		payload["createdAt"] = now
		payload["updatedAt"] = now

		err := s.store.Upsert(ctx, collection, id, payload, docstore.UpsertOptions{})
		s.metrics.ObserveSeedWrite(collection, err == nil)
		if err != nil {
			log.Warn("Failed to seed session", "index", i+1, "err", err)
			res.Failures = append(res.Failures, Failure{Key: fmt.Sprintf("#%d", i+1), Err: err})
			continue
		}
		res.Written++
	}

	log.Info("Schedule seeded", "written", res.Written, "failed", len(res.Failures))
	return res
}
