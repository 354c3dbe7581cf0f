package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/neudinger/acctmigrate/internal/directory"
	"github.com/neudinger/acctmigrate/internal/export"
	"github.com/neudinger/acctmigrate/internal/migrate"
	"github.com/neudinger/acctmigrate/internal/seed"
	"github.com/neudinger/acctmigrate/internal/transform"
)

// GetDefaultConfig returns a configuration that exports from and imports
// into Identity Toolkit projects and seeds Firestore.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Source:      DirectoryConfig{Type: DirectoryIdentityToolkit},
		Destination: DirectoryConfig{Type: DirectoryIdentityToolkit},
		DocStore:    DocStoreConfig{Type: DocStoreFirestore},
		Migration: MigrationConfig{
			Policy:            transform.DefaultPolicy(),
			RequestsPerSecond: migrate.DefaultRequestsPerSecond,
			SendResetLinks:    true,
		},
		Seed: seed.DefaultConfig(),
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero values with defaults. Booleans are left alone:
// their defaults come from GetDefaultConfig via the registered viper keys.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)

	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1.0
	}
	if cfg.Metrics.Job == "" {
		cfg.Metrics.Job = "acctmigrate"
	}

	applyDirectoryDefaults(&cfg.Source)
	applyDirectoryDefaults(&cfg.Destination)

	if cfg.DocStore.Type == "" {
		cfg.DocStore.Type = DocStoreFirestore
	}
	if cfg.DocStore.Firestore.Database == "" {
		cfg.DocStore.Firestore.Database = "(default)"
	}
	if cfg.DocStore.Firestore.Timeout == 0 {
		cfg.DocStore.Firestore.Timeout = 30 * time.Second
	}

	if cfg.DocStore.ProfilesCollection == "" {
		cfg.DocStore.ProfilesCollection = export.DefaultProfilesCollection
	}

	if cfg.Migration.PageSize == 0 {
		cfg.Migration.PageSize = directory.DefaultPageSize
	}
	if cfg.Migration.PasswordLength == 0 {
		cfg.Migration.PasswordLength = transform.DefaultPasswordLength
	}

	if cfg.Seed.AllowlistCollection == "" {
		cfg.Seed.AllowlistCollection = seed.DefaultAllowlistCollection
	}
	if cfg.Seed.ScheduleCollection == "" {
		cfg.Seed.ScheduleCollection = seed.DefaultScheduleCollection
	}
	if cfg.Seed.SourceLabel == "" {
		cfg.Seed.SourceLabel = seed.DefaultSourceLabel
	}

	if cfg.Artifacts.Region == "" {
		cfg.Artifacts.Region = "us-east-1"
	}

	if cfg.Paths.Checkpoint == "" {
		cfg.Paths.Checkpoint = "users-export.json"
	}
	if cfg.Paths.ReferenceCSV == "" {
		cfg.Paths.ReferenceCSV = "users-export.csv"
	}
	if cfg.Paths.Report == "" {
		cfg.Paths.Report = "import-results.json"
	}
	if cfg.Paths.Profiles == "" {
		cfg.Paths.Profiles = "user-profiles.json"
	}

	if cfg.History.Path == "" {
		cfg.History.Path = "acctmigrate-history.duckdb"
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

func applyDirectoryDefaults(cfg *DirectoryConfig) {
	if cfg.Type == "" {
		cfg.Type = DirectoryIdentityToolkit
	}
	if cfg.IdentityToolkit.Timeout == 0 {
		cfg.IdentityToolkit.Timeout = 30 * time.Second
	}
	cfg.SQL.ApplyDefaults()
}

// Validate checks struct constraints and backend-specific requirements.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return err
	}

	for name, d := range map[string]DirectoryConfig{"source": cfg.Source, "destination": cfg.Destination} {
		if d.Type != DirectorySQL {
			continue
		}
		if err := d.SQL.Validate(); err != nil {
			return fmt.Errorf("%s.sql: %w", name, err)
		}
	}

	if cfg.Metrics.Enabled && cfg.Metrics.PushgatewayURL == "" {
		return fmt.Errorf("metrics.pushgateway_url is required when metrics are enabled")
	}
	return nil
}
