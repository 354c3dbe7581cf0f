// Package config loads acctmigrate configuration from a YAML file and
// ACCTMIGRATE_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/neudinger/acctmigrate/internal/artifact"
	"github.com/neudinger/acctmigrate/internal/directory/identitytoolkit"
	"github.com/neudinger/acctmigrate/internal/directory/sqldir"
	"github.com/neudinger/acctmigrate/internal/docstore/badgerstore"
	"github.com/neudinger/acctmigrate/internal/docstore/firestore"
	"github.com/neudinger/acctmigrate/internal/metrics"
	"github.com/neudinger/acctmigrate/internal/seed"
	"github.com/neudinger/acctmigrate/internal/telemetry"
	"github.com/neudinger/acctmigrate/internal/transform"
)

const envPrefix = "ACCTMIGRATE"

// Directory backends.
const (
	DirectoryIdentityToolkit = "identitytoolkit"
	DirectorySQL             = "sql"
	DirectoryMemory          = "memory"
)

// Document store backends.
const (
	DocStoreFirestore = "firestore"
	DocStoreBadger    = "badger"
)

// Config is the complete acctmigrate configuration.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	Telemetry telemetry.Config `mapstructure:"telemetry" yaml:"telemetry"`

	Metrics metrics.Config `mapstructure:"metrics" yaml:"metrics"`

	// Source is the directory accounts are exported from.
	Source DirectoryConfig `mapstructure:"source" yaml:"source"`

	// Destination is the directory accounts are imported into.
	Destination DirectoryConfig `mapstructure:"destination" yaml:"destination"`

	DocStore DocStoreConfig `mapstructure:"docstore" yaml:"docstore"`

	Migration MigrationConfig `mapstructure:"migration" yaml:"migration"`

	Seed seed.Config `mapstructure:"seed" yaml:"seed"`

	Artifacts artifact.Config `mapstructure:"artifacts" yaml:"artifacts"`

	Paths PathsConfig `mapstructure:"paths" yaml:"paths"`

	History HistoryConfig `mapstructure:"history" yaml:"history"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// DirectoryConfig selects and configures an account directory backend.
type DirectoryConfig struct {
	Type            string                 `mapstructure:"type" validate:"required,oneof=identitytoolkit sql memory" yaml:"type"`
	IdentityToolkit identitytoolkit.Config `mapstructure:"identitytoolkit" yaml:"identitytoolkit"`
	SQL             sqldir.Config          `mapstructure:"sql" yaml:"sql"`
}

// DocStoreConfig selects and configures the document store used for seeding.
type DocStoreConfig struct {
	Type      string             `mapstructure:"type" validate:"required,oneof=firestore badger" yaml:"type"`
	Firestore firestore.Config   `mapstructure:"firestore" yaml:"firestore"`
	Badger    badgerstore.Config `mapstructure:"badger" yaml:"badger"`

	// ProfilesCollection holds the per-account profile documents read by
	// "profiles export".
	ProfilesCollection string `mapstructure:"profiles_collection" validate:"required" yaml:"profiles_collection"`
}

type MigrationConfig struct {
	Policy transform.Policy `mapstructure:"policy" yaml:"policy"`

	// RequestsPerSecond paces the import. Zero disables pacing.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"gte=0" yaml:"requests_per_second"`

	SendResetLinks bool `mapstructure:"send_reset_links" yaml:"send_reset_links"`

	PageSize int `mapstructure:"page_size" validate:"gte=1,lte=1000" yaml:"page_size"`

	PasswordLength int `mapstructure:"password_length" validate:"gte=12,lte=128" yaml:"password_length"`
}

// PathsConfig holds default artifact locations. Each may be a local path or
// an s3://bucket/key URI.
type PathsConfig struct {
	Checkpoint   string `mapstructure:"checkpoint" validate:"required" yaml:"checkpoint"`
	ReferenceCSV string `mapstructure:"reference_csv" yaml:"reference_csv"`
	Report       string `mapstructure:"report" validate:"required" yaml:"report"`
	Profiles     string `mapstructure:"profiles" validate:"required" yaml:"profiles"`
}

// HistoryConfig configures the local run history database.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" validate:"required_if=Enabled true" yaml:"path"`
}

// Load reads configuration from configPath (or the default location),
// applies environment overrides and defaults, and validates the result. A
// missing config file is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)
	if err := registerDefaults(v, GetDefaultConfig()); err != nil {
		return nil, err
	}

	if _, err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// SaveConfig writes cfg as YAML.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

const configHeader = `# acctmigrate configuration
#
# Every key can be overridden with an ACCTMIGRATE_ environment variable, for
# example ACCTMIGRATE_DESTINATION_IDENTITYTOOLKIT_PROJECT_ID=my-project.
#
# Directory types: identitytoolkit, sql, memory.
# Document store types: firestore, badger.
# Artifact paths may be local paths or s3://bucket/key URIs.

`

// InitConfig writes the default configuration, with a comment header, to
// path. An existing file is only replaced when force is set.
func InitConfig(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(GetDefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, append([]byte(configHeader), data...), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GetDefaultConfigPath returns $XDG_CONFIG_HOME/acctmigrate/config.yaml.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

func getConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "acctmigrate")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "acctmigrate")
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile tolerates a missing default config but not a missing
// explicit one.
func readConfigFile(v *viper.Viper, configPath string) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) && configPath == "" {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// registerDefaults declares every key so that environment variables are
// seen by Unmarshal even when the file does not mention the key.
func registerDefaults(v *viper.Viper, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode defaults: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("failed to decode defaults: %w", err)
	}
	setDefaults(v, "", tree)
	return nil
}

func setDefaults(v *viper.Viper, prefix string, tree map[string]any) {
	for k, val := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := val.(map[string]any); ok {
			setDefaults(v, key, sub)
			continue
		}
		v.SetDefault(key, val)
	}
}

func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}
