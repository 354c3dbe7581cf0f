package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neudinger/acctmigrate/internal/directory/sqldir"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestGetDefaultConfig_IsValid(t *testing.T) {
	cfg := GetDefaultConfig()
	require.NoError(t, Validate(cfg))

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.True(t, cfg.Migration.Policy.ForceEnabled)
	assert.False(t, cfg.Migration.Policy.PreserveEmailVerified)
	assert.True(t, cfg.Migration.SendResetLinks)
	assert.Equal(t, 10.0, cfg.Migration.RequestsPerSecond)
	assert.Equal(t, 1000, cfg.Migration.PageSize)
	assert.Equal(t, "allowedEmails", cfg.Seed.AllowlistCollection)
	assert.Equal(t, "users", cfg.DocStore.ProfilesCollection)
	assert.Equal(t, "users-export.json", cfg.Paths.Checkpoint)
	assert.Equal(t, "user-profiles.json", cfg.Paths.Profiles)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
  format: json
source:
  type: sql
  sql:
    type: sqlite
    sqlite:
      path: legacy.db
destination:
  type: identitytoolkit
  identitytoolkit:
    project_id: new-project
    endpoint: http://localhost:9099
    timeout: 5s
migration:
  requests_per_second: 0
  policy:
    force_enabled: false
docstore:
  type: badger
  badger:
    path: /tmp/seed
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, DirectorySQL, cfg.Source.Type)
	assert.Equal(t, sqldir.DatabaseTypeSQLite, cfg.Source.SQL.Type)
	assert.Equal(t, "legacy.db", cfg.Source.SQL.SQLite.Path)
	assert.Equal(t, "new-project", cfg.Destination.IdentityToolkit.ProjectID)
	assert.Equal(t, 5*time.Second, cfg.Destination.IdentityToolkit.Timeout)
	assert.Equal(t, 0.0, cfg.Migration.RequestsPerSecond)
	assert.False(t, cfg.Migration.Policy.ForceEnabled)
	// Unset keys keep their defaults.
	assert.True(t, cfg.Migration.SendResetLinks)
	assert.Equal(t, DocStoreBadger, cfg.DocStore.Type)
	assert.Equal(t, "/tmp/seed", cfg.DocStore.Badger.Path)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: info\n")
	t.Setenv("ACCTMIGRATE_LOGGING_LEVEL", "warn")
	t.Setenv("ACCTMIGRATE_DESTINATION_IDENTITYTOOLKIT_PROJECT_ID", "env-project")
	t.Setenv("ACCTMIGRATE_MIGRATION_SEND_RESET_LINKS", "false")
	t.Setenv("ACCTMIGRATE_PATHS_CHECKPOINT", "s3://bucket/users.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "WARN", cfg.Logging.Level)
	assert.Equal(t, "env-project", cfg.Destination.IdentityToolkit.ProjectID)
	assert.False(t, cfg.Migration.SendResetLinks)
	assert.Equal(t, "s3://bucket/users.yaml", cfg.Paths.Checkpoint)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_DefaultLocationMissingIsFine(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DirectoryIdentityToolkit, cfg.Destination.Type)
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := map[string]string{
		"bad directory type":    "destination:\n  type: ldap\n",
		"bad log format":        "logging:\n  format: xml\n",
		"negative rate":         "migration:\n  requests_per_second: -1\n",
		"short password":        "migration:\n  password_length: 6\n",
		"metrics without url":   "metrics:\n  enabled: true\n",
		"postgres without host": "source:\n  type: sql\n  sql:\n    type: postgres\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := GetDefaultConfig()
	cfg.Destination.IdentityToolkit.ProjectID = "saved-project"
	cfg.Migration.RequestsPerSecond = 2.5
	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "saved-project", loaded.Destination.IdentityToolkit.ProjectID)
	assert.Equal(t, 2.5, loaded.Migration.RequestsPerSecond)
	assert.Equal(t, cfg.Destination.IdentityToolkit.Timeout, loaded.Destination.IdentityToolkit.Timeout)
}

func TestGetDefaultConfigPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	assert.Equal(t, filepath.Join(dir, "acctmigrate", "config.yaml"), GetDefaultConfigPath())
}

func TestInitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "acctmigrate", "config.yaml")
	require.NoError(t, InitConfig(path, false))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# acctmigrate configuration")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, GetDefaultConfig().Paths, cfg.Paths)

	assert.Error(t, InitConfig(path, false))
	assert.NoError(t, InitConfig(path, true))
}
