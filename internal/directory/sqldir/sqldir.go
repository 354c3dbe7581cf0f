// Package sqldir implements directory.Directory on a self-hosted account table
// stored in SQLite or PostgreSQL through GORM.
package sqldir

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/neudinger/acctmigrate/internal/directory"
	"github.com/neudinger/acctmigrate/internal/domain"
)

// DatabaseType defines the supported database backends.
type DatabaseType string

const (
	DatabaseTypeSQLite   DatabaseType = "sqlite"
	DatabaseTypePostgres DatabaseType = "postgres"
)

// SQLiteConfig contains SQLite-specific configuration.
type SQLiteConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// PostgresConfig contains PostgreSQL-specific configuration.
type PostgresConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Database string `mapstructure:"database" yaml:"database"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	SSLMode  string `mapstructure:"sslmode" yaml:"sslmode"`
}

// DSN returns the PostgreSQL connection string.
func (c *PostgresConfig) DSN() string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s",
		c.Host, c.Port, c.User, c.Password, c.Database)
	if c.SSLMode != "" {
		dsn += fmt.Sprintf(" sslmode=%s", c.SSLMode)
	}
	return dsn
}

// Config contains database and reset link configuration.
type Config struct {
	Type      DatabaseType    `mapstructure:"type" yaml:"type"`
	SQLite    SQLiteConfig    `mapstructure:"sqlite" yaml:"sqlite"`
	Postgres  PostgresConfig  `mapstructure:"postgres" yaml:"postgres"`
	ResetLink ResetLinkConfig `mapstructure:"reset_link" yaml:"reset_link"`

	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int `mapstructure:"bcrypt_cost" yaml:"bcrypt_cost"`
}

// ApplyDefaults fills in missing configuration with default values.
func (c *Config) ApplyDefaults() {
	if c.Type == "" {
		c.Type = DatabaseTypeSQLite
	}
	if c.Type == DatabaseTypeSQLite && c.SQLite.Path == "" {
		c.SQLite.Path = "accounts.db"
	}
	if c.Type == DatabaseTypePostgres {
		if c.Postgres.Port == 0 {
			c.Postgres.Port = 5432
		}
		if c.Postgres.SSLMode == "" {
			c.Postgres.SSLMode = "disable"
		}
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = bcrypt.DefaultCost
	}
	c.ResetLink.applyDefaults()
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Type {
	case DatabaseTypeSQLite:
		if c.SQLite.Path == "" {
			return fmt.Errorf("sqlite path is required")
		}
	case DatabaseTypePostgres:
		if c.Postgres.Host == "" {
			return fmt.Errorf("postgres host is required")
		}
		if c.Postgres.Database == "" {
			return fmt.Errorf("postgres database is required")
		}
		if c.Postgres.User == "" {
			return fmt.Errorf("postgres user is required")
		}
	default:
		return fmt.Errorf("unsupported database type: %s", c.Type)
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("bcrypt cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	return nil
}

// Account is the persisted account row. EmailKey holds the normalized email
// and carries the uniqueness constraint.
type Account struct {
	ID            string `gorm:"primaryKey;size:36"`
	Email         string `gorm:"size:320;not null"`
	EmailKey      string `gorm:"uniqueIndex;size:320;not null"`
	DisplayName   string `gorm:"size:255"`
	PhotoURL      string `gorm:"size:2048"`
	PasswordHash  string `gorm:"size:255"`
	Disabled      bool
	EmailVerified bool
	CreatedAt     time.Time
	LastSignInAt  *time.Time
}

// TableName returns the table name for GORM.
func (Account) TableName() string {
	return "accounts"
}

func (a Account) record() domain.AccountRecord {
	created := a.CreatedAt
	return domain.NormalizeRecord(domain.AccountRecord{
		ExternalID:    a.ID,
		Email:         a.Email,
		DisplayName:   a.DisplayName,
		PhotoURL:      a.PhotoURL,
		Disabled:      a.Disabled,
		EmailVerified: a.EmailVerified,
		CreatedAt:     &created,
		LastSignInAt:  a.LastSignInAt,
	})
}

// Directory is a GORM-backed account directory.
type Directory struct {
	db     *gorm.DB
	config *Config
	links  *resetLinks
}

// New opens the database and migrates the schema.
func New(config *Config) (*Directory, error) {
	if config == nil {
		config = &Config{}
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}

	var dialector gorm.Dialector
	switch config.Type {
	case DatabaseTypeSQLite:
		if config.SQLite.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(config.SQLite.Path), 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		dsn := config.SQLite.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		dialector = sqlite.Open(dsn)
	case DatabaseTypePostgres:
		dialector = postgres.Open(config.Postgres.DSN())
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if config.Type == DatabaseTypeSQLite {
		// One connection: SQLite has a single writer, and each connection to
		// ":memory:" would otherwise see its own empty database.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get underlying database: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&Account{}); err != nil {
		return nil, fmt.Errorf("failed to run database migration: %w", err)
	}

	return &Directory{
		db:     db,
		config: config,
		links:  newResetLinks(config.ResetLink),
	}, nil
}

// Close closes the underlying database connection.
func (d *Directory) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ListAccountsPage implements directory.Directory. The cursor is the last
// account ID of the previous page (keyset pagination on the primary key).
func (d *Directory) ListAccountsPage(ctx context.Context, pageSize int, cursor string) (directory.Page, error) {
	if pageSize <= 0 {
		pageSize = directory.DefaultPageSize
	}

	q := d.db.WithContext(ctx).Order("id").Limit(pageSize + 1)
	if cursor != "" {
		q = q.Where("id > ?", cursor)
	}
	var rows []Account
	if err := q.Find(&rows).Error; err != nil {
		return directory.Page{}, fmt.Errorf("list accounts: %w", err)
	}

	page := directory.Page{}
	if len(rows) > pageSize {
		rows = rows[:pageSize]
		page.NextCursor = rows[len(rows)-1].ID
	}
	page.Accounts = make([]domain.AccountRecord, 0, len(rows))
	for _, row := range rows {
		page.Accounts = append(page.Accounts, row.record())
	}
	return page, nil
}

func (d *Directory) findByEmail(ctx context.Context, email string) (*Account, error) {
	var row Account
	err := d.db.WithContext(ctx).Where("email_key = ?", domain.NormalizeEmail(email)).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, directory.ErrNotFound
		}
		return nil, err
	}
	return &row, nil
}

// GetAccountByEmail implements directory.Directory.
func (d *Directory) GetAccountByEmail(ctx context.Context, email string) (domain.AccountRecord, error) {
	row, err := d.findByEmail(ctx, email)
	if err != nil {
		return domain.AccountRecord{}, err
	}
	return row.record(), nil
}

// CreateAccount implements directory.Directory.
func (d *Directory) CreateAccount(ctx context.Context, req domain.CreateRequest) (string, error) {
	if req.Password == "" {
		return "", fmt.Errorf("create %s: password is required", req.Email)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), d.config.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("create %s: hash password: %w", req.Email, err)
	}

	row := Account{
		ID:            uuid.New().String(),
		Email:         req.Email,
		EmailKey:      domain.NormalizeEmail(req.Email),
		DisplayName:   req.DisplayName,
		PhotoURL:      req.PhotoURL,
		PasswordHash:  string(hash),
		Disabled:      req.Disabled,
		EmailVerified: req.EmailVerified,
		CreatedAt:     time.Now().UTC(),
	}
	if err := d.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueConstraintError(err) {
			return "", directory.ErrAlreadyExists
		}
		return "", fmt.Errorf("create %s: %w", req.Email, err)
	}
	return row.ID, nil
}

// GeneratePasswordResetLink implements directory.Directory.
func (d *Directory) GeneratePasswordResetLink(ctx context.Context, email string) (string, error) {
	row, err := d.findByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	return d.links.generate(row, time.Now())
}

// VerifyPassword reports whether password matches the stored hash.
func (d *Directory) VerifyPassword(ctx context.Context, email, password string) (bool, error) {
	row, err := d.findByEmail(ctx, email)
	if err != nil {
		return false, err
	}
	return bcrypt.CompareHashAndPassword([]byte(row.PasswordHash), []byte(password)) == nil, nil
}

// isUniqueConstraintError checks if the error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "duplicate key value violates unique constraint")
}
