package sqldir

import (
	"context"
	"fmt"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/neudinger/acctmigrate/internal/directory"
	"github.com/neudinger/acctmigrate/internal/domain"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func setupTestDirectory(t *testing.T, links ResetLinkConfig) *Directory {
	t.Helper()
	d, err := New(&Config{
		Type:       DatabaseTypeSQLite,
		SQLite:     SQLiteConfig{Path: ":memory:"},
		ResetLink:  links,
		BcryptCost: bcrypt.MinCost,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestConfig_Validate(t *testing.T) {
	t.Run("defaults to sqlite", func(t *testing.T) {
		c := &Config{}
		c.ApplyDefaults()
		assert.Equal(t, DatabaseTypeSQLite, c.Type)
		assert.NoError(t, c.Validate())
	})

	t.Run("postgres requires host", func(t *testing.T) {
		c := &Config{Type: DatabaseTypePostgres}
		c.ApplyDefaults()
		assert.Error(t, c.Validate())
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := New(&Config{Type: "oracle"})
		assert.Error(t, err)
	})
}

func TestDirectory_CreateAndLookup(t *testing.T) {
	d := setupTestDirectory(t, ResetLinkConfig{})
	ctx := context.Background()

	_, err := d.GetAccountByEmail(ctx, "a@x.com")
	assert.ErrorIs(t, err, directory.ErrNotFound)

	id, err := d.CreateAccount(ctx, domain.CreateRequest{
		Email:       "A@x.com",
		Password:    "Temp-password-1",
		DisplayName: "Alice",
		PhotoURL:    "https://example.com/a.png",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	got, err := d.GetAccountByEmail(ctx, "a@X.com")
	require.NoError(t, err)
	assert.Equal(t, id, got.ExternalID)
	assert.Equal(t, "A@x.com", got.Email)
	assert.Equal(t, "Alice", got.DisplayName)
	assert.False(t, got.Disabled)

	ok, err := d.VerifyPassword(ctx, "a@x.com", "Temp-password-1")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = d.CreateAccount(ctx, domain.CreateRequest{Email: "a@x.com", Password: "Other-password-2"})
	assert.ErrorIs(t, err, directory.ErrAlreadyExists)
}

func TestDirectory_ListAccountsPage(t *testing.T) {
	d := setupTestDirectory(t, ResetLinkConfig{})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := d.CreateAccount(ctx, domain.CreateRequest{
			Email:    fmt.Sprintf("user%d@x.com", i),
			Password: "Temp-password-1",
		})
		require.NoError(t, err)
	}

	var all []domain.AccountRecord
	cursor := ""
	pages := 0
	for {
		page, err := d.ListAccountsPage(ctx, 2, cursor)
		require.NoError(t, err)
		all = append(all, page.Accounts...)
		pages++
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	assert.Len(t, all, 5)
	assert.Equal(t, 3, pages)
}

func TestDirectory_GeneratePasswordResetLink(t *testing.T) {
	t.Run("disabled without secret", func(t *testing.T) {
		d := setupTestDirectory(t, ResetLinkConfig{})
		ctx := context.Background()
		_, err := d.CreateAccount(ctx, domain.CreateRequest{Email: "a@x.com", Password: "Temp-password-1"})
		require.NoError(t, err)

		_, err = d.GeneratePasswordResetLink(ctx, "a@x.com")
		assert.ErrorIs(t, err, ErrResetLinksDisabled)
	})

	t.Run("signed token round trip", func(t *testing.T) {
		cfg := ResetLinkConfig{BaseURL: "https://app.example.com/reset", Secret: testSecret}
		d := setupTestDirectory(t, cfg)
		ctx := context.Background()
		id, err := d.CreateAccount(ctx, domain.CreateRequest{Email: "a@x.com", Password: "Temp-password-1"})
		require.NoError(t, err)

		link, err := d.GeneratePasswordResetLink(ctx, "a@x.com")
		require.NoError(t, err)

		u, err := url.Parse(link)
		require.NoError(t, err)
		assert.Equal(t, "app.example.com", u.Host)

		claims, err := ParseResetToken(cfg, u.Query().Get("token"))
		require.NoError(t, err)
		assert.Equal(t, id, claims.Subject)
		assert.Equal(t, "a@x.com", claims.Email)

		_, err = ParseResetToken(ResetLinkConfig{Secret: "ffffffffffffffffffffffffffffffff"}, u.Query().Get("token"))
		assert.ErrorIs(t, err, ErrInvalidResetToken)
	})

	t.Run("unknown account", func(t *testing.T) {
		d := setupTestDirectory(t, ResetLinkConfig{BaseURL: "https://app/reset", Secret: testSecret})
		_, err := d.GeneratePasswordResetLink(context.Background(), "ghost@x.com")
		assert.ErrorIs(t, err, directory.ErrNotFound)
	})
}
