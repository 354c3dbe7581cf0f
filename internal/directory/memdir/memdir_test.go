package memdir

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neudinger/acctmigrate/internal/directory"
	"github.com/neudinger/acctmigrate/internal/domain"
)

func TestDirectory_Paging(t *testing.T) {
	d := New(WithAccounts(
		domain.AccountRecord{ExternalID: "u1", Email: "a@x.com"},
		domain.AccountRecord{ExternalID: "u2", Email: "b@x.com"},
		domain.AccountRecord{Email: "c@x.com"},
	))
	ctx := context.Background()

	page, err := d.ListAccountsPage(ctx, 2, "")
	require.NoError(t, err)
	require.Len(t, page.Accounts, 2)
	assert.Equal(t, "u1", page.Accounts[0].ExternalID)
	assert.Equal(t, "2", page.NextCursor)

	page, err = d.ListAccountsPage(ctx, 2, page.NextCursor)
	require.NoError(t, err)
	require.Len(t, page.Accounts, 1)
	assert.NotEmpty(t, page.Accounts[0].ExternalID, "preloaded accounts get an id")
	assert.Empty(t, page.NextCursor)

	_, err = d.ListAccountsPage(ctx, 2, "bogus")
	assert.Error(t, err)
}

func TestDirectory_CreateAndLookup(t *testing.T) {
	d := New()
	ctx := context.Background()

	_, err := d.GetAccountByEmail(ctx, "a@x.com")
	assert.ErrorIs(t, err, directory.ErrNotFound)

	id, err := d.CreateAccount(ctx, domain.CreateRequest{Email: "A@x.com", DisplayName: "A"})
	require.NoError(t, err)

	got, err := d.GetAccountByEmail(ctx, " a@X.com ")
	require.NoError(t, err)
	assert.Equal(t, id, got.ExternalID)
	assert.Equal(t, "A", got.DisplayName)
	assert.NotNil(t, got.CreatedAt)

	_, err = d.CreateAccount(ctx, domain.CreateRequest{Email: "a@x.com"})
	assert.ErrorIs(t, err, directory.ErrAlreadyExists)
	assert.Equal(t, 1, d.Len())

	accounts := d.Accounts()
	require.Len(t, accounts, 1)
	assert.Equal(t, "A@x.com", accounts[0].Email)
}

func TestDirectory_ResetLink(t *testing.T) {
	d := New(WithResetLinkBase("https://app.test/reset"))
	ctx := context.Background()

	id, err := d.CreateAccount(ctx, domain.CreateRequest{Email: "a@x.com"})
	require.NoError(t, err)

	link, err := d.GeneratePasswordResetLink(ctx, "a@x.com")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(link, "https://app.test/reset?uid="+id))

	_, err = d.GeneratePasswordResetLink(ctx, "nobody@x.com")
	assert.ErrorIs(t, err, directory.ErrNotFound)
}

func TestDirectory_Faults(t *testing.T) {
	boom := errors.New("boom")
	d := New(WithFaults(Faults{
		Create: func(req domain.CreateRequest) error {
			if req.Email == "b@x.com" {
				return boom
			}
			return nil
		},
	}))
	ctx := context.Background()

	_, err := d.CreateAccount(ctx, domain.CreateRequest{Email: "a@x.com"})
	require.NoError(t, err)
	_, err = d.CreateAccount(ctx, domain.CreateRequest{Email: "b@x.com"})
	assert.ErrorIs(t, err, boom)

	d.SetFaults(Faults{List: func(string) error { return boom }})
	_, err = d.ListAccountsPage(ctx, 10, "")
	assert.ErrorIs(t, err, boom)
}

func TestDirectory_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().CreateAccount(ctx, domain.CreateRequest{Email: "a@x.com"})
	assert.ErrorIs(t, err, context.Canceled)
}
