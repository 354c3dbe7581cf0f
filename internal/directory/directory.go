// Package directory defines the capability interface the migration pipeline
// consumes from an account directory (source or destination).
package directory

import (
	"context"
	"errors"

	"github.com/neudinger/acctmigrate/internal/domain"
)

// DefaultPageSize is the page size used when draining a directory.
const DefaultPageSize = 1000

var (
	// ErrNotFound is returned by GetAccountByEmail when no account matches.
	ErrNotFound = errors.New("account not found")

	// ErrAlreadyExists is returned by CreateAccount when the email is taken.
	ErrAlreadyExists = errors.New("account already exists")
)

// Page is one page of a directory listing. An empty NextCursor means the
// listing is complete.
type Page struct {
	Accounts   []domain.AccountRecord
	NextCursor string
}

// Directory is an account directory. Implementations must be safe for
// sequential use by a single pipeline; they are not required to be safe for
// concurrent use.
type Directory interface {
	ListAccountsPage(ctx context.Context, pageSize int, cursor string) (Page, error)
	GetAccountByEmail(ctx context.Context, email string) (domain.AccountRecord, error)
	CreateAccount(ctx context.Context, req domain.CreateRequest) (string, error)
	GeneratePasswordResetLink(ctx context.Context, email string) (string, error)
}

// Closer is implemented by directories holding resources such as database
// handles.
type Closer interface {
	Close() error
}

// Close closes d when it implements Closer.
func Close(d Directory) error {
	if c, ok := d.(Closer); ok {
		return c.Close()
	}
	return nil
}
