// Package memdir is an in-memory account directory used for dry runs and
// tests.
package memdir

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/neudinger/acctmigrate/internal/directory"
	"github.com/neudinger/acctmigrate/internal/domain"
)

// Faults lets callers inject failures. A nil hook never fails.
type Faults struct {
	List      func(cursor string) error
	Lookup    func(email string) error
	Create    func(req domain.CreateRequest) error
	ResetLink func(email string) error
}

// Directory keeps accounts in insertion order.
type Directory struct {
	mu       sync.Mutex
	accounts []domain.AccountRecord
	byEmail  map[string]int
	faults   Faults
	linkBase string
	now      func() time.Time
}

type Option func(*Directory)

// WithAccounts preloads accounts. Accounts without an ExternalID get one.
func WithAccounts(accounts ...domain.AccountRecord) Option {
	return func(d *Directory) {
		for _, a := range accounts {
			if a.ExternalID == "" {
				a.ExternalID = uuid.New().String()
			}
			d.insert(a)
		}
	}
}

func WithFaults(f Faults) Option {
	return func(d *Directory) { d.faults = f }
}

// WithResetLinkBase sets the URL prefix used for generated reset links.
func WithResetLinkBase(base string) Option {
	return func(d *Directory) { d.linkBase = base }
}

func New(opts ...Option) *Directory {
	d := &Directory{
		byEmail:  make(map[string]int),
		linkBase: "https://reset.invalid/reset",
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Directory) insert(a domain.AccountRecord) {
	d.byEmail[domain.NormalizeEmail(a.Email)] = len(d.accounts)
	d.accounts = append(d.accounts, a)
}

// SetFaults replaces the fault hooks.
func (d *Directory) SetFaults(f Faults) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.faults = f
}

func (d *Directory) ListAccountsPage(ctx context.Context, pageSize int, cursor string) (directory.Page, error) {
	if err := ctx.Err(); err != nil {
		return directory.Page{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.faults.List != nil {
		if err := d.faults.List(cursor); err != nil {
			return directory.Page{}, err
		}
	}
	if pageSize <= 0 {
		pageSize = directory.DefaultPageSize
	}

	start := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 || n > len(d.accounts) {
			return directory.Page{}, fmt.Errorf("invalid page cursor %q", cursor)
		}
		start = n
	}
	end := min(start+pageSize, len(d.accounts))

	page := directory.Page{
		Accounts: append([]domain.AccountRecord(nil), d.accounts[start:end]...),
	}
	if end < len(d.accounts) {
		page.NextCursor = strconv.Itoa(end)
	}
	return page, nil
}

func (d *Directory) GetAccountByEmail(ctx context.Context, email string) (domain.AccountRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.AccountRecord{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.faults.Lookup != nil {
		if err := d.faults.Lookup(email); err != nil {
			return domain.AccountRecord{}, err
		}
	}
	i, ok := d.byEmail[domain.NormalizeEmail(email)]
	if !ok {
		return domain.AccountRecord{}, directory.ErrNotFound
	}
	return d.accounts[i], nil
}

func (d *Directory) CreateAccount(ctx context.Context, req domain.CreateRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.faults.Create != nil {
		if err := d.faults.Create(req); err != nil {
			return "", err
		}
	}
	if _, ok := d.byEmail[domain.NormalizeEmail(req.Email)]; ok {
		return "", directory.ErrAlreadyExists
	}

	now := d.now().UTC()
	account := domain.AccountRecord{
		ExternalID:    uuid.New().String(),
		Email:         req.Email,
		DisplayName:   req.DisplayName,
		PhotoURL:      req.PhotoURL,
		Disabled:      req.Disabled,
		EmailVerified: req.EmailVerified,
		CreatedAt:     &now,
	}
	d.insert(account)
	return account.ExternalID, nil
}

func (d *Directory) GeneratePasswordResetLink(ctx context.Context, email string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.faults.ResetLink != nil {
		if err := d.faults.ResetLink(email); err != nil {
			return "", err
		}
	}
	i, ok := d.byEmail[domain.NormalizeEmail(email)]
	if !ok {
		return "", directory.ErrNotFound
	}
	return d.linkBase + "?uid=" + d.accounts[i].ExternalID + "&oobCode=" + uuid.New().String(), nil
}

// Accounts returns a snapshot of all accounts in insertion order.
func (d *Directory) Accounts() []domain.AccountRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]domain.AccountRecord(nil), d.accounts...)
}

// Len returns the number of accounts.
func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.accounts)
}
