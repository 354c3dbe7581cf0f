// Package transform turns exported account records into create requests for
// a destination directory.
package transform

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/go-playground/validator/v10"

	"github.com/neudinger/acctmigrate/internal/domain"
)

const (
	DefaultPasswordLength = 24
	MinPasswordLength     = 12
)

const (
	lowerChars  = "abcdefghijkmnopqrstuvwxyz"
	upperChars  = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	digitChars  = "23456789"
	symbolChars = "!@#$%^&*-_=+?"
	allChars    = lowerChars + upperChars + digitChars + symbolChars
)

// Policy decides how source flags are carried to the destination.
type Policy struct {
	// ForceEnabled creates every account enabled regardless of the source.
	ForceEnabled bool `mapstructure:"force_enabled" yaml:"force_enabled"`

	// PreserveEmailVerified copies the source's email verification flag.
	PreserveEmailVerified bool `mapstructure:"preserve_email_verified" yaml:"preserve_email_verified"`
}

// DefaultPolicy enables every account and resets email verification.
func DefaultPolicy() Policy {
	return Policy{ForceEnabled: true}
}

// SkipError reports a record that cannot be replayed.
type SkipError struct {
	Email  string
	Reason string
}

func (e *SkipError) Error() string {
	return "skipped: " + e.Reason
}

// IsSkip reports whether err is a *SkipError.
func IsSkip(err error) bool {
	var skip *SkipError
	return errors.As(err, &skip)
}

// Transformer builds create requests. It is safe for concurrent use.
type Transformer struct {
	policy         Policy
	passwordLength int
	validate       *validator.Validate
}

// Option configures a Transformer.
type Option func(*Transformer)

// WithPasswordLength sets the temporary password length. Values below
// MinPasswordLength are raised to it.
func WithPasswordLength(n int) Option {
	return func(t *Transformer) {
		t.passwordLength = max(n, MinPasswordLength)
	}
}

// New creates a Transformer applying policy.
func New(policy Policy, opts ...Option) *Transformer {
	t := &Transformer{
		policy:         policy,
		passwordLength: DefaultPasswordLength,
		validate:       validator.New(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ToCreateRequest maps a record to a create request carrying a fresh
// temporary password. The source identifier is never copied.
func (t *Transformer) ToCreateRequest(rec domain.AccountRecord) (domain.CreateRequest, error) {
	rec = domain.NormalizeRecord(rec)
	if rec.Email == "" {
		return domain.CreateRequest{}, &SkipError{Reason: "missing email"}
	}
	if err := t.validate.Var(rec.Email, "email"); err != nil {
		return domain.CreateRequest{}, &SkipError{Email: rec.Email, Reason: fmt.Sprintf("invalid email %q", rec.Email)}
	}

	password, err := GeneratePassword(t.passwordLength)
	if err != nil {
		return domain.CreateRequest{}, fmt.Errorf("failed to generate temporary password: %w", err)
	}

	req := domain.CreateRequest{
		Email:       rec.Email,
		Password:    password,
		DisplayName: rec.DisplayName,
		Disabled:    rec.Disabled,
	}
	if domain.ValidPhotoURL(rec.PhotoURL) {
		req.PhotoURL = rec.PhotoURL
	}
	if t.policy.ForceEnabled {
		req.Disabled = false
	}
	if t.policy.PreserveEmailVerified {
		req.EmailVerified = rec.EmailVerified
	}
	return req, nil
}

// GeneratePassword returns a random password of length n (at least
// MinPasswordLength) with at least one lower, upper, digit and symbol.
func GeneratePassword(n int) (string, error) {
	n = max(n, MinPasswordLength)
	buf := make([]byte, 0, n)
	for _, class := range []string{lowerChars, upperChars, digitChars, symbolChars} {
		c, err := randomChar(class)
		if err != nil {
			return "", err
		}
		buf = append(buf, c)
	}
	for len(buf) < n {
		c, err := randomChar(allChars)
		if err != nil {
			return "", err
		}
		buf = append(buf, c)
	}

	// Fisher-Yates so the class characters are not always first.
	for i := len(buf) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", err
		}
		buf[i], buf[j.Int64()] = buf[j.Int64()], buf[i]
	}
	return string(buf), nil
}

func randomChar(set string) (byte, error) {
	i, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
	if err != nil {
		return 0, err
	}
	return set[i.Int64()], nil
}
