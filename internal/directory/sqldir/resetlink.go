package sqldir

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const resetPurpose = "password_reset"

var (
	ErrResetLinksDisabled  = errors.New("reset links are not configured")
	ErrInvalidSecretLength = errors.New("reset link secret must be at least 32 characters")
	ErrInvalidResetToken   = errors.New("invalid reset token")
)

// ResetLinkConfig configures signed password reset links.
type ResetLinkConfig struct {
	// BaseURL is the page that consumes the token, e.g. https://app/reset.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// Secret is the HMAC signing key. Must be at least 32 characters.
	Secret string `mapstructure:"secret" yaml:"secret"`

	// Issuer is the token issuer claim. Default: "acctmigrate"
	Issuer string `mapstructure:"issuer" yaml:"issuer"`

	// TTL is the token lifetime. Default: 72h.
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

func (c *ResetLinkConfig) applyDefaults() {
	if c.Issuer == "" {
		c.Issuer = "acctmigrate"
	}
	if c.TTL == 0 {
		c.TTL = 72 * time.Hour
	}
}

// ResetClaims are the claims carried by a reset token.
type ResetClaims struct {
	jwt.RegisteredClaims
	Email   string `json:"email"`
	Purpose string `json:"purpose"`
}

type resetLinks struct {
	config ResetLinkConfig
}

func newResetLinks(config ResetLinkConfig) *resetLinks {
	return &resetLinks{config: config}
}

func (l *resetLinks) generate(account *Account, now time.Time) (string, error) {
	if l.config.BaseURL == "" || l.config.Secret == "" {
		return "", ErrResetLinksDisabled
	}
	if len(l.config.Secret) < 32 {
		return "", ErrInvalidSecretLength
	}

	claims := &ResetClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    l.config.Issuer,
			Subject:   account.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(l.config.TTL)),
		},
		Email:   account.Email,
		Purpose: resetPurpose,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(l.config.Secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign reset token: %w", err)
	}

	u, err := url.Parse(l.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid reset base url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ParseResetToken validates a reset token against config and returns its
// claims.
func ParseResetToken(config ResetLinkConfig, token string) (*ResetClaims, error) {
	config.applyDefaults()
	claims := &ResetClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(config.Secret), nil
	}, jwt.WithIssuer(config.Issuer))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResetToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidResetToken
	}
	if claims.Purpose != resetPurpose {
		return nil, ErrInvalidResetToken
	}
	return claims, nil
}
