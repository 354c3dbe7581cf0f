package domain

import (
	"net/url"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// AccountRecord is one identity exported from a source directory. Optional
// fields are resolved by NormalizeRecord at ingestion: an empty string means
// the field is absent.
type AccountRecord struct {
	ExternalID    string     `json:"externalId" yaml:"externalId"`
	Email         string     `json:"email" yaml:"email"`
	DisplayName   string     `json:"displayName,omitempty" yaml:"displayName,omitempty"`
	PhotoURL      string     `json:"photoUrl,omitempty" yaml:"photoUrl,omitempty"`
	Disabled      bool       `json:"disabled" yaml:"disabled"`
	EmailVerified bool       `json:"emailVerified" yaml:"emailVerified"`
	CreatedAt     *time.Time `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
	LastSignInAt  *time.Time `json:"lastSignInAt,omitempty" yaml:"lastSignInAt,omitempty"`
}

// CreateRequest is what a destination directory needs to create an account.
// Password is transient and never serialized.
type CreateRequest struct {
	Email         string `json:"email"`
	Password      string `json:"-" yaml:"-"`
	DisplayName   string `json:"displayName,omitempty"`
	PhotoURL      string `json:"photoUrl,omitempty"`
	Disabled      bool   `json:"disabled"`
	EmailVerified bool   `json:"emailVerified"`
}

type Status string

const (
	StatusCreated       Status = "CREATED"
	StatusAlreadyExists Status = "ALREADY_EXISTS"
	StatusFailed        Status = "FAILED"
)

// MigrationOutcome is the result of replaying one AccountRecord.
type MigrationOutcome struct {
	Status          Status `json:"status"`
	Email           string `json:"email"`
	SourceID        string `json:"sourceId"`
	DestinationID   string `json:"destinationId"`
	// Detail is the error of a FAILED outcome. CREATED and ALREADY_EXISTS
	// outcomes leave it empty except for informational notes such as a failed
	// reset link or a duplicate within the run.
	Detail          string `json:"error"`
	ResetLinkIssued bool   `json:"resetLinkIssued"`
	ResetLink       string `json:"resetLink,omitempty"`
}

// Summary holds the aggregate counts of a run.
type Summary struct {
	Created       int `json:"created"`
	AlreadyExists int `json:"alreadyExists"`
	Failed        int `json:"failed"`
	Total         int `json:"total"`
}

// NormalizeEmail returns the comparison key for an email address: trimmed,
// NFC-normalized and lower-cased.
func NormalizeEmail(email string) string {
	return strings.ToLower(norm.NFC.String(strings.TrimSpace(email)))
}

// ValidPhotoURL reports whether raw is an absolute http(s) URL with a host.
func ValidPhotoURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return (scheme == "http" || scheme == "https") && u.Host != ""
}

// NormalizeRecord applies the per-field default policy once, at ingestion.
// Email case is preserved; surrounding whitespace is trimmed everywhere and
// photo URLs that are not absolute http(s) are dropped.
func NormalizeRecord(r AccountRecord) AccountRecord {
	r.ExternalID = strings.TrimSpace(r.ExternalID)
	r.Email = strings.TrimSpace(r.Email)
	r.DisplayName = strings.TrimSpace(r.DisplayName)
	r.PhotoURL = strings.TrimSpace(r.PhotoURL)
	if !ValidPhotoURL(r.PhotoURL) {
		r.PhotoURL = ""
	}
	if r.CreatedAt != nil && r.CreatedAt.IsZero() {
		r.CreatedAt = nil
	}
	if r.LastSignInAt != nil && r.LastSignInAt.IsZero() {
		r.LastSignInAt = nil
	}
	return r
}
