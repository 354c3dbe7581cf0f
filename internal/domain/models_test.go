package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "a@x.com", NormalizeEmail("  A@X.com\n"))
	// Decomposed "é" (e + combining acute) compares equal to the composed form.
	assert.Equal(t, NormalizeEmail("jos\u00e9@x.com"), NormalizeEmail("jose\u0301@x.com"))
	assert.Empty(t, NormalizeEmail("   "))
}

func TestValidPhotoURL(t *testing.T) {
	cases := map[string]bool{
		"https://example.com/p.png": true,
		"HTTP://example.com/p.png":  true,
		"/local/path.png":           false,
		"file:///tmp/p.png":         false,
		"https:///p.png":            false,
		"":                          false,
		"://bad":                    false,
	}
	for raw, want := range cases {
		assert.Equal(t, want, ValidPhotoURL(raw), raw)
	}
}

func TestNormalizeRecord(t *testing.T) {
	zero := time.Time{}
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	got := NormalizeRecord(AccountRecord{
		ExternalID:   " u1 ",
		Email:        " Mixed@Case.com ",
		DisplayName:  " Ada ",
		PhotoURL:     "/local/path.png",
		CreatedAt:    &created,
		LastSignInAt: &zero,
	})

	assert.Equal(t, "u1", got.ExternalID)
	assert.Equal(t, "Mixed@Case.com", got.Email, "case is preserved")
	assert.Equal(t, "Ada", got.DisplayName)
	assert.Empty(t, got.PhotoURL)
	assert.Equal(t, &created, got.CreatedAt)
	assert.Nil(t, got.LastSignInAt)

	kept := NormalizeRecord(AccountRecord{Email: "a@x.com", PhotoURL: "https://example.com/p.png"})
	assert.Equal(t, "https://example.com/p.png", kept.PhotoURL)
}
