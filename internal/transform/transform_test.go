package transform

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neudinger/acctmigrate/internal/domain"
)

func TestToCreateRequest_CopiesFields(t *testing.T) {
	tr := New(DefaultPolicy())
	req, err := tr.ToCreateRequest(domain.AccountRecord{
		ExternalID:  "src-1",
		Email:       "Ann@X.com",
		DisplayName: "Ann",
		PhotoURL:    "https://example.com/p.png",
	})
	require.NoError(t, err)

	assert.Equal(t, "Ann@X.com", req.Email)
	assert.Equal(t, "Ann", req.DisplayName)
	assert.Equal(t, "https://example.com/p.png", req.PhotoURL)
	assert.Len(t, req.Password, DefaultPasswordLength)
	assert.NotContains(t, req.Password, "src-1")
}

func TestToCreateRequest_DropsNonHTTPPhotoURL(t *testing.T) {
	tr := New(DefaultPolicy())
	for _, photo := range []string{"/local/path.png", "ftp://example.com/p.png", "example.com/p.png", "https://"} {
		req, err := tr.ToCreateRequest(domain.AccountRecord{Email: "a@x.com", PhotoURL: photo})
		require.NoError(t, err)
		assert.Empty(t, req.PhotoURL, photo)
	}
}

func TestToCreateRequest_Policy(t *testing.T) {
	rec := domain.AccountRecord{Email: "a@x.com", Disabled: true, EmailVerified: true}

	req, err := New(DefaultPolicy()).ToCreateRequest(rec)
	require.NoError(t, err)
	assert.False(t, req.Disabled)
	assert.False(t, req.EmailVerified)

	req, err = New(Policy{ForceEnabled: false, PreserveEmailVerified: true}).ToCreateRequest(rec)
	require.NoError(t, err)
	assert.True(t, req.Disabled)
	assert.True(t, req.EmailVerified)
}

func TestToCreateRequest_SkipsInvalidEmail(t *testing.T) {
	tr := New(DefaultPolicy())
	for _, email := range []string{"", "   ", "not-an-email", "a@"} {
		_, err := tr.ToCreateRequest(domain.AccountRecord{ExternalID: "u", Email: email})
		require.Error(t, err, email)
		assert.True(t, IsSkip(err), email)
		assert.True(t, strings.HasPrefix(err.Error(), "skipped: "))
	}
}

func TestToCreateRequest_FreshPasswordEachCall(t *testing.T) {
	tr := New(DefaultPolicy())
	rec := domain.AccountRecord{Email: "a@x.com"}
	a, err := tr.ToCreateRequest(rec)
	require.NoError(t, err)
	b, err := tr.ToCreateRequest(rec)
	require.NoError(t, err)
	assert.NotEqual(t, a.Password, b.Password)
}

func TestWithPasswordLength_EnforcesMinimum(t *testing.T) {
	req, err := New(DefaultPolicy(), WithPasswordLength(4)).ToCreateRequest(domain.AccountRecord{Email: "a@x.com"})
	require.NoError(t, err)
	assert.Len(t, req.Password, MinPasswordLength)
}

func TestGeneratePassword_ContainsEveryClass(t *testing.T) {
	for range 50 {
		pw, err := GeneratePassword(MinPasswordLength)
		require.NoError(t, err)
		assert.Len(t, pw, MinPasswordLength)
		assert.True(t, strings.ContainsAny(pw, lowerChars), pw)
		assert.True(t, strings.ContainsAny(pw, upperChars), pw)
		assert.True(t, strings.ContainsAny(pw, digitChars), pw)
		assert.True(t, strings.ContainsAny(pw, symbolChars), pw)
	}
}
