package identitytoolkit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/neudinger/acctmigrate/internal/directory"
	"github.com/neudinger/acctmigrate/internal/domain"
)

// fakeToolkit emulates the subset of the admin API the client uses.
type fakeToolkit struct {
	mu        sync.Mutex
	users     []userInfo
	created   []signUpRequest
	failReset bool
}

func writeAPIError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":{"code":%d,"message":%q}}`, code, msg)
}

func (f *fakeToolkit) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Header.Get("Authorization") == "" {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHENTICATED")
		return
	}

	prefix := "/v1/projects/demo/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		writeAPIError(w, http.StatusNotFound, "NOT_FOUND")
		return
	}

	switch strings.TrimPrefix(r.URL.Path, prefix) {
	case "accounts:batchGet":
		size, _ := strconv.Atoi(r.URL.Query().Get("maxResults"))
		start, _ := strconv.Atoi(r.URL.Query().Get("nextPageToken"))
		end := min(start+size, len(f.users))
		resp := batchGetResponse{Users: f.users[start:end]}
		if end < len(f.users) {
			resp.NextPageToken = strconv.Itoa(end)
		}
		_ = json.NewEncoder(w).Encode(resp)

	case "accounts:lookup":
		var req lookupRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		resp := lookupResponse{}
		for _, u := range f.users {
			if strings.EqualFold(u.Email, req.Email[0]) {
				resp.Users = append(resp.Users, u)
			}
		}
		_ = json.NewEncoder(w).Encode(resp)

	case "accounts":
		var req signUpRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		for _, u := range f.users {
			if strings.EqualFold(u.Email, req.Email) {
				writeAPIError(w, http.StatusBadRequest, "EMAIL_EXISTS")
				return
			}
		}
		f.created = append(f.created, req)
		id := fmt.Sprintf("new-%d", len(f.users))
		f.users = append(f.users, userInfo{LocalID: id, Email: req.Email, Disabled: req.Disabled})
		_ = json.NewEncoder(w).Encode(signUpResponse{LocalID: id})

	case "accounts:sendOobCode":
		if f.failReset {
			writeAPIError(w, http.StatusBadRequest, "EMAIL_NOT_FOUND")
			return
		}
		var req oobRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(oobResponse{Email: req.Email, OobLink: "https://example.com/reset?oobCode=x"})

	default:
		writeAPIError(w, http.StatusNotFound, "NOT_FOUND")
	}
}

func newTestClient(t *testing.T, fake *fakeToolkit) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c, err := New(context.Background(), Config{ProjectID: "demo", Endpoint: srv.URL})
	require.NoError(t, err)
	require.Equal(t, "demo", c.ProjectID())
	return c
}

func TestNew_RequiresCredentialsForProduction(t *testing.T) {
	_, err := New(context.Background(), Config{ProjectID: "demo"})
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestNew_RequiresProject(t *testing.T) {
	_, err := New(context.Background(), Config{Endpoint: "http://localhost:9099"})
	assert.ErrorIs(t, err, ErrMissingProject)
}

func TestClient_ListAccountsPage(t *testing.T) {
	fake := &fakeToolkit{users: []userInfo{
		{LocalID: "u1", Email: "a@x.com", CreatedAt: "1700000000000"},
		{LocalID: "u2", Email: "b@x.com", PhotoURL: "/relative.png"},
		{LocalID: "u3", Email: "c@x.com", Disabled: true},
	}}
	c := newTestClient(t, fake)
	ctx := context.Background()

	page, err := c.ListAccountsPage(ctx, 2, "")
	require.NoError(t, err)
	require.Len(t, page.Accounts, 2)
	assert.Equal(t, "2", page.NextCursor)
	assert.Equal(t, "u1", page.Accounts[0].ExternalID)
	require.NotNil(t, page.Accounts[0].CreatedAt)
	assert.Equal(t, int64(1700000000000), page.Accounts[0].CreatedAt.UnixMilli())
	assert.Empty(t, page.Accounts[1].PhotoURL)

	page, err = c.ListAccountsPage(ctx, 2, page.NextCursor)
	require.NoError(t, err)
	require.Len(t, page.Accounts, 1)
	assert.True(t, page.Accounts[0].Disabled)
	assert.Empty(t, page.NextCursor)
}

func TestClient_LookupAndCreate(t *testing.T) {
	fake := &fakeToolkit{users: []userInfo{{LocalID: "u1", Email: "a@x.com"}}}
	c := newTestClient(t, fake)
	ctx := context.Background()

	got, err := c.GetAccountByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ExternalID)

	_, err = c.GetAccountByEmail(ctx, "b@x.com")
	assert.ErrorIs(t, err, directory.ErrNotFound)

	id, err := c.CreateAccount(ctx, domain.CreateRequest{Email: "b@x.com", Password: "Secret-123456"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	require.Len(t, fake.created, 1)
	assert.Equal(t, "Secret-123456", fake.created[0].Password)
	assert.False(t, fake.created[0].Disabled)

	_, err = c.CreateAccount(ctx, domain.CreateRequest{Email: "A@x.com", Password: "Secret-123456"})
	assert.ErrorIs(t, err, directory.ErrAlreadyExists)
}

func TestClient_GeneratePasswordResetLink(t *testing.T) {
	fake := &fakeToolkit{users: []userInfo{{LocalID: "u1", Email: "a@x.com"}}}
	c := newTestClient(t, fake)
	ctx := context.Background()

	link, err := c.GeneratePasswordResetLink(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Contains(t, link, "oobCode=")

	fake.failReset = true
	_, err = c.GeneratePasswordResetLink(ctx, "a@x.com")
	assert.ErrorIs(t, err, directory.ErrNotFound)
}

func TestClient_UnauthorizedIsAuthorisationFailure(t *testing.T) {
	srv := httptest.NewServer(&fakeToolkit{})
	t.Cleanup(srv.Close)

	c := NewWithHTTPClient(srv.URL, "demo", srv.Client())
	_, err := c.ListAccountsPage(context.Background(), 10, "")
	require.Error(t, err)
	assert.True(t, IsAuthorisationFailure(err))
}

type refusedTokenSource struct{}

func (refusedTokenSource) Token() (*oauth2.Token, error) {
	return nil, &oauth2.RetrieveError{
		Response: &http.Response{StatusCode: http.StatusBadRequest, Status: "400 Bad Request"},
		Body:     []byte(`{"error":"invalid_grant"}`),
	}
}

func TestClient_RefusedTokenIsAuthorisationFailure(t *testing.T) {
	fake := &fakeToolkit{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	ctx := context.Background()
	c := NewWithHTTPClient(srv.URL, "demo", oauth2.NewClient(ctx, refusedTokenSource{}))
	_, err := c.ListAccountsPage(ctx, 1, "")
	require.Error(t, err)
	assert.True(t, IsAuthorisationFailure(err))

	assert.False(t, IsAuthorisationFailure(fmt.Errorf("lookup: %w", directory.ErrNotFound)))
}
