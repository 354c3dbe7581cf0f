package identitytoolkit

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/neudinger/acctmigrate/internal/directory"
	"github.com/neudinger/acctmigrate/internal/domain"
)

// userInfo is the wire shape of an account.
type userInfo struct {
	LocalID       string `json:"localId"`
	Email         string `json:"email"`
	DisplayName   string `json:"displayName,omitempty"`
	PhotoURL      string `json:"photoUrl,omitempty"`
	Disabled      bool   `json:"disabled,omitempty"`
	EmailVerified bool   `json:"emailVerified,omitempty"`
	CreatedAt     string `json:"createdAt,omitempty"`
	LastLoginAt   string `json:"lastLoginAt,omitempty"`
}

type batchGetResponse struct {
	Users         []userInfo `json:"users"`
	NextPageToken string     `json:"nextPageToken"`
}

type lookupRequest struct {
	Email []string `json:"email"`
}

type lookupResponse struct {
	Users []userInfo `json:"users"`
}

type signUpRequest struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	DisplayName   string `json:"displayName,omitempty"`
	PhotoURL      string `json:"photoUrl,omitempty"`
	Disabled      bool   `json:"disabled"`
	EmailVerified bool   `json:"emailVerified"`
}

type signUpResponse struct {
	LocalID string `json:"localId"`
}

type oobRequest struct {
	RequestType   string `json:"requestType"`
	Email         string `json:"email"`
	ReturnOobLink bool   `json:"returnOobLink"`
}

type oobResponse struct {
	Email   string `json:"email"`
	OobLink string `json:"oobLink"`
}

// millis parses the API's string-encoded epoch milliseconds.
func millis(s string) *time.Time {
	if s == "" {
		return nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms <= 0 {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}

func (u userInfo) record() domain.AccountRecord {
	return domain.NormalizeRecord(domain.AccountRecord{
		ExternalID:    u.LocalID,
		Email:         u.Email,
		DisplayName:   u.DisplayName,
		PhotoURL:      u.PhotoURL,
		Disabled:      u.Disabled,
		EmailVerified: u.EmailVerified,
		CreatedAt:     millis(u.CreatedAt),
		LastSignInAt:  millis(u.LastLoginAt),
	})
}

// ListAccountsPage implements directory.Directory.
func (c *Client) ListAccountsPage(ctx context.Context, pageSize int, cursor string) (directory.Page, error) {
	if pageSize <= 0 {
		pageSize = directory.DefaultPageSize
	}
	q := url.Values{}
	q.Set("maxResults", strconv.Itoa(pageSize))
	if cursor != "" {
		q.Set("nextPageToken", cursor)
	}

	var resp batchGetResponse
	if err := c.do(ctx, http.MethodGet, c.projectPath("accounts:batchGet")+"?"+q.Encode(), nil, &resp); err != nil {
		return directory.Page{}, fmt.Errorf("list accounts: %w", classify(err))
	}

	page := directory.Page{
		Accounts:   make([]domain.AccountRecord, 0, len(resp.Users)),
		NextCursor: resp.NextPageToken,
	}
	for _, u := range resp.Users {
		page.Accounts = append(page.Accounts, u.record())
	}
	return page, nil
}

// GetAccountByEmail implements directory.Directory.
func (c *Client) GetAccountByEmail(ctx context.Context, email string) (domain.AccountRecord, error) {
	var resp lookupResponse
	err := c.do(ctx, http.MethodPost, c.projectPath("accounts:lookup"), lookupRequest{Email: []string{email}}, &resp)
	if err != nil {
		return domain.AccountRecord{}, fmt.Errorf("lookup %s: %w", email, classify(err))
	}
	if len(resp.Users) == 0 {
		return domain.AccountRecord{}, directory.ErrNotFound
	}
	return resp.Users[0].record(), nil
}

// CreateAccount implements directory.Directory.
func (c *Client) CreateAccount(ctx context.Context, req domain.CreateRequest) (string, error) {
	body := signUpRequest{
		Email:         req.Email,
		Password:      req.Password,
		DisplayName:   req.DisplayName,
		PhotoURL:      req.PhotoURL,
		Disabled:      req.Disabled,
		EmailVerified: req.EmailVerified,
	}
	var resp signUpResponse
	if err := c.do(ctx, http.MethodPost, c.projectPath("accounts"), body, &resp); err != nil {
		return "", fmt.Errorf("create %s: %w", req.Email, classify(err))
	}
	if resp.LocalID == "" {
		return "", fmt.Errorf("create %s: response carried no localId", req.Email)
	}
	return resp.LocalID, nil
}

// GeneratePasswordResetLink implements directory.Directory.
func (c *Client) GeneratePasswordResetLink(ctx context.Context, email string) (string, error) {
	body := oobRequest{RequestType: "PASSWORD_RESET", Email: email, ReturnOobLink: true}
	var resp oobResponse
	if err := c.do(ctx, http.MethodPost, c.projectPath("accounts:sendOobCode"), body, &resp); err != nil {
		return "", fmt.Errorf("reset link %s: %w", email, classify(err))
	}
	if resp.OobLink == "" {
		return "", fmt.Errorf("reset link %s: response carried no link", email)
	}
	return resp.OobLink, nil
}
