// Package identitytoolkit implements directory.Directory on top of the
// Google Identity Toolkit v1 admin REST API (Firebase Authentication).
package identitytoolkit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
)

// DefaultEndpoint is the production API endpoint.
const DefaultEndpoint = "https://identitytoolkit.googleapis.com"

// Scopes requested for the service account token.
var Scopes = []string{
	"https://www.googleapis.com/auth/identitytoolkit",
	"https://www.googleapis.com/auth/cloud-platform",
}

var (
	ErrMissingCredentials = errors.New("identitytoolkit: credentials file is required")
	ErrMissingProject     = errors.New("identitytoolkit: project id is required")
)

// Config configures a Client.
type Config struct {
	// ProjectID defaults to the project of the service account key.
	ProjectID string `mapstructure:"project_id" yaml:"project_id"`

	// CredentialsFile is the path to a service account JSON key. It may be
	// empty only when Endpoint points at an emulator.
	CredentialsFile string `mapstructure:"credentials_file" yaml:"credentials_file"`

	// Endpoint overrides DefaultEndpoint (emulators, tests).
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Timeout bounds every HTTP request. Default: 30s.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// Client talks to one Identity Toolkit project.
type Client struct {
	endpoint   string
	projectID  string
	httpClient *http.Client
}

// New builds a Client from a service account key. Without a key, an emulator
// endpoint is required and the emulator's "owner" token is used.
func New(ctx context.Context, cfg Config) (*Client, error) {
	endpoint := strings.TrimSuffix(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	var ts oauth2.TokenSource
	projectID := cfg.ProjectID
	switch {
	case cfg.CredentialsFile != "":
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("identitytoolkit: read credentials: %w", err)
		}
		creds, err := google.CredentialsFromJSON(ctx, data, Scopes...)
		if err != nil {
			return nil, fmt.Errorf("identitytoolkit: parse credentials: %w", err)
		}
		ts = creds.TokenSource
		if projectID == "" {
			projectID = creds.ProjectID
		}
	case endpoint != DefaultEndpoint:
		ts = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "owner"})
	default:
		return nil, ErrMissingCredentials
	}
	if projectID == "" {
		return nil, ErrMissingProject
	}

	hc := oauth2.NewClient(ctx, ts)
	hc.Timeout = timeout
	return NewWithHTTPClient(endpoint, projectID, hc), nil
}

// NewWithHTTPClient builds a Client around an already authenticated HTTP
// client.
func NewWithHTTPClient(endpoint, projectID string, hc *http.Client) *Client {
	return &Client{
		endpoint:   strings.TrimSuffix(endpoint, "/"),
		projectID:  projectID,
		httpClient: hc,
	}
}

// ProjectID returns the project this client operates on.
func (c *Client) ProjectID() string {
	return c.projectID
}

func (c *Client) projectPath(suffix string) string {
	return fmt.Sprintf("/v1/projects/%s/%s", c.projectID, suffix)
}

// do performs a request and decodes the JSON response into result.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := googleapi.CheckResponse(resp); err != nil {
		return err
	}

	if result == nil {
		return nil
	}
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
