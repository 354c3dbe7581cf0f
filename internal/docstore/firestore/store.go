// Package firestore implements docstore.Store on the Cloud Firestore v1 REST
// API.
package firestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"

	"github.com/neudinger/acctmigrate/internal/docstore"
)

// DefaultEndpoint is the production API endpoint.
const DefaultEndpoint = "https://firestore.googleapis.com"

// Scopes requested for the service account token.
var Scopes = []string{
	"https://www.googleapis.com/auth/datastore",
	"https://www.googleapis.com/auth/cloud-platform",
}

var ErrMissingProject = errors.New("firestore: project id is required")

// Config configures a Store.
type Config struct {
	ProjectID       string        `mapstructure:"project_id" yaml:"project_id"`
	CredentialsFile string        `mapstructure:"credentials_file" yaml:"credentials_file"`
	Database        string        `mapstructure:"database" yaml:"database"`
	Endpoint        string        `mapstructure:"endpoint" yaml:"endpoint"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// Store writes documents under projects/{p}/databases/{db}/documents.
type Store struct {
	endpoint   string
	root       string
	httpClient *http.Client
}

// New builds a Store from a service account key. Without a key, a non-default
// endpoint (emulator) is required.
func New(ctx context.Context, cfg Config) (*Store, error) {
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
			return nil, fmt.Errorf("firestore: read credentials: %w", err)
		}
		creds, err := google.CredentialsFromJSON(ctx, data, Scopes...)
		if err != nil {
			return nil, fmt.Errorf("firestore: parse credentials: %w", err)
		}
		ts = creds.TokenSource
		if projectID == "" {
			projectID = creds.ProjectID
		}
	case endpoint != DefaultEndpoint:
		ts = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "owner"})
	default:
		return nil, errors.New("firestore: credentials file is required")
	}
	if projectID == "" {
		return nil, ErrMissingProject
	}

	hc := oauth2.NewClient(ctx, ts)
	hc.Timeout = timeout
	return NewWithHTTPClient(endpoint, projectID, cfg.Database, hc), nil
}

// NewWithHTTPClient builds a Store around an authenticated HTTP client.
func NewWithHTTPClient(endpoint, projectID, database string, hc *http.Client) *Store {
	if database == "" {
		database = "(default)"
	}
	return &Store{
		endpoint:   strings.TrimSuffix(endpoint, "/"),
		root:       fmt.Sprintf("projects/%s/databases/%s/documents", projectID, database),
		httpClient: hc,
	}
}

type document struct {
	Name   string           `json:"name,omitempty"`
	Fields map[string]value `json:"fields"`
}

func (s *Store) docURL(collection, key string) (string, error) {
	if collection == "" || key == "" {
		return "", fmt.Errorf("collection and key are required")
	}
	return s.endpoint + "/v1/" + s.root + "/" + url.PathEscape(collection) + "/" + url.PathEscape(key), nil
}

// Upsert implements docstore.Store. With Merge, the update mask lists only
// the payload's fields so every other field of an existing document is kept.
func (s *Store) Upsert(ctx context.Context, collection, key string, payload map[string]any, opts docstore.UpsertOptions) error {
	target, err := s.docURL(collection, key)
	if err != nil {
		return err
	}

	fields := make(map[string]value, len(payload))
	for name, v := range payload {
		enc, err := encodeValue(v)
		if err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
		fields[name] = enc
	}

	if opts.Merge {
		names := make([]string, 0, len(payload))
		for name := range payload {
			names = append(names, name)
		}
		slices.Sort(names)
		q := url.Values{}
		for _, name := range names {
			q.Add("updateMask.fieldPaths", quoteFieldPath(name))
		}
		target += "?" + q.Encode()
	}

	return s.do(ctx, http.MethodPatch, target, document{Fields: fields}, nil)
}

// Get implements docstore.Store.
func (s *Store) Get(ctx context.Context, collection, key string) (map[string]any, error) {
	target, err := s.docURL(collection, key)
	if err != nil {
		return nil, err
	}
	var doc document
	if err := s.do(ctx, http.MethodGet, target, nil, &doc); err != nil {
		var gErr *googleapi.Error
		if errors.As(err, &gErr) && gErr.Code == http.StatusNotFound {
			return nil, docstore.ErrNotFound
		}
		return nil, err
	}
	out := make(map[string]any, len(doc.Fields))
	for name, v := range doc.Fields {
		out[name] = v.decode()
	}
	return out, nil
}

// listPageSize is the page size requested when listing a collection.
const listPageSize = 300

type listResponse struct {
	Documents     []document `json:"documents"`
	NextPageToken string     `json:"nextPageToken"`
}

// List implements docstore.Store. It follows nextPageToken until the
// collection is drained.
func (s *Store) List(ctx context.Context, collection string) ([]docstore.Document, error) {
	if collection == "" {
		return nil, fmt.Errorf("collection is required")
	}
	base := s.endpoint + "/v1/" + s.root + "/" + url.PathEscape(collection)

	var docs []docstore.Document
	pageToken := ""
	for {
		q := url.Values{}
		q.Set("pageSize", strconv.Itoa(listPageSize))
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}
		var resp listResponse
		if err := s.do(ctx, http.MethodGet, base+"?"+q.Encode(), nil, &resp); err != nil {
			return nil, fmt.Errorf("list %s: %w", collection, err)
		}
		for _, doc := range resp.Documents {
			fields := make(map[string]any, len(doc.Fields))
			for name, v := range doc.Fields {
				fields[name] = v.decode()
			}
			docs = append(docs, docstore.Document{Key: documentID(doc.Name), Fields: fields})
		}
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	slices.SortFunc(docs, func(a, b docstore.Document) int { return strings.Compare(a.Key, b.Key) })
	return docs, nil
}

// documentID returns the last segment of a document resource name.
func documentID(name string) string {
	id := name[strings.LastIndex(name, "/")+1:]
	if unescaped, err := url.PathUnescape(id); err == nil {
		return unescaped
	}
	return id
}

// Close implements docstore.Store.
func (s *Store) Close() error {
	return nil
}

func (s *Store) do(ctx context.Context, method, target string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
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
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// quoteFieldPath backquotes field names that are not simple identifiers.
func quoteFieldPath(name string) string {
	simple := name != ""
	for i, r := range name {
		isLetter := r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		if !isLetter && !(i > 0 && r >= '0' && r <= '9') {
			simple = false
			break
		}
	}
	if simple {
		return name
	}
	return "`" + strings.ReplaceAll(strings.ReplaceAll(name, `\`, `\\`), "`", "\\`") + "`"
}
