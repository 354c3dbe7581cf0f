// Package artifact reads and writes run artifacts (checkpoints, reports) on
// the local filesystem or in S3, addressed by a path or an s3://bucket/key URI.
package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ErrNotFound is returned by Read when the artifact does not exist.
var ErrNotFound = errors.New("artifact not found")

const s3Scheme = "s3://"

// Config configures S3 access. Local paths ignore it.
type Config struct {
	Region string `mapstructure:"region" yaml:"region"`

	// Endpoint is the S3 endpoint URL for S3-compatible services.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ForcePathStyle is required for Localstack/MinIO.
	ForcePathStyle bool `mapstructure:"force_path_style" yaml:"force_path_style"`
}

// ObjectAPI is the subset of the S3 client used here.
type ObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Store resolves artifact URIs. The S3 client is created on first use.
type Store struct {
	cfg Config

	mu     sync.Mutex
	client ObjectAPI
}

// New creates a Store.
func New(cfg Config) *Store {
	return &Store{cfg: cfg}
}

// NewWithClient creates a Store around an existing S3 client.
func NewWithClient(client ObjectAPI) *Store {
	return &Store{client: client}
}

// Location is a parsed artifact URI.
type Location struct {
	Bucket string
	Key    string
	Path   string
}

// IsS3 reports whether the location is an S3 object.
func (l Location) IsS3() bool { return l.Bucket != "" }

func (l Location) String() string {
	if l.IsS3() {
		return s3Scheme + l.Bucket + "/" + l.Key
	}
	return l.Path
}

// Parse splits uri into an S3 bucket and key, or a local path.
func Parse(uri string) (Location, error) {
	if uri == "" {
		return Location{}, errors.New("artifact location is empty")
	}
	if !strings.HasPrefix(uri, s3Scheme) {
		return Location{Path: uri}, nil
	}
	bucket, key, ok := strings.Cut(strings.TrimPrefix(uri, s3Scheme), "/")
	if !ok || bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return Location{}, fmt.Errorf("invalid s3 uri %q: want s3://bucket/key", uri)
	}
	return Location{Bucket: bucket, Key: key}, nil
}

// Ext returns the lower-cased extension of the artifact name.
func Ext(uri string) string {
	return strings.ToLower(filepath.Ext(uri))
}

func (s *Store) s3Client(ctx context.Context) (ObjectAPI, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}

	var opts []func(*awsconfig.LoadOptions) error
	if s.cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(s.cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if s.cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(s.cfg.Endpoint)
		})
	}
	if s.cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	s.client = s3.NewFromConfig(awsCfg, s3Opts...)
	return s.client, nil
}

// Read returns the artifact's contents.
func (s *Store) Read(ctx context.Context, uri string) ([]byte, error) {
	loc, err := Parse(uri)
	if err != nil {
		return nil, err
	}

	if !loc.IsS3() {
		data, err := os.ReadFile(loc.Path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", loc, ErrNotFound)
		}
		return data, err
	}

	client, err := s.s3Client(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("%s: %w", loc, ErrNotFound)
		}
		return nil, fmt.Errorf("s3 get object: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 read body: %w", err)
	}
	return data, nil
}

// Write stores data at uri, creating parent directories for local paths.
func (s *Store) Write(ctx context.Context, uri string, data []byte) error {
	loc, err := Parse(uri)
	if err != nil {
		return err
	}

	if !loc.IsS3() {
		if dir := filepath.Dir(loc.Path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", dir, err)
			}
		}
		if err := os.WriteFile(loc.Path, data, 0o600); err != nil {
			return fmt.Errorf("failed to write %s: %w", loc.Path, err)
		}
		return nil
	}

	client, err := s.s3Client(ctx)
	if err != nil {
		return err
	}
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("s3 put object: %w", err)
	}
	return nil
}
