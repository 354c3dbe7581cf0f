package artifact

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockObjectAPI struct {
	mock.Mock
}

func (m *MockObjectAPI) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*s3.GetObjectOutput)
	return out, args.Error(1)
}

func (m *MockObjectAPI) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*s3.PutObjectOutput)
	return out, args.Error(1)
}

func TestParse(t *testing.T) {
	loc, err := Parse("s3://runs/2024/users.json")
	require.NoError(t, err)
	assert.True(t, loc.IsS3())
	assert.Equal(t, "runs", loc.Bucket)
	assert.Equal(t, "2024/users.json", loc.Key)
	assert.Equal(t, "s3://runs/2024/users.json", loc.String())

	loc, err = Parse("out/users.json")
	require.NoError(t, err)
	assert.False(t, loc.IsS3())
	assert.Equal(t, "out/users.json", loc.Path)

	for _, bad := range []string{"", "s3://", "s3://bucket", "s3://bucket/", "s3:///key"} {
		_, err := Parse(bad)
		assert.Error(t, err, bad)
	}
}

func TestExt(t *testing.T) {
	assert.Equal(t, ".yaml", Ext("s3://b/users.YAML"))
	assert.Equal(t, ".json", Ext("users.json"))
	assert.Equal(t, "", Ext("users"))
}

func TestStore_LocalRoundTrip(t *testing.T) {
	s := New(Config{})
	path := filepath.Join(t.TempDir(), "nested", "users.json")
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, path, []byte(`[]`)))
	data, err := s.Read(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestStore_LocalMissing(t *testing.T) {
	s := New(Config{})
	_, err := s.Read(context.Background(), filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_S3Write(t *testing.T) {
	api := new(MockObjectAPI)
	s := NewWithClient(api)
	ctx := context.Background()

	api.On("PutObject", ctx, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		body, _ := io.ReadAll(in.Body)
		return *in.Bucket == "runs" && *in.Key == "report.csv" && string(body) == "status\n"
	})).Return(&s3.PutObjectOutput{}, nil)

	require.NoError(t, s.Write(ctx, "s3://runs/report.csv", []byte("status\n")))
	api.AssertExpectations(t)
}

func TestStore_S3Read(t *testing.T) {
	api := new(MockObjectAPI)
	s := NewWithClient(api)
	ctx := context.Background()

	api.On("GetObject", ctx, mock.MatchedBy(func(in *s3.GetObjectInput) bool {
		return *in.Key == "users.json"
	})).Return(&s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader([]byte(`[{}]`)))}, nil)
	api.On("GetObject", ctx, mock.MatchedBy(func(in *s3.GetObjectInput) bool {
		return *in.Key == "missing.json"
	})).Return(nil, &types.NoSuchKey{})

	data, err := s.Read(ctx, "s3://runs/users.json")
	require.NoError(t, err)
	assert.Equal(t, `[{}]`, string(data))

	_, err = s.Read(ctx, "s3://runs/missing.json")
	assert.ErrorIs(t, err, ErrNotFound)
}
