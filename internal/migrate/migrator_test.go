package migrate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/neudinger/acctmigrate/internal/directory"
	"github.com/neudinger/acctmigrate/internal/directory/memdir"
	"github.com/neudinger/acctmigrate/internal/domain"
	"github.com/neudinger/acctmigrate/internal/metrics"
	"github.com/neudinger/acctmigrate/internal/transform"
)

// MockDirectory is a mock implementation of directory.Directory.
type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) ListAccountsPage(ctx context.Context, pageSize int, cursor string) (directory.Page, error) {
	args := m.Called(ctx, pageSize, cursor)
	return args.Get(0).(directory.Page), args.Error(1)
}

func (m *MockDirectory) GetAccountByEmail(ctx context.Context, email string) (domain.AccountRecord, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(domain.AccountRecord), args.Error(1)
}

func (m *MockDirectory) CreateAccount(ctx context.Context, req domain.CreateRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockDirectory) GeneratePasswordResetLink(ctx context.Context, email string) (string, error) {
	args := m.Called(ctx, email)
	return args.String(0), args.Error(1)
}

func testConfig() Config {
	return Config{RequestsPerSecond: 0, SendResetLinks: true}
}

func newMigrator(dest directory.Directory, opts ...Option) *Migrator {
	return New(dest, transform.New(transform.DefaultPolicy()), testConfig(), opts...)
}

func twoRecords() []domain.AccountRecord {
	return []domain.AccountRecord{
		{ExternalID: "src-a", Email: "a@x.com", DisplayName: "A"},
		{ExternalID: "src-b", Email: "b@x.com", DisplayName: "B"},
	}
}

func summarize(outcomes []domain.MigrationOutcome) map[domain.Status]int {
	counts := map[domain.Status]int{}
	for _, o := range outcomes {
		counts[o.Status]++
	}
	return counts
}

func TestImportAll_CreatesThenIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	dest := memdir.New()
	m := newMigrator(dest)
	records := twoRecords()

	first := m.ImportAll(context.Background(), records)
	require.Len(t, first, 2)
	assert.Equal(t, map[domain.Status]int{domain.StatusCreated: 2}, summarize(first))
	for i, o := range first {
		assert.Equal(t, records[i].Email, o.Email)
		assert.Equal(t, records[i].ExternalID, o.SourceID)
		assert.NotEmpty(t, o.DestinationID)
		assert.NotEqual(t, o.SourceID, o.DestinationID)
		assert.True(t, o.ResetLinkIssued)
		assert.NotEmpty(t, o.ResetLink)
	}

	second := m.ImportAll(context.Background(), records)
	require.Len(t, second, 2)
	assert.Equal(t, map[domain.Status]int{domain.StatusAlreadyExists: 2}, summarize(second))
	assert.Equal(t, first[0].DestinationID, second[0].DestinationID)
	for _, o := range second {
		assert.Empty(t, o.Detail, "an existing account is not an error")
	}
	assert.Equal(t, 2, dest.Len())
}

func TestImportAll_CreateFailureIsIsolated(t *testing.T) {
	dest := memdir.New(memdir.WithFaults(memdir.Faults{
		Create: func(req domain.CreateRequest) error {
			if req.Email == "b@x.com" {
				return errors.New("quota exceeded")
			}
			return nil
		},
	}))

	outcomes := newMigrator(dest).ImportAll(context.Background(), twoRecords())
	require.Len(t, outcomes, 2)
	assert.Equal(t, domain.StatusCreated, outcomes[0].Status)
	assert.Equal(t, domain.StatusFailed, outcomes[1].Status)
	assert.Contains(t, outcomes[1].Detail, "quota exceeded")
	assert.Empty(t, outcomes[1].DestinationID)
}

func TestImportAll_LookupFailureIsFailed(t *testing.T) {
	dest := memdir.New(memdir.WithFaults(memdir.Faults{
		Lookup: func(email string) error { return errors.New("permission denied") },
	}))

	outcomes := newMigrator(dest).ImportAll(context.Background(), twoRecords())
	assert.Equal(t, map[domain.Status]int{domain.StatusFailed: 2}, summarize(outcomes))
	assert.Equal(t, 0, dest.Len())
}

func TestImportAll_ForcesAccountsEnabled(t *testing.T) {
	dest := memdir.New()
	records := []domain.AccountRecord{{ExternalID: "s", Email: "a@x.com", Disabled: true}}

	outcomes := newMigrator(dest).ImportAll(context.Background(), records)
	require.Equal(t, domain.StatusCreated, outcomes[0].Status)

	acct, err := dest.GetAccountByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.False(t, acct.Disabled)
}

func TestImportAll_FiltersPhotoURLs(t *testing.T) {
	dest := memdir.New()
	records := []domain.AccountRecord{
		{ExternalID: "1", Email: "local@x.com", PhotoURL: "/local/path.png"},
		{ExternalID: "2", Email: "remote@x.com", PhotoURL: "https://example.com/p.png"},
	}
	newMigrator(dest).ImportAll(context.Background(), records)

	local, err := dest.GetAccountByEmail(context.Background(), "local@x.com")
	require.NoError(t, err)
	assert.Empty(t, local.PhotoURL)

	remote, err := dest.GetAccountByEmail(context.Background(), "remote@x.com")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/p.png", remote.PhotoURL)
}

func TestImportAll_DuplicateEmailInRun(t *testing.T) {
	dest := memdir.New()
	records := []domain.AccountRecord{
		{ExternalID: "1", Email: "a@x.com"},
		{ExternalID: "2", Email: " A@X.COM"},
	}

	outcomes := newMigrator(dest).ImportAll(context.Background(), records)
	require.Len(t, outcomes, 2)
	assert.Equal(t, domain.StatusCreated, outcomes[0].Status)
	assert.Equal(t, domain.StatusAlreadyExists, outcomes[1].Status)
	assert.Equal(t, outcomes[0].DestinationID, outcomes[1].DestinationID)
	assert.Contains(t, outcomes[1].Detail, "duplicate of record 1")
	assert.Equal(t, 1, dest.Len())
}

func TestImportAll_ResetLinkFailureKeepsCreated(t *testing.T) {
	dest := memdir.New(memdir.WithFaults(memdir.Faults{
		ResetLink: func(string) error { return errors.New("smtp down") },
	}))
	mt := metrics.New()

	outcomes := newMigrator(dest, WithMetrics(mt)).ImportAll(context.Background(), twoRecords()[:1])
	require.Len(t, outcomes, 1)
	assert.Equal(t, domain.StatusCreated, outcomes[0].Status)
	assert.False(t, outcomes[0].ResetLinkIssued)
	assert.Contains(t, outcomes[0].Detail, "smtp down")
	assert.Equal(t, 1.0, testutil.ToFloat64(mt.ResetLinksTotal.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(mt.RecordsTotal.WithLabelValues("CREATED")))
}

func TestImportAll_ResetLinksDisabled(t *testing.T) {
	dest := new(MockDirectory)
	ctx := context.Background()
	dest.On("GetAccountByEmail", mock.Anything, "a@x.com").Return(domain.AccountRecord{}, directory.ErrNotFound)
	dest.On("CreateAccount", mock.Anything, mock.AnythingOfType("domain.CreateRequest")).Return("dest-1", nil)

	m := New(dest, transform.New(transform.DefaultPolicy()), Config{SendResetLinks: false})
	outcomes := m.ImportAll(ctx, twoRecords()[:1])

	assert.Equal(t, domain.StatusCreated, outcomes[0].Status)
	assert.False(t, outcomes[0].ResetLinkIssued)
	dest.AssertNotCalled(t, "GeneratePasswordResetLink", mock.Anything, mock.Anything)
	dest.AssertExpectations(t)
}

func TestImportAll_CreateRaceIsAlreadyExists(t *testing.T) {
	dest := new(MockDirectory)
	ctx := context.Background()
	dest.On("GetAccountByEmail", mock.Anything, "a@x.com").Return(domain.AccountRecord{}, directory.ErrNotFound).Once()
	dest.On("CreateAccount", mock.Anything, mock.MatchedBy(func(req domain.CreateRequest) bool {
		return req.Email == "a@x.com" && req.Password != "" && !req.Disabled
	})).Return("", directory.ErrAlreadyExists)
	dest.On("GetAccountByEmail", mock.Anything, "a@x.com").Return(domain.AccountRecord{ExternalID: "dest-9", Email: "a@x.com"}, nil).Once()

	outcomes := newMigrator(dest).ImportAll(ctx, twoRecords()[:1])
	require.Len(t, outcomes, 1)
	assert.Equal(t, domain.StatusAlreadyExists, outcomes[0].Status)
	assert.Equal(t, "dest-9", outcomes[0].DestinationID)
	assert.Equal(t, "account created concurrently", outcomes[0].Detail)
	dest.AssertExpectations(t)
}

func TestImportAll_InvalidEmailIsSkippedAsFailed(t *testing.T) {
	dest := new(MockDirectory)
	records := []domain.AccountRecord{{ExternalID: "1", Email: "not-an-email"}}

	outcomes := newMigrator(dest).ImportAll(context.Background(), records)
	require.Len(t, outcomes, 1)
	assert.Equal(t, domain.StatusFailed, outcomes[0].Status)
	assert.Contains(t, outcomes[0].Detail, "skipped: ")
	dest.AssertNotCalled(t, "GetAccountByEmail", mock.Anything, mock.Anything)
}

func TestImportAll_CancellationKeepsCompleteness(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	records := []domain.AccountRecord{
		{ExternalID: "1", Email: "a@x.com"},
		{ExternalID: "2", Email: "b@x.com"},
		{ExternalID: "3", Email: "c@x.com"},
	}
	observer := func(index, total int, o domain.MigrationOutcome) {
		if index == 0 {
			cancel()
		}
	}

	outcomes := newMigrator(memdir.New(), WithObserver(observer)).ImportAll(ctx, records)
	require.Len(t, outcomes, 3)
	assert.Equal(t, domain.StatusCreated, outcomes[0].Status)
	for _, o := range outcomes[1:] {
		assert.Equal(t, domain.StatusFailed, o.Status)
		assert.Contains(t, o.Detail, context.Canceled.Error())
	}
	assert.Equal(t, "c@x.com", outcomes[2].Email)
}

func TestImportAll_ObserverSeesEveryRecord(t *testing.T) {
	var seen []int
	observer := func(index, total int, o domain.MigrationOutcome) {
		assert.Equal(t, 2, total)
		seen = append(seen, index)
	}
	newMigrator(memdir.New(), WithObserver(observer)).ImportAll(context.Background(), twoRecords())
	assert.Equal(t, []int{0, 1}, seen)
}

func TestImportAll_Pacing(t *testing.T) {
	defer goleak.VerifyNone(t)

	records := []domain.AccountRecord{
		{ExternalID: "1", Email: "a@x.com"},
		{ExternalID: "2", Email: "b@x.com"},
		{ExternalID: "3", Email: "c@x.com"},
	}
	m := New(memdir.New(), transform.New(transform.DefaultPolicy()), Config{RequestsPerSecond: 50})

	start := time.Now()
	outcomes := m.ImportAll(context.Background(), records)
	elapsed := time.Since(start)

	require.Len(t, outcomes, 3)
	// Two gaps of 20ms; allow for timer slack.
	assert.GreaterOrEqual(t, elapsed, 30*time.Millisecond)
}

func TestImportAll_EmptyInput(t *testing.T) {
	outcomes := newMigrator(memdir.New()).ImportAll(context.Background(), nil)
	assert.Empty(t, outcomes)
}
