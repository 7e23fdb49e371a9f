package statement

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finverse/finverse/internal/entitystore"
	"github.com/finverse/finverse/internal/platform/cache"
)

var fixedNow = time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)

type flakyStore struct {
	*entitystore.Memory
	failing map[string]bool
	panics  bool
}

func (f *flakyStore) Filter(ctx context.Context, collection string, match entitystore.Match) ([]entitystore.Record, error) {
	if f.panics {
		panic("boom")
	}
	if f.failing[collection] {
		return nil, errors.New("upstream unavailable")
	}
	return f.Memory.Filter(ctx, collection, match)
}

func (f *flakyStore) List(ctx context.Context, collection string) ([]entitystore.Record, error) {
	if f.failing[collection] {
		return nil, errors.New("upstream unavailable")
	}
	return f.Memory.List(ctx, collection)
}

type recordingMetrics struct {
	mu     sync.Mutex
	failed []string
	built  []string
}

func (m *recordingMetrics) FetchFailed(collection string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed = append(m.failed, collection)
}

func (m *recordingMetrics) StatementBuilt(kind string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.built = append(m.built, kind)
}

func seed(t *testing.T, store *entitystore.Memory, collection string, records ...entitystore.Record) {
	t.Helper()
	for _, rec := range records {
		_, err := store.Create(context.Background(), collection, rec)
		require.NoError(t, err)
	}
}

func seedFinfluencer(t *testing.T, store *entitystore.Memory) {
	t.Helper()
	seed(t, store, entitystore.CollectionUser, entitystore.Record{"id": "f1", "full_name": "Asha Rao"})
	seed(t, store, entitystore.CollectionCourse, entitystore.Record{"id": "c1", "title": "Options 101"})
	seed(t, store, entitystore.CollectionRevenueTransaction,
		entitystore.Record{"finfluencer_id": "f1", "course_id": "c1", "gross_amount": 1000, "platform_commission": 100, "creator_payout": 900, "created_date": "2024-03-02T09:00:00Z"},
		entitystore.Record{"finfluencer_id": "f1", "course_id": "c1", "gross_amount": 2000, "platform_commission": 200, "creator_payout": 1800, "created_date": "2024-03-10T09:00:00Z"},
		entitystore.Record{"finfluencer_id": "f1", "course_id": "c1", "gross_amount": 500, "platform_commission": 50, "creator_payout": 450, "created_date": "2024-03-05T09:00:00Z"},
		entitystore.Record{"finfluencer_id": "f1", "course_id": "c1", "gross_amount": 777, "platform_commission": 77, "creator_payout": 700, "created_date": "2024-02-20T09:00:00Z"},
		entitystore.Record{"finfluencer_id": "other", "course_id": "c1", "gross_amount": 9999, "created_date": "2024-03-03T09:00:00Z"},
	)
	seed(t, store, entitystore.CollectionPayoutRequest,
		entitystore.Record{"entity_id": "f1", "entity_type": "finfluencer", "requested_amount": 1000, "status": "processed", "created_date": "2023-11-01T00:00:00Z"},
		entitystore.Record{"entity_id": "f1", "entity_type": "finfluencer", "requested_amount": 500, "status": "pending", "created_date": "2024-03-12T00:00:00Z"},
	)
}

func newTestService(t *testing.T, store Store, metrics Instrumentation) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(store, cache.NewCache(client, "statement", time.Minute), logger, Config{Metrics: metrics})
	svc.WithNow(func() time.Time { return fixedNow })
	return svc
}

func TestGenerateFinfluencerStatement(t *testing.T) {
	store := entitystore.NewMemory()
	seedFinfluencer(t, store)
	metrics := &recordingMetrics{}
	svc := newTestService(t, store, metrics)

	stmt, err := svc.Generate(context.Background(), Request{EntityKind: "Finfluencer", EntityID: "f1", PeriodToken: TokenCurrentMonth})
	require.NoError(t, err)

	assert.Equal(t, "Asha Rao", stmt.Entity.Name)
	assert.Equal(t, "March 2024", stmt.Period.Label)
	require.Len(t, stmt.Earnings, 3)
	assert.Equal(t, "Course: Options 101", stmt.Earnings[0].Description)
	assert.True(t, stmt.Earnings[0].GrossAmount.Equal(dec("2000")), "newest first")

	assert.True(t, stmt.Summary.GrossRevenue.Equal(dec("3500")))
	assert.True(t, stmt.Summary.PlatformCommission.Equal(dec("350")))
	assert.True(t, stmt.Summary.NetEarnings.Equal(dec("3150")))
	assert.True(t, stmt.Summary.TotalPayouts.Equal(dec("1000")))
	assert.True(t, stmt.Summary.PendingPayouts.Equal(dec("500")))
	assert.True(t, stmt.Summary.AvailableBalance.Equal(dec("1650")))
	require.Len(t, stmt.Payouts, 2)
	assert.Equal(t, PayoutPending, stmt.Payouts[0].Status)
	assert.Equal(t, fixedNow, stmt.GeneratedAt)
	assert.Equal(t, []string{"finfluencer"}, metrics.built)
}

func TestGenerateResolvesTitlesWhenRedisDown(t *testing.T) {
	store := entitystore.NewMemory()
	seedFinfluencer(t, store)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(store, cache.NewCache(client, "statement", time.Minute).WithLogger(logger), logger, Config{})
	svc.WithNow(func() time.Time { return fixedNow })
	mr.Close()

	stmt, err := svc.Generate(context.Background(), Request{EntityKind: KindFinfluencer, EntityID: "f1", PeriodToken: TokenCurrentMonth})
	require.NoError(t, err)
	require.NotEmpty(t, stmt.Earnings)
	assert.Equal(t, "Course: Options 101", stmt.Earnings[0].Description)
}

func TestGenerateEmptyEntity(t *testing.T) {
	svc := newTestService(t, entitystore.NewMemory(), nil)

	stmt, err := svc.Generate(context.Background(), Request{EntityKind: KindAdvisor, EntityID: "nobody"})
	require.NoError(t, err)
	assert.Equal(t, UnknownLabel, stmt.Entity.Name)
	assert.Empty(t, stmt.Earnings)
	assert.NotNil(t, stmt.Earnings)
	assert.Empty(t, stmt.Payouts)
	for _, line := range stmt.Summary.Lines() {
		assert.True(t, line.Amount.IsZero(), line.Label)
	}
}

func TestGenerateDegradesFailedSources(t *testing.T) {
	mem := entitystore.NewMemory()
	seedFinfluencer(t, mem)
	seed(t, mem, entitystore.CollectionEventCommissionTracking,
		entitystore.Record{"organizer_id": "f1", "event_id": "e1", "gross_amount": 300, "platform_commission": 30, "organizer_payout": 270, "created_date": "2024-03-08T00:00:00Z"},
	)
	store := &flakyStore{Memory: mem, failing: map[string]bool{
		entitystore.CollectionRevenueTransaction: true,
		entitystore.CollectionEvent:              true,
	}}
	metrics := &recordingMetrics{}
	svc := newTestService(t, store, metrics)

	stmt, err := svc.Generate(context.Background(), Request{EntityKind: KindFinfluencer, EntityID: "f1"})
	require.NoError(t, err)
	require.Len(t, stmt.Earnings, 1)
	assert.Equal(t, "Event: Unknown", stmt.Earnings[0].Description)
	assert.True(t, stmt.Summary.NetEarnings.Equal(dec("270")))
	assert.ElementsMatch(t, []string{entitystore.CollectionRevenueTransaction, entitystore.CollectionEvent}, metrics.failed)
}

func TestGenerateVendorStatement(t *testing.T) {
	store := entitystore.NewMemory()
	seed(t, store, entitystore.CollectionUser, entitystore.Record{"id": "v1", "full_name": "Jo", "business_name": "Acme Ads"})
	seed(t, store, entitystore.CollectionCampaignBilling,
		entitystore.Record{"vendor_id": "v1", "amount": "120.50", "billing_model": "cpc", "created_date": "2024-03-01T00:00:00Z"},
	)
	svc := newTestService(t, store, nil)

	stmt, err := svc.Generate(context.Background(), Request{EntityKind: KindVendor, EntityID: "v1"})
	require.NoError(t, err)
	assert.Equal(t, "Acme Ads", stmt.Entity.Name)
	require.Len(t, stmt.Earnings, 1)
	assert.Equal(t, "Ad Spend (CPC)", stmt.Earnings[0].Description)
	assert.True(t, stmt.Summary.NetEarnings.Equal(dec("120.5")))
}

func TestGenerateCachesTitles(t *testing.T) {
	store := entitystore.NewMemory()
	seedFinfluencer(t, store)
	svc := newTestService(t, store, nil)
	ctx := context.Background()

	_, err := svc.Generate(ctx, Request{EntityKind: KindFinfluencer, EntityID: "f1"})
	require.NoError(t, err)

	_, err = store.Update(ctx, entitystore.CollectionCourse, "c1", entitystore.Record{"title": "Renamed"})
	require.NoError(t, err)

	stmt, err := svc.Generate(ctx, Request{EntityKind: KindFinfluencer, EntityID: "f1"})
	require.NoError(t, err)
	assert.Equal(t, "Course: Options 101", stmt.Earnings[0].Description)

	require.NoError(t, svc.cache.Bump(ctx))
	stmt, err = svc.Generate(ctx, Request{EntityKind: KindFinfluencer, EntityID: "f1"})
	require.NoError(t, err)
	assert.Equal(t, "Course: Renamed", stmt.Earnings[0].Description)
}

func TestGenerateRejectsInvalidRequest(t *testing.T) {
	svc := newTestService(t, entitystore.NewMemory(), nil)

	_, err := svc.Generate(context.Background(), Request{EntityKind: "admin", EntityID: "x"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.Generate(context.Background(), Request{EntityKind: KindAdvisor, EntityID: "  "})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestGenerateRecoversFromPanics(t *testing.T) {
	store := &flakyStore{Memory: entitystore.NewMemory(), panics: true}
	svc := newTestService(t, store, nil)

	stmt, err := svc.Generate(context.Background(), Request{EntityKind: KindAdvisor, EntityID: "a1"})
	assert.Nil(t, stmt)
	assert.ErrorIs(t, err, ErrStatementUnavailable)
}
