package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finverse/finverse/internal/entitystore"
	jobmetrics "github.com/finverse/finverse/internal/jobs"
	"github.com/finverse/finverse/internal/payouts"
	"github.com/finverse/finverse/internal/statement"
)

var fixedNow = time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedStore(t *testing.T) *entitystore.Memory {
	t.Helper()
	ctx := context.Background()
	store := entitystore.NewMemory()
	for _, rec := range []entitystore.Record{
		{"id": "f1", "app_role": "finfluencer", "full_name": "Asha Rao", "email": "asha@example.com"},
		{"id": "v1", "app_role": "vendor", "business_name": "Ledger Ads"},
		{"id": "u1", "app_role": "user"},
	} {
		_, err := store.Create(ctx, entitystore.CollectionUser, rec)
		require.NoError(t, err)
	}
	_, err := store.Create(ctx, entitystore.CollectionRevenueTransaction, entitystore.Record{
		"finfluencer_id": "f1", "gross_amount": 1000, "platform_commission": 100, "creator_payout": 900,
		"created_date": "2024-02-10T00:00:00Z",
	})
	require.NoError(t, err)
	return store
}

func newSnapshotJob(t *testing.T, store *entitystore.Memory, gen StatementGenerator) *StatementSnapshotJob {
	t.Helper()
	if gen == nil {
		svc := statement.NewService(store, nil, discardLogger(), statement.Config{})
		svc.WithNow(func() time.Time { return fixedNow })
		gen = svc
	}
	job := NewStatementSnapshotJob(store, gen, discardLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))
	job.WithClock(func() time.Time { return fixedNow })
	return job
}

func TestStatementSnapshotWritesOncePerPeriod(t *testing.T) {
	store := seedStore(t)
	job := newSnapshotJob(t, store, nil)
	ctx := context.Background()

	result, err := job.Run(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, SnapshotResult{Written: 2}, result)

	snaps, err := store.Filter(ctx, entitystore.CollectionStatementSnapshot, entitystore.Match{"snapshot_key": "finfluencer:f1:2024-02-01"})
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	snap := snaps[0]
	assert.Equal(t, statement.TokenLastMonth, snap.String("period_token"))
	assert.True(t, snap.Decimal("net_earnings").Equal(decimal.NewFromInt(900)))
	assert.True(t, snap.Decimal("available_balance").Equal(decimal.NewFromInt(900)))
	assert.Contains(t, snap.String("csv"), "SUMMARY")

	again, err := job.Run(ctx, statement.TokenLastMonth)
	require.NoError(t, err)
	assert.Equal(t, SnapshotResult{Skipped: 2}, again)

	all, err := store.List(ctx, entitystore.CollectionStatementSnapshot)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

type failingGenerator struct{}

func (failingGenerator) Generate(context.Context, statement.Request) (*statement.Statement, error) {
	return nil, statement.ErrStatementUnavailable
}

func TestStatementSnapshotReportsFailures(t *testing.T) {
	store := seedStore(t)
	job := newSnapshotJob(t, store, failingGenerator{})

	result, err := job.Run(context.Background(), statement.TokenLastMonth)
	require.Error(t, err)
	assert.Equal(t, 2, result.Failed)
	assert.Zero(t, result.Written)
}

func TestStatementSnapshotHandleRejectsBadPayload(t *testing.T) {
	job := newSnapshotJob(t, seedStore(t), nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskStatementSnapshot, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	task, err := NewStatementSnapshotTask(StatementSnapshotPayload{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"period_token":"last_month"}`, string(task.Payload()))
	require.NoError(t, job.Handle(context.Background(), task))
}

type recordingMail struct {
	sent []SendEmailPayload
	err  error
}

func (m *recordingMail) EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.sent = append(m.sent, payload)
	return &asynq.TaskInfo{}, nil
}

func payoutTask(t *testing.T, event payouts.StatusEvent) *asynq.Task {
	t.Helper()
	task, err := NewPayoutStatusTask(event)
	require.NoError(t, err)
	return task
}

func TestPayoutNotifyEnqueuesEmail(t *testing.T) {
	mail := &recordingMail{}
	job := NewPayoutNotifyJob(seedStore(t), mail, discardLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))
	event := payouts.StatusEvent{
		PayoutID: "p1", EntityKind: statement.KindFinfluencer, EntityID: "f1",
		From: statement.PayoutApproved, To: statement.PayoutProcessed,
		Amount: decimal.NewFromInt(1500), Reference: "UTR-1",
	}

	require.NoError(t, job.Handle(context.Background(), payoutTask(t, event)))
	require.Len(t, mail.sent, 1)
	assert.Equal(t, "asha@example.com", mail.sent[0].To)
	assert.Equal(t, "Your payout request is processed", mail.sent[0].Subject)
	assert.Contains(t, mail.sent[0].Body, "1500.00")
	assert.Contains(t, mail.sent[0].Body, "UTR-1")
}

func TestPayoutNotifyDropsUnreachableEntities(t *testing.T) {
	mail := &recordingMail{}
	job := NewPayoutNotifyJob(seedStore(t), mail, discardLogger(), nil)
	ctx := context.Background()

	require.NoError(t, job.Handle(ctx, payoutTask(t, payouts.StatusEvent{PayoutID: "p1", EntityID: "v1"})), "no email on record")
	require.NoError(t, job.Handle(ctx, payoutTask(t, payouts.StatusEvent{PayoutID: "p2", EntityID: "ghost"})))
	assert.Empty(t, mail.sent)

	assert.ErrorIs(t, job.Handle(ctx, asynq.NewTask(TaskPayoutStatusChanged, []byte(`{}`))), asynq.SkipRetry)

	mail.err = errors.New("redis down")
	assert.Error(t, job.Handle(ctx, payoutTask(t, payouts.StatusEvent{PayoutID: "p3", EntityID: "f1"})))
}

func TestMailJobValidatesPayload(t *testing.T) {
	job := &MailJob{Logger: discardLogger()}
	assert.ErrorIs(t, job.Handle(context.Background(), asynq.NewTask(TaskTypeSendEmail, []byte("nope"))), asynq.SkipRetry)

	task, err := NewSendEmailTask(SendEmailPayload{To: "a@example.com", Subject: "hi"})
	require.NoError(t, err)
	assert.NoError(t, job.Handle(context.Background(), task))
}

func TestClientEnqueuesOnDefaultQueue(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()

	var notifier payouts.Notifier = client
	require.NoError(t, notifier.PayoutStatusChanged(ctx, payouts.StatusEvent{PayoutID: "p1", EntityID: "f1"}))
	_, err = client.EnqueueSnapshot(ctx, StatementSnapshotPayload{PeriodToken: statement.TokenLastMonth})
	require.NoError(t, err)

	pending, err := mr.List("asynq:{default}:pending")
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestMonthlySnapshotRegistration(t *testing.T) {
	reg, err := MonthlySnapshot()
	require.NoError(t, err)
	assert.Equal(t, "0 3 1 * *", reg.Spec)
	assert.Equal(t, TaskStatementSnapshot, reg.Task.Type())
}

func TestHealthWithoutInspector(t *testing.T) {
	router := chi.NewRouter()
	NewHandler(nil, discardLogger()).MountRoutes(router)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(strings.NewReader(rr.Body.String())).Decode(&body))
	assert.Equal(t, "default", body["queue"])
	assert.EqualValues(t, 0, body["pending"])
}

func TestNewWorkerRejectsIncompleteHandler(t *testing.T) {
	_, err := NewWorker(WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: miniredis.RunT(t).Addr()},
		Logger:    discardLogger(),
		Handlers:  []TaskHandler{{Type: TaskStatementSnapshot}},
	})
	assert.Error(t, err)
}
