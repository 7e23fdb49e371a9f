package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/finverse/finverse/internal/entitystore"
	jobmetrics "github.com/finverse/finverse/internal/jobs"
	"github.com/finverse/finverse/internal/statement"
	"github.com/finverse/finverse/internal/statement/export"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// FieldUserRole is the User field holding the platform role.
const FieldUserRole = "app_role"

// StatementSnapshot record fields.
const (
	fieldSnapshotKey    = "snapshot_key"
	fieldSnapshotKind   = "entity_type"
	fieldSnapshotEntity = "entity_id"
	fieldSnapshotToken  = "period_token"
	fieldSnapshotStart  = "period_start"
	fieldSnapshotEnd    = "period_end"
	fieldSnapshotCSV    = "csv"
	fieldSnapshotAt     = "generated_at"
)

// SnapshotStore is the entity client subset used by the snapshot job.
type SnapshotStore interface {
	Filter(ctx context.Context, collection string, match entitystore.Match) ([]entitystore.Record, error)
	Create(ctx context.Context, collection string, data entitystore.Record) (entitystore.Record, error)
}

// StatementGenerator builds statements. statement.Service satisfies it.
type StatementGenerator interface {
	Generate(ctx context.Context, req statement.Request) (*statement.Statement, error)
}

// SnapshotResult summarises one snapshot run.
type SnapshotResult struct {
	Written int
	Skipped int
	Failed  int
}

// StatementSnapshotJob stores a statement per entity for a closed period.
type StatementSnapshotJob struct {
	Store      SnapshotStore
	Statements StatementGenerator
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
	clock      func() time.Time
}

// NewStatementSnapshotJob wires dependencies for the snapshot handler.
func NewStatementSnapshotJob(store SnapshotStore, statements StatementGenerator, logger *slog.Logger, metrics *jobmetrics.Metrics) *StatementSnapshotJob {
	return &StatementSnapshotJob{
		Store:      store,
		Statements: statements,
		Logger:     logger,
		Metrics:    metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// WithClock overrides the clock used to stamp snapshots.
func (j *StatementSnapshotJob) WithClock(clock func() time.Time) {
	if clock != nil {
		j.clock = clock
	}
}

// Handle processes TaskStatementSnapshot tasks.
func (j *StatementSnapshotJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("statement snapshot: handler not configured")
	}
	var payload StatementSnapshotPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	_, err := j.Run(ctx, payload.PeriodToken)
	return err
}

// Run snapshots every statement-bearing entity for token. Existing snapshots are
// left untouched so reruns are idempotent. Individual entity failures are counted
// and reported as a single error after the sweep.
func (j *StatementSnapshotJob) Run(ctx context.Context, token string) (result SnapshotResult, resultErr error) {
	if token == "" {
		token = statement.TokenLastMonth
	}
	tracker := j.metrics().Track(TaskStatementSnapshot)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("period_token", token))
	logger.Info("starting statement snapshot")

	for _, kind := range statement.Kinds() {
		users, err := j.Store.Filter(ctx, entitystore.CollectionUser, entitystore.Match{FieldUserRole: string(kind)})
		if err != nil {
			logger.Error("load entities", slog.String("entity_kind", string(kind)), slog.Any("error", err))
			return result, fmt.Errorf("statement snapshot: list %s: %w", kind, err)
		}
		written := 0
		for _, user := range users {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			ok, err := j.snapshot(ctx, kind, user.ID(), token)
			switch {
			case err != nil:
				result.Failed++
				logger.Error("snapshot entity", slog.String("entity_kind", string(kind)), slog.String("entity_id", user.ID()), slog.Any("error", err))
			case ok:
				written++
			default:
				result.Skipped++
			}
		}
		result.Written += written
		j.metrics().AddSnapshots(string(kind), written)
	}

	logger.Info("statement snapshot completed",
		slog.Int("written", result.Written),
		slog.Int("skipped", result.Skipped),
		slog.Int("failed", result.Failed),
	)
	if result.Failed > 0 {
		return result, fmt.Errorf("statement snapshot: %d entities failed", result.Failed)
	}
	return result, nil
}

func (j *StatementSnapshotJob) snapshot(ctx context.Context, kind statement.EntityKind, id, token string) (bool, error) {
	if id == "" {
		return false, nil
	}
	stmt, err := j.Statements.Generate(ctx, statement.Request{EntityKind: kind, EntityID: id, PeriodToken: token})
	if err != nil {
		return false, err
	}
	key := SnapshotKey(kind, id, stmt.Period)
	existing, err := j.Store.Filter(ctx, entitystore.CollectionStatementSnapshot, entitystore.Match{fieldSnapshotKey: key})
	if err != nil {
		return false, err
	}
	if len(existing) > 0 {
		return false, nil
	}

	var csvBody bytes.Buffer
	if err := export.WriteCSV(&csvBody, stmt); err != nil {
		return false, err
	}
	rec := entitystore.Record{
		fieldSnapshotKey:    key,
		fieldSnapshotKind:   string(kind),
		fieldSnapshotEntity: id,
		fieldSnapshotToken:  stmt.Period.Token,
		fieldSnapshotStart:  stmt.Period.Start.Format(time.RFC3339),
		fieldSnapshotEnd:    stmt.Period.End.Format(time.RFC3339),
		fieldSnapshotCSV:    csvBody.String(),
		fieldSnapshotAt:     j.now().Format(time.RFC3339),
	}
	summary := stmt.Summary
	for field, amount := range map[string]string{
		"gross_revenue":       summary.GrossRevenue.String(),
		"platform_commission": summary.PlatformCommission.String(),
		"net_earnings":        summary.NetEarnings.String(),
		"total_payouts":       summary.TotalPayouts.String(),
		"pending_payouts":     summary.PendingPayouts.String(),
		"available_balance":   summary.AvailableBalance.String(),
	} {
		rec[field] = json.Number(amount)
	}
	if _, err := j.Store.Create(ctx, entitystore.CollectionStatementSnapshot, rec); err != nil {
		return false, err
	}
	return true, nil
}

// SnapshotKey identifies a snapshot as kind:id:start-date.
func SnapshotKey(kind statement.EntityKind, id string, period statement.Period) string {
	return string(kind) + ":" + id + ":" + period.Start.Format("2006-01-02")
}

func (j *StatementSnapshotJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *StatementSnapshotJob) logger() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *StatementSnapshotJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
