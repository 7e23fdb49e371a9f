package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/finverse/finverse/internal/entitystore"
	jobmetrics "github.com/finverse/finverse/internal/jobs"
	"github.com/finverse/finverse/internal/payouts"
)

// EmailEnqueuer queues transactional email. Client satisfies it.
type EmailEnqueuer interface {
	EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error)
}

// UserReader resolves the entity behind a payout.
type UserReader interface {
	Get(ctx context.Context, collection, id string) (entitystore.Record, error)
}

// PayoutNotifyJob turns payout transitions into emails for the entity.
type PayoutNotifyJob struct {
	Users   UserReader
	Mail    EmailEnqueuer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewPayoutNotifyJob wires dependencies for the payout notification handler.
func NewPayoutNotifyJob(users UserReader, mail EmailEnqueuer, logger *slog.Logger, metrics *jobmetrics.Metrics) *PayoutNotifyJob {
	return &PayoutNotifyJob{Users: users, Mail: mail, Logger: logger, Metrics: metrics}
}

// Handle processes TaskPayoutStatusChanged tasks.
func (j *PayoutNotifyJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Users == nil || j.Mail == nil {
		return errors.New("payout notify: handler not configured")
	}
	var event payouts.StatusEvent
	if err := json.Unmarshal(t.Payload(), &event); err != nil || event.PayoutID == "" {
		return asynq.SkipRetry
	}

	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskPayoutStatusChanged)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(
		slog.String("payout_id", event.PayoutID),
		slog.String("entity_kind", string(event.EntityKind)),
		slog.String("entity_id", event.EntityID),
	)
	logger.Info("payout status changed", slog.String("from", string(event.From)), slog.String("to", string(event.To)))

	user, err := j.Users.Get(ctx, entitystore.CollectionUser, event.EntityID)
	if err != nil {
		if errors.Is(err, entitystore.ErrNotFound) {
			logger.Warn("payout entity missing, notification dropped")
			return nil
		}
		return fmt.Errorf("payout notify: load entity: %w", err)
	}
	email := strings.TrimSpace(user.String("email"))
	if email == "" {
		logger.Warn("payout entity has no email, notification dropped")
		return nil
	}
	if _, err := j.Mail.EnqueueSendEmail(ctx, PayoutEmail(email, event)); err != nil {
		return fmt.Errorf("payout notify: enqueue email: %w", err)
	}
	return nil
}

// PayoutEmail renders the notification sent for a transition.
func PayoutEmail(to string, event payouts.StatusEvent) SendEmailPayload {
	subject := fmt.Sprintf("Your payout request is %s", event.To)
	var body strings.Builder
	fmt.Fprintf(&body, "Payout %s for %s moved from %s to %s.", event.PayoutID, event.Amount.StringFixed(2), event.From, event.To)
	if event.Reference != "" {
		fmt.Fprintf(&body, " Transaction reference: %s.", event.Reference)
	}
	return SendEmailPayload{To: to, Subject: subject, Body: body.String()}
}
