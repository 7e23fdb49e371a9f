package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/finverse/finverse/internal/payouts"
	"github.com/finverse/finverse/internal/statement"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskPayoutStatusChanged fans a payout transition out to the entity.
	TaskPayoutStatusChanged = "payout:status_changed"
	// TaskStatementSnapshot persists monthly statements for every entity.
	TaskStatementSnapshot = "statement:snapshot"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// MailJob delivers transactional email. Delivery is logged until an SMTP relay is wired.
type MailJob struct {
	Logger *slog.Logger
}

// Handle processes TaskTypeSendEmail tasks.
func (j *MailJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.To == "" {
		return asynq.SkipRetry
	}
	logger := slog.Default()
	if j != nil && j.Logger != nil {
		logger = j.Logger
	}
	logger.Info("send email", slog.String("to", payload.To), slog.String("subject", payload.Subject))
	return nil
}

// NewPayoutStatusTask constructs a payout notification task.
func NewPayoutStatusTask(event payouts.StatusEvent) (*asynq.Task, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPayoutStatusChanged, data), nil
}

// StatementSnapshotPayload selects the period to snapshot.
type StatementSnapshotPayload struct {
	PeriodToken string `json:"period_token"`
}

// NewStatementSnapshotTask constructs a snapshot task. An empty token means last_month.
func NewStatementSnapshotTask(payload StatementSnapshotPayload) (*asynq.Task, error) {
	if payload.PeriodToken == "" {
		payload.PeriodToken = statement.TokenLastMonth
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStatementSnapshot, data), nil
}
