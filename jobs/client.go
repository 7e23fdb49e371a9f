package jobs

import (
	"context"

	"github.com/hibiken/asynq"

	"github.com/finverse/finverse/internal/payouts"
)

// payoutNotifyRetries bounds redelivery of payout notifications.
const payoutNotifyRetries = 5

// Client enqueues Finverse tasks.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq-backed client.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	return &Client{client: asynq.NewClient(redisOpts)}, nil
}

func (c *Client) enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	return c.client.EnqueueContext(ctx, task, append([]asynq.Option{asynq.Queue(QueueDefault)}, opts...)...)
}

// EnqueueSendEmail enqueues an outbound email.
func (c *Client) EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error) {
	task, err := NewSendEmailTask(payload)
	if err != nil {
		return nil, err
	}
	return c.enqueue(ctx, task)
}

// EnqueueSnapshot enqueues an on-demand statement snapshot.
func (c *Client) EnqueueSnapshot(ctx context.Context, payload StatementSnapshotPayload) (*asynq.TaskInfo, error) {
	task, err := NewStatementSnapshotTask(payload)
	if err != nil {
		return nil, err
	}
	return c.enqueue(ctx, task)
}

// PayoutStatusChanged implements payouts.Notifier.
func (c *Client) PayoutStatusChanged(ctx context.Context, event payouts.StatusEvent) error {
	task, err := NewPayoutStatusTask(event)
	if err != nil {
		return err
	}
	_, err = c.enqueue(ctx, task, asynq.MaxRetry(payoutNotifyRetries))
	return err
}

// Close releases the Redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}
