package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/promptdeck/promptdeck/internal/config"
)

type Client struct {
	client *asynq.Client
}

func NewClient(cfg config.RedisConfig) *Client {
	return &Client{
		client: asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
	}
}

func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueueExecutionRun schedules an already-created PENDING execution. No
// retry: a failed execution is terminal and must be resubmitted by the
// caller.
func (c *Client) EnqueueExecutionRun(payload ExecutionRunPayload) error {
	return c.enqueue(TypeExecutionRun, payload, asynq.MaxRetry(0), asynq.Timeout(10*time.Minute))
}

func (c *Client) EnqueueExecutionBatch(payload ExecutionBatchPayload) error {
	return c.enqueue(TypeExecutionBatch, payload, asynq.MaxRetry(0), asynq.Timeout(30*time.Minute))
}

func (c *Client) EnqueueAnalyticsRollup(payload AnalyticsRollupPayload) error {
	return c.enqueue(TypeAnalyticsRollup, payload, asynq.MaxRetry(3), asynq.Timeout(5*time.Minute))
}

func (c *Client) enqueue(taskType string, payload any, opts ...asynq.Option) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(taskType, data)
	if _, err := c.client.Enqueue(task, opts...); err != nil {
		return fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	return nil
}
