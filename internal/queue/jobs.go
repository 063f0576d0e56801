// Package queue defines the asynq tasks connecting the API to the worker.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// ProcessProjectTask is scheduled each time a document lands in storage
	// or a reprocess is requested.
	ProcessProjectTask = "project:process"

	// maxRetries bounds retry attempts for transient failures; permanent
	// failures skip retrying entirely.
	maxRetries = 3
)

// ProcessPayload tells the worker which record to run the pipeline for.
// LocalPath is set only when the content is still on the API host's disk.
type ProcessPayload struct {
	RecordID  string `json:"record_id"`
	ObjectKey string `json:"object_key"`
	LocalPath string `json:"local_path,omitempty"`
}

// EnqueueProcess enqueues a processing job for one record.
func EnqueueProcess(ctx context.Context, client *asynq.Client, payload ProcessPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(ProcessProjectTask, data)
	if _, err := client.EnqueueContext(ctx, task, asynq.MaxRetry(maxRetries)); err != nil {
		return fmt.Errorf("enqueue process task: %w", err)
	}
	return nil
}

// Client adapts *asynq.Client to the enqueuer interface the API consumes.
type Client struct {
	client *asynq.Client
}

// NewClient wraps an asynq client.
func NewClient(client *asynq.Client) *Client {
	return &Client{client: client}
}

// EnqueueProcess schedules a processing job.
func (c *Client) EnqueueProcess(ctx context.Context, payload ProcessPayload) error {
	return EnqueueProcess(ctx, c.client, payload)
}
