// Package worker plugs the processing pipeline into the asynq worker loop.
package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/storyforge/storyforge-backend/internal/logging"
	"github.com/storyforge/storyforge-backend/internal/pipeline"
	"github.com/storyforge/storyforge-backend/internal/queue"
)

// Processor handles queued processing tasks.
type Processor struct {
	pipeline *pipeline.Pipeline
	log      *logging.Logger
}

// NewProcessor constructs a worker processor.
func NewProcessor(p *pipeline.Pipeline, log *logging.Logger) *Processor {
	return &Processor{pipeline: p, log: log.WithComponent("worker")}
}

// Handler registers the task handlers.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.ProcessProjectTask, p.handleProcess)
	return mux
}

// handleProcess runs the pipeline for one record. Transient failures are
// returned as-is so asynq retries with backoff; everything else wraps
// asynq.SkipRetry because re-running cannot change the outcome.
func (p *Processor) handleProcess(ctx context.Context, task *asynq.Task) error {
	var payload queue.ProcessPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}

	outcome, err := p.pipeline.Process(ctx, payload.RecordID, payload.LocalPath)
	if err != nil {
		if pipeline.IsTransient(err) {
			p.log.Warn().Err(err).Str("record_id", payload.RecordID).Msg("transient processing failure, will retry")
			return err
		}
		p.log.Error().Err(err).Str("record_id", payload.RecordID).Msg("permanent processing failure")
		return fmt.Errorf("process %s: %v: %w", payload.RecordID, err, asynq.SkipRetry)
	}

	p.log.Info().
		Str("record_id", payload.RecordID).
		Int("words", outcome.Counts.WordCount).
		Msg("record processed")
	return nil
}
