// Package progress publishes pipeline checkpoint events over Redis pub/sub so
// pollers and push layers can observe progress without querying Postgres.
package progress

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/storyforge/storyforge-backend/internal/logging"
	"github.com/storyforge/storyforge-backend/internal/pipeline"
)

// Channel is the pub/sub channel progress events are published on.
const Channel = "storyforge:progress"

// Notifier implements pipeline.ProgressNotifier over Redis.
type Notifier struct {
	client *redis.Client
	log    *logging.Logger
}

// NewNotifier builds a Notifier on an existing Redis client.
func NewNotifier(client *redis.Client, log *logging.Logger) *Notifier {
	return &Notifier{client: client, log: log.WithComponent("progress")}
}

// Notify publishes the event. Best effort: a publish failure is logged and
// swallowed so processing is never blocked on observers.
func (n *Notifier) Notify(ctx context.Context, ev pipeline.ProgressEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		n.log.Error().Err(err).Msg("marshal progress event")
		return
	}
	if err := n.client.Publish(ctx, Channel, payload).Err(); err != nil {
		n.log.Warn().Err(err).Str("record_id", ev.RecordID).Msg("publish progress event")
	}
}
