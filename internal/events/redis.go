// Package events delivers committed-transition notifications over
// Redis pub/sub for the Gateway's SSE forward and audit consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"talenttrack/pipeline-service/internal/pipeline"
)

// Channel carries status-changed events.
const Channel = "EVENT_STATUS_CHANGED"

// RedisSink implements pipeline.EventSink by publishing to a Redis
// channel. Delivery is at-most-once; the coordinator treats failures as
// non-fatal.
type RedisSink struct {
	rdb *redis.Client
}

var _ pipeline.EventSink = (*RedisSink)(nil)

// NewRedisSink returns a sink publishing on Channel.
func NewRedisSink(rdb *redis.Client) *RedisSink {
	return &RedisSink{rdb: rdb}
}

// Publish serializes the event and publishes it.
func (s *RedisSink) Publish(ctx context.Context, ev pipeline.StatusChangedEvent) error {
	payload, err := json.Marshal(struct {
		Type string `json:"type"`
		pipeline.StatusChangedEvent
	}{Type: Channel, StatusChangedEvent: ev})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := s.rdb.Publish(ctx, Channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", Channel, err)
	}
	return nil
}
