package cache

import (
	"context"
	"encoding/json"
	"time"

	"agora/internal/models"
	"agora/internal/observability"

	"github.com/redis/go-redis/v9"
)

// RedisSink drops cached entries and announces the change on InvalidationChannel.
type RedisSink struct {
	client  *redis.Client
	channel string
	now     func() time.Time
}

// NewRedisSink returns a sink publishing on InvalidationChannel. With a nil
// client Invalidate is a no-op.
func NewRedisSink(client *redis.Client) *RedisSink {
	return &RedisSink{client: client, channel: InvalidationChannel, now: time.Now}
}

// Invalidate deletes keys and publishes one event listing them, in a single pipeline.
func (s *RedisSink) Invalidate(ctx context.Context, keys []string) (err error) {
	if s.client == nil || len(keys) == 0 {
		return nil
	}
	ctx, span := observability.StartRedisSpan(ctx, "invalidate")
	defer func() { observability.EndSpan(span, err) }()

	payload, err := json.Marshal(models.InvalidationEvent{Keys: keys, At: s.now().UTC()})
	if err != nil {
		return err
	}
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		pipe.Publish(ctx, s.channel, payload)
		return nil
	})
	return err
}
