package notifications

import (
	"context"
	"encoding/json"
	"log/slog"
	"runtime/debug"

	"agora/internal/cache"
	"agora/internal/models"
	"agora/internal/observability"

	"github.com/redis/go-redis/v9"
)

// Subscriber listens on the Redis invalidation channel.
type Subscriber struct {
	rdb     *redis.Client
	channel string
}

// NewSubscriber creates a Subscriber on cache.InvalidationChannel.
func NewSubscriber(rdb *redis.Client) *Subscriber {
	return &Subscriber{rdb: rdb, channel: cache.InvalidationChannel}
}

// Start subscribes and calls onEvent for each decoded event until ctx is done.
// It returns once the subscription is confirmed. With no Redis client it is a no-op.
func (s *Subscriber) Start(ctx context.Context, onEvent func(models.InvalidationEvent)) error {
	if s.rdb == nil {
		return nil
	}
	sub := s.rdb.Subscribe(ctx, s.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return err
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				s.handle(msg.Payload, onEvent)
			}
		}
	}()

	return nil
}

func (s *Subscriber) handle(payload string, onEvent func(models.InvalidationEvent)) {
	defer func() {
		if r := recover(); r != nil {
			observability.Logger.Error("panic in invalidation subscriber",
				slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
		}
	}()

	var event models.InvalidationEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		observability.Logger.Warn("malformed invalidation event", slog.String("error", err.Error()))
		return
	}
	onEvent(event)
}
