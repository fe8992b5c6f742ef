package events

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisSink publishes each event on the channel "<prefix>:<type>" and keeps
// the latest events in the capped list "<prefix>:recent" for consumers that
// were not subscribed at the time.
type RedisSink struct {
	client    redis.UniversalClient
	prefix    string
	recentMax int64
}

func NewRedisSink(client redis.UniversalClient, prefix string, recentMax int64) *RedisSink {
	if prefix == "" {
		prefix = "events"
	}
	return &RedisSink{client: client, prefix: prefix, recentMax: recentMax}
}

// Channel returns the pub/sub channel for t.
func (s *RedisSink) Channel(t Type) string {
	return fmt.Sprintf("%s:%s", s.prefix, t)
}

// RecentKey is the list holding the newest events first.
func (s *RedisSink) RecentKey() string {
	return s.prefix + ":recent"
}

func (s *RedisSink) Publish(ctx context.Context, e Event) error {
	body, err := e.Marshal()
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", e.Type, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Publish(ctx, s.Channel(e.Type), body)
	if s.recentMax > 0 {
		pipe.LPush(ctx, s.RecentKey(), body)
		pipe.LTrim(ctx, s.RecentKey(), 0, s.recentMax-1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish event %s: %w", e.Type, err)
	}
	return nil
}
