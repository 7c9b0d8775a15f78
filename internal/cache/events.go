package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisEventLog deduplicates webhook deliveries by provider event id.
type RedisEventLog struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisEventLog keeps event ids for ttl. Stripe retries deliveries for up
// to three days, so the ttl should cover at least that window.
func NewRedisEventLog(client redis.UniversalClient, ttl time.Duration) *RedisEventLog {
	return &RedisEventLog{client: client, ttl: ttl}
}

func (l *RedisEventLog) MarkProcessed(ctx context.Context, eventID string) (bool, error) {
	ok, err := l.client.SetNX(ctx, eventKey(eventID), time.Now().UTC().Format(time.RFC3339), l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}
	return ok, nil
}

func (l *RedisEventLog) Forget(ctx context.Context, eventID string) error {
	if err := l.client.Del(ctx, eventKey(eventID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func eventKey(eventID string) string {
	return "webhook:event:" + eventID
}
