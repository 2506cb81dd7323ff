package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Gatekeeper provides the two redis-backed guards the pipeline needs:
// a short mutual-exclusion lease around conversation find-or-create, and a
// seen-before check for provider message ids (re-delivery dedup).
type Gatekeeper interface {
	AcquireLease(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, key string) error
	MarkSeen(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ClearSeen(ctx context.Context, key string) error
}

// RedisGate implements Gatekeeper on a redis client using SETNX semantics.
type RedisGate struct {
	client *redis.Client
}

func NewRedisGate(client *redis.Client) *RedisGate {
	return &RedisGate{client: client}
}

func (g *RedisGate) AcquireLease(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return g.client.SetNX(ctx, key, 1, ttl).Result()
}

func (g *RedisGate) ReleaseLease(ctx context.Context, key string) error {
	return g.client.Del(ctx, key).Err()
}

// MarkSeen returns true the first time a key is marked within its TTL
// window, false on every replay.
func (g *RedisGate) MarkSeen(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return g.client.SetNX(ctx, key, 1, ttl).Result()
}

// ClearSeen drops a mark so a provider retry of the same message id is not
// rejected after the first attempt failed to persist it.
func (g *RedisGate) ClearSeen(ctx context.Context, key string) error {
	return g.client.Del(ctx, key).Err()
}

func leaseKey(channelID uint, externalContactID string) string {
	return fmt.Sprintf("lease:%d:%s", channelID, externalContactID)
}

func dedupKey(channelID uint, externalMessageID string) string {
	return fmt.Sprintf("dedup:%d:%s", channelID, externalMessageID)
}
