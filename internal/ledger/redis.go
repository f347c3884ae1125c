// Package ledger provides a Redis-backed cooldown ledger, so several
// entrywatch processes watching the same contests alert once between them.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces cooldown keys.
const DefaultPrefix = "entrywatch:cooldown:"

// Redis is an entrywatch.CooldownLedger that keeps one expiring key per
// dedup key. The cooldown is enforced by the key's TTL on the server, so
// claims survive restarts and are shared between processes.
type Redis struct {
	client redis.Cmdable
	prefix string
}

// NewRedis creates a [Redis] ledger. An empty prefix selects [DefaultPrefix].
func NewRedis(client redis.Cmdable, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

// Connect parses a redis:// URL, connects and checks the server answers.
func Connect(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Claim sets the key only if it does not exist (SET NX with a TTL of
// cooldown). A zero cooldown always claims and stores nothing.
func (r *Redis) Claim(ctx context.Context, key string, now time.Time, cooldown time.Duration) (bool, error) {
	if cooldown <= 0 {
		return true, nil
	}
	ok, err := r.client.SetNX(ctx, r.prefix+key, now.UTC().Format(time.RFC3339Nano), cooldown).Result()
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return ok, nil
}

// Forget deletes the key.
func (r *Redis) Forget(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("forget %s: %w", key, err)
	}
	return nil
}
