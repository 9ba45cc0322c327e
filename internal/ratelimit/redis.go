package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"dmcaguard/internal/types"
)

// incrScript performs the increment and window TTL management in a single
// atomic server-side step. INCR followed by a separate PEXPIRE would leave a
// counter without a TTL if the process died between the two commands.
var incrScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {count, ttl}
`)

// keyPrefix namespaces rate-limit keys in a shared Redis instance.
const keyPrefix = "dmcaguard:rl:"

// RedisStore is a Redis-backed Store. The per-key TTL gives window expiry for
// free, and the Lua script makes check-and-increment atomic across every
// instance of the service, which the in-memory store cannot provide.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore creates a Store backed by the given Redis client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Increment implements Store.
func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration) (Window, error) {
	res, err := incrScript.Run(ctx, s.client, []string{keyPrefix + key}, window.Milliseconds()).Slice()
	if err != nil {
		return Window{}, types.NewAppError(types.ErrCodeUpstreamRedis, "rate limit increment failed", err)
	}
	if len(res) != 2 {
		return Window{}, types.NewAppError(types.ErrCodeUpstreamRedis,
			fmt.Sprintf("unexpected script reply length %d", len(res)), nil)
	}

	count, ok := res[0].(int64)
	if !ok {
		return Window{}, types.NewAppError(types.ErrCodeUpstreamRedis, "unexpected count reply type", nil)
	}
	ttlMs, ok := res[1].(int64)
	if !ok {
		return Window{}, types.NewAppError(types.ErrCodeUpstreamRedis, "unexpected ttl reply type", nil)
	}
	if ttlMs < 0 {
		// PTTL returns -1 for keys without expiry. Should not happen given
		// the script, but fall back to the full window rather than a
		// nonsense reset time.
		ttlMs = window.Milliseconds()
	}

	return Window{
		Count:   int(count),
		ResetAt: time.Now().Add(time.Duration(ttlMs) * time.Millisecond),
	}, nil
}
