package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "trace:ratelimit:"

// The window starts with the first hit; PTTL gives its remaining length.
var incrScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return {count, redis.call('PTTL', KEYS[1])}
`)

// Redis counts requests with expiring keys.
type Redis struct {
	client redis.Scripter
}

func NewRedis(client redis.Scripter) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Incr(ctx context.Context, key string, now time.Time, window time.Duration) (int, time.Time, error) {
	res, err := incrScript.Run(ctx, r.client, []string{redisKeyPrefix + key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("increment rate limit counter: %w", err)
	}
	if len(res) != 2 {
		return 0, time.Time{}, fmt.Errorf("increment rate limit counter: unexpected reply %v", res)
	}

	ttl := time.Duration(res[1]) * time.Millisecond
	if ttl < 0 {
		ttl = window
	}
	return int(res[0]), now.Add(ttl), nil
}
