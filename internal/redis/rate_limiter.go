package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// slidingWindow trims the window, then records the request only when it is
// under the limit, so rejected requests do not extend a client's lockout.
// KEYS[1] window key; ARGV: now ms, window ms, limit, member.
var slidingWindow = goredis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], 0, tonumber(ARGV[1]) - tonumber(ARGV[2]))
local count = redis.call('ZCARD', KEYS[1])
if count >= tonumber(ARGV[3]) then
	return 0
end
redis.call('ZADD', KEYS[1], ARGV[1], ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return 1
`)

// RateLimiter is a sliding-window limiter over a Redis sorted set keyed by
// client.
type RateLimiter struct {
	client      *goredis.Client
	maxRequests int
	window      time.Duration
}

func NewRateLimiter(client *goredis.Client, maxRequests, windowSeconds int) *RateLimiter {
	return &RateLimiter{
		client:      client,
		maxRequests: maxRequests,
		window:      time.Duration(windowSeconds) * time.Second,
	}
}

func (r *RateLimiter) Allow(ctx context.Context, client string) (bool, error) {
	now := time.Now().UnixMilli()
	allowed, err := slidingWindow.Run(ctx, r.client,
		[]string{rateLimitKey(client)},
		now, r.window.Milliseconds(), r.maxRequests, uuid.NewString(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("rate limiter script: %w", err)
	}
	return allowed == 1, nil
}

func rateLimitKey(client string) string {
	return "fleet:ratelimit:" + client
}
