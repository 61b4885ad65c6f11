package redis

import (
	"context"
	"fmt"
	"time"
)

// RateLimiter throttles the public callback endpoint; browsers double-fire
// return requests and gateways retry webhooks, but a flood from one origin is
// neither.
type RateLimiter struct {
	client RedisClient
}

func NewRateLimiter(client RedisClient) *RateLimiter {
	return &RateLimiter{client: client}
}

func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	count, err := r.client.Incr(ctx, key)
	if err != nil {
		return false, err
	}

	if count == 1 {
		err = r.client.Expire(ctx, key, window)
		if err != nil {
			return false, err
		}
	}

	return count <= int64(limit), nil
}

func CallbackKey(remoteAddr string) string {
	return fmt.Sprintf("rate_limit:callback:%s", remoteAddr)
}
