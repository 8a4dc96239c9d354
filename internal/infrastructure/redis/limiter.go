// Package redis backs the issuance limiter with a shared Redis so every API
// instance counts against the same window.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/guestlist-api/internal/pkg/id"
	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "guestlist:ratelimit:"

// slidingWindow trims hits older than the window, then records this hit if
// the remaining count is under the limit. Returns 1 when allowed.
var slidingWindow = goredis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count < limit then
	redis.call('ZADD', key, now, member)
	redis.call('PEXPIRE', key, window)
	return 1
end
return 0
`)

// WindowLimiter allows limit hits per key in any rolling window.
type WindowLimiter struct {
	client goredis.Scripter
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewClient parses a redis:// URL and checks connectivity.
func NewClient(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	c := goredis.NewClient(opts)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.Ping(pctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return c, nil
}

func NewWindowLimiter(client goredis.Scripter, limit int, window time.Duration) *WindowLimiter {
	return &WindowLimiter{client: client, limit: limit, window: window, now: time.Now}
}

func (l *WindowLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := l.now().UnixMilli()
	res, err := slidingWindow.Run(ctx, l.client, []string{keyPrefix + key},
		now, l.window.Milliseconds(), l.limit, id.New()).Int()
	if err != nil {
		return false, fmt.Errorf("sliding window %s: %w", key, err)
	}
	return res == 1, nil
}
