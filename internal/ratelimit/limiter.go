// Package ratelimit enforces a fixed-window request budget per client key,
// backed by Redis so the count is shared across worker processes. The window
// is fixed rather than sliding: budgets are generous and exactness under
// burst is not a correctness requirement here.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config sets the budget for one limiter instance. The login endpoint gets
// its own, tighter instance independent of the general API budget.
type Config struct {
	Requests int
	Window   time.Duration
	// Prefix namespaces counter keys, e.g. "rl:api" vs "rl:login".
	Prefix string
}

// Decision reports the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter counts requests per key in Redis.
type Limiter struct {
	client redis.Cmdable
	cfg    Config
}

// The increment and the expiry must be one atomic round trip; a read-then-
// write sequence would let two concurrent requests both slip through at the
// budget boundary.
var allowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl}
`)

// New constructs a Limiter.
func New(client redis.Cmdable, cfg Config) (*Limiter, error) {
	if client == nil {
		return nil, errors.New("ratelimit: redis client is required")
	}
	if cfg.Requests <= 0 || cfg.Window <= 0 {
		return nil, errors.New("ratelimit: budget and window must be positive")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "rl"
	}
	return &Limiter{client: client, cfg: cfg}, nil
}

// Allow increments the counter for key and reports whether the request is
// within budget for the current window.
func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	result, err := allowScript.Run(ctx, l.client, []string{l.cfg.Prefix + ":" + key}, l.cfg.Window.Milliseconds()).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: incr: %w", err)
	}
	values, ok := result.([]any)
	if !ok || len(values) < 2 {
		return Decision{}, errors.New("ratelimit: unexpected script reply")
	}
	current, ok := values[0].(int64)
	if !ok {
		return Decision{}, errors.New("ratelimit: unexpected counter reply")
	}
	ttlMillis, _ := values[1].(int64)
	retryAfter := l.cfg.Window
	if ttlMillis > 0 {
		retryAfter = time.Duration(ttlMillis) * time.Millisecond
	}
	remaining := l.cfg.Requests - int(current)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:    current <= int64(l.cfg.Requests),
		Remaining:  remaining,
		RetryAfter: retryAfter,
	}, nil
}

// Window returns the configured window duration.
func (l *Limiter) Window() time.Duration {
	return l.cfg.Window
}
