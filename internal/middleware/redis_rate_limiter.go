package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// windowCounter increments the hit count of key and keeps it alive for ttl.
type windowCounter interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

type redisCounter struct {
	client *redis.Client
}

func (c redisCounter) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// RedisRateLimiter shares fixed-window counters between replicas through Redis. It allows
// requests plus burst hits per window and fails open when Redis is unreachable.
type RedisRateLimiter struct {
	counter windowCounter
	limit   int64
	window  time.Duration
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// NewRedisRateLimiter builds a limiter on client.
func NewRedisRateLimiter(client *redis.Client, requests int, window time.Duration, burst int, logger *slog.Logger) *RedisRateLimiter {
	return newRedisRateLimiter(redisCounter{client: client}, requests, window, burst, logger)
}

func newRedisRateLimiter(counter windowCounter, requests int, window time.Duration, burst int, logger *slog.Logger) *RedisRateLimiter {
	if requests <= 0 {
		requests = 1
	}
	if window <= 0 {
		window = time.Second
	}
	if burst < 0 {
		burst = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisRateLimiter{
		counter: counter,
		limit:   int64(requests + burst),
		window:  window,
		timeout: 250 * time.Millisecond,
		logger:  logger,
		now:     time.Now,
	}
}

func (l *RedisRateLimiter) Allow(key string) bool {
	if key == "" {
		key = "unknown"
	}

	slot := l.now().UnixNano() / int64(l.window)
	redisKey := fmt.Sprintf("vidtube:ratelimit:%s:%d", key, slot)

	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	hits, err := l.counter.Incr(ctx, redisKey, l.window)
	if err != nil {
		l.logger.Warn("rate limiter unavailable, allowing request", "key", key, "error", err.Error())
		return true
	}
	return hits <= l.limit
}
