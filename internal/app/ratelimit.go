package app

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/mealplanner/mealplan-service/internal/domain"
)

// RateLimiter decides whether subject may make another request in scope.
type RateLimiter interface {
	Allow(ctx context.Context, scope, subject string) (allowed bool, retryAfter time.Duration, err error)
}

// RateLimitedError is returned when a caller exceeded its request budget.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s (retry after %s)", domain.ErrRateLimited.Error(), e.RetryAfter)
}

func (e *RateLimitedError) Unwrap() error { return domain.ErrRateLimited }

// LocalRateLimiter keeps one token bucket per subject in process memory.
// Idle buckets expire from the cache.
type LocalRateLimiter struct {
	buckets *cache.Cache
	limit   rate.Limit
	burst   int
}

// NewLocalRateLimiter allows perMinute requests per subject with a burst of the same size.
func NewLocalRateLimiter(perMinute int) *LocalRateLimiter {
	if perMinute <= 0 {
		return &LocalRateLimiter{}
	}
	return &LocalRateLimiter{
		buckets: cache.New(10*time.Minute, 5*time.Minute),
		limit:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   perMinute,
	}
}

func (l *LocalRateLimiter) Allow(_ context.Context, scope, subject string) (bool, time.Duration, error) {
	if l == nil || l.buckets == nil {
		return true, 0, nil
	}

	key := scope + ":" + subject
	var limiter *rate.Limiter
	if cached, ok := l.buckets.Get(key); ok {
		limiter = cached.(*rate.Limiter)
	} else {
		limiter = rate.NewLimiter(l.limit, l.burst)
		if err := l.buckets.Add(key, limiter, cache.DefaultExpiration); err != nil {
			// Another request created the bucket first.
			if cached, ok := l.buckets.Get(key); ok {
				limiter = cached.(*rate.Limiter)
			}
		}
	}
	l.buckets.SetDefault(key, limiter)

	reservation := limiter.Reserve()
	if delay := reservation.Delay(); delay > 0 {
		reservation.Cancel()
		return false, delay, nil
	}
	return true, 0, nil
}

var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RedisRateLimiter implements a distributed fixed-window limiter shared by
// every replica. When Redis is unreachable it degrades to the local limiter.
type RedisRateLimiter struct {
	client   redis.UniversalClient
	prefix   string
	limit    int
	window   time.Duration
	fallback *LocalRateLimiter
	logger   *slog.Logger
}

// NewRedisRateLimiter allows perMinute requests per subject per minute.
func NewRedisRateLimiter(client redis.UniversalClient, prefix string, perMinute int, logger *slog.Logger) *RedisRateLimiter {
	trimmedPrefix := strings.TrimSpace(prefix)
	if trimmedPrefix == "" {
		trimmedPrefix = "mealplan:rate_limit"
	}
	trimmedPrefix = strings.TrimSuffix(trimmedPrefix, ":")

	return &RedisRateLimiter{
		client:   client,
		prefix:   trimmedPrefix,
		limit:    perMinute,
		window:   time.Minute,
		fallback: NewLocalRateLimiter(perMinute),
		logger:   logger,
	}
}

func (r *RedisRateLimiter) Allow(ctx context.Context, scope, subject string) (bool, time.Duration, error) {
	if r == nil || r.limit <= 0 {
		return true, 0, nil
	}

	normalizedScope := strings.TrimSpace(scope)
	normalizedSubject := strings.TrimSpace(subject)
	if normalizedScope == "" || normalizedSubject == "" {
		return true, 0, nil
	}
	if r.client == nil {
		return r.fallback.Allow(ctx, normalizedScope, normalizedSubject)
	}

	count, retryAfter, err := r.consume(ctx, normalizedScope, normalizedSubject)
	if err != nil {
		r.logger.Warn("redis rate limiter unavailable, using local limiter", "scope", normalizedScope, "error", err)
		return r.fallback.Allow(ctx, normalizedScope, normalizedSubject)
	}
	if count > r.limit {
		return false, retryAfter, nil
	}
	return true, 0, nil
}

func (r *RedisRateLimiter) consume(ctx context.Context, scope, subject string) (int, time.Duration, error) {
	windowMs := r.window.Milliseconds()
	if windowMs < 1000 {
		windowMs = 1000
	}

	key := fmt.Sprintf("%s:%s:%s", r.prefix, scope, subject)
	rawResult, err := fixedWindowScript.Run(ctx, r.client, []string{key}, windowMs).Result()
	if err != nil {
		return 0, 0, err
	}

	values, ok := rawResult.([]interface{})
	if !ok || len(values) != 2 {
		return 0, 0, fmt.Errorf("unexpected redis limiter response shape: %T", rawResult)
	}
	currentCount, ok := values[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected redis limiter count type: %T", values[0])
	}
	ttlMs, ok := values[1].(int64)
	if !ok {
		return int(currentCount), 0, fmt.Errorf("unexpected redis limiter ttl type: %T", values[1])
	}
	if ttlMs < 0 {
		ttlMs = windowMs
	}

	retryAfter := int(math.Ceil(float64(ttlMs) / 1000.0))
	if retryAfter < 1 {
		retryAfter = 1
	}
	return int(currentCount), time.Duration(retryAfter) * time.Second, nil
}
