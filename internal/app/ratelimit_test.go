package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mealplanner/mealplan-service/internal/domain"
)

func TestLocalRateLimiter_BlocksAfterBurst(t *testing.T) {
	limiter := NewLocalRateLimiter(2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, _, err := limiter.Allow(ctx, "mealplan", "user_1")
		if err != nil || !allowed {
			t.Fatalf("request %d: expected allowed, got allowed=%v err=%v", i+1, allowed, err)
		}
	}

	allowed, retryAfter, err := limiter.Allow(ctx, "mealplan", "user_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Fatal("expected third request in the same minute to be blocked")
	}
	if retryAfter <= 0 || retryAfter > 30*time.Second {
		t.Fatalf("expected retry-after within the refill interval, got %s", retryAfter)
	}

	if allowed, _, _ := limiter.Allow(ctx, "mealplan", "user_2"); !allowed {
		t.Fatal("expected other users to keep their own budget")
	}
}

func TestLocalRateLimiter_DisabledAllowsEverything(t *testing.T) {
	limiter := NewLocalRateLimiter(0)
	for i := 0; i < 100; i++ {
		if allowed, _, _ := limiter.Allow(context.Background(), "mealplan", "user_1"); !allowed {
			t.Fatal("expected disabled limiter to allow every request")
		}
	}
}

func TestRedisRateLimiter_FallsBackWhenRedisIsDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	limiter := NewRedisRateLimiter(client, "test:", 1, logger)
	ctx := context.Background()

	if allowed, _, err := limiter.Allow(ctx, "mealplan", "user_1"); err != nil || !allowed {
		t.Fatalf("expected first request to be allowed by fallback, got allowed=%v err=%v", allowed, err)
	}
	if allowed, _, _ := limiter.Allow(ctx, "mealplan", "user_1"); allowed {
		t.Fatal("expected fallback limiter to enforce the same budget")
	}
}

func TestRateLimitedError_IsClientError(t *testing.T) {
	err := error(&RateLimitedError{RetryAfter: 3 * time.Second})
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected error to match ErrRateLimited, got %v", err)
	}
}
