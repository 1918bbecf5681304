package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_Allow(t *testing.T) {
	limiter := NewLimiter(2.0, 2) // 2 RPS, burst of 2

	if !limiter.Allow("daily") {
		t.Error("First request should be allowed")
	}
	if !limiter.Allow("daily") {
		t.Error("Second request should be allowed")
	}

	// Burst exhausted
	if limiter.Allow("daily") {
		t.Error("Third request should be blocked")
	}
}

func TestLimiter_FeedsAreIndependent(t *testing.T) {
	limiter := NewLimiter(1.0, 1)

	if !limiter.Allow("quote") {
		t.Error("First request to quote feed should be allowed")
	}
	if !limiter.Allow("sentinel") {
		t.Error("First request to sentinel feed should be allowed")
	}

	if limiter.Allow("quote") {
		t.Error("Second request to quote feed should be blocked")
	}
	if limiter.Allow("sentinel") {
		t.Error("Second request to sentinel feed should be blocked")
	}
}

func TestLimiter_Wait(t *testing.T) {
	limiter := NewLimiter(10.0, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := limiter.Wait(ctx, "derivs"); err != nil {
		t.Errorf("Wait should not error on first request: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Millisecond {
		t.Errorf("First request should be immediate, took %v", elapsed)
	}

	// Second request should wait roughly one token interval (100ms at 10 RPS)
	start = time.Now()
	if err := limiter.Wait(ctx, "derivs"); err != nil {
		t.Errorf("Wait should not error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond || elapsed > 200*time.Millisecond {
		t.Errorf("Second request should wait ~100ms, took %v", elapsed)
	}
}

func TestLimiter_WaitHonorsContextCancellation(t *testing.T) {
	limiter := NewLimiter(0.1, 1) // one token every 10s

	if !limiter.Allow("daily") {
		t.Fatal("burst token should be available")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := limiter.Wait(ctx, "daily"); err == nil {
		t.Error("Wait should fail when context expires before a token is free")
	}
}

func TestLimiter_Stats(t *testing.T) {
	limiter := NewLimiter(5.0, 5)
	limiter.Allow("weekly")

	stats := limiter.Stats()
	feedStats, ok := stats["weekly"]
	if !ok {
		t.Fatal("expected stats for weekly feed")
	}
	if feedStats.RPS != 5.0 {
		t.Errorf("expected RPS 5.0, got %f", feedStats.RPS)
	}
	if feedStats.Burst != 5 {
		t.Errorf("expected burst 5, got %d", feedStats.Burst)
	}
}
