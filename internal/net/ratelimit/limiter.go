package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter provides per-feed rate limiting using a token bucket per feed name.
// The snapshot builder keys it by data feed (daily, weekly, quote, derivs,
// sentinel) so one chatty feed cannot starve the others of request budget.
type Limiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	rps      float64
	burst    int
}

// NewLimiter creates a rate limiter with the specified per-feed RPS and burst.
func NewLimiter(rps float64, burst int) *Limiter {
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rps,
		burst:    burst,
	}
}

func (l *Limiter) getLimiter(feed string) *rate.Limiter {
	l.mu.RLock()
	limiter, exists := l.limiters[feed]
	l.mu.RUnlock()

	if exists {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists := l.limiters[feed]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(rate.Limit(l.rps), l.burst)
	l.limiters[feed] = limiter
	return limiter
}

// Allow returns true if a request for the specified feed is allowed now.
func (l *Limiter) Allow(feed string) bool {
	return l.getLimiter(feed).Allow()
}

// Wait blocks until a request for the feed is allowed or ctx is cancelled.
func (l *Limiter) Wait(ctx context.Context, feed string) error {
	return l.getLimiter(feed).Wait(ctx)
}

// Stats returns current token-bucket state per feed.
func (l *Limiter) Stats() map[string]FeedStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := make(map[string]FeedStats, len(l.limiters))
	now := time.Now()

	for feed, limiter := range l.limiters {
		reservation := limiter.Reserve()
		delay := reservation.Delay()
		reservation.Cancel() // just probing, give the token back

		stats[feed] = FeedStats{
			Feed:            feed,
			RPS:             float64(limiter.Limit()),
			Burst:           limiter.Burst(),
			TokensAvailable: limiter.Tokens(),
			NextAllowedAt:   now.Add(delay),
			Delay:           delay,
		}
	}
	return stats
}

// FeedStats represents token-bucket state for a single feed.
type FeedStats struct {
	Feed            string        `json:"feed"`
	RPS             float64       `json:"rps"`
	Burst           int           `json:"burst"`
	TokensAvailable float64       `json:"tokens_available"`
	NextAllowedAt   time.Time     `json:"next_allowed_at"`
	Delay           time.Duration `json:"delay"`
}

// IsThrottled returns true if the feed is currently being delayed.
func (s *FeedStats) IsThrottled() bool {
	return s.Delay > 0
}
