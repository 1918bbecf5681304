package snapshot

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// feedBreakers holds one circuit breaker per data feed so a flapping
// derivatives endpoint trips its own breaker without touching the daily feed.
type feedBreakers struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func newFeedBreakers() *feedBreakers {
	return &feedBreakers{breakers: make(map[string]*gobreaker.CircuitBreaker)}
}

func (fb *feedBreakers) get(feed string) *gobreaker.CircuitBreaker {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	if cb, ok := fb.breakers[feed]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        feed,
		MaxRequests: 2,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("feed", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("feed circuit breaker state change")
		},
	})
	fb.breakers[feed] = cb
	return cb
}

// execute runs fn through the feed's breaker.
func (fb *feedBreakers) execute(feed string, fn func() (interface{}, error)) (interface{}, error) {
	return fb.get(feed).Execute(fn)
}
