package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quantfold/signalrun/internal/domain"
)

// DefaultSessionTTL bounds how long a cached session context stays valid.
// Regime and breadth move slowly relative to quotes, so a short shared TTL
// is enough to avoid hammering the session feeds on every analysis.
const DefaultSessionTTL = 60 * time.Second

const sessionKey = "session:context"

// SessionCache stores the shared session context so concurrent analyses of
// different symbols reuse one regime/VIX/breadth fetch.
type SessionCache struct {
	cache Cache
	ttl   time.Duration
}

// NewSessionCache wraps a byte cache with session-context encoding.
// A zero ttl selects DefaultSessionTTL.
func NewSessionCache(cache Cache, ttl time.Duration) *SessionCache {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionCache{cache: cache, ttl: ttl}
}

// Get returns the cached session context, or nil on miss or decode failure.
func (s *SessionCache) Get(ctx context.Context) *domain.SessionContext {
	raw, ok := s.cache.Get(ctx, sessionKey)
	if !ok {
		return nil
	}
	var session domain.SessionContext
	if err := json.Unmarshal(raw, &session); err != nil {
		log.Warn().Err(err).Msg("discarding undecodable cached session context")
		return nil
	}
	return &session
}

// Put stores a session context for the configured TTL. Encode failures are
// logged and dropped; caching is never allowed to fail an analysis.
func (s *SessionCache) Put(ctx context.Context, session *domain.SessionContext) {
	if session == nil {
		return
	}
	raw, err := json.Marshal(session)
	if err != nil {
		log.Warn().Err(err).Msg("failed to encode session context for cache")
		return
	}
	s.cache.Set(ctx, sessionKey, raw, s.ttl)
}
