package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quantfold/signalrun/internal/domain"
	"github.com/quantfold/signalrun/internal/net/ratelimit"
)

// ErrDataUnavailable is returned when the mandatory daily price series could
// not be obtained after retries. Every other feed degrades to absent fields.
var ErrDataUnavailable = errors.New("daily price series unavailable")

// Config contains retry, timeout and throttling settings for the builder.
type Config struct {
	MaxRetries     int           `yaml:"max_retries"`     // attempts per feed
	RetryBackoff   time.Duration `yaml:"retry_backoff"`   // fixed pause between attempts
	AttemptTimeout time.Duration `yaml:"attempt_timeout"` // per attempt, not per build
	FeedRPS        float64       `yaml:"feed_rps"`
	FeedBurst      int           `yaml:"feed_burst"`

	DefaultVIXLevel float64 `yaml:"default_vix_level"` // session fallback
}

// DefaultConfig returns production retry/throttle settings.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:      3,
		RetryBackoff:    500 * time.Millisecond,
		AttemptTimeout:  5 * time.Second,
		FeedRPS:         5.0,
		FeedBurst:       5,
		DefaultVIXLevel: 20.0,
	}
}

// Builder assembles point-in-time snapshots from the independent data feeds.
// The five per-symbol fetches run concurrently, each writing to its own
// result slot, and the builder joins them before the deterministic
// derivation pass. Only the daily series is mandatory.
type Builder struct {
	cfg      *Config
	prices   PriceSeriesProvider
	quotes   QuoteProvider
	derivs   DerivativesProvider
	sentinel SentinelProvider
	session  SessionDataProvider

	limiter  *ratelimit.Limiter
	breakers *feedBreakers
	now      func() time.Time
}

// NewBuilder wires a builder over the collaborator interfaces. A nil config
// selects defaults.
func NewBuilder(cfg *Config, prices PriceSeriesProvider, quotes QuoteProvider,
	derivs DerivativesProvider, sentinel SentinelProvider, session SessionDataProvider) *Builder {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Builder{
		cfg:      cfg,
		prices:   prices,
		quotes:   quotes,
		derivs:   derivs,
		sentinel: sentinel,
		session:  session,
		limiter:  ratelimit.NewLimiter(cfg.FeedRPS, cfg.FeedBurst),
		breakers: newFeedBreakers(),
		now:      time.Now,
	}
}

// WithClock replaces the builder clock. Test hook.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// BuildSnapshot gathers all feeds for a symbol and assembles the snapshot.
// Optional feeds that fail after retries leave their fields absent; a missing
// daily series fails the build with ErrDataUnavailable.
func (b *Builder) BuildSnapshot(ctx context.Context, symbol string) (*domain.SignalSnapshot, error) {
	var (
		wg sync.WaitGroup

		daily    *DailySeries
		dailyErr error
		weekly   []domain.OHLCV
		quote    *Quote
		chain    []OptionRow
		signals  *SentinelSignals
	)

	wg.Add(5)

	go func() {
		defer wg.Done()
		out, err := b.fetch(ctx, FeedDaily, func(ctx context.Context) (interface{}, error) {
			return b.prices.GetDailySeries(ctx, symbol)
		})
		if err != nil {
			dailyErr = err
			return
		}
		daily, _ = out.(*DailySeries)
	}()

	go func() {
		defer wg.Done()
		out, err := b.fetch(ctx, FeedWeekly, func(ctx context.Context) (interface{}, error) {
			return b.prices.GetWeeklySeries(ctx, symbol)
		})
		if err != nil {
			log.Warn().Str("symbol", symbol).Err(err).Msg("weekly series unavailable, degrading")
			return
		}
		weekly, _ = out.([]domain.OHLCV)
	}()

	go func() {
		defer wg.Done()
		out, err := b.fetch(ctx, FeedQuote, func(ctx context.Context) (interface{}, error) {
			return b.quotes.GetQuote(ctx, symbol)
		})
		if err != nil {
			log.Warn().Str("symbol", symbol).Err(err).Msg("quote unavailable, degrading")
			return
		}
		quote, _ = out.(*Quote)
	}()

	go func() {
		defer wg.Done()
		out, err := b.fetch(ctx, FeedDerivs, func(ctx context.Context) (interface{}, error) {
			return b.derivs.GetOptionChain(ctx, symbol)
		})
		if err != nil {
			log.Warn().Str("symbol", symbol).Err(err).Msg("option chain unavailable, degrading")
			return
		}
		chain, _ = out.([]OptionRow)
	}()

	go func() {
		defer wg.Done()
		out, err := b.fetch(ctx, FeedSentinel, func(ctx context.Context) (interface{}, error) {
			return b.sentinel.GetSentinelSignals(ctx, symbol)
		})
		if err != nil {
			log.Warn().Str("symbol", symbol).Err(err).Msg("sentinel feed unavailable, degrading")
			return
		}
		signals, _ = out.(*SentinelSignals)
	}()

	wg.Wait()

	if dailyErr != nil {
		return nil, fmt.Errorf("build snapshot for %s: %w: %v", symbol, ErrDataUnavailable, dailyErr)
	}
	if daily == nil || len(daily.Bars) == 0 {
		return nil, fmt.Errorf("build snapshot for %s: %w", symbol, ErrDataUnavailable)
	}

	snap := &domain.SignalSnapshot{
		Symbol:    symbol,
		Timestamp: b.now(),
	}
	mergeDaily(snap, daily)
	mergeQuote(snap, quote)
	mergeChain(snap, chain)
	mergeSentinel(snap, signals)
	deriveFields(snap, daily, weekly, quote)

	log.Debug().Str("symbol", symbol).
		Bool("has_weekly", len(weekly) > 0).
		Bool("has_quote", quote != nil).
		Bool("has_chain", len(chain) > 0).
		Bool("has_sentinel", signals != nil).
		Msg("snapshot built")

	return snap, nil
}

// BuildSessionContext assembles the market-wide context. It never fails:
// any feed error falls back to the safe defaults (NEUTRAL regime, the
// configured volatility-index default, zero breadth).
func (b *Builder) BuildSessionContext(ctx context.Context) *domain.SessionContext {
	sess := &domain.SessionContext{
		Timestamp:            b.now(),
		Regime:               "NEUTRAL",
		VIXLevel:             domain.Float(b.cfg.DefaultVIXLevel),
		AdvanceDeclineRatio:  domain.Float(0),
		InstitutionalNetFlow: domain.Float(0),
	}
	if b.session == nil {
		return sess
	}

	if regime, err := b.session.GetMarketRegime(ctx); err == nil && regime != "" {
		sess.Regime = regime
	} else if err != nil {
		log.Warn().Err(err).Msg("market regime unavailable, using NEUTRAL")
	}

	if level, percentile, err := b.session.GetVolatilityIndex(ctx); err == nil {
		sess.VIXLevel = domain.Float(level)
		sess.VIXPercentile = domain.Float(percentile)
	} else {
		log.Warn().Err(err).Float64("default", b.cfg.DefaultVIXLevel).
			Msg("volatility index unavailable, using default")
	}

	if ad, flow, err := b.session.GetBreadth(ctx); err == nil {
		sess.AdvanceDeclineRatio = domain.Float(ad)
		sess.InstitutionalNetFlow = domain.Float(flow)
	} else {
		log.Warn().Err(err).Msg("breadth unavailable, using zero")
	}

	return sess
}

// fetch runs one feed call with rate limiting, circuit breaking, a
// per-attempt timeout and fixed-backoff retries. Exhausting the retry budget
// returns the last error; it never cancels sibling fetches.
func (b *Builder) fetch(ctx context.Context, feed string, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	var lastErr error

	for attempt := 1; attempt <= b.cfg.MaxRetries; attempt++ {
		if err := b.limiter.Wait(ctx, feed); err != nil {
			return nil, fmt.Errorf("rate limit wait for %s: %w", feed, err)
		}

		out, err := b.breakers.execute(feed, func() (interface{}, error) {
			attemptCtx, cancel := context.WithTimeout(ctx, b.cfg.AttemptTimeout)
			defer cancel()
			return fn(attemptCtx)
		})
		if err == nil {
			return out, nil
		}
		lastErr = err

		if attempt < b.cfg.MaxRetries {
			log.Debug().Str("feed", feed).Int("attempt", attempt).Err(err).
				Msg("feed fetch failed, retrying")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(b.cfg.RetryBackoff):
			}
		}
	}

	return nil, fmt.Errorf("feed %s failed after %d attempts: %w", feed, b.cfg.MaxRetries, lastErr)
}
