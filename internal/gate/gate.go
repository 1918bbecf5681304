package gate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quantfold/signalrun/internal/domain"
	"github.com/quantfold/signalrun/internal/stream"
)

// FeedState is the upstream feed-health classification.
type FeedState string

const (
	FeedUp       FeedState = "UP"
	FeedDegraded FeedState = "DEGRADED"
	FeedDown     FeedState = "DOWN"
)

// HealthProvider is the feed-health/kill-switch collaborator.
type HealthProvider interface {
	GetFeedState(ctx context.Context) FeedState
	IsExecutionGloballyEnabled(ctx context.Context) bool
}

// TickSource exposes the realtime channel state the gate inspects.
// *stream.TickerClient satisfies it.
type TickSource interface {
	LastTick(symbol string) (stream.Tick, bool)
	IsSubscribed(symbol string) bool
}

// Config holds the gate's operational thresholds.
type Config struct {
	Enabled    bool          `yaml:"enabled"`
	DryRun     bool          `yaml:"dry_run"`
	MaxTickAge time.Duration `yaml:"max_tick_age"`
}

// DefaultConfig returns production gate settings.
func DefaultConfig() *Config {
	return &Config{
		Enabled:    true,
		DryRun:     false,
		MaxTickAge: 5 * time.Second,
	}
}

// CheckResult records one veto check's outcome, in evaluation order.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// Result is the gate's verdict. Safe=false always carries a BlockReason.
// DryRun passes the gate but tags the output as non-binding.
type Result struct {
	Safe        bool          `json:"safe"`
	BlockReason string        `json:"block_reason,omitempty"`
	DryRun      bool          `json:"dry_run"`
	Checks      []CheckResult `json:"checks"`
	Timestamp   time.Time     `json:"timestamp"`
}

// SafetyGate is the operational veto layer consulted after a Decision is
// produced. Checks run in fixed order and any failure blocks regardless of
// conviction; statistical validity is the engine's business, not the gate's.
type SafetyGate struct {
	cfg    *Config
	health HealthProvider
	ticks  TickSource

	mu       sync.RWMutex
	override *bool // cached runtime override of the enable switch

	now func() time.Time
}

// New builds a gate. A nil config selects defaults.
func New(cfg *Config, health HealthProvider, ticks TickSource) *SafetyGate {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &SafetyGate{
		cfg:    cfg,
		health: health,
		ticks:  ticks,
		now:    time.Now,
	}
}

// WithClock replaces the gate clock. Test hook.
func (g *SafetyGate) WithClock(now func() time.Time) *SafetyGate {
	g.now = now
	return g
}

// SetRuntimeOverride forces the enable switch on or off at runtime, taking
// precedence over both config and the upstream kill switch until cleared.
func (g *SafetyGate) SetRuntimeOverride(enabled bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.override = &enabled
	log.Info().Bool("enabled", enabled).Msg("execution gate runtime override set")
}

// ClearRuntimeOverride removes a runtime override.
func (g *SafetyGate) ClearRuntimeOverride() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.override = nil
}

// Evaluate runs the veto checks in fixed order for one symbol. All checks
// are evaluated so the result explains every failure, but the first failing
// check supplies the block reason.
func (g *SafetyGate) Evaluate(ctx context.Context, symbol string) Result {
	result := Result{
		Safe:      true,
		DryRun:    g.cfg.DryRun,
		Timestamp: g.now(),
	}

	record := func(name string, passed bool, detail string) {
		result.Checks = append(result.Checks, CheckResult{Name: name, Passed: passed, Detail: detail})
		if !passed {
			result.Safe = false
			if result.BlockReason == "" {
				result.BlockReason = fmt.Sprintf("blocked_by_%s", name)
			}
		}
	}

	// 1. Global enable switch, runtime override first.
	enabled := g.cfg.Enabled
	g.mu.RLock()
	if g.override != nil {
		enabled = *g.override
	}
	g.mu.RUnlock()
	if enabled && g.health != nil {
		enabled = g.health.IsExecutionGloballyEnabled(ctx)
	}
	record("kill_switch", enabled, "")

	// 2. Upstream feed health.
	state := FeedUp
	if g.health != nil {
		state = g.health.GetFeedState(ctx)
	}
	record("feed_health", state == FeedUp, string(state))

	// 3/4. Tick freshness and subscription on the realtime channel. A gate
	// without a tick source cannot vouch for freshness, so both checks fail.
	if g.ticks == nil {
		record("tick_freshness", false, "no tick source attached")
		record("subscription", false, "no tick source attached")
	} else {
		tick, hasTick := g.ticks.LastTick(symbol)
		switch {
		case !hasTick:
			record("tick_freshness", false, "no realtime tick seen")
		case tick.Channel != stream.ChannelRealtime:
			record("tick_freshness", false, fmt.Sprintf("tick from channel %q", tick.Channel))
		default:
			age := g.now().Sub(tick.ReceivedAt)
			record("tick_freshness", age <= g.cfg.MaxTickAge,
				fmt.Sprintf("tick age %s (max %s)", age, g.cfg.MaxTickAge))
		}

		record("subscription", g.ticks.IsSubscribed(symbol), "")
	}

	if !result.Safe {
		log.Info().Str("symbol", symbol).Str("reason", result.BlockReason).
			Msg("execution blocked by safety gate")
	}
	return result
}

// Apply folds a gate result into a freshly-produced decision: execution
// readiness is the AND of the engine's statistical gate and this operational
// one. Called once, before the decision is published.
func Apply(decision *domain.Decision, result Result) {
	if !result.Safe {
		decision.IsExecutionReady = false
		if decision.BlockReason == "" {
			decision.BlockReason = result.BlockReason
		}
	}
	if result.DryRun {
		decision.Warnings = append(decision.Warnings, "dry-run mode: decision is non-binding")
	}
}
