package engine

import (
	"encoding/json"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/signalrun/internal/domain"
	"github.com/quantfold/signalrun/internal/pillars"
)

// stubPillar returns a fixed contribution.
type stubPillar struct {
	name  string
	score float64
	bias  domain.Bias
}

func (s stubPillar) Name() string { return s.name }
func (s stubPillar) Score(_ *domain.SignalSnapshot, _ *domain.SessionContext) (float64, domain.Bias, map[string]float64) {
	return s.score, s.bias, map[string]float64{"stub": s.score}
}

// panicPillar simulates a pillar blowing up mid-analysis.
type panicPillar struct{ name string }

func (p panicPillar) Name() string { return p.name }
func (p panicPillar) Score(_ *domain.SignalSnapshot, _ *domain.SessionContext) (float64, domain.Bias, map[string]float64) {
	panic("pillar exploded")
}

func fixedClock() func() time.Time {
	ts := time.Date(2026, 3, 2, 10, 35, 0, 0, time.UTC)
	return func() time.Time { return ts }
}

func richSnapshot() *domain.SignalSnapshot {
	return &domain.SignalSnapshot{
		Symbol:       "TCS",
		Timestamp:    time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC),
		LastPrice:    domain.Float(120),
		PrevClose:    domain.Float(118),
		SMA50:        domain.Float(110),
		SMA200:       domain.Float(100),
		WeeklySMA20:  domain.Float(108),
		RSI14:        domain.Float(62),
		MACD:         domain.Float(1.2),
		MACDSignal:   domain.Float(0.7),
		MACDHist:     domain.Float(0.5),
		ATRPct:       domain.Float(2.0),
		BollWidthPct: domain.Float(6.0),
		SpreadPct:    domain.Float(0.04),
		BidQty:       domain.Float(5000),
		AskQty:       domain.Float(5000),
		OIChangePct:  domain.Float(4.0),
		DayVolume:    domain.Float(1_000_000),
	}
}

func bullishSession() *domain.SessionContext {
	return &domain.SessionContext{
		Timestamp: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		Regime:    "BULLISH",
		VIXLevel:  domain.Float(14),
	}
}

func TestDefaultConfig_WeightsSumToOne(t *testing.T) {
	cfg := DefaultConfig()
	sum := 0.0
	for _, w := range cfg.Weights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	require.NoError(t, cfg.Validate(pillars.Registry()))
}

func TestConfig_RejectsBadWeights(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights[pillars.NameTrend] = 0.50
	assert.Error(t, cfg.Validate(pillars.Registry()))

	cfg = DefaultConfig()
	delete(cfg.Weights, pillars.NameRegime)
	cfg.Weights[pillars.NameTrend] = 0.50
	assert.Error(t, cfg.Validate(pillars.Registry()))
}

func TestAnalyze_EmptyRegistryReturnsInvalid(t *testing.T) {
	eng, err := New(nil, map[string]pillars.Pillar{})
	require.NoError(t, err)

	decision := eng.Analyze(richSnapshot(), bullishSession())
	assert.Equal(t, domain.BiasInvalid, decision.Bias)
	assert.Equal(t, 0.0, decision.Conviction)
	assert.Equal(t, "empty_pillar_registry", decision.BlockReason)
	assert.False(t, decision.IsAnalysisValid)
	assert.False(t, decision.IsExecutionReady)
}

func TestAnalyze_AllPillarsFailing(t *testing.T) {
	registry := make(map[string]pillars.Pillar)
	for name := range pillars.Registry() {
		registry[name] = panicPillar{name: name}
	}
	eng, err := New(nil, registry)
	require.NoError(t, err)

	decision := eng.Analyze(richSnapshot(), bullishSession())
	assert.Equal(t, 50.0, decision.Conviction)
	assert.Len(t, decision.Quality.FailedPillars, 6)
	assert.Equal(t, 6, decision.Quality.PlaceholderPillars)
	assert.Equal(t, 0, decision.Quality.ActivePillars)
	assert.False(t, decision.IsExecutionReady)
	assert.True(t, decision.IsAnalysisValid) // 50 >= 20
	assert.Equal(t, domain.BiasNeutral, decision.Bias)
}

func TestAnalyze_SinglePillarFailureIsIsolated(t *testing.T) {
	registry := pillars.Registry()
	registry[pillars.NameSentiment] = panicPillar{name: pillars.NameSentiment}
	eng, err := New(nil, registry)
	require.NoError(t, err)

	decision := eng.Analyze(richSnapshot(), bullishSession())
	require.Len(t, decision.Quality.FailedPillars, 1)
	assert.Equal(t, pillars.NameSentiment, decision.Quality.FailedPillars[0])
	assert.False(t, decision.IsExecutionReady, "failed pillar must block execution readiness")
	assert.True(t, decision.IsAnalysisValid)
	assert.Len(t, decision.Contributions, 6)
}

func TestAnalyze_ConvictionWithinBounds(t *testing.T) {
	eng, err := New(nil, pillars.Registry())
	require.NoError(t, err)

	decision := eng.Analyze(richSnapshot(), bullishSession())
	assert.GreaterOrEqual(t, decision.Conviction, 0.0)
	assert.LessOrEqual(t, decision.Conviction, 100.0)
	for _, c := range decision.Contributions {
		assert.GreaterOrEqual(t, c.Score, 0.0)
		assert.LessOrEqual(t, c.Score, 100.0)
	}
}

func TestAnalyze_PlaceholderCapApplies(t *testing.T) {
	registry := map[string]pillars.Pillar{
		pillars.NameTrend:      stubPillar{pillars.NameTrend, 95, domain.BiasBullish},
		pillars.NameMomentum:   stubPillar{pillars.NameMomentum, 95, domain.BiasBullish},
		pillars.NameVolatility: panicPillar{pillars.NameVolatility},
		pillars.NameLiquidity:  panicPillar{pillars.NameLiquidity},
		pillars.NameSentiment:  panicPillar{pillars.NameSentiment},
		pillars.NameRegime:     stubPillar{pillars.NameRegime, 95, domain.BiasBullish},
	}
	eng, err := New(nil, registry)
	require.NoError(t, err)

	decision := eng.Analyze(richSnapshot(), bullishSession())
	// Raw weighted sum would be 95*0.7 + 50*0.3 = 81.5; three placeholders cap it.
	assert.Equal(t, 60.0, decision.Conviction)
	assert.False(t, decision.IsExecutionReady)
	assert.NotEmpty(t, decision.Warnings)
}

func TestAnalyze_BiasRequiresConvictionAndMajority(t *testing.T) {
	mk := func(score float64, bias domain.Bias) map[string]pillars.Pillar {
		registry := make(map[string]pillars.Pillar)
		for name := range pillars.Registry() {
			registry[name] = stubPillar{name, score, bias}
		}
		return registry
	}

	eng, err := New(nil, mk(80, domain.BiasBullish))
	require.NoError(t, err)
	decision := eng.Analyze(richSnapshot(), bullishSession())
	assert.Equal(t, domain.BiasBullish, decision.Bias)

	eng, err = New(nil, mk(20, domain.BiasBearish))
	require.NoError(t, err)
	decision = eng.Analyze(richSnapshot(), bullishSession())
	assert.Equal(t, domain.BiasBearish, decision.Bias)

	// High conviction but no bullish majority stays neutral.
	eng, err = New(nil, mk(80, domain.BiasNeutral))
	require.NoError(t, err)
	decision = eng.Analyze(richSnapshot(), bullishSession())
	assert.Equal(t, domain.BiasNeutral, decision.Bias)
}

func TestAnalyze_LowConvictionIsInvalid(t *testing.T) {
	registry := make(map[string]pillars.Pillar)
	for name := range pillars.Registry() {
		registry[name] = stubPillar{name, 10, domain.BiasBearish}
	}
	eng, err := New(nil, registry)
	require.NoError(t, err)

	decision := eng.Analyze(richSnapshot(), bullishSession())
	assert.False(t, decision.IsAnalysisValid)
	assert.False(t, decision.IsExecutionReady)
	assert.Equal(t, 10.0, decision.Conviction)
}

func TestAnalyze_Idempotent(t *testing.T) {
	eng, err := New(nil, pillars.Registry())
	require.NoError(t, err)
	eng.WithClock(fixedClock())

	snap := richSnapshot()
	sess := bullishSession()

	first := eng.Analyze(snap, sess)
	second := eng.Analyze(snap, sess)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestAnalyze_NarrativeListsTopThree(t *testing.T) {
	registry := map[string]pillars.Pillar{
		pillars.NameTrend:      stubPillar{pillars.NameTrend, 90, domain.BiasBullish},
		pillars.NameMomentum:   stubPillar{pillars.NameMomentum, 80, domain.BiasBullish},
		pillars.NameVolatility: stubPillar{pillars.NameVolatility, 70, domain.BiasNeutral},
		pillars.NameLiquidity:  stubPillar{pillars.NameLiquidity, 10, domain.BiasBearish},
		pillars.NameSentiment:  stubPillar{pillars.NameSentiment, 20, domain.BiasNeutral},
		pillars.NameRegime:     stubPillar{pillars.NameRegime, 30, domain.BiasNeutral},
	}
	eng, err := New(nil, registry)
	require.NoError(t, err)

	decision := eng.Analyze(richSnapshot(), bullishSession())
	assert.Contains(t, decision.Narrative, "trend 90.0")
	assert.Contains(t, decision.Narrative, "momentum 80.0")
	assert.Contains(t, decision.Narrative, "volatility 70.0")
	assert.NotContains(t, decision.Narrative, "liquidity")
}

func TestAnalyze_QualityFreezesWeights(t *testing.T) {
	cfg := DefaultConfig()
	eng, err := New(cfg, pillars.Registry())
	require.NoError(t, err)

	decision := eng.Analyze(richSnapshot(), bullishSession())
	assert.Equal(t, cfg.Weights, decision.Quality.PillarWeights)

	// Mutating the frozen copy must not touch engine state.
	decision.Quality.PillarWeights[pillars.NameTrend] = 0.99
	fresh := eng.Analyze(richSnapshot(), bullishSession())
	assert.InDelta(t, 0.30, fresh.Quality.PillarWeights[pillars.NameTrend], 1e-9)
}

func TestAnalyze_ConvictionIsWeightedSum(t *testing.T) {
	scores := map[string]float64{
		pillars.NameTrend:      80,
		pillars.NameMomentum:   70,
		pillars.NameVolatility: 60,
		pillars.NameLiquidity:  55,
		pillars.NameSentiment:  45,
		pillars.NameRegime:     65,
	}
	registry := make(map[string]pillars.Pillar)
	for name, score := range scores {
		registry[name] = stubPillar{name, score, domain.BiasNeutral}
	}
	cfg := DefaultConfig()
	eng, err := New(cfg, registry)
	require.NoError(t, err)

	want := 0.0
	for name, score := range scores {
		want += score * cfg.Weights[name]
	}
	want = math.Round(want*100) / 100

	decision := eng.Analyze(richSnapshot(), bullishSession())
	assert.InDelta(t, want, decision.Conviction, 1e-9)

	for _, c := range decision.Contributions {
		assert.Equal(t, cfg.Weights[c.Name], c.Weight, fmt.Sprintf("weight not recorded for %s", c.Name))
	}
}
