package pillars

import (
	"github.com/quantfold/signalrun/internal/domain"
)

// Pillar is one independently-scored analytical signal. Implementations are
// stateless and deterministic: identical inputs always produce identical
// outputs. A pillar whose required fields are absent returns the neutral
// placeholder (50, NEUTRAL, empty metrics) instead of failing.
type Pillar interface {
	Name() string
	Score(snap *domain.SignalSnapshot, sess *domain.SessionContext) (float64, domain.Bias, map[string]float64)
}

// Pillar names used as registry keys and weight-map keys.
const (
	NameTrend      = "trend"
	NameMomentum   = "momentum"
	NameVolatility = "volatility"
	NameLiquidity  = "liquidity"
	NameSentiment  = "sentiment"
	NameRegime     = "regime"
)

// NeutralScore is the score a pillar reports when it has nothing to say.
const NeutralScore = 50.0

// Registry returns the closed set of pillar implementations keyed by name.
// The set is fixed at six; calibration changes are versioned through the
// engine's calibration tag, not through registry mutation.
func Registry() map[string]Pillar {
	return map[string]Pillar{
		NameTrend:      TrendPillar{},
		NameMomentum:   MomentumPillar{},
		NameVolatility: VolatilityPillar{},
		NameLiquidity:  LiquidityPillar{},
		NameSentiment:  SentimentPillar{},
		NameRegime:     RegimePillar{},
	}
}

// neutral is the shared placeholder result for missing inputs.
func neutral() (float64, domain.Bias, map[string]float64) {
	return NeutralScore, domain.BiasNeutral, map[string]float64{}
}

// clamp bounds a score to [0,100] before it leaves a pillar.
func clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
