package pillars

import (
	"github.com/quantfold/signalrun/internal/domain"
)

// Thin-book thresholds. A book with fewer than minViableDepth units on both
// sides combined is effectively untradeable regardless of spread.
const (
	minViableDepth = 100.0
	thinDepth      = 1000.0
)

// LiquidityPillar scores how cheaply the instrument can be traded right now:
// spread tightness, book depth balance, and (when available) the Chaikin
// volume-flow oscillator. Without the oscillator the composite is
// spread 60% / depth 40%; with it, spread 50% / depth 30% / volume 20%.
type LiquidityPillar struct{}

func (LiquidityPillar) Name() string { return NameLiquidity }

func (LiquidityPillar) Score(snap *domain.SignalSnapshot, _ *domain.SessionContext) (float64, domain.Bias, map[string]float64) {
	if snap == nil || snap.SpreadPct == nil || snap.BidQty == nil || snap.AskQty == nil {
		return neutral()
	}

	spread := *snap.SpreadPct
	bidQty := *snap.BidQty
	askQty := *snap.AskQty
	totalDepth := bidQty + askQty

	depthRatio := 1.0
	if askQty > 0 {
		depthRatio = bidQty / askQty
	}

	spreadScore := liquiditySpreadScore(spread)
	depthScore, bias := depthRatioScore(depthRatio)

	metrics := map[string]float64{
		"spread_pct":   spread,
		"spread_score": spreadScore,
		"depth_ratio":  depthRatio,
		"depth_score":  depthScore,
		"total_depth":  totalDepth,
	}

	var score float64
	if snap.ChaikinOsc != nil {
		osc := *snap.ChaikinOsc
		// Full-scale oscillator reference of 1000 maps to the +/-15 band.
		adjust := osc / 1000.0 * 15.0
		if adjust > 15 {
			adjust = 15
		} else if adjust < -15 {
			adjust = -15
		}
		volumeScore := NeutralScore + adjust
		score = spreadScore*0.5 + depthScore*0.3 + volumeScore*0.2
		metrics["chaikin_osc"] = osc
		metrics["volume_score"] = volumeScore
	} else {
		score = spreadScore*0.6 + depthScore*0.4
	}

	// Thin-depth penalties dominate the composite.
	if totalDepth < minViableDepth {
		score = 15
	} else if totalDepth < thinDepth {
		score *= 0.6
	}

	// Bias overrides, evaluated in calibration order.
	if spread > 0.30 || totalDepth < thinDepth {
		bias = domain.BiasBearish
	}
	if snap.ChaikinOsc != nil {
		if depthRatio > 1.5 && *snap.ChaikinOsc > 1000 {
			bias = domain.BiasBullish
		}
		if depthRatio < 0.7 && *snap.ChaikinOsc < -1000 {
			bias = domain.BiasBearish
		}
	}

	return clamp(score), bias, metrics
}

// liquiditySpreadScore maps spread% to a tradeability score. Bands are
// calibration constants.
func liquiditySpreadScore(spreadPct float64) float64 {
	switch {
	case spreadPct < 0.05:
		return 95
	case spreadPct < 0.10:
		return 80
	case spreadPct < 0.15:
		return 65
	case spreadPct < 0.20:
		return 55
	case spreadPct < 0.30:
		return 40
	case spreadPct < 0.50:
		return 25
	default:
		return 10
	}
}

// depthRatioScore buckets the bid/ask quantity ratio into a score and the
// directional lean the imbalance implies.
func depthRatioScore(ratio float64) (float64, domain.Bias) {
	switch {
	case ratio < 0.5:
		return 60, domain.BiasBearish
	case ratio < 0.7:
		return 70, domain.BiasBearish
	case ratio <= 1.3:
		return 80, domain.BiasNeutral
	case ratio <= 2.0:
		return 70, domain.BiasBullish
	default:
		return 60, domain.BiasBullish
	}
}
