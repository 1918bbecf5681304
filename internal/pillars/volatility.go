package pillars

import (
	"github.com/quantfold/signalrun/internal/domain"
)

// Volatility component weights. Renormalized over whichever components are
// actually present, so a missing VIX does not drag the composite down.
const (
	volWeightATR = 0.40
	volWeightBB  = 0.30
	volWeightVIX = 0.30
)

// Hard thresholds that flip the pillar bias to VOLATILE.
const (
	volatileATRPct  = 5.0
	volatileBBWidth = 12.0
	volatileVIX     = 25.0
)

// VolatilityPillar scores how hospitable current volatility is: calm tape
// scores high, violent tape scores low. Components are looked up in fixed
// calibration tables; the tables are hand-tuned and versioned, not derived.
type VolatilityPillar struct{}

func (VolatilityPillar) Name() string { return NameVolatility }

func (VolatilityPillar) Score(snap *domain.SignalSnapshot, sess *domain.SessionContext) (float64, domain.Bias, map[string]float64) {
	var atrPct, bbWidth, vix *float64
	if snap != nil {
		atrPct = snap.ATRPct
		bbWidth = snap.BollWidthPct
	}
	if sess != nil {
		vix = sess.VIXLevel
	}
	if atrPct == nil && bbWidth == nil && vix == nil {
		return neutral()
	}

	weightedSum := 0.0
	weightTotal := 0.0
	metrics := map[string]float64{}

	if atrPct != nil {
		s := atrScore(*atrPct)
		weightedSum += s * volWeightATR
		weightTotal += volWeightATR
		metrics["atr_pct"] = *atrPct
		metrics["atr_score"] = s
	}
	if bbWidth != nil {
		s := bbWidthScore(*bbWidth)
		weightedSum += s * volWeightBB
		weightTotal += volWeightBB
		metrics["bb_width_pct"] = *bbWidth
		metrics["bb_score"] = s
	}
	if vix != nil {
		s := vixScore(*vix)
		if sess.VIXPercentile != nil && *sess.VIXPercentile < 10 {
			s -= 5 // unusually low vol regime tends to mean-revert violently
		}
		weightedSum += s * volWeightVIX
		weightTotal += volWeightVIX
		metrics["vix"] = *vix
		metrics["vix_score"] = s
	}

	score := clamp(weightedSum / weightTotal)

	bias := domain.BiasNeutral
	if (atrPct != nil && *atrPct >= volatileATRPct) ||
		(bbWidth != nil && *bbWidth >= volatileBBWidth) ||
		(vix != nil && *vix >= volatileVIX) {
		bias = domain.BiasVolatile
	}
	return score, bias, metrics
}

func atrScore(atrPct float64) float64 {
	switch {
	case atrPct < 1.5:
		return 85
	case atrPct < 3.0:
		return 60
	case atrPct < 5.0:
		return 40
	case atrPct < 8.0:
		return 25
	default:
		return 10
	}
}

func bbWidthScore(widthPct float64) float64 {
	switch {
	case widthPct < 4:
		return 80
	case widthPct < 8:
		return 60
	case widthPct < 12:
		return 40
	case widthPct < 18:
		return 25
	default:
		return 15
	}
}

func vixScore(vix float64) float64 {
	switch {
	case vix < 12:
		return 90
	case vix < 15:
		return 75
	case vix < 20:
		return 60
	case vix < 25:
		return 45
	case vix < 30:
		return 30
	default:
		return 15
	}
}
