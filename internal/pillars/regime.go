package pillars

import (
	"github.com/quantfold/signalrun/internal/domain"
)

// RegimePillar translates the session-wide market regime label into a score
// and nudges it by the volatility-index level. It is the only pillar that
// reads exclusively from the SessionContext.
type RegimePillar struct{}

func (RegimePillar) Name() string { return NameRegime }

func (RegimePillar) Score(_ *domain.SignalSnapshot, sess *domain.SessionContext) (float64, domain.Bias, map[string]float64) {
	if sess == nil || (sess.Regime == "" && sess.VIXLevel == nil) {
		return neutral()
	}

	var score float64
	switch sess.Regime {
	case "BULLISH":
		score = 85
	case "BEARISH":
		score = 15
	case "VOLATILE", "SIDEWAYS":
		score = 50
	default:
		score = 50
	}

	metrics := map[string]float64{"regime_base": score}

	if sess.VIXLevel != nil {
		vix := *sess.VIXLevel
		metrics["vix"] = vix
		switch {
		case vix >= 30:
			score -= 10
		case vix >= 25:
			score -= 5
		case vix < 13:
			score += 10
		case vix < 16:
			score += 5
		}
	}

	score = clamp(score)
	bias := domain.BiasNeutral
	switch {
	case score > 60:
		bias = domain.BiasBullish
	case score < 40:
		bias = domain.BiasBearish
	}
	return score, bias, metrics
}
