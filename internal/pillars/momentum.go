package pillars

import (
	"github.com/quantfold/signalrun/internal/domain"
)

// MomentumPillar scores short-horizon momentum from RSI and MACD. RSI
// contributes up to 20 points, the MACD pair up to 20, and the 40-point raw
// total is normalized to 0-100. RSI is the only required field.
type MomentumPillar struct{}

func (MomentumPillar) Name() string { return NameMomentum }

func (MomentumPillar) Score(snap *domain.SignalSnapshot, _ *domain.SessionContext) (float64, domain.Bias, map[string]float64) {
	if snap == nil || snap.RSI14 == nil {
		return neutral()
	}

	rsi := *snap.RSI14
	rsiPoints := 0.0
	switch {
	case rsi > 50 && rsi < 70:
		rsiPoints = 20 // healthy bullish zone
	case rsi >= 70:
		rsiPoints = 10 // overbought, momentum present but stretched
	case rsi <= 30:
		rsiPoints = 10 // oversold bounce potential
	case rsi >= 40 && rsi <= 50:
		rsiPoints = 5
	}

	macdPoints := 0.0
	if snap.MACDHist != nil && *snap.MACDHist > 0 {
		macdPoints += 10
	}
	if snap.MACD != nil && snap.MACDSignal != nil && *snap.MACD > *snap.MACDSignal {
		macdPoints += 10
	}

	score := clamp((rsiPoints + macdPoints) / 40.0 * 100.0)

	bias := domain.BiasNeutral
	if snap.MACDHist != nil {
		hist := *snap.MACDHist
		switch {
		case rsi > 55 && hist > 0:
			bias = domain.BiasBullish
		case rsi < 45 && hist < 0:
			bias = domain.BiasBearish
		}
	}

	metrics := map[string]float64{
		"rsi":         rsi,
		"rsi_points":  rsiPoints,
		"macd_points": macdPoints,
	}
	if snap.MACDHist != nil {
		metrics["macd_hist"] = *snap.MACDHist
	}
	return score, bias, metrics
}
