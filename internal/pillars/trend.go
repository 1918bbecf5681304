package pillars

import (
	"github.com/quantfold/signalrun/internal/domain"
)

// TrendPillar scores structural trend alignment across the daily and weekly
// timeframes. The daily component awards 10 points for each of price>SMA200,
// SMA50>SMA200 and price>SMA50; the weekly component awards 30 points when
// price holds above the weekly 20-period SMA. The 60-point raw total is
// normalized to 0-100.
type TrendPillar struct{}

func (TrendPillar) Name() string { return NameTrend }

func (TrendPillar) Score(snap *domain.SignalSnapshot, _ *domain.SessionContext) (float64, domain.Bias, map[string]float64) {
	if snap == nil || snap.LastPrice == nil || snap.SMA50 == nil || snap.SMA200 == nil {
		return neutral()
	}

	price := *snap.LastPrice
	daily := 0.0
	if price > *snap.SMA200 {
		daily += 10
	}
	if *snap.SMA50 > *snap.SMA200 {
		daily += 10
	}
	if price > *snap.SMA50 {
		daily += 10
	}

	weekly := 0.0
	if snap.WeeklySMA20 != nil && price > *snap.WeeklySMA20 {
		weekly = 30
	}

	score := clamp((daily + weekly) / 60.0 * 100.0)

	bias := domain.BiasNeutral
	switch {
	case score > 60:
		bias = domain.BiasBullish
	case score < 40:
		bias = domain.BiasBearish
	}

	metrics := map[string]float64{
		"daily_points":  daily,
		"weekly_points": weekly,
		"sma_50":        *snap.SMA50,
		"sma_200":       *snap.SMA200,
	}
	if snap.WeeklySMA20 != nil {
		metrics["weekly_sma_20"] = *snap.WeeklySMA20
	}
	return score, bias, metrics
}
