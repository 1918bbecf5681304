package pillars

import (
	"math"

	"github.com/quantfold/signalrun/internal/domain"
)

// Sentiment calibration constants.
const (
	insiderClusterBuys  = 3
	insiderLargeNetBuy  = 10_000_000.0 // net insider value treated as "large"
	largeGammaThreshold = 0.10
	dealVolumeFraction  = 0.05 // bulk+block deals vs day volume
)

// SentimentPillar reads positioning and institutional-activity signals:
// open-interest buildup against price direction, option delta/gamma posture,
// and the sentinel feed (insider trades, bulk/block deals). Scoring starts at
// the neutral 50 and accumulates adjustments from each signal family.
type SentimentPillar struct{}

func (SentimentPillar) Name() string { return NameSentiment }

func (SentimentPillar) Score(snap *domain.SignalSnapshot, _ *domain.SessionContext) (float64, domain.Bias, map[string]float64) {
	if snap == nil {
		return neutral()
	}
	hasSentinel := snap.InsiderNetValue != nil || snap.InsiderBuyCount != nil ||
		snap.BulkDealNetQty != nil || snap.BlockDealNetQty != nil
	if snap.OIChangePct == nil && snap.OptionDelta == nil && !hasSentinel {
		return neutral()
	}

	score := NeutralScore
	metrics := map[string]float64{}

	priceChange, hasPriceChange := snap.PriceChangePct()
	if hasPriceChange {
		metrics["price_change_pct"] = priceChange
	}

	// Open-interest buildup classification.
	if snap.OIChangePct != nil && hasPriceChange {
		oi := *snap.OIChangePct
		metrics["oi_change_pct"] = oi
		switch {
		case oi > 0 && priceChange > 0:
			score += 20 // long buildup
			metrics["oi_signal"] = 1
		case oi > 0 && priceChange < 0:
			score -= 20 // short buildup
			metrics["oi_signal"] = -1
		case oi < 0 && priceChange > 0:
			score += 10 // short covering
			metrics["oi_signal"] = 0.5
		case oi < 0 && priceChange < 0:
			score -= 10 // long unwinding
			metrics["oi_signal"] = -0.5
		}
	}

	// Option delta posture.
	if snap.OptionDelta != nil {
		delta := *snap.OptionDelta
		metrics["option_delta"] = delta
		if delta > 0.5 {
			score += 15
		} else if delta < -0.5 {
			score -= 15
		}
	}

	// Large gamma makes the delta read unstable: pull 10% toward neutral.
	if snap.OptionGamma != nil && math.Abs(*snap.OptionGamma) > largeGammaThreshold {
		score += (NeutralScore - score) * 0.10
		metrics["gamma_damped"] = 1
	}

	sentinelBullish := false

	if snap.InsiderBuyCount != nil && *snap.InsiderBuyCount >= insiderClusterBuys {
		score += 25
		sentinelBullish = true
		metrics["insider_buy_count"] = float64(*snap.InsiderBuyCount)
	}
	if snap.InsiderNetValue != nil && *snap.InsiderNetValue > insiderLargeNetBuy {
		score += 15
		sentinelBullish = true
		metrics["insider_net_value"] = *snap.InsiderNetValue
	}

	// Bulk/block deals only count when they are material against day volume.
	if snap.DayVolume != nil && *snap.DayVolume > 0 {
		dealNet := 0.0
		hasDeals := false
		if snap.BulkDealNetQty != nil {
			dealNet += *snap.BulkDealNetQty
			hasDeals = true
		}
		if snap.BlockDealNetQty != nil {
			dealNet += *snap.BlockDealNetQty
			hasDeals = true
		}
		if hasDeals && math.Abs(dealNet) > dealVolumeFraction**snap.DayVolume {
			if dealNet > 0 {
				score += 20
				sentinelBullish = true
			} else {
				score -= 20
			}
			metrics["deal_net_qty"] = dealNet
		}
	}

	// Convergence bonus: positioning, price and the sentinel feed agreeing.
	if snap.OIChangePct != nil && *snap.OIChangePct > 0 &&
		hasPriceChange && priceChange >= 0 && sentinelBullish {
		score += 15
		metrics["convergence"] = 1
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
