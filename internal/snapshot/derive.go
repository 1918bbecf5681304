package snapshot

import (
	"github.com/quantfold/signalrun/internal/domain"
)

// mergeDaily copies price state and adapter-computed indicators from the
// daily series into the snapshot. The last bar is the current session.
func mergeDaily(snap *domain.SignalSnapshot, daily *DailySeries) {
	last := daily.Bars[len(daily.Bars)-1]
	snap.LastPrice = domain.Float(last.Close)
	snap.OpenPrice = domain.Float(last.Open)
	snap.HighPrice = domain.Float(last.High)
	snap.LowPrice = domain.Float(last.Low)
	snap.DayVolume = domain.Float(last.Volume)
	if len(daily.Bars) > 1 {
		snap.PrevClose = domain.Float(daily.Bars[len(daily.Bars)-2].Close)
	}

	snap.VWAP = daily.VWAP
	snap.SMA50 = daily.SMA50
	snap.SMA200 = daily.SMA200
	snap.RSI14 = daily.RSI14
	snap.MACD = daily.MACD
	snap.MACDSignal = daily.MACDSignal
	snap.MACDHist = daily.MACDHist
	snap.ATR14 = daily.ATR14
	snap.BollUpper = daily.BollUpper
	snap.BollMiddle = daily.BollMiddle
	snap.BollLower = daily.BollLower
	snap.ChaikinOsc = daily.ChaikinOsc
}

func mergeQuote(snap *domain.SignalSnapshot, quote *Quote) {
	if quote == nil {
		return
	}
	snap.BidPrice = domain.Float(quote.BidPrice)
	snap.AskPrice = domain.Float(quote.AskPrice)
	snap.BidQty = domain.Float(quote.BidQty)
	snap.AskQty = domain.Float(quote.AskQty)
}

// mergeChain aggregates greeks across the option chain with a simple mean.
func mergeChain(snap *domain.SignalSnapshot, chain []OptionRow) {
	if len(chain) == 0 {
		return
	}
	var delta, gamma, theta, vega, oiChange float64
	for _, row := range chain {
		delta += row.Delta
		gamma += row.Gamma
		theta += row.Theta
		vega += row.Vega
		oiChange += row.OIChangePct
	}
	n := float64(len(chain))
	snap.OptionDelta = domain.Float(delta / n)
	snap.OptionGamma = domain.Float(gamma / n)
	snap.OptionTheta = domain.Float(theta / n)
	snap.OptionVega = domain.Float(vega / n)
	snap.OIChangePct = domain.Float(oiChange / n)
}

func mergeSentinel(snap *domain.SignalSnapshot, signals *SentinelSignals) {
	if signals == nil {
		return
	}
	snap.InsiderNetValue = domain.Float(signals.InsiderNetValue)
	snap.InsiderBuyCount = domain.Int(signals.InsiderBuyCount)
	snap.BulkDealNetQty = domain.Float(signals.BulkDealNetQty)
	snap.BlockDealNetQty = domain.Float(signals.BlockDealNetQty)
	snap.ShortSellingPct = domain.Float(signals.ShortSellingPct)
}

// deriveFields computes the fields that depend on more than one feed:
// spread%, ATR%, Bollinger width% and the weekly SMA. Pure function of
// already-fetched data; no I/O.
func deriveFields(snap *domain.SignalSnapshot, daily *DailySeries, weekly []domain.OHLCV, quote *Quote) {
	if quote != nil {
		mid := (quote.BidPrice + quote.AskPrice) / 2
		if mid > 0 {
			snap.SpreadPct = domain.Float((quote.AskPrice - quote.BidPrice) / mid * 100.0)
		}
	}

	if daily.ATR14 != nil && snap.LastPrice != nil && *snap.LastPrice > 0 {
		snap.ATRPct = domain.Float(*daily.ATR14 / *snap.LastPrice * 100.0)
	}

	if daily.BollUpper != nil && daily.BollLower != nil && daily.BollMiddle != nil && *daily.BollMiddle > 0 {
		snap.BollWidthPct = domain.Float((*daily.BollUpper - *daily.BollLower) / *daily.BollMiddle * 100.0)
	}

	if len(weekly) > 0 {
		window := weekly
		if len(window) > 20 {
			window = window[len(window)-20:]
		}
		sum := 0.0
		for _, bar := range window {
			sum += bar.Close
		}
		snap.WeeklySMA20 = domain.Float(sum / float64(len(window)))
	}
}
