package domain

import "time"

// OHLCV is a single bar of a price series as returned by the price provider.
type OHLCV struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// SignalSnapshot is the immutable point-in-time market state for one symbol.
// Every technical, derivative and sentinel field is optional: a nil pointer
// means the upstream feed had no data, and consumers must degrade to neutral
// rather than fail. The builder never mutates a snapshot after returning it.
type SignalSnapshot struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`

	// Price state from the daily series (mandatory feed).
	LastPrice *float64 `json:"last_price,omitempty"`
	OpenPrice *float64 `json:"open_price,omitempty"`
	HighPrice *float64 `json:"high_price,omitempty"`
	LowPrice  *float64 `json:"low_price,omitempty"`
	PrevClose *float64 `json:"prev_close,omitempty"`
	VWAP      *float64 `json:"vwap,omitempty"`
	DayVolume *float64 `json:"day_volume,omitempty"`

	// Order book state from the quote feed.
	BidPrice  *float64 `json:"bid_price,omitempty"`
	AskPrice  *float64 `json:"ask_price,omitempty"`
	BidQty    *float64 `json:"bid_qty,omitempty"`
	AskQty    *float64 `json:"ask_qty,omitempty"`
	SpreadPct *float64 `json:"spread_pct,omitempty"`

	// Derivative greeks from the option chain feed.
	OptionDelta *float64 `json:"option_delta,omitempty"`
	OptionGamma *float64 `json:"option_gamma,omitempty"`
	OptionTheta *float64 `json:"option_theta,omitempty"`
	OptionVega  *float64 `json:"option_vega,omitempty"`
	OIChangePct *float64 `json:"oi_change_pct,omitempty"`

	// Technical indicators computed over the daily/weekly series.
	SMA50        *float64 `json:"sma_50,omitempty"`
	SMA200       *float64 `json:"sma_200,omitempty"`
	WeeklySMA20  *float64 `json:"weekly_sma_20,omitempty"`
	RSI14        *float64 `json:"rsi_14,omitempty"`
	MACD         *float64 `json:"macd,omitempty"`
	MACDSignal   *float64 `json:"macd_signal,omitempty"`
	MACDHist     *float64 `json:"macd_hist,omitempty"`
	ATR14        *float64 `json:"atr_14,omitempty"`
	ATRPct       *float64 `json:"atr_pct,omitempty"`
	BollUpper    *float64 `json:"boll_upper,omitempty"`
	BollMiddle   *float64 `json:"boll_middle,omitempty"`
	BollLower    *float64 `json:"boll_lower,omitempty"`
	BollWidthPct *float64 `json:"boll_width_pct,omitempty"`
	ChaikinOsc   *float64 `json:"chaikin_osc,omitempty"`

	// Sentinel fields: institutional activity signals.
	InsiderNetValue *float64 `json:"insider_net_value,omitempty"`
	InsiderBuyCount *int     `json:"insider_buy_count,omitempty"`
	BulkDealNetQty  *float64 `json:"bulk_deal_net_qty,omitempty"`
	BlockDealNetQty *float64 `json:"block_deal_net_qty,omitempty"`
	ShortSellingPct *float64 `json:"short_selling_pct,omitempty"`
}

// PriceChangePct returns the percent change of the last price against the
// prior close, and whether both inputs were present.
func (s *SignalSnapshot) PriceChangePct() (float64, bool) {
	if s.LastPrice == nil || s.PrevClose == nil || *s.PrevClose == 0 {
		return 0, false
	}
	return (*s.LastPrice - *s.PrevClose) / *s.PrevClose * 100.0, true
}

// SessionContext is the market-wide state shared by every symbol analyzed in
// a session. It is refreshed independently of per-symbol snapshots and all
// fields are optional.
type SessionContext struct {
	Timestamp            time.Time `json:"timestamp"`
	Regime               string    `json:"regime"` // BULLISH, BEARISH, VOLATILE, SIDEWAYS
	VIXLevel             *float64  `json:"vix_level,omitempty"`
	VIXPercentile        *float64  `json:"vix_percentile,omitempty"`
	AdvanceDeclineRatio  *float64  `json:"advance_decline_ratio,omitempty"`
	InstitutionalNetFlow *float64  `json:"institutional_net_flow,omitempty"`
}

// Float returns a pointer to v. Convenience for populating optional fields.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }
