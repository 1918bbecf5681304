package snapshot

import (
	"context"

	"github.com/quantfold/signalrun/internal/domain"
)

// Feed names used for rate limiting, circuit breaking and log attribution.
const (
	FeedDaily    = "daily"
	FeedWeekly   = "weekly"
	FeedQuote    = "quote"
	FeedDerivs   = "derivs"
	FeedSentinel = "sentinel"
)

// DailySeries is the mandatory price feed payload: OHLCV bars plus the
// technical indicators the upstream adapter computes over them. Indicator
// math lives in the adapter; this package only consumes the fields.
type DailySeries struct {
	Bars       []domain.OHLCV
	SMA50      *float64
	SMA200     *float64
	RSI14      *float64
	MACD       *float64
	MACDSignal *float64
	MACDHist   *float64
	ATR14      *float64
	BollUpper  *float64
	BollMiddle *float64
	BollLower  *float64
	ChaikinOsc *float64
	VWAP       *float64
}

// Quote is the current top-of-book state.
type Quote struct {
	BidPrice float64
	AskPrice float64
	BidQty   float64
	AskQty   float64
}

// OptionRow is one row of the derivatives chain.
type OptionRow struct {
	Strike      float64
	Delta       float64
	Gamma       float64
	Theta       float64
	Vega        float64
	OIChangePct float64
}

// SentinelSignals carries institutional-activity data. A zero value is a
// valid "nothing happened" result, not an error.
type SentinelSignals struct {
	InsiderNetValue float64
	InsiderBuyCount int
	BulkDealNetQty  float64
	BlockDealNetQty float64
	ShortSellingPct float64
}

// PriceSeriesProvider supplies daily and weekly OHLCV history. An empty slice
// means the feed had nothing for the symbol.
type PriceSeriesProvider interface {
	GetDailySeries(ctx context.Context, symbol string) (*DailySeries, error)
	GetWeeklySeries(ctx context.Context, symbol string) ([]domain.OHLCV, error)
}

// QuoteProvider supplies the live top-of-book. A nil quote means no data.
type QuoteProvider interface {
	GetQuote(ctx context.Context, symbol string) (*Quote, error)
}

// DerivativesProvider supplies the option chain. An empty slice means the
// symbol has no listed derivatives.
type DerivativesProvider interface {
	GetOptionChain(ctx context.Context, symbol string) ([]OptionRow, error)
}

// SentinelProvider supplies insider/bulk-deal activity.
type SentinelProvider interface {
	GetSentinelSignals(ctx context.Context, symbol string) (*SentinelSignals, error)
}

// SessionDataProvider supplies market-wide session state.
type SessionDataProvider interface {
	GetMarketRegime(ctx context.Context) (string, error)
	GetVolatilityIndex(ctx context.Context) (level float64, percentile float64, err error)
	GetBreadth(ctx context.Context) (advanceDecline float64, institutionalNetFlow float64, err error)
}
