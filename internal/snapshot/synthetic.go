package snapshot

import (
	"context"
	"hash/fnv"
	"math"
	"time"

	"github.com/quantfold/signalrun/internal/domain"
)

// SyntheticProvider serves deterministic per-symbol market data with no
// network access. It backs offline runs and self-tests: the same symbol
// always produces the same snapshot, so decision output is reproducible.
type SyntheticProvider struct {
	now func() time.Time
}

// NewSyntheticProvider creates an offline data source.
func NewSyntheticProvider() *SyntheticProvider {
	return &SyntheticProvider{now: time.Now}
}

// seed derives a stable per-symbol phase in [0,1).
func seed(symbol string) float64 {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return float64(h.Sum32()%10000) / 10000.0
}

func (p *SyntheticProvider) GetDailySeries(_ context.Context, symbol string) (*DailySeries, error) {
	s := seed(symbol)
	base := 100.0 + s*900.0

	bars := make([]domain.OHLCV, 60)
	ts := p.now().AddDate(0, 0, -60)
	price := base
	for i := range bars {
		drift := math.Sin(float64(i)/9.0+s*6.28) * base * 0.01
		price += drift
		bars[i] = domain.OHLCV{
			Timestamp: ts.AddDate(0, 0, i),
			Open:      price - drift/2,
			High:      price * 1.01,
			Low:       price * 0.99,
			Close:     price,
			Volume:    1e6 * (0.5 + s),
		}
	}

	last := bars[len(bars)-1].Close
	sma50 := last * (0.97 + s*0.04)
	sma200 := last * (0.93 + s*0.06)
	rsi := 35.0 + s*35.0
	macd := (s - 0.5) * 2.0
	signal := macd * 0.8
	hist := macd - signal
	atr := last * (0.01 + s*0.02)
	bbMid := last
	bbUpper := last * (1.02 + s*0.02)
	bbLower := last * (0.98 - s*0.02)
	chaikin := (s - 0.5) * 4000.0
	vwap := last * 0.999

	return &DailySeries{
		Bars:       bars,
		SMA50:      &sma50,
		SMA200:     &sma200,
		RSI14:      &rsi,
		MACD:       &macd,
		MACDSignal: &signal,
		MACDHist:   &hist,
		ATR14:      &atr,
		BollUpper:  &bbUpper,
		BollMiddle: &bbMid,
		BollLower:  &bbLower,
		ChaikinOsc: &chaikin,
		VWAP:       &vwap,
	}, nil
}

func (p *SyntheticProvider) GetWeeklySeries(_ context.Context, symbol string) ([]domain.OHLCV, error) {
	s := seed(symbol)
	base := 100.0 + s*900.0

	bars := make([]domain.OHLCV, 24)
	ts := p.now().AddDate(0, 0, -24*7)
	for i := range bars {
		price := base * (1 + math.Sin(float64(i)/5.0+s*6.28)*0.03)
		bars[i] = domain.OHLCV{
			Timestamp: ts.AddDate(0, 0, i*7),
			Open:      price,
			High:      price * 1.02,
			Low:       price * 0.98,
			Close:     price,
			Volume:    5e6 * (0.5 + s),
		}
	}
	return bars, nil
}

func (p *SyntheticProvider) GetQuote(_ context.Context, symbol string) (*Quote, error) {
	s := seed(symbol)
	base := 100.0 + s*900.0
	spread := base * (0.0005 + s*0.001)

	return &Quote{
		BidPrice: base - spread/2,
		AskPrice: base + spread/2,
		BidQty:   500 + s*5000,
		AskQty:   500 + (1-s)*5000,
	}, nil
}

func (p *SyntheticProvider) GetOptionChain(_ context.Context, symbol string) ([]OptionRow, error) {
	s := seed(symbol)
	base := 100.0 + s*900.0

	rows := make([]OptionRow, 5)
	for i := range rows {
		strike := base * (0.9 + float64(i)*0.05)
		rows[i] = OptionRow{
			Strike:      strike,
			Delta:       -0.5 + s + float64(i)*0.05,
			Gamma:       0.02 + s*0.1,
			Theta:       -0.05,
			Vega:        0.1,
			OIChangePct: (s - 0.4) * 20.0,
		}
	}
	return rows, nil
}

func (p *SyntheticProvider) GetSentinelSignals(_ context.Context, symbol string) (*SentinelSignals, error) {
	s := seed(symbol)

	return &SentinelSignals{
		InsiderBuyCount: int(s * 5),
		InsiderNetValue: (s - 0.3) * 2e7,
		BulkDealNetQty:  (s - 0.5) * 1e6,
		BlockDealNetQty: (s - 0.5) * 5e5,
		ShortSellingPct: s * 10,
	}, nil
}

func (p *SyntheticProvider) GetMarketRegime(_ context.Context) (string, error) {
	return "NEUTRAL", nil
}

func (p *SyntheticProvider) GetVolatilityIndex(_ context.Context) (float64, float64, error) {
	return 17.5, 45.0, nil
}

func (p *SyntheticProvider) GetBreadth(_ context.Context) (float64, float64, error) {
	return 1.1, 2.5e8, nil
}

var (
	_ PriceSeriesProvider = (*SyntheticProvider)(nil)
	_ QuoteProvider       = (*SyntheticProvider)(nil)
	_ DerivativesProvider = (*SyntheticProvider)(nil)
	_ SentinelProvider    = (*SyntheticProvider)(nil)
	_ SessionDataProvider = (*SyntheticProvider)(nil)
)
