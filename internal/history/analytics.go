package history

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/quantfold/signalrun/internal/domain"
)

// ErrInsufficientHistory is the typed "not enough data" result for analytics
// queries below their minimum sample size. It is not a failure.
var ErrInsufficientHistory = errors.New("insufficient history")

// Analytics calibration constants.
const (
	significantDriftDelta  = 15.0
	minCorrelationSamples  = 10
	defaultAnalyticsWindow = 50
)

// AnalyticsEngine computes drift, correlation and accuracy over the stored
// decision log. It is strictly read-only: it never fetches or derives market
// data, only what the store already holds.
type AnalyticsEngine struct {
	store Store
}

// NewAnalyticsEngine creates an analytics engine over a decision log.
func NewAnalyticsEngine(store Store) *AnalyticsEngine {
	return &AnalyticsEngine{store: store}
}

// PillarDrift describes one pillar's movement between the stored baseline
// and the current analysis.
type PillarDrift struct {
	Pillar        string      `json:"pillar"`
	Before        float64     `json:"before"`
	After         float64     `json:"after"`
	Delta         float64     `json:"delta"`
	PercentChange float64     `json:"percent_change"`
	BiasBefore    domain.Bias `json:"bias_before"`
	BiasAfter     domain.Bias `json:"bias_after"`
	Significant   bool        `json:"significant"`
}

// DriftReport compares the most recent stored decision against a freshly
// supplied pillar score set.
type DriftReport struct {
	Symbol     string        `json:"symbol"`
	BaselineID string        `json:"baseline_id"`
	Pillars    []PillarDrift `json:"pillars"`
}

// Drift compares the newest stored decision's pillar scores against the
// supplied current set. Returns ErrInsufficientHistory when the symbol has
// no stored decisions yet.
func (a *AnalyticsEngine) Drift(ctx context.Context, symbol string,
	currentScores map[string]float64, currentBiases map[string]domain.Bias) (*DriftReport, error) {

	entries, err := a.store.History(ctx, symbol, Filter{Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("drift baseline lookup for %s: %w", symbol, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no baseline decision for %s: %w", symbol, ErrInsufficientHistory)
	}
	baseline := entries[0]

	report := &DriftReport{
		Symbol:     symbol,
		BaselineID: baseline.ID,
		Pillars:    make([]PillarDrift, 0, len(baseline.PillarScores)),
	}

	names := make([]string, 0, len(baseline.PillarScores))
	for name := range baseline.PillarScores {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		before := baseline.PillarScores[name]
		after, ok := currentScores[name]
		if !ok {
			continue
		}
		delta := after - before
		pct := 0.0
		if before != 0 {
			pct = delta / before * 100.0
		}
		report.Pillars = append(report.Pillars, PillarDrift{
			Pillar:        name,
			Before:        before,
			After:         after,
			Delta:         delta,
			PercentChange: pct,
			BiasBefore:    baseline.PillarBiases[name],
			BiasAfter:     currentBiases[name],
			Significant:   math.Abs(delta) > significantDriftDelta,
		})
	}

	log.Debug().Str("symbol", symbol).Str("baseline", baseline.ID).
		Int("pillars", len(report.Pillars)).Msg("drift computed")
	return report, nil
}

// CorrelationPair is the Pearson correlation between two pillars' score
// series, with a coarse strength classification.
type CorrelationPair struct {
	PillarA  string  `json:"pillar_a"`
	PillarB  string  `json:"pillar_b"`
	R        float64 `json:"r"`
	Strength string  `json:"strength"` // strong | moderate | weak
}

// CorrelationReport holds the pairwise correlations over a trailing window.
type CorrelationReport struct {
	Symbol  string            `json:"symbol"`
	Samples int               `json:"samples"`
	Pairs   []CorrelationPair `json:"pairs"`
}

// Correlation computes pairwise Pearson correlation between pillar-score
// time series over the trailing window. Requires at least ten samples.
func (a *AnalyticsEngine) Correlation(ctx context.Context, symbol string, window int) (*CorrelationReport, error) {
	if window <= 0 {
		window = defaultAnalyticsWindow
	}

	entries, err := a.store.History(ctx, symbol, Filter{Limit: window})
	if err != nil {
		return nil, fmt.Errorf("correlation history lookup for %s: %w", symbol, err)
	}
	if len(entries) < minCorrelationSamples {
		return nil, fmt.Errorf("%d of %d required samples for %s: %w",
			len(entries), minCorrelationSamples, symbol, ErrInsufficientHistory)
	}

	// Collect per-pillar series over pillars present in every entry.
	series := make(map[string][]float64)
	for name := range entries[0].PillarScores {
		series[name] = make([]float64, 0, len(entries))
	}
	for _, entry := range entries {
		for name := range series {
			score, ok := entry.PillarScores[name]
			if !ok {
				delete(series, name)
				continue
			}
			series[name] = append(series[name], score)
		}
	}

	names := make([]string, 0, len(series))
	for name := range series {
		names = append(names, name)
	}
	sort.Strings(names)

	report := &CorrelationReport{Symbol: symbol, Samples: len(entries)}
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			r := pearson(series[names[i]], series[names[j]])
			report.Pairs = append(report.Pairs, CorrelationPair{
				PillarA:  names[i],
				PillarB:  names[j],
				R:        r,
				Strength: classifyCorrelation(r),
			})
		}
	}
	return report, nil
}

// AccuracyReport summarizes directional consistency over a trailing window.
type AccuracyReport struct {
	Symbol               string  `json:"symbol"`
	Samples              int     `json:"samples"`
	Wins                 int     `json:"wins"`
	Losses               int     `json:"losses"`
	WinRate              float64 `json:"win_rate"`
	AvgWinningConviction float64 `json:"avg_winning_conviction"`
	AvgLosingConviction  float64 `json:"avg_losing_conviction"`
}

// Accuracy scores each directional decision against the decision that
// followed it: a BULLISH call wins when conviction subsequently rose, a
// BEARISH call when it fell. NEUTRAL and INVALID decisions are excluded.
// The store holds no market outcomes, so this is a consistency proxy
// computable from the log alone.
func (a *AnalyticsEngine) Accuracy(ctx context.Context, symbol string, window int) (*AccuracyReport, error) {
	if window <= 0 {
		window = defaultAnalyticsWindow
	}

	entries, err := a.store.History(ctx, symbol, Filter{Limit: window})
	if err != nil {
		return nil, fmt.Errorf("accuracy history lookup for %s: %w", symbol, err)
	}
	if len(entries) < 2 {
		return nil, fmt.Errorf("accuracy needs at least 2 samples for %s: %w", symbol, ErrInsufficientHistory)
	}

	report := &AccuracyReport{Symbol: symbol, Samples: len(entries)}
	var winConviction, lossConviction float64

	// Entries are newest-first; entry i+1 precedes entry i in time.
	for i := len(entries) - 1; i > 0; i-- {
		signal := entries[i]
		next := entries[i-1]
		if signal.Bias != domain.BiasBullish && signal.Bias != domain.BiasBearish {
			continue
		}
		won := (signal.Bias == domain.BiasBullish && next.Conviction > signal.Conviction) ||
			(signal.Bias == domain.BiasBearish && next.Conviction < signal.Conviction)
		if won {
			report.Wins++
			winConviction += signal.Conviction
		} else {
			report.Losses++
			lossConviction += signal.Conviction
		}
	}

	scored := report.Wins + report.Losses
	if scored == 0 {
		return nil, fmt.Errorf("no directional decisions for %s: %w", symbol, ErrInsufficientHistory)
	}
	report.WinRate = float64(report.Wins) / float64(scored)
	if report.Wins > 0 {
		report.AvgWinningConviction = winConviction / float64(report.Wins)
	}
	if report.Losses > 0 {
		report.AvgLosingConviction = lossConviction / float64(report.Losses)
	}
	return report, nil
}

// pearson computes the correlation coefficient of two equal-length series.
// Degenerate series (zero variance) correlate at 0.
func pearson(xs, ys []float64) float64 {
	n := len(xs)
	if n == 0 || n != len(ys) {
		return 0
	}

	var sumX, sumY float64
	for i := 0; i < n; i++ {
		sumX += xs[i]
		sumY += ys[i]
	}
	meanX := sumX / float64(n)
	meanY := sumY / float64(n)

	var cov, varX, varY float64
	for i := 0; i < n; i++ {
		dx := xs[i] - meanX
		dy := ys[i] - meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0
	}
	return cov / math.Sqrt(varX*varY)
}

func classifyCorrelation(r float64) string {
	abs := math.Abs(r)
	switch {
	case abs > 0.7:
		return "strong"
	case abs > 0.4:
		return "moderate"
	default:
		return "weak"
	}
}
