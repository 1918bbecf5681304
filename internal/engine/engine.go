package engine

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quantfold/signalrun/internal/domain"
	"github.com/quantfold/signalrun/internal/pillars"
)

// CalibrationVersion tags the hand-tuned scoring tables baked into the
// pillars and this engine's thresholds. Bump it whenever a table changes.
const CalibrationVersion = "v1.0"

// Config contains the engine's weight map and aggregation thresholds.
type Config struct {
	Weights map[string]float64 `yaml:"weights"`

	MaxPlaceholders          int     `yaml:"max_placeholders"`           // placeholder pillars tolerated before capping
	PlaceholderConvictionCap float64 `yaml:"placeholder_conviction_cap"` // conviction ceiling once breached
	BullishThreshold         float64 `yaml:"bullish_threshold"`          // conviction floor for a BULLISH call
	BearishThreshold         float64 `yaml:"bearish_threshold"`          // conviction ceiling for a BEARISH call
	MinValidConviction       float64 `yaml:"min_valid_conviction"`       // below this the analysis is tagged invalid

	WeightSumTolerance float64 `yaml:"weight_sum_tolerance"`
}

// DefaultConfig returns the production calibration.
func DefaultConfig() *Config {
	return &Config{
		Weights: map[string]float64{
			pillars.NameTrend:      0.30,
			pillars.NameMomentum:   0.20,
			pillars.NameVolatility: 0.10,
			pillars.NameLiquidity:  0.10,
			pillars.NameSentiment:  0.10,
			pillars.NameRegime:     0.20,
		},
		MaxPlaceholders:          2,
		PlaceholderConvictionCap: 60.0,
		BullishThreshold:         65.0,
		BearishThreshold:         35.0,
		MinValidConviction:       20.0,
		WeightSumTolerance:       1e-6,
	}
}

// Validate checks that the weight map covers every registered pillar and sums
// to 1.0 within tolerance.
func (c *Config) Validate(registry map[string]pillars.Pillar) error {
	sum := 0.0
	for name, w := range c.Weights {
		if w < 0 {
			return fmt.Errorf("negative weight %.3f for pillar %s", w, name)
		}
		sum += w
	}
	if math.Abs(sum-1.0) > c.WeightSumTolerance {
		return fmt.Errorf("pillar weights sum %.6f outside tolerance %.1e of 1.0", sum, c.WeightSumTolerance)
	}
	for name := range registry {
		if _, ok := c.Weights[name]; !ok {
			return fmt.Errorf("no weight configured for pillar %s", name)
		}
	}
	return nil
}

// ReasoningEngine owns the pillar registry and the weight map. Both are
// read-only after construction, so a single engine is safe to share across
// concurrent Analyze calls.
type ReasoningEngine struct {
	config   *Config
	registry map[string]pillars.Pillar
	now      func() time.Time
}

// New builds an engine over the given registry. A nil config selects the
// default calibration.
func New(config *Config, registry map[string]pillars.Pillar) (*ReasoningEngine, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if len(registry) > 0 {
		if err := config.Validate(registry); err != nil {
			return nil, fmt.Errorf("engine config invalid: %w", err)
		}
	}
	return &ReasoningEngine{
		config:   config,
		registry: registry,
		now:      time.Now,
	}, nil
}

// WithClock replaces the engine clock. Test hook; production code leaves it.
func (e *ReasoningEngine) WithClock(now func() time.Time) *ReasoningEngine {
	e.now = now
	return e
}

// Analyze invokes every registered pillar over the snapshot and session
// context and aggregates the contributions into one Decision. It always
// returns a complete Decision: pillar panics are recovered into neutral
// placeholders and surfaced through the failed-pillar list, never as errors.
func (e *ReasoningEngine) Analyze(snap *domain.SignalSnapshot, sess *domain.SessionContext) *domain.Decision {
	now := e.now()

	if len(e.registry) == 0 {
		return &domain.Decision{
			Symbol:          snap.Symbol,
			Timestamp:       now,
			Bias:            domain.BiasInvalid,
			Conviction:      0,
			Narrative:       "no pillars registered: analysis cannot be performed",
			BlockReason:     "empty_pillar_registry",
			ContractVersion: domain.ContractVersion,
			Quality: domain.AnalysisQuality{
				CalibrationVersion: CalibrationVersion,
				PillarWeights:      copyWeights(e.config.Weights),
			},
		}
	}

	names := make([]string, 0, len(e.registry))
	for name := range e.registry {
		names = append(names, name)
	}
	sort.Strings(names)

	var (
		contributions = make([]domain.PillarContribution, 0, len(names))
		failed        []string
		warnings      []string
		bullish       int
		bearish       int
		conviction    float64
	)

	for _, name := range names {
		weight := e.config.Weights[name]
		contrib, err := e.scorePillar(name, snap, sess)
		if err != nil {
			log.Warn().Str("symbol", snap.Symbol).Str("pillar", name).Err(err).
				Msg("pillar failed, substituting neutral placeholder")
			failed = append(failed, name)
			warnings = append(warnings, fmt.Sprintf("pillar %s failed and was scored neutral", name))
			contrib = domain.PillarContribution{
				Name:          name,
				Score:         pillars.NeutralScore,
				Bias:          domain.BiasNeutral,
				IsPlaceholder: true,
				Metrics:       map[string]float64{},
			}
		}
		contrib.Weight = weight
		contributions = append(contributions, contrib)
		conviction += contrib.Score * weight

		switch contrib.Bias {
		case domain.BiasBullish:
			bullish++
		case domain.BiasBearish:
			bearish++
		}
	}

	placeholders := 0
	for _, c := range contributions {
		if c.IsPlaceholder {
			placeholders++
		}
	}

	if placeholders > e.config.MaxPlaceholders {
		if conviction > e.config.PlaceholderConvictionCap {
			conviction = e.config.PlaceholderConvictionCap
		}
		warnings = append(warnings, fmt.Sprintf(
			"%d of %d pillars are placeholders; conviction capped at %.0f",
			placeholders, len(contributions), e.config.PlaceholderConvictionCap))
	}

	conviction = math.Round(conviction*100) / 100

	bias := domain.BiasNeutral
	switch {
	case conviction >= e.config.BullishThreshold && bullish > bearish:
		bias = domain.BiasBullish
	case conviction <= e.config.BearishThreshold && bearish > bullish:
		bias = domain.BiasBearish
	}

	isValid := conviction >= e.config.MinValidConviction
	isReady := isValid && placeholders <= e.config.MaxPlaceholders && len(failed) == 0

	decision := &domain.Decision{
		Symbol:           snap.Symbol,
		Timestamp:        now,
		Bias:             bias,
		Conviction:       conviction,
		Contributions:    contributions,
		Narrative:        buildNarrative(conviction, bias, contributions),
		IsAnalysisValid:  isValid,
		IsExecutionReady: isReady,
		Warnings:         warnings,
		ContractVersion:  domain.ContractVersion,
		Quality: domain.AnalysisQuality{
			TotalPillars:       len(contributions),
			ActivePillars:      len(contributions) - placeholders,
			PlaceholderPillars: placeholders,
			FailedPillars:      failed,
			SnapshotAgeSeconds: now.Sub(snap.Timestamp).Seconds(),
			CalibrationVersion: CalibrationVersion,
			PillarWeights:      copyWeights(e.config.Weights),
		},
	}

	log.Debug().Str("symbol", snap.Symbol).Float64("conviction", conviction).
		Str("bias", string(bias)).Int("placeholders", placeholders).
		Int("failed", len(failed)).Msg("analysis complete")

	return decision
}

// scorePillar runs one pillar, converting a panic into an error so a broken
// pillar can never abort the whole analysis. A contribution with no metrics
// is the pillar's missing-data placeholder.
func (e *ReasoningEngine) scorePillar(name string, snap *domain.SignalSnapshot, sess *domain.SessionContext) (contrib domain.PillarContribution, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pillar %s panicked: %v", name, r)
		}
	}()

	score, bias, metrics := e.registry[name].Score(snap, sess)
	contrib = domain.PillarContribution{
		Name:          name,
		Score:         score,
		Bias:          bias,
		IsPlaceholder: len(metrics) == 0,
		Metrics:       metrics,
	}
	return contrib, nil
}

func copyWeights(weights map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(weights))
	for name, w := range weights {
		out[name] = w
	}
	return out
}
