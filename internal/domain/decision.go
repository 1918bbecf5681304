package domain

import "time"

// Bias is the categorical directional opinion attached to a pillar
// contribution or a whole decision. It is explicitly non-binding.
type Bias string

const (
	BiasBullish  Bias = "BULLISH"
	BiasBearish  Bias = "BEARISH"
	BiasNeutral  Bias = "NEUTRAL"
	BiasVolatile Bias = "VOLATILE"
	BiasInvalid  Bias = "INVALID"
)

// ContractVersion tags every Decision with the output-contract revision.
const ContractVersion = "v1.0"

// PillarContribution is one pillar's scored opinion within a single analysis.
// Created once per pillar per analysis and never mutated.
type PillarContribution struct {
	Name          string             `json:"name"`
	Score         float64            `json:"score"` // 0-100
	Bias          Bias               `json:"bias"`
	IsPlaceholder bool               `json:"is_placeholder"`
	Weight        float64            `json:"weight"`
	Metrics       map[string]float64 `json:"metrics,omitempty"`
}

// AnalysisQuality describes how complete the inputs behind a decision were.
// The weight map is a frozen copy of the weights used, kept for audit.
type AnalysisQuality struct {
	TotalPillars       int                `json:"total_pillars"`
	ActivePillars      int                `json:"active_pillars"`
	PlaceholderPillars int                `json:"placeholder_pillars"`
	FailedPillars      []string           `json:"failed_pillars,omitempty"`
	SnapshotAgeSeconds float64            `json:"snapshot_age_seconds"`
	CalibrationVersion string             `json:"calibration_version"`
	PillarWeights      map[string]float64 `json:"pillar_weights"`
}

// Decision is the engine's full output for one analysis: a non-binding
// directional opinion with conviction, attribution and quality metadata.
// It is read-only downstream; validity and execution-readiness are fields,
// never errors.
type Decision struct {
	Symbol           string               `json:"symbol"`
	Timestamp        time.Time            `json:"timestamp"`
	Bias             Bias                 `json:"bias"`
	Conviction       float64              `json:"conviction"` // 0-100, 2dp
	Contributions    []PillarContribution `json:"contributions"`
	Narrative        string               `json:"narrative"`
	Quality          AnalysisQuality      `json:"quality"`
	IsAnalysisValid  bool                 `json:"is_analysis_valid"`
	IsExecutionReady bool                 `json:"is_execution_ready"`
	BlockReason      string               `json:"block_reason,omitempty"`
	Warnings         []string             `json:"warnings,omitempty"`
	ContractVersion  string               `json:"contract_version"`
}

// PillarScores returns the per-pillar score map for drift comparison.
func (d *Decision) PillarScores() map[string]float64 {
	scores := make(map[string]float64, len(d.Contributions))
	for _, c := range d.Contributions {
		scores[c.Name] = c.Score
	}
	return scores
}

// PillarBiases returns the per-pillar bias map.
func (d *Decision) PillarBiases() map[string]Bias {
	biases := make(map[string]Bias, len(d.Contributions))
	for _, c := range d.Contributions {
		biases[c.Name] = c.Bias
	}
	return biases
}

// DecisionHistoryEntry is the immutable stored form of a past decision.
// IsSuperseded is the only field that may change after the row is written.
type DecisionHistoryEntry struct {
	ID                 string             `json:"id"`
	Symbol             string             `json:"symbol"`
	Timestamp          time.Time          `json:"timestamp"`
	Bias               Bias               `json:"bias"`
	Conviction         float64            `json:"conviction"`
	PillarScores       map[string]float64 `json:"pillar_scores"`
	PillarBiases       map[string]Bias    `json:"pillar_biases"`
	ActivePillars      int                `json:"active_pillars"`
	PlaceholderPillars int                `json:"placeholder_pillars"`
	FailedPillars      []string           `json:"failed_pillars,omitempty"`
	CalibrationVersion string             `json:"calibration_version"`
	ContractVersion    string             `json:"contract_version"`
	IsSuperseded       bool               `json:"is_superseded"`
	CreatedAt          time.Time          `json:"created_at"`
}
