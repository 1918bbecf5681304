package history

import (
	"context"
	"errors"
	"time"

	"github.com/quantfold/signalrun/internal/domain"
)

// ErrNotFound is returned when a decision id does not exist in the log.
var ErrNotFound = errors.New("decision not found")

// Filter narrows a history query. Zero times mean unbounded; Limit <= 0
// selects the store default.
type Filter struct {
	Limit int
	Start time.Time
	End   time.Time
}

// Store is the append-only decision log. Save writes one immutable row and
// returns its generated id; MarkSuperseded flips the only mutable flag a row
// has. Implementations must serialize writes and allow unlimited concurrent
// reads.
type Store interface {
	Save(ctx context.Context, decision *domain.Decision) (string, error)
	History(ctx context.Context, symbol string, filter Filter) ([]domain.DecisionHistoryEntry, error)
	MarkSuperseded(ctx context.Context, decisionID string) error
}

// entryFromDecision freezes a decision into its stored history form.
func entryFromDecision(decision *domain.Decision, id string, createdAt time.Time) domain.DecisionHistoryEntry {
	return domain.DecisionHistoryEntry{
		ID:                 id,
		Symbol:             decision.Symbol,
		Timestamp:          decision.Timestamp,
		Bias:               decision.Bias,
		Conviction:         decision.Conviction,
		PillarScores:       decision.PillarScores(),
		PillarBiases:       decision.PillarBiases(),
		ActivePillars:      decision.Quality.ActivePillars,
		PlaceholderPillars: decision.Quality.PlaceholderPillars,
		FailedPillars:      append([]string(nil), decision.Quality.FailedPillars...),
		CalibrationVersion: decision.Quality.CalibrationVersion,
		ContractVersion:    decision.ContractVersion,
		CreatedAt:          createdAt,
	}
}
