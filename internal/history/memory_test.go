package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/signalrun/internal/domain"
)

func testDecision(symbol string, ts time.Time, bias domain.Bias, conviction float64) *domain.Decision {
	return &domain.Decision{
		Symbol:     symbol,
		Timestamp:  ts,
		Bias:       bias,
		Conviction: conviction,
		Contributions: []domain.PillarContribution{
			{Name: "trend", Score: conviction, Bias: bias, Weight: 0.5, Metrics: map[string]float64{"x": 1}},
			{Name: "momentum", Score: conviction, Bias: bias, Weight: 0.5, Metrics: map[string]float64{"x": 1}},
		},
		Quality: domain.AnalysisQuality{
			ActivePillars:      2,
			CalibrationVersion: "v1.0",
		},
		ContractVersion: domain.ContractVersion,
	}
}

func TestMemoryStore_SaveAndHistory(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	id1, err := store.Save(ctx, testDecision("TCS", base, domain.BiasBullish, 70))
	require.NoError(t, err)
	id2, err := store.Save(ctx, testDecision("TCS", base.Add(time.Hour), domain.BiasNeutral, 50))
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	entries, err := store.History(ctx, "TCS", Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, id2, entries[0].ID, "newest first")
	assert.Equal(t, id1, entries[1].ID)
	assert.Equal(t, domain.BiasNeutral, entries[0].Bias)
	assert.Equal(t, 70.0, entries[1].Conviction)
	assert.Equal(t, map[string]float64{"trend": 70, "momentum": 70}, entries[1].PillarScores)
}

func TestMemoryStore_HistoryIsolatesSymbols(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	ts := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	_, err := store.Save(ctx, testDecision("TCS", ts, domain.BiasBullish, 70))
	require.NoError(t, err)
	_, err = store.Save(ctx, testDecision("INFY", ts, domain.BiasBearish, 30))
	require.NoError(t, err)

	entries, err := store.History(ctx, "TCS", Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "TCS", entries[0].Symbol)
}

func TestMemoryStore_HistoryTimeFilterAndLimit(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		_, err := store.Save(ctx, testDecision("TCS", base.Add(time.Duration(i)*time.Hour), domain.BiasNeutral, 50))
		require.NoError(t, err)
	}

	entries, err := store.History(ctx, "TCS", Filter{Start: base.Add(time.Hour), End: base.Add(3 * time.Hour)})
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	entries, err = store.History(ctx, "TCS", Filter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, base.Add(4*time.Hour), entries[0].Timestamp)
}

func TestMemoryStore_MarkSuperseded(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	ts := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	id, err := store.Save(ctx, testDecision("TCS", ts, domain.BiasBullish, 70))
	require.NoError(t, err)

	require.NoError(t, store.MarkSuperseded(ctx, id))
	entries, err := store.History(ctx, "TCS", Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].IsSuperseded)

	err = store.MarkSuperseded(ctx, "no-such-id")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryStore_SavedEntriesAreImmutableCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	ts := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	decision := testDecision("TCS", ts, domain.BiasBullish, 70)
	_, err := store.Save(ctx, decision)
	require.NoError(t, err)

	// Mutating the source decision after save must not alter the stored row.
	decision.Contributions[0].Score = 5

	entries, err := store.History(ctx, "TCS", Filter{})
	require.NoError(t, err)
	assert.Equal(t, 70.0, entries[0].PillarScores["trend"])
}
