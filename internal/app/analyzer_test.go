package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/signalrun/internal/cache"
	"github.com/quantfold/signalrun/internal/domain"
	"github.com/quantfold/signalrun/internal/engine"
	"github.com/quantfold/signalrun/internal/gate"
	"github.com/quantfold/signalrun/internal/history"
	"github.com/quantfold/signalrun/internal/pillars"
	"github.com/quantfold/signalrun/internal/stream"
)

type stubSource struct {
	snap         *domain.SignalSnapshot
	snapErr      error
	sessionCalls int
}

func (s *stubSource) BuildSnapshot(_ context.Context, symbol string) (*domain.SignalSnapshot, error) {
	if s.snapErr != nil {
		return nil, s.snapErr
	}
	snap := *s.snap
	snap.Symbol = symbol
	return &snap, nil
}

func (s *stubSource) BuildSessionContext(_ context.Context) *domain.SessionContext {
	s.sessionCalls++
	return &domain.SessionContext{Timestamp: time.Now(), Regime: "NEUTRAL"}
}

type stubPillar struct {
	score float64
	bias  domain.Bias
}

func (p stubPillar) Name() string { return "stub" }
func (p stubPillar) Score(_ *domain.SignalSnapshot, _ *domain.SessionContext) (float64, domain.Bias, map[string]float64) {
	return p.score, p.bias, map[string]float64{"v": p.score}
}

type stubHealth struct{}

func (stubHealth) GetFeedState(_ context.Context) gate.FeedState     { return gate.FeedUp }
func (stubHealth) IsExecutionGloballyEnabled(_ context.Context) bool { return true }

type stubTicks struct{ fresh bool }

func (s stubTicks) LastTick(_ string) (stream.Tick, bool) {
	if !s.fresh {
		return stream.Tick{}, false
	}
	return stream.Tick{Channel: stream.ChannelRealtime, ReceivedAt: time.Now()}, true
}
func (s stubTicks) IsSubscribed(_ string) bool { return s.fresh }

func testEngine(t *testing.T, score float64, bias domain.Bias) *engine.ReasoningEngine {
	t.Helper()
	registry := map[string]pillars.Pillar{"stub": stubPillar{score: score, bias: bias}}
	cfg := engine.DefaultConfig()
	cfg.Weights = map[string]float64{"stub": 1.0}
	eng, err := engine.New(cfg, registry)
	require.NoError(t, err)
	return eng
}

func testSnapshot() *domain.SignalSnapshot {
	return &domain.SignalSnapshot{Symbol: "TCS", Timestamp: time.Now()}
}

func TestAnalyze_FullPipelinePersists(t *testing.T) {
	store := history.NewMemoryStore()
	analyzer := NewAnalyzer(
		&stubSource{snap: testSnapshot()},
		testEngine(t, 80, domain.BiasBullish),
		gate.New(nil, stubHealth{}, stubTicks{fresh: true}),
		store, nil, nil)

	decision, err := analyzer.Analyze(context.Background(), "TCS")
	require.NoError(t, err)
	assert.Equal(t, domain.BiasBullish, decision.Bias)
	assert.Equal(t, 80.0, decision.Conviction)
	assert.True(t, decision.IsExecutionReady)

	entries, err := store.History(context.Background(), "TCS", history.Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 80.0, entries[0].Conviction)
}

func TestAnalyze_GateBlockStillPersistsDecision(t *testing.T) {
	store := history.NewMemoryStore()
	analyzer := NewAnalyzer(
		&stubSource{snap: testSnapshot()},
		testEngine(t, 80, domain.BiasBullish),
		gate.New(nil, stubHealth{}, stubTicks{fresh: false}),
		store, nil, nil)

	decision, err := analyzer.Analyze(context.Background(), "TCS")
	require.NoError(t, err)
	assert.False(t, decision.IsExecutionReady, "gate block clears readiness")
	assert.NotEmpty(t, decision.BlockReason)
	assert.Equal(t, domain.BiasBullish, decision.Bias, "opinion survives the block")

	entries, err := store.History(context.Background(), "TCS", history.Filter{})
	require.NoError(t, err)
	assert.Len(t, entries, 1, "blocked decisions still enter the log")
}

func TestAnalyze_SnapshotFailureAborts(t *testing.T) {
	boom := errors.New("feed down")
	analyzer := NewAnalyzer(
		&stubSource{snapErr: boom},
		testEngine(t, 80, domain.BiasBullish),
		nil, history.NewMemoryStore(), nil, nil)

	_, err := analyzer.Analyze(context.Background(), "TCS")
	assert.True(t, errors.Is(err, boom))
}

func TestAnalyze_SessionContextIsCachedAcrossCalls(t *testing.T) {
	source := &stubSource{snap: testSnapshot()}
	analyzer := NewAnalyzer(
		source,
		testEngine(t, 50, domain.BiasNeutral),
		nil, history.NewMemoryStore(),
		cache.NewSessionCache(cache.NewMemory(), time.Minute), nil)

	ctx := context.Background()
	_, err := analyzer.Analyze(ctx, "TCS")
	require.NoError(t, err)
	_, err = analyzer.Analyze(ctx, "INFY")
	require.NoError(t, err)

	assert.Equal(t, 1, source.sessionCalls, "second analysis reuses the cached session")
}

func TestDrift_ComputesAgainstStoredBaseline(t *testing.T) {
	store := history.NewMemoryStore()
	source := &stubSource{snap: testSnapshot()}
	analyzer := NewAnalyzer(source, testEngine(t, 80, domain.BiasBullish), nil, store, nil, nil)

	ctx := context.Background()
	_, err := analyzer.Analyze(ctx, "TCS")
	require.NoError(t, err)

	report, decision, err := analyzer.Drift(ctx, "TCS")
	require.NoError(t, err)
	require.NotNil(t, decision)
	require.Len(t, report.Pillars, 1)
	assert.Equal(t, 0.0, report.Pillars[0].Delta)
	assert.False(t, report.Pillars[0].Significant)

	entries, err := store.History(ctx, "TCS", history.Filter{})
	require.NoError(t, err)
	assert.Len(t, entries, 2, "drift persists the fresh decision as the new baseline")
}

// failAfterStore wraps a Store and fails every Save after the first allowed
// calls, simulating storage loss mid-flight.
type failAfterStore struct {
	history.Store
	allowed int
	saves   int
	err     error
}

func (s *failAfterStore) Save(ctx context.Context, decision *domain.Decision) (string, error) {
	s.saves++
	if s.saves > s.allowed {
		return "", s.err
	}
	return s.Store.Save(ctx, decision)
}

func TestDrift_BaselineSaveFailurePropagates(t *testing.T) {
	diskFull := errors.New("disk full")
	store := &failAfterStore{Store: history.NewMemoryStore(), allowed: 1, err: diskFull}
	analyzer := NewAnalyzer(
		&stubSource{snap: testSnapshot()},
		testEngine(t, 80, domain.BiasBullish),
		nil, store, nil, nil)

	ctx := context.Background()
	_, err := analyzer.Analyze(ctx, "TCS")
	require.NoError(t, err, "first save establishes the baseline")

	report, decision, err := analyzer.Drift(ctx, "TCS")
	require.Error(t, err, "a lost history write must surface, not vanish at Warn")
	assert.True(t, errors.Is(err, diskFull))
	assert.Nil(t, report)
	assert.Nil(t, decision)
}

func TestSaveDecision_PassesThroughToStore(t *testing.T) {
	store := history.NewMemoryStore()
	analyzer := NewAnalyzer(
		&stubSource{snap: testSnapshot()},
		testEngine(t, 80, domain.BiasBullish),
		nil, store, nil, nil)

	decision := testEngine(t, 72, domain.BiasBullish).Analyze(testSnapshot(), nil)
	decision.Symbol = "TCS"

	id, err := analyzer.SaveDecision(context.Background(), decision)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	entries, err := store.History(context.Background(), "TCS", history.Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, id, entries[0].ID)
}

func TestDrift_NoBaselineIsInsufficient(t *testing.T) {
	analyzer := NewAnalyzer(
		&stubSource{snap: testSnapshot()},
		testEngine(t, 80, domain.BiasBullish),
		nil, history.NewMemoryStore(), nil, nil)

	_, _, err := analyzer.Drift(context.Background(), "TCS")
	assert.True(t, errors.Is(err, history.ErrInsufficientHistory))
}
