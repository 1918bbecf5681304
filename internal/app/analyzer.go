package app

import (
	"context"
	"fmt"

	"github.com/quantfold/signalrun/internal/cache"
	"github.com/quantfold/signalrun/internal/domain"
	"github.com/quantfold/signalrun/internal/engine"
	"github.com/quantfold/signalrun/internal/gate"
	"github.com/quantfold/signalrun/internal/history"
	"github.com/quantfold/signalrun/internal/metrics"
	"github.com/quantfold/signalrun/internal/snapshot"
)

// SnapshotSource is what the analyzer needs from the snapshot layer.
// *snapshot.Builder satisfies it.
type SnapshotSource interface {
	BuildSnapshot(ctx context.Context, symbol string) (*domain.SignalSnapshot, error)
	BuildSessionContext(ctx context.Context) *domain.SessionContext
}

// Analyzer is the top-level pipeline: snapshot, reasoning, safety gate,
// persistence. Every stage after the snapshot is non-blocking on failure;
// a decision is always produced once a snapshot exists.
type Analyzer struct {
	source   SnapshotSource
	engine   *engine.ReasoningEngine
	gate     *gate.SafetyGate
	store    history.Store
	analytic *history.AnalyticsEngine
	sessions *cache.SessionCache
	metrics  *metrics.Registry
}

// NewAnalyzer wires the pipeline. gate, sessions and metrics may be nil;
// the corresponding stage is skipped.
func NewAnalyzer(source SnapshotSource, eng *engine.ReasoningEngine, safetyGate *gate.SafetyGate,
	store history.Store, sessions *cache.SessionCache, reg *metrics.Registry) *Analyzer {
	return &Analyzer{
		source:   source,
		engine:   eng,
		gate:     safetyGate,
		store:    store,
		analytic: history.NewAnalyticsEngine(store),
		sessions: sessions,
		metrics:  reg,
	}
}

// Analyze runs the full pipeline for one symbol and persists the result.
// The returned decision is complete even when the gate blocks execution;
// only snapshot failure aborts.
func (a *Analyzer) Analyze(ctx context.Context, symbol string) (*domain.Decision, error) {
	if a.metrics != nil {
		a.metrics.IncrementActiveAnalyses()
		defer a.metrics.DecrementActiveAnalyses()
	}

	snap, err := a.buildSnapshot(ctx, symbol)
	if err != nil {
		return nil, err
	}
	session := a.sessionContext(ctx)

	decision := a.engine.Analyze(snap, session)

	if a.gate != nil {
		result := a.gate.Evaluate(ctx, symbol)
		gate.Apply(decision, result)
	}

	if a.metrics != nil {
		a.metrics.RecordDecision(string(decision.Bias), decision.BlockReason)
		for _, name := range decision.Quality.FailedPillars {
			a.metrics.RecordPillarFailure(name)
		}
	}

	if a.store != nil {
		if _, err := a.store.Save(ctx, decision); err != nil {
			return nil, fmt.Errorf("failed to persist decision for %s: %w", symbol, err)
		}
	}

	return decision, nil
}

func (a *Analyzer) buildSnapshot(ctx context.Context, symbol string) (*domain.SignalSnapshot, error) {
	var timer *metrics.StageTimer
	if a.metrics != nil {
		timer = a.metrics.StartStageTimer("snapshot")
	}
	snap, err := a.source.BuildSnapshot(ctx, symbol)
	if timer != nil {
		if err != nil {
			timer.Stop("error")
		} else {
			timer.Stop("ok")
		}
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot for %s: %w", symbol, err)
	}
	return snap, nil
}

// sessionContext reuses a cached session when fresh, otherwise fetches and
// caches a new one. The session is shared across symbols.
func (a *Analyzer) sessionContext(ctx context.Context) *domain.SessionContext {
	if a.sessions != nil {
		if cached := a.sessions.Get(ctx); cached != nil {
			return cached
		}
	}
	session := a.source.BuildSessionContext(ctx)
	if a.sessions != nil {
		a.sessions.Put(ctx, session)
	}
	return session
}

// SaveDecision appends an externally-produced decision to the history log
// and returns its id. Analyze persists its own output; this is for callers
// that build decisions out of band, such as replays.
func (a *Analyzer) SaveDecision(ctx context.Context, decision *domain.Decision) (string, error) {
	if a.store == nil {
		return "", fmt.Errorf("decision history is not configured")
	}
	return a.store.Save(ctx, decision)
}

// History returns stored decisions for a symbol, newest first.
func (a *Analyzer) History(ctx context.Context, symbol string, filter history.Filter) ([]domain.DecisionHistoryEntry, error) {
	if a.store == nil {
		return nil, fmt.Errorf("decision history is not configured")
	}
	return a.store.History(ctx, symbol, filter)
}

// Drift compares the symbol's latest stored decision against a freshly
// computed one, persisting the fresh decision as the new baseline.
func (a *Analyzer) Drift(ctx context.Context, symbol string) (*history.DriftReport, *domain.Decision, error) {
	if a.store == nil {
		return nil, nil, fmt.Errorf("decision history is not configured")
	}

	snap, err := a.buildSnapshot(ctx, symbol)
	if err != nil {
		return nil, nil, err
	}
	decision := a.engine.Analyze(snap, a.sessionContext(ctx))

	report, err := a.analytic.Drift(ctx, symbol, decision.PillarScores(), decision.PillarBiases())
	if err != nil {
		return nil, nil, err
	}

	if _, err := a.store.Save(ctx, decision); err != nil {
		return nil, nil, fmt.Errorf("failed to persist drift baseline for %s: %w", symbol, err)
	}
	return report, decision, nil
}

// Correlation reports pairwise pillar correlation over the trailing window.
func (a *Analyzer) Correlation(ctx context.Context, symbol string, window int) (*history.CorrelationReport, error) {
	if a.store == nil {
		return nil, fmt.Errorf("decision history is not configured")
	}
	return a.analytic.Correlation(ctx, symbol, window)
}

// Accuracy reports directional consistency over the trailing window.
func (a *Analyzer) Accuracy(ctx context.Context, symbol string, window int) (*history.AccuracyReport, error) {
	if a.store == nil {
		return nil, fmt.Errorf("decision history is not configured")
	}
	return a.analytic.Accuracy(ctx, symbol, window)
}

var _ SnapshotSource = (*snapshot.Builder)(nil)
