package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/signalrun/internal/app"
	"github.com/quantfold/signalrun/internal/domain"
	"github.com/quantfold/signalrun/internal/engine"
	"github.com/quantfold/signalrun/internal/history"
	"github.com/quantfold/signalrun/internal/metrics"
	"github.com/quantfold/signalrun/internal/pillars"
)

type fixedSource struct{}

func (fixedSource) BuildSnapshot(_ context.Context, symbol string) (*domain.SignalSnapshot, error) {
	return &domain.SignalSnapshot{Symbol: symbol, Timestamp: time.Now()}, nil
}

func (fixedSource) BuildSessionContext(_ context.Context) *domain.SessionContext {
	return &domain.SessionContext{Timestamp: time.Now(), Regime: "NEUTRAL"}
}

type fixedPillar struct{ score float64 }

func (fixedPillar) Name() string { return "stub" }
func (p fixedPillar) Score(_ *domain.SignalSnapshot, _ *domain.SessionContext) (float64, domain.Bias, map[string]float64) {
	return p.score, domain.BiasBullish, map[string]float64{"v": p.score}
}

func testServer(t *testing.T) (*Server, history.Store) {
	t.Helper()
	registry := map[string]pillars.Pillar{"stub": fixedPillar{score: 80}}
	cfg := engine.DefaultConfig()
	cfg.Weights = map[string]float64{"stub": 1.0}
	eng, err := engine.New(cfg, registry)
	require.NoError(t, err)

	store := history.NewMemoryStore()
	analyzer := app.NewAnalyzer(fixedSource{}, eng, nil, store, nil, nil)
	return NewServer(DefaultServerConfig(), analyzer, metrics.NewRegistry()), store
}

func TestAnalyzeEndpoint(t *testing.T) {
	server, _ := testServer(t)

	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, httptest.NewRequest("POST", "/analyze/TCS", nil))

	require.Equal(t, 200, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var decision domain.Decision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decision))
	assert.Equal(t, "TCS", decision.Symbol)
	assert.Equal(t, domain.BiasBullish, decision.Bias)
	assert.Equal(t, 80.0, decision.Conviction)
}

func TestHistoryEndpoint(t *testing.T) {
	server, _ := testServer(t)

	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, httptest.NewRequest("POST", "/analyze/TCS", nil))
	require.Equal(t, 200, rec.Code)

	rec = httptest.NewRecorder()
	server.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/history/TCS?limit=10", nil))
	require.Equal(t, 200, rec.Code)

	var body struct {
		Symbol  string                        `json:"symbol"`
		Count   int                           `json:"count"`
		Entries []domain.DecisionHistoryEntry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "TCS", body.Symbol)
	assert.Equal(t, 1, body.Count)
}

func TestHistoryEndpoint_BadLimit(t *testing.T) {
	server, _ := testServer(t)

	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/history/TCS?limit=zero", nil))
	assert.Equal(t, 400, rec.Code)
}

func TestCorrelationEndpoint_InsufficientHistory(t *testing.T) {
	server, _ := testServer(t)

	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/correlation/TCS", nil))
	assert.Equal(t, 422, rec.Code)

	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Error, "insufficient history")
}

func TestDriftEndpoint_NoBaseline(t *testing.T) {
	server, _ := testServer(t)

	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/drift/TCS", nil))
	assert.Equal(t, 422, rec.Code)
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	server, _ := testServer(t)

	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = httptest.NewRecorder()
	server.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
}

func TestUnknownRouteIs404(t *testing.T) {
	server, _ := testServer(t)

	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/nope", nil))
	assert.Equal(t, 404, rec.Code)
}
