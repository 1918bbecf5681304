package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordDecision_BlockRatio(t *testing.T) {
	m := NewRegistry()

	m.RecordDecision("BULLISH", "")
	m.RecordDecision("NEUTRAL", "blocked_by_feed_health")
	m.RecordDecision("BEARISH", "blocked_by_kill_switch")
	m.RecordDecision("BULLISH", "")

	families, err := m.reg.Gather()
	require.NoError(t, err)

	values := make(map[string]float64)
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			if metric.GetGauge() != nil && family.GetName() == "signalrun_gate_block_ratio" {
				values[family.GetName()] = metric.GetGauge().GetValue()
			}
		}
	}
	assert.Equal(t, 0.5, values["signalrun_gate_block_ratio"])
}

func TestHandler_ExposesMetrics(t *testing.T) {
	m := NewRegistry()
	m.RecordPillarFailure("trend")
	m.RecordDecision("BULLISH", "")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "signalrun_pillar_failures_total")
	assert.Contains(t, body, "signalrun_decisions_total")
}

func TestIndependentRegistriesCoexist(t *testing.T) {
	a := NewRegistry()
	b := NewRegistry()
	a.IncrementActiveAnalyses()
	b.IncrementActiveAnalyses()
	a.DecrementActiveAnalyses()
	// No panic from duplicate registration is the point.
}
