package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	io_prometheus_client "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog/log"
)

// Registry holds all Prometheus metrics for the decision engine. It owns a
// private prometheus registry so multiple instances can coexist in tests.
type Registry struct {
	reg *prometheus.Registry

	AnalysisDuration *prometheus.HistogramVec
	PillarFailures   *prometheus.CounterVec
	GateBlocks       *prometheus.CounterVec
	Decisions        *prometheus.CounterVec
	ActiveAnalyses   prometheus.Gauge
	BlockRatio       prometheus.Gauge
}

// NewRegistry creates and registers all decision-engine metrics.
func NewRegistry() *Registry {
	registry := &Registry{
		reg: prometheus.NewRegistry(),

		AnalysisDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signalrun_analysis_duration_seconds",
				Help:    "Duration of each analysis stage in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"stage", "result"},
		),

		PillarFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalrun_pillar_failures_total",
				Help: "Total number of pillar scoring failures by pillar",
			},
			[]string{"pillar"},
		),

		GateBlocks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalrun_gate_blocks_total",
				Help: "Total number of safety gate blocks by reason",
			},
			[]string{"reason"},
		),

		Decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalrun_decisions_total",
				Help: "Total number of decisions emitted by bias",
			},
			[]string{"bias"},
		),

		ActiveAnalyses: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "signalrun_active_analyses",
				Help: "Number of analyses currently in flight",
			},
		),

		BlockRatio: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "signalrun_gate_block_ratio",
				Help: "Fraction of gated decisions that were blocked (0.0 to 1.0)",
			},
		),
	}

	registry.reg.MustRegister(
		registry.AnalysisDuration,
		registry.PillarFailures,
		registry.GateBlocks,
		registry.Decisions,
		registry.ActiveAnalyses,
		registry.BlockRatio,
	)

	return registry
}

// StageTimer tracks execution time for one analysis stage.
type StageTimer struct {
	metrics *Registry
	stage   string
	start   time.Time
}

// StartStageTimer begins timing an analysis stage.
func (m *Registry) StartStageTimer(stage string) *StageTimer {
	return &StageTimer{metrics: m, stage: stage, start: time.Now()}
}

// Stop completes the timing and records the observation.
func (st *StageTimer) Stop(result string) {
	duration := time.Since(st.start)
	st.metrics.AnalysisDuration.WithLabelValues(st.stage, result).Observe(duration.Seconds())

	log.Debug().
		Str("stage", st.stage).
		Str("result", result).
		Dur("duration", duration).
		Msg("analysis stage completed")
}

// RecordPillarFailure counts one pillar scoring failure.
func (m *Registry) RecordPillarFailure(pillar string) {
	m.PillarFailures.WithLabelValues(pillar).Inc()
}

// RecordDecision counts an emitted decision and whether the gate blocked it.
func (m *Registry) RecordDecision(bias string, blockReason string) {
	m.Decisions.WithLabelValues(bias).Inc()
	if blockReason != "" {
		m.GateBlocks.WithLabelValues(blockReason).Inc()
	}
	m.updateBlockRatio()
}

// IncrementActiveAnalyses marks an analysis in flight.
func (m *Registry) IncrementActiveAnalyses() { m.ActiveAnalyses.Inc() }

// DecrementActiveAnalyses marks an analysis finished.
func (m *Registry) DecrementActiveAnalyses() { m.ActiveAnalyses.Dec() }

func (m *Registry) updateBlockRatio() {
	families, err := m.reg.Gather()
	if err != nil {
		return
	}

	var decisions, blocks float64
	for _, family := range families {
		switch family.GetName() {
		case "signalrun_decisions_total":
			decisions += sumCounters(family)
		case "signalrun_gate_blocks_total":
			blocks += sumCounters(family)
		}
	}
	if decisions > 0 {
		m.BlockRatio.Set(blocks / decisions)
	}
}

func sumCounters(family *io_prometheus_client.MetricFamily) float64 {
	var total float64
	for _, metric := range family.GetMetric() {
		total += metric.GetCounter().GetValue()
	}
	return total
}

// Handler exposes the registry in Prometheus text format.
func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
