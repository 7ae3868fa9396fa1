// Package metrics provides Prometheus metrics for the retrieval engine.
package metrics

import (
	"time"

	"hybrid-retrieval/internal/domain"
	"hybrid-retrieval/internal/usecase"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "hybrid_retrieval"

// Metrics implements retrieval.Recorder and usecase.AnswerRecorder.
type Metrics struct {
	// StageDuration measures each ranking stage.
	StageDuration *prometheus.HistogramVec
	// SourceDegradedTotal counts retrieval sources dropped from a request.
	SourceDegradedTotal *prometheus.CounterVec
	// GraphBudgetExceededTotal counts graph traversals cut off by their budget.
	GraphBudgetExceededTotal prometheus.Counter
	// RerankSkippedTotal counts requests that kept the fused order.
	RerankSkippedTotal *prometheus.CounterVec
	// AnswersTotal counts answer streams by terminal state.
	AnswersTotal *prometheus.CounterVec
}

// New registers the metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of retrieval stages in seconds",
				Buckets:   []float64{0.001, 0.0025, 0.005, 0.01, 0.02, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"stage"},
		),
		SourceDegradedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_degraded_total",
				Help:      "Total number of retrieval sources dropped from a request",
			},
			[]string{"source", "kind"},
		),
		GraphBudgetExceededTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "graph_budget_exceeded_total",
				Help:      "Total number of graph traversals stopped by their time budget",
			},
		),
		RerankSkippedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rerank_skipped_total",
				Help:      "Total number of requests that skipped reranking",
			},
			[]string{"reason"},
		),
		AnswersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "answers_total",
				Help:      "Total number of answer streams by terminal state",
			},
			[]string{"state", "kind"},
		),
	}
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) SourceDegraded(source string, kind domain.ErrorKind) {
	m.SourceDegradedTotal.WithLabelValues(source, string(kind)).Inc()
}

func (m *Metrics) GraphBudgetExceeded() {
	m.GraphBudgetExceededTotal.Inc()
}

func (m *Metrics) RerankSkipped(reason string) {
	m.RerankSkippedTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) AnswerFinished(state usecase.AnswerState, kind domain.ErrorKind) {
	m.AnswersTotal.WithLabelValues(string(state), string(kind)).Inc()
}

var _ usecase.AnswerRecorder = (*Metrics)(nil)
