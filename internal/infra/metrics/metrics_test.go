package metrics

import (
	"testing"
	"time"

	"hybrid-retrieval/internal/domain"
	"hybrid-retrieval/internal/usecase"
	"hybrid-retrieval/internal/usecase/retrieval"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ retrieval.Recorder = (*Metrics)(nil)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveStage("graph_bias", 12*time.Millisecond)
	m.SourceDegraded("vector", domain.KindSourceTimeout)
	m.SourceDegraded("vector", domain.KindSourceTimeout)
	m.GraphBudgetExceeded()
	m.RerankSkipped("high_confidence")
	m.AnswerFinished(usecase.AnswerStateDone, "")
	m.AnswerFinished(usecase.AnswerStateFailed, domain.KindGenerationFailure)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SourceDegradedTotal.WithLabelValues("vector", "source_timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GraphBudgetExceededTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RerankSkippedTotal.WithLabelValues("high_confidence")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AnswersTotal.WithLabelValues("failed", "generation_failure")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.StageDuration))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 5)
}
