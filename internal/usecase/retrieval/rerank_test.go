package retrieval_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"hybrid-retrieval/internal/domain"
	"hybrid-retrieval/internal/usecase/retrieval"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func rankedCandidates(topFused float64) []domain.Candidate {
	return []domain.Candidate{
		{ID: "c1", FusedScore: topFused, GraphBoost: 0.1, FinalScore: topFused + 0.1},
		{ID: "c2", FusedScore: 0.5, FinalScore: 0.5},
		{ID: "c3", FusedScore: 0.4, FinalScore: 0.4},
	}
}

var rerankTexts = staticHydrator{"c1": "one", "c2": "two", "c3": "three"}

func TestRerankStage_SkippedWhenTopIsConfident(t *testing.T) {
	reranker := new(MockReranker)
	stage := retrieval.NewRerankStage(reranker, rerankTexts, discardLogger(), nil)

	cfg := testConfig()
	cfg.Rerank.Enabled = true
	cfg.Rerank.SkipThreshold = 0.9
	sc := newStageContext(newPlan("q", domain.RouterBalanced, 3), cfg)

	in := rankedCandidates(0.95)
	got := stage.Run(context.Background(), sc, in)

	assert.Equal(t, in, got, "order equals post-graph-bias order")
	assert.True(t, sc.Obs.RerankSkipped)
	reranker.AssertNotCalled(t, "Rerank", mock.Anything, mock.Anything, mock.Anything)
}

func TestRerankStage_ReordersWithoutTouchingEarlierScores(t *testing.T) {
	reranker := new(MockReranker)
	reranker.On("Rerank", mock.Anything, "q", mock.MatchedBy(func(c []domain.RerankCandidate) bool {
		return len(c) == 3 && c[0].Content == "one"
	})).Return([]domain.RerankResult{
		{ID: "c3", Score: 0.99},
		{ID: "c1", Score: 0.42},
	}, nil)

	stage := retrieval.NewRerankStage(reranker, rerankTexts, discardLogger(), nil)
	sc := newStageContext(newPlan("q", domain.RouterBalanced, 3), testConfig())

	got := stage.Run(context.Background(), sc, rankedCandidates(0.6))

	require.Len(t, got, 3)
	assert.Equal(t, []string{"c3", "c1", "c2"}, ids(got))
	require.NotNil(t, got[0].RerankScore)
	assert.InDelta(t, 0.99, *got[0].RerankScore, 1e-9)
	assert.InDelta(t, 0.4, got[0].FusedScore, 1e-9)
	assert.InDelta(t, 0.4, got[0].FinalScore, 1e-9)
	assert.InDelta(t, 0.1, got[1].GraphBoost, 1e-9)
	assert.Nil(t, got[2].RerankScore, "omitted candidates keep no rerank score")
	assert.Len(t, sc.Hydrated, 3)
	assert.False(t, sc.Obs.RerankSkipped)
}

func TestRerankStage_ErrorKeepsOrder(t *testing.T) {
	reranker := new(MockReranker)
	reranker.On("Rerank", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("model overloaded"))

	stage := retrieval.NewRerankStage(reranker, rerankTexts, discardLogger(), nil)
	sc := newStageContext(newPlan("q", domain.RouterBalanced, 3), testConfig())

	in := rankedCandidates(0.6)
	got := stage.Run(context.Background(), sc, in)

	assert.Equal(t, in, got)
	assert.True(t, sc.Obs.RerankFailed)
}

func TestRerankStage_TimeoutKeepsOrder(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	reranker := new(MockReranker)
	reranker.On("Rerank", mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { <-release }).
		Return([]domain.RerankResult{{ID: "c3", Score: 1}}, nil)

	cfg := testConfig()
	cfg.Rerank.Timeout = 20 * time.Millisecond
	stage := retrieval.NewRerankStage(reranker, rerankTexts, discardLogger(), nil)
	sc := newStageContext(newPlan("q", domain.RouterBalanced, 3), cfg)

	in := rankedCandidates(0.6)
	start := time.Now()
	got := stage.Run(context.Background(), sc, in)

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, in, got)
	assert.True(t, sc.Obs.RerankFailed)
}

func TestRerankStage_DisabledPassesThrough(t *testing.T) {
	reranker := new(MockReranker)
	cfg := testConfig()
	cfg.Rerank.Enabled = false
	stage := retrieval.NewRerankStage(reranker, rerankTexts, discardLogger(), nil)

	in := rankedCandidates(0.1)
	got := stage.Run(context.Background(), newStageContext(newPlan("q", domain.RouterBalanced, 3), cfg), in)

	assert.Equal(t, in, got)
	reranker.AssertNotCalled(t, "Rerank", mock.Anything, mock.Anything, mock.Anything)
}

func TestPipeline_RespectsTopKAndRecordsStages(t *testing.T) {
	reranker := new(MockReranker)
	cfg := testConfig()
	plan := ownershipPlan()
	plan.TopK = 2
	sc := newStageContext(plan, cfg)

	pipeline := retrieval.NewPipeline(nil,
		retrieval.NewGraphBiasStage(ownershipGraph(), discardLogger(), nil),
		retrieval.TopKStage{},
		retrieval.NewRerankStage(reranker, rerankTexts, discardLogger(), nil),
	)

	// chunk-alice ends on top with fused 0.95, so rerank is skipped.
	in := ownershipCandidates()
	in[1].FusedScore = 0.95
	got := pipeline.Run(context.Background(), sc, in)

	assert.Len(t, got, 2)
	assert.Equal(t, "chunk-alice", got[0].ID)
	assert.Contains(t, sc.Obs.StageLatencies, "graph_bias")
	assert.Contains(t, sc.Obs.StageLatencies, "top_k")
	assert.Contains(t, sc.Obs.StageLatencies, "rerank")
	assert.Equal(t, 2, sc.Obs.CandidateCounts["top_k"])
	assert.True(t, sc.Obs.RerankSkipped)
}
