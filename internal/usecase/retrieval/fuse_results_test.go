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

var baseTime = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func lexicalHits() []domain.ScoredHit {
	return []domain.ScoredHit{
		{ID: "a", Score: 10, OccurredAt: baseTime},
		{ID: "b", Score: 5, OccurredAt: baseTime},
		{ID: "c", Score: 0, OccurredAt: baseTime.Add(time.Hour)},
	}
}

func vectorHits() []domain.ScoredHit {
	return []domain.ScoredHit{
		{ID: "b", Score: 0.9, OccurredAt: baseTime},
		{ID: "d", Score: 0.5, OccurredAt: baseTime},
	}
}

func TestFusionEngine_WeightedSumOfNormalizedScores(t *testing.T) {
	lex := new(MockLexicalSearcher)
	vec := new(MockVectorSearcher)
	lex.On("Query", mock.Anything, mock.Anything, 30).Return(lexicalHits(), nil)
	vec.On("Query", mock.Anything, mock.MatchedBy(func(q domain.VectorQuery) bool {
		return q.Namespace == "tenant_"+testTenant && q.Filters.TenantID == testTenant && q.TopK == 30
	})).Return(vectorHits(), nil)

	engine := retrieval.NewFusionEngine(lex, vec, discardLogger())
	sc := newStageContext(newPlan("payment retries", domain.RouterBalanced, 10), testConfig())

	got, err := engine.Retrieve(context.Background(), sc)
	require.NoError(t, err)

	// b: (0.5*0.5 + 0.5*1) / 1 = 0.75, a: 0.5, c and d tie at 0 and c is more recent.
	assert.Equal(t, []string{"b", "a", "c", "d"}, ids(got))
	assert.InDelta(t, 0.75, got[0].FusedScore, 1e-9)
	assert.InDelta(t, 0.5, got[1].FusedScore, 1e-9)
	assert.Equal(t, got[0].FusedScore, got[0].FinalScore)
	require.NotNil(t, got[0].LexicalScore)
	require.NotNil(t, got[0].VectorScore)
	assert.InDelta(t, 0.5, *got[0].LexicalScore, 1e-9)
	assert.Nil(t, got[1].VectorScore, "a only came from lexical")
	assert.False(t, sc.Obs.Degraded)
	assert.Equal(t, 4, sc.Obs.CandidateCounts["fused"])
}

func TestFusionEngine_BothSourcesFail_ReturnsSourceFailure(t *testing.T) {
	lex := new(MockLexicalSearcher)
	vec := new(MockVectorSearcher)
	lex.On("Query", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("meilisearch down"))
	vec.On("Query", mock.Anything, mock.Anything).Return(nil, errors.New("pgvector down"))

	engine := retrieval.NewFusionEngine(lex, vec, discardLogger())
	sc := newStageContext(newPlan("payment retries", domain.RouterVectorWeighted, 10), testConfig())

	got, err := engine.Retrieve(context.Background(), sc)
	require.Error(t, err)
	assert.Nil(t, got, "no partial data on total failure")
	assert.ErrorIs(t, err, domain.ErrSourceFailure)
	assert.Equal(t, domain.KindSourceFailure, domain.KindOf(err))
}

func TestFusionEngine_OneSourceFails_ReturnsSurvivorFlaggedDegraded(t *testing.T) {
	lex := new(MockLexicalSearcher)
	vec := new(MockVectorSearcher)
	lex.On("Query", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("index unavailable"))
	vec.On("Query", mock.Anything, mock.Anything).Return(vectorHits(), nil)

	engine := retrieval.NewFusionEngine(lex, vec, discardLogger())
	sc := newStageContext(newPlan("payment retries", domain.RouterLexicalWeighted, 10), testConfig())

	got, err := engine.Retrieve(context.Background(), sc)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"b", "d"}, ids(got))
	assert.True(t, sc.Obs.Degraded)
	assert.Equal(t, domain.KindSourceFailure, sc.Obs.DegradedSources["lexical"])
	for _, c := range got {
		assert.Nil(t, c.LexicalScore)
	}
	// Surviving source carries full weight.
	assert.InDelta(t, 1.0, got[0].FusedScore, 1e-9)
}

func TestFusionEngine_SlowSourceTimesOut(t *testing.T) {
	lex := new(MockLexicalSearcher)
	lex.On("Query", mock.Anything, mock.Anything, mock.Anything).Return(lexicalHits(), nil)

	release := make(chan struct{})
	defer close(release)
	vec := vectorFunc(func(ctx context.Context, q domain.VectorQuery) ([]domain.ScoredHit, error) {
		<-release // ignores ctx on purpose
		return vectorHits(), nil
	})

	cfg := testConfig()
	cfg.Fusion.VectorTimeout = 20 * time.Millisecond

	engine := retrieval.NewFusionEngine(lex, vec, discardLogger())
	sc := newStageContext(newPlan("payment retries", domain.RouterBalanced, 10), cfg)

	start := time.Now()
	got, err := engine.Retrieve(context.Background(), sc)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Less(t, elapsed, 500*time.Millisecond)
	assert.Equal(t, []string{"a", "b", "c"}, ids(got))
	assert.Equal(t, domain.KindSourceTimeout, sc.Obs.DegradedSources["vector"])
}

func TestFusionEngine_TruncatesToOverfetch(t *testing.T) {
	hits := make([]domain.ScoredHit, 0, 20)
	for i := 0; i < 20; i++ {
		hits = append(hits, domain.ScoredHit{ID: string(rune('a' + i)), Score: float64(20 - i)})
	}
	lex := new(MockLexicalSearcher)
	lex.On("Query", mock.Anything, mock.Anything, 6).Return(hits, nil)

	engine := retrieval.NewFusionEngine(lex, nil, discardLogger())
	plan := newPlan("retry_policy", domain.RouterLexicalOnly, 2)
	sc := newStageContext(plan, testConfig())

	got, err := engine.Retrieve(context.Background(), sc)
	require.NoError(t, err)
	assert.Len(t, got, 6, "topK 2 * overfetch 3")
	assert.Equal(t, "a", got[0].ID)
}

func TestFusionEngine_LexicalOnlyDoesNotQueryVector(t *testing.T) {
	lex := new(MockLexicalSearcher)
	vec := new(MockVectorSearcher)
	lex.On("Query", mock.Anything, mock.Anything, mock.Anything).Return(lexicalHits(), nil)

	engine := retrieval.NewFusionEngine(lex, vec, discardLogger())
	sc := newStageContext(newPlan("retry_policy", domain.RouterLexicalOnly, 10), testConfig())

	_, err := engine.Retrieve(context.Background(), sc)
	require.NoError(t, err)
	vec.AssertNotCalled(t, "Query", mock.Anything, mock.Anything)
	assert.False(t, sc.Obs.Degraded)
}

func TestFusionEngine_DeterministicOrdering(t *testing.T) {
	lex := new(MockLexicalSearcher)
	vec := new(MockVectorSearcher)
	tied := []domain.ScoredHit{
		{ID: "z", Score: 1, OccurredAt: baseTime},
		{ID: "y", Score: 1, OccurredAt: baseTime},
		{ID: "x", Score: 1, OccurredAt: baseTime},
	}
	lex.On("Query", mock.Anything, mock.Anything, mock.Anything).Return(tied, nil)
	vec.On("Query", mock.Anything, mock.Anything).Return(vectorHits(), nil)

	engine := retrieval.NewFusionEngine(lex, vec, discardLogger())
	plan := newPlan("payment retries", domain.RouterBalanced, 10)

	first, err := engine.Retrieve(context.Background(), newStageContext(plan, testConfig()))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := engine.Retrieve(context.Background(), newStageContext(plan, testConfig()))
		require.NoError(t, err)
		assert.Equal(t, ids(first), ids(again))
	}
	assert.Equal(t, []string{"b", "x", "y", "z", "d"}, ids(first))
}

func TestFusionEngine_CallerCancellation(t *testing.T) {
	lex := new(MockLexicalSearcher)
	lex.On("Query", mock.Anything, mock.Anything, mock.Anything).Return(lexicalHits(), nil)

	engine := retrieval.NewFusionEngine(lex, nil, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Retrieve(ctx, newStageContext(newPlan("q", domain.RouterLexicalOnly, 10), testConfig()))
	assert.ErrorIs(t, err, context.Canceled)
}
