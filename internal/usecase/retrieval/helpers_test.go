package retrieval_test

import (
	"context"
	"io"
	"log/slog"

	"hybrid-retrieval/internal/domain"
	"hybrid-retrieval/internal/usecase/retrieval"

	"github.com/stretchr/testify/mock"
)

const testTenant = "tenant-a"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func testConfig() *domain.TenantConfig {
	cfg := domain.DefaultTenantConfig()
	cfg.TenantID = testTenant
	return &cfg
}

func newPlan(query string, mode domain.RouterMode, topK int) *domain.QueryPlan {
	return &domain.QueryPlan{
		RawQuery:   query,
		Mode:       domain.ModeHybrid,
		RouterMode: mode,
		Filters:    domain.Filters{TenantID: testTenant},
		TopK:       topK,
		Intent:     domain.IntentGeneral,
	}
}

func newStageContext(plan *domain.QueryPlan, cfg *domain.TenantConfig) *retrieval.StageContext {
	return retrieval.NewStageContext("req-test", plan, cfg)
}

func ids(candidates []domain.Candidate) []string {
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.ID
	}
	return out
}

// MockLexicalSearcher is a test double for domain.LexicalSearcher.
type MockLexicalSearcher struct {
	mock.Mock
}

func (m *MockLexicalSearcher) Query(ctx context.Context, plan *domain.QueryPlan, limit int) ([]domain.ScoredHit, error) {
	args := m.Called(ctx, plan, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ScoredHit), args.Error(1)
}

// MockVectorSearcher is a test double for domain.VectorSearcher.
type MockVectorSearcher struct {
	mock.Mock
}

func (m *MockVectorSearcher) Query(ctx context.Context, q domain.VectorQuery) ([]domain.ScoredHit, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ScoredHit), args.Error(1)
}

type vectorFunc func(ctx context.Context, q domain.VectorQuery) ([]domain.ScoredHit, error)

func (f vectorFunc) Query(ctx context.Context, q domain.VectorQuery) ([]domain.ScoredHit, error) {
	return f(ctx, q)
}

// fakeGraph serves aliases and adjacency from maps, with an optional delay per hop.
type fakeGraph struct {
	aliases   map[string]string
	adjacency map[string][]domain.Adjacent
	hopDelay  func()
	adjErr    error
}

func (g *fakeGraph) ResolveAliases(_ context.Context, tenantID string, hints []string) (map[string]string, error) {
	out := make(map[string]string)
	if tenantID != testTenant {
		return out, nil
	}
	for _, h := range hints {
		if id, ok := g.aliases[h]; ok {
			out[h] = id
		}
	}
	return out, nil
}

func (g *fakeGraph) Adjacency(_ context.Context, tenantID, entityID string, _ []string) ([]domain.Adjacent, error) {
	if g.hopDelay != nil {
		g.hopDelay()
	}
	if g.adjErr != nil {
		return nil, g.adjErr
	}
	if tenantID != testTenant {
		return nil, nil
	}
	return append([]domain.Adjacent(nil), g.adjacency[entityID]...), nil
}

// MockReranker is a test double for domain.Reranker.
type MockReranker struct {
	mock.Mock
}

func (m *MockReranker) Rerank(ctx context.Context, query string, candidates []domain.RerankCandidate) ([]domain.RerankResult, error) {
	args := m.Called(ctx, query, candidates)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RerankResult), args.Error(1)
}

func (m *MockReranker) ModelName() string {
	return "test-reranker"
}

// staticHydrator returns text for every candidate id it knows.
type staticHydrator map[string]string

func (h staticHydrator) Hydrate(_ context.Context, _ string, candidates []domain.Candidate) (map[string]*domain.HydratedChunk, error) {
	out := make(map[string]*domain.HydratedChunk)
	for _, c := range candidates {
		if text, ok := h[c.ID]; ok {
			out[c.ID] = &domain.HydratedChunk{ID: c.ID, Text: text}
		}
	}
	return out, nil
}
