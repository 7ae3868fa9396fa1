package usecase_test

import (
	"context"
	"io"
	"log/slog"

	"hybrid-retrieval/internal/domain"
	"hybrid-retrieval/internal/usecase"

	"github.com/stretchr/testify/mock"
)

const testTenant = "tenant-a"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// staticConfigs serves one config for every tenant.
type staticConfigs struct {
	cfg *domain.TenantConfig
}

func (s staticConfigs) ForTenant(tenantID string) *domain.TenantConfig {
	cfg := *s.cfg
	cfg.TenantID = tenantID
	return &cfg
}

func defaultConfigs() staticConfigs {
	cfg := domain.DefaultTenantConfig()
	return staticConfigs{cfg: &cfg}
}

type mockLLMClient struct {
	mock.Mock
}

func (m *mockLLMClient) ChatStream(ctx context.Context, messages []domain.Message, maxTokens int) (<-chan domain.LLMStreamChunk, <-chan error, error) {
	args := m.Called(ctx, messages, maxTokens)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(<-chan domain.LLMStreamChunk), args.Get(1).(<-chan error), args.Error(2)
}

func (m *mockLLMClient) Version() string {
	return "mock"
}

type mockSearchUsecase struct {
	mock.Mock
}

func (m *mockSearchUsecase) Execute(ctx context.Context, input usecase.PlanInput) (*usecase.SearchOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.SearchOutput), args.Error(1)
}

func (m *mockSearchUsecase) ExecutePlan(ctx context.Context, plan *domain.QueryPlan) (*usecase.SearchOutput, error) {
	args := m.Called(ctx, plan)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.SearchOutput), args.Error(1)
}

type mockHydrationStore struct {
	mock.Mock
}

func (m *mockHydrationStore) GetChunk(ctx context.Context, tenantID, id string) (*domain.HydratedChunk, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.HydratedChunk), args.Error(1)
}

func (m *mockHydrationStore) GetDocument(ctx context.Context, tenantID, id string) (*domain.HydratedChunk, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.HydratedChunk), args.Error(1)
}

// memoryStore is a HydrationStore backed by a map.
type memoryStore map[string]string

func (s memoryStore) GetChunk(_ context.Context, _ string, id string) (*domain.HydratedChunk, error) {
	text, ok := s[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &domain.HydratedChunk{ID: id, Title: "title " + id, Text: text}, nil
}

func (s memoryStore) GetDocument(ctx context.Context, tenantID, id string) (*domain.HydratedChunk, error) {
	return s.GetChunk(ctx, tenantID, id)
}

// scriptedStream returns channels fed from tokens by a goroutine. The last chunk has Done set.
func scriptedStream(tokens ...string) (<-chan domain.LLMStreamChunk, <-chan error) {
	chunks := make(chan domain.LLMStreamChunk, len(tokens)+1)
	errs := make(chan error, 1)
	for _, tok := range tokens {
		chunks <- domain.LLMStreamChunk{Response: tok}
	}
	chunks <- domain.LLMStreamChunk{Done: true}
	close(chunks)
	close(errs)
	return chunks, errs
}

func collectEvents(ch <-chan usecase.AnswerEvent) []usecase.AnswerEvent {
	var events []usecase.AnswerEvent
	for e := range ch {
		events = append(events, e)
	}
	return events
}

func findEvents(events []usecase.AnswerEvent, kind usecase.AnswerEventKind) []usecase.AnswerEvent {
	var matches []usecase.AnswerEvent
	for _, e := range events {
		if e.Kind == kind {
			matches = append(matches, e)
		}
	}
	return matches
}
