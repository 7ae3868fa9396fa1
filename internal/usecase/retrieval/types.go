package retrieval

import (
	"context"
	"time"

	"hybrid-retrieval/internal/domain"
)

// StageContext carries request-scoped data between pipeline stages.
type StageContext struct {
	RequestID string
	Plan      *domain.QueryPlan
	Config    *domain.TenantConfig
	Obs       *domain.Observability

	// Hydrated holds text resolved by earlier stages, keyed by candidate id.
	Hydrated map[string]*domain.HydratedChunk
}

// NewStageContext wires a stage context for one request.
func NewStageContext(requestID string, plan *domain.QueryPlan, cfg *domain.TenantConfig) *StageContext {
	return &StageContext{
		RequestID: requestID,
		Plan:      plan,
		Config:    cfg,
		Obs:       domain.NewObservability(requestID, plan.RouterMode),
		Hydrated:  make(map[string]*domain.HydratedChunk),
	}
}

// Stage transforms a ranked candidate list. Stages degrade instead of failing.
type Stage interface {
	Name() string
	Run(ctx context.Context, sc *StageContext, candidates []domain.Candidate) []domain.Candidate
}

// Hydrator resolves candidate text. Missing candidates are absent from the result.
type Hydrator interface {
	Hydrate(ctx context.Context, tenantID string, candidates []domain.Candidate) (map[string]*domain.HydratedChunk, error)
}

// Recorder receives stage measurements.
type Recorder interface {
	ObserveStage(stage string, d time.Duration)
	SourceDegraded(source string, kind domain.ErrorKind)
	GraphBudgetExceeded()
	RerankSkipped(reason string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveStage(string, time.Duration) {}
func (nopRecorder) SourceDegraded(string, domain.ErrorKind) {}
func (nopRecorder) GraphBudgetExceeded() {}
func (nopRecorder) RerankSkipped(string) {}

func recorderOrNop(r Recorder) Recorder {
	if r == nil {
		return nopRecorder{}
	}
	return r
}

// runBounded returns when fn finishes or ctx is done, whichever comes first.
// fn keeps running in the background until it observes ctx.
func runBounded[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		ch <- result{val: v, err: err}
	}()

	select {
	case r := <-ch:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
