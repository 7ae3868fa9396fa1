package usecase

import (
	"context"
	"log/slog"
	"time"

	"hybrid-retrieval/internal/domain"
	"hybrid-retrieval/internal/usecase/retrieval"

	"github.com/google/uuid"
)

// SearchOutput is a ranked, bounded candidate list plus its request trace.
type SearchOutput struct {
	Plan          *domain.QueryPlan
	Candidates    []domain.Candidate
	RouterMode    domain.RouterMode
	Observability *domain.Observability
	// Hydrated holds texts already resolved during ranking, keyed by candidate id.
	Hydrated map[string]*domain.HydratedChunk
}

// SearchUsecase runs planning, fusion and the ranking stages.
type SearchUsecase interface {
	Execute(ctx context.Context, input PlanInput) (*SearchOutput, error)
	ExecutePlan(ctx context.Context, plan *domain.QueryPlan) (*SearchOutput, error)
}

type searchUsecase struct {
	planner  QueryPlanner
	configs  domain.TenantConfigProvider
	fusion   *retrieval.FusionEngine
	graph    *retrieval.GraphBiasStage
	rerank   *retrieval.RerankStage
	recorder retrieval.Recorder
	pipeline *retrieval.Pipeline
	logger   *slog.Logger
}

// SearchOption configures optional ranking stages.
type SearchOption func(*searchUsecase)

// WithGraphBias enables the graph bias stage.
func WithGraphBias(stage *retrieval.GraphBiasStage) SearchOption {
	return func(u *searchUsecase) {
		u.graph = stage
	}
}

// WithRerankStage enables the rerank stage.
func WithRerankStage(stage *retrieval.RerankStage) SearchOption {
	return func(u *searchUsecase) {
		u.rerank = stage
	}
}

// WithRecorder sets the stage metrics recorder.
func WithRecorder(recorder retrieval.Recorder) SearchOption {
	return func(u *searchUsecase) {
		u.recorder = recorder
	}
}

// NewSearchUsecase wires the planner, the fusion engine and the enabled stages.
func NewSearchUsecase(
	planner QueryPlanner,
	configs domain.TenantConfigProvider,
	fusion *retrieval.FusionEngine,
	logger *slog.Logger,
	opts ...SearchOption,
) SearchUsecase {
	u := &searchUsecase{
		planner: planner,
		configs: configs,
		fusion:  fusion,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(u)
	}

	stages := make([]retrieval.Stage, 0, 3)
	if u.graph != nil {
		stages = append(stages, u.graph)
	}
	stages = append(stages, retrieval.TopKStage{})
	if u.rerank != nil {
		stages = append(stages, u.rerank)
	}
	u.pipeline = retrieval.NewPipeline(u.recorder, stages...)
	return u
}

func (u *searchUsecase) Execute(ctx context.Context, input PlanInput) (*SearchOutput, error) {
	ctx = ensureRequestID(ctx)
	start := time.Now()
	plan, err := u.planner.Plan(ctx, input)
	if err != nil {
		return nil, err
	}
	return u.run(ctx, plan, time.Since(start))
}

func (u *searchUsecase) ExecutePlan(ctx context.Context, plan *domain.QueryPlan) (*SearchOutput, error) {
	return u.run(ensureRequestID(ctx), plan, -1)
}

// run executes a planned search. A negative planDuration means planning happened elsewhere.
func (u *searchUsecase) run(ctx context.Context, plan *domain.QueryPlan, planDuration time.Duration) (*SearchOutput, error) {
	requestID := domain.RequestIDFrom(ctx)
	cfg := u.configs.ForTenant(plan.TenantID())
	sc := retrieval.NewStageContext(requestID, plan, cfg)
	if planDuration >= 0 {
		sc.Obs.RecordStage("plan", planDuration)
	}

	start := time.Now()
	candidates, err := u.fusion.Retrieve(ctx, sc)
	fusionDuration := time.Since(start)
	sc.Obs.RecordStage("fusion", fusionDuration)
	if u.recorder != nil {
		u.recorder.ObserveStage("fusion", fusionDuration)
	}
	if err != nil {
		return nil, err
	}

	candidates = u.pipeline.Run(ctx, sc, candidates)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sc.Obs.CandidateCounts["final"] = len(candidates)

	u.logger.InfoContext(ctx, "search_completed",
		slog.String("request_id", requestID),
		slog.String("router_mode", string(plan.RouterMode)),
		slog.String("intent", string(plan.Intent)),
		slog.Int("top_k", plan.TopK),
		slog.Int("result_count", len(candidates)),
		slog.Bool("degraded", sc.Obs.Degraded),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))

	return &SearchOutput{
		Plan:          plan,
		Candidates:    candidates,
		RouterMode:    plan.RouterMode,
		Observability: sc.Obs,
		Hydrated:      sc.Hydrated,
	}, nil
}

func ensureRequestID(ctx context.Context) context.Context {
	if domain.RequestIDFrom(ctx) != "" {
		return ctx
	}
	return domain.WithRequestID(ctx, uuid.NewString())
}
