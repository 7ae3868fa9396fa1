package retrieval

import (
	"context"
	"time"

	"hybrid-retrieval/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const tracerName = "hybrid-retrieval/retrieval"

// Pipeline runs stages in order and records per-stage latency and counts.
type Pipeline struct {
	stages   []Stage
	recorder Recorder
}

// NewPipeline builds a pipeline. Nil stages are skipped.
func NewPipeline(recorder Recorder, stages ...Stage) *Pipeline {
	p := &Pipeline{recorder: recorderOrNop(recorder)}
	for _, s := range stages {
		if s != nil {
			p.stages = append(p.stages, s)
		}
	}
	return p
}

// Run applies every stage. A cancelled context stops before the next stage.
func (p *Pipeline) Run(ctx context.Context, sc *StageContext, candidates []domain.Candidate) []domain.Candidate {
	tracer := otel.Tracer(tracerName)
	for _, stage := range p.stages {
		if ctx.Err() != nil {
			return candidates
		}
		start := time.Now()
		sctx, span := tracer.Start(ctx, "stage."+stage.Name())
		candidates = stage.Run(sctx, sc, candidates)
		span.SetAttributes(
			attribute.String("request_id", sc.RequestID),
			attribute.Int("candidate_count", len(candidates)),
		)
		span.End()

		d := time.Since(start)
		sc.Obs.RecordStage(stage.Name(), d)
		sc.Obs.CandidateCounts[stage.Name()] = len(candidates)
		p.recorder.ObserveStage(stage.Name(), d)
	}
	return candidates
}

// TopKStage truncates the ranking to the plan's topK.
type TopKStage struct{}

func (TopKStage) Name() string { return "top_k" }

func (TopKStage) Run(_ context.Context, sc *StageContext, candidates []domain.Candidate) []domain.Candidate {
	if len(candidates) > sc.Plan.TopK {
		return candidates[:sc.Plan.TopK]
	}
	return candidates
}
