package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"hybrid-retrieval/internal/domain"
)

// RerankStage reorders the top-K with a cross-encoder when the fused ranking is not
// already confident. Failures and timeouts keep the incoming order.
type RerankStage struct {
	reranker domain.Reranker
	hydrator Hydrator
	logger   *slog.Logger
	recorder Recorder
}

// NewRerankStage creates the stage. A nil reranker disables it.
func NewRerankStage(reranker domain.Reranker, hydrator Hydrator, logger *slog.Logger, recorder Recorder) *RerankStage {
	return &RerankStage{
		reranker: reranker,
		hydrator: hydrator,
		logger:   logger,
		recorder: recorderOrNop(recorder),
	}
}

func (s *RerankStage) Name() string { return "rerank" }

func (s *RerankStage) Run(ctx context.Context, sc *StageContext, candidates []domain.Candidate) []domain.Candidate {
	cfg := sc.Config.Rerank
	if !cfg.Enabled || s.reranker == nil || len(candidates) < 2 {
		return candidates
	}

	confidence := candidates[0].FusedScore
	if confidence >= cfg.SkipThreshold {
		sc.Obs.RerankSkipped = true
		s.recorder.RerankSkipped("confident")
		s.logger.Info("reranking_skipped",
			slog.String("request_id", sc.RequestID),
			slog.Float64("confidence", confidence),
			slog.Float64("threshold", cfg.SkipThreshold))
		return candidates
	}

	start := time.Now()
	rctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	reranked, err := s.rerank(rctx, sc, candidates)
	duration := time.Since(start)
	if err != nil {
		sc.Obs.RerankFailed = true
		s.logger.Warn("reranking_failed_using_original_order",
			slog.String("request_id", sc.RequestID),
			slog.String("error", err.Error()),
			slog.Int64("duration_ms", duration.Milliseconds()))
		return candidates
	}

	s.logger.Info("reranking_completed",
		slog.String("request_id", sc.RequestID),
		slog.Int("candidate_count", len(candidates)),
		slog.String("model", s.reranker.ModelName()),
		slog.Int64("duration_ms", duration.Milliseconds()))

	return reranked
}

func (s *RerankStage) rerank(ctx context.Context, sc *StageContext, candidates []domain.Candidate) ([]domain.Candidate, error) {
	if s.hydrator != nil {
		hydrated, err := runBounded(ctx, func(c context.Context) (map[string]*domain.HydratedChunk, error) {
			return s.hydrator.Hydrate(c, sc.Plan.TenantID(), candidates)
		})
		if err != nil {
			return nil, fmt.Errorf("hydrate for rerank: %w", err)
		}
		for id, h := range hydrated {
			sc.Hydrated[id] = h
		}
	}

	inputs := make([]domain.RerankCandidate, 0, len(candidates))
	for _, c := range candidates {
		h, ok := sc.Hydrated[c.ID]
		if !ok || h.Text == "" {
			continue
		}
		inputs = append(inputs, domain.RerankCandidate{ID: c.ID, Content: h.Text, Score: c.FinalScore})
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no hydrated candidates to rerank")
	}

	results, err := runBounded(ctx, func(c context.Context) ([]domain.RerankResult, error) {
		return s.reranker.Rerank(c, sc.Plan.RawQuery, inputs)
	})
	if err != nil {
		return nil, err
	}

	return applyRerank(candidates, results), nil
}

// applyRerank puts reranked candidates first in result order, then the rest in their
// prior order. Only RerankScore is written; earlier scores are left as they were.
func applyRerank(candidates []domain.Candidate, results []domain.RerankResult) []domain.Candidate {
	index := make(map[string]int, len(candidates))
	for i, c := range candidates {
		index[c.ID] = i
	}

	out := make([]domain.Candidate, 0, len(candidates))
	placed := make(map[string]bool, len(results))
	for _, r := range results {
		i, ok := index[r.ID]
		if !ok || placed[r.ID] {
			continue
		}
		placed[r.ID] = true
		c := candidates[i]
		score := r.Score
		c.RerankScore = &score
		out = append(out, c)
	}
	for _, c := range candidates {
		if !placed[c.ID] {
			out = append(out, c)
		}
	}
	return out
}
