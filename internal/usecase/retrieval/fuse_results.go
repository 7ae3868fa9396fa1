package retrieval

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"hybrid-retrieval/internal/domain"

	"golang.org/x/sync/errgroup"
)

const (
	sourceLexical = "lexical"
	sourceVector  = "vector"
)

// FusionEngine runs lexical and vector retrieval concurrently and fuses their scores.
type FusionEngine struct {
	lexical  domain.LexicalSearcher
	vector   domain.VectorSearcher
	logger   *slog.Logger
	recorder Recorder
}

// FusionOption configures a FusionEngine.
type FusionOption func(*FusionEngine)

// WithFusionRecorder sets the metrics recorder.
func WithFusionRecorder(r Recorder) FusionOption {
	return func(e *FusionEngine) {
		e.recorder = r
	}
}

// NewFusionEngine wires the two retrieval sources. Either may be nil.
func NewFusionEngine(lexical domain.LexicalSearcher, vector domain.VectorSearcher, logger *slog.Logger, opts ...FusionOption) *FusionEngine {
	e := &FusionEngine{
		lexical: lexical,
		vector:  vector,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.recorder = recorderOrNop(e.recorder)
	return e
}

type sourceOutcome struct {
	queried bool
	hits    []domain.ScoredHit
	err     error
}

func (o sourceOutcome) ok() bool {
	return o.queried && o.err == nil
}

// Retrieve queries the sources selected by the plan's router mode and returns fused
// candidates ordered by score, capped at TopK * OverfetchFactor.
// It fails with SourceFailure only when every queried source failed.
func (e *FusionEngine) Retrieve(ctx context.Context, sc *StageContext) ([]domain.Candidate, error) {
	plan := sc.Plan
	cfg := sc.Config.Fusion
	limit := plan.TopK * cfg.OverfetchFactor

	start := time.Now()
	var lex, vec sourceOutcome

	g, gctx := errgroup.WithContext(ctx)

	if plan.RouterMode.UsesLexical() && e.lexical != nil {
		lex.queried = true
		g.Go(func() error {
			lex.hits, lex.err = e.querySource(gctx, sourceLexical, cfg.LexicalTimeout, func(c context.Context) ([]domain.ScoredHit, error) {
				return e.lexical.Query(c, plan, limit)
			})
			return nil // non-fatal
		})
	}

	if plan.RouterMode.UsesVector() && e.vector != nil {
		vec.queried = true
		g.Go(func() error {
			vec.hits, vec.err = e.querySource(gctx, sourceVector, cfg.VectorTimeout, func(c context.Context) ([]domain.ScoredHit, error) {
				return e.vector.Query(c, domain.VectorQuery{
					Text:      plan.RawQuery,
					Namespace: sc.Config.Namespace(),
					Filters:   plan.Filters,
					TopK:      limit,
				})
			})
			return nil // non-fatal
		})
	}

	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !lex.ok() && !vec.ok() {
		cause := errors.Join(lex.err, vec.err)
		if cause == nil {
			cause = errors.New("no retrieval source configured for router mode " + string(plan.RouterMode))
		}
		e.logger.Error("retrieval_all_sources_failed",
			slog.String("request_id", sc.RequestID),
			slog.String("router_mode", string(plan.RouterMode)),
			slog.String("error", cause.Error()))
		return nil, domain.NewError(domain.KindSourceFailure, "fusion.Retrieve", cause)
	}

	for _, s := range []struct {
		name string
		out  sourceOutcome
	}{{sourceLexical, lex}, {sourceVector, vec}} {
		if s.out.queried && s.out.err != nil {
			kind := domain.KindSourceFailure
			if errors.Is(s.out.err, domain.ErrSourceTimeout) {
				kind = domain.KindSourceTimeout
			}
			sc.Obs.MarkDegraded(s.name, kind)
			e.recorder.SourceDegraded(s.name, kind)
			e.logger.Warn("fusion_source_failed",
				slog.String("request_id", sc.RequestID),
				slog.String("source", s.name),
				slog.String("kind", string(kind)),
				slog.String("error", s.out.err.Error()))
		}
	}

	var lexHits, vecHits []domain.ScoredHit
	if lex.ok() {
		lexHits = lex.hits
	}
	if vec.ok() {
		vecHits = vec.hits
	}

	candidates := fuse(lexHits, vecHits, effectiveWeights(cfg.WeightsFor(plan.RouterMode), lex.ok(), vec.ok()))
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	sc.Obs.CandidateCounts[sourceLexical] = len(lexHits)
	sc.Obs.CandidateCounts[sourceVector] = len(vecHits)
	sc.Obs.CandidateCounts["fused"] = len(candidates)

	e.logger.Info("fusion_completed",
		slog.String("request_id", sc.RequestID),
		slog.String("router_mode", string(plan.RouterMode)),
		slog.Int("lexical_count", len(lexHits)),
		slog.Int("vector_count", len(vecHits)),
		slog.Int("fused_count", len(candidates)),
		slog.Bool("degraded", sc.Obs.Degraded),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))

	return candidates, nil
}

func (e *FusionEngine) querySource(
	ctx context.Context,
	source string,
	timeout time.Duration,
	query func(context.Context) ([]domain.ScoredHit, error),
) ([]domain.ScoredHit, error) {
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	hits, err := runBounded(sctx, query)
	if err == nil {
		return hits, nil
	}
	if ctx.Err() == nil && errors.Is(sctx.Err(), context.DeadlineExceeded) {
		return nil, domain.NewError(domain.KindSourceTimeout, source+".Query", err)
	}
	return nil, err
}

// effectiveWeights zeroes the weight of failed sources. If the survivors carry no
// weight in this mode they are weighted equally.
func effectiveWeights(w domain.FusionWeights, lexOK, vecOK bool) domain.FusionWeights {
	if !lexOK {
		w.Lexical = 0
	}
	if !vecOK {
		w.Vector = 0
	}
	if w.Lexical+w.Vector == 0 {
		if lexOK {
			w.Lexical = 1
		}
		if vecOK {
			w.Vector = 1
		}
	}
	return w
}

// fuse computes fused = (wL*nL + wV*nV) / (wL + wV) over normalized scores.
// A candidate missing from a source contributes 0 for that source.
func fuse(lexHits, vecHits []domain.ScoredHit, w domain.FusionWeights) []domain.Candidate {
	lexNorm := normalizeScores(lexHits)
	vecNorm := normalizeScores(vecHits)

	byID := make(map[string]*domain.Candidate, len(lexHits)+len(vecHits))
	order := make([]string, 0, len(lexHits)+len(vecHits))

	add := func(h domain.ScoredHit) *domain.Candidate {
		c, ok := byID[h.ID]
		if !ok {
			c = &domain.Candidate{ID: h.ID}
			byID[h.ID] = c
			order = append(order, h.ID)
		}
		mergeMetadata(c, h)
		return c
	}

	for _, h := range lexHits {
		c := add(h)
		score := lexNorm[h.ID]
		c.LexicalScore = &score
	}
	for _, h := range vecHits {
		c := add(h)
		score := vecNorm[h.ID]
		c.VectorScore = &score
	}

	total := w.Lexical + w.Vector
	out := make([]domain.Candidate, 0, len(order))
	for _, id := range order {
		c := byID[id]
		var sum float64
		if c.LexicalScore != nil {
			sum += w.Lexical * *c.LexicalScore
		}
		if c.VectorScore != nil {
			sum += w.Vector * *c.VectorScore
		}
		if total > 0 {
			c.FusedScore = sum / total
		}
		c.FinalScore = c.FusedScore
		out = append(out, *c)
	}

	sort.Slice(out, func(i, j int) bool {
		return domain.Less(&out[i], &out[j])
	})
	return out
}

// mergeMetadata fills blank candidate metadata from a hit. The first source wins.
func mergeMetadata(c *domain.Candidate, h domain.ScoredHit) {
	if c.DocumentID == "" {
		c.DocumentID = h.DocumentID
	}
	if c.OccurredAt.IsZero() {
		c.OccurredAt = h.OccurredAt
	}
	if c.Source == "" {
		c.Source = h.Source
	}
	if c.Type == "" {
		c.Type = h.Type
	}
	if c.Title == "" {
		c.Title = h.Title
	}
	if c.Author == "" {
		c.Author = h.Author
	}
	if len(c.Mentions) == 0 && len(h.Mentions) > 0 {
		c.Mentions = append([]string(nil), h.Mentions...)
	}
}
