package retrieval

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sort"
	"sync"

	"hybrid-retrieval/internal/domain"
)

// GraphBiasStage boosts candidates linked to entities reachable from the query's seed
// entities. The whole stage races a wall-clock budget and keeps whatever it computed
// when the budget runs out.
type GraphBiasStage struct {
	graph    domain.GraphLookup
	logger   *slog.Logger
	recorder Recorder
}

// NewGraphBiasStage creates the stage. A nil graph disables it.
func NewGraphBiasStage(graph domain.GraphLookup, logger *slog.Logger, recorder Recorder) *GraphBiasStage {
	return &GraphBiasStage{
		graph:    graph,
		logger:   logger,
		recorder: recorderOrNop(recorder),
	}
}

func (s *GraphBiasStage) Name() string { return "graph_bias" }

func (s *GraphBiasStage) Run(ctx context.Context, sc *StageContext, candidates []domain.Candidate) []domain.Candidate {
	cfg := sc.Config.Graph
	if !cfg.Enabled || s.graph == nil || len(candidates) == 0 {
		return candidates
	}
	edgeTypes := cfg.EdgeTypesFor(sc.Plan.Intent)
	if len(edgeTypes) == 0 {
		return candidates
	}

	budgetCtx, cancel := context.WithTimeout(ctx, cfg.Budget)
	defer cancel()

	t := &traversal{
		graph:     s.graph,
		tenantID:  sc.Plan.TenantID(),
		edgeTypes: edgeTypes,
		maxHops:   cfg.MaxHops,
		decay:     cfg.HopDecay,
		reached:   make(map[string]*reachedEntity),
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		t.run(budgetCtx, sc.Plan.EntityHints, candidates, cfg.SeedCandidates)
	}()

	exceeded := false
	select {
	case <-done:
	case <-budgetCtx.Done():
		exceeded = ctx.Err() == nil
	}
	snap := t.snapshot()

	if exceeded || errors.Is(snap.err, context.DeadlineExceeded) {
		sc.Obs.GraphBudgetExceeded = true
		s.recorder.GraphBudgetExceeded()
		s.logger.Warn("graph_budget_exceeded",
			slog.String("request_id", sc.RequestID),
			slog.Duration("budget", cfg.Budget),
			slog.Int("reached_entities", len(snap.reached)))
	} else if snap.err != nil {
		s.logger.Warn("graph_lookup_failed",
			slog.String("request_id", sc.RequestID),
			slog.String("error", snap.err.Error()))
	}

	sc.Obs.GraphSeeds = snap.seeds
	out := applyBoosts(candidates, snap, cfg, sc.Plan.IncludeRationale, sc.Obs)

	s.logger.Info("graph_bias_completed",
		slog.String("request_id", sc.RequestID),
		slog.Int("seed_count", len(snap.seeds)),
		slog.Int("boosted_count", sc.Obs.GraphBoostApplied),
		slog.Int("edges_used", sc.Obs.GraphEdgesUsed),
		slog.Bool("budget_exceeded", sc.Obs.GraphBudgetExceeded))

	return out
}

// arrival is one edge reaching an entity, with the full path from its seed.
type arrival struct {
	seed  string
	path  []domain.GraphEdge
	score float64
}

type reachedEntity struct {
	hop      int
	arrivals []arrival
}

type traversalSnapshot struct {
	seeds             []string
	candidateEntities map[string][]string
	reached           map[string]*reachedEntity
	err               error
}

// traversal is written by the traversal goroutine and read once by snapshot.
// After snapshot no further writes are accepted.
type traversal struct {
	graph     domain.GraphLookup
	tenantID  string
	edgeTypes []string
	maxHops   int
	decay     float64

	mu                sync.Mutex
	closed            bool
	seeds             []string
	candidateEntities map[string][]string
	reached           map[string]*reachedEntity
	err               error
}

func (t *traversal) run(ctx context.Context, hints []string, candidates []domain.Candidate, seedCandidates int) {
	aliases := collectAliases(hints, candidates)
	if len(aliases) == 0 {
		return
	}

	resolved, err := t.graph.ResolveAliases(ctx, t.tenantID, aliases)
	if err != nil {
		t.fail(err)
		return
	}

	candidateEntities := make(map[string][]string, len(candidates))
	for _, c := range candidates {
		candidateEntities[c.ID] = resolveAll(resolved, c.Aliases())
	}

	seeds := resolveAll(resolved, hints)
	if len(seeds) == 0 {
		limit := min(seedCandidates, len(candidates))
		var fromCandidates []string
		for _, c := range candidates[:limit] {
			fromCandidates = append(fromCandidates, candidateEntities[c.ID]...)
		}
		seeds = dedupe(fromCandidates)
	}

	if !t.setSeeds(seeds, candidateEntities) || len(seeds) == 0 {
		return
	}

	allowed := make(map[string]bool, len(t.edgeTypes))
	for _, et := range t.edgeTypes {
		allowed[et] = true
	}

	visited := make(map[string]int, len(seeds))
	paths := make(map[string][]domain.GraphEdge, len(seeds))
	seedOf := make(map[string]string, len(seeds))
	for _, s := range seeds {
		visited[s] = 0
		seedOf[s] = s
	}

	frontier := seeds
	for hop := 1; hop <= t.maxHops && len(frontier) > 0; hop++ {
		var next []string
		decay := math.Pow(t.decay, float64(hop-1))
		for _, from := range frontier {
			if ctx.Err() != nil {
				t.fail(ctx.Err())
				return
			}
			adj, err := t.graph.Adjacency(ctx, t.tenantID, from, t.edgeTypes)
			if err != nil {
				t.fail(err)
				return
			}
			sort.SliceStable(adj, func(i, j int) bool {
				if adj[i].ToID != adj[j].ToID {
					return adj[i].ToID < adj[j].ToID
				}
				return adj[i].Type < adj[j].Type
			})

			seenEdge := make(map[string]bool, len(adj))
			for _, a := range adj {
				if !allowed[a.Type] || a.ToID == "" {
					continue
				}
				if seenEdge[a.ToID+"\x00"+a.Type] {
					continue
				}
				seenEdge[a.ToID+"\x00"+a.Type] = true

				prevHop, seen := visited[a.ToID]
				if seen && prevHop < hop {
					continue
				}

				w := edgeWeight(a.Weight)
				edge := domain.GraphEdge{FromID: from, ToID: a.ToID, Type: a.Type, Weight: w}
				path := append(append([]domain.GraphEdge(nil), paths[from]...), edge)

				if !t.record(a.ToID, hop, arrival{seed: seedOf[from], path: path, score: w * decay}) {
					return
				}
				if !seen {
					visited[a.ToID] = hop
					paths[a.ToID] = path
					seedOf[a.ToID] = seedOf[from]
					next = append(next, a.ToID)
				}
			}
		}
		frontier = next
	}
}

// edgeWeight clamps weights to (0,1]; unweighted edges count fully.
func edgeWeight(w float64) float64 {
	if w <= 0 || w > 1 {
		return 1
	}
	return w
}

func (t *traversal) setSeeds(seeds []string, candidateEntities map[string][]string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.seeds = seeds
	t.candidateEntities = candidateEntities
	return true
}

func (t *traversal) record(entityID string, hop int, a arrival) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	r, ok := t.reached[entityID]
	if !ok {
		r = &reachedEntity{hop: hop}
		t.reached[entityID] = r
	}
	r.arrivals = append(r.arrivals, a)
	return true
}

func (t *traversal) fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed && t.err == nil {
		t.err = err
	}
}

// snapshot freezes the traversal. Later writes from a still-running goroutine are dropped.
func (t *traversal) snapshot() traversalSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return traversalSnapshot{
		seeds:             t.seeds,
		candidateEntities: t.candidateEntities,
		reached:           t.reached,
		err:               t.err,
	}
}

// applyBoosts sets GraphBoost, FinalScore and Rationale, then stable-sorts by FinalScore.
func applyBoosts(
	candidates []domain.Candidate,
	snap traversalSnapshot,
	cfg domain.GraphConfig,
	includeRationale bool,
	obs *domain.Observability,
) []domain.Candidate {
	out := make([]domain.Candidate, len(candidates))
	copy(out, candidates)

	usedEdges := make(map[domain.GraphEdge]bool)
	boosted := 0

	for i := range out {
		c := &out[i]
		c.GraphBoost = 0
		c.Rationale = nil

		var linkScore float64
		var seeds []string
		var edges []domain.GraphEdge
		seenEdge := make(map[domain.GraphEdge]bool)

		for _, entityID := range snap.candidateEntities[c.ID] {
			r, ok := snap.reached[entityID]
			if !ok {
				continue
			}
			for _, a := range r.arrivals {
				linkScore += a.score
				seeds = append(seeds, a.seed)
				for _, e := range a.path {
					if !seenEdge[e] {
						seenEdge[e] = true
						edges = append(edges, e)
					}
				}
			}
		}

		linkScore = math.Min(linkScore, cfg.LinkScoreCap)
		if linkScore > 0 && len(edges) > 0 {
			c.GraphBoost = cfg.BoostWeight * linkScore
			boosted++
			for _, e := range edges {
				usedEdges[e] = true
			}
			if includeRationale {
				c.Rationale = &domain.GraphRationale{
					Seeds:        dedupe(seeds),
					EdgesUsed:    edges,
					BoostApplied: c.GraphBoost,
				}
			}
		}
		c.FinalScore = c.FusedScore + c.GraphBoost
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FinalScore > out[j].FinalScore
	})

	obs.GraphBoostApplied = boosted
	obs.GraphEdgesUsed = len(usedEdges)
	return out
}

// collectAliases returns hints followed by candidate aliases, deduplicated in order.
func collectAliases(hints []string, candidates []domain.Candidate) []string {
	all := append([]string(nil), hints...)
	for _, c := range candidates {
		all = append(all, c.Aliases()...)
	}
	return dedupe(all)
}

func resolveAll(resolved map[string]string, aliases []string) []string {
	var out []string
	for _, a := range aliases {
		if id, ok := resolved[a]; ok && id != "" {
			out = append(out, id)
		}
	}
	return dedupe(out)
}

func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
