package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"hybrid-retrieval/internal/domain"
	"hybrid-retrieval/internal/usecase/retrieval"

	"github.com/panjf2000/ants/v2"
)

type candidateHydrator struct {
	store  domain.HydrationStore
	pool   *ants.Pool
	logger *slog.Logger
}

// NewHydrator resolves candidate text concurrently on pool. A nil pool runs one
// goroutine per candidate.
func NewHydrator(store domain.HydrationStore, pool *ants.Pool, logger *slog.Logger) retrieval.Hydrator {
	return &candidateHydrator{store: store, pool: pool, logger: logger}
}

// Hydrate returns the candidates it could resolve. Misses are logged and left out.
// Only a cancelled context is reported as an error.
func (h *candidateHydrator) Hydrate(ctx context.Context, tenantID string, candidates []domain.Candidate) (map[string]*domain.HydratedChunk, error) {
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		out = make(map[string]*domain.HydratedChunk, len(candidates))
	)

	for _, c := range candidates {
		task := func() {
			defer wg.Done()
			chunk, err := h.fetch(ctx, tenantID, c)
			if err != nil {
				if ctx.Err() == nil {
					h.logger.WarnContext(ctx, "hydration_miss",
						slog.String("candidate_id", c.ID),
						slog.Bool("not_found", errors.Is(err, domain.ErrNotFound)),
						slog.String("error", err.Error()))
				}
				return
			}
			mu.Lock()
			out[c.ID] = chunk
			mu.Unlock()
		}

		wg.Add(1)
		if h.pool == nil {
			go task()
			continue
		}
		if err := h.pool.Submit(task); err != nil {
			// Pool closed or saturated in non-blocking mode; run on the caller.
			task()
		}
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// fetch reads a document-level candidate by document id and anything else by chunk id.
func (h *candidateHydrator) fetch(ctx context.Context, tenantID string, c domain.Candidate) (*domain.HydratedChunk, error) {
	var (
		chunk *domain.HydratedChunk
		err   error
	)
	if c.DocumentID != "" && c.ID == c.DocumentID {
		chunk, err = h.store.GetDocument(ctx, tenantID, c.ID)
	} else {
		chunk, err = h.store.GetChunk(ctx, tenantID, c.ID)
	}
	if err == nil && (chunk == nil || chunk.Text == "") {
		err = domain.ErrNotFound
	}
	return chunk, err
}
