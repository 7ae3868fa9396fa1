package hydration

import (
	"context"
	"log/slog"
	"time"

	"hybrid-retrieval/internal/domain"

	"golang.org/x/sync/singleflight"
)

const (
	kindChunk    = "chunk"
	kindDocument = "document"

	// durableReadTimeout bounds a shared durable read, which outlives any single caller.
	durableReadTimeout = 5 * time.Second
)

// Cache is the fast tier in front of the durable store.
type Cache interface {
	Get(ctx context.Context, tenantID, kind, id string) (*domain.HydratedChunk, error)
	Set(ctx context.Context, tenantID, kind, id string, chunk *domain.HydratedChunk) error
}

// CachedStore implements domain.HydrationStore as cache-then-durable with write-back.
// Concurrent misses for the same key share one durable read; a caller that gives up
// does not cancel it for the others. Cache failures degrade to the durable store
// and are never returned.
type CachedStore struct {
	cache   Cache
	durable domain.HydrationStore
	group   singleflight.Group
	logger  *slog.Logger
}

// NewCachedStore wraps durable with cache.
func NewCachedStore(cache Cache, durable domain.HydrationStore, logger *slog.Logger) *CachedStore {
	return &CachedStore{cache: cache, durable: durable, logger: logger}
}

func (s *CachedStore) GetChunk(ctx context.Context, tenantID, id string) (*domain.HydratedChunk, error) {
	return s.get(ctx, tenantID, kindChunk, id, s.durable.GetChunk)
}

func (s *CachedStore) GetDocument(ctx context.Context, tenantID, id string) (*domain.HydratedChunk, error) {
	return s.get(ctx, tenantID, kindDocument, id, s.durable.GetDocument)
}

type fetchFunc func(ctx context.Context, tenantID, id string) (*domain.HydratedChunk, error)

func (s *CachedStore) get(ctx context.Context, tenantID, kind, id string, fetch fetchFunc) (*domain.HydratedChunk, error) {
	cached, err := s.cache.Get(ctx, tenantID, kind, id)
	if err != nil {
		s.logger.WarnContext(ctx, "hydration_cache_read_failed",
			slog.String("kind", kind),
			slog.String("id", id),
			slog.String("error", err.Error()))
	}
	if cached != nil {
		return cached, nil
	}

	key := tenantID + "/" + kind + "/" + id
	ch := s.group.DoChan(key, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), durableReadTimeout)
		defer cancel()

		chunk, err := fetch(fetchCtx, tenantID, id)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(fetchCtx, tenantID, kind, id, chunk); err != nil {
			s.logger.WarnContext(fetchCtx, "hydration_cache_write_failed",
				slog.String("kind", kind),
				slog.String("id", id),
				slog.String("error", err.Error()))
		}
		return chunk, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.HydratedChunk), nil
	}
}

var _ domain.HydrationStore = (*CachedStore)(nil)
