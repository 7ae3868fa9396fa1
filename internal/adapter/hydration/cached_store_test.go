package hydration

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"hybrid-retrieval/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCache(client, "test", time.Minute), mr
}

type countingStore struct {
	calls     atomic.Int32
	cancelled atomic.Bool
	gate      chan struct{}
	chunks    map[string]*domain.HydratedChunk
}

func (s *countingStore) GetChunk(ctx context.Context, tenantID, id string) (*domain.HydratedChunk, error) {
	s.calls.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	if ctx.Err() != nil {
		s.cancelled.Store(true)
	}
	c, ok := s.chunks[tenantID+"/"+id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c, nil
}

func (s *countingStore) GetDocument(ctx context.Context, tenantID, id string) (*domain.HydratedChunk, error) {
	return s.GetChunk(ctx, tenantID, "doc:"+id)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRedisCache_RoundTrip(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	miss, err := cache.Get(ctx, "tenant-a", kindChunk, "c1")
	require.NoError(t, err)
	assert.Nil(t, miss)

	chunk := &domain.HydratedChunk{ID: "c1", DocumentID: "d1", Text: "hello", OccurredAt: time.Unix(100, 0).UTC()}
	require.NoError(t, cache.Set(ctx, "tenant-a", kindChunk, "c1", chunk))

	assert.True(t, mr.Exists("test:tenant-a:chunk:c1"))
	assert.Equal(t, time.Minute, mr.TTL("test:tenant-a:chunk:c1"))

	got, err := cache.Get(ctx, "tenant-a", kindChunk, "c1")
	require.NoError(t, err)
	assert.Equal(t, chunk, got)

	other, err := cache.Get(ctx, "tenant-b", kindChunk, "c1")
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestRedisCache_CorruptValue(t *testing.T) {
	cache, mr := newTestCache(t)
	require.NoError(t, mr.Set("test:tenant-a:chunk:c1", "{not json"))

	_, err := cache.Get(context.Background(), "tenant-a", kindChunk, "c1")
	assert.Error(t, err)
}

func TestCachedStore_WriteBack(t *testing.T) {
	cache, mr := newTestCache(t)
	durable := &countingStore{chunks: map[string]*domain.HydratedChunk{
		"tenant-a/c1": {ID: "c1", Text: "from postgres"},
	}}
	store := NewCachedStore(cache, durable, discardLogger())
	ctx := context.Background()

	first, err := store.GetChunk(ctx, "tenant-a", "c1")
	require.NoError(t, err)
	assert.Equal(t, "from postgres", first.Text)
	assert.True(t, mr.Exists("test:tenant-a:chunk:c1"))

	second, err := store.GetChunk(ctx, "tenant-a", "c1")
	require.NoError(t, err)
	assert.Equal(t, "from postgres", second.Text)
	assert.Equal(t, int32(1), durable.calls.Load())
}

func TestCachedStore_NotFoundIsNotCached(t *testing.T) {
	cache, mr := newTestCache(t)
	durable := &countingStore{chunks: map[string]*domain.HydratedChunk{}}
	store := NewCachedStore(cache, durable, discardLogger())

	_, err := store.GetChunk(context.Background(), "tenant-a", "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, mr.Keys())
}

func TestCachedStore_DocumentKeyspace(t *testing.T) {
	cache, mr := newTestCache(t)
	durable := &countingStore{chunks: map[string]*domain.HydratedChunk{
		"tenant-a/doc:d1": {ID: "d1", DocumentID: "d1", Text: "whole document"},
	}}
	store := NewCachedStore(cache, durable, discardLogger())

	doc, err := store.GetDocument(context.Background(), "tenant-a", "d1")
	require.NoError(t, err)
	assert.Equal(t, "whole document", doc.Text)
	assert.True(t, mr.Exists("test:tenant-a:document:d1"))
}

func TestCachedStore_CoalescesConcurrentMisses(t *testing.T) {
	cache, _ := newTestCache(t)
	durable := &countingStore{
		gate:   make(chan struct{}),
		chunks: map[string]*domain.HydratedChunk{"tenant-a/c1": {ID: "c1", Text: "shared"}},
	}
	store := NewCachedStore(cache, durable, discardLogger())

	const callers = 8
	var (
		wg      sync.WaitGroup
		started sync.WaitGroup
		results = make([]*domain.HydratedChunk, callers)
	)
	started.Add(callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			started.Done()
			results[i], _ = store.GetChunk(context.Background(), "tenant-a", "c1")
		}(i)
	}
	started.Wait()
	// Give the callers time to join the in-flight read before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(durable.gate)
	wg.Wait()

	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, "shared", r.Text)
	}
	assert.Less(t, durable.calls.Load(), int32(callers))
}

func TestCachedStore_CancelledCallerDoesNotFailSharedRead(t *testing.T) {
	cache, mr := newTestCache(t)
	durable := &countingStore{
		gate:   make(chan struct{}),
		chunks: map[string]*domain.HydratedChunk{"tenant-a/c1": {ID: "c1", Text: "shared"}},
	}
	store := NewCachedStore(cache, durable, discardLogger())

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := store.GetChunk(ctxA, "tenant-a", "c1")
		errA <- err
	}()
	require.Eventually(t, func() bool { return durable.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	type result struct {
		chunk *domain.HydratedChunk
		err   error
	}
	resB := make(chan result, 1)
	go func() {
		chunk, err := store.GetChunk(context.Background(), "tenant-a", "c1")
		resB <- result{chunk, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	select {
	case err := <-errA:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting on the shared read")
	}

	close(durable.gate)
	select {
	case r := <-resB:
		require.NoError(t, r.err)
		assert.Equal(t, "shared", r.chunk.Text)
	case <-time.After(time.Second):
		t.Fatal("second caller never got the shared result")
	}
	assert.False(t, durable.cancelled.Load(), "durable read saw the first caller's cancellation")
	assert.Equal(t, int32(1), durable.calls.Load())
	assert.True(t, mr.Exists("test:tenant-a:chunk:c1"))
}

func TestCachedStore_CacheDownFallsBackToDurable(t *testing.T) {
	cache, mr := newTestCache(t)
	mr.Close()

	durable := &countingStore{chunks: map[string]*domain.HydratedChunk{
		"tenant-a/c1": {ID: "c1", Text: "durable"},
	}}
	store := NewCachedStore(cache, durable, discardLogger())

	chunk, err := store.GetChunk(context.Background(), "tenant-a", "c1")
	require.NoError(t, err)
	assert.Equal(t, "durable", chunk.Text)
}

type failingStore struct{}

func (failingStore) GetChunk(context.Context, string, string) (*domain.HydratedChunk, error) {
	return nil, errors.New("postgres unavailable")
}

func (failingStore) GetDocument(context.Context, string, string) (*domain.HydratedChunk, error) {
	return nil, errors.New("postgres unavailable")
}

func TestCachedStore_DurableError(t *testing.T) {
	cache, _ := newTestCache(t)
	store := NewCachedStore(cache, failingStore{}, discardLogger())

	_, err := store.GetChunk(context.Background(), "tenant-a", "c1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
}
