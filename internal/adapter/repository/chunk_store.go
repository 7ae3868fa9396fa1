package repository

import (
	"context"
	"errors"
	"fmt"

	"hybrid-retrieval/internal/domain"

	"github.com/jackc/pgx/v5"
)

// ChunkStore is the durable domain.HydrationStore backed by hybrid_chunks and hybrid_documents.
type ChunkStore struct {
	db Querier
}

// NewChunkStore creates a durable hydration store.
func NewChunkStore(db Querier) *ChunkStore {
	return &ChunkStore{db: db}
}

func (s *ChunkStore) GetChunk(ctx context.Context, tenantID, id string) (*domain.HydratedChunk, error) {
	query := `
		SELECT c.id, c.document_id, COALESCE(d.title, ''), COALESCE(d.url, ''), COALESCE(c.content, ''),
			c.occurred_at, COALESCE(c.source, ''), COALESCE(c.type, '')
		FROM hybrid_chunks c
		JOIN hybrid_documents d ON d.id = c.document_id AND d.tenant_id = c.tenant_id
		WHERE c.tenant_id = $1 AND c.id = $2
	`
	return s.scanOne(ctx, "GetChunk", query, tenantID, id)
}

func (s *ChunkStore) GetDocument(ctx context.Context, tenantID, id string) (*domain.HydratedChunk, error) {
	query := `
		SELECT d.id, d.id, COALESCE(d.title, ''), COALESCE(d.url, ''),
			COALESCE(string_agg(c.content, E'\n\n' ORDER BY c.ordinal), ''),
			d.occurred_at, COALESCE(d.source, ''), COALESCE(d.type, '')
		FROM hybrid_documents d
		JOIN hybrid_chunks c ON c.document_id = d.id AND c.tenant_id = d.tenant_id
		WHERE d.tenant_id = $1 AND d.id = $2
		GROUP BY d.id
	`
	return s.scanOne(ctx, "GetDocument", query, tenantID, id)
}

func (s *ChunkStore) scanOne(ctx context.Context, op, query, tenantID, id string) (*domain.HydratedChunk, error) {
	var (
		chunk        domain.HydratedChunk
		source, kind string
	)
	err := s.db.QueryRow(ctx, query, tenantID, id).
		Scan(&chunk.ID, &chunk.DocumentID, &chunk.Title, &chunk.URL, &chunk.Text, &chunk.OccurredAt, &source, &kind)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, &DriverError{Op: op, Err: fmt.Errorf("failed to scan chunk: %w", err)}
	}
	if chunk.Text == "" {
		return nil, domain.ErrNotFound
	}

	chunk.OccurredAt = chunk.OccurredAt.UTC()
	chunk.Metadata = map[string]string{}
	if source != "" {
		chunk.Metadata["source"] = source
	}
	if kind != "" {
		chunk.Metadata["type"] = kind
	}
	return &chunk, nil
}

// Ping reports whether the database answers.
func (s *ChunkStore) Ping(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, "SELECT 1"); err != nil {
		return &DriverError{Op: "Ping", Err: err}
	}
	return nil
}

var _ domain.HydrationStore = (*ChunkStore)(nil)
