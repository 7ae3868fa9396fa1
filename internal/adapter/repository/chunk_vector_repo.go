package repository

import (
	"context"
	"fmt"
	"strings"

	"hybrid-retrieval/internal/domain"

	"github.com/pgvector/pgvector-go"
)

// ChunkVectorRepository implements domain.VectorSearcher with pgvector cosine distance.
type ChunkVectorRepository struct {
	db      Querier
	encoder domain.VectorEncoder
}

// NewChunkVectorRepository creates a vector searcher. The encoder embeds queries that
// arrive without an embedding.
func NewChunkVectorRepository(db Querier, encoder domain.VectorEncoder) *ChunkVectorRepository {
	return &ChunkVectorRepository{db: db, encoder: encoder}
}

func (r *ChunkVectorRepository) Query(ctx context.Context, q domain.VectorQuery) ([]domain.ScoredHit, error) {
	if q.Filters.TenantID == "" {
		return nil, &DriverError{Op: "VectorQuery", Err: fmt.Errorf("tenant scope is required")}
	}
	if q.TopK <= 0 {
		return nil, nil
	}

	embedding := q.Embedding
	if len(embedding) == 0 {
		if r.encoder == nil {
			return nil, &DriverError{Op: "VectorQuery", Err: fmt.Errorf("no embedding and no encoder configured")}
		}
		vectors, err := r.encoder.Encode(ctx, []string{q.Text})
		if err != nil {
			return nil, &DriverError{Op: "Encode", Err: err}
		}
		if len(vectors) != 1 || len(vectors[0]) == 0 {
			return nil, &DriverError{Op: "Encode", Err: fmt.Errorf("encoder returned %d vectors", len(vectors))}
		}
		embedding = vectors[0]
	}

	query, args := buildVectorQuery(pgvector.NewVector(embedding), q)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, &DriverError{Op: "VectorQuery", Err: err}
	}
	defer rows.Close()

	var hits []domain.ScoredHit
	for rows.Next() {
		var (
			h        domain.ScoredHit
			distance float64
		)
		if err := rows.Scan(&h.ID, &h.DocumentID, &distance, &h.OccurredAt, &h.Source, &h.Type, &h.Title, &h.Author, &h.Mentions); err != nil {
			return nil, &DriverError{Op: "VectorQuery", Err: fmt.Errorf("failed to scan hit: %w", err)}
		}
		// Cosine distance is in [0, 2]; higher similarity must score higher.
		h.Score = 1 - distance/2
		h.OccurredAt = h.OccurredAt.UTC()
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, &DriverError{Op: "VectorQuery", Err: fmt.Errorf("rows error: %w", err)}
	}
	return hits, nil
}

// buildVectorQuery renders the similarity query. Tenant and namespace are always bound.
func buildVectorQuery(vec pgvector.Vector, q domain.VectorQuery) (string, []interface{}) {
	var args argList
	vecArg := args.add(vec)

	where := []string{
		"c.tenant_id = " + args.add(q.Filters.TenantID),
		"c.namespace = " + args.add(q.Namespace),
	}
	f := q.Filters
	if f.Source != "" {
		where = append(where, "c.source = "+args.add(f.Source))
	}
	if f.Type != "" {
		where = append(where, "c.type = "+args.add(f.Type))
	}
	if f.Author != "" {
		where = append(where, "c.author = "+args.add(f.Author))
	}
	if len(f.Labels) > 0 {
		where = append(where, "c.labels @> "+args.add(f.Labels))
	}
	if tr := f.TimeRange; tr != nil {
		if !tr.From.IsZero() {
			where = append(where, "c.occurred_at >= "+args.add(tr.From))
		}
		if !tr.To.IsZero() {
			where = append(where, "c.occurred_at <= "+args.add(tr.To))
		}
	}

	query := fmt.Sprintf(`
		SELECT c.id, c.document_id, c.embedding <=> %[1]s AS distance, c.occurred_at,
			COALESCE(c.source, ''), COALESCE(c.type, ''), COALESCE(c.title, ''), COALESCE(c.author, ''),
			COALESCE(c.mentions, '{}')
		FROM hybrid_chunks c
		WHERE %[2]s
		ORDER BY c.embedding <=> %[1]s, c.id
		LIMIT %[3]s
	`, vecArg, strings.Join(where, " AND "), args.add(q.TopK))
	return query, args
}

var _ domain.VectorSearcher = (*ChunkVectorRepository)(nil)
