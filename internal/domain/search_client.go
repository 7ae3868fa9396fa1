package domain

import (
	"context"
	"time"
)

// ScoredHit is a raw result from one retrieval source. Score is on the source's own scale.
type ScoredHit struct {
	ID         string
	DocumentID string
	Score      float64
	OccurredAt time.Time
	Source     string
	Type       string
	Title      string
	Author     string
	Mentions   []string
}

// LexicalSearcher issues keyword and filtered queries against a text index.
// Implementations must scope every query to plan.Filters.TenantID.
type LexicalSearcher interface {
	Query(ctx context.Context, plan *QueryPlan, limit int) ([]ScoredHit, error)
}

// VectorQuery describes one dense similarity lookup.
type VectorQuery struct {
	// Text is embedded by the searcher when Embedding is empty.
	Text      string
	Embedding []float32
	// Namespace is the per-tenant vector namespace.
	Namespace string
	Filters   Filters
	TopK      int
}

// VectorSearcher issues dense similarity queries against a per-tenant namespace.
type VectorSearcher interface {
	Query(ctx context.Context, q VectorQuery) ([]ScoredHit, error)
}
