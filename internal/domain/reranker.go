package domain

import "context"

// RerankCandidate is a hydrated candidate sent for cross-encoder scoring.
type RerankCandidate struct {
	// ID maps results back to candidates.
	ID      string
	Content string
	Score   float64
}

// RerankResult is the relevance score for one candidate.
type RerankResult struct {
	ID    string
	Score float64
}

// Reranker reorders candidates with a more expensive model.
// Results are sorted by score descending and may omit candidates.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []RerankCandidate) ([]RerankResult, error)
	ModelName() string
}
