package lexical

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"hybrid-retrieval/internal/domain"

	"github.com/meilisearch/meilisearch-go"
)

// SearcherError carries the failing operation of a lexical backend call.
type SearcherError struct {
	Op  string
	Err error
}

func (e *SearcherError) Error() string {
	return fmt.Sprintf("lexical %s: %v", e.Op, e.Err)
}

func (e *SearcherError) Unwrap() error {
	return e.Err
}

// meiliHit is the indexed chunk document.
type meiliHit struct {
	ID           string   `json:"id"`
	DocumentID   string   `json:"document_id"`
	TenantID     string   `json:"tenant_id"`
	Source       string   `json:"source"`
	Type         string   `json:"type"`
	Title        string   `json:"title"`
	Author       string   `json:"author"`
	Mentions     []string `json:"mentions"`
	OccurredAt   int64    `json:"occurred_at"`
	RankingScore float64  `json:"_rankingScore"`
}

// MeilisearchSearcher implements domain.LexicalSearcher on a Meilisearch chunk index.
type MeilisearchSearcher struct {
	index meilisearch.IndexManager
}

// NewMeilisearchSearcher searches indexName on client.
func NewMeilisearchSearcher(client meilisearch.ServiceManager, indexName string) *MeilisearchSearcher {
	return &MeilisearchSearcher{index: client.Index(indexName)}
}

var searchAttributes = []string{"id", "document_id", "tenant_id", "source", "type", "title", "author", "mentions", "occurred_at"}

func (s *MeilisearchSearcher) Query(ctx context.Context, plan *domain.QueryPlan, limit int) ([]domain.ScoredHit, error) {
	if plan.TenantID() == "" {
		return nil, &SearcherError{Op: "Query", Err: fmt.Errorf("tenant scope is required")}
	}

	result, err := s.index.SearchWithContext(ctx, plan.RawQuery, &meilisearch.SearchRequest{
		Limit:                int64(limit),
		Filter:               buildFilter(plan.Filters),
		ShowRankingScore:     true,
		AttributesToRetrieve: searchAttributes,
	})
	if err != nil {
		return nil, &SearcherError{Op: "Query", Err: err}
	}

	// Hits are re-decoded into the indexed document shape.
	raw, err := json.Marshal(result.Hits)
	if err != nil {
		return nil, &SearcherError{Op: "decodeHits", Err: err}
	}
	var hits []meiliHit
	if err := json.Unmarshal(raw, &hits); err != nil {
		return nil, &SearcherError{Op: "decodeHits", Err: err}
	}

	out := make([]domain.ScoredHit, 0, len(hits))
	for _, h := range hits {
		// Drop anything outside the tenant scope.
		if h.ID == "" || h.TenantID != plan.TenantID() {
			continue
		}
		out = append(out, h.toScoredHit())
	}
	return out, nil
}

func (h meiliHit) toScoredHit() domain.ScoredHit {
	hit := domain.ScoredHit{
		ID:         h.ID,
		DocumentID: h.DocumentID,
		Score:      h.RankingScore,
		Source:     h.Source,
		Type:       h.Type,
		Title:      h.Title,
		Author:     h.Author,
		Mentions:   h.Mentions,
	}
	if h.OccurredAt > 0 {
		hit.OccurredAt = time.Unix(h.OccurredAt, 0).UTC()
	}
	return hit
}

var _ domain.LexicalSearcher = (*MeilisearchSearcher)(nil)
