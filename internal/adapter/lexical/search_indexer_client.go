package lexical

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"hybrid-retrieval/internal/domain"
)

// SearchIndexerClient implements domain.LexicalSearcher against the search-indexer
// REST API, for deployments that keep Meilisearch behind that service.
type SearchIndexerClient struct {
	BaseURL string
	Client  *http.Client
}

func NewSearchIndexerClient(baseURL string, client *http.Client) *SearchIndexerClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &SearchIndexerClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  client,
	}
}

type searchResponse struct {
	Query string       `json:"query"`
	Hits  []indexerHit `json:"hits"`
}

type indexerHit struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	TenantID   string    `json:"tenant_id"`
	Score      float64   `json:"score"`
	Source     string    `json:"source"`
	Type       string    `json:"type"`
	Title      string    `json:"title"`
	Author     string    `json:"author"`
	Mentions   []string  `json:"mentions"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (c *SearchIndexerClient) Query(ctx context.Context, plan *domain.QueryPlan, limit int) ([]domain.ScoredHit, error) {
	u, err := url.Parse(c.BaseURL + "/v1/search")
	if err != nil {
		return nil, &SearcherError{Op: "Query", Err: fmt.Errorf("invalid base url: %w", err)}
	}

	q := u.Query()
	q.Set("q", plan.RawQuery)
	q.Set("tenant_id", plan.TenantID())
	q.Set("limit", strconv.Itoa(limit))
	q.Set("filter", buildFilter(plan.Filters))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &SearcherError{Op: "Query", Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, &SearcherError{Op: "Query", Err: fmt.Errorf("search request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &SearcherError{Op: "Query", Err: fmt.Errorf("search returned status %d: %s", resp.StatusCode, body)}
	}

	var decoded searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &SearcherError{Op: "Query", Err: fmt.Errorf("failed to decode search response: %w", err)}
	}

	hits := make([]domain.ScoredHit, 0, len(decoded.Hits))
	for _, h := range decoded.Hits {
		if h.ID == "" || h.TenantID != plan.TenantID() {
			continue
		}
		hits = append(hits, domain.ScoredHit{
			ID:         h.ID,
			DocumentID: h.DocumentID,
			Score:      h.Score,
			OccurredAt: h.OccurredAt,
			Source:     h.Source,
			Type:       h.Type,
			Title:      h.Title,
			Author:     h.Author,
			Mentions:   h.Mentions,
		})
	}
	return hits, nil
}

var _ domain.LexicalSearcher = (*SearchIndexerClient)(nil)
