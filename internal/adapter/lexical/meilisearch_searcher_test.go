package lexical

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"hybrid-retrieval/internal/domain"

	"github.com/meilisearch/meilisearch-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPlan() *domain.QueryPlan {
	return &domain.QueryPlan{
		RawQuery: "payment retries",
		Filters:  domain.Filters{TenantID: "tenant-a", Source: "github"},
		TopK:     10,
	}
}

func TestMeilisearchSearcher_Query(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/indexes/chunks/search", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"hits": [
				{"id": "c1", "document_id": "d1", "tenant_id": "tenant-a", "title": "Retries", "author": "alice",
				 "mentions": ["payment-service"], "occurred_at": 1767225600, "_rankingScore": 0.92},
				{"id": "c2", "document_id": "d2", "tenant_id": "tenant-b", "_rankingScore": 0.99},
				{"id": "c3", "document_id": "d3", "tenant_id": "tenant-a", "_rankingScore": 0.41}
			],
			"query": "payment retries", "processingTimeMs": 1, "limit": 30, "offset": 0, "estimatedTotalHits": 3
		}`))
	}))
	defer server.Close()

	searcher := NewMeilisearchSearcher(meilisearch.New(server.URL), "chunks")
	hits, err := searcher.Query(context.Background(), testPlan(), 30)
	require.NoError(t, err)

	assert.Equal(t, "payment retries", body["q"])
	assert.Equal(t, float64(30), body["limit"])
	assert.Equal(t, `tenant_id = "tenant-a" AND source = "github"`, body["filter"])
	assert.Equal(t, true, body["showRankingScore"])

	require.Len(t, hits, 2, "foreign tenant hit is dropped")
	assert.Equal(t, "c1", hits[0].ID)
	assert.Equal(t, "d1", hits[0].DocumentID)
	assert.InDelta(t, 0.92, hits[0].Score, 1e-9)
	assert.Equal(t, "alice", hits[0].Author)
	assert.Equal(t, []string{"payment-service"}, hits[0].Mentions)
	assert.Equal(t, int64(1767225600), hits[0].OccurredAt.Unix())
	assert.True(t, hits[1].OccurredAt.IsZero())
}

func TestMeilisearchSearcher_QueryError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"Attribute tenant_id is not filterable","code":"invalid_search_filter","type":"invalid_request","link":""}`))
	}))
	defer server.Close()

	searcher := NewMeilisearchSearcher(meilisearch.New(server.URL), "chunks")
	_, err := searcher.Query(context.Background(), testPlan(), 10)

	var se *SearcherError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "Query", se.Op)
}

func TestMeilisearchSearcher_RequiresTenant(t *testing.T) {
	searcher := NewMeilisearchSearcher(meilisearch.New("http://127.0.0.1:1"), "chunks")
	plan := testPlan()
	plan.Filters.TenantID = ""

	_, err := searcher.Query(context.Background(), plan, 10)
	assert.Error(t, err)
}

func TestSearchIndexerClient_Query(t *testing.T) {
	var query url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/search", r.URL.Path)
		query = r.URL.Query()
		_ = json.NewEncoder(w).Encode(map[string]any{
			"query": "payment retries",
			"hits": []map[string]any{
				{"id": "c1", "document_id": "d1", "tenant_id": "tenant-a", "score": 12.5, "occurred_at": "2026-01-01T00:00:00Z"},
				{"id": "c2", "tenant_id": "tenant-b", "score": 99},
			},
		})
	}))
	defer server.Close()

	client := NewSearchIndexerClient(server.URL, server.Client())
	hits, err := client.Query(context.Background(), testPlan(), 30)
	require.NoError(t, err)

	assert.Equal(t, "tenant-a", query.Get("tenant_id"))
	assert.Equal(t, "30", query.Get("limit"))
	assert.Equal(t, "payment retries", query.Get("q"))
	require.Len(t, hits, 1)
	assert.InDelta(t, 12.5, hits[0].Score, 1e-9)
}

func TestSearchIndexerClient_BadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "index unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewSearchIndexerClient(server.URL, server.Client()).Query(context.Background(), testPlan(), 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
