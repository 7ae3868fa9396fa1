package inference

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"hybrid-retrieval/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestRerankerClient_Rerank_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/rerank", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req RerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "who owns payment-service", req.Query)
		assert.Len(t, req.Candidates, 3)
		assert.Equal(t, "bge-reranker-v2-m3", req.Model)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(RerankResponse{
			Results: []RerankResponseResult{
				{Index: 1, Score: 0.95},
				{Index: 0, Score: 0.85},
				{Index: 2, Score: 0.75},
			},
			Model: "bge-reranker-v2-m3",
		})
	}))
	defer server.Close()

	client := NewRerankerClient(server.URL, "bge-reranker-v2-m3", 30*time.Second, testLogger())
	results, err := client.Rerank(context.Background(), "who owns payment-service", []domain.RerankCandidate{
		{ID: "chunk-1", Content: "payment-service readme"},
		{ID: "chunk-2", Content: "owners: alice"},
		{ID: "chunk-3", Content: "retry policy"},
	})
	require.NoError(t, err)

	require.Len(t, results, 3)
	assert.Equal(t, "chunk-2", results[0].ID)
	assert.InDelta(t, 0.95, results[0].Score, 1e-9)
	assert.Equal(t, "chunk-1", results[1].ID)
	assert.Equal(t, "chunk-3", results[2].ID)
}

func TestRerankerClient_Rerank_EmptyCandidates(t *testing.T) {
	client := NewRerankerClient("http://localhost:8001", "bge-reranker-v2-m3", 30*time.Second, testLogger())

	results, err := client.Rerank(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRerankerClient_Rerank_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("internal server error"))
	}))
	defer server.Close()

	client := NewRerankerClient(server.URL, "bge-reranker-v2-m3", 30*time.Second, testLogger())
	results, err := client.Rerank(context.Background(), "q", []domain.RerankCandidate{{ID: "chunk-1", Content: "x"}})
	assert.Error(t, err)
	assert.Nil(t, results)
	assert.Contains(t, err.Error(), "500")
}

func TestRerankerClient_Rerank_ContextDeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewRerankerClient(server.URL, "bge-reranker-v2-m3", 30*time.Second, testLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	results, err := client.Rerank(ctx, "q", []domain.RerankCandidate{{ID: "chunk-1", Content: "x"}})
	assert.Error(t, err)
	assert.Nil(t, results)
}

func TestRerankerClient_Rerank_InvalidIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(RerankResponse{Results: []RerankResponseResult{{Index: 99, Score: 0.95}}})
	}))
	defer server.Close()

	client := NewRerankerClient(server.URL, "bge-reranker-v2-m3", 30*time.Second, testLogger())
	results, err := client.Rerank(context.Background(), "q", []domain.RerankCandidate{{ID: "chunk-1", Content: "x"}})
	assert.Error(t, err)
	assert.Nil(t, results)
	assert.Contains(t, err.Error(), "invalid result index")
}

func TestRerankerClient_ModelName(t *testing.T) {
	client := NewRerankerClient("http://localhost:8001", "bge-reranker-v2-m3", 30*time.Second, testLogger())
	assert.Equal(t, "bge-reranker-v2-m3", client.ModelName())
}
