package retrieval_http

import (
	"hybrid-retrieval/internal/domain"
)

// SearchRequest is the body of POST /v1/search.
type SearchRequest struct {
	TenantID         string         `json:"tenantId,omitempty"`
	Query            string         `json:"query"`
	Filters          map[string]any `json:"filters,omitempty"`
	TopK             int            `json:"topK,omitempty"`
	Mode             string         `json:"mode,omitempty"`
	IncludeRationale bool           `json:"includeRationale,omitempty"`
	EntityHints      []string       `json:"entityHints,omitempty"`
}

// SearchResponse is the body of a successful search.
type SearchResponse struct {
	RequestID     string                `json:"requestId"`
	RouterMode    domain.RouterMode     `json:"routerMode"`
	Candidates    []domain.Candidate    `json:"candidates"`
	Observability *domain.Observability `json:"observability"`
}

// AnswerConstraints mirrors usecase.AnswerConstraints on the wire.
type AnswerConstraints struct {
	GraphRationale bool   `json:"graphRationale,omitempty"`
	MaxTokens      int    `json:"maxTokens,omitempty"`
	Locale         string `json:"locale,omitempty"`
}

// AnswerRequest is the body of POST /v1/answer.
type AnswerRequest struct {
	TenantID    string             `json:"tenantId,omitempty"`
	Query       string             `json:"query"`
	Filters     map[string]any     `json:"filters,omitempty"`
	TopK        int                `json:"topK,omitempty"`
	Mode        string             `json:"mode,omitempty"`
	EntityHints []string           `json:"entityHints,omitempty"`
	Constraints *AnswerConstraints `json:"constraints,omitempty"`
}

// ErrorResponse is returned for every non-2xx JSON response.
type ErrorResponse struct {
	Error     string           `json:"error"`
	Kind      domain.ErrorKind `json:"kind,omitempty"`
	RequestID string           `json:"requestId,omitempty"`
}
