package domain

import (
	"context"
	"time"
)

// HydratedChunk is the full text and metadata behind a candidate id.
type HydratedChunk struct {
	ID         string            `json:"id"`
	DocumentID string            `json:"document_id"`
	Title      string            `json:"title"`
	URL        string            `json:"url"`
	Text       string            `json:"text"`
	OccurredAt time.Time         `json:"occurred_at"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// HydrationStore resolves ids to text. Missing ids return ErrNotFound.
type HydrationStore interface {
	GetChunk(ctx context.Context, tenantID, id string) (*HydratedChunk, error)
	GetDocument(ctx context.Context, tenantID, id string) (*HydratedChunk, error)
}
