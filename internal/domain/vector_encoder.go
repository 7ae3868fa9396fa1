package domain

import (
	"context"
)

// VectorEncoder embeds query text for dense retrieval.
type VectorEncoder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
	Version() string
}
