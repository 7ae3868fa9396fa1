package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"hybrid-retrieval/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var chunkColumns = []string{"id", "document_id", "title", "url", "content", "occurred_at", "source", "type"}

func TestChunkStore_GetChunk(t *testing.T) {
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer pool.Close()

	occurred := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	pool.ExpectQuery(`FROM hybrid_chunks c\s+JOIN hybrid_documents d`).
		WithArgs("tenant-a", "c1").
		WillReturnRows(pgxmock.NewRows(chunkColumns).
			AddRow("c1", "d1", "Retry policy", "https://example.com/d1", "Retries back off.", occurred, "github", ""))

	store := NewChunkStore(pool)
	chunk, err := store.GetChunk(context.Background(), "tenant-a", "c1")
	require.NoError(t, err)

	assert.Equal(t, "d1", chunk.DocumentID)
	assert.Equal(t, "Retries back off.", chunk.Text)
	assert.Equal(t, occurred, chunk.OccurredAt)
	assert.Equal(t, map[string]string{"source": "github"}, chunk.Metadata)
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestChunkStore_GetDocument(t *testing.T) {
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer pool.Close()

	pool.ExpectQuery(`string_agg\(c\.content`).
		WithArgs("tenant-a", "d1").
		WillReturnRows(pgxmock.NewRows(chunkColumns).
			AddRow("d1", "d1", "Design doc", "", "part one\n\npart two", time.Now(), "docs", "design"))

	chunk, err := NewChunkStore(pool).GetDocument(context.Background(), "tenant-a", "d1")
	require.NoError(t, err)
	assert.Equal(t, "part one\n\npart two", chunk.Text)
	assert.Equal(t, "design", chunk.Metadata["type"])
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestChunkStore_NotFound(t *testing.T) {
	tests := []struct {
		name  string
		setup func(pgxmock.PgxPoolIface)
	}{
		{
			name: "no rows",
			setup: func(pool pgxmock.PgxPoolIface) {
				pool.ExpectQuery(`FROM hybrid_chunks`).WithArgs("tenant-a", "missing").WillReturnError(pgx.ErrNoRows)
			},
		},
		{
			name: "empty text",
			setup: func(pool pgxmock.PgxPoolIface) {
				pool.ExpectQuery(`FROM hybrid_chunks`).WithArgs("tenant-a", "missing").
					WillReturnRows(pgxmock.NewRows(chunkColumns).AddRow("missing", "d1", "", "", "", time.Now(), "", ""))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer pool.Close()
			tt.setup(pool)

			_, err = NewChunkStore(pool).GetChunk(context.Background(), "tenant-a", "missing")
			assert.ErrorIs(t, err, domain.ErrNotFound)
			assert.NoError(t, pool.ExpectationsWereMet())
		})
	}
}

func TestChunkStore_DriverError(t *testing.T) {
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer pool.Close()

	pool.ExpectQuery(`FROM hybrid_chunks`).WillReturnError(errors.New("too many connections"))

	_, err = NewChunkStore(pool).GetChunk(context.Background(), "tenant-a", "c1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
}

func TestChunkStore_Ping(t *testing.T) {
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer pool.Close()

	pool.ExpectExec(`SELECT 1`).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	require.NoError(t, NewChunkStore(pool).Ping(context.Background()))
	assert.NoError(t, pool.ExpectationsWereMet())
}
