package infra

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
)

// PoolConfig holds tunable parameters for the PostgreSQL connection pool.
type PoolConfig struct {
	MaxConns int
	MinConns int
	// StatementTimeout bounds every query server-side; zero leaves the server default.
	StatementTimeout time.Duration
}

// BuildDSN renders a postgres URL, escaping credentials.
func BuildDSN(host, port, user, password, dbName string) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(user, password),
		Host:     host + ":" + port,
		Path:     "/" + dbName,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// NewPostgresDB creates a PostgreSQL connection pool with pgvector types registered.
func NewPostgresDB(ctx context.Context, dsn string, opts ...PoolConfig) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	var opt PoolConfig
	if len(opts) > 0 {
		opt = opts[0]
	}
	config.MaxConns = 10
	if opt.MaxConns > 0 {
		config.MaxConns = int32(opt.MaxConns)
	}
	config.MinConns = 2
	if opt.MinConns > 0 {
		config.MinConns = int32(opt.MinConns)
	}
	if opt.StatementTimeout > 0 {
		config.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprintf("%d", opt.StatementTimeout.Milliseconds())
	}
	// Retrieval is read-only.
	config.ConnConfig.RuntimeParams["default_transaction_read_only"] = "on"

	config.MaxConnLifetime = 1 * time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	return pool, nil
}
