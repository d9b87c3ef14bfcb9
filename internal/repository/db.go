package repository

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

//go:embed schema.sql
var schema embed.FS

// Config holds the connection settings for the results database.
type Config struct {
	URL      string
	MaxConns int32
}

// DB wraps the pgx connection pool.
type DB struct {
	*pgxpool.Pool
}

// execer is the subset of pgx used for writes, satisfied by *pgxpool.Pool,
// *pgx.Conn and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// NewDB connects to Postgres and verifies the connection.
func NewDB(ctx context.Context, cfg Config, logger *zap.Logger) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if logger != nil {
		logger.Info("connected to database",
			zap.String("host", poolCfg.ConnConfig.Host),
			zap.String("database", poolCfg.ConnConfig.Database),
			zap.Int32("max_conns", poolCfg.MaxConns),
		)
	}
	return &DB{Pool: pool}, nil
}

// Migrate creates the tables the server writes to.
func Migrate(ctx context.Context, db execer) error {
	sqlBytes, err := schema.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema: %w", err)
	}
	if _, err := db.Exec(ctx, string(sqlBytes)); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
