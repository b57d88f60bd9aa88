package db

import (
	"context"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/compeek/compeek/internal/db/dialect"
)

// OpenPostgres opens a PostgreSQL pool through pgx's database/sql driver.
// Zero maxConns or minConns default to 10 and 2.
func OpenPostgres(ctx context.Context, dsn string, maxConns, minConns int) (*Pool, error) {
	conn, err := sqlx.Open(dialect.PGX, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}

	if maxConns <= 0 {
		maxConns = 10
	}
	if minConns <= 0 {
		minConns = 2
	}
	conn.SetMaxOpenConns(maxConns)
	conn.SetMaxIdleConns(minConns)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping postgres database: %w", err)
	}
	return NewPool(conn, conn), nil
}
