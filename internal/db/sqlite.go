package db

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/compeek/compeek/internal/db/dialect"
)

const (
	busyTimeout = 5 * time.Second
	readerConns = 4
)

// OpenSQLite opens dbPath with a single-connection writer in WAL mode and a
// read-only reader pool, creating the file and its directory if needed.
func OpenSQLite(dbPath string) (*Pool, error) {
	path := absPath(dbPath)
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to prepare database path: %w", err)
		}
	}

	// The writer creates the file and sets the database-level journal mode.
	writer, err := sqlx.Open(dialect.SQLite3, sqliteDSN(path,
		"mode=rwc", "_journal_mode=WAL", "_synchronous=NORMAL"))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	writer.SetMaxOpenConns(1)
	writer.SetMaxIdleConns(1)
	if err := writer.Ping(); err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	reader, err := sqlx.Open(dialect.SQLite3, sqliteDSN(path, "mode=ro"))
	if err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("failed to open read-only database: %w", err)
	}
	reader.SetMaxOpenConns(readerConns)
	reader.SetMaxIdleConns(readerConns)

	return NewPool(writer, reader), nil
}

func sqliteDSN(path string, params ...string) string {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=%d",
		path, int(busyTimeout/time.Millisecond))
	for _, p := range params {
		dsn += "&" + p
	}
	return dsn
}

func absPath(dbPath string) string {
	if dbPath == "" {
		return dbPath
	}
	abs, err := filepath.Abs(dbPath)
	if err != nil {
		return dbPath
	}
	return abs
}
