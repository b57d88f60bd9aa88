package runs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/compeek/compeek/internal/db"
	"github.com/compeek/compeek/internal/db/dialect"
	v1 "github.com/compeek/compeek/pkg/api/v1"
)

// sqlStore keeps runs in SQLite or PostgreSQL through a db.Pool.
type sqlStore struct {
	pool   *db.Pool
	driver string
}

var _ Store = (*sqlStore)(nil)

type eventRow struct {
	ID        int64  `db:"id"`
	EventID   string `db:"event_id"`
	RunID     string `db:"run_id"`
	Seq       int    `db:"seq"`
	Type      string `db:"type"`
	Timestamp int64  `db:"emitted_at"`
	Data      string `db:"data"`
}

// NewSQLStore creates the schema if needed and returns a Store over pool.
// The store does not own the pool.
func NewSQLStore(ctx context.Context, pool *db.Pool) (Store, error) {
	s := &sqlStore{pool: pool, driver: pool.DriverName()}
	if err := s.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *sqlStore) initSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			goal TEXT NOT NULL,
			model TEXT NOT NULL,
			container_url TEXT NOT NULL,
			status TEXT NOT NULL,
			action_count INTEGER NOT NULL DEFAULT 0,
			message TEXT NOT NULL DEFAULT '',
			input_tokens INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at)`,
		`CREATE TABLE IF NOT EXISTS run_events (
			` + dialect.AutoIncrementPK(s.driver) + `,
			event_id TEXT NOT NULL UNIQUE,
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			type TEXT NOT NULL,
			emitted_at BIGINT NOT NULL,
			data ` + dialect.JSONType(s.driver) + ` NOT NULL,
			UNIQUE(run_id, seq)
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Writer().ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqlStore) CreateRun(ctx context.Context, run *v1.Run) error {
	_, err := s.pool.Writer().NamedExecContext(ctx, `
		INSERT INTO runs (id, goal, model, container_url, status, action_count, message,
			input_tokens, output_tokens, created_at, updated_at, finished_at)
		VALUES (:id, :goal, :model, :container_url, :status, :action_count, :message,
			:input_tokens, :output_tokens, :created_at, :updated_at, :finished_at)
	`, run)
	return err
}

func (s *sqlStore) UpdateRun(ctx context.Context, run *v1.Run) error {
	res, err := s.pool.Writer().NamedExecContext(ctx, `
		UPDATE runs SET status = :status, action_count = :action_count, message = :message,
			input_tokens = :input_tokens, output_tokens = :output_tokens,
			updated_at = :updated_at, finished_at = :finished_at
		WHERE id = :id
	`, run)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (s *sqlStore) GetRun(ctx context.Context, id string) (*v1.Run, error) {
	ro := s.pool.Reader()
	var run v1.Run
	err := ro.GetContext(ctx, &run, ro.Rebind(`SELECT * FROM runs WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *sqlStore) ListRuns(ctx context.Context, filter ListFilter) ([]*v1.Run, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Query != "" {
		where = append(where, "goal "+dialect.Like(s.driver)+" ?")
		args = append(args, "%"+filter.Query+"%")
	}

	query := `SELECT * FROM runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, filter.limit())

	ro := s.pool.Reader()
	var out []*v1.Run
	if err := ro.SelectContext(ctx, &out, ro.Rebind(query), args...); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *sqlStore) AppendEvent(ctx context.Context, ev *v1.Event) error {
	_, err := dialect.InsertReturningID(ctx, s.pool.Writer(), `
		INSERT INTO run_events (event_id, run_id, seq, type, emitted_at, data)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.RunID, ev.Seq, string(ev.Type), ev.Timestamp, string(ev.Data))
	if err != nil {
		return fmt.Errorf("append event %d of run %s: %w", ev.Seq, ev.RunID, err)
	}
	return nil
}

func (s *sqlStore) ListEvents(ctx context.Context, runID string, afterSeq int) ([]*v1.Event, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	ro := s.pool.Reader()
	var rows []eventRow
	err := ro.SelectContext(ctx, &rows, ro.Rebind(`
		SELECT id, event_id, run_id, seq, type, emitted_at, data
		FROM run_events WHERE run_id = ? AND seq > ? ORDER BY seq ASC`), runID, afterSeq)
	if err != nil {
		return nil, err
	}
	out := make([]*v1.Event, len(rows))
	for i, r := range rows {
		out[i] = &v1.Event{
			ID:        r.EventID,
			RunID:     r.RunID,
			Seq:       r.Seq,
			Type:      v1.EventType(r.Type),
			Timestamp: r.Timestamp,
			Data:      []byte(r.Data),
		}
	}
	return out, nil
}

// Close is a no-op; the pool belongs to the caller.
func (s *sqlStore) Close() error { return nil }
