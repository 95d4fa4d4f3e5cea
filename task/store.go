package task

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/K-Arthur/script-generator/validation"
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL,
	request     TEXT NOT NULL,
	script      TEXT NOT NULL DEFAULT '',
	validation  TEXT NOT NULL DEFAULT '',
	error       TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL,
	updated_at  DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_status_updated ON tasks (status, updated_at);
`

const taskColumns = "id, status, request, script, validation, error, created_at, updated_at"

// SQLiteStore persists tasks in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures
// the tasks table exists. The caller is responsible for calling Close.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1) // prevent SQLITE_BUSY
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Insert(ctx context.Context, t *Task) error {
	request, err := json.Marshal(t.Request)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	report, err := marshalReport(t.Validation)
	if err != nil {
		return err
	}

	// INSERT OR IGNORE keeps the existing row; zero rows affected means a duplicate ID.
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO tasks (`+taskColumns+`)
		VALUES (?,?,?,?,?,?,?,?)`,
		t.ID, string(t.Status), string(request), t.Script, report, t.Error,
		t.CreatedAt.UTC(), t.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("insert %s: %w", t.ID, ErrExists)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

// Finish replaces the row in one UPDATE guarded on the processing status,
// so the terminal write happens at most once.
func (s *SQLiteStore) Finish(ctx context.Context, t *Task) error {
	if err := checkFinish(t); err != nil {
		return err
	}
	report, err := marshalReport(t.Validation)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET status=?, script=?, validation=?, error=?, updated_at=?
		WHERE id=? AND status=?`,
		string(t.Status), t.Script, report, t.Error, t.UpdatedAt.UTC(),
		t.ID, string(StatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("finish task: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		if _, err := s.Get(ctx, t.ID); err != nil {
			return err
		}
		return fmt.Errorf("finish %s: %w", t.ID, ErrTerminal)
	}
	return nil
}

// List returns tasks matching the filter.
func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]*Task, error) {
	q := strings.Builder{}
	q.WriteString("SELECT " + taskColumns + " FROM tasks WHERE 1=1")
	args := []any{}

	if filter.Status != nil {
		q.WriteString(" AND status=?")
		args = append(args, string(*filter.Status))
	}
	q.WriteString(" ORDER BY created_at ASC, id ASC")
	if filter.Limit > 0 {
		q.WriteString(fmt.Sprintf(" LIMIT %d", filter.Limit))
	}

	rows, err := s.db.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *SQLiteStore) Prune(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM tasks WHERE status IN (?, ?) AND updated_at < ?",
		string(StatusCompleted), string(StatusFailed), before.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("prune tasks: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rows), nil
}

// scanner abstracts sql.Row and sql.Rows for scanTask.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (*Task, error) {
	var t Task
	var status, requestJSON, reportJSON string

	err := s.Scan(
		&t.ID, &status, &requestJSON, &t.Script, &reportJSON, &t.Error,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Status = Status(status)
	if err := json.Unmarshal([]byte(requestJSON), &t.Request); err != nil {
		return nil, fmt.Errorf("task %s: decode request: %w", t.ID, err)
	}
	if reportJSON != "" {
		t.Validation = &validation.Report{}
		if err := json.Unmarshal([]byte(reportJSON), t.Validation); err != nil {
			return nil, fmt.Errorf("task %s: decode validation: %w", t.ID, err)
		}
	}
	return &t, nil
}

func marshalReport(r *validation.Report) (string, error) {
	if r == nil {
		return "", nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("marshal validation: %w", err)
	}
	return string(data), nil
}
