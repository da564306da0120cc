package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultBusyTimeout is how long a writer waits for the board lock before
// giving up with ErrConcurrencyConflict.
const DefaultBusyTimeout = 5 * time.Second

// Options tunes how the database is opened.
type Options struct {
	BusyTimeout time.Duration
}

// Store provides access to the board database.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the SQLite database at the given path with default options.
func New(dbPath string) (*Store, error) {
	return Open(dbPath, Options{})
}

// Open opens (or creates) the SQLite database at the given path.
//
// Every transaction is started with BEGIN IMMEDIATE, so two writers touching
// the same board never interleave their read-modify-write cycles: the second
// one waits up to BusyTimeout for the first to commit, then reads fresh state.
func Open(dbPath string, opts Options) (*Store, error) {
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = DefaultBusyTimeout
	}

	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", opts.BusyTimeout.Milliseconds()))
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "foreign_keys(1)")
	q.Set("_txlock", "immediate")

	db, err := sql.Open("sqlite", "file:"+dbPath+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id                 TEXT PRIMARY KEY,
		team_id            TEXT NOT NULL,
		status             TEXT NOT NULL DEFAULT 'active',
		idx                INTEGER NOT NULL,
		description        TEXT NOT NULL DEFAULT '',
		date               DATETIME NOT NULL,
		due_date           DATETIME NOT NULL,
		created_at         DATETIME NOT NULL,
		updated_at         DATETIME NOT NULL,
		in_development_at  DATETIME,
		in_review_at       DATETIME,
		finished_at        DATETIME
	);

	CREATE INDEX IF NOT EXISTS tasks_lane ON tasks (team_id, status, idx);

	CREATE TABLE IF NOT EXISTS task_assignees (
		task_id    TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
		member_id  TEXT NOT NULL,
		PRIMARY KEY (task_id, member_id)
	);

	CREATE TABLE IF NOT EXISTS boards (
		team_id  TEXT PRIMARY KEY,
		version  INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS events (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id     TEXT NOT NULL,
		actor       TEXT DEFAULT '',
		event_type  TEXT NOT NULL,
		content     TEXT DEFAULT '',
		timestamp   DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Begin starts a write transaction. The caller must Commit or Rollback it.
func (s *Store) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapErr("begin tx", err)
	}
	return &sqlTx{tx: tx}, nil
}

// GetTask returns a single task with its assignees.
func (s *Store) GetTask(ctx context.Context, id string) (*Task, error) {
	var task *Task
	err := s.read(ctx, func(tx Tx) error {
		var err error
		task, err = tx.GetTask(ctx, id)
		return err
	})
	return task, err
}

// ListTeam returns every task of a team ordered by lane and index, plus the
// board version the snapshot was taken at.
func (s *Store) ListTeam(ctx context.Context, teamID string) ([]Task, int64, error) {
	var (
		tasks   []Task
		version int64
	)
	err := s.read(ctx, func(tx Tx) error {
		var err error
		if tasks, err = tx.ListTeam(ctx, teamID); err != nil {
			return err
		}
		if err = tx.LoadAssignees(ctx, tasks); err != nil {
			return err
		}
		version, err = tx.Version(ctx, teamID)
		return err
	})
	return tasks, version, err
}

// ListTasks returns all tasks across teams, optionally filtered by status.
func (s *Store) ListTasks(ctx context.Context, status string) ([]Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY team_id, status, idx`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("query tasks", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// Teams returns the ids of every team that has at least one task.
func (s *Store) Teams(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT team_id FROM tasks ORDER BY team_id`)
	if err != nil {
		return nil, wrapErr("query teams", err)
	}
	defer rows.Close()

	var teams []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrapErr("scan team", err)
		}
		teams = append(teams, id)
	}
	return teams, wrapErr("query teams", rows.Err())
}

// GetEvents returns the activity log of a task, oldest first.
func (s *Store) GetEvents(ctx context.Context, taskID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_id, actor, event_type, content, timestamp FROM events WHERE task_id = ? ORDER BY id`,
		taskID,
	)
	if err != nil {
		return nil, wrapErr("get events", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.TaskID, &e.Actor, &e.Type, &e.Content, &e.Timestamp); err != nil {
			return nil, wrapErr("scan event", err)
		}
		events = append(events, e)
	}
	return events, wrapErr("get events", rows.Err())
}

// read runs fn inside a transaction that is always rolled back.
func (s *Store) read(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	return fn(tx)
}
