package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Tx is the transactional surface the board engine works against.
// All reads observe the writes made earlier in the same Tx.
type Tx interface {
	// GetTask returns a task with its assignees, or ErrNotFound.
	GetTask(ctx context.Context, id string) (*Task, error)
	// ListGroup returns one lane ordered by index.
	ListGroup(ctx context.Context, teamID string, status TaskStatus) ([]Task, error)
	// ListTeam returns every lane of a team, ordered by status then index.
	ListTeam(ctx context.Context, teamID string) ([]Task, error)
	CountGroup(ctx context.Context, teamID string, status TaskStatus) (int, error)

	InsertTask(ctx context.Context, t *Task) error
	// WriteTasks persists status, index, lifecycle stamps and updated_at only.
	WriteTasks(ctx context.Context, tasks []Task) error
	// UpdateFields persists the descriptive fields and replaces the assignee set.
	UpdateFields(ctx context.Context, t *Task) error
	DeleteTask(ctx context.Context, id string) error

	// LoadAssignees fills the Assignees projection of each task in place.
	LoadAssignees(ctx context.Context, tasks []Task) error

	Version(ctx context.Context, teamID string) (int64, error)
	BumpVersion(ctx context.Context, teamID string) (int64, error)

	AddEvent(ctx context.Context, taskID, actor, eventType, content string) error

	Commit() error
	Rollback() error
}

// taskColumns is the standard column list for task queries.
const taskColumns = `id, team_id, status, idx, description, date, due_date, created_at, updated_at, in_development_at, in_review_at, finished_at`

type sqlTx struct {
	tx *sql.Tx
}

func (t *sqlTx) Commit() error {
	return wrapErr("commit", t.tx.Commit())
}

func (t *sqlTx) Rollback() error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return wrapErr("rollback", err)
}

func (t *sqlTx) GetTask(ctx context.Context, id string) (*Task, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, wrapErr("get task", err)
	}
	tasks := []Task{*task}
	if err := t.LoadAssignees(ctx, tasks); err != nil {
		return nil, err
	}
	return &tasks[0], nil
}

func (t *sqlTx) ListGroup(ctx context.Context, teamID string, status TaskStatus) ([]Task, error) {
	return t.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE team_id = ? AND status = ? ORDER BY idx, created_at`,
		teamID, string(status),
	)
}

func (t *sqlTx) ListTeam(ctx context.Context, teamID string) ([]Task, error) {
	tasks, err := t.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE team_id = ? ORDER BY idx, created_at`,
		teamID,
	)
	if err != nil {
		return nil, err
	}
	// Stable partition by board order; SQL cannot sort by the enum position.
	var ordered []Task
	for _, status := range Statuses {
		for _, task := range tasks {
			if task.Status == status {
				ordered = append(ordered, task)
			}
		}
	}
	return ordered, nil
}

func (t *sqlTx) CountGroup(ctx context.Context, teamID string, status TaskStatus) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tasks WHERE team_id = ? AND status = ?`,
		teamID, string(status),
	).Scan(&n)
	if err != nil {
		return 0, wrapErr("count group", err)
	}
	return n, nil
}

func (t *sqlTx) InsertTask(ctx context.Context, task *Task) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.TeamID, string(task.Status), task.Index, task.Description,
		task.Date, task.DueDate, task.CreatedAt, task.UpdatedAt,
		nullTime(task.InDevelopmentAt), nullTime(task.InReviewAt), nullTime(task.FinishedAt),
	)
	if err != nil {
		return wrapErr("insert task", err)
	}
	return t.insertAssignees(ctx, task.ID, task.Assignees)
}

func (t *sqlTx) WriteTasks(ctx context.Context, tasks []Task) error {
	if len(tasks) == 0 {
		return nil
	}
	stmt, err := t.tx.PrepareContext(ctx,
		`UPDATE tasks SET status = ?, idx = ?, updated_at = ?,
		 in_development_at = ?, in_review_at = ?, finished_at = ?
		 WHERE id = ?`,
	)
	if err != nil {
		return wrapErr("prepare write", err)
	}
	defer stmt.Close()

	for _, task := range tasks {
		res, err := stmt.ExecContext(ctx,
			string(task.Status), task.Index, task.UpdatedAt,
			nullTime(task.InDevelopmentAt), nullTime(task.InReviewAt), nullTime(task.FinishedAt),
			task.ID,
		)
		if err != nil {
			return wrapErr("write task", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("write task %s: %w", task.ID, ErrNotFound)
		}
	}
	return nil
}

func (t *sqlTx) UpdateFields(ctx context.Context, task *Task) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE tasks SET description = ?, date = ?, due_date = ?, updated_at = ? WHERE id = ?`,
		task.Description, task.Date, task.DueDate, task.UpdatedAt, task.ID,
	)
	if err != nil {
		return wrapErr("update task", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update task %s: %w", task.ID, ErrNotFound)
	}
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM task_assignees WHERE task_id = ?`, task.ID); err != nil {
		return wrapErr("clear assignees", err)
	}
	return t.insertAssignees(ctx, task.ID, task.Assignees)
}

func (t *sqlTx) DeleteTask(ctx context.Context, id string) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM task_assignees WHERE task_id = ?`, id); err != nil {
		return wrapErr("delete assignees", err)
	}
	res, err := t.tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return wrapErr("delete task", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete task %s: %w", id, ErrNotFound)
	}
	return nil
}

func (t *sqlTx) LoadAssignees(ctx context.Context, tasks []Task) error {
	if len(tasks) == 0 {
		return nil
	}
	byID := make(map[string]int, len(tasks))
	args := make([]any, 0, len(tasks))
	for i := range tasks {
		tasks[i].Assignees = []string{}
		byID[tasks[i].ID] = i
		args = append(args, tasks[i].ID)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(args)), ",")
	rows, err := t.tx.QueryContext(ctx,
		`SELECT task_id, member_id FROM task_assignees WHERE task_id IN (`+placeholders+`) ORDER BY rowid`,
		args...,
	)
	if err != nil {
		return wrapErr("load assignees", err)
	}
	defer rows.Close()

	for rows.Next() {
		var taskID, memberID string
		if err := rows.Scan(&taskID, &memberID); err != nil {
			return wrapErr("scan assignee", err)
		}
		if i, ok := byID[taskID]; ok {
			tasks[i].Assignees = append(tasks[i].Assignees, memberID)
		}
	}
	return wrapErr("load assignees", rows.Err())
}

func (t *sqlTx) Version(ctx context.Context, teamID string) (int64, error) {
	var v int64
	err := t.tx.QueryRowContext(ctx, `SELECT version FROM boards WHERE team_id = ?`, teamID).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, wrapErr("board version", err)
	}
	return v, nil
}

func (t *sqlTx) BumpVersion(ctx context.Context, teamID string) (int64, error) {
	var v int64
	err := t.tx.QueryRowContext(ctx,
		`INSERT INTO boards (team_id, version) VALUES (?, 1)
		 ON CONFLICT(team_id) DO UPDATE SET version = version + 1
		 RETURNING version`,
		teamID,
	).Scan(&v)
	if err != nil {
		return 0, wrapErr("bump version", err)
	}
	return v, nil
}

func (t *sqlTx) AddEvent(ctx context.Context, taskID, actor, eventType, content string) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO events (task_id, actor, event_type, content, timestamp) VALUES (?, ?, ?, ?, ?)`,
		taskID, actor, eventType, content, time.Now().UTC(),
	)
	return wrapErr("add event", err)
}

func (t *sqlTx) insertAssignees(ctx context.Context, taskID string, members []string) error {
	for _, m := range members {
		if _, err := t.tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO task_assignees (task_id, member_id) VALUES (?, ?)`, taskID, m,
		); err != nil {
			return wrapErr("insert assignee", err)
		}
	}
	return nil
}

// queryTasks is a shared helper for running task-list queries.
func (t *sqlTx) queryTasks(ctx context.Context, query string, args ...any) ([]Task, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("query tasks", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

func collectTasks(rows *sql.Rows) ([]Task, error) {
	var tasks []Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, wrapErr("scan task", err)
		}
		tasks = append(tasks, *task)
	}
	return tasks, wrapErr("query tasks", rows.Err())
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanTask scans a single task from a *sql.Row or *sql.Rows.
func scanTask(row rowScanner) (*Task, error) {
	var t Task
	var devAt, reviewAt, finishedAt sql.NullTime
	err := row.Scan(
		&t.ID, &t.TeamID, &t.Status, &t.Index, &t.Description,
		&t.Date, &t.DueDate, &t.CreatedAt, &t.UpdatedAt,
		&devAt, &reviewAt, &finishedAt,
	)
	if err != nil {
		return nil, err
	}
	t.InDevelopmentAt = timePtr(devAt)
	t.InReviewAt = timePtr(reviewAt)
	t.FinishedAt = timePtr(finishedAt)
	return &t, nil
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	v := nt.Time.UTC()
	return &v
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
