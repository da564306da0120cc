package board

import (
	"context"
	"fmt"

	"github.com/imkarma/laneboard/internal/lane"
	"github.com/imkarma/laneboard/internal/lifecycle"
	"github.com/imkarma/laneboard/internal/store"
)

// Lane is one status column of a board, ordered by index.
type Lane struct {
	Status store.TaskStatus `json:"status"`
	Tasks  []store.Task     `json:"tasks"`
}

// Board is a consistent snapshot of a team's lanes.
type Board struct {
	TeamID  string `json:"teamId"`
	Version int64  `json:"version"`
	Lanes   []Lane `json:"lanes"`
}

// Lane returns the lane for status.
func (b Board) Lane(status store.TaskStatus) []store.Task {
	for _, l := range b.Lanes {
		if l.Status == status {
			return l.Tasks
		}
	}
	return nil
}

// Board reads every lane of teamID in a single transaction.
func (e *Engine) Board(ctx context.Context, teamID string) (Board, error) {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return Board{}, err
	}
	defer func() { _ = tx.Rollback() }()

	tasks, err := tx.ListTeam(ctx, teamID)
	if err != nil {
		return Board{}, err
	}
	if err := tx.LoadAssignees(ctx, tasks); err != nil {
		return Board{}, err
	}
	version, err := tx.Version(ctx, teamID)
	if err != nil {
		return Board{}, err
	}

	b := Board{TeamID: teamID, Version: version}
	for _, status := range store.Statuses {
		l := Lane{Status: status, Tasks: []store.Task{}}
		for _, t := range tasks {
			if t.Status == status {
				l.Tasks = append(l.Tasks, t)
			}
		}
		b.Lanes = append(b.Lanes, l)
	}
	return b, nil
}

// Violation is one broken board invariant.
type Violation struct {
	TeamID  string           `json:"teamId"`
	Status  store.TaskStatus `json:"status"`
	TaskID  string           `json:"taskId,omitempty"`
	Problem string           `json:"problem"`
}

func (v Violation) String() string {
	if v.TaskID != "" {
		return fmt.Sprintf("%s/%s: task %s: %s", v.TeamID, v.Status, v.TaskID, v.Problem)
	}
	return fmt.Sprintf("%s/%s: %s", v.TeamID, v.Status, v.Problem)
}

// Verify checks index density of every lane and lifecycle ordering of every
// task of teamID. An empty result means the board is healthy.
func (e *Engine) Verify(ctx context.Context, teamID string) ([]Violation, error) {
	b, err := e.Board(ctx, teamID)
	if err != nil {
		return nil, err
	}

	var out []Violation
	for _, l := range b.Lanes {
		if err := lane.Dense(l.Tasks); err != nil {
			out = append(out, Violation{TeamID: teamID, Status: l.Status, Problem: err.Error()})
		}
		for _, t := range l.Tasks {
			if !lifecycle.Monotone(t) {
				out = append(out, Violation{TeamID: teamID, Status: l.Status, TaskID: t.ID, Problem: "lifecycle stamps out of order"})
			}
		}
	}
	return out, nil
}

// ApplyResult says what Board.Apply did with a change set.
type ApplyResult int

const (
	// Applied means the change set was folded in.
	Applied ApplyResult = iota
	// Stale means the snapshot already contains the change set.
	Stale
	// Gap means at least one earlier change set is missing; reload the board.
	Gap
)

// Apply folds a committed change set into the snapshot. Change sets arrive
// out of order on the wire; the board version decides which ones count, so
// every viewer ends with the same lanes.
func (b *Board) Apply(c ChangedTasks) ApplyResult {
	if c.TeamID != b.TeamID || c.Version <= b.Version {
		return Stale
	}
	if c.Version != b.Version+1 {
		return Gap
	}
	for i, l := range b.Lanes {
		tasks := l.Tasks
		if c.Removed != "" {
			kept := make([]store.Task, 0, len(tasks))
			for _, t := range tasks {
				if t.ID != c.Removed {
					kept = append(kept, t)
				}
			}
			tasks = kept
		}
		b.Lanes[i].Tasks = lane.Apply(tasks, c.Tasks, l.Status)
	}
	b.Version = c.Version
	return Applied
}
