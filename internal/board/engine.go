// Package board is the orchestration layer of the lane-ordering engine.
//
// Every operation that changes a task's lane, position or lifecycle runs as
// one store transaction: read current state, compute index and stamp deltas
// with package lane and package lifecycle, write every touched row, bump the
// team's board version, commit. Callers get back the post-commit image of
// every written row and hand it to the notification fanout.
package board

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/imkarma/laneboard/internal/lane"
	"github.com/imkarma/laneboard/internal/lifecycle"
	"github.com/imkarma/laneboard/internal/store"
)

// TaskStore opens the transactions the engine runs in.
type TaskStore interface {
	Begin(ctx context.Context) (store.Tx, error)
}

// ChangedTasks is the result of one committed operation.
type ChangedTasks struct {
	TeamID  string       `json:"teamId"`
	Version int64        `json:"version"`
	Tasks   []store.Task `json:"tasks"`
	Removed string       `json:"removed,omitempty"`
}

// Empty reports whether the operation wrote nothing.
func (c ChangedTasks) Empty() bool {
	return len(c.Tasks) == 0 && c.Removed == ""
}

// Engine runs moves, creations, edits and deletions against a TaskStore.
type Engine struct {
	store TaskStore
	now   func() time.Time
	log   log.FieldLogger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock used for lifecycle stamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the logger. Defaults to the logrus standard logger.
func WithLogger(l log.FieldLogger) Option {
	return func(e *Engine) { e.log = l }
}

// New creates an engine on top of st.
func New(st TaskStore, opts ...Option) *Engine {
	e := &Engine{
		store: st,
		now:   time.Now,
		log:   log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) clock() time.Time {
	return e.now().UTC()
}

// Move places task taskID at index targetIndex of lane targetStatus.
//
// A move inside the task's current lane shifts the tasks between the old and
// new position. A move to another lane closes the gap in the old lane, opens
// one in the new lane and updates the task's lifecycle stamps from its stored
// status. A move to the task's current position writes nothing and returns an
// empty change set. targetIndex past a lane's tail appends.
//
// The engine never retries. ErrNotFound, ErrInvalidArgument,
// ErrConcurrencyConflict and ErrStorage are returned as-is; on any error
// nothing was committed.
func (e *Engine) Move(ctx context.Context, taskID string, targetStatus store.TaskStatus, targetIndex int) (ChangedTasks, error) {
	if !targetStatus.Valid() {
		return ChangedTasks{}, fmt.Errorf("move %s: status %q: %w", taskID, targetStatus, store.ErrInvalidArgument)
	}
	if targetIndex < 0 {
		return ChangedTasks{}, fmt.Errorf("move %s: index %d: %w", taskID, targetIndex, store.ErrInvalidArgument)
	}

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return ChangedTasks{}, err
	}
	defer func() { _ = tx.Rollback() }()

	task, err := tx.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.log.WithField("task", taskID).Debug("move: task vanished")
		}
		return ChangedTasks{}, err
	}

	logger := e.log.WithFields(log.Fields{
		"task": task.ID, "team": task.TeamID,
		"from": fmt.Sprintf("%s#%d", task.Status, task.Index),
		"to":   fmt.Sprintf("%s#%d", targetStatus, targetIndex),
	})

	now := e.clock()
	var changed []store.Task
	if task.Status == targetStatus {
		if task.Index == targetIndex {
			logger.Debug("move: already in place")
			return ChangedTasks{TeamID: task.TeamID}, nil
		}
		group, err := tx.ListGroup(ctx, task.TeamID, task.Status)
		if err != nil {
			return ChangedTasks{}, err
		}
		changed = lane.Reorder(group, task.Index, targetIndex)
		if len(changed) == 0 {
			logger.Debug("move: clamped to current position")
			return ChangedTasks{TeamID: task.TeamID}, nil
		}
	} else {
		source, err := tx.ListGroup(ctx, task.TeamID, task.Status)
		if err != nil {
			return ChangedTasks{}, err
		}
		dest, err := tx.ListGroup(ctx, task.TeamID, targetStatus)
		if err != nil {
			return ChangedTasks{}, err
		}
		changed = lane.Relocate(*task, source, dest, targetStatus, targetIndex)
		lifecycle.Between(*task, task.Status, targetStatus, now).Apply(&changed[0])
	}

	for i := range changed {
		changed[i].UpdatedAt = now
	}
	moved := changed[0]

	if err := tx.WriteTasks(ctx, changed); err != nil {
		return ChangedTasks{}, err
	}
	version, err := tx.BumpVersion(ctx, task.TeamID)
	if err != nil {
		return ChangedTasks{}, err
	}
	content := fmt.Sprintf("%s#%d -> %s#%d", task.Status, task.Index, moved.Status, moved.Index)
	if err := tx.AddEvent(ctx, task.ID, actorFrom(ctx), "moved", content); err != nil {
		return ChangedTasks{}, err
	}
	if err := tx.LoadAssignees(ctx, changed); err != nil {
		return ChangedTasks{}, err
	}
	if err := tx.Commit(); err != nil {
		if errors.Is(err, store.ErrConcurrencyConflict) {
			logger.WithError(err).Warn("move: conflict on commit")
		}
		return ChangedTasks{}, err
	}

	logger.WithFields(log.Fields{"changed": len(changed), "version": version}).Info("task moved")
	return ChangedTasks{TeamID: task.TeamID, Version: version, Tasks: changed}, nil
}

// Retry runs op and, if it failed with ErrConcurrencyConflict, runs it once
// more against fresh state. It is meant for callers of the engine; the engine
// itself never retries.
func Retry(ctx context.Context, op func(ctx context.Context) (ChangedTasks, error)) (ChangedTasks, error) {
	res, err := op(ctx)
	if !errors.Is(err, store.ErrConcurrencyConflict) || ctx.Err() != nil {
		return res, err
	}
	return op(ctx)
}

type actorKey struct{}

// WithActor records the member performing the request, for the activity log.
func WithActor(ctx context.Context, memberID string) context.Context {
	return context.WithValue(ctx, actorKey{}, memberID)
}

func actorFrom(ctx context.Context) string {
	if v, ok := ctx.Value(actorKey{}).(string); ok {
		return v
	}
	return ""
}
