package board

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/imkarma/laneboard/internal/lane"
	"github.com/imkarma/laneboard/internal/lifecycle"
	"github.com/imkarma/laneboard/internal/store"
)

// NewTask describes a task to create.
type NewTask struct {
	TeamID      string
	Status      store.TaskStatus
	Assignees   []string
	Date        time.Time
	DueDate     time.Time
	Description string
}

// Edit carries a partial update of a task's descriptive fields.
// Nil fields are left unchanged; a non-nil Assignees replaces the set.
type Edit struct {
	Description *string
	Date        *time.Time
	DueDate     *time.Time
	Assignees   []string
}

// AssignInitialPosition returns the index a new task in (teamID, status)
// takes: the current size of the lane. It must run in the same transaction
// as the insert so two concurrent creations cannot both take the same slot.
func AssignInitialPosition(ctx context.Context, tx store.Tx, teamID string, status store.TaskStatus) (int, error) {
	return tx.CountGroup(ctx, teamID, status)
}

// Create inserts a task at the tail of its lane with the lifecycle stamps of
// every stage it skipped.
func (e *Engine) Create(ctx context.Context, nt NewTask) (ChangedTasks, error) {
	if nt.TeamID == "" {
		return ChangedTasks{}, fmt.Errorf("create task: team id is required: %w", store.ErrInvalidArgument)
	}
	if nt.Status == "" {
		nt.Status = store.StatusActive
	}
	if !nt.Status.Valid() {
		return ChangedTasks{}, fmt.Errorf("create task: status %q: %w", nt.Status, store.ErrInvalidArgument)
	}

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return ChangedTasks{}, err
	}
	defer func() { _ = tx.Rollback() }()

	index, err := AssignInitialPosition(ctx, tx, nt.TeamID, nt.Status)
	if err != nil {
		return ChangedTasks{}, err
	}

	now := e.clock()
	task := store.Task{
		ID:          uuid.NewString(),
		TeamID:      nt.TeamID,
		Status:      nt.Status,
		Index:       index,
		Assignees:   dedupe(nt.Assignees),
		Date:        nt.Date.UTC(),
		DueDate:     nt.DueDate.UTC(),
		Description: nt.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	lifecycle.CreationTimestamps(nt.Status, now).Apply(&task)

	if err := tx.InsertTask(ctx, &task); err != nil {
		return ChangedTasks{}, err
	}
	version, err := tx.BumpVersion(ctx, task.TeamID)
	if err != nil {
		return ChangedTasks{}, err
	}
	if err := tx.AddEvent(ctx, task.ID, actorFrom(ctx), "created",
		fmt.Sprintf("created in %s#%d", task.Status, task.Index)); err != nil {
		return ChangedTasks{}, err
	}
	if err := tx.Commit(); err != nil {
		return ChangedTasks{}, err
	}

	e.log.WithFields(log.Fields{"task": task.ID, "team": task.TeamID, "status": task.Status, "index": task.Index}).
		Info("task created")
	return ChangedTasks{TeamID: task.TeamID, Version: version, Tasks: []store.Task{task}}, nil
}

// Edit updates the descriptive fields of a task. Position and lifecycle are
// never touched here; those only change through Move.
func (e *Engine) Edit(ctx context.Context, taskID string, ed Edit) (ChangedTasks, error) {
	if ed.Description == nil && ed.Date == nil && ed.DueDate == nil && ed.Assignees == nil {
		return ChangedTasks{}, fmt.Errorf("edit %s: no fields: %w", taskID, store.ErrInvalidArgument)
	}

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return ChangedTasks{}, err
	}
	defer func() { _ = tx.Rollback() }()

	task, err := tx.GetTask(ctx, taskID)
	if err != nil {
		return ChangedTasks{}, err
	}

	var fields []string
	if ed.Description != nil {
		task.Description = *ed.Description
		fields = append(fields, "description")
	}
	if ed.Date != nil {
		task.Date = ed.Date.UTC()
		fields = append(fields, "date")
	}
	if ed.DueDate != nil {
		task.DueDate = ed.DueDate.UTC()
		fields = append(fields, "dueDate")
	}
	if ed.Assignees != nil {
		task.Assignees = dedupe(ed.Assignees)
		fields = append(fields, "assignees")
	}
	task.UpdatedAt = e.clock()

	if err := tx.UpdateFields(ctx, task); err != nil {
		return ChangedTasks{}, err
	}
	version, err := tx.BumpVersion(ctx, task.TeamID)
	if err != nil {
		return ChangedTasks{}, err
	}
	if err := tx.AddEvent(ctx, task.ID, actorFrom(ctx), "edited", strings.Join(fields, ", ")); err != nil {
		return ChangedTasks{}, err
	}
	if err := tx.Commit(); err != nil {
		return ChangedTasks{}, err
	}

	return ChangedTasks{TeamID: task.TeamID, Version: version, Tasks: []store.Task{*task}}, nil
}

// Delete removes a task and closes the gap it leaves in its lane.
func (e *Engine) Delete(ctx context.Context, taskID string) (ChangedTasks, error) {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return ChangedTasks{}, err
	}
	defer func() { _ = tx.Rollback() }()

	task, err := tx.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.log.WithField("task", taskID).Debug("delete: task already gone")
		}
		return ChangedTasks{}, err
	}
	group, err := tx.ListGroup(ctx, task.TeamID, task.Status)
	if err != nil {
		return ChangedTasks{}, err
	}

	changed := lane.Remove(*task, group)
	now := e.clock()
	for i := range changed {
		changed[i].UpdatedAt = now
	}

	if err := tx.DeleteTask(ctx, task.ID); err != nil {
		return ChangedTasks{}, err
	}
	if err := tx.WriteTasks(ctx, changed); err != nil {
		return ChangedTasks{}, err
	}
	version, err := tx.BumpVersion(ctx, task.TeamID)
	if err != nil {
		return ChangedTasks{}, err
	}
	if err := tx.AddEvent(ctx, task.ID, actorFrom(ctx), "deleted",
		fmt.Sprintf("removed from %s#%d", task.Status, task.Index)); err != nil {
		return ChangedTasks{}, err
	}
	if err := tx.LoadAssignees(ctx, changed); err != nil {
		return ChangedTasks{}, err
	}
	if err := tx.Commit(); err != nil {
		return ChangedTasks{}, err
	}

	e.log.WithFields(log.Fields{"task": task.ID, "team": task.TeamID, "shifted": len(changed)}).Info("task deleted")
	return ChangedTasks{TeamID: task.TeamID, Version: version, Tasks: changed, Removed: task.ID}, nil
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
