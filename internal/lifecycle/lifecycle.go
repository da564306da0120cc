// Package lifecycle derives which lifecycle stamps a task gains or loses when
// it changes status.
//
// The four statuses form an ordered list of stages. Moving forward stamps the
// entry time of every stage crossed that has no stamp yet; moving backward
// clears the stamps of every stage the task no longer occupies. Jumps of any
// distance in either direction use the same rule.
package lifecycle

import (
	"time"

	"github.com/imkarma/laneboard/internal/store"
)

// Field names one of the nullable stamps on a task.
type Field int

const (
	InDevelopment Field = iota + 1
	InReview
	Finished
)

func (f Field) String() string {
	switch f {
	case InDevelopment:
		return "inDevelopmentAt"
	case InReview:
		return "inReviewAt"
	case Finished:
		return "finishedAt"
	}
	return "unknown"
}

// stage pairs a status with the stamp that marks entry into it.
// active has no stamp: every task starts there conceptually.
type stage struct {
	status store.TaskStatus
	field  Field
}

var stages = []stage{
	{status: store.StatusActive},
	{status: store.StatusOngoing, field: InDevelopment},
	{status: store.StatusReview, field: InReview},
	{status: store.StatusFinished, field: Finished},
}

// Rank returns the position of status in stage order, or -1 if unknown.
func Rank(status store.TaskStatus) int {
	for i, s := range stages {
		if s.status == status {
			return i
		}
	}
	return -1
}

// Change sets (At non-nil) or clears (At nil) one field.
type Change struct {
	Field Field
	At    *time.Time
}

// Delta is the ordered list of stamp changes for one transition.
type Delta []Change

// Empty reports whether the delta changes nothing.
func (d Delta) Empty() bool { return len(d) == 0 }

// Between computes the delta for moving a task that currently has the stamps
// of task from status from to status to at time now. Only fields that
// actually change are included, so an already-set stamp is never rewritten.
func Between(task store.Task, from, to store.TaskStatus, now time.Time) Delta {
	fromRank, toRank := Rank(from), Rank(to)
	if fromRank < 0 || toRank < 0 || fromRank == toRank {
		return nil
	}

	var d Delta
	if toRank > fromRank {
		for _, s := range stages[fromRank+1 : toRank+1] {
			if get(task, s.field) == nil {
				at := now
				d = append(d, Change{Field: s.field, At: &at})
			}
		}
		return d
	}
	for _, s := range stages[toRank+1:] {
		if get(task, s.field) != nil {
			d = append(d, Change{Field: s.field})
		}
	}
	return d
}

// CreationTimestamps returns the stamps a task created directly into status
// starts with: the forward-fill from active.
func CreationTimestamps(status store.TaskStatus, now time.Time) Delta {
	return Between(store.Task{}, store.StatusActive, status, now)
}

// Apply writes the delta onto task.
func (d Delta) Apply(task *store.Task) {
	for _, c := range d {
		var at *time.Time
		if c.At != nil {
			v := *c.At
			at = &v
		}
		switch c.Field {
		case InDevelopment:
			task.InDevelopmentAt = at
		case InReview:
			task.InReviewAt = at
		case Finished:
			task.FinishedAt = at
		}
	}
}

// Monotone reports whether the non-nil stamps of task are in stage order and
// none precedes CreatedAt.
func Monotone(task store.Task) bool {
	prev := task.CreatedAt
	for _, s := range stages[1:] {
		at := get(task, s.field)
		if at == nil {
			continue
		}
		if at.Before(prev) {
			return false
		}
		prev = *at
	}
	return true
}

func get(task store.Task, f Field) *time.Time {
	switch f {
	case InDevelopment:
		return task.InDevelopmentAt
	case InReview:
		return task.InReviewAt
	case Finished:
		return task.FinishedAt
	}
	return nil
}
