// Package lane keeps the positional index of every (team, status) lane dense.
//
// All functions are pure: they take a snapshot of a lane, already read inside
// the caller's transaction and ordered by index, and return copies of the
// tasks whose index or status changed. Nothing here touches storage.
package lane

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/imkarma/laneboard/internal/store"
)

// Reorder moves the task at index from to index to inside one lane.
//
// Tasks strictly between the two positions shift by one toward the gap the
// moved task leaves behind. to is clamped to the lane tail. The result holds
// every task whose index changed, the moved task first; it is empty when the
// move is a no-op.
func Reorder(group []store.Task, from, to int) []store.Task {
	if n := len(group); to > n-1 {
		to = n - 1
	}
	if to < 0 {
		to = 0
	}
	if from == to {
		return nil
	}

	var moved *store.Task
	var shifted []store.Task
	for _, t := range group {
		switch {
		case t.Index == from && moved == nil:
			m := t
			m.Index = to
			moved = &m
		case to > from && t.Index > from && t.Index <= to:
			t.Index--
			shifted = append(shifted, t)
		case to < from && t.Index >= to && t.Index < from:
			t.Index++
			shifted = append(shifted, t)
		}
	}
	if moved == nil {
		return nil
	}
	return append([]store.Task{*moved}, shifted...)
}

// Relocate moves task out of source and into the status lane dest at destIndex.
//
// Step A closes the gap in source, step B opens a slot in dest, step C gives
// the moved task its new index and status. destIndex past the tail of dest is
// clamped to len(dest) (append). The moved task is first in the result,
// followed by the shifted source tasks and then the shifted dest tasks.
func Relocate(task store.Task, source, dest []store.Task, status store.TaskStatus, destIndex int) []store.Task {
	if destIndex > len(dest) {
		destIndex = len(dest)
	}
	if destIndex < 0 {
		destIndex = 0
	}

	changed := make([]store.Task, 0, 1+len(source)+len(dest))

	moved := task
	moved.Status = status
	moved.Index = destIndex
	changed = append(changed, moved)

	changed = append(changed, Remove(task, source)...)

	for _, t := range dest {
		if t.ID == task.ID {
			continue
		}
		if t.Index >= destIndex {
			t.Index++
			changed = append(changed, t)
		}
	}
	return changed
}

// Remove closes the gap task leaves in group. The removed task itself is not
// part of the result.
func Remove(task store.Task, group []store.Task) []store.Task {
	var changed []store.Task
	for _, t := range group {
		if t.ID == task.ID {
			continue
		}
		if t.Index > task.Index {
			t.Index--
			changed = append(changed, t)
		}
	}
	return changed
}

// Append returns the index a new task takes at the tail of group.
func Append(group []store.Task) int {
	return len(group)
}

// Apply overlays changed tasks onto group and returns the lane re-sorted by
// index. Tasks whose status no longer matches status are dropped, tasks that
// moved in are added.
func Apply(group []store.Task, changed []store.Task, status store.TaskStatus) []store.Task {
	byID := make(map[string]store.Task, len(group)+len(changed))
	order := make([]string, 0, len(group)+len(changed))
	for _, t := range group {
		if _, ok := byID[t.ID]; !ok {
			order = append(order, t.ID)
		}
		byID[t.ID] = t
	}
	for _, t := range changed {
		if _, ok := byID[t.ID]; !ok {
			order = append(order, t.ID)
		}
		byID[t.ID] = t
	}

	out := make([]store.Task, 0, len(order))
	for _, id := range order {
		if t := byID[id]; t.Status == status {
			out = append(out, t)
		}
	}
	sortByIndex(out)
	return out
}

// Dense reports an error if the indices of group are not exactly 0..n-1.
func Dense(group []store.Task) error {
	seen := make([]bool, len(group))
	for _, t := range group {
		if t.Index < 0 || t.Index >= len(group) {
			return fmt.Errorf("task %s has index %d outside 0..%d", t.ID, t.Index, len(group)-1)
		}
		if seen[t.Index] {
			return fmt.Errorf("index %d is taken twice", t.Index)
		}
		seen[t.Index] = true
	}
	return nil
}

func sortByIndex(tasks []store.Task) {
	slices.SortStableFunc(tasks, func(a, b store.Task) int { return cmp.Compare(a.Index, b.Index) })
}
