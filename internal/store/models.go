package store

import "time"

// TaskStatus is the lane a task sits in on the board.
type TaskStatus string

const (
	StatusActive   TaskStatus = "active"
	StatusOngoing  TaskStatus = "ongoing"
	StatusReview   TaskStatus = "review"
	StatusFinished TaskStatus = "finished"
)

// Statuses lists every lane in board order.
var Statuses = []TaskStatus{StatusActive, StatusOngoing, StatusReview, StatusFinished}

// Valid reports whether s is one of the four board statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusActive, StatusOngoing, StatusReview, StatusFinished:
		return true
	}
	return false
}

// Task is a single card on a team's board.
// Index is its position inside the (TeamID, Status) lane.
type Task struct {
	ID          string     `json:"id"`
	TeamID      string     `json:"teamId"`
	Status      TaskStatus `json:"status"`
	Index       int        `json:"index"`
	Assignees   []string   `json:"assignees"`
	Date        time.Time  `json:"date"`
	DueDate     time.Time  `json:"dueDate"`
	Description string     `json:"description"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`

	// Lifecycle stamps. Nil means the stage was never reached or was reverted.
	InDevelopmentAt *time.Time `json:"inDevelopmentAt"`
	InReviewAt      *time.Time `json:"inReviewAt"`
	FinishedAt      *time.Time `json:"finishedAt"`
}

// Event is one entry in a task's activity log.
type Event struct {
	ID        int64     `json:"id"`
	TaskID    string    `json:"taskId"`
	Actor     string    `json:"actor,omitempty"`
	Type      string    `json:"type"` // created, moved, edited, deleted
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}
