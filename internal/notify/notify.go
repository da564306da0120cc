// Package notify fans committed change sets out to everyone watching a board.
//
// The engine only produces change sets; this package decides nothing about
// recipients beyond the team. Each sink gets every event, sinks are delivered
// to in parallel through a worker pool, and a failing sink never blocks the
// others.
package notify

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/imkarma/laneboard/internal/board"
	"github.com/imkarma/laneboard/internal/worker"
)

// Event types, one per kind of board mutation.
const (
	EventCreate = "tasks:create"
	EventUpdate = "tasks:update"
	EventDelete = "tasks:delete"
)

// Event is the payload delivered to sinks.
type Event struct {
	Type   string             `json:"type"`
	Change board.ChangedTasks `json:"change"`
}

// Sink delivers events somewhere: a pub/sub channel, a log, a socket hub.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, ev Event) error
}

// Fanout delivers events to a set of sinks.
type Fanout struct {
	sinks []Sink
	pool  *worker.Pool
	log   log.FieldLogger
}

// NewFanout creates a fanout over sinks. A nil pool delivers sequentially.
func NewFanout(pool *worker.Pool, logger log.FieldLogger, sinks ...Sink) *Fanout {
	if pool == nil {
		pool = worker.NewPool(worker.PoolConfig{MaxWorkers: 1})
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Fanout{sinks: sinks, pool: pool, log: logger}
}

// Dispatch hands a change set to every sink and waits for delivery.
// Empty change sets are dropped. Failures are logged and returned; the
// change set is already committed, so there is nothing to undo.
func (f *Fanout) Dispatch(ctx context.Context, eventType string, change board.ChangedTasks) []worker.Result {
	if f == nil || change.Empty() || len(f.sinks) == 0 {
		return nil
	}
	ev := Event{Type: eventType, Change: change}

	jobs := make([]worker.Job, 0, len(f.sinks))
	for _, s := range f.sinks {
		s := s
		jobs = append(jobs, worker.Job{
			Name: s.Name(),
			Run:  func(ctx context.Context) error { return s.Deliver(ctx, ev) },
		})
	}

	results := f.pool.Run(ctx, jobs)
	for _, r := range worker.Failed(results) {
		f.log.WithFields(log.Fields{
			"sink": r.Name, "team": change.TeamID, "version": change.Version, "event": eventType,
		}).WithError(r.Error).Error("fanout delivery failed")
	}
	return results
}

// LogSink writes every event to a logger. Useful when no broker is configured.
type LogSink struct {
	Log log.FieldLogger
}

func (LogSink) Name() string { return "log" }

func (s LogSink) Deliver(_ context.Context, ev Event) error {
	ids := make([]string, 0, len(ev.Change.Tasks))
	for _, t := range ev.Change.Tasks {
		ids = append(ids, t.ID)
	}
	s.Log.WithFields(log.Fields{
		"event": ev.Type, "team": ev.Change.TeamID, "version": ev.Change.Version,
		"tasks": ids, "removed": ev.Change.Removed,
	}).Info("board changed")
	return nil
}

// FuncSink adapts a function into a Sink.
type FuncSink struct {
	ID string
	Fn func(ctx context.Context, ev Event) error
}

func (s FuncSink) Name() string { return s.ID }

func (s FuncSink) Deliver(ctx context.Context, ev Event) error { return s.Fn(ctx, ev) }
