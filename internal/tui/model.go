// Package tui is the interactive board: four lanes side by side, a cursor
// that walks them, and keys that move the selected card through the same
// engine the CLI and HTTP API use.
package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/imkarma/laneboard/internal/board"
	"github.com/imkarma/laneboard/internal/notify"
	"github.com/imkarma/laneboard/internal/store"
	"github.com/imkarma/laneboard/internal/worker"
)

// Engine is the part of board.Engine the TUI drives.
type Engine interface {
	Board(ctx context.Context, teamID string) (board.Board, error)
	Create(ctx context.Context, nt board.NewTask) (board.ChangedTasks, error)
	Move(ctx context.Context, taskID string, status store.TaskStatus, index int) (board.ChangedTasks, error)
	Delete(ctx context.Context, taskID string) (board.ChangedTasks, error)
}

// EventReader loads a task's activity log for the detail screen.
type EventReader interface {
	GetEvents(ctx context.Context, taskID string) ([]store.Event, error)
}

// Dispatcher publishes committed change sets.
type Dispatcher interface {
	Dispatch(ctx context.Context, eventType string, change board.ChangedTasks) []worker.Result
}

type screen int

const (
	screenBoard  screen = iota // lanes (main)
	screenDetail               // one task and its log
)

type popup int

const (
	popupNone popup = iota
	popupCreate
	popupConfirmDelete
)

const (
	numColumns  = 4
	refreshRate = 3 * time.Second
	dateLayout  = "2006-01-02"
)

var columnLabels = [numColumns]string{
	"ACTIVE",
	"ONGOING",
	"REVIEW",
	"FINISHED",
}

// Model is the top-level bubbletea model.
type Model struct {
	engine Engine
	events EventReader
	fanout Dispatcher
	team   string
	actor  string

	width  int
	height int

	screen screen
	popup  popup

	board     board.Board
	loaded    bool
	cursorCol int
	cursorRow int

	// Create popup: description and optional due date.
	textInput    textinput.Model
	textInput2   textinput.Model
	inputFocused int

	detail       *store.Task
	detailEvents []store.Event

	statusMsg  string
	statusErr  bool
	statusTime time.Time

	refreshing bool
	quitting   bool

	// Task to put the cursor on once the next reload lands.
	pendingFollow string
}

// New creates the board model for team. fanout may be nil.
func New(engine Engine, events EventReader, fanout Dispatcher, team, actor string) Model {
	ti := textinput.New()
	ti.Placeholder = "Description..."
	ti.CharLimit = 200
	ti.Width = 50

	di := textinput.New()
	di.Placeholder = "Due date YYYY-MM-DD (default: in a week)"
	di.CharLimit = 10
	di.Width = 50

	return Model{
		engine:     engine,
		events:     events,
		fanout:     fanout,
		team:       team,
		actor:      actor,
		screen:     screenBoard,
		textInput:  ti,
		textInput2: di,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.loadBoard(), tickCmd())
}

type boardLoadedMsg struct {
	board board.Board
	err   error
}

// mutationDoneMsg carries the result of a create, move or delete.
type mutationDoneMsg struct {
	eventType string
	res       board.ChangedTasks
	err       error
	verb      string
}

type detailLoadedMsg struct {
	events []store.Event
	err    error
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(refreshRate, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) ctx() context.Context {
	return board.WithActor(context.Background(), m.actor)
}

func (m Model) loadBoard() tea.Cmd {
	return func() tea.Msg {
		b, err := m.engine.Board(context.Background(), m.team)
		return boardLoadedMsg{board: b, err: err}
	}
}

func (m Model) loadDetail(taskID string) tea.Cmd {
	return func() tea.Msg {
		evs, err := m.events.GetEvents(context.Background(), taskID)
		return detailLoadedMsg{events: evs, err: err}
	}
}

// mutate runs op and hands a committed result to the fanout.
func (m Model) mutate(eventType, verb string, op func(ctx context.Context) (board.ChangedTasks, error)) tea.Cmd {
	return func() tea.Msg {
		ctx := m.ctx()
		res, err := board.Retry(ctx, op)
		if err == nil && m.fanout != nil {
			m.fanout.Dispatch(ctx, eventType, res)
		}
		return mutationDoneMsg{eventType: eventType, res: res, err: err, verb: verb}
	}
}

func (m Model) moveTask(taskID string, status store.TaskStatus, index int) tea.Cmd {
	return m.mutate(notify.EventUpdate, "Moved", func(ctx context.Context) (board.ChangedTasks, error) {
		return m.engine.Move(ctx, taskID, status, index)
	})
}

func (m Model) createTask(nt board.NewTask) tea.Cmd {
	return m.mutate(notify.EventCreate, "Created", func(ctx context.Context) (board.ChangedTasks, error) {
		return m.engine.Create(ctx, nt)
	})
}

func (m Model) deleteTask(taskID string) tea.Cmd {
	return m.mutate(notify.EventDelete, "Deleted", func(ctx context.Context) (board.ChangedTasks, error) {
		return m.engine.Delete(ctx, taskID)
	})
}

func (m Model) column(col int) []store.Task {
	return m.board.Lane(store.Statuses[col])
}

func (m *Model) clampCursor() {
	if m.cursorCol < 0 {
		m.cursorCol = 0
	}
	if m.cursorCol >= numColumns {
		m.cursorCol = numColumns - 1
	}
	col := m.column(m.cursorCol)
	if m.cursorRow >= len(col) {
		m.cursorRow = len(col) - 1
	}
	if m.cursorRow < 0 {
		m.cursorRow = 0
	}
}

func (m Model) selectedTask() *store.Task {
	col := m.column(m.cursorCol)
	if m.cursorRow < len(col) {
		t := col[m.cursorRow]
		return &t
	}
	return nil
}

// follow puts the cursor on task id, wherever it now is.
func (m *Model) follow(id string) {
	for c, status := range store.Statuses {
		for r, t := range m.board.Lane(status) {
			if t.ID == id {
				m.cursorCol, m.cursorRow = c, r
				return
			}
		}
	}
	m.clampCursor()
}

func (m *Model) setStatus(msg string, isErr bool) {
	m.statusMsg = msg
	m.statusErr = isErr
	m.statusTime = time.Now()
}
