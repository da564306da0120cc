package tui

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"

	"github.com/imkarma/laneboard/internal/board"
	"github.com/imkarma/laneboard/internal/notify"
	"github.com/imkarma/laneboard/internal/store"
	"github.com/imkarma/laneboard/internal/worker"
)

const team = "team-a"

type recordingDispatcher struct {
	mu    sync.Mutex
	types []string
}

func (d *recordingDispatcher) Dispatch(_ context.Context, eventType string, _ board.ChangedTasks) []worker.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.types = append(d.types, eventType)
	return nil
}

func testModel(t *testing.T) (Model, *board.Engine, *recordingDispatcher) {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "board.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	quiet := log.New()
	quiet.SetLevel(log.PanicLevel)
	eng := board.New(s, board.WithLogger(quiet))
	d := &recordingDispatcher{}
	return New(eng, s, d, team, "tester"), eng, d
}

func seed(t *testing.T, eng *board.Engine, status store.TaskStatus, descs ...string) []string {
	t.Helper()
	var ids []string
	now := time.Now()
	for _, desc := range descs {
		res, err := eng.Create(context.Background(), board.NewTask{
			TeamID: team, Status: status, Description: desc,
			Date: now, DueDate: now.AddDate(0, 0, 7),
		})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		ids = append(ids, res.Tasks[0].ID)
	}
	return ids
}

func press(t *testing.T, m Model, key string) (Model, tea.Cmd) {
	t.Helper()
	var msg tea.KeyMsg
	switch key {
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		msg = tea.KeyMsg{Type: tea.KeyEsc}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	}
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

// settle runs cmd and feeds its messages back into the model until nothing
// is left to do.
func settle(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	for cmd != nil {
		msg := cmd()
		if msg == nil {
			break
		}
		var next tea.Model
		next, cmd = m.Update(msg)
		m = next.(Model)
	}
	return m
}

func loaded(t *testing.T, m Model) Model {
	t.Helper()
	m = settle(t, m, m.loadBoard())
	if !m.loaded {
		t.Fatalf("board not loaded: %s", m.statusMsg)
	}
	return m
}

func TestNavigationClamps(t *testing.T) {
	m, eng, _ := testModel(t)
	seed(t, eng, store.StatusActive, "one", "two")
	seed(t, eng, store.StatusOngoing, "three")
	m = loaded(t, m)

	for i := 0; i < 3; i++ {
		m, _ = press(t, m, "j")
	}
	if m.cursorCol != 0 || m.cursorRow != 1 {
		t.Fatalf("cursor = (%d,%d), want (0,1)", m.cursorCol, m.cursorRow)
	}

	m, _ = press(t, m, "l")
	if m.cursorCol != 1 || m.cursorRow != 0 {
		t.Fatalf("cursor = (%d,%d), want (1,0)", m.cursorCol, m.cursorRow)
	}
	for i := 0; i < 5; i++ {
		m, _ = press(t, m, "l")
	}
	if m.cursorCol != numColumns-1 {
		t.Fatalf("cursorCol = %d, want %d", m.cursorCol, numColumns-1)
	}
	if m.selectedTask() != nil {
		t.Fatal("finished lane is empty, nothing should be selected")
	}
}

func TestMoveToNextLane(t *testing.T) {
	m, eng, d := testModel(t)
	ids := seed(t, eng, store.StatusActive, "one", "two")
	m = loaded(t, m)

	m, cmd := press(t, m, "L")
	if cmd == nil {
		t.Fatal("expected a move command")
	}
	m = settle(t, m, cmd)

	ongoing := m.board.Lane(store.StatusOngoing)
	if len(ongoing) != 1 || ongoing[0].ID != ids[0] {
		t.Fatalf("ongoing lane = %+v, want task %s", ongoing, ids[0])
	}
	if ongoing[0].InDevelopmentAt == nil {
		t.Error("moved task should carry an in-development stamp")
	}
	active := m.board.Lane(store.StatusActive)
	if len(active) != 1 || active[0].ID != ids[1] || active[0].Index != 0 {
		t.Fatalf("active lane = %+v, want %s at 0", active, ids[1])
	}
	if m.cursorCol != 1 || m.cursorRow != 0 {
		t.Errorf("cursor = (%d,%d), want it to follow the task to (1,0)", m.cursorCol, m.cursorRow)
	}
	if !strings.HasPrefix(m.statusMsg, "Moved") {
		t.Errorf("status = %q", m.statusMsg)
	}
	if len(d.types) != 1 || d.types[0] != notify.EventUpdate {
		t.Errorf("dispatched %v, want one %s", d.types, notify.EventUpdate)
	}
}

func TestMoveLeftFromFirstLaneDoesNothing(t *testing.T) {
	m, eng, _ := testModel(t)
	seed(t, eng, store.StatusActive, "one")
	m = loaded(t, m)

	if _, cmd := press(t, m, "H"); cmd != nil {
		t.Fatal("no lane to the left of active")
	}
}

func TestReorderDown(t *testing.T) {
	m, eng, _ := testModel(t)
	ids := seed(t, eng, store.StatusActive, "one", "two", "three")
	m = loaded(t, m)

	m, cmd := press(t, m, "J")
	m = settle(t, m, cmd)

	active := m.board.Lane(store.StatusActive)
	got := []string{active[0].ID, active[1].ID, active[2].ID}
	want := []string{ids[1], ids[0], ids[2]}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("lane order = %v, want %v", got, want)
		}
	}
	if m.cursorRow != 1 {
		t.Errorf("cursorRow = %d, want 1", m.cursorRow)
	}

	// Already at the top: K on row 0 is not sent.
	m, _ = press(t, m, "k")
	if _, cmd := press(t, m, "K"); cmd != nil {
		t.Error("K at the top of the lane should not move anything")
	}
}

func TestCreatePopup(t *testing.T) {
	m, _, d := testModel(t)
	m = loaded(t, m)

	m, _ = press(t, m, "l") // ongoing
	m, _ = press(t, m, "c")
	if m.popup != popupCreate {
		t.Fatal("expected the create popup")
	}

	// Empty description is rejected in place.
	m, cmd := press(t, m, "enter")
	if cmd != nil || m.popup != popupCreate || !m.statusErr {
		t.Fatalf("empty description: popup=%v cmd=%v status=%q", m.popup, cmd != nil, m.statusMsg)
	}

	m, _ = press(t, m, "write docs")
	m, cmd = press(t, m, "enter")
	if m.popup != popupNone {
		t.Fatal("popup should close on submit")
	}
	m = settle(t, m, cmd)

	ongoing := m.board.Lane(store.StatusOngoing)
	if len(ongoing) != 1 || ongoing[0].Description != "write docs" {
		t.Fatalf("ongoing lane = %+v", ongoing)
	}
	if ongoing[0].InDevelopmentAt == nil {
		t.Error("task created in ongoing should be stamped")
	}
	if len(d.types) != 1 || d.types[0] != notify.EventCreate {
		t.Errorf("dispatched %v", d.types)
	}
}

func TestCreatePopupBadDueDate(t *testing.T) {
	m, _, _ := testModel(t)
	m = loaded(t, m)

	m, _ = press(t, m, "c")
	m, _ = press(t, m, "task")
	m.textInput2.SetValue("next week")
	m, cmd := press(t, m, "enter")
	if cmd != nil || !m.statusErr {
		t.Fatalf("bad due date should be rejected, status=%q", m.statusMsg)
	}

	m, _ = press(t, m, "esc")
	if m.popup != popupNone {
		t.Error("esc should close the popup")
	}
}

func TestDeleteConfirm(t *testing.T) {
	m, eng, d := testModel(t)
	ids := seed(t, eng, store.StatusActive, "one", "two")
	m = loaded(t, m)

	m, _ = press(t, m, "d")
	if m.popup != popupConfirmDelete {
		t.Fatal("expected the delete confirmation")
	}
	m, cmd := press(t, m, "n")
	if cmd != nil || m.popup != popupNone {
		t.Fatal("n should cancel")
	}

	m, _ = press(t, m, "d")
	m, cmd = press(t, m, "y")
	m = settle(t, m, cmd)

	active := m.board.Lane(store.StatusActive)
	if len(active) != 1 || active[0].ID != ids[1] || active[0].Index != 0 {
		t.Fatalf("active lane = %+v", active)
	}
	if len(d.types) != 1 || d.types[0] != notify.EventDelete {
		t.Errorf("dispatched %v", d.types)
	}
}

func TestMoveAfterOutsideChangeReloads(t *testing.T) {
	m, eng, _ := testModel(t)
	ids := seed(t, eng, store.StatusActive, "one")
	m = loaded(t, m)

	// Another member adds a task; the model has not seen it.
	other := seed(t, eng, store.StatusActive, "two")

	m, cmd := press(t, m, "L")
	m = settle(t, m, cmd)

	if got := m.board.Lane(store.StatusActive); len(got) != 1 || got[0].ID != other[0] || got[0].Index != 0 {
		t.Fatalf("active lane after reload = %+v", got)
	}
	if got := m.board.Lane(store.StatusOngoing); len(got) != 1 || got[0].ID != ids[0] {
		t.Fatalf("ongoing lane after reload = %+v", got)
	}
	if m.cursorCol != 1 || m.cursorRow != 0 {
		t.Errorf("cursor = (%d,%d), want (1,0)", m.cursorCol, m.cursorRow)
	}
}

func TestDetailScreen(t *testing.T) {
	m, eng, _ := testModel(t)
	seed(t, eng, store.StatusActive, "one")
	m = loaded(t, m)

	m, cmd := press(t, m, "enter")
	if m.screen != screenDetail || m.detail == nil {
		t.Fatal("enter should open the detail screen")
	}
	m = settle(t, m, cmd)
	if len(m.detailEvents) != 1 || m.detailEvents[0].Type != "created" {
		t.Fatalf("events = %+v", m.detailEvents)
	}
	if !strings.Contains(m.View(), "one") {
		t.Error("detail view should show the description")
	}

	m, _ = press(t, m, "q")
	if m.screen != screenBoard || m.quitting {
		t.Fatal("q on the detail screen goes back")
	}
	m, cmd = press(t, m, "q")
	if !m.quitting || cmd == nil {
		t.Fatal("q on the board quits")
	}
}
