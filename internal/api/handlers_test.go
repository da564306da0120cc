package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/imkarma/laneboard/internal/board"
	"github.com/imkarma/laneboard/internal/notify"
	"github.com/imkarma/laneboard/internal/store"
	"github.com/imkarma/laneboard/internal/worker"
)

type recordingDispatcher struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingDispatcher) Dispatch(_ context.Context, eventType string, change board.ChangedTasks) []worker.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, notify.Event{Type: eventType, Change: change})
	return nil
}

func (r *recordingDispatcher) Events() []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.Event, len(r.events))
	copy(out, r.events)
	return out
}

// conflictEngine fails every Move with a conflict and counts attempts.
type conflictEngine struct {
	Engine
	moves int
}

func (c *conflictEngine) Move(context.Context, string, store.TaskStatus, int) (board.ChangedTasks, error) {
	c.moves++
	return board.ChangedTasks{}, store.ErrConcurrencyConflict
}

type server struct {
	e      *echo.Echo
	store  *store.Store
	fanout *recordingDispatcher
	teamID string
}

func newServer(t *testing.T) *server {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	logger := log.New()
	logger.SetLevel(log.PanicLevel)

	e := echo.New()
	fanout := &recordingDispatcher{}
	Register(e, board.New(s, board.WithLogger(logger)), s, fanout, logger)
	return &server{e: e, store: s, fanout: fanout, teamID: "team-1"}
}

func (s *server) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *server) create(t *testing.T, status, desc string) store.Task {
	t.Helper()
	body := `{"teamId":"` + s.teamID + `","status":"` + status + `","description":"` + desc +
		`","date":"2024-06-01T00:00:00Z","dueDate":"2024-06-10T00:00:00Z"}`
	rec := s.do(t, http.MethodPost, "/api/tasks", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var res board.ChangedTasks
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode create: %v", err)
	}
	return res.Tasks[0]
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %T: %v (body %s)", v, err, rec.Body.String())
	}
	return v
}

func TestHealthz(t *testing.T) {
	s := newServer(t)
	if rec := s.do(t, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestCreateTask(t *testing.T) {
	s := newServer(t)
	member := uuid.NewString()

	body := `{"teamId":"team-1","status":"review","description":"write the docs",` +
		`"date":"2024-06-01T00:00:00Z","dueDate":"2024-06-10T00:00:00Z","assignees":["` + member + `"]}`
	rec := s.do(t, http.MethodPost, "/api/tasks", body, HeaderMemberID, member)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	res := decode[board.ChangedTasks](t, rec)
	task := res.Tasks[0]
	if task.Status != store.StatusReview || task.Index != 0 {
		t.Errorf("expected review#0, got %s#%d", task.Status, task.Index)
	}
	if task.InReviewAt == nil {
		t.Error("expected creation stamps")
	}
	if len(task.Assignees) != 1 || task.Assignees[0] != member {
		t.Errorf("unexpected assignees %v", task.Assignees)
	}

	events := s.fanout.Events()
	if len(events) != 1 || events[0].Type != notify.EventCreate {
		t.Fatalf("expected one create event, got %+v", events)
	}

	entries, err := s.store.GetEvents(context.Background(), task.ID)
	if err != nil || len(entries) != 1 || entries[0].Actor != member {
		t.Errorf("expected activity entry by %s, got %+v (err %v)", member, entries, err)
	}
}

func TestCreateTask_Validation(t *testing.T) {
	s := newServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing team", `{"description":"abc","date":"2024-06-01T00:00:00Z","dueDate":"2024-06-02T00:00:00Z"}`},
		{"short description", `{"teamId":"t","description":"ab","date":"2024-06-01T00:00:00Z","dueDate":"2024-06-02T00:00:00Z"}`},
		{"bad status", `{"teamId":"t","status":"backlog","description":"abc","date":"2024-06-01T00:00:00Z","dueDate":"2024-06-02T00:00:00Z"}`},
		{"due before date", `{"teamId":"t","description":"abc","date":"2024-06-05T00:00:00Z","dueDate":"2024-06-02T00:00:00Z"}`},
		{"assignee not uuid", `{"teamId":"t","description":"abc","date":"2024-06-01T00:00:00Z","dueDate":"2024-06-02T00:00:00Z","assignees":["bob"]}`},
		{"not json", `{"teamId":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/tasks", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
	if n := len(s.fanout.Events()); n != 0 {
		t.Errorf("rejected requests must not notify, got %d events", n)
	}
}

func TestMoveTask(t *testing.T) {
	s := newServer(t)
	a := s.create(t, "active", "first task")
	b := s.create(t, "active", "second task")
	s.create(t, "review", "third task")

	rec := s.do(t, http.MethodPost, "/api/tasks/"+a.ID+"/move", `{"status":"review","index":0}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	res := decode[board.ChangedTasks](t, rec)
	if len(res.Tasks) != 3 {
		t.Errorf("expected moved + 1 source + 1 dest change, got %d", len(res.Tasks))
	}
	if res.Tasks[0].ID != a.ID || res.Tasks[0].InDevelopmentAt == nil || res.Tasks[0].InReviewAt == nil {
		t.Errorf("unexpected moved task %+v", res.Tasks[0])
	}

	rec = s.do(t, http.MethodGet, "/api/teams/team-1/board", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("board: expected 200, got %d", rec.Code)
	}
	b2 := decode[board.Board](t, rec)
	if active := b2.Lane(store.StatusActive); len(active) != 1 || active[0].ID != b.ID || active[0].Index != 0 {
		t.Errorf("unexpected active lane %+v", active)
	}
	if review := b2.Lane(store.StatusReview); len(review) != 2 || review[0].ID != a.ID {
		t.Errorf("unexpected review lane %+v", review)
	}
	if b2.Version != res.Version {
		t.Errorf("board version %d does not match move version %d", b2.Version, res.Version)
	}

	events := s.fanout.Events()
	if last := events[len(events)-1]; last.Type != notify.EventUpdate || last.Change.Version != res.Version {
		t.Errorf("unexpected last event %+v", last)
	}
}

func TestMoveTask_NoOpDoesNotNotify(t *testing.T) {
	s := newServer(t)
	a := s.create(t, "active", "only task")
	before := len(s.fanout.Events())

	rec := s.do(t, http.MethodPost, "/api/tasks/"+a.ID+"/move", `{"status":"active","index":0}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if after := len(s.fanout.Events()); after != before {
		t.Errorf("no-op move must not notify, got %d new events", after-before)
	}
}

func TestMoveTask_Errors(t *testing.T) {
	s := newServer(t)
	a := s.create(t, "active", "a task")

	tests := []struct {
		name string
		path string
		body string
		code int
	}{
		{"unknown task", "/api/tasks/missing/move", `{"status":"review","index":0}`, http.StatusNotFound},
		{"bad status", "/api/tasks/" + a.ID + "/move", `{"status":"done","index":0}`, http.StatusBadRequest},
		{"negative index", "/api/tasks/" + a.ID + "/move", `{"status":"review","index":-1}`, http.StatusBadRequest},
		{"missing index", "/api/tasks/" + a.ID + "/move", `{"status":"review"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, tt.path, tt.body)
			if rec.Code != tt.code {
				t.Fatalf("expected %d, got %d: %s", tt.code, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestMoveTask_ConflictRetriedOnceThen409(t *testing.T) {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)

	eng := &conflictEngine{}
	e := echo.New()
	Register(e, eng, nil, nil, logger)

	req := httptest.NewRequest(http.MethodPost, "/api/tasks/x/move", strings.NewReader(`{"status":"review","index":0}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if eng.moves != 2 {
		t.Errorf("expected exactly one retry, got %d attempts", eng.moves)
	}
}

func TestEditTask(t *testing.T) {
	s := newServer(t)
	a := s.create(t, "ongoing", "old text")

	rec := s.do(t, http.MethodPatch, "/api/tasks/"+a.ID, `{"description":"new text","assignees":[]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	got, err := s.store.GetTask(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Description != "new text" {
		t.Errorf("expected description updated, got %q", got.Description)
	}

	if rec := s.do(t, http.MethodPatch, "/api/tasks/"+a.ID, `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("empty edit: expected 400, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPatch, "/api/tasks/missing", `{"description":"xyz"}`); rec.Code != http.StatusNotFound {
		t.Errorf("unknown task: expected 404, got %d", rec.Code)
	}
}

func TestDeleteTask(t *testing.T) {
	s := newServer(t)
	a := s.create(t, "active", "first task")
	b := s.create(t, "active", "second task")

	rec := s.do(t, http.MethodDelete, "/api/tasks/"+a.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	res := decode[board.ChangedTasks](t, rec)
	if res.Removed != a.ID || len(res.Tasks) != 1 || res.Tasks[0].ID != b.ID || res.Tasks[0].Index != 0 {
		t.Errorf("unexpected delete result %+v", res)
	}

	events := s.fanout.Events()
	if last := events[len(events)-1]; last.Type != notify.EventDelete {
		t.Errorf("expected delete event, got %s", last.Type)
	}

	if rec := s.do(t, http.MethodDelete, "/api/tasks/"+a.ID, ""); rec.Code != http.StatusNotFound {
		t.Errorf("second delete: expected 404, got %d", rec.Code)
	}
}

func TestGetEvents(t *testing.T) {
	s := newServer(t)
	a := s.create(t, "active", "logged task")
	s.do(t, http.MethodPost, "/api/tasks/"+a.ID+"/move", `{"status":"finished","index":0}`)

	rec := s.do(t, http.MethodGet, "/api/tasks/"+a.ID+"/events", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	events := decode[[]store.Event](t, rec)
	if len(events) != 2 || events[0].Type != "created" || events[1].Type != "moved" {
		t.Errorf("unexpected events %+v", events)
	}

	rec = s.do(t, http.MethodGet, "/api/tasks/unknown/events", "")
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("expected empty list, got %s", rec.Body.String())
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{store.ErrNotFound, http.StatusNotFound},
		{store.ErrInvalidArgument, http.StatusBadRequest},
		{store.ErrConcurrencyConflict, http.StatusConflict},
		{store.ErrStorage, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.code {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.code)
		}
	}
}
