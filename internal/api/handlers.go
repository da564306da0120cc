package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/imkarma/laneboard/internal/board"
	"github.com/imkarma/laneboard/internal/notify"
	"github.com/imkarma/laneboard/internal/store"
	"github.com/imkarma/laneboard/internal/worker"
)

// HeaderMemberID carries the id of the member making the request.
// Authentication happens in front of this service.
const HeaderMemberID = "X-Member-ID"

// Engine is the subset of board.Engine the API drives.
type Engine interface {
	Board(ctx context.Context, teamID string) (board.Board, error)
	Create(ctx context.Context, nt board.NewTask) (board.ChangedTasks, error)
	Edit(ctx context.Context, taskID string, ed board.Edit) (board.ChangedTasks, error)
	Move(ctx context.Context, taskID string, status store.TaskStatus, index int) (board.ChangedTasks, error)
	Delete(ctx context.Context, taskID string) (board.ChangedTasks, error)
}

// EventReader reads a task's activity log.
type EventReader interface {
	GetEvents(ctx context.Context, taskID string) ([]store.Event, error)
}

// Dispatcher hands committed change sets to the notification fanout.
type Dispatcher interface {
	Dispatch(ctx context.Context, eventType string, change board.ChangedTasks) []worker.Result
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, eng Engine, events EventReader, fanout Dispatcher, logger log.FieldLogger) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	e.Validator = newValidator()

	e.GET("/healthz", healthz())

	g := e.Group("/api", withActor)
	g.GET("/teams/:team/board", getBoard(eng, logger))
	g.POST("/tasks", createTask(eng, fanout, logger))
	g.PATCH("/tasks/:id", editTask(eng, fanout, logger))
	g.POST("/tasks/:id/move", moveTask(eng, fanout, logger))
	g.DELETE("/tasks/:id", deleteTask(eng, fanout, logger))
	g.GET("/tasks/:id/events", getEvents(events, logger))
}

// withActor copies the member header into the request context so the
// activity log records who did what.
func withActor(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if id := c.Request().Header.Get(HeaderMemberID); id != "" {
			ctx := board.WithActor(c.Request().Context(), id)
			c.SetRequest(c.Request().WithContext(ctx))
		}
		return next(c)
	}
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

type createTaskRequest struct {
	TeamID      string    `json:"teamId" validate:"required"`
	Status      string    `json:"status" validate:"omitempty,oneof=active ongoing review finished"`
	Description string    `json:"description" validate:"required,min=3,max=200"`
	Date        time.Time `json:"date" validate:"required"`
	DueDate     time.Time `json:"dueDate" validate:"required,gtefield=Date"`
	Assignees   []string  `json:"assignees" validate:"dive,uuid"`
}

type editTaskRequest struct {
	Description *string    `json:"description" validate:"omitempty,min=3,max=200"`
	Date        *time.Time `json:"date"`
	DueDate     *time.Time `json:"dueDate"`
	// A present but empty list clears the assignees.
	Assignees []string `json:"assignees" validate:"omitempty,dive,uuid"`
}

type moveTaskRequest struct {
	Status string `json:"status" validate:"required,oneof=active ongoing review finished"`
	Index  *int   `json:"index" validate:"required,min=0"`
}

func getBoard(eng Engine, logger log.FieldLogger) echo.HandlerFunc {
	return func(c echo.Context) error {
		b, err := eng.Board(c.Request().Context(), c.Param("team"))
		if err != nil {
			return fail(c, logger, err)
		}
		return c.JSON(http.StatusOK, b)
	}
}

func createTask(eng Engine, fanout Dispatcher, logger log.FieldLogger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req createTaskRequest
		if err := bindAndValidate(c, &req); err != nil {
			return badRequest(c, err)
		}

		ctx := c.Request().Context()
		res, err := eng.Create(ctx, board.NewTask{
			TeamID:      req.TeamID,
			Status:      store.TaskStatus(req.Status),
			Assignees:   req.Assignees,
			Date:        req.Date,
			DueDate:     req.DueDate,
			Description: req.Description,
		})
		if err != nil {
			return fail(c, logger, err)
		}
		publish(ctx, fanout, notify.EventCreate, res)
		return c.JSON(http.StatusCreated, res)
	}
}

func editTask(eng Engine, fanout Dispatcher, logger log.FieldLogger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req editTaskRequest
		if err := bindAndValidate(c, &req); err != nil {
			return badRequest(c, err)
		}

		ctx := c.Request().Context()
		res, err := eng.Edit(ctx, c.Param("id"), board.Edit{
			Description: req.Description,
			Date:        req.Date,
			DueDate:     req.DueDate,
			Assignees:   req.Assignees,
		})
		if err != nil {
			return fail(c, logger, err)
		}
		publish(ctx, fanout, notify.EventUpdate, res)
		return c.JSON(http.StatusOK, res)
	}
}

func moveTask(eng Engine, fanout Dispatcher, logger log.FieldLogger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req moveTaskRequest
		if err := bindAndValidate(c, &req); err != nil {
			return badRequest(c, err)
		}

		ctx := c.Request().Context()
		id := c.Param("id")
		res, err := board.Retry(ctx, func(ctx context.Context) (board.ChangedTasks, error) {
			return eng.Move(ctx, id, store.TaskStatus(req.Status), *req.Index)
		})
		if err != nil {
			return fail(c, logger, err)
		}
		publish(ctx, fanout, notify.EventUpdate, res)
		return c.JSON(http.StatusOK, res)
	}
}

func deleteTask(eng Engine, fanout Dispatcher, logger log.FieldLogger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		res, err := eng.Delete(ctx, c.Param("id"))
		if err != nil {
			return fail(c, logger, err)
		}
		publish(ctx, fanout, notify.EventDelete, res)
		return c.JSON(http.StatusOK, res)
	}
}

func getEvents(events EventReader, logger log.FieldLogger) echo.HandlerFunc {
	return func(c echo.Context) error {
		list, err := events.GetEvents(c.Request().Context(), c.Param("id"))
		if err != nil {
			return fail(c, logger, err)
		}
		if list == nil {
			list = []store.Event{}
		}
		return c.JSON(http.StatusOK, list)
	}
}

// publish delivers a committed change set. The client's disconnect must not
// cut delivery short, so the request's cancellation is dropped.
func publish(ctx context.Context, fanout Dispatcher, eventType string, res board.ChangedTasks) {
	if fanout == nil || res.Empty() {
		return
	}
	fanout.Dispatch(context.WithoutCancel(ctx), eventType, res)
}
