package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/communitysignals/scout/internal/store"
)

// TaskStore is the persistence surface the task handlers need.
type TaskStore interface {
	CreateTask(ctx context.Context, t *store.Task) (bool, error)
	GetTask(ctx context.Context, id string) (store.Task, bool, error)
	ListTasks(ctx context.Context, f store.TaskFilter) ([]store.Task, error)
	SetTaskCompleted(ctx context.Context, id string, completed bool) (bool, error)
	DeleteTask(ctx context.Context, id string) (bool, error)
}

// TasksHandler exposes CRUD over the work queue.
type TasksHandler struct {
	Store TaskStore
}

func (h *TasksHandler) Register(g *echo.Group, secret []byte) {
	g.Use(authMiddleware(secret))
	g.GET("", h.list)
	g.POST("", h.create)
	g.GET("/:id", h.get)
	g.PATCH("/:id", h.update)
	g.DELETE("/:id", h.delete)
}

func (h *TasksHandler) list(c echo.Context) error {
	f := store.TaskFilter{Platform: c.QueryParam("platform")}
	if v := c.QueryParam("completed"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "completed must be a bool")
		}
		f.Completed = &b
	}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		f.Limit = n
	}
	if v := c.QueryParam("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid offset")
		}
		f.Offset = n
	}
	tasks, err := h.Store.ListTasks(c.Request().Context(), f)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if tasks == nil {
		tasks = []store.Task{}
	}
	return c.JSON(http.StatusOK, tasks)
}

func (h *TasksHandler) create(c echo.Context) error {
	var req CreateTaskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.SourceURL == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "source_url required")
	}
	t := store.Task{
		Title:             req.Title,
		Snippet:           req.Snippet,
		SourceURL:         req.SourceURL,
		Platform:          req.Platform,
		Priority:          req.Priority,
		SuggestedResponse: req.SuggestedResponse,
		Metadata:          req.Metadata,
	}
	created, err := h.Store.CreateTask(c.Request().Context(), &t)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !created {
		// duplicate source_url: the existing task wins
		return c.NoContent(http.StatusConflict)
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *TasksHandler) get(c echo.Context) error {
	t, found, err := h.Store.GetTask(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !found {
		return echo.NewHTTPError(http.StatusNotFound, "task not found")
	}
	return c.JSON(http.StatusOK, t)
}

func (h *TasksHandler) update(c echo.Context) error {
	var req UpdateTaskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.IsCompleted == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "is_completed required")
	}
	found, err := h.Store.SetTaskCompleted(c.Request().Context(), c.Param("id"), *req.IsCompleted)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !found {
		return echo.NewHTTPError(http.StatusNotFound, "task not found")
	}
	return c.NoContent(http.StatusOK)
}

func (h *TasksHandler) delete(c echo.Context) error {
	found, err := h.Store.DeleteTask(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !found {
		return echo.NewHTTPError(http.StatusNotFound, "task not found")
	}
	return c.NoContent(http.StatusNoContent)
}
