package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"challenge-api/domain"
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, store Storage, logger *log.Logger) {
	e.JSONSerializer = JSONSerializer{}
	e.HTTPErrorHandler = httpErrorHandler

	g := e.Group("/api", RequestMetrics(logger))
	g.GET("/tasks-list", listTasks(store, logger))
	g.POST("/tasks-list", addTask(store, logger))
	g.PUT("/tasks-list/:id", renameTask(store, logger))
	g.DELETE("/tasks-list/:id", deleteTask(store, logger))
	g.GET("/days/summary", daysSummary(store, logger))
	g.GET("/days/:day", getDay(store, logger))
	g.POST("/days/:day/task/:taskId", toggleTask(store, logger))
	g.POST("/days/:day/notes", setNotes(store, logger))
	g.GET("/stats", stats(store, logger))

	e.GET("/healthz", healthz(store, logger))
	registerUI(e)
}

func healthz(store Storage, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := store.Ping(c.Request().Context()); err != nil {
			if logger != nil {
				logger.WithError(err).Warn("health check failed")
			}
			return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: http.StatusText(http.StatusServiceUnavailable)})
		}
		return c.NoContent(http.StatusOK)
	}
}

func listTasks(store Storage, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var tasks []domain.Task
		err := observeStore(c, func() (err error) {
			tasks, err = store.ListTasks(c.Request().Context())
			return err
		})
		if err != nil {
			return storageFailure(c, logger, err)
		}
		if tasks == nil {
			tasks = []domain.Task{}
		}
		return c.JSON(http.StatusOK, tasks)
	}
}

func addTask(store Storage, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req taskNameRequest
		if err := decodeBody(c, &req); err != nil {
			return err
		}
		var task domain.Task
		err := observeStore(c, func() (err error) {
			task, err = store.AddTask(c.Request().Context(), req.TaskName)
			return err
		})
		if err != nil {
			return writeError(c, logger, err)
		}
		return c.JSON(http.StatusOK, addTaskResponse{
			Success:   true,
			ID:        task.ID,
			TaskName:  task.Name,
			TaskOrder: task.Order,
		})
	}
}

func renameTask(store Storage, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := int64Param(c, "id")
		if err != nil {
			return err
		}
		var req taskNameRequest
		if err := decodeBody(c, &req); err != nil {
			return err
		}
		err = observeStore(c, func() error {
			return store.RenameTask(c.Request().Context(), id, req.TaskName)
		})
		if err != nil {
			return writeError(c, logger, err)
		}
		return c.JSON(http.StatusOK, successResponse{Success: true})
	}
}

func deleteTask(store Storage, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := int64Param(c, "id")
		if err != nil {
			return err
		}
		err = observeStore(c, func() error {
			return store.DeleteTask(c.Request().Context(), id)
		})
		if err != nil {
			return storageFailure(c, logger, err)
		}
		return c.JSON(http.StatusOK, successResponse{Success: true})
	}
}

func getDay(store Storage, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		day, err := intParam(c, "day")
		if err != nil {
			return err
		}
		var view domain.DayView
		err = observeStore(c, func() (err error) {
			view, err = store.GetDay(c.Request().Context(), day)
			return err
		})
		if err != nil {
			return storageFailure(c, logger, err)
		}
		return c.JSON(http.StatusOK, view)
	}
}

func daysSummary(store Storage, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var summary domain.Summary
		err := observeStore(c, func() (err error) {
			summary, err = store.Summary(c.Request().Context())
			return err
		})
		if err != nil {
			return storageFailure(c, logger, err)
		}
		return c.JSON(http.StatusOK, summary)
	}
}

func toggleTask(store Storage, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		day, err := intParam(c, "day")
		if err != nil {
			return err
		}
		taskID, err := int64Param(c, "taskId")
		if err != nil {
			return err
		}
		var req toggleRequest
		if err := decodeBody(c, &req); err != nil {
			return err
		}
		err = observeStore(c, func() error {
			return store.ToggleTask(c.Request().Context(), day, taskID, req.completed())
		})
		if err != nil {
			return storageFailure(c, logger, err)
		}
		return c.JSON(http.StatusOK, successResponse{Success: true})
	}
}

func setNotes(store Storage, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		day, err := intParam(c, "day")
		if err != nil {
			return err
		}
		var req notesRequest
		if err := decodeBody(c, &req); err != nil {
			return err
		}
		err = observeStore(c, func() error {
			return store.SetNotes(c.Request().Context(), day, req.Notes)
		})
		if err != nil {
			return storageFailure(c, logger, err)
		}
		return c.JSON(http.StatusOK, successResponse{Success: true})
	}
}

func stats(store Storage, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var st domain.Stats
		err := observeStore(c, func() (err error) {
			st, err = store.Stats(c.Request().Context())
			return err
		})
		if err != nil {
			return storageFailure(c, logger, err)
		}
		return c.JSON(http.StatusOK, st)
	}
}

func observeStore(c echo.Context, fn func() error) error {
	start := time.Now()
	err := fn()
	metricsFrom(c).ObserveStore(time.Since(start))
	return err
}

// decodeBody reads the JSON body into dst. Decode failures come back as
// 400 HTTPErrors rendered by httpErrorHandler.
func decodeBody(c echo.Context, dst interface{}) error {
	if err := c.Echo().JSONSerializer.Deserialize(c, dst); err != nil {
		metricsFrom(c).SetErrorStage("decode_body")
		return err
	}
	return nil
}

// httpErrorHandler renders every echo error as {"error": message}.
func httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	msg := http.StatusText(code)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		} else {
			msg = http.StatusText(code)
		}
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, errorResponse{Error: msg})
}

// writeError maps validation failures to 400 and everything else to 500.
func writeError(c echo.Context, logger *log.Logger, err error) error {
	var vErr *domain.ValidationError
	if errors.As(err, &vErr) {
		metricsFrom(c).SetErrorStage("validation")
		return c.JSON(http.StatusBadRequest, errorResponse{Error: vErr.Error()})
	}
	return storageFailure(c, logger, err)
}

// storageFailure logs the full error and answers with a generic 500 so table
// names and file paths stay out of responses.
func storageFailure(c echo.Context, logger *log.Logger, err error) error {
	metricsFrom(c).SetErrorStage("storage")
	if logger != nil {
		logger.WithError(err).WithField("route", c.Path()).Error("storage operation failed")
	}
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: http.StatusText(http.StatusInternalServerError)})
}

// intParam and int64Param accept unsigned decimal path segments only; anything
// else is treated as an unknown route.
func intParam(c echo.Context, name string) (int, error) {
	v, err := strconv.ParseUint(c.Param(name), 10, 31)
	if err != nil {
		metricsFrom(c).SetErrorStage("path_param")
		return 0, echo.ErrNotFound
	}
	return int(v), nil
}

func int64Param(c echo.Context, name string) (int64, error) {
	v, err := strconv.ParseUint(c.Param(name), 10, 63)
	if err != nil {
		metricsFrom(c).SetErrorStage("path_param")
		return 0, echo.ErrNotFound
	}
	return int64(v), nil
}
