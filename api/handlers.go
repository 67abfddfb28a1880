package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskboard/domain"
	"taskboard/store"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	localUser            = "local"
)

// Register wires up all API routes on the provided Echo instance. auth and
// deduper may be nil to disable token checks and idempotency keys.
func Register(e *echo.Echo, svc Services, auth Authenticator, deduper Deduper, broker *Broker, logger *log.Logger) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	e.JSONSerializer = sonicSerializer{}
	e.Use(requestTelemetry(logger))

	e.GET("/healthz", healthz(svc))

	g := e.Group("/api", requireUser(auth))
	g.GET("/tasks", listTasks(svc))
	g.POST("/tasks", createTask(svc, deduper, logger))
	g.GET("/tasks/count", countTasks(svc))
	g.GET("/tasks/:id", getTask(svc))
	g.PATCH("/tasks/:id", patchTask(svc))
	g.POST("/tasks/:id/toggle", toggleTask(svc))
	g.DELETE("/tasks/:id", deleteTask(svc))

	g.GET("/categories", listCategories(svc))
	g.POST("/categories", createCategory(svc))
	g.GET("/categories/:id", getCategory(svc))
	g.DELETE("/categories/:id", deleteCategory(svc))

	g.GET("/filter", getFilter(svc))
	g.PATCH("/filter", patchFilter(svc))
	g.DELETE("/filter", resetFilter(svc))

	if broker != nil {
		g.GET("/events", streamEvents(svc, broker, logger))
	}
}

func healthz(svc Services) echo.HandlerFunc {
	return func(c echo.Context) error {
		if svc.Health != nil {
			if err := svc.Health(c.Request().Context()); err != nil {
				return c.String(http.StatusServiceUnavailable, err.Error())
			}
		}
		return c.NoContent(http.StatusOK)
	}
}

func listTasks(svc Services) echo.HandlerFunc {
	return func(c echo.Context) error {
		f := svc.Filter.Current().Merge(filterFromQuery(c))
		if err := f.Validate(); err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}
		tasks, err := svc.Tasks.Query(c.Request().Context(), f)
		if err != nil {
			return storeError(c, err)
		}
		return c.JSON(http.StatusOK, tasksResponse{Tasks: tasks, Count: domain.CountTasks(tasks), Filter: f})
	}
}

func filterFromQuery(c echo.Context) domain.FilterPatch {
	var p domain.FilterPatch
	q := c.QueryParams()
	pick := func(name string) *string {
		if !q.Has(name) {
			return nil
		}
		v := q.Get(name)
		return &v
	}
	p.Search = pick("search")
	p.Category = pick("category")
	p.Completed = pick("completed")
	p.Sort = pick("sort")
	p.Order = pick("order")
	return p
}

func createTask(svc Services, deduper Deduper, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		var req createTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}

		user := userFrom(c)
		key := strings.TrimSpace(c.Request().Header.Get(headerIdempotencyKey))
		recorded := false
		if key == "" {
			key = uuid.NewString()
		} else if deduper != nil {
			added, err := deduper.Add(ctx, user, key)
			if err != nil {
				logger.WithError(err).Error("record idempotency key")
				return c.String(http.StatusInternalServerError, "failed to record idempotency key")
			}
			if !added {
				return c.String(http.StatusConflict, "duplicate idempotency key")
			}
			recorded = true
		}
		release := func() {
			if !recorded {
				return
			}
			if err := deduper.Remove(ctx, user, key); err != nil {
				logger.WithError(err).WithField("key", key).Warn("release idempotency key")
			}
		}

		var id int64
		sel := store.CategorySelector{ID: req.CategoryID, Name: req.CategoryName}
		err := svc.Categories.WithCategory(ctx, sel, func(cat *domain.CategoryRef) error {
			var err error
			id, err = svc.Tasks.Create(ctx, domain.TaskFields{
				Title:       req.Title,
				Description: req.Description,
				DueDate:     req.DueDate,
				Completed:   req.Completed,
				Category:    cat,
			})
			return err
		})
		if err != nil {
			release()
			return storeError(c, err)
		}
		c.Response().Header().Set(echo.HeaderLocation, "/api/tasks/"+formatID(id))
		return c.JSON(http.StatusCreated, createTaskResponse{ID: id, IdempotencyKey: key})
	}
}

func getTask(svc Services) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := idParam(c)
		if err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}
		task, err := svc.Tasks.Get(c.Request().Context(), id)
		if err != nil {
			return storeError(c, err)
		}
		if task == nil {
			return c.String(http.StatusNotFound, "task not found")
		}
		return c.JSON(http.StatusOK, task)
	}
}

func patchTask(svc Services) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		id, err := idParam(c)
		if err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}
		var req patchTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		existing, err := svc.Tasks.Get(ctx, id)
		if err != nil {
			return storeError(c, err)
		}
		if existing == nil {
			return c.String(http.StatusNotFound, "task not found")
		}

		patch := domain.TaskPatch{
			Title:         req.Title,
			Description:   req.Description,
			DueDate:       req.DueDate,
			Completed:     req.Completed,
			ClearCategory: req.ClearCategory,
		}
		var sel store.CategorySelector
		if !req.ClearCategory {
			sel = store.CategorySelector{ID: req.CategoryID, Name: req.CategoryName}
		}
		err = svc.Categories.WithCategory(ctx, sel, func(cat *domain.CategoryRef) error {
			if sel.ID != nil || sel.Name != nil {
				patch.Category = cat
				patch.ClearCategory = cat == nil
			}
			return svc.Tasks.Update(ctx, id, patch)
		})
		if err != nil {
			return storeError(c, err)
		}
		task, err := svc.Tasks.Get(ctx, id)
		if err != nil {
			return storeError(c, err)
		}
		if task == nil {
			return c.NoContent(http.StatusNoContent)
		}
		return c.JSON(http.StatusOK, task)
	}
}

func toggleTask(svc Services) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		id, err := idParam(c)
		if err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}
		if err := svc.Tasks.Toggle(ctx, id); err != nil {
			return storeError(c, err)
		}
		task, err := svc.Tasks.Get(ctx, id)
		if err != nil {
			return storeError(c, err)
		}
		if task == nil {
			return c.String(http.StatusNotFound, "task not found")
		}
		return c.JSON(http.StatusOK, task)
	}
}

func deleteTask(svc Services) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := idParam(c)
		if err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}
		if err := svc.Tasks.Delete(c.Request().Context(), id); err != nil {
			return storeError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func countTasks(svc Services) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, svc.Tasks.Count())
	}
}

func listCategories(svc Services) echo.HandlerFunc {
	return func(c echo.Context) error {
		cats, err := svc.Categories.List(c.Request().Context())
		if err != nil {
			return storeError(c, err)
		}
		return c.JSON(http.StatusOK, cats)
	}
}

func createCategory(svc Services) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req createCategoryRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if domain.IsBlankCategoryName(req.Name) {
			return c.String(http.StatusBadRequest, store.ErrBlankCategoryName.Error())
		}
		ref, err := svc.Categories.FindOrCreate(c.Request().Context(), req.Name)
		if err != nil {
			return storeError(c, err)
		}
		return c.JSON(http.StatusCreated, domain.Category{ID: ref.ID, Name: ref.Name})
	}
}

func getCategory(svc Services) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := idParam(c)
		if err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}
		cat, err := svc.Categories.GetByID(c.Request().Context(), id)
		if err != nil {
			return storeError(c, err)
		}
		if cat == nil {
			return c.String(http.StatusNotFound, "category not found")
		}
		return c.JSON(http.StatusOK, cat)
	}
}

func deleteCategory(svc Services) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := idParam(c)
		if err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}
		if err := svc.Categories.Delete(c.Request().Context(), id); err != nil {
			return storeError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func getFilter(svc Services) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, svc.Filter.Current())
	}
}

func patchFilter(svc Services) echo.HandlerFunc {
	return func(c echo.Context) error {
		var p domain.FilterPatch
		if err := decodeBody(c, &p); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if err := svc.Filter.SetFilter(p); err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}
		if err := svc.Tasks.Refresh(c.Request().Context()); err != nil {
			return storeError(c, err)
		}
		return c.JSON(http.StatusOK, svc.Filter.Current())
	}
}

func resetFilter(svc Services) echo.HandlerFunc {
	return func(c echo.Context) error {
		svc.Filter.Reset()
		if err := svc.Tasks.Refresh(c.Request().Context()); err != nil {
			return storeError(c, err)
		}
		return c.JSON(http.StatusOK, svc.Filter.Current())
	}
}

// storeError maps store failures to a response.
func storeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidFilter), errors.Is(err, store.ErrBlankCategoryName),
		errors.Is(err, store.ErrUnknownCategory):
		return c.String(http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrConcurrencyConflict):
		return c.String(http.StatusConflict, err.Error())
	}
	c.Logger().Error(err)
	return c.String(http.StatusInternalServerError, err.Error())
}
