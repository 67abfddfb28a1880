package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskboard/telemetry"
)

const (
	requestAttrPrefix  = "taskboard.http"
)

// requestTelemetry wraps each request in a span and emits one observability
// event when it completes. Only server errors are reported as failures.
func requestTelemetry(logger *log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route := c.Path()
			if route == "" {
				route = c.Request().URL.Path
			}
			method := c.Request().Method
			ctx, ev := telemetry.Start(c.Request().Context(), logger, telemetry.Operation{
				Span:   method + " " + route,
				Event:  requestEventName(route),
				Prefix: requestAttrPrefix,
			})
			c.SetRequest(c.Request().WithContext(ctx))
			ev.SetRaw("http.route", route)
			ev.SetRaw("http.method", method)

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			if status == 0 {
				status = http.StatusOK
			}
			ev.Set("response_bytes", c.Response().Size)
			var reported error
			if status >= http.StatusInternalServerError {
				reported = err
				if reported == nil {
					reported = errorFromStatus(status)
				}
			}
			ev.End(status, reported)
			return nil
		}
	}
}

// requestEventName turns "/api/tasks/:id" into "taskboard.http.api.tasks.id".
func requestEventName(route string) string {
	r := strings.Trim(route, "/")
	r = strings.ReplaceAll(r, ":", "")
	r = strings.ReplaceAll(r, "/", ".")
	if r == "" {
		return requestAttrPrefix + ".root"
	}
	return requestAttrPrefix + "." + r
}

func errorFromStatus(status int) error {
	return echo.NewHTTPError(status, http.StatusText(status))
}
