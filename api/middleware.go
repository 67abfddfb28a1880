package api

import (
	"github.com/labstack/echo-contrib/pprof"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Middleware installs the request pipeline shared by every route. Debug mode
// additionally mounts the pprof handlers under /debug/pprof.
func Middleware(e *echo.Echo, debug bool) {
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:  []string{"*"},
		AllowHeaders:  []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, headerIdempotencyKey},
		ExposeHeaders: []string{echo.HeaderLocation},
	}))
	// Gzip request bodies are inflated before the size limit applies.
	e.Use(middleware.Decompress())
	e.Use(middleware.BodyLimit("64K"))
	if debug {
		e.Debug = true
		pprof.Register(e)
	}
}
