package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Root handles GET /
func Root(c echo.Context) error {
	return c.String(http.StatusOK, "chessism server running.")
}

// RegisterRoutes wires every API route. mw applies to the API routes only.
func RegisterRoutes(e *echo.Echo, games *GameHandler, players *PlayerHandler, mw ...echo.MiddlewareFunc) {
	e.GET("/", Root)
	games.RegisterRoutes(e, mw...)
	players.RegisterRoutes(e, mw...)
}
