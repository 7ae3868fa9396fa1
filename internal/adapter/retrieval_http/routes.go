package retrieval_http

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes mounts the API under mw, which run after any global middleware.
func RegisterRoutes(e *echo.Echo, h *Handler, mw ...echo.MiddlewareFunc) {
	v1 := e.Group("/v1", mw...)
	v1.POST("/search", h.Search)
	v1.POST("/answer", h.Answer)
}
