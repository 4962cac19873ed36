package server

import (
	"net/http"

	"github.com/OFFIS-RIT/policygraph/internal/metrics"
	"github.com/OFFIS-RIT/policygraph/internal/server/middleware"
	"github.com/OFFIS-RIT/policygraph/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	// Graph routes
	apiRoutes.GET("/graphs", routes.GetGraphsHandler, middleware.RequireGraphAccess(middleware.PermGraphView))
	apiRoutes.POST("/graphs", routes.CreateGraphHandler, middleware.RequireGraphAccess(middleware.PermGraphCreate))
	apiRoutes.GET("/graphs/:id", routes.GetGraphHandler, middleware.RequireGraphAccess(middleware.PermGraphView))
	apiRoutes.DELETE("/graphs/:id", routes.DeleteGraphHandler, middleware.RequireGraphAccess(middleware.PermGraphDelete))
	apiRoutes.GET("/graphs/:id/report", routes.GetGraphReportHandler, middleware.RequireGraphAccess(middleware.PermGraphView))
	apiRoutes.POST("/graphs/:id/ask", routes.AskGraphHandler, middleware.RequireGraphAccess(middleware.PermGraphView))

	// Job routes
	apiRoutes.GET("/jobs/:id", routes.GetJobHandler, middleware.RequireGraphAccess(middleware.PermGraphCreate, middleware.PermGraphView))
}
