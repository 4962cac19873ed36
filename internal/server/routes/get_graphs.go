package routes

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/OFFIS-RIT/policygraph/internal/server/middleware"
	"github.com/OFFIS-RIT/policygraph/internal/server/util"
	"github.com/OFFIS-RIT/policygraph/pkg/common"
	"github.com/OFFIS-RIT/policygraph/pkg/graph"
	"github.com/OFFIS-RIT/policygraph/pkg/logger"
	"github.com/OFFIS-RIT/policygraph/pkg/store"
	graphstorage "github.com/OFFIS-RIT/policygraph/pkg/store/pgx"

	"github.com/labstack/echo/v4"
)

func GetGraphsHandler(c echo.Context) error {
	app := c.(*middleware.AppContext).App
	graphs, err := app.Graphs.ListGraphs(c.Request().Context())
	if err != nil {
		logger.Error("[Server] Failed to list graphs", "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}
	return c.JSON(http.StatusOK, graphs)
}

func GetGraphHandler(c echo.Context) error {
	g, err := loadGraph(c, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, g)
}

// GetGraphReportHandler returns the structural report of a graph.
func GetGraphReportHandler(c echo.Context) error {
	g, err := loadGraph(c, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, graph.Validate(g))
}

func GetJobHandler(c echo.Context) error {
	app := c.(*middleware.AppContext).App
	job, err := app.Graphs.GetJob(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, graphstorage.ErrJobNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "Job not found"})
		}
		logger.Error("[Server] Failed to load job", "job_id", c.Param("id"), "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}
	if after, ok := util.JobRetryAfter(job.Status); ok {
		c.Response().Header().Set("Retry-After", strconv.Itoa(after))
	}
	return c.JSON(http.StatusOK, job)
}

func loadGraph(c echo.Context, id string) (common.OntologyGraph, error) {
	app := c.(*middleware.AppContext).App
	g, err := app.Graphs.LoadGraph(c.Request().Context(), id)
	if err == nil {
		return g, nil
	}
	if errors.Is(err, graphstorage.ErrGraphNotFound) {
		return g, echo.NewHTTPError(http.StatusNotFound, "Graph not found")
	}
	logger.Error("[Server] Failed to load graph", "graph_id", id, "err", err)
	return g, echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
}

func loadStore(c echo.Context, id string) (*store.Store, error) {
	g, err := loadGraph(c, id)
	if err != nil {
		return nil, err
	}
	return store.New(g), nil
}
