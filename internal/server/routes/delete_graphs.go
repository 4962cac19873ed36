package routes

import (
	"encoding/json"
	"net/http"

	"github.com/OFFIS-RIT/policygraph/internal/queue"
	"github.com/OFFIS-RIT/policygraph/internal/server/middleware"
	"github.com/OFFIS-RIT/policygraph/pkg/logger"

	"github.com/labstack/echo/v4"
)

// DeleteGraphHandler queues the removal of a graph from every store.
func DeleteGraphHandler(c echo.Context) error {
	id := c.Param("id")
	if _, err := loadGraph(c, id); err != nil {
		return err
	}

	msg, err := json.Marshal(queue.DeleteGraphMsg{GraphID: id})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
	}

	app := c.(*middleware.AppContext).App
	if err := queue.PublishFIFO(app.Queue, queue.DeleteQueue, msg); err != nil {
		logger.Error("[Server] Failed to enqueue delete", "graph_id", id, "err", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
	}

	logger.Info("[Server] Graph delete queued", "graph_id", id)
	return c.JSON(http.StatusAccepted, map[string]string{"message": "Graph delete queued", "graph_id": id})
}
