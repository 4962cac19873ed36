package routes

import (
	"encoding/json"
	"net/http"

	"github.com/OFFIS-RIT/policygraph/internal/queue"
	"github.com/OFFIS-RIT/policygraph/internal/server/middleware"
	"github.com/OFFIS-RIT/policygraph/internal/storage"
	"github.com/OFFIS-RIT/policygraph/pkg/loader"
	"github.com/OFFIS-RIT/policygraph/pkg/logger"

	"github.com/labstack/echo/v4"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

type createGraphResponse struct {
	Message     string `json:"message"`
	JobID       string `json:"job_id,omitempty"`
	DocumentKey string `json:"document_key,omitempty"`
}

// CreateGraphHandler stores an uploaded policy document and queues the
// graph build. The response carries the job to poll.
func CreateGraphHandler(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, createGraphResponse{
			Message: "Missing file",
		})
	}

	typ, err := loader.DetectType(file.Filename)
	if err != nil || typ == loader.DocumentTypeURL {
		return c.JSON(http.StatusBadRequest, createGraphResponse{
			Message: "Unsupported document type",
		})
	}

	app := c.(*middleware.AppContext).App
	ctx := c.Request().Context()

	jobID, err := gonanoid.New()
	if err != nil {
		logger.Error("[Server] Failed to generate job ID", "err", err)
		return c.JSON(http.StatusInternalServerError, createGraphResponse{
			Message: "Internal server error",
		})
	}
	key := storage.DocumentKey(jobID, file.Filename)

	src, err := file.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, createGraphResponse{
			Message: "Invalid file",
		})
	}
	defer src.Close()

	if err := app.Files.PutFile(ctx, key, file.Filename, src); err != nil {
		logger.Error("[Server] Failed to upload document", "key", key, "err", err)
		return c.JSON(http.StatusInternalServerError, createGraphResponse{
			Message: "Failed to store document",
		})
	}

	if err := app.Graphs.CreateJob(ctx, jobID, key, file.Filename); err != nil {
		logger.Error("[Server] Failed to create job", "job_id", jobID, "err", err)
		if delErr := app.Files.DeleteFile(ctx, key); delErr != nil {
			logger.Warn("[Server] Failed to remove orphaned upload", "key", key, "err", delErr)
		}
		return c.JSON(http.StatusInternalServerError, createGraphResponse{
			Message: "Internal server error",
		})
	}

	msg, err := json.Marshal(queue.BuildJobMsg{
		JobID:       jobID,
		DocumentKey: key,
		FileName:    file.Filename,
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, createGraphResponse{
			Message: "Internal server error",
		})
	}
	if err := queue.PublishFIFO(app.Queue, queue.BuildQueue, msg); err != nil {
		// the stale job recovery of the worker picks the job up later
		logger.Error("[Server] Failed to enqueue job", "job_id", jobID, "err", err)
	}

	logger.Info("[Server] Graph build queued", "job_id", jobID, "document", file.Filename, "size", file.Size)
	return c.JSON(http.StatusAccepted, createGraphResponse{
		Message:     "Graph build queued",
		JobID:       jobID,
		DocumentKey: key,
	})
}

// AskGraphHandler answers a question from one stored graph.
func AskGraphHandler(c echo.Context) error {
	type askBody struct {
		ID       string `param:"id" validate:"required"`
		Question string `json:"question" validate:"required"`
	}

	data := new(askBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	s, err := loadStore(c, data.ID)
	if err != nil {
		return err
	}

	app := c.(*middleware.AppContext).App
	resp, err := app.Agent.Ask(c.Request().Context(), data.Question, s)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, resp)
}
