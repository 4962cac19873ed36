package middleware

import (
	"context"
	"io"

	"github.com/OFFIS-RIT/policygraph/internal/queue"
	"github.com/OFFIS-RIT/policygraph/pkg/common"
	"github.com/OFFIS-RIT/policygraph/pkg/query"
	graphstorage "github.com/OFFIS-RIT/policygraph/pkg/store/pgx"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type AppUser struct {
	UserID      string
	Role        string
	Permissions []string
}

// GraphRepository is the relational graph and job store.
type GraphRepository interface {
	CreateJob(ctx context.Context, id, documentKey, fileName string) error
	GetJob(ctx context.Context, id string) (graphstorage.Job, error)
	ListGraphs(ctx context.Context) ([]graphstorage.GraphInfo, error)
	LoadGraph(ctx context.Context, id string) (common.OntologyGraph, error)
}

// FileStorage receives uploaded documents.
type FileStorage interface {
	PutFile(ctx context.Context, key string, name string, file io.ReadSeeker) error
	DeleteFile(ctx context.Context, key string) error
}

type App struct {
	Graphs         GraphRepository
	Files          FileStorage
	Queue          queue.Publisher
	Agent          *query.Agent
	Keyfunc        jwt.Keyfunc
	MasterAPIKey   string
	MasterUserID   string
	MasterUserRole string
}

type AppContext struct {
	echo.Context
	App  *App
	User *AppUser
}

// AppContextMiddleware wraps every request context in an AppContext.
func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app, nil}
			return next(cc)
		}
	}
}
