package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"tracker/internal/automation"
	"tracker/internal/dependency"
	"tracker/internal/models"
	"tracker/internal/mutation"
	"tracker/internal/realtime"
	"tracker/internal/storage/sqlite"
)

// Deps bundles the components the HTTP layer calls into.
type Deps struct {
	Store     *sqlite.Store
	Mutator   *mutation.Mutator
	Gate      *dependency.Gate
	Engine    *automation.Engine
	Rules     *automation.Service
	Hub       *realtime.Hub
	Logger    *slog.Logger
	StaticDir string
}

// Server provides HTTP handlers for the tracker API.
type Server struct {
	engine    *gin.Engine
	store     *sqlite.Store
	mutator   *mutation.Mutator
	gate      *dependency.Gate
	rules     *automation.Service
	automator *automation.Engine
	hub       *realtime.Hub
	logger    *slog.Logger
	staticDir string
}

// New constructs the HTTP server with routes and middleware configured.
func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.LoggerWithWriter(gin.DefaultWriter, "/api/healthz"))

	srv := &Server{
		engine:    router,
		store:     deps.Store,
		mutator:   deps.Mutator,
		gate:      deps.Gate,
		rules:     deps.Rules,
		automator: deps.Engine,
		hub:       deps.Hub,
		logger:    logger,
		staticDir: deps.StaticDir,
	}

	srv.registerRoutes()
	return srv
}

// Engine exposes the underlying Gin engine.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// registerRoutes wires all API and static handlers together.
func (s *Server) registerRoutes() {
	api := s.engine.Group("/api")
	{
		api.GET("/healthz", s.handleHealth)

		workspaces := api.Group("/workspaces")
		{
			workspaces.POST("", s.handleCreateWorkspace)
			workspaces.GET(":id", s.handleGetWorkspace)
			workspaces.POST(":id/members", s.handleAddMember)
			workspaces.GET(":id/tasks", s.handleListTasks)
			workspaces.POST(":id/tasks", s.handleCreateTask)
			workspaces.GET(":id/automations", s.handleListAutomations)
			workspaces.POST(":id/automations", s.handleCreateAutomation)
			workspaces.POST(":id/templates", s.handleCreateTemplate)
		}

		tasks := api.Group("/tasks")
		{
			tasks.PATCH("bulk", s.handleBulkUpdate)
			tasks.GET(":id", s.handleGetTask)
			tasks.PATCH(":id", s.handleUpdateTask)
			tasks.DELETE(":id", s.handleDeleteTask)
			tasks.GET(":id/history", s.handleTaskHistory)
			tasks.GET(":id/dependencies", s.handleListDependencies)
			tasks.POST(":id/dependencies", s.handleAddDependency)
			tasks.DELETE(":id/dependencies", s.handleRemoveDependency)
		}

		automations := api.Group("/automations")
		{
			automations.GET(":id", s.handleGetAutomation)
			automations.PUT(":id", s.handleUpdateAutomation)
			automations.DELETE(":id", s.handleDeleteAutomation)
			automations.POST(":id/enabled", s.handleSetAutomationEnabled)
			automations.GET(":id/history", s.handleAutomationHistory)
		}

		api.GET("/users/:id/notifications", s.handleListNotifications)
		api.POST("/notifications/:id/read", s.handleMarkNotificationRead)
	}

	if s.hub != nil {
		s.engine.GET("/ws", gin.WrapF(s.hub.HandleWS))
	}

	s.mountStatic()
}

// handleHealth provides a basic readiness endpoint.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// parseID converts a path parameter to int64 with error handling.
func parseID(c *gin.Context, name string) (int64, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identifier"})
		return 0, false
	}
	return id, true
}

// actorID returns the acting user from the request body or the X-User-ID header.
func actorID(c *gin.Context, fromBody *int64) *int64 {
	if fromBody != nil && *fromBody > 0 {
		return fromBody
	}
	raw := strings.TrimSpace(c.GetHeader("X-User-ID"))
	if raw == "" {
		return nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil
	}
	return &id
}

// respondError maps domain errors to status codes and JSON payloads.
func (s *Server) respondError(c *gin.Context, err error) {
	var (
		verr     *models.ValidationError
		conflict *models.ConflictError
		blocked  *models.BlockedError
		txErr    *models.TransactionError
	)
	switch {
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{
			"error":           "conflict",
			"message":         conflict.Error(),
			"currentVersion":  conflict.CurrentVersion,
			"providedVersion": conflict.ProvidedVersion,
			"currentTask":     conflict.Current,
		})
	case errors.As(err, &blocked):
		c.JSON(http.StatusConflict, gin.H{
			"error":    "blocked",
			"message":  blocked.Error(),
			"blockers": blocked.Blockers,
		})
	case errors.As(err, &txErr):
		s.logger.Error("transaction rolled back", slog.String("path", c.FullPath()), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "transaction rolled back", "message": txErr.Err.Error()})
	case errors.As(err, &verr) && verr.Field == "actor_id":
		c.JSON(http.StatusForbidden, gin.H{"error": verr.Error()})
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "field": verr.Field})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		s.logger.Error("request failed", slog.String("path", c.FullPath()), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// bindOptionalJSON decodes a body that may be absent. A malformed body is
// answered with 400 and reported as false.
func bindOptionalJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err)
		return false
	}
	return true
}

// badRequest reports a malformed request body.
func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// respondSuccess wraps a payload in a JSON envelope for consistency.
func respondSuccess(c *gin.Context, status int, payload any) {
	if payload == nil {
		c.Status(status)
		return
	}
	c.JSON(status, payload)
}
