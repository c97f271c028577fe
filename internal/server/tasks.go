package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tracker/internal/automation"
	"tracker/internal/models"
	"tracker/internal/mutation"
	"tracker/internal/storage/sqlite"
)

type createTaskRequest struct {
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	Status       string         `json:"status"`
	Priority     string         `json:"priority"`
	DueDate      *time.Time     `json:"due_date"`
	AssigneeIDs  []int64        `json:"assignee_ids"`
	Tags         []string       `json:"tags"`
	CustomFields map[string]any `json:"custom_fields"`
	ListID       *int64         `json:"list_id"`
	SpaceID      *int64         `json:"space_id"`
	UserID       *int64         `json:"userId"`
}

type updateTaskRequest struct {
	models.TaskChanges
	Version   *int64     `json:"version"`
	UpdatedAt *time.Time `json:"updatedAt"`
	UserID    *int64     `json:"userId"`
}

type bulkUpdateRequest struct {
	TaskIDs []int64            `json:"taskIds"`
	Updates models.TaskChanges `json:"updates"`
	UserID  *int64             `json:"userId"`
}

type actorRequest struct {
	UserID *int64 `json:"userId"`
}

// handleListTasks fetches tasks of a workspace, optionally narrowed to a list or space.
func (s *Server) handleListTasks(c *gin.Context) {
	workspaceID, ok := parseID(c, "id")
	if !ok {
		return
	}
	if _, err := s.store.GetWorkspace(c.Request.Context(), workspaceID); err != nil {
		s.respondError(c, err)
		return
	}

	filter := sqlite.TaskFilter{WorkspaceID: workspaceID, OpenOnly: c.Query("open") == "true"}
	var query struct {
		ListID  *int64 `form:"list_id"`
		SpaceID *int64 `form:"space_id"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		badRequest(c, err)
		return
	}
	filter.ListID = query.ListID
	filter.SpaceID = query.SpaceID

	tasks, err := s.store.ListTasks(c.Request.Context(), filter)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	respondSuccess(c, http.StatusOK, gin.H{"tasks": tasks})
}

// handleCreateTask inserts a task and runs task_created automations.
func (s *Server) handleCreateTask(c *gin.Context) {
	workspaceID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	ctx := c.Request.Context()
	task, err := s.mutator.Create(ctx, models.NewTask{
		WorkspaceID:  workspaceID,
		SpaceID:      req.SpaceID,
		ListID:       req.ListID,
		Title:        req.Title,
		Description:  req.Description,
		Status:       req.Status,
		Priority:     req.Priority,
		DueDate:      req.DueDate,
		AssigneeIDs:  req.AssigneeIDs,
		Tags:         req.Tags,
		CustomFields: req.CustomFields,
		CreatedBy:    actorID(c, req.UserID),
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	s.runAutomations(c, models.TriggerTaskCreated, automation.ForTask(task, nil))
	respondSuccess(c, http.StatusCreated, gin.H{"task": task})
}

// handleGetTask returns one task.
func (s *Server) handleGetTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	task, err := s.store.GetTask(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"task": task})
}

// handleUpdateTask applies a versioned partial update.
func (s *Server) handleUpdateTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req updateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := s.mutator.ApplyUpdate(c.Request.Context(), mutation.UpdateRequest{
		TaskID:            id,
		Changes:           req.TaskChanges,
		ExpectedVersion:   req.Version,
		ExpectedUpdatedAt: req.UpdatedAt,
		ActorID:           actorID(c, req.UserID),
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	if res.StatusChanged() {
		old := res.Previous.Status
		s.runAutomations(c, models.TriggerStatusChanged, automation.ForTask(res.Task, &old))
	}
	respondSuccess(c, http.StatusOK, gin.H{"task": res.Task, "changes": res.Changes})
}

// handleBulkUpdate applies the same changes to several tasks at once.
func (s *Server) handleBulkUpdate(c *gin.Context) {
	var req bulkUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	results, err := s.mutator.ApplyBulkUpdate(c.Request.Context(), mutation.BulkRequest{
		TaskIDs: req.TaskIDs,
		Changes: req.Updates,
		ActorID: actorID(c, req.UserID),
	})
	if err != nil {
		// Unknown ids surface as a rolled back transaction.
		var txErr *models.TransactionError
		if errors.As(err, &txErr) && errors.Is(txErr.Err, models.ErrNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "transaction rolled back", "message": txErr.Err.Error()})
			return
		}
		s.respondError(c, err)
		return
	}

	tasks := make([]models.Task, 0, len(results))
	for _, res := range results {
		tasks = append(tasks, res.Task)
		if res.StatusChanged() {
			old := res.Previous.Status
			s.runAutomations(c, models.TriggerStatusChanged, automation.ForTask(res.Task, &old))
		}
	}
	respondSuccess(c, http.StatusOK, gin.H{"updated": len(tasks), "tasks": tasks})
}

// handleDeleteTask removes a task completely.
func (s *Server) handleDeleteTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req actorRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	if err := s.mutator.Delete(c.Request.Context(), id, actorID(c, req.UserID)); err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "deleted"})
}

// handleTaskHistory lists the audit trail of a task, oldest first.
func (s *Server) handleTaskHistory(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, err := s.store.GetTask(ctx, id); err != nil {
		s.respondError(c, err)
		return
	}
	entries, err := s.store.ListHistory(ctx, id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if entries == nil {
		entries = []models.HistoryEntry{}
	}
	respondSuccess(c, http.StatusOK, gin.H{"history": entries})
}

// runAutomations evaluates rules for a task event. Rule failures are recorded
// by the engine and never change the response.
func (s *Server) runAutomations(c *gin.Context, trigger models.TriggerType, tc automation.TriggerContext) {
	if s.automator == nil {
		return
	}
	s.automator.ExecuteSafely(c.Request.Context(), trigger, tc)
}
