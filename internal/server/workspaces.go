package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tracker/internal/models"
)

type workspaceRequest struct {
	Name       string `json:"name"`
	DoneStatus string `json:"done_status"`
}

type memberRequest struct {
	UserID int64 `json:"userId"`
}

type templateRequest struct {
	Name         string         `json:"name"`
	Priority     *string        `json:"priority"`
	Status       *string        `json:"status"`
	Tags         []string       `json:"tags"`
	CustomFields map[string]any `json:"custom_fields"`
	AssigneeIDs  []int64        `json:"assignee_ids"`
}

// handleCreateWorkspace creates a new workspace.
func (s *Server) handleCreateWorkspace(c *gin.Context) {
	var req workspaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	ws, err := s.store.CreateWorkspace(c.Request.Context(), req.Name, req.DoneStatus)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"workspace": ws})
}

// handleGetWorkspace returns a workspace with its member ids.
func (s *Server) handleGetWorkspace(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	ws, err := s.store.GetWorkspace(ctx, id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	members, err := s.store.ListMemberIDs(ctx, id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if members == nil {
		members = []int64{}
	}
	respondSuccess(c, http.StatusOK, gin.H{"workspace": ws, "members": members})
}

// handleAddMember adds a user to the workspace. Adding a member twice is a no-op.
func (s *Server) handleAddMember(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req memberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.UserID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return
	}
	ctx := c.Request.Context()
	if _, err := s.store.GetWorkspace(ctx, id); err != nil {
		s.respondError(c, err)
		return
	}
	if err := s.store.AddMember(ctx, id, req.UserID); err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"workspace_id": id, "user_id": req.UserID})
}

// handleCreateTemplate stores a template for apply_template rules.
func (s *Server) handleCreateTemplate(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req templateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	if _, err := s.store.GetWorkspace(ctx, id); err != nil {
		s.respondError(c, err)
		return
	}
	tmpl, err := s.store.CreateTemplate(ctx, models.Template{
		WorkspaceID:  id,
		Name:         req.Name,
		Priority:     req.Priority,
		Status:       req.Status,
		Tags:         req.Tags,
		CustomFields: req.CustomFields,
		AssigneeIDs:  req.AssigneeIDs,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"template": tmpl})
}
