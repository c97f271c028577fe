package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"tracker/internal/models"
)

type dependencyRequest struct {
	BlockerID int64  `json:"blockerId"`
	UserID    *int64 `json:"userId"`
}

// handleListDependencies returns every blocker of a task with its status.
func (s *Server) handleListDependencies(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	blockers, err := s.gate.Blockers(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if blockers == nil {
		blockers = []models.TaskSummary{}
	}
	respondSuccess(c, http.StatusOK, gin.H{"blockers": blockers})
}

// handleAddDependency makes the task wait for a blocker.
func (s *Server) handleAddDependency(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req dependencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.BlockerID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "blockerId is required"})
		return
	}
	if err := s.gate.AddDependency(c.Request.Context(), id, req.BlockerID, actorID(c, req.UserID)); err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"task_id": id, "blocker_id": req.BlockerID})
}

// handleRemoveDependency deletes an edge. The blocker comes from the body or
// the blockerId query parameter.
func (s *Server) handleRemoveDependency(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req dependencyRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	if req.BlockerID <= 0 {
		if v, err := strconv.ParseInt(c.Query("blockerId"), 10, 64); err == nil {
			req.BlockerID = v
		}
	}
	if req.BlockerID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "blockerId is required"})
		return
	}
	if err := s.gate.RemoveDependency(c.Request.Context(), id, req.BlockerID, actorID(c, req.UserID)); err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "deleted"})
}
