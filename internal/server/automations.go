package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tracker/internal/automation"
	"tracker/internal/models"
)

type automationRequest struct {
	automation.RuleInput
	UserID *int64 `json:"userId"`
}

type enabledRequest struct {
	Enabled *bool `json:"enabled"`
}

// handleListAutomations returns the rules of a workspace, oldest first.
func (s *Server) handleListAutomations(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	rules, err := s.rules.List(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if rules == nil {
		rules = []models.Automation{}
	}
	respondSuccess(c, http.StatusOK, gin.H{"automations": rules})
}

// handleCreateAutomation validates and stores a rule.
func (s *Server) handleCreateAutomation(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req automationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	rule, err := s.rules.Create(c.Request.Context(), id, actorID(c, req.UserID), req.RuleInput)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"automation": rule})
}

// handleGetAutomation returns one rule.
func (s *Server) handleGetAutomation(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	rule, err := s.rules.Get(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"automation": rule})
}

// handleUpdateAutomation replaces a rule definition.
func (s *Server) handleUpdateAutomation(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req automationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	rule, err := s.rules.Update(c.Request.Context(), id, req.RuleInput)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"automation": rule})
}

// handleSetAutomationEnabled switches a rule on or off.
func (s *Server) handleSetAutomationEnabled(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req enabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Enabled == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "enabled is required"})
		return
	}
	rule, err := s.rules.SetEnabled(c.Request.Context(), id, *req.Enabled)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"automation": rule})
}

// handleDeleteAutomation removes a rule.
func (s *Server) handleDeleteAutomation(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := s.rules.Delete(c.Request.Context(), id); err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "deleted"})
}

// handleAutomationHistory lists the recorded runs of a rule.
func (s *Server) handleAutomationHistory(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, err := s.rules.Get(ctx, id); err != nil {
		s.respondError(c, err)
		return
	}
	entries, err := s.store.ListAutomationHistory(ctx, id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if entries == nil {
		entries = []models.HistoryEntry{}
	}
	respondSuccess(c, http.StatusOK, gin.H{"history": entries})
}
