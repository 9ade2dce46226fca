package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/overseer-ai/overseer/pkg/llm"
	"github.com/overseer-ai/overseer/pkg/version"
)

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	health, err := s.db.Health(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"database": health,
			"version":  version.Get(),
			"error":    err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"database": health,
		"version":  version.Get(),
	})
}

func (s *Server) handleReady(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := s.db.DB().PingContext(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ready": true})
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}
	token, user, err := s.auth.Authenticate(req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

// handleStatus returns the platform snapshot: agent fleet, LLM provider
// state, queue load, and routing mode.
func (s *Server) handleStatus(c *gin.Context) {
	agents := gin.H{}
	for name, status := range s.registry.Statuses() {
		entry := gin.H{
			"name":            status.Name,
			"role":            status.Role,
			"status":          status.Status,
			"tasks_completed": status.TasksCompleted,
			"description":     status.Description,
		}
		if stats, err := s.sessions.GetAgentStats(c.Request.Context(), name); err == nil {
			entry["total_sessions"] = stats.TotalTasks
			entry["avg_eval_score"] = stats.AvgEvalScore
			entry["success_rate"] = stats.SuccessRate
		}
		agents[name] = entry
	}

	intentMode := "keyword"
	llmStatus := llm.Status{OfflineMode: true}
	if s.llm != nil {
		llmStatus = s.llm.Status()
		if s.llm.Available() {
			intentMode = "llm"
		}
	}
	payload := gin.H{
		"agents":      agents,
		"llm":         llmStatus,
		"intent_mode": intentMode,
	}
	if stats, err := s.taskQueue.Stats(c.Request.Context()); err == nil {
		payload["queue"] = stats
	}
	c.JSON(http.StatusOK, payload)
}

func (s *Server) handleAgents(c *gin.Context) {
	agents := gin.H{}
	for name, status := range s.registry.Statuses() {
		agents[name] = status
	}
	c.JSON(http.StatusOK, gin.H{"agents": agents})
}

func (s *Server) handleHistory(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"history": s.dispatcher.History(20)})
}

func (s *Server) handleProfiles(c *gin.Context) {
	profiles, err := s.profiles.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profiles": profiles})
}

func (s *Server) handleFleet(c *gin.Context) {
	summary, err := s.profiles.FleetSummary(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
