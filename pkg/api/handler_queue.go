package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/overseer-ai/overseer/pkg/models"
)

type queueSubmitRequest struct {
	AgentName   string         `json:"agent_name" binding:"required"`
	Instruction string         `json:"instruction" binding:"required"`
	Priority    string         `json:"priority"`
	CallbackURL string         `json:"callback_url"`
	Metadata    map[string]any `json:"metadata"`
}

func (s *Server) handleQueueSubmit(c *gin.Context) {
	var req queueSubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "agent_name and instruction are required"})
		return
	}
	priority, err := models.ParsePriority(req.Priority)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := s.registry.Get(req.AgentName); err != nil {
		respondError(c, err)
		return
	}
	taskID, err := s.taskQueue.Enqueue(c.Request.Context(), req.AgentName, req.Instruction, priority, req.CallbackURL, req.Metadata)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"task_id": taskID, "status": string(models.TaskStatusPending)})
}

func (s *Server) handleTaskStatus(c *gin.Context) {
	task, err := s.taskQueue.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) handleTaskCancel(c *gin.Context) {
	taskID := c.Param("id")
	cancelled, err := s.taskQueue.Cancel(c.Request.Context(), taskID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !cancelled {
		c.JSON(http.StatusConflict, gin.H{"error": "task cannot be cancelled (not in pending state)"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"task_id": taskID, "status": string(models.TaskStatusCancelled)})
}

func (s *Server) handleQueueStats(c *gin.Context) {
	stats, err := s.taskQueue.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleQueuePending(c *gin.Context) {
	tasks, err := s.taskQueue.GetPending(c.Request.Context(), c.Query("agent_name"))
	if err != nil {
		respondError(c, err)
		return
	}
	if tasks == nil {
		tasks = []*models.QueuedTask{}
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}
