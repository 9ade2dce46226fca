package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type dispatchRequest struct {
	Prompt string `json:"prompt" binding:"required"`
}

// handleDispatch routes one instruction synchronously through the
// planner and the EPCC pipeline. Sub-task failures come back inside the
// result; only validation and persistence problems are HTTP errors.
func (s *Server) handleDispatch(c *gin.Context) {
	var req dispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "prompt is required"})
		return
	}
	result, err := s.dispatcher.Dispatch(c.Request.Context(), req.Prompt)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result, "prompt": req.Prompt})
}
