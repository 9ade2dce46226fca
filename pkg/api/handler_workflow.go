package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type workflowExecuteRequest struct {
	Params map[string]any `json:"params"`
}

func (s *Server) handleWorkflows(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"workflows": s.engine.List()})
}

func (s *Server) handleWorkflowExecute(c *gin.Context) {
	var req workflowExecuteRequest
	// Body is optional; workflows can run with an empty context.
	_ = c.ShouldBindJSON(&req)

	result, err := s.engine.Execute(c.Request.Context(), c.Param("id"), req.Params)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
