package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/overseer-ai/overseer/pkg/models"
)

type resolveRequest struct {
	ResolvedBy string `json:"resolved_by"`
	Note       string `json:"note"`
}

func (s *Server) handlePendingApprovals(c *gin.Context) {
	requests, err := s.gate.GetPending(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests})
}

func (s *Server) handleGetApproval(c *gin.Context) {
	req, err := s.gate.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (s *Server) handleApprove(c *gin.Context) {
	s.resolve(c, models.ActionApprove)
}

func (s *Server) handleReject(c *gin.Context) {
	s.resolve(c, models.ActionReject)
}

func (s *Server) resolve(c *gin.Context, action models.ApprovalAction) {
	var body resolveRequest
	// Body is optional; an empty resolver falls back to the token subject.
	_ = c.ShouldBindJSON(&body)
	if body.ResolvedBy == "" {
		if claims := currentClaims(c); claims != nil {
			body.ResolvedBy = claims.Username
		}
	}
	req, err := s.gate.Resolve(c.Request.Context(), c.Param("id"), action, body.ResolvedBy, body.Note)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (s *Server) handleExpireApprovals(c *gin.Context) {
	expired, err := s.gate.ExpireTimeouts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if expired == nil {
		expired = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"expired_count": len(expired), "expired_ids": expired})
}
