package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HandlePendingActivities returns the SDR work queue for one organization.
func (s *Server) HandlePendingActivities(c *gin.Context) {
	orgID, err := snowflake.ParseString(strings.TrimSpace(c.Param("org_id")))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	activities, err := s.progressionSvc.PendingActivities(c.Request.Context(), orgID)
	if err != nil {
		s.log.Error("pending activities query failed", zap.Error(err))
		AbortWithError(c, ErrInternal)
		return
	}
	c.JSON(http.StatusOK, gin.H{"activities": activities})
}

type creditDeductRequest struct {
	OrgID string `json:"orgId" binding:"required"`
}

// HandleCreditDeduct consumes one messaging credit on behalf of the sending
// pipeline and surfaces the ledger decision to the caller.
func (s *Server) HandleCreditDeduct(c *gin.Context) {
	var req creditDeductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	orgID, err := snowflake.ParseString(strings.TrimSpace(req.OrgID))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	decision, err := s.quotaSvc.CheckAndDeduct(c.Request.Context(), orgID)
	if err != nil {
		s.log.Error("credit deduct failed", zap.Error(err))
		AbortWithError(c, ErrInternal)
		return
	}
	s.metrics.RecordQuotaDecision("messaging_credit", decision.Allowed)

	c.JSON(http.StatusOK, gin.H{
		"allowed":   decision.Allowed,
		"used":      decision.Used,
		"limit":     decision.Limit,
		"isOverage": decision.IsOverage,
	})
}
