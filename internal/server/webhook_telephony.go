package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	reconciletelephony "github.com/smallbiznis/reachway/internal/reconcile/telephony"
	"go.uber.org/zap"
)

// HandleTelephonyWebhook ingests flat PBX events. Only call-ended events
// settle outcomes; everything else is acked and dropped.
func (s *Server) HandleTelephonyWebhook(c *gin.Context) {
	if !s.limiter.Allow(c.Request.Context(), reconciletelephony.Provider) {
		s.metrics.RecordWebhookEvent(reconciletelephony.Provider, "rate_limited")
		c.Header("Retry-After", "1")
		AbortWithError(c, ErrRateLimited)
		return
	}

	var evt reconciletelephony.CallEvent
	if err := c.ShouldBindJSON(&evt); err != nil {
		s.metrics.RecordWebhookEvent(reconciletelephony.Provider, "malformed")
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if strings.TrimSpace(evt.CallID) == "" {
		s.metrics.RecordWebhookEvent(reconciletelephony.Provider, "malformed")
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.telephonySvc.ProcessCallEnded(c.Request.Context(), evt); err != nil {
		s.metrics.RecordWebhookEvent(reconciletelephony.Provider, "error")
		s.log.Error("telephony webhook processing failed", zap.Error(err))
		AbortWithError(c, ErrInternal)
		return
	}

	s.metrics.RecordWebhookEvent(reconciletelephony.Provider, "ok")
	c.JSON(http.StatusOK, gin.H{"received": true})
}
