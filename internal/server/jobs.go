package server

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const jobTimeout = 5 * time.Minute

// WorkerAuth guards the internal surface with the shared worker bearer
// token. An unset token closes the surface entirely.
func (s *Server) WorkerAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := s.cfg.Worker.AuthToken
		if token == "" {
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		header := c.GetHeader("Authorization")
		provided, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(provided)), []byte(token)) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

// HandleReplyPollJob accepts the trigger and runs the batch detached from
// the request, so the caller (cron or a previous batch) never blocks on it.
func (s *Server) HandleReplyPollJob(c *gin.Context) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		if err := s.replyPoller.Run(ctx); err != nil {
			s.log.Error("reply poll job failed", zap.Error(err))
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"accepted": true, "job": "reply-poll"})
}

type enrichmentJobRequest struct {
	ImportID string `json:"importId" binding:"required"`
}

func (s *Server) HandleEnrichmentJob(c *gin.Context) {
	var req enrichmentJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	importID, err := snowflake.ParseString(strings.TrimSpace(req.ImportID))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		if err := s.enrichment.Run(ctx, importID); err != nil {
			s.log.Error("enrichment job failed",
				zap.String("import_id", importID.String()),
				zap.Error(err),
			)
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"accepted": true, "job": "lead-enrichment"})
}
