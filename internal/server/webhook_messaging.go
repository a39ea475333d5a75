package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	reconcilemessaging "github.com/smallbiznis/reachway/internal/reconcile/messaging"
	"github.com/smallbiznis/reachway/internal/signature"
	"go.uber.org/zap"
)

// VerifyMessagingWebhook answers the provider's subscription handshake.
func (s *Server) VerifyMessagingWebhook(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode != "subscribe" || s.cfg.Messaging.VerifyToken == "" || token != s.cfg.Messaging.VerifyToken {
		AbortWithError(c, ErrForbidden)
		return
	}
	c.String(http.StatusOK, challenge)
}

// HandleMessagingWebhook ingests status updates and inbound messages. The
// signature covers the exact transmitted bytes, so the body is read raw
// before any decoding.
func (s *Server) HandleMessagingWebhook(c *gin.Context) {
	if !s.limiter.Allow(c.Request.Context(), reconcilemessaging.Provider) {
		s.metrics.RecordWebhookEvent(reconcilemessaging.Provider, "rate_limited")
		c.Header("Retry-After", "1")
		AbortWithError(c, ErrRateLimited)
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if s.cfg.Messaging.WebhookSecret != "" {
		header := c.GetHeader("x-hub-signature-256")
		if !signature.VerifyHubSignature(body, header, s.cfg.Messaging.WebhookSecret) {
			s.metrics.RecordWebhookEvent(reconcilemessaging.Provider, "bad_signature")
			AbortWithError(c, ErrUnauthorized)
			return
		}
	}

	var payload reconcilemessaging.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		s.metrics.RecordWebhookEvent(reconcilemessaging.Provider, "malformed")
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.messagingSvc.ProcessWebhook(c.Request.Context(), payload); err != nil {
		// A 5xx makes the provider redeliver; the ledger keeps the retry safe.
		s.metrics.RecordWebhookEvent(reconcilemessaging.Provider, "error")
		s.log.Error("messaging webhook processing failed", zap.Error(err))
		AbortWithError(c, ErrInternal)
		return
	}

	s.metrics.RecordWebhookEvent(reconcilemessaging.Provider, "ok")
	c.JSON(http.StatusOK, gin.H{"received": true})
}
