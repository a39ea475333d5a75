package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/smallbiznis/reachway/internal/billing/domain"
	"go.uber.org/zap"
)

// HandlePaymentWebhook applies subscription lifecycle events. The access
// token is verified before the payload is parsed; everything after that is
// acked with 200 so the provider stops retrying events we have already seen
// or chosen to ignore.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))

	if err := s.billingAdapter.Verify(c.Request.Context(), c.Request.Header); err != nil {
		s.metrics.RecordWebhookEvent("payments", "bad_signature")
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	event, err := s.billingAdapter.Parse(c.Request.Context(), body)
	if err != nil {
		if errors.Is(err, billingdomain.ErrEventIgnored) {
			s.metrics.RecordWebhookEvent("payments", "ignored")
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
			return
		}
		s.metrics.RecordWebhookEvent("payments", "malformed")
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	inserted, err := s.ledger.MarkProcessed(c.Request.Context(), "payments_"+provider, event.ProviderEventID, event.Type, body)
	if err != nil {
		s.log.Error("payment ledger write failed", zap.Error(err))
		AbortWithError(c, ErrInternal)
		return
	}
	if !inserted {
		s.metrics.RecordWebhookEvent("payments", "duplicate")
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	if err := s.billingSvc.ApplyPaymentEvent(c.Request.Context(), *event); err != nil {
		if errors.Is(err, billingdomain.ErrUnknownReference) {
			// Not retryable; the reference will never start existing.
			s.metrics.RecordWebhookEvent("payments", "unknown_reference")
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		s.metrics.RecordWebhookEvent("payments", "error")
		s.log.Error("payment event apply failed", zap.Error(err))
		AbortWithError(c, ErrInternal)
		return
	}

	s.metrics.RecordWebhookEvent("payments", "ok")
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
