package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
	ErrInternal           = errors.New("internal_error")
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

// ErrorHandlingMiddleware turns errors attached to the context into a JSON
// body after the handler chain finishes.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}
		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{Type: "unauthorized", Message: "authentication required"}
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, errorPayload{Type: "forbidden", Message: "access denied"}
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, errorPayload{Type: "invalid_request", Message: "request could not be processed"}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{Type: "rate_limited", Message: "too many requests"}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{Type: "service_unavailable", Message: "temporarily unavailable"}
	default:
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal error"}
	}
}
