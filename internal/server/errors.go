package server

import (
	"errors"
	"net/http"

	"github.com/MarcoPoloResearchLab/paperless/backend/internal/apperr"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const reasonUnauthenticated = "unauthenticated"

type errorPayload struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrPermissionDenied):
		if apperr.ReasonOf(err) == reasonUnauthenticated {
			return http.StatusUnauthorized
		}
		return http.StatusForbidden
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrUploadFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *httpHandler) respondError(c *gin.Context, err error) {
	status := statusFor(err)
	reason := apperr.ReasonOf(err)
	if reason == "" {
		reason = "internal_error"
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("code", apperr.CodeOf(err)),
			zap.Error(err))
	}
	c.AbortWithStatusJSON(status, errorPayload{Error: reason, Code: apperr.CodeOf(err)})
}

func abortWithReason(c *gin.Context, status int, reason string) {
	c.AbortWithStatusJSON(status, errorPayload{Error: reason})
}
