package handler

import (
	"errors"
	"net/http"

	"modelmine/internal/model"
	"modelmine/pkg/logger"

	"github.com/gin-gonic/gin"
)

// statusFor maps a service error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrValidation), errors.Is(err, model.ErrInsufficientBalance):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes {"error": msg}. Server errors are logged with the action.
func respondError(c *gin.Context, action string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.ErrorCtx(c.Request.Context(), "failed to %s: %v", action, err)
	} else {
		logger.WarnCtx(c.Request.Context(), "rejected %s: %v", action, err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	logger.WarnCtx(c.Request.Context(), "invalid request: %v", err)
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
}
