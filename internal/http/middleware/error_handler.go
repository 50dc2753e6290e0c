package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/casagrown/backend/internal/logger"
	"github.com/casagrown/backend/internal/pkg/apperror"
	"github.com/casagrown/backend/internal/repository"
)

// ErrorHandler turns errors collected on the gin context into JSON responses.
// Internal details are masked; AppError carries its own status and client
// message.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last()

		if logger.Log != nil {
			logger.Log.WithFields(logrus.Fields{
				"error":  err.Error(),
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
			}).Error("Request error")
		}

		var appErr *apperror.AppError
		if errors.As(err.Err, &appErr) {
			c.JSON(appErr.HTTPStatus, gin.H{
				"error": appErr.Message,
				"code":  appErr.Code,
			})
			return
		}

		statusCode := http.StatusInternalServerError
		message := "internal server error"

		switch {
		case errors.Is(err.Err, repository.ErrUserNotFound):
			statusCode, message = http.StatusNotFound, "user not found"
		case errors.Is(err.Err, repository.ErrOrderNotFound):
			statusCode, message = http.StatusNotFound, "order not found"
		case errors.Is(err.Err, repository.ErrConversationNotFound):
			statusCode, message = http.StatusNotFound, "conversation not found"
		case errors.Is(err.Err, repository.ErrVersionMismatch):
			statusCode, message = http.StatusConflict, "order was modified by the other party, refresh and try again"
		default:
			errStr := err.Error()
			if errStr != "" && !containsInternalKeywords(errStr) {
				message = errStr
				if contains(errStr, "invalid") || contains(errStr, "must be") || contains(errStr, "required") {
					statusCode = http.StatusBadRequest
				} else if contains(errStr, "permission") || contains(errStr, "forbidden") {
					statusCode = http.StatusForbidden
				}
			}
		}

		c.JSON(statusCode, gin.H{"error": message})
	}
}

// containsInternalKeywords reports whether a message leaks internals.
func containsInternalKeywords(s string) bool {
	keywords := []string{
		"sql:",
		"database",
		"connection",
		"timeout",
		"internal",
		"panic",
		"runtime",
	}

	for _, keyword := range keywords {
		if contains(s, keyword) {
			return true
		}
	}
	return false
}

// contains is a case-insensitive substring check.
func contains(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
