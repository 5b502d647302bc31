package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"contest-platform/internal/apperr"
)

// respondError maps the error taxonomy onto HTTP statuses. Unknown errors
// are logged and hidden behind a generic 500.
func respondError(c *gin.Context, logger zerolog.Logger, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperr.ErrAuth):
		status = http.StatusUnauthorized
	case errors.Is(err, apperr.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, apperr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperr.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, apperr.ErrPaymentRequired):
		status = http.StatusPaymentRequired
	case errors.Is(err, apperr.ErrGateway):
		status = http.StatusBadGateway
	case errors.Is(err, apperr.ErrValidation):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		logger.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
		c.JSON(status, gin.H{"error": "Server error."})
		return
	}

	body := gin.H{"error": err.Error()}
	if apperr.Retryable(err) {
		body["retryable"] = true
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
}
