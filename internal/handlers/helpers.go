package handlers

import (
	"errors"
	"net/http"

	"sendcash-backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// respondWithError unified error response function
func respondWithError(c *gin.Context, statusCode int, errorType, message string, details interface{}) {
	response := gin.H{
		"error":   errorType,
		"message": message,
	}
	if details != nil {
		response["details"] = details
	}
	c.JSON(statusCode, response)
}

// respondWithServiceError maps service sentinels to status codes. Only
// validation messages reach the client; everything else is logged.
func respondWithServiceError(c *gin.Context, log *logrus.Logger, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		respondWithError(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	case errors.Is(err, services.ErrNotFound):
		respondWithError(c, http.StatusNotFound, "not_found", "Not found", nil)
	default:
		log.WithFields(logrus.Fields{
			"path":       c.Request.URL.Path,
			"method":     c.Request.Method,
			"request_id": c.GetString("request_id"),
			"error":      err.Error(),
		}).Error("request failed")
		respondWithError(c, http.StatusInternalServerError, "internal_error", "Internal server error", nil)
	}
}
