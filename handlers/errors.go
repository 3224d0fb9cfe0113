package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/byerlikaya/SmartRAG-sub014/models"
)

// respondError maps service errors onto HTTP statuses: validation 400,
// not-found 404, upstream provider failures 502, everything else 500.
func respondError(c *gin.Context, message string, err error) {
	var (
		validationErr *models.ValidationError
		notFoundErr   *models.NotFoundError
		skippedErr    *models.DocumentSkippedError
		providerErr   *models.ProviderError
	)
	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Message})
	case errors.As(err, &notFoundErr):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &skippedErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": message, "details": err.Error()})
	case errors.As(err, &providerErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": message, "details": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": message, "details": err.Error()})
	}
}
