package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/overseer-ai/overseer/pkg/hitl"
	"github.com/overseer-ai/overseer/pkg/queue"
	"github.com/overseer-ai/overseer/pkg/services"
)

// respondError maps service errors onto HTTP statuses. Unclassified
// errors are logged with full detail and reported generically.
func respondError(c *gin.Context, err error) {
	switch {
	case services.IsValidationError(err), errors.Is(err, services.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrNotFound), errors.Is(err, queue.ErrTaskNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrNotCancellable),
		errors.Is(err, services.ErrAlreadyExists),
		errors.Is(err, hitl.ErrAlreadyResolved):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		slog.Error("Request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
