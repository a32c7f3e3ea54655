package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/mariocelzo/Target-sub000/internal/services"
)

// respondError maps the core's typed failures onto HTTP statuses. Anything
// unclassified becomes a 500 with a generic message; the underlying error is
// attached to the Gin context for logging.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidOffer):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Offer amount is invalid for this listing"})
	case errors.Is(err, services.ErrListingUnavailable):
		c.JSON(http.StatusConflict, gin.H{"error": "Listing is not available"})
	case errors.Is(err, services.ErrListingAlreadySold):
		c.JSON(http.StatusConflict, gin.H{"error": "Listing is already sold"})
	case errors.Is(err, services.ErrOfferNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Offer not found"})
	case errors.Is(err, services.ErrOfferAlreadyAccepted):
		c.JSON(http.StatusConflict, gin.H{"error": "Offer has already been accepted"})
	case errors.Is(err, services.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "You do not own this resource"})
	case errors.Is(err, services.ErrConcurrentAcceptanceConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "Acceptance conflicted with a concurrent attempt, try again"})
	case errors.Is(err, services.ErrThreadParticipantInvalid):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Invalid thread participant"})
	case errors.Is(err, services.ErrEmptyMessage):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Message text must not be empty"})
	case errors.Is(err, services.ErrThreadNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Thread not found"})
	case errors.Is(err, services.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
	case errors.Is(err, mongo.ErrNoDocuments):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
