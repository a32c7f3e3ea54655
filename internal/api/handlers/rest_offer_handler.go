package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mariocelzo/Target-sub000/internal/api/middleware"
	"github.com/mariocelzo/Target-sub000/internal/models"
	"github.com/mariocelzo/Target-sub000/internal/services"
	"github.com/mariocelzo/Target-sub000/internal/utils"
)

// RestOfferHandler handles REST requests for the offer ledger.
type RestOfferHandler struct {
	offerService   services.IOfferService
	listingService services.IListingService
}

// NewRestOfferHandler creates a new RestOfferHandler.
func NewRestOfferHandler(offerService services.IOfferService, listingService services.IListingService) *RestOfferHandler {
	return &RestOfferHandler{
		offerService:   offerService,
		listingService: listingService,
	}
}

type submitOfferRequest struct {
	Amount models.Price `json:"amount" binding:"required"`
}

// SubmitOffer handles POST /v1/listing/:id/offer
func (h *RestOfferHandler) SubmitOffer(c *gin.Context) {
	buyerID, ok := middleware.SessionUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}
	listingID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing ID"})
		return
	}

	var req submitOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	offer, err := h.offerService.SubmitOffer(c.Request.Context(), listingID, buyerID, req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": offer})
}

// WithdrawOffer handles DELETE /v1/listing/:id/offer. A buyer can only
// withdraw their own open offer.
func (h *RestOfferHandler) WithdrawOffer(c *gin.Context) {
	buyerID, ok := middleware.SessionUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}
	listingID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing ID"})
		return
	}

	if err := h.offerService.WithdrawOffer(c.Request.Context(), listingID, buyerID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListOffers handles GET /v1/listing/:id/offer. Only the listing's owner may
// read the full offer ledger.
func (h *RestOfferHandler) ListOffers(c *gin.Context) {
	userID, ok := middleware.SessionUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}
	listingID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing ID"})
		return
	}

	listing, err := h.listingService.FindListingByID(c.Request.Context(), listingID)
	if err != nil {
		respondError(c, err)
		return
	}
	if listing.SellerID != userID {
		respondError(c, services.ErrForbidden)
		return
	}

	offers, err := h.offerService.ListOffers(c.Request.Context(), listingID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": offers})
}
