package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mariocelzo/Target-sub000/internal/api/middleware"
	"github.com/mariocelzo/Target-sub000/internal/models"
	"github.com/mariocelzo/Target-sub000/internal/services"
	"github.com/mariocelzo/Target-sub000/internal/utils"
)

// RestListingHandler handles REST requests for listings, acceptance and
// orders.
type RestListingHandler struct {
	listingService services.IListingService
	offerService   services.IOfferService
}

// NewRestListingHandler creates a new RestListingHandler.
func NewRestListingHandler(listingService services.IListingService, offerService services.IOfferService) *RestListingHandler {
	return &RestListingHandler{
		listingService: listingService,
		offerService:   offerService,
	}
}

type createListingRequest struct {
	Title       string       `json:"title" binding:"required"`
	Description string       `json:"description"`
	Price       models.Price `json:"price" binding:"required"`
	Category    string       `json:"category"`
	Condition   string       `json:"condition"`
	ImageKey    string       `json:"image_key"`
}

// CreateListing handles POST /v1/listing
func (h *RestListingHandler) CreateListing(c *gin.Context) {
	sellerID, ok := middleware.SessionUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	var req createListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	listing, err := h.listingService.CreateListing(c.Request.Context(), sellerID,
		req.Title, req.Description, req.Category, req.Condition, req.ImageKey, req.Price)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": listing})
}

// GetListingByID handles GET /v1/listing/:id
func (h *RestListingHandler) GetListingByID(c *gin.Context) {
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
	c.JSON(http.StatusOK, gin.H{"data": listing})
}

// RemoveListing handles DELETE /v1/listing/:id
func (h *RestListingHandler) RemoveListing(c *gin.Context) {
	sellerID, ok := middleware.SessionUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}
	listingID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing ID"})
		return
	}

	if err := h.listingService.RemoveListing(c.Request.Context(), listingID, sellerID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type acceptOfferRequest struct {
	OfferID utils.SixID `json:"offer_id" binding:"required"`
}

// AcceptOffer handles POST /v1/listing/:id/accept
func (h *RestListingHandler) AcceptOffer(c *gin.Context) {
	sellerID, ok := middleware.SessionUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}
	listingID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing ID"})
		return
	}

	var req acceptOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	order, err := h.listingService.AcceptOffer(c.Request.Context(), listingID, req.OfferID, sellerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": order})
}

// GetOrderByID handles GET /v1/order/:id. Only the order's buyer or seller
// may read it.
func (h *RestListingHandler) GetOrderByID(c *gin.Context) {
	userID, ok := middleware.SessionUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}
	orderID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	order, err := h.listingService.FindOrderByID(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	if order.BuyerID != userID && order.SellerID != userID {
		respondError(c, services.ErrForbidden)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": order})
}
