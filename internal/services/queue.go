package services

import (
	"context"

	"github.com/mariocelzo/Target-sub000/internal/models"
	"github.com/mariocelzo/Target-sub000/internal/utils"
)

// Offer notification kinds.
const (
	OfferNotifySubmitted = "submitted"
	OfferNotifyAccepted  = "accepted"
)

// OfferNotification is the payload handed to the background worker when an
// offer event should produce an email.
type OfferNotification struct {
	Kind      string       `json:"kind"`
	ListingID utils.SixID  `json:"listing_id"`
	OfferID   utils.SixID  `json:"offer_id"`
	BuyerID   utils.SixID  `json:"buyer_id"`
	SellerID  utils.SixID  `json:"seller_id"`
	Amount    models.Price `json:"amount"`
}

// ITaskQueue is the slice of the background task client the services use.
// Implementations enqueue asynq tasks; a nil queue disables the side effects
// (tests, and deployments without a worker).
type ITaskQueue interface {
	EnqueueOfferCleanup(ctx context.Context, listingID utils.SixID) error
	EnqueueOfferNotify(ctx context.Context, n OfferNotification) error
}
