package models

import (
	"time"

	"github.com/mariocelzo/Target-sub000/internal/utils"
)

// Offer represents a buyer's proposed purchase price for a listing.
//
// The offers collection carries a unique index on {listing_id, buyer_id}: a
// buyer holds at most one open offer per listing and re-submission updates the
// amount in place. At most one offer per listing ever has Accepted set.
type Offer struct {
	Base      `bson:",inline"`
	ListingID utils.SixID `bson:"listing_id" json:"listing_id"`
	BuyerID   utils.SixID `bson:"buyer_id" json:"buyer_id"`
	Amount    Price       `bson:"amount" json:"amount"`
	Accepted  bool        `bson:"accepted" json:"accepted"`
	CreatedAt time.Time   `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time   `bson:"updated_at" json:"updated_at"`
}
