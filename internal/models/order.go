package models

import (
	"time"

	"github.com/mariocelzo/Target-sub000/internal/utils"
)

// ShippingSnapshot is the buyer's shipping profile copied into the order at
// acceptance time. It is a snapshot, not a live reference: later profile edits
// do not affect existing orders.
type ShippingSnapshot struct {
	FullName string `bson:"full_name" json:"full_name"`
	Address  string `bson:"address" json:"address"`
	City     string `bson:"city" json:"city"`
	ZipCode  string `bson:"zip_code" json:"zip_code"`
	Province string `bson:"province" json:"province"`
	Phone    string `bson:"phone,omitempty" json:"phone,omitempty"`
}

// ShippingSnapshotFromProfile copies a live shipping profile into the
// immutable snapshot form stored on an order.
func ShippingSnapshotFromProfile(p ShippingProfile) ShippingSnapshot {
	return ShippingSnapshot{
		FullName: p.FullName,
		Address:  p.Address,
		City:     p.City,
		ZipCode:  p.ZipCode,
		Province: p.Province,
		Phone:    p.Phone,
	}
}

// Order is the permanent record of a completed sale. It is created exactly
// once per listing, inside the acceptance transaction, and never mutated or
// deleted afterwards.
type Order struct {
	Base      `bson:",inline"`
	ListingID utils.SixID      `bson:"listing_id" json:"listing_id"`
	BuyerID   utils.SixID      `bson:"buyer_id" json:"buyer_id"`
	SellerID  utils.SixID      `bson:"seller_id" json:"seller_id"`
	Amount    Price            `bson:"amount" json:"amount"`
	Quantity  int              `bson:"quantity" json:"quantity"`
	Shipping  ShippingSnapshot `bson:"shipping" json:"shipping"`
	CreatedAt time.Time        `bson:"created_at" json:"created_at"`
}
