package models

import (
	"time"

	"github.com/mariocelzo/Target-sub000/internal/utils"
)

// Price defines the structure for monetary values.
type Price struct {
	Value        float64 `bson:"value" json:"value"`
	CurrencyCode string  `bson:"currency_code" json:"currency_code"`
}

// Listing represents an item published for sale.
//
// Once Sold is true the listing is terminal: Price holds the accepted offer's
// amount and neither field is ever mutated again. Removed is the other
// terminal state, reachable only while the listing is still active.
type Listing struct {
	Base        `bson:",inline"`
	SellerID    utils.SixID `bson:"seller_id" json:"seller_id"`
	Title       string      `bson:"title" json:"title"`
	Description string      `bson:"description" json:"description"`
	Price       Price       `bson:"price" json:"price"`
	Category    string      `bson:"category" json:"category"`
	Condition   string      `bson:"condition" json:"condition"` // e.g., "new", "like_new", "used", "damaged"
	ImageKey    string      `bson:"image_key,omitempty" json:"image_key,omitempty"`
	Sold        bool        `bson:"sold" json:"sold"`
	SoldAt      *time.Time  `bson:"sold_at,omitempty" json:"sold_at,omitempty"`
	Removed     bool        `bson:"removed" json:"-"`
	RemovedAt   *time.Time  `bson:"removed_at,omitempty" json:"-"`
	CreatedAt   time.Time   `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time   `bson:"updated_at" json:"updated_at"`
}
