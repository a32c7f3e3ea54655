package models

import (
	"time"
)

// NotificationPreferences allows users to control email notifications.
type NotificationPreferences struct {
	Offer bool `bson:"offer" json:"offer"`
	Chat  bool `bson:"chat" json:"chat"`
}

// ShippingProfile holds the user's current shipping details. It is read at
// offer-acceptance time and snapshotted into the resulting order.
type ShippingProfile struct {
	FullName string `bson:"full_name" json:"full_name"`
	Address  string `bson:"address" json:"address"`
	City     string `bson:"city" json:"city"`
	ZipCode  string `bson:"zip_code" json:"zip_code"`
	Province string `bson:"province" json:"province"`
	Phone    string `bson:"phone,omitempty" json:"phone,omitempty"`
}

// User represents a marketplace user. Registration and profile management are
// handled elsewhere; this subsystem only reads users.
type User struct {
	Base                    `bson:",inline"`
	Name                    string                  `bson:"name" json:"name"`
	Email                   string                  `bson:"email" json:"email"`
	ShippingProfile         ShippingProfile         `bson:"shipping_profile" json:"shipping_profile"`
	NotificationPreferences NotificationPreferences `bson:"notification_preferences" json:"notification_preferences"`
	Deleted                 bool                    `bson:"deleted" json:"-"`
	CreatedAt               time.Time               `bson:"created_at" json:"created_at"`
	UpdatedAt               time.Time               `bson:"updated_at" json:"updated_at"`
}
