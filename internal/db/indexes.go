package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureIndexes creates the indexes the marketplace core relies on. The unique
// indexes are load-bearing: they are what makes offer upserts and thread
// creation race-free, so startup fails hard if they cannot be built.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	specs := map[string][]mongo.IndexModel{
		"offers": {
			{
				// One open offer per buyer per listing
				Keys:    bson.D{{Key: "listing_id", Value: 1}, {Key: "buyer_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{
				Keys: bson.D{{Key: "listing_id", Value: 1}},
			},
		},
		"listings": {
			{
				Keys: bson.D{{Key: "seller_id", Value: 1}, {Key: "sold", Value: 1}},
			},
		},
		"orders": {
			{
				// One order per listing, ever
				Keys:    bson.D{{Key: "listing_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{
				Keys: bson.D{{Key: "buyer_id", Value: 1}},
			},
		},
		"threads": {
			{
				// One thread per unordered participant pair
				Keys:    bson.D{{Key: "pair_key", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{
				Keys: bson.D{{Key: "participant_a", Value: 1}},
			},
			{
				Keys: bson.D{{Key: "participant_b", Value: 1}},
			},
		},
	}

	for collection, models := range specs {
		if _, err := db.Collection(collection).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes for %s: %w", collection, err)
		}
	}
	return nil
}
