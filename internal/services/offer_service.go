package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mariocelzo/Target-sub000/internal/db"
	"github.com/mariocelzo/Target-sub000/internal/models"
	"github.com/mariocelzo/Target-sub000/internal/utils"
)

// IOfferService owns the set of open offers for a listing: submission with
// per-buyer upsert semantics, withdrawal, and reads.
type IOfferService interface {
	SubmitOffer(ctx context.Context, listingID, buyerID utils.SixID, amount models.Price) (*models.Offer, error)
	WithdrawOffer(ctx context.Context, listingID, buyerID utils.SixID) error
	ListOffers(ctx context.Context, listingID utils.SixID) ([]models.Offer, error)
	ListOffersForListings(ctx context.Context, listingIDs []utils.SixID) (map[utils.SixID][]models.Offer, error)
	DeleteOpenOffers(ctx context.Context, listingID utils.SixID) (int64, error)
}

const offersCollection = "offers"

type offerService struct {
	db    *mongo.Database
	queue ITaskQueue
}

// NewOfferService creates a new OfferService. queue may be nil to disable
// background notifications.
func NewOfferService(database *mongo.Database, queue ITaskQueue) IOfferService {
	return &offerService{db: database, queue: queue}
}

// SubmitOffer creates the buyer's open offer on a listing, or updates its
// amount if one already exists. The one-open-offer-per-buyer invariant is
// enforced by the unique {listing_id, buyer_id} index, so a concurrent double
// submit degenerates into a retried upsert rather than a second document.
func (s *offerService) SubmitOffer(ctx context.Context, listingID, buyerID utils.SixID, amount models.Price) (*models.Offer, error) {
	var listing models.Listing
	err := s.db.Collection(listingsCollection).FindOne(ctx, bson.M{"_id": listingID, "removed": false}).Decode(&listing)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrListingUnavailable
		}
		return nil, fmt.Errorf("error reading listing %s: %w", listingID.String(), err)
	}
	if listing.Sold {
		return nil, ErrListingUnavailable
	}
	if amount.Value <= 0 || amount.Value > listing.Price.Value {
		return nil, ErrInvalidOffer
	}
	if amount.CurrencyCode != listing.Price.CurrencyCode {
		return nil, ErrInvalidOffer
	}

	now := time.Now().UTC()
	filter := bson.M{
		"listing_id": listingID,
		"buyer_id":   buyerID,
		"accepted":   false,
	}
	update := bson.M{
		"$set": bson.M{
			"amount":     amount,
			"updated_at": now,
		},
		"$setOnInsert": bson.M{
			"_id":        utils.NewSixID(),
			"listing_id": listingID,
			"buyer_id":   buyerID,
			"accepted":   false,
			"created_at": now,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var offer models.Offer
	operation := func() error {
		return s.db.Collection(offersCollection).FindOneAndUpdate(ctx, filter, update, opts).Decode(&offer)
	}
	if err := db.Try(operation); err != nil {
		return nil, fmt.Errorf("failed to upsert offer for buyer %s on listing %s: %w",
			buyerID.String(), listingID.String(), err)
	}

	if s.queue != nil {
		notifyErr := s.queue.EnqueueOfferNotify(ctx, OfferNotification{
			Kind:      OfferNotifySubmitted,
			ListingID: listingID,
			OfferID:   offer.ID,
			BuyerID:   buyerID,
			SellerID:  listing.SellerID,
			Amount:    amount,
		})
		if notifyErr != nil {
			log.Printf("WARN: failed to enqueue offer notification for listing %s: %v", listingID.String(), notifyErr)
		}
	}

	return &offer, nil
}

// WithdrawOffer permanently removes the buyer's open offer on a listing.
// Withdrawal is only valid while the offer has not been accepted.
func (s *offerService) WithdrawOffer(ctx context.Context, listingID, buyerID utils.SixID) error {
	res, err := s.db.Collection(offersCollection).DeleteOne(ctx, bson.M{
		"listing_id": listingID,
		"buyer_id":   buyerID,
		"accepted":   false,
	})
	if err != nil {
		return fmt.Errorf("db error withdrawing offer on listing %s: %w", listingID.String(), err)
	}
	if res.DeletedCount == 0 {
		// Classify: accepted offer, or no offer at all
		var offer models.Offer
		checkErr := s.db.Collection(offersCollection).FindOne(ctx, bson.M{
			"listing_id": listingID,
			"buyer_id":   buyerID,
		}).Decode(&offer)
		if checkErr == nil && offer.Accepted {
			return ErrOfferAlreadyAccepted
		}
		return ErrOfferNotFound
	}
	return nil
}

// ListOffers returns all open offers for a listing, oldest first. Callers
// needing the highest offer reduce over the full sequence themselves.
func (s *offerService) ListOffers(ctx context.Context, listingID utils.SixID) ([]models.Offer, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.db.Collection(offersCollection).Find(ctx, bson.M{
		"listing_id": listingID,
		"accepted":   false,
	}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query offers for listing %s: %w", listingID.String(), err)
	}
	defer cursor.Close(ctx)

	var offers []models.Offer
	if err = cursor.All(ctx, &offers); err != nil {
		return nil, fmt.Errorf("failed to decode offers for listing %s: %w", listingID.String(), err)
	}
	return offers, nil
}

// ListOffersForListings returns the open offers of several listings in one
// query, grouped by listing. Used by the seller projection's initial load.
func (s *offerService) ListOffersForListings(ctx context.Context, listingIDs []utils.SixID) (map[utils.SixID][]models.Offer, error) {
	grouped := make(map[utils.SixID][]models.Offer, len(listingIDs))
	if len(listingIDs) == 0 {
		return grouped, nil
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.db.Collection(offersCollection).Find(ctx, bson.M{
		"listing_id": bson.M{"$in": listingIDs},
		"accepted":   false,
	}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query offers for %d listings: %w", len(listingIDs), err)
	}
	defer cursor.Close(ctx)

	var offers []models.Offer
	if err = cursor.All(ctx, &offers); err != nil {
		return nil, fmt.Errorf("failed to decode grouped offers: %w", err)
	}
	for _, offer := range offers {
		grouped[offer.ListingID] = append(grouped[offer.ListingID], offer)
	}
	return grouped, nil
}

// DeleteOpenOffers removes all open offers of a listing. Best-effort cleanup
// after a listing removal, invoked from the background worker.
func (s *offerService) DeleteOpenOffers(ctx context.Context, listingID utils.SixID) (int64, error) {
	res, err := s.db.Collection(offersCollection).DeleteMany(ctx, bson.M{
		"listing_id": listingID,
		"accepted":   false,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete open offers for listing %s: %w", listingID.String(), err)
	}
	return res.DeletedCount, nil
}
