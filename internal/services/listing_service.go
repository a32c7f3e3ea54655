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
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/mariocelzo/Target-sub000/internal/config"
	"github.com/mariocelzo/Target-sub000/internal/db"
	"github.com/mariocelzo/Target-sub000/internal/models"
	"github.com/mariocelzo/Target-sub000/internal/utils"
)

// IListingService owns listing state transitions (Active -> Sold, Active ->
// Removed) and the accept-offer protocol that converts a listing into an
// order.
type IListingService interface {
	CreateListing(ctx context.Context, sellerID utils.SixID, title, description, category, condition, imageKey string, price models.Price) (*models.Listing, error)
	FindListingByID(ctx context.Context, listingID utils.SixID) (*models.Listing, error)
	FindActiveListingsBySeller(ctx context.Context, sellerID utils.SixID) ([]models.Listing, error)
	FindSoldListingsBySeller(ctx context.Context, sellerID utils.SixID) ([]models.Listing, error)
	AcceptOffer(ctx context.Context, listingID, offerID, sellerID utils.SixID) (*models.Order, error)
	RemoveListing(ctx context.Context, listingID, sellerID utils.SixID) error
	FindOrderByID(ctx context.Context, orderID utils.SixID) (*models.Order, error)
	FindOrderByListingID(ctx context.Context, listingID utils.SixID) (*models.Order, error)
}

const (
	listingsCollection = "listings"
	ordersCollection   = "orders"
)

type listingService struct {
	db          *mongo.Database
	cfg         *config.Config
	userService IUserService
	queue       ITaskQueue
}

// NewListingService creates a new ListingService. queue may be nil to disable
// background cleanup/notification tasks.
func NewListingService(database *mongo.Database, cfg *config.Config, userService IUserService, queue ITaskQueue) IListingService {
	return &listingService{db: database, cfg: cfg, userService: userService, queue: queue}
}

// CreateListing publishes a new active listing for the seller.
func (s *listingService) CreateListing(ctx context.Context, sellerID utils.SixID, title, description, category, condition, imageKey string, price models.Price) (*models.Listing, error) {
	if title == "" {
		return nil, fmt.Errorf("listing title must not be empty")
	}
	if price.Value <= 0 {
		return nil, fmt.Errorf("listing price must be positive")
	}

	now := time.Now().UTC()
	var listing *models.Listing

	operation := func() error {
		listing = &models.Listing{
			SellerID:    sellerID,
			Title:       title,
			Description: description,
			Price:       price,
			Category:    category,
			Condition:   condition,
			ImageKey:    imageKey,
			Sold:        false,
			Removed:     false,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		listing.GenIDIfEmpty()
		_, insertErr := s.db.Collection(listingsCollection).InsertOne(ctx, listing)
		return insertErr
	}

	if err := db.Try(operation); err != nil {
		return nil, fmt.Errorf("failed to insert listing for seller %s after multiple retries: %w",
			sellerID.String(), err)
	}
	return listing, nil
}

// FindListingByID finds a non-removed listing by its ID. It does NOT check
// ownership.
func (s *listingService) FindListingByID(ctx context.Context, listingID utils.SixID) (*models.Listing, error) {
	var listing models.Listing
	err := s.db.Collection(listingsCollection).FindOne(ctx, bson.M{
		"_id":     listingID,
		"removed": false,
	}).Decode(&listing)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding listing %s: %w", listingID.String(), err)
	}
	return &listing, nil
}

// FindActiveListingsBySeller returns the seller's active (not sold, not
// removed) listings, newest first.
func (s *listingService) FindActiveListingsBySeller(ctx context.Context, sellerID utils.SixID) ([]models.Listing, error) {
	return s.findListingsBySeller(ctx, bson.M{"seller_id": sellerID, "sold": false, "removed": false},
		bson.D{{Key: "created_at", Value: -1}})
}

// FindSoldListingsBySeller returns the seller's sold listings, most recently
// sold first.
func (s *listingService) FindSoldListingsBySeller(ctx context.Context, sellerID utils.SixID) ([]models.Listing, error) {
	return s.findListingsBySeller(ctx, bson.M{"seller_id": sellerID, "sold": true},
		bson.D{{Key: "sold_at", Value: -1}})
}

func (s *listingService) findListingsBySeller(ctx context.Context, filter bson.M, sort bson.D) ([]models.Listing, error) {
	opts := options.Find().SetSort(sort)
	cursor, err := s.db.Collection(listingsCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query seller listings: %w", err)
	}
	defer cursor.Close(ctx)

	var listings []models.Listing
	if err = cursor.All(ctx, &listings); err != nil {
		return nil, fmt.Errorf("failed to decode seller listings: %w", err)
	}
	return listings, nil
}

// AcceptOffer converts exactly one offer into a sale: the listing becomes
// Sold at the accepted amount, the offer is marked accepted, and an order
// snapshotting the buyer's shipping profile is created. All four effects
// commit as a single multi-document transaction; on write conflict with a
// concurrent acceptance the transaction is retried a bounded number of times
// before surfacing ErrConcurrentAcceptanceConflict.
func (s *listingService) AcceptOffer(ctx context.Context, listingID, offerID, sellerID utils.SixID) (*models.Order, error) {
	maxRetries := s.cfg.AcceptMaxRetries
	if maxRetries <= 0 {
		maxRetries = db.DefaultMaxRetries
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		order, err := s.acceptOnce(ctx, listingID, offerID, sellerID)
		if err == nil {
			s.notifyAccepted(ctx, order)
			return order, nil
		}
		if isAcceptancePreconditionError(err) {
			return nil, err
		}
		if !db.IsTransientTxnError(err) {
			return nil, fmt.Errorf("acceptance transaction failed for listing %s: %w", listingID.String(), err)
		}
		lastErr = err
		time.Sleep(time.Duration(50*(attempt+1)) * time.Millisecond)
	}

	log.Printf("WARN: acceptance of offer %s on listing %s exhausted %d retries: %v",
		offerID.String(), listingID.String(), maxRetries, lastErr)
	return nil, ErrConcurrentAcceptanceConflict
}

// acceptOnce runs a single attempt of the acceptance transaction.
func (s *listingService) acceptOnce(ctx context.Context, listingID, offerID, sellerID utils.SixID) (*models.Order, error) {
	session, err := s.db.Client().StartSession()
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	txnOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	var order *models.Order
	err = mongo.WithSession(ctx, session, func(sc mongo.SessionContext) error {
		if err := session.StartTransaction(txnOpts); err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}
		created, bodyErr := s.acceptBody(sc, listingID, offerID, sellerID)
		if bodyErr != nil {
			_ = session.AbortTransaction(sc)
			return bodyErr
		}
		if commitErr := session.CommitTransaction(sc); commitErr != nil {
			return commitErr
		}
		order = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// acceptBody performs the reads and writes of the acceptance inside the
// transaction's session context. Every precondition is re-checked here so a
// retry starts from fresh state.
func (s *listingService) acceptBody(sc mongo.SessionContext, listingID, offerID, sellerID utils.SixID) (*models.Order, error) {
	var listing models.Listing
	err := s.db.Collection(listingsCollection).FindOne(sc, bson.M{
		"_id":     listingID,
		"removed": false,
	}).Decode(&listing)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrListingUnavailable
		}
		return nil, fmt.Errorf("error reading listing %s in transaction: %w", listingID.String(), err)
	}
	if listing.SellerID != sellerID {
		return nil, ErrForbidden
	}
	if listing.Sold {
		return nil, ErrListingAlreadySold
	}

	var offer models.Offer
	err = s.db.Collection(offersCollection).FindOne(sc, bson.M{
		"_id":        offerID,
		"listing_id": listingID,
	}).Decode(&offer)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrOfferNotFound
		}
		return nil, fmt.Errorf("error reading offer %s in transaction: %w", offerID.String(), err)
	}
	if offer.Accepted {
		return nil, ErrOfferAlreadyAccepted
	}

	shipping, err := s.userService.GetShippingProfile(sc, offer.BuyerID)
	if err != nil {
		return nil, fmt.Errorf("failed to read shipping profile of buyer %s: %w", offer.BuyerID.String(), err)
	}

	now := time.Now().UTC()

	// The sold flag is the linearization point: the conditional update fails
	// for every concurrent acceptance but the first to commit.
	res, err := s.db.Collection(listingsCollection).UpdateOne(sc,
		bson.M{"_id": listingID, "sold": false},
		bson.M{"$set": bson.M{
			"sold":       true,
			"sold_at":    now,
			"price":      offer.Amount,
			"updated_at": now,
		}})
	if err != nil {
		return nil, fmt.Errorf("failed to mark listing %s sold: %w", listingID.String(), err)
	}
	if res.MatchedCount == 0 {
		return nil, ErrListingAlreadySold
	}

	res, err = s.db.Collection(offersCollection).UpdateOne(sc,
		bson.M{"_id": offerID, "accepted": false},
		bson.M{"$set": bson.M{"accepted": true, "updated_at": now}})
	if err != nil {
		return nil, fmt.Errorf("failed to mark offer %s accepted: %w", offerID.String(), err)
	}
	if res.MatchedCount == 0 {
		return nil, ErrOfferAlreadyAccepted
	}

	order := &models.Order{
		ListingID: listingID,
		BuyerID:   offer.BuyerID,
		SellerID:  sellerID,
		Amount:    offer.Amount,
		Quantity:  1,
		Shipping:  models.ShippingSnapshotFromProfile(*shipping),
		CreatedAt: now,
	}
	order.GenIDIfEmpty()
	if _, err := s.db.Collection(ordersCollection).InsertOne(sc, order); err != nil {
		return nil, fmt.Errorf("failed to insert order for listing %s: %w", listingID.String(), err)
	}
	return order, nil
}

func (s *listingService) notifyAccepted(ctx context.Context, order *models.Order) {
	if s.queue == nil {
		return
	}
	err := s.queue.EnqueueOfferNotify(ctx, OfferNotification{
		Kind:      OfferNotifyAccepted,
		ListingID: order.ListingID,
		BuyerID:   order.BuyerID,
		SellerID:  order.SellerID,
		Amount:    order.Amount,
	})
	if err != nil {
		log.Printf("WARN: failed to enqueue acceptance notification for listing %s: %v",
			order.ListingID.String(), err)
	}
}

// isAcceptancePreconditionError reports whether the error is a typed
// precondition failure that should surface to the caller without retrying.
func isAcceptancePreconditionError(err error) bool {
	return errors.Is(err, ErrListingUnavailable) ||
		errors.Is(err, ErrListingAlreadySold) ||
		errors.Is(err, ErrOfferNotFound) ||
		errors.Is(err, ErrOfferAlreadyAccepted) ||
		errors.Is(err, ErrForbidden)
}

// RemoveListing is the seller's unilateral withdrawal of an active listing.
// The listing reaches its Removed terminal state and its open offers are
// cleaned up best-effort (via the background worker when available).
func (s *listingService) RemoveListing(ctx context.Context, listingID, sellerID utils.SixID) error {
	now := time.Now().UTC()
	res, err := s.db.Collection(listingsCollection).UpdateOne(ctx,
		bson.M{
			"_id":       listingID,
			"seller_id": sellerID,
			"sold":      false,
			"removed":   false,
		},
		bson.M{"$set": bson.M{
			"removed":    true,
			"removed_at": now,
			"updated_at": now,
		}})
	if err != nil {
		return fmt.Errorf("db error removing listing %s: %w", listingID.String(), err)
	}
	if res.MatchedCount == 0 {
		// Classify why the conditional update missed
		var listing models.Listing
		checkErr := s.db.Collection(listingsCollection).FindOne(ctx, bson.M{"_id": listingID}).Decode(&listing)
		if errors.Is(checkErr, mongo.ErrNoDocuments) {
			return ErrListingUnavailable
		}
		if checkErr != nil {
			return fmt.Errorf("error re-reading listing %s: %w", listingID.String(), checkErr)
		}
		if listing.SellerID != sellerID {
			return ErrForbidden
		}
		if listing.Sold {
			return ErrListingAlreadySold
		}
		return ErrListingUnavailable
	}

	if s.queue != nil {
		if err := s.queue.EnqueueOfferCleanup(ctx, listingID); err != nil {
			log.Printf("WARN: failed to enqueue offer cleanup for listing %s: %v", listingID.String(), err)
		}
		return nil
	}

	// No worker available: clean up inline, still best-effort.
	if _, err := s.db.Collection(offersCollection).DeleteMany(ctx, bson.M{
		"listing_id": listingID,
		"accepted":   false,
	}); err != nil {
		log.Printf("WARN: inline offer cleanup for listing %s failed: %v", listingID.String(), err)
	}
	return nil
}

// FindOrderByID fetches an order by its ID.
func (s *listingService) FindOrderByID(ctx context.Context, orderID utils.SixID) (*models.Order, error) {
	var order models.Order
	err := s.db.Collection(ordersCollection).FindOne(ctx, bson.M{"_id": orderID}).Decode(&order)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("error finding order %s: %w", orderID.String(), err)
	}
	return &order, nil
}

// FindOrderByListingID fetches the order created for a sold listing.
func (s *listingService) FindOrderByListingID(ctx context.Context, listingID utils.SixID) (*models.Order, error) {
	var order models.Order
	err := s.db.Collection(ordersCollection).FindOne(ctx, bson.M{"listing_id": listingID}).Decode(&order)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("error finding order for listing %s: %w", listingID.String(), err)
	}
	return &order, nil
}
