package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/mariocelzo/Target-sub000/internal/db"
	"github.com/mariocelzo/Target-sub000/internal/models"
	"github.com/mariocelzo/Target-sub000/internal/utils"
)

func setupTestDBOffers(t *testing.T, dbName string) *mongo.Database {
	database := utils.SetupTestDB(t, dbName, "listings", "offers", "orders", "users")
	require.NoError(t, db.EnsureIndexes(context.Background(), database))
	return database
}

func createTestUser(t *testing.T, database *mongo.Database, name string) utils.SixID {
	t.Helper()
	userID := utils.NewSixID()
	user := models.User{
		Base:  models.Base{ID: userID},
		Name:  name,
		Email: name + "@example.com",
		ShippingProfile: models.ShippingProfile{
			FullName: name,
			Address:  "Via Roma 1",
			City:     "Salerno",
			ZipCode:  "84121",
			Province: "SA",
		},
		NotificationPreferences: models.NotificationPreferences{Offer: true, Chat: true},
		CreatedAt:               time.Now().UTC(),
		UpdatedAt:               time.Now().UTC(),
	}
	_, err := database.Collection("users").InsertOne(context.Background(), user)
	require.NoError(t, err)
	return userID
}

func createTestListing(t *testing.T, database *mongo.Database, sellerID utils.SixID, price float64) *models.Listing {
	t.Helper()
	svc := NewListingService(database, testConfig(), NewUserService(database), nil)
	listing, err := svc.CreateListing(context.Background(), sellerID,
		"Vintage road bike", "Well kept, some scratches", "sports", "used", "",
		models.Price{Value: price, CurrencyCode: "EUR"})
	require.NoError(t, err)
	return listing
}

func TestOfferService_SubmitAndUpsert(t *testing.T) {
	database := setupTestDBOffers(t, "testdb_offer_submit")
	svc := NewOfferService(database, nil)
	ctx := context.Background()

	sellerID := createTestUser(t, database, "seller")
	buyerID := createTestUser(t, database, "buyer")
	listing := createTestListing(t, database, sellerID, 100)

	first, err := svc.SubmitOffer(ctx, listing.ID, buyerID, models.Price{Value: 60, CurrencyCode: "EUR"})
	require.NoError(t, err)
	assert.Equal(t, 60.0, first.Amount.Value)
	assert.False(t, first.Accepted)

	// Re-submitting replaces the amount on the same document
	second, err := svc.SubmitOffer(ctx, listing.ID, buyerID, models.Price{Value: 75, CurrencyCode: "EUR"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 75.0, second.Amount.Value)

	offers, err := svc.ListOffers(ctx, listing.ID)
	require.NoError(t, err)
	assert.Len(t, offers, 1)
	assert.Equal(t, 75.0, offers[0].Amount.Value)
}

func TestOfferService_SubmitValidation(t *testing.T) {
	database := setupTestDBOffers(t, "testdb_offer_validation")
	svc := NewOfferService(database, nil)
	ctx := context.Background()

	sellerID := createTestUser(t, database, "seller")
	buyerID := createTestUser(t, database, "buyer")
	listing := createTestListing(t, database, sellerID, 100)

	// Above asking price
	_, err := svc.SubmitOffer(ctx, listing.ID, buyerID, models.Price{Value: 150, CurrencyCode: "EUR"})
	assert.ErrorIs(t, err, ErrInvalidOffer)

	// Non-positive
	_, err = svc.SubmitOffer(ctx, listing.ID, buyerID, models.Price{Value: 0, CurrencyCode: "EUR"})
	assert.ErrorIs(t, err, ErrInvalidOffer)

	// Currency mismatch
	_, err = svc.SubmitOffer(ctx, listing.ID, buyerID, models.Price{Value: 50, CurrencyCode: "USD"})
	assert.ErrorIs(t, err, ErrInvalidOffer)

	// Exactly the asking price is allowed
	_, err = svc.SubmitOffer(ctx, listing.ID, buyerID, models.Price{Value: 100, CurrencyCode: "EUR"})
	assert.NoError(t, err)

	// Unknown listing
	_, err = svc.SubmitOffer(ctx, utils.NewSixID(), buyerID, models.Price{Value: 50, CurrencyCode: "EUR"})
	assert.ErrorIs(t, err, ErrListingUnavailable)
}

func TestOfferService_SubmitOnRemovedListing(t *testing.T) {
	database := setupTestDBOffers(t, "testdb_offer_removed_listing")
	offerSvc := NewOfferService(database, nil)
	listingSvc := NewListingService(database, testConfig(), NewUserService(database), nil)
	ctx := context.Background()

	sellerID := createTestUser(t, database, "seller")
	buyerID := createTestUser(t, database, "buyer")
	listing := createTestListing(t, database, sellerID, 100)

	require.NoError(t, listingSvc.RemoveListing(ctx, listing.ID, sellerID))

	_, err := offerSvc.SubmitOffer(ctx, listing.ID, buyerID, models.Price{Value: 50, CurrencyCode: "EUR"})
	assert.ErrorIs(t, err, ErrListingUnavailable)
}

func TestOfferService_Withdraw(t *testing.T) {
	database := setupTestDBOffers(t, "testdb_offer_withdraw")
	svc := NewOfferService(database, nil)
	ctx := context.Background()

	sellerID := createTestUser(t, database, "seller")
	buyerID := createTestUser(t, database, "buyer")
	listing := createTestListing(t, database, sellerID, 100)

	_, err := svc.SubmitOffer(ctx, listing.ID, buyerID, models.Price{Value: 40, CurrencyCode: "EUR"})
	require.NoError(t, err)

	require.NoError(t, svc.WithdrawOffer(ctx, listing.ID, buyerID))

	offers, err := svc.ListOffers(ctx, listing.ID)
	require.NoError(t, err)
	assert.Empty(t, offers)

	// Withdrawing again reports no offer
	err = svc.WithdrawOffer(ctx, listing.ID, buyerID)
	assert.ErrorIs(t, err, ErrOfferNotFound)
}

func TestOfferService_WithdrawAcceptedOffer(t *testing.T) {
	database := setupTestDBOffers(t, "testdb_offer_withdraw_accepted")
	svc := NewOfferService(database, nil)
	ctx := context.Background()

	sellerID := createTestUser(t, database, "seller")
	buyerID := createTestUser(t, database, "buyer")
	listing := createTestListing(t, database, sellerID, 100)

	offer, err := svc.SubmitOffer(ctx, listing.ID, buyerID, models.Price{Value: 40, CurrencyCode: "EUR"})
	require.NoError(t, err)

	// Mark accepted directly; the full acceptance path is covered by the
	// listing service tests.
	_, err = database.Collection("offers").UpdateByID(ctx, offer.ID,
		map[string]interface{}{"$set": map[string]interface{}{"accepted": true}})
	require.NoError(t, err)

	err = svc.WithdrawOffer(ctx, listing.ID, buyerID)
	assert.ErrorIs(t, err, ErrOfferAlreadyAccepted)
}

func TestOfferService_DeleteOpenOffers(t *testing.T) {
	database := setupTestDBOffers(t, "testdb_offer_cleanup")
	svc := NewOfferService(database, nil)
	ctx := context.Background()

	sellerID := createTestUser(t, database, "seller")
	listing := createTestListing(t, database, sellerID, 100)

	for i := 0; i < 3; i++ {
		buyerID := createTestUser(t, database, "buyer")
		_, err := svc.SubmitOffer(ctx, listing.ID, buyerID, models.Price{Value: 10 + float64(i), CurrencyCode: "EUR"})
		require.NoError(t, err)
	}

	deleted, err := svc.DeleteOpenOffers(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	offers, err := svc.ListOffers(ctx, listing.ID)
	require.NoError(t, err)
	assert.Empty(t, offers)
}

func TestOfferService_ListOffersForListings(t *testing.T) {
	database := setupTestDBOffers(t, "testdb_offer_grouped")
	svc := NewOfferService(database, nil)
	ctx := context.Background()

	sellerID := createTestUser(t, database, "seller")
	buyerID := createTestUser(t, database, "buyer")
	first := createTestListing(t, database, sellerID, 100)
	second := createTestListing(t, database, sellerID, 200)

	_, err := svc.SubmitOffer(ctx, first.ID, buyerID, models.Price{Value: 50, CurrencyCode: "EUR"})
	require.NoError(t, err)
	_, err = svc.SubmitOffer(ctx, second.ID, buyerID, models.Price{Value: 120, CurrencyCode: "EUR"})
	require.NoError(t, err)

	grouped, err := svc.ListOffersForListings(ctx, []utils.SixID{first.ID, second.ID})
	require.NoError(t, err)
	assert.Len(t, grouped[first.ID], 1)
	assert.Len(t, grouped[second.ID], 1)

	empty, err := svc.ListOffersForListings(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
