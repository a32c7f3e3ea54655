package handlers_test

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"

	"github.com/mariocelzo/Target-sub000/internal/api/middleware"
	"github.com/mariocelzo/Target-sub000/internal/models"
	"github.com/mariocelzo/Target-sub000/internal/utils"
)

// --- Mocks ---

// MockListingService
type MockListingService struct {
	mock.Mock
}

func (m *MockListingService) CreateListing(ctx context.Context, sellerID utils.SixID, title, description, category, condition, imageKey string, price models.Price) (*models.Listing, error) {
	args := m.Called(ctx, sellerID, title, description, category, condition, imageKey, price)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Listing), args.Error(1)
}

func (m *MockListingService) FindListingByID(ctx context.Context, listingID utils.SixID) (*models.Listing, error) {
	args := m.Called(ctx, listingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Listing), args.Error(1)
}

func (m *MockListingService) FindActiveListingsBySeller(ctx context.Context, sellerID utils.SixID) ([]models.Listing, error) {
	args := m.Called(ctx, sellerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Listing), args.Error(1)
}

func (m *MockListingService) FindSoldListingsBySeller(ctx context.Context, sellerID utils.SixID) ([]models.Listing, error) {
	args := m.Called(ctx, sellerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Listing), args.Error(1)
}

func (m *MockListingService) AcceptOffer(ctx context.Context, listingID, offerID, sellerID utils.SixID) (*models.Order, error) {
	args := m.Called(ctx, listingID, offerID, sellerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockListingService) RemoveListing(ctx context.Context, listingID, sellerID utils.SixID) error {
	args := m.Called(ctx, listingID, sellerID)
	return args.Error(0)
}

func (m *MockListingService) FindOrderByID(ctx context.Context, orderID utils.SixID) (*models.Order, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockListingService) FindOrderByListingID(ctx context.Context, listingID utils.SixID) (*models.Order, error) {
	args := m.Called(ctx, listingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

// MockOfferService
type MockOfferService struct {
	mock.Mock
}

func (m *MockOfferService) SubmitOffer(ctx context.Context, listingID, buyerID utils.SixID, amount models.Price) (*models.Offer, error) {
	args := m.Called(ctx, listingID, buyerID, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Offer), args.Error(1)
}

func (m *MockOfferService) WithdrawOffer(ctx context.Context, listingID, buyerID utils.SixID) error {
	args := m.Called(ctx, listingID, buyerID)
	return args.Error(0)
}

func (m *MockOfferService) ListOffers(ctx context.Context, listingID utils.SixID) ([]models.Offer, error) {
	args := m.Called(ctx, listingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Offer), args.Error(1)
}

func (m *MockOfferService) ListOffersForListings(ctx context.Context, listingIDs []utils.SixID) (map[utils.SixID][]models.Offer, error) {
	args := m.Called(ctx, listingIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[utils.SixID][]models.Offer), args.Error(1)
}

func (m *MockOfferService) DeleteOpenOffers(ctx context.Context, listingID utils.SixID) (int64, error) {
	args := m.Called(ctx, listingID)
	return args.Get(0).(int64), args.Error(1)
}

// MockChatService
type MockChatService struct {
	mock.Mock
}

func (m *MockChatService) OpenThread(ctx context.Context, selfID, peerID utils.SixID) (*models.Thread, error) {
	args := m.Called(ctx, selfID, peerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Thread), args.Error(1)
}

func (m *MockChatService) SendMessage(ctx context.Context, threadID, senderID utils.SixID, text string) error {
	args := m.Called(ctx, threadID, senderID, text)
	return args.Error(0)
}

func (m *MockChatService) FindThreadByID(ctx context.Context, threadID utils.SixID) (*models.Thread, error) {
	args := m.Called(ctx, threadID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Thread), args.Error(1)
}

func (m *MockChatService) FindThreadsByParticipant(ctx context.Context, userID utils.SixID) ([]models.Thread, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Thread), args.Error(1)
}

// withUser stands in for AuthMiddleware in tests, injecting the session user.
func withUser(userID utils.SixID) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextKeyUserID, userID)
		c.Next()
	}
}
