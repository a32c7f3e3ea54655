package services

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/mariocelzo/Target-sub000/internal/models"
	"github.com/mariocelzo/Target-sub000/internal/utils"
)

// IUserService defines the read-only user operations the marketplace core
// needs. Registration and profile management live outside this subsystem.
type IUserService interface {
	FindByID(ctx context.Context, userID utils.SixID) (*models.User, error)
	GetShippingProfile(ctx context.Context, userID utils.SixID) (*models.ShippingProfile, error)
}

const usersCollection = "users"

type userService struct {
	db *mongo.Database
}

// NewUserService creates a new UserService.
func NewUserService(db *mongo.Database) IUserService {
	return &userService{db: db}
}

// FindByID finds a non-deleted user by ID.
func (s *userService) FindByID(ctx context.Context, userID utils.SixID) (*models.User, error) {
	var user models.User
	err := s.db.Collection(usersCollection).FindOne(ctx, bson.M{"_id": userID, "deleted": false}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding user %s: %w", userID.String(), err)
	}
	return &user, nil
}

// GetShippingProfile returns the user's current shipping details. Called at
// acceptance time so the order can snapshot them.
func (s *userService) GetShippingProfile(ctx context.Context, userID utils.SixID) (*models.ShippingProfile, error) {
	user, err := s.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	profile := user.ShippingProfile
	return &profile, nil
}
