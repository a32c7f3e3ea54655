package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mariocelzo/Target-sub000/internal/db"
	"github.com/mariocelzo/Target-sub000/internal/models"
	"github.com/mariocelzo/Target-sub000/internal/utils"
)

// IChatService coordinates chat threads between pairs of users: deduplicated
// thread creation and append-only message delivery.
type IChatService interface {
	OpenThread(ctx context.Context, selfID, peerID utils.SixID) (*models.Thread, error)
	SendMessage(ctx context.Context, threadID, senderID utils.SixID, text string) error
	FindThreadByID(ctx context.Context, threadID utils.SixID) (*models.Thread, error)
	FindThreadsByParticipant(ctx context.Context, userID utils.SixID) ([]models.Thread, error)
}

const threadsCollection = "threads"

type chatService struct {
	db *mongo.Database
}

// NewChatService creates a new ChatService.
func NewChatService(database *mongo.Database) IChatService {
	return &chatService{db: database}
}

// OpenThread returns the thread between the two participants, creating it if
// none exists. The canonical pair key plus its unique index make this safe
// under concurrent opens from both sides: both calls resolve to the same
// document regardless of argument order.
func (s *chatService) OpenThread(ctx context.Context, selfID, peerID utils.SixID) (*models.Thread, error) {
	if selfID == peerID || selfID.IsZero() || peerID.IsZero() {
		return nil, ErrThreadParticipantInvalid
	}

	lo, hi := models.SortParticipants(selfID, peerID)
	pairKey := models.ThreadPairKey(selfID, peerID)
	now := time.Now().UTC()

	filter := bson.M{"pair_key": pairKey}
	update := bson.M{
		"$setOnInsert": bson.M{
			"_id":           utils.NewSixID(),
			"pair_key":      pairKey,
			"participant_a": lo,
			"participant_b": hi,
			"messages":      []models.Message{},
			"created_at":    now,
			"updated_at":    now,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var thread models.Thread
	operation := func() error {
		return s.db.Collection(threadsCollection).FindOneAndUpdate(ctx, filter, update, opts).Decode(&thread)
	}
	if err := db.Try(operation); err != nil {
		return nil, fmt.Errorf("failed to open thread %s: %w", pairKey, err)
	}
	return &thread, nil
}

// SendMessage appends a message to the thread. Messages are append-only; the
// array push is atomic, so insertion order as observed by the store is the
// thread's message order.
func (s *chatService) SendMessage(ctx context.Context, threadID, senderID utils.SixID, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	thread, err := s.FindThreadByID(ctx, threadID)
	if err != nil {
		return err
	}
	if !thread.HasParticipant(senderID) {
		return ErrThreadParticipantInvalid
	}

	now := time.Now().UTC()
	message := models.Message{
		SenderID: senderID,
		Text:     text,
		SentAt:   now,
	}
	res, err := s.db.Collection(threadsCollection).UpdateOne(ctx,
		bson.M{"_id": threadID},
		bson.M{
			"$push": bson.M{"messages": message},
			"$set":  bson.M{"updated_at": now},
		})
	if err != nil {
		return fmt.Errorf("failed to append message to thread %s: %w", threadID.String(), err)
	}
	if res.MatchedCount == 0 {
		return ErrThreadNotFound
	}
	return nil
}

// FindThreadByID fetches a thread by its ID.
func (s *chatService) FindThreadByID(ctx context.Context, threadID utils.SixID) (*models.Thread, error) {
	var thread models.Thread
	err := s.db.Collection(threadsCollection).FindOne(ctx, bson.M{"_id": threadID}).Decode(&thread)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrThreadNotFound
		}
		return nil, fmt.Errorf("error finding thread %s: %w", threadID.String(), err)
	}
	return &thread, nil
}

// FindThreadsByParticipant returns every thread the user takes part in, most
// recently active first.
func (s *chatService) FindThreadsByParticipant(ctx context.Context, userID utils.SixID) ([]models.Thread, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	cursor, err := s.db.Collection(threadsCollection).Find(ctx, bson.M{
		"$or": bson.A{
			bson.M{"participant_a": userID},
			bson.M{"participant_b": userID},
		},
	}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query threads for user %s: %w", userID.String(), err)
	}
	defer cursor.Close(ctx)

	var threads []models.Thread
	if err = cursor.All(ctx, &threads); err != nil {
		return nil, fmt.Errorf("failed to decode threads for user %s: %w", userID.String(), err)
	}
	return threads, nil
}
