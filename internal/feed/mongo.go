package feed

import (
	"context"
	"fmt"
	"log"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mariocelzo/Target-sub000/internal/utils"
)

// mongoFeed implements Feed on MongoDB change streams.
type mongoFeed struct {
	db *mongo.Database
}

// NewMongoFeed creates a Feed backed by MongoDB change streams. The deployment
// must be a replica set (or sharded cluster) for Watch to be available.
func NewMongoFeed(db *mongo.Database) Feed {
	return &mongoFeed{db: db}
}

// changeEvent is the subset of the change stream document shape we consume.
type changeEvent struct {
	OperationType string `bson:"operationType"`
	DocumentKey   struct {
		ID utils.SixID `bson:"_id"`
	} `bson:"documentKey"`
	FullDocument bson.Raw            `bson:"fullDocument,omitempty"`
	ClusterTime  primitive.Timestamp `bson:"clusterTime"`
}

func (m *mongoFeed) Subscribe(ctx context.Context, f Filter) (*Subscription, error) {
	conds := bson.A{
		bson.M{"operationType": bson.M{"$in": bson.A{"insert", "update", "replace", "delete"}}},
	}
	if len(f.Match) > 0 {
		// Delete events have no fullDocument, so the document predicates can
		// only be applied server-side to the other operation types.
		docMatch := bson.M{}
		for k, v := range f.Match {
			docMatch["fullDocument."+k] = v
		}
		conds = append(conds, bson.M{"$or": bson.A{
			bson.M{"operationType": "delete"},
			docMatch,
		}})
	}
	pipeline := mongo.Pipeline{bson.D{{Key: "$match", Value: bson.M{"$and": conds}}}}

	streamCtx, cancel := context.WithCancel(ctx)
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	stream, err := m.db.Collection(f.Collection).Watch(streamCtx, pipeline, opts)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open change stream on %s: %w", f.Collection, err)
	}

	sub := &Subscription{
		events: make(chan Event, 64),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(sub.done)
		defer close(sub.events)
		defer stream.Close(context.Background())

		for stream.Next(streamCtx) {
			var ce changeEvent
			if err := stream.Decode(&ce); err != nil {
				log.Printf("WARN: failed to decode change event on %s: %v", f.Collection, err)
				continue
			}
			ev := Event{
				Collection: f.Collection,
				Op:         Op(ce.OperationType),
				DocID:      ce.DocumentKey.ID,
				Doc:        ce.FullDocument,
				Version:    clusterVersion(ce.ClusterTime),
			}
			select {
			case sub.events <- ev:
			case <-streamCtx.Done():
				return
			}
		}
		if err := stream.Err(); err != nil && streamCtx.Err() == nil {
			log.Printf("WARN: change stream on %s terminated: %v", f.Collection, err)
		}
	}()

	return sub, nil
}

// clusterVersion folds the cluster timestamp into a single comparable value.
// Cluster time is monotonic, so for any one document a later write always
// yields a larger version.
func clusterVersion(ts primitive.Timestamp) uint64 {
	return uint64(ts.T)<<32 | uint64(ts.I)
}
