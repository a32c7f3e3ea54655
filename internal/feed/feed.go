package feed

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/mariocelzo/Target-sub000/internal/utils"
)

// Op identifies the kind of store mutation an event describes.
type Op string

const (
	OpInsert  Op = "insert"
	OpUpdate  Op = "update"
	OpReplace Op = "replace"
	OpDelete  Op = "delete"
)

// Event is a single change observed on a collection. Doc carries the full
// current document for inserts, updates and replaces; it is nil for deletes.
// Version is monotonic per document and is what consumers compare to discard
// stale deliveries.
type Event struct {
	Collection string
	Op         Op
	DocID      utils.SixID
	Doc        bson.Raw
	Version    uint64
}

// Filter selects the events a subscriber receives. Match holds equality
// predicates (values may also be bson.M{"$in": ...}) applied against the full
// document. Delete events cannot be matched against a document and are always
// delivered for the subscribed collection.
type Filter struct {
	Collection string
	Match      bson.M
}

// Feed is a live subscription mechanism for store mutations.
type Feed interface {
	// Subscribe opens a subscription for events matching the filter. The
	// subscription is canceled either explicitly via Cancel or when ctx is
	// done; both release the underlying stream resource.
	Subscribe(ctx context.Context, f Filter) (*Subscription, error)
}

// Subscription is a cancelable stream of change events. Events() is closed
// once the subscription has fully shut down.
type Subscription struct {
	events chan Event
	cancel func()
	once   sync.Once
	done   chan struct{}
}

// Events returns the channel events are delivered on.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Cancel stops delivery and releases the subscription's resources. It is safe
// to call more than once and from any goroutine.
func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
}

// Done is closed when the subscription has fully shut down.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}
