package feed

import (
	"bytes"
	"context"
	"fmt"
	"reflect"
	"sync"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/mariocelzo/Target-sub000/internal/utils"
)

// MemoryFeed is an in-process Feed used by tests and by local runs that have
// no replica set to open change streams against. Producers call Publish after
// each store write; subscribers see the same Event shape the Mongo feed
// produces, with versions from a process-local monotonic counter.
type MemoryFeed struct {
	mu   sync.Mutex
	subs map[*Subscription]Filter
	seq  uint64
}

// NewMemoryFeed creates an empty in-memory feed.
func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{subs: make(map[*Subscription]Filter)}
}

func (m *MemoryFeed) Subscribe(ctx context.Context, f Filter) (*Subscription, error) {
	sub := &Subscription{
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}
	sub.cancel = func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, sub)
		close(sub.events)
		close(sub.done)
	}

	m.mu.Lock()
	m.subs[sub] = f
	m.mu.Unlock()

	if ctx != nil {
		go func() {
			select {
			case <-ctx.Done():
				sub.Cancel()
			case <-sub.done:
			}
		}()
	}

	return sub, nil
}

// Publish fans an event out to every matching subscriber. doc may be nil for
// deletes. Slow subscribers with a full buffer miss the event rather than
// blocking the publisher.
func (m *MemoryFeed) Publish(collection string, op Op, id utils.SixID, doc interface{}) error {
	var raw bson.Raw
	if doc != nil {
		b, err := bson.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to marshal feed document: %w", err)
		}
		raw = bson.Raw(b)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	ev := Event{
		Collection: collection,
		Op:         op,
		DocID:      id,
		Doc:        raw,
		Version:    m.seq,
	}

	for sub, f := range m.subs {
		if f.Collection != collection {
			continue
		}
		if op != OpDelete && !matchDocument(raw, f.Match) {
			continue
		}
		select {
		case sub.events <- ev:
		default:
		}
	}
	return nil
}

// matchDocument applies the filter's equality (and $in) predicates to a raw
// document, mirroring what the change stream pipeline does server-side.
func matchDocument(doc bson.Raw, match bson.M) bool {
	for key, want := range match {
		val, err := doc.LookupErr(key)
		if err != nil {
			return false
		}
		if in, ok := inClause(want); ok {
			if !anyRawEqual(val, in) {
				return false
			}
			continue
		}
		if !rawEqual(val, want) {
			return false
		}
	}
	return true
}

func inClause(want interface{}) (reflect.Value, bool) {
	clause, ok := want.(bson.M)
	if !ok {
		return reflect.Value{}, false
	}
	arr, ok := clause["$in"]
	if !ok {
		return reflect.Value{}, false
	}
	rv := reflect.ValueOf(arr)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return reflect.Value{}, false
	}
	return rv, true
}

func anyRawEqual(val bson.RawValue, candidates reflect.Value) bool {
	for i := 0; i < candidates.Len(); i++ {
		if rawEqual(val, candidates.Index(i).Interface()) {
			return true
		}
	}
	return false
}

func rawEqual(val bson.RawValue, want interface{}) bool {
	t, b, err := bson.MarshalValue(want)
	if err != nil {
		return false
	}
	return val.Type == t && bytes.Equal(val.Value, b)
}
