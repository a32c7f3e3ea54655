package realtime

import (
	"context"
	"fmt"
	"log"
	"sync"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/mariocelzo/Target-sub000/internal/feed"
	"github.com/mariocelzo/Target-sub000/internal/models"
	"github.com/mariocelzo/Target-sub000/internal/services"
	"github.com/mariocelzo/Target-sub000/internal/utils"
)

// ThreadSnapshot is one full-thread state delivered to a chat session. The
// stream carries snapshots, not diffs; consumers derive "new message" by
// comparison (see NewMessageDetector).
type ThreadSnapshot struct {
	Thread  models.Thread `json:"thread"`
	Version uint64        `json:"-"`
}

// ThreadStream is a cancelable, restartable stream of full-thread snapshots
// for one chat session. Each change to the thread document produces a fresh
// snapshot; delivery coalesces to the latest state for slow consumers.
type ThreadStream struct {
	threadID utils.SixID
	chat     services.IChatService
	feed     feed.Feed

	snaps     chan ThreadSnapshot
	cancel    context.CancelFunc
	closeOnce sync.Once
	done      chan struct{}
}

// NewThreadStream creates a snapshot stream for the given thread. Call Start
// to deliver the current state and begin following changes.
func NewThreadStream(threadID utils.SixID, chat services.IChatService, f feed.Feed) *ThreadStream {
	return &ThreadStream{
		threadID: threadID,
		chat:     chat,
		feed:     f,
		snaps:    make(chan ThreadSnapshot, 1),
		done:     make(chan struct{}),
	}
}

// Start reads the thread once, publishes it as the first snapshot, then
// follows the change feed. The stream shuts down when ctx is canceled or
// Close is called; reconnecting is just creating and starting a new stream.
func (s *ThreadStream) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	thread, err := s.chat.FindThreadByID(runCtx, s.threadID)
	if err != nil {
		cancel()
		return err
	}

	sub, err := s.feed.Subscribe(runCtx, feed.Filter{
		Collection: "threads",
		Match:      bson.M{"_id": s.threadID},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("failed to subscribe to thread %s: %w", s.threadID.String(), err)
	}

	s.push(ThreadSnapshot{Thread: *thread})
	go s.pump(runCtx, sub)
	return nil
}

// Snapshots returns the channel snapshots are delivered on. It is closed when
// the stream shuts down.
func (s *ThreadStream) Snapshots() <-chan ThreadSnapshot {
	return s.snaps
}

// Close cancels the feed subscription and stops delivery. Safe to call more
// than once.
func (s *ThreadStream) Close() {
	s.closeOnce.Do(s.cancel)
}

// Done is closed once the stream has fully shut down.
func (s *ThreadStream) Done() <-chan struct{} {
	return s.done
}

func (s *ThreadStream) pump(ctx context.Context, sub *feed.Subscription) {
	defer close(s.done)
	defer close(s.snaps)
	defer sub.Cancel()

	var lastVersion uint64
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if ev.DocID != s.threadID || ev.Op == feed.OpDelete {
				continue
			}
			if ev.Version <= lastVersion {
				continue // stale delivery
			}
			var thread models.Thread
			if err := bson.Unmarshal(ev.Doc, &thread); err != nil {
				log.Printf("WARN: failed to decode thread event %s: %v", ev.DocID.String(), err)
				continue
			}
			lastVersion = ev.Version
			s.push(ThreadSnapshot{Thread: thread, Version: ev.Version})
		}
	}
}

// push delivers a snapshot with latest-wins coalescing.
func (s *ThreadStream) push(snap ThreadSnapshot) {
	select {
	case s.snaps <- snap:
		return
	default:
	}
	select {
	case <-s.snaps:
	default:
	}
	select {
	case s.snaps <- snap:
	default:
	}
}

// NewMessageDetector turns a stream of thread snapshots into at-most-once
// "new incoming message" notifications. Repeated delivery of the same
// snapshot produces no duplicate notifications.
type NewMessageDetector struct {
	selfID utils.SixID
	seen   int
}

// NewNewMessageDetector creates a detector for the given session user.
func NewNewMessageDetector(selfID utils.SixID) *NewMessageDetector {
	return &NewMessageDetector{selfID: selfID}
}

// Incoming returns the messages from the snapshot that are new since the last
// call and were sent by the peer. Messages are append-only, so anything past
// the watermark is new; the watermark advances regardless of sender.
func (d *NewMessageDetector) Incoming(t models.Thread) []models.Message {
	if len(t.Messages) <= d.seen {
		return nil
	}
	fresh := t.Messages[d.seen:]
	d.seen = len(t.Messages)

	var incoming []models.Message
	for _, m := range fresh {
		if m.SenderID != d.selfID {
			incoming = append(incoming, m)
		}
	}
	return incoming
}
