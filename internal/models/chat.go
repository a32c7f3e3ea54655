package models

import (
	"bytes"
	"fmt"
	"time"

	"github.com/mariocelzo/Target-sub000/internal/utils"
)

// Message is a single chat message. Messages within a thread are append-only
// and ordered by their position in the thread's array, which reflects
// insertion order as observed by the store.
type Message struct {
	SenderID utils.SixID `bson:"sender_id" json:"sender_id"`
	Text     string      `bson:"text" json:"text"`
	SentAt   time.Time   `bson:"sent_at" json:"sent_at"`
}

// Thread is a chat conversation between two participants. Exactly one thread
// exists per unordered participant pair: PairKey is derived from the sorted
// pair of IDs and carries a unique index, so concurrent opens from either
// side resolve to the same document.
type Thread struct {
	Base         `bson:",inline"`
	PairKey      string      `bson:"pair_key" json:"-"`
	ParticipantA utils.SixID `bson:"participant_a" json:"participant_a"`
	ParticipantB utils.SixID `bson:"participant_b" json:"participant_b"`
	Messages     []Message   `bson:"messages" json:"messages"`
	CreatedAt    time.Time   `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time   `bson:"updated_at" json:"updated_at"`
}

// HasParticipant reports whether the given user is one of the thread's two
// participants.
func (t *Thread) HasParticipant(userID utils.SixID) bool {
	return t.ParticipantA == userID || t.ParticipantB == userID
}

// Peer returns the other participant of the thread relative to selfID.
func (t *Thread) Peer(selfID utils.SixID) utils.SixID {
	if t.ParticipantA == selfID {
		return t.ParticipantB
	}
	return t.ParticipantA
}

// SortParticipants returns the pair in canonical (byte-wise ascending) order.
func SortParticipants(a, b utils.SixID) (utils.SixID, utils.SixID) {
	if bytes.Compare(a[:], b[:]) > 0 {
		return b, a
	}
	return a, b
}

// ThreadPairKey derives the canonical, order-independent key for a
// participant pair. ThreadPairKey(a, b) == ThreadPairKey(b, a).
func ThreadPairKey(a, b utils.SixID) string {
	lo, hi := SortParticipants(a, b)
	return fmt.Sprintf("%s:%s", lo.String(), hi.String())
}
