package domain

import (
	"fmt"
	"time"
)

// Room is in-memory metadata for a two-party conversation. Message
// storage lives in the durable store; rooms only exist so the server
// can stamp relayed traffic with booking context and track activity.
type Room struct {
	Key            string
	ParticipantA   string
	ParticipantB   string
	BookingRef     string
	SubjectTitle   string
	CreatedAt      time.Time
	LastActivityAt time.Time
}

// RoomKey derives the canonical key for the unordered pair {u1, u2}.
// The pair is sorted before composing so RoomKey(a, b) == RoomKey(b, a).
func RoomKey(u1, u2 string) (string, error) {
	if u1 == "" || u2 == "" {
		return "", fmt.Errorf("room key requires two non-empty identifiers")
	}
	a, b := u1, u2
	if b < a {
		a, b = b, a
	}
	return fmt.Sprintf("room_%s_%s", a, b), nil
}

// NewRoom builds the metadata record for a participant pair. The caller
// is expected to have validated both identifiers via RoomKey first.
func NewRoom(key, u1, u2 string) *Room {
	a, b := u1, u2
	if b < a {
		a, b = b, a
	}
	now := time.Now().UTC()
	return &Room{
		Key:            key,
		ParticipantA:   a,
		ParticipantB:   b,
		CreatedAt:      now,
		LastActivityAt: now,
	}
}
