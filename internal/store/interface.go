package store

import (
	"context"
	"errors"

	"github.com/lessonloop/chat-service/internal/domain"
)

// ErrDisabled is returned by the disabled store; callers treat it the
// same as any other persistence fault (log and continue).
var ErrDisabled = errors.New("durable store disabled")

// DurableStore is the boundary to the external append-only persistence
// service. Every call is at-most-one-attempt: the server never retries
// internally, and no failure here may block the relay path.
type DurableStore interface {
	SaveMessage(ctx context.Context, msg *domain.PrivateMessage) (string, error)
	GetHistory(ctx context.Context, user, contact string, limit, offset int) ([]domain.PrivateMessage, error)
	SetPresence(ctx context.Context, user string, online bool) error
	SetTyping(ctx context.Context, from, to string, isTyping bool, roomKey string) error
	Close()
}
