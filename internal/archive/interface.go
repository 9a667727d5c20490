package archive

import (
	"context"

	"github.com/lessonloop/chat-service/internal/domain"
)

// MessageProducer feeds accepted messages onto the append-only archive
// stream for downstream persistence workers. Strictly best-effort: the
// pipeline logs failures and moves on.
type MessageProducer interface {
	Produce(ctx context.Context, msg *domain.PrivateMessage, roomKey string) error
	Close() error
}

// Noop is used when no brokers are configured.
type Noop struct{}

func NewNoop() Noop { return Noop{} }

func (Noop) Produce(context.Context, *domain.PrivateMessage, string) error { return nil }

func (Noop) Close() error { return nil }
