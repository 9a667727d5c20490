package store

import (
	"context"

	"github.com/lessonloop/chat-service/internal/domain"
)

// Disabled is the relay-only mode store: every call reports ErrDisabled
// and the pipeline degrades exactly as it would for a store outage.
type Disabled struct{}

func NewDisabled() Disabled { return Disabled{} }

func (Disabled) SaveMessage(context.Context, *domain.PrivateMessage) (string, error) {
	return "", ErrDisabled
}

func (Disabled) GetHistory(context.Context, string, string, int, int) ([]domain.PrivateMessage, error) {
	return nil, ErrDisabled
}

func (Disabled) SetPresence(context.Context, string, bool) error { return ErrDisabled }

func (Disabled) SetTyping(context.Context, string, string, bool, string) error {
	return ErrDisabled
}

func (Disabled) Close() {}
