package service

import (
	"context"

	"github.com/lessonloop/chat-service/internal/domain"
	"github.com/lessonloop/chat-service/internal/hub"
)

type ChatService interface {
	HandleConnect(ctx context.Context, client *hub.Client) error
	HandlePrivateMessage(ctx context.Context, client *hub.Client, payload *domain.PrivateMessagePayload) error
	HandleTyping(ctx context.Context, client *hub.Client, to string, isTyping bool) error
	HandleMarkAsRead(ctx context.Context, client *hub.Client, messageID, senderEmail string) error
	HandleChatHistory(ctx context.Context, client *hub.Client, contactEmail string, limit, offset int) error
	HandleDeparture(identifier string)
	Stop() error
}
