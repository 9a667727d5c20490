package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lessonloop/chat-service/internal/archive"
	"github.com/lessonloop/chat-service/internal/audit"
	"github.com/lessonloop/chat-service/internal/domain"
	"github.com/lessonloop/chat-service/internal/hub"
	"github.com/lessonloop/chat-service/internal/registry"
	"github.com/lessonloop/chat-service/internal/store"
	"github.com/lessonloop/chat-service/pkg/log"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

type chatService struct {
	hub          *hub.Hub
	store        store.DurableStore
	producer     archive.MessageProducer
	mirror       registry.PresenceMirror
	storeTimeout time.Duration
}

func NewChatService(
	h *hub.Hub,
	durable store.DurableStore,
	producer archive.MessageProducer,
	mirror registry.PresenceMirror,
	storeTimeout time.Duration,
) ChatService {
	return &chatService{
		hub:          h,
		store:        durable,
		producer:     producer,
		mirror:       mirror,
		storeTimeout: storeTimeout,
	}
}

// HandleConnect installs the client in the registry and confirms the
// claimed identity back to it. A displaced connection has already been
// force-closed by the hub when this returns.
func (s *chatService) HandleConnect(ctx context.Context, c *hub.Client) error {
	displaced := s.hub.Register(c)
	if displaced {
		audit.Log(ctx, audit.ActionDisplace, c.Identifier, "newer connection replaced an existing one")
	} else {
		audit.Log(ctx, audit.ActionConnect, c.Identifier, "user connected")
	}

	if err := s.mirror.SetOnline(ctx, c.Identifier); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Str(log.FieldUserID, c.Identifier).Err(err).Msg("failed to mirror online presence")
	}
	s.setStoredPresence(ctx, c.Identifier, true)

	return c.SendMessage(&domain.AuthenticatedMessage{
		Type:  domain.MsgTypeAuthenticated,
		Email: c.Identifier,
	})
}

// HandlePrivateMessage runs the full pipeline: validate, persist
// best-effort, room bookkeeping, relay, acknowledge. Persistence and
// relay outcomes are independent; only validation fails the send.
func (s *chatService) HandlePrivateMessage(ctx context.Context, c *hub.Client, p *domain.PrivateMessagePayload) error {
	if p.To == "" || strings.TrimSpace(p.Text) == "" {
		return c.SendMessage(domain.NewErrorReceipt("Invalid message format"))
	}

	msgType := p.MessageType
	if msgType == "" {
		msgType = domain.MessageTypeText
	}

	msg := &domain.PrivateMessage{
		ID:          uuid.New().String(),
		From:        c.Identifier,
		To:          p.To,
		Text:        p.Text,
		MessageType: msgType,
		Timestamp:   time.Now().UTC(),
		Attachment:  p.Attachment,
		ReplyTo:     p.ReplyTo,
	}

	persisted := s.saveMessage(ctx, msg)

	room, err := s.hub.RoomFor(c.Identifier, p.To, p.BookingRef, p.SubjectTitle)
	if err != nil {
		// Unreachable after validation above; kept as a guard.
		return c.SendMessage(domain.NewErrorReceipt("Invalid message format"))
	}

	if err := s.producer.Produce(ctx, msg, room.Key); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Str(log.FieldMessageID, msg.ID).Err(err).Msg("failed to feed message archive")
	}

	if rc := s.hub.Get(p.To); rc != nil {
		rc.SendMessage(&domain.PrivateMessageEvent{
			Type:        domain.MsgTypePrivateMessage,
			MessageID:   msg.ID,
			From:        msg.From,
			To:          msg.To,
			Text:        msg.Text,
			MessageType: msg.MessageType,
			Timestamp:   msg.Timestamp.UnixMilli(),
			Attachment:  msg.Attachment,
			ReplyTo:     msg.ReplyTo,
		})
	}

	audit.LogWithDetail(ctx, audit.ActionSend, c.Identifier, p.To, "private message accepted")

	return c.SendMessage(&domain.Receipt{
		Type:      domain.MsgTypeMessageReceipt,
		Success:   true,
		MessageID: msg.ID,
		Timestamp: msg.Timestamp.UnixMilli(),
		Persisted: persisted,
	})
}

// HandleTyping updates the ephemeral typing relation and relays the
// indicator to the recipient if reachable. Fire-and-forget: no receipt.
func (s *chatService) HandleTyping(ctx context.Context, c *hub.Client, to string, isTyping bool) error {
	if to == "" {
		return nil
	}

	s.hub.SetTyping(c.Identifier, to, isTyping)

	if rc := s.hub.Get(to); rc != nil {
		rc.SendMessage(&domain.TypingIndicatorMessage{
			Type:      domain.MsgTypeTypingIndicator,
			From:      c.Identifier,
			IsTyping:  isTyping,
			Timestamp: time.Now().UnixMilli(),
		})
	}

	roomKey, err := domain.RoomKey(c.Identifier, to)
	if err != nil {
		return nil
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	if err := s.store.SetTyping(storeCtx, c.Identifier, to, isTyping, roomKey); err != nil {
		l := log.Ctx(ctx)
		l.Debug().Str(log.FieldUserID, c.Identifier).Str(log.FieldPeerID, to).Err(err).Msg("failed to mirror typing relation")
	}
	return nil
}

// HandleMarkAsRead notifies the original sender, if reachable, that the
// reader has seen the message. Best-effort, no receipt.
func (s *chatService) HandleMarkAsRead(ctx context.Context, c *hub.Client, messageID, senderEmail string) error {
	if messageID == "" || senderEmail == "" {
		return nil
	}

	if rc := s.hub.Get(senderEmail); rc != nil {
		rc.SendMessage(&domain.MessageReadEvent{
			Type:      domain.MsgTypeMessageRead,
			MessageID: messageID,
			By:        c.Identifier,
			Timestamp: time.Now().UnixMilli(),
		})
	}

	audit.LogWithDetail(ctx, audit.ActionRead, c.Identifier, messageID, "message marked as read")
	return nil
}

// HandleChatHistory is a pass-through to the durable store, no caching.
func (s *chatService) HandleChatHistory(ctx context.Context, c *hub.Client, contactEmail string, limit, offset int) error {
	if contactEmail == "" {
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "contact_email is required"))
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	messages, err := s.store.GetHistory(storeCtx, c.Identifier, contactEmail, limit, offset)
	if err != nil {
		l := log.Ctx(ctx)
		l.Warn().Str(log.FieldUserID, c.Identifier).Str(log.FieldPeerID, contactEmail).Err(err).Msg("history fetch failed")
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeInternalError, "History unavailable"))
	}

	return c.SendMessage(&domain.ChatHistoryMessage{
		Type:     domain.MsgTypeChatHistory,
		Contact:  contactEmail,
		Messages: messages,
	})
}

// HandleDeparture runs the offline side effects once the hub confirms a
// record is gone. Wired as the hub's departure hook.
func (s *chatService) HandleDeparture(identifier string) {
	ctx := context.Background()
	audit.Log(ctx, audit.ActionDepart, identifier, "user departed")

	if err := s.mirror.SetOffline(ctx, identifier); err != nil {
		l := log.L()
		l.Warn().Str(log.FieldUserID, identifier).Err(err).Msg("failed to clear mirrored presence")
	}
	s.setStoredPresence(ctx, identifier, false)
}

func (s *chatService) Stop() error {
	if err := s.producer.Close(); err != nil {
		l := log.L()
		l.Warn().Err(err).Msg("failed to close archive producer")
	}
	s.mirror.StopHeartbeat()
	s.store.Close()
	return nil
}

// saveMessage hands the message to the durable store with a bounded
// wait. One attempt only; the outcome feeds the receipt's persisted
// flag and nothing else.
func (s *chatService) saveMessage(ctx context.Context, msg *domain.PrivateMessage) bool {
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	if _, err := s.store.SaveMessage(storeCtx, msg); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Str(log.FieldMessageID, msg.ID).Err(err).Msg("durable save failed, continuing with relay")
		return false
	}
	return true
}

func (s *chatService) setStoredPresence(ctx context.Context, identifier string, online bool) {
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	if err := s.store.SetPresence(storeCtx, identifier, online); err != nil {
		l := log.Ctx(ctx)
		l.Debug().Str(log.FieldUserID, identifier).Bool("online", online).Err(err).Msg("failed to mirror presence to durable store")
	}
}
