package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/lessonloop/chat-service/internal/domain"
	"github.com/lessonloop/chat-service/pkg/log"
)

// NATSStore reaches the durable store over NATS request/reply with JSON
// payloads. The connection retries forever in the background, so the
// server comes up fine with the store completely unavailable; requests
// simply fail until it reconnects.
type NATSStore struct {
	nc     *nats.Conn
	prefix string
}

func NewNATSStore(url, subjectPrefix string) (*NATSStore, error) {
	nc, err := nats.Connect(url,
		nats.Name("chat-service"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			l := log.L()
			l.Warn().Err(err).Msg("durable store connection lost")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			l := log.L()
			l.Info().Str("url", nc.ConnectedUrl()).Msg("durable store reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to durable store: %w", err)
	}

	return &NATSStore{nc: nc, prefix: subjectPrefix}, nil
}

func (s *NATSStore) subject(op string) string {
	return fmt.Sprintf("%s.%s", s.prefix, op)
}

type storeReply struct {
	OK    bool   `json:"ok"`
	ID    string `json:"id,omitempty"`
	Error string `json:"error,omitempty"`
}

// request performs a single request/reply round trip. No retry: retry
// and backoff are the store's own concern, not this client's.
func (s *NATSStore) request(ctx context.Context, op string, req interface{}, out interface{}) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", op, err)
	}

	msg, err := s.nc.RequestWithContext(ctx, s.subject(op), data)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", op, err)
	}

	if err := json.Unmarshal(msg.Data, out); err != nil {
		return fmt.Errorf("failed to decode %s reply: %w", op, err)
	}
	return nil
}

func (s *NATSStore) SaveMessage(ctx context.Context, msg *domain.PrivateMessage) (string, error) {
	var reply storeReply
	if err := s.request(ctx, "message.save", msg, &reply); err != nil {
		return "", err
	}
	if !reply.OK {
		return "", fmt.Errorf("save message rejected: %s", reply.Error)
	}
	return reply.ID, nil
}

type historyRequest struct {
	User    string `json:"user"`
	Contact string `json:"contact"`
	Limit   int    `json:"limit"`
	Offset  int    `json:"offset"`
}

type historyReply struct {
	OK       bool                    `json:"ok"`
	Messages []domain.PrivateMessage `json:"messages"`
	Error    string                  `json:"error,omitempty"`
}

func (s *NATSStore) GetHistory(ctx context.Context, user, contact string, limit, offset int) ([]domain.PrivateMessage, error) {
	var reply historyReply
	err := s.request(ctx, "history.get", &historyRequest{
		User:    user,
		Contact: contact,
		Limit:   limit,
		Offset:  offset,
	}, &reply)
	if err != nil {
		return nil, err
	}
	if !reply.OK {
		return nil, fmt.Errorf("history request rejected: %s", reply.Error)
	}
	return reply.Messages, nil
}

type presenceRequest struct {
	User   string `json:"user"`
	Online bool   `json:"online"`
}

func (s *NATSStore) SetPresence(ctx context.Context, user string, online bool) error {
	var reply storeReply
	err := s.request(ctx, "presence.set", &presenceRequest{User: user, Online: online}, &reply)
	if err != nil {
		return err
	}
	if !reply.OK {
		return fmt.Errorf("presence update rejected: %s", reply.Error)
	}
	return nil
}

type typingRequest struct {
	From     string `json:"from"`
	To       string `json:"to"`
	IsTyping bool   `json:"is_typing"`
	RoomKey  string `json:"room_key,omitempty"`
}

func (s *NATSStore) SetTyping(ctx context.Context, from, to string, isTyping bool, roomKey string) error {
	var reply storeReply
	err := s.request(ctx, "typing.set", &typingRequest{
		From:     from,
		To:       to,
		IsTyping: isTyping,
		RoomKey:  roomKey,
	}, &reply)
	if err != nil {
		return err
	}
	if !reply.OK {
		return fmt.Errorf("typing update rejected: %s", reply.Error)
	}
	return nil
}

func (s *NATSStore) Close() {
	s.nc.Close()
}
