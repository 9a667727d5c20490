package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lessonloop/chat-service/internal/audit"
	"github.com/lessonloop/chat-service/internal/config"
	"github.com/lessonloop/chat-service/internal/domain"
	"github.com/lessonloop/chat-service/internal/hub"
	"github.com/lessonloop/chat-service/internal/service"
	"github.com/lessonloop/chat-service/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WSHandler struct {
	hub     *hub.Hub
	service service.ChatService
	wsCfg   config.WebSocketConfig
}

func NewWSHandler(h *hub.Hub, svc service.ChatService, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		hub:     h,
		service: svc,
		wsCfg:   wsCfg,
	}
}

// HandleWebSocket performs the handshake. The identifier claim rides on
// the upgrade request; a missing or blank claim is refused before any
// registry state exists.
func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		audit.Log(r.Context(), audit.ActionReject, "", "handshake without identifier refused")
		http.Error(w, "email is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		l := log.L()
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), email, h.hub, conn, h.wsCfg)

	if err := h.service.HandleConnect(r.Context(), client); err != nil {
		l := log.L()
		l.Warn().Str(log.FieldUserID, email).Err(err).Msg("connect handling failed")
	}

	go client.WritePump()
	go client.ReadPump(h.handleMessage)
}

// handleMessage validates the tagged payload shape at the boundary;
// malformed frames never reach a stateful component.
func (h *WSHandler) handleMessage(client *hub.Client, message []byte) {
	var base domain.BaseMessage
	if err := json.Unmarshal(message, &base); err != nil {
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid message format"))
		return
	}

	ctx := context.Background()

	switch base.Type {
	case domain.MsgTypePrivateMessage:
		var msg domain.PrivateMessagePayload
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendMessage(domain.NewErrorReceipt("Invalid message format"))
			return
		}
		if err := h.service.HandlePrivateMessage(ctx, client, &msg); err != nil {
			l := log.L()
			l.Warn().Str(log.FieldUserID, client.Identifier).Err(err).Msg("private message handling failed")
		}

	case domain.MsgTypeTyping:
		var msg domain.TypingPayload
		if err := json.Unmarshal(message, &msg); err != nil {
			return
		}
		if err := h.service.HandleTyping(ctx, client, msg.To, msg.IsTyping); err != nil {
			l := log.L()
			l.Debug().Str(log.FieldUserID, client.Identifier).Err(err).Msg("typing handling failed")
		}

	case domain.MsgTypeMarkAsRead:
		var msg domain.MarkAsReadPayload
		if err := json.Unmarshal(message, &msg); err != nil {
			return
		}
		if err := h.service.HandleMarkAsRead(ctx, client, msg.MessageID, msg.SenderEmail); err != nil {
			l := log.L()
			l.Debug().Str(log.FieldUserID, client.Identifier).Err(err).Msg("mark-as-read handling failed")
		}

	case domain.MsgTypeGetChatHistory:
		var msg domain.ChatHistoryPayload
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid history request"))
			return
		}
		if err := h.service.HandleChatHistory(ctx, client, msg.ContactEmail, msg.Limit, msg.Offset); err != nil {
			l := log.L()
			l.Warn().Str(log.FieldUserID, client.Identifier).Err(err).Msg("history handling failed")
		}

	case domain.MsgTypePing:
		client.SendMessage(map[string]string{"type": domain.MsgTypePong})

	default:
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Unknown message type"))
	}
}

func (h *WSHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/chat/ws", h.HandleWebSocket)
}
