package domain

// WebSocket message types from client.
const (
	MsgTypePrivateMessage = "private_message"
	MsgTypeTyping         = "typing"
	MsgTypeMarkAsRead     = "mark_as_read"
	MsgTypeGetChatHistory = "get_chat_history"
	MsgTypePing           = "ping"
)

// WebSocket message types to client.
const (
	MsgTypeAuthenticated   = "authenticated"
	MsgTypeUsersList       = "users_list"
	MsgTypeTypingIndicator = "typing_indicator"
	MsgTypeMessageRead     = "message_read"
	MsgTypeChatHistory     = "chat_history"
	MsgTypeMessageReceipt  = "message_receipt"
	MsgTypeError           = "error"
	MsgTypePong            = "pong"
)

// Error codes
const (
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// BaseMessage is the tag every inbound frame is sniffed with before the
// full payload shape is decoded.
type BaseMessage struct {
	Type string `json:"type"`
}

// Client -> Server messages

type PrivateMessagePayload struct {
	Type         string      `json:"type"`
	To           string      `json:"to"`
	Text         string      `json:"text"`
	MessageType  string      `json:"message_type,omitempty"`
	Attachment   *Attachment `json:"attachment,omitempty"`
	ReplyTo      string      `json:"reply_to,omitempty"`
	BookingRef   string      `json:"booking_ref,omitempty"`
	SubjectTitle string      `json:"subject_title,omitempty"`
}

type TypingPayload struct {
	Type     string `json:"type"`
	To       string `json:"to"`
	IsTyping bool   `json:"is_typing"`
}

type MarkAsReadPayload struct {
	Type        string `json:"type"`
	MessageID   string `json:"message_id"`
	SenderEmail string `json:"sender_email"`
}

type ChatHistoryPayload struct {
	Type         string `json:"type"`
	ContactEmail string `json:"contact_email"`
	Limit        int    `json:"limit"`
	Offset       int    `json:"offset"`
}

// Server -> Client messages

type AuthenticatedMessage struct {
	Type  string `json:"type"`
	Email string `json:"email"`
}

type UsersListMessage struct {
	Type  string   `json:"type"`
	Users []string `json:"users"`
}

type PrivateMessageEvent struct {
	Type        string      `json:"type"`
	MessageID   string      `json:"message_id"`
	From        string      `json:"from"`
	To          string      `json:"to"`
	Text        string      `json:"text"`
	MessageType string      `json:"message_type"`
	Timestamp   int64       `json:"timestamp"`
	Attachment  *Attachment `json:"attachment,omitempty"`
	ReplyTo     string      `json:"reply_to,omitempty"`
}

type TypingIndicatorMessage struct {
	Type      string `json:"type"`
	From      string `json:"from"`
	IsTyping  bool   `json:"is_typing"`
	Timestamp int64  `json:"timestamp"`
}

type MessageReadEvent struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
	By        string `json:"by"`
	Timestamp int64  `json:"timestamp"`
}

type ChatHistoryMessage struct {
	Type     string           `json:"type"`
	Contact  string           `json:"contact"`
	Messages []PrivateMessage `json:"messages"`
}

// Receipt is the synchronous acknowledgment returned to a sender. A
// relay miss never flips Success; persistence outcome is reported via
// Persisted but never fails the send either.
type Receipt struct {
	Type      string `json:"type"`
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
	Persisted bool   `json:"persisted"`
	Error     string `json:"error,omitempty"`
}

func NewErrorReceipt(reason string) *Receipt {
	return &Receipt{
		Type:    MsgTypeMessageReceipt,
		Success: false,
		Error:   reason,
	}
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{
		Type:    MsgTypeError,
		Code:    code,
		Message: message,
	}
}
