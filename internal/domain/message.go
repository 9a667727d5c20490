package domain

import "time"

// Message types carried on a private message.
const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
	MessageTypeFile  = "file"
)

// Attachment describes a file already uploaded elsewhere; the server
// only relays the reference.
type Attachment struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// PrivateMessage is the immutable message record handed to the durable
// store and relayed to the recipient. Persistence and relay are
// independent outcomes of the same pipeline run.
type PrivateMessage struct {
	ID          string      `json:"id"`
	From        string      `json:"from"`
	To          string      `json:"to"`
	Text        string      `json:"text"`
	MessageType string      `json:"message_type"`
	Timestamp   time.Time   `json:"timestamp"`
	Attachment  *Attachment `json:"attachment,omitempty"`
	ReplyTo     string      `json:"reply_to,omitempty"`
}
