package audit

import (
	"context"

	"github.com/lessonloop/chat-service/pkg/log"
)

// Audit actions for the coordination server.
const (
	ActionConnect    = "chat.connect"
	ActionReject     = "chat.handshake_rejected"
	ActionDisplace   = "chat.displace"
	ActionDisconnect = "chat.disconnect"
	ActionDepart     = "chat.depart"
	ActionSend       = "chat.send_message"
	ActionRead       = "chat.mark_read"
)

const (
	FieldAction = "action"
	FieldDetail = "detail"
)

// Log emits a structured audit log entry via the context logger.
func Log(ctx context.Context, action string, userID string, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Msg(msg)
}

// LogWithDetail emits an audit log with extra detail field.
func LogWithDetail(ctx context.Context, action string, userID string, detail string, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Str(FieldDetail, detail).
		Msg(msg)
}
