package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldClientIP  = "client_ip"

	// Actor / peer
	FieldUserID = "user_id"
	FieldPeerID = "peer_id"
	FieldConnID = "conn_id"

	// Chat
	FieldRoomKey   = "room_key"
	FieldMessageID = "message_id"

	// Service
	FieldService = "service"

	// Log type (for audit log)
	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)
