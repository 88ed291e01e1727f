package types

// ConsumerMessageType is the closed tagged union of outbound (broker to
// consumer) wire messages, produced by the T4 projector.
type ConsumerMessageType string

const (
	CMSessionInit          ConsumerMessageType = "session_init"
	CMStatusChange         ConsumerMessageType = "status_change"
	CMAssistant            ConsumerMessageType = "assistant"
	CMResult               ConsumerMessageType = "result"
	CMStreamEvent          ConsumerMessageType = "stream_event"
	CMPermissionRequest    ConsumerMessageType = "permission_request"
	CMToolProgress         ConsumerMessageType = "tool_progress"
	CMToolUseSummary       ConsumerMessageType = "tool_use_summary"
	CMAuthStatus           ConsumerMessageType = "auth_status"
	CMConfigurationChange  ConsumerMessageType = "configuration_change"
	CMSessionLifecycle     ConsumerMessageType = "session_lifecycle"
	CMUserMessage          ConsumerMessageType = "user_message"
	CMSessionUpdate        ConsumerMessageType = "session_update"
	CMSessionNameUpdate    ConsumerMessageType = "session_name_update"
	CMResumeFailed         ConsumerMessageType = "resume_failed"
	CMProcessOutput        ConsumerMessageType = "process_output"
	CMPresenceUpdate       ConsumerMessageType = "presence_update"
	CMCLIConnected         ConsumerMessageType = "cli_connected"
	CMCLIDisconnected      ConsumerMessageType = "cli_disconnected"
	CMError                ConsumerMessageType = "error"
	CMSlashCommandResult   ConsumerMessageType = "slash_command_result"
	CMSlashCommandError    ConsumerMessageType = "slash_command_error"
	CMCapabilitiesReady    ConsumerMessageType = "capabilities_ready"
)

// ConsumerMessage is the outbound wire shape a consumer observes, before
// sequencing.
type ConsumerMessage struct {
	Type      ConsumerMessageType `json:"type"`
	SessionID string              `json:"sessionId"`
	Payload   any                 `json:"payload,omitempty"`
}

// Sequenced wraps a ConsumerMessage with the reconnection envelope
// (spec §3 "Sequenced message"). Seq is per-session monotonic starting
// at 1.
type Sequenced struct {
	Seq       uint64          `json:"seq"`
	MessageID string          `json:"messageId"`
	Timestamp int64           `json:"timestamp"`
	Payload   ConsumerMessage `json:"payload"`
}

// ConsumerRole distinguishes participants (may send, see everything)
// from observers (read-only, denied process_output).
type ConsumerRole string

const (
	RoleParticipant ConsumerRole = "participant"
	RoleObserver    ConsumerRole = "observer"
)

// InboundMessageType is the closed tagged union of inbound (consumer to
// broker) wire messages, normalized by T1.
type InboundMessageType string

const (
	IMUserMessage          InboundMessageType = "user_message"
	IMPermissionResponse   InboundMessageType = "permission_response"
	IMInterrupt            InboundMessageType = "interrupt"
	IMSetModel             InboundMessageType = "set_model"
	IMSetPermissionMode    InboundMessageType = "set_permission_mode"
	IMPresenceQuery        InboundMessageType = "presence_query"
	IMSlashCommand         InboundMessageType = "slash_command"
	IMQueueMessage         InboundMessageType = "queue_message"
	IMUpdateQueuedMessage  InboundMessageType = "update_queued_message"
	IMCancelQueuedMessage  InboundMessageType = "cancel_queued_message"
	IMSetAdapter           InboundMessageType = "set_adapter"
)

// InboundMessage is the raw, parsed shape of one consumer wire frame
// before T1 normalizes it into a UnifiedMessage.
type InboundMessage struct {
	Type                InboundMessageType `json:"type"`
	Content             string             `json:"content,omitempty"`
	SessionID           string             `json:"session_id,omitempty"`
	Images              []string           `json:"images,omitempty"`
	RequestID           string             `json:"request_id,omitempty"`
	Behavior            string             `json:"behavior,omitempty"`
	UpdatedInput        map[string]any     `json:"updated_input,omitempty"`
	UpdatedPermissions  []string           `json:"updated_permissions,omitempty"`
	Message             string             `json:"message,omitempty"`
	Model               string             `json:"model,omitempty"`
	Mode                string             `json:"mode,omitempty"`
	Command             string             `json:"command,omitempty"`
}

// ErrorMessage is the structured, consumer-visible failure shape (spec
// §7): a human string and an optional machine-readable code. Consumers
// never see raw stack traces.
type ErrorMessage struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}
