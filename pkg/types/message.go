// Package types defines the wire and domain shapes shared across the
// session broker: the unified message envelope adapters produce and
// consume, the consumer-facing wire protocol, and the session record
// itself.
package types

import "encoding/json"

// UnifiedMessageType is the closed set of unified message kinds that an
// adapter's T3 decoder may produce and T2 encoder may consume.
type UnifiedMessageType string

const (
	TypeSessionInit         UnifiedMessageType = "session_init"
	TypeStatusChange        UnifiedMessageType = "status_change"
	TypeAssistant           UnifiedMessageType = "assistant"
	TypeResult              UnifiedMessageType = "result"
	TypeStreamEvent         UnifiedMessageType = "stream_event"
	TypePermissionRequest   UnifiedMessageType = "permission_request"
	TypeControlResponse     UnifiedMessageType = "control_response"
	TypeToolProgress        UnifiedMessageType = "tool_progress"
	TypeToolUseSummary      UnifiedMessageType = "tool_use_summary"
	TypeAuthStatus          UnifiedMessageType = "auth_status"
	TypeConfigurationChange UnifiedMessageType = "configuration_change"
	TypeSessionLifecycle    UnifiedMessageType = "session_lifecycle"
	TypeUserMessage         UnifiedMessageType = "user_message"
	TypePermissionResponse  UnifiedMessageType = "permission_response"
	TypeInterrupt           UnifiedMessageType = "interrupt"
)

// Role identifies the speaker of a unified message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// ContentBlockType is the closed set of content block kinds.
type ContentBlockType string

const (
	BlockText       ContentBlockType = "text"
	BlockToolUse    ContentBlockType = "tool_use"
	BlockToolResult ContentBlockType = "tool_result"
	BlockThinking   ContentBlockType = "thinking"
	BlockImage      ContentBlockType = "image"
	BlockCode       ContentBlockType = "code"
	BlockRefusal    ContentBlockType = "refusal"
)

// ContentBlock is one ordered element of a unified message's content.
//
// The fields beyond Type/ID are a flat union rather than nested per-kind
// structs: adapters populate only the fields relevant to Type, and
// handlers read only the fields their type guarantees. This mirrors how
// the metadata bag on UnifiedMessage is treated — open in transit,
// narrowly parsed by each consumer.
type ContentBlock struct {
	Type ContentBlockType `json:"type"`

	// ID correlates tool_use/tool_result pairs (tool_use_id on result).
	ID string `json:"id,omitempty"`

	Text       string          `json:"text,omitempty"`
	Language   string          `json:"language,omitempty"`
	ToolName   string          `json:"toolName,omitempty"`
	ToolInput  json.RawMessage `json:"toolInput,omitempty"`
	ToolResult json.RawMessage `json:"toolResult,omitempty"`
	IsError    bool            `json:"isError,omitempty"`
	ImageURL   string          `json:"imageUrl,omitempty"`
	MediaType  string          `json:"mediaType,omitempty"`
}

// Metadata is the free-form carrier of adapter-specific details. It is
// canonicalized (stable key order) before it ever reaches a trace sink —
// see CanonicalJSON.
type Metadata map[string]any

// CanonicalJSON renders m with keys in sorted order so two semantically
// equal metadata bags always trace identically. encoding/json already
// sorts map keys on marshal, so this exists to make that guarantee an
// explicit, named operation rather than an implicit stdlib side effect.
func (m Metadata) CanonicalJSON() ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}
	return json.Marshal(m)
}

// UnifiedMessage is the adapter-independent envelope every backend
// message is translated into (T3) and every outbound message is
// translated from (T2).
type UnifiedMessage struct {
	Type       UnifiedMessageType `json:"type"`
	Role       Role               `json:"role,omitempty"`
	Content    []ContentBlock     `json:"content,omitempty"`
	Metadata   Metadata           `json:"metadata,omitempty"`
	MessageID  string             `json:"messageId,omitempty"`
	ToolUseID  string             `json:"toolUseId,omitempty"`
	ReceivedAt int64              `json:"receivedAt,omitempty"`
}

// Clone returns a deep-enough copy for safe storage in history: the
// content slice and metadata map are copied, individual blocks are not
// (they are treated as immutable once constructed).
func (m UnifiedMessage) Clone() UnifiedMessage {
	out := m
	if m.Content != nil {
		out.Content = append([]ContentBlock(nil), m.Content...)
	}
	if m.Metadata != nil {
		md := make(Metadata, len(m.Metadata))
		for k, v := range m.Metadata {
			md[k] = v
		}
		out.Metadata = md
	}
	return out
}
