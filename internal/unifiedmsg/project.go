package unifiedmsg

import "github.com/sessionbroker/broker/pkg/types"

// Project is the T4 consumer projector: a UnifiedMessage becomes the
// ConsumerMessage a consumer sees on the wire. ok is false for types
// that never leave the broker — control_response (consumed by the
// capabilities policy), and permission_response/interrupt, which only
// ever travel inbound and have no outbound counterpart.
func Project(msg types.UnifiedMessage, sessionID string) (types.ConsumerMessage, bool) {
	out := types.ConsumerMessage{SessionID: sessionID}

	switch msg.Type {
	case types.TypeSessionInit:
		out.Type = types.CMSessionInit
		out.Payload = passthroughPayload(msg)
	case types.TypeStatusChange:
		out.Type = types.CMStatusChange
		out.Payload = passthroughPayload(msg)
	case types.TypeAssistant:
		out.Type = types.CMAssistant
		out.Payload = assistantPayload(msg)
	case types.TypeResult:
		out.Type = types.CMResult
		out.Payload = passthroughPayload(msg)
	case types.TypeStreamEvent:
		out.Type = types.CMStreamEvent
		out.Payload = passthroughPayload(msg)
	case types.TypePermissionRequest:
		out.Type = types.CMPermissionRequest
		out.Payload = passthroughPayload(msg)
	case types.TypeToolProgress:
		out.Type = types.CMToolProgress
		out.Payload = passthroughPayload(msg)
	case types.TypeToolUseSummary:
		out.Type = types.CMToolUseSummary
		out.Payload = assistantPayload(msg)
	case types.TypeAuthStatus:
		out.Type = types.CMAuthStatus
		out.Payload = passthroughPayload(msg)
	case types.TypeConfigurationChange:
		out.Type = types.CMConfigurationChange
		out.Payload = passthroughPayload(msg)
	case types.TypeSessionLifecycle:
		out.Type = types.CMSessionLifecycle
		out.Payload = passthroughPayload(msg)
	case types.TypeUserMessage:
		out.Type = types.CMUserMessage
		out.Payload = assistantPayload(msg)
	default:
		return types.ConsumerMessage{}, false
	}

	return out, true
}

// passthroughPayload surfaces an adapter's metadata bag as-is; it is the
// shape most unified types carry their adapter-reported fields in.
func passthroughPayload(msg types.UnifiedMessage) map[string]any {
	if msg.Metadata == nil {
		return map[string]any{}
	}
	payload := make(map[string]any, len(msg.Metadata))
	for k, v := range msg.Metadata {
		payload[k] = v
	}
	return payload
}

// assistantPayload carries a message id, role, and ordered content
// blocks — the shape assistant/tool_use_summary/user_message project
// to, since their consumer-visible substance is the content itself
// rather than an adapter metadata bag.
func assistantPayload(msg types.UnifiedMessage) map[string]any {
	payload := passthroughPayload(msg)
	payload["messageId"] = msg.MessageID
	payload["role"] = msg.Role
	payload["content"] = msg.Content
	if msg.ToolUseID != "" {
		payload["toolUseId"] = msg.ToolUseID
	}
	return payload
}

// extractPermissionRequest builds the PermissionRequest the runtime
// stores in pendingPermissions from a permission_request unified
// message's metadata bag.
func extractPermissionRequest(msg types.UnifiedMessage, nowMs int64) (types.PermissionRequest, bool) {
	if msg.Type != types.TypePermissionRequest {
		return types.PermissionRequest{}, false
	}

	req := types.PermissionRequest{ReceivedAt: nowMs}
	if v, ok := msg.Metadata["requestId"].(string); ok {
		req.RequestID = v
	}
	if v, ok := msg.Metadata["toolName"].(string); ok {
		req.ToolName = v
	}
	if v, ok := msg.Metadata["input"].(map[string]any); ok {
		req.Input = v
	}
	if v, ok := msg.Metadata["suggestions"].([]string); ok {
		req.Suggestions = v
	}
	if req.RequestID == "" {
		return types.PermissionRequest{}, false
	}
	return req, true
}
