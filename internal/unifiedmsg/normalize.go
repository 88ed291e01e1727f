package unifiedmsg

import (
	"github.com/sessionbroker/broker/pkg/types"
)

// T1Normalize is the inbound normalizer: a parsed consumer wire frame
// becomes a UnifiedMessage (spec §4.1 "T1"). It reports ok=false for
// frame types that never enter the unified pipeline at all — presence
// queries, slash commands, and queued-message management are answered
// or applied directly against the session record by the bridge, since
// they have no adapter-facing counterpart in the closed UnifiedMessage
// set. A false return is not a failure; callers only trace-log a drop
// for a frame type they expected to normalize and didn't.
func T1Normalize(in types.InboundMessage, nowMs int64) (types.UnifiedMessage, bool) {
	switch in.Type {
	case types.IMUserMessage:
		return normalizeUserMessage(in, nowMs), true

	case types.IMPermissionResponse:
		return normalizePermissionResponse(in, nowMs), true

	case types.IMInterrupt:
		return types.UnifiedMessage{Type: types.TypeInterrupt, Role: types.RoleUser, ReceivedAt: nowMs}, true

	case types.IMSetModel:
		return types.UnifiedMessage{
			Type:       types.TypeConfigurationChange,
			Role:       types.RoleUser,
			ReceivedAt: nowMs,
			Metadata:   types.Metadata{"kind": "set_model", "model": in.Model},
		}, true

	case types.IMSetPermissionMode:
		return types.UnifiedMessage{
			Type:       types.TypeConfigurationChange,
			Role:       types.RoleUser,
			ReceivedAt: nowMs,
			Metadata:   types.Metadata{"kind": "set_permission_mode", "mode": in.Mode},
		}, true

	default:
		// IMPresenceQuery, IMSlashCommand, IMQueueMessage,
		// IMUpdateQueuedMessage, IMCancelQueuedMessage, IMSetAdapter:
		// handled directly against the session record, not translated
		// into a unified message.
		return types.UnifiedMessage{}, false
	}
}

func normalizeUserMessage(in types.InboundMessage, nowMs int64) types.UnifiedMessage {
	content := make([]types.ContentBlock, 0, 1+len(in.Images))
	if in.Content != "" {
		content = append(content, types.ContentBlock{Type: types.BlockText, Text: in.Content})
	}
	for _, img := range in.Images {
		content = append(content, types.ContentBlock{Type: types.BlockImage, ImageURL: img})
	}

	return types.UnifiedMessage{
		Type:       types.TypeUserMessage,
		Role:       types.RoleUser,
		Content:    content,
		ReceivedAt: nowMs,
	}
}

func normalizePermissionResponse(in types.InboundMessage, nowMs int64) types.UnifiedMessage {
	return types.UnifiedMessage{
		Type:       types.TypePermissionResponse,
		Role:       types.RoleUser,
		ReceivedAt: nowMs,
		Metadata: types.Metadata{
			"requestId":          in.RequestID,
			"behavior":           in.Behavior,
			"updatedInput":       in.UpdatedInput,
			"updatedPermissions": in.UpdatedPermissions,
			"message":            in.Message,
		},
	}
}
