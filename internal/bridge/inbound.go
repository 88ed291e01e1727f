package bridge

import (
	"context"

	"github.com/sessionbroker/broker/internal/logging"
	"github.com/sessionbroker/broker/pkg/brokererr"
	"github.com/sessionbroker/broker/pkg/types"
)

// RouteInbound implements transport.InboundRouter: it dispatches one
// parsed consumer frame to the matching sendX method, or — for the
// frame types T1Normalize deliberately never translates — handles it
// directly against the session record (spec.md §4.7).
func (b *Bridge) RouteInbound(ctx context.Context, sessionID, consumerID string, msg types.InboundMessage) error {
	switch msg.Type {
	case types.IMUserMessage:
		return b.SendUserMessage(ctx, sessionID, msg.Content, msg.Images)
	case types.IMPermissionResponse:
		return b.SendPermissionResponse(ctx, sessionID, msg.RequestID, msg.Behavior, msg.UpdatedInput, msg.UpdatedPermissions, msg.Message)
	case types.IMInterrupt:
		return b.SendInterrupt(ctx, sessionID)
	case types.IMSetModel:
		return b.SendSetModel(ctx, sessionID, msg.Model)
	case types.IMSetPermissionMode:
		return b.SendSetPermissionMode(ctx, sessionID, msg.Mode)
	case types.IMPresenceQuery:
		return b.handlePresenceQuery(sessionID, consumerID)
	case types.IMSlashCommand:
		return b.handleSlashCommand(ctx, sessionID, msg.Command, msg.RequestID)
	case types.IMQueueMessage:
		return b.handleQueueMessage(sessionID, msg)
	case types.IMUpdateQueuedMessage:
		return b.handleUpdateQueuedMessage(sessionID, msg)
	case types.IMCancelQueuedMessage:
		return b.handleCancelQueuedMessage(sessionID)
	case types.IMSetAdapter:
		return b.handleSetAdapter(sessionID)
	default:
		logging.ForSession(sessionID).Warn().Str("type", string(msg.Type)).Msg("unhandled inbound frame type")
		return nil
	}
}

// handlePresenceQuery answers {} with the session's current consumer
// roster, sent only to the querying consumer.
func (b *Bridge) handlePresenceQuery(sessionID, consumerID string) error {
	rt, ok := b.deps.Registry.Get(sessionID)
	if !ok {
		return brokererr.New(brokererr.CodeValidation, "unknown session")
	}

	b.deps.Hub.SendTo(sessionID, consumerID, types.ConsumerMessage{
		Type:      types.CMPresenceUpdate,
		SessionID: sessionID,
		Payload:   map[string]any{"consumers": rt.Consumers()},
	})
	return nil
}

// handleQueueMessage stores content as the session's single queued
// message, released once the session next goes idle.
func (b *Bridge) handleQueueMessage(sessionID string, msg types.InboundMessage) error {
	rt, ok := b.deps.Registry.Get(sessionID)
	if !ok {
		return brokererr.New(brokererr.CodeValidation, "unknown session")
	}

	unified := types.UnifiedMessage{
		Type:       types.TypeUserMessage,
		Role:       types.RoleUser,
		ReceivedAt: b.nowMs(),
	}
	if msg.Content != "" {
		unified.Content = append(unified.Content, types.ContentBlock{Type: types.BlockText, Text: msg.Content})
	}
	for _, img := range msg.Images {
		unified.Content = append(unified.Content, types.ContentBlock{Type: types.BlockImage, ImageURL: img})
	}
	rt.SetQueuedMessage(&unified)
	return nil
}

// handleUpdateQueuedMessage replaces the content of the currently queued
// message, if any is still pending.
func (b *Bridge) handleUpdateQueuedMessage(sessionID string, msg types.InboundMessage) error {
	rt, ok := b.deps.Registry.Get(sessionID)
	if !ok {
		return brokererr.New(brokererr.CodeValidation, "unknown session")
	}
	if rt.Snapshot().QueuedMessage == nil {
		return nil
	}
	return b.handleQueueMessage(sessionID, msg)
}

// handleCancelQueuedMessage discards the queued message without sending
// it.
func (b *Bridge) handleCancelQueuedMessage(sessionID string) error {
	rt, ok := b.deps.Registry.Get(sessionID)
	if !ok {
		return brokererr.New(brokererr.CodeValidation, "unknown session")
	}
	rt.TakeQueuedMessage()
	return nil
}

// handleSetAdapter always rejects: an active session's adapter is fixed
// at creation (spec.md §4.7, set_adapter "always rejected with a
// structured error on active sessions").
func (b *Bridge) handleSetAdapter(sessionID string) error {
	return brokererr.New(brokererr.CodeValidation, "adapter cannot be changed on an active session")
}
