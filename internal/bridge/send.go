package bridge

import (
	"context"

	"github.com/oklog/ulid/v2"

	"github.com/sessionbroker/broker/internal/eventbus"
	"github.com/sessionbroker/broker/internal/logging"
	"github.com/sessionbroker/broker/internal/runtime"
	"github.com/sessionbroker/broker/internal/unifiedmsg"
	"github.com/sessionbroker/broker/pkg/brokererr"
	"github.com/sessionbroker/broker/pkg/types"
)

// SendUserMessage implements spec.md §4.7's sendUserMessage: store the
// turn in history, broadcast it to every consumer, then either deliver
// it to the backend or hold it in the pending queue if none is
// attached.
func (b *Bridge) SendUserMessage(ctx context.Context, sessionID, text string, images []string) error {
	rt, ok := b.deps.Registry.Get(sessionID)
	if !ok {
		return brokererr.New(brokererr.CodeValidation, "unknown session")
	}

	msg, ok := unifiedmsg.T1Normalize(types.InboundMessage{
		Type:    types.IMUserMessage,
		Content: text,
		Images:  images,
	}, b.nowMs())
	if !ok {
		return brokererr.New(brokererr.CodeValidation, "empty user message")
	}
	msg.MessageID = ulid.Make().String()

	if payload, ok := unifiedmsg.Project(msg, sessionID); ok {
		seq := b.deps.Hub.Broadcast(sessionID, msg.MessageID, payload)
		rt.AppendHistory(seq, b.deps.MaxHistory)
	}
	rt.TouchActivity(b.nowMs())

	b.deliverOrQueue(ctx, rt, msg)
	return nil
}

// deliverOrQueue sends msg to the live backend if one is attached,
// falling back to the pending queue (spec.md invariant 7) when there
// is none or the send itself fails.
func (b *Bridge) deliverOrQueue(ctx context.Context, rt *runtime.Runtime, msg types.UnifiedMessage) {
	sessionID := rt.ID()
	live, ok := b.liveBackendFor(sessionID)
	if !ok {
		rt.EnqueuePending(msg)
		return
	}

	if err := live.session.Send(ctx, msg); err != nil {
		logging.ForSession(sessionID).Warn().Err(err).Msg("backend send failed, queueing")
		rt.EnqueuePending(msg)
	}
}

// flushQueued is the router's FlushQueued hook: once a session goes
// idle, its single queued message (if any) is released the same way a
// fresh sendUserMessage would be.
func (b *Bridge) flushQueued(ctx context.Context, rt *runtime.Runtime, queued types.UnifiedMessage) {
	b.deliverOrQueue(ctx, rt, queued)
}

// sendDirect sends msg to the live backend only if one is attached; it
// never queues, matching spec.md's "silently drop if no backend" for
// interrupt/set_model/set_permission_mode.
func (b *Bridge) sendDirect(ctx context.Context, sessionID string, msg types.UnifiedMessage) {
	live, ok := b.liveBackendFor(sessionID)
	if !ok {
		return
	}
	if err := live.session.Send(ctx, msg); err != nil {
		logging.ForSession(sessionID).Warn().Err(err).Str("type", string(msg.Type)).Msg("backend send failed")
	}
}

// SendPermissionResponse implements sendPermissionResponse: an unknown
// or already-resolved requestId is a silent no-op with a warn log
// (spec.md §4.6/S4); otherwise the request is cleared and a unified
// permission_response is sent downstream.
func (b *Bridge) SendPermissionResponse(ctx context.Context, sessionID, requestID, behavior string, updatedInput map[string]any, updatedPermissions []string, message string) error {
	rt, ok := b.deps.Registry.Get(sessionID)
	if !ok {
		return brokererr.New(brokererr.CodeValidation, "unknown session")
	}

	if _, pending := rt.Snapshot().PendingPermissions[requestID]; !pending {
		logging.ForSession(sessionID).Warn().Str("requestID", requestID).
			Msg("permission response for unknown or already-resolved request id")
		return nil
	}
	rt.ClearPendingPermission(requestID)

	b.publish(eventbus.PermissionResolved, sessionID, eventbus.PermissionResolvedData{
		RequestID: requestID,
		Behavior:  behavior,
	})

	msg, ok := unifiedmsg.T1Normalize(types.InboundMessage{
		Type:               types.IMPermissionResponse,
		RequestID:           requestID,
		Behavior:            behavior,
		UpdatedInput:        updatedInput,
		UpdatedPermissions:  updatedPermissions,
		Message:             message,
	}, b.nowMs())
	if !ok {
		return nil
	}

	b.deliverOrQueue(ctx, rt, msg)
	return nil
}

// SendInterrupt implements sendInterrupt.
func (b *Bridge) SendInterrupt(ctx context.Context, sessionID string) error {
	rt, ok := b.deps.Registry.Get(sessionID)
	if !ok {
		return brokererr.New(brokererr.CodeValidation, "unknown session")
	}
	msg, _ := unifiedmsg.T1Normalize(types.InboundMessage{Type: types.IMInterrupt}, b.nowMs())
	rt.TouchActivity(b.nowMs())
	b.sendDirect(ctx, sessionID, msg)
	return nil
}

// SendSetModel implements sendSetModel.
func (b *Bridge) SendSetModel(ctx context.Context, sessionID, model string) error {
	rt, ok := b.deps.Registry.Get(sessionID)
	if !ok {
		return brokererr.New(brokererr.CodeValidation, "unknown session")
	}
	msg, _ := unifiedmsg.T1Normalize(types.InboundMessage{Type: types.IMSetModel, Model: model}, b.nowMs())
	rt.TouchActivity(b.nowMs())
	b.sendDirect(ctx, sessionID, msg)
	return nil
}

// SendSetPermissionMode implements sendSetPermissionMode.
func (b *Bridge) SendSetPermissionMode(ctx context.Context, sessionID, mode string) error {
	rt, ok := b.deps.Registry.Get(sessionID)
	if !ok {
		return brokererr.New(brokererr.CodeValidation, "unknown session")
	}
	msg, _ := unifiedmsg.T1Normalize(types.InboundMessage{Type: types.IMSetPermissionMode, Mode: mode}, b.nowMs())
	rt.TouchActivity(b.nowMs())
	b.sendDirect(ctx, sessionID, msg)
	return nil
}
