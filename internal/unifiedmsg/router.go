package unifiedmsg

import (
	"context"
	"encoding/json"
	"reflect"
	"time"

	"github.com/sessionbroker/broker/internal/eventbus"
	"github.com/sessionbroker/broker/internal/runtime"
	"github.com/sessionbroker/broker/internal/tracing"
	"github.com/sessionbroker/broker/pkg/types"
)

// Broadcaster fans a projected consumer message out to a session's
// attached consumers (internal/transport implements this) and assigns
// the message its place in the reconnection sequence. correlationID is
// the id the history merge logic keys on — a message id for assistant,
// a tool-use id for tool_use_summary — and becomes Sequenced.MessageID.
type Broadcaster interface {
	Broadcast(sessionID, correlationID string, msg types.ConsumerMessage) types.Sequenced
	BroadcastToParticipants(sessionID, correlationID string, msg types.ConsumerMessage) types.Sequenced
}

// Persister durably stores a session snapshot (internal/storage
// implements this).
type Persister interface {
	Save(ctx context.Context, session types.PersistedSession) error
}

// Deps bundles the router's collaborators. FlushQueued and RefreshGit
// are optional hooks into packages this router does not depend on
// directly (the bridge's send path, a git-info refresher); a nil hook
// is simply skipped.
type Deps struct {
	Bus         *eventbus.Bus
	Broadcaster Broadcaster
	Persister   Persister
	Tracer      *tracing.Tracer
	MaxHistory  int
	Now         func() int64

	FlushQueued func(ctx context.Context, rt *runtime.Runtime, queued types.UnifiedMessage)
	RefreshGit  func(ctx context.Context, rt *runtime.Runtime)
}

func (d Deps) now() int64 {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now().UnixMilli()
}

func (d Deps) tracer() *tracing.Tracer {
	if d.Tracer != nil {
		return d.Tracer
	}
	return tracing.NoOp()
}

func (d Deps) publish(ev eventbus.Event) {
	if d.Bus != nil {
		d.Bus.PublishSync(ev)
	}
}

// Route is the unified message router entrypoint (spec §4.1): it
// reduces state, appends or merges into history where the type calls
// for it, broadcasts a T4-projected consumer message, emits internal
// domain events, and persists when the type warrants durability.
func Route(ctx context.Context, rt *runtime.Runtime, msg types.UnifiedMessage, deps Deps) {
	nowMs := deps.now()
	ctx, span := deps.tracer().Recv(ctx, string(msg.Type), rt.ID())
	defer span.End()

	prevTeam := rt.Snapshot().State.Team
	next := runtime.Reduce(rt.Snapshot().State, msg, rt.TeamBuffer())
	rt.SetState(next)

	if !reflect.DeepEqual(prevTeam, next.Team) {
		deps.publish(eventbus.Event{
			Type:      eventbus.TeamStateChanged,
			SessionID: rt.ID(),
			Data:      eventbus.TeamStateChangedData{Previous: prevTeam, Current: next.Team},
		})
	}

	switch msg.Type {
	case types.TypeSessionInit:
		handleSessionInit(ctx, rt, msg, deps)
	case types.TypeStatusChange:
		handleStatusChange(ctx, rt, msg, deps)
	case types.TypeAssistant:
		handleAssistant(rt, msg, deps)
	case types.TypeResult:
		handleResult(ctx, rt, msg, deps, nowMs)
	case types.TypeStreamEvent:
		handleStreamEvent(rt, msg, deps)
	case types.TypePermissionRequest:
		handlePermissionRequest(rt, msg, deps, nowMs)
	case types.TypeControlResponse:
		handleControlResponse(rt, msg)
	case types.TypeToolProgress:
		handleToolProgress(rt, msg, deps)
	case types.TypeToolUseSummary:
		handleToolUseSummary(rt, msg, deps)
	case types.TypeAuthStatus:
		handleAuthStatus(rt, msg, deps)
	case types.TypeConfigurationChange:
		handleConfigurationChange(ctx, rt, msg, deps)
	case types.TypeSessionLifecycle:
		handleSessionLifecycle(rt, msg, deps)
	default:
		_, uspan := deps.tracer().Unhandled(ctx, string(msg.Type), rt.ID())
		uspan.End()
	}
}

func handleSessionInit(ctx context.Context, rt *runtime.Runtime, msg types.UnifiedMessage, deps Deps) {
	if id, ok := msg.Metadata["backendSessionId"].(string); ok && id != "" {
		rt.SetBackendSessionID(id)
	}
	rt.ApplyInitSnapshot(initSnapshotFromMetadata(msg.Metadata))
	rt.RegisterCLICommands(stringSlice(msg.Metadata["cliCommands"]))
	rt.RegisterSkillCommands(stringSlice(msg.Metadata["skillCommands"]))

	if payload, ok := Project(msg, rt.ID()); ok {
		deps.Broadcaster.Broadcast(rt.ID(), msg.MessageID, payload)
	}

	backendSessionID, _ := msg.Metadata["backendSessionId"].(string)
	deps.publish(eventbus.Event{
		Type:      eventbus.BackendConnected,
		SessionID: rt.ID(),
		Data: eventbus.BackendConnectedData{
			AdapterName:      rt.Snapshot().AdapterName,
			BackendSessionID: backendSessionID,
		},
	})

	if deps.RefreshGit != nil {
		deps.RefreshGit(ctx, rt)
	}
}

func handleStatusChange(ctx context.Context, rt *runtime.Runtime, msg types.UnifiedMessage, deps Deps) {
	status, _ := msg.Metadata["status"].(string)
	rt.SetLastStatus(types.Status(status))

	if payload, ok := Project(msg, rt.ID()); ok {
		deps.Broadcaster.Broadcast(rt.ID(), msg.MessageID, payload)
	}

	if types.Status(status) == types.StatusIdle {
		if queued := rt.TakeQueuedMessage(); queued != nil && deps.FlushQueued != nil {
			deps.FlushQueued(ctx, rt, *queued)
		}
	}
}

func handleAssistant(rt *runtime.Runtime, msg types.UnifiedMessage, deps Deps) {
	payload, ok := Project(msg, rt.ID())
	if !ok {
		return
	}

	if idx := rt.FindHistoryIndexByMessageID(msg.MessageID); idx >= 0 {
		rt.ReplaceHistoryByIndex(idx, payload)
		deps.Broadcaster.Broadcast(rt.ID(), msg.MessageID, payload)
		return
	}

	seq := deps.Broadcaster.Broadcast(rt.ID(), msg.MessageID, payload)
	rt.AppendHistory(seq, deps.MaxHistory)
}

func handleResult(ctx context.Context, rt *runtime.Runtime, msg types.UnifiedMessage, deps Deps, nowMs int64) {
	payload, ok := Project(msg, rt.ID())
	if ok {
		seq := deps.Broadcaster.Broadcast(rt.ID(), msg.MessageID, payload)
		rt.AppendHistory(seq, deps.MaxHistory)
	}

	wasFirstTurn := countResults(rt.Snapshot().MessageHistory) == 1
	rt.SetLastStatus(types.StatusIdle)

	if queued := rt.TakeQueuedMessage(); queued != nil && deps.FlushQueued != nil {
		deps.FlushQueued(ctx, rt, *queued)
	}
	if deps.RefreshGit != nil {
		deps.RefreshGit(ctx, rt)
	}

	if isError, _ := msg.Metadata["isError"].(bool); wasFirstTurn && !isError {
		deps.publish(eventbus.Event{Type: eventbus.FirstTurnCompleted, SessionID: rt.ID()})
	}
}

func handleStreamEvent(rt *runtime.Runtime, msg types.UnifiedMessage, deps Deps) {
	eventType, _ := msg.Metadata["eventType"].(string)
	parentToolUseID, _ := msg.Metadata["parentToolUseId"].(string)

	if eventType == "message_start" && parentToolUseID == "" {
		rt.SetLastStatus(types.StatusRunning)
		deps.Broadcaster.Broadcast(rt.ID(), msg.MessageID, types.ConsumerMessage{
			Type: types.CMStatusChange, SessionID: rt.ID(),
			Payload: map[string]any{"status": string(types.StatusRunning)},
		})
	}

	if payload, ok := Project(msg, rt.ID()); ok {
		deps.Broadcaster.Broadcast(rt.ID(), msg.MessageID, payload)
	}
}

func handlePermissionRequest(rt *runtime.Runtime, msg types.UnifiedMessage, deps Deps, nowMs int64) {
	req, ok := extractPermissionRequest(msg, nowMs)
	if !ok {
		return
	}
	rt.StorePendingPermission(req)

	if payload, ok := Project(msg, rt.ID()); ok {
		deps.Broadcaster.BroadcastToParticipants(rt.ID(), req.RequestID, payload)
	}

	deps.publish(eventbus.Event{
		Type:      eventbus.PermissionRequested,
		SessionID: rt.ID(),
		Data:      eventbus.PermissionRequestedData{Request: req},
	})
}

func handleControlResponse(rt *runtime.Runtime, msg types.UnifiedMessage) {
	correlationID, _ := msg.Metadata["correlationId"].(string)
	payload, err := json.Marshal(msg.Metadata["payload"])
	if err != nil {
		return
	}
	rt.ResolveControlResponse(correlationID, payload)
}

func handleToolProgress(rt *runtime.Runtime, msg types.UnifiedMessage, deps Deps) {
	if payload, ok := Project(msg, rt.ID()); ok {
		deps.Broadcaster.Broadcast(rt.ID(), msg.MessageID, payload)
	}
}

func handleToolUseSummary(rt *runtime.Runtime, msg types.UnifiedMessage, deps Deps) {
	payload, ok := Project(msg, rt.ID())
	if !ok {
		return
	}

	if idx := rt.FindHistoryIndexByMessageID(msg.ToolUseID); idx >= 0 {
		rt.ReplaceHistoryByIndex(idx, payload)
		deps.Broadcaster.Broadcast(rt.ID(), msg.ToolUseID, payload)
		return
	}

	seq := deps.Broadcaster.Broadcast(rt.ID(), msg.ToolUseID, payload)
	rt.AppendHistory(seq, deps.MaxHistory)
}

func handleAuthStatus(rt *runtime.Runtime, msg types.UnifiedMessage, deps Deps) {
	if payload, ok := Project(msg, rt.ID()); ok {
		deps.Broadcaster.Broadcast(rt.ID(), msg.MessageID, payload)
	}
}

func handleConfigurationChange(ctx context.Context, rt *runtime.Runtime, msg types.UnifiedMessage, deps Deps) {
	if payload, ok := Project(msg, rt.ID()); ok {
		deps.Broadcaster.Broadcast(rt.ID(), msg.MessageID, payload)
	}

	snap := rt.Snapshot()
	deps.Broadcaster.Broadcast(rt.ID(), msg.MessageID, types.ConsumerMessage{
		Type:      types.CMSessionUpdate,
		SessionID: rt.ID(),
		Payload:   snap.State,
	})

	if deps.Persister != nil {
		_ = deps.Persister.Save(ctx, toPersisted(snap))
	}
}

func handleSessionLifecycle(rt *runtime.Runtime, msg types.UnifiedMessage, deps Deps) {
	if payload, ok := Project(msg, rt.ID()); ok {
		deps.Broadcaster.Broadcast(rt.ID(), msg.MessageID, payload)
	}
}

func countResults(history []types.Sequenced) int {
	n := 0
	for _, entry := range history {
		if entry.Payload.Type == types.CMResult {
			n++
		}
	}
	return n
}

func initSnapshotFromMetadata(md types.Metadata) runtime.InitSnapshot {
	snap := runtime.InitSnapshot{
		AuthMethods:   stringSlice(md["authMethods"]),
		Tools:         stringSlice(md["tools"]),
		MCPServers:    stringSlice(md["mcpServers"]),
		Agents:        stringSlice(md["agents"]),
		SlashCommands: stringSlice(md["slashCommands"]),
		Skills:        stringSlice(md["skills"]),
	}
	snap.Cwd, _ = md["cwd"].(string)
	snap.Model, _ = md["model"].(string)
	snap.PermissionMode, _ = md["permissionMode"].(string)
	return snap
}

func stringSlice(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func toPersisted(session types.Session) types.PersistedSession {
	pairs := make([]types.PendingPermissionPair, 0, len(session.PendingPermissions))
	for id, req := range session.PendingPermissions {
		pairs = append(pairs, types.PendingPermissionPair{RequestID: id, Request: req})
	}

	return types.PersistedSession{
		SchemaVersion:      1,
		ID:                 session.ID,
		State:              session.State,
		MessageHistory:     session.MessageHistory,
		PendingMessages:    session.PendingMessages,
		PendingPermissions: pairs,
		Archived:           session.Lifecycle == types.LifecycleClosed,
	}
}
