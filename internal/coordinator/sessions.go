package coordinator

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/sessionbroker/broker/internal/adapter"
	"github.com/sessionbroker/broker/internal/logging"
	"github.com/sessionbroker/broker/internal/policy"
	"github.com/sessionbroker/broker/internal/runtime"
	"github.com/sessionbroker/broker/pkg/brokererr"
	"github.com/sessionbroker/broker/pkg/types"
)

// CreateSession registers a runtime under the caller-generated session
// id, persists the launcher state, and connects its backend adapter. The
// session id is externally assigned (a UUID minted by the consumer
// requesting the session, not by the broker) so a consumer can reconnect
// to a session it created before the broker ever saw a response; an
// empty id is rejected rather than silently minted, and a malformed one
// is rejected by uuid.Parse.
func (c *Coordinator) CreateSession(ctx context.Context, sessionID, adapterName string, opts adapter.ConnectOptions) (string, error) {
	if c.cfg.MaxConcurrentSessions > 0 && c.Registry.Len() >= c.cfg.MaxConcurrentSessions {
		return "", brokererr.New(brokererr.CodeValidation, "max concurrent sessions reached")
	}
	if _, err := c.Resolver.Get(adapterName); err != nil {
		return "", brokererr.Wrap(brokererr.CodeValidation, "unknown adapter", err)
	}
	if _, err := uuid.Parse(sessionID); err != nil {
		return "", brokererr.Wrap(brokererr.CodeValidation, "session id must be a caller-generated UUID", err)
	}
	if _, exists := c.Registry.Get(sessionID); exists {
		return "", brokererr.New(brokererr.CodeValidation, "session id already in use")
	}

	rt := runtime.New(sessionID, adapterName, opts.Cwd, c.cfg.ConsumerMessageRateLimit, c.now())
	c.Registry.Put(rt)

	if err := c.persistLauncherState(ctx); err != nil {
		logging.Warn().Err(err).Msg("failed to persist launcher state after session create")
	}

	if err := c.Bridge.ConnectBackend(ctx, sessionID, opts); err != nil {
		c.Registry.Remove(sessionID)
		return "", err
	}

	return sessionID, nil
}

// CloseSession tears a session down and removes it from the launcher
// state.
func (c *Coordinator) CloseSession(ctx context.Context, sessionID string) error {
	if err := c.Bridge.CloseSession(sessionID); err != nil {
		return err
	}
	if err := c.persistLauncherState(ctx); err != nil {
		logging.Warn().Err(err).Msg("failed to persist launcher state after session close")
	}
	return nil
}

func (c *Coordinator) persistLauncherState(ctx context.Context) error {
	snapshots := c.Registry.Snapshots()
	infos := make([]types.SessionInfo, 0, len(snapshots))
	for _, s := range snapshots {
		infos = append(infos, types.SessionInfo{
			ID:          s.ID,
			Cwd:         s.Cwd,
			AdapterName: s.AdapterName,
			PID:         s.PID,
			Lifecycle:   s.Lifecycle,
			CreatedAt:   s.CreatedAt,
		})
	}
	return c.Store.SaveLauncherState(ctx, types.LauncherState{Sessions: infos})
}

func (c *Coordinator) reapSession(sessionID string) {
	if err := c.Bridge.CloseSession(sessionID); err != nil {
		logging.ForSession(sessionID).Warn().Err(err).Msg("idle reap failed")
		return
	}
	if c.Metrics != nil {
		c.Metrics.RecordIdleReap()
	}
}

// idleSessionView adapts *runtime.Runtime to policy.IdleSession.
type idleSessionView struct {
	rt *runtime.Runtime
}

func (v idleSessionView) ID() string           { return v.rt.ID() }
func (v idleSessionView) HasBackend() bool     { return v.rt.HasBackend() }
func (v idleSessionView) ConsumerCount() int   { return len(v.rt.Consumers()) }
func (v idleSessionView) LastActivityMs() int64 { return v.rt.LastActivity() }

func (c *Coordinator) listIdleSessions() []policy.IdleSession {
	ids := c.Registry.List()
	out := make([]policy.IdleSession, 0, len(ids))
	for _, id := range ids {
		if rt, ok := c.Registry.Get(id); ok {
			out = append(out, idleSessionView{rt: rt})
		}
	}
	return out
}

func (c *Coordinator) hasInlineCapabilities(sessionID string) bool {
	rt, ok := c.Registry.Get(sessionID)
	if !ok {
		return true
	}
	return len(rt.Snapshot().SlashCommands) > 0
}

func (c *Coordinator) capabilitySessionFor(sessionID string) (policy.CapabilitySession, bool) {
	rt, ok := c.Registry.Get(sessionID)
	if !ok {
		return nil, false
	}
	return rt, true
}

// initializeFrame is the adapter-native control request the capabilities
// negotiator sends over TrySendRawToBackend; every concrete adapter's T3
// decode recognizes a bare "type" field and, for one it doesn't handle
// itself, hands the raw bytes through as the control request body (the
// same wireFrame shape internal/adapter's outbound-spawn adapters already
// speak).
type initializeFrame struct {
	Type          string `json:"type"`
	CorrelationID string `json:"correlationId"`
}

func buildInitializeFrame(sessionID string) []byte {
	data, _ := json.Marshal(initializeFrame{Type: "initialize", CorrelationID: sessionID})
	return data
}

// capabilitiesPayload is what an adapter's control_response is expected
// to carry back for an initialize request.
type capabilitiesPayload struct {
	Models        []string `json:"models"`
	SlashCommands []string `json:"slashCommands"`
	Account       string   `json:"account"`
}

// decodeCapabilitiesResponse parses an adapter's control_response payload
// and folds in the broker's own MCP probe state: the adapter reports
// models/commands/account, but which MCP servers are reachable is
// something only the broker's shared mcpClient knows.
func (c *Coordinator) decodeCapabilitiesResponse(sessionID string, payload []byte) (policy.CapabilitiesResult, error) {
	var p capabilitiesPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return policy.CapabilitiesResult{}, err
	}
	return policy.CapabilitiesResult{
		Models:        p.Models,
		SlashCommands: p.SlashCommands,
		Account:       p.Account,
		MCPServers:    c.connectedMCPServers(),
	}, nil
}
