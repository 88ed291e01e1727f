// Package policy implements the independent policy services of spec.md
// §4.6 — reconnect watchdog, idle reaper, capabilities negotiation,
// permission gatekeeper, and the sliding-window circuit breaker. Each
// service subscribes to the shared domain event bus and must not reach
// into another policy's state directly.
package policy

import (
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/sessionbroker/broker/internal/eventbus"
	"github.com/sessionbroker/broker/internal/logging"
	"github.com/sessionbroker/broker/pkg/types"
)

// PermissionResolution is what a participant's permission_response
// resolves to.
type PermissionResolution struct {
	Behavior           string
	UpdatedInput       map[string]any
	UpdatedPermissions []string
	Message            string
}

type pendingPermission struct {
	sessionID string
	resolved  chan PermissionResolution
}

// Gatekeeper is the permission gatekeeper: it assigns request ids, holds
// requests pending a reply, and accepts the first reply from any
// participant. An unknown reply id is a silent no-op with a warn log,
// matching the teacher's own Checker.Respond semantics.
type Gatekeeper struct {
	mu      sync.Mutex
	pending map[string]*pendingPermission
	bus     *eventbus.Bus
}

// NewGatekeeper creates a Gatekeeper that publishes permission lifecycle
// events on bus.
func NewGatekeeper(bus *eventbus.Bus) *Gatekeeper {
	return &Gatekeeper{
		pending: make(map[string]*pendingPermission),
		bus:     bus,
	}
}

// Request registers req as pending, assigning a request id if req doesn't
// already carry one, and publishes permission:requested so the consumer
// broadcaster can surface it to participants. The returned channel
// receives exactly one resolution.
func (g *Gatekeeper) Request(sessionID string, req types.PermissionRequest) (types.PermissionRequest, <-chan PermissionResolution) {
	if req.RequestID == "" {
		req.RequestID = ulid.Make().String()
	}

	resolved := make(chan PermissionResolution, 1)

	g.mu.Lock()
	g.pending[req.RequestID] = &pendingPermission{sessionID: sessionID, resolved: resolved}
	g.mu.Unlock()

	g.bus.Publish(eventbus.Event{
		Type:      eventbus.PermissionRequested,
		SessionID: sessionID,
		Data:      eventbus.PermissionRequestedData{Request: req},
	})

	return req, resolved
}

// Respond resolves the first reply for requestID; subsequent replies to
// the same id are no-ops because the entry is removed on first resolve.
// A reply to an id that was never registered (or already resolved) is a
// silent no-op with a warn log, matching spec.md §4.6.
func (g *Gatekeeper) Respond(requestID string, resolution PermissionResolution) {
	g.mu.Lock()
	pending, ok := g.pending[requestID]
	if ok {
		delete(g.pending, requestID)
	}
	g.mu.Unlock()

	if !ok {
		logging.Warn().Str("requestID", requestID).Msg("permission response for unknown or already-resolved request id")
		return
	}

	pending.resolved <- resolution
	close(pending.resolved)

	g.bus.Publish(eventbus.Event{
		Type:      eventbus.PermissionResolved,
		SessionID: pending.sessionID,
		Data:      eventbus.PermissionResolvedData{RequestID: requestID, Behavior: resolution.Behavior},
	})
}

// CancelSession drops every pending request belonging to sessionID
// without resolving it, used when a session is closed out from under an
// outstanding permission request.
func (g *Gatekeeper) CancelSession(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for id, pending := range g.pending {
		if pending.sessionID == sessionID {
			close(pending.resolved)
			delete(g.pending, id)
		}
	}
}

// Pending reports whether requestID is still awaiting a reply.
func (g *Gatekeeper) Pending(requestID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.pending[requestID]
	return ok
}
