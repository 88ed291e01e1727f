package policy

import (
	"sync"
	"time"

	"github.com/sessionbroker/broker/internal/eventbus"
	"github.com/sessionbroker/broker/internal/logging"
)

// CapabilitiesResult is what a resolved adapter-native initialize
// control response contributes to a session.
type CapabilitiesResult struct {
	Models        []string
	SlashCommands []string
	Account       string

	// MCPServers lists the MCP servers reachable at negotiation time, per
	// internal/mcp.Client.Status(). Populated by decodeResponse from the
	// broker's own MCP probe state, not from the adapter's payload.
	MCPServers []string
}

// CapabilitySession is the minimal surface the capabilities policy needs
// from a live session; internal/runtime.Runtime satisfies it without the
// policy importing that package directly.
type CapabilitySession interface {
	StorePendingInitialize() <-chan []byte
	CancelPendingInitialize()
	TrySendRawToBackend(data []byte) error
}

// CapabilitiesNegotiator implements the capabilities policy of spec.md
// §4.6: on backend connect, if the adapter did not supply capabilities
// inline, it sends an adapter-native initialize control request and holds
// the response with a timeout, applying commands/models/account and
// broadcasting capabilities_ready on success, or emitting
// capabilities:timeout and proceeding without them.
type CapabilitiesNegotiator struct {
	mu sync.Mutex

	bus     *eventbus.Bus
	timeout time.Duration

	hasInlineCapabilities func(sessionID string) bool
	sessionFor            func(sessionID string) (CapabilitySession, bool)
	buildInitializeFrame  func(sessionID string) []byte
	decodeResponse        func(sessionID string, payload []byte) (CapabilitiesResult, error)

	inFlight map[string]struct{}

	unsubscribe func()
}

// NewCapabilitiesNegotiator creates a negotiator bound to bus.
//
//   - hasInlineCapabilities reports whether session_init already carried
//     capabilities, in which case negotiation is skipped entirely.
//   - sessionFor looks up the live session to negotiate with.
//   - buildInitializeFrame encodes the adapter-native initialize request.
//   - decodeResponse parses the control_response payload into a result.
func NewCapabilitiesNegotiator(
	bus *eventbus.Bus,
	timeout time.Duration,
	hasInlineCapabilities func(sessionID string) bool,
	sessionFor func(sessionID string) (CapabilitySession, bool),
	buildInitializeFrame func(sessionID string) []byte,
	decodeResponse func(sessionID string, payload []byte) (CapabilitiesResult, error),
) *CapabilitiesNegotiator {
	n := &CapabilitiesNegotiator{
		bus:                   bus,
		timeout:               timeout,
		hasInlineCapabilities: hasInlineCapabilities,
		sessionFor:            sessionFor,
		buildInitializeFrame:  buildInitializeFrame,
		decodeResponse:        decodeResponse,
		inFlight:              make(map[string]struct{}),
	}

	n.unsubscribe = bus.Subscribe(eventbus.BackendConnected, n.onBackendConnected)

	return n
}

// Stop unsubscribes from the bus.
func (n *CapabilitiesNegotiator) Stop() {
	if n.unsubscribe != nil {
		n.unsubscribe()
	}
}

func (n *CapabilitiesNegotiator) onBackendConnected(ev eventbus.Event) {
	sessionID := ev.SessionID

	if n.hasInlineCapabilities(sessionID) {
		return
	}

	session, ok := n.sessionFor(sessionID)
	if !ok {
		return
	}

	n.mu.Lock()
	if _, already := n.inFlight[sessionID]; already {
		n.mu.Unlock()
		return
	}
	n.inFlight[sessionID] = struct{}{}
	n.mu.Unlock()

	go n.negotiate(sessionID, session)
}

func (n *CapabilitiesNegotiator) negotiate(sessionID string, session CapabilitySession) {
	defer func() {
		n.mu.Lock()
		delete(n.inFlight, sessionID)
		n.mu.Unlock()
	}()

	responses := session.StorePendingInitialize()

	frame := n.buildInitializeFrame(sessionID)
	if err := session.TrySendRawToBackend(frame); err != nil {
		session.CancelPendingInitialize()
		logging.ForSession(sessionID).Warn().Err(err).Msg("failed to send adapter-native initialize request")
		n.bus.Publish(eventbus.Event{
			Type:      eventbus.CapabilitiesTimeout,
			SessionID: sessionID,
			Data:      eventbus.CapabilitiesTimeoutData{Waited: "0s"},
		})
		return
	}

	select {
	case payload := <-responses:
		result, err := n.decodeResponse(sessionID, payload)
		if err != nil {
			logging.ForSession(sessionID).Warn().Err(err).Msg("failed to decode adapter-native initialize response")
			n.bus.Publish(eventbus.Event{
				Type:      eventbus.CapabilitiesTimeout,
				SessionID: sessionID,
				Data:      eventbus.CapabilitiesTimeoutData{Waited: n.timeout.String()},
			})
			return
		}
		n.bus.Publish(eventbus.Event{
			Type:      eventbus.CapabilitiesReady,
			SessionID: sessionID,
			Data: eventbus.CapabilitiesReadyData{
				Models:        result.Models,
				SlashCommands: result.SlashCommands,
				Account:       result.Account,
				MCPServers:    result.MCPServers,
			},
		})
	case <-time.After(n.timeout):
		session.CancelPendingInitialize()
		n.bus.Publish(eventbus.Event{
			Type:      eventbus.CapabilitiesTimeout,
			SessionID: sessionID,
			Data:      eventbus.CapabilitiesTimeoutData{Waited: n.timeout.String()},
		})
	}
}
