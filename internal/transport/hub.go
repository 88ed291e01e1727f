package transport

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"go.opentelemetry.io/otel/attribute"

	"github.com/sessionbroker/broker/internal/logging"
	"github.com/sessionbroker/broker/internal/tracing"
	"github.com/sessionbroker/broker/pkg/types"
)

// DropRecorder observes backpressure drops for metrics.
// internal/metrics provides the real implementation; NewHub installs a
// no-op so tests and early wiring don't need one.
type DropRecorder interface {
	RecordBroadcastDrop(sessionID string)
}

type noopDropRecorder struct{}

func (noopDropRecorder) RecordBroadcastDrop(string) {}

// Sink is the delivery side of one consumer connection the hub fans
// messages out to. *Socket is the real WebSocket-backed implementation;
// tests substitute an in-memory fake.
type Sink interface {
	Send(payload []byte) bool
	Close(code websocket.StatusCode, reason string)
}

// Hub fans projected consumer messages out to a session's attached
// sockets (spec.md §4.4) and implements internal/unifiedmsg.Broadcaster.
// It owns the live socket set and the replay buffer the reconnection
// handler consults.
type Hub struct {
	mu      sync.RWMutex
	sockets map[string]map[string]Sink // sessionID -> consumerID -> sink
	roles   map[string]map[string]types.ConsumerRole

	seqs   map[string]*uint64
	replay *ReplayBuffer

	tracer  *tracing.Tracer
	metrics DropRecorder
	now     func() int64
}

// NewHub creates a hub backed by a replay buffer of the given capacity;
// a capacity <= 0 uses NewReplayBuffer's default. A nil tracer uses
// tracing.NoOp().
func NewHub(tracer *tracing.Tracer, replayCapacity int) *Hub {
	if tracer == nil {
		tracer = tracing.NoOp()
	}
	return &Hub{
		sockets: make(map[string]map[string]Sink),
		roles:   make(map[string]map[string]types.ConsumerRole),
		seqs:    make(map[string]*uint64),
		replay:  NewReplayBuffer(replayCapacity),
		tracer:  tracer,
		metrics: noopDropRecorder{},
		now:     func() int64 { return time.Now().UnixMilli() },
	}
}

// SetMetrics installs a DropRecorder, replacing the no-op default.
func (h *Hub) SetMetrics(m DropRecorder) {
	if m != nil {
		h.metrics = m
	}
}

// Attach registers sock under sessionID/consumerID with role, replacing any
// prior socket registered for the same consumer id.
func (h *Hub) Attach(sessionID, consumerID string, role types.ConsumerRole, sock Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sockets[sessionID] == nil {
		h.sockets[sessionID] = make(map[string]Sink)
		h.roles[sessionID] = make(map[string]types.ConsumerRole)
	}
	if prior, ok := h.sockets[sessionID][consumerID]; ok && prior != sock {
		prior.Close(websocket.StatusNormalClosure, "replaced by reconnect")
	}
	h.sockets[sessionID][consumerID] = sock
	h.roles[sessionID][consumerID] = role
}

// Detach removes consumerID's socket from sessionID, if sock still matches
// what's registered (guards against a stale Detach racing a newer Attach).
func (h *Hub) Detach(sessionID, consumerID string, sock Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.sockets[sessionID][consumerID]; ok && current == sock {
		delete(h.sockets[sessionID], consumerID)
		delete(h.roles[sessionID], consumerID)
	}
	if len(h.sockets[sessionID]) == 0 {
		delete(h.sockets, sessionID)
		delete(h.roles, sessionID)
	}
}

// DropSession closes every socket currently attached to sessionID and
// discards its replay buffer and sequence counter, called on session
// close (spec.md §4.7's closeSession: "close all consumer sockets").
func (h *Hub) DropSession(sessionID string) {
	h.mu.Lock()
	sockets := h.sockets[sessionID]
	delete(h.sockets, sessionID)
	delete(h.roles, sessionID)
	delete(h.seqs, sessionID)
	h.mu.Unlock()

	for _, sock := range sockets {
		sock.Close(websocket.StatusNormalClosure, "session closed")
	}
	h.replay.Drop(sessionID)
}

func (h *Hub) nextSeq(sessionID string) uint64 {
	h.mu.Lock()
	counter, ok := h.seqs[sessionID]
	if !ok {
		counter = new(uint64)
		h.seqs[sessionID] = counter
	}
	h.mu.Unlock()
	return atomic.AddUint64(counter, 1)
}

// Broadcast sends msg to every consumer attached to sessionID (spec.md
// §4.4's plain `broadcast`). It always returns the assigned Sequenced
// envelope, even if every recipient was dropped, since the router still
// needs Seq/MessageID/Timestamp for history bookkeeping.
func (h *Hub) Broadcast(sessionID, correlationID string, msg types.ConsumerMessage) types.Sequenced {
	return h.send(sessionID, correlationID, msg, false)
}

// BroadcastToParticipants is Broadcast restricted to participant-role
// consumers, skipping observers.
func (h *Hub) BroadcastToParticipants(sessionID, correlationID string, msg types.ConsumerMessage) types.Sequenced {
	return h.send(sessionID, correlationID, msg, true)
}

func (h *Hub) send(sessionID, correlationID string, msg types.ConsumerMessage, participantsOnly bool) types.Sequenced {
	seq := types.Sequenced{
		Seq:       h.nextSeq(sessionID),
		MessageID: correlationID,
		Timestamp: h.now(),
		Payload:   msg,
	}

	payload, err := json.Marshal(seq)
	if err != nil {
		logging.ForSession(sessionID).Error().Err(err).Msg("failed to encode consumer message")
		return seq
	}

	h.replay.Record(sessionID, seq)

	h.mu.RLock()
	sockets := h.sockets[sessionID]
	roles := h.roles[sessionID]
	targets := make([]Sink, 0, len(sockets))
	for consumerID, sock := range sockets {
		if participantsOnly && roles[consumerID] == types.RoleObserver {
			continue
		}
		targets = append(targets, sock)
	}
	h.mu.RUnlock()

	for _, sock := range targets {
		if !sock.Send(payload) {
			h.metrics.RecordBroadcastDrop(sessionID)
		}
	}

	_, span := h.tracer.Start(context.Background(), "message:outbound",
		attribute.String("sessionID", sessionID),
		attribute.String("consumerMessageType", string(msg.Type)),
	)
	span.End()

	return seq
}

// SendTo delivers msg directly to one consumer's socket, bypassing the
// session-wide fan-out — used for connection-local replies like
// cli_connected that only the newly attached consumer should see.
func (h *Hub) SendTo(sessionID, consumerID string, msg types.ConsumerMessage) bool {
	h.mu.RLock()
	sock, ok := h.sockets[sessionID][consumerID]
	h.mu.RUnlock()
	if !ok {
		return false
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		logging.ForSession(sessionID).Error().Err(err).Msg("failed to encode direct consumer message")
		return false
	}
	return sock.Send(payload)
}

// ReplaySince returns every sequenced message recorded for sessionID since
// afterSeq, used on reconnect when the client supplied a lastSeenSeq.
func (h *Hub) ReplaySince(sessionID string, afterSeq uint64) []types.Sequenced {
	return h.replay.Since(sessionID, afterSeq)
}

// ReplayLastN returns the most recent n sequenced messages for sessionID,
// used as initial state for a consumer with no lastSeenSeq.
func (h *Hub) ReplayLastN(sessionID string, n int) []types.Sequenced {
	return h.replay.LastN(sessionID, n)
}
