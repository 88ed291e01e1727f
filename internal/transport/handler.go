package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/coder/websocket"
	"github.com/oklog/ulid/v2"

	"github.com/sessionbroker/broker/internal/eventbus"
	"github.com/sessionbroker/broker/internal/logging"
	"github.com/sessionbroker/broker/internal/runtime"
	"github.com/sessionbroker/broker/pkg/types"
)

// DefaultReplayCount is how many recent messages a consumer with no
// lastSeenSeq receives as initial state (spec.md §4.5, "default 20").
const DefaultReplayCount = 20

// DefaultMaxMessageBytes bounds one inbound consumer frame (spec.md §6,
// "default 1 MiB").
const DefaultMaxMessageBytes = 1 << 20

// Authenticator validates a consumer's upgrade request before the socket
// is accepted. Returning an error rejects the connection and publishes
// auth:failed.
type Authenticator interface {
	Authenticate(r *http.Request) error
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(r *http.Request) error

func (f AuthenticatorFunc) Authenticate(r *http.Request) error { return f(r) }

// AllowAll is an Authenticator that accepts every request, for local
// development or adapters that authenticate some other way.
var AllowAll Authenticator = AuthenticatorFunc(func(*http.Request) error { return nil })

// InboundRouter dispatches one parsed consumer frame into the bridge's
// inbound pipeline (T1 normalize, then Route). Supplied by
// internal/bridge; the transport layer never interprets frame contents
// beyond its own tagged-union envelope.
type InboundRouter interface {
	RouteInbound(ctx context.Context, sessionID, consumerID string, msg types.InboundMessage) error
}

// RateLimitRecorder observes a consumer message rejected by a session's
// rate limiter. internal/metrics provides the real implementation.
type RateLimitRecorder interface {
	RecordRateLimitDrop(sessionID string)
}

// Handler upgrades consumer HTTP requests to WebSocket connections and
// runs the per-connection lifecycle of spec.md §4.5.
type Handler struct {
	Registry        *runtime.Registry
	Hub             *Hub
	Bus             *eventbus.Bus
	Auth            Authenticator
	Router          InboundRouter
	MaxMessageSize  int64
	BufferThreshold int
	OriginPatterns  []string

	// RateLimiter is optional; nil disables rate-limit drop metrics.
	RateLimiter RateLimitRecorder
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	auth := h.Auth
	if auth == nil {
		auth = AllowAll
	}

	if err := auth.Authenticate(r); err != nil {
		h.publish(eventbus.AuthFailed, "", eventbus.AuthFailedData{Reason: err.Error()})
		writeStructuredError(w, http.StatusUnauthorized, "authentication failed", "auth_failed")
		return
	}

	sessionID := r.URL.Query().Get("sessionId")
	rt, ok := h.Registry.Get(sessionID)
	if !ok || sessionID == "" {
		writeStructuredError(w, http.StatusNotFound, "unknown session", "unknown_session")
		return
	}

	consumerID := r.URL.Query().Get("consumerId")
	if consumerID == "" || !h.knownConsumer(rt, consumerID) {
		consumerID = ulid.Make().String()
	}

	role := types.RoleParticipant
	if r.URL.Query().Get("role") == string(types.RoleObserver) {
		role = types.RoleObserver
	}

	maxSize := h.MaxMessageSize
	if maxSize <= 0 {
		maxSize = DefaultMaxMessageBytes
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.OriginPatterns})
	if err != nil {
		logging.ForSession(sessionID).Warn().Err(err).Msg("websocket accept failed")
		return
	}
	conn.SetReadLimit(maxSize)

	sock := NewSocket(conn, sessionID, consumerID, h.BufferThreshold)
	h.Hub.Attach(sessionID, consumerID, role, sock)
	rt.AddConsumer(types.ConsumerIdentity{ConsumerID: consumerID, Role: role})
	h.publish(eventbus.ConsumerConnected, sessionID, eventbus.ConsumerConnectedData{ConsumerID: consumerID, Role: role})

	h.sendInitialState(rt, sessionID, consumerID, r)

	h.readLoop(r.Context(), rt, sessionID, consumerID, conn, sock)

	h.Hub.Detach(sessionID, consumerID, sock)
	rt.RemoveConsumer(consumerID)
	h.publish(eventbus.ConsumerDisconnected, sessionID, eventbus.ConsumerDisconnectedData{ConsumerID: consumerID})
}

func (h *Handler) knownConsumer(rt *runtime.Runtime, consumerID string) bool {
	_, ok := rt.Consumers()[consumerID]
	return ok
}

func (h *Handler) sendInitialState(rt *runtime.Runtime, sessionID, consumerID string, r *http.Request) {
	var replay []types.Sequenced
	if raw := r.URL.Query().Get("lastSeenSeq"); raw != "" {
		if seq, err := strconv.ParseUint(raw, 10, 64); err == nil {
			replay = h.Hub.ReplaySince(sessionID, seq)
		}
	} else {
		replay = h.Hub.ReplayLastN(sessionID, DefaultReplayCount)
	}

	for _, entry := range replay {
		h.Hub.SendTo(sessionID, consumerID, entry.Payload)
	}

	h.Hub.SendTo(sessionID, consumerID, types.ConsumerMessage{
		Type:      types.CMCLIConnected,
		SessionID: sessionID,
	})
}

func (h *Handler) readLoop(ctx context.Context, rt *runtime.Runtime, sessionID, consumerID string, conn *websocket.Conn, sock *Socket) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		limiter := rt.RateLimiterFor(consumerID)
		if limiter != nil && !limiter.Allow() {
			if h.RateLimiter != nil {
				h.RateLimiter.RecordRateLimitDrop(sessionID)
			}
			h.Hub.SendTo(sessionID, consumerID, types.ConsumerMessage{
				Type:      types.CMError,
				SessionID: sessionID,
				Payload:   types.ErrorMessage{Message: "rate limit exceeded", Code: "rate_limited"},
			})
			continue
		}

		var msg types.InboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.Hub.SendTo(sessionID, consumerID, types.ConsumerMessage{
				Type:      types.CMError,
				SessionID: sessionID,
				Payload:   types.ErrorMessage{Message: "malformed frame", Code: "validation"},
			})
			continue
		}

		if h.Router == nil {
			continue
		}
		if err := h.Router.RouteInbound(ctx, sessionID, consumerID, msg); err != nil {
			logging.ForSession(sessionID).Warn().Err(err).Str("consumerID", consumerID).Msg("inbound routing failed")
		}
	}
}

func (h *Handler) publish(t eventbus.Type, sessionID string, data any) {
	if h.Bus == nil {
		return
	}
	h.Bus.Publish(eventbus.Event{Type: t, SessionID: sessionID, Data: data})
}

func writeStructuredError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorMessage{Message: message, Code: code})
}
