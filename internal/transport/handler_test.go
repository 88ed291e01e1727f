package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessionbroker/broker/internal/runtime"
	"github.com/sessionbroker/broker/pkg/types"
)

func newTestRuntime(id string) *runtime.Runtime {
	return runtime.New(id, "test-adapter", "/tmp", types.RateLimitConfig{TokensPerSecond: 100, BurstSize: 100}, 1000)
}

func TestHandlerRejectsUnauthenticatedRequest(t *testing.T) {
	reg := runtime.NewRegistry()
	h := &Handler{
		Registry: reg,
		Hub:      NewHub(nil, 100),
		Auth: AuthenticatorFunc(func(*http.Request) error {
			return assert.AnError
		}),
	}

	req := httptest.NewRequest(http.MethodGet, "/ws?sessionId=sess-1", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandlerRejectsUnknownSession(t *testing.T) {
	reg := runtime.NewRegistry()
	h := &Handler{Registry: reg, Hub: NewHub(nil, 100)}

	req := httptest.NewRequest(http.MethodGet, "/ws?sessionId=does-not-exist", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerKnownConsumerReusesExistingID(t *testing.T) {
	rt := newTestRuntime("sess-1")
	rt.AddConsumer(types.ConsumerIdentity{ConsumerID: "existing", Role: types.RoleParticipant})

	h := &Handler{}
	assert.True(t, h.knownConsumer(rt, "existing"))
	assert.False(t, h.knownConsumer(rt, "unknown-id"))
}

func TestHandlerSendInitialStateReplaysSinceLastSeenSeq(t *testing.T) {
	rt := newTestRuntime("sess-1")
	hub := NewHub(nil, 100)
	hub.Broadcast("sess-1", "m1", types.ConsumerMessage{Type: types.CMAssistant})
	hub.Broadcast("sess-1", "m2", types.ConsumerMessage{Type: types.CMAssistant})

	sink := &fakeSink{}
	hub.Attach("sess-1", "c1", types.RoleParticipant, sink)

	h := &Handler{Hub: hub}
	req := httptest.NewRequest(http.MethodGet, "/ws?sessionId=sess-1&lastSeenSeq=1", nil)
	h.sendInitialState(rt, "sess-1", "c1", req)

	// One replayed message (seq 2) plus the cli_connected marker.
	require.Equal(t, 2, sink.count())
}

func TestHandlerSendInitialStateDefaultsToLastN(t *testing.T) {
	rt := newTestRuntime("sess-1")
	hub := NewHub(nil, 100)
	for i := 0; i < 3; i++ {
		hub.Broadcast("sess-1", "m", types.ConsumerMessage{Type: types.CMAssistant})
	}

	sink := &fakeSink{}
	hub.Attach("sess-1", "c1", types.RoleParticipant, sink)

	h := &Handler{Hub: hub}
	req := httptest.NewRequest(http.MethodGet, "/ws?sessionId=sess-1", nil)
	h.sendInitialState(rt, "sess-1", "c1", req)

	// All 3 replayed messages plus the cli_connected marker.
	require.Equal(t, 4, sink.count())
}

type fakeRouter struct {
	routed []types.InboundMessage
}

func (f *fakeRouter) RouteInbound(_ context.Context, _, _ string, msg types.InboundMessage) error {
	f.routed = append(f.routed, msg)
	return nil
}
