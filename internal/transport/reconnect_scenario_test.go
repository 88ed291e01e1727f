package transport

import (
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sessionbroker/broker/internal/runtime"
	"github.com/sessionbroker/broker/pkg/types"
)

func TestReconnectionReplay(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Reconnection Replay Suite")
}

// These specs exercise the Hub/Handler reconnection path end to end: a
// consumer that drops off and comes back with lastSeenSeq gets exactly
// the frames it missed, and one with no prior sequence at all falls back
// to the last-N window, both on top of a cli_connected marker.
var _ = Describe("Reconnection replay", func() {
	var (
		rt   *runtime.Runtime
		hub  *Hub
		h    *Handler
		sink *fakeSink
	)

	BeforeEach(func() {
		rt = runtime.New("sess-1", "test-adapter", "/tmp", types.RateLimitConfig{TokensPerSecond: 100, BurstSize: 100}, 1000)
		hub = NewHub(nil, 100)
		h = &Handler{Hub: hub}
		sink = &fakeSink{}
	})

	Context("a consumer reconnecting with a known lastSeenSeq", func() {
		It("replays only the frames broadcast after that sequence", func() {
			hub.Broadcast("sess-1", "m1", types.ConsumerMessage{Type: types.CMAssistant})
			hub.Broadcast("sess-1", "m2", types.ConsumerMessage{Type: types.CMAssistant})
			hub.Broadcast("sess-1", "m3", types.ConsumerMessage{Type: types.CMAssistant})

			hub.Attach("sess-1", "c1", types.RoleParticipant, sink)
			req := httptest.NewRequest(http.MethodGet, "/ws?sessionId=sess-1&lastSeenSeq=1", nil)
			h.sendInitialState(rt, "sess-1", "c1", req)

			// Seq 2 and 3 replayed, plus the cli_connected marker.
			Expect(sink.count()).To(Equal(3))
		})

		It("replays nothing beyond the marker when already caught up", func() {
			hub.Broadcast("sess-1", "m1", types.ConsumerMessage{Type: types.CMAssistant})

			hub.Attach("sess-1", "c1", types.RoleParticipant, sink)
			req := httptest.NewRequest(http.MethodGet, "/ws?sessionId=sess-1&lastSeenSeq=1", nil)
			h.sendInitialState(rt, "sess-1", "c1", req)

			Expect(sink.count()).To(Equal(1))
		})
	})

	Context("a consumer reconnecting with no lastSeenSeq", func() {
		It("falls back to the last-N replay window", func() {
			for i := 0; i < DefaultReplayCount+5; i++ {
				hub.Broadcast("sess-1", "m", types.ConsumerMessage{Type: types.CMAssistant})
			}

			hub.Attach("sess-1", "c1", types.RoleParticipant, sink)
			req := httptest.NewRequest(http.MethodGet, "/ws?sessionId=sess-1", nil)
			h.sendInitialState(rt, "sess-1", "c1", req)

			// DefaultReplayCount frames replayed, plus the cli_connected marker.
			Expect(sink.count()).To(Equal(DefaultReplayCount + 1))
		})
	})

	Context("a fresh session with no history", func() {
		It("sends only the cli_connected marker", func() {
			hub.Attach("sess-1", "c1", types.RoleParticipant, sink)
			req := httptest.NewRequest(http.MethodGet, "/ws?sessionId=sess-1", nil)
			h.sendInitialState(rt, "sess-1", "c1", req)

			Expect(sink.count()).To(Equal(1))
		})
	})
})
