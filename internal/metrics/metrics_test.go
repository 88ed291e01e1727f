package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessionbroker/broker/internal/policy"
)

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestRecordBroadcastDrop(t *testing.T) {
	c := New()
	c.RecordBroadcastDrop("sess-1")
	c.RecordBroadcastDrop("sess-1")

	body := scrape(t, c)
	assert.Contains(t, body, `broker_broadcast_drops_total{session_id="sess-1"} 2`)
}

func TestRecordRateLimitDrop(t *testing.T) {
	c := New()
	c.RecordRateLimitDrop("sess-2")

	body := scrape(t, c)
	assert.Contains(t, body, `broker_rate_limit_drops_total{session_id="sess-2"} 1`)
}

func TestRecordIdleReap(t *testing.T) {
	c := New()
	c.RecordIdleReap()
	c.RecordIdleReap()
	c.RecordIdleReap()

	body := scrape(t, c)
	assert.Contains(t, body, "broker_idle_reaps_total 3")
}

func TestObserveBreakerState(t *testing.T) {
	c := New()

	c.ObserveBreakerState("claude", policy.StateClosed)
	body := scrape(t, c)
	assert.Contains(t, body, `broker_circuit_breaker_state{adapter="claude"} 0`)
	assert.False(t, strings.Contains(body, "broker_circuit_breaker_trips_total"))

	c.ObserveBreakerState("claude", policy.StateOpen)
	body = scrape(t, c)
	assert.Contains(t, body, `broker_circuit_breaker_state{adapter="claude"} 2`)
	assert.Contains(t, body, `broker_circuit_breaker_trips_total{adapter="claude"} 1`)

	c.ObserveBreakerState("claude", policy.StateHalfOpen)
	body = scrape(t, c)
	assert.Contains(t, body, `broker_circuit_breaker_state{adapter="claude"} 1`)
}
