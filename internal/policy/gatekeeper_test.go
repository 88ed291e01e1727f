package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessionbroker/broker/internal/eventbus"
	"github.com/sessionbroker/broker/pkg/types"
)

func TestGatekeeperAssignsRequestID(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	g := NewGatekeeper(bus)

	req, _ := g.Request("s1", types.PermissionRequest{ToolName: "bash"})
	assert.NotEmpty(t, req.RequestID)
}

func TestGatekeeperFirstReplyWins(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	g := NewGatekeeper(bus)

	req, resolved := g.Request("s1", types.PermissionRequest{ToolName: "bash"})

	g.Respond(req.RequestID, PermissionResolution{Behavior: "allow"})
	g.Respond(req.RequestID, PermissionResolution{Behavior: "deny"})

	select {
	case res := <-resolved:
		assert.Equal(t, "allow", res.Behavior)
	case <-time.After(time.Second):
		t.Fatal("expected resolution")
	}

	assert.False(t, g.Pending(req.RequestID))
}

func TestGatekeeperUnknownReplyIsNoop(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	g := NewGatekeeper(bus)

	assert.NotPanics(t, func() {
		g.Respond("does-not-exist", PermissionResolution{Behavior: "allow"})
	})
}

func TestGatekeeperPublishesRequestedAndResolved(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	g := NewGatekeeper(bus)

	var requested, resolvedEvent eventbus.Event
	bus.Subscribe(eventbus.PermissionRequested, func(ev eventbus.Event) { requested = ev })
	bus.Subscribe(eventbus.PermissionResolved, func(ev eventbus.Event) { resolvedEvent = ev })

	req, _ := g.Request("s1", types.PermissionRequest{ToolName: "edit"})
	g.Respond(req.RequestID, PermissionResolution{Behavior: "deny"})

	require.Eventually(t, func() bool { return requested.Type == eventbus.PermissionRequested }, time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return resolvedEvent.Type == eventbus.PermissionResolved }, time.Second, 10*time.Millisecond)
	assert.Equal(t, "s1", requested.SessionID)
}

func TestGatekeeperCancelSessionDropsPending(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	g := NewGatekeeper(bus)

	req, resolved := g.Request("s1", types.PermissionRequest{ToolName: "bash"})
	g.CancelSession("s1")

	assert.False(t, g.Pending(req.RequestID))
	_, ok := <-resolved
	assert.False(t, ok)
}
