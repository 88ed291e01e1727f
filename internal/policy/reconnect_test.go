package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessionbroker/broker/internal/eventbus"
)

func invertedOnly(name string) bool { return name == "inverted-adapter" }

func TestReconnectWatchdogFiresRelaunchAfterGraceWithNoReconnect(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()

	relaunched := make(chan eventbus.Event, 1)
	bus.Subscribe(eventbus.BackendRelaunchNeeded, func(ev eventbus.Event) { relaunched <- ev })

	w := NewReconnectWatchdog(bus, 20*time.Millisecond, time.Hour, invertedOnly)
	defer w.Stop()

	bus.Publish(eventbus.Event{
		Type:      eventbus.BackendDisconnected,
		SessionID: "sess-1",
		Data:      eventbus.BackendDisconnectedData{AdapterName: "inverted-adapter"},
	})

	select {
	case ev := <-relaunched:
		assert.Equal(t, "sess-1", ev.SessionID)
	case <-time.After(time.Second):
		t.Fatal("expected relaunch event")
	}
}

func TestReconnectWatchdogCancelsTimerOnReconnect(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()

	relaunched := make(chan eventbus.Event, 1)
	bus.Subscribe(eventbus.BackendRelaunchNeeded, func(ev eventbus.Event) { relaunched <- ev })

	w := NewReconnectWatchdog(bus, 20*time.Millisecond, time.Hour, invertedOnly)
	defer w.Stop()

	bus.Publish(eventbus.Event{
		Type:      eventbus.BackendDisconnected,
		SessionID: "sess-1",
		Data:      eventbus.BackendDisconnectedData{AdapterName: "inverted-adapter"},
	})
	bus.Publish(eventbus.Event{
		Type:      eventbus.BackendConnected,
		SessionID: "sess-1",
		Data:      eventbus.BackendConnectedData{AdapterName: "inverted-adapter"},
	})

	select {
	case ev := <-relaunched:
		t.Fatalf("unexpected relaunch event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	require.Eventually(t, func() bool { return !w.Armed("sess-1") }, time.Second, time.Millisecond)
}

func TestReconnectWatchdogIgnoresNonInvertedAdapters(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()

	w := NewReconnectWatchdog(bus, 10*time.Millisecond, time.Hour, invertedOnly)
	defer w.Stop()

	bus.Publish(eventbus.Event{
		Type:      eventbus.BackendDisconnected,
		SessionID: "sess-1",
		Data:      eventbus.BackendDisconnectedData{AdapterName: "outbound-grpc"},
	})

	require.Never(t, func() bool { return w.Armed("sess-1") }, 50*time.Millisecond, time.Millisecond)
}

func TestReconnectWatchdogDedupsRepeatedRelaunches(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()

	var relaunches []eventbus.Event
	done := make(chan struct{})
	bus.Subscribe(eventbus.BackendRelaunchNeeded, func(ev eventbus.Event) {
		relaunches = append(relaunches, ev)
		if len(relaunches) == 1 {
			close(done)
		}
	})

	w := NewReconnectWatchdog(bus, 10*time.Millisecond, time.Hour, invertedOnly)
	defer w.Stop()

	bus.Publish(eventbus.Event{
		Type:      eventbus.BackendDisconnected,
		SessionID: "sess-1",
		Data:      eventbus.BackendDisconnectedData{AdapterName: "inverted-adapter"},
	})
	<-done

	// A second disconnect/grace cycle within the dedup window should not
	// publish a second relaunch.
	bus.Publish(eventbus.Event{
		Type:      eventbus.BackendDisconnected,
		SessionID: "sess-1",
		Data:      eventbus.BackendDisconnectedData{AdapterName: "inverted-adapter"},
	})

	time.Sleep(50 * time.Millisecond)
	assert.Len(t, relaunches, 1)
}
