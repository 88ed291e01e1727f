package eventbus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSubscribeReceivesMatchingType(t *testing.T) {
	b := New()
	defer b.Close()

	var got Event
	done := make(chan struct{})
	b.Subscribe(PermissionRequested, func(ev Event) {
		got = ev
		close(done)
	})

	b.Publish(Event{Type: PermissionRequested, SessionID: "s1", Data: 42})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("subscriber never called")
	}

	assert.Equal(t, "s1", got.SessionID)
	assert.Equal(t, 42, got.Data)
}

func TestSubscribeIgnoresOtherTypes(t *testing.T) {
	b := New()
	defer b.Close()

	called := false
	b.Subscribe(PermissionRequested, func(ev Event) { called = true })

	b.PublishSync(Event{Type: BackendConnected})

	assert.False(t, called)
}

func TestSubscribeAllReceivesEverything(t *testing.T) {
	b := New()
	defer b.Close()

	var mu sync.Mutex
	var types []Type
	b.SubscribeAll(func(ev Event) {
		mu.Lock()
		types = append(types, ev.Type)
		mu.Unlock()
	})

	b.PublishSync(Event{Type: ConsumerConnected})
	b.PublishSync(Event{Type: SessionClosed})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Type{ConsumerConnected, SessionClosed}, types)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	defer b.Close()

	calls := 0
	unsubscribe := b.Subscribe(AuthFailed, func(ev Event) { calls++ })
	b.PublishSync(Event{Type: AuthFailed})
	unsubscribe()
	b.PublishSync(Event{Type: AuthFailed})

	assert.Equal(t, 1, calls)
}

func TestPublishSyncPreservesOrder(t *testing.T) {
	b := New()
	defer b.Close()

	var order []int
	b.Subscribe(TeamStateChanged, func(ev Event) {
		order = append(order, ev.Data.(int))
	})

	for i := 0; i < 5; i++ {
		b.PublishSync(Event{Type: TeamStateChanged, Data: i})
	}

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestCloseStopsFurtherDelivery(t *testing.T) {
	b := New()

	calls := 0
	b.Subscribe(SessionClosed, func(ev Event) { calls++ })

	require := b.Close()
	assert.NoError(t, require)

	b.PublishSync(Event{Type: SessionClosed})
	assert.Equal(t, 0, calls)

	select {
	case <-b.Done():
	default:
		t.Fatal("expected Done() channel closed after Close")
	}
}
