// Package eventbus provides the broker's internal domain event bus
// (spec §4.6): a typed pub/sub carrying events independent of the public
// per-session consumer stream — consumer:connected, backend:connected,
// permission:requested, team state changes, and so on. Policy services
// (internal/policy) subscribe to this bus and must not reach into each
// other's state directly.
//
// The bus is built on watermill's in-process gochannel for its
// infrastructure while keeping direct-call subscriber dispatch so event
// payloads keep their concrete Go type instead of being reduced to
// bytes — the same tradeoff the teacher codebase made for its own event
// bus.
package eventbus

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Type is the closed set of domain event kinds carried on the bus.
type Type string

const (
	ConsumerConnected      Type = "consumer:connected"
	ConsumerDisconnected   Type = "consumer:disconnected"
	BackendConnected       Type = "backend:connected"
	BackendDisconnected    Type = "backend:disconnected"
	SessionClosed          Type = "session:closed"
	PermissionRequested    Type = "permission:requested"
	PermissionResolved     Type = "permission:resolved"
	FirstTurnCompleted     Type = "first_turn_completed"
	CapabilitiesReady      Type = "capabilities:ready"
	CapabilitiesTimeout    Type = "capabilities:timeout"
	BackendRelaunchNeeded  Type = "backend:relaunch_needed"
	TeamStateChanged       Type = "team:state_changed"
	AuthFailed             Type = "auth:failed"
)

// Event is one item published on the bus.
type Event struct {
	Type      Type
	SessionID string
	Data      any
}

// Subscriber receives events synchronously or asynchronously depending
// on which Publish variant delivered the event.
type Subscriber func(Event)

type subscriberEntry struct {
	id uint64
	fn Subscriber
}

// Bus is the event bus. The zero value is not usable; construct with New.
type Bus struct {
	mu sync.RWMutex

	pubsub *gochannel.GoChannel

	subscribers map[Type][]subscriberEntry
	global      []subscriberEntry

	nextID       uint64
	closed       bool
	closedCancel context.CancelFunc
	closedCtx    context.Context
}

// New creates a new, independent event bus.
func New() *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer: 100,
				Persistent:          false,
			},
			watermill.NopLogger{},
		),
		subscribers:  make(map[Type][]subscriberEntry),
		closedCtx:    ctx,
		closedCancel: cancel,
	}
}

func (b *Bus) newID() uint64 {
	return atomic.AddUint64(&b.nextID, 1)
}

// Subscribe registers fn for events of the given type. The returned
// function unsubscribes.
func (b *Bus) Subscribe(t Type, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := b.newID()
	b.subscribers[t] = append(b.subscribers[t], subscriberEntry{id: id, fn: fn})
	return func() { b.unsubscribe(t, id) }
}

// SubscribeAll registers fn for every event type.
func (b *Bus) SubscribeAll(fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := b.newID()
	b.global = append(b.global, subscriberEntry{id: id, fn: fn})
	return func() { b.unsubscribeGlobal(id) }
}

func (b *Bus) unsubscribe(t Type, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[t]
	for i, e := range subs {
		if e.id == id {
			b.subscribers[t] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

func (b *Bus) unsubscribeGlobal(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, e := range b.global {
		if e.id == id {
			b.global = append(b.global[:i], b.global[i+1:]...)
			return
		}
	}
}

func (b *Bus) collect(t Type) []Subscriber {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil
	}

	subs := make([]Subscriber, 0, len(b.subscribers[t])+len(b.global))
	for _, e := range b.subscribers[t] {
		subs = append(subs, e.fn)
	}
	for _, e := range b.global {
		subs = append(subs, e.fn)
	}
	return subs
}

// Publish delivers ev to subscribers asynchronously: each subscriber
// runs in its own goroutine so a slow subscriber never blocks the
// publisher or its siblings.
func (b *Bus) Publish(ev Event) {
	for _, sub := range b.collect(ev.Type) {
		go sub(ev)
	}
}

// PublishSync delivers ev to every subscriber synchronously, in the
// calling goroutine, before returning. Required wherever ordering
// matters — e.g. the router's broadcast-then-history sequence — since
// Publish's per-subscriber goroutines offer no ordering guarantee
// relative to each other or to the caller's next statement.
func (b *Bus) PublishSync(ev Event) {
	for _, sub := range b.collect(ev.Type) {
		sub(ev)
	}
}

// Close shuts the bus down; subsequent Subscribe/Publish calls are
// no-ops.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.closedCancel()
	b.subscribers = make(map[Type][]subscriberEntry)
	b.global = nil
	b.mu.Unlock()

	return b.pubsub.Close()
}

// Done returns a context cancelled when the bus is closed, for
// collaborators that want to select on bus lifetime.
func (b *Bus) Done() <-chan struct{} {
	return b.closedCtx.Done()
}
