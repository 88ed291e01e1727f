package policy

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/sessionbroker/broker/internal/eventbus"
)

// ReconnectWatchdog implements the reconnect policy of spec.md §4.6: for
// inverted-connection adapters, a backend disconnect starts a grace-period
// timer, and a relaunch is requested only if no new backend connects
// before it fires. Repeated relaunch requests for the same session within
// a dedup window are dropped.
type ReconnectWatchdog struct {
	mu sync.Mutex

	bus               *eventbus.Bus
	gracePeriod       time.Duration
	dedupWindow       time.Duration
	isInvertedAdapter func(adapterName string) bool

	timers       map[string]*time.Timer
	lastRelaunch map[string]time.Time
	backoffs     map[string]*backoff.ExponentialBackOff

	now func() time.Time

	unsubscribe []func()
}

// NewReconnectWatchdog creates a watchdog bound to bus. isInvertedAdapter
// reports whether a given adapter name uses the inverted-callback
// connection style; the watchdog only arms its timer for those adapters.
func NewReconnectWatchdog(bus *eventbus.Bus, gracePeriod, dedupWindow time.Duration, isInvertedAdapter func(string) bool) *ReconnectWatchdog {
	w := &ReconnectWatchdog{
		bus:               bus,
		gracePeriod:       gracePeriod,
		dedupWindow:       dedupWindow,
		isInvertedAdapter: isInvertedAdapter,
		timers:            make(map[string]*time.Timer),
		lastRelaunch:      make(map[string]time.Time),
		backoffs:          make(map[string]*backoff.ExponentialBackOff),
		now:               time.Now,
	}

	w.unsubscribe = append(w.unsubscribe,
		bus.Subscribe(eventbus.BackendDisconnected, w.onBackendDisconnected),
		bus.Subscribe(eventbus.BackendConnected, w.onBackendConnected),
	)

	return w
}

// Stop cancels every pending timer and unsubscribes from the bus.
func (w *ReconnectWatchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, unsub := range w.unsubscribe {
		unsub()
	}
	for _, t := range w.timers {
		t.Stop()
	}
	w.timers = make(map[string]*time.Timer)
}

func (w *ReconnectWatchdog) onBackendDisconnected(ev eventbus.Event) {
	data, ok := ev.Data.(eventbus.BackendDisconnectedData)
	if !ok || !w.isInvertedAdapter(data.AdapterName) {
		return
	}

	sessionID := ev.SessionID

	w.mu.Lock()
	defer w.mu.Unlock()

	if t, exists := w.timers[sessionID]; exists {
		t.Stop()
	}

	grace := w.nextGraceLocked(sessionID)
	w.timers[sessionID] = time.AfterFunc(grace, func() {
		w.fireRelaunch(sessionID, "reconnect grace period elapsed")
	})
}

// nextGraceLocked returns the grace period for this disconnect cycle,
// escalating on consecutive cycles for the same session so a backend
// stuck in a crash loop doesn't get relaunched at a constant, tight
// cadence. Must be called with w.mu held.
func (w *ReconnectWatchdog) nextGraceLocked(sessionID string) time.Duration {
	b, ok := w.backoffs[sessionID]
	if !ok {
		b = backoff.NewExponentialBackOff()
		b.InitialInterval = w.gracePeriod
		b.MaxInterval = w.gracePeriod * 8
		b.MaxElapsedTime = 0
		w.backoffs[sessionID] = b
	}
	if next := b.NextBackOff(); next > 0 {
		return next
	}
	return w.gracePeriod
}

func (w *ReconnectWatchdog) onBackendConnected(ev eventbus.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, exists := w.timers[ev.SessionID]; exists {
		t.Stop()
		delete(w.timers, ev.SessionID)
	}
	delete(w.backoffs, ev.SessionID)
}

func (w *ReconnectWatchdog) fireRelaunch(sessionID, reason string) {
	w.mu.Lock()
	delete(w.timers, sessionID)

	last, seen := w.lastRelaunch[sessionID]
	if seen && w.now().Sub(last) < w.dedupWindow {
		w.mu.Unlock()
		return
	}
	w.lastRelaunch[sessionID] = w.now()
	w.mu.Unlock()

	w.bus.Publish(eventbus.Event{
		Type:      eventbus.BackendRelaunchNeeded,
		SessionID: sessionID,
		Data:      eventbus.BackendRelaunchNeededData{Reason: reason},
	})
}

// Armed reports whether sessionID currently has a grace-period timer
// running, for tests.
func (w *ReconnectWatchdog) Armed(sessionID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.timers[sessionID]
	return ok
}
