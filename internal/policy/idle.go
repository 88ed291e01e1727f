package policy

import (
	"sync"
	"time"

	"github.com/sessionbroker/broker/internal/eventbus"
	"github.com/sessionbroker/broker/internal/logging"
)

// IdleSession is the minimal view the idle reaper needs of a live session;
// internal/coordinator's session registry satisfies it without the reaper
// importing internal/runtime directly.
type IdleSession interface {
	ID() string
	HasBackend() bool
	ConsumerCount() int
	LastActivityMs() int64
}

// SessionLister enumerates currently live sessions for a sweep.
type SessionLister func() []IdleSession

// IdleReaper implements the idle policy of spec.md §4.6: on a periodic
// tick and on consumer/backend connect-disconnect events, it sweeps every
// live session and reaps ones that are idle-reapable — no backend, no
// consumers, and past the idle timeout since last activity. Sweeps are
// serialized so a slow reap callback never overlaps with the next tick.
type IdleReaper struct {
	mu sync.Mutex

	bus         *eventbus.Bus
	list        SessionLister
	reap        func(sessionID string)
	idleTimeout time.Duration
	now         func() time.Time

	sweeping bool
	queued   bool

	ticker *time.Ticker
	stopCh chan struct{}

	unsubscribe []func()
}

// NewIdleReaper creates a reaper. reap is invoked for every session the
// sweep finds idle-reapable. The reaper sends no command of its own to the
// session; whatever happens to it is done by reap.
func NewIdleReaper(bus *eventbus.Bus, list SessionLister, idleTimeout time.Duration, reap func(sessionID string)) *IdleReaper {
	r := &IdleReaper{
		bus:         bus,
		list:        list,
		reap:        reap,
		idleTimeout: idleTimeout,
		now:         time.Now,
	}

	r.unsubscribe = append(r.unsubscribe,
		bus.Subscribe(eventbus.ConsumerDisconnected, func(eventbus.Event) { r.requestSweep() }),
		bus.Subscribe(eventbus.BackendDisconnected, func(eventbus.Event) { r.requestSweep() }),
		bus.Subscribe(eventbus.BackendConnected, func(eventbus.Event) { r.requestSweep() }),
	)

	return r
}

// Start begins the periodic tick at the given interval. Calling Start
// twice without an intervening Stop is a no-op.
func (r *IdleReaper) Start(interval time.Duration) {
	r.mu.Lock()
	if r.ticker != nil {
		r.mu.Unlock()
		return
	}
	r.ticker = time.NewTicker(interval)
	r.stopCh = make(chan struct{})
	ticker := r.ticker
	stopCh := r.stopCh
	r.mu.Unlock()

	go func() {
		for {
			select {
			case <-ticker.C:
				r.requestSweep()
			case <-stopCh:
				return
			}
		}
	}()
}

// Stop halts the periodic tick and unsubscribes from the bus.
func (r *IdleReaper) Stop() {
	r.mu.Lock()
	if r.ticker != nil {
		r.ticker.Stop()
		close(r.stopCh)
		r.ticker = nil
	}
	r.mu.Unlock()

	for _, unsub := range r.unsubscribe {
		unsub()
	}
}

// requestSweep runs a sweep now, or marks one as queued if a sweep is
// already in flight — ensuring sweeps never overlap.
func (r *IdleReaper) requestSweep() {
	r.mu.Lock()
	if r.sweeping {
		r.queued = true
		r.mu.Unlock()
		return
	}
	r.sweeping = true
	r.mu.Unlock()

	r.runSweep()
}

func (r *IdleReaper) runSweep() {
	for {
		r.sweepOnce()

		r.mu.Lock()
		if r.queued {
			r.queued = false
			r.mu.Unlock()
			continue
		}
		r.sweeping = false
		r.mu.Unlock()
		return
	}
}

func (r *IdleReaper) sweepOnce() {
	sessions := r.list()
	now := r.now()

	for _, s := range sessions {
		if r.isReapable(s, now) {
			logging.ForSession(s.ID()).Info().Msg("reaping idle session")
			r.reap(s.ID())
		}
	}
}

func (r *IdleReaper) isReapable(s IdleSession, now time.Time) bool {
	if s.HasBackend() || s.ConsumerCount() > 0 {
		return false
	}
	lastActivity := time.UnixMilli(s.LastActivityMs())
	return now.Sub(lastActivity) >= r.idleTimeout
}
