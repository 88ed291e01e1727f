package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/sessionbroker/broker/internal/adapter"
	"github.com/sessionbroker/broker/internal/commandrunner"
	"github.com/sessionbroker/broker/internal/eventbus"
	"github.com/sessionbroker/broker/internal/policy"
	"github.com/sessionbroker/broker/internal/runtime"
	"github.com/sessionbroker/broker/internal/tracing"
	"github.com/sessionbroker/broker/internal/transport"
	"github.com/sessionbroker/broker/internal/unifiedmsg"
	"github.com/sessionbroker/broker/pkg/types"
)

// BreakerObserver receives an adapter circuit breaker's state after a
// connect attempt. internal/metrics.Collector implements this.
type BreakerObserver interface {
	ObserveBreakerState(adapterName string, state policy.BreakerState)
}

// Deps bundles the bridge's collaborators.
type Deps struct {
	Registry   *runtime.Registry
	Resolver   *adapter.Resolver
	Bus        *eventbus.Bus
	Hub        *transport.Hub
	Persister  unifiedmsg.Persister
	Gatekeeper *policy.Gatekeeper

	BreakerConfig types.CircuitBreakerConfig

	// Metrics receives circuit breaker state observations after every
	// connect attempt. Optional; nil disables this observation.
	Metrics BreakerObserver

	Tracer     *tracing.Tracer
	MaxHistory int
	Now        func() int64

	// RefreshGit refreshes a session's git status after a turn completes;
	// optional, forwarded straight into unifiedmsg.Deps.
	RefreshGit func(ctx context.Context, rt *runtime.Runtime)
}

// liveBackend is one session's currently attached backend connection.
type liveBackend struct {
	adapterName string
	session     adapter.BackendSession
	cancel      context.CancelFunc
	done        chan struct{}
}

// Bridge is the facade of spec.md §4.7. The zero value is not usable;
// construct with New.
type Bridge struct {
	deps Deps

	commandRunner *commandrunner.Runner

	mu       sync.Mutex
	backends map[string]*liveBackend           // sessionID -> live backend
	breakers map[string]*policy.CircuitBreaker // adapter name -> breaker
}

// New creates a Bridge. commandRunner may be nil; Enabled() on a nil
// runner is treated as false by handleSlashCommand.
func New(deps Deps, commandRunner *commandrunner.Runner) *Bridge {
	if deps.MaxHistory <= 0 {
		deps.MaxHistory = 200
	}
	return &Bridge{
		deps:          deps,
		commandRunner: commandRunner,
		backends:      make(map[string]*liveBackend),
		breakers:      make(map[string]*policy.CircuitBreaker),
	}
}

func (b *Bridge) breakerFor(adapterName string) *policy.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()

	brk, ok := b.breakers[adapterName]
	if !ok {
		brk = policy.NewCircuitBreaker(b.deps.BreakerConfig)
		b.breakers[adapterName] = brk
	}
	return brk
}

func (b *Bridge) liveBackendFor(sessionID string) (*liveBackend, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	live, ok := b.backends[sessionID]
	return live, ok
}

func (b *Bridge) setLiveBackend(sessionID string, live *liveBackend) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.backends[sessionID] = live
}

func (b *Bridge) dropLiveBackend(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.backends, sessionID)
}

func (b *Bridge) publish(t eventbus.Type, sessionID string, data any) {
	if b.deps.Bus == nil {
		return
	}
	b.deps.Bus.Publish(eventbus.Event{Type: t, SessionID: sessionID, Data: data})
}

func (b *Bridge) nowMs() int64 {
	if b.deps.Now != nil {
		return b.deps.Now()
	}
	return time.Now().UnixMilli()
}

// routerDeps builds the unifiedmsg.Deps this bridge feeds every
// backend-originated message through.
func (b *Bridge) routerDeps() unifiedmsg.Deps {
	return unifiedmsg.Deps{
		Bus:         b.deps.Bus,
		Broadcaster: b.deps.Hub,
		Persister:   b.deps.Persister,
		Tracer:      b.deps.Tracer,
		MaxHistory:  b.deps.MaxHistory,
		Now:         b.deps.Now,
		FlushQueued: b.flushQueued,
		RefreshGit:  b.deps.RefreshGit,
	}
}
