package coordinator

import (
	"time"

	"github.com/sessionbroker/broker/internal/adapter"
	"github.com/sessionbroker/broker/internal/bridge"
	"github.com/sessionbroker/broker/internal/commandrunner"
	"github.com/sessionbroker/broker/internal/config"
	"github.com/sessionbroker/broker/internal/eventbus"
	"github.com/sessionbroker/broker/internal/logging"
	"github.com/sessionbroker/broker/internal/mcp"
	"github.com/sessionbroker/broker/internal/metrics"
	"github.com/sessionbroker/broker/internal/policy"
	"github.com/sessionbroker/broker/internal/runtime"
	"github.com/sessionbroker/broker/internal/storage"
	"github.com/sessionbroker/broker/internal/tracing"
	"github.com/sessionbroker/broker/internal/transport"
	"github.com/sessionbroker/broker/pkg/types"
)

// Options configures a Coordinator. Config is required; everything else
// has a usable default so tests can construct a Coordinator with just a
// config and an in-memory store.
type Options struct {
	Config *types.Config

	// Store persists sessions and launcher state. Defaults to a
	// storage.FileStore rooted at config.GetPaths().StoragePath() when nil.
	Store storage.Store

	// Adapters are registered with the resolver at construction time.
	// Concrete adapter wiring (addresses, binaries) is the caller's
	// concern — cmd/sessionbrokerd builds these from its own flags/env.
	Adapters []adapter.Adapter

	// Authenticator validates consumer upgrade requests. Defaults to
	// transport.AllowAll.
	Authenticator transport.Authenticator

	// Tracer defaults to a no-op tracer.
	Tracer *tracing.Tracer

	// Now overrides the wall clock, for deterministic tests.
	Now func() int64

	// ReapInterval is how often the idle reaper sweeps on a timer, on top
	// of its event-triggered sweeps. Defaults to 30s.
	ReapInterval time.Duration

	// Metrics records broadcast drops, rate-limit drops, idle reaps, and
	// circuit breaker state. Defaults to a freshly constructed
	// metrics.Collector; pass one in to share a registry across multiple
	// coordinators (e.g. in tests) or to mount its Handler elsewhere.
	Metrics *metrics.Collector
}

// Coordinator owns every long-lived collaborator a running broker needs
// and is the construction root: one New call builds the whole dependency
// graph in the order each piece needs its collaborators to already exist.
type Coordinator struct {
	cfg *types.Config
	now func() int64

	Bus      *eventbus.Bus
	Registry *runtime.Registry
	Resolver *adapter.Resolver
	Hub      *transport.Hub
	Store    storage.Store
	Tracer   *tracing.Tracer
	Bridge   *bridge.Bridge
	Handler  *transport.Handler
	Metrics  *metrics.Collector

	gatekeeper    *policy.Gatekeeper
	reconnect     *policy.ReconnectWatchdog
	idleReaper    *policy.IdleReaper
	negotiator    *policy.CapabilitiesNegotiator
	commandRunner *commandrunner.Runner
	mcpClient     *mcp.Client

	unsubscribeCapabilitiesReady func()
}

// New builds a Coordinator from opts, wiring every policy service to the
// event bus and the bridge to every other collaborator.
func New(opts Options) *Coordinator {
	cfg := opts.Config
	if cfg == nil {
		defaults := types.Config{}
		cfg = &defaults
	}

	now := opts.Now
	if now == nil {
		now = func() int64 { return time.Now().UnixMilli() }
	}

	tracer := opts.Tracer
	if tracer == nil {
		tracer = tracing.NoOp()
	}

	store := opts.Store
	if store == nil {
		store = storage.NewFileStore(defaultStoragePath())
	}

	bus := eventbus.New()
	registry := runtime.NewRegistry()
	resolver := adapter.NewResolver()
	for _, a := range opts.Adapters {
		resolver.Register(a)
	}
	hub := transport.NewHub(tracer, 0)

	collector := opts.Metrics
	if collector == nil {
		collector = metrics.New()
	}
	hub.SetMetrics(collector)

	commandRunner := commandrunner.New(commandrunner.Config{
		Enabled:          cfg.SlashCommand.PTYEnabled,
		Timeout:          time.Duration(cfg.SlashCommand.PTYTimeoutMs) * time.Millisecond,
		SilenceThreshold: time.Duration(cfg.SlashCommand.PTYSilenceThresholdMs) * time.Millisecond,
	})

	gatekeeper := policy.NewGatekeeper(bus)

	br := bridge.New(bridge.Deps{
		Registry:      registry,
		Resolver:      resolver,
		Bus:           bus,
		Hub:           hub,
		Persister:     store,
		Gatekeeper:    gatekeeper,
		BreakerConfig: cfg.CLIRestartCircuitBreaker,
		Metrics:       collector,
		Tracer:        tracer,
		MaxHistory:    cfg.MaxMessageHistoryLength,
		Now:           now,
	}, commandRunner)

	c := &Coordinator{
		cfg:           cfg,
		now:           now,
		Bus:           bus,
		Registry:      registry,
		Resolver:      resolver,
		Hub:           hub,
		Store:         store,
		Tracer:        tracer,
		Bridge:        br,
		Metrics:       collector,
		gatekeeper:    gatekeeper,
		commandRunner: commandRunner,
		mcpClient:     mcp.NewClient(),
	}

	c.unsubscribeCapabilitiesReady = bus.Subscribe(eventbus.CapabilitiesReady, c.onCapabilitiesReady)

	auth := opts.Authenticator
	if auth == nil {
		auth = transport.AllowAll
	}
	c.Handler = &transport.Handler{
		Registry:        registry,
		Hub:             hub,
		Bus:             bus,
		Auth:            auth,
		Router:          br,
		MaxMessageSize:  transport.DefaultMaxMessageBytes,
		BufferThreshold: 256,
		RateLimiter:     collector,
	}

	c.reconnect = policy.NewReconnectWatchdog(
		bus,
		time.Duration(cfg.ReconnectGracePeriodMs)*time.Millisecond,
		time.Duration(cfg.RelaunchDedupMs)*time.Millisecond,
		c.isInvertedAdapter,
	)

	c.idleReaper = policy.NewIdleReaper(
		bus,
		c.listIdleSessions,
		time.Duration(cfg.IdleSessionTimeoutMs)*time.Millisecond,
		c.reapSession,
	)
	reapInterval := opts.ReapInterval
	if reapInterval <= 0 {
		reapInterval = 30 * time.Second
	}
	c.idleReaper.Start(reapInterval)

	c.negotiator = policy.NewCapabilitiesNegotiator(
		bus,
		time.Duration(cfg.InitializeTimeoutMs)*time.Millisecond,
		c.hasInlineCapabilities,
		c.capabilitySessionFor,
		buildInitializeFrame,
		c.decodeCapabilitiesResponse,
	)

	return c
}

// Close stops every session and every background policy loop.
func (c *Coordinator) Close() {
	c.idleReaper.Stop()
	c.reconnect.Stop()
	c.negotiator.Stop()
	if c.unsubscribeCapabilitiesReady != nil {
		c.unsubscribeCapabilitiesReady()
	}
	if err := c.CloseMCP(); err != nil {
		logging.Warn().Err(err).Msg("mcp client close failed")
	}
	c.Bridge.Close()
}

func (c *Coordinator) isInvertedAdapter(name string) bool {
	ad, err := c.Resolver.Get(name)
	if err != nil {
		return false
	}
	return ad.Style() == adapter.StyleInvertedCallback
}

func defaultStoragePath() string {
	return config.GetPaths().StoragePath()
}
