package bridge

import (
	"context"

	"github.com/sessionbroker/broker/internal/adapter"
	"github.com/sessionbroker/broker/internal/eventbus"
	"github.com/sessionbroker/broker/internal/logging"
	"github.com/sessionbroker/broker/internal/policy"
	"github.com/sessionbroker/broker/internal/runtime"
	"github.com/sessionbroker/broker/internal/unifiedmsg"
	"github.com/sessionbroker/broker/pkg/brokererr"
)

// rawSender adapts one adapter.BackendSession to runtime.BackendSender,
// the no-context surface Runtime.TrySendRawToBackend calls through.
type rawSender struct {
	session adapter.BackendSession
}

func (s rawSender) SendRaw(data []byte) error {
	if s.session.SendRaw == nil {
		return brokererr.New(brokererr.CodeUnsupported, "adapter does not support raw send")
	}
	return s.session.SendRaw(context.Background(), data)
}

// ConnectBackend implements connectBackend: resolve the session's
// adapter, consult its circuit breaker, and either open the connection
// directly (outbound-spawn style) or ask the adapter's Launcher to start
// the external tool and leave the session awaiting_backend until it
// calls back (inverted-callback style, spec.md §4.3 style 2).
func (b *Bridge) ConnectBackend(ctx context.Context, sessionID string, opts adapter.ConnectOptions) error {
	rt, ok := b.deps.Registry.Get(sessionID)
	if !ok {
		return brokererr.New(brokererr.CodeValidation, "unknown session")
	}

	adapterName := rt.Snapshot().AdapterName
	ad, err := b.deps.Resolver.Get(adapterName)
	if err != nil {
		return brokererr.Wrap(brokererr.CodeBackendUnavailable, "adapter not registered", err)
	}

	breaker := b.breakerFor(adapterName)
	if !breaker.CanExecute() {
		return brokererr.New(brokererr.CodeBackendUnavailable, "backend circuit open for "+adapterName)
	}

	if ad.Style() == adapter.StyleInvertedCallback {
		launcher, ok := ad.(adapter.Launcher)
		if !ok {
			return brokererr.New(brokererr.CodeBackendUnavailable, "adapter "+adapterName+" declares inverted style but has no launcher")
		}
		if err := launcher.Launch(ctx, sessionID, opts); err != nil {
			breaker.RecordFailure()
			b.observeBreaker(adapterName, breaker)
			return brokererr.Wrap(brokererr.CodeSpawnFailure, "backend launch failed", err)
		}
		breaker.RecordSuccess()
		b.observeBreaker(adapterName, breaker)
		return nil
	}

	session, err := ad.Connect(ctx, sessionID, opts)
	if err != nil {
		breaker.RecordFailure()
		b.observeBreaker(adapterName, breaker)
		return brokererr.Wrap(brokererr.CodeSpawnFailure, "backend connect failed", err)
	}
	breaker.RecordSuccess()
	b.observeBreaker(adapterName, breaker)
	b.attach(rt, adapterName, session, false)
	return nil
}

// observeBreaker reports a breaker's post-call state to the metrics
// collector, if one is configured. CircuitBreaker itself has no
// subscribe/callback mechanism, so the bridge samples it right after each
// call that could have changed it.
func (b *Bridge) observeBreaker(adapterName string, breaker *policy.CircuitBreaker) {
	if b.deps.Metrics == nil {
		return
	}
	b.deps.Metrics.ObserveBreakerState(adapterName, breaker.GetState())
}

// AttachInvertedSession implements the other half of an inverted-callback
// connect: once the externally launched tool calls back into the
// broker's own transport, the coordinator builds a BackendSession from
// that connection and hands it here to finish what ConnectBackend
// started for outbound-spawn adapters.
func (b *Bridge) AttachInvertedSession(sessionID string, session adapter.BackendSession) error {
	rt, ok := b.deps.Registry.Get(sessionID)
	if !ok {
		return brokererr.New(brokererr.CodeValidation, "unknown session")
	}
	b.attach(rt, rt.Snapshot().AdapterName, session, true)
	return nil
}

// attach records a newly live backend connection and starts pumping its
// inbound stream through the router.
func (b *Bridge) attach(rt *runtime.Runtime, adapterName string, session adapter.BackendSession, inverted bool) {
	sessionID := rt.ID()

	pumpCtx, cancel := context.WithCancel(context.Background())
	live := &liveBackend{
		adapterName: adapterName,
		session:     session,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	b.setLiveBackend(sessionID, live)
	rt.AttachBackend(rawSender{session: session})

	b.publish(eventbus.BackendConnected, sessionID, eventbus.BackendConnectedData{
		AdapterName:      adapterName,
		BackendSessionID: session.SessionID,
		Inverted:         inverted,
	})

	go b.pump(pumpCtx, rt, live)
}

// pump drains one live backend's decoded inbound stream into the
// router until the backend disconnects or the session is torn down.
func (b *Bridge) pump(ctx context.Context, rt *runtime.Runtime, live *liveBackend) {
	defer close(live.done)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-live.session.Errors:
				if !ok {
					return
				}
				logging.ForSession(rt.ID()).Warn().Err(err).Str("adapter", live.adapterName).
					Msg("backend transport error")
			}
		}
	}()

	deps := b.routerDeps()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-live.session.Messages:
			if !ok {
				b.handleBackendDisconnect(rt, live, "backend closed")
				return
			}
			unifiedmsg.Route(ctx, rt, msg, deps)
		}
	}
}

// handleBackendDisconnect detaches the backend from the runtime and
// publishes backend:disconnected; called whether the backend closed on
// its own or DisconnectBackend initiated the teardown.
func (b *Bridge) handleBackendDisconnect(rt *runtime.Runtime, live *liveBackend, reason string) {
	b.dropLiveBackend(rt.ID())
	rt.DetachBackend()
	b.publish(eventbus.BackendDisconnected, rt.ID(), eventbus.BackendDisconnectedData{
		AdapterName: live.adapterName,
		Reason:      reason,
	})
}

// DisconnectBackend implements disconnectBackend: cancel any pending
// initialize wait, close the backend session, and await the pump
// goroutine's termination before returning.
func (b *Bridge) DisconnectBackend(sessionID string) error {
	rt, ok := b.deps.Registry.Get(sessionID)
	if !ok {
		return brokererr.New(brokererr.CodeValidation, "unknown session")
	}

	rt.CancelPendingInitialize()

	live, ok := b.liveBackendFor(sessionID)
	if !ok {
		return nil
	}

	live.cancel()
	if live.session.Close != nil {
		if err := live.session.Close(); err != nil {
			logging.ForSession(sessionID).Warn().Err(err).Msg("backend close failed")
		}
	}
	<-live.done

	b.handleBackendDisconnect(rt, live, "disconnected")
	return nil
}

// CloseSession implements closeSession: disconnect any live backend,
// release outstanding permission requests, close every attached
// consumer socket, and drop the session from the registry.
func (b *Bridge) CloseSession(sessionID string) error {
	if err := b.DisconnectBackend(sessionID); err != nil {
		logging.ForSession(sessionID).Warn().Err(err).Msg("disconnect during close failed")
	}

	b.mu.Lock()
	delete(b.backends, sessionID)
	b.mu.Unlock()

	if b.deps.Gatekeeper != nil {
		b.deps.Gatekeeper.CancelSession(sessionID)
	}

	b.deps.Hub.DropSession(sessionID)
	b.deps.Registry.Remove(sessionID)
	b.publish(eventbus.SessionClosed, sessionID, nil)
	return nil
}

// Close implements close(): tears down every session the registry
// still knows about. Used on broker shutdown.
func (b *Bridge) Close() {
	for _, id := range b.deps.Registry.List() {
		if err := b.CloseSession(id); err != nil {
			logging.ForSession(id).Warn().Err(err).Msg("session close failed during shutdown")
		}
	}
}
