package adapter

import (
	"context"
	"errors"
)

// ErrUseLaunch is returned by an inverted-callback adapter's Connect —
// that style never opens a connection itself; it starts a launcher and
// waits for the tool to call back into the transport layer. Callers
// that see Style() == StyleInvertedCallback must call Launch instead.
var ErrUseLaunch = errors.New("adapter: inverted-callback adapter, call Launch instead of Connect")

// Launcher is the extra capability an inverted-callback Adapter exposes:
// it asks an external tool to start and call back into the broker's own
// transport, rather than dialing out itself. The coordinator keeps the
// session in awaiting_backend until that callback attaches.
type Launcher interface {
	Launch(ctx context.Context, sessionID string, opts ConnectOptions) error
}

// InvertedAdapter is a minimal inverted-callback adapter: Launch is the
// only operation it really performs, supplied by the caller since the
// mechanics of "start this tool" vary per backend (a CLI flag, a
// deep-link URL, a desktop integration).
type InvertedAdapter struct {
	name string
	caps Capabilities
	run  func(ctx context.Context, sessionID string, opts ConnectOptions) error
}

// NewInvertedAdapter builds an InvertedAdapter identified by name, whose
// Launch delegates to run.
func NewInvertedAdapter(name string, caps Capabilities, run func(ctx context.Context, sessionID string, opts ConnectOptions) error) *InvertedAdapter {
	return &InvertedAdapter{name: name, caps: caps, run: run}
}

func (a *InvertedAdapter) Name() string               { return a.name }
func (a *InvertedAdapter) Capabilities() Capabilities { return a.caps }
func (a *InvertedAdapter) Style() ConnectionStyle     { return StyleInvertedCallback }

func (a *InvertedAdapter) Connect(ctx context.Context, sessionID string, opts ConnectOptions) (BackendSession, error) {
	return BackendSession{}, ErrUseLaunch
}

func (a *InvertedAdapter) Launch(ctx context.Context, sessionID string, opts ConnectOptions) error {
	return a.run(ctx, sessionID, opts)
}
