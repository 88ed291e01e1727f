// Package adapter defines the backend adapter contract (spec §4.3): the
// boundary between the broker's adapter-independent UnifiedMessage and a
// concrete backend's own wire protocol. T2 (outbound encode) and T3
// (inbound decode) live inside each concrete adapter implementation,
// since they are specific to that backend's shapes.
package adapter

import (
	"context"
	"errors"

	"github.com/sessionbroker/broker/pkg/types"
)

// ErrSessionClosed is returned by Send/SendRaw once the backend session
// has been closed.
var ErrSessionClosed = errors.New("adapter: backend session closed")

// Capabilities is what an adapter declares about itself up front, used
// by the capabilities policy and by consumers deciding what UI to show.
type Capabilities struct {
	Streaming     bool
	Permissions   bool
	SlashCommands bool
	Teams         bool
	Availability  Availability
}

// Availability distinguishes a backend that runs as a local subprocess
// from one reached as a remote service.
type Availability string

const (
	AvailabilityLocal   Availability = "local"
	AvailabilityService Availability = "service"
)

// ConnectionStyle is one of the two ways a backend connection comes to
// exist (spec §4.3).
type ConnectionStyle string

const (
	// StyleOutboundSpawn: the adapter spawns or dials out to a process or
	// service and immediately returns a live BackendSession.
	StyleOutboundSpawn ConnectionStyle = "outbound_spawn"
	// StyleInvertedCallback: the adapter tells a launcher to start a tool
	// that calls back into our own transport. The session stays
	// awaiting_backend until that callback arrives.
	StyleInvertedCallback ConnectionStyle = "inverted_callback"
)

// ConnectOptions carries the per-session parameters an adapter needs to
// open (or prepare to receive) a backend connection.
type ConnectOptions struct {
	Cwd            string
	Model          string
	PermissionMode string
	Env            map[string]string
}

// Adapter is a factory that opens backend connections. Implementations
// must be safe for concurrent use; Connect is called once per session.
type Adapter interface {
	Name() string
	Capabilities() Capabilities
	Style() ConnectionStyle
	Connect(ctx context.Context, sessionID string, opts ConnectOptions) (BackendSession, error)
}

// BackendSession is one live connection to a backend for the duration of
// a session. Messages is a lazy, finite sequence of T3-decoded inbound
// messages; it is exhausted when the backend disconnects.
type BackendSession struct {
	SessionID string

	Send    func(ctx context.Context, msg types.UnifiedMessage) error
	SendRaw func(ctx context.Context, data []byte) error
	Close   func() error

	// Messages is read by the caller until it is closed. T3 decoding
	// happens on the goroutine that feeds this channel; a decode that
	// yields "intentionally consumed" (nil, no error) never reaches it.
	Messages <-chan types.UnifiedMessage

	// Errors surfaces terminal transport failures; it is closed at the
	// same time as Messages.
	Errors <-chan error
}
