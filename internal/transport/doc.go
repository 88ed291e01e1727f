// Package transport implements the consumer-facing WebSocket transport of
// spec.md §4.4 and §4.5: the broadcaster that fans a projected consumer
// message out to a session's attached sockets with backpressure and role
// filtering, and the reconnection handler that replays missed messages
// from a per-session ring buffer when a consumer reattaches.
//
// Transport owns sockets and the replay buffer; it does not decide what a
// message means. Inbound frames are handed to an InboundRouter supplied
// by internal/bridge, and outbound frames arrive already projected as
// types.ConsumerMessage via the Hub's Broadcaster methods, which
// internal/unifiedmsg's router calls through its own Broadcaster
// interface.
package transport
