// Package bridge implements the session broker facade of spec.md §4.7:
// sendUserMessage, sendPermissionResponse, sendInterrupt, sendSetModel,
// sendSetPermissionMode, connectBackend, disconnectBackend, and
// closeSession. It is the one place that owns a live backend connection
// per session and decides whether an inbound unified message goes
// straight to the backend or waits in the session's pending queue.
//
// The bridge deliberately does not decode or encode adapter wire
// frames itself (T2/T3 live inside each adapter) and does not reduce
// state or project consumer messages for backend-originated traffic
// (that is internal/unifiedmsg's Route/Project, run over each live
// adapter.BackendSession.Messages stream). It only handles the other
// direction: a consumer's inbound frame, normalized by T1, on its way
// to a backend or the session's queue.
package bridge
