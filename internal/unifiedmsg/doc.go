// Package unifiedmsg implements the unified message router of spec.md
// §4.1 — the central axis every backend message flows through on its
// way to a session's state and its consumers. It hosts two of the four
// named translation boundaries directly:
//
//   - T1 inbound normalizer (normalize.go): a consumer wire message
//     becomes a UnifiedMessage.
//   - T4 consumer projector (project.go): a UnifiedMessage becomes the
//     ConsumerMessage consumers see, one mapper per type.
//
// T2 (outbound adapter encoder) and T3 (inbound adapter decoder) live
// inside each concrete backend adapter (internal/adapter) since they are
// adapter-specific; this package only defines the UnifiedMessage shape
// they both target.
//
// Route (router.go) ties everything together: it applies the pure state
// reducer from internal/runtime, appends to or merges into session
// history, dispatches to a per-type handler that decides what (if
// anything) reaches consumers, and emits internal domain events. The
// dispatch table mirrors the teacher's session.Processor/stream.go
// shape of "one function per message/event type feeding a shared
// broadcast callback", generalized from OpenCode's assistant/tool-part
// model to the adapter-independent UnifiedMessage.
package unifiedmsg
