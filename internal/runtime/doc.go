// Package runtime implements the session runtime of spec.md §4.2: the
// sole mutator of a session's record. Every field the mutation guard
// names — state, lastStatus, adapterName, backendSessionId,
// messageHistory, queuedMessage, consumers, consumerRateLimiters,
// backendSession, backendAbort, pendingMessages, pendingInitialize,
// pendingPermissions, pendingPassthroughs — changes only through a
// named method on Runtime. internal/unifiedmsg's router and the policy
// services call these methods; none of them ever assign into a
// types.Session field directly, mirroring how the teacher's
// session.Service funnels every session change through a method on the
// owning type instead of exposing bare struct fields to callers.
//
// The state reducer itself (reduce.go) is kept separate from Runtime: it
// is a pure function with no receiver, taking the previous state plus a
// message and returning the next state. Runtime calls it and installs
// the result; it never reaches into the reducer's internals.
package runtime
