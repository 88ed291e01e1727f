package runtime

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/sessionbroker/broker/pkg/types"
)

// BackendSender is the minimal surface Runtime needs to push adapter-
// native bytes at whatever backend session is currently attached.
// internal/adapter's BackendSession implements it; Runtime never knows
// about connect/spawn, only about send.
type BackendSender interface {
	SendRaw(data []byte) error
}

// InitSnapshot is the backend-reported capability snapshot carried by a
// session_init unified message (spec §3: cwd, model, permissionMode,
// authMethods, tools, mcp_servers, agents, slash_commands, skills).
// These are distinct from SessionState, which is derived purely by the
// reducer from every message; InitSnapshot is applied once per init and
// again whenever the backend relaunches.
type InitSnapshot struct {
	Cwd            string
	Model          string
	PermissionMode string
	AuthMethods    []string
	Tools          []string
	MCPServers     []string
	Agents         []string
	SlashCommands  []string
	Skills         []string
}

type pendingControl struct {
	ch chan []byte
}

// Runtime owns one session's record and is its sole mutator (spec §4.2,
// §3 invariant 10). Every exported method here corresponds to one of the
// mutation guard's named mutators; nothing outside this package may
// assign into the fields it guards.
type Runtime struct {
	mu sync.Mutex

	session types.Session
	teamBuf *TeamCorrelationBuffer

	backend BackendSender

	pendingInitialize   *pendingControl
	pendingPassthroughs map[string]*pendingControl

	cliCommands   []string
	skillCommands []string

	rateLimiters map[string]*rate.Limiter
	rateCfg      types.RateLimitConfig
}

// New creates a runtime for a freshly created session, awaiting its
// first backend connection.
func New(id, adapterName, cwd string, rateCfg types.RateLimitConfig, nowMs int64) *Runtime {
	return &Runtime{
		session: types.Session{
			ID:                 id,
			AdapterName:        adapterName,
			Cwd:                cwd,
			Lifecycle:          types.LifecycleAwaitingBackend,
			PendingPermissions: make(map[string]types.PermissionRequest),
			Consumers:          make(map[string]types.ConsumerIdentity),
			State:              types.SessionState{SessionID: id},
			LastActivity:       nowMs,
			CreatedAt:          nowMs,
		},
		teamBuf:             NewTeamCorrelationBuffer(),
		pendingPassthroughs: make(map[string]*pendingControl),
		rateLimiters:        make(map[string]*rate.Limiter),
		rateCfg:             rateCfg,
	}
}

// ID returns the session's immutable identifier.
func (r *Runtime) ID() string {
	return r.session.ID
}

// Snapshot returns a deep-enough copy of the session record for reading.
// Callers never get a live reference into runtime-owned slices or maps.
func (r *Runtime) Snapshot() types.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cloneLocked()
}

func (r *Runtime) cloneLocked() types.Session {
	s := r.session
	s.AuthMethods = append([]string(nil), r.session.AuthMethods...)
	s.Tools = append([]string(nil), r.session.Tools...)
	s.MCPServers = append([]string(nil), r.session.MCPServers...)
	s.Agents = append([]string(nil), r.session.Agents...)
	s.SlashCommands = append([]string(nil), r.session.SlashCommands...)
	s.Skills = append([]string(nil), r.session.Skills...)
	s.State = r.session.State.Clone()
	s.MessageHistory = append([]types.Sequenced(nil), r.session.MessageHistory...)
	s.PendingMessages = append([]types.UnifiedMessage(nil), r.session.PendingMessages...)

	pp := make(map[string]types.PermissionRequest, len(r.session.PendingPermissions))
	for k, v := range r.session.PendingPermissions {
		pp[k] = v
	}
	s.PendingPermissions = pp

	cons := make(map[string]types.ConsumerIdentity, len(r.session.Consumers))
	for k, v := range r.session.Consumers {
		cons[k] = v
	}
	s.Consumers = cons

	s.Team = r.session.Team.Clone()
	return s
}

// SetState installs the reducer's output and syncs the convenience
// top-level capability fields (cwd, model, mcpServers, agents, skills)
// that the state also carries, so readers that only look at the session
// record (not state) still see the latest values.
func (r *Runtime) SetState(next types.SessionState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session.State = next
	if next.Model != "" {
		r.session.Model = next.Model
	}
	if next.Cwd != "" {
		r.session.Cwd = next.Cwd
	}
	if next.MCPServers != nil {
		r.session.MCPServers = append([]string(nil), next.MCPServers...)
	}
	if next.Agents != nil {
		r.session.Agents = append([]string(nil), next.Agents...)
	}
	if next.Skills != nil {
		r.session.Skills = append([]string(nil), next.Skills...)
	}
	r.session.Team = next.Team.Clone()
}

// SetBackendSessionID sets the backend-assigned session id the first
// time it is observed. Invariant 5: once set, it is never overwritten by
// a different id in the same session lifetime; a later call with a
// different non-empty id is ignored.
func (r *Runtime) SetBackendSessionID(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session.BackendSessionID == "" {
		r.session.BackendSessionID = id
	}
}

// SetLastStatus updates the derived running/idle/compacting status.
func (r *Runtime) SetLastStatus(status types.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session.LastStatus = status
}

// SetMCPServers records which MCP servers the capabilities negotiator
// found reachable at negotiation time, replacing whatever session_init
// (if any) already reported.
func (r *Runtime) SetMCPServers(names []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session.MCPServers = append([]string(nil), names...)
}

// SetLifecycle transitions the coarse session lifecycle.
func (r *Runtime) SetLifecycle(lc types.Lifecycle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session.Lifecycle = lc
}

// AppendHistory appends one sequenced consumer message, dropping from
// the front once maxLen is exceeded (invariant 3).
func (r *Runtime) AppendHistory(entry types.Sequenced, maxLen int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session.MessageHistory = append(r.session.MessageHistory, entry)
	if maxLen > 0 && len(r.session.MessageHistory) > maxLen {
		overflow := len(r.session.MessageHistory) - maxLen
		r.session.MessageHistory = r.session.MessageHistory[overflow:]
	}
}

// ReplaceHistoryAt overwrites the history entry whose Seq matches seq.
// Reports whether a matching entry was found.
func (r *Runtime) ReplaceHistoryAt(seq uint64, entry types.Sequenced) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.session.MessageHistory {
		if r.session.MessageHistory[i].Seq == seq {
			r.session.MessageHistory[i] = entry
			return true
		}
	}
	return false
}

// FindHistoryIndexByMessageID returns the index of the most recent
// history entry whose MessageID matches id, or -1. Used for the
// assistant dedupe-or-append and tool_use_summary merge semantics of
// §4.1 — for tool_use_summary, id is the tool-use id rather than a true
// message id, since MessageID is the router's general correlation slot
// for "the logical thing this entry belongs to", not strictly a chat
// message.
func (r *Runtime) FindHistoryIndexByMessageID(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.session.MessageHistory) - 1; i >= 0; i-- {
		if r.session.MessageHistory[i].MessageID == id {
			return i
		}
	}
	return -1
}

// ReplaceHistoryByIndex overwrites the payload of the history entry at
// idx in place, preserving its existing Seq/MessageID/Timestamp. Reports
// whether idx was in range.
func (r *Runtime) ReplaceHistoryByIndex(idx int, payload types.ConsumerMessage) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if idx < 0 || idx >= len(r.session.MessageHistory) {
		return false
	}
	r.session.MessageHistory[idx].Payload = payload
	return true
}

// SetHistory replaces the entire history wholesale, used when restoring
// a persisted session.
func (r *Runtime) SetHistory(entries []types.Sequenced) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session.MessageHistory = append([]types.Sequenced(nil), entries...)
}

// StorePendingPermission registers req as awaiting reply. Overflow past
// maxPending is the caller's responsibility to detect beforehand (spec
// invariant 9: overflow triggers a drop-with-warn event at the policy
// layer, not a silent cap here).
func (r *Runtime) StorePendingPermission(req types.PermissionRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session.PendingPermissions[req.RequestID] = req
}

// ClearPendingPermission removes a resolved or cancelled request.
func (r *Runtime) ClearPendingPermission(requestID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.session.PendingPermissions, requestID)
}

// PendingPermissionCount reports how many requests are currently
// outstanding, used by the gatekeeper's overflow check.
func (r *Runtime) PendingPermissionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.session.PendingPermissions)
}

// StorePendingInitialize registers a pending adapter-native initialize
// control request and returns the channel its control_response will be
// delivered on. A second call before the first resolves replaces the
// first registration (only one capability negotiation is ever in flight
// per session).
func (r *Runtime) StorePendingInitialize() <-chan []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := make(chan []byte, 1)
	r.pendingInitialize = &pendingControl{ch: ch}
	return ch
}

// CancelPendingInitialize clears the pending initialize registration
// without resolving it, used on the capabilities policy's timeout path.
func (r *Runtime) CancelPendingInitialize() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pendingInitialize = nil
}

// StorePendingPassthrough registers an arbitrary adapter-native control
// request keyed by correlationID, for protocols that need other raw
// round trips beyond capability negotiation.
func (r *Runtime) StorePendingPassthrough(correlationID string) <-chan []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := make(chan []byte, 1)
	r.pendingPassthroughs[correlationID] = &pendingControl{ch: ch}
	return ch
}

// ResolveControlResponse feeds payload to a pending control registration
// and reports whether one was found. A pending initialize, if any, takes
// the response whatever correlationID is; otherwise the pending
// passthrough registered under correlationID does. Called by the
// control_response handler; unmatched responses are a no-op.
func (r *Runtime) ResolveControlResponse(correlationID string, payload []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pendingInitialize != nil {
		pending := r.pendingInitialize
		r.pendingInitialize = nil
		pending.ch <- payload
		close(pending.ch)
		return true
	}

	if pending, ok := r.pendingPassthroughs[correlationID]; ok {
		delete(r.pendingPassthroughs, correlationID)
		pending.ch <- payload
		close(pending.ch)
		return true
	}

	return false
}

// RegisterCLICommands installs the dynamic CLI-reported slash command
// registry, replacing whatever was there before.
func (r *Runtime) RegisterCLICommands(cmds []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cliCommands = append([]string(nil), cmds...)
}

// RegisterSkillCommands installs the dynamic skill-derived slash command
// registry, replacing whatever was there before.
func (r *Runtime) RegisterSkillCommands(cmds []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skillCommands = append([]string(nil), cmds...)
}

// ClearDynamicSlashRegistry drops both dynamic registries, used on
// backend relaunch before the new backend's session_init repopulates
// them.
func (r *Runtime) ClearDynamicSlashRegistry() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cliCommands = nil
	r.skillCommands = nil
}

// DynamicSlashCommands returns the union of the CLI and skill registries.
func (r *Runtime) DynamicSlashCommands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.cliCommands)+len(r.skillCommands))
	out = append(out, r.cliCommands...)
	out = append(out, r.skillCommands...)
	return out
}

// ApplyInitSnapshot installs the backend-reported capability snapshot
// from a session_init message onto the session record.
func (r *Runtime) ApplyInitSnapshot(snap InitSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session.Cwd = snap.Cwd
	r.session.Model = snap.Model
	r.session.PermissionMode = snap.PermissionMode
	r.session.AuthMethods = append([]string(nil), snap.AuthMethods...)
	r.session.Tools = append([]string(nil), snap.Tools...)
	r.session.MCPServers = append([]string(nil), snap.MCPServers...)
	r.session.Agents = append([]string(nil), snap.Agents...)
	r.session.SlashCommands = append([]string(nil), snap.SlashCommands...)
	r.session.Skills = append([]string(nil), snap.Skills...)
}

// AttachBackend installs the live backend sender, used once connect (or
// an inverted callback) succeeds.
func (r *Runtime) AttachBackend(sender BackendSender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backend = sender
}

// DetachBackend clears the backend sender on disconnect; trySendRawToBackend
// fails with SessionClosed-equivalent afterward.
func (r *Runtime) DetachBackend() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backend = nil
}

// HasBackend reports whether a backend is currently attached.
func (r *Runtime) HasBackend() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.backend != nil
}

// ErrNoBackend is returned by TrySendRawToBackend when no backend is
// currently attached.
var ErrNoBackend = &noBackendError{}

type noBackendError struct{}

func (*noBackendError) Error() string { return "runtime: no backend attached" }

// TrySendRawToBackend sends raw adapter-native bytes to the currently
// attached backend, bypassing T2. Returns ErrNoBackend if none is
// attached.
func (r *Runtime) TrySendRawToBackend(data []byte) error {
	r.mu.Lock()
	backend := r.backend
	r.mu.Unlock()

	if backend == nil {
		return ErrNoBackend
	}
	return backend.SendRaw(data)
}

// SetQueuedMessage stores the single held user message to send on the
// next idle transition, replacing any previous one.
func (r *Runtime) SetQueuedMessage(msg *types.UnifiedMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session.QueuedMessage = msg
}

// TakeQueuedMessage atomically returns and clears the queued message, if
// any.
func (r *Runtime) TakeQueuedMessage() *types.UnifiedMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg := r.session.QueuedMessage
	r.session.QueuedMessage = nil
	return msg
}

// EnqueuePending appends a unified message to the backend-readiness
// queue, flushed FIFO once a backend connects (invariant 7).
func (r *Runtime) EnqueuePending(msg types.UnifiedMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session.PendingMessages = append(r.session.PendingMessages, msg)
}

// DrainPending returns and clears every queued message in FIFO order.
func (r *Runtime) DrainPending() []types.UnifiedMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	drained := r.session.PendingMessages
	r.session.PendingMessages = nil
	return drained
}

// AddConsumer attaches a consumer identity to the session's consumer
// set.
func (r *Runtime) AddConsumer(identity types.ConsumerIdentity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session.Consumers[identity.ConsumerID] = identity
}

// RemoveConsumer detaches a consumer and its rate limiter.
func (r *Runtime) RemoveConsumer(consumerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.session.Consumers, consumerID)
	delete(r.rateLimiters, consumerID)
}

// Consumers returns a copy of the current consumer set.
func (r *Runtime) Consumers() map[string]types.ConsumerIdentity {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]types.ConsumerIdentity, len(r.session.Consumers))
	for k, v := range r.session.Consumers {
		out[k] = v
	}
	return out
}

// RateLimiterFor lazily creates and returns the token bucket for
// consumerID, reusing it across calls.
func (r *Runtime) RateLimiterFor(consumerID string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if lim, ok := r.rateLimiters[consumerID]; ok {
		return lim
	}
	lim := rate.NewLimiter(rate.Limit(r.rateCfg.TokensPerSecond), r.rateCfg.BurstSize)
	r.rateLimiters[consumerID] = lim
	return lim
}

// TouchActivity updates lastActivity to nowMs, used on any inbound or
// outbound traffic (spec §3 "lastActivity").
func (r *Runtime) TouchActivity(nowMs int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session.LastActivity = nowMs
}

// LastActivity returns the last recorded activity timestamp.
func (r *Runtime) LastActivity() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session.LastActivity
}

// SetPID records the child process id when the backend is a process we
// own directly.
func (r *Runtime) SetPID(pid int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session.PID = pid
	r.session.HasPID = true
}

// ClearPID drops the recorded pid, used once the child process exits.
func (r *Runtime) ClearPID() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session.PID = 0
	r.session.HasPID = false
}

// TeamBuffer returns the team-correlation buffer used by the reducer to
// idempotently apply team tool-use events. It is owned by the runtime
// and passed to Reduce by the caller — the reducer itself stays a pure
// function with no access to Runtime.
func (r *Runtime) TeamBuffer() *TeamCorrelationBuffer {
	return r.teamBuf
}
