package runtime

import "sync"

// teamBufferCap bounds the correlation buffer the same way the teacher's
// DoomLoopDetector bounds its per-session history: a capped slice next
// to a set, evicting the oldest entry once full.
const teamBufferCap = 256

// TeamCorrelationBuffer tracks which team tool-use ids have already been
// applied to the team substate, so a retried or duplicate tool-use never
// creates a second member, task, or dependency edge (spec §4.2's
// idempotence requirement). It is owned by the Runtime, not the reducer
// — Reduce receives it as an argument and checks and records ids through
// Applied/MarkApplied.
type TeamCorrelationBuffer struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
}

// NewTeamCorrelationBuffer creates an empty buffer.
func NewTeamCorrelationBuffer() *TeamCorrelationBuffer {
	return &TeamCorrelationBuffer{seen: make(map[string]struct{})}
}

// Applied reports whether id has already been applied to team state.
func (b *TeamCorrelationBuffer) Applied(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.seen[id]
	return ok
}

// MarkApplied records id as applied, evicting the oldest entry once the
// buffer exceeds its cap.
func (b *TeamCorrelationBuffer) MarkApplied(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.seen[id]; ok {
		return
	}
	b.seen[id] = struct{}{}
	b.order = append(b.order, id)
	if len(b.order) > teamBufferCap {
		oldest := b.order[0]
		b.order = b.order[1:]
		delete(b.seen, oldest)
	}
}
