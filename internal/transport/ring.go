package transport

import (
	"sync"

	"github.com/sessionbroker/broker/pkg/types"
)

// ReplayBuffer is the per-session ring buffer of sequenced messages spec.md
// §4.5 calls the reconnection handler's core state: a bounded history
// consulted to replay everything a rejoining consumer missed.
type ReplayBuffer struct {
	mu        sync.Mutex
	capacity  int
	bySession map[string][]types.Sequenced
}

// NewReplayBuffer creates a buffer holding up to capacity entries per
// session before the oldest entries are dropped from the front.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = 4096
	}
	return &ReplayBuffer{
		capacity:  capacity,
		bySession: make(map[string][]types.Sequenced),
	}
}

// Record appends entry to sessionID's buffer, dropping from the front once
// capacity is exceeded.
func (b *ReplayBuffer) Record(sessionID string, entry types.Sequenced) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries := append(b.bySession[sessionID], entry)
	if over := len(entries) - b.capacity; over > 0 {
		entries = entries[over:]
	}
	b.bySession[sessionID] = entries
}

// Since returns every recorded entry for sessionID with Seq > afterSeq, in
// insertion order. An afterSeq lower than the oldest retained entry still
// returns everything still held — the caller cannot tell the difference
// between "nothing missed" and "too much missed to retain", which matches
// spec.md's best-effort replay guarantee (entries that fell off the ring
// are simply gone).
func (b *ReplayBuffer) Since(sessionID string, afterSeq uint64) []types.Sequenced {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries := b.bySession[sessionID]
	out := make([]types.Sequenced, 0, len(entries))
	for _, e := range entries {
		if e.Seq > afterSeq {
			out = append(out, e)
		}
	}
	return out
}

// LastN returns the most recent n entries for sessionID, in insertion
// order, used as the initial state sent to a consumer that supplied no
// lastSeenSeq.
func (b *ReplayBuffer) LastN(sessionID string, n int) []types.Sequenced {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries := b.bySession[sessionID]
	if n <= 0 || n >= len(entries) {
		out := make([]types.Sequenced, len(entries))
		copy(out, entries)
		return out
	}
	out := make([]types.Sequenced, n)
	copy(out, entries[len(entries)-n:])
	return out
}

// Drop removes sessionID's buffer entirely, called on session close.
func (b *ReplayBuffer) Drop(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.bySession, sessionID)
}
