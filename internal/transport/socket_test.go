package transport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWireConn struct {
	mu       sync.Mutex
	writes   [][]byte
	writeErr error
	blocked  chan struct{}
	closed   bool
}

func (f *fakeWireConn) Write(ctx context.Context, typ websocket.MessageType, data []byte) error {
	if f.blocked != nil {
		<-f.blocked
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes = append(f.writes, data)
	return nil
}

func (f *fakeWireConn) Close(code websocket.StatusCode, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeWireConn) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

func TestSocketDeliversQueuedPayloadsInOrder(t *testing.T) {
	conn := &fakeWireConn{}
	s := newSocket(conn, "sess-1", "c1", 1024)
	defer s.Close(websocket.StatusNormalClosure, "done")

	require.True(t, s.Send([]byte("one")))
	require.True(t, s.Send([]byte("two")))

	require.Eventually(t, func() bool { return conn.writeCount() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []byte("one"), conn.writes[0])
	assert.Equal(t, []byte("two"), conn.writes[1])
}

func TestSocketDropsSendsStrictlyOverBufferThreshold(t *testing.T) {
	conn := &fakeWireConn{blocked: make(chan struct{})}
	s := newSocket(conn, "sess-1", "c1", 10)
	defer func() {
		close(conn.blocked)
		s.Close(websocket.StatusNormalClosure, "done")
	}()

	// First send fills the queue up to the threshold exactly — still
	// accepted (the boundary is strictly-greater-than, spec.md §4.4).
	assert.True(t, s.Send([]byte("0123456789")))
	// The queue sits exactly at the threshold, so this send is still
	// accepted; it leaves the queue over threshold.
	assert.True(t, s.Send([]byte("x")))
	// The queue is now strictly over threshold — dropped.
	assert.False(t, s.Send([]byte("y")))
}

func TestSocketClosesOnWriteFailure(t *testing.T) {
	conn := &fakeWireConn{writeErr: errors.New("broken pipe")}
	s := newSocket(conn, "sess-1", "c1", 1024)

	s.Send([]byte("x"))

	require.Eventually(t, func() bool { return s.Closed() }, time.Second, time.Millisecond)
}

func TestSocketSendAfterCloseIsRejected(t *testing.T) {
	conn := &fakeWireConn{}
	s := newSocket(conn, "sess-1", "c1", 1024)
	s.Close(websocket.StatusNormalClosure, "done")

	assert.False(t, s.Send([]byte("x")))
}
