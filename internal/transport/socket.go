package transport

import (
	"context"
	"sync"

	"github.com/coder/websocket"

	"github.com/sessionbroker/broker/internal/logging"
)

// wireConn is the subset of *websocket.Conn the write pump needs. Tests
// substitute a fake so Socket's queueing and backpressure logic can be
// exercised without a real network connection.
type wireConn interface {
	Write(ctx context.Context, typ websocket.MessageType, data []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// Socket wraps one consumer's live WebSocket connection with an outbound
// queue, so a broadcast never blocks on a slow reader. It enforces spec.md
// §4.4's backpressure rule: once the queued byte count exceeds
// bufferThreshold, further sends to this socket are dropped rather than
// queued, strictly greater than the threshold.
type Socket struct {
	ConsumerID string
	SessionID  string

	conn            wireConn
	bufferThreshold int

	mu       sync.Mutex
	queued   [][]byte
	queuedSz int64
	closed   bool

	wake chan struct{}
	done chan struct{}
}

// NewSocket wraps conn for consumerID in sessionID, starting its write
// pump goroutine.
func NewSocket(conn *websocket.Conn, sessionID, consumerID string, bufferThreshold int) *Socket {
	return newSocket(conn, sessionID, consumerID, bufferThreshold)
}

func newSocket(conn wireConn, sessionID, consumerID string, bufferThreshold int) *Socket {
	if bufferThreshold <= 0 {
		bufferThreshold = 1 << 20 // 1 MiB, spec.md §4.4 default order of magnitude
	}
	s := &Socket{
		ConsumerID:      consumerID,
		SessionID:       sessionID,
		conn:            conn,
		bufferThreshold: bufferThreshold,
		wake:            make(chan struct{}, 1),
		done:            make(chan struct{}),
	}
	go s.pump()
	return s
}

// BufferedBytes reports the outbound queue's current byte count.
func (s *Socket) BufferedBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queuedSz
}

// Send enqueues payload for delivery, or drops it if the queue is already
// strictly over bufferThreshold. Returns false when dropped.
func (s *Socket) Send(payload []byte) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	if s.queuedSz > int64(s.bufferThreshold) {
		s.mu.Unlock()
		return false
	}
	s.queued = append(s.queued, payload)
	s.queuedSz += int64(len(payload))
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

// Closed reports whether the write pump has shut the connection down,
// either from a write failure or an explicit Close.
func (s *Socket) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close stops the write pump and closes the underlying connection.
func (s *Socket) Close(code websocket.StatusCode, reason string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	close(s.done)
	_ = s.conn.Close(code, reason)
}

func (s *Socket) pump() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
			s.drain()
		}
	}
}

func (s *Socket) drain() {
	for {
		s.mu.Lock()
		if len(s.queued) == 0 {
			s.mu.Unlock()
			return
		}
		payload := s.queued[0]
		s.mu.Unlock()

		// payload stays counted in queuedSz while the write is in flight,
		// so BufferedBytes (and Send's threshold check) reflects bytes not
		// yet confirmed delivered, not just bytes still sitting in queue.
		err := s.conn.Write(context.Background(), websocket.MessageText, payload)

		s.mu.Lock()
		s.queued = s.queued[1:]
		s.queuedSz -= int64(len(payload))
		s.mu.Unlock()

		if err != nil {
			logging.Debug().Err(err).Str("consumerID", s.ConsumerID).Msg("consumer socket write failed")
			s.Close(websocket.StatusInternalError, "write failed")
			return
		}
	}
}
