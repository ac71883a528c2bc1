package server

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aeolun/auboutique/pkg/protocol"
)

var nextConnID atomic.Uint64

// SafeConn wraps a net.Conn with automatic write synchronization to prevent
// concurrent writes from corrupting the wire protocol frames.
//
// The owning handler writes responses while other handlers relay chat pushes
// to the same connection. Without synchronization their frame bytes would
// interleave on the wire.
type SafeConn struct {
	id        uint64
	conn      net.Conn
	transport string
	mu        sync.Mutex // Protects writes to conn
	closeOnce sync.Once
	closed    atomic.Bool
}

// NewSafeConn wraps a net.Conn with write synchronization
func NewSafeConn(conn net.Conn, transport string) *SafeConn {
	return &SafeConn{
		id:        nextConnID.Add(1),
		conn:      conn,
		transport: transport,
	}
}

// ID identifies the connection in logs.
func (sc *SafeConn) ID() uint64 {
	return sc.id
}

// Transport names the listener the connection arrived on ("tcp" or "websocket").
func (sc *SafeConn) Transport() string {
	return sc.transport
}

// EncodeFrameTimeout encodes and sends a protocol frame under the write lock,
// bounded by a write deadline. A zero timeout means no deadline. This is the
// only way to write frames to the connection; the raw conn is private.
func (sc *SafeConn) EncodeFrameTimeout(frame *protocol.Frame, timeout time.Duration) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if timeout > 0 {
		sc.conn.SetWriteDeadline(time.Now().Add(timeout))
		defer sc.conn.SetWriteDeadline(time.Time{})
	}
	return protocol.EncodeFrame(sc.conn, frame)
}

// ReadFrame reads a protocol frame from the connection.
// Only the owning handler reads, so reads don't need synchronization.
func (sc *SafeConn) ReadFrame() (*protocol.Frame, error) {
	return protocol.DecodeFrame(sc.conn)
}

// SetReadDeadline bounds the next read.
func (sc *SafeConn) SetReadDeadline(t time.Time) error {
	return sc.conn.SetReadDeadline(t)
}

// Close closes the underlying connection. Safe to call more than once.
func (sc *SafeConn) Close() error {
	var err error
	sc.closeOnce.Do(func() {
		sc.closed.Store(true)
		err = sc.conn.Close()
	})
	return err
}

// Closed reports whether Close has been called.
func (sc *SafeConn) Closed() bool {
	return sc.closed.Load()
}

// RemoteAddr returns the remote network address
func (sc *SafeConn) RemoteAddr() net.Addr {
	return sc.conn.RemoteAddr()
}
