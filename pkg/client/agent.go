package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/aeolun/auboutique/pkg/protocol"
	"github.com/google/uuid"
)

// DefaultPollInterval is how often the UI drains the push queue.
const DefaultPollInterval = 50 * time.Millisecond

// Config tunes the agent's timeouts and retries.
type Config struct {
	CallTimeout  time.Duration // Per attempt
	CallAttempts int
	DialTimeout  time.Duration // Per attempt
	DialAttempts int
	DialBackoff  time.Duration // Doubles after each failed dial
	PollInterval time.Duration
}

// DefaultConfig returns the default agent configuration
func DefaultConfig() Config {
	return Config{
		CallTimeout:  10 * time.Second,
		CallAttempts: 3,
		DialTimeout:  5 * time.Second,
		DialAttempts: 3,
		DialBackoff:  500 * time.Millisecond,
		PollInterval: DefaultPollInterval,
	}
}

// ConnectionStateType represents the connection status
type ConnectionStateType int

const (
	StateTypeConnected ConnectionStateType = iota
	StateTypeDisconnected
	StateTypeReconnecting
)

func (s ConnectionStateType) String() string {
	switch s {
	case StateTypeConnected:
		return "connected"
	case StateTypeDisconnected:
		return "disconnected"
	case StateTypeReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// ConnectionStateUpdate represents a connection state change
type ConnectionStateUpdate struct {
	State ConnectionStateType
	Err   error
}

// errAttemptTimeout marks a call attempt that got no reply in time.
var errAttemptTimeout = errors.New("call attempt timed out")

// link is one established transport and the reader that owns its read side.
type link struct {
	conn net.Conn
	done chan struct{} // Closed when the reader exits
}

// pendingCall is the single call waiting for its response.
type pendingCall struct {
	id    string
	reply chan *protocol.Response
}

// Agent is the client side of the protocol. It pairs each request with its
// response by request id while a background reader queues chat pushes.
// At most one call is outstanding at a time.
type Agent struct {
	addr      string
	transport string
	dial      func(ctx context.Context) (net.Conn, error)
	config    Config

	callMu sync.Mutex // Serializes Call
	dialMu sync.Mutex // Serializes Connect

	mu        sync.Mutex
	link      *link
	pending   *pendingCall
	lastLogin *protocol.LoginRequest
	closed    bool

	pushes      *PushQueue
	stateChange chan ConnectionStateUpdate
	logger      *log.Logger
	wg          sync.WaitGroup
}

// NewAgent creates an agent for addr ("host:port", "ws://host:port/ws", ...).
// It does not connect.
func NewAgent(addr string, config Config) (*Agent, error) {
	dc, err := parseServerAddress(addr)
	if err != nil {
		return nil, err
	}
	return &Agent{
		addr:        dc.display,
		transport:   dc.transport,
		dial:        dc.dial,
		config:      config,
		pushes:      NewPushQueue(),
		stateChange: make(chan ConnectionStateUpdate, 10),
	}, nil
}

// SetLogger sets a logger for debugging connection events
func (a *Agent) SetLogger(logger *log.Logger) {
	a.logger = logger
}

// logf logs a message if a logger is set
func (a *Agent) logf(format string, args ...interface{}) {
	if a.logger != nil {
		a.logger.Printf(format, args...)
	}
}

// Address returns the server address with scheme.
func (a *Agent) Address() string {
	return a.addr
}

// Transport returns "tcp" or "websocket".
func (a *Agent) Transport() string {
	return a.transport
}

// Pushes returns the queue chat pushes are delivered to.
func (a *Agent) Pushes() *PushQueue {
	return a.pushes
}

// StateChanges reports connects and disconnects. Updates are dropped when
// nobody reads them.
func (a *Agent) StateChanges() <-chan ConnectionStateUpdate {
	return a.stateChange
}

// IsConnected reports whether a transport is established.
func (a *Agent) IsConnected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.link != nil
}

func (a *Agent) emit(update ConnectionStateUpdate) {
	select {
	case a.stateChange <- update:
	default:
	}
}

// Connect dials the server, retrying with exponential backoff. Connecting an
// already connected agent is a no-op.
func (a *Agent) Connect(ctx context.Context) error {
	a.dialMu.Lock()
	defer a.dialMu.Unlock()

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return protocol.ErrTransportClosed
	}
	if a.link != nil {
		a.mu.Unlock()
		return nil
	}
	a.mu.Unlock()

	attempts := max(a.config.DialAttempts, 1)
	delay := a.config.DialBackoff
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		a.logf("Connecting to %s (attempt %d/%d)...", a.addr, attempt, attempts)

		dialCtx, cancel := context.WithTimeout(ctx, a.config.DialTimeout)
		conn, err := a.dial(dialCtx)
		cancel()
		if err == nil {
			if tcpConn, ok := conn.(*net.TCPConn); ok {
				tcpConn.SetNoDelay(true)
			}
			if err := a.attach(conn); err != nil {
				return err
			}
			a.logf("Connected to %s", a.addr)
			return nil
		}

		lastErr = err
		a.logf("Connection attempt %d failed: %v", attempt, err)
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return fmt.Errorf("connect to %s failed after %d attempts: %w", a.addr, attempts, lastErr)
}

func (a *Agent) attach(conn net.Conn) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		conn.Close()
		return protocol.ErrTransportClosed
	}
	if a.link != nil {
		a.mu.Unlock()
		conn.Close()
		return nil
	}
	l := &link{conn: conn, done: make(chan struct{})}
	a.link = l
	a.wg.Add(1)
	a.mu.Unlock()

	go a.readLoop(l)
	a.emit(ConnectionStateUpdate{State: StateTypeConnected})
	return nil
}

// detach tears down l if it is still the current link.
func (a *Agent) detach(l *link, cause error) {
	a.mu.Lock()
	current := a.link == l
	if current {
		a.link = nil
	}
	closed := a.closed
	a.mu.Unlock()

	l.conn.Close()
	close(l.done)

	if current && !closed {
		a.logf("Disconnected from %s: %v", a.addr, cause)
		a.emit(ConnectionStateUpdate{State: StateTypeDisconnected, Err: cause})
	}
}

// Close shuts the transport and waits for the reader to exit. The agent
// cannot be reused.
func (a *Agent) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	l := a.link
	a.mu.Unlock()

	if l != nil {
		l.conn.Close()
	}
	a.wg.Wait()
}

// Disconnect drops the transport but keeps the agent usable; the next call
// reconnects.
func (a *Agent) Disconnect() {
	a.mu.Lock()
	l := a.link
	a.mu.Unlock()
	if l != nil {
		l.conn.Close()
		<-l.done
	}
}

// readLoop owns the read side of one link. Responses go to the pending call
// when the request id matches; pushes go to the queue.
func (a *Agent) readLoop(l *link) {
	defer a.wg.Done()

	var cause error
	defer func() { a.detach(l, cause) }()

	for {
		frame, err := protocol.DecodeFrame(l.conn)
		if err != nil {
			if errors.Is(err, io.EOF) {
				a.logf("Connection closed by server (EOF)")
			} else {
				a.logf("Read error: %v", err)
			}
			cause = err
			return
		}

		a.logf("← RECV: Type=0x%02X Flags=0x%02X PayloadLen=%d", frame.Type, frame.Flags, len(frame.Payload))

		switch frame.Type {
		case protocol.TypeResponse:
			resp, err := protocol.DecodeResponse(frame.Payload)
			if err != nil {
				a.logf("Skipping undecodable response: %v", err)
				continue
			}
			a.deliver(resp)
		case protocol.TypePush:
			push, err := protocol.DecodePush(frame.Payload)
			if err != nil {
				a.logf("Skipping undecodable push: %v", err)
				continue
			}
			a.pushes.Push(push)
		default:
			a.logf("Skipping frame of unknown type 0x%02X", frame.Type)
		}
	}
}

func (a *Agent) deliver(resp *protocol.Response) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p := a.pending
	if p == nil || p.id != resp.RequestID {
		a.logf("Dropping stale response for request %q", resp.RequestID)
		return
	}
	select {
	case p.reply <- resp:
	default:
		// A retry's duplicate reply; the first one already won
	}
}

// Call sends req and waits for its response. The request id is assigned
// once and reused on every retry, so the server answers a retry from its
// reply cache instead of running the request again. A disconnected agent
// reconnects first and replays the last successful login.
func (a *Agent) Call(ctx context.Context, req protocol.Request) (*protocol.Response, error) {
	a.callMu.Lock()
	defer a.callMu.Unlock()

	head := req.Head()
	if head.RequestID == "" {
		head.RequestID = uuid.NewString()
	}
	payload, err := protocol.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", head.Type, err)
	}

	if err := a.ensureConnected(ctx); err != nil {
		return nil, err
	}

	attempts := max(a.config.CallAttempts, 1)
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := a.roundTrip(ctx, head.RequestID, payload)
		switch {
		case err == nil:
			a.remember(req, resp)
			return resp, nil
		case errors.Is(err, errAttemptTimeout):
			a.logf("No response to %s %s (attempt %d/%d)", head.Type, head.RequestID, attempt, attempts)
		default:
			return nil, err
		}
	}
	return nil, protocol.ErrNoResponse
}

// roundTrip writes one attempt of a request and waits for the matching reply.
func (a *Agent) roundTrip(ctx context.Context, requestID string, payload []byte) (*protocol.Response, error) {
	reply := make(chan *protocol.Response, 1)

	a.mu.Lock()
	l := a.link
	if l == nil {
		a.mu.Unlock()
		return nil, protocol.ErrTransportClosed
	}
	a.pending = &pendingCall{id: requestID, reply: reply}
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		if a.pending != nil && a.pending.reply == reply {
			a.pending = nil
		}
		a.mu.Unlock()
	}()

	l.conn.SetWriteDeadline(time.Now().Add(a.config.CallTimeout))
	err := protocol.EncodeFrame(l.conn, protocol.NewFrame(protocol.TypeRequest, payload))
	l.conn.SetWriteDeadline(time.Time{})
	if err != nil {
		a.logf("Write error: %v", err)
		l.conn.Close()
		return nil, protocol.ErrTransportClosed
	}

	timer := time.NewTimer(a.config.CallTimeout)
	defer timer.Stop()

	select {
	case resp := <-reply:
		return resp, nil
	case <-l.done:
		// The reply may have landed just before the reader exited
		select {
		case resp := <-reply:
			return resp, nil
		default:
		}
		return nil, protocol.ErrTransportClosed
	case <-timer.C:
		return nil, errAttemptTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ensureConnected reconnects a dropped agent and restores its session.
// Caller holds callMu.
func (a *Agent) ensureConnected(ctx context.Context) error {
	if a.IsConnected() {
		return nil
	}

	a.emit(ConnectionStateUpdate{State: StateTypeReconnecting})
	if err := a.Connect(ctx); err != nil {
		return fmt.Errorf("%w: %v", protocol.ErrTransportClosed, err)
	}

	a.mu.Lock()
	login := a.lastLogin
	a.mu.Unlock()
	if login == nil {
		return nil
	}

	replay := *login
	replay.RequestID = uuid.NewString()
	payload, err := protocol.Marshal(&replay)
	if err != nil {
		return fmt.Errorf("encode login replay: %w", err)
	}
	resp, err := a.roundTrip(ctx, replay.RequestID, payload)
	if err != nil {
		return err
	}
	if err := resp.Err(); err != nil {
		a.logf("Session restore for %s failed: %v", login.Username, err)
		a.mu.Lock()
		a.lastLogin = nil
		a.mu.Unlock()
		return nil
	}
	a.logf("Session restored for %s", login.Username)
	return nil
}

// remember tracks the credentials of the current session for replay after
// a reconnect.
func (a *Agent) remember(req protocol.Request, resp *protocol.Response) {
	if resp.Status != protocol.StatusSuccess {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	switch r := req.(type) {
	case *protocol.LoginRequest:
		saved := *r
		saved.RequestID = ""
		a.lastLogin = &saved
	case *protocol.LogoutRequest:
		a.lastLogin = nil
	}
}
