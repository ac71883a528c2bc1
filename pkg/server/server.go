package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/aeolun/auboutique/pkg/protocol"
)

var (
	errorLog = log.New(os.Stderr, "ERROR: ", log.LstdFlags)
	debugLog = log.New(io.Discard, "DEBUG: ", log.LstdFlags)
)

// Server represents the AUBoutique relay server
type Server struct {
	store    Store
	sessions *SessionRegistry
	config   ServerConfig
	metrics  *Metrics

	listener    net.Listener
	httpServers []*http.Server

	shutdown chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	connsMu  sync.Mutex
	conns    map[*SafeConn]struct{}
	stopping bool

	startTime time.Time
	now       func() time.Time
}

// NewServer creates a server over store. Metrics may be nil.
func NewServer(store Store, config ServerConfig, metrics *Metrics) *Server {
	sessions := NewSessionRegistry()
	sessions.SetMetrics(metrics)

	return &Server{
		store:     store,
		sessions:  sessions,
		config:    config,
		metrics:   metrics,
		shutdown:  make(chan struct{}),
		conns:     make(map[*SafeConn]struct{}),
		startTime: time.Now(),
		now:       time.Now,
	}
}

// EnableDebugLogging sends per-connection debug output to stderr.
// Call before Start.
func EnableDebugLogging() {
	debugLog = log.New(os.Stderr, "DEBUG: ", log.LstdFlags|log.Lmicroseconds)
	debugLog.Println("Debug logging enabled")
}

// Sessions exposes the session registry.
func (s *Server) Sessions() *SessionRegistry {
	return s.sessions
}

// Start starts the TCP listener and, if configured, the WebSocket and
// metrics HTTP servers. It returns once the listener is bound.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.TCPPort)

	// Use ListenConfig to enable SO_REUSEADDR
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var opErr error
			err := c.Control(func(fd uintptr) {
				opErr = setSocketOptions(fd)
			})
			if err != nil {
				return err
			}
			return opErr
		},
	}

	listener, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener
	log.Printf("Listening on %s", listener.Addr())

	if s.config.HTTPPort > 0 {
		mux := http.NewServeMux()
		mux.HandleFunc("/ws", s.HandleWebSocket)
		if err := s.serveHTTP(s.config.HTTPPort, mux, "WebSocket (/ws)"); err != nil {
			listener.Close()
			return err
		}
	}

	if s.config.MetricsPort > 0 && s.metrics != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", s.metrics.Handler())
		mux.HandleFunc("/health", s.HealthHandler)
		if err := s.serveHTTP(s.config.MetricsPort, mux, "metrics (/metrics, /health) - INTERNAL ONLY"); err != nil {
			s.closeListeners()
			return err
		}
	}

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

func (s *Server) serveHTTP(port int, handler http.Handler, what string) error {
	addr := fmt.Sprintf(":%d", port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	s.httpServers = append(s.httpServers, srv)
	log.Printf("HTTP server listening on %s: %s", ln.Addr(), what)

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errorLog.Printf("HTTP server on %s: %v", addr, err)
		}
	}()
	return nil
}

// Addr returns the TCP listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listeners and every live connection, waits for all
// handlers to finish, then closes the store. Safe to call more than once.
func (s *Server) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		log.Println("Graceful shutdown initiated...")
		close(s.shutdown)
		s.closeListeners()

		s.connsMu.Lock()
		s.stopping = true
		live := make([]*SafeConn, 0, len(s.conns))
		for conn := range s.conns {
			live = append(live, conn)
		}
		s.connsMu.Unlock()

		log.Printf("Closing %d connections...", len(live))
		for _, conn := range live {
			conn.Close()
		}

		s.wg.Wait()

		if cerr := s.store.Close(); cerr != nil {
			errorLog.Printf("Error during store close: %v", cerr)
			err = cerr
		}
		log.Println("Graceful shutdown complete")
	})
	return err
}

func (s *Server) closeListeners() {
	if s.listener != nil {
		s.listener.Close()
	}
	for _, srv := range s.httpServers {
		srv.Close()
	}
}

// HealthHandler reports liveness and a few counters as JSON.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	s.connsMu.Lock()
	connections := len(s.conns)
	s.connsMu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":         "ok",
		"connections":    connections,
		"sessions":       s.sessions.Count(),
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
	})
}

// acceptLoop accepts incoming connections
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			errorLog.Printf("Accept error: %v", err)
			continue
		}

		// Disable Nagle's algorithm for immediate sends
		if tcpConn, ok := conn.(*net.TCPConn); ok {
			tcpConn.SetNoDelay(true)
		}
		go s.handleConnection(conn, "tcp")
	}
}

// trackConn registers a live connection. It refuses once shutdown has begun,
// so the WaitGroup never grows after Stop starts waiting.
func (s *Server) trackConn(conn *SafeConn) bool {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	if s.stopping {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrackConn(conn *SafeConn) {
	s.connsMu.Lock()
	delete(s.conns, conn)
	s.connsMu.Unlock()
}

// handleConnection owns one connection for its whole life: it reads
// requests, writes one response per request, and on exit unbinds the
// session before closing the connection.
func (s *Server) handleConnection(raw net.Conn, transport string) {
	conn := NewSafeConn(raw, transport)
	if !s.trackConn(conn) {
		raw.Close()
		return
	}
	defer s.wg.Done()
	defer s.closeConnection(conn)

	s.metrics.RecordConnectionOpened(conn.Transport())
	debugLog.Printf("Conn %d: new %s connection from %s", conn.ID(), conn.Transport(), conn.RemoteAddr())

	s.messageLoop(conn)
}

// closeConnection is the single cleanup path for a connection.
func (s *Server) closeConnection(conn *SafeConn) {
	if identity, ok := s.sessions.Unbind(conn); ok {
		debugLog.Printf("Conn %d: %s went offline", conn.ID(), identity)
	}
	conn.Close()
	s.untrackConn(conn)
	s.metrics.RecordConnectionClosed()
}

// messageLoop handles requests until the stream fails. A bad payload inside a
// well-formed frame is answered and the loop continues; a bad frame header
// ends the loop because the stream cannot be resynchronized.
func (s *Server) messageLoop(conn *SafeConn) {
	replies := newReplyCache(s.config.ReplyCacheSize)

	for {
		if s.config.IdleTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.config.IdleTimeout))
		}

		frame, err := conn.ReadFrame()
		if err != nil {
			switch {
			case errors.Is(err, io.EOF), conn.Closed():
				debugLog.Printf("Conn %d: closed", conn.ID())
			case errors.Is(err, protocol.ErrFrameTooLarge), errors.Is(err, protocol.ErrInvalidFrameLength),
				errors.Is(err, protocol.ErrDecompressionFailed), errors.Is(err, protocol.ErrInvalidCompressedLen),
				errors.Is(err, protocol.ErrInvalidVersion):
				log.Printf("Conn %d: dropping connection after bad frame: %v", conn.ID(), err)
			default:
				debugLog.Printf("Conn %d: read error: %v", conn.ID(), err)
			}
			return
		}

		debugLog.Printf("Conn %d ← RECV: Type=0x%02X Flags=0x%02X PayloadLen=%d", conn.ID(), frame.Type, frame.Flags, len(frame.Payload))

		resp := s.handleFrame(conn, replies, frame)
		payload, err := protocol.Marshal(resp)
		if err != nil {
			errorLog.Printf("Conn %d: encode response: %v", conn.ID(), err)
			payload, _ = protocol.Marshal(protocol.ErrorResponse(protocol.ErrInternal))
		}
		if err := conn.EncodeFrameTimeout(protocol.NewFrame(protocol.TypeResponse, payload), s.config.WriteTimeout); err != nil {
			debugLog.Printf("Conn %d: write error: %v", conn.ID(), err)
			return
		}
	}
}
