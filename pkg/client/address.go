package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/aeolun/auboutique/pkg/protocol"
	"github.com/gorilla/websocket"
)

const (
	defaultTCPPort  = "5555"
	defaultHTTPPort = "8080"
	defaultWSPath   = "/ws"
)

// dialConfig describes how to reach a server address.
type dialConfig struct {
	display   string // Address with scheme for logs and the UI
	transport string // "tcp" or "websocket"
	dial      func(ctx context.Context) (net.Conn, error)
}

// parseServerAddress accepts "host:port", "tcp://host:port",
// "ws://host:port/path" and "wss://host:port/path".
func parseServerAddress(raw string) (*dialConfig, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, errors.New("server address is empty")
	}

	scheme := "tcp"
	hostPort := trimmed
	path := ""
	if strings.Contains(trimmed, "://") {
		u, err := url.Parse(trimmed)
		if err != nil {
			return nil, fmt.Errorf("invalid server address %q: %w", raw, err)
		}
		if u.Scheme != "" {
			scheme = strings.ToLower(u.Scheme)
		}
		hostPort = u.Host
		path = u.Path
	}

	switch scheme {
	case "tcp", "":
		host, port, err := splitHostPortWithDefault(hostPort, defaultTCPPort)
		if err != nil {
			return nil, err
		}
		address := net.JoinHostPort(host, port)
		return &dialConfig{
			display:   address,
			transport: "tcp",
			dial: func(ctx context.Context) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "tcp", address)
			},
		}, nil

	case "ws", "wss":
		host, port, err := splitHostPortWithDefault(hostPort, defaultHTTPPort)
		if err != nil {
			return nil, err
		}
		if path == "" || path == "/" {
			path = defaultWSPath
		}
		target := fmt.Sprintf("%s://%s%s", scheme, net.JoinHostPort(host, port), path)
		return &dialConfig{
			display:   target,
			transport: "websocket",
			dial: func(ctx context.Context) (net.Conn, error) {
				return DialWebSocket(ctx, target)
			},
		}, nil

	default:
		return nil, fmt.Errorf("unsupported server scheme %q", scheme)
	}
}

func splitHostPortWithDefault(hostPort, defaultPort string) (string, string, error) {
	hostPort = strings.TrimSpace(hostPort)
	if hostPort == "" {
		return "", "", errors.New("missing host in server address")
	}

	host, port, err := net.SplitHostPort(hostPort)
	if err == nil {
		return host, port, nil
	}

	var addrErr *net.AddrError
	if errors.As(err, &addrErr) && strings.Contains(strings.ToLower(addrErr.Err), "missing port") {
		host = hostPort
		if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
			host = strings.TrimPrefix(strings.TrimSuffix(host, "]"), "[")
		}
		return host, defaultPort, nil
	}

	return "", "", err
}

// DialWebSocket opens a WebSocket to target and adapts it to net.Conn so
// frames flow exactly as on TCP.
func DialWebSocket(ctx context.Context, target string) (net.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	ws, _, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", target, err)
	}
	ws.SetReadLimit(protocol.MaxFrameSize + 4)
	return protocol.NewWebSocketConn(ws), nil
}
