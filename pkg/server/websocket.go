package server

import (
	"net/http"

	"github.com/aeolun/auboutique/pkg/protocol"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Non-browser clients send no Origin; browsers are not a supported client
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWebSocket upgrades the request and serves the connection with the
// same handler as TCP. Frames travel as binary WebSocket messages.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		debugLog.Printf("WebSocket upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}
	ws.SetReadLimit(protocol.MaxFrameSize + 4)

	s.handleConnection(protocol.NewWebSocketConn(ws), "websocket")
}
