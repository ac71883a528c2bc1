package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/aeolun/auboutique/pkg/database"
	"github.com/aeolun/auboutique/pkg/protocol"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Transport abstraction
// ---------------------------------------------------------------------------

// transportClient sends raw frames and reads frames over TCP or WebSocket.
type transportClient interface {
	// sendFrame encodes payload into a frame of frameType and sends it.
	sendFrame(t *testing.T, frameType uint8, payload []byte)
	// sendRaw writes bytes to the stream without framing.
	sendRaw(t *testing.T, data []byte)
	// expect reads the next frame and asserts its type.
	expect(t *testing.T, expectedType uint8, timeout time.Duration) *protocol.Frame
	// tryRead attempts to read one frame within timeout. Returns nil if
	// nothing arrived or the connection failed.
	tryRead(t *testing.T, timeout time.Duration) *protocol.Frame
	close()
}

// ---------------------------------------------------------------------------
// TCP transport
// ---------------------------------------------------------------------------

type tcpClient struct {
	conn      net.Conn
	closeOnce sync.Once
}

func newTCPClient(t *testing.T, addr string) *tcpClient {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("TCP connect to %s failed: %v", addr, err)
	}
	return &tcpClient{conn: conn}
}

func (c *tcpClient) sendFrame(t *testing.T, frameType uint8, payload []byte) {
	t.Helper()
	if err := protocol.EncodeFrame(c.conn, protocol.NewFrame(frameType, payload)); err != nil {
		t.Fatalf("TCP send 0x%02X: %v", frameType, err)
	}
}

func (c *tcpClient) sendRaw(t *testing.T, data []byte) {
	t.Helper()
	if _, err := c.conn.Write(data); err != nil {
		t.Fatalf("TCP raw send: %v", err)
	}
}

func (c *tcpClient) expect(t *testing.T, expectedType uint8, timeout time.Duration) *protocol.Frame {
	t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(timeout))
	frame, err := protocol.DecodeFrame(c.conn)
	c.conn.SetReadDeadline(time.Time{})
	if err != nil {
		t.Fatalf("TCP expect 0x%02X: read error: %v", expectedType, err)
	}
	if frame.Type != expectedType {
		t.Fatalf("TCP expected 0x%02X, got 0x%02X", expectedType, frame.Type)
	}
	return frame
}

func (c *tcpClient) tryRead(t *testing.T, timeout time.Duration) *protocol.Frame {
	t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(timeout))
	frame, err := protocol.DecodeFrame(c.conn)
	c.conn.SetReadDeadline(time.Time{})
	if err != nil {
		return nil
	}
	return frame
}

func (c *tcpClient) close() {
	c.closeOnce.Do(func() {
		c.conn.Close()
	})
}

// ---------------------------------------------------------------------------
// WebSocket transport
//
// A persistent reader goroutine accumulates binary messages and decodes
// frames into a channel. gorilla/websocket cannot recover from a read
// deadline timeout, so deadlines are enforced on the channel instead.
// ---------------------------------------------------------------------------

type wsClient struct {
	conn      *websocket.Conn
	frames    chan *protocol.Frame
	errors    chan error
	done      chan struct{}
	closeOnce sync.Once
}

func newWSClient(t *testing.T, addr string) *wsClient {
	t.Helper()
	url := fmt.Sprintf("ws://%s/ws", addr)
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("WebSocket dial %s: %v", url, err)
	}

	wc := &wsClient{
		conn:   conn,
		frames: make(chan *protocol.Frame, 64),
		errors: make(chan error, 1),
		done:   make(chan struct{}),
	}

	go func() {
		defer close(wc.done)
		var readBuf bytes.Buffer
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				wc.errors <- err
				return
			}
			readBuf.Write(data)

			for readBuf.Len() > 0 {
				reader := bytes.NewReader(readBuf.Bytes())
				frame, err := protocol.DecodeFrame(reader)
				if err != nil {
					// Not enough data for a complete frame yet
					break
				}
				readBuf.Next(readBuf.Len() - reader.Len())
				wc.frames <- frame
			}
		}
	}()

	return wc
}

func (c *wsClient) sendFrame(t *testing.T, frameType uint8, payload []byte) {
	t.Helper()
	data, err := protocol.MarshalFrame(protocol.NewFrame(frameType, payload))
	if err != nil {
		t.Fatalf("WS frame encode 0x%02X: %v", frameType, err)
	}
	c.sendRaw(t, data)
}

func (c *wsClient) sendRaw(t *testing.T, data []byte) {
	t.Helper()
	if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		t.Fatalf("WS send: %v", err)
	}
}

func (c *wsClient) expect(t *testing.T, expectedType uint8, timeout time.Duration) *protocol.Frame {
	t.Helper()
	select {
	case frame := <-c.frames:
		if frame.Type != expectedType {
			t.Fatalf("WS expected 0x%02X, got 0x%02X", expectedType, frame.Type)
		}
		return frame
	case err := <-c.errors:
		t.Fatalf("WS expect 0x%02X: read error: %v", expectedType, err)
		return nil
	case <-time.After(timeout):
		t.Fatalf("WS expect 0x%02X: timeout after %v", expectedType, timeout)
		return nil
	}
}

func (c *wsClient) tryRead(t *testing.T, timeout time.Duration) *protocol.Frame {
	t.Helper()
	select {
	case frame := <-c.frames:
		return frame
	case <-c.errors:
		return nil
	case <-time.After(timeout):
		return nil
	}
}

func (c *wsClient) close() {
	c.closeOnce.Do(func() {
		c.conn.Close()
		<-c.done
	})
}

// ---------------------------------------------------------------------------
// Server setup for journey tests
// ---------------------------------------------------------------------------

type journeyServers struct {
	srv     *Server
	tcpAddr string
	wsAddr  string
}

// setupJourneyServer starts one server over a real SQLite store with TCP and
// WebSocket listeners on random ports.
func setupJourneyServer(t *testing.T) *journeyServers {
	t.Helper()

	db, err := database.Open(t.TempDir() + "/journey.db")
	if err != nil {
		t.Fatalf("Open DB: %v", err)
	}

	config := DefaultConfig()
	config.TCPPort = 0
	config.WriteTimeout = 2 * time.Second

	srv := NewServer(db, config, NewMetrics())
	if err := srv.Start(); err != nil {
		db.Close()
		t.Fatalf("Start: %v", err)
	}
	tcpAddr := srv.Addr().String()

	wsMux := http.NewServeMux()
	wsMux.HandleFunc("/ws", srv.HandleWebSocket)
	wsListener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("WS listen: %v", err)
	}
	wsServer := &http.Server{Handler: wsMux}
	go wsServer.Serve(wsListener)

	t.Cleanup(func() {
		wsServer.Close()
		srv.Stop()
	})

	return &journeyServers{
		srv:     srv,
		tcpAddr: tcpAddr,
		wsAddr:  wsListener.Addr().String(),
	}
}

// ---------------------------------------------------------------------------
// Transport factories and request helpers
// ---------------------------------------------------------------------------

type transportFactory struct {
	name    string
	connect func(t *testing.T, servers *journeyServers) transportClient
}

func allTransports() []transportFactory {
	return []transportFactory{
		{"tcp", func(t *testing.T, s *journeyServers) transportClient { return newTCPClient(t, s.tcpAddr) }},
		{"websocket", func(t *testing.T, s *journeyServers) transportClient { return newWSClient(t, s.wsAddr) }},
	}
}

const journeyTimeout = 5 * time.Second

func connect(t *testing.T, servers *journeyServers, tf transportFactory) transportClient {
	t.Helper()
	c := tf.connect(t, servers)
	t.Cleanup(c.close)
	return c
}

func request(t *testing.T, c transportClient, m msg) *protocol.Response {
	t.Helper()
	payload, err := json.Marshal(m)
	require.NoError(t, err)
	c.sendFrame(t, protocol.TypeRequest, payload)

	frame := c.expect(t, protocol.TypeResponse, journeyTimeout)
	resp, err := protocol.DecodeResponse(frame.Payload)
	require.NoError(t, err)
	return resp
}

func expectPush(t *testing.T, c transportClient) *protocol.ChatPush {
	t.Helper()
	frame := c.expect(t, protocol.TypePush, journeyTimeout)
	push, err := protocol.DecodePush(frame.Payload)
	require.NoError(t, err)
	return push
}

func registerUser(t *testing.T, c transportClient, username string) {
	t.Helper()
	resp := request(t, c, msg{
		"type": "register", "username": username, "password": "hunter22",
		"name": "Test " + username, "email": username + "@example.com",
	})
	require.Equal(t, protocol.StatusSuccess, resp.Status, resp.Message)
}

func loginUser(t *testing.T, c transportClient, username string) {
	t.Helper()
	resp := request(t, c, msg{"type": "login", "username": username, "password": "hunter22"})
	require.Equal(t, protocol.StatusSuccess, resp.Status, resp.Message)
}

// ---------------------------------------------------------------------------
// Main test entry point
// ---------------------------------------------------------------------------

func TestJourney(t *testing.T) {
	servers := setupJourneyServer(t)

	for _, tf := range allTransports() {
		t.Run("accounts/"+tf.name, func(t *testing.T) {
			runAccountJourney(t, servers, tf)
		})
	}

	for _, tf := range allTransports() {
		t.Run("chat/"+tf.name, func(t *testing.T) {
			runChatJourney(t, servers, tf)
		})
	}

	t.Run("cross_transport_chat", func(t *testing.T) {
		runCrossTransportChat(t, servers)
	})

	for _, tf := range allTransports() {
		t.Run("marketplace/"+tf.name, func(t *testing.T) {
			runMarketplaceJourney(t, servers, tf)
		})
	}

	for _, tf := range allTransports() {
		t.Run("retry_replay/"+tf.name, func(t *testing.T) {
			runRetryReplay(t, servers, tf)
		})
	}

	for _, tf := range allTransports() {
		t.Run("supersede/"+tf.name, func(t *testing.T) {
			runSupersede(t, servers, tf)
		})
	}

	for _, tf := range allTransports() {
		t.Run("malformed_payload/"+tf.name, func(t *testing.T) {
			runMalformedPayload(t, servers, tf)
		})
	}

	t.Run("oversize_frame_closes", func(t *testing.T) {
		runOversizeFrame(t, servers)
	})

	t.Run("unsupported_version_closes", func(t *testing.T) {
		runUnsupportedVersion(t, servers)
	})
}

func runAccountJourney(t *testing.T, servers *journeyServers, tf transportFactory) {
	c := connect(t, servers, tf)
	username := "acct" + tf.name

	resp := request(t, c, msg{"type": "ping", "request_id": "p1"})
	assert.Equal(t, "pong", resp.Message)
	assert.Equal(t, "p1", resp.RequestID)

	registerUser(t, c, username)

	resp = request(t, c, msg{
		"type": "register", "username": username, "password": "other",
		"name": "Dup", "email": "dup@example.com",
	})
	assert.Equal(t, protocol.CodeUsernameTaken, resp.Code)
	assert.Equal(t, "Username already exists", resp.Message)

	resp = request(t, c, msg{"type": "login", "username": username, "password": "wrong"})
	assert.Equal(t, protocol.CodeInvalidCredentials, resp.Code)
	assert.False(t, servers.srv.Sessions().IsOnline(username))

	loginUser(t, c, username)
	assert.True(t, servers.srv.Sessions().IsOnline(username))

	resp = request(t, c, msg{"type": "online_users"})
	assert.Contains(t, resp.Users, username)

	resp = request(t, c, msg{"type": "logout"})
	assert.Equal(t, protocol.StatusSuccess, resp.Status)
	assert.False(t, servers.srv.Sessions().IsOnline(username))
}

func runChatJourney(t *testing.T, servers *journeyServers, tf transportFactory) {
	alice := connect(t, servers, tf)
	bob := connect(t, servers, tf)
	aliceName, bobName := "alice"+tf.name, "bob"+tf.name

	registerUser(t, alice, aliceName)
	registerUser(t, bob, bobName)
	loginUser(t, alice, aliceName)
	loginUser(t, bob, bobName)

	resp := request(t, alice, msg{"type": "chat", "from": aliceName, "to": bobName, "message": "hello there"})
	require.Equal(t, protocol.StatusSuccess, resp.Status, resp.Message)

	push := expectPush(t, bob)
	assert.Equal(t, aliceName, push.From)
	assert.Equal(t, "hello there", push.Message)
	_, err := time.Parse(protocol.TimestampLayout, push.Timestamp)
	assert.NoError(t, err)

	resp = request(t, alice, msg{"type": "chat", "from": aliceName, "to": "ghost" + tf.name, "message": "boo"})
	assert.Equal(t, protocol.CodeUnknownRecipient, resp.Code)

	resp = request(t, alice, msg{"type": "chat", "from": bobName, "to": aliceName, "message": "spoof"})
	assert.Equal(t, protocol.CodeIdentityMismatch, resp.Code)

	// Disconnecting ends the session
	bob.close()
	require.Eventually(t, func() bool {
		return !servers.srv.Sessions().IsOnline(bobName)
	}, journeyTimeout, 10*time.Millisecond)

	resp = request(t, alice, msg{"type": "chat", "from": aliceName, "to": bobName, "message": "still there?"})
	assert.Equal(t, protocol.CodeRecipientOffline, resp.Code)
	assert.Equal(t, "User is offline", resp.Message)
}

func runCrossTransportChat(t *testing.T, servers *journeyServers) {
	transports := allTransports()
	alice := connect(t, servers, transports[0])
	bob := connect(t, servers, transports[1])

	registerUser(t, alice, "crossalice")
	registerUser(t, bob, "crossbob")
	loginUser(t, alice, "crossalice")
	loginUser(t, bob, "crossbob")

	resp := request(t, alice, msg{"type": "chat", "from": "crossalice", "to": "crossbob", "message": "tcp to ws"})
	require.Equal(t, protocol.StatusSuccess, resp.Status)
	assert.Equal(t, "tcp to ws", expectPush(t, bob).Message)

	resp = request(t, bob, msg{"type": "chat", "from": "crossbob", "to": "crossalice", "message": "ws to tcp"})
	require.Equal(t, protocol.StatusSuccess, resp.Status)
	assert.Equal(t, "ws to tcp", expectPush(t, alice).Message)
}

func runMarketplaceJourney(t *testing.T, servers *journeyServers, tf transportFactory) {
	seller := connect(t, servers, tf)
	buyer := connect(t, servers, tf)
	sellerName, buyerName := "seller"+tf.name, "buyer"+tf.name

	registerUser(t, seller, sellerName)
	registerUser(t, buyer, buyerName)
	loginUser(t, seller, sellerName)
	loginUser(t, buyer, buyerName)

	resp := request(t, seller, msg{
		"type": "add_product", "seller": sellerName, "name": "Lamp " + tf.name,
		"description": "Warm desk lamp", "price": 15.5, "category": "home",
	})
	require.Equal(t, protocol.StatusSuccess, resp.Status, resp.Message)
	productID := resp.ProductID
	require.NotZero(t, productID)

	resp = request(t, buyer, msg{"type": "list_products"})
	require.Equal(t, protocol.StatusSuccess, resp.Status)
	assert.True(t, containsProduct(resp.Products, productID))

	resp = request(t, buyer, msg{"type": "list_products", "query": "lamp " + tf.name, "category": "HOME"})
	require.Equal(t, protocol.StatusSuccess, resp.Status)
	require.Len(t, resp.Products, 1)
	assert.Equal(t, productID, resp.Products[0].ID)
	assert.Equal(t, "home", resp.Products[0].Category)

	resp = request(t, buyer, msg{"type": "list_products", "query": "no such thing anywhere"})
	assert.Empty(t, resp.Products)

	resp = request(t, buyer, msg{"type": "user_products", "username": "nobody" + tf.name})
	assert.Equal(t, protocol.CodeInvalidInput, resp.Code)

	resp = request(t, seller, msg{"type": "buy_product", "product_id": productID, "buyer": sellerName})
	assert.Equal(t, protocol.CodeOwnProduct, resp.Code)

	resp = request(t, buyer, msg{"type": "add_to_wishlist", "username": buyerName, "product_id": productID})
	assert.Equal(t, "Product added to your wishlist.", resp.Message)
	resp = request(t, buyer, msg{"type": "wishlist", "username": buyerName})
	assert.True(t, containsProduct(resp.Products, productID))

	resp = request(t, buyer, msg{"type": "buy_product", "product_id": productID, "buyer": buyerName})
	require.Equal(t, protocol.StatusSuccess, resp.Status, resp.Message)

	resp = request(t, buyer, msg{"type": "buy_product", "product_id": productID, "buyer": buyerName})
	assert.Equal(t, protocol.CodeProductSold, resp.Code)

	resp = request(t, buyer, msg{"type": "buy_product", "product_id": 999999, "buyer": buyerName})
	assert.Equal(t, protocol.CodeProductNotFound, resp.Code)

	resp = request(t, buyer, msg{"type": "list_products"})
	assert.False(t, containsProduct(resp.Products, productID), "sold products leave the catalog")

	resp = request(t, buyer, msg{"type": "user_products", "username": sellerName})
	require.Len(t, resp.Products, 1)
	assert.True(t, resp.Products[0].Sold)
	assert.Equal(t, buyerName, resp.Products[0].Buyer)

	resp = request(t, buyer, msg{"type": "rate_product", "username": buyerName, "product_id": productID, "rating": 4})
	assert.Equal(t, "Thank you for rating!", resp.Message)
	resp = request(t, buyer, msg{"type": "user_products", "username": sellerName})
	assert.Equal(t, 4.0, resp.Products[0].Rating)
	assert.Equal(t, 1, resp.Products[0].Ratings)
}

func containsProduct(products []protocol.Product, id int64) bool {
	for _, p := range products {
		if p.ID == id {
			return true
		}
	}
	return false
}

func runRetryReplay(t *testing.T, servers *journeyServers, tf transportFactory) {
	c := connect(t, servers, tf)
	username := "retry" + tf.name
	registerUser(t, c, username)
	loginUser(t, c, username)

	req := msg{
		"type": "add_product", "request_id": "retry-" + tf.name, "seller": username,
		"name": "Vase", "description": "Blue vase", "price": 20,
	}
	first := request(t, c, req)
	second := request(t, c, req)
	require.Equal(t, protocol.StatusSuccess, first.Status, first.Message)
	assert.Equal(t, first.ProductID, second.ProductID)
	assert.Equal(t, first.RequestID, second.RequestID)

	resp := request(t, c, msg{"type": "user_products", "username": username})
	assert.Len(t, resp.Products, 1, "a retried request must not run twice")
}

func runSupersede(t *testing.T, servers *journeyServers, tf transportFactory) {
	username := "twice" + tf.name
	senderName := "sender" + tf.name

	old := connect(t, servers, tf)
	registerUser(t, old, username)
	loginUser(t, old, username)

	current := connect(t, servers, tf)
	loginUser(t, current, username)

	sender := connect(t, servers, tf)
	registerUser(t, sender, senderName)
	loginUser(t, sender, senderName)

	resp := request(t, sender, msg{"type": "chat", "from": senderName, "to": username, "message": "which one?"})
	require.Equal(t, protocol.StatusSuccess, resp.Status, resp.Message)
	assert.Equal(t, "which one?", expectPush(t, current).Message)
	assert.Nil(t, old.tryRead(t, 100*time.Millisecond), "superseded connection must not receive pushes")

	// The displaced connection is still open but has no session
	resp = request(t, old, msg{"type": "chat", "from": username, "to": senderName, "message": "hi"})
	assert.Equal(t, protocol.CodeAuthRequired, resp.Code)
	resp = request(t, old, msg{"type": "ping"})
	assert.Equal(t, "pong", resp.Message)
}

func runMalformedPayload(t *testing.T, servers *journeyServers, tf transportFactory) {
	c := connect(t, servers, tf)

	c.sendFrame(t, protocol.TypeRequest, []byte("{not json"))
	frame := c.expect(t, protocol.TypeResponse, journeyTimeout)
	resp, err := protocol.DecodeResponse(frame.Payload)
	require.NoError(t, err)
	assert.Equal(t, protocol.CodeMalformed, resp.Code)

	resp = request(t, c, msg{"type": "nonsense"})
	assert.Equal(t, protocol.CodeUnknownType, resp.Code)

	resp = request(t, c, msg{"type": "login", "username": "someone"})
	assert.Equal(t, protocol.CodeMissingField, resp.Code)
	assert.Equal(t, "Missing required field: password", resp.Message)

	// The connection survives all of the above
	resp = request(t, c, msg{"type": "ping"})
	assert.Equal(t, "pong", resp.Message)
}

func runOversizeFrame(t *testing.T, servers *journeyServers) {
	c := newTCPClient(t, servers.tcpAddr)
	defer c.close()

	var header bytes.Buffer
	require.NoError(t, protocol.WriteUint32(&header, protocol.MaxFrameSize+1))
	c.sendRaw(t, header.Bytes())

	assert.Nil(t, c.tryRead(t, 2*time.Second), "server must close the connection")
}

func runUnsupportedVersion(t *testing.T, servers *journeyServers) {
	c := newTCPClient(t, servers.tcpAddr)
	defer c.close()

	data, err := protocol.MarshalFrame(&protocol.Frame{
		Version: 0x09,
		Type:    protocol.TypeRequest,
		Payload: []byte(`{"type":"ping"}`),
	})
	require.NoError(t, err)
	c.sendRaw(t, data)

	assert.Nil(t, c.tryRead(t, 2*time.Second), "server must close instead of answering pong")
}
