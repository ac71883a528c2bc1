package client

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/aeolun/auboutique/pkg/protocol"
)

// MockAgent is a test implementation of AgentInterface. Every call is
// recorded; responses come from the fields set by the test.
type MockAgent struct {
	mu sync.RWMutex

	// State
	connected  bool
	address    string
	connectErr error
	callErr    error

	pushes      *PushQueue
	stateChange chan ConnectionStateUpdate

	// Canned results
	Products  []protocol.Product
	Users     []string
	NextID    int64
	ReplyText string
	Image     []byte
	ImageType string

	// Calls for verification, e.g. "buy_product 3 bob"
	Calls []string
}

// NewMockAgent creates a new mock agent
func NewMockAgent(address string) *MockAgent {
	return &MockAgent{
		address:     address,
		pushes:      NewPushQueue(),
		stateChange: make(chan ConnectionStateUpdate, 10),
		ReplyText:   "ok",
		NextID:      1,
	}
}

// SetConnectError makes Connect fail
func (m *MockAgent) SetConnectError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectErr = err
}

// SetCallError makes every call fail with err
func (m *MockAgent) SetCallError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callErr = err
}

// SimulatePush queues a chat push as if the server had sent it
func (m *MockAgent) SimulatePush(p *protocol.ChatPush) {
	m.pushes.Push(p)
}

// SimulateStateChange emits a connection state update
func (m *MockAgent) SimulateStateChange(update ConnectionStateUpdate) {
	m.stateChange <- update
}

// GetCalls returns a copy of the recorded calls
func (m *MockAgent) GetCalls() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.Calls...)
}

func (m *MockAgent) record(call string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, call)
	return m.callErr
}

func (m *MockAgent) reply(call string) (*protocol.Response, error) {
	if err := m.record(call); err != nil {
		return protocol.ErrorResponse(err), err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return protocol.Success(m.ReplyText), nil
}

func (m *MockAgent) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connectErr != nil {
		return m.connectErr
	}
	m.connected = true
	return nil
}

func (m *MockAgent) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
}

func (m *MockAgent) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

func (m *MockAgent) Address() string {
	return m.address
}

func (m *MockAgent) StateChanges() <-chan ConnectionStateUpdate {
	return m.stateChange
}

func (m *MockAgent) Pushes() *PushQueue {
	return m.pushes
}

func (m *MockAgent) Register(ctx context.Context, username, password, name, email string) (*protocol.Response, error) {
	return m.reply("register " + username)
}

func (m *MockAgent) Login(ctx context.Context, username, password string) (*protocol.Response, error) {
	return m.reply("login " + username)
}

func (m *MockAgent) Logout(ctx context.Context) (*protocol.Response, error) {
	return m.reply("logout")
}

func (m *MockAgent) OnlineUsers(ctx context.Context) ([]string, error) {
	if err := m.record("online_users"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Users, nil
}

func (m *MockAgent) SendChat(ctx context.Context, from, to, message string) (*protocol.Response, error) {
	return m.reply("chat " + from + " " + to + " " + message)
}

func (m *MockAgent) ListProducts(ctx context.Context) ([]protocol.Product, error) {
	if err := m.record("list_products"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Products, nil
}

func (m *MockAgent) SearchProducts(ctx context.Context, query, category string) ([]protocol.Product, error) {
	if err := m.record(fmt.Sprintf("search_products %q %q", query, category)); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Products, nil
}

func (m *MockAgent) UserProducts(ctx context.Context, username string) ([]protocol.Product, error) {
	if err := m.record("user_products " + username); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Products, nil
}

func (m *MockAgent) AddProduct(ctx context.Context, seller, name string, price float64, description, category string, image []byte) (int64, error) {
	call := "add_product " + seller + " " + name
	if category != "" {
		call += " #" + category
	}
	if err := m.record(call); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.NextID
	m.NextID++
	return id, nil
}

func (m *MockAgent) ProductImage(ctx context.Context, productID int64) ([]byte, string, error) {
	if err := m.record(callf("product_image", productID)); err != nil {
		return nil, "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Image, m.ImageType, nil
}

func (m *MockAgent) BuyProduct(ctx context.Context, productID int64, buyer string) (*protocol.Response, error) {
	return m.reply(callf("buy_product", productID, buyer))
}

func (m *MockAgent) RateProduct(ctx context.Context, productID int64, username string, rating int) (*protocol.Response, error) {
	return m.reply(callf("rate_product", productID, username, rating))
}

func (m *MockAgent) AddToWishlist(ctx context.Context, username string, productID int64) (*protocol.Response, error) {
	return m.reply(callf("add_to_wishlist", productID, username))
}

func (m *MockAgent) RemoveFromWishlist(ctx context.Context, username string, productID int64) (*protocol.Response, error) {
	return m.reply(callf("remove_from_wishlist", productID, username))
}

func (m *MockAgent) Wishlist(ctx context.Context, username string) ([]protocol.Product, error) {
	if err := m.record("wishlist " + username); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Products, nil
}

func callf(name string, args ...any) string {
	return strings.TrimSpace(fmt.Sprintln(append([]any{name}, args...)...))
}

var _ AgentInterface = (*MockAgent)(nil)
