package client

import (
	"context"

	"github.com/aeolun/auboutique/pkg/protocol"
)

// AgentInterface defines what the UI needs from the network agent.
// This allows for mocking in tests while the real Agent implements all these methods
type AgentInterface interface {
	// Connection management
	Connect(ctx context.Context) error
	Close()
	IsConnected() bool
	Address() string
	StateChanges() <-chan ConnectionStateUpdate
	Pushes() *PushQueue

	// Accounts
	Register(ctx context.Context, username, password, name, email string) (*protocol.Response, error)
	Login(ctx context.Context, username, password string) (*protocol.Response, error)
	Logout(ctx context.Context) (*protocol.Response, error)
	OnlineUsers(ctx context.Context) ([]string, error)

	// Chat
	SendChat(ctx context.Context, from, to, message string) (*protocol.Response, error)

	// Catalog
	ListProducts(ctx context.Context) ([]protocol.Product, error)
	SearchProducts(ctx context.Context, query, category string) ([]protocol.Product, error)
	UserProducts(ctx context.Context, username string) ([]protocol.Product, error)
	AddProduct(ctx context.Context, seller, name string, price float64, description, category string, image []byte) (int64, error)
	ProductImage(ctx context.Context, productID int64) ([]byte, string, error)
	BuyProduct(ctx context.Context, productID int64, buyer string) (*protocol.Response, error)
	RateProduct(ctx context.Context, productID int64, username string, rating int) (*protocol.Response, error)
	AddToWishlist(ctx context.Context, username string, productID int64) (*protocol.Response, error)
	RemoveFromWishlist(ctx context.Context, username string, productID int64) (*protocol.Response, error)
	Wishlist(ctx context.Context, username string) ([]protocol.Product, error)
}

var _ AgentInterface = (*Agent)(nil)

// StateInterface defines the interface for client state persistence
// This allows for mocking in tests while the real State implements all these methods
type StateInterface interface {
	GetConfig(key string) (string, error)
	SetConfig(key, value string) error

	GetLastUsername() string
	SetLastUsername(username string) error

	NotificationsEnabled() bool
	SetNotificationsEnabled(enabled bool) error

	Close() error
}
