package client

import (
	"context"

	"github.com/aeolun/auboutique/pkg/protocol"
)

// do runs a call and turns an error response into a *protocol.Error. The
// response is returned either way so callers can show its message.
func (a *Agent) do(ctx context.Context, req protocol.Request) (*protocol.Response, error) {
	resp, err := a.Call(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp, resp.Err()
}

func header(msgType string) protocol.Header {
	return protocol.Header{Type: msgType}
}

// Register creates an account.
func (a *Agent) Register(ctx context.Context, username, password, name, email string) (*protocol.Response, error) {
	return a.do(ctx, &protocol.RegisterRequest{
		Header:   header(protocol.MsgRegister),
		Username: username,
		Password: password,
		Name:     name,
		Email:    email,
	})
}

// Login binds this connection to username. The session is restored
// automatically after a reconnect.
func (a *Agent) Login(ctx context.Context, username, password string) (*protocol.Response, error) {
	return a.do(ctx, &protocol.LoginRequest{
		Header:   header(protocol.MsgLogin),
		Username: username,
		Password: password,
	})
}

func (a *Agent) Logout(ctx context.Context) (*protocol.Response, error) {
	return a.do(ctx, &protocol.LogoutRequest{Header: header(protocol.MsgLogout)})
}

// SendChat relays message to a user who is online right now.
func (a *Agent) SendChat(ctx context.Context, from, to, message string) (*protocol.Response, error) {
	return a.do(ctx, &protocol.ChatRequest{
		Header:  header(protocol.MsgChat),
		From:    from,
		To:      to,
		Message: message,
	})
}

// ListProducts returns the products still for sale.
func (a *Agent) ListProducts(ctx context.Context) ([]protocol.Product, error) {
	return a.SearchProducts(ctx, "", "")
}

// SearchProducts returns the products still for sale whose name, description
// or category contains query and, when category is set, whose category
// matches it exactly. Either may be empty.
func (a *Agent) SearchProducts(ctx context.Context, query, category string) ([]protocol.Product, error) {
	resp, err := a.do(ctx, &protocol.ListProductsRequest{
		Header:   header(protocol.MsgListProducts),
		Query:    query,
		Category: category,
	})
	if err != nil {
		return nil, err
	}
	return resp.Products, nil
}

// UserProducts returns everything username has listed, sold or not.
func (a *Agent) UserProducts(ctx context.Context, username string) ([]protocol.Product, error) {
	resp, err := a.do(ctx, &protocol.UserProductsRequest{
		Header:   header(protocol.MsgUserProducts),
		Username: username,
	})
	if err != nil {
		return nil, err
	}
	return resp.Products, nil
}

// AddProduct lists a product and returns its id. category and image may be
// empty.
func (a *Agent) AddProduct(ctx context.Context, seller, name string, price float64, description, category string, image []byte) (int64, error) {
	resp, err := a.do(ctx, &protocol.AddProductRequest{
		Header:      header(protocol.MsgAddProduct),
		Seller:      seller,
		Name:        name,
		Price:       price,
		Description: description,
		Category:    category,
		Image:       image,
	})
	if err != nil {
		return 0, err
	}
	return resp.ProductID, nil
}

// ProductImage fetches a product's image and its MIME type. A product
// listed without an image yields nil data.
func (a *Agent) ProductImage(ctx context.Context, productID int64) ([]byte, string, error) {
	resp, err := a.do(ctx, &protocol.ProductImageRequest{
		Header:    header(protocol.MsgProductImage),
		ProductID: productID,
	})
	if err != nil {
		return nil, "", err
	}
	return resp.Image, resp.ImageType, nil
}

func (a *Agent) BuyProduct(ctx context.Context, productID int64, buyer string) (*protocol.Response, error) {
	return a.do(ctx, &protocol.BuyProductRequest{
		Header:    header(protocol.MsgBuyProduct),
		ProductID: productID,
		Buyer:     buyer,
	})
}

func (a *Agent) RateProduct(ctx context.Context, productID int64, username string, rating int) (*protocol.Response, error) {
	return a.do(ctx, &protocol.RateProductRequest{
		Header:    header(protocol.MsgRateProduct),
		Username:  username,
		ProductID: productID,
		Rating:    rating,
	})
}

func (a *Agent) AddToWishlist(ctx context.Context, username string, productID int64) (*protocol.Response, error) {
	return a.do(ctx, &protocol.WishlistItemRequest{
		Header:    header(protocol.MsgAddToWishlist),
		Username:  username,
		ProductID: productID,
	})
}

func (a *Agent) RemoveFromWishlist(ctx context.Context, username string, productID int64) (*protocol.Response, error) {
	return a.do(ctx, &protocol.WishlistItemRequest{
		Header:    header(protocol.MsgRemoveFromWishlist),
		Username:  username,
		ProductID: productID,
	})
}

func (a *Agent) Wishlist(ctx context.Context, username string) ([]protocol.Product, error) {
	resp, err := a.do(ctx, &protocol.WishlistRequest{
		Header:   header(protocol.MsgWishlist),
		Username: username,
	})
	if err != nil {
		return nil, err
	}
	return resp.Products, nil
}

// OnlineUsers lists identities with a live session.
func (a *Agent) OnlineUsers(ctx context.Context) ([]string, error) {
	resp, err := a.do(ctx, &protocol.OnlineUsersRequest{Header: header(protocol.MsgOnlineUsers)})
	if err != nil {
		return nil, err
	}
	return resp.Users, nil
}

func (a *Agent) Ping(ctx context.Context) error {
	_, err := a.do(ctx, &protocol.PingRequest{Header: header(protocol.MsgPing)})
	return err
}
