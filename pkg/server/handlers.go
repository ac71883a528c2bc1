package server

import (
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"time"

	"github.com/aeolun/auboutique/pkg/database"
	"github.com/aeolun/auboutique/pkg/protocol"
	"github.com/samber/lo"
)

// knownTypes bounds the metric label set.
var knownTypes = map[string]bool{
	protocol.MsgRegister:           true,
	protocol.MsgLogin:              true,
	protocol.MsgLogout:             true,
	protocol.MsgChat:               true,
	protocol.MsgListProducts:       true,
	protocol.MsgUserProducts:       true,
	protocol.MsgAddProduct:         true,
	protocol.MsgBuyProduct:         true,
	protocol.MsgRateProduct:        true,
	protocol.MsgAddToWishlist:      true,
	protocol.MsgRemoveFromWishlist: true,
	protocol.MsgWishlist:           true,
	protocol.MsgOnlineUsers:        true,
	protocol.MsgProductImage:       true,
	protocol.MsgPing:               true,
}

func typeLabel(msgType string) string {
	if knownTypes[msgType] {
		return msgType
	}
	return "unknown"
}

// handleFrame turns one request frame into exactly one response. Retried
// requests are answered from the connection's reply cache.
func (s *Server) handleFrame(conn *SafeConn, replies *replyCache, frame *protocol.Frame) *protocol.Response {
	if frame.Type != protocol.TypeRequest {
		s.metrics.RecordError(string(protocol.CodeMalformed))
		return protocol.ErrorResponse(protocol.ErrMalformed)
	}

	env, err := protocol.ParseEnvelope(frame.Payload)
	if err != nil {
		debugLog.Printf("Conn %d: unparseable payload (%d bytes)", conn.ID(), len(frame.Payload))
		s.metrics.RecordError(string(protocol.CodeMalformed))
		return protocol.ErrorResponse(err)
	}

	if env.RequestID != "" {
		if cached, ok := replies.Get(env.RequestID); ok {
			debugLog.Printf("Conn %d: replaying reply for request %s", conn.ID(), env.RequestID)
			s.metrics.RecordReplyReplayed()
			return cached
		}
	}

	label := typeLabel(env.Type)
	s.metrics.RecordMessageReceived(label)
	start := time.Now()

	resp := s.dispatch(conn, env)
	resp.RequestID = env.RequestID

	s.metrics.ObserveRequest(label, time.Since(start))
	if resp.Status == protocol.StatusError {
		s.metrics.RecordError(string(resp.Code))
	}
	if env.RequestID != "" {
		replies.Put(env.RequestID, resp)
	}
	return resp
}

// dispatch routes an envelope to its handler. It never fails: every error,
// including a handler panic, becomes an error response.
func (s *Server) dispatch(conn *SafeConn, env *protocol.Envelope) (resp *protocol.Response) {
	defer func() {
		if r := recover(); r != nil {
			errorLog.Printf("Conn %d: panic handling %q: %v\n%s", conn.ID(), env.Type, r, debug.Stack())
			resp = protocol.ErrorResponse(protocol.ErrInternal)
		}
	}()

	result, err := s.route(conn, env)
	if err != nil {
		var perr *protocol.Error
		if !errors.As(err, &perr) {
			errorLog.Printf("Conn %d: %s failed: %v", conn.ID(), env.Type, err)
		}
		return protocol.ErrorResponse(err)
	}
	return result
}

func (s *Server) route(conn *SafeConn, env *protocol.Envelope) (*protocol.Response, error) {
	switch env.Type {
	case protocol.MsgRegister:
		return s.handleRegister(env)
	case protocol.MsgLogin:
		return s.handleLogin(conn, env)
	case protocol.MsgLogout:
		return s.handleLogout(conn)
	case protocol.MsgChat:
		return s.handleChat(conn, env)
	case protocol.MsgListProducts:
		return s.handleListProducts(env)
	case protocol.MsgUserProducts:
		return s.handleUserProducts(env)
	case protocol.MsgAddProduct:
		return s.handleAddProduct(conn, env)
	case protocol.MsgBuyProduct:
		return s.handleBuyProduct(conn, env)
	case protocol.MsgRateProduct:
		return s.handleRateProduct(conn, env)
	case protocol.MsgAddToWishlist:
		return s.handleAddToWishlist(conn, env)
	case protocol.MsgRemoveFromWishlist:
		return s.handleRemoveFromWishlist(conn, env)
	case protocol.MsgWishlist:
		return s.handleWishlist(conn, env)
	case protocol.MsgProductImage:
		return s.handleProductImage(env)
	case protocol.MsgOnlineUsers:
		return &protocol.Response{Status: protocol.StatusSuccess, Users: s.sessions.Online()}, nil
	case protocol.MsgPing:
		return protocol.Success("pong"), nil
	default:
		return nil, protocol.ErrUnknownType
	}
}

// authorize checks that conn carries a session for actor. With
// RequireLogin off every request is allowed.
func (s *Server) authorize(conn *SafeConn, actor string) error {
	if !s.config.RequireLogin {
		return nil
	}
	identity, ok := s.sessions.IdentityOf(conn)
	if !ok {
		return protocol.ErrAuthRequired
	}
	if identity != actor {
		return protocol.ErrIdentityMismatch
	}
	return nil
}

// storeError maps store sentinels to protocol errors. Anything else is
// wrapped and surfaces as an internal error.
func storeError(op string, err error) error {
	switch {
	case errors.Is(err, database.ErrUsernameTaken):
		return protocol.ErrUsernameTaken
	case errors.Is(err, database.ErrProductNotFound):
		return protocol.ErrProductNotFound
	case errors.Is(err, database.ErrProductSold):
		return protocol.ErrProductSold
	case errors.Is(err, database.ErrOwnProduct):
		return protocol.ErrOwnProduct
	case errors.Is(err, database.ErrProductUnavailable):
		return protocol.ErrProductUnavailable
	case errors.Is(err, database.ErrUserNotFound):
		return protocol.NewError(protocol.CodeInvalidInput, "Unknown user")
	case errors.Is(err, database.ErrInvalidImage):
		return protocol.InvalidInput("image", "not an image")
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func toWireProducts(products []*database.Product) []protocol.Product {
	return lo.Map(products, func(p *database.Product, _ int) protocol.Product {
		return protocol.Product{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			Price:       p.Price,
			Category:    p.Category,
			Seller:      p.Seller,
			Buyer:       lo.FromPtr(p.Buyer),
			Sold:        p.Sold(),
			HasImage:    p.HasImage,
			Rating:      p.AvgRating,
			Ratings:     p.RatingCount,
		}
	})
}

func productsResponse(products []*database.Product) *protocol.Response {
	return &protocol.Response{Status: protocol.StatusSuccess, Products: toWireProducts(products)}
}

func (s *Server) handleRegister(env *protocol.Envelope) (*protocol.Response, error) {
	var req protocol.RegisterRequest
	if err := env.Bind(&req); err != nil {
		return nil, err
	}
	if err := s.store.CreateUser(req.Username, req.Password, req.Name, req.Email); err != nil {
		return nil, storeError("CreateUser", err)
	}
	log.Printf("Registered user %s", req.Username)
	return protocol.Success("Registration successful"), nil
}

func (s *Server) handleLogin(conn *SafeConn, env *protocol.Envelope) (*protocol.Response, error) {
	var req protocol.LoginRequest
	if err := env.Bind(&req); err != nil {
		return nil, err
	}
	ok, err := s.store.VerifyCredential(req.Username, req.Password)
	if err != nil {
		return nil, storeError("VerifyCredential", err)
	}
	if !ok {
		return nil, protocol.ErrInvalidCredentials
	}

	if superseded := s.sessions.Bind(req.Username, conn); superseded != nil {
		// The older connection stays open without a session.
		log.Printf("Session for %s superseded: conn %d -> conn %d", req.Username, superseded.ID(), conn.ID())
	}
	if err := s.store.TouchUser(req.Username); err != nil {
		debugLog.Printf("Conn %d: touch %s: %v", conn.ID(), req.Username, err)
	}
	debugLog.Printf("Conn %d: logged in as %s", conn.ID(), req.Username)
	return protocol.Success("Login successful"), nil
}

func (s *Server) handleLogout(conn *SafeConn) (*protocol.Response, error) {
	if identity, ok := s.sessions.Unbind(conn); ok {
		debugLog.Printf("Conn %d: %s logged out", conn.ID(), identity)
	}
	return protocol.Success("Logout successful"), nil
}

func (s *Server) handleChat(conn *SafeConn, env *protocol.Envelope) (*protocol.Response, error) {
	var req protocol.ChatRequest
	if err := env.Bind(&req); err != nil {
		return nil, err
	}
	if s.config.MaxMessageLength > 0 && len(req.Message) > s.config.MaxMessageLength {
		return nil, protocol.InvalidInput("message", fmt.Sprintf("must be at most %d bytes", s.config.MaxMessageLength))
	}
	if err := s.authorize(conn, req.From); err != nil {
		return nil, err
	}
	if err := s.relayChat(&req); err != nil {
		return nil, err
	}
	return protocol.Success("Message sent successfully"), nil
}

func (s *Server) handleListProducts(env *protocol.Envelope) (*protocol.Response, error) {
	var req protocol.ListProductsRequest
	if err := env.Bind(&req); err != nil {
		return nil, err
	}
	products, err := s.store.ListProducts(database.ProductFilter{Query: req.Query, Category: req.Category})
	if err != nil {
		return nil, storeError("ListProducts", err)
	}
	return productsResponse(products), nil
}

func (s *Server) handleUserProducts(env *protocol.Envelope) (*protocol.Response, error) {
	var req protocol.UserProductsRequest
	if err := env.Bind(&req); err != nil {
		return nil, err
	}
	products, err := s.store.UserProducts(req.Username)
	if err != nil {
		return nil, storeError("UserProducts", err)
	}
	return productsResponse(products), nil
}

func (s *Server) handleAddProduct(conn *SafeConn, env *protocol.Envelope) (*protocol.Response, error) {
	var req protocol.AddProductRequest
	if err := env.Bind(&req); err != nil {
		return nil, err
	}
	if err := s.authorize(conn, req.Seller); err != nil {
		return nil, err
	}
	id, err := s.store.AddProduct(database.NewProduct{
		Seller:      req.Seller,
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Price:       req.Price,
		Image:       req.Image,
	})
	if err != nil {
		return nil, storeError("AddProduct", err)
	}
	log.Printf("Product %d listed by %s", id, req.Seller)
	resp := protocol.Success("Product added successfully")
	resp.ProductID = id
	return resp, nil
}

func (s *Server) handleBuyProduct(conn *SafeConn, env *protocol.Envelope) (*protocol.Response, error) {
	var req protocol.BuyProductRequest
	if err := env.Bind(&req); err != nil {
		return nil, err
	}
	if err := s.authorize(conn, req.Buyer); err != nil {
		return nil, err
	}
	if err := s.store.BuyProduct(req.ProductID, req.Buyer); err != nil {
		return nil, storeError("BuyProduct", err)
	}
	if buyer, err := s.store.GetUser(req.Buyer); err == nil {
		log.Printf("Product %d sold to %s, collection details to %s", req.ProductID, req.Buyer, buyer.Email)
	} else {
		log.Printf("Product %d sold to %s (no contact: %v)", req.ProductID, req.Buyer, err)
	}
	return protocol.Success("Purchase successful! Check your email for collection details."), nil
}

func (s *Server) handleProductImage(env *protocol.Envelope) (*protocol.Response, error) {
	var req protocol.ProductImageRequest
	if err := env.Bind(&req); err != nil {
		return nil, err
	}
	image, imageType, err := s.store.ProductImage(req.ProductID)
	if err != nil {
		return nil, storeError("ProductImage", err)
	}
	if len(image) == 0 {
		return protocol.Success("Product has no image"), nil
	}
	return &protocol.Response{Status: protocol.StatusSuccess, Image: image, ImageType: imageType}, nil
}

func (s *Server) handleRateProduct(conn *SafeConn, env *protocol.Envelope) (*protocol.Response, error) {
	var req protocol.RateProductRequest
	if err := env.Bind(&req); err != nil {
		return nil, err
	}
	if err := s.authorize(conn, req.Username); err != nil {
		return nil, err
	}
	if err := s.store.RateProduct(req.ProductID, req.Username, req.Rating); err != nil {
		return nil, storeError("RateProduct", err)
	}
	return protocol.Success("Thank you for rating!"), nil
}

func (s *Server) handleAddToWishlist(conn *SafeConn, env *protocol.Envelope) (*protocol.Response, error) {
	var req protocol.WishlistItemRequest
	if err := env.Bind(&req); err != nil {
		return nil, err
	}
	if err := s.authorize(conn, req.Username); err != nil {
		return nil, err
	}
	err := s.store.AddToWishlist(req.Username, req.ProductID)
	if errors.Is(err, database.ErrAlreadyWishlisted) {
		return protocol.Success("Product is already in your wishlist."), nil
	}
	if err != nil {
		return nil, storeError("AddToWishlist", err)
	}
	return protocol.Success("Product added to your wishlist."), nil
}

func (s *Server) handleRemoveFromWishlist(conn *SafeConn, env *protocol.Envelope) (*protocol.Response, error) {
	var req protocol.WishlistItemRequest
	if err := env.Bind(&req); err != nil {
		return nil, err
	}
	if err := s.authorize(conn, req.Username); err != nil {
		return nil, err
	}
	if err := s.store.RemoveFromWishlist(req.Username, req.ProductID); err != nil {
		return nil, storeError("RemoveFromWishlist", err)
	}
	return protocol.Success("Product removed from your wishlist."), nil
}

func (s *Server) handleWishlist(conn *SafeConn, env *protocol.Envelope) (*protocol.Response, error) {
	var req protocol.WishlistRequest
	if err := env.Bind(&req); err != nil {
		return nil, err
	}
	if err := s.authorize(conn, req.Username); err != nil {
		return nil, err
	}
	products, err := s.store.Wishlist(req.Username)
	if err != nil {
		return nil, storeError("Wishlist", err)
	}
	return productsResponse(products), nil
}
