package protocol

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Envelope types
const (
	MsgRegister           = "register"
	MsgLogin              = "login"
	MsgLogout             = "logout"
	MsgChat               = "chat"
	MsgListProducts       = "list_products"
	MsgUserProducts       = "user_products"
	MsgAddProduct         = "add_product"
	MsgBuyProduct         = "buy_product"
	MsgRateProduct        = "rate_product"
	MsgAddToWishlist      = "add_to_wishlist"
	MsgRemoveFromWishlist = "remove_from_wishlist"
	MsgWishlist           = "wishlist"
	MsgOnlineUsers        = "online_users"
	MsgProductImage       = "product_image"
	MsgPing               = "ping"
)

// Response status values
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// TimestampLayout is the wall-clock format of chat push timestamps.
const TimestampLayout = "15:04:05"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their wire name
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Header carries the fields every request shares. Request structs embed it so
// that type and request_id sit at the top level of the JSON object.
type Header struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
}

// Head gives access to the embedded header of any request.
func (h *Header) Head() *Header { return h }

// Request is implemented by every request struct through its embedded Header.
type Request interface {
	Head() *Header
}

// Envelope is a parsed request whose body has not been bound yet.
type Envelope struct {
	Header
	raw    json.RawMessage
	fields map[string]json.RawMessage
}

// ParseEnvelope decodes a frame payload into an envelope. Anything that is
// not a JSON object yields ErrMalformed. A missing type is left empty and
// rejected later as an unknown type.
func ParseEnvelope(payload []byte) (*Envelope, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil || fields == nil {
		return nil, ErrMalformed
	}

	env := &Envelope{raw: payload, fields: fields}
	if t, ok := fields["type"]; ok {
		if err := json.Unmarshal(t, &env.Type); err != nil {
			return nil, ErrMalformed
		}
	}
	if id, ok := fields["request_id"]; ok {
		if err := json.Unmarshal(id, &env.RequestID); err != nil {
			return nil, ErrMalformed
		}
	}
	return env, nil
}

// Bind decodes the envelope body into v and validates it. Absent required
// fields map to MissingField. A required field that is present but empty or
// zero, and every other rule, maps to InvalidInput.
func (e *Envelope) Bind(v any) error {
	if err := json.Unmarshal(e.raw, v); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return InvalidInput(typeErr.Field, "expected "+typeErr.Type.String())
		}
		return ErrMalformed
	}
	return validationError(validate.Struct(v), e.present)
}

// present reports whether the payload carried a non-null value for field.
func (e *Envelope) present(field string) bool {
	raw, ok := e.fields[field]
	return ok && string(raw) != "null"
}

// Validate runs struct validation and converts the first failure into a
// protocol error. Every failed required rule counts as a missing field.
func Validate(v any) error {
	return validationError(validate.Struct(v), func(string) bool { return false })
}

func validationError(err error, present func(field string) bool) error {
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return ErrMalformed
	}
	fe := fieldErrs[0]
	if fe.Tag() == "required" {
		if !present(fe.Field()) {
			return MissingField(fe.Field())
		}
		if fe.Kind() == reflect.String {
			return InvalidInput(fe.Field(), "must not be empty")
		}
		return InvalidInput(fe.Field(), "must not be zero")
	}
	return InvalidInput(fe.Field(), describeRule(fe))
}

func describeRule(fe validator.FieldError) string {
	switch fe.Tag() {
	case "email":
		return "not an email address"
	case "gt", "min":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	case "alphanumunicode":
		return "letters and digits only"
	default:
		return fe.Tag()
	}
}

// RegisterRequest creates an account.
type RegisterRequest struct {
	Header
	Username string `json:"username" validate:"required,max=32,alphanumunicode"`
	Password string `json:"password" validate:"required,max=72"`
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
}

// LoginRequest binds the connection to an identity.
type LoginRequest struct {
	Header
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LogoutRequest drops the session but keeps the connection.
type LogoutRequest struct {
	Header
}

// ChatRequest asks the server to relay a message to another user.
type ChatRequest struct {
	Header
	From    string `json:"from" validate:"required"`
	To      string `json:"to" validate:"required"`
	Message string `json:"message" validate:"required"`
}

// ListProductsRequest lists the catalog. Query matches name, description or
// category as a substring; Category must match exactly. Both are optional.
type ListProductsRequest struct {
	Header
	Query    string `json:"query,omitempty" validate:"max=100"`
	Category string `json:"category,omitempty" validate:"max=50"`
}

// UserProductsRequest lists the products a user has put up for sale.
type UserProductsRequest struct {
	Header
	Username string `json:"username" validate:"required"`
}

// AddProductRequest lists a new product. Image is optional raw image data,
// base64 on the wire.
type AddProductRequest struct {
	Header
	Seller      string  `json:"seller" validate:"required"`
	Name        string  `json:"name" validate:"required,max=200"`
	Price       float64 `json:"price" validate:"required,gt=0"`
	Description string  `json:"description" validate:"required"`
	Category    string  `json:"category,omitempty" validate:"max=50"`
	Image       []byte  `json:"image,omitempty"`
}

// BuyProductRequest purchases a product.
type BuyProductRequest struct {
	Header
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	Buyer     string `json:"buyer" validate:"required"`
}

// RateProductRequest rates a product from 1 to 5.
type RateProductRequest struct {
	Header
	Username  string `json:"username" validate:"required"`
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	Rating    int    `json:"rating" validate:"required,min=1,max=5"`
}

// WishlistItemRequest adds or removes a wishlist entry.
type WishlistItemRequest struct {
	Header
	Username  string `json:"username" validate:"required"`
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
}

// WishlistRequest lists a user's wishlist.
type WishlistRequest struct {
	Header
	Username string `json:"username" validate:"required"`
}

// ProductImageRequest fetches the image stored with a product.
type ProductImageRequest struct {
	Header
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
}

// OnlineUsersRequest lists identities with a live session.
type OnlineUsersRequest struct {
	Header
}

// PingRequest checks liveness.
type PingRequest struct {
	Header
}

// Product is the wire view of a catalog entry.
type Product struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Category    string  `json:"category,omitempty"`
	Seller      string  `json:"seller"`
	Buyer       string  `json:"buyer,omitempty"`
	Sold        bool    `json:"sold"`
	HasImage    bool    `json:"has_image,omitempty"`
	Rating      float64 `json:"rating,omitempty"`
	Ratings     int     `json:"ratings,omitempty"`
}

// Response answers exactly one request.
type Response struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Code      ErrorCode `json:"code,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	ProductID int64     `json:"product_id,omitempty"`
	Products  []Product `json:"products,omitempty"`
	Users     []string  `json:"users,omitempty"`
	Image     []byte    `json:"image,omitempty"`
	ImageType string    `json:"image_type,omitempty"`
}

// Success builds a success response with a message.
func Success(message string) *Response {
	return &Response{Status: StatusSuccess, Message: message}
}

// ErrorResponse converts an error into an error response. Errors that are
// not protocol errors are reported as internal.
func ErrorResponse(err error) *Response {
	var perr *Error
	if !errors.As(err, &perr) {
		perr = ErrInternal
	}
	return &Response{Status: StatusError, Message: perr.Message, Code: perr.Code}
}

// Err returns the response as a protocol error, or nil on success.
func (r *Response) Err() error {
	if r.Status == StatusSuccess {
		return nil
	}
	code := r.Code
	if code == "" {
		code = CodeInternal
	}
	return &Error{Code: code, Message: r.Message}
}

// ChatPush is delivered unsolicited to the recipient of a chat message.
type ChatPush struct {
	Type      string `json:"type"`
	From      string `json:"from"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Marshal encodes v as a JSON payload.
func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// DecodeResponse decodes a response payload.
func DecodeResponse(payload []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, ErrMalformed
	}
	if resp.Status != StatusSuccess && resp.Status != StatusError {
		return nil, ErrMalformed
	}
	return &resp, nil
}

// DecodePush decodes a server push payload.
func DecodePush(payload []byte) (*ChatPush, error) {
	var push ChatPush
	if err := json.Unmarshal(payload, &push); err != nil {
		return nil, ErrMalformed
	}
	if push.Type != MsgChat {
		return nil, ErrUnknownType
	}
	return &push, nil
}
