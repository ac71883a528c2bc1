package protocol

import (
	"errors"
	"fmt"
)

// ErrorCode names a failure kind. Codes travel on the wire in the "code"
// field of error responses.
type ErrorCode string

const (
	CodeMalformed          ErrorCode = "malformed"
	CodeUnknownType        ErrorCode = "unknown_type"
	CodeMissingField       ErrorCode = "missing_field"
	CodeInvalidInput       ErrorCode = "invalid_input"
	CodeUsernameTaken      ErrorCode = "username_taken"
	CodeInvalidCredentials ErrorCode = "invalid_credentials"
	CodeAuthRequired       ErrorCode = "auth_required"
	CodeIdentityMismatch   ErrorCode = "identity_mismatch"
	CodeUnknownRecipient   ErrorCode = "unknown_recipient"
	CodeRecipientOffline   ErrorCode = "recipient_offline"
	CodeDeliveryFailed     ErrorCode = "delivery_failed"
	CodeProductNotFound    ErrorCode = "product_not_found"
	CodeProductSold        ErrorCode = "product_sold"
	CodeOwnProduct         ErrorCode = "own_product"
	CodeProductUnavailable ErrorCode = "product_unavailable"
	CodeInternal           ErrorCode = "internal"

	// Client-side only; never sent by the server.
	CodeNoResponse      ErrorCode = "no_response"
	CodeTransportClosed ErrorCode = "transport_closed"
)

// Error is a protocol-level failure with a stable code and a human readable
// message.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any *Error carrying the same code, so
// errors.Is(err, protocol.ErrRecipientOffline) works for errors decoded
// from the wire.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewError builds an error with a custom message.
func NewError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Canonical errors. Messages match what clients display.
var (
	ErrMalformed          = &Error{CodeMalformed, "Invalid JSON format"}
	ErrUnknownType        = &Error{CodeUnknownType, "Unknown message type"}
	ErrUsernameTaken      = &Error{CodeUsernameTaken, "Username already exists"}
	ErrInvalidCredentials = &Error{CodeInvalidCredentials, "Invalid credentials"}
	ErrAuthRequired       = &Error{CodeAuthRequired, "Login required"}
	ErrIdentityMismatch   = &Error{CodeIdentityMismatch, "Cannot act on behalf of another user"}
	ErrUnknownRecipient   = &Error{CodeUnknownRecipient, "Recipient does not exist"}
	ErrRecipientOffline   = &Error{CodeRecipientOffline, "User is offline"}
	ErrDeliveryFailed     = &Error{CodeDeliveryFailed, "Failed to deliver message"}
	ErrProductNotFound    = &Error{CodeProductNotFound, "Product not found"}
	ErrProductSold        = &Error{CodeProductSold, "Product is already sold"}
	ErrOwnProduct         = &Error{CodeOwnProduct, "Cannot buy your own product"}
	ErrProductUnavailable = &Error{CodeProductUnavailable, "Product no longer available"}
	ErrInternal           = &Error{CodeInternal, "Internal server error"}
	ErrNoResponse         = &Error{CodeNoResponse, "No response from server"}
	ErrTransportClosed    = &Error{CodeTransportClosed, "Connection closed"}
)

// MissingField reports an absent required field by its wire name.
func MissingField(field string) *Error {
	return NewError(CodeMissingField, "Missing required field: %s", field)
}

// InvalidInput reports a field that is present but unacceptable.
func InvalidInput(field, reason string) *Error {
	return NewError(CodeInvalidInput, "Invalid %s: %s", field, reason)
}
