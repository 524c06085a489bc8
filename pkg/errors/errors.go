package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
)

// Cart and order domain codes.
const (
	CodeInvalidQuantity     Code = "INVALID_QUANTITY"
	CodeProductNotFound     Code = "PRODUCT_NOT_FOUND"
	CodeCartNotFound        Code = "CART_NOT_FOUND"
	CodeOrderNotFound       Code = "ORDER_NOT_FOUND"
	CodeInsufficientStock   Code = "INSUFFICIENT_STOCK"
	CodeEmptyCart           Code = "EMPTY_CART"
	CodeItemsUnavailable    Code = "ITEMS_UNAVAILABLE"
	CodeMissingCustomerInfo Code = "MISSING_CUSTOMER_INFO"
	CodeInvalidTransition   Code = "INVALID_TRANSITION"
)

// Metadata describes how a code surfaces over HTTP.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

func meta(status int, public string) Metadata {
	return Metadata{HTTPStatus: status, PublicMessage: public}
}

func (m Metadata) detailed() Metadata  { m.DetailsAllowed = true; return m }
func (m Metadata) retryable() Metadata { m.Retryable = true; return m }

var metadataByCode = map[Code]Metadata{
	CodeValidation:    meta(http.StatusBadRequest, "validation failed").detailed(),
	CodeNotFound:      meta(http.StatusNotFound, "resource not found"),
	CodeConflict:      meta(http.StatusConflict, "conflict detected"),
	CodeStateConflict: meta(http.StatusUnprocessableEntity, "state transition disallowed").detailed(),
	CodeIdempotency:   meta(http.StatusConflict, "idempotency key reused").detailed(),
	CodeRateLimit:     meta(http.StatusTooManyRequests, "rate limit exceeded"),
	CodeInternal:      meta(http.StatusInternalServerError, "internal server error").retryable(),
	CodeDependency:    meta(http.StatusServiceUnavailable, "dependency unavailable").retryable().detailed(),

	CodeInvalidQuantity:     meta(http.StatusBadRequest, "quantity must be greater than zero").detailed(),
	CodeProductNotFound:     meta(http.StatusNotFound, "product not found").detailed(),
	CodeCartNotFound:        meta(http.StatusNotFound, "cart not found"),
	CodeOrderNotFound:       meta(http.StatusNotFound, "order not found").detailed(),
	CodeInsufficientStock:   meta(http.StatusConflict, "insufficient stock").detailed(),
	CodeEmptyCart:           meta(http.StatusUnprocessableEntity, "cart is empty"),
	CodeItemsUnavailable:    meta(http.StatusConflict, "some items in the cart are no longer available").detailed(),
	CodeMissingCustomerInfo: meta(http.StatusUnprocessableEntity, "customer information is required for checkout").detailed(),
	CodeInvalidTransition:   meta(http.StatusUnprocessableEntity, "order status transition disallowed").detailed(),
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// IsPublic reports whether the error message for code may be shown to callers verbatim.
func IsPublic(code Code) bool {
	switch code {
	case CodeInternal, CodeDependency:
		return false
	}
	_, ok := metadataByCode[code]
	return ok
}

// Error is a coded application error. The message is safe to show callers
// when IsPublic(code); the cause never is.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Newf is New with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap attaches code and message to err. A nil err yields a plain New.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

// Code reports CodeInternal for a nil receiver.
func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

// WithDetails sets the payload rendered under "details" and returns e.
func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.cause == nil:
		return string(e.code) + ": " + e.message
	}
	return string(e.code) + ": " + e.message + ": " + e.cause.Error()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost *Error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if err == nil || !stdErrors.As(err, &typed) {
		return nil
	}
	return typed
}

// HasCode reports whether the outermost *Error in err's chain carries code.
func HasCode(err error, code Code) bool {
	return As(err).codeIs(code)
}

func (e *Error) codeIs(code Code) bool {
	return e != nil && e.code == code
}
